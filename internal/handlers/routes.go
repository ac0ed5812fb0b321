package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
)

// NewRouter registers all routes.
//
// Middleware stack (outer to inner): RequestID, RequestLog, router, handler.
func NewRouter(channels *ChannelHandler, files *FilesHandler, status *StatusHandler, logger hclog.Logger) http.Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("http")

	r := mux.NewRouter()
	r.Use(RequestID(logger), RequestLog(logger))

	r.HandleFunc("/channels/{channel:.+}", channels.HandleInvoke).Methods(http.MethodPost)
	r.HandleFunc("/downloads", files.HandleList).Methods(http.MethodGet)
	r.HandleFunc("/downloads/open", files.HandleOpen).Methods(http.MethodGet)
	r.HandleFunc("/health", status.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", status.HandleMetrics).Methods(http.MethodGet)

	return r
}
