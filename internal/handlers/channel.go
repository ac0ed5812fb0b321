package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"downloads-bridge/internal/channel"
)

// Invoker delivers an encoded method call to a channel
type Invoker interface {
	Invoke(ctx context.Context, name string, payload []byte) ([]byte, error)
}

// ChannelHandler carries method channel calls over HTTP
type ChannelHandler struct {
	invoker Invoker
}

// NewChannelHandler creates a new channel handler
func NewChannelHandler(invoker Invoker) *ChannelHandler {
	return &ChannelHandler{invoker: invoker}
}

// HandleInvoke handles POST /channels/{channel}. The body is an encoded
// method call, the response an encoded reply envelope.
func (h *ChannelHandler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := mux.Vars(r)["channel"]
	if name == "" {
		respondError(w, http.StatusBadRequest, "channel is required", nil)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request", err)
		return
	}

	envelope, err := h.invoker.Invoke(r.Context(), name, payload)
	if errors.Is(err, channel.ErrMalformedCall) {
		respondError(w, http.StatusBadRequest, "Malformed method call", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to invoke channel", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(envelope)
}
