package downloads

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"downloads-bridge/internal/channel"
	"downloads-bridge/internal/models"
)

// Method and argument names of the download channel
const (
	MethodSaveFile = "saveFile"
	ArgBytes       = "bytes"
	ArgFileName    = "fileName"
)

// Error codes returned on the download channel
const (
	CodeInvalid     = "INVALID"
	CodeUnavailable = "UNAVAILABLE"
)

// Saver persists files and reports where they went
type Saver interface {
	Save(ctx context.Context, data []byte, fileName string) (string, error)
}

// BackendNamer is implemented by savers that can name the backend in use
type BackendNamer interface {
	BackendName() string
}

// Notifier receives every successfully saved file
type Notifier interface {
	Notify(saved models.SavedFile)
}

// Channel answers method calls on the download channel
type Channel struct {
	saver    Saver
	notifier Notifier
	metrics  *Metrics
	logger   hclog.Logger
	now      func() time.Time
}

var _ channel.MethodCallHandler = (*Channel)(nil)

// NewChannel creates the download channel handler. notifier may be nil.
func NewChannel(saver Saver, notifier Notifier, logger hclog.Logger) *Channel {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Channel{
		saver:    saver,
		notifier: notifier,
		metrics:  &Metrics{},
		logger:   logger.Named("downloads"),
		now:      time.Now,
	}
}

// Metrics returns the channel counters
func (c *Channel) Metrics() *Metrics {
	return c.metrics
}

// HandleMethodCall dispatches a call by method name
func (c *Channel) HandleMethodCall(ctx context.Context, call *channel.MethodCall, result channel.Result) {
	c.metrics.CallsTotal.Add(1)

	switch call.Method {
	case MethodSaveFile:
		c.saveFile(ctx, call, result)
	default:
		c.metrics.NotImplemented.Add(1)
		c.logger.Debug("method not implemented", "method", call.Method)
		result.NotImplemented()
	}
}

func (c *Channel) saveFile(ctx context.Context, call *channel.MethodCall, result channel.Result) {
	var data []byte
	var fileName string
	if !call.Argument(ArgBytes, &data) || !call.Argument(ArgFileName, &fileName) {
		c.metrics.InvalidCalls.Add(1)
		result.Error(CodeInvalid, "Missing arguments", nil)
		return
	}

	location, err := c.saver.Save(ctx, data, fileName)
	if err != nil || location == "" {
		c.metrics.SavesFailed.Add(1)
		result.Error(CodeUnavailable, "Failed to save file", nil)
		return
	}

	c.metrics.SavesOK.Add(1)
	c.metrics.BytesWritten.Add(int64(len(data)))

	if c.notifier != nil {
		saved := models.SavedFile{
			Location: location,
			FileName: fileName,
			Size:     int64(len(data)),
			SavedAt:  c.now().UTC(),
		}
		if namer, ok := c.saver.(BackendNamer); ok {
			saved.Backend = namer.BackendName()
		}
		c.notifier.Notify(saved)
	}

	result.Success(location)
}
