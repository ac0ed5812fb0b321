package channel

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// MethodCallHandler answers calls on one channel
type MethodCallHandler interface {
	HandleMethodCall(ctx context.Context, call *MethodCall, result Result)
}

// MethodCallHandlerFunc adapts a function to MethodCallHandler
type MethodCallHandlerFunc func(ctx context.Context, call *MethodCall, result Result)

func (f MethodCallHandlerFunc) HandleMethodCall(ctx context.Context, call *MethodCall, result Result) {
	f(ctx, call, result)
}

// Messenger routes encoded calls to the handler registered for a channel
type Messenger struct {
	mu       sync.RWMutex
	handlers map[string]MethodCallHandler
	logger   hclog.Logger
}

// NewMessenger creates a Messenger with no channels
func NewMessenger(logger hclog.Logger) *Messenger {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Messenger{
		handlers: make(map[string]MethodCallHandler),
		logger:   logger.Named("messenger"),
	}
}

// SetMethodCallHandler registers h for name. A nil handler unregisters the channel.
func (m *Messenger) SetMethodCallHandler(name string, h MethodCallHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		delete(m.handlers, name)
		return
	}
	m.handlers[name] = h
}

// Channels returns the registered channel names, sorted
func (m *Messenger) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke decodes payload as a method call on channel and returns the encoded
// reply. A channel without a handler replies not implemented. Only an
// undecodable payload is returned as an error (ErrMalformedCall).
func (m *Messenger) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	call, err := DecodeMethodCall(payload)
	if err != nil {
		m.logger.Debug("rejected call", "channel", name, "error", err)
		return nil, err
	}

	m.mu.RLock()
	h, ok := m.handlers[name]
	m.mu.RUnlock()
	if !ok {
		m.logger.Debug("no handler for channel", "channel", name, "method", call.Method)
		return EncodeNotImplementedEnvelope(), nil
	}

	reply := NewReply()
	h.HandleMethodCall(ctx, call, reply)
	if !reply.Submitted() {
		m.logger.Warn("handler returned without replying", "channel", name, "method", call.Method)
	}
	return reply.Envelope()
}
