package channel

import "sync"

// Result receives the outcome of a method call. Only the first call on a
// Result counts.
type Result interface {
	Success(result any)
	Error(code, message string, details any)
	NotImplemented()
}

// Reply is a Result that records the outcome as an encoded envelope
type Reply struct {
	mu       sync.Mutex
	done     bool
	envelope []byte
	err      error
}

// NewReply creates an empty Reply
func NewReply() *Reply {
	return &Reply{}
}

func (r *Reply) Success(result any) {
	r.submit(func() ([]byte, error) { return EncodeSuccessEnvelope(result) })
}

func (r *Reply) Error(code, message string, details any) {
	r.submit(func() ([]byte, error) { return EncodeErrorEnvelope(code, message, details) })
}

func (r *Reply) NotImplemented() {
	r.submit(func() ([]byte, error) { return EncodeNotImplementedEnvelope(), nil })
}

// Submitted reports whether an outcome has been recorded
func (r *Reply) Submitted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Envelope returns the encoded outcome. A reply that was never submitted
// encodes as not implemented.
func (r *Reply) Envelope() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done {
		return EncodeNotImplementedEnvelope(), nil
	}
	return r.envelope, r.err
}

func (r *Reply) submit(encode func() ([]byte, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.envelope, r.err = encode()
}
