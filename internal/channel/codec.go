// Package channel implements a method channel: named channels carrying
// method calls with named arguments, answered by exactly one of success,
// error or not-implemented.
//
// Calls and replies use the JSON method codec layout:
//
//	call:            {"method": "saveFile", "args": {"fileName": "a.pdf", "bytes": "<base64>"}}
//	success:         [result]
//	error:           [code, message, details]
//	not implemented: []
package channel

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

var (
	ErrMalformedCall     = errors.New("malformed method call")
	ErrMalformedEnvelope = errors.New("malformed reply envelope")
)

// MethodCall is a decoded method invocation
type MethodCall struct {
	Method    string
	Arguments map[string]json.RawMessage
}

type wireCall struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Argument decodes the named argument into dst. It reports false when the
// argument is absent, null, or not decodable into dst.
func (c *MethodCall) Argument(key string, dst any) bool {
	raw, ok := c.Arguments[key]
	if !ok || isNull(raw) {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// HasArgument reports whether the named argument is present and not null
func (c *MethodCall) HasArgument(key string) bool {
	raw, ok := c.Arguments[key]
	return ok && !isNull(raw)
}

// EncodeMethodCall encodes a call. []byte arguments are sent as base64.
func EncodeMethodCall(method string, args map[string]any) ([]byte, error) {
	if method == "" {
		return nil, errors.Wrap(ErrMalformedCall, "method is required")
	}
	call := struct {
		Method string         `json:"method"`
		Args   map[string]any `json:"args,omitempty"`
	}{Method: method, Args: args}

	data, err := json.Marshal(call)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode method call")
	}
	return data, nil
}

// DecodeMethodCall decodes a call. Arguments that are not a JSON object are
// dropped, so every Argument lookup on such a call reports false.
func DecodeMethodCall(data []byte) (*MethodCall, error) {
	var wc wireCall
	if err := json.Unmarshal(data, &wc); err != nil {
		return nil, errors.Wrap(ErrMalformedCall, err.Error())
	}
	if wc.Method == "" {
		return nil, errors.Wrap(ErrMalformedCall, "method is required")
	}

	call := &MethodCall{Method: wc.Method}
	if len(wc.Args) > 0 && !isNull(wc.Args) {
		var args map[string]json.RawMessage
		if err := json.Unmarshal(wc.Args, &args); err == nil {
			call.Arguments = args
		}
	}
	return call, nil
}

// EnvelopeKind tells the three reply shapes apart
type EnvelopeKind int

const (
	KindNotImplemented EnvelopeKind = iota
	KindSuccess
	KindError
)

// Envelope is a decoded reply
type Envelope struct {
	Kind    EnvelopeKind
	Result  json.RawMessage
	Code    string
	Message string
	Details json.RawMessage
}

// EncodeSuccessEnvelope encodes [result]
func EncodeSuccessEnvelope(result any) ([]byte, error) {
	data, err := json.Marshal([]any{result})
	return data, errors.Wrap(err, "failed to encode success envelope")
}

// EncodeErrorEnvelope encodes [code, message, details]
func EncodeErrorEnvelope(code, message string, details any) ([]byte, error) {
	data, err := json.Marshal([]any{code, message, details})
	return data, errors.Wrap(err, "failed to encode error envelope")
}

// EncodeNotImplementedEnvelope encodes []
func EncodeNotImplementedEnvelope() []byte {
	return []byte("[]")
}

// DecodeEnvelope decodes a reply envelope
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, errors.Wrap(ErrMalformedEnvelope, err.Error())
	}

	switch len(parts) {
	case 0:
		return &Envelope{Kind: KindNotImplemented}, nil
	case 1:
		return &Envelope{Kind: KindSuccess, Result: parts[0]}, nil
	case 3:
		env := &Envelope{Kind: KindError, Details: parts[2]}
		if err := json.Unmarshal(parts[0], &env.Code); err != nil {
			return nil, errors.Wrap(ErrMalformedEnvelope, "error code must be a string")
		}
		if !isNull(parts[1]) {
			if err := json.Unmarshal(parts[1], &env.Message); err != nil {
				return nil, errors.Wrap(ErrMalformedEnvelope, "error message must be a string")
			}
		}
		return env, nil
	}
	return nil, errors.Wrapf(ErrMalformedEnvelope, "unexpected length %d", len(parts))
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
