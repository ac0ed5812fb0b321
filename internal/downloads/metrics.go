package downloads

import "sync/atomic"

// Metrics holds process-lifetime counters for the download channel.
type Metrics struct {
	CallsTotal     atomic.Int64 // every call on the channel
	SavesOK        atomic.Int64 // saveFile calls answered with a location
	SavesFailed    atomic.Int64 // saveFile calls answered UNAVAILABLE
	InvalidCalls   atomic.Int64 // saveFile calls answered INVALID
	NotImplemented atomic.Int64 // calls for unknown methods
	BytesWritten   atomic.Int64 // payload bytes of successful saves
}

// Snapshot returns the current counter values keyed by metric name
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"calls_total":     m.CallsTotal.Load(),
		"saves_ok":        m.SavesOK.Load(),
		"saves_failed":    m.SavesFailed.Load(),
		"invalid_calls":   m.InvalidCalls.Load(),
		"not_implemented": m.NotImplemented.Load(),
		"bytes_written":   m.BytesWritten.Load(),
	}
}
