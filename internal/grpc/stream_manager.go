package grpc

import (
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"downloads-bridge/internal/models"
)

// StreamManager manages subscriber connections and broadcasts saved-file events
type StreamManager struct {
	streams map[string]chan models.SavedFile
	mu      sync.RWMutex
	logger  hclog.Logger
}

// NewStreamManager creates a new StreamManager
func NewStreamManager(logger hclog.Logger) *StreamManager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &StreamManager{
		streams: make(map[string]chan models.SavedFile),
		logger:  logger.Named("streams"),
	}
}

// Register registers a subscriber and returns a channel for receiving events.
// A subscriber registering again under the same id replaces the old stream.
func (sm *StreamManager) Register(consumerID string) chan models.SavedFile {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if old, exists := sm.streams[consumerID]; exists {
		close(old)
	}

	events := make(chan models.SavedFile, 100)
	sm.streams[consumerID] = events
	return events
}

// Unregister removes a subscriber if events is still its current stream
func (sm *StreamManager) Unregister(consumerID string, events chan models.SavedFile) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if ch, exists := sm.streams[consumerID]; exists && ch == events {
		close(ch)
		delete(sm.streams, consumerID)
	}
}

// Broadcast sends an event to all registered subscribers without blocking
func (sm *StreamManager) Broadcast(saved models.SavedFile) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var dropped []string
	for consumerID, ch := range sm.streams {
		select {
		case ch <- saved:
		default:
			dropped = append(dropped, consumerID)
		}
	}

	if len(dropped) > 0 {
		return errors.Errorf("event dropped for %d consumers: %v", len(dropped), dropped)
	}
	return nil
}

// Notify broadcasts a saved file, logging slow subscribers
func (sm *StreamManager) Notify(saved models.SavedFile) {
	if err := sm.Broadcast(saved); err != nil {
		sm.logger.Warn("broadcast incomplete", "location", saved.Location, "error", err)
	}
}

// Close ends every subscription
func (sm *StreamManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for consumerID, ch := range sm.streams {
		close(ch)
		delete(sm.streams, consumerID)
	}
}

// GetActiveConsumerCount returns the number of active subscribers
func (sm *StreamManager) GetActiveConsumerCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.streams)
}

// GetConsumerIDs returns all registered subscriber ids
func (sm *StreamManager) GetConsumerIDs() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ids := make([]string, 0, len(sm.streams))
	for id := range sm.streams {
		ids = append(ids, id)
	}
	return ids
}
