package mediastore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"downloads-bridge/internal/models"
)

var _ Catalog = (*MemoryCatalog)(nil)

// MemoryCatalog keeps the catalog in process memory. Entries do not survive
// a restart; use the Redis catalog for anything shared.
type MemoryCatalog struct {
	mu      sync.Mutex
	seq     int64
	entries map[int64]models.MediaEntry
	locks   map[string]memoryLock
}

type memoryLock struct {
	token   string
	expires time.Time
}

// NewMemoryCatalog creates an empty MemoryCatalog
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		entries: make(map[int64]models.MediaEntry),
		locks:   make(map[string]memoryLock),
	}
}

func (m *MemoryCatalog) NextID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *MemoryCatalog) Put(ctx context.Context, entry *models.MediaEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = *entry
	return nil
}

func (m *MemoryCatalog) Get(ctx context.Context, id int64) (*models.MediaEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, errors.Wrapf(ErrEntryNotFound, "id %d", id)
	}
	return &entry, nil
}

func (m *MemoryCatalog) Remove(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryCatalog) Visible(ctx context.Context) ([]*models.MediaEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.MediaEntry
	for _, entry := range m.entries {
		if !entry.Pending {
			e := entry
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out, nil
}

func (m *MemoryCatalog) PendingBefore(ctx context.Context, cutoff time.Time) ([]*models.MediaEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.MediaEntry
	for _, entry := range m.entries {
		if entry.Pending && entry.CreatedAt.Before(cutoff) {
			e := entry
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryCatalog) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if lock, held := m.locks[key]; held && now.Before(lock.expires) {
		return false, nil
	}
	m.locks[key] = memoryLock{token: token, expires: now.Add(ttl)}
	return true, nil
}

func (m *MemoryCatalog) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lock, held := m.locks[key]; held && lock.token == token {
		delete(m.locks, key)
	}
	return nil
}
