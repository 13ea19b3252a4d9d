package sharestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is the key-value tier used when Redis is not configured.
// Records are kept as JSON text under "<namespace>_<id>".
type MemoryBackend struct {
	mu        sync.RWMutex
	namespace string
	items     map[string]string
}

func NewMemoryBackend(namespace string) *MemoryBackend {
	return &MemoryBackend{namespace: namespace, items: make(map[string]string)}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) key(id string) string {
	return b.namespace + "_" + id
}

func (b *MemoryBackend) Insert(_ context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal share record: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := b.key(rec.ID)
	if _, exists := b.items[key]; exists {
		return ErrIDConflict
	}
	b.items[key] = string(payload)
	return nil
}

func (b *MemoryBackend) Get(_ context.Context, id string) (Record, error) {
	b.mu.RLock()
	raw, ok := b.items[b.key(id)]
	b.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal share record: %w", err)
	}
	return rec, nil
}

func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	delete(b.items, b.key(id))
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Purge(_ context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := b.namespace + "_"
	purged := 0
	for key, raw := range b.items {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			// Unreadable entries can never be served.
			delete(b.items, key)
			purged++
			continue
		}
		if rec.Expired(now) {
			delete(b.items, key)
			purged++
		}
	}
	return purged, nil
}

func (b *MemoryBackend) Ping(context.Context) error { return nil }

// Len is the number of stored entries, expired ones included.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}
