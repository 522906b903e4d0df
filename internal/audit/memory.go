package audit

import (
	"context"
	"sync"

	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

// MemoryStore is an in-process Store for tests and single-process
// development. Entries do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []model.AuditLogEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, e *model.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.entries)) + 1
	s.entries = append(s.entries, *e)
	return nil
}

// ListRecent implements Store.
func (s *MemoryStore) ListRecent(_ context.Context, n int) ([]*model.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]*model.AuditLogEntry, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		e := s.entries[i]
		out = append(out, &e)
	}
	return out, nil
}
