package identity

import (
	"context"
	"sort"
	"sync"

	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

// MemoryRegistry is an in-process Registry seeded by the caller. Used in
// tests and with the memory storage driver.
type MemoryRegistry struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
}

// NewMemoryRegistry creates a MemoryRegistry holding accounts.
func NewMemoryRegistry(accounts ...model.Account) *MemoryRegistry {
	r := &MemoryRegistry{accounts: make(map[string]model.Account, len(accounts))}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

// Put adds or replaces an account.
func (r *MemoryRegistry) Put(a model.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = a
}

// GetActor implements Registry.
func (r *MemoryRegistry) GetActor(_ context.Context, id string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// ListPendingVerifications implements Registry. Results are ordered by id.
func (r *MemoryRegistry) ListPendingVerifications(_ context.Context) ([]*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Account
	for _, a := range r.accounts {
		if !a.Verified && a.Role != model.RoleCustomer {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetVerified implements Registry.
func (r *MemoryRegistry) SetVerified(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Verified = true
	r.accounts[id] = a
	return nil
}
