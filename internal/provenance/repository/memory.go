package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

// MemoryRepository is an in-memory, thread-safe Repository. It is useful for
// tests and single-process deployments that do not need durability.
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[uuid.UUID]*model.Product
	order    []uuid.UUID
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{products: make(map[uuid.UUID]*model.Product)}
}

// CreateProduct implements Repository.
func (r *MemoryRepository) CreateProduct(_ context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[p.ID]; ok {
		return ErrDuplicateID
	}
	stored := p.Clone()
	stored.SetLatestStage(stored.Chain[len(stored.Chain)-1].Stage)
	r.products[p.ID] = stored
	r.order = append(r.order, p.ID)
	return nil
}

// GetProduct implements Repository.
func (r *MemoryRepository) GetProduct(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// ListProducts implements Repository.
func (r *MemoryRepository) ListProducts(_ context.Context) ([]*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Product, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.products[r.order[i]].Summary())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// FindByBatchNumber implements Repository.
func (r *MemoryRepository) FindByBatchNumber(_ context.Context, batchNumber string) ([]*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Product
	for _, id := range r.order {
		if p := r.products[id]; p.BatchNumber == batchNumber {
			out = append(out, p.Summary())
		}
	}
	return out, nil
}

// Tail implements Repository.
func (r *MemoryRepository) Tail(_ context.Context, id uuid.UUID) (*model.Product, *model.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	tail := p.Chain[len(p.Chain)-1].Clone()
	return p.Summary(), &tail, nil
}

// AppendBlock implements Repository.
func (r *MemoryRepository) AppendBlock(_ context.Context, id uuid.UUID, b *model.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return ErrNotFound
	}
	if p.ReadOnly {
		return ErrReadOnly
	}
	if !extends(&p.Chain[len(p.Chain)-1], b) {
		return ErrStaleTail
	}
	p.Chain = append(p.Chain, b.Clone())
	p.SetLatestStage(b.Stage)
	return nil
}

// MarkReadOnly implements Repository.
func (r *MemoryRepository) MarkReadOnly(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return ErrNotFound
	}
	p.ReadOnly = true
	return nil
}

// Tamper rewrites a stored block in place, bypassing every invariant.
//
// Test seam: it simulates storage corruption for the service and handler
// tests, which live in other packages. It is not part of Repository and no
// server code calls it. Out-of-range indexes are ignored.
func (r *MemoryRepository) Tamper(id uuid.UUID, index int, fn func(b *model.Block)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[id]; ok && index >= 0 && index < len(p.Chain) {
		fn(&p.Chain[index])
	}
}
