// Package repository persists products and their block chains.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

var (
	// ErrNotFound is returned when no product matches the lookup.
	ErrNotFound = errors.New("product not found")
	// ErrStaleTail is returned by AppendBlock when the block does not extend
	// the stored tail.
	ErrStaleTail = errors.New("block does not extend the current tail")
	// ErrReadOnly is returned by AppendBlock for quarantined products.
	ErrReadOnly = errors.New("product is read-only")
	// ErrDuplicateID is returned by CreateProduct when the id is taken.
	ErrDuplicateID = errors.New("product id already exists")
)

// Repository stores products. Products returned by any method are snapshots
// the caller may mutate freely.
type Repository interface {
	// CreateProduct stores p together with its genesis block p.Chain[0].
	CreateProduct(ctx context.Context, p *model.Product) error
	// GetProduct returns the product with its full chain.
	GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
	// ListProducts returns chain-less summaries, newest created first.
	ListProducts(ctx context.Context) ([]*model.Product, error)
	// FindByBatchNumber returns summaries of products carrying batchNumber.
	FindByBatchNumber(ctx context.Context, batchNumber string) ([]*model.Product, error)
	// Tail returns the product summary and its latest block.
	Tail(ctx context.Context, id uuid.UUID) (*model.Product, *model.Block, error)
	// AppendBlock stores b as the next block of product id. b.BlockNumber must
	// be the tail's plus one and b.PreviousHash the tail's hash.
	AppendBlock(ctx context.Context, id uuid.UUID, b *model.Block) error
	// MarkReadOnly quarantines the product.
	MarkReadOnly(ctx context.Context, id uuid.UUID) error
}

// extends reports whether next links onto tail.
func extends(tail, next *model.Block) bool {
	return next.BlockNumber == tail.BlockNumber+1 && next.PreviousHash == tail.Hash
}
