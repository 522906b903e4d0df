package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jmerrifield20/provenance/internal/hashchain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SweepChains verifies every product's chain with bounded parallelism and
// quarantines the ones that fail. It returns the ids of every product that is
// read-only afterwards.
func (l *Ledger) SweepChains(ctx context.Context, parallelism int) ([]uuid.UUID, error) {
	products, err := l.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		invalid []uuid.UUID
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallelism, 1))
	for _, summary := range products {
		id := summary.ID
		g.Go(func() error {
			p, err := l.repo.GetProduct(ctx, id)
			if err != nil {
				return err
			}
			res := hashchain.VerifyChain(p.Chain)
			if res.Valid && !p.ReadOnly {
				return nil
			}
			if !res.Valid && !p.ReadOnly {
				l.quarantine(ctx, p, res)
			}
			mu.Lock()
			invalid = append(invalid, id)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return invalid, err
	}
	l.logger.Info("chain sweep complete",
		zap.Int("products", len(products)),
		zap.Int("invalid", len(invalid)),
	)
	return invalid, nil
}
