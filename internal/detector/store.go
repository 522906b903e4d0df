package detector

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

// Store persists suspicious-activity records. Append assigns ID.
type Store interface {
	Append(ctx context.Context, rec *model.SuspiciousActivityRecord) error
	// ListRecent returns at most n records, newest first.
	ListRecent(ctx context.Context, n int) ([]*model.SuspiciousActivityRecord, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []model.SuspiciousActivityRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, rec *model.SuspiciousActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.recs)) + 1
	s.recs = append(s.recs, *rec)
	return nil
}

// ListRecent implements Store.
func (s *MemoryStore) ListRecent(_ context.Context, n int) ([]*model.SuspiciousActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.SuspiciousActivityRecord, 0, min(n, len(s.recs)))
	for i := len(s.recs) - 1; i >= 0 && len(out) < n; i-- {
		r := s.recs[i]
		out = append(out, &r)
	}
	return out, nil
}

// PostgresStore persists records in the suspicious_activity table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, rec *model.SuspiciousActivityRecord) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO suspicious_activity (subject_type, subject_id, reason, details, severity, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		rec.SubjectType, rec.SubjectID, rec.Reason, rec.Details, rec.Severity, rec.Timestamp,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

// ListRecent implements Store.
func (s *PostgresStore) ListRecent(ctx context.Context, n int) ([]*model.SuspiciousActivityRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_type, subject_id, reason, details, severity, timestamp
		 FROM suspicious_activity ORDER BY id DESC LIMIT $1`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	var out []*model.SuspiciousActivityRecord
	for rows.Next() {
		r := &model.SuspiciousActivityRecord{}
		if err := rows.Scan(&r.ID, &r.SubjectType, &r.SubjectID, &r.Reason, &r.Details, &r.Severity, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
