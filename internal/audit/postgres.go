package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

// auditLockKey serialises id assignment across every ledger instance.
const auditLockKey = int64(2_041_771_302)

// PostgresStore persists audit entries in the audit_log table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Append implements Store. A sequence would leave gaps on rollback, so the
// next id is read under a transaction-scoped advisory lock instead.
func (s *PostgresStore) Append(ctx context.Context, e *model.AuditLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", auditLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var id int64
	if err := tx.QueryRow(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM audit_log").Scan(&id); err != nil {
		return fmt.Errorf("next audit id: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_log (id, actor_id, action, details, timestamp)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, e.ActorID, e.Action, e.Details, e.Timestamp,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	e.ID = id
	return nil
}

// ListRecent implements Store.
func (s *PostgresStore) ListRecent(ctx context.Context, n int) ([]*model.AuditLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, actor_id, action, details, timestamp
		 FROM audit_log ORDER BY id DESC LIMIT $1`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []*model.AuditLogEntry
	for rows.Next() {
		e := &model.AuditLogEntry{}
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
