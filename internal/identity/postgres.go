package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

const accountColumns = `id, username, role, verified, company, COALESCE(license_number, '')`

// PostgresRegistry reads the identity registry's accounts table.
type PostgresRegistry struct {
	db *pgxpool.Pool
}

// NewPostgresRegistry creates a PostgresRegistry.
func NewPostgresRegistry(db *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// GetActor implements Registry.
func (r *PostgresRegistry) GetActor(ctx context.Context, id string) (*model.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// ListPendingVerifications implements Registry.
func (r *PostgresRegistry) ListPendingVerifications(ctx context.Context) ([]*model.Account, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE verified = false AND role <> 'customer'
		 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pending accounts: %w", err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetVerified implements Registry.
func (r *PostgresRegistry) SetVerified(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET verified = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("verify account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	a := &model.Account{}
	if err := row.Scan(&a.ID, &a.Username, &a.Role, &a.Verified, &a.Company, &a.LicenseNumber); err != nil {
		return nil, err
	}
	return a, nil
}
