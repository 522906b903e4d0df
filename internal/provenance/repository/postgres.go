package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"go.uber.org/zap"
)

const productColumns = `p.id, p.name, p.category, p.origin, COALESCE(p.batch_number, ''), p.manufacturer,
	p.creator_verified, p.created_by, p.created_at, p.read_only,
	(SELECT b.stage FROM blocks b WHERE b.product_id = p.id ORDER BY b.block_number DESC LIMIT 1)`

const blockColumns = `block_number, stage, location, handler, notes,
	gps_lat, gps_lng, gps_accuracy, photo_ref, timestamp, previous_hash, hash`

// PostgresRepository persists products in the products and blocks tables.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a PostgresRepository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{pool: pool, logger: logger}
}

// CreateProduct implements Repository.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.Product) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO products (id, name, category, origin, batch_number, manufacturer,
		                       creator_verified, created_by, created_at, read_only)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, false)`,
		p.ID, p.Name, p.Category, p.Origin, p.BatchNumber, p.Manufacturer,
		p.CreatorVerified, p.CreatedBy, p.CreatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert product: %w", err)
	}

	for i := range p.Chain {
		if err := insertBlock(ctx, tx, p.ID, &p.Chain[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit product tx: %w", err)
	}
	r.logger.Debug("product stored", zap.String("product_id", p.ID.String()))
	return nil
}

// GetProduct implements Repository. The product row and its blocks are read
// in one repeatable-read transaction so the snapshot is consistent.
func (r *PostgresRepository) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	p, err := scanProduct(tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE product_id = $1 ORDER BY block_number ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		p.Chain = append(p.Chain, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}
	return p, nil
}

// ListProducts implements Repository.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]*model.Product, error) {
	return r.queryProducts(ctx, `SELECT `+productColumns+` FROM products p ORDER BY p.created_at DESC, p.id`)
}

// FindByBatchNumber implements Repository.
func (r *PostgresRepository) FindByBatchNumber(ctx context.Context, batchNumber string) ([]*model.Product, error) {
	return r.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products p WHERE p.batch_number = $1 ORDER BY p.created_at`, batchNumber)
}

// Tail implements Repository.
func (r *PostgresRepository) Tail(ctx context.Context, id uuid.UUID) (*model.Product, *model.Block, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id))
	if err != nil {
		return nil, nil, err
	}
	b, err := scanBlock(r.pool.QueryRow(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE product_id = $1 ORDER BY block_number DESC LIMIT 1`, id))
	if err != nil {
		return nil, nil, err
	}
	return p, b, nil
}

// AppendBlock implements Repository.
// It takes a per-product advisory lock, re-reads the tail and inserts the
// block in a single transaction. The (product_id, block_number) primary key
// backs the check if the lock is ever bypassed.
func (r *PostgresRepository) AppendBlock(ctx context.Context, id uuid.UUID, b *model.Block) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", id.String()); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var readOnly bool
	if err := tx.QueryRow(ctx, `SELECT read_only FROM products WHERE id = $1`, id).Scan(&readOnly); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read product: %w", err)
	}
	if readOnly {
		return ErrReadOnly
	}

	tail := &model.Block{}
	if err := tx.QueryRow(ctx,
		`SELECT block_number, hash FROM blocks WHERE product_id = $1 ORDER BY block_number DESC LIMIT 1`, id,
	).Scan(&tail.BlockNumber, &tail.Hash); err != nil {
		return fmt.Errorf("read chain tail: %w", err)
	}
	if !extends(tail, b) {
		return ErrStaleTail
	}

	if err := insertBlock(ctx, tx, id, b); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit block tx: %w", err)
	}

	r.logger.Debug("block appended",
		zap.String("product_id", id.String()),
		zap.Int("block_number", b.BlockNumber),
		zap.String("stage", string(b.Stage)),
	)
	return nil
}

// MarkReadOnly implements Repository.
func (r *PostgresRepository) MarkReadOnly(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET read_only = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark read-only: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) queryProducts(ctx context.Context, q string, args ...any) ([]*model.Product, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func insertBlock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, b *model.Block) error {
	var lat, lng, acc *float64
	if b.GPS != nil {
		lat, lng, acc = &b.GPS.Lat, &b.GPS.Lng, &b.GPS.Accuracy
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO blocks (product_id, block_number, stage, location, handler, notes,
		                     gps_lat, gps_lng, gps_accuracy, photo_ref, timestamp, previous_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		productID, b.BlockNumber, b.Stage, b.Location, b.Handler, b.Notes,
		lat, lng, acc, b.PhotoRef, b.Timestamp, b.PreviousHash, b.Hash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrStaleTail
		}
		return fmt.Errorf("insert block %d: %w", b.BlockNumber, err)
	}
	return nil
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	p := &model.Product{}
	var stage *string
	err := row.Scan(
		&p.ID, &p.Name, &p.Category, &p.Origin, &p.BatchNumber, &p.Manufacturer,
		&p.CreatorVerified, &p.CreatedBy, &p.CreatedAt, &p.ReadOnly, &stage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan product: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if stage != nil {
		p.SetLatestStage(model.Stage(*stage))
	}
	return p, nil
}

func scanBlock(row pgx.Row) (*model.Block, error) {
	b := &model.Block{}
	var lat, lng, acc *float64
	err := row.Scan(
		&b.BlockNumber, &b.Stage, &b.Location, &b.Handler, &b.Notes,
		&lat, &lng, &acc, &b.PhotoRef, &b.Timestamp, &b.PreviousHash, &b.Hash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan block: %w", err)
	}
	if lat != nil && lng != nil && acc != nil {
		b.GPS = &model.GPS{Lat: *lat, Lng: *lng, Accuracy: *acc}
	}
	b.Timestamp = b.Timestamp.UTC()
	return b, nil
}
