// Package service implements the provenance ledger: product creation,
// checkpoint appends, chain verification and the admin operations, with
// every mutating outcome reported to the audit log.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmerrifield20/provenance/internal/audit"
	"github.com/jmerrifield20/provenance/internal/checkpoint"
	"github.com/jmerrifield20/provenance/internal/detector"
	"github.com/jmerrifield20/provenance/internal/hashchain"
	"github.com/jmerrifield20/provenance/internal/identity"
	"github.com/jmerrifield20/provenance/internal/policy"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"github.com/jmerrifield20/provenance/internal/provenance/repository"
	"go.uber.org/zap"
)

// Ledger is the sole writer of product chains.
type Ledger struct {
	repo     repository.Repository
	audit    *audit.Logger
	detector *detector.Detector
	registry identity.Registry
	validate *validator.Validate
	locks    *keyedMutex
	metrics  MetricsRecorder
	clock    func() time.Time
	logger   *zap.Logger
}

// New creates a Ledger.
func New(repo repository.Repository, auditLog *audit.Logger, det *detector.Detector, registry identity.Registry, logger *zap.Logger) *Ledger {
	return &Ledger{
		repo:     repo,
		audit:    auditLog,
		detector: det,
		registry: registry,
		validate: newValidator(),
		locks:    newKeyedMutex(),
		metrics:  nopMetrics{},
		clock:    func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// SetMetricsRecorder configures the instrumentation hook.
func (l *Ledger) SetMetricsRecorder(m MetricsRecorder) {
	l.metrics = m
}

// SetClock overrides the time source. Intended for tests.
func (l *Ledger) SetClock(clock func() time.Time) {
	l.clock = clock
}

func (l *Ledger) now() time.Time {
	return l.clock().UTC().Truncate(time.Microsecond)
}

// ── Products ──────────────────────────────────────────────────────────────────

// CreateProduct creates a product and its genesis block on behalf of actor.
func (l *Ledger) CreateProduct(ctx context.Context, actor *model.Account, in CreateProductInput) (*model.Product, error) {
	if err := l.authorize(ctx, actor, policy.ActionCreateProduct, "", model.ActionProductCreate); err != nil {
		return nil, err
	}
	reject := func(err error) (*model.Product, error) {
		l.rejected(ctx, actor, model.ActionProductCreate, "create_product", "", err)
		return nil, err
	}

	if err := l.validateInput(&in); err != nil {
		return reject(err)
	}

	id := uuid.New()
	if err := l.detector.CheckGPS(ctx, id.String(), in.GPS); err != nil {
		return reject(err)
	}

	now := l.now()
	p := &model.Product{
		ID:              id,
		Name:            in.Name,
		Category:        in.Category,
		Origin:          in.Origin,
		BatchNumber:     in.BatchNumber,
		Manufacturer:    actor.Company,
		CreatorVerified: actor.Verified,
		CreatedBy:       actor.ID,
		CreatedAt:       now,
	}
	genesis := model.Block{
		BlockNumber: 0,
		Stage:       model.StageCreated,
		Location:    in.Origin,
		Handler:     actor.DisplayName(),
		Notes:       genesisNotes(p),
		GPS:         in.GPS,
		PhotoRef:    in.PhotoRef,
		Timestamp:   now,
	}
	hashchain.Seal(&genesis, model.GenesisPreviousHash)
	p.Chain = []model.Block{genesis}
	p.SetLatestStage(model.StageCreated)

	if err := l.repo.CreateProduct(ctx, p); err != nil {
		return reject(fmt.Errorf("store product: %w", err))
	}

	l.record(ctx, actor.ID, model.ActionProductCreate,
		fmt.Sprintf("created product %s (%s, %s)", p.ID, p.Name, p.Category))
	l.metrics.ProductCreated(p.Category)
	l.logger.Info("product created",
		zap.String("product_id", p.ID.String()),
		zap.String("actor_id", actor.ID),
	)
	l.detector.ObserveProductCreated(ctx, p)
	return p.Clone(), nil
}

// genesisNotes is a canonical summary of the product fields, carried in the
// genesis block so that they are covered by its hash.
func genesisNotes(p *model.Product) string {
	b, _ := json.Marshal(struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Category        string `json:"category"`
		Origin          string `json:"origin"`
		BatchNumber     string `json:"batch_number"`
		Manufacturer    string `json:"manufacturer"`
		CreatorVerified bool   `json:"creator_verified"`
		CreatedBy       string `json:"created_by"`
	}{
		ID:              p.ID.String(),
		Name:            p.Name,
		Category:        string(p.Category),
		Origin:          p.Origin,
		BatchNumber:     p.BatchNumber,
		Manufacturer:    p.Manufacturer,
		CreatorVerified: p.CreatorVerified,
		CreatedBy:       p.CreatedBy,
	})
	return string(b)
}

// AppendCheckpoint appends the next block to a product's chain.
func (l *Ledger) AppendCheckpoint(ctx context.Context, actor *model.Account, productID uuid.UUID, in AppendCheckpointInput) (*model.Block, error) {
	target := productID.String()
	if err := l.authorize(ctx, actor, policy.ActionAppendCheckpoint, target, model.ActionCheckpointRejected); err != nil {
		return nil, err
	}
	reject := func(err error) (*model.Block, error) {
		l.rejected(ctx, actor, model.ActionCheckpointRejected, "append_checkpoint", target, err)
		return nil, err
	}

	if err := l.validateInput(&in); err != nil {
		return reject(err)
	}

	unlock := l.locks.Lock(productID)
	defer unlock()

	product, tail, err := l.repo.Tail(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return reject(err)
		}
		return reject(fmt.Errorf("load chain tail: %w", err))
	}
	if product.ReadOnly {
		return reject(fmt.Errorf("%w: product %s is read-only", ErrChainIntegrity, productID))
	}
	if err := checkpoint.Transition(tail.Stage, in.Stage); err != nil {
		return reject(err)
	}

	b := &model.Block{
		BlockNumber: tail.BlockNumber + 1,
		Stage:       in.Stage,
		Location:    in.Location,
		Handler:     in.Handler,
		Notes:       in.Notes,
		GPS:         in.GPS,
		PhotoRef:    in.PhotoRef,
		Timestamp:   l.now(),
	}
	if err := l.detector.CheckCheckpoint(ctx, productID, tail, b); err != nil {
		return reject(err)
	}
	hashchain.Seal(b, tail.Hash)

	if err := l.repo.AppendBlock(ctx, productID, b); err != nil {
		if errors.Is(err, repository.ErrReadOnly) {
			err = fmt.Errorf("%w: product %s is read-only", ErrChainIntegrity, productID)
		}
		return reject(fmt.Errorf("store block: %w", err))
	}

	l.record(ctx, actor.ID, model.ActionCheckpointAppend,
		fmt.Sprintf("appended block %d (%s) to product %s", b.BlockNumber, b.Stage, productID))
	l.metrics.CheckpointCommitted(b.Stage)
	l.logger.Info("checkpoint appended",
		zap.String("product_id", target),
		zap.Int("block_number", b.BlockNumber),
		zap.String("stage", string(b.Stage)),
		zap.String("actor_id", actor.ID),
	)
	l.detector.ObserveCheckpoint(ctx, productID, tail, b)

	out := b.Clone()
	return &out, nil
}

// GetProduct returns a product with its full chain after verifying it. A
// chain that fails verification quarantines the product.
func (l *Ledger) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p, err := l.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ReadOnly {
		return nil, fmt.Errorf("%w: product %s is read-only pending review", ErrChainIntegrity, id)
	}
	if res := hashchain.VerifyChain(p.Chain); !res.Valid {
		l.quarantine(ctx, p, res)
		return nil, fmt.Errorf("%w: product %s: %w", ErrChainIntegrity, id, res.Err())
	}
	return p, nil
}

// ListProducts returns product summaries, newest created first.
func (l *Ledger) ListProducts(ctx context.Context) ([]*model.Product, error) {
	products, err := l.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// VerifyProductChain reports the integrity of a product's stored chain. An
// invalid chain is reported, not returned as an error, and quarantines the
// product.
func (l *Ledger) VerifyProductChain(ctx context.Context, actor *model.Account, id uuid.UUID) (hashchain.Result, error) {
	if err := l.authorize(ctx, actor, policy.ActionVerifyChain, id.String(), model.ActionChainVerify); err != nil {
		return hashchain.Result{}, err
	}
	p, err := l.repo.GetProduct(ctx, id)
	if err != nil {
		return hashchain.Result{}, err
	}
	res := hashchain.VerifyChain(p.Chain)
	if !res.Valid && !p.ReadOnly {
		l.quarantine(ctx, p, res)
	}
	return res, nil
}

func (l *Ledger) quarantine(ctx context.Context, p *model.Product, res hashchain.Result) {
	index := -1
	if res.FirstInvalidIndex != nil {
		index = *res.FirstInvalidIndex
	}
	l.logger.Error("chain integrity failure",
		zap.String("product_id", p.ID.String()),
		zap.Int("first_invalid_index", index),
		zap.String("reason", res.Reason),
	)
	if err := l.repo.MarkReadOnly(ctx, p.ID); err != nil {
		l.logger.Error("mark product read-only", zap.String("product_id", p.ID.String()), zap.Error(err))
	}
	l.metrics.ProductQuarantined()
	l.detector.RaiseChainIntegrity(ctx, p.ID, index, res.Reason)
}

// ── Admin ─────────────────────────────────────────────────────────────────────

// VerifyAccount asks the identity registry to mark accountID verified.
func (l *Ledger) VerifyAccount(ctx context.Context, actor *model.Account, accountID string) error {
	if err := l.authorize(ctx, actor, policy.ActionVerifyAccount, accountID, model.ActionUserVerify); err != nil {
		return err
	}
	if err := l.registry.SetVerified(ctx, accountID); err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			err = fmt.Errorf("set verified: %w", err)
		}
		l.rejected(ctx, actor, model.ActionUserVerify, "verify_account", accountID, err)
		return err
	}
	l.record(ctx, actor.ID, model.ActionUserVerify, "verified account "+accountID)
	return nil
}

// ListPendingVerifications returns accounts awaiting admin verification.
func (l *Ledger) ListPendingVerifications(ctx context.Context, actor *model.Account) ([]*model.Account, error) {
	if err := l.authorize(ctx, actor, policy.ActionListPendingVerifications, "", model.ActionAccountsPending); err != nil {
		return nil, err
	}
	accounts, err := l.registry.ListPendingVerifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending verifications: %w", err)
	}
	return accounts, nil
}

// ListAuditLog returns the n most recent audit entries, newest first.
func (l *Ledger) ListAuditLog(ctx context.Context, actor *model.Account, n int) ([]*model.AuditLogEntry, error) {
	if err := l.authorize(ctx, actor, policy.ActionListAuditLog, "", model.ActionAuditList); err != nil {
		return nil, err
	}
	return l.audit.ListRecent(ctx, n)
}

// ListSuspiciousActivity returns the n most recent findings, newest first.
func (l *Ledger) ListSuspiciousActivity(ctx context.Context, actor *model.Account, n int) ([]*model.SuspiciousActivityRecord, error) {
	if err := l.authorize(ctx, actor, policy.ActionListSuspiciousActivity, "", model.ActionSuspiciousList); err != nil {
		return nil, err
	}
	return l.detector.ListRecent(ctx, n)
}

// RejectMalformedCreate records a create request whose body could not be
// decoded. Authorization is checked first so that denials are still counted.
func (l *Ledger) RejectMalformedCreate(ctx context.Context, actor *model.Account, decodeErr error) error {
	if err := l.authorize(ctx, actor, policy.ActionCreateProduct, "", model.ActionProductCreate); err != nil {
		return err
	}
	err := fmt.Errorf("%w: malformed request body: %v", ErrValidation, decodeErr)
	l.rejected(ctx, actor, model.ActionProductCreate, "create_product", "", err)
	return err
}

// RejectMalformedCheckpoint is RejectMalformedCreate for checkpoint appends.
func (l *Ledger) RejectMalformedCheckpoint(ctx context.Context, actor *model.Account, productID uuid.UUID, decodeErr error) error {
	target := productID.String()
	if err := l.authorize(ctx, actor, policy.ActionAppendCheckpoint, target, model.ActionCheckpointRejected); err != nil {
		return err
	}
	err := fmt.Errorf("%w: malformed request body: %v", ErrValidation, decodeErr)
	l.rejected(ctx, actor, model.ActionCheckpointRejected, "append_checkpoint", target, err)
	return err
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// authorize applies the policy. A denial is audited under auditAction and
// reported to the detector.
func (l *Ledger) authorize(ctx context.Context, actor *model.Account, action policy.Action, target, auditAction string) error {
	d := policy.Authorize(actor, action, target)
	if d.Admit {
		return nil
	}
	details := fmt.Sprintf("denied (%s) %s", d.Reason, action)
	if target != "" {
		details += " on " + target
	}
	l.record(ctx, actor.ActorID(), auditAction, details)
	l.metrics.OperationRejected(string(action), KindAuthorization)
	l.logger.Warn("authorization denied",
		zap.String("actor_id", actor.ActorID()),
		zap.String("action", string(action)),
		zap.String("reason", string(d.Reason)),
	)
	l.detector.ObserveDenial(ctx, actor, string(action))
	return d.Err()
}

func (l *Ledger) rejected(ctx context.Context, actor *model.Account, auditAction, operation, target string, err error) {
	kind := Kind(err)
	details := fmt.Sprintf("rejected (%s)", kind)
	if target != "" {
		details += " on " + target
	}
	details += ": " + err.Error()
	l.record(ctx, actor.ActorID(), auditAction, details)
	l.metrics.OperationRejected(operation, kind)

	if kind == KindInternal {
		l.logger.Error("operation failed", zap.String("operation", operation), zap.Error(err))
		return
	}
	l.logger.Warn("operation rejected",
		zap.String("operation", operation),
		zap.String("kind", kind),
		zap.String("actor_id", actor.ActorID()),
		zap.Error(err),
	)
}

// record writes an audit entry. A failed write never undoes the operation
// it describes.
func (l *Ledger) record(ctx context.Context, actorID, action, details string) {
	if _, err := l.audit.Record(ctx, actorID, action, details); err != nil {
		l.logger.Error("audit write failed",
			zap.String("actor_id", actorID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
