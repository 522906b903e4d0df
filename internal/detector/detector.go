// Package detector flags implausible or abusive activity on the ledger.
//
// Hard checks run synchronously before a block is committed and reject the
// write. Soft checks run asynchronously after commit and only produce
// advisory records; they never alter the ledger.
package detector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/provenance/internal/notify"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"go.uber.org/zap"
)

// ErrImplausibleCheckpoint is returned by the hard checks.
var ErrImplausibleCheckpoint = errors.New("implausible checkpoint")

// Reason tags on suspicious-activity records.
const (
	ReasonInvalidGPS         = "invalid_gps"
	ReasonTimestampRegressed = "timestamp_regressed"
	ReasonImpossibleSpeed    = "impossible_speed"
	ReasonRepeatedDenials    = "repeated_denials"
	ReasonBatchConflict      = "batch_manufacturer_conflict"
	ReasonChainIntegrity     = "chain_integrity"
)

// DefaultPruneInterval is used by Run when given a non-positive interval.
const DefaultPruneInterval = 5 * time.Minute

// Config holds the detector thresholds.
type Config struct {
	MaxSpeedKmh     float64
	DenialThreshold int
	DenialWindow    time.Duration
	Retention       time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MaxSpeedKmh:     1000,
		DenialThreshold: 3,
		DenialWindow:    10 * time.Minute,
		Retention:       24 * time.Hour,
	}
}

// BatchIndex finds products sharing a batch number.
type BatchIndex interface {
	FindByBatchNumber(ctx context.Context, batchNumber string) ([]*model.Product, error)
}

// FindingRecorder is an optional callback for recording findings by severity.
type FindingRecorder func(reason string, severity model.Severity)

type position struct {
	fix model.GPS
	at  time.Time
}

// Detector runs the hard and soft checks and records findings.
type Detector struct {
	cfg       Config
	store     Store
	denials   DenialCounter
	batches   BatchIndex
	notifier  notify.Notifier
	onFinding FindingRecorder
	clock     func() time.Time
	logger    *zap.Logger

	mu        sync.Mutex
	positions map[uuid.UUID]position

	wg sync.WaitGroup
}

// New creates a Detector. batches and notifier may be nil.
func New(cfg Config, store Store, denials DenialCounter, batches BatchIndex, notifier notify.Notifier, logger *zap.Logger) *Detector {
	return &Detector{
		cfg:       cfg,
		store:     store,
		denials:   denials,
		batches:   batches,
		notifier:  notifier,
		clock:     func() time.Time { return time.Now().UTC() },
		logger:    logger,
		positions: make(map[uuid.UUID]position),
	}
}

// SetClock overrides the time source. Intended for tests.
func (d *Detector) SetClock(clock func() time.Time) {
	d.clock = clock
}

// SetFindingRecorder configures the metrics callback.
func (d *Detector) SetFindingRecorder(fn FindingRecorder) {
	d.onFinding = fn
}

// ── Hard checks ───────────────────────────────────────────────────────────────

// CheckGPS validates a submitted fix. A nil fix is accepted.
func (d *Detector) CheckGPS(ctx context.Context, subjectID string, fix *model.GPS) error {
	if fix == nil {
		return nil
	}
	if msg := gpsProblem(fix); msg != "" {
		d.raise(ctx, model.SubjectProduct, subjectID, ReasonInvalidGPS, msg, model.SeverityHigh)
		return fmt.Errorf("%w: %s", ErrImplausibleCheckpoint, msg)
	}
	return nil
}

// CheckCheckpoint validates a proposed block against the current tail.
func (d *Detector) CheckCheckpoint(ctx context.Context, productID uuid.UUID, tail, next *model.Block) error {
	if err := d.CheckGPS(ctx, productID.String(), next.GPS); err != nil {
		return err
	}
	if tail != nil && next.Timestamp.Before(tail.Timestamp) {
		msg := fmt.Sprintf("block %d timestamp %s precedes block %d timestamp %s",
			next.BlockNumber, next.Timestamp.Format(time.RFC3339Nano),
			tail.BlockNumber, tail.Timestamp.Format(time.RFC3339Nano))
		d.raise(ctx, model.SubjectProduct, productID.String(), ReasonTimestampRegressed, msg, model.SeverityHigh)
		return fmt.Errorf("%w: %s", ErrImplausibleCheckpoint, msg)
	}
	return nil
}

func gpsProblem(g *model.GPS) string {
	for _, v := range []float64{g.Lat, g.Lng, g.Accuracy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "gps contains a non-finite value"
		}
	}
	switch {
	case g.Lat < -90 || g.Lat > 90:
		return fmt.Sprintf("latitude %g out of range", g.Lat)
	case g.Lng < -180 || g.Lng > 180:
		return fmt.Sprintf("longitude %g out of range", g.Lng)
	case g.Accuracy < 0:
		return fmt.Sprintf("negative accuracy %g", g.Accuracy)
	}
	return ""
}

// ── Soft checks ───────────────────────────────────────────────────────────────

// ObserveProductCreated records the genesis position and checks the batch
// number asynchronously.
func (d *Detector) ObserveProductCreated(ctx context.Context, p *model.Product) {
	if len(p.Chain) > 0 && p.Chain[0].GPS != nil {
		d.remember(p.ID, *p.Chain[0].GPS, p.Chain[0].Timestamp)
	}
	if p.BatchNumber == "" || d.batches == nil {
		return
	}
	snapshot := p.Summary()
	d.async(ctx, func(ctx context.Context) { d.checkBatch(ctx, snapshot) })
}

// ObserveCheckpoint runs the speed check for a committed block
// asynchronously. tail is the block it extended. Callers must serialize
// calls per product in chain order; the previous fix is resolved before
// returning so that later blocks never race earlier ones.
func (d *Detector) ObserveCheckpoint(ctx context.Context, productID uuid.UUID, tail, committed *model.Block) {
	if committed.GPS == nil {
		return
	}
	cur := position{fix: *committed.GPS, at: committed.Timestamp}

	d.mu.Lock()
	prev, ok := d.positions[productID]
	if !ok || !cur.at.Before(prev.at) {
		d.positions[productID] = cur
	}
	d.mu.Unlock()

	if !ok {
		if tail == nil || tail.GPS == nil {
			return
		}
		prev = position{fix: *tail.GPS, at: tail.Timestamp}
	}
	blockNumber := committed.BlockNumber
	d.async(ctx, func(ctx context.Context) { d.checkSpeed(ctx, productID, blockNumber, prev, cur) })
}

// ObserveDenial counts an authorization denial asynchronously. Guests are not
// tracked since they share a single identity.
func (d *Detector) ObserveDenial(ctx context.Context, actor *model.Account, action string) {
	if actor == nil {
		return
	}
	actorID := actor.ID
	at := d.clock()
	d.async(ctx, func(ctx context.Context) { d.checkDenials(ctx, actorID, action, at) })
}

// RaiseChainIntegrity records a failed chain verification.
func (d *Detector) RaiseChainIntegrity(ctx context.Context, productID uuid.UUID, index int, reason string) {
	d.raise(ctx, model.SubjectProduct, productID.String(), ReasonChainIntegrity,
		fmt.Sprintf("chain invalid at block %d: %s", index, reason), model.SeverityHigh)
}

func (d *Detector) checkSpeed(ctx context.Context, productID uuid.UUID, blockNumber int, prev, cur position) {
	km := EffectiveDistanceKm(prev.fix, cur.fix)
	if km == 0 {
		return
	}
	elapsed := cur.at.Sub(prev.at)
	if elapsed > 0 {
		if speed := km / elapsed.Hours(); speed <= d.cfg.MaxSpeedKmh {
			return
		}
	}
	msg := fmt.Sprintf("block %d moved %.1f km in %s (limit %g km/h)",
		blockNumber, km, elapsed, d.cfg.MaxSpeedKmh)
	d.raise(ctx, model.SubjectProduct, productID.String(), ReasonImpossibleSpeed, msg, model.SeverityMedium)
}

func (d *Detector) checkDenials(ctx context.Context, actorID, action string, at time.Time) {
	n, err := d.denials.Add(ctx, actorID, at, d.cfg.DenialWindow)
	if err != nil {
		d.logger.Error("detector: count denial", zap.String("actor_id", actorID), zap.Error(err))
		return
	}
	if n != d.cfg.DenialThreshold {
		return
	}
	msg := fmt.Sprintf("%d authorization denials within %s (latest: %s)", n, d.cfg.DenialWindow, action)
	d.raise(ctx, model.SubjectAccount, actorID, ReasonRepeatedDenials, msg, model.SeverityHigh)
}

func (d *Detector) checkBatch(ctx context.Context, p *model.Product) {
	others, err := d.batches.FindByBatchNumber(ctx, p.BatchNumber)
	if err != nil {
		d.logger.Error("detector: find batch", zap.String("batch_number", p.BatchNumber), zap.Error(err))
		return
	}
	for _, o := range others {
		if o.ID == p.ID || o.Manufacturer == p.Manufacturer {
			continue
		}
		msg := fmt.Sprintf("batch %q already used by %q (product %s)", p.BatchNumber, o.Manufacturer, o.ID)
		d.raise(ctx, model.SubjectProduct, p.ID.String(), ReasonBatchConflict, msg, model.SeverityLow)
		return
	}
}

func (d *Detector) remember(productID uuid.UUID, fix model.GPS, at time.Time) {
	d.mu.Lock()
	d.positions[productID] = position{fix: fix, at: at}
	d.mu.Unlock()
}

// ── Records ───────────────────────────────────────────────────────────────────

func (d *Detector) raise(ctx context.Context, subject model.SubjectType, subjectID, reason, details string, sev model.Severity) {
	rec := &model.SuspiciousActivityRecord{
		SubjectType: subject,
		SubjectID:   subjectID,
		Reason:      reason,
		Details:     details,
		Severity:    sev,
		Timestamp:   d.clock().Truncate(time.Microsecond),
	}
	if err := d.store.Append(ctx, rec); err != nil {
		d.logger.Error("detector: store finding", zap.String("reason", reason), zap.Error(err))
		return
	}
	d.logger.Warn("suspicious activity",
		zap.String("subject_type", string(subject)),
		zap.String("subject_id", subjectID),
		zap.String("reason", reason),
		zap.String("severity", string(sev)),
	)
	if d.onFinding != nil {
		d.onFinding(reason, sev)
	}
	if sev == model.SeverityHigh && d.notifier != nil {
		d.async(ctx, func(ctx context.Context) {
			if err := d.notifier.Notify(ctx, rec); err != nil {
				d.logger.Error("detector: notify", zap.Int64("id", rec.ID), zap.Error(err))
			}
		})
	}
}

// ListRecent returns the n most recent findings, newest first. n <= 0
// defaults to 50.
func (d *Detector) ListRecent(ctx context.Context, n int) ([]*model.SuspiciousActivityRecord, error) {
	if n <= 0 {
		n = 50
	}
	recs, err := d.store.ListRecent(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	return recs, nil
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

// async runs fn in a tracked goroutine detached from the caller's
// cancellation.
func (d *Detector) async(ctx context.Context, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn(ctx)
	}()
}

// Drain blocks until every pending soft check and notification has finished.
func (d *Detector) Drain() {
	d.wg.Wait()
}

// Prune evicts positions older than Retention and denials older than
// DenialWindow, relative to now.
func (d *Detector) Prune(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-d.cfg.Retention)
	d.mu.Lock()
	for id, pos := range d.positions {
		if pos.at.Before(cutoff) {
			delete(d.positions, id)
		}
	}
	d.mu.Unlock()

	if err := d.denials.Prune(ctx, now.Add(-d.cfg.DenialWindow)); err != nil {
		return fmt.Errorf("prune denials: %w", err)
	}
	return nil
}

// Run prunes state every interval until ctx is cancelled. A non-positive
// interval falls back to DefaultPruneInterval.
func (d *Detector) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Prune(ctx, d.clock()); err != nil {
				d.logger.Error("detector: prune", zap.Error(err))
			}
		}
	}
}

// TrackedPositions reports how many products have a remembered position.
func (d *Detector) TrackedPositions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.positions)
}
