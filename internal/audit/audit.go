// Package audit records every attempted ledger mutation, successful or not,
// as an append-only sequence of entries.
//
// Entry ids are assigned by the Store and are strictly increasing with no
// gaps, even with concurrent writers. Entries are never edited or removed.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"go.uber.org/zap"
)

// Store persists audit entries. Append assigns ID; Timestamp is set by the
// Logger before the call.
type Store interface {
	Append(ctx context.Context, e *model.AuditLogEntry) error
	// ListRecent returns at most n entries, newest first.
	ListRecent(ctx context.Context, n int) ([]*model.AuditLogEntry, error)
}

// Logger stamps and records audit entries.
type Logger struct {
	store  Store
	clock  func() time.Time
	logger *zap.Logger
}

// NewLogger creates a Logger writing to store.
func NewLogger(store Store, logger *zap.Logger) *Logger {
	return &Logger{
		store:  store,
		clock:  func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// SetClock overrides the time source. Intended for tests.
func (l *Logger) SetClock(clock func() time.Time) {
	l.clock = clock
}

// Record appends an entry for actorID and returns it with its assigned id.
func (l *Logger) Record(ctx context.Context, actorID, action, details string) (*model.AuditLogEntry, error) {
	e := &model.AuditLogEntry{
		ActorID:   actorID,
		Action:    action,
		Details:   details,
		Timestamp: l.clock().Truncate(time.Microsecond),
	}
	if err := l.store.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}
	l.logger.Debug("audit entry recorded",
		zap.Int64("id", e.ID),
		zap.String("actor_id", actorID),
		zap.String("action", action),
	)
	return e, nil
}

// ListRecent returns the n most recent entries, newest first. n <= 0
// defaults to 50.
func (l *Logger) ListRecent(ctx context.Context, n int) ([]*model.AuditLogEntry, error) {
	if n <= 0 {
		n = 50
	}
	entries, err := l.store.ListRecent(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
