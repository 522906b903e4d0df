// Package notify forwards high-severity findings to operators.
package notify

import (
	"context"

	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"go.uber.org/zap"
)

// Notifier delivers a finding to an out-of-band channel.
type Notifier interface {
	Notify(ctx context.Context, rec *model.SuspiciousActivityRecord) error
}

// LogNotifier writes findings to zap instead of delivering them.
// Use in development or when no webhook is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier backed by the given logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the finding and returns nil.
func (n *LogNotifier) Notify(_ context.Context, rec *model.SuspiciousActivityRecord) error {
	n.logger.Warn("suspicious activity",
		zap.Int64("id", rec.ID),
		zap.String("subject_type", string(rec.SubjectType)),
		zap.String("subject_id", rec.SubjectID),
		zap.String("reason", rec.Reason),
		zap.String("severity", string(rec.Severity)),
		zap.String("details", rec.Details),
	)
	return nil
}
