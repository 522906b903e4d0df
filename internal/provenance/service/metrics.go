package service

import "github.com/jmerrifield20/provenance/internal/provenance/model"

// MetricsRecorder receives domain events for instrumentation.
type MetricsRecorder interface {
	ProductCreated(category model.Category)
	CheckpointCommitted(stage model.Stage)
	OperationRejected(operation, kind string)
	ProductQuarantined()
}

type nopMetrics struct{}

func (nopMetrics) ProductCreated(model.Category) {}
func (nopMetrics) CheckpointCommitted(model.Stage) {}
func (nopMetrics) OperationRejected(string, string) {}
func (nopMetrics) ProductQuarantined() {}
