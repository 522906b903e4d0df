// Package checkpoint holds the custody stage state machine.
//
// Stages are totally ordered:
//
//	created < manufacturing < quality_check < warehouse < distribution < retail < delivered
//
// A checkpoint may repeat the current stage or move to any later one.
// delivered is terminal.
package checkpoint

import (
	"errors"
	"fmt"

	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

// ErrInvalidTransition is returned for any illegal stage change.
var ErrInvalidTransition = errors.New("invalid stage transition")

var order = map[model.Stage]int{
	model.StageCreated:       0,
	model.StageManufacturing: 1,
	model.StageQualityCheck:  2,
	model.StageWarehouse:     3,
	model.StageDistribution:  4,
	model.StageRetail:        5,
	model.StageDelivered:     6,
}

// Rank returns the position of s in the stage ordering, or -1 if unknown.
func Rank(s model.Stage) int {
	r, ok := order[s]
	if !ok {
		return -1
	}
	return r
}

// Terminal reports whether no checkpoint may follow s.
func Terminal(s model.Stage) bool {
	return s == model.StageDelivered
}

// ParseStage validates a checkpoint stage supplied by a caller. The implicit
// created stage belongs to block 0 only and is not accepted.
func ParseStage(raw string) (model.Stage, error) {
	s := model.Stage(raw)
	if Rank(s) <= 0 {
		return "", fmt.Errorf("unknown checkpoint stage %q", raw)
	}
	return s, nil
}

// Transition decides whether a product whose latest stage is current may
// record a checkpoint at proposed.
func Transition(current, proposed model.Stage) error {
	cur, next := Rank(current), Rank(proposed)
	switch {
	case cur < 0:
		return fmt.Errorf("%w: unknown current stage %q", ErrInvalidTransition, current)
	case next <= 0:
		return fmt.Errorf("%w: %q is not a checkpoint stage", ErrInvalidTransition, proposed)
	case Terminal(current):
		return fmt.Errorf("%w: product already %s", ErrInvalidTransition, current)
	case next < cur:
		return fmt.Errorf("%w: %s cannot follow %s", ErrInvalidTransition, proposed, current)
	}
	return nil
}
