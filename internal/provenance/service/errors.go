package service

import (
	"errors"

	"github.com/jmerrifield20/provenance/internal/checkpoint"
	"github.com/jmerrifield20/provenance/internal/detector"
	"github.com/jmerrifield20/provenance/internal/identity"
	"github.com/jmerrifield20/provenance/internal/policy"
	"github.com/jmerrifield20/provenance/internal/provenance/repository"
)

var (
	// ErrValidation is returned for missing or malformed input fields.
	ErrValidation = errors.New("validation failed")
	// ErrChainIntegrity is returned when a stored chain fails verification
	// or belongs to a quarantined product.
	ErrChainIntegrity = errors.New("chain integrity violated")
)

// Re-exported so transports can classify errors from a single package.
var (
	ErrUnauthorized          = policy.ErrUnauthorized
	ErrInvalidTransition     = checkpoint.ErrInvalidTransition
	ErrImplausibleCheckpoint = detector.ErrImplausibleCheckpoint
	ErrNotFound              = repository.ErrNotFound
	ErrAccountNotFound       = identity.ErrNotFound
	ErrConflict              = repository.ErrStaleTail
)

// Error kinds, as recorded in audit details and metric labels.
const (
	KindValidation     = "ValidationError"
	KindAuthorization  = "AuthorizationError"
	KindTransition     = "InvalidTransition"
	KindImplausible    = "ImplausibleCheckpoint"
	KindNotFound       = "NotFound"
	KindChainIntegrity = "ChainIntegrityError"
	KindConflict       = "Conflict"
	KindInternal       = "Internal"
)

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, ErrInvalidTransition):
		return KindTransition
	case errors.Is(err, ErrImplausibleCheckpoint):
		return KindImplausible
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAccountNotFound):
		return KindNotFound
	case errors.Is(err, ErrChainIntegrity):
		return KindChainIntegrity
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	return KindInternal
}
