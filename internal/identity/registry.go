// Package identity resolves the actor behind a request. Accounts live in an
// external identity registry; the ledger reads them and forwards admin
// verification, but never creates accounts or issues credentials.
package identity

import (
	"context"
	"errors"

	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

// ErrNotFound is returned when an account lookup finds no matching record.
var ErrNotFound = errors.New("account not found")

// Registry is the view of the identity registry the ledger depends on.
type Registry interface {
	GetActor(ctx context.Context, id string) (*model.Account, error)
	ListPendingVerifications(ctx context.Context) ([]*model.Account, error)
	SetVerified(ctx context.Context, id string) error
}
