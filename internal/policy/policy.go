// Package policy decides which actors may perform which ledger operations.
// Decisions are a pure function of the actor's role, verification status and
// the requested action.
package policy

import (
	"errors"
	"fmt"

	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

// Action is a ledger operation subject to authorization.
type Action string

const (
	ActionViewProduct              Action = "view_product"
	ActionCreateProduct            Action = "create_product"
	ActionAppendCheckpoint         Action = "append_checkpoint"
	ActionVerifyAccount            Action = "verify_account"
	ActionListAuditLog             Action = "list_audit_log"
	ActionListSuspiciousActivity   Action = "list_suspicious_activity"
	ActionListPendingVerifications Action = "list_pending_verifications"
	ActionVerifyChain              Action = "verify_chain"
)

// Reason explains a denial.
type Reason string

const (
	RoleNotPermitted Reason = "RoleNotPermitted"
	NotVerified      Reason = "NotVerified"
)

// ErrUnauthorized matches every *DenialError.
var ErrUnauthorized = errors.New("not authorized")

// DenialError carries the reason an action was refused.
type DenialError struct {
	Action Action
	Reason Reason
	Target string
}

func (e *DenialError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s denied on %s: %s", e.Action, e.Target, e.Reason)
	}
	return fmt.Sprintf("%s denied: %s", e.Action, e.Reason)
}

// Is lets errors.Is(err, ErrUnauthorized) match.
func (e *DenialError) Is(target error) bool {
	return target == ErrUnauthorized
}

// Decision is the outcome of Authorize.
type Decision struct {
	Admit  bool
	Action Action
	Reason Reason
	Target string
}

// Err returns nil when admitted, otherwise a *DenialError.
func (d Decision) Err() error {
	if d.Admit {
		return nil
	}
	return &DenialError{Action: d.Action, Reason: d.Reason, Target: d.Target}
}

// rule describes who may perform an action.
type rule struct {
	roles          map[model.Role]bool // nil = any authenticated role
	deny           map[model.Role]bool
	needsVerified  bool
	allowAnonymous bool
}

func roles(rs ...model.Role) map[model.Role]bool {
	m := make(map[model.Role]bool, len(rs))
	for _, r := range rs {
		m[r] = true
	}
	return m
}

var adminOnly = rule{roles: roles(model.RoleAdmin)}

var rules = map[Action]rule{
	ActionViewProduct:              {allowAnonymous: true},
	ActionCreateProduct:            {roles: roles(model.RoleManufacturer, model.RoleAdmin), needsVerified: true},
	ActionAppendCheckpoint:         {deny: roles(model.RoleCustomer), needsVerified: true},
	ActionVerifyAccount:            adminOnly,
	ActionListAuditLog:             adminOnly,
	ActionListSuspiciousActivity:   adminOnly,
	ActionListPendingVerifications: adminOnly,
	ActionVerifyChain:              adminOnly,
}

// Authorize decides whether actor may perform action on target. A nil actor
// is an unauthenticated guest. Role is checked before verification, so an
// unverified customer is denied with RoleNotPermitted.
func Authorize(actor *model.Account, action Action, target string) Decision {
	d := Decision{Action: action, Target: target}

	r, ok := rules[action]
	if !ok {
		d.Reason = RoleNotPermitted
		return d
	}
	if r.allowAnonymous {
		d.Admit = true
		return d
	}
	if actor == nil {
		d.Reason = RoleNotPermitted
		return d
	}
	if (r.roles != nil && !r.roles[actor.Role]) || r.deny[actor.Role] {
		d.Reason = RoleNotPermitted
		return d
	}
	if r.needsVerified && !actor.Verified {
		d.Reason = NotVerified
		return d
	}
	d.Admit = true
	return d
}
