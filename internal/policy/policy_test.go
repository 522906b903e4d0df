package policy_test

import (
	"errors"
	"testing"

	"github.com/jmerrifield20/provenance/internal/policy"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

func acct(role model.Role, verified bool) *model.Account {
	return &model.Account{ID: "u-" + string(role), Role: role, Verified: verified}
}

func TestAuthorize_table(t *testing.T) {
	type want struct {
		admit  bool
		reason policy.Reason
	}
	admit := want{admit: true}
	role := want{reason: policy.RoleNotPermitted}
	unverified := want{reason: policy.NotVerified}

	cases := []struct {
		action policy.Action
		actor  *model.Account
		want   want
	}{
		{policy.ActionViewProduct, nil, admit},
		{policy.ActionViewProduct, acct(model.RoleCustomer, false), admit},

		{policy.ActionCreateProduct, acct(model.RoleManufacturer, true), admit},
		{policy.ActionCreateProduct, acct(model.RoleAdmin, true), admit},
		{policy.ActionCreateProduct, acct(model.RoleManufacturer, false), unverified},
		{policy.ActionCreateProduct, acct(model.RoleDistributor, true), role},
		{policy.ActionCreateProduct, acct(model.RoleRetailer, true), role},
		{policy.ActionCreateProduct, acct(model.RoleCustomer, true), role},
		{policy.ActionCreateProduct, nil, role},

		{policy.ActionAppendCheckpoint, acct(model.RoleManufacturer, true), admit},
		{policy.ActionAppendCheckpoint, acct(model.RoleDistributor, true), admit},
		{policy.ActionAppendCheckpoint, acct(model.RoleRetailer, true), admit},
		{policy.ActionAppendCheckpoint, acct(model.RoleAdmin, true), admit},
		{policy.ActionAppendCheckpoint, acct(model.RoleDistributor, false), unverified},
		{policy.ActionAppendCheckpoint, acct(model.RoleCustomer, true), role},
		{policy.ActionAppendCheckpoint, acct(model.RoleCustomer, false), role},
		{policy.ActionAppendCheckpoint, nil, role},

		{policy.ActionVerifyAccount, acct(model.RoleAdmin, false), admit},
		{policy.ActionVerifyAccount, acct(model.RoleManufacturer, true), role},
		{policy.ActionListAuditLog, acct(model.RoleAdmin, true), admit},
		{policy.ActionListAuditLog, acct(model.RoleRetailer, true), role},
		{policy.ActionListSuspiciousActivity, acct(model.RoleAdmin, true), admit},
		{policy.ActionListSuspiciousActivity, nil, role},
		{policy.ActionListPendingVerifications, acct(model.RoleAdmin, true), admit},
		{policy.ActionVerifyChain, acct(model.RoleDistributor, true), role},

		{policy.Action("delete_product"), acct(model.RoleAdmin, true), role},
	}

	for _, tc := range cases {
		d := policy.Authorize(tc.actor, tc.action, "p-1")
		if d.Admit != tc.want.admit || d.Reason != tc.want.reason {
			t.Errorf("%s by %+v: got admit=%v reason=%q, want admit=%v reason=%q",
				tc.action, tc.actor, d.Admit, d.Reason, tc.want.admit, tc.want.reason)
		}
	}
}

func TestDecision_Err(t *testing.T) {
	d := policy.Authorize(acct(model.RoleManufacturer, false), policy.ActionCreateProduct, "")
	err := d.Err()
	if !errors.Is(err, policy.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var denial *policy.DenialError
	if !errors.As(err, &denial) || denial.Reason != policy.NotVerified {
		t.Fatalf("expected NotVerified denial, got %#v", err)
	}

	if err := policy.Authorize(nil, policy.ActionViewProduct, "").Err(); err != nil {
		t.Errorf("admitted decision should have nil Err, got %v", err)
	}
}
