package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"concord/contexts/community-governance/assembly-engine/domain/entities"
	domainerrors "concord/contexts/community-governance/assembly-engine/domain/errors"
)

func TestAuthorizeRequiresOccupantOrAdmin(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.seedUnit("unit-a", "alice", 1.0)
	f.store.SetAdminOverride("root", true)
	assembly := f.startAssembly(t, 50)

	base := AuthorizeDelegationCommand{
		AssemblyID:   assembly.AssemblyID,
		UnitID:       "unit-a",
		DelegateID:   "dave",
		AuthorizerID: "mallory",
	}
	if _, err := f.delegations.Authorize(ctx, base); !errors.Is(err, domainerrors.ErrUnauthorizedVoter) {
		t.Fatalf("stranger authorizer: got %v, want ErrUnauthorizedVoter", err)
	}

	admin := base
	admin.AuthorizerID = "root"
	delegation, err := f.delegations.Authorize(ctx, admin)
	if err != nil {
		t.Fatalf("admin override authorize: %v", err)
	}
	if delegation.Status != entities.DelegationStatusPending {
		t.Fatalf("status = %s, want pending", delegation.Status)
	}
}

func TestAuthorizeRejectsPastExpiry(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.seedUnit("unit-a", "alice", 1.0)
	assembly := f.startAssembly(t, 50)

	past := f.clock.Now().Add(-time.Minute)
	_, err := f.delegations.Authorize(ctx, AuthorizeDelegationCommand{
		AssemblyID:   assembly.AssemblyID,
		UnitID:       "unit-a",
		DelegateID:   "dave",
		AuthorizerID: "alice",
		ExpiresAt:    &past,
	})
	if !errors.Is(err, domainerrors.ErrInvalidDelegationInput) {
		t.Fatalf("got %v, want ErrInvalidDelegationInput", err)
	}
}

func TestSecondDelegationBlockedUntilExpiry(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.seedUnit("unit-a", "alice", 1.0)
	assembly := f.startAssembly(t, 50)

	expiry := f.clock.Now().Add(30 * time.Minute)
	cmd := AuthorizeDelegationCommand{
		AssemblyID:   assembly.AssemblyID,
		UnitID:       "unit-a",
		DelegateID:   "dave",
		AuthorizerID: "alice",
		ExpiresAt:    &expiry,
	}
	if _, err := f.delegations.Authorize(ctx, cmd); err != nil {
		t.Fatalf("first authorize: %v", err)
	}

	second := cmd
	second.DelegateID = "erin"
	second.ExpiresAt = nil
	if _, err := f.delegations.Authorize(ctx, second); !errors.Is(err, domainerrors.ErrDuplicateDelegation) {
		t.Fatalf("second authorize while blocked: got %v, want ErrDuplicateDelegation", err)
	}

	// Once the first delegation lapses the slot frees up without any sweep.
	f.clock.Advance(time.Hour)
	if _, err := f.delegations.Authorize(ctx, second); err != nil {
		t.Fatalf("authorize after expiry: %v", err)
	}
}

func TestDelegationLifecycle(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.seedUnit("unit-a", "alice", 1.0)
	assembly := f.startAssembly(t, 50)

	delegation, err := f.delegations.Authorize(ctx, AuthorizeDelegationCommand{
		AssemblyID:   assembly.AssemblyID,
		UnitID:       "unit-a",
		DelegateID:   "dave",
		AuthorizerID: "alice",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}

	active, err := f.delegations.Approve(ctx, delegation.DelegationID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if active.Status != entities.DelegationStatusActive {
		t.Fatalf("status = %s, want active", active.Status)
	}

	// Approving twice is an invalid transition, not an idempotent success.
	if _, err := f.delegations.Approve(ctx, delegation.DelegationID); !errors.Is(err, domainerrors.ErrInvalidTransition) {
		t.Fatalf("second approve: got %v, want ErrInvalidTransition", err)
	}

	revoked, err := f.delegations.Revoke(ctx, delegation.DelegationID)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Status != entities.DelegationStatusRevoked {
		t.Fatalf("status = %s, want revoked", revoked.Status)
	}
	if _, err := f.delegations.Revoke(ctx, delegation.DelegationID); !errors.Is(err, domainerrors.ErrInvalidTransition) {
		t.Fatalf("second revoke: got %v, want ErrInvalidTransition", err)
	}
}

func TestApproveExpiredCorrectsStoredStatus(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.seedUnit("unit-a", "alice", 1.0)
	assembly := f.startAssembly(t, 50)

	expiry := f.clock.Now().Add(10 * time.Minute)
	delegation, err := f.delegations.Authorize(ctx, AuthorizeDelegationCommand{
		AssemblyID:   assembly.AssemblyID,
		UnitID:       "unit-a",
		DelegateID:   "dave",
		AuthorizerID: "alice",
		ExpiresAt:    &expiry,
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}

	f.clock.Advance(time.Hour)
	if _, err := f.delegations.Approve(ctx, delegation.DelegationID); !errors.Is(err, domainerrors.ErrInvalidTransition) {
		t.Fatalf("approve expired: got %v, want ErrInvalidTransition", err)
	}

	// The rejected write still corrected the stale stored status.
	stored, err := f.store.GetDelegation(ctx, delegation.DelegationID)
	if err != nil {
		t.Fatalf("get delegation: %v", err)
	}
	if stored.Status != entities.DelegationStatusExpired {
		t.Fatalf("stored status = %s, want expired", stored.Status)
	}
}

func TestActiveDelegateFor(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.seedUnit("unit-a", "alice", 1.0)
	assembly := f.startAssembly(t, 50)

	expiry := f.clock.Now().Add(30 * time.Minute)
	delegation, err := f.delegations.Authorize(ctx, AuthorizeDelegationCommand{
		AssemblyID:   assembly.AssemblyID,
		UnitID:       "unit-a",
		DelegateID:   "dave",
		AuthorizerID: "alice",
		ExpiresAt:    &expiry,
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}

	if _, found, err := f.delegations.ActiveDelegateFor(ctx, assembly.AssemblyID, "unit-a", f.clock.Now()); err != nil || found {
		t.Fatalf("pending delegation: found=%v err=%v, want absent", found, err)
	}

	if _, err := f.delegations.Approve(ctx, delegation.DelegationID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	delegateID, found, err := f.delegations.ActiveDelegateFor(ctx, assembly.AssemblyID, "unit-a", f.clock.Now())
	if err != nil || !found || delegateID != "dave" {
		t.Fatalf("active delegation: got (%s, %v, %v), want dave", delegateID, found, err)
	}

	if _, found, err := f.delegations.ActiveDelegateFor(ctx, assembly.AssemblyID, "unit-a", f.clock.Now().Add(time.Hour)); err != nil || found {
		t.Fatalf("past expiry: found=%v err=%v, want absent", found, err)
	}
}

func TestSweepExpiredCorrectsAndEmits(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.seedUnit("unit-a", "alice", 1.0)
	f.seedUnit("unit-b", "bob", 1.0)
	assembly := f.startAssembly(t, 50)

	expiry := f.clock.Now().Add(10 * time.Minute)
	expiring, err := f.delegations.Authorize(ctx, AuthorizeDelegationCommand{
		AssemblyID:   assembly.AssemblyID,
		UnitID:       "unit-a",
		DelegateID:   "dave",
		AuthorizerID: "alice",
		ExpiresAt:    &expiry,
	})
	if err != nil {
		t.Fatalf("authorize expiring: %v", err)
	}
	open, err := f.delegations.Authorize(ctx, AuthorizeDelegationCommand{
		AssemblyID:   assembly.AssemblyID,
		UnitID:       "unit-b",
		DelegateID:   "erin",
		AuthorizerID: "bob",
	})
	if err != nil {
		t.Fatalf("authorize open-ended: %v", err)
	}

	f.clock.Advance(time.Hour)
	if err := f.delegations.SweepExpired(ctx, assembly.AssemblyID); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	sweptExpiring, err := f.store.GetDelegation(ctx, expiring.DelegationID)
	if err != nil {
		t.Fatalf("get expiring: %v", err)
	}
	if sweptExpiring.Status != entities.DelegationStatusExpired {
		t.Fatalf("expiring status = %s, want expired", sweptExpiring.Status)
	}

	sweptOpen, err := f.store.GetDelegation(ctx, open.DelegationID)
	if err != nil {
		t.Fatalf("get open-ended: %v", err)
	}
	if sweptOpen.Status != entities.DelegationStatusPending {
		t.Fatalf("open-ended status = %s, want untouched pending", sweptOpen.Status)
	}

	// Two authorizations plus one expiry correction.
	if events := f.pendingEvents(t, "delegation.state_changed"); len(events) != 3 {
		t.Fatalf("delegation.state_changed events = %d, want 3", len(events))
	}
}
