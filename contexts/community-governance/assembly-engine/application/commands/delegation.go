package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "concord/contexts/community-governance/assembly-engine/application"
	"concord/contexts/community-governance/assembly-engine/domain/entities"
	domainerrors "concord/contexts/community-governance/assembly-engine/domain/errors"
	"concord/contexts/community-governance/assembly-engine/ports"
)

const topicDelegationStateChanged = "delegation.state_changed"

// AuthorizeDelegationCommand names a delegate for one unit at one assembly.
type AuthorizeDelegationCommand struct {
	AssemblyID   string
	UnitID       string
	DelegateID   string
	AuthorizerID string
	ExpiresAt    *time.Time
	Notes        string
}

// DelegationUseCase is the ledger of voting delegations. It enforces the
// at-most-one valid delegation per (assembly, unit) invariant through the
// repository's conditional insert; authorization policy comes from the
// identity collaborator as opaque booleans.
type DelegationUseCase struct {
	Delegations ports.DelegationRepository
	Identity    ports.IdentityGuard
	Outbox      ports.OutboxWriter
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Logger      *slog.Logger
}

// Authorize records a pending delegation. The authorizer must be the unit's
// registered occupant or hold the administrative override capability.
func (uc DelegationUseCase) Authorize(ctx context.Context, cmd AuthorizeDelegationCommand) (entities.Delegation, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	if strings.TrimSpace(cmd.AssemblyID) == "" ||
		strings.TrimSpace(cmd.UnitID) == "" ||
		strings.TrimSpace(cmd.DelegateID) == "" ||
		strings.TrimSpace(cmd.AuthorizerID) == "" {
		return entities.Delegation{}, domainerrors.ErrInvalidDelegationInput
	}
	if cmd.ExpiresAt != nil && !cmd.ExpiresAt.UTC().After(now) {
		return entities.Delegation{}, domainerrors.ErrInvalidDelegationInput
	}

	occupant, err := uc.Identity.IsRegisteredOccupant(ctx, strings.TrimSpace(cmd.UnitID), strings.TrimSpace(cmd.AuthorizerID))
	if err != nil {
		return entities.Delegation{}, err
	}
	if !occupant {
		admin, err := uc.Identity.HasAdminOverride(ctx, strings.TrimSpace(cmd.AuthorizerID))
		if err != nil {
			return entities.Delegation{}, err
		}
		if !admin {
			logger.Warn("delegation authorize rejected",
				"event", "governance_delegation_authorize_rejected",
				"module", "community-governance/assembly-engine",
				"layer", "application",
				"assembly_id", strings.TrimSpace(cmd.AssemblyID),
				"unit_id", strings.TrimSpace(cmd.UnitID),
				"authorizer_id", strings.TrimSpace(cmd.AuthorizerID),
			)
			return entities.Delegation{}, domainerrors.ErrUnauthorizedVoter
		}
	}

	delegationID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Delegation{}, err
	}
	delegation := entities.Delegation{
		DelegationID: delegationID,
		AssemblyID:   strings.TrimSpace(cmd.AssemblyID),
		UnitID:       strings.TrimSpace(cmd.UnitID),
		DelegateID:   strings.TrimSpace(cmd.DelegateID),
		AuthorizerID: strings.TrimSpace(cmd.AuthorizerID),
		Status:       entities.DelegationStatusPending,
		ExpiresAt:    cmd.ExpiresAt,
		Notes:        strings.TrimSpace(cmd.Notes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	inserted, err := uc.Delegations.CreateDelegationIfAbsent(ctx, delegation, now)
	if err != nil {
		return entities.Delegation{}, err
	}
	if !inserted {
		return entities.Delegation{}, domainerrors.ErrDuplicateDelegation
	}

	if err := uc.emitStateChanged(ctx, delegation, now); err != nil {
		return entities.Delegation{}, err
	}
	logger.Info("delegation authorized",
		"event", "governance_delegation_authorized",
		"module", "community-governance/assembly-engine",
		"layer", "application",
		"delegation_id", delegation.DelegationID,
		"assembly_id", delegation.AssemblyID,
		"unit_id", delegation.UnitID,
		"delegate_id", delegation.DelegateID,
	)
	return delegation, nil
}

// Approve applies pending -> active. A pending delegation whose expiry has
// passed reads as expired and is corrected on this write.
func (uc DelegationUseCase) Approve(ctx context.Context, delegationID string) (entities.Delegation, error) {
	return uc.transition(ctx, delegationID, entities.DelegationStatusActive, "governance_delegation_approved")
}

// Revoke applies pending/active -> revoked. Revoking an already revoked or
// expired delegation is an invalid transition, not an idempotent success.
func (uc DelegationUseCase) Revoke(ctx context.Context, delegationID string) (entities.Delegation, error) {
	return uc.transition(ctx, delegationID, entities.DelegationStatusRevoked, "governance_delegation_revoked")
}

// ActiveDelegateFor resolves the delegate allowed to vote for a unit at
// asOf. A lazily-expired delegation reads as absent without any mutation.
func (uc DelegationUseCase) ActiveDelegateFor(
	ctx context.Context,
	assemblyID string,
	unitID string,
	asOf time.Time,
) (string, bool, error) {
	delegation, found, err := uc.Delegations.FindBlockingDelegation(
		ctx, strings.TrimSpace(assemblyID), strings.TrimSpace(unitID), asOf)
	if err != nil {
		return "", false, err
	}
	if !found || delegation.EffectiveStatus(asOf) != entities.DelegationStatusActive {
		return "", false, nil
	}
	return delegation.DelegateID, true, nil
}

// SweepExpired corrects stored statuses for delegations whose expiry has
// passed. Run by the sweep worker and before every closure.
func (uc DelegationUseCase) SweepExpired(ctx context.Context, assemblyID string) error {
	return sweepExpiredDelegations(ctx, sweepDeps{
		Delegations: uc.Delegations,
		Outbox:      uc.Outbox,
		IDGen:       uc.IDGen,
		Logger:      uc.Logger,
	}, strings.TrimSpace(assemblyID), uc.now())
}

func (uc DelegationUseCase) transition(
	ctx context.Context,
	delegationID string,
	to entities.DelegationStatus,
	logEvent string,
) (entities.Delegation, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	delegation, err := uc.Delegations.GetDelegation(ctx, strings.TrimSpace(delegationID))
	if err != nil {
		return entities.Delegation{}, err
	}

	effective := delegation.EffectiveStatus(now)
	if effective == entities.DelegationStatusExpired && delegation.Status != entities.DelegationStatusExpired {
		// Status correction happens on the next write.
		delegation.Status = entities.DelegationStatusExpired
		delegation.UpdatedAt = now
		if err := uc.Delegations.SaveDelegation(ctx, delegation); err != nil {
			return entities.Delegation{}, err
		}
		if err := uc.emitStateChanged(ctx, delegation, now); err != nil {
			return entities.Delegation{}, err
		}
	}

	switch to {
	case entities.DelegationStatusActive:
		if effective != entities.DelegationStatusPending {
			return entities.Delegation{}, domainerrors.ErrInvalidTransition
		}
	case entities.DelegationStatusRevoked:
		if effective != entities.DelegationStatusPending && effective != entities.DelegationStatusActive {
			return entities.Delegation{}, domainerrors.ErrInvalidTransition
		}
	default:
		return entities.Delegation{}, domainerrors.ErrInvalidTransition
	}

	delegation.Status = to
	delegation.UpdatedAt = now
	if err := uc.Delegations.SaveDelegation(ctx, delegation); err != nil {
		return entities.Delegation{}, err
	}
	if err := uc.emitStateChanged(ctx, delegation, now); err != nil {
		return entities.Delegation{}, err
	}

	logger.Info("delegation state changed",
		"event", logEvent,
		"module", "community-governance/assembly-engine",
		"layer", "application",
		"delegation_id", delegation.DelegationID,
		"assembly_id", delegation.AssemblyID,
		"unit_id", delegation.UnitID,
		"new_status", string(to),
	)
	return delegation, nil
}

func (uc DelegationUseCase) emitStateChanged(ctx context.Context, delegation entities.Delegation, occurredAt time.Time) error {
	return emitDelegationStateChanged(ctx, uc.Outbox, uc.IDGen, delegation, occurredAt)
}

func (uc DelegationUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

type sweepDeps struct {
	Delegations ports.DelegationRepository
	Outbox      ports.OutboxWriter
	IDGen       ports.IDGenerator
	Logger      *slog.Logger
}

func sweepExpiredDelegations(ctx context.Context, deps sweepDeps, assemblyID string, now time.Time) error {
	logger := application.ResolveLogger(deps.Logger)
	delegations, err := deps.Delegations.ListDelegationsByAssembly(ctx, assemblyID)
	if err != nil {
		return err
	}

	corrected := 0
	for _, delegation := range delegations {
		if delegation.Status != entities.DelegationStatusPending && delegation.Status != entities.DelegationStatusActive {
			continue
		}
		if delegation.EffectiveStatus(now) != entities.DelegationStatusExpired {
			continue
		}
		delegation.Status = entities.DelegationStatusExpired
		delegation.UpdatedAt = now
		if err := deps.Delegations.SaveDelegation(ctx, delegation); err != nil {
			return err
		}
		if err := emitDelegationStateChanged(ctx, deps.Outbox, deps.IDGen, delegation, now); err != nil {
			return err
		}
		corrected++
	}
	if corrected > 0 {
		logger.Info("expired delegations corrected",
			"event", "governance_delegation_sweep_completed",
			"module", "community-governance/assembly-engine",
			"layer", "application",
			"assembly_id", assemblyID,
			"corrected_count", corrected,
		)
	}
	return nil
}

func emitDelegationStateChanged(
	ctx context.Context,
	outbox ports.OutboxWriter,
	idgen ports.IDGenerator,
	delegation entities.Delegation,
	occurredAt time.Time,
) error {
	if outbox == nil {
		return nil
	}
	eventID, err := idgen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope, err := newGovernanceEnvelope(eventID, topicDelegationStateChanged, delegation.AssemblyID, occurredAt, map[string]any{
		"delegation_id": delegation.DelegationID,
		"assembly_id":   delegation.AssemblyID,
		"unit_id":       delegation.UnitID,
		"delegate_id":   delegation.DelegateID,
		"new_status":    string(delegation.Status),
	})
	if err != nil {
		return err
	}
	return outbox.AppendOutbox(ctx, envelope)
}
