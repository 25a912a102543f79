package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "concord/contexts/community-governance/assembly-engine/application"
	"concord/contexts/community-governance/assembly-engine/application/queries"
	"concord/contexts/community-governance/assembly-engine/domain/entities"
	domainerrors "concord/contexts/community-governance/assembly-engine/domain/errors"
	"concord/contexts/community-governance/assembly-engine/ports"
)

const (
	topicAssemblyCreated = "assembly.created"
	topicAssemblyClosed  = "assembly.closed"
)

// ScheduleAssemblyCommand is the write-model input for assembly creation.
type ScheduleAssemblyCommand struct {
	CommunityID       string
	Title             string
	Description       string
	Type              entities.AssemblyType
	ScheduledAt       time.Time
	RequiredQuorumPct int
}

// RequestCloseCommand closes an assembly immediately when DeferBy is nil, or
// schedules a deferred close after the given duration.
type RequestCloseCommand struct {
	AssemblyID string
	Notes      string
	DeferBy    *time.Duration
}

// AssemblyUseCase orchestrates the assembly state machine:
// scheduled -> in_progress -> closed, scheduled -> cancelled. Closure is a
// check-and-set so a manual close and a deferred close racing each other
// resolve to one winner; the loser is a silent no-op.
type AssemblyUseCase struct {
	Assemblies  ports.AssemblyRepository
	Delegations ports.DelegationRepository
	Quorum      queries.QuorumUseCase
	Tallies     queries.TallyUseCase
	Outbox      ports.OutboxWriter
	Scheduler   ports.CloseScheduler
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Logger      *slog.Logger
}

// Schedule validates and records a new assembly and emits assembly.created.
func (uc AssemblyUseCase) Schedule(ctx context.Context, cmd ScheduleAssemblyCommand) (entities.Assembly, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	assembly := entities.Assembly{
		CommunityID:       strings.TrimSpace(cmd.CommunityID),
		Title:             strings.TrimSpace(cmd.Title),
		Description:       strings.TrimSpace(cmd.Description),
		Type:              cmd.Type,
		Status:            entities.AssemblyStatusScheduled,
		ScheduledAt:       cmd.ScheduledAt.UTC(),
		RequiredQuorumPct: cmd.RequiredQuorumPct,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if !assembly.ValidateBasics(now) {
		logger.Warn("assembly schedule validation failed",
			"event", "governance_assembly_schedule_validation_failed",
			"module", "community-governance/assembly-engine",
			"layer", "application",
			"community_id", assembly.CommunityID,
			"required_quorum_pct", assembly.RequiredQuorumPct,
		)
		return entities.Assembly{}, domainerrors.ErrInvalidAssemblyInput
	}

	assemblyID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Assembly{}, err
	}
	assembly.AssemblyID = assemblyID
	if err := uc.Assemblies.CreateAssembly(ctx, assembly); err != nil {
		return entities.Assembly{}, err
	}

	if err := uc.appendEvent(ctx, topicAssemblyCreated, assembly.AssemblyID, now, map[string]any{
		"assembly_id":         assembly.AssemblyID,
		"community_id":        assembly.CommunityID,
		"assembly_type":       string(assembly.Type),
		"scheduled_at":        assembly.ScheduledAt.Format(time.RFC3339),
		"required_quorum_pct": assembly.RequiredQuorumPct,
	}); err != nil {
		return entities.Assembly{}, err
	}

	logger.Info("assembly scheduled",
		"event", "governance_assembly_scheduled",
		"module", "community-governance/assembly-engine",
		"layer", "application",
		"assembly_id", assembly.AssemblyID,
		"community_id", assembly.CommunityID,
		"assembly_type", string(assembly.Type),
	)
	return assembly, nil
}

// Start opens the voting window: scheduled -> in_progress, sets opened_at.
func (uc AssemblyUseCase) Start(ctx context.Context, assemblyID string) (entities.Assembly, error) {
	logger := application.ResolveLogger(uc.Logger)
	if _, err := uc.Assemblies.GetAssembly(ctx, strings.TrimSpace(assemblyID)); err != nil {
		return entities.Assembly{}, err
	}

	opened, applied, err := uc.Assemblies.StartAssembly(ctx, strings.TrimSpace(assemblyID), uc.now())
	if err != nil {
		return entities.Assembly{}, err
	}
	if !applied {
		return entities.Assembly{}, domainerrors.ErrInvalidTransition
	}

	logger.Info("assembly started",
		"event", "governance_assembly_started",
		"module", "community-governance/assembly-engine",
		"layer", "application",
		"assembly_id", opened.AssemblyID,
		"community_id", opened.CommunityID,
	)
	return opened, nil
}

// RequestClose performs an immediate close, or records a deferred close due
// after DeferBy and hands the wakeup to the scheduling collaborator. A
// request against an assembly that is already closed is a silent no-op: the
// caller merely lost a race, which is not an error.
func (uc AssemblyUseCase) RequestClose(ctx context.Context, cmd RequestCloseCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	assembly, err := uc.Assemblies.GetAssembly(ctx, strings.TrimSpace(cmd.AssemblyID))
	if err != nil {
		return err
	}

	if cmd.DeferBy == nil {
		if assembly.Status == entities.AssemblyStatusClosed {
			return nil
		}
		if !assembly.CanClose() {
			return domainerrors.ErrInvalidTransition
		}
		applied, err := uc.close(ctx, assembly, strings.TrimSpace(cmd.Notes))
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		// Lost the race; only an already-closed result is benign.
		current, err := uc.Assemblies.GetAssembly(ctx, assembly.AssemblyID)
		if err != nil {
			return err
		}
		if current.Status == entities.AssemblyStatusClosed {
			return nil
		}
		return domainerrors.ErrInvalidTransition
	}

	if !assembly.CanClose() {
		return domainerrors.ErrInvalidTransition
	}
	if *cmd.DeferBy <= 0 {
		return domainerrors.ErrInvalidAssemblyInput
	}
	requestedAt := uc.now()
	dueAt := requestedAt.Add(*cmd.DeferBy)
	applied, err := uc.Assemblies.ScheduleDeferredClose(ctx, assembly.AssemblyID, dueAt, requestedAt, strings.TrimSpace(cmd.Notes))
	if err != nil {
		return err
	}
	if !applied {
		return domainerrors.ErrInvalidTransition
	}
	if uc.Scheduler != nil {
		if err := uc.Scheduler.ScheduleClose(ctx, assembly.AssemblyID, *cmd.DeferBy); err != nil {
			// The sweep worker will still pick up close_due_at; a lost
			// timer must not fail the request.
			logger.Warn("deferred close timer registration failed",
				"event", "governance_deferred_close_schedule_failed",
				"module", "community-governance/assembly-engine",
				"layer", "application",
				"assembly_id", assembly.AssemblyID,
				"error", err.Error(),
			)
		}
	}

	logger.Info("assembly close deferred",
		"event", "governance_assembly_close_deferred",
		"module", "community-governance/assembly-engine",
		"layer", "application",
		"assembly_id", assembly.AssemblyID,
		"close_due_at", dueAt.Format(time.RFC3339),
	)
	return nil
}

// CompleteDeferredClose is the fired side of a deferred close. It re-checks
// status and is a no-op for anything but in_progress, which makes the
// at-least-once timer and the sweep worker safe to fire any number of times.
func (uc AssemblyUseCase) CompleteDeferredClose(ctx context.Context, assemblyID string) error {
	assembly, err := uc.Assemblies.GetAssembly(ctx, strings.TrimSpace(assemblyID))
	if err != nil {
		if errors.Is(err, domainerrors.ErrAssemblyNotFound) {
			return nil
		}
		return err
	}
	if !assembly.CanClose() {
		return nil
	}
	// A firing that predates the current close_due_at is stale, either a
	// timer from a superseded deferral or an early sweep. Leave the close
	// to whichever firing matches the recorded due time.
	if assembly.CloseDueAt == nil || uc.now().Before(*assembly.CloseDueAt) {
		return nil
	}
	_, err = uc.close(ctx, assembly, assembly.PendingCloseNotes)
	return err
}

// Cancel applies scheduled -> cancelled. An assembly already gathering votes
// cannot be cancelled; it must be closed to preserve the audit trail.
func (uc AssemblyUseCase) Cancel(ctx context.Context, assemblyID string) (entities.Assembly, error) {
	logger := application.ResolveLogger(uc.Logger)
	if _, err := uc.Assemblies.GetAssembly(ctx, strings.TrimSpace(assemblyID)); err != nil {
		return entities.Assembly{}, err
	}

	cancelled, applied, err := uc.Assemblies.CancelAssembly(ctx, strings.TrimSpace(assemblyID), uc.now())
	if err != nil {
		return entities.Assembly{}, err
	}
	if !applied {
		return entities.Assembly{}, domainerrors.ErrInvalidTransition
	}

	logger.Info("assembly cancelled",
		"event", "governance_assembly_cancelled",
		"module", "community-governance/assembly-engine",
		"layer", "application",
		"assembly_id", cancelled.AssemblyID,
	)
	return cancelled, nil
}

// Delete removes an assembly and everything it owns. Permitted only in
// scheduled or closed states.
func (uc AssemblyUseCase) Delete(ctx context.Context, assemblyID string) error {
	logger := application.ResolveLogger(uc.Logger)
	assembly, err := uc.Assemblies.GetAssembly(ctx, strings.TrimSpace(assemblyID))
	if err != nil {
		return err
	}
	if !assembly.CanDelete() {
		return domainerrors.ErrInvalidTransition
	}
	applied, err := uc.Assemblies.DeleteAssembly(ctx, assembly.AssemblyID)
	if err != nil {
		return err
	}
	if !applied {
		return domainerrors.ErrInvalidTransition
	}

	logger.Info("assembly deleted",
		"event", "governance_assembly_deleted",
		"module", "community-governance/assembly-engine",
		"layer", "application",
		"assembly_id", assembly.AssemblyID,
		"status", string(assembly.Status),
	)
	return nil
}

// close computes the closure snapshot and applies the in_progress -> closed
// check-and-set. Returns applied=false without error when another trigger
// resolved the assembly first; the winner emits assembly.closed exactly once.
func (uc AssemblyUseCase) close(ctx context.Context, assembly entities.Assembly, notes string) (bool, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	// Stored delegation statuses are corrected at closure so the frozen
	// record never carries a stale active delegation.
	if err := sweepExpiredDelegations(ctx, sweepDeps{
		Delegations: uc.Delegations,
		Outbox:      uc.Outbox,
		IDGen:       uc.IDGen,
		Logger:      uc.Logger,
	}, assembly.AssemblyID, now); err != nil {
		return false, err
	}

	participation, err := uc.Quorum.ComputeParticipation(ctx, assembly)
	if err != nil {
		return false, err
	}
	tallies, err := uc.Tallies.AssemblyTallies(ctx, assembly)
	if err != nil {
		return false, err
	}
	quorumMet := participation >= assembly.RequiredQuorumPct

	closed, applied, err := uc.Assemblies.CloseAssembly(ctx, entities.ClosureSnapshot{
		AssemblyID:       assembly.AssemblyID,
		ParticipationPct: participation,
		QuorumMet:        quorumMet,
		MeetingNotes:     notes,
		ClosedAt:         now,
		Tallies:          tallies,
	})
	if err != nil {
		return false, err
	}
	if !applied {
		logger.Info("assembly close lost race",
			"event", "governance_assembly_close_noop",
			"module", "community-governance/assembly-engine",
			"layer", "application",
			"assembly_id", assembly.AssemblyID,
		)
		return false, nil
	}

	if err := uc.appendEvent(ctx, topicAssemblyClosed, closed.AssemblyID, now, map[string]any{
		"assembly_id":       closed.AssemblyID,
		"quorum_met":        quorumMet,
		"participation_pct": participation,
		"closed_at":         now.Format(time.RFC3339),
	}); err != nil {
		return false, err
	}

	logger.Info("assembly closed",
		"event", "governance_assembly_closed",
		"module", "community-governance/assembly-engine",
		"layer", "application",
		"assembly_id", closed.AssemblyID,
		"quorum_met", quorumMet,
		"participation_pct", participation,
	)
	return true, nil
}

func (uc AssemblyUseCase) appendEvent(
	ctx context.Context,
	eventType string,
	assemblyID string,
	occurredAt time.Time,
	data map[string]any,
) error {
	// Outbox is optional for pure read/test wiring, so nil is treated as no-op.
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope, err := newGovernanceEnvelope(eventID, eventType, assemblyID, occurredAt, data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func (uc AssemblyUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}
