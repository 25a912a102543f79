package workers

import (
	"context"
	"log/slog"
	"time"

	application "concord/contexts/community-governance/assembly-engine/application"
	"concord/contexts/community-governance/assembly-engine/ports"
)

// DelegationSweeper is the slice of the delegation use case the expirer
// needs.
type DelegationSweeper interface {
	SweepExpired(ctx context.Context, assemblyID string) error
}

// DelegationExpirer corrects stored statuses of delegations whose expiry has
// passed. Reads already treat them as expired; this sweep makes the stored
// row match so listings and exports need no recomputation.
type DelegationExpirer struct {
	Delegations ports.DelegationRepository
	Sweeper     DelegationSweeper
	Clock       ports.Clock
	BatchSize   int
	Logger      *slog.Logger
}

func (j DelegationExpirer) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(j.Logger)
	now := time.Now().UTC()
	if j.Clock != nil {
		now = j.Clock.Now().UTC()
	}

	limit := j.BatchSize
	if limit <= 0 {
		limit = 100
	}

	stale, err := j.Delegations.ListExpiredDelegations(ctx, now, limit)
	if err != nil {
		logger.Error("delegation expiry sweep failed",
			"event", "governance_delegation_expiry_sweep_failed",
			"module", "community-governance/assembly-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	// One sweep call per assembly, not per row.
	assemblies := make(map[string]struct{}, len(stale))
	for _, delegation := range stale {
		assemblies[delegation.AssemblyID] = struct{}{}
	}
	for assemblyID := range assemblies {
		if err := j.Sweeper.SweepExpired(ctx, assemblyID); err != nil {
			logger.Error("delegation expiry correction failed",
				"event", "governance_delegation_expiry_correction_failed",
				"module", "community-governance/assembly-engine",
				"layer", "worker",
				"assembly_id", assemblyID,
				"error", err.Error(),
			)
			return err
		}
	}

	logger.Info("delegation expiry sweep completed",
		"event", "governance_delegation_expiry_sweep_completed",
		"module", "community-governance/assembly-engine",
		"layer", "worker",
		"stale_count", len(stale),
		"assembly_count", len(assemblies),
	)
	return nil
}
