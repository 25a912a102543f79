package workers

import (
	"context"
	"log/slog"
	"time"

	application "concord/contexts/community-governance/assembly-engine/application"
	"concord/contexts/community-governance/assembly-engine/ports"
)

// AssemblyCloser is the slice of the assembly use case the sweep needs.
type AssemblyCloser interface {
	CompleteDeferredClose(ctx context.Context, assemblyID string) error
}

// DeferredCloser sweeps in-progress assemblies whose close_due_at has
// passed. It backs up the in-process timer: if the timer fired first the
// close transition already happened and each completion call is a no-op.
type DeferredCloser struct {
	Assemblies ports.AssemblyRepository
	Closer     AssemblyCloser
	Clock      ports.Clock
	BatchSize  int
	Logger     *slog.Logger
}

func (j DeferredCloser) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(j.Logger)
	now := time.Now().UTC()
	if j.Clock != nil {
		now = j.Clock.Now().UTC()
	}

	limit := j.BatchSize
	if limit <= 0 {
		limit = 100
	}

	due, err := j.Assemblies.ListAssembliesDueForClose(ctx, now, limit)
	if err != nil {
		logger.Error("deferred close sweep failed",
			"event", "governance_deferred_close_sweep_failed",
			"module", "community-governance/assembly-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	closed := 0
	for _, assembly := range due {
		if err := j.Closer.CompleteDeferredClose(ctx, assembly.AssemblyID); err != nil {
			logger.Error("deferred close failed",
				"event", "governance_deferred_close_failed",
				"module", "community-governance/assembly-engine",
				"layer", "worker",
				"assembly_id", assembly.AssemblyID,
				"error", err.Error(),
			)
			return err
		}
		closed++
	}
	if closed > 0 {
		logger.Info("deferred close sweep completed",
			"event", "governance_deferred_close_sweep_completed",
			"module", "community-governance/assembly-engine",
			"layer", "worker",
			"closed_count", closed,
		)
	}
	return nil
}
