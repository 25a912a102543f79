package assemblyengine

import (
	"log/slog"

	httpadapter "concord/contexts/community-governance/assembly-engine/adapters/http"
	"concord/contexts/community-governance/assembly-engine/adapters/memory"
	"concord/contexts/community-governance/assembly-engine/application/commands"
	"concord/contexts/community-governance/assembly-engine/application/queries"
	"concord/contexts/community-governance/assembly-engine/application/workers"
	"concord/contexts/community-governance/assembly-engine/ports"
)

type Module struct {
	Handler           httpadapter.Handler
	Assemblies        commands.AssemblyUseCase
	Ballots           commands.BallotUseCase
	Delegations       commands.DelegationUseCase
	DeferredCloser    workers.DeferredCloser
	DelegationExpirer workers.DelegationExpirer
	Store             *memory.Store
}

type Dependencies struct {
	Assemblies     ports.AssemblyRepository
	Ballots        ports.BallotRepository
	Delegations    ports.DelegationRepository
	Units          ports.UnitDirectory
	Identity       ports.IdentityGuard
	Outbox         ports.OutboxWriter
	Scheduler      ports.CloseScheduler
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	SweepBatchSize int
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	quorum := queries.QuorumUseCase{
		Ballots: deps.Ballots,
		Units:   deps.Units,
	}
	tallies := queries.TallyUseCase{
		Assemblies: deps.Assemblies,
		Ballots:    deps.Ballots,
		Units:      deps.Units,
	}
	assemblies := commands.AssemblyUseCase{
		Assemblies:  deps.Assemblies,
		Delegations: deps.Delegations,
		Quorum:      quorum,
		Tallies:     tallies,
		Outbox:      deps.Outbox,
		Scheduler:   deps.Scheduler,
		Clock:       deps.Clock,
		IDGen:       deps.IDGen,
		Logger:      deps.Logger,
	}
	ballots := commands.BallotUseCase{
		Assemblies:  deps.Assemblies,
		Ballots:     deps.Ballots,
		Delegations: deps.Delegations,
		Units:       deps.Units,
		Identity:    deps.Identity,
		Clock:       deps.Clock,
		IDGen:       deps.IDGen,
		Logger:      deps.Logger,
	}
	delegations := commands.DelegationUseCase{
		Delegations: deps.Delegations,
		Identity:    deps.Identity,
		Outbox:      deps.Outbox,
		Clock:       deps.Clock,
		IDGen:       deps.IDGen,
		Logger:      deps.Logger,
	}

	return Module{
		Handler: httpadapter.Handler{
			Assemblies:  assemblies,
			Ballots:     ballots,
			Delegations: delegations,
			Quorum:      quorum,
			Tallies:     tallies,
			Logger:      deps.Logger,
		},
		Assemblies:  assemblies,
		Ballots:     ballots,
		Delegations: delegations,
		DeferredCloser: workers.DeferredCloser{
			Assemblies: deps.Assemblies,
			Closer:     assemblies,
			Clock:      deps.Clock,
			BatchSize:  deps.SweepBatchSize,
			Logger:     deps.Logger,
		},
		DelegationExpirer: workers.DelegationExpirer{
			Delegations: deps.Delegations,
			Sweeper:     delegations,
			Clock:       deps.Clock,
			BatchSize:   deps.SweepBatchSize,
			Logger:      deps.Logger,
		},
	}
}

func NewInMemoryModule(scheduler ports.CloseScheduler, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Assemblies:  store,
		Ballots:     store,
		Delegations: store,
		Units:       store,
		Identity:    store,
		Outbox:      store,
		Scheduler:   scheduler,
		Clock:       store,
		IDGen:       store,
		Logger:      logger,
	})
	module.Store = store
	return module
}
