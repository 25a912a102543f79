package commands

import (
	"context"
	"fmt"
	"testing"
	"time"

	"concord/contexts/community-governance/assembly-engine/adapters/memory"
	"concord/contexts/community-governance/assembly-engine/application/queries"
	"concord/contexts/community-governance/assembly-engine/domain/entities"
	"concord/contexts/community-governance/assembly-engine/ports"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type seqIDGen struct {
	n int
}

func (g *seqIDGen) NewID(context.Context) (string, error) {
	g.n++
	return fmt.Sprintf("id-%04d", g.n), nil
}

type scheduledClose struct {
	assemblyID string
	after      time.Duration
}

type captureScheduler struct {
	calls []scheduledClose
}

func (s *captureScheduler) ScheduleClose(_ context.Context, assemblyID string, after time.Duration) error {
	s.calls = append(s.calls, scheduledClose{assemblyID: assemblyID, after: after})
	return nil
}

// engineFixture wires every use case over the in-memory store with a
// controllable clock, mirroring how the composition root wires production
// adapters.
type engineFixture struct {
	store       *memory.Store
	clock       *fixedClock
	scheduler   *captureScheduler
	assemblies  AssemblyUseCase
	ballots     BallotUseCase
	delegations DelegationUseCase
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	idgen := &seqIDGen{}
	scheduler := &captureScheduler{}

	quorum := queries.QuorumUseCase{Ballots: store, Units: store}
	tallies := queries.TallyUseCase{Assemblies: store, Ballots: store, Units: store}

	return &engineFixture{
		store:     store,
		clock:     clock,
		scheduler: scheduler,
		assemblies: AssemblyUseCase{
			Assemblies:  store,
			Delegations: store,
			Quorum:      quorum,
			Tallies:     tallies,
			Outbox:      store,
			Scheduler:   scheduler,
			Clock:       clock,
			IDGen:       idgen,
		},
		ballots: BallotUseCase{
			Assemblies:  store,
			Ballots:     store,
			Delegations: store,
			Units:       store,
			Identity:    store,
			Clock:       clock,
			IDGen:       idgen,
		},
		delegations: DelegationUseCase{
			Delegations: store,
			Identity:    store,
			Outbox:      store,
			Clock:       clock,
			IDGen:       idgen,
		},
	}
}

func (f *engineFixture) seedUnit(unitID, occupantID string, coefficient float64) {
	f.store.SetUnit(ports.UnitProjection{
		UnitID:      unitID,
		CommunityID: "community-1",
		OccupantID:  occupantID,
		Coefficient: coefficient,
	})
}

func (f *engineFixture) scheduleAssembly(t *testing.T, quorumPct int) entities.Assembly {
	t.Helper()
	assembly, err := f.assemblies.Schedule(context.Background(), ScheduleAssemblyCommand{
		CommunityID:       "community-1",
		Title:             "Quarterly assembly",
		Type:              entities.AssemblyTypeOrdinary,
		ScheduledAt:       f.clock.Now().Add(24 * time.Hour),
		RequiredQuorumPct: quorumPct,
	})
	if err != nil {
		t.Fatalf("schedule assembly: %v", err)
	}
	return assembly
}

func (f *engineFixture) startAssembly(t *testing.T, quorumPct int) entities.Assembly {
	t.Helper()
	assembly := f.scheduleAssembly(t, quorumPct)
	started, err := f.assemblies.Start(context.Background(), assembly.AssemblyID)
	if err != nil {
		t.Fatalf("start assembly: %v", err)
	}
	return started
}

func (f *engineFixture) openBallot(t *testing.T, assemblyID string, labels ...string) entities.Ballot {
	t.Helper()
	ballot, err := f.ballots.OpenBallot(context.Background(), OpenBallotCommand{
		AssemblyID:   assemblyID,
		Question:     "Approve the annual budget?",
		OptionLabels: labels,
	})
	if err != nil {
		t.Fatalf("open ballot: %v", err)
	}
	return ballot
}

func (f *engineFixture) castVote(t *testing.T, ballotID, unitID, optionID, castBy string) {
	t.Helper()
	if _, err := f.ballots.CastVote(context.Background(), CastVoteCommand{
		BallotID: ballotID,
		UnitID:   unitID,
		OptionID: optionID,
		CastBy:   castBy,
	}); err != nil {
		t.Fatalf("cast vote for unit %s: %v", unitID, err)
	}
}

func (f *engineFixture) pendingEvents(t *testing.T, eventType string) []ports.OutboxMessage {
	t.Helper()
	rows, err := f.store.ListPendingOutbox(context.Background(), 100)
	if err != nil {
		t.Fatalf("list pending outbox: %v", err)
	}
	matched := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		if row.EventType == eventType {
			matched = append(matched, row)
		}
	}
	return matched
}
