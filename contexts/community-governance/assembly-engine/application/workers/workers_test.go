package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"concord/contexts/community-governance/assembly-engine/adapters/memory"
	"concord/contexts/community-governance/assembly-engine/domain/entities"
	"concord/contexts/community-governance/assembly-engine/ports"
)

type stubClock struct {
	now time.Time
}

func (c stubClock) Now() time.Time { return c.now }

type recordingCloser struct {
	assemblyIDs []string
	err         error
}

func (c *recordingCloser) CompleteDeferredClose(_ context.Context, assemblyID string) error {
	if c.err != nil {
		return c.err
	}
	c.assemblyIDs = append(c.assemblyIDs, assemblyID)
	return nil
}

type recordingSweeper struct {
	assemblyIDs []string
}

func (s *recordingSweeper) SweepExpired(_ context.Context, assemblyID string) error {
	s.assemblyIDs = append(s.assemblyIDs, assemblyID)
	return nil
}

type recordingPublisher struct {
	topics []string
	events []ports.EventEnvelope
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func seedInProgressAssembly(t *testing.T, store *memory.Store, assemblyID string, dueAt *time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateAssembly(ctx, entities.Assembly{
		AssemblyID:        assemblyID,
		CommunityID:       "community-1",
		Title:             "Sweep target",
		Type:              entities.AssemblyTypeOrdinary,
		Status:            entities.AssemblyStatusScheduled,
		RequiredQuorumPct: 50,
	}); err != nil {
		t.Fatalf("create assembly: %v", err)
	}
	if _, _, err := store.StartAssembly(ctx, assemblyID, time.Now().UTC()); err != nil {
		t.Fatalf("start assembly: %v", err)
	}
	if dueAt != nil {
		if _, err := store.ScheduleDeferredClose(ctx, assemblyID, *dueAt, time.Now().UTC(), ""); err != nil {
			t.Fatalf("schedule deferred close: %v", err)
		}
	}
}

func TestDeferredCloserClosesOnlyDueAssemblies(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	due := now.Add(-time.Minute)
	notYet := now.Add(time.Hour)
	seedInProgressAssembly(t, store, "assembly-due", &due)
	seedInProgressAssembly(t, store, "assembly-later", &notYet)
	seedInProgressAssembly(t, store, "assembly-open-ended", nil)

	closer := &recordingCloser{}
	job := DeferredCloser{
		Assemblies: store,
		Closer:     closer,
		Clock:      stubClock{now: now},
	}
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if len(closer.assemblyIDs) != 1 || closer.assemblyIDs[0] != "assembly-due" {
		t.Fatalf("closed = %v, want only assembly-due", closer.assemblyIDs)
	}
}

func TestDeferredCloserPropagatesCloseFailure(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(-time.Minute)
	seedInProgressAssembly(t, store, "assembly-due", &due)

	wantErr := errors.New("close failed")
	job := DeferredCloser{
		Assemblies: store,
		Closer:     &recordingCloser{err: wantErr},
		Clock:      stubClock{now: now},
	}
	if err := job.RunOnce(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want the close failure surfaced", err)
	}
}

func TestDelegationExpirerSweepsOncePerAssembly(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	// Two stale rows in the same assembly, one in another.
	for i, row := range []entities.Delegation{
		{DelegationID: "d-1", AssemblyID: "assembly-1", UnitID: "unit-a", Status: entities.DelegationStatusActive, ExpiresAt: &past},
		{DelegationID: "d-2", AssemblyID: "assembly-1", UnitID: "unit-b", Status: entities.DelegationStatusPending, ExpiresAt: &past},
		{DelegationID: "d-3", AssemblyID: "assembly-2", UnitID: "unit-c", Status: entities.DelegationStatusActive, ExpiresAt: &past},
	} {
		row.CreatedAt = now.Add(time.Duration(i) * time.Second)
		if _, err := store.CreateDelegationIfAbsent(context.Background(), row, now); err != nil {
			t.Fatalf("seed delegation: %v", err)
		}
	}

	sweeper := &recordingSweeper{}
	job := DelegationExpirer{
		Delegations: store,
		Sweeper:     sweeper,
		Clock:       stubClock{now: now},
	}
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if len(sweeper.assemblyIDs) != 2 {
		t.Fatalf("sweep calls = %v, want one per assembly", sweeper.assemblyIDs)
	}
}

func TestDelegationExpirerNoStaleRowsIsQuiet(t *testing.T) {
	store := memory.NewStore()
	sweeper := &recordingSweeper{}
	job := DelegationExpirer{
		Delegations: store,
		Sweeper:     sweeper,
		Clock:       stubClock{now: time.Now().UTC()},
	}
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(sweeper.assemblyIDs) != 0 {
		t.Fatalf("sweep calls = %v, want none", sweeper.assemblyIDs)
	}
}

func TestOutboxRelayPublishesAndMarks(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	data, _ := json.Marshal(map[string]string{"assembly_id": "assembly-1"})
	for i, eventType := range []string{"assembly.created", "assembly.closed"} {
		if err := store.AppendOutbox(ctx, ports.EventEnvelope{
			EventID:       "event-" + eventType,
			EventType:     eventType,
			OccurredAt:    now.Add(time.Duration(i) * time.Second),
			SourceService: "assembly-engine",
			SchemaVersion: 1,
			PartitionKey:  "assembly-1",
			Data:          data,
		}); err != nil {
			t.Fatalf("append outbox: %v", err)
		}
	}

	publisher := &recordingPublisher{}
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     stubClock{now: now},
	}
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if len(publisher.topics) != 2 {
		t.Fatalf("published = %v, want both rows", publisher.topics)
	}
	if publisher.topics[0] != "assembly.created" || publisher.topics[1] != "assembly.closed" {
		t.Fatalf("topics = %v, want creation order preserved", publisher.topics)
	}

	// Published rows must not come back on the next cycle.
	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after relay = %d, want 0", len(pending))
	}
}

func TestOutboxRelayStopsOnPublishFailure(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	if err := store.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:    "event-1",
		EventType:  "assembly.created",
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("append outbox: %v", err)
	}

	wantErr := errors.New("broker unavailable")
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: &recordingPublisher{err: wantErr},
	}
	if err := relay.RunOnce(ctx); !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want publish failure surfaced", err)
	}

	// The row stays pending for the next cycle.
	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want the failed row retained", len(pending))
	}
}
