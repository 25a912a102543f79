package ports

import (
	"context"
	"time"

	"concord/contexts/community-governance/assembly-engine/domain/entities"
	contractsv1 "concord/contracts/gen/events/v1"
)

// AssemblyRepository owns assembly state. Every status transition is an
// atomic check-and-set: the bool result reports whether this caller won the
// transition, so racing triggers (manual close vs deferred close) resolve to
// exactly one winner without surfacing an error to the loser.
type AssemblyRepository interface {
	CreateAssembly(ctx context.Context, assembly entities.Assembly) error
	GetAssembly(ctx context.Context, assemblyID string) (entities.Assembly, error)
	// StartAssembly applies scheduled -> in_progress and sets opened_at.
	StartAssembly(ctx context.Context, assemblyID string, openedAt time.Time) (entities.Assembly, bool, error)
	// CancelAssembly applies scheduled -> cancelled.
	CancelAssembly(ctx context.Context, assemblyID string, at time.Time) (entities.Assembly, bool, error)
	// ScheduleDeferredClose records the due time and pending notes, only
	// while the assembly is still in_progress. requestedAt stamps updated_at.
	ScheduleDeferredClose(ctx context.Context, assemblyID string, dueAt time.Time, requestedAt time.Time, notes string) (bool, error)
	// CloseAssembly applies in_progress -> closed and freezes the snapshot
	// (participation, quorum flag, tallies, notes, closed_at) atomically
	// with the transition.
	CloseAssembly(ctx context.Context, snapshot entities.ClosureSnapshot) (entities.Assembly, bool, error)
	GetClosureSnapshot(ctx context.Context, assemblyID string) (entities.ClosureSnapshot, bool, error)
	ListAssembliesDueForClose(ctx context.Context, now time.Time, limit int) ([]entities.Assembly, error)
	// DeleteAssembly cascades ballots, votes and delegations; callers must
	// have checked CanDelete first, the repository re-checks regardless.
	DeleteAssembly(ctx context.Context, assemblyID string) (bool, error)
}

type BallotRepository interface {
	CreateBallot(ctx context.Context, ballot entities.Ballot) error
	GetBallot(ctx context.Context, ballotID string) (entities.Ballot, error)
	ListBallotsByAssembly(ctx context.Context, assemblyID string) ([]entities.Ballot, error)
	// UpsertUnitVote writes the vote keyed by (ballot, unit); an existing
	// vote for the pair is replaced, last cast_at wins.
	UpsertUnitVote(ctx context.Context, vote entities.UnitVote) error
	ListVotesByBallot(ctx context.Context, ballotID string) ([]entities.UnitVote, error)
	ListVotesByAssembly(ctx context.Context, assemblyID string) ([]entities.UnitVote, error)
	AppendVoteAudit(ctx context.Context, audit entities.VoteAudit) error
}

type DelegationRepository interface {
	// CreateDelegationIfAbsent inserts only when no blocking (effective
	// pending/active at asOf) delegation exists for the same
	// (assembly, unit); returns false when one does.
	CreateDelegationIfAbsent(ctx context.Context, delegation entities.Delegation, asOf time.Time) (bool, error)
	GetDelegation(ctx context.Context, delegationID string) (entities.Delegation, error)
	SaveDelegation(ctx context.Context, delegation entities.Delegation) error
	FindBlockingDelegation(ctx context.Context, assemblyID string, unitID string, asOf time.Time) (entities.Delegation, bool, error)
	ListDelegationsByAssembly(ctx context.Context, assemblyID string) ([]entities.Delegation, error)
	// ListExpiredDelegations returns stored pending/active rows whose
	// expires_at has passed, for the sweep worker to correct.
	ListExpiredDelegations(ctx context.Context, asOf time.Time, limit int) ([]entities.Delegation, error)
}

// UnitProjection mirrors the unit directory owned by the surrounding
// application; the engine never mutates it.
type UnitProjection struct {
	UnitID      string
	CommunityID string
	OccupantID  string
	Coefficient float64
}

type UnitDirectory interface {
	UnitWeight(ctx context.Context, communityID string, unitID string) (float64, error)
	TotalWeight(ctx context.Context, communityID string) (float64, error)
	ListUnits(ctx context.Context, communityID string) ([]UnitProjection, error)
}

// IdentityGuard is the identity/permission collaborator. Both answers are
// opaque booleans; the engine applies no policy of its own on top.
type IdentityGuard interface {
	IsRegisteredOccupant(ctx context.Context, unitID string, personID string) (bool, error)
	HasAdminOverride(ctx context.Context, personID string) (bool, error)
}

// CloseScheduler is the deferred-invocation collaborator: fire the close
// path for an assembly after a delay, with at-least-once delivery. Double
// firing is harmless because the close transition is a check-and-set.
type CloseScheduler interface {
	ScheduleClose(ctx context.Context, assemblyID string, after time.Duration) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
}
