package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"concord/contexts/community-governance/assembly-engine/domain/entities"
	domainerrors "concord/contexts/community-governance/assembly-engine/domain/errors"
	"concord/contexts/community-governance/assembly-engine/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type dedupRecord struct {
	payloadHash string
	expiresAt   time.Time
}

type voteKey struct {
	ballotID string
	unitID   string
}

// Store is the in-memory adapter behind every repository port of the engine.
// All check-and-set transitions happen under one mutex, so the same racing
// guarantees hold as in the SQL adapter: exactly one caller wins a
// transition, the rest observe applied=false.
type Store struct {
	mu sync.RWMutex

	assemblies  map[string]entities.Assembly
	snapshots   map[string]entities.ClosureSnapshot
	ballots     map[string]entities.Ballot
	votes       map[voteKey]entities.UnitVote
	voteAudits  []entities.VoteAudit
	delegations map[string]entities.Delegation

	units          map[string]ports.UnitProjection
	adminOverrides map[string]bool

	outbox     map[string]outboxRecord
	eventDedup map[string]dedupRecord
}

func NewStore() *Store {
	return &Store{
		assemblies:     make(map[string]entities.Assembly),
		snapshots:      make(map[string]entities.ClosureSnapshot),
		ballots:        make(map[string]entities.Ballot),
		votes:          make(map[voteKey]entities.UnitVote),
		delegations:    make(map[string]entities.Delegation),
		units:          make(map[string]ports.UnitProjection),
		adminOverrides: make(map[string]bool),
		outbox:         make(map[string]outboxRecord),
		eventDedup:     make(map[string]dedupRecord),
	}
}

func (s *Store) SetUnit(unit ports.UnitProjection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[strings.TrimSpace(unit.UnitID)] = ports.UnitProjection{
		UnitID:      strings.TrimSpace(unit.UnitID),
		CommunityID: strings.TrimSpace(unit.CommunityID),
		OccupantID:  strings.TrimSpace(unit.OccupantID),
		Coefficient: unit.Coefficient,
	}
}

func (s *Store) SetAdminOverride(personID string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminOverrides[strings.TrimSpace(personID)] = enabled
}

func (s *Store) CreateAssembly(_ context.Context, assembly entities.Assembly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(assembly.AssemblyID)
	if _, ok := s.assemblies[key]; ok {
		return domainerrors.ErrConflict
	}
	s.assemblies[key] = assembly
	return nil
}

func (s *Store) GetAssembly(_ context.Context, assemblyID string) (entities.Assembly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assembly, ok := s.assemblies[strings.TrimSpace(assemblyID)]
	if !ok {
		return entities.Assembly{}, domainerrors.ErrAssemblyNotFound
	}
	return assembly, nil
}

func (s *Store) StartAssembly(_ context.Context, assemblyID string, openedAt time.Time) (entities.Assembly, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(assemblyID)
	assembly, ok := s.assemblies[key]
	if !ok {
		return entities.Assembly{}, false, domainerrors.ErrAssemblyNotFound
	}
	if !assembly.CanStart() {
		return assembly, false, nil
	}
	opened := openedAt.UTC()
	assembly.Status = entities.AssemblyStatusInProgress
	assembly.OpenedAt = &opened
	assembly.UpdatedAt = opened
	s.assemblies[key] = assembly
	return assembly, true, nil
}

func (s *Store) CancelAssembly(_ context.Context, assemblyID string, at time.Time) (entities.Assembly, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(assemblyID)
	assembly, ok := s.assemblies[key]
	if !ok {
		return entities.Assembly{}, false, domainerrors.ErrAssemblyNotFound
	}
	if !assembly.CanCancel() {
		return assembly, false, nil
	}
	assembly.Status = entities.AssemblyStatusCancelled
	assembly.UpdatedAt = at.UTC()
	s.assemblies[key] = assembly
	return assembly, true, nil
}

func (s *Store) ScheduleDeferredClose(_ context.Context, assemblyID string, dueAt time.Time, requestedAt time.Time, notes string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(assemblyID)
	assembly, ok := s.assemblies[key]
	if !ok {
		return false, domainerrors.ErrAssemblyNotFound
	}
	if !assembly.CanClose() {
		return false, nil
	}
	due := dueAt.UTC()
	assembly.CloseDueAt = &due
	assembly.PendingCloseNotes = strings.TrimSpace(notes)
	assembly.UpdatedAt = requestedAt.UTC()
	s.assemblies[key] = assembly
	return true, nil
}

func (s *Store) CloseAssembly(_ context.Context, snapshot entities.ClosureSnapshot) (entities.Assembly, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(snapshot.AssemblyID)
	assembly, ok := s.assemblies[key]
	if !ok {
		return entities.Assembly{}, false, domainerrors.ErrAssemblyNotFound
	}
	if !assembly.CanClose() {
		return assembly, false, nil
	}

	closedAt := snapshot.ClosedAt.UTC()
	participation := snapshot.ParticipationPct
	quorumMet := snapshot.QuorumMet
	assembly.Status = entities.AssemblyStatusClosed
	assembly.ClosedAt = &closedAt
	assembly.CloseDueAt = nil
	assembly.PendingCloseNotes = ""
	assembly.MeetingNotes = strings.TrimSpace(snapshot.MeetingNotes)
	assembly.FinalParticipationPct = &participation
	assembly.FinalQuorumMet = &quorumMet
	assembly.UpdatedAt = closedAt
	s.assemblies[key] = assembly
	s.snapshots[key] = snapshot
	return assembly, true, nil
}

func (s *Store) GetClosureSnapshot(_ context.Context, assemblyID string) (entities.ClosureSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[strings.TrimSpace(assemblyID)]
	if !ok {
		return entities.ClosureSnapshot{}, false, nil
	}
	return snapshot, true, nil
}

func (s *Store) ListAssembliesDueForClose(_ context.Context, now time.Time, limit int) ([]entities.Assembly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]entities.Assembly, 0)
	for _, assembly := range s.assemblies {
		if assembly.Status != entities.AssemblyStatusInProgress {
			continue
		}
		if assembly.CloseDueAt == nil || assembly.CloseDueAt.UTC().After(now.UTC()) {
			continue
		}
		items = append(items, assembly)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CloseDueAt.Before(*items[j].CloseDueAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) DeleteAssembly(_ context.Context, assemblyID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(assemblyID)
	assembly, ok := s.assemblies[key]
	if !ok {
		return false, domainerrors.ErrAssemblyNotFound
	}
	if !assembly.CanDelete() {
		return false, nil
	}

	delete(s.assemblies, key)
	delete(s.snapshots, key)
	for ballotID, ballot := range s.ballots {
		if ballot.AssemblyID != key {
			continue
		}
		delete(s.ballots, ballotID)
		for vk := range s.votes {
			if vk.ballotID == ballotID {
				delete(s.votes, vk)
			}
		}
	}
	for delegationID, delegation := range s.delegations {
		if delegation.AssemblyID == key {
			delete(s.delegations, delegationID)
		}
	}
	return true, nil
}

func (s *Store) CreateBallot(_ context.Context, ballot entities.Ballot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(ballot.BallotID)
	if _, ok := s.ballots[key]; ok {
		return domainerrors.ErrConflict
	}
	s.ballots[key] = ballot
	return nil
}

func (s *Store) GetBallot(_ context.Context, ballotID string) (entities.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ballot, ok := s.ballots[strings.TrimSpace(ballotID)]
	if !ok {
		return entities.Ballot{}, domainerrors.ErrBallotNotFound
	}
	return ballot, nil
}

func (s *Store) ListBallotsByAssembly(_ context.Context, assemblyID string) ([]entities.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Ballot, 0)
	for _, ballot := range s.ballots {
		if ballot.AssemblyID == strings.TrimSpace(assemblyID) {
			items = append(items, ballot)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) UpsertUnitVote(_ context.Context, vote entities.UnitVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[voteKey{
		ballotID: strings.TrimSpace(vote.BallotID),
		unitID:   strings.TrimSpace(vote.UnitID),
	}] = vote
	return nil
}

func (s *Store) ListVotesByBallot(_ context.Context, ballotID string) ([]entities.UnitVote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.UnitVote, 0)
	for key, vote := range s.votes {
		if key.ballotID == strings.TrimSpace(ballotID) {
			items = append(items, vote)
		}
	}
	sortVotesByCast(items)
	return items, nil
}

func (s *Store) ListVotesByAssembly(_ context.Context, assemblyID string) ([]entities.UnitVote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.UnitVote, 0)
	for key, vote := range s.votes {
		ballot, ok := s.ballots[key.ballotID]
		if !ok || ballot.AssemblyID != strings.TrimSpace(assemblyID) {
			continue
		}
		items = append(items, vote)
	}
	sortVotesByCast(items)
	return items, nil
}

func (s *Store) AppendVoteAudit(_ context.Context, audit entities.VoteAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voteAudits = append(s.voteAudits, audit)
	return nil
}

// ListVoteAudits is a test helper; production reads never touch the trail.
func (s *Store) ListVoteAudits(ballotID string) []entities.VoteAudit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.VoteAudit, 0)
	for _, audit := range s.voteAudits {
		if strings.TrimSpace(ballotID) == "" || audit.BallotID == strings.TrimSpace(ballotID) {
			items = append(items, audit)
		}
	}
	return items
}

func (s *Store) CreateDelegationIfAbsent(_ context.Context, delegation entities.Delegation, asOf time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.delegations {
		if existing.AssemblyID != delegation.AssemblyID || existing.UnitID != delegation.UnitID {
			continue
		}
		if existing.Blocking(asOf) {
			return false, nil
		}
	}
	s.delegations[strings.TrimSpace(delegation.DelegationID)] = delegation
	return true, nil
}

func (s *Store) GetDelegation(_ context.Context, delegationID string) (entities.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	delegation, ok := s.delegations[strings.TrimSpace(delegationID)]
	if !ok {
		return entities.Delegation{}, domainerrors.ErrDelegationNotFound
	}
	return delegation, nil
}

func (s *Store) SaveDelegation(_ context.Context, delegation entities.Delegation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(delegation.DelegationID)
	if _, ok := s.delegations[key]; !ok {
		return domainerrors.ErrDelegationNotFound
	}
	s.delegations[key] = delegation
	return nil
}

func (s *Store) FindBlockingDelegation(
	_ context.Context,
	assemblyID string,
	unitID string,
	asOf time.Time,
) (entities.Delegation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, delegation := range s.delegations {
		if delegation.AssemblyID != strings.TrimSpace(assemblyID) || delegation.UnitID != strings.TrimSpace(unitID) {
			continue
		}
		if delegation.Blocking(asOf) {
			return delegation, true, nil
		}
	}
	return entities.Delegation{}, false, nil
}

func (s *Store) ListDelegationsByAssembly(_ context.Context, assemblyID string) ([]entities.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Delegation, 0)
	for _, delegation := range s.delegations {
		if delegation.AssemblyID == strings.TrimSpace(assemblyID) {
			items = append(items, delegation)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) ListExpiredDelegations(_ context.Context, asOf time.Time, limit int) ([]entities.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]entities.Delegation, 0)
	for _, delegation := range s.delegations {
		if delegation.Status != entities.DelegationStatusPending && delegation.Status != entities.DelegationStatusActive {
			continue
		}
		if delegation.EffectiveStatus(asOf) != entities.DelegationStatusExpired {
			continue
		}
		items = append(items, delegation)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) UnitWeight(_ context.Context, communityID string, unitID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.units[strings.TrimSpace(unitID)]
	if !ok || unit.CommunityID != strings.TrimSpace(communityID) {
		return 0, domainerrors.ErrUnitNotFound
	}
	return unit.Coefficient, nil
}

func (s *Store) TotalWeight(_ context.Context, communityID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, unit := range s.units {
		if unit.CommunityID == strings.TrimSpace(communityID) {
			total += unit.Coefficient
		}
	}
	return total, nil
}

func (s *Store) ListUnits(_ context.Context, communityID string) ([]ports.UnitProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]ports.UnitProjection, 0)
	for _, unit := range s.units {
		if unit.CommunityID == strings.TrimSpace(communityID) {
			items = append(items, unit)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UnitID < items[j].UnitID
	})
	return items, nil
}

func (s *Store) IsRegisteredOccupant(_ context.Context, unitID string, personID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.units[strings.TrimSpace(unitID)]
	if !ok {
		return false, nil
	}
	return unit.OccupantID == strings.TrimSpace(personID), nil
}

func (s *Store) HasAdminOverride(_ context.Context, personID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adminOverrides[strings.TrimSpace(personID)], nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) ReserveEvent(
	_ context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(eventID)
	existing, ok := s.eventDedup[key]
	if ok {
		if !existing.expiresAt.IsZero() && time.Now().UTC().After(existing.expiresAt.UTC()) {
			delete(s.eventDedup, key)
		} else {
			if existing.payloadHash != strings.TrimSpace(payloadHash) {
				return false, domainerrors.ErrConflict
			}
			return true, nil
		}
	}

	s.eventDedup[key] = dedupRecord{
		payloadHash: strings.TrimSpace(payloadHash),
		expiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func sortVotesByCast(items []entities.UnitVote) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CastAt.Before(items[j].CastAt)
	})
}
