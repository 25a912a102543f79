package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"concord/contexts/community-governance/assembly-engine/domain/entities"
	domainerrors "concord/contexts/community-governance/assembly-engine/domain/errors"
	"concord/contexts/community-governance/assembly-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

// Repository is the SQL adapter behind every repository port of the engine.
// Status transitions are guarded UPDATE statements: the WHERE clause carries
// the expected current status and RowsAffected tells the caller whether it
// won the transition.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreateAssembly(ctx context.Context, assembly entities.Assembly) error {
	row := assemblyModelFromEntity(assembly)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return err
	}
	return nil
}

func (r *Repository) GetAssembly(ctx context.Context, assemblyID string) (entities.Assembly, error) {
	var row assemblyModel
	err := r.db.WithContext(ctx).
		Where("assembly_id = ?", strings.TrimSpace(assemblyID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Assembly{}, domainerrors.ErrAssemblyNotFound
		}
		return entities.Assembly{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) StartAssembly(ctx context.Context, assemblyID string, openedAt time.Time) (entities.Assembly, bool, error) {
	return r.transition(ctx, assemblyID, entities.AssemblyStatusScheduled, map[string]any{
		"status":     string(entities.AssemblyStatusInProgress),
		"opened_at":  openedAt.UTC(),
		"updated_at": openedAt.UTC(),
	})
}

func (r *Repository) CancelAssembly(ctx context.Context, assemblyID string, at time.Time) (entities.Assembly, bool, error) {
	return r.transition(ctx, assemblyID, entities.AssemblyStatusScheduled, map[string]any{
		"status":     string(entities.AssemblyStatusCancelled),
		"updated_at": at.UTC(),
	})
}

func (r *Repository) ScheduleDeferredClose(ctx context.Context, assemblyID string, dueAt time.Time, requestedAt time.Time, notes string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&assemblyModel{}).
		Where("assembly_id = ? AND status = ?",
			strings.TrimSpace(assemblyID), string(entities.AssemblyStatusInProgress)).
		Updates(map[string]any{
			"close_due_at":        dueAt.UTC(),
			"pending_close_notes": strings.TrimSpace(notes),
			"updated_at":          requestedAt.UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetAssembly(ctx, assemblyID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// CloseAssembly performs the one transition that freezes results. The status
// flip and the snapshot insert share a transaction, so a racing closer either
// sees RowsAffected zero or a committed snapshot, never a half state.
func (r *Repository) CloseAssembly(ctx context.Context, snapshot entities.ClosureSnapshot) (entities.Assembly, bool, error) {
	assemblyID := strings.TrimSpace(snapshot.AssemblyID)
	applied := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closedAt := snapshot.ClosedAt.UTC()
		result := tx.Model(&assemblyModel{}).
			Where("assembly_id = ? AND status = ?", assemblyID, string(entities.AssemblyStatusInProgress)).
			Updates(map[string]any{
				"status":                  string(entities.AssemblyStatusClosed),
				"closed_at":               closedAt,
				"close_due_at":            nil,
				"pending_close_notes":     "",
				"meeting_notes":           strings.TrimSpace(snapshot.MeetingNotes),
				"final_participation_pct": snapshot.ParticipationPct,
				"final_quorum_met":        snapshot.QuorumMet,
				"updated_at":              closedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		tallies, err := json.Marshal(snapshot.Tallies)
		if err != nil {
			return err
		}
		row := closureSnapshotModel{
			AssemblyID:       assemblyID,
			ParticipationPct: snapshot.ParticipationPct,
			QuorumMet:        snapshot.QuorumMet,
			MeetingNotes:     strings.TrimSpace(snapshot.MeetingNotes),
			ClosedAt:         closedAt,
			Tallies:          tallies,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return entities.Assembly{}, false, err
	}

	assembly, err := r.GetAssembly(ctx, assemblyID)
	if err != nil {
		return entities.Assembly{}, false, err
	}
	return assembly, applied, nil
}

func (r *Repository) GetClosureSnapshot(ctx context.Context, assemblyID string) (entities.ClosureSnapshot, bool, error) {
	var row closureSnapshotModel
	err := r.db.WithContext(ctx).
		Where("assembly_id = ?", strings.TrimSpace(assemblyID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ClosureSnapshot{}, false, nil
		}
		return entities.ClosureSnapshot{}, false, err
	}

	var tallies []entities.BallotTally
	if len(row.Tallies) > 0 {
		if err := json.Unmarshal(row.Tallies, &tallies); err != nil {
			return entities.ClosureSnapshot{}, false, err
		}
	}
	return entities.ClosureSnapshot{
		AssemblyID:       row.AssemblyID,
		ParticipationPct: row.ParticipationPct,
		QuorumMet:        row.QuorumMet,
		MeetingNotes:     row.MeetingNotes,
		ClosedAt:         row.ClosedAt.UTC(),
		Tallies:          tallies,
	}, true, nil
}

func (r *Repository) ListAssembliesDueForClose(ctx context.Context, now time.Time, limit int) ([]entities.Assembly, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []assemblyModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND close_due_at IS NOT NULL AND close_due_at <= ?",
			string(entities.AssemblyStatusInProgress), now.UTC()).
		Order("close_due_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]entities.Assembly, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) DeleteAssembly(ctx context.Context, assemblyID string) (bool, error) {
	key := strings.TrimSpace(assemblyID)
	applied := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row assemblyModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("assembly_id = ?", key).
			First(&row).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrAssemblyNotFound
			}
			return err
		}
		if !row.toEntity().CanDelete() {
			return nil
		}

		var ballotIDs []string
		if err := tx.Model(&ballotModel{}).
			Where("assembly_id = ?", key).
			Pluck("ballot_id", &ballotIDs).
			Error; err != nil {
			return err
		}
		if len(ballotIDs) > 0 {
			if err := tx.Where("ballot_id IN ?", ballotIDs).Delete(&unitVoteModel{}).Error; err != nil {
				return err
			}
			if err := tx.Where("ballot_id IN ?", ballotIDs).Delete(&ballotOptionModel{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("assembly_id = ?", key).Delete(&ballotModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("assembly_id = ?", key).Delete(&delegationModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("assembly_id = ?", key).Delete(&closureSnapshotModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("assembly_id = ?", key).Delete(&assemblyModel{}).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *Repository) transition(
	ctx context.Context,
	assemblyID string,
	fromStatus entities.AssemblyStatus,
	updates map[string]any,
) (entities.Assembly, bool, error) {
	result := r.db.WithContext(ctx).
		Model(&assemblyModel{}).
		Where("assembly_id = ? AND status = ?", strings.TrimSpace(assemblyID), string(fromStatus)).
		Updates(updates)
	if result.Error != nil {
		return entities.Assembly{}, false, result.Error
	}

	assembly, err := r.GetAssembly(ctx, assemblyID)
	if err != nil {
		return entities.Assembly{}, false, err
	}
	return assembly, result.RowsAffected > 0, nil
}

func (r *Repository) CreateBallot(ctx context.Context, ballot entities.Ballot) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := ballotModel{
			BallotID:   strings.TrimSpace(ballot.BallotID),
			AssemblyID: strings.TrimSpace(ballot.AssemblyID),
			Question:   strings.TrimSpace(ballot.Question),
			CreatedAt:  ballot.CreatedAt.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrConflict
			}
			return err
		}
		for _, option := range ballot.Options {
			optionRow := ballotOptionModel{
				OptionID: strings.TrimSpace(option.OptionID),
				BallotID: row.BallotID,
				Label:    strings.TrimSpace(option.Label),
				Position: option.Position,
			}
			if err := tx.Create(&optionRow).Error; err != nil {
				if isUniqueViolation(err) {
					return domainerrors.ErrConflict
				}
				return err
			}
		}
		return nil
	})
}

func (r *Repository) GetBallot(ctx context.Context, ballotID string) (entities.Ballot, error) {
	var row ballotModel
	err := r.db.WithContext(ctx).
		Where("ballot_id = ?", strings.TrimSpace(ballotID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Ballot{}, domainerrors.ErrBallotNotFound
		}
		return entities.Ballot{}, err
	}
	return r.hydrateBallot(ctx, row)
}

func (r *Repository) ListBallotsByAssembly(ctx context.Context, assemblyID string) ([]entities.Ballot, error) {
	var rows []ballotModel
	if err := r.db.WithContext(ctx).
		Where("assembly_id = ?", strings.TrimSpace(assemblyID)).
		Order("created_at ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]entities.Ballot, 0, len(rows))
	for _, row := range rows {
		ballot, err := r.hydrateBallot(ctx, row)
		if err != nil {
			return nil, err
		}
		items = append(items, ballot)
	}
	return items, nil
}

func (r *Repository) hydrateBallot(ctx context.Context, row ballotModel) (entities.Ballot, error) {
	var optionRows []ballotOptionModel
	if err := r.db.WithContext(ctx).
		Where("ballot_id = ?", row.BallotID).
		Order("position ASC").
		Find(&optionRows).
		Error; err != nil {
		return entities.Ballot{}, err
	}

	ballot := entities.Ballot{
		BallotID:   row.BallotID,
		AssemblyID: row.AssemblyID,
		Question:   row.Question,
		Options:    make([]entities.BallotOption, 0, len(optionRows)),
		CreatedAt:  row.CreatedAt.UTC(),
	}
	for _, optionRow := range optionRows {
		ballot.Options = append(ballot.Options, entities.BallotOption{
			OptionID: optionRow.OptionID,
			Label:    optionRow.Label,
			Position: optionRow.Position,
		})
	}
	return ballot, nil
}

func (r *Repository) UpsertUnitVote(ctx context.Context, vote entities.UnitVote) error {
	row := unitVoteModel{
		BallotID: strings.TrimSpace(vote.BallotID),
		UnitID:   strings.TrimSpace(vote.UnitID),
		OptionID: strings.TrimSpace(vote.OptionID),
		CastBy:   strings.TrimSpace(vote.CastBy),
		CastAt:   vote.CastAt.UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "ballot_id"}, {Name: "unit_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"option_id": row.OptionID,
				"cast_by":   row.CastBy,
				"cast_at":   row.CastAt,
			}),
		}).
		Create(&row).
		Error
}

func (r *Repository) ListVotesByBallot(ctx context.Context, ballotID string) ([]entities.UnitVote, error) {
	var rows []unitVoteModel
	if err := r.db.WithContext(ctx).
		Where("ballot_id = ?", strings.TrimSpace(ballotID)).
		Order("cast_at ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	return unitVotesFromModels(rows), nil
}

func (r *Repository) ListVotesByAssembly(ctx context.Context, assemblyID string) ([]entities.UnitVote, error) {
	var rows []unitVoteModel
	if err := r.db.WithContext(ctx).
		Joins("JOIN governance_ballots ON governance_ballots.ballot_id = governance_unit_votes.ballot_id").
		Where("governance_ballots.assembly_id = ?", strings.TrimSpace(assemblyID)).
		Order("governance_unit_votes.cast_at ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	return unitVotesFromModels(rows), nil
}

func (r *Repository) AppendVoteAudit(ctx context.Context, audit entities.VoteAudit) error {
	row := voteAuditModel{
		AuditID:  strings.TrimSpace(audit.AuditID),
		BallotID: strings.TrimSpace(audit.BallotID),
		UnitID:   strings.TrimSpace(audit.UnitID),
		OptionID: strings.TrimSpace(audit.OptionID),
		CastBy:   strings.TrimSpace(audit.CastBy),
		CastAt:   audit.CastAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return err
	}
	return nil
}

// CreateDelegationIfAbsent relies on a partial unique index over
// (assembly_id, unit_id) WHERE status IN ('pending','active'); the insert
// first demotes any lazily-expired blocker so the index reflects effective
// statuses.
func (r *Repository) CreateDelegationIfAbsent(ctx context.Context, delegation entities.Delegation, asOf time.Time) (bool, error) {
	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&delegationModel{}).
			Where("assembly_id = ? AND unit_id = ? AND status IN ? AND expires_at IS NOT NULL AND expires_at <= ?",
				strings.TrimSpace(delegation.AssemblyID),
				strings.TrimSpace(delegation.UnitID),
				[]string{string(entities.DelegationStatusPending), string(entities.DelegationStatusActive)},
				asOf.UTC()).
			Updates(map[string]any{
				"status":     string(entities.DelegationStatusExpired),
				"updated_at": asOf.UTC(),
			}).Error; err != nil {
			return err
		}

		row := delegationModelFromEntity(delegation)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return nil
			}
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *Repository) GetDelegation(ctx context.Context, delegationID string) (entities.Delegation, error) {
	var row delegationModel
	err := r.db.WithContext(ctx).
		Where("delegation_id = ?", strings.TrimSpace(delegationID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Delegation{}, domainerrors.ErrDelegationNotFound
		}
		return entities.Delegation{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) SaveDelegation(ctx context.Context, delegation entities.Delegation) error {
	row := delegationModelFromEntity(delegation)
	result := r.db.WithContext(ctx).
		Model(&delegationModel{}).
		Where("delegation_id = ?", row.DelegationID).
		Updates(map[string]any{
			"status":     row.Status,
			"expires_at": row.ExpiresAt,
			"notes":      row.Notes,
			"updated_at": row.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrDelegationNotFound
	}
	return nil
}

func (r *Repository) FindBlockingDelegation(
	ctx context.Context,
	assemblyID string,
	unitID string,
	asOf time.Time,
) (entities.Delegation, bool, error) {
	var row delegationModel
	err := r.db.WithContext(ctx).
		Where("assembly_id = ? AND unit_id = ? AND status IN ? AND (expires_at IS NULL OR expires_at > ?)",
			strings.TrimSpace(assemblyID),
			strings.TrimSpace(unitID),
			[]string{string(entities.DelegationStatusPending), string(entities.DelegationStatusActive)},
			asOf.UTC()).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Delegation{}, false, nil
		}
		return entities.Delegation{}, false, err
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListDelegationsByAssembly(ctx context.Context, assemblyID string) ([]entities.Delegation, error) {
	var rows []delegationModel
	if err := r.db.WithContext(ctx).
		Where("assembly_id = ?", strings.TrimSpace(assemblyID)).
		Order("created_at ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]entities.Delegation, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) ListExpiredDelegations(ctx context.Context, asOf time.Time, limit int) ([]entities.Delegation, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []delegationModel
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at <= ?",
			[]string{string(entities.DelegationStatusPending), string(entities.DelegationStatusActive)},
			asOf.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]entities.Delegation, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) UnitWeight(ctx context.Context, communityID string, unitID string) (float64, error) {
	var row unitModel
	err := r.db.WithContext(ctx).
		Where("unit_id = ? AND community_id = ?", strings.TrimSpace(unitID), strings.TrimSpace(communityID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domainerrors.ErrUnitNotFound
		}
		return 0, err
	}
	return row.Coefficient, nil
}

func (r *Repository) TotalWeight(ctx context.Context, communityID string) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&unitModel{}).
		Where("community_id = ?", strings.TrimSpace(communityID)).
		Select("COALESCE(SUM(coefficient), 0)").
		Scan(&total).
		Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *Repository) ListUnits(ctx context.Context, communityID string) ([]ports.UnitProjection, error) {
	var rows []unitModel
	if err := r.db.WithContext(ctx).
		Where("community_id = ?", strings.TrimSpace(communityID)).
		Order("unit_id ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.UnitProjection, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.UnitProjection{
			UnitID:      row.UnitID,
			CommunityID: row.CommunityID,
			OccupantID:  row.OccupantID,
			Coefficient: row.Coefficient,
		})
	}
	return items, nil
}

func (r *Repository) IsRegisteredOccupant(ctx context.Context, unitID string, personID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&unitModel{}).
		Where("unit_id = ? AND occupant_id = ?", strings.TrimSpace(unitID), strings.TrimSpace(personID)).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) HasAdminOverride(ctx context.Context, personID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&adminOverrideModel{}).
		Where("person_id = ? AND enabled", strings.TrimSpace(personID)).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "outbox_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return createResult.Error
	}
	if createResult.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).
		Error; err != nil {
		return err
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}

	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return false, createResult.Error
	}
	if createResult.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash").
		Where("event_id = ?", row.EventID).
		First(&existing).
		Error; err != nil {
		return false, err
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

type assemblyModel struct {
	AssemblyID            string     `gorm:"column:assembly_id;primaryKey"`
	CommunityID           string     `gorm:"column:community_id"`
	Title                 string     `gorm:"column:title"`
	Description           string     `gorm:"column:description"`
	Type                  string     `gorm:"column:assembly_type"`
	Status                string     `gorm:"column:status"`
	ScheduledAt           time.Time  `gorm:"column:scheduled_at"`
	RequiredQuorumPct     int        `gorm:"column:required_quorum_pct"`
	OpenedAt              *time.Time `gorm:"column:opened_at"`
	ClosedAt              *time.Time `gorm:"column:closed_at"`
	CloseDueAt            *time.Time `gorm:"column:close_due_at"`
	PendingCloseNotes     string     `gorm:"column:pending_close_notes"`
	MeetingNotes          string     `gorm:"column:meeting_notes"`
	FinalParticipationPct *int       `gorm:"column:final_participation_pct"`
	FinalQuorumMet        *bool      `gorm:"column:final_quorum_met"`
	CreatedAt             time.Time  `gorm:"column:created_at"`
	UpdatedAt             time.Time  `gorm:"column:updated_at"`
}

func (assemblyModel) TableName() string {
	return "governance_assemblies"
}

func assemblyModelFromEntity(item entities.Assembly) assemblyModel {
	return assemblyModel{
		AssemblyID:            strings.TrimSpace(item.AssemblyID),
		CommunityID:           strings.TrimSpace(item.CommunityID),
		Title:                 strings.TrimSpace(item.Title),
		Description:           strings.TrimSpace(item.Description),
		Type:                  string(item.Type),
		Status:                string(item.Status),
		ScheduledAt:           item.ScheduledAt.UTC(),
		RequiredQuorumPct:     item.RequiredQuorumPct,
		OpenedAt:              normalizeOptionalTime(item.OpenedAt),
		ClosedAt:              normalizeOptionalTime(item.ClosedAt),
		CloseDueAt:            normalizeOptionalTime(item.CloseDueAt),
		PendingCloseNotes:     strings.TrimSpace(item.PendingCloseNotes),
		MeetingNotes:          strings.TrimSpace(item.MeetingNotes),
		FinalParticipationPct: item.FinalParticipationPct,
		FinalQuorumMet:        item.FinalQuorumMet,
		CreatedAt:             item.CreatedAt.UTC(),
		UpdatedAt:             item.UpdatedAt.UTC(),
	}
}

func (m assemblyModel) toEntity() entities.Assembly {
	return entities.Assembly{
		AssemblyID:            m.AssemblyID,
		CommunityID:           m.CommunityID,
		Title:                 m.Title,
		Description:           m.Description,
		Type:                  entities.AssemblyType(m.Type),
		Status:                entities.AssemblyStatus(m.Status),
		ScheduledAt:           m.ScheduledAt.UTC(),
		RequiredQuorumPct:     m.RequiredQuorumPct,
		OpenedAt:              normalizeOptionalTime(m.OpenedAt),
		ClosedAt:              normalizeOptionalTime(m.ClosedAt),
		CloseDueAt:            normalizeOptionalTime(m.CloseDueAt),
		PendingCloseNotes:     m.PendingCloseNotes,
		MeetingNotes:          m.MeetingNotes,
		FinalParticipationPct: m.FinalParticipationPct,
		FinalQuorumMet:        m.FinalQuorumMet,
		CreatedAt:             m.CreatedAt.UTC(),
		UpdatedAt:             m.UpdatedAt.UTC(),
	}
}

type closureSnapshotModel struct {
	AssemblyID       string    `gorm:"column:assembly_id;primaryKey"`
	ParticipationPct int       `gorm:"column:participation_pct"`
	QuorumMet        bool      `gorm:"column:quorum_met"`
	MeetingNotes     string    `gorm:"column:meeting_notes"`
	ClosedAt         time.Time `gorm:"column:closed_at"`
	Tallies          []byte    `gorm:"column:tallies;type:jsonb"`
}

func (closureSnapshotModel) TableName() string {
	return "governance_closure_snapshots"
}

type ballotModel struct {
	BallotID   string    `gorm:"column:ballot_id;primaryKey"`
	AssemblyID string    `gorm:"column:assembly_id"`
	Question   string    `gorm:"column:question"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (ballotModel) TableName() string {
	return "governance_ballots"
}

type ballotOptionModel struct {
	OptionID string `gorm:"column:option_id;primaryKey"`
	BallotID string `gorm:"column:ballot_id"`
	Label    string `gorm:"column:label"`
	Position int    `gorm:"column:position"`
}

func (ballotOptionModel) TableName() string {
	return "governance_ballot_options"
}

type unitVoteModel struct {
	BallotID string    `gorm:"column:ballot_id;primaryKey"`
	UnitID   string    `gorm:"column:unit_id;primaryKey"`
	OptionID string    `gorm:"column:option_id"`
	CastBy   string    `gorm:"column:cast_by"`
	CastAt   time.Time `gorm:"column:cast_at"`
}

func (unitVoteModel) TableName() string {
	return "governance_unit_votes"
}

func unitVotesFromModels(rows []unitVoteModel) []entities.UnitVote {
	items := make([]entities.UnitVote, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.UnitVote{
			BallotID: row.BallotID,
			UnitID:   row.UnitID,
			OptionID: row.OptionID,
			CastBy:   row.CastBy,
			CastAt:   row.CastAt.UTC(),
		})
	}
	return items
}

type voteAuditModel struct {
	AuditID  string    `gorm:"column:audit_id;primaryKey"`
	BallotID string    `gorm:"column:ballot_id"`
	UnitID   string    `gorm:"column:unit_id"`
	OptionID string    `gorm:"column:option_id"`
	CastBy   string    `gorm:"column:cast_by"`
	CastAt   time.Time `gorm:"column:cast_at"`
}

func (voteAuditModel) TableName() string {
	return "governance_vote_audit"
}

type delegationModel struct {
	DelegationID string     `gorm:"column:delegation_id;primaryKey"`
	AssemblyID   string     `gorm:"column:assembly_id"`
	UnitID       string     `gorm:"column:unit_id"`
	DelegateID   string     `gorm:"column:delegate_id"`
	AuthorizerID string     `gorm:"column:authorizer_id"`
	Status       string     `gorm:"column:status"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
	Notes        string     `gorm:"column:notes"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (delegationModel) TableName() string {
	return "governance_delegations"
}

func delegationModelFromEntity(item entities.Delegation) delegationModel {
	return delegationModel{
		DelegationID: strings.TrimSpace(item.DelegationID),
		AssemblyID:   strings.TrimSpace(item.AssemblyID),
		UnitID:       strings.TrimSpace(item.UnitID),
		DelegateID:   strings.TrimSpace(item.DelegateID),
		AuthorizerID: strings.TrimSpace(item.AuthorizerID),
		Status:       string(item.Status),
		ExpiresAt:    normalizeOptionalTime(item.ExpiresAt),
		Notes:        strings.TrimSpace(item.Notes),
		CreatedAt:    item.CreatedAt.UTC(),
		UpdatedAt:    item.UpdatedAt.UTC(),
	}
}

func (m delegationModel) toEntity() entities.Delegation {
	return entities.Delegation{
		DelegationID: m.DelegationID,
		AssemblyID:   m.AssemblyID,
		UnitID:       m.UnitID,
		DelegateID:   m.DelegateID,
		AuthorizerID: m.AuthorizerID,
		Status:       entities.DelegationStatus(m.Status),
		ExpiresAt:    normalizeOptionalTime(m.ExpiresAt),
		Notes:        m.Notes,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

type unitModel struct {
	UnitID      string  `gorm:"column:unit_id;primaryKey"`
	CommunityID string  `gorm:"column:community_id"`
	OccupantID  string  `gorm:"column:occupant_id"`
	Coefficient float64 `gorm:"column:coefficient"`
}

func (unitModel) TableName() string {
	return "governance_units"
}

type adminOverrideModel struct {
	PersonID string `gorm:"column:person_id;primaryKey"`
	Enabled  bool   `gorm:"column:enabled"`
}

func (adminOverrideModel) TableName() string {
	return "governance_admin_overrides"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "governance_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "governance_event_dedup"
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
