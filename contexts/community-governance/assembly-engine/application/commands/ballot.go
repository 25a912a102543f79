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

// OpenBallotCommand adds a question to an in-progress assembly.
type OpenBallotCommand struct {
	AssemblyID   string
	Question     string
	OptionLabels []string
}

// CastVoteCommand records the choice of one unit on one ballot.
type CastVoteCommand struct {
	BallotID string
	UnitID   string
	OptionID string
	CastBy   string
}

// BallotUseCase owns ballots and the vote ledger. Eligibility is resolved at
// cast time: the caster must be the unit's registered occupant or the unit's
// currently active delegate for the assembly.
type BallotUseCase struct {
	Assemblies  ports.AssemblyRepository
	Ballots     ports.BallotRepository
	Delegations ports.DelegationRepository
	Units       ports.UnitDirectory
	Identity    ports.IdentityGuard
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Logger      *slog.Logger
}

// OpenBallot creates a ballot on an in-progress assembly. At least two
// options are required and labels must be unique within the ballot.
func (uc BallotUseCase) OpenBallot(ctx context.Context, cmd OpenBallotCommand) (entities.Ballot, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	question := strings.TrimSpace(cmd.Question)
	if question == "" || len(cmd.OptionLabels) < 2 || !entities.UniqueOptionLabels(cmd.OptionLabels) {
		return entities.Ballot{}, domainerrors.ErrInvalidBallotInput
	}

	assembly, err := uc.Assemblies.GetAssembly(ctx, strings.TrimSpace(cmd.AssemblyID))
	if err != nil {
		return entities.Ballot{}, err
	}
	if assembly.Status != entities.AssemblyStatusInProgress {
		return entities.Ballot{}, domainerrors.ErrAssemblyNotOpen
	}

	ballotID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Ballot{}, err
	}
	ballot := entities.Ballot{
		BallotID:   ballotID,
		AssemblyID: assembly.AssemblyID,
		Question:   question,
		Options:    make([]entities.BallotOption, 0, len(cmd.OptionLabels)),
		CreatedAt:  now,
	}
	for position, label := range cmd.OptionLabels {
		optionID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return entities.Ballot{}, err
		}
		ballot.Options = append(ballot.Options, entities.BallotOption{
			OptionID: optionID,
			Label:    strings.TrimSpace(label),
			Position: position,
		})
	}

	if err := uc.Ballots.CreateBallot(ctx, ballot); err != nil {
		return entities.Ballot{}, err
	}
	logger.Info("ballot opened",
		"event", "governance_ballot_opened",
		"module", "community-governance/assembly-engine",
		"layer", "application",
		"ballot_id", ballot.BallotID,
		"assembly_id", ballot.AssemblyID,
		"option_count", len(ballot.Options),
	)
	return ballot, nil
}

// CastVote validates eligibility and writes the unit's vote. A second cast
// for the same (ballot, unit) replaces the first; every accepted cast also
// lands in the append-only audit trail.
func (uc BallotUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (entities.UnitVote, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	ballotID := strings.TrimSpace(cmd.BallotID)
	unitID := strings.TrimSpace(cmd.UnitID)
	optionID := strings.TrimSpace(cmd.OptionID)
	castBy := strings.TrimSpace(cmd.CastBy)
	if ballotID == "" || unitID == "" || optionID == "" || castBy == "" {
		return entities.UnitVote{}, domainerrors.ErrInvalidBallotInput
	}

	ballot, err := uc.Ballots.GetBallot(ctx, ballotID)
	if err != nil {
		return entities.UnitVote{}, err
	}
	assembly, err := uc.Assemblies.GetAssembly(ctx, ballot.AssemblyID)
	if err != nil {
		return entities.UnitVote{}, err
	}
	if assembly.Status != entities.AssemblyStatusInProgress {
		return entities.UnitVote{}, domainerrors.ErrAssemblyNotOpen
	}

	// Membership in the assembly's community is what makes the unit real
	// here; the directory rejects unknown pairs.
	if _, err := uc.Units.UnitWeight(ctx, assembly.CommunityID, unitID); err != nil {
		return entities.UnitVote{}, err
	}
	if !ballot.HasOption(optionID) {
		return entities.UnitVote{}, domainerrors.ErrUnknownOption
	}

	eligible, err := uc.canCastFor(ctx, assembly.AssemblyID, unitID, castBy, now)
	if err != nil {
		return entities.UnitVote{}, err
	}
	if !eligible {
		logger.Warn("vote rejected",
			"event", "governance_vote_rejected",
			"module", "community-governance/assembly-engine",
			"layer", "application",
			"ballot_id", ballotID,
			"unit_id", unitID,
			"cast_by", castBy,
		)
		return entities.UnitVote{}, domainerrors.ErrUnauthorizedVoter
	}

	vote := entities.UnitVote{
		BallotID: ballotID,
		UnitID:   unitID,
		OptionID: optionID,
		CastBy:   castBy,
		CastAt:   now,
	}
	if err := uc.Ballots.UpsertUnitVote(ctx, vote); err != nil {
		return entities.UnitVote{}, err
	}

	auditID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.UnitVote{}, err
	}
	if err := uc.Ballots.AppendVoteAudit(ctx, entities.VoteAudit{
		AuditID:  auditID,
		BallotID: ballotID,
		UnitID:   unitID,
		OptionID: optionID,
		CastBy:   castBy,
		CastAt:   now,
	}); err != nil {
		return entities.UnitVote{}, err
	}

	logger.Info("vote cast",
		"event", "governance_vote_cast",
		"module", "community-governance/assembly-engine",
		"layer", "application",
		"ballot_id", ballotID,
		"assembly_id", assembly.AssemblyID,
		"unit_id", unitID,
	)
	return vote, nil
}

func (uc BallotUseCase) canCastFor(
	ctx context.Context,
	assemblyID string,
	unitID string,
	castBy string,
	asOf time.Time,
) (bool, error) {
	occupant, err := uc.Identity.IsRegisteredOccupant(ctx, unitID, castBy)
	if err != nil {
		return false, err
	}
	if occupant {
		return true, nil
	}
	delegation, found, err := uc.Delegations.FindBlockingDelegation(ctx, assemblyID, unitID, asOf)
	if err != nil {
		return false, err
	}
	if !found || delegation.EffectiveStatus(asOf) != entities.DelegationStatusActive {
		return false, nil
	}
	return delegation.DelegateID == castBy, nil
}

func (uc BallotUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}
