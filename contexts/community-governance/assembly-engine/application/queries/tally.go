package queries

import (
	"context"
	"strings"

	"concord/contexts/community-governance/assembly-engine/domain/entities"
	domainerrors "concord/contexts/community-governance/assembly-engine/domain/errors"
	"concord/contexts/community-governance/assembly-engine/ports"
)

type TallyUseCase struct {
	Assemblies ports.AssemblyRepository
	Ballots    ports.BallotRepository
	Units      ports.UnitDirectory
}

// BallotTally aggregates the current vote set of one ballot into per-option
// raw counts and coefficient-weighted sums. Deterministic for a given vote
// set; exact ties are flagged, not broken.
func (uc TallyUseCase) BallotTally(
	ctx context.Context,
	communityID string,
	ballot entities.Ballot,
) (entities.BallotTally, error) {
	votes, err := uc.Ballots.ListVotesByBallot(ctx, strings.TrimSpace(ballot.BallotID))
	if err != nil {
		return entities.BallotTally{}, err
	}

	counts := make(map[string]int, len(ballot.Options))
	weights := make(map[string]float64, len(ballot.Options))
	for _, vote := range votes {
		weight, err := uc.Units.UnitWeight(ctx, communityID, vote.UnitID)
		if err != nil {
			return entities.BallotTally{}, err
		}
		counts[vote.OptionID]++
		weights[vote.OptionID] += weight
	}

	tally := entities.BallotTally{
		BallotID:   ballot.BallotID,
		Question:   ballot.Question,
		Options:    make([]entities.OptionTally, 0, len(ballot.Options)),
		TotalVotes: len(votes),
	}
	for _, option := range ballot.Options {
		tally.Options = append(tally.Options, entities.OptionTally{
			OptionID:      option.OptionID,
			Label:         option.Label,
			VoteCount:     counts[option.OptionID],
			WeightedShare: weights[option.OptionID],
		})
	}
	tally.Tied, tally.TiedOptionIDs = detectTie(tally.Options)
	return tally, nil
}

// AssemblyTallies tallies every ballot of an assembly in creation order.
func (uc TallyUseCase) AssemblyTallies(
	ctx context.Context,
	assembly entities.Assembly,
) ([]entities.BallotTally, error) {
	ballots, err := uc.Ballots.ListBallotsByAssembly(ctx, strings.TrimSpace(assembly.AssemblyID))
	if err != nil {
		return nil, err
	}
	tallies := make([]entities.BallotTally, 0, len(ballots))
	for _, ballot := range ballots {
		tally, err := uc.BallotTally(ctx, assembly.CommunityID, ballot)
		if err != nil {
			return nil, err
		}
		tallies = append(tallies, tally)
	}
	return tallies, nil
}

// FrozenResult returns the closure snapshot of a closed assembly; reading it
// never recomputes anything, the record is the audit trail.
func (uc TallyUseCase) FrozenResult(ctx context.Context, assemblyID string) (entities.ClosureSnapshot, error) {
	snapshot, found, err := uc.Assemblies.GetClosureSnapshot(ctx, strings.TrimSpace(assemblyID))
	if err != nil {
		return entities.ClosureSnapshot{}, err
	}
	if !found {
		return entities.ClosureSnapshot{}, domainerrors.ErrAssemblyNotFound
	}
	return snapshot, nil
}

func detectTie(options []entities.OptionTally) (bool, []string) {
	var max float64
	for _, option := range options {
		if option.WeightedShare > max {
			max = option.WeightedShare
		}
	}
	if max <= 0 {
		return false, nil
	}
	var leaders []string
	for _, option := range options {
		if option.WeightedShare == max {
			leaders = append(leaders, option.OptionID)
		}
	}
	if len(leaders) < 2 {
		return false, nil
	}
	return true, leaders
}
