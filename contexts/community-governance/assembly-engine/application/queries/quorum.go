package queries

import (
	"context"
	"math"
	"strings"

	"concord/contexts/community-governance/assembly-engine/domain/entities"
	"concord/contexts/community-governance/assembly-engine/ports"
)

// participationEpsilon absorbs float64 accumulation error before flooring so
// a unit set whose coefficients sum to exactly the threshold is not pushed
// below it by rounding noise. Flooring itself is mandatory: participation
// must never round up into a false-positive quorum.
const participationEpsilon = 1e-9

type QuorumUseCase struct {
	Ballots ports.BallotRepository
	Units   ports.UnitDirectory
}

// ComputeParticipation returns the weighted participation percentage of an
// assembly: the coefficient sum of units with at least one cast vote on any
// ballot, each unit counted once, over the whole community's weight.
func (uc QuorumUseCase) ComputeParticipation(ctx context.Context, assembly entities.Assembly) (int, error) {
	votes, err := uc.Ballots.ListVotesByAssembly(ctx, strings.TrimSpace(assembly.AssemblyID))
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(votes))
	var participating float64
	for _, vote := range votes {
		if _, ok := seen[vote.UnitID]; ok {
			continue
		}
		seen[vote.UnitID] = struct{}{}
		weight, err := uc.Units.UnitWeight(ctx, assembly.CommunityID, vote.UnitID)
		if err != nil {
			return 0, err
		}
		participating += weight
	}

	total, err := uc.Units.TotalWeight(ctx, assembly.CommunityID)
	if err != nil {
		return 0, err
	}
	if total <= 0 {
		return 0, nil
	}
	return int(math.Floor(participating/total*100 + participationEpsilon)), nil
}

// QuorumMet recomputes participation against the assembly's requirement.
// Valid at any time before closure; closed assemblies carry the frozen value
// instead.
func (uc QuorumUseCase) QuorumMet(ctx context.Context, assembly entities.Assembly) (bool, int, error) {
	participation, err := uc.ComputeParticipation(ctx, assembly)
	if err != nil {
		return false, 0, err
	}
	return participation >= assembly.RequiredQuorumPct, participation, nil
}
