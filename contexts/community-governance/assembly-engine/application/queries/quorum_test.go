package queries

import (
	"context"
	"testing"
	"time"

	"concord/contexts/community-governance/assembly-engine/adapters/memory"
	"concord/contexts/community-governance/assembly-engine/domain/entities"
	"concord/contexts/community-governance/assembly-engine/ports"
)

func quorumFixture(t *testing.T, coefficients map[string]float64) (*memory.Store, QuorumUseCase, entities.Assembly) {
	t.Helper()
	store := memory.NewStore()
	for unitID, coefficient := range coefficients {
		store.SetUnit(ports.UnitProjection{
			UnitID:      unitID,
			CommunityID: "community-1",
			OccupantID:  "occupant-" + unitID,
			Coefficient: coefficient,
		})
	}
	assembly := entities.Assembly{
		AssemblyID:        "assembly-1",
		CommunityID:       "community-1",
		Status:            entities.AssemblyStatusInProgress,
		RequiredQuorumPct: 50,
	}
	if err := store.CreateAssembly(context.Background(), assembly); err != nil {
		t.Fatalf("create assembly: %v", err)
	}
	return store, QuorumUseCase{Ballots: store, Units: store}, assembly
}

func seedBallotWithVotes(t *testing.T, store *memory.Store, ballotID string, unitIDs ...string) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateBallot(ctx, entities.Ballot{
		BallotID:   ballotID,
		AssemblyID: "assembly-1",
		Question:   "Approve?",
		Options: []entities.BallotOption{
			{OptionID: ballotID + "-yes", Label: "Yes", Position: 0},
			{OptionID: ballotID + "-no", Label: "No", Position: 1},
		},
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create ballot: %v", err)
	}
	for _, unitID := range unitIDs {
		if err := store.UpsertUnitVote(ctx, entities.UnitVote{
			BallotID: ballotID,
			UnitID:   unitID,
			OptionID: ballotID + "-yes",
			CastBy:   "occupant-" + unitID,
			CastAt:   time.Now().UTC(),
		}); err != nil {
			t.Fatalf("upsert vote: %v", err)
		}
	}
}

func TestComputeParticipationFloorsDown(t *testing.T) {
	store, uc, assembly := quorumFixture(t, map[string]float64{
		"unit-a": 1.0,
		"unit-b": 1.0,
		"unit-c": 1.0,
	})
	seedBallotWithVotes(t, store, "ballot-1", "unit-a", "unit-b")

	// 2/3 of the weight participated: 66.66 floors to 66, never rounds up.
	participation, err := uc.ComputeParticipation(context.Background(), assembly)
	if err != nil {
		t.Fatalf("compute participation: %v", err)
	}
	if participation != 66 {
		t.Fatalf("participation = %d, want 66", participation)
	}
}

func TestComputeParticipationExactThreshold(t *testing.T) {
	// Four equal units at 0.25 each; two vote. Accumulated float noise must
	// not push an exact 50 down to 49.
	store, uc, assembly := quorumFixture(t, map[string]float64{
		"unit-a": 0.25,
		"unit-b": 0.25,
		"unit-c": 0.25,
		"unit-d": 0.25,
	})
	seedBallotWithVotes(t, store, "ballot-1", "unit-a", "unit-b")

	participation, err := uc.ComputeParticipation(context.Background(), assembly)
	if err != nil {
		t.Fatalf("compute participation: %v", err)
	}
	if participation != 50 {
		t.Fatalf("participation = %d, want exactly 50", participation)
	}

	met, _, err := uc.QuorumMet(context.Background(), assembly)
	if err != nil {
		t.Fatalf("quorum met: %v", err)
	}
	if !met {
		t.Fatalf("quorum should be met at the exact threshold")
	}
}

func TestComputeParticipationCountsUnitOnce(t *testing.T) {
	store, uc, assembly := quorumFixture(t, map[string]float64{
		"unit-a": 1.0,
		"unit-b": 1.0,
	})
	// The same unit votes on two ballots; its weight counts once.
	seedBallotWithVotes(t, store, "ballot-1", "unit-a")
	seedBallotWithVotes(t, store, "ballot-2", "unit-a")

	participation, err := uc.ComputeParticipation(context.Background(), assembly)
	if err != nil {
		t.Fatalf("compute participation: %v", err)
	}
	if participation != 50 {
		t.Fatalf("participation = %d, want 50", participation)
	}
}

func TestComputeParticipationZeroTotalWeight(t *testing.T) {
	_, uc, assembly := quorumFixture(t, nil)

	participation, err := uc.ComputeParticipation(context.Background(), assembly)
	if err != nil {
		t.Fatalf("compute participation: %v", err)
	}
	if participation != 0 {
		t.Fatalf("participation = %d, want 0 for an empty community", participation)
	}
}

func TestQuorumMetComparesAgainstRequirement(t *testing.T) {
	store, uc, assembly := quorumFixture(t, map[string]float64{
		"unit-a": 1.0,
		"unit-b": 1.0,
	})
	seedBallotWithVotes(t, store, "ballot-1", "unit-a")

	assembly.RequiredQuorumPct = 50
	met, participation, err := uc.QuorumMet(context.Background(), assembly)
	if err != nil {
		t.Fatalf("quorum met: %v", err)
	}
	if !met || participation != 50 {
		t.Fatalf("got met=%v participation=%d, want met at 50", met, participation)
	}

	assembly.RequiredQuorumPct = 51
	met, _, err = uc.QuorumMet(context.Background(), assembly)
	if err != nil {
		t.Fatalf("quorum met: %v", err)
	}
	if met {
		t.Fatalf("quorum must not be met below the requirement")
	}
}
