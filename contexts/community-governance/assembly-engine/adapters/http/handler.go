package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"concord/contexts/community-governance/assembly-engine/application/commands"
	"concord/contexts/community-governance/assembly-engine/application/queries"
	"concord/contexts/community-governance/assembly-engine/domain/entities"
	httptransport "concord/contexts/community-governance/assembly-engine/transport/http"
)

type Handler struct {
	Assemblies  commands.AssemblyUseCase
	Ballots     commands.BallotUseCase
	Delegations commands.DelegationUseCase
	Quorum      queries.QuorumUseCase
	Tallies     queries.TallyUseCase
	Logger      *slog.Logger
}

func (h Handler) CreateAssemblyHandler(
	ctx context.Context,
	req httptransport.CreateAssemblyRequest,
) (httptransport.AssemblyResponse, error) {
	assembly, err := h.Assemblies.Schedule(ctx, commands.ScheduleAssemblyCommand{
		CommunityID:       req.CommunityID,
		Title:             req.Title,
		Description:       req.Description,
		Type:              entities.AssemblyType(req.Type),
		ScheduledAt:       req.ScheduledAt,
		RequiredQuorumPct: req.RequiredQuorumPct,
	})
	if err != nil {
		return httptransport.AssemblyResponse{}, err
	}
	return assemblyResponse(assembly), nil
}

func (h Handler) GetAssemblyHandler(ctx context.Context, assemblyID string) (httptransport.AssemblyResponse, error) {
	assembly, err := h.Tallies.Assemblies.GetAssembly(ctx, assemblyID)
	if err != nil {
		return httptransport.AssemblyResponse{}, err
	}
	return assemblyResponse(assembly), nil
}

func (h Handler) StartAssemblyHandler(ctx context.Context, assemblyID string) (httptransport.AssemblyResponse, error) {
	assembly, err := h.Assemblies.Start(ctx, assemblyID)
	if err != nil {
		return httptransport.AssemblyResponse{}, err
	}
	return assemblyResponse(assembly), nil
}

func (h Handler) CloseAssemblyHandler(
	ctx context.Context,
	assemblyID string,
	req httptransport.CloseAssemblyRequest,
) (httptransport.AssemblyResponse, error) {
	cmd := commands.RequestCloseCommand{
		AssemblyID: assemblyID,
		Notes:      req.Notes,
	}
	if req.DeferBySeconds != nil {
		deferBy := time.Duration(*req.DeferBySeconds) * time.Second
		cmd.DeferBy = &deferBy
	}
	if err := h.Assemblies.RequestClose(ctx, cmd); err != nil {
		return httptransport.AssemblyResponse{}, err
	}
	assembly, err := h.Tallies.Assemblies.GetAssembly(ctx, assemblyID)
	if err != nil {
		return httptransport.AssemblyResponse{}, err
	}
	return assemblyResponse(assembly), nil
}

func (h Handler) CancelAssemblyHandler(ctx context.Context, assemblyID string) (httptransport.AssemblyResponse, error) {
	assembly, err := h.Assemblies.Cancel(ctx, assemblyID)
	if err != nil {
		return httptransport.AssemblyResponse{}, err
	}
	return assemblyResponse(assembly), nil
}

func (h Handler) DeleteAssemblyHandler(ctx context.Context, assemblyID string) error {
	return h.Assemblies.Delete(ctx, assemblyID)
}

func (h Handler) OpenBallotHandler(
	ctx context.Context,
	assemblyID string,
	req httptransport.OpenBallotRequest,
) (httptransport.BallotResponse, error) {
	ballot, err := h.Ballots.OpenBallot(ctx, commands.OpenBallotCommand{
		AssemblyID:   assemblyID,
		Question:     req.Question,
		OptionLabels: req.OptionLabels,
	})
	if err != nil {
		return httptransport.BallotResponse{}, err
	}
	return ballotResponse(ballot), nil
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	ballotID string,
	castBy string,
	req httptransport.CastVoteRequest,
) (httptransport.VoteResponse, error) {
	vote, err := h.Ballots.CastVote(ctx, commands.CastVoteCommand{
		BallotID: ballotID,
		UnitID:   req.UnitID,
		OptionID: req.OptionID,
		CastBy:   castBy,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return httptransport.VoteResponse{
		BallotID: vote.BallotID,
		UnitID:   vote.UnitID,
		OptionID: vote.OptionID,
		CastBy:   vote.CastBy,
		CastAt:   vote.CastAt,
	}, nil
}

func (h Handler) AuthorizeDelegationHandler(
	ctx context.Context,
	assemblyID string,
	authorizerID string,
	req httptransport.AuthorizeDelegationRequest,
) (httptransport.DelegationResponse, error) {
	delegation, err := h.Delegations.Authorize(ctx, commands.AuthorizeDelegationCommand{
		AssemblyID:   assemblyID,
		UnitID:       req.UnitID,
		DelegateID:   req.DelegateID,
		AuthorizerID: authorizerID,
		ExpiresAt:    req.ExpiresAt,
		Notes:        req.Notes,
	})
	if err != nil {
		return httptransport.DelegationResponse{}, err
	}
	return delegationResponse(delegation), nil
}

func (h Handler) ApproveDelegationHandler(ctx context.Context, delegationID string) (httptransport.DelegationResponse, error) {
	delegation, err := h.Delegations.Approve(ctx, delegationID)
	if err != nil {
		return httptransport.DelegationResponse{}, err
	}
	return delegationResponse(delegation), nil
}

func (h Handler) RevokeDelegationHandler(ctx context.Context, delegationID string) (httptransport.DelegationResponse, error) {
	delegation, err := h.Delegations.Revoke(ctx, delegationID)
	if err != nil {
		return httptransport.DelegationResponse{}, err
	}
	return delegationResponse(delegation), nil
}

func (h Handler) QuorumHandler(ctx context.Context, assemblyID string) (httptransport.QuorumResponse, error) {
	assembly, err := h.Tallies.Assemblies.GetAssembly(ctx, assemblyID)
	if err != nil {
		return httptransport.QuorumResponse{}, err
	}
	// Closed assemblies answer from the frozen record.
	if assembly.Status == entities.AssemblyStatusClosed &&
		assembly.FinalParticipationPct != nil && assembly.FinalQuorumMet != nil {
		return httptransport.QuorumResponse{
			AssemblyID:        assembly.AssemblyID,
			ParticipationPct:  *assembly.FinalParticipationPct,
			RequiredQuorumPct: assembly.RequiredQuorumPct,
			QuorumMet:         *assembly.FinalQuorumMet,
		}, nil
	}

	met, participation, err := h.Quorum.QuorumMet(ctx, assembly)
	if err != nil {
		return httptransport.QuorumResponse{}, err
	}
	return httptransport.QuorumResponse{
		AssemblyID:        assembly.AssemblyID,
		ParticipationPct:  participation,
		RequiredQuorumPct: assembly.RequiredQuorumPct,
		QuorumMet:         met,
	}, nil
}

func (h Handler) ResultsHandler(ctx context.Context, assemblyID string) (httptransport.ResultsResponse, error) {
	assembly, err := h.Tallies.Assemblies.GetAssembly(ctx, assemblyID)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}

	if assembly.Status == entities.AssemblyStatusClosed {
		snapshot, err := h.Tallies.FrozenResult(ctx, assemblyID)
		if err != nil {
			return httptransport.ResultsResponse{}, err
		}
		closedAt := snapshot.ClosedAt
		return httptransport.ResultsResponse{
			AssemblyID:       snapshot.AssemblyID,
			ParticipationPct: snapshot.ParticipationPct,
			QuorumMet:        snapshot.QuorumMet,
			MeetingNotes:     snapshot.MeetingNotes,
			ClosedAt:         &closedAt,
			Tallies:          tallyItems(snapshot.Tallies),
		}, nil
	}

	tallies, err := h.Tallies.AssemblyTallies(ctx, assembly)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	met, participation, err := h.Quorum.QuorumMet(ctx, assembly)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	return httptransport.ResultsResponse{
		AssemblyID:       assembly.AssemblyID,
		ParticipationPct: participation,
		QuorumMet:        met,
		Tallies:          tallyItems(tallies),
	}, nil
}

func assemblyResponse(assembly entities.Assembly) httptransport.AssemblyResponse {
	return httptransport.AssemblyResponse{
		AssemblyID:            assembly.AssemblyID,
		CommunityID:           assembly.CommunityID,
		Title:                 assembly.Title,
		Description:           assembly.Description,
		Type:                  string(assembly.Type),
		Status:                string(assembly.Status),
		ScheduledAt:           assembly.ScheduledAt,
		RequiredQuorumPct:     assembly.RequiredQuorumPct,
		OpenedAt:              assembly.OpenedAt,
		ClosedAt:              assembly.ClosedAt,
		CloseDueAt:            assembly.CloseDueAt,
		MeetingNotes:          assembly.MeetingNotes,
		FinalParticipationPct: assembly.FinalParticipationPct,
		FinalQuorumMet:        assembly.FinalQuorumMet,
	}
}

func ballotResponse(ballot entities.Ballot) httptransport.BallotResponse {
	options := make([]httptransport.BallotOptionResponse, 0, len(ballot.Options))
	for _, option := range ballot.Options {
		options = append(options, httptransport.BallotOptionResponse{
			OptionID: option.OptionID,
			Label:    option.Label,
			Position: option.Position,
		})
	}
	return httptransport.BallotResponse{
		BallotID:   ballot.BallotID,
		AssemblyID: ballot.AssemblyID,
		Question:   ballot.Question,
		Options:    options,
	}
}

func delegationResponse(delegation entities.Delegation) httptransport.DelegationResponse {
	return httptransport.DelegationResponse{
		DelegationID: delegation.DelegationID,
		AssemblyID:   delegation.AssemblyID,
		UnitID:       delegation.UnitID,
		DelegateID:   delegation.DelegateID,
		AuthorizerID: delegation.AuthorizerID,
		Status:       string(delegation.Status),
		ExpiresAt:    delegation.ExpiresAt,
	}
}

func tallyItems(tallies []entities.BallotTally) []httptransport.BallotTallyItem {
	items := make([]httptransport.BallotTallyItem, 0, len(tallies))
	for _, tally := range tallies {
		options := make([]httptransport.OptionTallyItem, 0, len(tally.Options))
		for _, option := range tally.Options {
			options = append(options, httptransport.OptionTallyItem{
				OptionID:      option.OptionID,
				Label:         option.Label,
				VoteCount:     option.VoteCount,
				WeightedShare: option.WeightedShare,
			})
		}
		items = append(items, httptransport.BallotTallyItem{
			BallotID:      tally.BallotID,
			Question:      tally.Question,
			Options:       options,
			TotalVotes:    tally.TotalVotes,
			Tied:          tally.Tied,
			TiedOptionIDs: tally.TiedOptionIDs,
		})
	}
	return items
}
