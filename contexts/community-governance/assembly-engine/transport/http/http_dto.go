package httptransport

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateAssemblyRequest struct {
	CommunityID       string    `json:"community_id"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Type              string    `json:"type"`
	ScheduledAt       time.Time `json:"scheduled_at"`
	RequiredQuorumPct int       `json:"required_quorum_pct"`
}

type CloseAssemblyRequest struct {
	Notes          string `json:"notes,omitempty"`
	DeferBySeconds *int64 `json:"defer_by_seconds,omitempty"`
}

type AssemblyResponse struct {
	AssemblyID            string     `json:"assembly_id"`
	CommunityID           string     `json:"community_id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description,omitempty"`
	Type                  string     `json:"type"`
	Status                string     `json:"status"`
	ScheduledAt           time.Time  `json:"scheduled_at"`
	RequiredQuorumPct     int        `json:"required_quorum_pct"`
	OpenedAt              *time.Time `json:"opened_at,omitempty"`
	ClosedAt              *time.Time `json:"closed_at,omitempty"`
	CloseDueAt            *time.Time `json:"close_due_at,omitempty"`
	MeetingNotes          string     `json:"meeting_notes,omitempty"`
	FinalParticipationPct *int       `json:"final_participation_pct,omitempty"`
	FinalQuorumMet        *bool      `json:"final_quorum_met,omitempty"`
}

type OpenBallotRequest struct {
	Question     string   `json:"question"`
	OptionLabels []string `json:"option_labels"`
}

type BallotOptionResponse struct {
	OptionID string `json:"option_id"`
	Label    string `json:"label"`
	Position int    `json:"position"`
}

type BallotResponse struct {
	BallotID   string                 `json:"ballot_id"`
	AssemblyID string                 `json:"assembly_id"`
	Question   string                 `json:"question"`
	Options    []BallotOptionResponse `json:"options"`
}

type CastVoteRequest struct {
	UnitID   string `json:"unit_id"`
	OptionID string `json:"option_id"`
}

type VoteResponse struct {
	BallotID string    `json:"ballot_id"`
	UnitID   string    `json:"unit_id"`
	OptionID string    `json:"option_id"`
	CastBy   string    `json:"cast_by"`
	CastAt   time.Time `json:"cast_at"`
}

type AuthorizeDelegationRequest struct {
	UnitID     string     `json:"unit_id"`
	DelegateID string     `json:"delegate_id"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

type DelegationResponse struct {
	DelegationID string     `json:"delegation_id"`
	AssemblyID   string     `json:"assembly_id"`
	UnitID       string     `json:"unit_id"`
	DelegateID   string     `json:"delegate_id"`
	AuthorizerID string     `json:"authorizer_id"`
	Status       string     `json:"status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

type QuorumResponse struct {
	AssemblyID        string `json:"assembly_id"`
	ParticipationPct  int    `json:"participation_pct"`
	RequiredQuorumPct int    `json:"required_quorum_pct"`
	QuorumMet         bool   `json:"quorum_met"`
}

type OptionTallyItem struct {
	OptionID      string  `json:"option_id"`
	Label         string  `json:"label"`
	VoteCount     int     `json:"vote_count"`
	WeightedShare float64 `json:"weighted_share"`
}

type BallotTallyItem struct {
	BallotID      string            `json:"ballot_id"`
	Question      string            `json:"question"`
	Options       []OptionTallyItem `json:"options"`
	TotalVotes    int               `json:"total_votes"`
	Tied          bool              `json:"tied"`
	TiedOptionIDs []string          `json:"tied_option_ids,omitempty"`
}

type ResultsResponse struct {
	AssemblyID       string            `json:"assembly_id"`
	ParticipationPct int               `json:"participation_pct"`
	QuorumMet        bool              `json:"quorum_met"`
	MeetingNotes     string            `json:"meeting_notes,omitempty"`
	ClosedAt         *time.Time        `json:"closed_at,omitempty"`
	Tallies          []BallotTallyItem `json:"tallies"`
}
