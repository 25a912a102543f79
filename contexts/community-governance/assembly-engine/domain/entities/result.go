package entities

import "time"

type OptionTally struct {
	OptionID      string
	Label         string
	VoteCount     int
	WeightedShare float64
}

// BallotTally is the deterministic outcome of one ballot: per-option raw
// counts and coefficient-weighted sums. Exact ties are reported, never
// broken; tie-break policy belongs to a presentation layer.
type BallotTally struct {
	BallotID      string
	Question      string
	Options       []OptionTally
	TotalVotes    int
	Tied          bool
	TiedOptionIDs []string
}

// ClosureSnapshot is the immutable record frozen into a closed assembly:
// participation, quorum outcome and final tallies as of the moment the
// in_progress -> closed transition won.
type ClosureSnapshot struct {
	AssemblyID       string
	ParticipationPct int
	QuorumMet        bool
	MeetingNotes     string
	ClosedAt         time.Time
	Tallies          []BallotTally
}
