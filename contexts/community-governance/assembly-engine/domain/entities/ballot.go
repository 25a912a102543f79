package entities

import (
	"strings"
	"time"
)

type BallotOption struct {
	OptionID string
	Label    string
	Position int
}

// Ballot is one question posed at an assembly. Options keep insertion order
// and are immutable after the ballot is opened.
type Ballot struct {
	BallotID   string
	AssemblyID string
	Question   string
	Options    []BallotOption
	CreatedAt  time.Time
}

func (b Ballot) HasOption(optionID string) bool {
	for _, option := range b.Options {
		if option.OptionID == strings.TrimSpace(optionID) {
			return true
		}
	}
	return false
}

// UniqueOptionLabels rejects duplicate labels case-insensitively so "Yes"
// and "yes" cannot coexist on one ballot.
func UniqueOptionLabels(labels []string) bool {
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		key := strings.ToLower(strings.TrimSpace(label))
		if key == "" {
			return false
		}
		if _, ok := seen[key]; ok {
			return false
		}
		seen[key] = struct{}{}
	}
	return true
}

// UnitVote is the single vote of a unit on a ballot. The (ballot, unit) pair
// is unique; re-voting replaces the previous record, last cast_at wins.
type UnitVote struct {
	BallotID string
	UnitID   string
	OptionID string
	CastBy   string
	CastAt   time.Time
}

// VoteAudit is the append-only trail of every accepted cast, including
// superseded choices. It is never read for tallying.
type VoteAudit struct {
	AuditID  string
	BallotID string
	UnitID   string
	OptionID string
	CastBy   string
	CastAt   time.Time
}
