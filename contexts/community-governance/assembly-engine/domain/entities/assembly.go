package entities

import (
	"strings"
	"time"
)

type AssemblyStatus string
type AssemblyType string

const (
	AssemblyStatusScheduled  AssemblyStatus = "scheduled"
	AssemblyStatusInProgress AssemblyStatus = "in_progress"
	AssemblyStatusClosed     AssemblyStatus = "closed"
	AssemblyStatusCancelled  AssemblyStatus = "cancelled"

	AssemblyTypeOrdinary      AssemblyType = "ordinary"
	AssemblyTypeExtraordinary AssemblyType = "extraordinary"
)

// Assembly is the aggregate root for one deliberative meeting of a community.
// Status moves scheduled -> in_progress -> closed, or scheduled -> cancelled;
// every other move is rejected. Final* fields are frozen exactly once, at
// closure, and are the audit record of the meeting outcome.
type Assembly struct {
	AssemblyID           string
	CommunityID          string
	Title                string
	Description          string
	Type                 AssemblyType
	Status               AssemblyStatus
	ScheduledAt          time.Time
	RequiredQuorumPct    int
	OpenedAt             *time.Time
	ClosedAt             *time.Time
	CloseDueAt           *time.Time
	PendingCloseNotes    string
	MeetingNotes         string
	FinalParticipationPct *int
	FinalQuorumMet       *bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (a Assembly) CanStart() bool {
	return a.Status == AssemblyStatusScheduled
}

func (a Assembly) CanClose() bool {
	return a.Status == AssemblyStatusInProgress
}

func (a Assembly) CanCancel() bool {
	return a.Status == AssemblyStatusScheduled
}

// CanDelete excludes in_progress so an in-flight vote can never be destroyed.
func (a Assembly) CanDelete() bool {
	return a.Status == AssemblyStatusScheduled || a.Status == AssemblyStatusClosed
}

func (a Assembly) ValidateBasics(now time.Time) bool {
	return strings.TrimSpace(a.CommunityID) != "" &&
		strings.TrimSpace(a.Title) != "" &&
		IsSupportedAssemblyType(a.Type) &&
		a.ScheduledAt.UTC().After(now.UTC()) &&
		ValidQuorumPercentage(a.RequiredQuorumPct)
}

func IsSupportedAssemblyType(value AssemblyType) bool {
	switch value {
	case AssemblyTypeOrdinary, AssemblyTypeExtraordinary:
		return true
	default:
		return false
	}
}

func ValidQuorumPercentage(value int) bool {
	return value >= 1 && value <= 100
}
