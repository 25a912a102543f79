package entities

import (
	"testing"
	"time"
)

func TestAssemblyTransitionPredicates(t *testing.T) {
	cases := []struct {
		status    AssemblyStatus
		canStart  bool
		canClose  bool
		canCancel bool
		canDelete bool
	}{
		{AssemblyStatusScheduled, true, false, true, true},
		{AssemblyStatusInProgress, false, true, false, false},
		{AssemblyStatusClosed, false, false, false, true},
		{AssemblyStatusCancelled, false, false, false, false},
	}

	for _, tc := range cases {
		assembly := Assembly{Status: tc.status}
		if got := assembly.CanStart(); got != tc.canStart {
			t.Fatalf("%s CanStart = %v, want %v", tc.status, got, tc.canStart)
		}
		if got := assembly.CanClose(); got != tc.canClose {
			t.Fatalf("%s CanClose = %v, want %v", tc.status, got, tc.canClose)
		}
		if got := assembly.CanCancel(); got != tc.canCancel {
			t.Fatalf("%s CanCancel = %v, want %v", tc.status, got, tc.canCancel)
		}
		if got := assembly.CanDelete(); got != tc.canDelete {
			t.Fatalf("%s CanDelete = %v, want %v", tc.status, got, tc.canDelete)
		}
	}
}

func TestAssemblyValidateBasics(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	valid := Assembly{
		CommunityID:       "community-1",
		Title:             "Annual budget meeting",
		Type:              AssemblyTypeOrdinary,
		ScheduledAt:       now.Add(48 * time.Hour),
		RequiredQuorumPct: 50,
	}
	if !valid.ValidateBasics(now) {
		t.Fatalf("expected valid assembly to pass basics")
	}

	past := valid
	past.ScheduledAt = now.Add(-time.Hour)
	if past.ValidateBasics(now) {
		t.Fatalf("expected past scheduled_at to fail")
	}

	badType := valid
	badType.Type = AssemblyType("townhall")
	if badType.ValidateBasics(now) {
		t.Fatalf("expected unsupported type to fail")
	}

	noTitle := valid
	noTitle.Title = "   "
	if noTitle.ValidateBasics(now) {
		t.Fatalf("expected blank title to fail")
	}
}

func TestValidQuorumPercentageBounds(t *testing.T) {
	for _, value := range []int{1, 50, 100} {
		if !ValidQuorumPercentage(value) {
			t.Fatalf("expected %d to be a valid quorum percentage", value)
		}
	}
	for _, value := range []int{0, -1, 101} {
		if ValidQuorumPercentage(value) {
			t.Fatalf("expected %d to be rejected", value)
		}
	}
}
