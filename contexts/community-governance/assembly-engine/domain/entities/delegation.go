package entities

import "time"

type DelegationStatus string

const (
	DelegationStatusPending DelegationStatus = "pending"
	DelegationStatusActive  DelegationStatus = "active"
	DelegationStatusRevoked DelegationStatus = "revoked"
	DelegationStatusExpired DelegationStatus = "expired"
)

// Delegation authorizes one person to vote on behalf of a unit for a single
// assembly. Expiry is evaluated lazily: stored status is only corrected on
// the next write or by the sweep worker, never trusted by readers.
type Delegation struct {
	DelegationID string
	AssemblyID   string
	UnitID       string
	DelegateID   string
	AuthorizerID string
	Status       DelegationStatus
	ExpiresAt    *time.Time
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (d Delegation) expired(asOf time.Time) bool {
	return d.ExpiresAt != nil && !d.ExpiresAt.UTC().After(asOf.UTC())
}

// EffectiveStatus re-derives the status at asOf instead of trusting a stored
// "expired" flag that could be stale.
func (d Delegation) EffectiveStatus(asOf time.Time) DelegationStatus {
	if (d.Status == DelegationStatusPending || d.Status == DelegationStatusActive) && d.expired(asOf) {
		return DelegationStatusExpired
	}
	return d.Status
}

// Blocking reports whether this delegation counts toward the at-most-one
// valid delegation per (assembly, unit) invariant at asOf.
func (d Delegation) Blocking(asOf time.Time) bool {
	effective := d.EffectiveStatus(asOf)
	return effective == DelegationStatusPending || effective == DelegationStatusActive
}
