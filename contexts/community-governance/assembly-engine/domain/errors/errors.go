package errors

import "errors"

var (
	ErrInvalidTransition      = errors.New("invalid assembly state transition")
	ErrDuplicateDelegation    = errors.New("unit already has a valid delegation for this assembly")
	ErrUnauthorizedVoter      = errors.New("identity is not allowed to vote for this unit")
	ErrUnknownOption          = errors.New("option does not belong to this ballot")
	ErrUnitNotFound           = errors.New("unit not found")
	ErrAssemblyNotOpen        = errors.New("assembly is not in progress")
	ErrAssemblyNotFound       = errors.New("assembly not found")
	ErrBallotNotFound         = errors.New("ballot not found")
	ErrDelegationNotFound     = errors.New("delegation not found")
	ErrInvalidAssemblyInput   = errors.New("invalid assembly input")
	ErrInvalidBallotInput     = errors.New("invalid ballot input")
	ErrInvalidDelegationInput = errors.New("invalid delegation input")
	ErrConflict               = errors.New("governance record conflict")
)
