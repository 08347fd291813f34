package coordinator

import "errors"

var (
	// ErrUnauthorized is returned when a token is missing, invalid, or bound to
	// a different subject than the one the request claims.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnknownBank is returned by Login when the bank name has no registry entry.
	ErrUnknownBank = errors.New("unknown bank")
	// ErrAuthFailed is returned by Login on bad credentials.
	ErrAuthFailed = errors.New("auth failed")
	// ErrBankUnavailable is returned when a participant can't be reached.
	ErrBankUnavailable = errors.New("bank unavailable")
	// ErrDuplicateInFlight is returned when a Transfer with an in-flight txid
	// is resubmitted before it reaches a terminal state.
	ErrDuplicateInFlight = errors.New("duplicate transfer in flight")
)
