package bank

import "errors"

var (
	// ErrUnknownUser is returned when a username has no account at this participant.
	ErrUnknownUser = errors.New("unknown user")
	// ErrBadPassword is returned when Authenticate is given the wrong password.
	ErrBadPassword = errors.New("bad password")
	// ErrInsufficientFunds is returned when a debit hold would overdraw the account.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrConflictingHold is returned when a second debit hold is requested for a
	// different txid while one is already live on the account.
	ErrConflictingHold = errors.New("conflicting hold")
	// ErrUnknownTxID is returned by Commit* when no live hold matches the txid.
	ErrUnknownTxID = errors.New("unknown txid")
	// ErrNotPrepared is returned by Commit* when the matching hold has already
	// expired before the commit arrived.
	ErrNotPrepared = errors.New("not prepared")
)

// DuplicateTxIDError is returned by Prepare* when the same txid was already
// prepared; State carries the hold's existing kind so callers can tell the
// idempotent retry apart from a genuine conflict.
type DuplicateTxIDError struct {
	State string
}

func (e *DuplicateTxIDError) Error() string {
	return "duplicate txid: " + e.State
}
