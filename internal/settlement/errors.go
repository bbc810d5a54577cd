package settlement

import "errors"

var (
	// ErrDuplicateExecution means the execution id was already booked for
	// this sub-account. The ledger is left untouched.
	ErrDuplicateExecution = errors.New("duplicate execution")

	// ErrUnresolvedAccount means the fill could not be attributed to a
	// sub-account.
	ErrUnresolvedAccount = errors.New("unresolved account")
)
