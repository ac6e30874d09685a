package runtime

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound        = errors.New("runtime: account not found")
	ErrProgramNotFound        = errors.New("runtime: program not found")
	ErrEmptyTransaction       = errors.New("runtime: transaction has no instructions")
	ErrMissingSignature       = errors.New("runtime: missing required signature")
	ErrInvalidSignature       = errors.New("runtime: invalid signature")
	ErrReadonlyDataModified   = errors.New("runtime: instruction modified data of a read-only account")
	ErrExternalDataModified   = errors.New("runtime: instruction modified data of an account it does not own")
	ErrAccountDataSizeChanged = errors.New("runtime: instruction changed the size of account data")
	ErrOwnerModified          = errors.New("runtime: instruction modified the owner of an account")
	ErrLamportsModified       = errors.New("runtime: instruction modified account lamports")
	ErrPrivilegeEscalation    = errors.New("runtime: cross-program invocation with unauthorized signer or writable account")
	ErrMissingAccount         = errors.New("runtime: invoked instruction references an account the caller does not hold")
	ErrCallDepth              = errors.New("runtime: cross-program invocation call depth too deep")
	ErrReentrancy             = errors.New("runtime: cross-program invocation reentrancy not allowed")
)

// TransactionError reports the instruction that aborted a transaction. Index
// equals the number of instructions when a post-execution check failed.
type TransactionError struct {
	Index int
	Err   error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction: instruction %d: %v", e.Index, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
