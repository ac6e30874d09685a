package token

import "errors"

var (
	ErrInvalidInstruction  = errors.New("token: invalid instruction")
	ErrInvalidAccountData  = errors.New("token: invalid account data")
	ErrInvalidAccountOwner = errors.New("token: account not owned by the token program")
	ErrNotEnoughAccounts   = errors.New("token: not enough account keys")
	ErrAlreadyInUse        = errors.New("token: account or mint already initialized")
	ErrUninitializedState  = errors.New("token: account or mint not initialized")
	ErrInsufficientFunds   = errors.New("token: insufficient funds")
	ErrMintMismatch        = errors.New("token: account not associated with this mint")
	ErrOwnerMismatch       = errors.New("token: owner does not match")
	ErrFixedSupply         = errors.New("token: fixed supply")
	ErrAccountFrozen       = errors.New("token: account is frozen")
	ErrMissingSignature    = errors.New("token: authority signature missing")
	ErrOverflow            = errors.New("token: operation overflowed")
)
