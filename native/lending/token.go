package lending

import (
	"fmt"

	"tokenlending/crypto"
	"tokenlending/native/lending/errs"
	"tokenlending/runtime"
	"tokenlending/runtime/token"
)

// tokenCalls issues token program invocations on behalf of the executing
// instruction. seeds sign for the market authority.
type tokenCalls struct {
	ic      *runtime.InvokeContext
	program crypto.Pubkey
	seeds   [][]byte
}

func (p *Program) tokens(ic *runtime.InvokeContext, program crypto.Pubkey, seeds [][]byte) tokenCalls {
	return tokenCalls{ic: ic, program: program, seeds: seeds}
}

func (t tokenCalls) signers(authoritySigns bool) [][][]byte {
	if !authoritySigns || t.seeds == nil {
		return nil
	}
	return [][][]byte{t.seeds}
}

// transfer moves amount from source to destination. authoritySigns selects
// the market authority as the signing owner of source.
func (t tokenCalls) transfer(source, destination, authority crypto.Pubkey, amount uint64, authoritySigns bool) error {
	if amount == 0 {
		return nil
	}
	ix := token.Transfer(t.program, source, destination, authority, amount)
	if err := t.ic.Invoke(ix, t.signers(authoritySigns)...); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTokenTransferFailed, err)
	}
	return nil
}

func (t tokenCalls) mintTo(mint, destination, authority crypto.Pubkey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	ix := token.MintTo(t.program, mint, destination, authority, amount)
	if err := t.ic.Invoke(ix, t.signers(true)...); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTokenMintToFailed, err)
	}
	return nil
}

func (t tokenCalls) burn(account, mint, authority crypto.Pubkey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	ix := token.Burn(t.program, account, mint, authority, amount)
	if err := t.ic.Invoke(ix); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTokenBurnFailed, err)
	}
	return nil
}

func (t tokenCalls) initializeMint(mint, authority crypto.Pubkey, decimals uint8) error {
	if err := t.ic.Invoke(token.InitializeMint(t.program, mint, authority, decimals)); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTokenInitializeMintFailed, err)
	}
	return nil
}

func (t tokenCalls) initializeAccount(account, mint, owner crypto.Pubkey) error {
	if err := t.ic.Invoke(token.InitializeAccount(t.program, account, mint, owner)); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTokenInitializeAccountFailed, err)
	}
	return nil
}
