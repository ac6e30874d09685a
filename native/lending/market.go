package lending

import (
	"fmt"

	"tokenlending/crypto"
	"tokenlending/native/lending/errs"
	"tokenlending/native/lending/state"
	"tokenlending/runtime"
)

// initLendingMarket accounts:
//
//  0. [writable] lending market
//  1. [] token program
//  2. [] primary oracle program
//  3. [] secondary oracle program
func (p *Program) initLendingMarket(accounts []*runtime.AccountInfo, owner crypto.Pubkey, quoteCurrency [32]byte) error {
	if err := requireAccounts(accounts, 4); err != nil {
		return err
	}
	marketInfo, tokenProgram, pythProgram, switchboardProgram := accounts[0], accounts[1], accounts[2], accounts[3]
	if err := p.owned(marketInfo); err != nil {
		return err
	}
	existing, err := state.UnpackLendingMarket(marketInfo.Data)
	if err != nil {
		return err
	}
	if existing.IsInitialized() {
		return fmt.Errorf("%w: lending market %s", errs.ErrAlreadyInitialized, marketInfo.Key)
	}
	if !p.oracle.PythProgramID.IsZero() && pythProgram.Key != p.oracle.PythProgramID {
		return fmt.Errorf("%w: primary oracle program %s", errs.ErrInvalidOracleConfig, pythProgram.Key)
	}
	if len(p.oracle.SwitchboardProgramIDs) > 0 && !containsKey(p.oracle.SwitchboardProgramIDs, switchboardProgram.Key) {
		return fmt.Errorf("%w: secondary oracle program %s", errs.ErrInvalidOracleConfig, switchboardProgram.Key)
	}

	_, bump, err := crypto.FindProgramAddress([][]byte{marketInfo.Key[:]}, p.id)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidMarketAuthority, err)
	}
	market := &state.LendingMarket{
		Version:             state.ProgramVersion,
		BumpSeed:            bump,
		Owner:               owner,
		QuoteCurrency:       quoteCurrency,
		TokenProgramID:      tokenProgram.Key,
		OracleProgramID:     pythProgram.Key,
		SwitchboardOracleID: switchboardProgram.Key,
	}
	return pack(marketInfo, market)
}

// setLendingMarketOwner accounts:
//
//  0. [writable] lending market
//  1. [signer] current owner
func (p *Program) setLendingMarketOwner(accounts []*runtime.AccountInfo, newOwner crypto.Pubkey) error {
	if err := requireAccounts(accounts, 2); err != nil {
		return err
	}
	marketInfo, ownerInfo := accounts[0], accounts[1]
	market, err := p.loadMarket(marketInfo)
	if err != nil {
		return err
	}
	if err := requireMarketOwner(market, ownerInfo); err != nil {
		return err
	}
	market.Owner = newOwner
	return pack(marketInfo, market)
}

func requireMarketOwner(market *state.LendingMarket, owner *runtime.AccountInfo) error {
	if market.Owner != owner.Key {
		return fmt.Errorf("%w: %s", errs.ErrInvalidMarketOwner, owner.Key)
	}
	return requireSigner(owner)
}

func containsKey(keys []crypto.Pubkey, key crypto.Pubkey) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
