package lending

import (
	"fmt"

	"tokenlending/crypto"
	"tokenlending/native/lending/errs"
	"tokenlending/native/lending/oracle"
	"tokenlending/native/lending/state"
	"tokenlending/runtime"
	"tokenlending/runtime/token"
)

func requireAccounts(accounts []*runtime.AccountInfo, n int) error {
	if len(accounts) < n {
		return fmt.Errorf("%w: expected %d accounts, got %d", errs.ErrInvalidAccountInput, n, len(accounts))
	}
	return nil
}

func requireSigner(info *runtime.AccountInfo) error {
	if !info.IsSigner {
		return fmt.Errorf("%w: %s", errs.ErrInvalidSigner, info.Key)
	}
	return nil
}

func requireAmount(amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: amount must be greater than zero", errs.ErrInvalidAmount)
	}
	return nil
}

func (p *Program) owned(info *runtime.AccountInfo) error {
	if info.Owner != p.id {
		return fmt.Errorf("%w: %s", errs.ErrInvalidAccountOwner, info.Key)
	}
	return nil
}

func (p *Program) loadMarket(info *runtime.AccountInfo) (*state.LendingMarket, error) {
	if err := p.owned(info); err != nil {
		return nil, err
	}
	market, err := state.UnpackLendingMarket(info.Data)
	if err != nil {
		return nil, err
	}
	if !market.IsInitialized() {
		return nil, fmt.Errorf("%w: lending market %s is not initialized", errs.ErrInvalidAccountInput, info.Key)
	}
	return market, nil
}

// loadReserve unpacks a reserve and checks it belongs to market.
func (p *Program) loadReserve(info *runtime.AccountInfo, market crypto.Pubkey) (*state.Reserve, error) {
	if err := p.owned(info); err != nil {
		return nil, err
	}
	reserve, err := state.UnpackReserve(info.Data)
	if err != nil {
		return nil, err
	}
	if !reserve.IsInitialized() {
		return nil, fmt.Errorf("%w: reserve %s is not initialized", errs.ErrInvalidAccountInput, info.Key)
	}
	if market != (crypto.Pubkey{}) && reserve.LendingMarket != market {
		return nil, fmt.Errorf("%w: reserve %s belongs to another lending market", errs.ErrInvalidAccountInput, info.Key)
	}
	return reserve, nil
}

func (p *Program) loadObligation(info *runtime.AccountInfo, market crypto.Pubkey) (*state.Obligation, error) {
	if err := p.owned(info); err != nil {
		return nil, err
	}
	obligation, err := state.UnpackObligation(info.Data)
	if err != nil {
		return nil, err
	}
	if !obligation.IsInitialized() {
		return nil, fmt.Errorf("%w: obligation %s is not initialized", errs.ErrInvalidAccountInput, info.Key)
	}
	if market != (crypto.Pubkey{}) && obligation.LendingMarket != market {
		return nil, fmt.Errorf("%w: obligation %s belongs to another lending market", errs.ErrInvalidAccountInput, info.Key)
	}
	return obligation, nil
}

func requireObligationOwner(obligation *state.Obligation, owner *runtime.AccountInfo) error {
	if obligation.Owner != owner.Key {
		return fmt.Errorf("%w: %s", errs.ErrInvalidObligationOwner, owner.Key)
	}
	return requireSigner(owner)
}

// marketAuthority checks that info is the derived signer of the market and
// returns the seeds to sign with.
func (p *Program) marketAuthority(marketKey crypto.Pubkey, market *state.LendingMarket, info *runtime.AccountInfo) ([][]byte, error) {
	seeds := authoritySeeds(marketKey, market.BumpSeed)
	authority, err := crypto.CreateProgramAddress(seeds, p.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidMarketAuthority, err)
	}
	if authority != info.Key {
		return nil, fmt.Errorf("%w: expected %s", errs.ErrInvalidMarketAuthority, authority)
	}
	return seeds, nil
}

func authoritySeeds(market crypto.Pubkey, bump uint8) [][]byte {
	return [][]byte{append([]byte(nil), market[:]...), {bump}}
}

func requireTokenProgram(market *state.LendingMarket, info *runtime.AccountInfo) error {
	if info.Key != market.TokenProgramID {
		return fmt.Errorf("%w: %s", errs.ErrInvalidTokenProgram, info.Key)
	}
	return nil
}

func requireKey(info *runtime.AccountInfo, expected crypto.Pubkey, what string) error {
	if info.Key != expected {
		return fmt.Errorf("%w: %s %s does not match %s", errs.ErrInvalidAccountInput, what, info.Key, expected)
	}
	return nil
}

func requireDistinct(a, b *runtime.AccountInfo, what string) error {
	if a.Key == b.Key {
		return fmt.Errorf("%w: %s", errs.ErrInvalidAccountInput, what)
	}
	return nil
}

func requireFreshReserve(reserve *state.Reserve, key crypto.Pubkey, slot uint64) error {
	stale, err := reserve.IsStale(slot)
	if err != nil {
		return err
	}
	if stale {
		return fmt.Errorf("%w: reserve %s", errs.ErrReserveStale, key)
	}
	return nil
}

func requireFreshObligation(obligation *state.Obligation, key crypto.Pubkey, slot uint64) error {
	stale, err := obligation.LastUpdate.IsStale(slot)
	if err != nil {
		return err
	}
	if stale {
		return fmt.Errorf("%w: obligation %s", errs.ErrObligationStale, key)
	}
	return nil
}

// tokenBalance reads a token account owned by the market's token program.
func tokenBalance(market *state.LendingMarket, info *runtime.AccountInfo) (*token.Account, error) {
	if info.Owner != market.TokenProgramID {
		return nil, fmt.Errorf("%w: %s", errs.ErrInvalidTokenOwner, info.Key)
	}
	acc, err := token.UnpackAccount(info.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidAccountInput, err)
	}
	return acc, nil
}

// reader returns an oracle reader for market. A nil market selects the
// program-wide oracle programs.
func (p *Program) reader(market *state.LendingMarket) *oracle.Reader {
	cfg := p.oracle
	if market != nil {
		cfg.PythProgramID = market.OracleProgramID
		cfg.SwitchboardProgramIDs = append([]crypto.Pubkey{market.SwitchboardOracleID}, p.oracle.SwitchboardProgramIDs...)
	}
	return oracle.NewReader(cfg, p.emitter)
}

func (p *Program) feed(info *runtime.AccountInfo) *oracle.Feed {
	if p.oracle.IsNull(info.Key) {
		return nil
	}
	return &oracle.Feed{Key: info.Key, Owner: info.Owner, Data: info.Data}
}

func pack(info *runtime.AccountInfo, record interface{ Pack([]byte) error }) error {
	return record.Pack(info.Data)
}
