// Package bootstrap seeds a bank with the token and lending programs, price
// feeds, markets, reserves and obligations. Simulations and tests drive the
// lending program through it.
package bootstrap

import (
	"context"
	"fmt"

	"tokenlending/crypto"
	"tokenlending/native/lending"
	"tokenlending/native/lending/instruction"
	"tokenlending/native/lending/oracle"
	"tokenlending/native/lending/state"
	"tokenlending/runtime"
	"tokenlending/runtime/token"
)

// Programs names the program ids a lending deployment is wired to.
type Programs struct {
	Token       crypto.Pubkey
	Lending     crypto.Pubkey
	Pyth        crypto.Pubkey
	Switchboard crypto.Pubkey
	NullOracle  crypto.Pubkey
}

// Env is a bank with the token and lending programs registered.
type Env struct {
	Bank     *runtime.Bank
	Programs Programs
	Lending  *lending.Program

	nonce uint64
}

// New registers the token and lending programs on bank.
func New(bank *runtime.Bank, programs Programs, oracleCfg oracle.Config) *Env {
	oracleCfg.PythProgramID = programs.Pyth
	if len(oracleCfg.SwitchboardProgramIDs) == 0 {
		oracleCfg.SwitchboardProgramIDs = []crypto.Pubkey{programs.Switchboard}
	}
	oracleCfg.NullOracle = programs.NullOracle
	program := lending.NewProgram(programs.Lending, oracleCfg)
	bank.RegisterProgram(programs.Token, token.NewProgram(programs.Token))
	bank.RegisterProgram(programs.Lending, program)
	return &Env{Bank: bank, Programs: programs, Lending: program}
}

// Process signs and executes ixs as one transaction.
func (e *Env) Process(ctx context.Context, signers []*crypto.Keypair, ixs ...runtime.Instruction) error {
	e.nonce++
	tx := runtime.NewTransaction(ixs...)
	tx.Nonce = e.nonce
	if err := tx.Sign(signers...); err != nil {
		return err
	}
	return e.Bank.ProcessTransaction(ctx, tx)
}

// Allocate creates a zeroed account of size bytes owned by owner under a
// fresh key.
func (e *Env) Allocate(owner crypto.Pubkey, size int) (crypto.Pubkey, error) {
	kp, err := crypto.GenerateKeypair()
	if err != nil {
		return crypto.Pubkey{}, err
	}
	key := kp.Pubkey()
	if err := e.Bank.SetAccount(key, runtime.NewAccount(owner, size)); err != nil {
		return crypto.Pubkey{}, err
	}
	return key, nil
}

func (e *Env) allocateToken(size int) (crypto.Pubkey, error) {
	return e.Allocate(e.Programs.Token, size)
}

// CreateMint initializes a token mint controlled by authority.
func (e *Env) CreateMint(ctx context.Context, authority crypto.Pubkey, decimals uint8) (crypto.Pubkey, error) {
	mint, err := e.allocateToken(token.MintLen)
	if err != nil {
		return crypto.Pubkey{}, err
	}
	if err := e.Process(ctx, nil, token.InitializeMint(e.Programs.Token, mint, authority, decimals)); err != nil {
		return crypto.Pubkey{}, fmt.Errorf("initialize mint: %w", err)
	}
	return mint, nil
}

// CreateTokenAccount initializes a token account for mint held by owner.
func (e *Env) CreateTokenAccount(ctx context.Context, mint, owner crypto.Pubkey) (crypto.Pubkey, error) {
	account, err := e.allocateToken(token.AccountLen)
	if err != nil {
		return crypto.Pubkey{}, err
	}
	if err := e.Process(ctx, nil, token.InitializeAccount(e.Programs.Token, account, mint, owner)); err != nil {
		return crypto.Pubkey{}, fmt.Errorf("initialize token account: %w", err)
	}
	return account, nil
}

// MintTo credits amount of mint to destination.
func (e *Env) MintTo(ctx context.Context, mint crypto.Pubkey, authority *crypto.Keypair, destination crypto.Pubkey, amount uint64) error {
	return e.Process(ctx, []*crypto.Keypair{authority},
		token.MintTo(e.Programs.Token, mint, destination, authority.Pubkey(), amount))
}

// Balance returns the amount held by a token account.
func (e *Env) Balance(key crypto.Pubkey) (uint64, error) {
	acc, err := e.Bank.GetAccount(key)
	if err != nil {
		return 0, err
	}
	state, err := token.UnpackAccount(acc.Data)
	if err != nil {
		return 0, err
	}
	return state.Amount, nil
}

// SetPythPrice writes a trading primary feed published at slot.
func (e *Env) SetPythPrice(key crypto.Pubkey, price int64, expo int32, conf uint64, slot uint64) error {
	data, err := oracle.EncodePythPrice(oracle.NewPythPrice(price, expo, conf, slot), oracle.PythHeaderLen)
	if err != nil {
		return err
	}
	return e.Bank.SetAccount(key, &runtime.Account{Owner: e.Programs.Pyth, Data: data})
}

// SetSwitchboardPrice writes a secondary feed round opened at slot.
func (e *Env) SetSwitchboardPrice(key crypto.Pubkey, mantissa uint64, scale uint32, slot uint64) error {
	data, err := oracle.EncodeSwitchboardRound(oracle.NewSwitchboardRound(mantissa, scale, slot))
	if err != nil {
		return err
	}
	return e.Bank.SetAccount(key, &runtime.Account{Owner: e.Programs.Switchboard, Data: data})
}

// Market is an initialized lending market.
type Market struct {
	Key       crypto.Pubkey
	Authority crypto.Pubkey
	Owner     *crypto.Keypair
}

// CreateMarket allocates and initializes a lending market owned by owner.
func (e *Env) CreateMarket(ctx context.Context, owner *crypto.Keypair, quoteCurrency string) (*Market, error) {
	key, err := e.Allocate(e.Programs.Lending, state.LendingMarketLen)
	if err != nil {
		return nil, err
	}
	var quote [32]byte
	copy(quote[:], quoteCurrency)
	ix, err := instruction.NewInitLendingMarket(e.Programs.Lending, owner.Pubkey(), quote, key,
		e.Programs.Token, e.Programs.Pyth, e.Programs.Switchboard)
	if err != nil {
		return nil, err
	}
	if err := e.Process(ctx, nil, ix); err != nil {
		return nil, fmt.Errorf("init lending market: %w", err)
	}
	authority, _, err := instruction.MarketAuthority(e.Programs.Lending, key)
	if err != nil {
		return nil, err
	}
	return &Market{Key: key, Authority: authority, Owner: owner}, nil
}

// ReserveParams describes a reserve to create. The depositor funds the
// initial liquidity from Source and receives the collateral.
type ReserveParams struct {
	LiquidityMint     crypto.Pubkey
	Source            crypto.Pubkey
	Depositor         *crypto.Keypair
	LiquidityAmount   uint64
	PythOracle        crypto.Pubkey
	SwitchboardOracle crypto.Pubkey
	Config            state.ReserveConfig
}

// Reserve lists the accounts of an initialized reserve.
type Reserve struct {
	Key               crypto.Pubkey
	Market            *Market
	LiquidityMint     crypto.Pubkey
	LiquiditySupply   crypto.Pubkey
	FeeReceiver       crypto.Pubkey
	CollateralMint    crypto.Pubkey
	CollateralSupply  crypto.Pubkey
	PythOracle        crypto.Pubkey
	SwitchboardOracle crypto.Pubkey
	// DepositorCollateral received the collateral minted for the initial
	// liquidity.
	DepositorCollateral crypto.Pubkey
}

// CreateReserve allocates every account a reserve needs and initializes it.
func (e *Env) CreateReserve(ctx context.Context, market *Market, params ReserveParams) (*Reserve, error) {
	r := &Reserve{
		Market:            market,
		LiquidityMint:     params.LiquidityMint,
		PythOracle:        params.PythOracle,
		SwitchboardOracle: params.SwitchboardOracle,
	}
	if r.PythOracle.IsZero() {
		r.PythOracle = e.Programs.NullOracle
	}
	if r.SwitchboardOracle.IsZero() {
		r.SwitchboardOracle = e.Programs.NullOracle
	}
	var err error
	if r.Key, err = e.Allocate(e.Programs.Lending, state.ReserveLen); err != nil {
		return nil, err
	}
	for _, target := range []*crypto.Pubkey{&r.LiquiditySupply, &r.FeeReceiver, &r.CollateralSupply, &r.DepositorCollateral} {
		if *target, err = e.allocateToken(token.AccountLen); err != nil {
			return nil, err
		}
	}
	if r.CollateralMint, err = e.allocateToken(token.MintLen); err != nil {
		return nil, err
	}

	ix, err := instruction.NewInitReserve(e.Programs.Lending, params.LiquidityAmount, params.Config, instruction.InitReserveAccounts{
		SourceLiquidity:       params.Source,
		DestinationCollateral: r.DepositorCollateral,
		Reserve:               r.Key,
		LiquidityMint:         r.LiquidityMint,
		LiquiditySupply:       r.LiquiditySupply,
		FeeReceiver:           r.FeeReceiver,
		PythOracle:            r.PythOracle,
		SwitchboardOracle:     r.SwitchboardOracle,
		CollateralMint:        r.CollateralMint,
		CollateralSupply:      r.CollateralSupply,
		LendingMarket:         market.Key,
		LendingMarketOwner:    market.Owner.Pubkey(),
		UserTransferAuthority: params.Depositor.Pubkey(),
		TokenProgram:          e.Programs.Token,
	})
	if err != nil {
		return nil, err
	}
	if err := e.Process(ctx, []*crypto.Keypair{market.Owner, params.Depositor}, ix); err != nil {
		return nil, fmt.Errorf("init reserve: %w", err)
	}
	return r, nil
}

// Refresh returns the instruction that refreshes r.
func (e *Env) Refresh(r *Reserve) (runtime.Instruction, error) {
	return instruction.NewRefreshReserve(e.Programs.Lending, r.Key, r.PythOracle, r.SwitchboardOracle)
}

// CreateObligation allocates and initializes an obligation for owner.
func (e *Env) CreateObligation(ctx context.Context, market *Market, owner *crypto.Keypair) (crypto.Pubkey, error) {
	key, err := e.Allocate(e.Programs.Lending, state.ObligationLen)
	if err != nil {
		return crypto.Pubkey{}, err
	}
	ix, err := instruction.NewInitObligation(e.Programs.Lending, key, market.Key, owner.Pubkey())
	if err != nil {
		return crypto.Pubkey{}, err
	}
	if err := e.Process(ctx, []*crypto.Keypair{owner}, ix); err != nil {
		return crypto.Pubkey{}, fmt.Errorf("init obligation: %w", err)
	}
	return key, nil
}

func (e *Env) LoadReserve(key crypto.Pubkey) (*state.Reserve, error) {
	acc, err := e.Bank.GetAccount(key)
	if err != nil {
		return nil, err
	}
	return state.UnpackReserve(acc.Data)
}

func (e *Env) LoadObligation(key crypto.Pubkey) (*state.Obligation, error) {
	acc, err := e.Bank.GetAccount(key)
	if err != nil {
		return nil, err
	}
	return state.UnpackObligation(acc.Data)
}
