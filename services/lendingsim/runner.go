package lendingsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"tokenlending/crypto"
	"tokenlending/native/lending/bootstrap"
	"tokenlending/native/lending/errs"
	"tokenlending/native/lending/instruction"
	"tokenlending/runtime"
)

// Runner plays scenarios against a bootstrapped bank.
type Runner struct {
	env    *bootstrap.Env
	logger *slog.Logger

	mintAuthority *crypto.Keypair
	market        *bootstrap.Market
	reserves      map[string]*simReserve
	order         []string
	actors        map[string]*actor
}

type simReserve struct {
	spec     ReserveSpec
	accounts *bootstrap.Reserve
	price    int64
}

type actor struct {
	name       string
	key        *crypto.Keypair
	liquidity  map[string]crypto.Pubkey
	collateral map[string]crypto.Pubkey
	obligation crypto.Pubkey
}

func NewRunner(env *bootstrap.Env, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		env:      env,
		logger:   logger,
		reserves: make(map[string]*simReserve),
		actors:   make(map[string]*actor),
	}
}

// Run sets up the scenario's market and plays every step. It stops at the
// first step whose outcome does not match its expectation; the partial
// report is returned alongside the error.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Scenario:  sc.Name,
		StartedAt: time.Now().UTC(),
	}
	logger := r.logger.With(slog.String("run_id", report.RunID), slog.String("scenario", sc.Name))

	if err := r.setup(ctx, sc); err != nil {
		return report, fmt.Errorf("setup: %w", err)
	}
	logger.Info("scenario ready", slog.Int("reserves", len(r.order)), slog.Int("actors", len(r.actors)))

	var runErr error
	for i, step := range sc.Steps {
		result := r.play(ctx, i, step)
		report.Steps = append(report.Steps, result)
		attrs := []any{
			slog.Int("step", i),
			slog.String("action", step.Action),
			slog.String("actor", step.Actor),
			slog.String("reserve", step.Reserve),
			slog.Uint64("slot", result.Slot),
		}
		if result.Error != "" {
			attrs = append(attrs, slog.String("error", result.Error))
		}
		if !result.OK {
			logger.Warn("step failed", attrs...)
			runErr = fmt.Errorf("step %d (%s): %s", i, step.Action, result.Failure)
			break
		}
		logger.Info("step", attrs...)
	}

	report.FinalSlot = r.env.Bank.Slot()
	if err := r.snapshot(report); err != nil && runErr == nil {
		runErr = fmt.Errorf("snapshot: %w", err)
	}
	report.FinishedAt = time.Now().UTC()
	return report, runErr
}

func (r *Runner) setup(ctx context.Context, sc *Scenario) error {
	var err error
	if r.mintAuthority, err = crypto.GenerateKeypair(); err != nil {
		return err
	}
	owner, err := crypto.GenerateKeypair()
	if err != nil {
		return err
	}
	treasury, err := crypto.GenerateKeypair()
	if err != nil {
		return err
	}
	quote := sc.Quote
	if quote == "" {
		quote = "USD"
	}
	if r.market, err = r.env.CreateMarket(ctx, owner, quote); err != nil {
		return err
	}

	for _, spec := range sc.Reserves {
		if err := r.createReserve(ctx, spec, treasury); err != nil {
			return fmt.Errorf("reserve %s: %w", spec.Symbol, err)
		}
	}

	names := make([]string, 0, len(sc.Actors))
	for name := range sc.Actors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key, err := crypto.GenerateKeypair()
		if err != nil {
			return err
		}
		a := &actor{
			name:       name,
			key:        key,
			liquidity:  make(map[string]crypto.Pubkey),
			collateral: make(map[string]crypto.Pubkey),
		}
		r.actors[name] = a
		for symbol, raw := range sc.Actors[name] {
			res := r.reserves[symbol]
			amount, err := ParseAmount(raw, res.spec.Decimals)
			if err != nil {
				return err
			}
			account, err := r.liquidityAccount(ctx, a, symbol)
			if err != nil {
				return err
			}
			if amount > 0 {
				if err := r.env.MintTo(ctx, res.accounts.LiquidityMint, r.mintAuthority, account, amount); err != nil {
					return fmt.Errorf("fund %s %s: %w", name, symbol, err)
				}
			}
		}
	}
	return nil
}

func (r *Runner) createReserve(ctx context.Context, spec ReserveSpec, treasury *crypto.Keypair) error {
	cfg, err := spec.ReserveConfig()
	if err != nil {
		return err
	}
	price, expo, err := ParsePrice(spec.Price)
	if err != nil {
		return err
	}
	liquidity, err := ParseAmount(spec.Liquidity, spec.Decimals)
	if err != nil {
		return err
	}
	mint, err := r.env.CreateMint(ctx, r.mintAuthority.Pubkey(), spec.Decimals)
	if err != nil {
		return err
	}
	source, err := r.env.CreateTokenAccount(ctx, mint, treasury.Pubkey())
	if err != nil {
		return err
	}
	if err := r.env.MintTo(ctx, mint, r.mintAuthority, source, liquidity); err != nil {
		return err
	}

	params := bootstrap.ReserveParams{
		LiquidityMint:   mint,
		Source:          source,
		Depositor:       treasury,
		LiquidityAmount: liquidity,
		Config:          cfg,
	}
	if params.PythOracle, err = r.newFeedKey(); err != nil {
		return err
	}
	if spec.Switchboard {
		if params.SwitchboardOracle, err = r.newFeedKey(); err != nil {
			return err
		}
	}
	res := &simReserve{spec: spec, price: price}
	res.accounts = &bootstrap.Reserve{PythOracle: params.PythOracle, SwitchboardOracle: params.SwitchboardOracle}
	if err := r.publish(res, expo); err != nil {
		return err
	}
	if res.accounts, err = r.env.CreateReserve(ctx, r.market, params); err != nil {
		return err
	}
	r.reserves[spec.Symbol] = res
	r.order = append(r.order, spec.Symbol)
	return nil
}

func (r *Runner) newFeedKey() (crypto.Pubkey, error) {
	kp, err := crypto.GenerateKeypair()
	if err != nil {
		return crypto.Pubkey{}, err
	}
	return kp.Pubkey(), nil
}

// publish writes the reserve's price to its feeds at the current slot.
func (r *Runner) publish(res *simReserve, expo int32) error {
	slot := r.env.Bank.Slot()
	if err := r.env.SetPythPrice(res.accounts.PythOracle, res.price, expo, 0, slot); err != nil {
		return err
	}
	if res.accounts.SwitchboardOracle.IsZero() || res.accounts.SwitchboardOracle == r.env.Programs.NullOracle {
		return nil
	}
	return r.env.SetSwitchboardPrice(res.accounts.SwitchboardOracle, uint64(res.price), uint32(-expo), slot)
}

func (r *Runner) liquidityAccount(ctx context.Context, a *actor, symbol string) (crypto.Pubkey, error) {
	if key, ok := a.liquidity[symbol]; ok {
		return key, nil
	}
	key, err := r.env.CreateTokenAccount(ctx, r.reserves[symbol].accounts.LiquidityMint, a.key.Pubkey())
	if err != nil {
		return crypto.Pubkey{}, err
	}
	a.liquidity[symbol] = key
	return key, nil
}

func (r *Runner) collateralAccount(ctx context.Context, a *actor, symbol string) (crypto.Pubkey, error) {
	if key, ok := a.collateral[symbol]; ok {
		return key, nil
	}
	key, err := r.env.CreateTokenAccount(ctx, r.reserves[symbol].accounts.CollateralMint, a.key.Pubkey())
	if err != nil {
		return crypto.Pubkey{}, err
	}
	a.collateral[symbol] = key
	return key, nil
}

func (r *Runner) obligationOf(ctx context.Context, a *actor) (crypto.Pubkey, error) {
	if !a.obligation.IsZero() {
		return a.obligation, nil
	}
	key, err := r.env.CreateObligation(ctx, r.market, a.key)
	if err != nil {
		return crypto.Pubkey{}, err
	}
	a.obligation = key
	return key, nil
}

// txBuilder collects the instructions of one transaction and keeps the first
// error returned while building them.
type txBuilder struct {
	ixs []runtime.Instruction
	err error
}

func (b *txBuilder) add(ix runtime.Instruction, err error) {
	if b.err != nil {
		return
	}
	if err != nil {
		b.err = err
		return
	}
	b.ixs = append(b.ixs, ix)
}

func (r *Runner) submit(ctx context.Context, signers []*crypto.Keypair, b *txBuilder) error {
	if b.err != nil {
		return fmt.Errorf("build transaction: %w", b.err)
	}
	return r.env.Process(ctx, signers, b.ixs...)
}

// refreshObligation adds the refreshes of every reserve the obligation
// touches, plus the extra reserves, followed by the obligation refresh.
func (r *Runner) refreshObligation(b *txBuilder, obligation crypto.Pubkey, extra ...string) error {
	o, err := r.env.LoadObligation(obligation)
	if err != nil {
		return err
	}
	var (
		refreshed = make(map[crypto.Pubkey]bool)
		ordered   []crypto.Pubkey
	)
	refresh := func(key crypto.Pubkey) {
		if refreshed[key] {
			return
		}
		refreshed[key] = true
		for _, res := range r.reserves {
			if res.accounts.Key == key {
				b.add(r.env.Refresh(res.accounts))
				return
			}
		}
	}
	for _, d := range o.Deposits {
		refresh(d.DepositReserve)
		ordered = append(ordered, d.DepositReserve)
	}
	for _, l := range o.Borrows {
		refresh(l.BorrowReserve)
		ordered = append(ordered, l.BorrowReserve)
	}
	for _, symbol := range extra {
		refresh(r.reserves[symbol].accounts.Key)
	}
	b.add(instruction.NewRefreshObligation(r.env.Programs.Lending, obligation, ordered...))
	return nil
}

// StepResult records the outcome of one scenario step.
type StepResult struct {
	Index   int    `json:"index"`
	Action  string `json:"action"`
	Actor   string `json:"actor,omitempty"`
	Reserve string `json:"reserve,omitempty"`
	Slot    uint64 `json:"slot"`
	// Code is the lending result code of a failed step, if any.
	Code    *uint32 `json:"code,omitempty"`
	Error   string  `json:"error,omitempty"`
	OK      bool    `json:"ok"`
	Failure string  `json:"failure,omitempty"`
}

func (r *Runner) play(ctx context.Context, index int, step Step) StepResult {
	result := StepResult{Index: index, Action: step.Action, Actor: step.Actor, Reserve: step.Reserve}
	err := r.execute(ctx, step)
	result.Slot = r.env.Bank.Slot()
	if err != nil {
		result.Error = err.Error()
		if code, ok := errs.AsCode(err); ok {
			c := uint32(code)
			result.Code = &c
		}
	}
	switch {
	case step.ExpectError == "" && err == nil:
		result.OK = true
	case step.ExpectError == "":
		result.Failure = "unexpected error: " + err.Error()
	case err == nil:
		result.Failure = fmt.Sprintf("expected error containing %q", step.ExpectError)
	case strings.Contains(err.Error(), step.ExpectError):
		result.OK = true
	default:
		result.Failure = fmt.Sprintf("expected error containing %q, got %v", step.ExpectError, err)
	}
	return result
}

func (r *Runner) execute(ctx context.Context, step Step) error {
	switch step.Action {
	case ActionAdvance:
		if err := r.env.Bank.AdvanceSlot(step.Slots); err != nil {
			return err
		}
		for _, symbol := range r.order {
			if err := r.publish(r.reserves[symbol], PriceExponent); err != nil {
				return err
			}
		}
		return nil
	case ActionSetPrice:
		res := r.reserves[step.Reserve]
		price, expo, err := ParsePrice(step.Price)
		if err != nil {
			return err
		}
		res.price = price
		return r.publish(res, expo)
	case ActionRedeemFees:
		res := r.reserves[step.Reserve].accounts
		var b txBuilder
		b.add(r.env.Refresh(res))
		b.add(instruction.NewRedeemFees(r.env.Programs.Lending, res.Key, res.FeeReceiver, res.LiquiditySupply,
			r.market.Key, r.env.Programs.Token))
		return r.submit(ctx, nil, &b)
	}

	a := r.actors[step.Actor]
	res := r.reserves[step.Reserve]
	amount, err := ParseAmount(step.Amount, res.spec.Decimals)
	if err != nil {
		return err
	}
	liquidity, err := r.liquidityAccount(ctx, a, step.Reserve)
	if err != nil {
		return err
	}
	signers := []*crypto.Keypair{a.key}
	programID, tokenID := r.env.Programs.Lending, r.env.Programs.Token
	ra := res.accounts
	var b txBuilder

	switch step.Action {
	case ActionSupply:
		collateral, err := r.collateralAccount(ctx, a, step.Reserve)
		if err != nil {
			return err
		}
		b.add(r.env.Refresh(ra))
		b.add(instruction.NewDepositReserveLiquidity(programID, amount, liquidity, collateral, ra.Key,
			ra.LiquiditySupply, ra.CollateralMint, r.market.Key, a.key.Pubkey(), tokenID))

	case ActionRedeem:
		collateral, err := r.collateralAccount(ctx, a, step.Reserve)
		if err != nil {
			return err
		}
		b.add(r.env.Refresh(ra))
		b.add(instruction.NewRedeemReserveCollateral(programID, amount, collateral, liquidity, ra.Key,
			ra.CollateralMint, ra.LiquiditySupply, r.market.Key, a.key.Pubkey(), tokenID))

	case ActionDeposit:
		collateral, err := r.collateralAccount(ctx, a, step.Reserve)
		if err != nil {
			return err
		}
		obligation, err := r.obligationOf(ctx, a)
		if err != nil {
			return err
		}
		b.add(r.env.Refresh(ra))
		b.add(instruction.NewDepositReserveLiquidityAndObligationCollateral(programID, amount, liquidity, collateral,
			ra.Key, ra.LiquiditySupply, ra.CollateralMint, r.market.Key, ra.CollateralSupply, obligation,
			a.key.Pubkey(), a.key.Pubkey(), tokenID))

	case ActionWithdraw:
		collateral, err := r.collateralAccount(ctx, a, step.Reserve)
		if err != nil {
			return err
		}
		obligation, err := r.obligationOf(ctx, a)
		if err != nil {
			return err
		}
		if err := r.refreshObligation(&b, obligation, step.Reserve); err != nil {
			return err
		}
		b.add(instruction.NewWithdrawObligationCollateralAndRedeemReserveCollateral(programID, amount,
			ra.CollateralSupply, collateral, ra.Key, obligation, r.market.Key, liquidity, ra.CollateralMint,
			ra.LiquiditySupply, a.key.Pubkey(), a.key.Pubkey(), tokenID))

	case ActionBorrow:
		obligation, err := r.obligationOf(ctx, a)
		if err != nil {
			return err
		}
		if err := r.refreshObligation(&b, obligation, step.Reserve); err != nil {
			return err
		}
		b.add(instruction.NewBorrowObligationLiquidity(programID, amount, ra.LiquiditySupply, liquidity,
			ra.Key, ra.FeeReceiver, obligation, r.market.Key, a.key.Pubkey(), tokenID, crypto.Pubkey{}))

	case ActionRepay:
		obligation, err := r.obligationOf(ctx, a)
		if err != nil {
			return err
		}
		if err := r.refreshObligation(&b, obligation, step.Reserve); err != nil {
			return err
		}
		b.add(instruction.NewRepayObligationLiquidity(programID, amount, liquidity, ra.LiquiditySupply,
			ra.Key, obligation, r.market.Key, a.key.Pubkey(), tokenID))

	case ActionFlashLoan:
		b.add(instruction.NewFlashBorrowReserveLiquidity(programID, amount, ra.LiquiditySupply, liquidity, ra.Key,
			r.market.Key, tokenID))
		b.add(instruction.NewFlashRepayReserveLiquidity(programID, amount, 0, liquidity, ra.LiquiditySupply,
			ra.FeeReceiver, ra.FeeReceiver, ra.Key, r.market.Key, a.key.Pubkey(), tokenID))

	case ActionLiquidate:
		target := r.actors[step.Target]
		if target.obligation.IsZero() {
			return errors.New("target has no obligation")
		}
		withdraw := r.reserves[step.Collateral].accounts
		seized, err := r.collateralAccount(ctx, a, step.Collateral)
		if err != nil {
			return err
		}
		proceeds, err := r.liquidityAccount(ctx, a, step.Collateral)
		if err != nil {
			return err
		}
		if err := r.refreshObligation(&b, target.obligation, step.Reserve, step.Collateral); err != nil {
			return err
		}
		b.add(instruction.NewLiquidateObligationAndRedeemReserveCollateral(programID, amount,
			instruction.LiquidateAccounts{
				SourceLiquidity:           liquidity,
				DestinationCollateral:     seized,
				RepayReserve:              ra.Key,
				RepayReserveLiquidity:     ra.LiquiditySupply,
				WithdrawReserve:           withdraw.Key,
				WithdrawReserveCollateral: withdraw.CollateralSupply,
				Obligation:                target.obligation,
				LendingMarket:             r.market.Key,
				UserTransferAuthority:     a.key.Pubkey(),
				TokenProgram:              tokenID,
			}, proceeds, withdraw.CollateralMint, withdraw.LiquiditySupply, withdraw.FeeReceiver))

	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return r.submit(ctx, signers, &b)
}
