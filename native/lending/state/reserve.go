package state

import (
	"fmt"
	"math"

	"github.com/near/borsh-go"

	"tokenlending/crypto"
	"tokenlending/native/lending/decimal"
	"tokenlending/native/lending/errs"
)

// ReserveLen is the packed size of a reserve record.
const ReserveLen = 619

// InitialCollateralRate is the collateral minted per unit of liquidity while
// a reserve has no collateral outstanding.
const InitialCollateralRate uint64 = 1

// LiquidationCloseFactor is the share of an obligation's borrowed value that
// a single liquidation may repay.
const LiquidationCloseFactor uint8 = 20

// LiquidationCloseAmount is the debt below which a liquidation may close out
// a borrow entirely.
const LiquidationCloseAmount uint64 = 2

// Reserve is a single asset pool: its liquidity supply, the collateral
// token minted against deposits and the risk configuration.
type Reserve struct {
	Version       uint8
	LastUpdate    LastUpdate
	LendingMarket crypto.Pubkey
	Liquidity     ReserveLiquidity
	Collateral    ReserveCollateral
	Config        ReserveConfig
	FlashLoan     FlashLoanMarker
}

// ReserveLiquidity is the borrowable side of a reserve.
type ReserveLiquidity struct {
	MintPubkey              crypto.Pubkey
	MintDecimals            uint8
	SupplyPubkey            crypto.Pubkey
	PythOracle              crypto.Pubkey
	SwitchboardOracle       crypto.Pubkey
	AvailableAmount         uint64
	BorrowedAmount          decimal.Decimal
	CumulativeBorrowRate    decimal.Decimal
	AccumulatedProtocolFees decimal.Decimal
	MarketPrice             decimal.Decimal
}

// ReserveCollateral is the collateral token minted to depositors.
type ReserveCollateral struct {
	MintPubkey      crypto.Pubkey
	MintTotalSupply uint64
	SupplyPubkey    crypto.Pubkey
}

// ReserveConfig holds the risk and fee parameters of a reserve. Percentages
// are whole numbers.
type ReserveConfig struct {
	OptimalUtilizationRate uint8
	LoanToValueRatio       uint8
	LiquidationBonus       uint8
	LiquidationThreshold   uint8
	MinBorrowRate          uint8
	OptimalBorrowRate      uint8
	MaxBorrowRate          uint8
	Fees                   ReserveFees
	DepositLimit           uint64
	BorrowLimit            uint64
	FeeReceiver            crypto.Pubkey
	ProtocolLiquidationFee uint8
	ProtocolTakeRate       uint8
}

// FlashLoanMarker records a flash borrow awaiting its repay inside the
// current transaction. A zero Amount means no loan is outstanding.
type FlashLoanMarker struct {
	Amount                 uint64
	BorrowInstructionIndex uint8
}

func (m FlashLoanMarker) Outstanding() bool { return m.Amount != 0 }

// Validate checks that every percentage and fee is in range.
func (c ReserveConfig) Validate() error {
	switch {
	case c.OptimalUtilizationRate > 100:
		return fmt.Errorf("%w: optimal utilization rate must be in [0, 100]", errs.ErrInvalidConfig)
	case c.LoanToValueRatio >= 100:
		return fmt.Errorf("%w: loan to value ratio must be in [0, 100)", errs.ErrInvalidConfig)
	case c.LiquidationBonus > 100:
		return fmt.Errorf("%w: liquidation bonus must be in [0, 100]", errs.ErrInvalidConfig)
	case c.LiquidationThreshold <= c.LoanToValueRatio || c.LiquidationThreshold > 100:
		return fmt.Errorf("%w: liquidation threshold must be in (LTV, 100]", errs.ErrInvalidConfig)
	case c.OptimalBorrowRate < c.MinBorrowRate:
		return fmt.Errorf("%w: optimal borrow rate below min borrow rate", errs.ErrInvalidConfig)
	case c.OptimalBorrowRate > c.MaxBorrowRate:
		return fmt.Errorf("%w: optimal borrow rate above max borrow rate", errs.ErrInvalidConfig)
	case c.Fees.BorrowFeeWad >= decimal.WAD:
		return fmt.Errorf("%w: borrow fee must be in [0, 1)", errs.ErrInvalidConfig)
	case c.Fees.FlashLoanFeeWad > decimal.WAD && c.Fees.FlashLoanFeeWad != FlashLoansDisabled:
		return fmt.Errorf("%w: flash loan fee must be in [0, 1] or disabled", errs.ErrInvalidConfig)
	case c.Fees.HostFeePercentage > 100:
		return fmt.Errorf("%w: host fee percentage must be in [0, 100]", errs.ErrInvalidConfig)
	case c.ProtocolLiquidationFee > 100:
		return fmt.Errorf("%w: protocol liquidation fee must be in [0, 100]", errs.ErrInvalidConfig)
	case c.ProtocolTakeRate > 100:
		return fmt.Errorf("%w: protocol take rate must be in [0, 100]", errs.ErrInvalidConfig)
	}
	return nil
}

// NewReserveParams are the inputs of a freshly initialized reserve.
type NewReserveParams struct {
	CurrentSlot   uint64
	LendingMarket crypto.Pubkey
	Liquidity     ReserveLiquidity
	Collateral    ReserveCollateral
	Config        ReserveConfig
}

func NewReserve(params NewReserveParams) *Reserve {
	r := &Reserve{
		Version:       ProgramVersion,
		LastUpdate:    NewLastUpdate(params.CurrentSlot),
		LendingMarket: params.LendingMarket,
		Liquidity:     params.Liquidity,
		Collateral:    params.Collateral,
		Config:        params.Config,
	}
	r.Liquidity.CumulativeBorrowRate = decimal.One()
	return r
}

func (r *Reserve) IsInitialized() bool { return r.Version != UninitializedVersion }

// IsStale reports whether the reserve must be refreshed before use at slot.
// An outstanding flash loan always leaves the reserve stale.
func (r *Reserve) IsStale(slot uint64) (bool, error) {
	if r.FlashLoan.Outstanding() {
		return true, nil
	}
	return r.LastUpdate.IsStale(slot)
}

// CurrentBorrowRate evaluates the interest curve at the current utilization.
func (r *Reserve) CurrentBorrowRate() (decimal.Decimal, error) {
	utilization, err := r.Liquidity.UtilizationRate()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return r.Config.InterestModel().BorrowRate(utilization)
}

// AccrueInterest compounds interest from the last update to slot.
func (r *Reserve) AccrueInterest(slot uint64) error {
	elapsed, err := r.LastUpdate.SlotsElapsed(slot)
	if err != nil {
		return err
	}
	if elapsed == 0 {
		return nil
	}
	rate, err := r.CurrentBorrowRate()
	if err != nil {
		return err
	}
	return r.Liquidity.CompoundInterest(rate, elapsed, r.Config.ProtocolTakeRate)
}

// Refresh stamps price, accrues interest to slot and marks the reserve
// fresh. Refreshing twice in the same slot leaves amounts unchanged.
func (r *Reserve) Refresh(slot uint64, price decimal.Decimal) error {
	if r.FlashLoan.Outstanding() {
		return errs.ErrFlashLoanOutstanding
	}
	r.Liquidity.MarketPrice = price
	if err := r.AccrueInterest(slot); err != nil {
		return err
	}
	r.LastUpdate.UpdateSlot(slot)
	return nil
}

// DepositLiquidity adds liquidity and mints collateral at the current
// exchange rate. It returns the collateral amount minted.
func (r *Reserve) DepositLiquidity(liquidityAmount uint64) (uint64, error) {
	rate, err := r.CollateralExchangeRate()
	if err != nil {
		return 0, err
	}
	collateralAmount, err := rate.LiquidityToCollateral(liquidityAmount)
	if err != nil {
		return 0, err
	}
	if err := r.Liquidity.Deposit(liquidityAmount); err != nil {
		return 0, err
	}
	if err := r.Collateral.Mint(collateralAmount); err != nil {
		return 0, err
	}
	return collateralAmount, nil
}

// RedeemCollateral burns collateral and withdraws the liquidity it is worth.
// It returns the liquidity amount withdrawn.
func (r *Reserve) RedeemCollateral(collateralAmount uint64) (uint64, error) {
	rate, err := r.CollateralExchangeRate()
	if err != nil {
		return 0, err
	}
	liquidityAmount, err := rate.CollateralToLiquidity(collateralAmount)
	if err != nil {
		return 0, err
	}
	if err := r.Collateral.Burn(collateralAmount); err != nil {
		return 0, err
	}
	if err := r.Liquidity.Withdraw(liquidityAmount); err != nil {
		return 0, err
	}
	return liquidityAmount, nil
}

// CollateralExchangeRate is collateral supply over total liquidity.
func (r *Reserve) CollateralExchangeRate() (CollateralExchangeRate, error) {
	total, err := r.Liquidity.TotalSupply()
	if err != nil {
		return CollateralExchangeRate{}, err
	}
	if r.Collateral.MintTotalSupply == 0 || total.IsZero() {
		return CollateralExchangeRate{rate: decimal.FromUint64(InitialCollateralRate)}, nil
	}
	rate, err := decimal.FromUint64(r.Collateral.MintTotalSupply).Div(total)
	if err != nil {
		return CollateralExchangeRate{}, err
	}
	return CollateralExchangeRate{rate: rate}, nil
}

// MarketValue converts a liquidity amount in base units into quote currency.
func (r *Reserve) MarketValue(amount decimal.Decimal) (decimal.Decimal, error) {
	scaled, err := amount.Mul(r.Liquidity.MarketPrice)
	if err != nil {
		return decimal.Decimal{}, err
	}
	decimals, err := pow10(r.Liquidity.MintDecimals)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return scaled.DivUint64(decimals)
}

// BorrowResult is the outcome of a borrow calculation.
type BorrowResult struct {
	// BorrowAmount is the debt added to the obligation, fee included.
	BorrowAmount decimal.Decimal
	// ReceiveAmount is transferred to the borrower.
	ReceiveAmount uint64
	BorrowFee     uint64
	HostFee       uint64
}

// CalculateBorrow prices a borrow of amount with the borrow fee added on top
// and checks it against the obligation's remaining borrow value.
func (r *Reserve) CalculateBorrow(amount uint64, maxBorrowValue decimal.Decimal) (BorrowResult, error) {
	if amount > r.Liquidity.AvailableAmount {
		return BorrowResult{}, fmt.Errorf("%w: borrow %d exceeds available %d",
			errs.ErrInsufficientLiquidity, amount, r.Liquidity.AvailableAmount)
	}
	receive := decimal.FromUint64(amount)
	fee, host, err := r.Config.Fees.CalculateBorrowFees(receive, FeeExclusive)
	if err != nil {
		return BorrowResult{}, err
	}
	borrowAmount, err := receive.Add(decimal.FromUint64(fee))
	if err != nil {
		return BorrowResult{}, err
	}
	borrowValue, err := r.MarketValue(borrowAmount)
	if err != nil {
		return BorrowResult{}, err
	}
	if borrowValue.Gt(maxBorrowValue) {
		return BorrowResult{}, fmt.Errorf("%w: borrow value %s exceeds remaining %s",
			errs.ErrBorrowTooLarge, borrowValue, maxBorrowValue)
	}
	return BorrowResult{BorrowAmount: borrowAmount, ReceiveAmount: amount, BorrowFee: fee, HostFee: host}, nil
}

// RepayResult is the outcome of a repay calculation.
type RepayResult struct {
	// SettleAmount is the debt removed from the obligation.
	SettleAmount decimal.Decimal
	// RepayAmount is transferred from the payer, rounded up.
	RepayAmount uint64
}

// CalculateRepay caps amount at the outstanding debt. math.MaxUint64 repays
// everything.
func (r *Reserve) CalculateRepay(amount uint64, borrowed decimal.Decimal) (RepayResult, error) {
	settle := borrowed
	if amount != math.MaxUint64 {
		settle = decimal.Min(decimal.FromUint64(amount), borrowed)
	}
	repay, err := settle.Ceil()
	if err != nil {
		return RepayResult{}, err
	}
	return RepayResult{SettleAmount: settle, RepayAmount: repay}, nil
}

// LiquidationResult is the outcome of a liquidation calculation.
type LiquidationResult struct {
	SettleAmount   decimal.Decimal
	RepayAmount    uint64
	WithdrawAmount uint64
}

// CalculateLiquidation sizes a liquidation of liquidity against collateral.
// Debts below LiquidationCloseAmount are closed out entirely; larger debts
// are capped by the close factor. When the bonus-adjusted value exceeds the
// collateral, the repay is scaled down so the liquidator takes all of it.
func (r *Reserve) CalculateLiquidation(amount uint64, obligation *Obligation, liquidity *ObligationLiquidity, collateral *ObligationCollateral) (LiquidationResult, error) {
	bonusRate, err := decimal.FromPercent(r.Config.LiquidationBonus).Add(decimal.One())
	if err != nil {
		return LiquidationResult{}, err
	}

	settle := liquidity.BorrowedAmount
	var liquidationValue decimal.Decimal
	if liquidity.BorrowedAmount.Lt(decimal.FromUint64(LiquidationCloseAmount)) {
		if liquidationValue, err = liquidity.MarketValue.Mul(bonusRate); err != nil {
			return LiquidationResult{}, err
		}
	} else {
		maxAmount := liquidity.BorrowedAmount
		if amount != math.MaxUint64 {
			maxAmount = decimal.Min(decimal.FromUint64(amount), liquidity.BorrowedAmount)
		}
		capped, err := obligation.MaxLiquidationAmount(liquidity)
		if err != nil {
			return LiquidationResult{}, err
		}
		settle = decimal.Min(capped, maxAmount)
		pct, err := settle.Div(liquidity.BorrowedAmount)
		if err != nil {
			return LiquidationResult{}, err
		}
		if liquidationValue, err = liquidity.MarketValue.Mul(pct); err != nil {
			return LiquidationResult{}, err
		}
		if liquidationValue, err = liquidationValue.Mul(bonusRate); err != nil {
			return LiquidationResult{}, err
		}
	}

	var withdraw uint64
	switch liquidationValue.Cmp(collateral.MarketValue) {
	case 1:
		repayPct, err := collateral.MarketValue.Div(liquidationValue)
		if err != nil {
			return LiquidationResult{}, err
		}
		if settle, err = settle.Mul(repayPct); err != nil {
			return LiquidationResult{}, err
		}
		withdraw = collateral.DepositedAmount
	case 0:
		withdraw = collateral.DepositedAmount
	default:
		withdrawPct, err := liquidationValue.Div(collateral.MarketValue)
		if err != nil {
			return LiquidationResult{}, err
		}
		scaled, err := decimal.FromUint64(collateral.DepositedAmount).Mul(withdrawPct)
		if err != nil {
			return LiquidationResult{}, err
		}
		if withdraw, err = scaled.Floor(); err != nil {
			return LiquidationResult{}, err
		}
	}

	repay, err := settle.Ceil()
	if err != nil {
		return LiquidationResult{}, err
	}
	return LiquidationResult{SettleAmount: settle, RepayAmount: repay, WithdrawAmount: withdraw}, nil
}

// CalculateProtocolLiquidationFee returns the protocol's share of the bonus
// contained in a liquidation payout of amountLiquidated liquidity.
func (r *Reserve) CalculateProtocolLiquidationFee(amountLiquidated uint64) (uint64, error) {
	bonusRate, err := decimal.FromPercent(r.Config.LiquidationBonus).Add(decimal.One())
	if err != nil {
		return 0, err
	}
	liquidated := decimal.FromUint64(amountLiquidated)
	principal, err := liquidated.Div(bonusRate)
	if err != nil {
		return 0, err
	}
	bonus, err := liquidated.Sub(principal)
	if err != nil {
		return 0, err
	}
	fee, err := bonus.Mul(decimal.FromPercent(r.Config.ProtocolLiquidationFee))
	if err != nil {
		return 0, err
	}
	return fee.Ceil()
}

// CalculateRedeemFees returns the protocol fees that can be withdrawn now,
// bounded by available liquidity.
func (r *Reserve) CalculateRedeemFees() (uint64, error) {
	fees, err := r.Liquidity.AccumulatedProtocolFees.Floor()
	if err != nil {
		return 0, err
	}
	if fees > r.Liquidity.AvailableAmount {
		fees = r.Liquidity.AvailableAmount
	}
	return fees, nil
}

// Deposit adds liquidity to the available amount.
func (l *ReserveLiquidity) Deposit(amount uint64) error {
	sum := l.AvailableAmount + amount
	if sum < l.AvailableAmount {
		return errs.ErrArithmetic
	}
	l.AvailableAmount = sum
	return nil
}

// Withdraw removes liquidity from the available amount.
func (l *ReserveLiquidity) Withdraw(amount uint64) error {
	if amount > l.AvailableAmount {
		return fmt.Errorf("%w: withdraw %d exceeds available %d", errs.ErrInsufficientLiquidity, amount, l.AvailableAmount)
	}
	l.AvailableAmount -= amount
	return nil
}

// Borrow moves the floored borrow amount out of available liquidity and adds
// the full amount to borrowed.
func (l *ReserveLiquidity) Borrow(amount decimal.Decimal) error {
	whole, err := amount.Floor()
	if err != nil {
		return err
	}
	if err := l.Withdraw(whole); err != nil {
		return err
	}
	borrowed, err := l.BorrowedAmount.Add(amount)
	if err != nil {
		return err
	}
	l.BorrowedAmount = borrowed
	return nil
}

// Repay returns repayAmount to available liquidity and removes settleAmount
// from borrowed. Settlement never takes borrowed below zero.
func (l *ReserveLiquidity) Repay(repayAmount uint64, settleAmount decimal.Decimal) error {
	if err := l.Deposit(repayAmount); err != nil {
		return err
	}
	borrowed, err := l.BorrowedAmount.Sub(decimal.Min(settleAmount, l.BorrowedAmount))
	if err != nil {
		return err
	}
	l.BorrowedAmount = borrowed
	return nil
}

// RedeemFees withdraws accumulated protocol fees.
func (l *ReserveLiquidity) RedeemFees(amount uint64) error {
	if err := l.Withdraw(amount); err != nil {
		return err
	}
	fees, err := l.AccumulatedProtocolFees.Sub(decimal.FromUint64(amount))
	if err != nil {
		return err
	}
	l.AccumulatedProtocolFees = fees
	return nil
}

// TotalSupply is available plus borrowed liquidity less protocol fees.
func (l *ReserveLiquidity) TotalSupply() (decimal.Decimal, error) {
	total, err := decimal.FromUint64(l.AvailableAmount).Add(l.BorrowedAmount)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return total.Sub(l.AccumulatedProtocolFees)
}

// UtilizationRate is borrowed over total supply, zero for an empty reserve.
func (l *ReserveLiquidity) UtilizationRate() (decimal.Decimal, error) {
	total, err := l.TotalSupply()
	if err != nil {
		return decimal.Decimal{}, err
	}
	if total.IsZero() {
		return decimal.Zero(), nil
	}
	rate, err := l.BorrowedAmount.Div(total)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.Min(rate, decimal.One()), nil
}

// CompoundInterest grows borrowed liquidity and the cumulative borrow rate
// by slots of compounding at annualRate. takeRate percent of the new debt
// accrues to the protocol.
func (l *ReserveLiquidity) CompoundInterest(annualRate decimal.Decimal, slots uint64, takeRate uint8) error {
	factor, err := CompoundFactor(annualRate, slots)
	if err != nil {
		return err
	}
	cumulative, err := l.CumulativeBorrowRate.Mul(factor)
	if err != nil {
		return err
	}
	borrowed, err := l.BorrowedAmount.Mul(factor)
	if err != nil {
		return err
	}
	newDebt, err := borrowed.Sub(l.BorrowedAmount)
	if err != nil {
		return err
	}
	protocolShare, err := newDebt.Mul(decimal.FromPercent(takeRate))
	if err != nil {
		return err
	}
	fees, err := l.AccumulatedProtocolFees.Add(protocolShare)
	if err != nil {
		return err
	}
	l.CumulativeBorrowRate = cumulative
	l.BorrowedAmount = borrowed
	l.AccumulatedProtocolFees = fees
	return nil
}

// Mint adds collateral to the total supply.
func (c *ReserveCollateral) Mint(amount uint64) error {
	sum := c.MintTotalSupply + amount
	if sum < c.MintTotalSupply {
		return errs.ErrArithmetic
	}
	c.MintTotalSupply = sum
	return nil
}

// Burn removes collateral from the total supply.
func (c *ReserveCollateral) Burn(amount uint64) error {
	if amount > c.MintTotalSupply {
		return fmt.Errorf("%w: burn %d exceeds collateral supply %d", errs.ErrArithmetic, amount, c.MintTotalSupply)
	}
	c.MintTotalSupply -= amount
	return nil
}

// CollateralExchangeRate converts between liquidity and collateral amounts.
type CollateralExchangeRate struct {
	rate decimal.Decimal
}

// Rate is collateral per unit of liquidity.
func (c CollateralExchangeRate) Rate() decimal.Decimal { return c.rate }

func (c CollateralExchangeRate) CollateralToLiquidity(collateral uint64) (uint64, error) {
	liquidity, err := c.DecimalCollateralToLiquidity(decimal.FromUint64(collateral))
	if err != nil {
		return 0, err
	}
	return liquidity.Floor()
}

func (c CollateralExchangeRate) DecimalCollateralToLiquidity(collateral decimal.Decimal) (decimal.Decimal, error) {
	return collateral.Div(c.rate)
}

func (c CollateralExchangeRate) LiquidityToCollateral(liquidity uint64) (uint64, error) {
	collateral, err := c.DecimalLiquidityToCollateral(decimal.FromUint64(liquidity))
	if err != nil {
		return 0, err
	}
	return collateral.Floor()
}

func (c CollateralExchangeRate) DecimalLiquidityToCollateral(liquidity decimal.Decimal) (decimal.Decimal, error) {
	return liquidity.Mul(c.rate)
}

func pow10(exp uint8) (uint64, error) {
	if exp > 19 {
		return 0, fmt.Errorf("%w: 10^%d", errs.ErrArithmetic, exp)
	}
	out := uint64(1)
	for i := uint8(0); i < exp; i++ {
		out *= 10
	}
	return out, nil
}

type reserveLayout struct {
	Version                 uint8
	LastUpdateSlot          uint64
	LastUpdateStale         bool
	LendingMarket           crypto.Pubkey
	LiquidityMint           crypto.Pubkey
	LiquidityMintDecimals   uint8
	LiquiditySupply         crypto.Pubkey
	LiquidityPythOracle     crypto.Pubkey
	LiquiditySwitchboard    crypto.Pubkey
	LiquidityAvailable      uint64
	LiquidityBorrowedWads   [16]byte
	LiquidityCumulativeRate [16]byte
	LiquidityMarketPrice    [16]byte
	CollateralMint          crypto.Pubkey
	CollateralMintSupply    uint64
	CollateralSupply        crypto.Pubkey
	OptimalUtilizationRate  uint8
	LoanToValueRatio        uint8
	LiquidationBonus        uint8
	LiquidationThreshold    uint8
	MinBorrowRate           uint8
	OptimalBorrowRate       uint8
	MaxBorrowRate           uint8
	BorrowFeeWad            uint64
	FlashLoanFeeWad         uint64
	HostFeePercentage       uint8
	DepositLimit            uint64
	BorrowLimit             uint64
	FeeReceiver             crypto.Pubkey
	ProtocolLiquidationFee  uint8
	ProtocolTakeRate        uint8
	AccumulatedProtocolFees [16]byte
	FlashLoanAmount         uint64
	FlashLoanBorrowIndex    uint8
	Padding                 [221]byte
}

// UnpackReserve decodes a reserve record.
func UnpackReserve(data []byte) (*Reserve, error) {
	if len(data) != ReserveLen {
		return nil, fmt.Errorf("%w: reserve is %d bytes", errs.ErrInvalidAccountInput, len(data))
	}
	var l reserveLayout
	if err := borsh.Deserialize(&l, data); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidAccountInput, err)
	}
	if l.Version > ProgramVersion {
		return nil, fmt.Errorf("%w: reserve version %d", errs.ErrInvalidAccountInput, l.Version)
	}
	return &Reserve{
		Version:       l.Version,
		LastUpdate:    LastUpdate{Slot: l.LastUpdateSlot, Stale: l.LastUpdateStale},
		LendingMarket: l.LendingMarket,
		Liquidity: ReserveLiquidity{
			MintPubkey:              l.LiquidityMint,
			MintDecimals:            l.LiquidityMintDecimals,
			SupplyPubkey:            l.LiquiditySupply,
			PythOracle:              l.LiquidityPythOracle,
			SwitchboardOracle:       l.LiquiditySwitchboard,
			AvailableAmount:         l.LiquidityAvailable,
			BorrowedAmount:          decimal.UnpackU128(l.LiquidityBorrowedWads),
			CumulativeBorrowRate:    decimal.UnpackU128(l.LiquidityCumulativeRate),
			AccumulatedProtocolFees: decimal.UnpackU128(l.AccumulatedProtocolFees),
			MarketPrice:             decimal.UnpackU128(l.LiquidityMarketPrice),
		},
		Collateral: ReserveCollateral{
			MintPubkey:      l.CollateralMint,
			MintTotalSupply: l.CollateralMintSupply,
			SupplyPubkey:    l.CollateralSupply,
		},
		Config: ReserveConfig{
			OptimalUtilizationRate: l.OptimalUtilizationRate,
			LoanToValueRatio:       l.LoanToValueRatio,
			LiquidationBonus:       l.LiquidationBonus,
			LiquidationThreshold:   l.LiquidationThreshold,
			MinBorrowRate:          l.MinBorrowRate,
			OptimalBorrowRate:      l.OptimalBorrowRate,
			MaxBorrowRate:          l.MaxBorrowRate,
			Fees: ReserveFees{
				BorrowFeeWad:      l.BorrowFeeWad,
				FlashLoanFeeWad:   l.FlashLoanFeeWad,
				HostFeePercentage: l.HostFeePercentage,
			},
			DepositLimit:           l.DepositLimit,
			BorrowLimit:            l.BorrowLimit,
			FeeReceiver:            l.FeeReceiver,
			ProtocolLiquidationFee: l.ProtocolLiquidationFee,
			ProtocolTakeRate:       l.ProtocolTakeRate,
		},
		FlashLoan: FlashLoanMarker{Amount: l.FlashLoanAmount, BorrowInstructionIndex: l.FlashLoanBorrowIndex},
	}, nil
}

// Pack encodes r into dst, which must be exactly ReserveLen bytes.
func (r *Reserve) Pack(dst []byte) error {
	borrowed, err := r.Liquidity.BorrowedAmount.PackU128()
	if err != nil {
		return err
	}
	cumulative, err := r.Liquidity.CumulativeBorrowRate.PackU128()
	if err != nil {
		return err
	}
	price, err := r.Liquidity.MarketPrice.PackU128()
	if err != nil {
		return err
	}
	fees, err := r.Liquidity.AccumulatedProtocolFees.PackU128()
	if err != nil {
		return err
	}
	return packInto(dst, ReserveLen, reserveLayout{
		Version:                 r.Version,
		LastUpdateSlot:          r.LastUpdate.Slot,
		LastUpdateStale:         r.LastUpdate.Stale,
		LendingMarket:           r.LendingMarket,
		LiquidityMint:           r.Liquidity.MintPubkey,
		LiquidityMintDecimals:   r.Liquidity.MintDecimals,
		LiquiditySupply:         r.Liquidity.SupplyPubkey,
		LiquidityPythOracle:     r.Liquidity.PythOracle,
		LiquiditySwitchboard:    r.Liquidity.SwitchboardOracle,
		LiquidityAvailable:      r.Liquidity.AvailableAmount,
		LiquidityBorrowedWads:   borrowed,
		LiquidityCumulativeRate: cumulative,
		LiquidityMarketPrice:    price,
		CollateralMint:          r.Collateral.MintPubkey,
		CollateralMintSupply:    r.Collateral.MintTotalSupply,
		CollateralSupply:        r.Collateral.SupplyPubkey,
		OptimalUtilizationRate:  r.Config.OptimalUtilizationRate,
		LoanToValueRatio:        r.Config.LoanToValueRatio,
		LiquidationBonus:        r.Config.LiquidationBonus,
		LiquidationThreshold:    r.Config.LiquidationThreshold,
		MinBorrowRate:           r.Config.MinBorrowRate,
		OptimalBorrowRate:       r.Config.OptimalBorrowRate,
		MaxBorrowRate:           r.Config.MaxBorrowRate,
		BorrowFeeWad:            r.Config.Fees.BorrowFeeWad,
		FlashLoanFeeWad:         r.Config.Fees.FlashLoanFeeWad,
		HostFeePercentage:       r.Config.Fees.HostFeePercentage,
		DepositLimit:            r.Config.DepositLimit,
		BorrowLimit:             r.Config.BorrowLimit,
		FeeReceiver:             r.Config.FeeReceiver,
		ProtocolLiquidationFee:  r.Config.ProtocolLiquidationFee,
		ProtocolTakeRate:        r.Config.ProtocolTakeRate,
		AccumulatedProtocolFees: fees,
		FlashLoanAmount:         r.FlashLoan.Amount,
		FlashLoanBorrowIndex:    r.FlashLoan.BorrowInstructionIndex,
	})
}
