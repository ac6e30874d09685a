package state

import (
	"fmt"

	"github.com/near/borsh-go"

	"tokenlending/crypto"
	"tokenlending/native/lending/decimal"
	"tokenlending/native/lending/errs"
)

const (
	// MaxObligationReserves bounds deposits and borrows combined.
	MaxObligationReserves = 10

	ObligationLen           = 1300
	ObligationCollateralLen = 88
	ObligationLiquidityLen  = 112

	obligationHeaderLen = 204
	obligationFlatLen   = ObligationLen - obligationHeaderLen
)

// Obligation is a borrower's position in a lending market: collateral
// deposits, liquidity borrows and the values derived from them at the last
// refresh.
type Obligation struct {
	Version       uint8
	LastUpdate    LastUpdate
	LendingMarket crypto.Pubkey
	Owner         crypto.Pubkey
	Deposits      []ObligationCollateral
	Borrows       []ObligationLiquidity
	// DepositedValue is the market value of all deposits.
	DepositedValue decimal.Decimal
	// BorrowedValue is the market value of all borrows.
	BorrowedValue decimal.Decimal
	// AllowedBorrowValue is the borrow value permitted by loan-to-value ratios.
	AllowedBorrowValue decimal.Decimal
	// UnhealthyBorrowValue is the borrow value past which the obligation can
	// be liquidated.
	UnhealthyBorrowValue decimal.Decimal
}

// ObligationCollateral is collateral deposited into one reserve.
type ObligationCollateral struct {
	DepositReserve  crypto.Pubkey
	DepositedAmount uint64
	MarketValue     decimal.Decimal
}

// ObligationLiquidity is liquidity borrowed from one reserve.
type ObligationLiquidity struct {
	BorrowReserve        crypto.Pubkey
	CumulativeBorrowRate decimal.Decimal
	BorrowedAmount       decimal.Decimal
	MarketValue          decimal.Decimal
}

func NewObligation(slot uint64, market, owner crypto.Pubkey) *Obligation {
	return &Obligation{
		Version:       ProgramVersion,
		LastUpdate:    NewLastUpdate(slot),
		LendingMarket: market,
		Owner:         owner,
	}
}

func (o *Obligation) IsInitialized() bool { return o.Version != UninitializedVersion }

// LoanToValue is borrowed value over deposited value.
func (o *Obligation) LoanToValue() (decimal.Decimal, error) {
	return o.BorrowedValue.Div(o.DepositedValue)
}

// RemainingBorrowValue is the borrow value still permitted, zero when the
// obligation is at or over its limit.
func (o *Obligation) RemainingBorrowValue() (decimal.Decimal, error) {
	if o.BorrowedValue.Cmp(o.AllowedBorrowValue) >= 0 {
		return decimal.Zero(), nil
	}
	return o.AllowedBorrowValue.Sub(o.BorrowedValue)
}

// MaxWithdrawValue is the collateral value that can be withdrawn from a
// reserve with the given loan-to-value percentage while staying healthy.
func (o *Obligation) MaxWithdrawValue(withdrawLoanToValue uint8) (decimal.Decimal, error) {
	if o.AllowedBorrowValue.Cmp(o.BorrowedValue) <= 0 {
		return decimal.Zero(), nil
	}
	if withdrawLoanToValue == 0 {
		return o.DepositedValue, nil
	}
	headroom, err := o.AllowedBorrowValue.Sub(o.BorrowedValue)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return headroom.Div(decimal.FromPercent(withdrawLoanToValue))
}

// MaxLiquidationAmount caps a single liquidation of liquidity at the close
// factor share of the obligation's borrowed value.
func (o *Obligation) MaxLiquidationAmount(liquidity *ObligationLiquidity) (decimal.Decimal, error) {
	maxValue, err := o.BorrowedValue.Mul(decimal.FromPercent(LiquidationCloseFactor))
	if err != nil {
		return decimal.Decimal{}, err
	}
	maxValue = decimal.Min(maxValue, liquidity.MarketValue)
	pct, err := maxValue.Div(liquidity.MarketValue)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return liquidity.BorrowedAmount.Mul(pct)
}

// IsHealthy reports whether borrowed value is within the allowed value.
func (o *Obligation) IsHealthy() bool {
	return o.BorrowedValue.Cmp(o.AllowedBorrowValue) <= 0
}

// IsLiquidatable reports whether borrowed value exceeds the unhealthy
// threshold.
func (o *Obligation) IsLiquidatable() bool {
	return o.BorrowedValue.Gt(o.UnhealthyBorrowValue)
}

// Withdraw removes collateral, dropping the entry once it is empty.
func (o *Obligation) Withdraw(amount uint64, index int) error {
	collateral := &o.Deposits[index]
	if amount == collateral.DepositedAmount {
		o.Deposits = append(o.Deposits[:index], o.Deposits[index+1:]...)
		return nil
	}
	return collateral.Withdraw(amount)
}

// Repay settles debt, dropping the entry once it is fully repaid.
func (o *Obligation) Repay(settle decimal.Decimal, index int) error {
	liquidity := &o.Borrows[index]
	if settle.Cmp(liquidity.BorrowedAmount) >= 0 {
		o.Borrows = append(o.Borrows[:index], o.Borrows[index+1:]...)
		return nil
	}
	return liquidity.Repay(settle)
}

func (o *Obligation) FindCollateralInDeposits(reserve crypto.Pubkey) (*ObligationCollateral, int, error) {
	if len(o.Deposits) == 0 {
		return nil, 0, errs.ErrObligationDepositsEmpty
	}
	for i := range o.Deposits {
		if o.Deposits[i].DepositReserve == reserve {
			return &o.Deposits[i], i, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: reserve %s is not a deposit of this obligation", errs.ErrInvalidAccountInput, reserve)
}

func (o *Obligation) FindOrAddCollateralToDeposits(reserve crypto.Pubkey) (*ObligationCollateral, error) {
	for i := range o.Deposits {
		if o.Deposits[i].DepositReserve == reserve {
			return &o.Deposits[i], nil
		}
	}
	if len(o.Deposits)+len(o.Borrows) >= MaxObligationReserves {
		return nil, errs.ErrObligationReserveLimit
	}
	o.Deposits = append(o.Deposits, ObligationCollateral{DepositReserve: reserve})
	return &o.Deposits[len(o.Deposits)-1], nil
}

func (o *Obligation) FindLiquidityInBorrows(reserve crypto.Pubkey) (*ObligationLiquidity, int, error) {
	if len(o.Borrows) == 0 {
		return nil, 0, errs.ErrObligationBorrowsEmpty
	}
	for i := range o.Borrows {
		if o.Borrows[i].BorrowReserve == reserve {
			return &o.Borrows[i], i, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: reserve %s is not a borrow of this obligation", errs.ErrInvalidAccountInput, reserve)
}

func (o *Obligation) FindOrAddLiquidityToBorrows(reserve crypto.Pubkey, cumulativeBorrowRate decimal.Decimal) (*ObligationLiquidity, error) {
	for i := range o.Borrows {
		if o.Borrows[i].BorrowReserve == reserve {
			return &o.Borrows[i], nil
		}
	}
	if len(o.Deposits)+len(o.Borrows) >= MaxObligationReserves {
		return nil, errs.ErrObligationReserveLimit
	}
	o.Borrows = append(o.Borrows, ObligationLiquidity{
		BorrowReserve:        reserve,
		CumulativeBorrowRate: cumulativeBorrowRate,
	})
	return &o.Borrows[len(o.Borrows)-1], nil
}

// Refresh revalues every deposit and borrow against its reserve and marks
// the obligation fresh at slot. reserves lists the deposit reserves in
// deposit order followed by the borrow reserves in borrow order; each must
// already be fresh at slot.
func (o *Obligation) Refresh(slot uint64, reserves []*Reserve) error {
	if len(reserves) != len(o.Deposits)+len(o.Borrows) {
		return fmt.Errorf("%w: expected %d reserves, got %d",
			errs.ErrInvalidAccountInput, len(o.Deposits)+len(o.Borrows), len(reserves))
	}
	var deposited, borrowed, allowed, unhealthy decimal.Decimal
	for i := range o.Deposits {
		collateral := &o.Deposits[i]
		reserve := reserves[i]
		if err := checkFresh(reserve, slot); err != nil {
			return err
		}
		rate, err := reserve.CollateralExchangeRate()
		if err != nil {
			return err
		}
		liquidity, err := rate.DecimalCollateralToLiquidity(decimal.FromUint64(collateral.DepositedAmount))
		if err != nil {
			return err
		}
		value, err := reserve.MarketValue(liquidity)
		if err != nil {
			return err
		}
		collateral.MarketValue = value

		if deposited, err = deposited.Add(value); err != nil {
			return err
		}
		if allowed, err = addShare(allowed, value, reserve.Config.LoanToValueRatio); err != nil {
			return err
		}
		if unhealthy, err = addShare(unhealthy, value, reserve.Config.LiquidationThreshold); err != nil {
			return err
		}
	}
	for i := range o.Borrows {
		liquidity := &o.Borrows[i]
		reserve := reserves[len(o.Deposits)+i]
		if err := checkFresh(reserve, slot); err != nil {
			return err
		}
		if err := liquidity.AccrueInterest(reserve.Liquidity.CumulativeBorrowRate); err != nil {
			return err
		}
		value, err := reserve.MarketValue(liquidity.BorrowedAmount)
		if err != nil {
			return err
		}
		liquidity.MarketValue = value
		if borrowed, err = borrowed.Add(value); err != nil {
			return err
		}
	}

	o.DepositedValue = deposited
	o.BorrowedValue = borrowed
	o.AllowedBorrowValue = allowed
	o.UnhealthyBorrowValue = unhealthy
	o.LastUpdate.UpdateSlot(slot)
	return nil
}

func checkFresh(reserve *Reserve, slot uint64) error {
	stale, err := reserve.IsStale(slot)
	if err != nil {
		return err
	}
	if stale {
		return errs.ErrReserveStale
	}
	return nil
}

func addShare(total, value decimal.Decimal, percent uint8) (decimal.Decimal, error) {
	share, err := value.Mul(decimal.FromPercent(percent))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return total.Add(share)
}

func (c *ObligationCollateral) Deposit(amount uint64) error {
	sum := c.DepositedAmount + amount
	if sum < c.DepositedAmount {
		return errs.ErrArithmetic
	}
	c.DepositedAmount = sum
	return nil
}

func (c *ObligationCollateral) Withdraw(amount uint64) error {
	if amount > c.DepositedAmount {
		return fmt.Errorf("%w: withdraw %d exceeds deposit %d", errs.ErrArithmetic, amount, c.DepositedAmount)
	}
	c.DepositedAmount -= amount
	return nil
}

func (l *ObligationLiquidity) Borrow(amount decimal.Decimal) error {
	borrowed, err := l.BorrowedAmount.Add(amount)
	if err != nil {
		return err
	}
	l.BorrowedAmount = borrowed
	return nil
}

func (l *ObligationLiquidity) Repay(settle decimal.Decimal) error {
	borrowed, err := l.BorrowedAmount.Sub(settle)
	if err != nil {
		return err
	}
	l.BorrowedAmount = borrowed
	return nil
}

// AccrueInterest scales the borrowed amount by the growth of the reserve's
// cumulative borrow rate since the last snapshot.
func (l *ObligationLiquidity) AccrueInterest(cumulativeBorrowRate decimal.Decimal) error {
	switch cumulativeBorrowRate.Cmp(l.CumulativeBorrowRate) {
	case -1:
		return errs.ErrNegativeInterestRate
	case 0:
		return nil
	}
	growth, err := cumulativeBorrowRate.Div(l.CumulativeBorrowRate)
	if err != nil {
		return err
	}
	borrowed, err := l.BorrowedAmount.Mul(growth)
	if err != nil {
		return err
	}
	l.BorrowedAmount = borrowed
	l.CumulativeBorrowRate = cumulativeBorrowRate
	return nil
}

type obligationLayout struct {
	Version              uint8
	LastUpdateSlot       uint64
	LastUpdateStale      bool
	LendingMarket        crypto.Pubkey
	Owner                crypto.Pubkey
	DepositedValue       [16]byte
	BorrowedValue        [16]byte
	AllowedBorrowValue   [16]byte
	UnhealthyBorrowValue [16]byte
	Padding              [64]byte
	DepositsLen          uint8
	BorrowsLen           uint8
	DataFlat             [obligationFlatLen]byte
}

type collateralLayout struct {
	DepositReserve  crypto.Pubkey
	DepositedAmount uint64
	MarketValue     [16]byte
	Padding         [32]byte
}

type liquidityLayout struct {
	BorrowReserve        crypto.Pubkey
	CumulativeBorrowRate [16]byte
	BorrowedAmount       [16]byte
	MarketValue          [16]byte
	Padding              [32]byte
}

// UnpackObligation decodes an obligation record.
func UnpackObligation(data []byte) (*Obligation, error) {
	if len(data) != ObligationLen {
		return nil, fmt.Errorf("%w: obligation is %d bytes", errs.ErrInvalidAccountInput, len(data))
	}
	var l obligationLayout
	if err := borsh.Deserialize(&l, data); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidAccountInput, err)
	}
	if l.Version > ProgramVersion {
		return nil, fmt.Errorf("%w: obligation version %d", errs.ErrInvalidAccountInput, l.Version)
	}
	deposits, borrows := int(l.DepositsLen), int(l.BorrowsLen)
	if deposits+borrows > MaxObligationReserves ||
		deposits*ObligationCollateralLen+borrows*ObligationLiquidityLen > obligationFlatLen {
		return nil, fmt.Errorf("%w: obligation holds %d deposits and %d borrows", errs.ErrInvalidAccountInput, deposits, borrows)
	}

	o := &Obligation{
		Version:              l.Version,
		LastUpdate:           LastUpdate{Slot: l.LastUpdateSlot, Stale: l.LastUpdateStale},
		LendingMarket:        l.LendingMarket,
		Owner:                l.Owner,
		DepositedValue:       decimal.UnpackU128(l.DepositedValue),
		BorrowedValue:        decimal.UnpackU128(l.BorrowedValue),
		AllowedBorrowValue:   decimal.UnpackU128(l.AllowedBorrowValue),
		UnhealthyBorrowValue: decimal.UnpackU128(l.UnhealthyBorrowValue),
		Deposits:             make([]ObligationCollateral, 0, deposits),
		Borrows:              make([]ObligationLiquidity, 0, borrows),
	}
	offset := 0
	for i := 0; i < deposits; i++ {
		var c collateralLayout
		if err := borsh.Deserialize(&c, l.DataFlat[offset:offset+ObligationCollateralLen]); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidAccountInput, err)
		}
		o.Deposits = append(o.Deposits, ObligationCollateral{
			DepositReserve:  c.DepositReserve,
			DepositedAmount: c.DepositedAmount,
			MarketValue:     decimal.UnpackU128(c.MarketValue),
		})
		offset += ObligationCollateralLen
	}
	for i := 0; i < borrows; i++ {
		var b liquidityLayout
		if err := borsh.Deserialize(&b, l.DataFlat[offset:offset+ObligationLiquidityLen]); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidAccountInput, err)
		}
		o.Borrows = append(o.Borrows, ObligationLiquidity{
			BorrowReserve:        b.BorrowReserve,
			CumulativeBorrowRate: decimal.UnpackU128(b.CumulativeBorrowRate),
			BorrowedAmount:       decimal.UnpackU128(b.BorrowedAmount),
			MarketValue:          decimal.UnpackU128(b.MarketValue),
		})
		offset += ObligationLiquidityLen
	}
	return o, nil
}

// Pack encodes o into dst, which must be exactly ObligationLen bytes.
func (o *Obligation) Pack(dst []byte) error {
	if len(o.Deposits)+len(o.Borrows) > MaxObligationReserves {
		return errs.ErrObligationReserveLimit
	}
	if len(o.Deposits)*ObligationCollateralLen+len(o.Borrows)*ObligationLiquidityLen > obligationFlatLen {
		return errs.ErrObligationReserveLimit
	}
	l := obligationLayout{
		Version:         o.Version,
		LastUpdateSlot:  o.LastUpdate.Slot,
		LastUpdateStale: o.LastUpdate.Stale,
		LendingMarket:   o.LendingMarket,
		Owner:           o.Owner,
		DepositsLen:     uint8(len(o.Deposits)),
		BorrowsLen:      uint8(len(o.Borrows)),
	}
	var err error
	if l.DepositedValue, err = o.DepositedValue.PackU128(); err != nil {
		return err
	}
	if l.BorrowedValue, err = o.BorrowedValue.PackU128(); err != nil {
		return err
	}
	if l.AllowedBorrowValue, err = o.AllowedBorrowValue.PackU128(); err != nil {
		return err
	}
	if l.UnhealthyBorrowValue, err = o.UnhealthyBorrowValue.PackU128(); err != nil {
		return err
	}

	offset := 0
	for _, c := range o.Deposits {
		value, err := c.MarketValue.PackU128()
		if err != nil {
			return err
		}
		encoded, err := borsh.Serialize(collateralLayout{
			DepositReserve:  c.DepositReserve,
			DepositedAmount: c.DepositedAmount,
			MarketValue:     value,
		})
		if err != nil {
			return err
		}
		offset += copy(l.DataFlat[offset:], encoded)
	}
	for _, b := range o.Borrows {
		rate, err := b.CumulativeBorrowRate.PackU128()
		if err != nil {
			return err
		}
		borrowed, err := b.BorrowedAmount.PackU128()
		if err != nil {
			return err
		}
		value, err := b.MarketValue.PackU128()
		if err != nil {
			return err
		}
		encoded, err := borsh.Serialize(liquidityLayout{
			BorrowReserve:        b.BorrowReserve,
			CumulativeBorrowRate: rate,
			BorrowedAmount:       borrowed,
			MarketValue:          value,
		})
		if err != nil {
			return err
		}
		offset += copy(l.DataFlat[offset:], encoded)
	}
	return packInto(dst, ObligationLen, l)
}
