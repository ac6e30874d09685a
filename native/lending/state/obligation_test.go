package state

import (
	"errors"
	"reflect"
	"testing"

	"tokenlending/crypto"
	"tokenlending/native/lending/decimal"
	"tokenlending/native/lending/errs"
)

func TestObligationReserveLimit(t *testing.T) {
	o := NewObligation(0, crypto.Pubkey{1}, crypto.Pubkey{2})
	for i := 0; i < MaxObligationReserves; i++ {
		if i%2 == 0 {
			if _, err := o.FindOrAddCollateralToDeposits(crypto.Pubkey{byte(10 + i)}); err != nil {
				t.Fatalf("add deposit %d: %v", i, err)
			}
		} else if _, err := o.FindOrAddLiquidityToBorrows(crypto.Pubkey{byte(10 + i)}, decimal.One()); err != nil {
			t.Fatalf("add borrow %d: %v", i, err)
		}
	}
	if _, err := o.FindOrAddCollateralToDeposits(crypto.Pubkey{99}); !errors.Is(err, errs.ErrObligationReserveLimit) {
		t.Fatalf("expected reserve limit, got %v", err)
	}
	if _, err := o.FindOrAddLiquidityToBorrows(crypto.Pubkey{10}, decimal.One()); !errors.Is(err, errs.ErrObligationReserveLimit) {
		t.Fatalf("existing deposit reserve should not count as a borrow, got %v", err)
	}
	if c, err := o.FindOrAddCollateralToDeposits(crypto.Pubkey{10}); err != nil || c.DepositReserve != (crypto.Pubkey{10}) {
		t.Fatalf("existing deposit not found: %v", err)
	}

	empty := NewObligation(0, crypto.Pubkey{1}, crypto.Pubkey{2})
	if _, _, err := empty.FindCollateralInDeposits(crypto.Pubkey{3}); !errors.Is(err, errs.ErrObligationDepositsEmpty) {
		t.Fatalf("expected deposits empty, got %v", err)
	}
	if _, _, err := empty.FindLiquidityInBorrows(crypto.Pubkey{3}); !errors.Is(err, errs.ErrObligationBorrowsEmpty) {
		t.Fatalf("expected borrows empty, got %v", err)
	}
}

func TestObligationLiquidityAccrual(t *testing.T) {
	l := &ObligationLiquidity{CumulativeBorrowRate: decimal.One(), BorrowedAmount: decimal.FromUint64(100)}
	rate := decimal.FromScaled(1_100_000_000_000_000_000)
	if err := l.AccrueInterest(rate); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if !l.BorrowedAmount.Eq(decimal.FromUint64(110)) {
		t.Fatalf("borrowed = %s", l.BorrowedAmount)
	}
	if err := l.AccrueInterest(decimal.One()); !errors.Is(err, errs.ErrNegativeInterestRate) {
		t.Fatalf("expected negative interest rate, got %v", err)
	}
}

func TestObligationRefreshAndHealth(t *testing.T) {
	deposit := newTestReserve()
	deposit.Liquidity.MintDecimals = 0
	deposit.Liquidity.MarketPrice = decimal.FromUint64(2)
	if _, err := deposit.DepositLiquidity(1_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	deposit.LastUpdate.UpdateSlot(10)

	borrow := newTestReserve()
	borrow.Liquidity.MintDecimals = 0
	borrow.LastUpdate.UpdateSlot(10)

	o := NewObligation(10, crypto.Pubkey{1}, crypto.Pubkey{2})
	collateral, _ := o.FindOrAddCollateralToDeposits(crypto.Pubkey{20})
	collateral.DepositedAmount = 1_000
	liquidity, _ := o.FindOrAddLiquidityToBorrows(crypto.Pubkey{21}, decimal.One())
	liquidity.BorrowedAmount = decimal.FromUint64(900)

	if err := o.Refresh(10, []*Reserve{deposit, borrow}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !o.DepositedValue.Eq(decimal.FromUint64(2_000)) || !o.AllowedBorrowValue.Eq(decimal.FromUint64(1_000)) ||
		!o.UnhealthyBorrowValue.Eq(decimal.FromUint64(1_100)) || !o.BorrowedValue.Eq(decimal.FromUint64(900)) {
		t.Fatalf("unexpected values %+v", o)
	}
	if !o.IsHealthy() || o.IsLiquidatable() {
		t.Fatalf("obligation should be healthy")
	}
	remaining, _ := o.RemainingBorrowValue()
	if !remaining.Eq(decimal.FromUint64(100)) {
		t.Fatalf("remaining = %s", remaining)
	}
	maxWithdraw, _ := o.MaxWithdrawValue(50)
	if !maxWithdraw.Eq(decimal.FromUint64(200)) {
		t.Fatalf("max withdraw = %s", maxWithdraw)
	}
	ltv, _ := o.LoanToValue()
	if !ltv.Eq(decimal.FromPercent(45)) {
		t.Fatalf("ltv = %s", ltv)
	}

	o.BorrowedValue = o.UnhealthyBorrowValue
	if o.IsLiquidatable() {
		t.Fatalf("obligation at threshold must not be liquidatable")
	}
	o.BorrowedValue = decimal.FromUint64(1_101)
	if !o.IsLiquidatable() {
		t.Fatalf("obligation past threshold must be liquidatable")
	}

	if err := o.Refresh(11, []*Reserve{deposit, borrow}); !errors.Is(err, errs.ErrReserveStale) {
		t.Fatalf("expected stale reserve, got %v", err)
	}
	if err := o.Refresh(10, []*Reserve{deposit}); !errors.Is(err, errs.ErrInvalidAccountInput) {
		t.Fatalf("expected invalid account input, got %v", err)
	}
}

func TestObligationRepayAndWithdraw(t *testing.T) {
	o := NewObligation(0, crypto.Pubkey{1}, crypto.Pubkey{2})
	c, _ := o.FindOrAddCollateralToDeposits(crypto.Pubkey{3})
	c.DepositedAmount = 10
	l, _ := o.FindOrAddLiquidityToBorrows(crypto.Pubkey{4}, decimal.One())
	l.BorrowedAmount = decimal.FromUint64(10)

	if err := o.Repay(decimal.FromUint64(4), 0); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if !o.Borrows[0].BorrowedAmount.Eq(decimal.FromUint64(6)) {
		t.Fatalf("borrowed = %s", o.Borrows[0].BorrowedAmount)
	}
	if err := o.Repay(decimal.FromUint64(6), 0); err != nil || len(o.Borrows) != 0 {
		t.Fatalf("full repay left %d borrows (%v)", len(o.Borrows), err)
	}
	if err := o.Withdraw(3, 0); err != nil || o.Deposits[0].DepositedAmount != 7 {
		t.Fatalf("partial withdraw: %v", err)
	}
	if err := o.Withdraw(7, 0); err != nil || len(o.Deposits) != 0 {
		t.Fatalf("full withdraw left %d deposits (%v)", len(o.Deposits), err)
	}
}

func TestObligationLayoutRoundTrip(t *testing.T) {
	o := NewObligation(3, crypto.Pubkey{1}, crypto.Pubkey{2})
	o.DepositedValue = decimal.FromUint64(5)
	o.BorrowedValue = decimal.FromUint64(4)
	o.AllowedBorrowValue = decimal.FromUint64(3)
	o.UnhealthyBorrowValue = decimal.FromUint64(2)
	for i := 0; i < 2; i++ {
		o.Deposits = append(o.Deposits, ObligationCollateral{
			DepositReserve:  crypto.Pubkey{byte(30 + i)},
			DepositedAmount: uint64(100 + i),
			MarketValue:     decimal.FromScaled(uint64(7 + i)),
		})
	}
	for i := 0; i < 3; i++ {
		o.Borrows = append(o.Borrows, ObligationLiquidity{
			BorrowReserve:        crypto.Pubkey{byte(40 + i)},
			CumulativeBorrowRate: decimal.One(),
			BorrowedAmount:       decimal.FromUint64(uint64(i + 1)),
			MarketValue:          decimal.FromScaled(uint64(11 + i)),
		})
	}

	buf := make([]byte, ObligationLen)
	if err := o.Pack(buf); err != nil {
		t.Fatalf("pack: %v", err)
	}
	decoded, err := UnpackObligation(buf)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !reflect.DeepEqual(decoded, o) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", decoded, o)
	}

	buf[202] = 8
	if _, err := UnpackObligation(buf); !errors.Is(err, errs.ErrInvalidAccountInput) {
		t.Fatalf("expected corrupt lengths to be rejected, got %v", err)
	}

	o.Borrows = append(o.Borrows, make([]ObligationLiquidity, 6)...)
	if err := o.Pack(make([]byte, ObligationLen)); !errors.Is(err, errs.ErrObligationReserveLimit) {
		t.Fatalf("expected reserve limit on pack, got %v", err)
	}
}
