package state

import (
	"fmt"
	"math"

	"tokenlending/native/lending/decimal"
	"tokenlending/native/lending/errs"
)

// FlashLoansDisabled is the flash loan fee that turns flash loans off for a
// reserve.
const FlashLoansDisabled uint64 = math.MaxUint64

// FeeCalculation selects whether a fee is carved out of an amount or added
// on top of it.
type FeeCalculation uint8

const (
	// FeeInclusive takes the fee out of the amount.
	FeeInclusive FeeCalculation = iota
	// FeeExclusive adds the fee on top of the amount.
	FeeExclusive
)

// ReserveFees are the borrow and flash loan fees charged by a reserve.
// Fees are WAD scaled, so 1% is 10^16.
type ReserveFees struct {
	BorrowFeeWad      uint64
	FlashLoanFeeWad   uint64
	HostFeePercentage uint8
}

// CalculateBorrowFees returns the total fee and the host's share of it for a
// borrow of amount.
func (f ReserveFees) CalculateBorrowFees(amount decimal.Decimal, calc FeeCalculation) (uint64, uint64, error) {
	return f.calculateFees(amount, f.BorrowFeeWad, calc)
}

// CalculateFlashLoanFees returns the total fee and the host's share of it for
// a flash loan of amount. The fee is always charged on top of the amount.
func (f ReserveFees) CalculateFlashLoanFees(amount decimal.Decimal) (uint64, uint64, error) {
	if f.FlashLoanFeeWad == FlashLoansDisabled {
		return 0, 0, errs.ErrFlashLoansDisabled
	}
	if f.FlashLoanFeeWad > decimal.WAD {
		return 0, 0, fmt.Errorf("%w: flash loan fee %d exceeds 100%%", errs.ErrInvalidFlashLoanFee, f.FlashLoanFeeWad)
	}
	return f.calculateFees(amount, f.FlashLoanFeeWad, FeeExclusive)
}

func (f ReserveFees) calculateFees(amount decimal.Decimal, feeWad uint64, calc FeeCalculation) (uint64, uint64, error) {
	feeRate := decimal.FromScaled(feeWad)
	if feeRate.IsZero() || amount.IsZero() {
		return 0, 0, nil
	}
	hostRate := decimal.FromPercent(f.HostFeePercentage)
	assessHost := !hostRate.IsZero()
	minimumFee := uint64(1)
	if assessHost {
		minimumFee = 2
	}

	fee, err := amount.Mul(feeRate)
	if err != nil {
		return 0, 0, err
	}
	if calc == FeeInclusive {
		divisor, err := feeRate.Add(decimal.One())
		if err != nil {
			return 0, 0, err
		}
		if fee, err = fee.Div(divisor); err != nil {
			return 0, 0, err
		}
	}
	fee = decimal.Max(fee, decimal.FromUint64(minimumFee))
	if fee.Cmp(amount) >= 0 {
		return 0, 0, fmt.Errorf("%w: amount too small to cover fees", errs.ErrBorrowTooSmall)
	}

	total, err := fee.Ceil()
	if err != nil {
		return 0, 0, err
	}
	if !assessHost {
		return total, 0, nil
	}
	hostDecimal, err := fee.Mul(hostRate)
	if err != nil {
		return 0, 0, err
	}
	host, err := hostDecimal.Floor()
	if err != nil {
		return 0, 0, err
	}
	if host == 0 {
		host = 1
	}
	if host > total {
		host = total
	}
	return total, host, nil
}
