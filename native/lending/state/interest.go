package state

import (
	"tokenlending/native/lending/decimal"
)

// SlotsPerYear converts an annual rate into a per-slot rate.
const SlotsPerYear uint64 = 63_072_000

// InterestModel is the kinked borrow rate curve of a reserve. Rates and the
// kink are whole percentages.
type InterestModel struct {
	// OptimalUtilization is the utilization at which the curve changes slope.
	OptimalUtilization uint8
	// MinBorrowRate applies at zero utilization.
	MinBorrowRate uint8
	// OptimalBorrowRate applies at the kink.
	OptimalBorrowRate uint8
	// MaxBorrowRate applies at full utilization.
	MaxBorrowRate uint8
}

// InterestModel returns the curve described by the reserve config.
func (c ReserveConfig) InterestModel() InterestModel {
	return InterestModel{
		OptimalUtilization: c.OptimalUtilizationRate,
		MinBorrowRate:      c.MinBorrowRate,
		OptimalBorrowRate:  c.OptimalBorrowRate,
		MaxBorrowRate:      c.MaxBorrowRate,
	}
}

// BorrowRate derives the annual borrow rate at the given utilization.
func (m InterestModel) BorrowRate(utilization decimal.Decimal) (decimal.Decimal, error) {
	optimal := decimal.FromPercent(m.OptimalUtilization)
	if utilization.Lt(optimal) || m.OptimalUtilization == 100 {
		// Linear region before the kink.
		normalized, err := utilization.Div(optimal)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return interpolate(normalized, m.MinBorrowRate, m.OptimalBorrowRate)
	}

	excess, err := utilization.Sub(optimal)
	if err != nil {
		return decimal.Decimal{}, err
	}
	normalized, err := excess.Div(decimal.FromPercent(100 - m.OptimalUtilization))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return interpolate(normalized, m.OptimalBorrowRate, m.MaxBorrowRate)
}

func interpolate(normalized decimal.Decimal, low, high uint8) (decimal.Decimal, error) {
	span, err := decimal.FromPercent(high).Sub(decimal.FromPercent(low))
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate, err := normalized.Mul(span)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return rate.Add(decimal.FromPercent(low))
}

// SupplyRate derives the annual rate earned by depositors once the protocol
// take rate is removed from the interest paid by borrowers.
func (m InterestModel) SupplyRate(utilization decimal.Decimal, protocolTakeRate uint8) (decimal.Decimal, error) {
	borrowRate, err := m.BorrowRate(utilization)
	if err != nil {
		return decimal.Decimal{}, err
	}
	supplyRate, err := borrowRate.Mul(utilization)
	if err != nil {
		return decimal.Decimal{}, err
	}
	keep, err := decimal.One().Sub(decimal.FromPercent(protocolTakeRate))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return supplyRate.Mul(keep)
}

// CompoundFactor returns (1 + rate/SlotsPerYear)^slots.
func CompoundFactor(annualRate decimal.Decimal, slots uint64) (decimal.Decimal, error) {
	slotRate, err := annualRate.DivUint64(SlotsPerYear)
	if err != nil {
		return decimal.Decimal{}, err
	}
	base, err := decimal.One().Add(slotRate)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return base.Pow(slots)
}
