package decimal

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"tokenlending/native/lending/errs"
)

// Scale is the number of fractional decimal digits carried by a Decimal.
const Scale = 18

// WAD is the scaling factor (10^18) applied to every Decimal.
const WAD uint64 = 1_000_000_000_000_000_000

const halfWAD uint64 = WAD / 2

// PercentScaler converts a whole percentage into WAD units.
const PercentScaler uint64 = 10_000_000_000_000_000

var (
	wad     = uint256.NewInt(WAD)
	halfWad = uint256.NewInt(halfWAD)
)

// Decimal is an unsigned fixed point number scaled by WAD. The zero value is
// 0. Every operation is checked and reports errs.ErrArithmetic on overflow,
// underflow or division by zero.
type Decimal struct {
	v uint256.Int
}

// Zero returns 0.
func Zero() Decimal { return Decimal{} }

// One returns 1.
func One() Decimal { return Decimal{v: *wad} }

// FromUint64 converts an integer amount into a Decimal.
func FromUint64(n uint64) Decimal {
	var d Decimal
	d.v.Mul(uint256.NewInt(n), wad)
	return d
}

// FromPercent converts a whole percentage (e.g. 80 for 80%) into a Decimal.
func FromPercent(p uint8) Decimal {
	var d Decimal
	d.v.Mul(uint256.NewInt(uint64(p)), uint256.NewInt(PercentScaler))
	return d
}

// FromScaled wraps an already scaled value, e.g. a fee expressed in WAD.
func FromScaled(raw uint64) Decimal {
	var d Decimal
	d.v.SetUint64(raw)
	return d
}

// FromUint256 wraps an already scaled 256-bit value.
func FromUint256(raw *uint256.Int) Decimal {
	var d Decimal
	if raw != nil {
		d.v.Set(raw)
	}
	return d
}

// Scaled returns a copy of the underlying WAD scaled value.
func (d Decimal) Scaled() *uint256.Int {
	return new(uint256.Int).Set(&d.v)
}

func (d Decimal) IsZero() bool { return d.v.IsZero() }

// Cmp compares d and o and returns -1, 0 or +1.
func (d Decimal) Cmp(o Decimal) int { return d.v.Cmp(&o.v) }

func (d Decimal) Lt(o Decimal) bool { return d.v.Lt(&o.v) }

func (d Decimal) Gt(o Decimal) bool { return d.v.Gt(&o.v) }

func (d Decimal) Eq(o Decimal) bool { return d.v.Eq(&o.v) }

// Min returns the smaller of d and o.
func Min(a, b Decimal) Decimal {
	if a.Lt(b) {
		return a
	}
	return b
}

// Max returns the larger of d and o.
func Max(a, b Decimal) Decimal {
	if a.Gt(b) {
		return a
	}
	return b
}

func (d Decimal) Add(o Decimal) (Decimal, error) {
	var out Decimal
	if _, overflow := out.v.AddOverflow(&d.v, &o.v); overflow {
		return Decimal{}, errs.ErrArithmetic
	}
	return out, nil
}

func (d Decimal) Sub(o Decimal) (Decimal, error) {
	var out Decimal
	if _, underflow := out.v.SubOverflow(&d.v, &o.v); underflow {
		return Decimal{}, errs.ErrArithmetic
	}
	return out, nil
}

// Mul returns d*o truncated to 18 decimals.
func (d Decimal) Mul(o Decimal) (Decimal, error) {
	var out Decimal
	if _, overflow := out.v.MulDivOverflow(&d.v, &o.v, wad); overflow {
		return Decimal{}, errs.ErrArithmetic
	}
	return out, nil
}

// Div returns d/o truncated to 18 decimals.
func (d Decimal) Div(o Decimal) (Decimal, error) {
	if o.v.IsZero() {
		return Decimal{}, errs.ErrArithmetic
	}
	var out Decimal
	if _, overflow := out.v.MulDivOverflow(&d.v, wad, &o.v); overflow {
		return Decimal{}, errs.ErrArithmetic
	}
	return out, nil
}

func (d Decimal) MulUint64(n uint64) (Decimal, error) {
	var out Decimal
	if _, overflow := out.v.MulOverflow(&d.v, uint256.NewInt(n)); overflow {
		return Decimal{}, errs.ErrArithmetic
	}
	return out, nil
}

func (d Decimal) DivUint64(n uint64) (Decimal, error) {
	if n == 0 {
		return Decimal{}, errs.ErrArithmetic
	}
	var out Decimal
	out.v.Div(&d.v, uint256.NewInt(n))
	return out, nil
}

// Pow raises d to an integer power by repeated squaring.
func (d Decimal) Pow(exp uint64) (Decimal, error) {
	result := One()
	base := d
	var err error
	for exp > 0 {
		if exp&1 == 1 {
			if result, err = result.Mul(base); err != nil {
				return Decimal{}, err
			}
		}
		exp >>= 1
		if exp == 0 {
			break
		}
		if base, err = base.Mul(base); err != nil {
			return Decimal{}, err
		}
	}
	return result, nil
}

// Floor converts d to an integer amount rounding down.
func (d Decimal) Floor() (uint64, error) {
	var q uint256.Int
	q.Div(&d.v, wad)
	return toUint64(&q)
}

// Ceil converts d to an integer amount rounding up.
func (d Decimal) Ceil() (uint64, error) {
	var q, r uint256.Int
	q.DivMod(&d.v, wad, &r)
	if !r.IsZero() {
		if _, overflow := q.AddOverflow(&q, uint256.NewInt(1)); overflow {
			return 0, errs.ErrArithmetic
		}
	}
	return toUint64(&q)
}

// Round converts d to an integer amount rounding half up.
func (d Decimal) Round() (uint64, error) {
	var sum uint256.Int
	if _, overflow := sum.AddOverflow(&d.v, halfWad); overflow {
		return 0, errs.ErrArithmetic
	}
	sum.Div(&sum, wad)
	return toUint64(&sum)
}

func toUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, errs.ErrArithmetic
	}
	return v.Uint64(), nil
}

// PackU128 encodes d as a 16 byte little-endian scaled value.
func (d Decimal) PackU128() ([16]byte, error) {
	var out [16]byte
	if d.v[2] != 0 || d.v[3] != 0 {
		return out, errs.ErrArithmetic
	}
	binary.LittleEndian.PutUint64(out[0:8], d.v[0])
	binary.LittleEndian.PutUint64(out[8:16], d.v[1])
	return out, nil
}

// UnpackU128 decodes a 16 byte little-endian scaled value.
func UnpackU128(b [16]byte) Decimal {
	var d Decimal
	d.v[0] = binary.LittleEndian.Uint64(b[0:8])
	d.v[1] = binary.LittleEndian.Uint64(b[8:16])
	return d
}

// String renders d with all 18 fractional digits, e.g. "1.500000000000000000".
func (d Decimal) String() string {
	var q, r uint256.Int
	q.DivMod(&d.v, wad, &r)
	frac := r.Dec()
	if pad := Scale - len(frac); pad > 0 {
		frac = strings.Repeat("0", pad) + frac
	}
	return fmt.Sprintf("%s.%s", q.Dec(), frac)
}
