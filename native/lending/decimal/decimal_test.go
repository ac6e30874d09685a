package decimal

import (
	"errors"
	"math"
	"testing"

	"github.com/holiman/uint256"

	"tokenlending/native/lending/errs"
)

func mustAdd(t *testing.T, a, b Decimal) Decimal {
	t.Helper()
	out, err := a.Add(b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	return out
}

func mustSub(t *testing.T, a, b Decimal) Decimal {
	t.Helper()
	out, err := a.Sub(b)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	return out
}

func TestAddSubRoundTripHasNoDrift(t *testing.T) {
	base := FromScaled(123_456_789_012_345_678)
	step := FromScaled(1)
	acc := base
	for i := 0; i < 1000; i++ {
		acc = mustAdd(t, acc, step)
	}
	for i := 0; i < 1000; i++ {
		acc = mustSub(t, acc, step)
	}
	if !acc.Eq(base) {
		t.Fatalf("drift: got %s want %s", acc, base)
	}
}

func TestSubUnderflow(t *testing.T) {
	_, err := FromUint64(1).Sub(FromUint64(2))
	if !errors.Is(err, errs.ErrArithmetic) {
		t.Fatalf("expected arithmetic error, got %v", err)
	}
}

func TestAddOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	_, err := FromUint256(max).Add(FromScaled(1))
	if !errors.Is(err, errs.ErrArithmetic) {
		t.Fatalf("expected arithmetic error, got %v", err)
	}
}

func TestMulDiv(t *testing.T) {
	half, err := One().DivUint64(2)
	if err != nil {
		t.Fatalf("div: %v", err)
	}
	product, err := FromUint64(10).Mul(half)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if !product.Eq(FromUint64(5)) {
		t.Fatalf("10 * 0.5 = %s", product)
	}
	quotient, err := FromUint64(1).Div(FromUint64(3))
	if err != nil {
		t.Fatalf("div: %v", err)
	}
	if quotient.String() != "0.333333333333333333" {
		t.Fatalf("1/3 = %s", quotient)
	}
	if _, err := One().Div(Zero()); !errors.Is(err, errs.ErrArithmetic) {
		t.Fatalf("expected division by zero to fail, got %v", err)
	}
	if _, err := One().DivUint64(0); !errors.Is(err, errs.ErrArithmetic) {
		t.Fatalf("expected division by zero to fail, got %v", err)
	}
}

func TestMulOverflow(t *testing.T) {
	big := FromUint256(new(uint256.Int).Lsh(uint256.NewInt(1), 200))
	if _, err := big.Mul(big); !errors.Is(err, errs.ErrArithmetic) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := big.MulUint64(math.MaxUint64); !errors.Is(err, errs.ErrArithmetic) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestPow(t *testing.T) {
	two := FromUint64(2)
	got, err := two.Pow(10)
	if err != nil {
		t.Fatalf("pow: %v", err)
	}
	if !got.Eq(FromUint64(1024)) {
		t.Fatalf("2^10 = %s", got)
	}
	got, err = two.Pow(0)
	if err != nil || !got.Eq(One()) {
		t.Fatalf("x^0 = %s (%v)", got, err)
	}
	rate := FromScaled(WAD + 1_000_000_000)
	compounded, err := rate.Pow(1000)
	if err != nil {
		t.Fatalf("pow: %v", err)
	}
	if !compounded.Gt(rate) {
		t.Fatalf("compounding must grow: %s", compounded)
	}
}

func TestRounding(t *testing.T) {
	v := FromScaled(2*WAD + halfWAD)
	floor, _ := v.Floor()
	ceil, _ := v.Ceil()
	round, _ := v.Round()
	if floor != 2 || ceil != 3 || round != 3 {
		t.Fatalf("floor=%d ceil=%d round=%d", floor, ceil, round)
	}
	exact := FromUint64(7)
	if c, _ := exact.Ceil(); c != 7 {
		t.Fatalf("ceil of integer changed value: %d", c)
	}
	tooBig := FromUint256(new(uint256.Int).Lsh(uint256.NewInt(1), 130))
	if _, err := tooBig.Floor(); !errors.Is(err, errs.ErrArithmetic) {
		t.Fatalf("expected floor overflow, got %v", err)
	}
}

func TestPercent(t *testing.T) {
	p := FromPercent(80)
	if p.String() != "0.800000000000000000" {
		t.Fatalf("80%% = %s", p)
	}
}

func TestPackU128(t *testing.T) {
	v := FromScaled(123_456_789)
	v, _ = v.MulUint64(1 << 40)
	packed, err := v.PackU128()
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if got := UnpackU128(packed); !got.Eq(v) {
		t.Fatalf("unpack = %s want %s", got, v)
	}
	wide := FromUint256(new(uint256.Int).Lsh(uint256.NewInt(1), 128))
	if _, err := wide.PackU128(); !errors.Is(err, errs.ErrArithmetic) {
		t.Fatalf("expected pack overflow, got %v", err)
	}
}
