package state

import (
	"errors"
	"math"
	"testing"

	"tokenlending/crypto"
	"tokenlending/native/lending/decimal"
	"tokenlending/native/lending/errs"
)

func testConfig() ReserveConfig {
	return ReserveConfig{
		OptimalUtilizationRate: 80,
		LoanToValueRatio:       50,
		LiquidationBonus:       5,
		LiquidationThreshold:   55,
		MinBorrowRate:          0,
		OptimalBorrowRate:      4,
		MaxBorrowRate:          30,
		Fees: ReserveFees{
			BorrowFeeWad:      10_000_000_000_000_000,
			FlashLoanFeeWad:   3_000_000_000_000_000,
			HostFeePercentage: 20,
		},
		DepositLimit:           math.MaxUint64,
		BorrowLimit:            math.MaxUint64,
		FeeReceiver:            crypto.Pubkey{9},
		ProtocolLiquidationFee: 10,
		ProtocolTakeRate:       10,
	}
}

func mustDecimal(t *testing.T) func(decimal.Decimal, error) decimal.Decimal {
	return func(d decimal.Decimal, err error) decimal.Decimal {
		t.Helper()
		if err != nil {
			t.Fatalf("decimal: %v", err)
		}
		return d
	}
}

func TestFlashLoanFees(t *testing.T) {
	fees := testConfig().Fees
	total, host, err := fees.CalculateFlashLoanFees(decimal.FromUint64(1_000_000_000))
	if err != nil {
		t.Fatalf("fees: %v", err)
	}
	if total != 3_000_000 || host != 600_000 {
		t.Fatalf("total=%d host=%d", total, host)
	}

	fees.FlashLoanFeeWad = FlashLoansDisabled
	if _, _, err := fees.CalculateFlashLoanFees(decimal.FromUint64(1)); !errors.Is(err, errs.ErrFlashLoansDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}
	fees.FlashLoanFeeWad = decimal.WAD + 1
	if _, _, err := fees.CalculateFlashLoanFees(decimal.FromUint64(1_000)); !errors.Is(err, errs.ErrInvalidFlashLoanFee) {
		t.Fatalf("expected invalid fee, got %v", err)
	}
}

func TestBorrowFees(t *testing.T) {
	fees := testConfig().Fees
	total, host, err := fees.CalculateBorrowFees(decimal.FromUint64(1_000), FeeExclusive)
	if err != nil {
		t.Fatalf("exclusive: %v", err)
	}
	if total != 10 || host != 2 {
		t.Fatalf("exclusive total=%d host=%d", total, host)
	}
	total, host, err = fees.CalculateBorrowFees(decimal.FromUint64(1_000), FeeInclusive)
	if err != nil {
		t.Fatalf("inclusive: %v", err)
	}
	if total != 10 || host != 1 {
		t.Fatalf("inclusive total=%d host=%d", total, host)
	}
	if host > total {
		t.Fatalf("host fee exceeds total")
	}
	if _, _, err := fees.CalculateBorrowFees(decimal.FromUint64(1), FeeExclusive); !errors.Is(err, errs.ErrBorrowTooSmall) {
		t.Fatalf("expected borrow too small, got %v", err)
	}
	fees.BorrowFeeWad = 0
	if total, host, err = fees.CalculateBorrowFees(decimal.FromUint64(1), FeeExclusive); err != nil || total != 0 || host != 0 {
		t.Fatalf("zero fee: total=%d host=%d err=%v", total, host, err)
	}
}

func TestInterestModel(t *testing.T) {
	model := testConfig().InterestModel()
	rate := mustDecimal(t)(model.BorrowRate(decimal.FromPercent(40)))
	if !rate.Eq(decimal.FromPercent(2)) {
		t.Fatalf("rate at 40%% = %s", rate)
	}
	rate = mustDecimal(t)(model.BorrowRate(decimal.FromPercent(80)))
	if !rate.Eq(decimal.FromPercent(4)) {
		t.Fatalf("rate at kink = %s", rate)
	}
	rate = mustDecimal(t)(model.BorrowRate(decimal.FromPercent(90)))
	if !rate.Eq(decimal.FromPercent(17)) {
		t.Fatalf("rate at 90%% = %s", rate)
	}
	rate = mustDecimal(t)(model.BorrowRate(decimal.One()))
	if !rate.Eq(decimal.FromPercent(30)) {
		t.Fatalf("rate at 100%% = %s", rate)
	}

	supply := mustDecimal(t)(model.SupplyRate(decimal.FromPercent(80), 10))
	want := mustDecimal(t)(decimal.FromPercent(4).Mul(decimal.FromPercent(80)))
	want = mustDecimal(t)(want.Mul(decimal.FromPercent(90)))
	if !supply.Eq(want) {
		t.Fatalf("supply rate = %s, want %s", supply, want)
	}

	flat := InterestModel{OptimalUtilization: 100, MinBorrowRate: 1, OptimalBorrowRate: 1, MaxBorrowRate: 1}
	rate = mustDecimal(t)(flat.BorrowRate(decimal.One()))
	if !rate.Eq(decimal.FromPercent(1)) {
		t.Fatalf("flat curve rate = %s", rate)
	}
}

func newTestReserve() *Reserve {
	r := NewReserve(NewReserveParams{
		LendingMarket: crypto.Pubkey{1},
		Liquidity:     ReserveLiquidity{MintPubkey: crypto.Pubkey{2}, MintDecimals: 6, SupplyPubkey: crypto.Pubkey{3}},
		Collateral:    ReserveCollateral{MintPubkey: crypto.Pubkey{4}, SupplyPubkey: crypto.Pubkey{5}},
		Config:        testConfig(),
	})
	r.Liquidity.MarketPrice = decimal.One()
	return r
}

func TestDepositAndRedeem(t *testing.T) {
	r := newTestReserve()
	minted, err := r.DepositLiquidity(1_000_000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if minted != 1_000_000 || r.Collateral.MintTotalSupply != 1_000_000 {
		t.Fatalf("initial deposit minted %d", minted)
	}

	borrowed := decimal.FromUint64(400_000)
	if err := r.Liquidity.Borrow(borrowed); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if r.Liquidity.AvailableAmount != 600_000 {
		t.Fatalf("available = %d", r.Liquidity.AvailableAmount)
	}

	before, err := r.CollateralExchangeRate()
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	liquidityBefore, _ := before.CollateralToLiquidity(1_000_000)
	if err := r.Refresh(1_000_000, decimal.One()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	after, _ := r.CollateralExchangeRate()
	liquidityAfter, _ := after.CollateralToLiquidity(1_000_000)
	if liquidityAfter <= liquidityBefore {
		t.Fatalf("exchange rate did not grow: %d -> %d", liquidityBefore, liquidityAfter)
	}
	if !r.Liquidity.CumulativeBorrowRate.Gt(decimal.One()) || !r.Liquidity.BorrowedAmount.Gt(borrowed) {
		t.Fatalf("interest not accrued: rate=%s borrowed=%s", r.Liquidity.CumulativeBorrowRate, r.Liquidity.BorrowedAmount)
	}
	if r.Liquidity.AccumulatedProtocolFees.IsZero() {
		t.Fatalf("protocol take rate not applied")
	}

	redeemed, err := r.RedeemCollateral(100_000)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if redeemed < 100_000 {
		t.Fatalf("redeemed %d for 100000 collateral", redeemed)
	}
	if _, err := r.RedeemCollateral(r.Collateral.MintTotalSupply); !errors.Is(err, errs.ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
}

func TestRefreshSameSlotIsNoop(t *testing.T) {
	r := newTestReserve()
	if _, err := r.DepositLiquidity(1_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := r.Liquidity.Borrow(decimal.FromUint64(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := r.Refresh(5_000, decimal.One()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	snapshot := r.Liquidity
	if err := r.Refresh(5_000, decimal.One()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if r.Liquidity != snapshot {
		t.Fatalf("second refresh changed liquidity")
	}
	if stale, _ := r.IsStale(5_000); stale {
		t.Fatalf("reserve stale after refresh")
	}
	if stale, _ := r.IsStale(5_001); !stale {
		t.Fatalf("reserve fresh one slot later")
	}

	r.FlashLoan = FlashLoanMarker{Amount: 10}
	if err := r.Refresh(5_001, decimal.One()); !errors.Is(err, errs.ErrFlashLoanOutstanding) {
		t.Fatalf("expected outstanding flash loan, got %v", err)
	}
	if stale, _ := r.IsStale(5_000); !stale {
		t.Fatalf("reserve with flash loan reported fresh")
	}
	if err := r.AccrueInterest(4_000); !errors.Is(err, errs.ErrArithmetic) {
		t.Fatalf("expected arithmetic error for past slot, got %v", err)
	}
}

func TestCalculateBorrowAndRepay(t *testing.T) {
	r := newTestReserve()
	if _, err := r.DepositLiquidity(10_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := r.CalculateBorrow(10_001, decimal.FromUint64(1_000_000)); !errors.Is(err, errs.ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	if _, err := r.CalculateBorrow(math.MaxUint64, decimal.FromUint64(1_000_000)); !errors.Is(err, errs.ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity for max amount, got %v", err)
	}

	// 1000 base units at price 1 and 6 decimals is worth 0.00101 with fee.
	limit := mustDecimal(t)(decimal.FromUint64(1_010).DivUint64(1_000_000))
	result, err := r.CalculateBorrow(1_000, limit)
	if err != nil {
		t.Fatalf("borrow at limit: %v", err)
	}
	if result.ReceiveAmount != 1_000 || result.BorrowFee != 10 || !result.BorrowAmount.Eq(decimal.FromUint64(1_010)) {
		t.Fatalf("unexpected borrow %+v", result)
	}
	tight := mustDecimal(t)(decimal.FromUint64(1_009).DivUint64(1_000_000))
	if _, err := r.CalculateBorrow(1_000, tight); !errors.Is(err, errs.ErrBorrowTooLarge) {
		t.Fatalf("expected borrow too large, got %v", err)
	}

	owed := decimal.FromScaled(1_500_000_000_000_000_000)
	repay, err := r.CalculateRepay(math.MaxUint64, owed)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if repay.RepayAmount != 2 || !repay.SettleAmount.Eq(owed) {
		t.Fatalf("unexpected repay %+v", repay)
	}
	repay, _ = r.CalculateRepay(1, owed)
	if repay.RepayAmount != 1 || !repay.SettleAmount.Eq(decimal.One()) {
		t.Fatalf("unexpected partial repay %+v", repay)
	}
}

func TestCalculateLiquidation(t *testing.T) {
	r := newTestReserve()
	obligation := &Obligation{BorrowedValue: decimal.FromUint64(100)}
	liquidity := &ObligationLiquidity{BorrowedAmount: decimal.FromUint64(100), MarketValue: decimal.FromUint64(100)}
	collateral := &ObligationCollateral{DepositedAmount: 1_000, MarketValue: decimal.FromUint64(120)}

	result, err := r.CalculateLiquidation(math.MaxUint64, obligation, liquidity, collateral)
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	if result.RepayAmount != 20 || result.WithdrawAmount != 175 {
		t.Fatalf("close factor liquidation %+v", result)
	}

	collateral.MarketValue = decimal.FromScaled(10_500_000_000_000_000_000)
	result, err = r.CalculateLiquidation(math.MaxUint64, obligation, liquidity, collateral)
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	if result.RepayAmount != 10 || result.WithdrawAmount != 1_000 {
		t.Fatalf("undercollateralized liquidation %+v", result)
	}

	dust := decimal.FromScaled(1_500_000_000_000_000_000)
	liquidity = &ObligationLiquidity{BorrowedAmount: dust, MarketValue: dust}
	collateral = &ObligationCollateral{DepositedAmount: 1_000, MarketValue: decimal.FromUint64(100)}
	result, err = r.CalculateLiquidation(1, obligation, liquidity, collateral)
	if err != nil {
		t.Fatalf("dust liquidation: %v", err)
	}
	if !result.SettleAmount.Eq(dust) || result.RepayAmount != 2 || result.WithdrawAmount != 15 {
		t.Fatalf("dust liquidation %+v", result)
	}

	fee, err := r.CalculateProtocolLiquidationFee(105)
	if err != nil {
		t.Fatalf("protocol fee: %v", err)
	}
	if fee != 1 {
		t.Fatalf("protocol fee = %d", fee)
	}
}

func TestRedeemFees(t *testing.T) {
	r := newTestReserve()
	r.Liquidity.AvailableAmount = 5
	r.Liquidity.AccumulatedProtocolFees = decimal.FromScaled(7_900_000_000_000_000_000)
	amount, err := r.CalculateRedeemFees()
	if err != nil || amount != 5 {
		t.Fatalf("redeem fees = %d, %v", amount, err)
	}
	if err := r.Liquidity.RedeemFees(amount); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if r.Liquidity.AvailableAmount != 0 {
		t.Fatalf("available = %d", r.Liquidity.AvailableAmount)
	}
}

func TestConfigValidation(t *testing.T) {
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	mutations := map[string]func(*ReserveConfig){
		"optimal utilization": func(c *ReserveConfig) { c.OptimalUtilizationRate = 101 },
		"ltv":                 func(c *ReserveConfig) { c.LoanToValueRatio = 100 },
		"bonus":               func(c *ReserveConfig) { c.LiquidationBonus = 101 },
		"threshold below ltv": func(c *ReserveConfig) { c.LiquidationThreshold = c.LoanToValueRatio },
		"rate order":          func(c *ReserveConfig) { c.MinBorrowRate = c.OptimalBorrowRate + 1 },
		"max rate":            func(c *ReserveConfig) { c.MaxBorrowRate = c.OptimalBorrowRate - 1 },
		"borrow fee":          func(c *ReserveConfig) { c.Fees.BorrowFeeWad = decimal.WAD },
		"flash fee":           func(c *ReserveConfig) { c.Fees.FlashLoanFeeWad = decimal.WAD + 1 },
		"host fee":            func(c *ReserveConfig) { c.Fees.HostFeePercentage = 101 },
		"protocol fee":        func(c *ReserveConfig) { c.ProtocolLiquidationFee = 101 },
		"take rate":           func(c *ReserveConfig) { c.ProtocolTakeRate = 101 },
	}
	for name, mutate := range mutations {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, errs.ErrInvalidConfig) {
			t.Fatalf("%s: expected invalid config, got %v", name, err)
		}
	}
	cfg := testConfig()
	cfg.Fees.FlashLoanFeeWad = FlashLoansDisabled
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled flash loans rejected: %v", err)
	}
}

func TestReserveLayoutRoundTrip(t *testing.T) {
	r := newTestReserve()
	r.Liquidity.AvailableAmount = 77
	r.Liquidity.BorrowedAmount = decimal.FromScaled(123_456)
	r.Liquidity.AccumulatedProtocolFees = decimal.FromScaled(42)
	r.Collateral.MintTotalSupply = 99
	r.LastUpdate.UpdateSlot(12)
	r.FlashLoan = FlashLoanMarker{Amount: 5, BorrowInstructionIndex: 3}

	buf := make([]byte, ReserveLen)
	if err := r.Pack(buf); err != nil {
		t.Fatalf("pack: %v", err)
	}
	decoded, err := UnpackReserve(buf)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if *decoded != *r {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", decoded, r)
	}
	if err := r.Pack(make([]byte, ReserveLen+1)); err == nil {
		t.Fatalf("expected size error")
	}
	if _, err := UnpackReserve(buf[:ReserveLen-1]); !errors.Is(err, errs.ErrInvalidAccountInput) {
		t.Fatalf("expected invalid account input, got %v", err)
	}

	market := &LendingMarket{Version: ProgramVersion, BumpSeed: 254, Owner: crypto.Pubkey{7}, TokenProgramID: crypto.Pubkey{8}}
	copy(market.QuoteCurrency[:], "USD")
	mbuf := make([]byte, LendingMarketLen)
	if err := market.Pack(mbuf); err != nil {
		t.Fatalf("pack market: %v", err)
	}
	decodedMarket, err := UnpackLendingMarket(mbuf)
	if err != nil || *decodedMarket != *market {
		t.Fatalf("market round trip: %+v %v", decodedMarket, err)
	}
}
