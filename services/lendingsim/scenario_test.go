package lendingsim

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tokenlending/native/lending/state"
)

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount("1.5", 6)
	require.NoError(t, err)
	require.Equal(t, uint64(1_500_000), amount)

	amount, err = ParseAmount(" max ", 9)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), amount)

	_, err = ParseAmount("0.0000001", 6)
	require.ErrorContains(t, err, "more than 6 decimals")
	_, err = ParseAmount("-1", 6)
	require.ErrorContains(t, err, "negative")
	_, err = ParseAmount("18446744073709551616", 0)
	require.ErrorContains(t, err, "overflows")
}

func TestParseFeesAndPercents(t *testing.T) {
	fee, err := ParseFeeWad("0.3%")
	require.NoError(t, err)
	require.Equal(t, uint64(3_000_000_000_000_000), fee)

	fee, err = ParseFeeWad("0.01")
	require.NoError(t, err)
	require.Equal(t, uint64(10_000_000_000_000_000), fee)

	pct, err := ParsePercent("55%")
	require.NoError(t, err)
	require.Equal(t, uint8(55), pct)
	_, err = ParsePercent("5.5")
	require.Error(t, err)

	price, expo, err := ParsePrice("20.125")
	require.NoError(t, err)
	require.Equal(t, int64(2_012_500_000), price)
	require.Equal(t, PriceExponent, expo)
	_, _, err = ParsePrice("0")
	require.Error(t, err)
}

func TestReserveConfig(t *testing.T) {
	spec := ReserveSpec{
		Symbol:   "USDC",
		Decimals: 6,
		Config: ReserveConfigSpec{
			LoanToValue:          "75",
			LiquidationThreshold: "80%",
			FlashLoanFee:         "disabled",
			DepositLimit:         "1000000",
		},
	}
	cfg, err := spec.ReserveConfig()
	require.NoError(t, err)
	require.Equal(t, uint8(75), cfg.LoanToValueRatio)
	require.Equal(t, state.FlashLoansDisabled, cfg.Fees.FlashLoanFeeWad)
	require.Equal(t, uint64(1_000_000_000_000), cfg.DepositLimit)
	require.Equal(t, uint64(math.MaxUint64), cfg.BorrowLimit)

	spec.Config.LiquidationThreshold = "70"
	_, err = spec.ReserveConfig()
	require.ErrorContains(t, err, "liquidation threshold")
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario("testdata/sol_usdc.yaml")
	require.NoError(t, err)
	require.Equal(t, "sol-usdc-liquidation", sc.Name)
	require.Len(t, sc.Reserves, 2)
	require.True(t, sc.Reserves[0].Switchboard)
	require.Equal(t, "0.1%", sc.Reserves[1].Config.BorrowFee)
	require.Equal(t, ActionLiquidate, sc.Steps[3].Action)
}

func TestScenarioValidation(t *testing.T) {
	base := `name: broken
reserves:
  - {symbol: SOL, decimals: 9, price: "20", liquidity: "1", config: {loan_to_value: "50", liquidation_threshold: "55"}}
actors:
  alice: {SOL: "1"}
`
	cases := map[string]string{
		"unknown action":   "steps:\n  - {action: teleport, actor: alice, reserve: SOL, amount: \"1\"}\n",
		"unknown reserve":  "steps:\n  - {action: borrow, actor: alice, reserve: BTC, amount: \"1\"}\n",
		"unknown actor":    "steps:\n  - {action: borrow, actor: carol, reserve: SOL, amount: \"1\"}\n",
		"slots must be":    "steps:\n  - {action: advance}\n",
		"unknown actor \"": "steps:\n  - {action: liquidate, actor: alice, reserve: SOL, collateral: SOL, amount: \"1\"}\n",
	}
	for want, steps := range cases {
		_, err := ParseScenario([]byte(base + steps))
		require.Error(t, err)
		require.True(t, strings.Contains(err.Error(), want), "error %q does not mention %q", err, want)
	}

	_, err := ParseScenario([]byte(base))
	require.NoError(t, err)
	_, err = ParseScenario([]byte(strings.Replace(base, `liquidity: "1"`, `liquidity: "0"`, 1)))
	require.ErrorContains(t, err, "initial liquidity")
}
