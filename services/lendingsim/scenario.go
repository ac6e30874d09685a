package lendingsim

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"tokenlending/native/lending/state"
)

// Step actions understood by the runner.
const (
	ActionSupply     = "supply"
	ActionRedeem     = "redeem"
	ActionDeposit    = "deposit"
	ActionWithdraw   = "withdraw"
	ActionBorrow     = "borrow"
	ActionRepay      = "repay"
	ActionLiquidate  = "liquidate"
	ActionFlashLoan  = "flash_loan"
	ActionRedeemFees = "redeem_fees"
	ActionSetPrice   = "set_price"
	ActionAdvance    = "advance"
)

var (
	wholePercent = decimal.NewFromInt(100)
	maxUint64    = decimal.NewFromUint64(math.MaxUint64)
)

// Scenario is a market setup followed by a scripted sequence of user
// actions. Amounts and prices are human readable decimals; token amounts are
// scaled by the reserve's decimals.
type Scenario struct {
	Name     string                       `yaml:"name"`
	Quote    string                       `yaml:"quote"`
	Reserves []ReserveSpec                `yaml:"reserves"`
	Actors   map[string]map[string]string `yaml:"actors"`
	Steps    []Step                       `yaml:"steps"`
}

type ReserveSpec struct {
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	Price    string `yaml:"price"`
	// Switchboard also publishes the price on a secondary feed.
	Switchboard bool              `yaml:"switchboard"`
	Liquidity   string            `yaml:"liquidity"`
	Config      ReserveConfigSpec `yaml:"config"`
}

// ReserveConfigSpec holds percentages such as "55" or "55%" and fees such as
// "0.3%". FlashLoanFee also accepts "disabled".
type ReserveConfigSpec struct {
	OptimalUtilization     string `yaml:"optimal_utilization"`
	LoanToValue            string `yaml:"loan_to_value"`
	LiquidationBonus       string `yaml:"liquidation_bonus"`
	LiquidationThreshold   string `yaml:"liquidation_threshold"`
	MinBorrowRate          string `yaml:"min_borrow_rate"`
	OptimalBorrowRate      string `yaml:"optimal_borrow_rate"`
	MaxBorrowRate          string `yaml:"max_borrow_rate"`
	BorrowFee              string `yaml:"borrow_fee"`
	FlashLoanFee           string `yaml:"flash_loan_fee"`
	HostFee                string `yaml:"host_fee"`
	DepositLimit           string `yaml:"deposit_limit"`
	BorrowLimit            string `yaml:"borrow_limit"`
	ProtocolLiquidationFee string `yaml:"protocol_liquidation_fee"`
	ProtocolTakeRate       string `yaml:"protocol_take_rate"`
}

type Step struct {
	Action  string `yaml:"action"`
	Actor   string `yaml:"actor"`
	Reserve string `yaml:"reserve"`
	// Collateral is the reserve seized by a liquidation.
	Collateral string `yaml:"collateral"`
	// Target owns the obligation being liquidated.
	Target string `yaml:"target"`
	Amount string `yaml:"amount"`
	Price  string `yaml:"price"`
	Slots  uint64 `yaml:"slots"`
	// ExpectError makes the step pass only when it fails with an error
	// containing this text.
	ExpectError string `yaml:"expect_error"`
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(raw)
}

func ParseScenario(raw []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("scenario: name required")
	}
	if len(s.Reserves) == 0 {
		return fmt.Errorf("scenario: at least one reserve required")
	}
	symbols := make(map[string]ReserveSpec, len(s.Reserves))
	for i, r := range s.Reserves {
		if r.Symbol == "" {
			return fmt.Errorf("reserves[%d]: symbol required", i)
		}
		if _, dup := symbols[r.Symbol]; dup {
			return fmt.Errorf("reserves[%d]: duplicate symbol %s", i, r.Symbol)
		}
		if _, err := r.ReserveConfig(); err != nil {
			return fmt.Errorf("reserves[%d] %s: %w", i, r.Symbol, err)
		}
		if _, _, err := ParsePrice(r.Price); err != nil {
			return fmt.Errorf("reserves[%d] %s: %w", i, r.Symbol, err)
		}
		liquidity, err := ParseAmount(r.Liquidity, r.Decimals)
		if err != nil {
			return fmt.Errorf("reserves[%d] %s: liquidity: %w", i, r.Symbol, err)
		}
		if liquidity == 0 || liquidity == math.MaxUint64 {
			return fmt.Errorf("reserves[%d] %s: initial liquidity must be a positive amount", i, r.Symbol)
		}
		symbols[r.Symbol] = r
	}
	for name, balances := range s.Actors {
		for symbol, amount := range balances {
			spec, ok := symbols[symbol]
			if !ok {
				return fmt.Errorf("actors.%s: unknown reserve %s", name, symbol)
			}
			if _, err := ParseAmount(amount, spec.Decimals); err != nil {
				return fmt.Errorf("actors.%s.%s: %w", name, symbol, err)
			}
		}
	}
	for i, step := range s.Steps {
		if err := step.validate(s.Actors, symbols); err != nil {
			return fmt.Errorf("steps[%d] %s: %w", i, step.Action, err)
		}
	}
	return nil
}

func (st Step) validate(actors map[string]map[string]string, symbols map[string]ReserveSpec) error {
	needReserve := func(symbol string) (ReserveSpec, error) {
		spec, ok := symbols[symbol]
		if !ok {
			return ReserveSpec{}, fmt.Errorf("unknown reserve %q", symbol)
		}
		return spec, nil
	}
	needActor := func(name string) error {
		if _, ok := actors[name]; !ok {
			return fmt.Errorf("unknown actor %q", name)
		}
		return nil
	}

	switch st.Action {
	case ActionAdvance:
		if st.Slots == 0 {
			return fmt.Errorf("slots must be positive")
		}
		return nil
	case ActionSetPrice:
		if _, err := needReserve(st.Reserve); err != nil {
			return err
		}
		_, _, err := ParsePrice(st.Price)
		return err
	case ActionRedeemFees:
		_, err := needReserve(st.Reserve)
		return err
	case ActionSupply, ActionRedeem, ActionDeposit, ActionWithdraw, ActionBorrow, ActionRepay, ActionFlashLoan, ActionLiquidate:
	default:
		return fmt.Errorf("unknown action")
	}

	if err := needActor(st.Actor); err != nil {
		return err
	}
	spec, err := needReserve(st.Reserve)
	if err != nil {
		return err
	}
	if _, err := ParseAmount(st.Amount, spec.Decimals); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if st.Action == ActionLiquidate {
		if err := needActor(st.Target); err != nil {
			return err
		}
		if _, err := needReserve(st.Collateral); err != nil {
			return err
		}
	}
	return nil
}

// ReserveConfig converts the human readable configuration into the on-ledger
// one. Limits are scaled by the reserve's decimals and default to unlimited.
func (r ReserveSpec) ReserveConfig() (state.ReserveConfig, error) {
	c := r.Config
	var (
		cfg state.ReserveConfig
		err error
	)
	percents := []struct {
		name string
		raw  string
		dst  *uint8
	}{
		{"optimal_utilization", c.OptimalUtilization, &cfg.OptimalUtilizationRate},
		{"loan_to_value", c.LoanToValue, &cfg.LoanToValueRatio},
		{"liquidation_bonus", c.LiquidationBonus, &cfg.LiquidationBonus},
		{"liquidation_threshold", c.LiquidationThreshold, &cfg.LiquidationThreshold},
		{"min_borrow_rate", c.MinBorrowRate, &cfg.MinBorrowRate},
		{"optimal_borrow_rate", c.OptimalBorrowRate, &cfg.OptimalBorrowRate},
		{"max_borrow_rate", c.MaxBorrowRate, &cfg.MaxBorrowRate},
		{"host_fee", c.HostFee, &cfg.Fees.HostFeePercentage},
		{"protocol_liquidation_fee", c.ProtocolLiquidationFee, &cfg.ProtocolLiquidationFee},
		{"protocol_take_rate", c.ProtocolTakeRate, &cfg.ProtocolTakeRate},
	}
	for _, p := range percents {
		if *p.dst, err = ParsePercent(p.raw); err != nil {
			return cfg, fmt.Errorf("%s: %w", p.name, err)
		}
	}
	if cfg.Fees.BorrowFeeWad, err = ParseFeeWad(c.BorrowFee); err != nil {
		return cfg, fmt.Errorf("borrow_fee: %w", err)
	}
	if strings.EqualFold(strings.TrimSpace(c.FlashLoanFee), "disabled") {
		cfg.Fees.FlashLoanFeeWad = state.FlashLoansDisabled
	} else if cfg.Fees.FlashLoanFeeWad, err = ParseFeeWad(c.FlashLoanFee); err != nil {
		return cfg, fmt.Errorf("flash_loan_fee: %w", err)
	}
	if cfg.DepositLimit, err = parseLimit(c.DepositLimit, r.Decimals); err != nil {
		return cfg, fmt.Errorf("deposit_limit: %w", err)
	}
	if cfg.BorrowLimit, err = parseLimit(c.BorrowLimit, r.Decimals); err != nil {
		return cfg, fmt.Errorf("borrow_limit: %w", err)
	}
	return cfg, cfg.Validate()
}

func parseLimit(raw string, decimals uint8) (uint64, error) {
	if strings.TrimSpace(raw) == "" {
		return math.MaxUint64, nil
	}
	return ParseAmount(raw, decimals)
}

// ParseAmount scales a human amount by decimals. "max" is math.MaxUint64.
func ParseAmount(raw string, decimals uint8) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "max") {
		return math.MaxUint64, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimals", raw, decimals)
	}
	return toUint64(scaled)
}

// ParsePercent accepts "55" or "55%" and returns a whole percentage.
func ParsePercent(raw string) (uint8, error) {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "%")
	if raw == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse percent %q: %w", raw, err)
	}
	if !d.IsInteger() || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(math.MaxUint8)) {
		return 0, fmt.Errorf("percent %q must be a whole number in [0, 255]", raw)
	}
	return uint8(d.IntPart()), nil
}

// ParseFeeWad converts a fee such as "0.3%" into a WAD scaled fraction.
func ParseFeeWad(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	percent := strings.HasSuffix(raw, "%")
	d, err := decimal.NewFromString(strings.TrimSuffix(raw, "%"))
	if err != nil {
		return 0, fmt.Errorf("parse fee %q: %w", raw, err)
	}
	if percent {
		d = d.Div(wholePercent)
	}
	scaled := d.Shift(18)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("fee %q is finer than 18 decimals", raw)
	}
	return toUint64(scaled)
}

// PriceExponent is the exponent scenario prices are published with.
const PriceExponent int32 = -8

// ParsePrice converts a human price into a primary feed mantissa at
// PriceExponent.
func ParsePrice(raw string) (int64, int32, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	if !d.IsPositive() {
		return 0, 0, fmt.Errorf("price %q must be positive", raw)
	}
	scaled := d.Shift(-PriceExponent)
	if !scaled.IsInteger() {
		return 0, 0, fmt.Errorf("price %q is finer than %d decimals", raw, -PriceExponent)
	}
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, 0, fmt.Errorf("price %q out of range", raw)
	}
	return scaled.IntPart(), PriceExponent, nil
}

func toUint64(d decimal.Decimal) (uint64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", d)
	}
	if d.GreaterThan(maxUint64) {
		return 0, fmt.Errorf("amount %s overflows", d)
	}
	return d.BigInt().Uint64(), nil
}
