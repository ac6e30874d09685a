package lendingsim

import (
	"sort"
	"sync"
	"time"
)

// Report summarizes a scenario run.
type Report struct {
	RunID       string             `json:"run_id"`
	Scenario    string             `json:"scenario"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	FinalSlot   uint64             `json:"final_slot"`
	Steps       []StepResult       `json:"steps"`
	Reserves    []ReserveReport    `json:"reserves"`
	Obligations []ObligationReport `json:"obligations"`
}

type ReserveReport struct {
	Symbol          string `json:"symbol"`
	Key             string `json:"key"`
	MarketPrice     string `json:"market_price"`
	AvailableAmount uint64 `json:"available_amount"`
	BorrowedAmount  string `json:"borrowed_amount"`
	Utilization     string `json:"utilization"`
	CollateralMint  uint64 `json:"collateral_supply"`
	ProtocolFees    string `json:"accumulated_protocol_fees"`
	FeeReceiver     uint64 `json:"fee_receiver_balance"`
}

type ObligationReport struct {
	Owner                string `json:"owner"`
	Key                  string `json:"key"`
	DepositedValue       string `json:"deposited_value"`
	BorrowedValue        string `json:"borrowed_value"`
	AllowedBorrowValue   string `json:"allowed_borrow_value"`
	UnhealthyBorrowValue string `json:"unhealthy_borrow_value"`
	Liquidatable         bool   `json:"liquidatable"`
}

// snapshot records the final reserve and obligation state. Obligation values
// are as of each obligation's last refresh.
func (r *Runner) snapshot(report *Report) error {
	for _, symbol := range r.order {
		res := r.reserves[symbol]
		reserve, err := r.env.LoadReserve(res.accounts.Key)
		if err != nil {
			return err
		}
		utilization, err := reserve.Liquidity.UtilizationRate()
		if err != nil {
			return err
		}
		fees, err := r.env.Balance(res.accounts.FeeReceiver)
		if err != nil {
			return err
		}
		report.Reserves = append(report.Reserves, ReserveReport{
			Symbol:          symbol,
			Key:             res.accounts.Key.String(),
			MarketPrice:     reserve.Liquidity.MarketPrice.String(),
			AvailableAmount: reserve.Liquidity.AvailableAmount,
			BorrowedAmount:  reserve.Liquidity.BorrowedAmount.String(),
			Utilization:     utilization.String(),
			CollateralMint:  reserve.Collateral.MintTotalSupply,
			ProtocolFees:    reserve.Liquidity.AccumulatedProtocolFees.String(),
			FeeReceiver:     fees,
		})
	}

	names := make([]string, 0, len(r.actors))
	for name, a := range r.actors {
		if !a.obligation.IsZero() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		a := r.actors[name]
		o, err := r.env.LoadObligation(a.obligation)
		if err != nil {
			return err
		}
		report.Obligations = append(report.Obligations, ObligationReport{
			Owner:                name,
			Key:                  a.obligation.String(),
			DepositedValue:       o.DepositedValue.String(),
			BorrowedValue:        o.BorrowedValue.String(),
			AllowedBorrowValue:   o.AllowedBorrowValue.String(),
			UnhealthyBorrowValue: o.UnhealthyBorrowValue.String(),
			Liquidatable:         o.IsLiquidatable(),
		})
	}
	return nil
}

// ReportStore holds the most recent report for the HTTP API.
type ReportStore struct {
	mu     sync.RWMutex
	latest *Report
}

func (s *ReportStore) Set(r *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = r
}

func (s *ReportStore) Latest() *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}
