package lending

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"tokenlending/core/events"
	"tokenlending/crypto"
	nativecommon "tokenlending/native/common"
	"tokenlending/native/lending/errs"
	"tokenlending/native/lending/instruction"
	"tokenlending/native/lending/oracle"
	"tokenlending/native/lending/state"
	"tokenlending/observability"
	"tokenlending/runtime"
)

const moduleName = "lending"

// Program is the lending program. It validates the accounts of every
// instruction, applies the state transition on freshly unpacked records and
// moves tokens through the token program named by the lending market.
type Program struct {
	id      crypto.Pubkey
	oracle  oracle.Config
	emitter events.Emitter
	pauses  nativecommon.PauseView
	logger  *slog.Logger
}

// NewProgram constructs the program registered under id. oracleCfg names
// the oracle programs refreshes accept and the null oracle key.
func NewProgram(id crypto.Pubkey, oracleCfg oracle.Config) *Program {
	return &Program{
		id:      id,
		oracle:  oracleCfg,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
}

func (p *Program) ID() crypto.Pubkey { return p.id }

// SetEmitter wires the sink for oracle events.
func (p *Program) SetEmitter(emitter events.Emitter) {
	if p == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	p.emitter = emitter
}

func (p *Program) SetPauses(pauses nativecommon.PauseView) {
	if p == nil {
		return
	}
	p.pauses = pauses
}

func (p *Program) SetLogger(logger *slog.Logger) {
	if p == nil || logger == nil {
		return
	}
	p.logger = logger
}

// Process implements runtime.Program.
func (p *Program) Process(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, data []byte) error {
	ix, err := instruction.Unpack(data)
	if err != nil {
		observability.Lending().RecordInstruction("unknown", resultCode(err))
		return err
	}
	name := ix.Tag().String()
	err = p.dispatch(ic, accounts, ix)
	observability.Lending().RecordInstruction(name, resultCode(err))
	if err != nil {
		p.logger.Debug("lending instruction failed",
			slog.String("instruction", name),
			slog.Uint64("slot", ic.Slot()),
			slog.String("error", err.Error()))
	}
	return err
}

func (p *Program) dispatch(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, ix instruction.LendingInstruction) error {
	switch ix := ix.(type) {
	case instruction.InitLendingMarket:
		return p.initLendingMarket(accounts, ix.Owner, ix.QuoteCurrency)
	case instruction.SetLendingMarketOwner:
		return p.setLendingMarketOwner(accounts, ix.NewOwner)
	case instruction.InitReserve:
		return p.initReserve(ic, accounts, ix.LiquidityAmount, ix.Config)
	case instruction.RefreshReserve:
		return p.refreshReserve(ic, accounts)
	case instruction.DepositReserveLiquidity:
		if err := p.guard(); err != nil {
			return err
		}
		_, err := p.depositReserveLiquidity(ic, accounts, ix.LiquidityAmount)
		return err
	case instruction.RedeemReserveCollateral:
		_, err := p.redeemReserveCollateral(ic, accounts, ix.CollateralAmount)
		return err
	case instruction.InitObligation:
		return p.initObligation(ic, accounts)
	case instruction.RefreshObligation:
		return p.refreshObligation(ic, accounts)
	case instruction.DepositObligationCollateral:
		if err := p.guard(); err != nil {
			return err
		}
		return p.depositObligationCollateral(ic, accounts, ix.CollateralAmount)
	case instruction.WithdrawObligationCollateral:
		_, err := p.withdrawObligationCollateral(ic, accounts, ix.CollateralAmount)
		return err
	case instruction.BorrowObligationLiquidity:
		if err := p.guard(); err != nil {
			return err
		}
		return p.borrowObligationLiquidity(ic, accounts, ix.LiquidityAmount)
	case instruction.RepayObligationLiquidity:
		return p.repayObligationLiquidity(ic, accounts, ix.LiquidityAmount)
	case instruction.LiquidateObligation:
		_, err := p.liquidateObligation(ic, accounts, ix.LiquidityAmount)
		return err
	case instruction.DepositReserveLiquidityAndObligationCollateral:
		if err := p.guard(); err != nil {
			return err
		}
		return p.depositReserveLiquidityAndObligationCollateral(ic, accounts, ix.LiquidityAmount)
	case instruction.WithdrawObligationCollateralAndRedeemReserveCollateral:
		return p.withdrawObligationCollateralAndRedeemReserveCollateral(ic, accounts, ix.CollateralAmount)
	case instruction.UpdateReserveConfig:
		return p.updateReserveConfig(accounts, ix.Config)
	case instruction.LiquidateObligationAndRedeemReserveCollateral:
		return p.liquidateObligationAndRedeemReserveCollateral(ic, accounts, ix.LiquidityAmount)
	case instruction.RedeemFees:
		return p.redeemFees(ic, accounts)
	case instruction.FlashBorrowReserveLiquidity:
		if err := p.guard(); err != nil {
			return err
		}
		return p.flashBorrowReserveLiquidity(ic, accounts, ix.LiquidityAmount)
	case instruction.FlashRepayReserveLiquidity:
		return p.flashRepayReserveLiquidity(ic, accounts, ix.LiquidityAmount, ix.BorrowInstructionIndex)
	}
	return fmt.Errorf("%w: unhandled instruction %s", errs.ErrInstructionUnpack, ix.Tag())
}

// guard rejects flows that add risk while the operator has paused the
// module. Repay, refresh and liquidation stay open.
func (p *Program) guard() error {
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrModulePaused, err)
	}
	return nil
}

// FinalizeTransaction implements runtime.TransactionFinalizer: no reserve
// may leave a transaction with a flash loan outstanding.
func (p *Program) FinalizeTransaction(_ context.Context, owned []*runtime.AccountInfo) error {
	for _, info := range owned {
		if len(info.Data) != state.ReserveLen {
			continue
		}
		reserve, err := state.UnpackReserve(info.Data)
		if err != nil || !reserve.IsInitialized() {
			continue
		}
		if reserve.FlashLoan.Outstanding() {
			return fmt.Errorf("%w: reserve %s has %d outstanding", errs.ErrNoFlashRepayFound, info.Key, reserve.FlashLoan.Amount)
		}
	}
	return nil
}

func resultCode(err error) string {
	if err == nil {
		return ""
	}
	if code, ok := errs.AsCode(err); ok {
		return strconv.FormatUint(uint64(code), 10)
	}
	return "runtime"
}
