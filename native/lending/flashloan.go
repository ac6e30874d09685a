package lending

import (
	"fmt"
	"math"

	"tokenlending/native/lending/decimal"
	"tokenlending/native/lending/errs"
	"tokenlending/native/lending/instruction"
	"tokenlending/native/lending/state"
	"tokenlending/observability"
	"tokenlending/runtime"
)

// flashBorrowReserveLiquidity accounts:
//
//  0. [writable] reserve liquidity supply
//  1. [writable] destination liquidity
//  2. [writable] reserve
//  3. [] lending market
//  4. [] lending market authority
//  5. [] token program
//
// The borrow must be a top-level instruction followed, later in the same
// transaction, by exactly one matching flash repay on the same reserve.
func (p *Program) flashBorrowReserveLiquidity(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, liquidityAmount uint64) error {
	if !ic.IsTopLevel() {
		return errs.ErrFlashBorrowCpi
	}
	if err := requireAccounts(accounts, 6); err != nil {
		return err
	}
	if err := requireAmount(liquidityAmount); err != nil {
		return err
	}
	var (
		liquiditySupply      = accounts[0]
		destinationLiquidity = accounts[1]
		reserveInfo          = accounts[2]
		marketInfo           = accounts[3]
		authorityInfo        = accounts[4]
		tokenProgram         = accounts[5]
	)
	market, err := p.loadMarket(marketInfo)
	if err != nil {
		return err
	}
	reserve, err := p.loadReserve(reserveInfo, marketInfo.Key)
	if err != nil {
		return err
	}
	if err := requireKey(liquiditySupply, reserve.Liquidity.SupplyPubkey, "reserve liquidity supply"); err != nil {
		return err
	}
	if destinationLiquidity.Key == reserve.Liquidity.SupplyPubkey {
		return fmt.Errorf("%w: destination liquidity cannot be the reserve liquidity supply", errs.ErrInvalidAccountInput)
	}
	seeds, err := p.marketAuthority(marketInfo.Key, market, authorityInfo)
	if err != nil {
		return err
	}
	if err := requireTokenProgram(market, tokenProgram); err != nil {
		return err
	}
	if reserve.Config.Fees.FlashLoanFeeWad == state.FlashLoansDisabled {
		return errs.ErrFlashLoansDisabled
	}
	if reserve.FlashLoan.Outstanding() {
		return fmt.Errorf("%w: reserve %s already lent %d", errs.ErrMultipleFlashBorrows, reserveInfo.Key, reserve.FlashLoan.Amount)
	}

	index := ic.InstructionIndex()
	if index > math.MaxUint8 {
		return fmt.Errorf("%w: flash borrow at instruction %d", errs.ErrInvalidArgument, index)
	}
	if err := p.findFlashRepay(ic, index, reserveInfo, liquidityAmount); err != nil {
		return err
	}

	borrowed, err := reserve.Liquidity.BorrowedAmount.Add(decimal.FromUint64(liquidityAmount))
	if err != nil {
		return err
	}
	if borrowed.Gt(decimal.FromUint64(reserve.Config.BorrowLimit)) {
		return fmt.Errorf("%w: flash borrow would exceed the reserve borrow limit of %d",
			errs.ErrInvalidAmount, reserve.Config.BorrowLimit)
	}
	if err := reserve.Liquidity.Borrow(decimal.FromUint64(liquidityAmount)); err != nil {
		return err
	}
	reserve.FlashLoan = state.FlashLoanMarker{Amount: liquidityAmount, BorrowInstructionIndex: uint8(index)}
	if err := pack(reserveInfo, reserve); err != nil {
		return err
	}
	observability.Lending().RecordFlashBorrow()
	return p.tokens(ic, market.TokenProgramID, seeds).
		transfer(liquiditySupply.Key, destinationLiquidity.Key, authorityInfo.Key, liquidityAmount, true)
}

// findFlashRepay scans the instructions after index for the repay that
// closes this borrow. Repays of other reserves are skipped. Any other flash
// borrow before the match, or a match with the wrong amount or index,
// rejects the borrow.
func (p *Program) findFlashRepay(ic *runtime.InvokeContext, index int, reserveInfo *runtime.AccountInfo, liquidityAmount uint64) error {
	instructions := ic.TransactionInstructions()
	for i := index + 1; i < len(instructions); i++ {
		next := instructions[i]
		if next.ProgramID != p.id {
			continue
		}
		decoded, err := instruction.Unpack(next.Data)
		if err != nil {
			return err
		}
		switch ix := decoded.(type) {
		case instruction.FlashBorrowReserveLiquidity:
			return fmt.Errorf("%w: instruction %d borrows again before the repay", errs.ErrMultipleFlashBorrows, i)
		case instruction.FlashRepayReserveLiquidity:
			if len(next.Accounts) <= instruction.FlashRepayReserveIndex ||
				next.Accounts[instruction.FlashRepayReserveIndex].Pubkey != reserveInfo.Key {
				continue
			}
			if ix.LiquidityAmount != liquidityAmount {
				return fmt.Errorf("%w: repay of %d does not match borrow of %d",
					errs.ErrInvalidFlashRepay, ix.LiquidityAmount, liquidityAmount)
			}
			if int(ix.BorrowInstructionIndex) != index {
				return fmt.Errorf("%w: repay references instruction %d, borrow is %d",
					errs.ErrInvalidFlashRepay, ix.BorrowInstructionIndex, index)
			}
			return nil
		}
	}
	return errs.ErrNoFlashRepayFound
}

// flashRepayReserveLiquidity accounts:
//
//  0. [writable] source liquidity
//  1. [writable] reserve liquidity supply
//  2. [writable] reserve liquidity fee receiver
//  3. [writable] host fee receiver
//  4. [writable] reserve
//  5. [] lending market
//  6. [signer] user transfer authority
//  7. [] token program
func (p *Program) flashRepayReserveLiquidity(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, liquidityAmount uint64, borrowIndex uint8) error {
	if !ic.IsTopLevel() {
		return errs.ErrFlashRepayCpi
	}
	if err := requireAccounts(accounts, 8); err != nil {
		return err
	}
	if err := requireAmount(liquidityAmount); err != nil {
		return err
	}
	var (
		sourceLiquidity = accounts[0]
		liquiditySupply = accounts[1]
		feeReceiver     = accounts[2]
		hostFeeReceiver = accounts[3]
		reserveInfo     = accounts[4]
		marketInfo      = accounts[5]
		userAuthority   = accounts[6]
		tokenProgram    = accounts[7]
	)

	if err := p.checkFlashBorrow(ic, int(borrowIndex), reserveInfo, liquidityAmount); err != nil {
		return err
	}

	market, err := p.loadMarket(marketInfo)
	if err != nil {
		return err
	}
	reserve, err := p.loadReserve(reserveInfo, marketInfo.Key)
	if err != nil {
		return err
	}
	if err := requireKey(liquiditySupply, reserve.Liquidity.SupplyPubkey, "reserve liquidity supply"); err != nil {
		return err
	}
	if sourceLiquidity.Key == reserve.Liquidity.SupplyPubkey {
		return fmt.Errorf("%w: source liquidity cannot be the reserve liquidity supply", errs.ErrInvalidAccountInput)
	}
	if err := requireKey(feeReceiver, reserve.Config.FeeReceiver, "reserve liquidity fee receiver"); err != nil {
		return err
	}
	if err := requireSigner(userAuthority); err != nil {
		return err
	}
	if err := requireTokenProgram(market, tokenProgram); err != nil {
		return err
	}
	if !reserve.FlashLoan.Outstanding() {
		return errs.ErrNoFlashRepayFound
	}
	if reserve.FlashLoan.Amount != liquidityAmount || reserve.FlashLoan.BorrowInstructionIndex != borrowIndex {
		return fmt.Errorf("%w: reserve lent %d at instruction %d",
			errs.ErrInvalidFlashRepay, reserve.FlashLoan.Amount, reserve.FlashLoan.BorrowInstructionIndex)
	}

	fee, hostFee, err := reserve.Config.Fees.CalculateFlashLoanFees(decimal.FromUint64(liquidityAmount))
	if err != nil {
		return err
	}
	if err := reserve.Liquidity.Repay(liquidityAmount, decimal.FromUint64(liquidityAmount)); err != nil {
		return err
	}
	reserve.FlashLoan = state.FlashLoanMarker{}
	if err := pack(reserveInfo, reserve); err != nil {
		return err
	}
	observability.Lending().RecordFlashRepay(fee)

	tokens := p.tokens(ic, market.TokenProgramID, nil)
	if err := tokens.transfer(sourceLiquidity.Key, liquiditySupply.Key, userAuthority.Key, liquidityAmount, false); err != nil {
		return err
	}
	if err := tokens.transfer(sourceLiquidity.Key, hostFeeReceiver.Key, userAuthority.Key, hostFee, false); err != nil {
		return err
	}
	return tokens.transfer(sourceLiquidity.Key, feeReceiver.Key, userAuthority.Key, fee-hostFee, false)
}

// checkFlashBorrow verifies that the instruction at borrowIndex is an
// earlier flash borrow of the same amount from the same reserve.
func (p *Program) checkFlashBorrow(ic *runtime.InvokeContext, borrowIndex int, reserveInfo *runtime.AccountInfo, liquidityAmount uint64) error {
	if borrowIndex >= ic.InstructionIndex() {
		return fmt.Errorf("%w: borrow instruction %d is not before repay %d",
			errs.ErrInvalidFlashRepay, borrowIndex, ic.InstructionIndex())
	}
	borrow := ic.TransactionInstructions()[borrowIndex]
	if borrow.ProgramID != p.id {
		return fmt.Errorf("%w: instruction %d belongs to another program", errs.ErrInvalidFlashRepay, borrowIndex)
	}
	decoded, err := instruction.Unpack(borrow.Data)
	if err != nil {
		return err
	}
	ix, ok := decoded.(instruction.FlashBorrowReserveLiquidity)
	if !ok {
		return fmt.Errorf("%w: instruction %d is %s", errs.ErrInvalidFlashRepay, borrowIndex, decoded.Tag())
	}
	if ix.LiquidityAmount != liquidityAmount {
		return fmt.Errorf("%w: borrow of %d does not match repay of %d",
			errs.ErrInvalidFlashRepay, ix.LiquidityAmount, liquidityAmount)
	}
	if len(borrow.Accounts) <= instruction.FlashBorrowReserveIndex ||
		borrow.Accounts[instruction.FlashBorrowReserveIndex].Pubkey != reserveInfo.Key {
		return fmt.Errorf("%w: borrow instruction %d uses another reserve", errs.ErrInvalidFlashRepay, borrowIndex)
	}
	return nil
}
