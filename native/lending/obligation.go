package lending

import (
	"fmt"
	"math"

	"tokenlending/crypto"
	"tokenlending/native/lending/decimal"
	"tokenlending/native/lending/errs"
	"tokenlending/native/lending/state"
	"tokenlending/runtime"
)

// initObligation accounts:
//
//  0. [writable] obligation, allocated and uninitialized
//  1. [] lending market
//  2. [signer] obligation owner
func (p *Program) initObligation(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo) error {
	if err := requireAccounts(accounts, 3); err != nil {
		return err
	}
	obligationInfo, marketInfo, ownerInfo := accounts[0], accounts[1], accounts[2]
	if err := p.owned(obligationInfo); err != nil {
		return err
	}
	existing, err := state.UnpackObligation(obligationInfo.Data)
	if err != nil {
		return err
	}
	if existing.IsInitialized() {
		return fmt.Errorf("%w: obligation %s", errs.ErrAlreadyInitialized, obligationInfo.Key)
	}
	if _, err := p.loadMarket(marketInfo); err != nil {
		return err
	}
	if err := requireSigner(ownerInfo); err != nil {
		return err
	}
	obligation := state.NewObligation(ic.Slot(), marketInfo.Key, ownerInfo.Key)
	return pack(obligationInfo, obligation)
}

// refreshObligation accounts:
//
//  0. [writable] obligation
//     .. [] deposit reserves in deposit order, then borrow reserves in borrow
//     order, all refreshed in the current slot
func (p *Program) refreshObligation(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo) error {
	if err := requireAccounts(accounts, 1); err != nil {
		return err
	}
	obligationInfo := accounts[0]
	obligation, err := p.loadObligation(obligationInfo, crypto.Pubkey{})
	if err != nil {
		return err
	}
	reserveInfos := accounts[1:]
	if len(reserveInfos) != len(obligation.Deposits)+len(obligation.Borrows) {
		return fmt.Errorf("%w: obligation needs %d reserves, got %d",
			errs.ErrInvalidAccountInput, len(obligation.Deposits)+len(obligation.Borrows), len(reserveInfos))
	}

	reserves := make([]*state.Reserve, len(reserveInfos))
	for i, info := range reserveInfos {
		expected := obligation.LendingMarket
		if i < len(obligation.Deposits) {
			if err := requireKey(info, obligation.Deposits[i].DepositReserve, "deposit reserve"); err != nil {
				return err
			}
		} else {
			if err := requireKey(info, obligation.Borrows[i-len(obligation.Deposits)].BorrowReserve, "borrow reserve"); err != nil {
				return err
			}
		}
		reserve, err := p.loadReserve(info, expected)
		if err != nil {
			return err
		}
		reserves[i] = reserve
	}
	if err := obligation.Refresh(ic.Slot(), reserves); err != nil {
		return err
	}
	return pack(obligationInfo, obligation)
}

type depositCollateralAccounts struct {
	sourceCollateral      *runtime.AccountInfo
	destinationCollateral *runtime.AccountInfo
	reserve               *runtime.AccountInfo
	obligation            *runtime.AccountInfo
	market                *runtime.AccountInfo
	obligationOwner       *runtime.AccountInfo
	userAuthority         *runtime.AccountInfo
	tokenProgram          *runtime.AccountInfo
}

// depositObligationCollateral accounts:
//
//  0. [writable] source collateral
//  1. [writable] reserve collateral supply
//  2. [] deposit reserve
//  3. [writable] obligation
//  4. [] lending market
//  5. [signer] obligation owner
//  6. [signer] user transfer authority
//  7. [] token program
func (p *Program) depositObligationCollateral(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, collateralAmount uint64) error {
	if err := requireAccounts(accounts, 8); err != nil {
		return err
	}
	return p.depositCollateral(ic, depositCollateralAccounts{
		sourceCollateral:      accounts[0],
		destinationCollateral: accounts[1],
		reserve:               accounts[2],
		obligation:            accounts[3],
		market:                accounts[4],
		obligationOwner:       accounts[5],
		userAuthority:         accounts[6],
		tokenProgram:          accounts[7],
	}, collateralAmount)
}

func (p *Program) depositCollateral(ic *runtime.InvokeContext, a depositCollateralAccounts, collateralAmount uint64) error {
	if err := requireAmount(collateralAmount); err != nil {
		return err
	}
	market, err := p.loadMarket(a.market)
	if err != nil {
		return err
	}
	reserve, err := p.loadReserve(a.reserve, a.market.Key)
	if err != nil {
		return err
	}
	if err := requireKey(a.destinationCollateral, reserve.Collateral.SupplyPubkey, "reserve collateral supply"); err != nil {
		return err
	}
	if a.sourceCollateral.Key == reserve.Collateral.SupplyPubkey {
		return fmt.Errorf("%w: source collateral cannot be the reserve collateral supply", errs.ErrInvalidAccountInput)
	}
	if err := requireFreshReserve(reserve, a.reserve.Key, ic.Slot()); err != nil {
		return err
	}
	obligation, err := p.loadObligation(a.obligation, a.market.Key)
	if err != nil {
		return err
	}
	if err := requireObligationOwner(obligation, a.obligationOwner); err != nil {
		return err
	}
	if err := requireSigner(a.userAuthority); err != nil {
		return err
	}
	if err := requireTokenProgram(market, a.tokenProgram); err != nil {
		return err
	}

	collateral, err := obligation.FindOrAddCollateralToDeposits(a.reserve.Key)
	if err != nil {
		return err
	}
	if err := collateral.Deposit(collateralAmount); err != nil {
		return err
	}
	obligation.LastUpdate.MarkStale()
	if err := pack(a.obligation, obligation); err != nil {
		return err
	}
	return p.tokens(ic, market.TokenProgramID, nil).
		transfer(a.sourceCollateral.Key, a.destinationCollateral.Key, a.userAuthority.Key, collateralAmount, false)
}

type withdrawCollateralAccounts struct {
	sourceCollateral      *runtime.AccountInfo
	destinationCollateral *runtime.AccountInfo
	reserve               *runtime.AccountInfo
	obligation            *runtime.AccountInfo
	market                *runtime.AccountInfo
	authority             *runtime.AccountInfo
	obligationOwner       *runtime.AccountInfo
	tokenProgram          *runtime.AccountInfo
}

// withdrawObligationCollateral accounts:
//
//  0. [writable] reserve collateral supply
//  1. [writable] destination collateral
//  2. [] withdraw reserve
//  3. [writable] obligation
//  4. [] lending market
//  5. [] lending market authority
//  6. [signer] obligation owner
//  7. [] token program
func (p *Program) withdrawObligationCollateral(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, collateralAmount uint64) (uint64, error) {
	if err := requireAccounts(accounts, 8); err != nil {
		return 0, err
	}
	return p.withdrawCollateral(ic, withdrawCollateralAccounts{
		sourceCollateral:      accounts[0],
		destinationCollateral: accounts[1],
		reserve:               accounts[2],
		obligation:            accounts[3],
		market:                accounts[4],
		authority:             accounts[5],
		obligationOwner:       accounts[6],
		tokenProgram:          accounts[7],
	}, collateralAmount)
}

// withdrawCollateral releases collateral while keeping the obligation within
// its allowed borrow value. math.MaxUint64 withdraws as much as possible.
func (p *Program) withdrawCollateral(ic *runtime.InvokeContext, a withdrawCollateralAccounts, collateralAmount uint64) (uint64, error) {
	if err := requireAmount(collateralAmount); err != nil {
		return 0, err
	}
	market, err := p.loadMarket(a.market)
	if err != nil {
		return 0, err
	}
	reserve, err := p.loadReserve(a.reserve, a.market.Key)
	if err != nil {
		return 0, err
	}
	if err := requireKey(a.sourceCollateral, reserve.Collateral.SupplyPubkey, "reserve collateral supply"); err != nil {
		return 0, err
	}
	if a.destinationCollateral.Key == reserve.Collateral.SupplyPubkey {
		return 0, fmt.Errorf("%w: destination collateral cannot be the reserve collateral supply", errs.ErrInvalidAccountInput)
	}
	if err := requireFreshReserve(reserve, a.reserve.Key, ic.Slot()); err != nil {
		return 0, err
	}
	obligation, err := p.loadObligation(a.obligation, a.market.Key)
	if err != nil {
		return 0, err
	}
	if err := requireFreshObligation(obligation, a.obligation.Key, ic.Slot()); err != nil {
		return 0, err
	}
	if err := requireObligationOwner(obligation, a.obligationOwner); err != nil {
		return 0, err
	}
	seeds, err := p.marketAuthority(a.market.Key, market, a.authority)
	if err != nil {
		return 0, err
	}
	if err := requireTokenProgram(market, a.tokenProgram); err != nil {
		return 0, err
	}

	collateral, index, err := obligation.FindCollateralInDeposits(a.reserve.Key)
	if err != nil {
		return 0, err
	}
	if collateral.DepositedAmount == 0 {
		return 0, errs.ErrObligationCollateralEmpty
	}
	withdrawAmount, err := maxWithdraw(obligation, collateral, reserve.Config.LoanToValueRatio, collateralAmount)
	if err != nil {
		return 0, err
	}
	if err := obligation.Withdraw(withdrawAmount, index); err != nil {
		return 0, err
	}
	obligation.LastUpdate.MarkStale()
	if err := pack(a.obligation, obligation); err != nil {
		return 0, err
	}

	err = p.tokens(ic, market.TokenProgramID, seeds).
		transfer(a.sourceCollateral.Key, a.destinationCollateral.Key, a.authority.Key, withdrawAmount, true)
	if err != nil {
		return 0, err
	}
	return withdrawAmount, nil
}

func maxWithdraw(obligation *state.Obligation, collateral *state.ObligationCollateral, loanToValue uint8, requested uint64) (uint64, error) {
	if len(obligation.Borrows) == 0 {
		if requested == math.MaxUint64 || requested > collateral.DepositedAmount {
			return collateral.DepositedAmount, nil
		}
		return requested, nil
	}
	if obligation.DepositedValue.IsZero() {
		return 0, errs.ErrObligationDepositsZero
	}
	maxValue, err := obligation.MaxWithdrawValue(loanToValue)
	if err != nil {
		return 0, err
	}
	if maxValue.IsZero() {
		return 0, fmt.Errorf("%w: obligation has no withdrawable value", errs.ErrWithdrawTooLarge)
	}

	var amount uint64
	if requested == math.MaxUint64 {
		value := decimal.Min(maxValue, collateral.MarketValue)
		pct, err := value.Div(collateral.MarketValue)
		if err != nil {
			return 0, err
		}
		share, err := pct.MulUint64(collateral.DepositedAmount)
		if err != nil {
			return 0, err
		}
		if amount, err = share.Floor(); err != nil {
			return 0, err
		}
		amount = min(amount, collateral.DepositedAmount)
	} else {
		amount = min(requested, collateral.DepositedAmount)
		pct, err := decimal.FromUint64(amount).Div(decimal.FromUint64(collateral.DepositedAmount))
		if err != nil {
			return 0, err
		}
		value, err := collateral.MarketValue.Mul(pct)
		if err != nil {
			return 0, err
		}
		if value.Gt(maxValue) {
			return 0, fmt.Errorf("%w: withdraw value %s exceeds maximum %s", errs.ErrWithdrawTooLarge, value, maxValue)
		}
	}
	if amount == 0 {
		return 0, errs.ErrWithdrawTooSmall
	}
	return amount, nil
}

// borrowObligationLiquidity accounts:
//
//  0. [writable] reserve liquidity supply
//  1. [writable] destination liquidity
//  2. [writable] borrow reserve
//  3. [writable] borrow reserve liquidity fee receiver
//  4. [writable] obligation
//  5. [] lending market
//  6. [] lending market authority
//  7. [signer] obligation owner
//  8. [] token program
//  9. [writable] optional host fee receiver
func (p *Program) borrowObligationLiquidity(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, liquidityAmount uint64) error {
	if err := requireAccounts(accounts, 9); err != nil {
		return err
	}
	if err := requireAmount(liquidityAmount); err != nil {
		return err
	}
	var (
		liquiditySupply      = accounts[0]
		destinationLiquidity = accounts[1]
		reserveInfo          = accounts[2]
		feeReceiver          = accounts[3]
		obligationInfo       = accounts[4]
		marketInfo           = accounts[5]
		authorityInfo        = accounts[6]
		ownerInfo            = accounts[7]
		tokenProgram         = accounts[8]
		hostFeeReceiver      *runtime.AccountInfo
	)
	if len(accounts) > 9 {
		hostFeeReceiver = accounts[9]
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
	if destinationLiquidity.Key == reserve.Liquidity.SupplyPubkey {
		return fmt.Errorf("%w: destination liquidity cannot be the reserve liquidity supply", errs.ErrInvalidAccountInput)
	}
	if err := requireKey(feeReceiver, reserve.Config.FeeReceiver, "reserve liquidity fee receiver"); err != nil {
		return err
	}
	if err := requireFreshReserve(reserve, reserveInfo.Key, ic.Slot()); err != nil {
		return err
	}
	obligation, err := p.loadObligation(obligationInfo, marketInfo.Key)
	if err != nil {
		return err
	}
	if err := requireFreshObligation(obligation, obligationInfo.Key, ic.Slot()); err != nil {
		return err
	}
	if err := requireObligationOwner(obligation, ownerInfo); err != nil {
		return err
	}
	seeds, err := p.marketAuthority(marketInfo.Key, market, authorityInfo)
	if err != nil {
		return err
	}
	if err := requireTokenProgram(market, tokenProgram); err != nil {
		return err
	}

	if len(obligation.Deposits) == 0 {
		return errs.ErrObligationDepositsEmpty
	}
	if obligation.DepositedValue.IsZero() {
		return errs.ErrObligationDepositsZero
	}
	remaining, err := obligation.RemainingBorrowValue()
	if err != nil {
		return err
	}
	if remaining.IsZero() {
		return fmt.Errorf("%w: obligation has no remaining borrow value", errs.ErrBorrowTooLarge)
	}

	result, err := reserve.CalculateBorrow(liquidityAmount, remaining)
	if err != nil {
		return err
	}
	if result.ReceiveAmount == 0 {
		return errs.ErrBorrowTooSmall
	}
	borrowed, err := reserve.Liquidity.BorrowedAmount.Add(result.BorrowAmount)
	if err != nil {
		return err
	}
	if borrowed.Gt(decimal.FromUint64(reserve.Config.BorrowLimit)) {
		return fmt.Errorf("%w: borrow would exceed the reserve borrow limit of %d",
			errs.ErrInvalidAmount, reserve.Config.BorrowLimit)
	}

	if err := reserve.Liquidity.Borrow(result.BorrowAmount); err != nil {
		return err
	}
	reserve.LastUpdate.MarkStale()
	if err := pack(reserveInfo, reserve); err != nil {
		return err
	}

	liquidity, err := obligation.FindOrAddLiquidityToBorrows(reserveInfo.Key, reserve.Liquidity.CumulativeBorrowRate)
	if err != nil {
		return err
	}
	if err := liquidity.Borrow(result.BorrowAmount); err != nil {
		return err
	}
	obligation.LastUpdate.MarkStale()
	if err := pack(obligationInfo, obligation); err != nil {
		return err
	}

	tokens := p.tokens(ic, market.TokenProgramID, seeds)
	ownerFee := result.BorrowFee
	if hostFeeReceiver != nil && result.HostFee > 0 {
		if err := tokens.transfer(liquiditySupply.Key, hostFeeReceiver.Key, authorityInfo.Key, result.HostFee, true); err != nil {
			return err
		}
		ownerFee -= result.HostFee
	}
	if err := tokens.transfer(liquiditySupply.Key, feeReceiver.Key, authorityInfo.Key, ownerFee, true); err != nil {
		return err
	}
	return tokens.transfer(liquiditySupply.Key, destinationLiquidity.Key, authorityInfo.Key, result.ReceiveAmount, true)
}

// repayObligationLiquidity accounts:
//
//  0. [writable] source liquidity
//  1. [writable] reserve liquidity supply
//  2. [writable] repay reserve
//  3. [writable] obligation
//  4. [] lending market
//  5. [signer] user transfer authority
//  6. [] token program
//
// math.MaxUint64 repays the whole debt.
func (p *Program) repayObligationLiquidity(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, liquidityAmount uint64) error {
	if err := requireAccounts(accounts, 7); err != nil {
		return err
	}
	if err := requireAmount(liquidityAmount); err != nil {
		return err
	}
	var (
		sourceLiquidity = accounts[0]
		liquiditySupply = accounts[1]
		reserveInfo     = accounts[2]
		obligationInfo  = accounts[3]
		marketInfo      = accounts[4]
		userAuthority   = accounts[5]
		tokenProgram    = accounts[6]
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
	if sourceLiquidity.Key == reserve.Liquidity.SupplyPubkey {
		return fmt.Errorf("%w: source liquidity cannot be the reserve liquidity supply", errs.ErrInvalidAccountInput)
	}
	if err := requireFreshReserve(reserve, reserveInfo.Key, ic.Slot()); err != nil {
		return err
	}
	obligation, err := p.loadObligation(obligationInfo, marketInfo.Key)
	if err != nil {
		return err
	}
	if err := requireFreshObligation(obligation, obligationInfo.Key, ic.Slot()); err != nil {
		return err
	}
	if err := requireSigner(userAuthority); err != nil {
		return err
	}
	if err := requireTokenProgram(market, tokenProgram); err != nil {
		return err
	}

	liquidity, index, err := obligation.FindLiquidityInBorrows(reserveInfo.Key)
	if err != nil {
		return err
	}
	if liquidity.BorrowedAmount.IsZero() {
		return errs.ErrObligationLiquidityEmpty
	}
	result, err := reserve.CalculateRepay(liquidityAmount, liquidity.BorrowedAmount)
	if err != nil {
		return err
	}
	if result.RepayAmount == 0 {
		return errs.ErrRepayTooSmall
	}

	if err := reserve.Liquidity.Repay(result.RepayAmount, result.SettleAmount); err != nil {
		return err
	}
	reserve.LastUpdate.MarkStale()
	if err := pack(reserveInfo, reserve); err != nil {
		return err
	}
	if err := obligation.Repay(result.SettleAmount, index); err != nil {
		return err
	}
	obligation.LastUpdate.MarkStale()
	if err := pack(obligationInfo, obligation); err != nil {
		return err
	}
	return p.tokens(ic, market.TokenProgramID, nil).
		transfer(sourceLiquidity.Key, liquiditySupply.Key, userAuthority.Key, result.RepayAmount, false)
}

// depositReserveLiquidityAndObligationCollateral accounts:
//
//  0. [writable] source liquidity
//  1. [writable] user collateral
//  2. [writable] reserve
//  3. [writable] reserve liquidity supply
//  4. [writable] reserve collateral mint
//  5. [] lending market
//  6. [] lending market authority
//  7. [writable] reserve collateral supply
//  8. [writable] obligation
//  9. [signer] obligation owner
//  10. [signer] user transfer authority
//  11. [] token program
func (p *Program) depositReserveLiquidityAndObligationCollateral(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, liquidityAmount uint64) error {
	if err := requireAccounts(accounts, 12); err != nil {
		return err
	}
	collateralAmount, err := p.depositLiquidity(ic, depositLiquidityAccounts{
		sourceLiquidity:       accounts[0],
		destinationCollateral: accounts[1],
		reserve:               accounts[2],
		liquiditySupply:       accounts[3],
		collateralMint:        accounts[4],
		market:                accounts[5],
		authority:             accounts[6],
		userAuthority:         accounts[10],
		tokenProgram:          accounts[11],
	}, liquidityAmount)
	if err != nil {
		return err
	}
	if err := p.refreshReserveInterest(ic, accounts[2]); err != nil {
		return err
	}
	err = p.depositCollateral(ic, depositCollateralAccounts{
		sourceCollateral:      accounts[1],
		destinationCollateral: accounts[7],
		reserve:               accounts[2],
		obligation:            accounts[8],
		market:                accounts[5],
		obligationOwner:       accounts[9],
		userAuthority:         accounts[10],
		tokenProgram:          accounts[11],
	}, collateralAmount)
	if err != nil {
		return err
	}
	return p.markReserveStale(accounts[2])
}

// withdrawObligationCollateralAndRedeemReserveCollateral accounts:
//
//  0. [writable] reserve collateral supply
//  1. [writable] user collateral
//  2. [writable] withdraw reserve
//  3. [writable] obligation
//  4. [] lending market
//  5. [] lending market authority
//  6. [writable] user liquidity
//  7. [writable] reserve collateral mint
//  8. [writable] reserve liquidity supply
//  9. [signer] obligation owner
//  10. [signer] user transfer authority
//  11. [] token program
func (p *Program) withdrawObligationCollateralAndRedeemReserveCollateral(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, collateralAmount uint64) error {
	if err := requireAccounts(accounts, 12); err != nil {
		return err
	}
	withdrawn, err := p.withdrawCollateral(ic, withdrawCollateralAccounts{
		sourceCollateral:      accounts[0],
		destinationCollateral: accounts[1],
		reserve:               accounts[2],
		obligation:            accounts[3],
		market:                accounts[4],
		authority:             accounts[5],
		obligationOwner:       accounts[9],
		tokenProgram:          accounts[11],
	}, collateralAmount)
	if err != nil {
		return err
	}
	_, err = p.redeemCollateral(ic, redeemCollateralAccounts{
		sourceCollateral:     accounts[1],
		destinationLiquidity: accounts[6],
		reserve:              accounts[2],
		collateralMint:       accounts[7],
		liquiditySupply:      accounts[8],
		market:               accounts[4],
		authority:            accounts[5],
		userAuthority:        accounts[10],
		tokenProgram:         accounts[11],
	}, withdrawn)
	return err
}

func (p *Program) markReserveStale(info *runtime.AccountInfo) error {
	reserve, err := state.UnpackReserve(info.Data)
	if err != nil {
		return err
	}
	reserve.LastUpdate.MarkStale()
	return pack(info, reserve)
}
