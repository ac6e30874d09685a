package lending

import (
	"fmt"

	"tokenlending/native/lending/errs"
	"tokenlending/runtime"
)

type liquidateAccounts struct {
	sourceLiquidity           *runtime.AccountInfo
	destinationCollateral     *runtime.AccountInfo
	repayReserve              *runtime.AccountInfo
	repayReserveLiquidity     *runtime.AccountInfo
	withdrawReserve           *runtime.AccountInfo
	withdrawReserveCollateral *runtime.AccountInfo
	obligation                *runtime.AccountInfo
	market                    *runtime.AccountInfo
	authority                 *runtime.AccountInfo
	userAuthority             *runtime.AccountInfo
	tokenProgram              *runtime.AccountInfo
}

// liquidateObligation accounts:
//
//  0. [writable] source liquidity
//  1. [writable] destination collateral
//  2. [writable] repay reserve
//  3. [writable] repay reserve liquidity supply
//  4. [] withdraw reserve
//  5. [writable] withdraw reserve collateral supply
//  6. [writable] obligation
//  7. [] lending market
//  8. [] lending market authority
//  9. [signer] user transfer authority
//  10. [] token program
func (p *Program) liquidateObligation(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, liquidityAmount uint64) (uint64, error) {
	if err := requireAccounts(accounts, 11); err != nil {
		return 0, err
	}
	return p.liquidate(ic, liquidateAccounts{
		sourceLiquidity:           accounts[0],
		destinationCollateral:     accounts[1],
		repayReserve:              accounts[2],
		repayReserveLiquidity:     accounts[3],
		withdrawReserve:           accounts[4],
		withdrawReserveCollateral: accounts[5],
		obligation:                accounts[6],
		market:                    accounts[7],
		authority:                 accounts[8],
		userAuthority:             accounts[9],
		tokenProgram:              accounts[10],
	}, liquidityAmount)
}

// liquidate repays part of an unhealthy obligation's debt and seizes
// collateral worth the repaid value plus the withdraw reserve's bonus. It
// returns the collateral amount seized.
func (p *Program) liquidate(ic *runtime.InvokeContext, a liquidateAccounts, liquidityAmount uint64) (uint64, error) {
	if err := requireAmount(liquidityAmount); err != nil {
		return 0, err
	}
	market, err := p.loadMarket(a.market)
	if err != nil {
		return 0, err
	}
	repayReserve, err := p.loadReserve(a.repayReserve, a.market.Key)
	if err != nil {
		return 0, err
	}
	if err := requireKey(a.repayReserveLiquidity, repayReserve.Liquidity.SupplyPubkey, "repay reserve liquidity supply"); err != nil {
		return 0, err
	}
	if a.sourceLiquidity.Key == repayReserve.Liquidity.SupplyPubkey {
		return 0, fmt.Errorf("%w: source liquidity cannot be the repay reserve liquidity supply", errs.ErrInvalidAccountInput)
	}
	if err := requireFreshReserve(repayReserve, a.repayReserve.Key, ic.Slot()); err != nil {
		return 0, err
	}
	withdrawReserve, err := p.loadReserve(a.withdrawReserve, a.market.Key)
	if err != nil {
		return 0, err
	}
	if err := requireKey(a.withdrawReserveCollateral, withdrawReserve.Collateral.SupplyPubkey, "withdraw reserve collateral supply"); err != nil {
		return 0, err
	}
	if a.destinationCollateral.Key == withdrawReserve.Collateral.SupplyPubkey {
		return 0, fmt.Errorf("%w: destination collateral cannot be the withdraw reserve collateral supply", errs.ErrInvalidAccountInput)
	}
	if err := requireFreshReserve(withdrawReserve, a.withdrawReserve.Key, ic.Slot()); err != nil {
		return 0, err
	}
	obligation, err := p.loadObligation(a.obligation, a.market.Key)
	if err != nil {
		return 0, err
	}
	if err := requireFreshObligation(obligation, a.obligation.Key, ic.Slot()); err != nil {
		return 0, err
	}
	seeds, err := p.marketAuthority(a.market.Key, market, a.authority)
	if err != nil {
		return 0, err
	}
	if err := requireSigner(a.userAuthority); err != nil {
		return 0, err
	}
	if err := requireTokenProgram(market, a.tokenProgram); err != nil {
		return 0, err
	}

	switch {
	case obligation.DepositedValue.IsZero():
		return 0, errs.ErrObligationDepositsZero
	case obligation.BorrowedValue.IsZero():
		return 0, errs.ErrObligationBorrowsEmpty
	case !obligation.IsLiquidatable():
		return 0, fmt.Errorf("%w: borrowed value %s is within %s",
			errs.ErrObligationHealthy, obligation.BorrowedValue, obligation.UnhealthyBorrowValue)
	}

	liquidity, liquidityIndex, err := obligation.FindLiquidityInBorrows(a.repayReserve.Key)
	if err != nil {
		return 0, err
	}
	if liquidity.MarketValue.IsZero() {
		return 0, errs.ErrObligationLiquidityEmpty
	}
	collateral, collateralIndex, err := obligation.FindCollateralInDeposits(a.withdrawReserve.Key)
	if err != nil {
		return 0, err
	}
	if collateral.MarketValue.IsZero() {
		return 0, errs.ErrObligationCollateralEmpty
	}

	result, err := withdrawReserve.CalculateLiquidation(liquidityAmount, obligation, liquidity, collateral)
	if err != nil {
		return 0, err
	}
	if result.RepayAmount == 0 || result.WithdrawAmount == 0 {
		return 0, errs.ErrLiquidationTooSmall
	}

	if err := repayReserve.Liquidity.Repay(result.RepayAmount, result.SettleAmount); err != nil {
		return 0, err
	}
	repayReserve.LastUpdate.MarkStale()
	if err := pack(a.repayReserve, repayReserve); err != nil {
		return 0, err
	}
	if err := obligation.Repay(result.SettleAmount, liquidityIndex); err != nil {
		return 0, err
	}
	if err := obligation.Withdraw(result.WithdrawAmount, collateralIndex); err != nil {
		return 0, err
	}
	obligation.LastUpdate.MarkStale()
	if err := pack(a.obligation, obligation); err != nil {
		return 0, err
	}

	tokens := p.tokens(ic, market.TokenProgramID, seeds)
	if err := tokens.transfer(a.sourceLiquidity.Key, a.repayReserveLiquidity.Key, a.userAuthority.Key, result.RepayAmount, false); err != nil {
		return 0, err
	}
	if err := tokens.transfer(a.withdrawReserveCollateral.Key, a.destinationCollateral.Key, a.authority.Key, result.WithdrawAmount, true); err != nil {
		return 0, err
	}
	return result.WithdrawAmount, nil
}

// liquidateObligationAndRedeemReserveCollateral accounts:
//
//  0. [writable] source liquidity
//  1. [writable] destination collateral
//  2. [writable] destination liquidity
//  3. [writable] repay reserve
//  4. [writable] repay reserve liquidity supply
//  5. [writable] withdraw reserve
//  6. [writable] withdraw reserve collateral mint
//  7. [writable] withdraw reserve collateral supply
//  8. [writable] withdraw reserve liquidity supply
//  9. [writable] withdraw reserve liquidity fee receiver
//  10. [writable] obligation
//  11. [] lending market
//  12. [] lending market authority
//  13. [signer] user transfer authority
//  14. [] token program
//
// Seized collateral is redeemed as far as the withdraw reserve has liquidity
// available; the protocol's share of the bonus goes to the fee receiver.
func (p *Program) liquidateObligationAndRedeemReserveCollateral(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, liquidityAmount uint64) error {
	if err := requireAccounts(accounts, 15); err != nil {
		return err
	}
	var (
		sourceLiquidity       = accounts[0]
		destinationCollateral = accounts[1]
		destinationLiquidity  = accounts[2]
		withdrawReserveInfo   = accounts[5]
		feeReceiver           = accounts[9]
		marketInfo            = accounts[11]
		userAuthority         = accounts[13]
		tokenProgram          = accounts[14]
	)
	withdrawn, err := p.liquidate(ic, liquidateAccounts{
		sourceLiquidity:           sourceLiquidity,
		destinationCollateral:     destinationCollateral,
		repayReserve:              accounts[3],
		repayReserveLiquidity:     accounts[4],
		withdrawReserve:           withdrawReserveInfo,
		withdrawReserveCollateral: accounts[7],
		obligation:                accounts[10],
		market:                    marketInfo,
		authority:                 accounts[12],
		userAuthority:             userAuthority,
		tokenProgram:              tokenProgram,
	}, liquidityAmount)
	if err != nil {
		return err
	}
	if err := p.refreshReserveInterest(ic, withdrawReserveInfo); err != nil {
		return err
	}

	market, err := p.loadMarket(marketInfo)
	if err != nil {
		return err
	}
	withdrawReserve, err := p.loadReserve(withdrawReserveInfo, marketInfo.Key)
	if err != nil {
		return err
	}
	if err := requireKey(feeReceiver, withdrawReserve.Config.FeeReceiver, "withdraw reserve liquidity fee receiver"); err != nil {
		return err
	}
	rate, err := withdrawReserve.CollateralExchangeRate()
	if err != nil {
		return err
	}
	redeemable, err := rate.LiquidityToCollateral(withdrawReserve.Liquidity.AvailableAmount)
	if err != nil {
		return err
	}
	collateralAmount := min(withdrawn, redeemable)
	if collateralAmount == 0 {
		return nil
	}

	liquidityAmountOut, err := p.redeemCollateral(ic, redeemCollateralAccounts{
		sourceCollateral:     destinationCollateral,
		destinationLiquidity: destinationLiquidity,
		reserve:              withdrawReserveInfo,
		collateralMint:       accounts[6],
		liquiditySupply:      accounts[8],
		market:               marketInfo,
		authority:            accounts[12],
		userAuthority:        userAuthority,
		tokenProgram:         tokenProgram,
	}, collateralAmount)
	if err != nil {
		return err
	}
	fee, err := withdrawReserve.CalculateProtocolLiquidationFee(liquidityAmountOut)
	if err != nil {
		return err
	}
	return p.tokens(ic, market.TokenProgramID, nil).
		transfer(destinationLiquidity.Key, feeReceiver.Key, userAuthority.Key, fee, false)
}
