package instruction

import (
	"fmt"

	"tokenlending/crypto"
	"tokenlending/native/lending/state"
	"tokenlending/runtime"
)

// MarketAuthority derives the address that signs for every token account a
// lending market controls.
func MarketAuthority(programID, market crypto.Pubkey) (crypto.Pubkey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{market[:]}, programID)
}

func marketAuthority(programID, market crypto.Pubkey) (crypto.Pubkey, error) {
	authority, _, err := MarketAuthority(programID, market)
	if err != nil {
		return crypto.Pubkey{}, fmt.Errorf("market %s authority: %w", market, err)
	}
	return authority, nil
}

func build(programID crypto.Pubkey, ix LendingInstruction, accounts ...runtime.AccountMeta) (runtime.Instruction, error) {
	data, err := Pack(ix)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return runtime.Instruction{ProgramID: programID, Accounts: accounts, Data: data}, nil
}

func w(key crypto.Pubkey) runtime.AccountMeta  { return runtime.Writable(key, false) }
func r(key crypto.Pubkey) runtime.AccountMeta  { return runtime.Readonly(key, false) }
func rs(key crypto.Pubkey) runtime.AccountMeta { return runtime.Readonly(key, true) }

func NewInitLendingMarket(programID, owner crypto.Pubkey, quoteCurrency [32]byte, market, tokenProgram, oracleProgram, switchboardProgram crypto.Pubkey) (runtime.Instruction, error) {
	return build(programID, InitLendingMarket{Owner: owner, QuoteCurrency: quoteCurrency},
		w(market), r(tokenProgram), r(oracleProgram), r(switchboardProgram))
}

func NewSetLendingMarketOwner(programID, market, currentOwner, newOwner crypto.Pubkey) (runtime.Instruction, error) {
	return build(programID, SetLendingMarketOwner{NewOwner: newOwner}, w(market), rs(currentOwner))
}

// InitReserveAccounts lists the accounts of an InitReserve instruction. The
// reserve, supply, fee receiver and collateral accounts must already be
// allocated with the right owner and size.
type InitReserveAccounts struct {
	SourceLiquidity       crypto.Pubkey
	DestinationCollateral crypto.Pubkey
	Reserve               crypto.Pubkey
	LiquidityMint         crypto.Pubkey
	LiquiditySupply       crypto.Pubkey
	FeeReceiver           crypto.Pubkey
	PythOracle            crypto.Pubkey
	SwitchboardOracle     crypto.Pubkey
	CollateralMint        crypto.Pubkey
	CollateralSupply      crypto.Pubkey
	LendingMarket         crypto.Pubkey
	LendingMarketOwner    crypto.Pubkey
	UserTransferAuthority crypto.Pubkey
	TokenProgram          crypto.Pubkey
}

func NewInitReserve(programID crypto.Pubkey, liquidityAmount uint64, config state.ReserveConfig, a InitReserveAccounts) (runtime.Instruction, error) {
	authority, err := marketAuthority(programID, a.LendingMarket)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return build(programID, InitReserve{LiquidityAmount: liquidityAmount, Config: config},
		w(a.SourceLiquidity),
		w(a.DestinationCollateral),
		w(a.Reserve),
		r(a.LiquidityMint),
		w(a.LiquiditySupply),
		w(a.FeeReceiver),
		r(a.PythOracle),
		r(a.SwitchboardOracle),
		w(a.CollateralMint),
		w(a.CollateralSupply),
		r(a.LendingMarket),
		r(authority),
		rs(a.LendingMarketOwner),
		rs(a.UserTransferAuthority),
		r(a.TokenProgram),
	)
}

func NewRefreshReserve(programID, reserve, pythOracle, switchboardOracle crypto.Pubkey) (runtime.Instruction, error) {
	return build(programID, RefreshReserve{}, w(reserve), r(pythOracle), r(switchboardOracle))
}

func NewDepositReserveLiquidity(programID crypto.Pubkey, liquidityAmount uint64, sourceLiquidity, destinationCollateral, reserve, reserveLiquiditySupply, reserveCollateralMint, market, userTransferAuthority, tokenProgram crypto.Pubkey) (runtime.Instruction, error) {
	authority, err := marketAuthority(programID, market)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return build(programID, DepositReserveLiquidity{LiquidityAmount: liquidityAmount},
		w(sourceLiquidity),
		w(destinationCollateral),
		w(reserve),
		w(reserveLiquiditySupply),
		w(reserveCollateralMint),
		r(market),
		r(authority),
		rs(userTransferAuthority),
		r(tokenProgram),
	)
}

func NewRedeemReserveCollateral(programID crypto.Pubkey, collateralAmount uint64, sourceCollateral, destinationLiquidity, reserve, reserveCollateralMint, reserveLiquiditySupply, market, userTransferAuthority, tokenProgram crypto.Pubkey) (runtime.Instruction, error) {
	authority, err := marketAuthority(programID, market)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return build(programID, RedeemReserveCollateral{CollateralAmount: collateralAmount},
		w(sourceCollateral),
		w(destinationLiquidity),
		w(reserve),
		w(reserveCollateralMint),
		w(reserveLiquiditySupply),
		r(market),
		r(authority),
		rs(userTransferAuthority),
		r(tokenProgram),
	)
}

func NewInitObligation(programID, obligation, market, obligationOwner crypto.Pubkey) (runtime.Instruction, error) {
	return build(programID, InitObligation{}, w(obligation), r(market), rs(obligationOwner))
}

// NewRefreshObligation lists the deposit reserves followed by the borrow
// reserves, in the order the obligation holds them.
func NewRefreshObligation(programID, obligation crypto.Pubkey, reserves ...crypto.Pubkey) (runtime.Instruction, error) {
	accounts := []runtime.AccountMeta{w(obligation)}
	for _, reserve := range reserves {
		accounts = append(accounts, r(reserve))
	}
	return build(programID, RefreshObligation{}, accounts...)
}

func NewDepositObligationCollateral(programID crypto.Pubkey, collateralAmount uint64, sourceCollateral, destinationCollateral, depositReserve, obligation, market, obligationOwner, userTransferAuthority, tokenProgram crypto.Pubkey) (runtime.Instruction, error) {
	return build(programID, DepositObligationCollateral{CollateralAmount: collateralAmount},
		w(sourceCollateral),
		w(destinationCollateral),
		r(depositReserve),
		w(obligation),
		r(market),
		rs(obligationOwner),
		rs(userTransferAuthority),
		r(tokenProgram),
	)
}

func NewWithdrawObligationCollateral(programID crypto.Pubkey, collateralAmount uint64, sourceCollateral, destinationCollateral, withdrawReserve, obligation, market, obligationOwner, tokenProgram crypto.Pubkey) (runtime.Instruction, error) {
	authority, err := marketAuthority(programID, market)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return build(programID, WithdrawObligationCollateral{CollateralAmount: collateralAmount},
		w(sourceCollateral),
		w(destinationCollateral),
		r(withdrawReserve),
		w(obligation),
		r(market),
		r(authority),
		rs(obligationOwner),
		r(tokenProgram),
	)
}

// NewBorrowObligationLiquidity builds a borrow. A zero hostFeeReceiver
// leaves the whole borrow fee to the reserve's fee receiver.
func NewBorrowObligationLiquidity(programID crypto.Pubkey, liquidityAmount uint64, sourceLiquidity, destinationLiquidity, borrowReserve, feeReceiver, obligation, market, obligationOwner, tokenProgram, hostFeeReceiver crypto.Pubkey) (runtime.Instruction, error) {
	authority, err := marketAuthority(programID, market)
	if err != nil {
		return runtime.Instruction{}, err
	}
	accounts := []runtime.AccountMeta{
		w(sourceLiquidity),
		w(destinationLiquidity),
		w(borrowReserve),
		w(feeReceiver),
		w(obligation),
		r(market),
		r(authority),
		rs(obligationOwner),
		r(tokenProgram),
	}
	if !hostFeeReceiver.IsZero() {
		accounts = append(accounts, w(hostFeeReceiver))
	}
	return build(programID, BorrowObligationLiquidity{LiquidityAmount: liquidityAmount}, accounts...)
}

func NewRepayObligationLiquidity(programID crypto.Pubkey, liquidityAmount uint64, sourceLiquidity, destinationLiquidity, repayReserve, obligation, market, userTransferAuthority, tokenProgram crypto.Pubkey) (runtime.Instruction, error) {
	return build(programID, RepayObligationLiquidity{LiquidityAmount: liquidityAmount},
		w(sourceLiquidity),
		w(destinationLiquidity),
		w(repayReserve),
		w(obligation),
		r(market),
		rs(userTransferAuthority),
		r(tokenProgram),
	)
}

// LiquidateAccounts lists the accounts shared by both liquidation
// instructions.
type LiquidateAccounts struct {
	SourceLiquidity           crypto.Pubkey
	DestinationCollateral     crypto.Pubkey
	RepayReserve              crypto.Pubkey
	RepayReserveLiquidity     crypto.Pubkey
	WithdrawReserve           crypto.Pubkey
	WithdrawReserveCollateral crypto.Pubkey
	Obligation                crypto.Pubkey
	LendingMarket             crypto.Pubkey
	UserTransferAuthority     crypto.Pubkey
	TokenProgram              crypto.Pubkey
}

func NewLiquidateObligation(programID crypto.Pubkey, liquidityAmount uint64, a LiquidateAccounts) (runtime.Instruction, error) {
	authority, err := marketAuthority(programID, a.LendingMarket)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return build(programID, LiquidateObligation{LiquidityAmount: liquidityAmount},
		w(a.SourceLiquidity),
		w(a.DestinationCollateral),
		w(a.RepayReserve),
		w(a.RepayReserveLiquidity),
		r(a.WithdrawReserve),
		w(a.WithdrawReserveCollateral),
		w(a.Obligation),
		r(a.LendingMarket),
		r(authority),
		rs(a.UserTransferAuthority),
		r(a.TokenProgram),
	)
}

// NewLiquidateObligationAndRedeemReserveCollateral liquidates and redeems the
// seized collateral into destinationLiquidity, paying the protocol share of
// the bonus to the withdraw reserve's fee receiver.
func NewLiquidateObligationAndRedeemReserveCollateral(programID crypto.Pubkey, liquidityAmount uint64, a LiquidateAccounts, destinationLiquidity, withdrawReserveCollateralMint, withdrawReserveLiquidity, withdrawReserveFeeReceiver crypto.Pubkey) (runtime.Instruction, error) {
	authority, err := marketAuthority(programID, a.LendingMarket)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return build(programID, LiquidateObligationAndRedeemReserveCollateral{LiquidityAmount: liquidityAmount},
		w(a.SourceLiquidity),
		w(a.DestinationCollateral),
		w(destinationLiquidity),
		w(a.RepayReserve),
		w(a.RepayReserveLiquidity),
		w(a.WithdrawReserve),
		w(withdrawReserveCollateralMint),
		w(a.WithdrawReserveCollateral),
		w(withdrawReserveLiquidity),
		w(withdrawReserveFeeReceiver),
		w(a.Obligation),
		r(a.LendingMarket),
		r(authority),
		rs(a.UserTransferAuthority),
		r(a.TokenProgram),
	)
}

func NewDepositReserveLiquidityAndObligationCollateral(programID crypto.Pubkey, liquidityAmount uint64, sourceLiquidity, userCollateral, reserve, reserveLiquiditySupply, reserveCollateralMint, market, reserveCollateralSupply, obligation, obligationOwner, userTransferAuthority, tokenProgram crypto.Pubkey) (runtime.Instruction, error) {
	authority, err := marketAuthority(programID, market)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return build(programID, DepositReserveLiquidityAndObligationCollateral{LiquidityAmount: liquidityAmount},
		w(sourceLiquidity),
		w(userCollateral),
		w(reserve),
		w(reserveLiquiditySupply),
		w(reserveCollateralMint),
		r(market),
		r(authority),
		w(reserveCollateralSupply),
		w(obligation),
		rs(obligationOwner),
		rs(userTransferAuthority),
		r(tokenProgram),
	)
}

func NewWithdrawObligationCollateralAndRedeemReserveCollateral(programID crypto.Pubkey, collateralAmount uint64, reserveCollateralSupply, userCollateral, withdrawReserve, obligation, market, userLiquidity, reserveCollateralMint, reserveLiquiditySupply, obligationOwner, userTransferAuthority, tokenProgram crypto.Pubkey) (runtime.Instruction, error) {
	authority, err := marketAuthority(programID, market)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return build(programID, WithdrawObligationCollateralAndRedeemReserveCollateral{CollateralAmount: collateralAmount},
		w(reserveCollateralSupply),
		w(userCollateral),
		w(withdrawReserve),
		w(obligation),
		r(market),
		r(authority),
		w(userLiquidity),
		w(reserveCollateralMint),
		w(reserveLiquiditySupply),
		rs(obligationOwner),
		rs(userTransferAuthority),
		r(tokenProgram),
	)
}

func NewUpdateReserveConfig(programID crypto.Pubkey, config state.ReserveConfig, reserve, market, marketOwner crypto.Pubkey) (runtime.Instruction, error) {
	authority, err := marketAuthority(programID, market)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return build(programID, UpdateReserveConfig{Config: config},
		w(reserve),
		r(market),
		r(authority),
		rs(marketOwner),
	)
}

func NewRedeemFees(programID, reserve, feeReceiver, reserveLiquiditySupply, market, tokenProgram crypto.Pubkey) (runtime.Instruction, error) {
	authority, err := marketAuthority(programID, market)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return build(programID, RedeemFees{},
		w(reserve),
		w(feeReceiver),
		w(reserveLiquiditySupply),
		r(market),
		r(authority),
		r(tokenProgram),
	)
}

// Account positions the flash loan scan relies on.
const (
	FlashBorrowReserveIndex = 2
	FlashRepayReserveIndex  = 4
)

func NewFlashBorrowReserveLiquidity(programID crypto.Pubkey, liquidityAmount uint64, reserveLiquiditySupply, destinationLiquidity, reserve, market, tokenProgram crypto.Pubkey) (runtime.Instruction, error) {
	authority, err := marketAuthority(programID, market)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return build(programID, FlashBorrowReserveLiquidity{LiquidityAmount: liquidityAmount},
		w(reserveLiquiditySupply),
		w(destinationLiquidity),
		w(reserve),
		r(market),
		r(authority),
		r(tokenProgram),
	)
}

func NewFlashRepayReserveLiquidity(programID crypto.Pubkey, liquidityAmount uint64, borrowInstructionIndex uint8, sourceLiquidity, reserveLiquiditySupply, feeReceiver, hostFeeReceiver, reserve, market, userTransferAuthority, tokenProgram crypto.Pubkey) (runtime.Instruction, error) {
	return build(programID, FlashRepayReserveLiquidity{LiquidityAmount: liquidityAmount, BorrowInstructionIndex: borrowInstructionIndex},
		w(sourceLiquidity),
		w(reserveLiquiditySupply),
		w(feeReceiver),
		w(hostFeeReceiver),
		w(reserve),
		r(market),
		rs(userTransferAuthority),
		r(tokenProgram),
	)
}
