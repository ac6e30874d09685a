package errs

import (
	"errors"
	"fmt"
)

// Code is a lending program result code. Codes are stable small integers and
// are surfaced to callers as the instruction result.
type Code uint32

const (
	ErrInstructionUnpack Code = iota
	ErrAlreadyInitialized
	ErrInvalidMarketAuthority
	ErrInvalidMarketOwner
	ErrInvalidAccountOwner
	ErrInvalidTokenOwner
	ErrInvalidTokenMint
	ErrInvalidTokenProgram
	ErrInvalidOracleConfig
	ErrStaleOracle
	ErrInvalidAccountInput
	ErrInvalidArgument
	ErrInvalidAmount
	ErrInvalidConfig
	ErrInvalidSigner
	ErrArithmetic
	ErrTokenTransferFailed
	ErrTokenMintToFailed
	ErrTokenBurnFailed
	ErrTokenInitializeMintFailed
	ErrTokenInitializeAccountFailed
	ErrInsufficientLiquidity
	ErrReserveStale
	ErrWithdrawTooSmall
	ErrWithdrawTooLarge
	ErrBorrowTooSmall
	ErrBorrowTooLarge
	ErrRepayTooSmall
	ErrLiquidationTooSmall
	ErrObligationHealthy
	ErrObligationStale
	ErrObligationReserveLimit
	ErrInvalidObligationOwner
	ErrObligationDepositsEmpty
	ErrObligationBorrowsEmpty
	ErrObligationDepositsZero
	ErrObligationLiquidityEmpty
	ErrObligationCollateralEmpty
	ErrNegativeInterestRate
	ErrInsufficientProtocolFeesToRedeem
	ErrFlashBorrowCpi
	ErrNoFlashRepayFound
	ErrInvalidFlashRepay
	ErrFlashRepayCpi
	ErrMultipleFlashBorrows
	ErrFlashLoansDisabled
	ErrInvalidFlashLoanFee
	ErrFlashLoanOutstanding
	ErrDeprecatedInstruction
	ErrModulePaused
)

var messages = map[Code]string{
	ErrInstructionUnpack:                "failed to unpack instruction data",
	ErrAlreadyInitialized:               "account is already initialized",
	ErrInvalidMarketAuthority:           "market authority is invalid",
	ErrInvalidMarketOwner:               "market owner is invalid",
	ErrInvalidAccountOwner:              "input account owner is not the program address",
	ErrInvalidTokenOwner:                "input token account is not owned by the correct token program id",
	ErrInvalidTokenMint:                 "input token mint account is not valid",
	ErrInvalidTokenProgram:              "input token program account is not valid",
	ErrInvalidOracleConfig:              "input oracle config is not valid",
	ErrStaleOracle:                      "oracle price is stale",
	ErrInvalidAccountInput:              "invalid account input",
	ErrInvalidArgument:                  "invalid argument",
	ErrInvalidAmount:                    "input amount is invalid",
	ErrInvalidConfig:                    "input config value is invalid",
	ErrInvalidSigner:                    "input account must be a signer",
	ErrArithmetic:                       "math operation overflow",
	ErrTokenTransferFailed:              "token transfer failed",
	ErrTokenMintToFailed:                "token mint to failed",
	ErrTokenBurnFailed:                  "token burn failed",
	ErrTokenInitializeMintFailed:        "token initialize mint failed",
	ErrTokenInitializeAccountFailed:     "token initialize account failed",
	ErrInsufficientLiquidity:            "insufficient liquidity available",
	ErrReserveStale:                     "reserve state needs to be refreshed",
	ErrWithdrawTooSmall:                 "withdraw amount too small",
	ErrWithdrawTooLarge:                 "withdraw amount too large",
	ErrBorrowTooSmall:                   "borrow amount too small to receive liquidity after fees",
	ErrBorrowTooLarge:                   "borrow amount too large for deposited collateral",
	ErrRepayTooSmall:                    "repay amount too small to transfer liquidity",
	ErrLiquidationTooSmall:              "liquidation amount too small to receive collateral",
	ErrObligationHealthy:                "cannot liquidate healthy obligations",
	ErrObligationStale:                  "obligation state needs to be refreshed",
	ErrObligationReserveLimit:           "obligation reserve limit exceeded",
	ErrInvalidObligationOwner:           "obligation owner is invalid",
	ErrObligationDepositsEmpty:          "obligation deposits are empty",
	ErrObligationBorrowsEmpty:           "obligation borrows are empty",
	ErrObligationDepositsZero:           "obligation deposits have zero value",
	ErrObligationLiquidityEmpty:         "obligation borrows have zero value",
	ErrObligationCollateralEmpty:        "obligation collateral is empty",
	ErrNegativeInterestRate:             "interest rate is negative",
	ErrInsufficientProtocolFeesToRedeem: "insufficient protocol fees to redeem or no liquidity available",
	ErrFlashBorrowCpi:                   "flash borrow reserve liquidity must be a top-level instruction",
	ErrNoFlashRepayFound:                "no matching flash repay reserve liquidity instruction",
	ErrInvalidFlashRepay:                "invalid flash repay reserve liquidity instruction",
	ErrFlashRepayCpi:                    "flash repay reserve liquidity must be a top-level instruction",
	ErrMultipleFlashBorrows:             "multiple flash borrows not allowed in the same transaction",
	ErrFlashLoansDisabled:               "flash loans are disabled for this reserve",
	ErrInvalidFlashLoanFee:              "flash loan fee configuration is invalid",
	ErrFlashLoanOutstanding:             "reserve has an outstanding flash loan",
	ErrDeprecatedInstruction:            "instruction is deprecated",
	ErrModulePaused:                     "lending module paused",
}

func (c Code) Error() string {
	if msg, ok := messages[c]; ok {
		return fmt.Sprintf("lending: %s", msg)
	}
	return fmt.Sprintf("lending: error code %d", uint32(c))
}

// Is classifies the freshness codes as invalid account input so callers can
// match either the precise or the general condition.
func (c Code) Is(target error) bool {
	t, ok := target.(Code)
	if !ok {
		return false
	}
	if c == t {
		return true
	}
	switch c {
	case ErrReserveStale, ErrObligationStale:
		return t == ErrInvalidAccountInput
	}
	return false
}

// AsCode extracts the lending code carried by err, if any.
func AsCode(err error) (Code, bool) {
	var code Code
	if errors.As(err, &code) {
		return code, true
	}
	return 0, false
}
