package instruction

import (
	"fmt"

	"github.com/near/borsh-go"

	"tokenlending/crypto"
	"tokenlending/native/lending/errs"
	"tokenlending/native/lending/state"
)

// Tag is the first byte of every lending instruction.
type Tag uint8

const (
	TagInitLendingMarket Tag = iota
	TagSetLendingMarketOwner
	TagInitReserve
	TagRefreshReserve
	TagDepositReserveLiquidity
	TagRedeemReserveCollateral
	TagInitObligation
	TagRefreshObligation
	TagDepositObligationCollateral
	TagWithdrawObligationCollateral
	TagBorrowObligationLiquidity
	TagRepayObligationLiquidity
	TagLiquidateObligation
	// TagFlashLoan is the retired callback-style flash loan.
	TagFlashLoan
	TagDepositReserveLiquidityAndObligationCollateral
	TagWithdrawObligationCollateralAndRedeemReserveCollateral
	TagUpdateReserveConfig
	TagLiquidateObligationAndRedeemReserveCollateral
	TagRedeemFees
	TagFlashBorrowReserveLiquidity
	TagFlashRepayReserveLiquidity
)

var tagNames = map[Tag]string{
	TagInitLendingMarket:                                      "init_lending_market",
	TagSetLendingMarketOwner:                                  "set_lending_market_owner",
	TagInitReserve:                                            "init_reserve",
	TagRefreshReserve:                                         "refresh_reserve",
	TagDepositReserveLiquidity:                                "deposit_reserve_liquidity",
	TagRedeemReserveCollateral:                                "redeem_reserve_collateral",
	TagInitObligation:                                         "init_obligation",
	TagRefreshObligation:                                      "refresh_obligation",
	TagDepositObligationCollateral:                            "deposit_obligation_collateral",
	TagWithdrawObligationCollateral:                           "withdraw_obligation_collateral",
	TagBorrowObligationLiquidity:                              "borrow_obligation_liquidity",
	TagRepayObligationLiquidity:                               "repay_obligation_liquidity",
	TagLiquidateObligation:                                    "liquidate_obligation",
	TagFlashLoan:                                              "flash_loan",
	TagDepositReserveLiquidityAndObligationCollateral:         "deposit_reserve_liquidity_and_obligation_collateral",
	TagWithdrawObligationCollateralAndRedeemReserveCollateral: "withdraw_obligation_collateral_and_redeem_reserve_collateral",
	TagUpdateReserveConfig:                                    "update_reserve_config",
	TagLiquidateObligationAndRedeemReserveCollateral:          "liquidate_obligation_and_redeem_reserve_collateral",
	TagRedeemFees:                                             "redeem_fees",
	TagFlashBorrowReserveLiquidity:                            "flash_borrow_reserve_liquidity",
	TagFlashRepayReserveLiquidity:                             "flash_repay_reserve_liquidity",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// LendingInstruction is a decoded lending instruction.
type LendingInstruction interface {
	Tag() Tag
}

type InitLendingMarket struct {
	Owner         crypto.Pubkey
	QuoteCurrency [32]byte
}

type SetLendingMarketOwner struct {
	NewOwner crypto.Pubkey
}

type InitReserve struct {
	LiquidityAmount uint64
	Config          state.ReserveConfig
}

type RefreshReserve struct{}

type DepositReserveLiquidity struct {
	LiquidityAmount uint64
}

type RedeemReserveCollateral struct {
	CollateralAmount uint64
}

type InitObligation struct{}

type RefreshObligation struct{}

type DepositObligationCollateral struct {
	CollateralAmount uint64
}

type WithdrawObligationCollateral struct {
	CollateralAmount uint64
}

type BorrowObligationLiquidity struct {
	LiquidityAmount uint64
}

type RepayObligationLiquidity struct {
	LiquidityAmount uint64
}

type LiquidateObligation struct {
	LiquidityAmount uint64
}

type DepositReserveLiquidityAndObligationCollateral struct {
	LiquidityAmount uint64
}

type WithdrawObligationCollateralAndRedeemReserveCollateral struct {
	CollateralAmount uint64
}

type UpdateReserveConfig struct {
	Config state.ReserveConfig
}

type LiquidateObligationAndRedeemReserveCollateral struct {
	LiquidityAmount uint64
}

type RedeemFees struct{}

type FlashBorrowReserveLiquidity struct {
	LiquidityAmount uint64
}

type FlashRepayReserveLiquidity struct {
	LiquidityAmount        uint64
	BorrowInstructionIndex uint8
}

func (InitLendingMarket) Tag() Tag            { return TagInitLendingMarket }
func (SetLendingMarketOwner) Tag() Tag        { return TagSetLendingMarketOwner }
func (InitReserve) Tag() Tag                  { return TagInitReserve }
func (RefreshReserve) Tag() Tag               { return TagRefreshReserve }
func (DepositReserveLiquidity) Tag() Tag      { return TagDepositReserveLiquidity }
func (RedeemReserveCollateral) Tag() Tag      { return TagRedeemReserveCollateral }
func (InitObligation) Tag() Tag               { return TagInitObligation }
func (RefreshObligation) Tag() Tag            { return TagRefreshObligation }
func (DepositObligationCollateral) Tag() Tag  { return TagDepositObligationCollateral }
func (WithdrawObligationCollateral) Tag() Tag { return TagWithdrawObligationCollateral }
func (BorrowObligationLiquidity) Tag() Tag    { return TagBorrowObligationLiquidity }
func (RepayObligationLiquidity) Tag() Tag     { return TagRepayObligationLiquidity }
func (LiquidateObligation) Tag() Tag          { return TagLiquidateObligation }
func (DepositReserveLiquidityAndObligationCollateral) Tag() Tag {
	return TagDepositReserveLiquidityAndObligationCollateral
}
func (WithdrawObligationCollateralAndRedeemReserveCollateral) Tag() Tag {
	return TagWithdrawObligationCollateralAndRedeemReserveCollateral
}
func (UpdateReserveConfig) Tag() Tag { return TagUpdateReserveConfig }
func (LiquidateObligationAndRedeemReserveCollateral) Tag() Tag {
	return TagLiquidateObligationAndRedeemReserveCollateral
}
func (RedeemFees) Tag() Tag                  { return TagRedeemFees }
func (FlashBorrowReserveLiquidity) Tag() Tag { return TagFlashBorrowReserveLiquidity }
func (FlashRepayReserveLiquidity) Tag() Tag  { return TagFlashRepayReserveLiquidity }

// Pack encodes ix as its tag followed by its little-endian arguments. ix must
// be a value, not a pointer.
func Pack(ix LendingInstruction) ([]byte, error) {
	args, err := borsh.Serialize(ix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInstructionUnpack, err)
	}
	return append([]byte{byte(ix.Tag())}, args...), nil
}

func newInstruction(tag Tag) (LendingInstruction, error) {
	switch tag {
	case TagInitLendingMarket:
		return &InitLendingMarket{}, nil
	case TagSetLendingMarketOwner:
		return &SetLendingMarketOwner{}, nil
	case TagInitReserve:
		return &InitReserve{}, nil
	case TagRefreshReserve:
		return &RefreshReserve{}, nil
	case TagDepositReserveLiquidity:
		return &DepositReserveLiquidity{}, nil
	case TagRedeemReserveCollateral:
		return &RedeemReserveCollateral{}, nil
	case TagInitObligation:
		return &InitObligation{}, nil
	case TagRefreshObligation:
		return &RefreshObligation{}, nil
	case TagDepositObligationCollateral:
		return &DepositObligationCollateral{}, nil
	case TagWithdrawObligationCollateral:
		return &WithdrawObligationCollateral{}, nil
	case TagBorrowObligationLiquidity:
		return &BorrowObligationLiquidity{}, nil
	case TagRepayObligationLiquidity:
		return &RepayObligationLiquidity{}, nil
	case TagLiquidateObligation:
		return &LiquidateObligation{}, nil
	case TagFlashLoan:
		return nil, errs.ErrDeprecatedInstruction
	case TagDepositReserveLiquidityAndObligationCollateral:
		return &DepositReserveLiquidityAndObligationCollateral{}, nil
	case TagWithdrawObligationCollateralAndRedeemReserveCollateral:
		return &WithdrawObligationCollateralAndRedeemReserveCollateral{}, nil
	case TagUpdateReserveConfig:
		return &UpdateReserveConfig{}, nil
	case TagLiquidateObligationAndRedeemReserveCollateral:
		return &LiquidateObligationAndRedeemReserveCollateral{}, nil
	case TagRedeemFees:
		return &RedeemFees{}, nil
	case TagFlashBorrowReserveLiquidity:
		return &FlashBorrowReserveLiquidity{}, nil
	case TagFlashRepayReserveLiquidity:
		return &FlashRepayReserveLiquidity{}, nil
	}
	return nil, fmt.Errorf("%w: unknown tag %d", errs.ErrInstructionUnpack, uint8(tag))
}

// Unpack decodes instruction data. The arguments must occupy exactly the
// bytes after the tag.
func Unpack(data []byte) (LendingInstruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty instruction", errs.ErrInstructionUnpack)
	}
	ix, err := newInstruction(Tag(data[0]))
	if err != nil {
		return nil, err
	}
	args := data[1:]
	if err := borsh.Deserialize(ix, args); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrInstructionUnpack, Tag(data[0]), err)
	}
	decoded := deref(ix)
	encoded, err := borsh.Serialize(decoded)
	if err != nil || len(encoded) != len(args) {
		return nil, fmt.Errorf("%w: %s: %d argument bytes", errs.ErrInstructionUnpack, Tag(data[0]), len(args))
	}
	return decoded, nil
}

// deref returns the value form of a freshly decoded instruction so callers
// can type switch on value types.
func deref(ix LendingInstruction) LendingInstruction {
	switch v := ix.(type) {
	case *InitLendingMarket:
		return *v
	case *SetLendingMarketOwner:
		return *v
	case *InitReserve:
		return *v
	case *RefreshReserve:
		return *v
	case *DepositReserveLiquidity:
		return *v
	case *RedeemReserveCollateral:
		return *v
	case *InitObligation:
		return *v
	case *RefreshObligation:
		return *v
	case *DepositObligationCollateral:
		return *v
	case *WithdrawObligationCollateral:
		return *v
	case *BorrowObligationLiquidity:
		return *v
	case *RepayObligationLiquidity:
		return *v
	case *LiquidateObligation:
		return *v
	case *DepositReserveLiquidityAndObligationCollateral:
		return *v
	case *WithdrawObligationCollateralAndRedeemReserveCollateral:
		return *v
	case *UpdateReserveConfig:
		return *v
	case *LiquidateObligationAndRedeemReserveCollateral:
		return *v
	case *RedeemFees:
		return *v
	case *FlashBorrowReserveLiquidity:
		return *v
	case *FlashRepayReserveLiquidity:
		return *v
	}
	return ix
}
