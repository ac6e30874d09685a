package instruction

import (
	"errors"
	"testing"

	"tokenlending/crypto"
	"tokenlending/native/lending/errs"
	"tokenlending/native/lending/state"
)

func TestPackUnpack(t *testing.T) {
	cases := []LendingInstruction{
		InitLendingMarket{Owner: crypto.Pubkey{1}, QuoteCurrency: [32]byte{'U', 'S', 'D'}},
		InitReserve{LiquidityAmount: 7, Config: state.ReserveConfig{LoanToValueRatio: 50, FeeReceiver: crypto.Pubkey{2}}},
		RefreshReserve{},
		BorrowObligationLiquidity{LiquidityAmount: 1 << 40},
		FlashRepayReserveLiquidity{LiquidityAmount: 1_000, BorrowInstructionIndex: 3},
	}
	for _, ix := range cases {
		data, err := Pack(ix)
		if err != nil {
			t.Fatalf("pack %s: %v", ix.Tag(), err)
		}
		if Tag(data[0]) != ix.Tag() {
			t.Fatalf("tag byte %d for %s", data[0], ix.Tag())
		}
		decoded, err := Unpack(data)
		if err != nil {
			t.Fatalf("unpack %s: %v", ix.Tag(), err)
		}
		if decoded != ix {
			t.Fatalf("round trip %s: %+v != %+v", ix.Tag(), decoded, ix)
		}
	}

	data, _ := Pack(FlashRepayReserveLiquidity{LiquidityAmount: 5})
	if len(data) != 10 {
		t.Fatalf("flash repay encoded to %d bytes", len(data))
	}
}

func TestUnpackRejects(t *testing.T) {
	if _, err := Unpack(nil); !errors.Is(err, errs.ErrInstructionUnpack) {
		t.Fatalf("expected unpack error for empty data, got %v", err)
	}
	if _, err := Unpack([]byte{byte(TagFlashLoan), 0, 0, 0, 0, 0, 0, 0, 0}); !errors.Is(err, errs.ErrDeprecatedInstruction) {
		t.Fatalf("expected deprecated instruction, got %v", err)
	}
	if _, err := Unpack([]byte{250}); !errors.Is(err, errs.ErrInstructionUnpack) {
		t.Fatalf("expected unknown tag, got %v", err)
	}
	if _, err := Unpack([]byte{byte(TagDepositReserveLiquidity), 1, 2}); !errors.Is(err, errs.ErrInstructionUnpack) {
		t.Fatalf("expected short data rejection, got %v", err)
	}
	data, _ := Pack(DepositReserveLiquidity{LiquidityAmount: 1})
	if _, err := Unpack(append(data, 0)); !errors.Is(err, errs.ErrInstructionUnpack) {
		t.Fatalf("expected trailing data rejection, got %v", err)
	}
	if _, err := Unpack([]byte{byte(TagRefreshReserve), 0}); !errors.Is(err, errs.ErrInstructionUnpack) {
		t.Fatalf("expected trailing data rejection, got %v", err)
	}
}

func TestBuildersPlaceReserveForFlashScan(t *testing.T) {
	program := crypto.Pubkey{9}
	reserve := crypto.Pubkey{3}
	borrow, err := NewFlashBorrowReserveLiquidity(program, 1, crypto.Pubkey{1}, crypto.Pubkey{2}, reserve, crypto.Pubkey{4}, crypto.Pubkey{5})
	if err != nil {
		t.Fatalf("flash borrow: %v", err)
	}
	if borrow.Accounts[FlashBorrowReserveIndex].Pubkey != reserve {
		t.Fatalf("flash borrow reserve at wrong position")
	}
	repay, err := NewFlashRepayReserveLiquidity(program, 1, 0, crypto.Pubkey{1}, crypto.Pubkey{2}, crypto.Pubkey{6}, crypto.Pubkey{7}, reserve, crypto.Pubkey{4}, crypto.Pubkey{8}, crypto.Pubkey{5})
	if err != nil {
		t.Fatalf("flash repay: %v", err)
	}
	if repay.Accounts[FlashRepayReserveIndex].Pubkey != reserve {
		t.Fatalf("flash repay reserve at wrong position")
	}
	authority, _, err := MarketAuthority(program, crypto.Pubkey{4})
	if err != nil {
		t.Fatalf("authority: %v", err)
	}
	if borrow.Accounts[4].Pubkey != authority {
		t.Fatalf("market authority not derived")
	}
}
