package state

import (
	"fmt"

	"github.com/near/borsh-go"

	"tokenlending/crypto"
	"tokenlending/native/lending/errs"
)

// ProgramVersion is written into every record the program initializes.
const ProgramVersion uint8 = 1

// UninitializedVersion marks a record that was allocated but never
// initialized.
const UninitializedVersion uint8 = 0

// LendingMarketLen is the packed size of a lending market record.
const LendingMarketLen = 290

// LendingMarket groups reserves under a single owner and quote currency.
type LendingMarket struct {
	Version  uint8
	BumpSeed uint8
	Owner    crypto.Pubkey
	// QuoteCurrency is the symbol or mint all market values are expressed in.
	QuoteCurrency       [32]byte
	TokenProgramID      crypto.Pubkey
	OracleProgramID     crypto.Pubkey
	SwitchboardOracleID crypto.Pubkey
}

type lendingMarketLayout struct {
	Version             uint8
	BumpSeed            uint8
	Owner               crypto.Pubkey
	QuoteCurrency       [32]byte
	TokenProgramID      crypto.Pubkey
	OracleProgramID     crypto.Pubkey
	SwitchboardOracleID crypto.Pubkey
	Padding             [128]byte
}

func (m *LendingMarket) IsInitialized() bool { return m.Version != UninitializedVersion }

// UnpackLendingMarket decodes a market record.
func UnpackLendingMarket(data []byte) (*LendingMarket, error) {
	if len(data) != LendingMarketLen {
		return nil, fmt.Errorf("%w: lending market is %d bytes", errs.ErrInvalidAccountInput, len(data))
	}
	var layout lendingMarketLayout
	if err := borsh.Deserialize(&layout, data); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidAccountInput, err)
	}
	if layout.Version > ProgramVersion {
		return nil, fmt.Errorf("%w: lending market version %d", errs.ErrInvalidAccountInput, layout.Version)
	}
	return &LendingMarket{
		Version:             layout.Version,
		BumpSeed:            layout.BumpSeed,
		Owner:               layout.Owner,
		QuoteCurrency:       layout.QuoteCurrency,
		TokenProgramID:      layout.TokenProgramID,
		OracleProgramID:     layout.OracleProgramID,
		SwitchboardOracleID: layout.SwitchboardOracleID,
	}, nil
}

// Pack encodes m into dst, which must be exactly LendingMarketLen bytes.
func (m *LendingMarket) Pack(dst []byte) error {
	return packInto(dst, LendingMarketLen, lendingMarketLayout{
		Version:             m.Version,
		BumpSeed:            m.BumpSeed,
		Owner:               m.Owner,
		QuoteCurrency:       m.QuoteCurrency,
		TokenProgramID:      m.TokenProgramID,
		OracleProgramID:     m.OracleProgramID,
		SwitchboardOracleID: m.SwitchboardOracleID,
	})
}

func packInto(dst []byte, size int, layout any) error {
	if len(dst) != size {
		return fmt.Errorf("%w: destination is %d bytes, want %d", errs.ErrInvalidAccountInput, len(dst), size)
	}
	encoded, err := borsh.Serialize(layout)
	if err != nil {
		return err
	}
	if len(encoded) != size {
		return fmt.Errorf("state: layout encoded to %d bytes, want %d", len(encoded), size)
	}
	copy(dst, encoded)
	return nil
}
