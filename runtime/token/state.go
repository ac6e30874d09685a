package token

import (
	"fmt"

	"github.com/near/borsh-go"

	"tokenlending/crypto"
)

const (
	MintLen    = 82
	AccountLen = 165
)

// AccountState is the lifecycle state of a token account.
type AccountState uint8

const (
	AccountUninitialized AccountState = iota
	AccountInitialized
	AccountFrozen
)

// Mint describes a token: its supply, precision and minting authority.
type Mint struct {
	MintAuthority   *crypto.Pubkey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *crypto.Pubkey
}

// Account holds a balance of a single mint on behalf of an owner.
type Account struct {
	Mint   crypto.Pubkey
	Owner  crypto.Pubkey
	Amount uint64
	State  AccountState
}

func (a *Account) IsInitialized() bool { return a.State != AccountUninitialized }

type mintLayout struct {
	MintAuthorityOption   uint32
	MintAuthority         crypto.Pubkey
	Supply                uint64
	Decimals              uint8
	IsInitialized         bool
	FreezeAuthorityOption uint32
	FreezeAuthority       crypto.Pubkey
}

type accountLayout struct {
	Mint                 crypto.Pubkey
	Owner                crypto.Pubkey
	Amount               uint64
	DelegateOption       uint32
	Delegate             crypto.Pubkey
	State                uint8
	IsNativeOption       uint32
	IsNative             uint64
	DelegatedAmount      uint64
	CloseAuthorityOption uint32
	CloseAuthority       crypto.Pubkey
}

func optionFrom(tag uint32, key crypto.Pubkey) *crypto.Pubkey {
	if tag == 0 {
		return nil
	}
	k := key
	return &k
}

func optionTo(key *crypto.Pubkey) (uint32, crypto.Pubkey) {
	if key == nil {
		return 0, crypto.Pubkey{}
	}
	return 1, *key
}

// UnpackMint decodes a mint record.
func UnpackMint(data []byte) (*Mint, error) {
	if len(data) != MintLen {
		return nil, fmt.Errorf("%w: mint length %d", ErrInvalidAccountData, len(data))
	}
	var layout mintLayout
	if err := borsh.Deserialize(&layout, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	return &Mint{
		MintAuthority:   optionFrom(layout.MintAuthorityOption, layout.MintAuthority),
		Supply:          layout.Supply,
		Decimals:        layout.Decimals,
		IsInitialized:   layout.IsInitialized,
		FreezeAuthority: optionFrom(layout.FreezeAuthorityOption, layout.FreezeAuthority),
	}, nil
}

// Pack encodes m into dst, which must be exactly MintLen bytes.
func (m *Mint) Pack(dst []byte) error {
	layout := mintLayout{
		Supply:        m.Supply,
		Decimals:      m.Decimals,
		IsInitialized: m.IsInitialized,
	}
	layout.MintAuthorityOption, layout.MintAuthority = optionTo(m.MintAuthority)
	layout.FreezeAuthorityOption, layout.FreezeAuthority = optionTo(m.FreezeAuthority)
	return packInto(dst, layout, MintLen)
}

// UnpackAccount decodes a token account record.
func UnpackAccount(data []byte) (*Account, error) {
	if len(data) != AccountLen {
		return nil, fmt.Errorf("%w: account length %d", ErrInvalidAccountData, len(data))
	}
	var layout accountLayout
	if err := borsh.Deserialize(&layout, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	return &Account{
		Mint:   layout.Mint,
		Owner:  layout.Owner,
		Amount: layout.Amount,
		State:  AccountState(layout.State),
	}, nil
}

// Pack encodes a into dst, which must be exactly AccountLen bytes.
func (a *Account) Pack(dst []byte) error {
	return packInto(dst, accountLayout{
		Mint:   a.Mint,
		Owner:  a.Owner,
		Amount: a.Amount,
		State:  uint8(a.State),
	}, AccountLen)
}

func packInto(dst []byte, layout any, size int) error {
	if len(dst) != size {
		return fmt.Errorf("%w: destination length %d, want %d", ErrInvalidAccountData, len(dst), size)
	}
	encoded, err := borsh.Serialize(layout)
	if err != nil {
		return err
	}
	if len(encoded) != size {
		return fmt.Errorf("token: encoded length %d, want %d", len(encoded), size)
	}
	copy(dst, encoded)
	return nil
}
