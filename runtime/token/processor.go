package token

import (
	"encoding/binary"
	"fmt"

	"tokenlending/crypto"
	"tokenlending/runtime"
)

// Program is a minimal fungible token program: mints, balances, transfers,
// minting and burning.
type Program struct {
	id crypto.Pubkey
}

func NewProgram(id crypto.Pubkey) *Program {
	return &Program{id: id}
}

func (p *Program) ID() crypto.Pubkey { return p.id }

func (p *Program) Process(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstruction
	}
	switch data[0] {
	case TagInitializeMint:
		if len(data) != 34 {
			return ErrInvalidInstruction
		}
		var authority crypto.Pubkey
		copy(authority[:], data[2:])
		return p.initializeMint(accounts, data[1], authority)
	case TagInitializeAccount:
		return p.initializeAccount(accounts)
	case TagTransfer, TagMintTo, TagBurn:
		if len(data) != 9 {
			return ErrInvalidInstruction
		}
		amount := binary.LittleEndian.Uint64(data[1:])
		switch data[0] {
		case TagTransfer:
			return p.transfer(accounts, amount)
		case TagMintTo:
			return p.mintTo(accounts, amount)
		default:
			return p.burn(accounts, amount)
		}
	}
	return fmt.Errorf("%w: tag %d", ErrInvalidInstruction, data[0])
}

func (p *Program) owned(info *runtime.AccountInfo) error {
	if info.Owner != p.id {
		return fmt.Errorf("%w: %s", ErrInvalidAccountOwner, info.Key)
	}
	return nil
}

func (p *Program) loadMint(info *runtime.AccountInfo) (*Mint, error) {
	if err := p.owned(info); err != nil {
		return nil, err
	}
	mint, err := UnpackMint(info.Data)
	if err != nil {
		return nil, err
	}
	if !mint.IsInitialized {
		return nil, ErrUninitializedState
	}
	return mint, nil
}

func (p *Program) loadAccount(info *runtime.AccountInfo) (*Account, error) {
	if err := p.owned(info); err != nil {
		return nil, err
	}
	acc, err := UnpackAccount(info.Data)
	if err != nil {
		return nil, err
	}
	if !acc.IsInitialized() {
		return nil, ErrUninitializedState
	}
	if acc.State == AccountFrozen {
		return nil, ErrAccountFrozen
	}
	return acc, nil
}

func (p *Program) initializeMint(accounts []*runtime.AccountInfo, decimals uint8, authority crypto.Pubkey) error {
	if len(accounts) < 1 {
		return ErrNotEnoughAccounts
	}
	info := accounts[0]
	if err := p.owned(info); err != nil {
		return err
	}
	mint, err := UnpackMint(info.Data)
	if err != nil {
		return err
	}
	if mint.IsInitialized {
		return ErrAlreadyInUse
	}
	mint = &Mint{MintAuthority: &authority, Decimals: decimals, IsInitialized: true}
	return mint.Pack(info.Data)
}

func (p *Program) initializeAccount(accounts []*runtime.AccountInfo) error {
	if len(accounts) < 3 {
		return ErrNotEnoughAccounts
	}
	info, mintInfo, ownerInfo := accounts[0], accounts[1], accounts[2]
	if err := p.owned(info); err != nil {
		return err
	}
	acc, err := UnpackAccount(info.Data)
	if err != nil {
		return err
	}
	if acc.IsInitialized() {
		return ErrAlreadyInUse
	}
	if _, err := p.loadMint(mintInfo); err != nil {
		return err
	}
	acc = &Account{Mint: mintInfo.Key, Owner: ownerInfo.Key, State: AccountInitialized}
	return acc.Pack(info.Data)
}

func (p *Program) transfer(accounts []*runtime.AccountInfo, amount uint64) error {
	if len(accounts) < 3 {
		return ErrNotEnoughAccounts
	}
	srcInfo, dstInfo, authority := accounts[0], accounts[1], accounts[2]
	src, err := p.loadAccount(srcInfo)
	if err != nil {
		return err
	}
	dst, err := p.loadAccount(dstInfo)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if err := checkAuthority(src.Owner, authority); err != nil {
		return err
	}
	if src.Amount < amount {
		return ErrInsufficientFunds
	}
	if srcInfo.Key == dstInfo.Key {
		return nil
	}
	if dst.Amount+amount < dst.Amount {
		return ErrOverflow
	}
	src.Amount -= amount
	dst.Amount += amount
	if err := src.Pack(srcInfo.Data); err != nil {
		return err
	}
	return dst.Pack(dstInfo.Data)
}

func (p *Program) mintTo(accounts []*runtime.AccountInfo, amount uint64) error {
	if len(accounts) < 3 {
		return ErrNotEnoughAccounts
	}
	mintInfo, dstInfo, authority := accounts[0], accounts[1], accounts[2]
	mint, err := p.loadMint(mintInfo)
	if err != nil {
		return err
	}
	dst, err := p.loadAccount(dstInfo)
	if err != nil {
		return err
	}
	if dst.Mint != mintInfo.Key {
		return ErrMintMismatch
	}
	if mint.MintAuthority == nil {
		return ErrFixedSupply
	}
	if err := checkAuthority(*mint.MintAuthority, authority); err != nil {
		return err
	}
	if mint.Supply+amount < mint.Supply {
		return ErrOverflow
	}
	mint.Supply += amount
	dst.Amount += amount
	if err := mint.Pack(mintInfo.Data); err != nil {
		return err
	}
	return dst.Pack(dstInfo.Data)
}

func (p *Program) burn(accounts []*runtime.AccountInfo, amount uint64) error {
	if len(accounts) < 3 {
		return ErrNotEnoughAccounts
	}
	accInfo, mintInfo, authority := accounts[0], accounts[1], accounts[2]
	acc, err := p.loadAccount(accInfo)
	if err != nil {
		return err
	}
	mint, err := p.loadMint(mintInfo)
	if err != nil {
		return err
	}
	if acc.Mint != mintInfo.Key {
		return ErrMintMismatch
	}
	if err := checkAuthority(acc.Owner, authority); err != nil {
		return err
	}
	if acc.Amount < amount {
		return ErrInsufficientFunds
	}
	acc.Amount -= amount
	mint.Supply -= amount
	if err := acc.Pack(accInfo.Data); err != nil {
		return err
	}
	return mint.Pack(mintInfo.Data)
}

func checkAuthority(expected crypto.Pubkey, authority *runtime.AccountInfo) error {
	if authority.Key != expected {
		return ErrOwnerMismatch
	}
	if !authority.IsSigner {
		return ErrMissingSignature
	}
	return nil
}
