package runtime

import (
	"bytes"

	"tokenlending/crypto"
)

// Account is the persisted state behind a ledger address. Data is owned by
// Owner; only the owning program may change it.
type Account struct {
	Owner      crypto.Pubkey
	Lamports   uint64
	Data       []byte
	Executable bool
}

// NewAccount allocates a zeroed account of the given size owned by owner.
func NewAccount(owner crypto.Pubkey, space int) *Account {
	return &Account{Owner: owner, Data: make([]byte, space)}
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	return &Account{
		Owner:      a.Owner,
		Lamports:   a.Lamports,
		Data:       append([]byte(nil), a.Data...),
		Executable: a.Executable,
	}
}

func (a *Account) equal(o *Account) bool {
	if a == nil || o == nil {
		return a == o
	}
	return a.Owner == o.Owner &&
		a.Lamports == o.Lamports &&
		a.Executable == o.Executable &&
		bytes.Equal(a.Data, o.Data)
}

// AccountMeta describes how an instruction accesses an account.
type AccountMeta struct {
	Pubkey     crypto.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Writable returns a writable account reference.
func Writable(key crypto.Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: key, IsSigner: signer, IsWritable: true}
}

// Readonly returns a read-only account reference.
func Readonly(key crypto.Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: key, IsSigner: signer}
}

// Instruction is a single program call: the program to run, the accounts it
// may touch and opaque instruction data.
type Instruction struct {
	ProgramID crypto.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// AccountInfo is the view of an account handed to a program. Entries that
// refer to the same key share the same *Account, so writes through one are
// visible through the others.
type AccountInfo struct {
	Key        crypto.Pubkey
	IsSigner   bool
	IsWritable bool
	*Account
}
