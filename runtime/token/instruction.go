package token

import (
	"encoding/binary"

	"tokenlending/crypto"
	"tokenlending/runtime"
)

// Instruction tags.
const (
	TagInitializeMint    uint8 = 0
	TagInitializeAccount uint8 = 1
	TagTransfer          uint8 = 3
	TagMintTo            uint8 = 7
	TagBurn              uint8 = 8
)

func amountData(tag uint8, amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = tag
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}

// InitializeMint sets up mint with the given precision and mint authority.
func InitializeMint(programID, mint, authority crypto.Pubkey, decimals uint8) runtime.Instruction {
	data := make([]byte, 0, 34)
	data = append(data, TagInitializeMint, decimals)
	data = append(data, authority[:]...)
	return runtime.Instruction{
		ProgramID: programID,
		Accounts:  []runtime.AccountMeta{runtime.Writable(mint, false)},
		Data:      data,
	}
}

// InitializeAccount binds account to mint and owner.
func InitializeAccount(programID, account, mint, owner crypto.Pubkey) runtime.Instruction {
	return runtime.Instruction{
		ProgramID: programID,
		Accounts: []runtime.AccountMeta{
			runtime.Writable(account, false),
			runtime.Readonly(mint, false),
			runtime.Readonly(owner, false),
		},
		Data: []byte{TagInitializeAccount},
	}
}

// Transfer moves amount from source to destination; authority owns source.
func Transfer(programID, source, destination, authority crypto.Pubkey, amount uint64) runtime.Instruction {
	return runtime.Instruction{
		ProgramID: programID,
		Accounts: []runtime.AccountMeta{
			runtime.Writable(source, false),
			runtime.Writable(destination, false),
			runtime.Readonly(authority, true),
		},
		Data: amountData(TagTransfer, amount),
	}
}

// MintTo creates amount new tokens in destination.
func MintTo(programID, mint, destination, authority crypto.Pubkey, amount uint64) runtime.Instruction {
	return runtime.Instruction{
		ProgramID: programID,
		Accounts: []runtime.AccountMeta{
			runtime.Writable(mint, false),
			runtime.Writable(destination, false),
			runtime.Readonly(authority, true),
		},
		Data: amountData(TagMintTo, amount),
	}
}

// Burn destroys amount tokens held by account.
func Burn(programID, account, mint, authority crypto.Pubkey, amount uint64) runtime.Instruction {
	return runtime.Instruction{
		ProgramID: programID,
		Accounts: []runtime.AccountMeta{
			runtime.Writable(account, false),
			runtime.Writable(mint, false),
			runtime.Readonly(authority, true),
		},
		Data: amountData(TagBurn, amount),
	}
}
