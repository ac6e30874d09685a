package token

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"tokenlending/crypto"
	"tokenlending/runtime"
	"tokenlending/storage"
)

type fixture struct {
	bank      *runtime.Bank
	programID crypto.Pubkey
	authority *crypto.Keypair
	mint      crypto.Pubkey
}

func keypair(t *testing.T) *crypto.Keypair {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bank, err := runtime.NewBank(storage.NewMemDB())
	require.NoError(t, err)
	f := &fixture{
		bank:      bank,
		programID: keypair(t).Pubkey(),
		authority: keypair(t),
		mint:      keypair(t).Pubkey(),
	}
	bank.RegisterProgram(f.programID, NewProgram(f.programID))
	require.NoError(t, bank.SetAccount(f.mint, runtime.NewAccount(f.programID, MintLen)))
	f.process(t, nil, InitializeMint(f.programID, f.mint, f.authority.Pubkey(), 6))
	return f
}

func (f *fixture) process(t *testing.T, signers []*crypto.Keypair, ixs ...runtime.Instruction) {
	t.Helper()
	require.NoError(t, f.processErr(signers, ixs...))
}

func (f *fixture) processErr(signers []*crypto.Keypair, ixs ...runtime.Instruction) error {
	tx := runtime.NewTransaction(ixs...)
	if err := tx.Sign(signers...); err != nil {
		return err
	}
	return f.bank.ProcessTransaction(context.Background(), tx)
}

func (f *fixture) newAccount(t *testing.T, owner crypto.Pubkey) crypto.Pubkey {
	t.Helper()
	key := keypair(t).Pubkey()
	require.NoError(t, f.bank.SetAccount(key, runtime.NewAccount(f.programID, AccountLen)))
	f.process(t, nil, InitializeAccount(f.programID, key, f.mint, owner))
	return key
}

func (f *fixture) balance(t *testing.T, key crypto.Pubkey) uint64 {
	t.Helper()
	acc, err := f.bank.GetAccount(key)
	require.NoError(t, err)
	state, err := UnpackAccount(acc.Data)
	require.NoError(t, err)
	return state.Amount
}

func TestMintTransferBurn(t *testing.T) {
	f := newFixture(t)
	alice := keypair(t)
	bob := keypair(t)
	aliceAcc := f.newAccount(t, alice.Pubkey())
	bobAcc := f.newAccount(t, bob.Pubkey())

	f.process(t, []*crypto.Keypair{f.authority}, MintTo(f.programID, f.mint, aliceAcc, f.authority.Pubkey(), 1_000))
	f.process(t, []*crypto.Keypair{alice}, Transfer(f.programID, aliceAcc, bobAcc, alice.Pubkey(), 400))
	require.Equal(t, uint64(600), f.balance(t, aliceAcc))
	require.Equal(t, uint64(400), f.balance(t, bobAcc))

	f.process(t, []*crypto.Keypair{bob}, Burn(f.programID, bobAcc, f.mint, bob.Pubkey(), 100))
	require.Equal(t, uint64(300), f.balance(t, bobAcc))

	acc, err := f.bank.GetAccount(f.mint)
	require.NoError(t, err)
	mint, err := UnpackMint(acc.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(900), mint.Supply)
	require.Equal(t, uint8(6), mint.Decimals)
}

func TestTransferFailures(t *testing.T) {
	f := newFixture(t)
	alice := keypair(t)
	mallory := keypair(t)
	aliceAcc := f.newAccount(t, alice.Pubkey())
	malloryAcc := f.newAccount(t, mallory.Pubkey())
	f.process(t, []*crypto.Keypair{f.authority}, MintTo(f.programID, f.mint, aliceAcc, f.authority.Pubkey(), 10))

	err := f.processErr([]*crypto.Keypair{alice}, Transfer(f.programID, aliceAcc, malloryAcc, alice.Pubkey(), 11))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	err = f.processErr([]*crypto.Keypair{mallory}, Transfer(f.programID, aliceAcc, malloryAcc, mallory.Pubkey(), 1))
	require.ErrorIs(t, err, ErrOwnerMismatch)

	err = f.processErr([]*crypto.Keypair{mallory}, MintTo(f.programID, f.mint, malloryAcc, mallory.Pubkey(), 1))
	require.ErrorIs(t, err, ErrOwnerMismatch)

	err = f.processErr(nil, InitializeAccount(f.programID, aliceAcc, f.mint, alice.Pubkey()))
	require.ErrorIs(t, err, ErrAlreadyInUse)

	var txErr *runtime.TransactionError
	require.True(t, errors.As(err, &txErr))
	require.Equal(t, 0, txErr.Index)
}

func TestLayoutsRoundTrip(t *testing.T) {
	owner := keypair(t).Pubkey()
	acc := &Account{Mint: keypair(t).Pubkey(), Owner: owner, Amount: 42, State: AccountInitialized}
	buf := make([]byte, AccountLen)
	require.NoError(t, acc.Pack(buf))
	decoded, err := UnpackAccount(buf)
	require.NoError(t, err)
	require.Equal(t, acc, decoded)

	require.Error(t, acc.Pack(make([]byte, AccountLen-1)))
	_, err = UnpackMint(make([]byte, MintLen+1))
	require.ErrorIs(t, err, ErrInvalidAccountData)
}
