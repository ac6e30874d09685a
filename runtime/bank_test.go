package runtime

import (
	"context"
	"errors"
	"testing"

	"tokenlending/crypto"
	"tokenlending/storage"
)

func newKey(t *testing.T) *crypto.Keypair {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return kp
}

func newTestBank(t *testing.T) (*Bank, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	bank, err := NewBank(db)
	if err != nil {
		t.Fatalf("new bank: %v", err)
	}
	return bank, db
}

// writer sets data[0] of every writable account to data[0] and fails when
// data[1] is non-zero.
func writer() Program {
	return ProgramFunc(func(ic *InvokeContext, accounts []*AccountInfo, data []byte) error {
		for _, acc := range accounts {
			if len(acc.Data) > 0 {
				acc.Data[0] = data[0]
			}
		}
		if data[1] != 0 {
			return errors.New("requested failure")
		}
		return nil
	})
}

func TestProcessTransactionIsAtomic(t *testing.T) {
	bank, _ := newTestBank(t)
	programID := newKey(t).Pubkey()
	bank.RegisterProgram(programID, writer())

	target := newKey(t).Pubkey()
	if err := bank.SetAccount(target, NewAccount(programID, 4)); err != nil {
		t.Fatalf("set account: %v", err)
	}

	tx := NewTransaction(
		Instruction{ProgramID: programID, Accounts: []AccountMeta{Writable(target, false)}, Data: []byte{9, 0}},
		Instruction{ProgramID: programID, Accounts: []AccountMeta{Writable(target, false)}, Data: []byte{7, 1}},
	)
	err := bank.ProcessTransaction(context.Background(), tx)
	var txErr *TransactionError
	if !errors.As(err, &txErr) || txErr.Index != 1 {
		t.Fatalf("expected failure at instruction 1, got %v", err)
	}
	acc, err := bank.GetAccount(target)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.Data[0] != 0 {
		t.Fatalf("failed transaction leaked write: %v", acc.Data)
	}

	ok := NewTransaction(Instruction{ProgramID: programID, Accounts: []AccountMeta{Writable(target, false)}, Data: []byte{5, 0}})
	if err := bank.ProcessTransaction(context.Background(), ok); err != nil {
		t.Fatalf("process: %v", err)
	}
	acc, _ = bank.GetAccount(target)
	if acc.Data[0] != 5 {
		t.Fatalf("expected committed write, got %v", acc.Data)
	}
}

func TestLedgerRules(t *testing.T) {
	bank, _ := newTestBank(t)
	programID := newKey(t).Pubkey()
	otherProgram := newKey(t).Pubkey()
	bank.RegisterProgram(programID, writer())

	foreign := newKey(t).Pubkey()
	if err := bank.SetAccount(foreign, NewAccount(otherProgram, 4)); err != nil {
		t.Fatalf("set account: %v", err)
	}
	owned := newKey(t).Pubkey()
	if err := bank.SetAccount(owned, NewAccount(programID, 4)); err != nil {
		t.Fatalf("set account: %v", err)
	}

	tx := NewTransaction(Instruction{ProgramID: programID, Accounts: []AccountMeta{Writable(foreign, false)}, Data: []byte{1, 0}})
	if err := bank.ProcessTransaction(context.Background(), tx); !errors.Is(err, ErrExternalDataModified) {
		t.Fatalf("expected external modification error, got %v", err)
	}

	tx = NewTransaction(Instruction{ProgramID: programID, Accounts: []AccountMeta{Readonly(owned, false)}, Data: []byte{1, 0}})
	if err := bank.ProcessTransaction(context.Background(), tx); !errors.Is(err, ErrReadonlyDataModified) {
		t.Fatalf("expected read-only modification error, got %v", err)
	}
}

func TestSignaturesRequired(t *testing.T) {
	bank, _ := newTestBank(t)
	programID := newKey(t).Pubkey()
	bank.RegisterProgram(programID, ProgramFunc(func(*InvokeContext, []*AccountInfo, []byte) error { return nil }))

	signer := newKey(t)
	tx := NewTransaction(Instruction{ProgramID: programID, Accounts: []AccountMeta{Readonly(signer.Pubkey(), true)}})
	if err := bank.ProcessTransaction(context.Background(), tx); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected missing signature, got %v", err)
	}
	if err := tx.Sign(signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := bank.ProcessTransaction(context.Background(), tx); err != nil {
		t.Fatalf("process: %v", err)
	}

	tampered := NewTransaction(tx.Instructions...)
	tampered.Nonce = 1
	tampered.Signatures = tx.Signatures
	if err := bank.ProcessTransaction(context.Background(), tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestInvokeWithDerivedSigner(t *testing.T) {
	bank, _ := newTestBank(t)
	callerID := newKey(t).Pubkey()
	calleeID := newKey(t).Pubkey()
	seed := []byte("vault")
	vault, bump, err := crypto.FindProgramAddress([][]byte{seed}, callerID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	var calleeHeight int
	bank.RegisterProgram(calleeID, ProgramFunc(func(ic *InvokeContext, accounts []*AccountInfo, data []byte) error {
		calleeHeight = ic.StackHeight()
		if !accounts[0].IsSigner {
			return errors.New("vault did not sign")
		}
		return nil
	}))
	bank.RegisterProgram(callerID, ProgramFunc(func(ic *InvokeContext, accounts []*AccountInfo, data []byte) error {
		ix := Instruction{ProgramID: calleeID, Accounts: []AccountMeta{Readonly(vault, true)}}
		if data[0] == 1 {
			return ic.Invoke(ix, [][]byte{seed, {bump}})
		}
		return ic.Invoke(ix)
	}))

	withSeeds := NewTransaction(Instruction{ProgramID: callerID, Accounts: []AccountMeta{Readonly(vault, false)}, Data: []byte{1}})
	if err := bank.ProcessTransaction(context.Background(), withSeeds); err != nil {
		t.Fatalf("invoke with seeds: %v", err)
	}
	if calleeHeight != 2 {
		t.Fatalf("expected stack height 2, got %d", calleeHeight)
	}

	withoutSeeds := NewTransaction(Instruction{ProgramID: callerID, Accounts: []AccountMeta{Readonly(vault, false)}, Data: []byte{0}})
	if err := bank.ProcessTransaction(context.Background(), withoutSeeds); !errors.Is(err, ErrPrivilegeEscalation) {
		t.Fatalf("expected privilege escalation, got %v", err)
	}
}

func TestInvokeRejectsWritableEscalation(t *testing.T) {
	bank, _ := newTestBank(t)
	callerID := newKey(t).Pubkey()
	calleeID := newKey(t).Pubkey()
	target := newKey(t).Pubkey()
	if err := bank.SetAccount(target, NewAccount(calleeID, 1)); err != nil {
		t.Fatalf("set account: %v", err)
	}
	bank.RegisterProgram(calleeID, writer())
	bank.RegisterProgram(callerID, ProgramFunc(func(ic *InvokeContext, accounts []*AccountInfo, data []byte) error {
		return ic.Invoke(Instruction{ProgramID: calleeID, Accounts: []AccountMeta{Writable(target, false)}, Data: []byte{1, 0}})
	}))

	tx := NewTransaction(Instruction{ProgramID: callerID, Accounts: []AccountMeta{Readonly(target, false)}})
	if err := bank.ProcessTransaction(context.Background(), tx); !errors.Is(err, ErrPrivilegeEscalation) {
		t.Fatalf("expected privilege escalation, got %v", err)
	}

	tx = NewTransaction(Instruction{ProgramID: callerID, Accounts: []AccountMeta{Writable(target, false)}})
	if err := bank.ProcessTransaction(context.Background(), tx); err != nil {
		t.Fatalf("writable invoke: %v", err)
	}
	acc, _ := bank.GetAccount(target)
	if acc.Data[0] != 1 {
		t.Fatalf("callee write not committed: %v", acc.Data)
	}
}

type finalizingProgram struct {
	ProgramFunc
	fail bool
}

func (p finalizingProgram) FinalizeTransaction(_ context.Context, owned []*AccountInfo) error {
	if p.fail {
		return errors.New("invariant violated")
	}
	return nil
}

func TestFinalizerAbortsTransaction(t *testing.T) {
	bank, _ := newTestBank(t)
	programID := newKey(t).Pubkey()
	bank.RegisterProgram(programID, finalizingProgram{ProgramFunc: writer().(ProgramFunc), fail: true})
	target := newKey(t).Pubkey()
	if err := bank.SetAccount(target, NewAccount(programID, 1)); err != nil {
		t.Fatalf("set account: %v", err)
	}
	tx := NewTransaction(Instruction{ProgramID: programID, Accounts: []AccountMeta{Writable(target, false)}, Data: []byte{3, 0}})
	err := bank.ProcessTransaction(context.Background(), tx)
	var txErr *TransactionError
	if !errors.As(err, &txErr) || txErr.Index != 1 {
		t.Fatalf("expected finalizer failure, got %v", err)
	}
	acc, _ := bank.GetAccount(target)
	if acc.Data[0] != 0 {
		t.Fatalf("finalizer failure leaked write")
	}
}

func TestSlotPersists(t *testing.T) {
	bank, db := newTestBank(t)
	if err := bank.AdvanceSlot(42); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := bank.SetSlot(10); err == nil {
		t.Fatalf("expected slot regression to fail")
	}
	reopened, err := NewBank(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Slot() != 42 {
		t.Fatalf("slot = %d", reopened.Slot())
	}
}
