package runtime

import (
	"bytes"
	"context"
	"fmt"

	"tokenlending/crypto"
)

// InvokeContext is handed to a program for the duration of one instruction.
// It exposes the clock, the instruction stack and the enclosing transaction.
type InvokeContext struct {
	ctx   context.Context
	exec  *txExec
	index int
	stack []*frame
}

type frame struct {
	programID crypto.Pubkey
	infos     []*AccountInfo
	pre       map[crypto.Pubkey]*Account
}

// privilegeFunc resolves the signer and writable flags granted for meta.
type privilegeFunc func(meta AccountMeta) (signer bool, writable bool, err error)

func (c *InvokeContext) Context() context.Context { return c.ctx }

// Slot is the current ledger slot.
func (c *InvokeContext) Slot() uint64 { return c.exec.bank.slot }

// ProgramID is the id of the executing program.
func (c *InvokeContext) ProgramID() crypto.Pubkey {
	return c.current().programID
}

// StackHeight is 1 for a top-level instruction and grows by one per nested
// invocation.
func (c *InvokeContext) StackHeight() int { return len(c.stack) }

func (c *InvokeContext) IsTopLevel() bool { return len(c.stack) == 1 }

// InstructionIndex is the position of the current top-level instruction in
// the transaction.
func (c *InvokeContext) InstructionIndex() int { return c.index }

// TransactionInstructions returns a copy of the top-level instructions of the
// enclosing transaction.
func (c *InvokeContext) TransactionInstructions() []Instruction {
	out := make([]Instruction, len(c.exec.instructions))
	for i, ix := range c.exec.instructions {
		out[i] = Instruction{
			ProgramID: ix.ProgramID,
			Accounts:  append([]AccountMeta(nil), ix.Accounts...),
			Data:      append([]byte(nil), ix.Data...),
		}
	}
	return out
}

func (c *InvokeContext) current() *frame {
	return c.stack[len(c.stack)-1]
}

// Invoke calls another program from the executing one. Accounts passed to
// the callee must be held by the caller with at least the requested
// privileges; signerSeeds grant signer status to addresses derived from the
// caller's program id.
func (c *InvokeContext) Invoke(ix Instruction, signerSeeds ...[][]byte) error {
	caller := c.current()
	if err := caller.verify(); err != nil {
		return err
	}
	for _, f := range c.stack[:len(c.stack)-1] {
		if f.programID == ix.ProgramID && caller.programID != ix.ProgramID {
			return fmt.Errorf("%w: %s", ErrReentrancy, ix.ProgramID)
		}
	}

	derived := make(map[crypto.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := crypto.CreateProgramAddress(seeds, caller.programID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPrivilegeEscalation, err)
		}
		derived[addr] = true
	}

	err := c.push(ix, func(meta AccountMeta) (bool, bool, error) {
		signer, writable, held := caller.privileges(meta.Pubkey)
		if !held {
			return false, false, fmt.Errorf("%w: %s", ErrMissingAccount, meta.Pubkey)
		}
		if meta.IsSigner && !signer && !derived[meta.Pubkey] {
			return false, false, fmt.Errorf("%w: signer %s", ErrPrivilegeEscalation, meta.Pubkey)
		}
		if meta.IsWritable && !writable {
			return false, false, fmt.Errorf("%w: writable %s", ErrPrivilegeEscalation, meta.Pubkey)
		}
		return meta.IsSigner, meta.IsWritable, nil
	})
	if err != nil {
		return err
	}
	caller.snapshot()
	return nil
}

func (c *InvokeContext) push(ix Instruction, privileges privilegeFunc) error {
	if len(c.stack) >= c.exec.bank.maxDepth {
		return ErrCallDepth
	}
	program, ok := c.exec.bank.programs[ix.ProgramID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, ix.ProgramID)
	}

	f := &frame{
		programID: ix.ProgramID,
		infos:     make([]*AccountInfo, len(ix.Accounts)),
		pre:       make(map[crypto.Pubkey]*Account, len(ix.Accounts)),
	}
	for i, meta := range ix.Accounts {
		acc, err := c.exec.load(meta.Pubkey)
		if err != nil {
			return err
		}
		signer, writable, err := privileges(meta)
		if err != nil {
			return err
		}
		f.infos[i] = &AccountInfo{Key: meta.Pubkey, IsSigner: signer, IsWritable: writable, Account: acc}
		if _, ok := f.pre[meta.Pubkey]; !ok {
			f.pre[meta.Pubkey] = acc.Clone()
		}
	}

	c.stack = append(c.stack, f)
	err := program.Process(c, f.infos, ix.Data)
	c.stack = c.stack[:len(c.stack)-1]
	if err != nil {
		return err
	}
	return f.verify()
}

func (f *frame) privileges(key crypto.Pubkey) (signer, writable, held bool) {
	for _, info := range f.infos {
		if info.Key != key {
			continue
		}
		held = true
		signer = signer || info.IsSigner
		writable = writable || info.IsWritable
	}
	return signer, writable, held
}

// verify enforces the ledger rules on every account the frame touched since
// its last snapshot.
func (f *frame) verify() error {
	for key, before := range f.pre {
		_, writable, _ := f.privileges(key)
		after := f.lookup(key)
		if len(after.Data) != len(before.Data) {
			return fmt.Errorf("%w: %s", ErrAccountDataSizeChanged, key)
		}
		if after.Owner != before.Owner || after.Executable != before.Executable {
			return fmt.Errorf("%w: %s", ErrOwnerModified, key)
		}
		if after.Lamports != before.Lamports {
			return fmt.Errorf("%w: %s", ErrLamportsModified, key)
		}
		if bytes.Equal(after.Data, before.Data) {
			continue
		}
		if !writable {
			return fmt.Errorf("%w: %s", ErrReadonlyDataModified, key)
		}
		if before.Owner != f.programID {
			return fmt.Errorf("%w: %s", ErrExternalDataModified, key)
		}
	}
	return nil
}

func (f *frame) lookup(key crypto.Pubkey) *Account {
	for _, info := range f.infos {
		if info.Key == key {
			return info.Account
		}
	}
	return nil
}

// snapshot records the current account state as the frame's baseline after a
// nested invocation legitimately changed accounts the frame does not own.
func (f *frame) snapshot() {
	for key := range f.pre {
		f.pre[key] = f.lookup(key).Clone()
	}
}
