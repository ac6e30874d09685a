package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tokenlending/crypto"
	"tokenlending/observability"
	"tokenlending/storage"
)

// DefaultMaxInvokeDepth bounds the instruction stack height, top level
// included.
const DefaultMaxInvokeDepth = 5

// Program executes instructions addressed to its program id.
type Program interface {
	Process(ic *InvokeContext, accounts []*AccountInfo, data []byte) error
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(ic *InvokeContext, accounts []*AccountInfo, data []byte) error

func (f ProgramFunc) Process(ic *InvokeContext, accounts []*AccountInfo, data []byte) error {
	return f(ic, accounts, data)
}

// TransactionFinalizer is implemented by programs that check invariants once
// every instruction of a transaction has executed. owned holds the accounts
// owned by the program that the transaction loaded.
type TransactionFinalizer interface {
	FinalizeTransaction(ctx context.Context, owned []*AccountInfo) error
}

// Option configures a Bank.
type Option func(*Bank)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bank) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithMaxInvokeDepth(depth int) Option {
	return func(b *Bank) {
		if depth > 0 {
			b.maxDepth = depth
		}
	}
}

// Bank executes transactions against the account store. Transactions are
// serialized; each one either commits every account write in a single
// storage batch or leaves the store untouched.
type Bank struct {
	mu       sync.Mutex
	db       storage.Database
	store    *AccountStore
	programs map[crypto.Pubkey]Program
	slot     uint64
	maxDepth int
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewBank opens a bank over db, restoring the last persisted slot.
func NewBank(db storage.Database, opts ...Option) (*Bank, error) {
	b := &Bank{
		db:       db,
		store:    NewAccountStore(db),
		programs: make(map[crypto.Pubkey]Program),
		maxDepth: DefaultMaxInvokeDepth,
		logger:   slog.Default(),
		tracer:   otel.Tracer("tokenlending/runtime"),
	}
	for _, opt := range opts {
		opt(b)
	}
	slot, err := b.store.Slot()
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}
	b.slot = slot
	return b, nil
}

// RegisterProgram makes p executable under id.
func (b *Bank) RegisterProgram(id crypto.Pubkey, p Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.programs[id] = p
}

func (b *Bank) Slot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slot
}

// SetSlot moves the clock to slot. Slots never go backwards.
func (b *Bank) SetSlot(slot uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slot < b.slot {
		return fmt.Errorf("runtime: slot %d is behind current slot %d", slot, b.slot)
	}
	if err := b.store.PutSlot(slot); err != nil {
		return err
	}
	b.slot = slot
	return nil
}

// AdvanceSlot moves the clock forward by n slots.
func (b *Bank) AdvanceSlot(n uint64) error {
	return b.SetSlot(b.Slot() + n)
}

// GetAccount returns a copy of the stored account.
func (b *Bank) GetAccount(key crypto.Pubkey) (*Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Get(key)
}

// SetAccount writes an account directly, bypassing program execution. It is
// used to allocate accounts and seed genesis state.
func (b *Bank) SetAccount(key crypto.Pubkey, acc *Account) error {
	if acc == nil {
		return errors.New("runtime: nil account")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Put(key, acc.Clone())
}

// ProcessTransaction verifies signatures and executes every instruction in
// order. Any failure discards all writes and is reported as a
// *TransactionError.
func (b *Bank) ProcessTransaction(ctx context.Context, tx *Transaction) error {
	var count int
	if tx != nil {
		count = len(tx.Instructions)
	}
	ctx, span := b.tracer.Start(ctx, "runtime.ProcessTransaction",
		trace.WithAttributes(attribute.Int("instructions", count)))
	defer span.End()

	start := time.Now()
	err := b.processTransaction(ctx, tx)
	observability.Runtime().Observe(err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (b *Bank) processTransaction(ctx context.Context, tx *Transaction) error {
	if tx == nil || len(tx.Instructions) == 0 {
		return ErrEmptyTransaction
	}
	if err := tx.VerifySignatures(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	exec := &txExec{
		bank:         b,
		instructions: tx.Instructions,
		accounts:     make(map[crypto.Pubkey]*Account),
		original:     make(map[crypto.Pubkey]*Account),
		signers:      make(map[crypto.Pubkey]bool),
	}
	for _, signer := range tx.RequiredSigners() {
		exec.signers[signer] = true
	}

	for i, ix := range tx.Instructions {
		if err := ctx.Err(); err != nil {
			return &TransactionError{Index: i, Err: err}
		}
		ic := &InvokeContext{ctx: ctx, exec: exec, index: i}
		err := ic.push(ix, func(meta AccountMeta) (bool, bool, error) {
			return meta.IsSigner && exec.signers[meta.Pubkey], meta.IsWritable, nil
		})
		if err != nil {
			b.logger.Debug("transaction aborted",
				slog.Int("instruction", i),
				slog.String("program", ix.ProgramID.String()),
				slog.String("error", err.Error()))
			return &TransactionError{Index: i, Err: err}
		}
	}

	if err := exec.finalize(ctx); err != nil {
		return &TransactionError{Index: len(tx.Instructions), Err: err}
	}
	return exec.commit()
}

type txExec struct {
	bank         *Bank
	instructions []Instruction
	accounts     map[crypto.Pubkey]*Account
	original     map[crypto.Pubkey]*Account
	signers      map[crypto.Pubkey]bool
}

// load returns the working copy of key. Missing accounts are materialized as
// empty accounts owned by the zero program id; they are never persisted
// unless changed.
func (e *txExec) load(key crypto.Pubkey) (*Account, error) {
	if acc, ok := e.accounts[key]; ok {
		return acc, nil
	}
	acc, err := e.bank.store.Get(key)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		acc = &Account{}
		e.original[key] = nil
	case err != nil:
		return nil, err
	default:
		e.original[key] = acc.Clone()
	}
	e.accounts[key] = acc
	return acc, nil
}

func (e *txExec) sortedKeys() []crypto.Pubkey {
	keys := make([]crypto.Pubkey, 0, len(e.accounts))
	for key := range e.accounts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}

func (e *txExec) finalize(ctx context.Context) error {
	programIDs := make([]crypto.Pubkey, 0, len(e.bank.programs))
	for id := range e.bank.programs {
		programIDs = append(programIDs, id)
	}
	sort.Slice(programIDs, func(i, j int) bool { return bytes.Compare(programIDs[i][:], programIDs[j][:]) < 0 })

	keys := e.sortedKeys()
	for _, id := range programIDs {
		finalizer, ok := e.bank.programs[id].(TransactionFinalizer)
		if !ok {
			continue
		}
		var owned []*AccountInfo
		for _, key := range keys {
			acc := e.accounts[key]
			if acc.Owner == id {
				owned = append(owned, &AccountInfo{Key: key, Account: acc})
			}
		}
		if len(owned) == 0 {
			continue
		}
		if err := finalizer.FinalizeTransaction(ctx, owned); err != nil {
			return err
		}
	}
	return nil
}

func (e *txExec) commit() error {
	batch := e.bank.db.NewBatch()
	for _, key := range e.sortedKeys() {
		acc := e.accounts[key]
		if acc.equal(e.original[key]) {
			continue
		}
		if e.original[key] == nil && acc.equal(&Account{}) {
			continue
		}
		if err := e.bank.store.stage(batch, key, acc); err != nil {
			return err
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	return batch.Write()
}
