package runtime

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tokenlending/crypto"
)

// Signature binds an ed25519 signature to the signer that produced it.
type Signature struct {
	Pubkey    crypto.Pubkey
	Signature []byte
}

// Transaction is an ordered list of instructions executed atomically.
type Transaction struct {
	// Nonce distinguishes otherwise identical transactions.
	Nonce        uint64
	Instructions []Instruction
	Signatures   []Signature
}

type message struct {
	Nonce        uint64
	Instructions []Instruction
}

func NewTransaction(instructions ...Instruction) *Transaction {
	return &Transaction{Instructions: instructions}
}

// Message returns the canonical bytes covered by signatures.
func (tx *Transaction) Message() ([]byte, error) {
	return rlp.EncodeToBytes(message{Nonce: tx.Nonce, Instructions: tx.Instructions})
}

// Hash returns the keccak256 digest of the transaction message.
func (tx *Transaction) Hash() ([32]byte, error) {
	var out [32]byte
	msg, err := tx.Message()
	if err != nil {
		return out, err
	}
	copy(out[:], ethcrypto.Keccak256(msg))
	return out, nil
}

// RequiredSigners lists every key referenced as a signer by a top-level
// instruction, in order of first appearance.
func (tx *Transaction) RequiredSigners() []crypto.Pubkey {
	seen := make(map[crypto.Pubkey]struct{})
	var out []crypto.Pubkey
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if !meta.IsSigner {
				continue
			}
			if _, ok := seen[meta.Pubkey]; ok {
				continue
			}
			seen[meta.Pubkey] = struct{}{}
			out = append(out, meta.Pubkey)
		}
	}
	return out
}

// Sign appends signatures from the provided keypairs over the current message.
func (tx *Transaction) Sign(signers ...*crypto.Keypair) error {
	msg, err := tx.Message()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	for _, kp := range signers {
		if kp == nil {
			continue
		}
		tx.Signatures = append(tx.Signatures, Signature{Pubkey: kp.Pubkey(), Signature: kp.Sign(msg)})
	}
	return nil
}

// VerifySignatures checks that every required signer produced a valid
// signature over the message.
func (tx *Transaction) VerifySignatures() error {
	msg, err := tx.Message()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	verified := make(map[crypto.Pubkey]bool, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		if !crypto.Verify(sig.Pubkey, msg, sig.Signature) {
			return fmt.Errorf("%w: %s", ErrInvalidSignature, sig.Pubkey)
		}
		verified[sig.Pubkey] = true
	}
	for _, signer := range tx.RequiredSigners() {
		if !verified[signer] {
			return fmt.Errorf("%w: %s", ErrMissingSignature, signer)
		}
	}
	return nil
}
