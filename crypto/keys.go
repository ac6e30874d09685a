package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeyLength is the byte length of an account identifier.
const PubkeyLength = 32

// Pubkey identifies an account, a program or a signer on the ledger.
type Pubkey [PubkeyLength]byte

// String returns the base58 text form of the key.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func (p Pubkey) Bytes() []byte {
	out := make([]byte, PubkeyLength)
	copy(out, p[:])
	return out
}

func (p Pubkey) IsZero() bool { return p == Pubkey{} }

func (p Pubkey) Equal(o Pubkey) bool { return bytes.Equal(p[:], o[:]) }

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	decoded, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

// ParsePubkey decodes a base58 encoded key.
func ParsePubkey(s string) (Pubkey, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("invalid base58 string: %w", err)
	}
	return PubkeyFromBytes(decoded)
}

// MustParsePubkey is ParsePubkey for constants; it panics on malformed input.
func MustParsePubkey(s string) Pubkey {
	p, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return p
}

func PubkeyFromBytes(b []byte) (Pubkey, error) {
	if len(b) != PubkeyLength {
		return Pubkey{}, fmt.Errorf("pubkey must be %d bytes long, got %d", PubkeyLength, len(b))
	}
	var p Pubkey
	copy(p[:], b)
	return p, nil
}

// --- Key Management ---

// Keypair is an ed25519 signing key together with its public identifier.
type Keypair struct {
	private ed25519.PrivateKey
}

func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{private: priv}, nil
}

// KeypairFromSeed derives a keypair deterministically from a 32 byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes long", ed25519.SeedSize)
	}
	return &Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *Keypair) Pubkey() Pubkey {
	var p Pubkey
	copy(p[:], k.private.Public().(ed25519.PublicKey))
	return p
}

// Seed returns the 32 byte private seed.
func (k *Keypair) Seed() []byte {
	return k.private.Seed()
}

func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

// Verify checks an ed25519 signature produced by the holder of pub.
func Verify(pub Pubkey, message, signature []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, signature)
}
