package crypto

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

const pdaMarker = "ProgramDerivedAddress"

var (
	ErrMaxSeedLengthExceeded = errors.New("crypto: program address seed too long")
	ErrInvalidSeeds          = errors.New("crypto: program address lies on the curve")
)

// CreateProgramAddress derives an address for programID from seeds. Derived
// addresses never lie on the ed25519 curve, so no private key exists for them
// and only the owning program can sign on their behalf.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return Pubkey{}, ErrMaxSeedLengthExceeded
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Pubkey{}, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))
	sum := h.Sum(nil)
	if IsOnCurve(sum) {
		return Pubkey{}, ErrInvalidSeeds
	}
	var out Pubkey
	copy(out[:], sum)
	return out, nil
}

// FindProgramAddress searches bump seeds from 255 downwards and returns the
// first off-curve address together with the bump that produced it.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return Pubkey{}, 0, err
		}
	}
	return Pubkey{}, 0, ErrInvalidSeeds
}

// IsOnCurve reports whether b is a valid compressed ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != PubkeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
