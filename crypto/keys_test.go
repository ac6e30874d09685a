package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPubkeyBase58RoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	pub := kp.Pubkey()
	parsed, err := ParsePubkey(pub.String())
	require.NoError(t, err)
	require.Equal(t, pub, parsed)

	_, err = ParsePubkey("not-base58-0OIl")
	require.Error(t, err)
	_, err = PubkeyFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestSystemProgramIDIsAllOnes(t *testing.T) {
	require.Equal(t, Pubkey{}, MustParsePubkey("11111111111111111111111111111111"))
}

func TestKeypairFromSeedIsDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, err := KeypairFromSeed(seed)
	require.NoError(t, err)
	b, err := KeypairFromSeed(seed)
	require.NoError(t, err)
	require.Equal(t, a.Pubkey(), b.Pubkey())

	msg := []byte("lending")
	sig := a.Sign(msg)
	require.True(t, Verify(b.Pubkey(), msg, sig))
	require.False(t, Verify(b.Pubkey(), []byte("other"), sig))
}

func TestFindProgramAddressIsOffCurve(t *testing.T) {
	program, err := GenerateKeypair()
	require.NoError(t, err)
	market, err := GenerateKeypair()
	require.NoError(t, err)

	marketKey := market.Pubkey()
	addr, bump, err := FindProgramAddress([][]byte{marketKey[:]}, program.Pubkey())
	require.NoError(t, err)
	require.False(t, IsOnCurve(addr[:]))

	again, err := CreateProgramAddress([][]byte{marketKey[:], {bump}}, program.Pubkey())
	require.NoError(t, err)
	require.Equal(t, addr, again)

	// Regular public keys are on the curve.
	require.True(t, IsOnCurve(marketKey[:]))
}

func TestCreateProgramAddressRejectsLongSeeds(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, Pubkey{})
	require.ErrorIs(t, err, ErrMaxSeedLengthExceeded)
}
