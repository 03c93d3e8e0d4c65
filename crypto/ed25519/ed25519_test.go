package ed25519

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeypairFromSeedIsDeterministic(t *testing.T) {
	seed := make([]byte, SeedLength)
	seed[0] = 42

	a, err := NewKeypairFromSeed(seed)
	require.NoError(t, err)
	b, err := NewKeypairFromSeed(seed)
	require.NoError(t, err)

	assert.Equal(t, a.PublicKey(), b.PublicKey())
	assert.Equal(t, a.Address(), b.Address())

	msg := []byte("message")
	assert.Equal(t, a.Sign(msg), b.Sign(msg), "signatures must be deterministic")
}

func TestSignAndVerify(t *testing.T) {
	keypair, err := GenerateKeypair()
	require.NoError(t, err)

	msg := []byte("attack at dawn")
	sig := keypair.Sign(msg)
	assert.True(t, Verify(keypair.PublicKeyBytes(), msg, sig))

	sig[0] ^= 0xff
	assert.False(t, Verify(keypair.PublicKeyBytes(), msg, sig))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	keypair, err := GenerateKeypair()
	require.NoError(t, err)

	var decoded Keypair
	require.NoError(t, decoded.Decode(keypair.Encode()))
	assert.Equal(t, keypair.PublicKey(), decoded.PublicKey())
}

func TestNewKeypairFromStringRejectsBadLength(t *testing.T) {
	_, err := NewKeypairFromString("0x0102")
	assert.Error(t, err)
}

func TestAddressIsNotRawPublicKey(t *testing.T) {
	keypair, err := GenerateKeypair()
	require.NoError(t, err)
	// The account hash is a digest, never the raw key.
	assert.NotEqual(t, keypair.PublicKey(), keypair.Address())
}
