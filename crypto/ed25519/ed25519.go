// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

package ed25519

import (
	ed "crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/casperlabs/casper-node/crypto"
	"github.com/casperlabs/casper-node/crypto/blake2b256"
)

var _ crypto.Keypair = &Keypair{}

const SeedLength = 32

// Keypair wraps an ed25519 signing key. Signatures produced by it are
// deterministic for a given (key, message) pair.
type Keypair struct {
	public  ed.PublicKey
	private ed.PrivateKey
}

func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{public: pub, private: priv}, nil
}

// NewKeypairFromSeed derives a keypair from a 32-byte seed.
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SeedLength {
		return nil, fmt.Errorf("invalid seed length %d, expected %d", len(seed), SeedLength)
	}
	priv := ed.NewKeyFromSeed(seed)
	return &Keypair{
		public:  priv.Public().(ed.PublicKey),
		private: priv,
	}, nil
}

// NewKeypairFromString parses a hex string for a seed. Must be
// SeedLength bytes once decoded.
func NewKeypairFromString(seed string) (*Keypair, error) {
	if !strings.HasPrefix(seed, "0x") {
		seed = "0x" + seed
	}
	raw, err := hexutil.Decode(seed)
	if err != nil {
		return nil, err
	}
	return NewKeypairFromSeed(raw)
}

// ResolveKeypair loads a keypair from either a hex seed or a file
// containing one, in that order of preference.
func ResolveKeypair(seed, seedFile string) (*Keypair, error) {
	if seed != "" {
		return NewKeypairFromString(seed)
	}
	if seedFile != "" {
		content, err := os.ReadFile(seedFile)
		if err != nil {
			return nil, fmt.Errorf("load validator key file: %w", err)
		}
		return NewKeypairFromString(strings.TrimSpace(string(content)))
	}
	return nil, nil
}

// Encode dumps the private key seed as bytes
func (kp *Keypair) Encode() []byte {
	return kp.private.Seed()
}

// Decode initializes the keypair using the input
func (kp *Keypair) Decode(in []byte) error {
	other, err := NewKeypairFromSeed(in)
	if err != nil {
		return err
	}
	kp.public = other.public
	kp.private = other.private
	return nil
}

// Address returns the account hash derived from the public key, hex encoded
func (kp *Keypair) Address() string {
	hash := AccountHash(kp.public)
	return hexutil.Encode(hash[:])
}

// PublicKey returns the public key hex encoded
func (kp *Keypair) PublicKey() string {
	return hexutil.Encode(kp.public)
}

// PublicKeyBytes returns the raw 32-byte public key.
func (kp *Keypair) PublicKeyBytes() [32]byte {
	var out [32]byte
	copy(out[:], kp.public)
	return out
}

// Sign signs the message directly, without hashing it first. Units are
// signed over their blake2b hash; finality signatures and endorsements
// sign their serialized data as is.
func (kp *Keypair) Sign(msg []byte) [64]byte {
	var out [64]byte
	copy(out[:], ed.Sign(kp.private, msg))
	return out
}

// Verify reports whether sig is a valid signature of msg under pub.
func Verify(pub [32]byte, msg []byte, sig [64]byte) bool {
	return ed.Verify(pub[:], msg, sig[:])
}

// AccountHash derives the chain address of an ed25519 public key. The
// digest commits to the algorithm name so addresses cannot collide across
// signature schemes.
func AccountHash(pub ed.PublicKey) [32]byte {
	return blake2b256.SumMany([]byte(crypto.Ed25519Type), []byte{0}, pub)
}
