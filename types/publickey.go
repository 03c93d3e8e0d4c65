package types

import (
	"bytes"
	ed "crypto/ed25519"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/casperlabs/casper-node/crypto/blake2b256"
)

// KeyAlgorithm tags the signature scheme of a public key or signature.
type KeyAlgorithm uint8

const (
	// Ed25519 is the only supported scheme.
	Ed25519 KeyAlgorithm = 1
)

const (
	PublicKeyLength = 32
	SignatureLength = 64
)

func (a KeyAlgorithm) String() string {
	if a == Ed25519 {
		return "ed25519"
	}
	return "unknown"
}

// PublicKey is a 32-byte EdDSA public key plus its algorithm tag.
type PublicKey struct {
	Algorithm KeyAlgorithm
	Data      [PublicKeyLength]byte
}

func NewPublicKey(raw [PublicKeyLength]byte) PublicKey {
	return PublicKey{Algorithm: Ed25519, Data: raw}
}

// AccountHash derives the account address of the key. The digest commits
// to the algorithm name, separated by a zero byte.
func (pk PublicKey) AccountHash() AccountHash {
	return AccountHash(blake2b256.SumMany([]byte(pk.Algorithm.String()), []byte{0}, pk.Data[:]))
}

// Compare orders keys by (algorithm, bytes), ascending. This is the
// ranking tie-break order of the auction and the iteration order of every
// serialized validator map.
func (pk PublicKey) Compare(other PublicKey) int {
	if pk.Algorithm != other.Algorithm {
		if pk.Algorithm < other.Algorithm {
			return -1
		}
		return 1
	}
	return bytes.Compare(pk.Data[:], other.Data[:])
}

func (pk PublicKey) Hex() string {
	return hexutil.Encode(append([]byte{byte(pk.Algorithm)}, pk.Data[:]...))
}

func (pk PublicKey) String() string { return pk.Hex() }

func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.Hex()), nil
}

func (pk *PublicKey) UnmarshalText(input []byte) error {
	raw, err := hexutil.Decode(string(input))
	if err != nil {
		return err
	}
	if len(raw) != PublicKeyLength+1 {
		return ErrFormatting
	}
	pk.Algorithm = KeyAlgorithm(raw[0])
	copy(pk.Data[:], raw[1:])
	return nil
}

func (pk PublicKey) MarshalBytes(e *Encoder) {
	e.WriteU8(uint8(pk.Algorithm))
	e.WriteRaw(pk.Data[:])
}

func (pk *PublicKey) UnmarshalBytes(d *Decoder) error {
	tag, err := d.ReadU8()
	if err != nil {
		return err
	}
	if KeyAlgorithm(tag) != Ed25519 {
		return ErrFormatting
	}
	pk.Algorithm = KeyAlgorithm(tag)
	raw, err := d.ReadRaw(PublicKeyLength)
	if err != nil {
		return err
	}
	copy(pk.Data[:], raw)
	return nil
}

// Signature is a 64-byte EdDSA signature plus its algorithm tag.
type Signature struct {
	Algorithm KeyAlgorithm
	Data      [SignatureLength]byte
}

func NewSignature(raw [SignatureLength]byte) Signature {
	return Signature{Algorithm: Ed25519, Data: raw}
}

func (s Signature) Hex() string {
	return hexutil.Encode(append([]byte{byte(s.Algorithm)}, s.Data[:]...))
}

func (s Signature) String() string { return s.Hex() }

func (s Signature) MarshalBytes(e *Encoder) {
	e.WriteU8(uint8(s.Algorithm))
	e.WriteRaw(s.Data[:])
}

func (s *Signature) UnmarshalBytes(d *Decoder) error {
	tag, err := d.ReadU8()
	if err != nil {
		return err
	}
	if KeyAlgorithm(tag) != Ed25519 {
		return ErrFormatting
	}
	s.Algorithm = KeyAlgorithm(tag)
	raw, err := d.ReadRaw(SignatureLength)
	if err != nil {
		return err
	}
	copy(s.Data[:], raw)
	return nil
}

// Verify reports whether sig is a valid signature over msg by pk.
func Verify(pk PublicKey, msg []byte, sig Signature) bool {
	if pk.Algorithm != Ed25519 || sig.Algorithm != Ed25519 {
		return false
	}
	return ed.Verify(pk.Data[:], msg, sig.Data[:])
}

// SortedKeys returns the keys of a public-key map in canonical order.
func SortedKeys[V any](m map[PublicKey]V) []PublicKey {
	keys := make([]PublicKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	SortPublicKeys(keys)
	return keys
}

// SortPublicKeys sorts keys in place into canonical order.
func SortPublicKeys(keys []PublicKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
}
