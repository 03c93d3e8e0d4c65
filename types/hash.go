package types

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/casperlabs/casper-node/crypto/blake2b256"
)

// HashLength is the length of every chain digest: block hashes, state
// roots, contract addresses and consensus instance ids.
const HashLength = 32

// Hash is a 32-byte blake2b digest.
type Hash [HashLength]byte

func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// HashBytes digests data with blake2b-256.
func HashBytes(data []byte) Hash {
	return Hash(blake2b256.Sum(data))
}

// HashPair digests the concatenation of two hashes. Used for accumulated
// seeds, era seeds and address generator seeds.
func HashPair(a, b Hash) Hash {
	return Hash(blake2b256.SumMany(a[:], b[:]))
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return hexutil.Encode(h[:]) }

func (h Hash) String() string { return h.Hex() }

// IsZero reports whether the hash is all zeroes.
func (h Hash) IsZero() bool { return h == Hash{} }

// Compare orders hashes byte-lexicographically.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func (h *Hash) UnmarshalText(input []byte) error {
	raw, err := hexutil.Decode(string(input))
	if err != nil {
		return err
	}
	if len(raw) != HashLength {
		return ErrFormatting
	}
	copy(h[:], raw)
	return nil
}

func (h Hash) MarshalBytes(e *Encoder) {
	e.WriteRaw(h[:])
}

func (h *Hash) UnmarshalBytes(d *Decoder) error {
	raw, err := d.ReadRaw(HashLength)
	if err != nil {
		return err
	}
	copy(h[:], raw)
	return nil
}

// AccountHash is the 32-byte chain address of an account, derived
// deterministically from its public key.
type AccountHash [HashLength]byte

// SystemAccountAddr is the address of the synthetic system account: all
// zeroes, unreachable from any public key.
var SystemAccountAddr = AccountHash{}

func (a AccountHash) Bytes() []byte { return a[:] }

func (a AccountHash) Hex() string { return hexutil.Encode(a[:]) }

func (a AccountHash) String() string { return a.Hex() }

func (a AccountHash) MarshalBytes(e *Encoder) {
	e.WriteRaw(a[:])
}

func (a *AccountHash) UnmarshalBytes(d *Decoder) error {
	raw, err := d.ReadRaw(HashLength)
	if err != nil {
		return err
	}
	copy(a[:], raw)
	return nil
}
