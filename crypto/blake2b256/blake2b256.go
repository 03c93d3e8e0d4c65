package blake2b256

import "golang.org/x/crypto/blake2b"

// DigestLength is the length in bytes of every digest produced by this package.
const DigestLength = 32

// Blake2b256 is the blake2b-256 hashing method used for all chain digests.
type Blake2b256 struct{}

// New creates a new Blake2b256 hashing method
func New() *Blake2b256 {
	return &Blake2b256{}
}

// Hash generates a blake2b-256 hash from a byte array
func (h *Blake2b256) Hash(data []byte) []byte {
	hash := Sum(data)
	return hash[:]
}

// Sum returns the blake2b-256 digest of data.
func Sum(data []byte) [DigestLength]byte {
	return blake2b.Sum256(data)
}

// SumMany returns the blake2b-256 digest of the concatenation of the given
// byte slices, without materializing the concatenation.
func SumMany(parts ...[]byte) [DigestLength]byte {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	for _, part := range parts {
		hasher.Write(part)
	}
	var out [DigestLength]byte
	copy(out[:], hasher.Sum(nil))
	return out
}
