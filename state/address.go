package state

import (
	"github.com/casperlabs/casper-node/crypto/blake2b256"
	"github.com/casperlabs/casper-node/types"
)

// Phase tags which part of deploy processing is executing. The address
// generator seed commits to it, so payment and session code draw from
// disjoint streams.
type Phase uint8

const (
	PhaseSystem Phase = iota
	PhasePayment
	PhaseSession
	PhaseFinalizePayment
)

// Stream domains keep uref addresses and hash addresses collision-free
// within one deploy.
const (
	streamURef byte = iota
	streamHash
	streamTransfer
)

// AddressGenerator yields deterministic fresh addresses for one executing
// deploy. Its lifecycle equals the deploy's; it is threaded through every
// call rather than held globally.
type AddressGenerator struct {
	seed     types.Hash
	counters [3]uint64
}

// NewAddressGenerator seeds the generator with blake2b(deployHash ||
// phase).
func NewAddressGenerator(deployHash types.Hash, phase Phase) *AddressGenerator {
	seed := blake2b256.SumMany(deployHash[:], []byte{byte(phase)})
	return &AddressGenerator{seed: seed}
}

func (g *AddressGenerator) next(stream byte) [32]byte {
	counter := g.counters[stream]
	g.counters[stream]++
	var ctr [8]byte
	for i := 0; i < 8; i++ {
		ctr[i] = byte(counter >> (8 * i))
	}
	return blake2b256.SumMany(g.seed[:], []byte{stream}, ctr[:])
}

// NewURef mints a fresh uref carrying the given rights.
func (g *AddressGenerator) NewURef(rights types.AccessRights) types.URef {
	return types.NewURef(g.next(streamURef), rights)
}

// NewHashAddress mints a fresh 32-byte address from the hash stream.
func (g *AddressGenerator) NewHashAddress() [32]byte {
	return g.next(streamHash)
}

// NewTransferAddress mints a fresh address for a transfer record.
func (g *AddressGenerator) NewTransferAddress() [32]byte {
	return g.next(streamTransfer)
}
