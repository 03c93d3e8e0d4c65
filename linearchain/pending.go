package linearchain

import (
	log "github.com/sirupsen/logrus"

	"github.com/casperlabs/casper-node/types"
)

// maxPendingFinalitySignaturesPerValidator bounds the memory spent on
// finality signatures from a single validator while waiting for their
// block.
const maxPendingFinalitySignaturesPerValidator = 1000

// signature wraps a finality signature with its origin: locally produced
// signatures are re-broadcast once their block lands.
type signature struct {
	fs    types.FinalitySignature
	local bool
}

// pendingSignatures holds finality signatures to be inserted in a block
// once it is available, keyed by creator to enforce the per-validator
// cap.
type pendingSignatures struct {
	byCreator map[types.PublicKey]map[types.Hash]signature
}

func newPendingSignatures() *pendingSignatures {
	return &pendingSignatures{byCreator: map[types.PublicKey]map[types.Hash]signature{}}
}

// has reports whether that signature is already enqueued.
func (p *pendingSignatures) has(creator types.PublicKey, blockHash types.Hash) bool {
	sigs, ok := p.byCreator[creator]
	if !ok {
		return false
	}
	_, ok = sigs[blockHash]
	return ok
}

// add enqueues a signature, reporting false when the creator's cap is
// exhausted.
func (p *pendingSignatures) add(sig signature) bool {
	creator := sig.fs.PublicKey
	sigs, ok := p.byCreator[creator]
	if !ok {
		sigs = map[types.Hash]signature{}
		p.byCreator[creator] = sigs
	}
	if len(sigs) >= maxPendingFinalitySignaturesPerValidator {
		log.WithFields(log.Fields{
			"blockHash": sig.fs.BlockHash,
			"publicKey": creator,
		}).Warn("received too many finality signatures for unknown blocks")
		return false
	}
	sigs[sig.fs.BlockHash] = sig
	return true
}

// collect drains every pending signature for the block.
func (p *pendingSignatures) collect(blockHash types.Hash) []signature {
	var out []signature
	for creator, sigs := range p.byCreator {
		if sig, ok := sigs[blockHash]; ok {
			out = append(out, sig)
			delete(sigs, blockHash)
		}
		if len(sigs) == 0 {
			delete(p.byCreator, creator)
		}
	}
	return out
}
