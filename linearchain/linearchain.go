// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

// Package linearchain persists finalized blocks and aggregates their
// finality signatures into per-block bundles, holding early signatures
// until their block lands and validating every signer against the
// block era's bonded set.
package linearchain

import (
	"errors"

	"github.com/ethereum/go-ethereum/event"
	log "github.com/sirupsen/logrus"

	"github.com/casperlabs/casper-node/crypto/ed25519"
	"github.com/casperlabs/casper-node/types"
)

// Closed finality-signature error enum.
var (
	ErrInvalidEraID            = errors.New("finality signature with invalid era id")
	ErrUnknownSigner           = errors.New("finality signature from unbonded validator")
	ErrSignatureVerify         = errors.New("finality signature verification failed")
	ErrDuplicateSignature      = errors.New("duplicate finality signature")
	ErrTooManyPendingPerSigner = errors.New("too many pending finality signatures for signer")
)

// WeightsProvider resolves the bonded validator set of an era, from the
// seigniorage snapshot at the appropriate state root.
type WeightsProvider interface {
	BondedValidators(era types.EraID) (map[types.PublicKey]types.Motes, bool)
}

// FinalitySignatureAnnouncement is published on the signature feed every
// time a new valid signature is attached to a stored block.
type FinalitySignatureAnnouncement struct {
	Signature types.FinalitySignature
	Local     bool
}

// BlockAnnouncement is published on the block feed when a new linear
// chain block is stored.
type BlockAnnouncement struct {
	Block *types.Block
}

// LinearChain is the finalization layer component. Synchronous; driven
// by the reactor's event dispatch.
type LinearChain struct {
	store   Store
	weights WeightsProvider
	pending *pendingSignatures

	keypair   *ed25519.Keypair
	publicKey types.PublicKey

	latestBlock *types.Block

	sigFeed   event.Feed
	blockFeed event.Feed
}

func New(store Store, weights WeightsProvider, keypair *ed25519.Keypair) *LinearChain {
	lc := &LinearChain{
		store:   store,
		weights: weights,
		pending: newPendingSignatures(),
		keypair: keypair,
	}
	if keypair != nil {
		lc.publicKey = types.NewPublicKey(keypair.PublicKeyBytes())
	}
	return lc
}

// SubscribeSignatures delivers every newly attached finality signature.
func (lc *LinearChain) SubscribeSignatures(ch chan<- FinalitySignatureAnnouncement) event.Subscription {
	return lc.sigFeed.Subscribe(ch)
}

// SubscribeBlocks delivers every newly stored block.
func (lc *LinearChain) SubscribeBlocks(ch chan<- BlockAnnouncement) event.Subscription {
	return lc.blockFeed.Subscribe(ch)
}

// LatestBlock is the most recently stored block, nil before the first.
func (lc *LinearChain) LatestBlock() *types.Block { return lc.latestBlock }

// NewLinearChainBlock stores a freshly finalized block, signs it if this
// node validates in its era, and drains the block's pending signatures
// into a persisted bundle.
func (lc *LinearChain) NewLinearChainBlock(block *types.Block) error {
	if err := lc.store.PutBlock(block); err != nil {
		return err
	}
	lc.latestBlock = block
	lc.blockFeed.Send(BlockAnnouncement{Block: block})

	bundle := types.NewBlockSignatures(block.Hash(), block.EraID())

	if own := lc.signOwn(block); own != nil {
		bundle.InsertProof(own.PublicKey, own.Signature)
		lc.sigFeed.Send(FinalitySignatureAnnouncement{Signature: *own, Local: true})
	}

	for _, sig := range lc.pending.collect(block.Hash()) {
		if err := lc.validateAgainstBlock(&sig.fs, block); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"blockHash": block.Hash(),
				"publicKey": sig.fs.PublicKey,
			}).Debug("dropping pending finality signature")
			continue
		}
		if bundle.InsertProof(sig.fs.PublicKey, sig.fs.Signature) {
			lc.sigFeed.Send(FinalitySignatureAnnouncement{Signature: sig.fs, Local: sig.local})
		}
	}

	if err := lc.store.PutBlockSignatures(bundle); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"blockHash": block.Hash(),
		"era":       block.EraID(),
		"height":    block.Height(),
		"proofs":    bundle.Len(),
	}).Info("stored linear chain block")
	return nil
}

// signOwn produces this node's finality signature when it is bonded for
// the block's era.
func (lc *LinearChain) signOwn(block *types.Block) *types.FinalitySignature {
	if lc.keypair == nil {
		return nil
	}
	bonded, ok := lc.weights.BondedValidators(block.EraID())
	if !ok {
		return nil
	}
	if _, bondedHere := bonded[lc.publicKey]; !bondedHere {
		return nil
	}
	data := types.FinalitySignatureData(block.Hash(), block.EraID())
	return &types.FinalitySignature{
		BlockHash: block.Hash(),
		EraID:     block.EraID(),
		Signature: types.NewSignature(lc.keypair.Sign(data)),
		PublicKey: lc.publicKey,
	}
}

// FinalitySignatureReceived handles one incoming signature. Signatures
// for unknown blocks wait in the pending map; signatures whose era or
// signer disagrees with their block are dropped.
func (lc *LinearChain) FinalitySignatureReceived(fs types.FinalitySignature, isLocal bool) error {
	if !fs.Verify() {
		return ErrSignatureVerify
	}

	block, err := lc.store.GetBlock(fs.BlockHash)
	if err != nil {
		return err
	}

	if block == nil {
		if lc.pending.has(fs.PublicKey, fs.BlockHash) {
			return ErrDuplicateSignature
		}
		if !lc.pending.add(signature{fs: fs, local: isLocal}) {
			return ErrTooManyPendingPerSigner
		}
		return nil
	}

	if err := lc.validateAgainstBlock(&fs, block); err != nil {
		return err
	}

	bundle, err := lc.store.GetBlockSignatures(fs.BlockHash)
	if err != nil {
		return err
	}
	if bundle == nil {
		bundle = types.NewBlockSignatures(block.Hash(), block.EraID())
	}
	if !bundle.InsertProof(fs.PublicKey, fs.Signature) {
		return ErrDuplicateSignature
	}
	if err := lc.store.PutBlockSignatures(bundle); err != nil {
		return err
	}
	lc.sigFeed.Send(FinalitySignatureAnnouncement{Signature: fs, Local: isLocal})
	return nil
}

// validateAgainstBlock enforces the bundle invariants: the signature's
// era must equal the block's, and the signer must be bonded in that era.
func (lc *LinearChain) validateAgainstBlock(fs *types.FinalitySignature, block *types.Block) error {
	if fs.EraID != block.EraID() {
		return ErrInvalidEraID
	}
	bonded, ok := lc.weights.BondedValidators(block.EraID())
	if !ok {
		return ErrUnknownSigner
	}
	if _, isBonded := bonded[fs.PublicKey]; !isBonded {
		return ErrUnknownSigner
	}
	return nil
}
