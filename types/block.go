package types

import (
	"github.com/emirpasic/gods/maps/treemap"
)

// EraReport is the consensus verdict carried by a switch block: who
// equivocated, who fell inactive, and the per-validator reward factors.
type EraReport struct {
	Equivocators       []PublicKey
	Rewards            map[PublicKey]uint64
	InactiveValidators []PublicKey
}

func (r EraReport) MarshalBytes(e *Encoder) {
	e.WriteU32(uint32(len(r.Equivocators)))
	for _, pk := range r.Equivocators {
		pk.MarshalBytes(e)
	}
	keys := SortedKeys(r.Rewards)
	e.WriteU32(uint32(len(keys)))
	for _, pk := range keys {
		pk.MarshalBytes(e)
		e.WriteU64(r.Rewards[pk])
	}
	e.WriteU32(uint32(len(r.InactiveValidators)))
	for _, pk := range r.InactiveValidators {
		pk.MarshalBytes(e)
	}
}

func (r *EraReport) UnmarshalBytes(d *Decoder) error {
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	r.Equivocators = make([]PublicKey, count)
	for i := range r.Equivocators {
		if err := r.Equivocators[i].UnmarshalBytes(d); err != nil {
			return err
		}
	}
	count, err = d.ReadLength()
	if err != nil {
		return err
	}
	r.Rewards = make(map[PublicKey]uint64, count)
	for i := 0; i < count; i++ {
		var pk PublicKey
		if err := pk.UnmarshalBytes(d); err != nil {
			return err
		}
		amount, err := d.ReadU64()
		if err != nil {
			return err
		}
		r.Rewards[pk] = amount
	}
	count, err = d.ReadLength()
	if err != nil {
		return err
	}
	r.InactiveValidators = make([]PublicKey, count)
	for i := range r.InactiveValidators {
		if err := r.InactiveValidators[i].UnmarshalBytes(d); err != nil {
			return err
		}
	}
	return nil
}

// EraEnd is present on switch blocks only. It carries the era report plus
// the weights of the next era's validators.
type EraEnd struct {
	Report                  EraReport
	NextEraValidatorWeights map[PublicKey]Motes
}

func (ee EraEnd) MarshalBytes(e *Encoder) {
	ee.Report.MarshalBytes(e)
	keys := SortedKeys(ee.NextEraValidatorWeights)
	e.WriteU32(uint32(len(keys)))
	for _, pk := range keys {
		pk.MarshalBytes(e)
		weight := ee.NextEraValidatorWeights[pk]
		weight.MarshalBytes(e)
	}
}

func (ee *EraEnd) UnmarshalBytes(d *Decoder) error {
	if err := ee.Report.UnmarshalBytes(d); err != nil {
		return err
	}
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	ee.NextEraValidatorWeights = make(map[PublicKey]Motes, count)
	for i := 0; i < count; i++ {
		var pk PublicKey
		if err := pk.UnmarshalBytes(d); err != nil {
			return err
		}
		var weight Motes
		if err := weight.UnmarshalBytes(d); err != nil {
			return err
		}
		ee.NextEraValidatorWeights[pk] = weight
	}
	return nil
}

// BlockHeader carries everything needed to validate a block's place in the
// chain; the deploy lists live in the body.
type BlockHeader struct {
	ParentHash      Hash
	StateRootHash   Hash
	BodyHash        Hash
	RandomBit       bool
	AccumulatedSeed Hash
	EraEnd          *EraEnd
	Timestamp       Timestamp
	EraID           EraID
	Height          BlockHeight
	ProtocolVersion ProtocolVersion
}

// IsSwitchBlock reports whether this is the last block of its era.
func (h BlockHeader) IsSwitchBlock() bool {
	return h.EraEnd != nil
}

// Hash is the blake2b digest of the serialized header; it identifies the
// block.
func (h BlockHeader) Hash() Hash {
	return HashBytes(Marshal(h))
}

func (h BlockHeader) MarshalBytes(e *Encoder) {
	h.ParentHash.MarshalBytes(e)
	h.StateRootHash.MarshalBytes(e)
	h.BodyHash.MarshalBytes(e)
	e.WriteBool(h.RandomBit)
	h.AccumulatedSeed.MarshalBytes(e)
	e.WriteOption(h.EraEnd != nil)
	if h.EraEnd != nil {
		h.EraEnd.MarshalBytes(e)
	}
	e.WriteU64(uint64(h.Timestamp))
	e.WriteU64(uint64(h.EraID))
	e.WriteU64(h.Height)
	h.ProtocolVersion.MarshalBytes(e)
}

func (h *BlockHeader) UnmarshalBytes(d *Decoder) error {
	if err := h.ParentHash.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := h.StateRootHash.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := h.BodyHash.UnmarshalBytes(d); err != nil {
		return err
	}
	var err error
	if h.RandomBit, err = d.ReadBool(); err != nil {
		return err
	}
	if err := h.AccumulatedSeed.UnmarshalBytes(d); err != nil {
		return err
	}
	present, err := d.ReadOption()
	if err != nil {
		return err
	}
	h.EraEnd = nil
	if present {
		h.EraEnd = new(EraEnd)
		if err := h.EraEnd.UnmarshalBytes(d); err != nil {
			return err
		}
	}
	millis, err := d.ReadU64()
	if err != nil {
		return err
	}
	h.Timestamp = Timestamp(millis)
	era, err := d.ReadU64()
	if err != nil {
		return err
	}
	h.EraID = EraID(era)
	if h.Height, err = d.ReadU64(); err != nil {
		return err
	}
	return h.ProtocolVersion.UnmarshalBytes(d)
}

// BlockBody lists the block's payload: the proposer and the executed
// deploys, native transfers separated out.
type BlockBody struct {
	Proposer       PublicKey
	DeployHashes   []Hash
	TransferHashes []Hash
}

// Hash is the blake2b digest of the serialized body.
func (b BlockBody) Hash() Hash {
	return HashBytes(Marshal(b))
}

func (b BlockBody) MarshalBytes(e *Encoder) {
	b.Proposer.MarshalBytes(e)
	e.WriteU32(uint32(len(b.DeployHashes)))
	for _, h := range b.DeployHashes {
		h.MarshalBytes(e)
	}
	e.WriteU32(uint32(len(b.TransferHashes)))
	for _, h := range b.TransferHashes {
		h.MarshalBytes(e)
	}
}

func (b *BlockBody) UnmarshalBytes(d *Decoder) error {
	if err := b.Proposer.UnmarshalBytes(d); err != nil {
		return err
	}
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	b.DeployHashes = make([]Hash, count)
	for i := range b.DeployHashes {
		if err := b.DeployHashes[i].UnmarshalBytes(d); err != nil {
			return err
		}
	}
	count, err = d.ReadLength()
	if err != nil {
		return err
	}
	b.TransferHashes = make([]Hash, count)
	for i := range b.TransferHashes {
		if err := b.TransferHashes[i].UnmarshalBytes(d); err != nil {
			return err
		}
	}
	return nil
}

// Block is a header plus its body, with the block hash cached.
type Block struct {
	hash   Hash
	Header BlockHeader
	Body   BlockBody
}

// NewBlock seals a header/body pair. The body hash must already be set in
// the header by the producer.
func NewBlock(header BlockHeader, body BlockBody) *Block {
	return &Block{hash: header.Hash(), Header: header, Body: body}
}

func (b *Block) Hash() Hash { return b.hash }

func (b *Block) EraID() EraID { return b.Header.EraID }

func (b *Block) Height() BlockHeight { return b.Header.Height }

func (b *Block) IsSwitchBlock() bool { return b.Header.IsSwitchBlock() }

func (b *Block) MarshalBytes(e *Encoder) {
	b.hash.MarshalBytes(e)
	b.Header.MarshalBytes(e)
	b.Body.MarshalBytes(e)
}

func (b *Block) UnmarshalBytes(d *Decoder) error {
	if err := b.hash.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := b.Header.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := b.Body.UnmarshalBytes(d); err != nil {
		return err
	}
	if b.Header.Hash() != b.hash {
		return ErrFormatting
	}
	return nil
}

// FinalitySignature is one validator's attestation that a block is final.
// The signature is over block_hash ++ era_id LE as is, not over a digest
// of it (see FinalitySignatureData).
type FinalitySignature struct {
	BlockHash Hash
	EraID     EraID
	Signature Signature
	PublicKey PublicKey
}

// FinalitySignatureData is the byte string a finality signature signs.
func FinalitySignatureData(blockHash Hash, eraID EraID) []byte {
	e := NewEncoder()
	blockHash.MarshalBytes(e)
	e.WriteU64(uint64(eraID))
	return e.Bytes()
}

// Verify checks the signature syntactically, against its own claimed era.
func (fs *FinalitySignature) Verify() bool {
	return Verify(fs.PublicKey, FinalitySignatureData(fs.BlockHash, fs.EraID), fs.Signature)
}

func (fs FinalitySignature) MarshalBytes(e *Encoder) {
	fs.BlockHash.MarshalBytes(e)
	e.WriteU64(uint64(fs.EraID))
	fs.Signature.MarshalBytes(e)
	fs.PublicKey.MarshalBytes(e)
}

func (fs *FinalitySignature) UnmarshalBytes(d *Decoder) error {
	if err := fs.BlockHash.UnmarshalBytes(d); err != nil {
		return err
	}
	era, err := d.ReadU64()
	if err != nil {
		return err
	}
	fs.EraID = EraID(era)
	if err := fs.Signature.UnmarshalBytes(d); err != nil {
		return err
	}
	return fs.PublicKey.UnmarshalBytes(d)
}

func publicKeyComparator(a, b interface{}) int {
	return a.(PublicKey).Compare(b.(PublicKey))
}

// BlockSignatures is the collected finality-signature bundle of one block.
// Proofs are kept ordered by public key; one proof per validator.
type BlockSignatures struct {
	BlockHash Hash
	EraID     EraID
	proofs    *treemap.Map
}

func NewBlockSignatures(blockHash Hash, eraID EraID) *BlockSignatures {
	return &BlockSignatures{
		BlockHash: blockHash,
		EraID:     eraID,
		proofs:    treemap.NewWith(publicKeyComparator),
	}
}

// InsertProof adds a proof, returning false if the validator already
// signed.
func (bs *BlockSignatures) InsertProof(pk PublicKey, sig Signature) bool {
	if _, exists := bs.proofs.Get(pk); exists {
		return false
	}
	bs.proofs.Put(pk, sig)
	return true
}

func (bs *BlockSignatures) HasProof(pk PublicKey) bool {
	_, exists := bs.proofs.Get(pk)
	return exists
}

func (bs *BlockSignatures) GetProof(pk PublicKey) (Signature, bool) {
	v, ok := bs.proofs.Get(pk)
	if !ok {
		return Signature{}, false
	}
	return v.(Signature), true
}

func (bs *BlockSignatures) Len() int { return bs.proofs.Size() }

// Signers returns the signing validators in canonical order.
func (bs *BlockSignatures) Signers() []PublicKey {
	out := make([]PublicKey, 0, bs.proofs.Size())
	for _, k := range bs.proofs.Keys() {
		out = append(out, k.(PublicKey))
	}
	return out
}

// FinalitySignatures rebuilds the individual signatures of the bundle.
func (bs *BlockSignatures) FinalitySignatures() []FinalitySignature {
	out := make([]FinalitySignature, 0, bs.proofs.Size())
	it := bs.proofs.Iterator()
	for it.Next() {
		out = append(out, FinalitySignature{
			BlockHash: bs.BlockHash,
			EraID:     bs.EraID,
			Signature: it.Value().(Signature),
			PublicKey: it.Key().(PublicKey),
		})
	}
	return out
}

func (bs *BlockSignatures) MarshalBytes(e *Encoder) {
	bs.BlockHash.MarshalBytes(e)
	e.WriteU64(uint64(bs.EraID))
	e.WriteU32(uint32(bs.proofs.Size()))
	it := bs.proofs.Iterator()
	for it.Next() {
		pk := it.Key().(PublicKey)
		sig := it.Value().(Signature)
		pk.MarshalBytes(e)
		sig.MarshalBytes(e)
	}
}

func (bs *BlockSignatures) UnmarshalBytes(d *Decoder) error {
	if err := bs.BlockHash.UnmarshalBytes(d); err != nil {
		return err
	}
	era, err := d.ReadU64()
	if err != nil {
		return err
	}
	bs.EraID = EraID(era)
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	bs.proofs = treemap.NewWith(publicKeyComparator)
	for i := 0; i < count; i++ {
		var pk PublicKey
		if err := pk.UnmarshalBytes(d); err != nil {
			return err
		}
		var sig Signature
		if err := sig.UnmarshalBytes(d); err != nil {
			return err
		}
		bs.proofs.Put(pk, sig)
	}
	return nil
}
