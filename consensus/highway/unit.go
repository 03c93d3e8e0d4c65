package highway

import (
	"github.com/casperlabs/casper-node/types"
)

// ObservationKind tags one panorama slot.
type ObservationKind uint8

const (
	// ObservationNone means no unit by that validator is cited.
	ObservationNone ObservationKind = iota
	// ObservationCorrect cites the validator's latest unit seen.
	ObservationCorrect
	// ObservationFaulty marks the validator as known-equivocated.
	ObservationFaulty
)

// Observation is one entry of a panorama.
type Observation struct {
	Kind ObservationKind
	Hash types.Hash
}

func ObsNone() Observation { return Observation{Kind: ObservationNone} }

func ObsCorrect(h types.Hash) Observation {
	return Observation{Kind: ObservationCorrect, Hash: h}
}

func ObsFaulty() Observation { return Observation{Kind: ObservationFaulty} }

func (o Observation) IsNone() bool    { return o.Kind == ObservationNone }
func (o Observation) IsCorrect() bool { return o.Kind == ObservationCorrect }
func (o Observation) IsFaulty() bool  { return o.Kind == ObservationFaulty }

func (o Observation) MarshalBytes(e *types.Encoder) {
	e.WriteU8(uint8(o.Kind))
	if o.Kind == ObservationCorrect {
		o.Hash.MarshalBytes(e)
	}
}

func (o *Observation) UnmarshalBytes(d *types.Decoder) error {
	kind, err := d.ReadU8()
	if err != nil {
		return err
	}
	if kind > uint8(ObservationFaulty) {
		return types.ErrFormatting
	}
	o.Kind = ObservationKind(kind)
	o.Hash = types.Hash{}
	if o.Kind == ObservationCorrect {
		return o.Hash.UnmarshalBytes(d)
	}
	return nil
}

// Panorama is a creator's view of every validator's latest message: one
// observation per validator index.
type Panorama []Observation

// NewPanorama returns the all-None panorama for n validators.
func NewPanorama(n int) Panorama {
	p := make(Panorama, n)
	for i := range p {
		p[i] = ObsNone()
	}
	return p
}

func (p Panorama) Clone() Panorama {
	out := make(Panorama, len(p))
	copy(out, p)
	return out
}

// Get is bounds-safe: out-of-range indices read as None.
func (p Panorama) Get(idx ValidatorIndex) Observation {
	if int(idx) >= len(p) {
		return ObsNone()
	}
	return p[idx]
}

// IsAllNone reports whether no validator is cited or marked faulty.
func (p Panorama) IsAllNone() bool {
	for _, obs := range p {
		if !obs.IsNone() {
			return false
		}
	}
	return true
}

// CorrectHashes returns the cited unit hashes in index order.
func (p Panorama) CorrectHashes() []types.Hash {
	var out []types.Hash
	for _, obs := range p {
		if obs.IsCorrect() {
			out = append(out, obs.Hash)
		}
	}
	return out
}

func (p Panorama) MarshalBytes(e *types.Encoder) {
	e.WriteU32(uint32(len(p)))
	for _, obs := range p {
		obs.MarshalBytes(e)
	}
}

func (p *Panorama) UnmarshalBytes(d *types.Decoder) error {
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	out := make(Panorama, count)
	for i := range out {
		if err := out[i].UnmarshalBytes(d); err != nil {
			return err
		}
	}
	*p = out
	return nil
}

// WireUnit is the serialized, signed consensus message of one validator.
// A unit with a value is a proposal and votes for itself; a unit without
// votes for the fork choice of its panorama.
type WireUnit struct {
	Creator    ValidatorIndex
	InstanceID types.Hash
	Panorama   Panorama
	Value      *types.Hash
	SeqNumber  uint64
	Timestamp  types.Timestamp
	RoundExp   uint8
	Endorsed   []types.Hash
}

// IsProposal reports whether the unit proposes a value.
func (wu *WireUnit) IsProposal() bool { return wu.Value != nil }

// RoundLen is the length of the unit's round in milliseconds.
func (wu *WireUnit) RoundLen() uint64 { return 1 << wu.RoundExp }

// RoundID is the start of the round the unit belongs to.
func (wu *WireUnit) RoundID() types.Timestamp {
	return types.Timestamp(uint64(wu.Timestamp) &^ (wu.RoundLen() - 1))
}

// Previous returns the hash of the creator's preceding unit, if any.
func (wu *WireUnit) Previous() *types.Hash {
	obs := wu.Panorama.Get(wu.Creator)
	if !obs.IsCorrect() {
		return nil
	}
	h := obs.Hash
	return &h
}

// Hash identifies the unit; signatures are over it.
func (wu *WireUnit) Hash() types.Hash {
	return types.HashBytes(types.Marshal(wu))
}

func (wu *WireUnit) MarshalBytes(e *types.Encoder) {
	e.WriteU32(uint32(wu.Creator))
	wu.InstanceID.MarshalBytes(e)
	wu.Panorama.MarshalBytes(e)
	e.WriteOption(wu.Value != nil)
	if wu.Value != nil {
		wu.Value.MarshalBytes(e)
	}
	e.WriteU64(wu.SeqNumber)
	e.WriteU64(uint64(wu.Timestamp))
	e.WriteU8(wu.RoundExp)
	e.WriteU32(uint32(len(wu.Endorsed)))
	for _, h := range wu.Endorsed {
		h.MarshalBytes(e)
	}
}

func (wu *WireUnit) UnmarshalBytes(d *types.Decoder) error {
	creator, err := d.ReadU32()
	if err != nil {
		return err
	}
	wu.Creator = ValidatorIndex(creator)
	if err := wu.InstanceID.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := wu.Panorama.UnmarshalBytes(d); err != nil {
		return err
	}
	present, err := d.ReadOption()
	if err != nil {
		return err
	}
	wu.Value = nil
	if present {
		wu.Value = new(types.Hash)
		if err := wu.Value.UnmarshalBytes(d); err != nil {
			return err
		}
	}
	if wu.SeqNumber, err = d.ReadU64(); err != nil {
		return err
	}
	millis, err := d.ReadU64()
	if err != nil {
		return err
	}
	wu.Timestamp = types.Timestamp(millis)
	if wu.RoundExp, err = d.ReadU8(); err != nil {
		return err
	}
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	wu.Endorsed = make([]types.Hash, count)
	for i := range wu.Endorsed {
		if err := wu.Endorsed[i].UnmarshalBytes(d); err != nil {
			return err
		}
	}
	return nil
}

// SignedWireUnit pairs a wire unit with its creator's signature over the
// unit hash.
type SignedWireUnit struct {
	Unit      WireUnit
	Signature types.Signature
}

func (swu *SignedWireUnit) Hash() types.Hash { return swu.Unit.Hash() }

func (swu *SignedWireUnit) MarshalBytes(e *types.Encoder) {
	swu.Unit.MarshalBytes(e)
	swu.Signature.MarshalBytes(e)
}

func (swu *SignedWireUnit) UnmarshalBytes(d *types.Decoder) error {
	if err := swu.Unit.UnmarshalBytes(d); err != nil {
		return err
	}
	return swu.Signature.UnmarshalBytes(d)
}

// storedUnit is a unit admitted to the state, with derived data cached.
type storedUnit struct {
	swu       SignedWireUnit
	hash      types.Hash
	voteBlock types.Hash // zero when the unit supports no block yet
	parent    types.Hash // for proposals: the fork choice at creation
}

func (u *storedUnit) wire() *WireUnit { return &u.swu.Unit }
