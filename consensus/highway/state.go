package highway

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/casperlabs/casper-node/types"
)

// Params are the per-era protocol parameters.
type Params struct {
	Seed               uint64
	BlockReward        uint64
	ReducedBlockReward uint64
	MinRoundExp        uint8
	MinEraHeight       uint64
	EraStartTimestamp  types.Timestamp
	EraDuration        types.TimeDiff
	EndHeight          uint64
	// FTT is the fault tolerance threshold in weight units.
	FTT uint64
}

// FaultKind classifies how a validator came to be considered faulty.
type FaultKind uint8

const (
	// FaultBanned validators were listed as equivocators before the era
	// started; no evidence exists or is needed.
	FaultBanned FaultKind = iota
	// FaultDirect holds evidence observed in this era.
	FaultDirect
	// FaultIndirect marks evidence known from another era.
	FaultIndirect
)

// Fault is the stored verdict against one validator.
type Fault struct {
	Kind     FaultKind
	Evidence *Evidence
}

// State is the per-era unit DAG: all admitted units, faults and
// endorsements, plus the node's own current panorama over them.
type State struct {
	params     Params
	validators *Validators

	units       map[types.Hash]*storedUnit
	latest      []Observation // the node's own panorama over the DAG
	maxSeq      map[ValidatorIndex]uint64
	unitsBySeq  map[ValidatorIndex]map[uint64]types.Hash
	faults      map[ValidatorIndex]*Fault
	endorsers   map[types.Hash]mapset.Set[ValidatorIndex]
	endorsed    mapset.Set[types.Hash]
}

func NewState(validators *Validators, params Params) *State {
	return &State{
		params:     params,
		validators: validators,
		units:      map[types.Hash]*storedUnit{},
		latest:     NewPanorama(validators.Len()),
		maxSeq:     map[ValidatorIndex]uint64{},
		unitsBySeq: map[ValidatorIndex]map[uint64]types.Hash{},
		faults:     map[ValidatorIndex]*Fault{},
		endorsers:  map[types.Hash]mapset.Set[ValidatorIndex]{},
		endorsed:   mapset.NewThreadUnsafeSet[types.Hash](),
	}
}

func (s *State) Params() Params { return s.params }

func (s *State) Validators() *Validators { return s.validators }

// Panorama is the node's current view of the DAG, usable as the panorama
// of its next unit.
func (s *State) Panorama() Panorama {
	return Panorama(s.latest).Clone()
}

func (s *State) HasUnit(h types.Hash) bool {
	_, ok := s.units[h]
	return ok
}

func (s *State) unit(h types.Hash) *storedUnit {
	return s.units[h]
}

// Unit returns the signed wire unit stored under h.
func (s *State) Unit(h types.Hash) (*SignedWireUnit, bool) {
	u, ok := s.units[h]
	if !ok {
		return nil, false
	}
	return &u.swu, true
}

func (s *State) IsFaulty(idx ValidatorIndex) bool {
	_, ok := s.faults[idx]
	return ok
}

// HasEvidence reports whether actual evidence (not just a ban) is stored.
func (s *State) HasEvidence(idx ValidatorIndex) bool {
	fault, ok := s.faults[idx]
	return ok && fault.Evidence != nil
}

func (s *State) GetEvidence(idx ValidatorIndex) *Evidence {
	fault, ok := s.faults[idx]
	if !ok {
		return nil
	}
	return fault.Evidence
}

// FaultyValidators returns the indices currently considered faulty.
func (s *State) FaultyValidators() []ValidatorIndex {
	out := make([]ValidatorIndex, 0, len(s.faults))
	for idx := range s.faults {
		out = append(out, idx)
	}
	sortIndices(out)
	return out
}

// FaultyWeight is the total weight of all known-faulty validators.
func (s *State) FaultyWeight() uint64 {
	var total uint64
	for idx := range s.faults {
		total += s.validators.Weight(idx)
	}
	return total
}

// IsEndorsed reports whether the unit has reached the endorsement quorum:
// endorser weight strictly above (total + ftt) / 2.
func (s *State) IsEndorsed(h types.Hash) bool {
	return s.endorsed.Contains(h)
}

// EndorsedUnits returns all quorum-endorsed unit hashes.
func (s *State) EndorsedUnits() []types.Hash {
	return s.endorsed.ToSlice()
}

// Endorsers returns the indices that endorsed h so far.
func (s *State) Endorsers(h types.Hash) []ValidatorIndex {
	set, ok := s.endorsers[h]
	if !ok {
		return nil
	}
	out := set.ToSlice()
	sortIndices(out)
	return out
}

// AddUnit stores a validated unit and updates the node's panorama. If the
// unit conflicts with an already-stored unit at the same sequence number,
// the equivocation evidence is returned.
func (s *State) AddUnit(swu SignedWireUnit) *Evidence {
	hash := swu.Hash()
	if _, ok := s.units[hash]; ok {
		return nil
	}
	creator := swu.Unit.Creator

	unit := &storedUnit{swu: swu, hash: hash}
	s.initVoteBlock(unit)
	s.units[hash] = unit

	bySeq := s.unitsBySeq[creator]
	if bySeq == nil {
		bySeq = map[uint64]types.Hash{}
		s.unitsBySeq[creator] = bySeq
	}

	var evidence *Evidence
	if otherHash, ok := bySeq[swu.Unit.SeqNumber]; ok && otherHash != hash {
		other := s.units[otherHash]
		evidence = &Evidence{Unit1: other.swu, Unit2: swu}
	} else {
		bySeq[swu.Unit.SeqNumber] = hash
	}

	if evidence != nil {
		s.markFault(creator, &Fault{Kind: FaultDirect, Evidence: evidence})
		return evidence
	}

	if !s.IsFaulty(creator) {
		if swu.Unit.SeqNumber >= s.maxSeq[creator] || s.latest[creator].IsNone() {
			s.maxSeq[creator] = swu.Unit.SeqNumber
			s.latest[creator] = ObsCorrect(hash)
		}
	}
	return nil
}

// AddEvidence marks the perpetrator faulty. Existing units stay visible
// in panoramas; future units by the validator no longer count.
func (s *State) AddEvidence(ev Evidence) {
	idx := ev.Perpetrator()
	if fault, ok := s.faults[idx]; ok && fault.Evidence != nil {
		return
	}
	evCopy := ev
	s.markFault(idx, &Fault{Kind: FaultDirect, Evidence: &evCopy})
}

// MarkFaulty bans a validator without evidence, for equivocators carried
// over from previous eras.
func (s *State) MarkFaulty(idx ValidatorIndex) {
	if _, ok := s.faults[idx]; ok {
		return
	}
	s.markFault(idx, &Fault{Kind: FaultBanned})
}

func (s *State) markFault(idx ValidatorIndex, fault *Fault) {
	s.faults[idx] = fault
	if int(idx) < len(s.latest) {
		s.latest[idx] = ObsFaulty()
	}
}

// AddEndorsements absorbs an endorsement batch and recomputes the quorum.
func (s *State) AddEndorsements(ends Endorsements) {
	set, ok := s.endorsers[ends.UnitHash]
	if !ok {
		set = mapset.NewThreadUnsafeSet[ValidatorIndex]()
		s.endorsers[ends.UnitHash] = set
	}
	for _, end := range ends.Endorsements {
		set.Add(end.Endorser)
	}
	var weight uint64
	set.Each(func(idx ValidatorIndex) bool {
		weight += s.validators.Weight(idx)
		return false
	})
	// Quorum: more than half of (total + ftt), so two conflicting units
	// can never both be endorsed by honest-majority subsets.
	if 2*weight > s.validators.TotalWeight()+s.params.FTT {
		s.endorsed.Add(ends.UnitHash)
	}
}

// Sees reports whether the unit at aHash transitively cites bHash as
// correct. A unit sees itself.
func (s *State) Sees(aHash, bHash types.Hash) bool {
	if aHash == bHash {
		return true
	}
	a, ok := s.units[aHash]
	if !ok {
		return false
	}
	b, ok := s.units[bHash]
	if !ok {
		return false
	}
	return s.panoramaSees(a.wire().Panorama, b)
}

// PanoramaSees reports whether the panorama cites the unit at bHash.
func (s *State) PanoramaSees(pan Panorama, bHash types.Hash) bool {
	b, ok := s.units[bHash]
	if !ok {
		return false
	}
	return s.panoramaSees(pan, b)
}

func (s *State) panoramaSees(pan Panorama, b *storedUnit) bool {
	creator := b.wire().Creator
	obs := pan.Get(creator)
	if !obs.IsCorrect() {
		return false
	}
	// Walk the creator's own chain backwards from the cited tip.
	cursor := obs.Hash
	for {
		if cursor == b.hash {
			return true
		}
		unit, ok := s.units[cursor]
		if !ok {
			return false
		}
		if unit.wire().SeqNumber <= b.wire().SeqNumber {
			return false
		}
		prev := unit.wire().Previous()
		if prev == nil {
			return false
		}
		cursor = *prev
	}
}

func sortIndices(indices []ValidatorIndex) {
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
}
