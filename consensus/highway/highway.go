// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

// Package highway is the per-era consensus protocol: a panorama-based
// unit DAG with equivocation evidence, endorsements lifting the
// liveness-no-conflict rule, GHOST fork choice and a summit-style
// finality detector.
package highway

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"github.com/casperlabs/casper-node/crypto/blake2b256"
	"github.com/casperlabs/casper-node/types"
)

// Highway is one era's protocol instance.
type Highway struct {
	instanceID types.Hash
	validators *Validators
	state      *State
	detector   *FinalityDetector
	active     *ActiveValidator
}

func New(instanceID types.Hash, validators *Validators, params Params) *Highway {
	return &Highway{
		instanceID: instanceID,
		validators: validators,
		state:      NewState(validators, params),
		detector:   NewFinalityDetector(),
	}
}

func (hw *Highway) InstanceID() types.Hash { return hw.instanceID }

func (hw *Highway) State() *State { return hw.state }

func (hw *Highway) Validators() *Validators { return hw.validators }

// PreValidateVertex runs every check that needs no dependencies. The
// result is the only admission ticket into the synchronizer.
func (hw *Highway) PreValidateVertex(v Vertex) (PreValidatedVertex, error) {
	switch v.Kind {
	case VertexUnit:
		if err := hw.preValidateUnit(v.Unit); err != nil {
			return PreValidatedVertex{}, err
		}
	case VertexEvidence:
		if v.Evidence.Unit1.Unit.InstanceID != hw.instanceID {
			return PreValidatedVertex{}, ErrUnitInstance
		}
		if err := v.Evidence.Validate(hw.validators); err != nil {
			return PreValidatedVertex{}, err
		}
	case VertexEndorsements:
		if err := v.Endorsements.Validate(hw.instanceID, hw.validators); err != nil {
			return PreValidatedVertex{}, err
		}
	}
	return PreValidatedVertex{vertex: v}, nil
}

func (hw *Highway) preValidateUnit(swu *SignedWireUnit) error {
	wu := &swu.Unit
	if !hw.validators.Contains(wu.Creator) {
		return ErrUnitCreator
	}
	if wu.InstanceID != hw.instanceID {
		return ErrUnitInstance
	}
	pk, _ := hw.validators.PublicKey(wu.Creator)
	hash := swu.Hash()
	if !types.Verify(pk, hash.Bytes(), swu.Signature) {
		return ErrUnitSignature
	}
	if len(wu.Panorama) != hw.validators.Len() {
		return ErrUnitPanoramaLen
	}
	if wu.SeqNumber == 0 {
		if !wu.Panorama.IsAllNone() {
			return ErrUnitFirstUnit
		}
	} else if !wu.Panorama.Get(wu.Creator).IsCorrect() {
		return ErrUnitPrevious
	}
	if wu.RoundExp < hw.state.params.MinRoundExp {
		return ErrUnitRoundExp
	}
	if wu.IsProposal() && uint64(wu.Timestamp)%wu.RoundLen() != 0 {
		return ErrUnitRoundAlign
	}
	return nil
}

// MissingDependency returns the first prerequisite the state lacks, or
// nil when the vertex can be validated.
func (hw *Highway) MissingDependency(pvv PreValidatedVertex) *Dependency {
	v := pvv.Inner()
	switch v.Kind {
	case VertexUnit:
		wu := &v.Unit.Unit
		for idx, obs := range wu.Panorama {
			switch obs.Kind {
			case ObservationCorrect:
				if !hw.state.HasUnit(obs.Hash) {
					dep := UnitDependency(obs.Hash)
					return &dep
				}
			case ObservationFaulty:
				if !hw.state.IsFaulty(ValidatorIndex(idx)) {
					dep := EvidenceDependency(ValidatorIndex(idx))
					return &dep
				}
			}
		}
		for _, h := range wu.Endorsed {
			if !hw.state.HasUnit(h) {
				dep := UnitDependency(h)
				return &dep
			}
			if !hw.state.IsEndorsed(h) {
				dep := EndorsementDependency(h)
				return &dep
			}
		}
	case VertexEndorsements:
		if !hw.state.HasUnit(v.Endorsements.UnitHash) {
			dep := UnitDependency(v.Endorsements.UnitHash)
			return &dep
		}
	}
	return nil
}

// ValidateVertex runs the dependency-requiring checks and promotes the
// vertex to valid.
func (hw *Highway) ValidateVertex(pvv PreValidatedVertex) (ValidVertex, error) {
	v := pvv.Inner()
	if v.Kind == VertexUnit {
		if err := hw.validateUnit(&v.Unit.Unit); err != nil {
			return ValidVertex{}, err
		}
	}
	return ValidVertex{vertex: v}, nil
}

func (hw *Highway) validateUnit(wu *WireUnit) error {
	// The creator's own previous unit must directly precede this one.
	if prev := wu.Previous(); prev != nil {
		prevUnit, ok := hw.state.Unit(*prev)
		if !ok {
			return ErrUnitPrevious
		}
		if prevUnit.Unit.Creator != wu.Creator || prevUnit.Unit.SeqNumber+1 != wu.SeqNumber {
			return ErrUnitSeqNumber
		}
	} else if wu.SeqNumber != 0 {
		return ErrUnitSeqNumber
	}

	for idx, obs := range wu.Panorama {
		if !obs.IsCorrect() {
			continue
		}
		cited, ok := hw.state.Unit(obs.Hash)
		if !ok {
			return ErrUnitPanorama
		}
		if cited.Unit.Creator != ValidatorIndex(idx) {
			return ErrUnitPanorama
		}
		if cited.Unit.Timestamp > wu.Timestamp {
			return ErrUnitTimestamps
		}
		// Monotonicity: a unit listed correct must not be seen as faulty
		// by another cited unit.
		for _, otherHash := range wu.Panorama.CorrectHashes() {
			other, ok := hw.state.Unit(otherHash)
			if !ok {
				continue
			}
			if other.Unit.Panorama.Get(ValidatorIndex(idx)).IsFaulty() {
				return ErrUnitPanorama
			}
		}
	}

	return hw.state.checkLNC(wu.Panorama)
}

// AddValidVertex mutates the state. Newly detected equivocations and
// newly finalized blocks are returned as outcomes.
type AddOutcome struct {
	NewEvidence   *Evidence
	Finalized     []FinalizedBlock
	WeEquivocated bool
}

func (hw *Highway) AddValidVertex(vv ValidVertex) AddOutcome {
	var outcome AddOutcome
	v := vv.Inner()
	switch v.Kind {
	case VertexUnit:
		if ev := hw.state.AddUnit(*v.Unit); ev != nil {
			outcome.NewEvidence = ev
			log.WithField("validator", ev.Perpetrator()).Warn("detected equivocation")
			if hw.active != nil && ev.Perpetrator() == hw.active.Index() {
				outcome.WeEquivocated = true
				hw.DeactivateValidator()
			}
		}
	case VertexEvidence:
		hw.state.AddEvidence(*v.Evidence)
		if hw.active != nil && v.Evidence.Perpetrator() == hw.active.Index() {
			outcome.WeEquivocated = true
			hw.DeactivateValidator()
		}
	case VertexEndorsements:
		hw.state.AddEndorsements(*v.Endorsements)
	}
	outcome.Finalized = hw.detector.Run(hw.state)
	return outcome
}

// HasVertex reports whether the state already contains the vertex.
func (hw *Highway) HasVertex(v Vertex) bool {
	switch v.Kind {
	case VertexUnit:
		return hw.state.HasUnit(v.Unit.Hash())
	case VertexEvidence:
		return hw.state.HasEvidence(v.Evidence.Perpetrator())
	default:
		return hw.state.IsEndorsed(v.Endorsements.UnitHash)
	}
}

// HasDependency reports whether the dependency is already satisfied.
func (hw *Highway) HasDependency(dep Dependency) bool {
	switch dep.Kind {
	case DependencyUnit:
		return hw.state.HasUnit(dep.Hash)
	case DependencyEvidence:
		return hw.state.IsFaulty(dep.Index)
	default:
		return hw.state.IsEndorsed(dep.Hash)
	}
}

// GetDependency materializes a dependency for a requesting peer.
func (hw *Highway) GetDependency(dep Dependency) (Vertex, bool) {
	switch dep.Kind {
	case DependencyUnit:
		swu, ok := hw.state.Unit(dep.Hash)
		if !ok {
			return Vertex{}, false
		}
		return UnitVertex(*swu), true
	case DependencyEvidence:
		ev := hw.state.GetEvidence(dep.Index)
		if ev == nil {
			return Vertex{}, false
		}
		return EvidenceVertex(*ev), true
	default:
		endorsers := hw.state.Endorsers(dep.Hash)
		if len(endorsers) == 0 {
			return Vertex{}, false
		}
		// Re-serving endorsements needs the stored signatures; the state
		// keeps only the endorser set, so peers fetch from the original
		// sender. Absent here.
		return Vertex{}, false
	}
}

// MarkFaulty bans a validator known to have equivocated in an earlier
// era.
func (hw *Highway) MarkFaulty(pk types.PublicKey) {
	if idx, ok := hw.validators.Index(pk); ok {
		hw.state.MarkFaulty(idx)
	}
}

// HasEvidence reports whether evidence against the validator is stored.
func (hw *Highway) HasEvidence(pk types.PublicKey) bool {
	idx, ok := hw.validators.Index(pk)
	return ok && hw.state.HasEvidence(idx)
}

// ValidatorsWithEvidence returns all validators with stored evidence.
func (hw *Highway) ValidatorsWithEvidence() []types.PublicKey {
	var out []types.PublicKey
	for _, idx := range hw.state.FaultyValidators() {
		if hw.state.HasEvidence(idx) {
			if pk, ok := hw.validators.PublicKey(idx); ok {
				out = append(out, pk)
			}
		}
	}
	return out
}

// Leader returns the round leader for the round starting at roundID. The
// sequence is a seeded PRN over the validator weights.
func (hw *Highway) Leader(roundID types.Timestamp) ValidatorIndex {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], hw.state.params.Seed)
	binary.LittleEndian.PutUint64(buf[8:], uint64(roundID))
	digest := blake2b256.Sum(buf[:])
	r := binary.LittleEndian.Uint64(digest[:8]) % hw.validators.TotalWeight()
	for idx := 0; idx < hw.validators.Len(); idx++ {
		w := hw.validators.Weight(ValidatorIndex(idx))
		if r < w {
			return ValidatorIndex(idx)
		}
		r -= w
	}
	return 0
}
