package highway

import (
	"errors"
	"fmt"

	"github.com/casperlabs/casper-node/types"
)

// Closed vertex error sets. An invalid vertex never crashes the node: the
// peer that sent it is penalized and processing continues.
var (
	ErrUnitCreator      = errors.New("unit error: creator index out of range")
	ErrUnitInstance     = errors.New("unit error: wrong instance id")
	ErrUnitSignature    = errors.New("unit error: invalid signature")
	ErrUnitPanoramaLen  = errors.New("unit error: panorama length mismatch")
	ErrUnitFirstUnit    = errors.New("unit error: first unit must cite nothing")
	ErrUnitPrevious     = errors.New("unit error: missing own previous unit")
	ErrUnitRoundExp     = errors.New("unit error: round exponent too small")
	ErrUnitRoundAlign   = errors.New("unit error: proposal timestamp not round aligned")
	ErrUnitSeqNumber    = errors.New("unit error: wrong sequence number")
	ErrUnitPanorama     = errors.New("unit error: inconsistent panorama")
	ErrUnitTimestamps   = errors.New("unit error: cites the future")
	ErrUnitLNC          = errors.New("unit error: naively cites multiple forks")
	ErrEvidenceMismatch = errors.New("evidence error: units do not conflict")
	ErrEvidenceSig      = errors.New("evidence error: invalid signature")
	ErrEndorsementSig   = errors.New("endorsement error: invalid signature")
	ErrEndorsementIndex = errors.New("endorsement error: endorser index out of range")
)

// Evidence proves an equivocation: two signed units by the same creator
// with the same sequence number and instance id but different content.
type Evidence struct {
	Unit1 SignedWireUnit
	Unit2 SignedWireUnit
}

// Perpetrator is the equivocating validator's index.
func (ev *Evidence) Perpetrator() ValidatorIndex {
	return ev.Unit1.Unit.Creator
}

// Validate checks the conflict and both signatures.
func (ev *Evidence) Validate(validators *Validators) error {
	u1, u2 := &ev.Unit1.Unit, &ev.Unit2.Unit
	if u1.Creator != u2.Creator ||
		u1.InstanceID != u2.InstanceID ||
		u1.SeqNumber != u2.SeqNumber ||
		ev.Unit1.Hash() == ev.Unit2.Hash() {
		return ErrEvidenceMismatch
	}
	pk, ok := validators.PublicKey(u1.Creator)
	if !ok {
		return ErrUnitCreator
	}
	for _, swu := range []*SignedWireUnit{&ev.Unit1, &ev.Unit2} {
		hash := swu.Hash()
		if !types.Verify(pk, hash.Bytes(), swu.Signature) {
			return ErrEvidenceSig
		}
	}
	return nil
}

func (ev *Evidence) MarshalBytes(e *types.Encoder) {
	ev.Unit1.MarshalBytes(e)
	ev.Unit2.MarshalBytes(e)
}

func (ev *Evidence) UnmarshalBytes(d *types.Decoder) error {
	if err := ev.Unit1.UnmarshalBytes(d); err != nil {
		return err
	}
	return ev.Unit2.UnmarshalBytes(d)
}

// Endorsement is one validator's signed claim that a unit is a
// fork-choice-confirming citation. Enough endorsement weight lifts the
// naive-citation restriction of the LNC rule for that unit.
type Endorsement struct {
	Endorser  ValidatorIndex
	Signature types.Signature
}

// EndorsementData is the byte string an endorsement signs.
func EndorsementData(unitHash, instanceID types.Hash) []byte {
	e := types.NewEncoder()
	unitHash.MarshalBytes(e)
	instanceID.MarshalBytes(e)
	return e.Bytes()
}

// Endorsements is the batch of endorsements for one unit.
type Endorsements struct {
	UnitHash     types.Hash
	Endorsements []Endorsement
}

// Validate checks every signature against the era's instance id.
func (ends *Endorsements) Validate(instanceID types.Hash, validators *Validators) error {
	if len(ends.Endorsements) == 0 {
		return ErrEndorsementSig
	}
	data := EndorsementData(ends.UnitHash, instanceID)
	for _, end := range ends.Endorsements {
		pk, ok := validators.PublicKey(end.Endorser)
		if !ok {
			return ErrEndorsementIndex
		}
		if !types.Verify(pk, data, end.Signature) {
			return ErrEndorsementSig
		}
	}
	return nil
}

func (ends *Endorsements) MarshalBytes(e *types.Encoder) {
	ends.UnitHash.MarshalBytes(e)
	e.WriteU32(uint32(len(ends.Endorsements)))
	for _, end := range ends.Endorsements {
		e.WriteU32(uint32(end.Endorser))
		end.Signature.MarshalBytes(e)
	}
}

func (ends *Endorsements) UnmarshalBytes(d *types.Decoder) error {
	if err := ends.UnitHash.UnmarshalBytes(d); err != nil {
		return err
	}
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	ends.Endorsements = make([]Endorsement, count)
	for i := range ends.Endorsements {
		idx, err := d.ReadU32()
		if err != nil {
			return err
		}
		ends.Endorsements[i].Endorser = ValidatorIndex(idx)
		if err := ends.Endorsements[i].Signature.UnmarshalBytes(d); err != nil {
			return err
		}
	}
	return nil
}

// VertexKind discriminates the vertex union.
type VertexKind uint8

const (
	VertexUnit VertexKind = iota
	VertexEvidence
	VertexEndorsements
)

// Vertex is anything the protocol state can absorb: a unit, evidence or
// an endorsement batch.
type Vertex struct {
	Kind         VertexKind
	Unit         *SignedWireUnit
	Evidence     *Evidence
	Endorsements *Endorsements
}

func UnitVertex(swu SignedWireUnit) Vertex {
	return Vertex{Kind: VertexUnit, Unit: &swu}
}

func EvidenceVertex(ev Evidence) Vertex {
	return Vertex{Kind: VertexEvidence, Evidence: &ev}
}

func EndorsementsVertex(ends Endorsements) Vertex {
	return Vertex{Kind: VertexEndorsements, Endorsements: &ends}
}

// ID returns a hash identifying the vertex for dedup purposes.
func (v Vertex) ID() types.Hash {
	switch v.Kind {
	case VertexUnit:
		return v.Unit.Hash()
	case VertexEvidence:
		return types.HashBytes(types.Marshal(v.Evidence))
	default:
		return types.HashBytes(types.Marshal(v.Endorsements))
	}
}

// Timestamp returns the vertex's creation time; only units carry one.
func (v Vertex) Timestamp() (types.Timestamp, bool) {
	if v.Kind == VertexUnit {
		return v.Unit.Unit.Timestamp, true
	}
	return 0, false
}

// IsProposal reports whether the vertex is a value-carrying unit.
func (v Vertex) IsProposal() bool {
	return v.Kind == VertexUnit && v.Unit.Unit.IsProposal()
}

// Value returns the proposed value of a proposal vertex.
func (v Vertex) Value() *types.Hash {
	if v.Kind == VertexUnit {
		return v.Unit.Unit.Value
	}
	return nil
}

func (v Vertex) String() string {
	switch v.Kind {
	case VertexUnit:
		return fmt.Sprintf("unit %s", v.Unit.Hash())
	case VertexEvidence:
		return fmt.Sprintf("evidence against validator %d", v.Evidence.Perpetrator())
	default:
		return fmt.Sprintf("endorsements of %s", v.Endorsements.UnitHash)
	}
}

func (v Vertex) MarshalBytes(e *types.Encoder) {
	e.WriteU8(uint8(v.Kind))
	switch v.Kind {
	case VertexUnit:
		v.Unit.MarshalBytes(e)
	case VertexEvidence:
		v.Evidence.MarshalBytes(e)
	default:
		v.Endorsements.MarshalBytes(e)
	}
}

func (v *Vertex) UnmarshalBytes(d *types.Decoder) error {
	kind, err := d.ReadU8()
	if err != nil {
		return err
	}
	*v = Vertex{Kind: VertexKind(kind)}
	switch v.Kind {
	case VertexUnit:
		v.Unit = new(SignedWireUnit)
		return v.Unit.UnmarshalBytes(d)
	case VertexEvidence:
		v.Evidence = new(Evidence)
		return v.Evidence.UnmarshalBytes(d)
	case VertexEndorsements:
		v.Endorsements = new(Endorsements)
		return v.Endorsements.UnmarshalBytes(d)
	default:
		return types.ErrFormatting
	}
}

// PreValidatedVertex is a vertex that passed the checks requiring no
// dependencies. Only the protocol instance mints these.
type PreValidatedVertex struct {
	vertex Vertex
}

func (pvv PreValidatedVertex) Inner() Vertex { return pvv.vertex }

// ValidVertex passed full validation and may be added to the state.
type ValidVertex struct {
	vertex Vertex
}

func (vv ValidVertex) Inner() Vertex { return vv.vertex }

// DependencyKind tags what a pending vertex is waiting for.
type DependencyKind uint8

const (
	DependencyUnit DependencyKind = iota
	DependencyEvidence
	DependencyEndorsement
)

// Dependency identifies a missing prerequisite of a vertex.
type Dependency struct {
	Kind  DependencyKind
	Hash  types.Hash
	Index ValidatorIndex
}

func UnitDependency(h types.Hash) Dependency {
	return Dependency{Kind: DependencyUnit, Hash: h}
}

func EvidenceDependency(idx ValidatorIndex) Dependency {
	return Dependency{Kind: DependencyEvidence, Index: idx}
}

func EndorsementDependency(h types.Hash) Dependency {
	return Dependency{Kind: DependencyEndorsement, Hash: h}
}

func (dep Dependency) String() string {
	switch dep.Kind {
	case DependencyUnit:
		return fmt.Sprintf("unit %s", dep.Hash)
	case DependencyEvidence:
		return fmt.Sprintf("evidence for validator %d", dep.Index)
	default:
		return fmt.Sprintf("endorsement of %s", dep.Hash)
	}
}

func (dep Dependency) MarshalBytes(e *types.Encoder) {
	e.WriteU8(uint8(dep.Kind))
	dep.Hash.MarshalBytes(e)
	e.WriteU32(uint32(dep.Index))
}

func (dep *Dependency) UnmarshalBytes(d *types.Decoder) error {
	kind, err := d.ReadU8()
	if err != nil {
		return err
	}
	if kind > uint8(DependencyEndorsement) {
		return types.ErrFormatting
	}
	dep.Kind = DependencyKind(kind)
	if err := dep.Hash.UnmarshalBytes(d); err != nil {
		return err
	}
	idx, err := d.ReadU32()
	if err != nil {
		return err
	}
	dep.Index = ValidatorIndex(idx)
	return nil
}
