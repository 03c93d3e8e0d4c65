package highway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casperlabs/casper-node/crypto/ed25519"
	"github.com/casperlabs/casper-node/types"
)

// Test fixture: Alice, Bob and Carol with weights 3, 4 and 5.

type testValidator struct {
	keypair *ed25519.Keypair
	pk      types.PublicKey
	idx     ValidatorIndex
}

type testChain struct {
	t     *testing.T
	hw    *Highway
	byKey map[string]*testValidator
}

func newTestChain(t *testing.T) *testChain {
	t.Helper()
	names := []string{"alice", "bob", "carol"}
	weights := map[types.PublicKey]uint64{}
	byKey := map[string]*testValidator{}
	for i, name := range names {
		seed := [32]byte{byte(i + 1)}
		keypair, err := ed25519.NewKeypairFromSeed(seed[:])
		require.NoError(t, err)
		pk := types.NewPublicKey(keypair.PublicKeyBytes())
		weights[pk] = uint64(i + 3)
		byKey[name] = &testValidator{keypair: keypair, pk: pk}
	}

	instanceID := types.HashBytes([]byte("test era"))
	validators := NewValidators(weights)
	hw := New(instanceID, validators, Params{
		MinRoundExp:  4,
		MinEraHeight: 2,
		EraDuration:  types.TimeDiff(1 << 20),
		FTT:          validators.TotalWeight() / 3,
	})
	for _, v := range byKey {
		idx, ok := validators.Index(v.pk)
		require.True(t, ok)
		v.idx = idx
	}
	return &testChain{t: t, hw: hw, byKey: byKey}
}

func (tc *testChain) validator(name string) *testValidator {
	return tc.byKey[name]
}

// unit signs a wire unit by the named validator.
func (tc *testChain) unit(name string, seq uint64, timestamp types.Timestamp, value *types.Hash, pan Panorama) SignedWireUnit {
	tc.t.Helper()
	v := tc.validator(name)
	if pan == nil {
		pan = NewPanorama(tc.hw.Validators().Len())
	}
	wu := WireUnit{
		Creator:    v.idx,
		InstanceID: tc.hw.InstanceID(),
		Panorama:   pan,
		Value:      value,
		SeqNumber:  seq,
		Timestamp:  timestamp,
		RoundExp:   4,
	}
	hash := wu.Hash()
	return SignedWireUnit{Unit: wu, Signature: types.NewSignature(v.keypair.Sign(hash.Bytes()))}
}

// add pushes a unit through the full validation pipeline.
func (tc *testChain) add(swu SignedWireUnit) AddOutcome {
	tc.t.Helper()
	pvv, err := tc.hw.PreValidateVertex(UnitVertex(swu))
	require.NoError(tc.t, err)
	require.Nil(tc.t, tc.hw.MissingDependency(pvv))
	vv, err := tc.hw.ValidateVertex(pvv)
	require.NoError(tc.t, err)
	return tc.hw.AddValidVertex(vv)
}

func TestPreValidateRejectsBadUnits(t *testing.T) {
	tc := newTestChain(t)

	// Creator out of range.
	bad := tc.unit("alice", 0, 16, nil, nil)
	bad.Unit.Creator = 99
	_, err := tc.hw.PreValidateVertex(UnitVertex(bad))
	assert.ErrorIs(t, err, ErrUnitCreator)

	// Wrong instance id.
	bad = tc.unit("alice", 0, 16, nil, nil)
	bad.Unit.InstanceID = types.Hash{9}
	_, err = tc.hw.PreValidateVertex(UnitVertex(bad))
	assert.ErrorIs(t, err, ErrUnitInstance)

	// Tampered content breaks the signature.
	bad = tc.unit("alice", 0, 16, nil, nil)
	bad.Unit.Timestamp++
	_, err = tc.hw.PreValidateVertex(UnitVertex(bad))
	assert.ErrorIs(t, err, ErrUnitSignature)

	// A first unit must cite nothing.
	pan := NewPanorama(3)
	pan[tc.validator("bob").idx] = ObsCorrect(types.Hash{1})
	bad = tc.unit("alice", 0, 16, nil, pan)
	_, err = tc.hw.PreValidateVertex(UnitVertex(bad))
	assert.ErrorIs(t, err, ErrUnitFirstUnit)

	// Round exponent below the era minimum.
	bad = tc.unit("alice", 0, 16, nil, nil)
	bad.Unit.RoundExp = 1
	hash := bad.Unit.Hash()
	bad.Signature = types.NewSignature(tc.validator("alice").keypair.Sign(hash.Bytes()))
	_, err = tc.hw.PreValidateVertex(UnitVertex(bad))
	assert.ErrorIs(t, err, ErrUnitRoundExp)

	// Proposals must be round aligned.
	value := types.Hash{7}
	bad = tc.unit("alice", 0, 17, &value, nil)
	_, err = tc.hw.PreValidateVertex(UnitVertex(bad))
	assert.ErrorIs(t, err, ErrUnitRoundAlign)
}

func TestMissingDependencyAndResolution(t *testing.T) {
	tc := newTestChain(t)
	alice := tc.validator("alice")

	unit0 := tc.unit("alice", 0, 16, nil, nil)

	pan := NewPanorama(3)
	pan[alice.idx] = ObsCorrect(unit0.Hash())
	unit1 := tc.unit("alice", 1, 32, nil, pan)

	pvv, err := tc.hw.PreValidateVertex(UnitVertex(unit1))
	require.NoError(t, err)
	dep := tc.hw.MissingDependency(pvv)
	require.NotNil(t, dep)
	assert.Equal(t, UnitDependency(unit0.Hash()), *dep)

	tc.add(unit0)
	assert.Nil(t, tc.hw.MissingDependency(pvv))
}

// Two units by the same creator at the same sequence number with
// different content are an equivocation; the state emits evidence and
// stops counting the creator.
func TestEquivocationDetection(t *testing.T) {
	tc := newTestChain(t)
	carol := tc.validator("carol")

	value := types.Hash{1}
	u1 := tc.unit("carol", 0, 16, &value, nil)
	u2 := tc.unit("carol", 0, 32, nil, nil)
	require.NotEqual(t, u1.Hash(), u2.Hash())

	tc.add(u1)
	outcome := tc.add(u2)
	require.NotNil(t, outcome.NewEvidence)
	assert.Equal(t, carol.idx, outcome.NewEvidence.Perpetrator())
	assert.True(t, tc.hw.HasEvidence(carol.pk))

	// Carol no longer occupies a correct slot in the panorama.
	assert.True(t, tc.hw.State().Panorama().Get(carol.idx).IsFaulty())
}

func TestEvidenceVertexValidation(t *testing.T) {
	tc := newTestChain(t)

	value := types.Hash{1}
	u1 := tc.unit("carol", 0, 16, &value, nil)
	u2 := tc.unit("carol", 0, 32, nil, nil)

	evidence := Evidence{Unit1: u1, Unit2: u2}
	pvv, err := tc.hw.PreValidateVertex(EvidenceVertex(evidence))
	require.NoError(t, err)
	vv, err := tc.hw.ValidateVertex(pvv)
	require.NoError(t, err)
	tc.hw.AddValidVertex(vv)
	assert.True(t, tc.hw.HasEvidence(tc.validator("carol").pk))

	// Evidence must actually conflict.
	same := Evidence{Unit1: u1, Unit2: u1}
	_, err = tc.hw.PreValidateVertex(EvidenceVertex(same))
	assert.ErrorIs(t, err, ErrEvidenceMismatch)

	// Units by different creators are not evidence.
	other := tc.unit("alice", 0, 16, nil, nil)
	mixed := Evidence{Unit1: u1, Unit2: other}
	_, err = tc.hw.PreValidateVertex(EvidenceVertex(mixed))
	assert.ErrorIs(t, err, ErrEvidenceMismatch)
}

// A unit citing two distinct unendorsed forks of a known equivocator
// violates the liveness-no-conflict rule; once endorsements cover the
// excess fork it is accepted.
func TestLNC(t *testing.T) {
	tc := newTestChain(t)
	alice := tc.validator("alice")
	bob := tc.validator("bob")
	carol := tc.validator("carol")

	// Carol equivocates with two seq-0 forks.
	value := types.Hash{1}
	fork1 := tc.unit("carol", 0, 16, &value, nil)
	fork2 := tc.unit("carol", 0, 32, nil, nil)
	tc.add(fork1)
	tc.add(fork2)

	// Alice's second unit cites fork1, Bob's cites fork2; each still saw
	// Carol as correct from its own perspective at the time.
	alice0 := tc.unit("alice", 0, 16, nil, nil)
	tc.add(alice0)
	panAlice := NewPanorama(3)
	panAlice[alice.idx] = ObsCorrect(alice0.Hash())
	panAlice[carol.idx] = ObsCorrect(fork1.Hash())
	aliceUnit := tc.unit("alice", 1, 48, nil, panAlice)
	tc.add(aliceUnit)

	bob0 := tc.unit("bob", 0, 16, nil, nil)
	tc.add(bob0)
	panBob := NewPanorama(3)
	panBob[bob.idx] = ObsCorrect(bob0.Hash())
	panBob[carol.idx] = ObsCorrect(fork2.Hash())
	bobUnit := tc.unit("bob", 1, 48, nil, panBob)
	tc.add(bobUnit)

	// Bob's next unit sees both Alice and Bob, and marks Carol faulty:
	// its past now cites two naive forks.
	panBad := NewPanorama(3)
	panBad[alice.idx] = ObsCorrect(aliceUnit.Hash())
	panBad[bob.idx] = ObsCorrect(bobUnit.Hash())
	panBad[carol.idx] = ObsFaulty()
	badUnit := tc.unit("bob", 2, 64, nil, panBad)

	pvv, err := tc.hw.PreValidateVertex(UnitVertex(badUnit))
	require.NoError(t, err)
	_, err = tc.hw.ValidateVertex(pvv)
	assert.ErrorIs(t, err, ErrUnitLNC)

	// Endorse Alice's unit: the fork it cites is no longer naive.
	data := EndorsementData(aliceUnit.Hash(), tc.hw.InstanceID())
	ends := Endorsements{
		UnitHash: aliceUnit.Hash(),
		Endorsements: []Endorsement{
			{Endorser: alice.idx, Signature: types.NewSignature(alice.keypair.Sign(data))},
			{Endorser: bob.idx, Signature: types.NewSignature(bob.keypair.Sign(data))},
			{Endorser: carol.idx, Signature: types.NewSignature(carol.keypair.Sign(data))},
		},
	}
	endPvv, err := tc.hw.PreValidateVertex(EndorsementsVertex(ends))
	require.NoError(t, err)
	endVv, err := tc.hw.ValidateVertex(endPvv)
	require.NoError(t, err)
	tc.hw.AddValidVertex(endVv)
	require.True(t, tc.hw.State().IsEndorsed(aliceUnit.Hash()))

	_, err = tc.hw.ValidateVertex(pvv)
	assert.NoError(t, err)
}

func TestForkChoicePicksHeaviestSubtree(t *testing.T) {
	tc := newTestChain(t)
	alice := tc.validator("alice")
	carol := tc.validator("carol")

	// Two competing proposals at the root.
	valueA := types.Hash{0xa}
	valueC := types.Hash{0xc}
	proposalA := tc.unit("alice", 0, 16, &valueA, nil)
	proposalC := tc.unit("carol", 0, 16, &valueC, nil)
	tc.add(proposalA)
	tc.add(proposalC)

	// Bob (weight 4) confirms Carol's proposal; Alice (weight 3) only
	// has her own.
	bob := tc.validator("bob")
	bob0 := tc.unit("bob", 0, 16, nil, nil)
	tc.add(bob0)
	panBob := NewPanorama(3)
	panBob[bob.idx] = ObsCorrect(bob0.Hash())
	panBob[carol.idx] = ObsCorrect(proposalC.Hash())
	bobUnit := tc.unit("bob", 1, 32, nil, panBob)
	tc.add(bobUnit)

	pan := NewPanorama(3)
	pan[alice.idx] = ObsCorrect(proposalA.Hash())
	pan[bob.idx] = ObsCorrect(bobUnit.Hash())
	pan[carol.idx] = ObsCorrect(proposalC.Hash())

	// Carol's subtree carries weight 9 (bob + carol) vs Alice's 3.
	assert.Equal(t, proposalC.Hash(), tc.hw.State().ForkChoice(pan))
}

func TestLeaderIsDeterministicAndWeighted(t *testing.T) {
	tc := newTestChain(t)
	seen := map[ValidatorIndex]bool{}
	for round := 0; round < 64; round++ {
		roundID := types.Timestamp(round << 4)
		leader := tc.hw.Leader(roundID)
		assert.Equal(t, leader, tc.hw.Leader(roundID))
		assert.True(t, tc.hw.Validators().Contains(leader))
		seen[leader] = true
	}
	// With 64 rounds every validator should lead at least once.
	assert.Len(t, seen, 3)
}

func TestActiveValidatorProposesWhenLeading(t *testing.T) {
	tc := newTestChain(t)
	alice := tc.validator("alice")

	effects := tc.hw.ActivateValidator(alice.pk, alice.keypair, 4, 0)
	require.Len(t, effects, 1)
	require.Equal(t, EffectScheduleTimer, effects[0].Kind)

	// Find a round Alice leads and trigger its start.
	var roundID types.Timestamp
	for round := 0; ; round++ {
		roundID = types.Timestamp(round << 4)
		if tc.hw.Leader(roundID) == alice.idx {
			break
		}
	}
	effects = tc.hw.HandleTimer(roundID)
	var requested bool
	for _, effect := range effects {
		if effect.Kind == EffectRequestNewBlock {
			requested = true
		}
	}
	require.True(t, requested)

	value := types.Hash{0x42}
	effects = tc.hw.Propose(value, roundID)
	require.Len(t, effects, 1)
	require.Equal(t, EffectNewVertex, effects[0].Kind)
	vertex := effects[0].Vertex.Inner()
	require.True(t, vertex.IsProposal())
	assert.Equal(t, value, *vertex.Value())

	outcome := tc.hw.AddValidVertex(*effects[0].Vertex)
	assert.Nil(t, outcome.NewEvidence)
	assert.True(t, tc.hw.State().HasUnit(vertex.Unit.Hash()))
}

func TestWireUnitRoundTrip(t *testing.T) {
	tc := newTestChain(t)
	value := types.Hash{5}
	pan := NewPanorama(3)
	pan[1] = ObsFaulty()
	swu := tc.unit("bob", 0, 16, &value, pan)
	swu.Unit.Endorsed = []types.Hash{{9}}
	hash := swu.Unit.Hash()
	swu.Signature = types.NewSignature(tc.validator("bob").keypair.Sign(hash.Bytes()))

	var decoded SignedWireUnit
	require.NoError(t, types.Unmarshal(types.Marshal(&swu), &decoded))
	assert.Equal(t, swu.Hash(), decoded.Hash())
	assert.Equal(t, swu.Unit.Endorsed, decoded.Unit.Endorsed)

	vertex := UnitVertex(swu)
	var decodedVertex Vertex
	require.NoError(t, types.Unmarshal(types.Marshal(vertex), &decodedVertex))
	assert.Equal(t, vertex.ID(), decodedVertex.ID())
}
