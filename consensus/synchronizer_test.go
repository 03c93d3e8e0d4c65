package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casperlabs/casper-node/consensus/highway"
	"github.com/casperlabs/casper-node/crypto/ed25519"
	"github.com/casperlabs/casper-node/types"
)

type syncFixture struct {
	t        *testing.T
	hw       *highway.Highway
	keypairs []*ed25519.Keypair
	keys     []types.PublicKey
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	weights := map[types.PublicKey]uint64{}
	f := &syncFixture{t: t}
	for i := 0; i < 3; i++ {
		seed := [32]byte{byte(i + 1)}
		keypair, err := ed25519.NewKeypairFromSeed(seed[:])
		require.NoError(t, err)
		pk := types.NewPublicKey(keypair.PublicKeyBytes())
		weights[pk] = 10
		f.keypairs = append(f.keypairs, keypair)
		f.keys = append(f.keys, pk)
	}
	validators := highway.NewValidators(weights)
	f.hw = highway.New(types.HashBytes([]byte("sync test")), validators, highway.Params{
		MinRoundExp: 4,
		FTT:         10,
	})
	return f
}

// chain creates n units by validator 0, each citing the previous one.
func (f *syncFixture) chain(n int) []highway.SignedWireUnit {
	f.t.Helper()
	validators := f.hw.Validators()
	idx, ok := validators.Index(f.keys[0])
	require.True(f.t, ok)
	keypair := f.keypairs[0]

	var out []highway.SignedWireUnit
	pan := highway.NewPanorama(validators.Len())
	for i := 0; i < n; i++ {
		wu := highway.WireUnit{
			Creator:    idx,
			InstanceID: f.hw.InstanceID(),
			Panorama:   pan.Clone(),
			SeqNumber:  uint64(i),
			Timestamp:  types.Timestamp(i * 16),
			RoundExp:   4,
		}
		hash := wu.Hash()
		swu := highway.SignedWireUnit{Unit: wu, Signature: types.NewSignature(keypair.Sign(hash.Bytes()))}
		out = append(out, swu)
		pan[idx] = highway.ObsCorrect(hash)
	}
	return out
}

func (f *syncFixture) pvv(swu highway.SignedWireUnit) highway.PreValidatedVertex {
	f.t.Helper()
	pvv, err := f.hw.PreValidateVertex(highway.UnitVertex(swu))
	require.NoError(f.t, err)
	return pvv
}

func TestScheduleAddVertexQueuesAndDefers(t *testing.T) {
	f := newSyncFixture(t)
	sync := NewSynchronizer(0, 0x20)
	units := f.chain(1)

	outcomes := sync.ScheduleAddVertex("peer0", f.pvv(units[0]), 100)
	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomeQueueAction, outcomes[0].Kind)

	// A vertex from the future waits in the future queue.
	future := f.chain(1)[0]
	future.Unit.Timestamp = 1000
	hash := future.Unit.Hash()
	future.Signature = types.NewSignature(f.keypairs[0].Sign(hash.Bytes()))
	assert.Empty(t, sync.ScheduleAddVertex("peer0", f.pvv(future), 100))

	assert.Empty(t, sync.AddPastDueStoredVertices(500))
	outcomes = sync.AddPastDueStoredVertices(1000)
	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomeQueueAction, outcomes[0].Kind)
}

func TestPopRequestsMissingDependencyFromSender(t *testing.T) {
	f := newSyncFixture(t)
	sync := NewSynchronizer(3, 0x20)
	units := f.chain(2)

	sync.ScheduleAddVertex("peer0", f.pvv(units[1]), 0x20)
	pv, outcomes := sync.PopVertexToAdd(f.hw, nil)
	assert.Nil(t, pv)
	require.Len(t, outcomes, 1)
	require.Equal(t, OutcomeCreatedTargetedMessage, outcomes[0].Kind)
	assert.Equal(t, NodeID("peer0"), outcomes[0].Peer)

	var msg Message
	require.NoError(t, types.Unmarshal(outcomes[0].Payload, &msg))
	assert.Equal(t, MessageRequestDependency, msg.Kind)
	assert.Equal(t, types.EraID(3), msg.EraID)
	assert.Equal(t, highway.UnitDependency(units[0].Hash()), *msg.Dependency)
}

// At most one dependency request per hash: a second vertex waiting on the
// same missing unit does not trigger another message, and neither does a
// vertex whose dependency is already scheduled here.
func TestNoRedundantDependencyRequests(t *testing.T) {
	f := newSyncFixture(t)
	sync := NewSynchronizer(0, 0x20)
	units := f.chain(3)

	// The same vertex, units[1], from two peers; both depend on units[0].
	sync.ScheduleAddVertex("peer0", f.pvv(units[1]), 0x20)
	sync.ScheduleAddVertex("peer1", f.pvv(units[1]), 0x20)

	_, outcomes := sync.PopVertexToAdd(f.hw, nil)
	requests := 0
	for _, outcome := range outcomes {
		if outcome.Kind == OutcomeCreatedTargetedMessage {
			requests++
		}
	}
	assert.Equal(t, 1, requests)

	// The second waiter on the same dependency stays silent.
	_, outcomes = sync.PopVertexToAdd(f.hw, nil)
	for _, outcome := range outcomes {
		assert.NotEqual(t, OutcomeCreatedTargetedMessage, outcome.Kind)
	}

	// units[2] depends on units[1], which is already pending here: no
	// request for it either.
	sync.ScheduleAddVertex("peer0", f.pvv(units[2]), 0x20)
	_, outcomes = sync.PopVertexToAdd(f.hw, nil)
	for _, outcome := range outcomes {
		assert.NotEqual(t, OutcomeCreatedTargetedMessage, outcome.Kind)
	}
}

func TestRemoveSatisfiedDeps(t *testing.T) {
	f := newSyncFixture(t)
	sync := NewSynchronizer(0, 0x20)
	units := f.chain(2)

	sync.ScheduleAddVertex("peer0", f.pvv(units[1]), 0x20)
	pv, _ := sync.PopVertexToAdd(f.hw, nil)
	require.Nil(t, pv)

	// Satisfy the dependency in the protocol state.
	vv, err := f.hw.ValidateVertex(f.pvv(units[0]))
	require.NoError(t, err)
	f.hw.AddValidVertex(vv)

	outcomes := sync.RemoveSatisfiedDeps(f.hw)
	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomeQueueAction, outcomes[0].Kind)

	pv, outcomes = sync.PopVertexToAdd(f.hw, nil)
	require.NotNil(t, pv)
	assert.Empty(t, outcomes)
	assert.Equal(t, units[1].Hash(), pv.PVV.Inner().Unit.Hash())
}

// Purging evicts vertices that arrived before now - pending timeout and
// keeps those that arrived at or after that cutoff.
func TestPurgeVertices(t *testing.T) {
	f := newSyncFixture(t)
	sync := NewSynchronizer(0, 0x20)
	units := f.chain(3)
	c2, c1, c0 := units[0], units[1], units[2]

	// All three land in the main queue: c2 at 0x20, c1 at 0x21, c0 at
	// 0x23.
	sync.ScheduleAddVertex("peer0", f.pvv(c2), 0x20)
	sync.ScheduleAddVertex("peer0", f.pvv(c1), 0x21)
	sync.ScheduleAddVertex("peer0", f.pvv(c0), 0x23)

	// Pop c2 and put it back at the head of the main queue.
	popped, _ := sync.PopVertexToAdd(f.hw, nil)
	require.NotNil(t, popped) // c2 has no dependencies
	sync.mainQueue = append([]PendingVertex{*popped}, sync.mainQueue...)

	sync.PurgeVertices(0x41)

	// The cutoff is 0x41 - 0x20 = 0x21: c2 (received 0x20) expired; c1
	// (received 0x21) survives.
	remaining := map[types.Hash]bool{}
	for _, pv := range sync.allPending() {
		remaining[pv.PVV.Inner().Unit.Hash()] = true
	}
	assert.False(t, remaining[c2.Hash()])
	assert.True(t, remaining[c1.Hash()])
}

func TestEraSupervisorCreatesAndPrunesEras(t *testing.T) {
	f := newSyncFixture(t)
	weights := map[types.PublicKey]types.Motes{}
	for _, pk := range f.keys {
		weights[pk] = types.NewMotes(10)
	}

	cfg := Config{
		ChainName:                "casper-test",
		BondedEras:               2,
		AuctionDelay:             1,
		FinalityThresholdPercent: 10,
		MinimumRoundExponent:     4,
		MinimumEraHeight:         1,
		EraDuration:              1 << 10,
		PendingVertexTimeout:     1 << 16,
	}
	es, _ := New(cfg, weights, nil, 0)
	require.Equal(t, types.EraID(0), es.CurrentEra())

	makeSwitchBlock := func(era types.EraID, height uint64) *types.Block {
		body := types.BlockBody{Proposer: f.keys[0]}
		header := types.BlockHeader{
			BodyHash:        body.Hash(),
			AccumulatedSeed: types.HashBytes([]byte{byte(era)}),
			EraEnd: &types.EraEnd{
				Report:                  types.EraReport{Rewards: map[types.PublicKey]uint64{}},
				NextEraValidatorWeights: weights,
			},
			EraID:  era,
			Height: height,
		}
		return types.NewBlock(header, body)
	}

	for era := types.EraID(0); era < 7; era++ {
		es.HandleSwitchBlock(makeSwitchBlock(era, uint64(era)), 0)
	}
	assert.Equal(t, types.EraID(7), es.CurrentEra())

	// Eras further back than 2*BondedEras are discarded.
	_, ok := es.Era(2)
	assert.False(t, ok)
	_, ok = es.Era(3)
	assert.True(t, ok)

	// Eras within BondedEras of the current accept only evidence.
	assert.True(t, es.evidenceOnly(5))
	assert.True(t, es.evidenceOnly(6))
	assert.False(t, es.evidenceOnly(7))
	assert.False(t, es.evidenceOnly(4))
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	f := newSyncFixture(t)
	weights := map[types.PublicKey]types.Motes{}
	for _, pk := range f.keys {
		weights[pk] = types.NewMotes(10)
	}
	cfg := Config{
		ChainName:                "casper-test",
		BondedEras:               2,
		FinalityThresholdPercent: 10,
		MinimumRoundExponent:     4,
	}
	es, _ := New(cfg, weights, nil, 0)

	outcomes := es.HandleMessage("peer0", []byte{0xff, 0xfe}, 0)
	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomeInvalidIncomingMessage, outcomes[0].Kind)
	assert.Equal(t, NodeID("peer0"), outcomes[0].Peer)
}
