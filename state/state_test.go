package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casperlabs/casper-node/types"
)

func TestTrackingCopyReadAbsent(t *testing.T) {
	gs := NewInMemoryGlobalState()
	reader, err := gs.Checkout(gs.EmptyRoot())
	require.NoError(t, err)
	tc := NewTrackingCopy(reader)

	value, err := tc.Read(types.AccountKey(types.AccountHash{1}))
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestTrackingCopyWriteThenRead(t *testing.T) {
	gs := NewInMemoryGlobalState()
	reader, _ := gs.Checkout(gs.EmptyRoot())
	tc := NewTrackingCopy(reader)

	key := types.URefKey(types.NewURef([32]byte{1}, types.AccessReadAddWrite))
	tc.Write(key, types.StoredCLValue(types.CLValueU64(41)))
	value, err := tc.Read(key)
	require.NoError(t, err)
	require.NotNil(t, value)
	clv, ok := value.AsCLValue()
	require.True(t, ok)
	v, err := clv.ToU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(41), v)
}

func TestAddCombinesCommutatively(t *testing.T) {
	gs := NewInMemoryGlobalState()
	reader, _ := gs.Checkout(gs.EmptyRoot())
	tc := NewTrackingCopy(reader)

	uref := types.NewURef([32]byte{2}, types.AccessReadAddWrite)
	WriteBalance(tc, uref, types.NewMotes(10))
	require.NoError(t, AddToBalance(tc, uref, types.NewMotes(5)))
	require.NoError(t, AddToBalance(tc, uref, types.NewMotes(7)))

	balance, found, err := ReadBalance(tc, uref)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "22", balance.String())

	// The journal collapses to a single write transform for the key.
	effect := tc.Effect()
	transform := effect.Transforms[types.BalanceKey(uref).Normalize()]
	assert.Equal(t, TransformWrite, transform.Kind)
}

func TestAddTypeMismatch(t *testing.T) {
	gs := NewInMemoryGlobalState()
	reader, _ := gs.Checkout(gs.EmptyRoot())
	tc := NewTrackingCopy(reader)

	key := types.URefKey(types.NewURef([32]byte{3}, types.AccessReadAddWrite))
	tc.Write(key, types.StoredCLValue(types.CLValueString("not a number")))
	err := tc.Add(key, AddU512Transform(types.NewMotes(1)))
	var mismatch *TypeMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestEffectIsIdempotentAndOrdered(t *testing.T) {
	gs := NewInMemoryGlobalState()
	reader, _ := gs.Checkout(gs.EmptyRoot())
	tc := NewTrackingCopy(reader)

	keyA := types.URefKey(types.NewURef([32]byte{0xa}, types.AccessReadAddWrite))
	keyB := types.URefKey(types.NewURef([32]byte{0xb}, types.AccessReadAddWrite))
	tc.Write(keyA, types.StoredCLValue(types.CLValueU64(1)))
	tc.Write(keyB, types.StoredCLValue(types.CLValueU64(2)))
	_, err := tc.Read(keyA)
	require.NoError(t, err)

	first := tc.Effect()
	second := tc.Effect()
	assert.Equal(t, first.Keys, second.Keys)
	assert.Equal(t, len(first.Operations), len(second.Operations))

	require.Len(t, first.Operations, 3)
	assert.Equal(t, OpWrite, first.Operations[0].Op)
	assert.Equal(t, OpWrite, first.Operations[1].Op)
	assert.Equal(t, OpRead, first.Operations[2].Op)
	assert.Equal(t, []types.Key{keyA.Normalize(), keyB.Normalize()}, first.Keys)
}

func TestCommitDeterminism(t *testing.T) {
	run := func() types.Hash {
		gs := NewInMemoryGlobalState()
		reader, _ := gs.Checkout(gs.EmptyRoot())
		tc := NewTrackingCopy(reader)
		gen := NewAddressGenerator(types.Hash{1}, PhaseSystem)
		for i := 0; i < 5; i++ {
			uref := gen.NewURef(types.AccessReadAddWrite)
			WriteBalance(tc, uref, types.NewMotes(uint64(i)*100))
		}
		root, err := gs.Commit(gs.EmptyRoot(), tc.Effect())
		require.NoError(t, err)
		return root
	}
	assert.Equal(t, run(), run())
}

func TestCommitThenCheckout(t *testing.T) {
	gs := NewInMemoryGlobalState()
	reader, _ := gs.Checkout(gs.EmptyRoot())
	tc := NewTrackingCopy(reader)
	uref := types.NewURef([32]byte{9}, types.AccessReadAddWrite)
	WriteBalance(tc, uref, types.NewMotes(123))

	root, err := gs.Commit(gs.EmptyRoot(), tc.Effect())
	require.NoError(t, err)

	committed, err := gs.Checkout(root)
	require.NoError(t, err)
	tc2 := NewTrackingCopy(committed)
	balance, found, err := ReadBalance(tc2, uref)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "123", balance.String())

	_, err = gs.Checkout(types.Hash{0xff})
	assert.ErrorIs(t, err, ErrRootNotFound)
}

func TestTransferBalance(t *testing.T) {
	gs := NewInMemoryGlobalState()
	reader, _ := gs.Checkout(gs.EmptyRoot())
	tc := NewTrackingCopy(reader)

	a := types.NewURef([32]byte{1}, types.AccessReadAddWrite)
	b := types.NewURef([32]byte{2}, types.AccessReadAddWrite)
	WriteBalance(tc, a, types.NewMotes(100))
	WriteBalance(tc, b, types.NewMotes(0))

	require.NoError(t, TransferBalance(tc, a, b, types.NewMotes(30)))
	assert.ErrorIs(t, TransferBalance(tc, a, b, types.NewMotes(1000)), ErrInsufficientBalance)

	balanceA, _, _ := ReadBalance(tc, a)
	balanceB, _, _ := ReadBalance(tc, b)
	assert.Equal(t, "70", balanceA.String())
	assert.Equal(t, "30", balanceB.String())
}

func TestAddressGeneratorDeterminism(t *testing.T) {
	genA := NewAddressGenerator(types.Hash{1, 2, 3}, PhasePayment)
	genB := NewAddressGenerator(types.Hash{1, 2, 3}, PhasePayment)
	for i := 0; i < 10; i++ {
		assert.Equal(t, genA.NewURef(types.AccessRead), genB.NewURef(types.AccessRead))
		assert.Equal(t, genA.NewHashAddress(), genB.NewHashAddress())
	}
}

func TestAddressGeneratorStreamsAreDisjoint(t *testing.T) {
	gen := NewAddressGenerator(types.Hash{4}, PhaseSession)
	seen := map[[32]byte]bool{}
	for i := 0; i < 100; i++ {
		addr := gen.NewURef(types.AccessRead).Addr
		require.False(t, seen[addr])
		seen[addr] = true
		hashAddr := gen.NewHashAddress()
		require.False(t, seen[hashAddr])
		seen[hashAddr] = true
	}
}

func TestAddressGeneratorPhaseSeparation(t *testing.T) {
	payment := NewAddressGenerator(types.Hash{5}, PhasePayment)
	session := NewAddressGenerator(types.Hash{5}, PhaseSession)
	assert.NotEqual(t, payment.NewHashAddress(), session.NewHashAddress())
}
