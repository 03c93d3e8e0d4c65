package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, in Marshaler, out Unmarshaler) {
	t.Helper()
	data := Marshal(in)
	require.NoError(t, Unmarshal(data, out))
}

func TestPrimitivesRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.WriteBool(true)
	e.WriteU8(0xab)
	e.WriteU32(0xdeadbeef)
	e.WriteU64(0x0102030405060708)
	e.WriteString("hello")
	e.WriteBytes([]byte{1, 2, 3})

	d := NewDecoder(e.Bytes())
	b, err := d.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)
	u8, err := d.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xab), u8)
	u32, err := d.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), u32)
	u64, err := d.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), u64)
	s, err := d.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
	raw, err := d.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)
	require.NoError(t, d.Finish())
}

func TestDecoderRejectsTrailingBytes(t *testing.T) {
	var h Hash
	data := append(Marshal(Hash{1}), 0xff)
	assert.ErrorIs(t, Unmarshal(data, &h), ErrLeftOverBytes)
}

func TestDecoderEarlyEnd(t *testing.T) {
	d := NewDecoder([]byte{1, 2})
	_, err := d.ReadU32()
	assert.ErrorIs(t, err, ErrEarlyEndOfStream)
}

func TestBoolRejectsJunk(t *testing.T) {
	d := NewDecoder([]byte{2})
	_, err := d.ReadBool()
	assert.ErrorIs(t, err, ErrFormatting)
}

func TestKeyRoundTrip(t *testing.T) {
	pk := NewPublicKey([32]byte{7})
	keys := []Key{
		AccountKey(AccountHash{1, 2}),
		HashKey(Hash{3}),
		URefKey(NewURef([32]byte{4}, AccessReadAddWrite)),
		TransferKey(Hash{5}),
		DeployInfoKey(Hash{6}),
		EraInfoKey(42),
		BalanceKey(NewURef([32]byte{8}, AccessRead)),
		BidKey(pk),
		WithdrawKey(pk),
	}
	for _, key := range keys {
		var decoded Key
		roundTrip(t, key, &decoded)
		assert.Equal(t, key.Normalize(), decoded.Normalize())
	}
}

func TestKeyTagsAreWireStable(t *testing.T) {
	assert.Equal(t, byte(0x01), Marshal(AccountKey(AccountHash{}))[0])
	assert.Equal(t, byte(0x02), Marshal(HashKey(Hash{}))[0])
	assert.Equal(t, byte(0x03), Marshal(URefKey(URef{}))[0])
	assert.Equal(t, byte(0x06), Marshal(EraInfoKey(0))[0])
	assert.Equal(t, byte(0x09), Marshal(WithdrawKey(NewPublicKey([32]byte{1})))[0])

	// EraInfo keys carry the era as u64 little-endian.
	data := Marshal(EraInfoKey(0x0102))
	assert.Equal(t, []byte{0x06, 0x02, 0x01, 0, 0, 0, 0, 0, 0}, data)
}

func TestMotesEncoding(t *testing.T) {
	// Length-prefixed big-endian with the high bytes trimmed.
	m := NewMotes(0x1234)
	assert.Equal(t, []byte{2, 0x12, 0x34}, Marshal(m))

	var zero Motes
	assert.Equal(t, []byte{0}, Marshal(zero))

	var decoded Motes
	roundTrip(t, NewMotes(1<<63), &decoded)
	assert.Equal(t, uint64(1)<<63, decoded.Big().Uint64())

	// Unnormalized amounts (leading zero byte) are rejected.
	err := Unmarshal([]byte{2, 0x00, 0x34}, &decoded)
	assert.ErrorIs(t, err, ErrFormatting)
}

func TestMotesCheckedArithmetic(t *testing.T) {
	big512, err := MotesFromString("13407807929942597099574024998205846127479365820592393377723561443721764030073546976801874298166903427690031858186486050853753882811946569946433649006084095")
	require.NoError(t, err)

	_, err = big512.Add(NewMotes(1))
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = NewMotes(1).Sub(NewMotes(2))
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	sum, err := NewMotes(40).Add(NewMotes(2))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Cmp(NewMotes(42)))
}

func TestPublicKeyOrdering(t *testing.T) {
	a := NewPublicKey([32]byte{1})
	b := NewPublicKey([32]byte{2})
	c := NewPublicKey([32]byte{0xff})
	keys := []PublicKey{c, a, b}
	SortPublicKeys(keys)
	assert.Equal(t, []PublicKey{a, b, c}, keys)
}

func TestBidRoundTrip(t *testing.T) {
	delegator := NewPublicKey([32]byte{9})
	bid := NewBid(NewURef([32]byte{1}, AccessReadAddWrite), NewMotes(1000), 10)
	bid.Delegators[delegator] = &Delegator{
		StakedAmount: NewMotes(500),
		BondingPurse: NewURef([32]byte{2}, AccessReadAddWrite),
		ValidatorKey: NewPublicKey([32]byte{1}),
	}
	bid.VestingSchedule = &VestingSchedule{ReleaseEra: 90}

	var decoded Bid
	roundTrip(t, *bid, &decoded)
	assert.Equal(t, bid.StakedAmount.String(), decoded.StakedAmount.String())
	require.Contains(t, decoded.Delegators, delegator)
	assert.Equal(t, "500", decoded.Delegators[delegator].StakedAmount.String())
	require.NotNil(t, decoded.VestingSchedule)
	assert.Equal(t, EraID(90), decoded.VestingSchedule.ReleaseEra)
}

func TestUnbondingPursesRoundTrip(t *testing.T) {
	validator := NewPublicKey([32]byte{1})
	purses := UnbondingPurses{
		validator: {
			{
				BondingPurse:  NewURef([32]byte{3}, AccessReadAddWrite),
				ValidatorKey:  validator,
				UnbonderKey:   validator,
				EraOfCreation: 4,
				Amount:        NewMotes(10_000),
			},
		},
	}
	var decoded UnbondingPurses
	roundTrip(t, purses, &decoded)
	require.Len(t, decoded[validator], 1)
	assert.Equal(t, EraID(4), decoded[validator][0].EraOfCreation)
}

func TestSeigniorageSnapshotRoundTrip(t *testing.T) {
	validator := NewPublicKey([32]byte{1})
	snapshot := NewSeigniorageRecipientsSnapshot()
	for era := EraID(3); era <= 5; era++ {
		snapshot.Put(era, SeigniorageRecipients{
			validator: {Stake: NewMotes(100), DelegationRate: 5, DelegatorStake: map[PublicKey]Motes{}},
		})
	}

	decoded := NewSeigniorageRecipientsSnapshot()
	roundTrip(t, snapshot, decoded)
	assert.Equal(t, []EraID{3, 4, 5}, decoded.Eras())
	recipients, ok := decoded.Get(4)
	require.True(t, ok)
	assert.Equal(t, "100", recipients[validator].Stake.String())
}

func TestBlockRoundTripAndHash(t *testing.T) {
	proposer := NewPublicKey([32]byte{5})
	body := BlockBody{Proposer: proposer, DeployHashes: []Hash{{1}}, TransferHashes: []Hash{{2}}}
	header := BlockHeader{
		ParentHash:      Hash{1},
		StateRootHash:   Hash{2},
		BodyHash:        body.Hash(),
		RandomBit:       true,
		AccumulatedSeed: Hash{3},
		EraEnd: &EraEnd{
			Report: EraReport{
				Equivocators: []PublicKey{proposer},
				Rewards:      map[PublicKey]uint64{proposer: 7},
			},
			NextEraValidatorWeights: map[PublicKey]Motes{proposer: NewMotes(10)},
		},
		Timestamp:       Timestamp(1_600_000_000_000),
		EraID:           3,
		Height:          12,
		ProtocolVersion: ProtocolVersion{Major: 1},
	}
	block := NewBlock(header, body)

	var decoded Block
	roundTrip(t, block, &decoded)
	assert.Equal(t, block.Hash(), decoded.Hash())
	assert.True(t, decoded.IsSwitchBlock())
	assert.Equal(t, block.Header.Hash(), decoded.Hash())
}

func TestBlockRejectsTamperedHash(t *testing.T) {
	body := BlockBody{Proposer: NewPublicKey([32]byte{5})}
	header := BlockHeader{BodyHash: body.Hash(), Timestamp: 1}
	block := NewBlock(header, body)

	raw := Marshal(block)
	raw[0] ^= 0xff // corrupt the stored hash
	var decoded Block
	assert.Error(t, Unmarshal(raw, &decoded))
}

func TestBlockSignaturesOrderedAndUnique(t *testing.T) {
	a := NewPublicKey([32]byte{2})
	b := NewPublicKey([32]byte{1})
	bundle := NewBlockSignatures(Hash{9}, 4)
	require.True(t, bundle.InsertProof(a, NewSignature([64]byte{1})))
	require.True(t, bundle.InsertProof(b, NewSignature([64]byte{2})))
	assert.False(t, bundle.InsertProof(a, NewSignature([64]byte{3})))

	// Iteration and serialization follow canonical key order.
	assert.Equal(t, []PublicKey{b, a}, bundle.Signers())

	decoded := NewBlockSignatures(Hash{}, 0)
	roundTrip(t, bundle, decoded)
	assert.Equal(t, EraID(4), decoded.EraID)
	assert.Equal(t, 2, decoded.Len())
	assert.True(t, decoded.HasProof(b))
}

func TestStoredValueRoundTrip(t *testing.T) {
	values := []StoredValue{
		StoredCLValue(CLValueU64(7)),
		StoredAccount(NewAccount(AccountHash{1}, NewURef([32]byte{2}, AccessReadAddWrite))),
		StoredContractWasm(ContractWasm{Bytes: []byte{0x00, 0x61, 0x73, 0x6d}}),
		StoredEraInfo(EraInfo{SeigniorageAllocations: []SeigniorageAllocation{
			ValidatorAllocation(NewPublicKey([32]byte{1}), NewMotes(5)),
			DelegatorAllocation(NewPublicKey([32]byte{2}), NewPublicKey([32]byte{1}), NewMotes(3)),
		}}),
		StoredTransfer(Transfer{DeployHash: Hash{1}, Amount: NewMotes(10)}),
		StoredDeployInfo(DeployInfo{DeployHash: Hash{2}, Gas: NewMotes(1)}),
	}
	for _, value := range values {
		var decoded StoredValue
		roundTrip(t, value, &decoded)
		assert.Equal(t, value.Tag, decoded.Tag)
		assert.Equal(t, Marshal(value), Marshal(decoded))
	}
}

func TestContractPackageVersions(t *testing.T) {
	pkg := NewContractPackage(NewURef([32]byte{1}, AccessReadAddWrite))
	pkg.Insert(1, Hash{1})
	pkg.Insert(2, Hash{2})
	pkg.Disable(Hash{1})

	current, ok := pkg.CurrentVersion()
	require.True(t, ok)
	assert.Equal(t, Hash{2}, current)
	assert.True(t, pkg.IsDisabled(Hash{1}))
	assert.False(t, pkg.IsDisabled(Hash{2}))

	var decoded ContractPackage
	roundTrip(t, pkg, &decoded)
	assert.Equal(t, pkg.Versions, decoded.Versions)
	assert.ElementsMatch(t, pkg.DisabledVersions, decoded.DisabledVersions)
}

func TestFinalitySignatureVerify(t *testing.T) {
	fs := FinalitySignature{BlockHash: Hash{1}, EraID: 2, PublicKey: NewPublicKey([32]byte{1})}
	assert.False(t, fs.Verify())

	var decoded FinalitySignature
	roundTrip(t, fs, &decoded)
	assert.Equal(t, fs.BlockHash, decoded.BlockHash)
	assert.Equal(t, fs.EraID, decoded.EraID)
}
