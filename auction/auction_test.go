package auction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casperlabs/casper-node/genesis"
	"github.com/casperlabs/casper-node/state"
	"github.com/casperlabs/casper-node/types"
)

var (
	accountA   = types.NewPublicKey([32]byte{0xaa})
	validator1 = types.NewPublicKey([32]byte{0x01})
	validator2 = types.NewPublicKey([32]byte{0x02})
	delegatorN = types.NewPublicKey([32]byte{0x4e})
)

type testContext struct {
	t   *testing.T
	gs  *state.InMemoryGlobalState
	tc  *state.TrackingCopy
	gen *state.AddressGenerator
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()
	trillion := types.NewMotes(1_000_000_000_000)
	cfg := genesis.ExecConfig{
		Accounts: []genesis.GenesisAccount{
			genesis.SystemGenesisAccount(),
			genesis.NewGenesisAccount(accountA, trillion, types.Motes{}),
			genesis.NewGenesisAccount(validator1, trillion, types.NewMotes(250_000)),
			genesis.NewGenesisAccount(validator2, trillion, types.NewMotes(350_000)),
			genesis.NewGenesisAccount(delegatorN, trillion, types.Motes{}),
		},
		ValidatorSlots:       2,
		AuctionDelay:         1,
		UnbondingDelay:       7,
		RoundSeigniorageRate: genesis.Ratio{Numer: 1, Denom: 100},
	}
	gs := state.NewInMemoryGlobalState()
	root, _, err := genesis.Run(gs, cfg.Hash(), types.ProtocolVersion{Major: 1}, cfg)
	require.NoError(t, err)

	reader, err := gs.Checkout(root)
	require.NoError(t, err)
	return &testContext{
		t:   t,
		gs:  gs,
		tc:  state.NewTrackingCopy(reader),
		gen: state.NewAddressGenerator(types.Hash{0xde}, state.PhaseSession),
	}
}

// as builds an auction call context for the given caller.
func (ctx *testContext) as(caller types.AccountHash) *Auction {
	runtime, err := NewRuntime(ctx.tc, ctx.gen, caller)
	require.NoError(ctx.t, err)
	return New(runtime.Providers())
}

func (ctx *testContext) system() *Auction {
	return ctx.as(types.SystemAccountAddr)
}

func (ctx *testContext) mainPurse(pk types.PublicKey) types.URef {
	record, err := ctx.tc.Read(types.AccountKey(pk.AccountHash()))
	require.NoError(ctx.t, err)
	require.NotNil(ctx.t, record)
	return record.Account.MainPurse
}

func (ctx *testContext) bids() types.Bids {
	auction := ctx.system()
	bids, err := auction.getBids()
	require.NoError(ctx.t, err)
	return bids
}

func (ctx *testContext) unbonds() types.UnbondingPurses {
	auction := ctx.system()
	purses, err := auction.getUnbondingPurses()
	require.NoError(ctx.t, err)
	return purses
}

func TestRunAuctionAdvancesEraAndSnapshot(t *testing.T) {
	ctx := newTestContext(t)
	auction := ctx.system()

	era, err := auction.ReadEraID()
	require.NoError(t, err)
	assert.Equal(t, types.EraID(0), era)

	require.NoError(t, auction.RunAuction(1_000_000))

	era, err = auction.ReadEraID()
	require.NoError(t, err)
	assert.Equal(t, types.EraID(1), era)

	snapshot, err := auction.getSnapshot()
	require.NoError(t, err)
	assert.Equal(t, []types.EraID{1, 2}, snapshot.Eras())

	recipients, err := auction.ReadSeigniorageRecipients()
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Contains(t, recipients, validator1)
	assert.Contains(t, recipients, validator2)
}

func TestRunAuctionRequiresSystemCaller(t *testing.T) {
	ctx := newTestContext(t)
	auction := ctx.as(validator1.AccountHash())
	assert.ErrorIs(t, auction.RunAuction(0), ErrInvalidCaller)
}

func TestSnapshotWindowInvariant(t *testing.T) {
	ctx := newTestContext(t)
	auction := ctx.system()
	for i := 0; i < 5; i++ {
		require.NoError(t, auction.RunAuction(uint64(i)))
		snapshot, err := auction.getSnapshot()
		require.NoError(t, err)
		era, err := auction.ReadEraID()
		require.NoError(t, err)
		assert.Equal(t, 2, snapshot.Len())
		assert.Equal(t, []types.EraID{era, era + 1}, snapshot.Eras())
	}
}

func TestAddBidAndWithdrawBid(t *testing.T) {
	ctx := newTestContext(t)
	auction := ctx.as(accountA.AccountHash())

	staked, err := auction.AddBid(accountA, ctx.mainPurse(accountA), 5, types.NewMotes(100_000))
	require.NoError(t, err)
	assert.Equal(t, "100000", staked.String())

	bids := ctx.bids()
	require.Contains(t, bids, accountA)
	assert.Equal(t, uint8(5), bids[accountA].DelegationRate)

	staked, err = auction.WithdrawBid(accountA, types.NewMotes(40_000))
	require.NoError(t, err)
	assert.Equal(t, "60000", staked.String())

	unbonds := ctx.unbonds()
	require.Len(t, unbonds[accountA], 1)
	assert.Equal(t, "40000", unbonds[accountA][0].Amount.String())
	assert.Equal(t, types.EraID(0), unbonds[accountA][0].EraOfCreation)
}

func TestAddBidChecksCallerAndRate(t *testing.T) {
	ctx := newTestContext(t)

	_, err := ctx.as(accountA.AccountHash()).AddBid(validator1, ctx.mainPurse(accountA), 0, types.NewMotes(1))
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	_, err = ctx.as(accountA.AccountHash()).AddBid(accountA, ctx.mainPurse(accountA), 101, types.NewMotes(1))
	assert.ErrorIs(t, err, ErrDelegationRateTooLarge)

	_, err = ctx.as(accountA.AccountHash()).AddBid(accountA, ctx.mainPurse(accountA), 0, types.Motes{})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestWithdrawBidTooLarge(t *testing.T) {
	ctx := newTestContext(t)
	auction := ctx.as(validator1.AccountHash())
	_, err := auction.WithdrawBid(validator1, types.NewMotes(250_001))
	assert.ErrorIs(t, err, ErrUnbondTooLarge)
}

func TestWithdrawBidRespectsVestingLock(t *testing.T) {
	trillion := types.NewMotes(1_000_000_000_000)
	cfg := genesis.ExecConfig{
		Accounts: []genesis.GenesisAccount{
			genesis.SystemGenesisAccount(),
			genesis.NewGenesisAccount(validator1, trillion, types.NewMotes(250_000)),
		},
		ValidatorSlots:       1,
		AuctionDelay:         1,
		UnbondingDelay:       7,
		LockedFundsPeriod:    10,
		RoundSeigniorageRate: genesis.Ratio{Numer: 1, Denom: 100},
	}
	gs := state.NewInMemoryGlobalState()
	root, _, err := genesis.Run(gs, cfg.Hash(), types.ProtocolVersion{Major: 1}, cfg)
	require.NoError(t, err)
	reader, err := gs.Checkout(root)
	require.NoError(t, err)
	ctx := &testContext{
		t: t, gs: gs,
		tc:  state.NewTrackingCopy(reader),
		gen: state.NewAddressGenerator(types.Hash{0xdf}, state.PhaseSession),
	}

	_, err = ctx.as(validator1.AccountHash()).WithdrawBid(validator1, types.NewMotes(1))
	assert.ErrorIs(t, err, ErrValidatorFundsLocked)
}

func TestDelegateAndUndelegate(t *testing.T) {
	ctx := newTestContext(t)
	auction := ctx.as(delegatorN.AccountHash())

	staked, err := auction.Delegate(delegatorN, validator2, ctx.mainPurse(delegatorN), types.NewMotes(95_000))
	require.NoError(t, err)
	assert.Equal(t, "95000", staked.String())

	_, err = auction.Delegate(delegatorN, accountA, ctx.mainPurse(delegatorN), types.NewMotes(1))
	assert.ErrorIs(t, err, ErrValidatorNotFound)

	staked, err = auction.Undelegate(delegatorN, validator2, types.NewMotes(5_000))
	require.NoError(t, err)
	assert.Equal(t, "90000", staked.String())

	unbonds := ctx.unbonds()
	require.Len(t, unbonds[validator2], 1)
	assert.Equal(t, delegatorN, unbonds[validator2][0].UnbonderKey)
	assert.Equal(t, validator2, unbonds[validator2][0].ValidatorKey)

	_, err = auction.Undelegate(accountA, validator2, types.NewMotes(1))
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

// Slashing clears the slashed validator's bid and every unbonding entry
// touching it, but leaves its delegations under other validators intact.
func TestSlashLocality(t *testing.T) {
	ctx := newTestContext(t)

	_, err := ctx.as(delegatorN.AccountHash()).Delegate(delegatorN, validator2, ctx.mainPurse(delegatorN), types.NewMotes(95_000))
	require.NoError(t, err)
	_, err = ctx.as(delegatorN.AccountHash()).Delegate(delegatorN, validator1, ctx.mainPurse(delegatorN), types.NewMotes(42_000))
	require.NoError(t, err)
	_, err = ctx.as(validator2.AccountHash()).Delegate(validator2, validator1, ctx.mainPurse(validator2), types.NewMotes(13_000))
	require.NoError(t, err)

	// An unbond by V2 and one against V2 must both disappear.
	_, err = ctx.as(validator2.AccountHash()).WithdrawBid(validator2, types.NewMotes(10_000))
	require.NoError(t, err)
	_, err = ctx.as(delegatorN.AccountHash()).Undelegate(delegatorN, validator2, types.NewMotes(1_000))
	require.NoError(t, err)
	_, err = ctx.as(delegatorN.AccountHash()).Undelegate(delegatorN, validator1, types.NewMotes(2_000))
	require.NoError(t, err)

	require.NoError(t, ctx.system().Slash([]types.PublicKey{validator2}))

	bids := ctx.bids()
	assert.NotContains(t, bids, validator2)
	require.Contains(t, bids, validator1)
	assert.Equal(t, "13000", bids[validator1].Delegators[validator2].StakedAmount.String())
	assert.Equal(t, "40000", bids[validator1].Delegators[delegatorN].StakedAmount.String())

	unbonds := ctx.unbonds()
	assert.NotContains(t, unbonds, validator2)
	require.Contains(t, unbonds, validator1)
	for _, entry := range unbonds[validator1] {
		assert.NotEqual(t, validator2, entry.UnbonderKey)
		assert.NotEqual(t, validator2, entry.ValidatorKey)
	}
}

func TestSlashRequiresSystemCaller(t *testing.T) {
	ctx := newTestContext(t)
	err := ctx.as(accountA.AccountHash()).Slash([]types.PublicKey{validator1})
	assert.ErrorIs(t, err, ErrInvalidCaller)
}

// Funds withdrawn in era 0 reach the unbonder's main purse during the
// rotation that starts with the era counter at era 0 + unbonding_delay.
func TestUnbondingDelay(t *testing.T) {
	ctx := newTestContext(t)

	_, err := ctx.as(validator1.AccountHash()).WithdrawBid(validator1, types.NewMotes(10_000))
	require.NoError(t, err)

	mainPurse := ctx.mainPurse(validator1)
	before, _, err := state.ReadBalance(ctx.tc, mainPurse)
	require.NoError(t, err)

	system := ctx.system()
	// Rotations ending eras 0..6: the counter reaches 7, the entry
	// remains because the payout check runs before each advance.
	for i := 0; i < 7; i++ {
		require.NoError(t, system.RunAuction(uint64(i)))
		require.Len(t, ctx.unbonds()[validator1], 1, "entry must survive rotation %d", i)
		balance, _, err := state.ReadBalance(ctx.tc, mainPurse)
		require.NoError(t, err)
		assert.Equal(t, 0, balance.Cmp(before))
	}

	// The rotation that starts with the counter at 7 pays out and drops
	// the entry.
	require.NoError(t, system.RunAuction(7))
	assert.Empty(t, ctx.unbonds())
	after, _, err := state.ReadBalance(ctx.tc, mainPurse)
	require.NoError(t, err)
	expected, err := before.Add(types.NewMotes(10_000))
	require.NoError(t, err)
	assert.Equal(t, 0, after.Cmp(expected))
}

// Token conservation: total supply equals the sum of all purse balances
// plus nothing else, across bond, delegate, unbond and rotation.
func TestTokenConservation(t *testing.T) {
	ctx := newTestContext(t)

	totalSupply := func() types.Motes {
		runtime, err := NewRuntime(ctx.tc, ctx.gen, types.SystemAccountAddr)
		require.NoError(t, err)
		supply, _, err := runtime.totalSupply()
		require.NoError(t, err)
		return supply
	}

	sumPurses := func() types.Motes {
		total := types.Motes{}
		add := func(uref types.URef) {
			balance, found, err := state.ReadBalance(ctx.tc, uref)
			require.NoError(t, err)
			if found {
				total, err = total.Add(balance)
				require.NoError(t, err)
			}
		}
		for _, pk := range []types.PublicKey{accountA, validator1, validator2, delegatorN} {
			add(ctx.mainPurse(pk))
		}
		systemRecord, err := ctx.tc.Read(types.AccountKey(types.SystemAccountAddr))
		require.NoError(t, err)
		add(systemRecord.Account.MainPurse)
		for _, bid := range ctx.bids() {
			add(bid.BondingPurse)
			for _, delegator := range bid.Delegators {
				add(delegator.BondingPurse)
			}
		}
		auction := ctx.system()
		for _, name := range []string{types.ValidatorRewardPurseKey, types.DelegatorRewardPurseKey} {
			purse, err := auction.namedPurse(name)
			require.NoError(t, err)
			add(purse)
		}
		return total
	}

	check := func() {
		assert.Equal(t, 0, totalSupply().Cmp(sumPurses()))
	}

	check()
	_, err := ctx.as(accountA.AccountHash()).AddBid(accountA, ctx.mainPurse(accountA), 3, types.NewMotes(77_000))
	require.NoError(t, err)
	check()
	_, err = ctx.as(delegatorN.AccountHash()).Delegate(delegatorN, accountA, ctx.mainPurse(delegatorN), types.NewMotes(11_000))
	require.NoError(t, err)
	check()
	_, err = ctx.as(accountA.AccountHash()).WithdrawBid(accountA, types.NewMotes(7_000))
	require.NoError(t, err)
	check()
	for i := 0; i < 8; i++ {
		require.NoError(t, ctx.system().RunAuction(uint64(i)))
		check()
	}
}

func TestRunAuctionElectsTopStakes(t *testing.T) {
	ctx := newTestContext(t)

	// accountA outbids validator1 for the second slot.
	_, err := ctx.as(accountA.AccountHash()).AddBid(accountA, ctx.mainPurse(accountA), 0, types.NewMotes(300_000))
	require.NoError(t, err)

	require.NoError(t, ctx.system().RunAuction(0))
	auction := ctx.system()
	snapshot, err := auction.getSnapshot()
	require.NoError(t, err)
	recipients, ok := snapshot.Get(2)
	require.True(t, ok)
	assert.Contains(t, recipients, validator2)
	assert.Contains(t, recipients, accountA)
	assert.NotContains(t, recipients, validator1)
}

func TestDistributeReinvestsRewards(t *testing.T) {
	ctx := newTestContext(t)

	_, err := ctx.as(delegatorN.AccountHash()).Delegate(delegatorN, validator2, ctx.mainPurse(delegatorN), types.NewMotes(350_000))
	require.NoError(t, err)

	// Rotate twice (auction delay 1) so the snapshot for the current era
	// includes the delegation.
	require.NoError(t, ctx.system().RunAuction(0))
	require.NoError(t, ctx.system().RunAuction(1))

	bidsBefore := ctx.bids()
	v2Before := bidsBefore[validator2].StakedAmount
	delBefore := bidsBefore[validator2].Delegators[delegatorN].StakedAmount

	err = ctx.system().Distribute(map[types.PublicKey]uint64{
		validator1: 1,
		validator2: 1,
	})
	require.NoError(t, err)

	bids := ctx.bids()
	assert.Equal(t, 1, bids[validator2].StakedAmount.Cmp(v2Before))
	assert.Equal(t, 1, bids[validator2].Delegators[delegatorN].StakedAmount.Cmp(delBefore))

	// The audit log landed under the era's info key.
	era, err := ctx.system().ReadEraID()
	require.NoError(t, err)
	info, err := ctx.tc.Read(types.EraInfoKey(era))
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, types.StoredValueTagEraInfo, info.Tag)
	assert.NotEmpty(t, info.EraInfo.SeigniorageAllocations)
}

func TestDistributeRequiresSystemCaller(t *testing.T) {
	ctx := newTestContext(t)
	err := ctx.as(accountA.AccountHash()).Distribute(map[types.PublicKey]uint64{validator1: 1})
	assert.ErrorIs(t, err, ErrInvalidCaller)
}

func TestWithdrawRewardMissingRecipient(t *testing.T) {
	ctx := newTestContext(t)
	_, err := ctx.as(validator1.AccountHash()).WithdrawValidatorReward(validator1, ctx.mainPurse(validator1))
	assert.ErrorIs(t, err, ErrMissingReward)

	_, err = ctx.as(delegatorN.AccountHash()).WithdrawDelegatorReward(delegatorN, validator1, ctx.mainPurse(delegatorN))
	assert.ErrorIs(t, err, ErrMissingReward)
}
