package genesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casperlabs/casper-node/state"
	"github.com/casperlabs/casper-node/types"
)

var protocolV1 = types.ProtocolVersion{Major: 1}

func testExecConfig() ExecConfig {
	accountA := types.NewPublicKey([32]byte{0xaa})
	validator1 := types.NewPublicKey([32]byte{0x01})
	validator2 := types.NewPublicKey([32]byte{0x02})
	trillion := types.NewMotes(1_000_000_000_000)
	return ExecConfig{
		Accounts: []GenesisAccount{
			SystemGenesisAccount(),
			NewGenesisAccount(accountA, trillion, types.Motes{}),
			NewGenesisAccount(validator1, trillion, types.NewMotes(250_000)),
			NewGenesisAccount(validator2, trillion, types.NewMotes(350_000)),
		},
		ValidatorSlots:       2,
		AuctionDelay:         1,
		UnbondingDelay:       7,
		LockedFundsPeriod:    0,
		RoundSeigniorageRate: Ratio{Numer: 1, Denom: 4_200_000_000},
		WasmlessTransferCost: 10_000,
	}
}

func runTestGenesis(t *testing.T) (*state.InMemoryGlobalState, types.Hash, state.ExecutionEffect) {
	t.Helper()
	gs := state.NewInMemoryGlobalState()
	cfg := testExecConfig()
	postState, effect, err := Run(gs, cfg.Hash(), protocolV1, cfg)
	require.NoError(t, err)
	return gs, postState, effect
}

func TestGenesisDeterminism(t *testing.T) {
	_, rootA, effectA := runTestGenesis(t)
	_, rootB, effectB := runTestGenesis(t)

	assert.Equal(t, rootA, rootB)
	require.Equal(t, len(effectA.Operations), len(effectB.Operations))
	for i := range effectA.Operations {
		assert.Equal(t, effectA.Operations[i].Key, effectB.Operations[i].Key)
		assert.Equal(t, effectA.Operations[i].Op, effectB.Operations[i].Op)
	}
	assert.Equal(t, effectA.Keys, effectB.Keys)
}

func readAuctionContract(t *testing.T, gs *state.InMemoryGlobalState, root types.Hash) (*state.TrackingCopy, *types.Contract) {
	t.Helper()
	reader, err := gs.Checkout(root)
	require.NoError(t, err)
	tc := state.NewTrackingCopy(reader)
	system, err := tc.Read(types.AccountKey(types.SystemAccountAddr))
	require.NoError(t, err)
	require.NotNil(t, system)
	require.Equal(t, types.StoredValueTagAccount, system.Tag)

	key, ok := system.Account.NamedKeys[types.AuctionContractName]
	require.True(t, ok)
	contract, err := tc.Read(key)
	require.NoError(t, err)
	require.NotNil(t, contract)
	require.Equal(t, types.StoredValueTagContract, contract.Tag)
	return tc, contract.Contract
}

func readNamedCLValue(t *testing.T, tc *state.TrackingCopy, contract *types.Contract, name string) types.CLValue {
	t.Helper()
	key, ok := contract.NamedKeys[name]
	require.True(t, ok, "missing named key %s", name)
	value, err := tc.Read(key)
	require.NoError(t, err)
	require.NotNil(t, value)
	clv, ok := value.AsCLValue()
	require.True(t, ok)
	return clv
}

func TestGenesisAuctionState(t *testing.T) {
	gs, root, _ := runTestGenesis(t)
	tc, contract := readAuctionContract(t, gs, root)

	assert.Len(t, contract.EntryPoints, 12)
	for _, name := range []string{
		types.MethodGetEraValidators, types.MethodReadSeigniorageRecipients,
		types.MethodAddBid, types.MethodWithdrawBid, types.MethodDelegate,
		types.MethodUndelegate, types.MethodRunAuction, types.MethodSlash,
		types.MethodDistribute, types.MethodWithdrawDelegatorReward,
		types.MethodWithdrawValidatorReward, types.MethodReadEraID,
	} {
		assert.Contains(t, contract.EntryPoints, name)
	}

	var bids types.Bids
	require.NoError(t, readNamedCLValue(t, tc, contract, types.BidsKey).Decode(&bids))
	require.Len(t, bids, 2)
	validator1 := types.NewPublicKey([32]byte{0x01})
	validator2 := types.NewPublicKey([32]byte{0x02})
	assert.Equal(t, "250000", bids[validator1].StakedAmount.String())
	assert.Equal(t, "350000", bids[validator2].StakedAmount.String())

	snapshot := types.NewSeigniorageRecipientsSnapshot()
	require.NoError(t, readNamedCLValue(t, tc, contract, types.SeigniorageRecipientsSnapshotKey).Decode(snapshot))
	assert.Equal(t, []types.EraID{0, 1}, snapshot.Eras())

	eraID, err := readNamedCLValue(t, tc, contract, types.EraIDKey).ToU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), eraID)

	var unbonding types.UnbondingPurses
	require.NoError(t, readNamedCLValue(t, tc, contract, types.UnbondingPursesKey).Decode(&unbonding))
	assert.Empty(t, unbonding)
}

func TestGenesisMintEntryPoints(t *testing.T) {
	gs, root, _ := runTestGenesis(t)
	reader, err := gs.Checkout(root)
	require.NoError(t, err)
	tc := state.NewTrackingCopy(reader)
	system, err := tc.Read(types.AccountKey(types.SystemAccountAddr))
	require.NoError(t, err)

	mintKey := system.Account.NamedKeys[types.MintContractName]
	mint, err := tc.Read(mintKey)
	require.NoError(t, err)
	require.Equal(t, types.StoredValueTagContract, mint.Tag)
	assert.Len(t, mint.Contract.EntryPoints, 6)

	posKey := system.Account.NamedKeys[types.ProofOfStakeContractName]
	pos, err := tc.Read(posKey)
	require.NoError(t, err)
	assert.Len(t, pos.Contract.EntryPoints, 4)
	assert.Contains(t, pos.Contract.NamedKeys, types.PosPaymentPurseKey)

	paymentKey := system.Account.NamedKeys[types.StandardPaymentContractName]
	payment, err := tc.Read(paymentKey)
	require.NoError(t, err)
	assert.Len(t, payment.Contract.EntryPoints, 1)
	assert.Equal(t, types.EntryPointSession, payment.Contract.EntryPoints[types.MethodCall].Kind)
}

func TestGenesisTotalSupply(t *testing.T) {
	gs, root, _ := runTestGenesis(t)
	reader, err := gs.Checkout(root)
	require.NoError(t, err)
	tc := state.NewTrackingCopy(reader)
	system, _ := tc.Read(types.AccountKey(types.SystemAccountAddr))
	mint, _ := tc.Read(system.Account.NamedKeys[types.MintContractName])
	supplyURef, ok := mint.Contract.NamedKeys[types.TotalSupplyKey].AsURef()
	require.True(t, ok)

	value, err := tc.Read(types.URefKey(supplyURef))
	require.NoError(t, err)
	clv, _ := value.AsCLValue()
	supply, err := clv.ToU512()
	require.NoError(t, err)

	// Three funded balances plus two bonds; the system account holds zero.
	expected := types.NewMotes(3_000_000_000_000 + 250_000 + 350_000)
	assert.Equal(t, 0, supply.Cmp(expected))
}

func TestGenesisAccountsCreated(t *testing.T) {
	gs, root, _ := runTestGenesis(t)
	reader, err := gs.Checkout(root)
	require.NoError(t, err)
	tc := state.NewTrackingCopy(reader)

	for _, account := range testExecConfig().Accounts {
		record, err := tc.Read(types.AccountKey(account.AccountHash))
		require.NoError(t, err)
		require.NotNil(t, record, "missing account %s", account.AccountHash)
		balance, found, err := state.ReadBalance(tc, record.Account.MainPurse)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 0, balance.Cmp(account.Balance))
	}
}

func TestUpgradeBumpsSystemContracts(t *testing.T) {
	gs, root, _ := runTestGenesis(t)

	v2 := types.ProtocolVersion{Major: 2}
	postState, _, err := RunUpgrade(gs, UpgradeConfig{
		PreStateHash:           root,
		CurrentProtocolVersion: protocolV1,
		NewProtocolVersion:     v2,
	})
	require.NoError(t, err)
	require.NotEqual(t, root, postState)

	tc, contract := readAuctionContract(t, gs, postState)
	assert.Equal(t, v2, contract.ProtocolVersion)

	pkg, err := tc.Read(types.HashKey(contract.ContractPackageHash))
	require.NoError(t, err)
	require.Equal(t, types.StoredValueTagContractPackage, pkg.Tag)
	assert.Contains(t, pkg.ContractPackage.Versions, uint32(2))
	assert.Len(t, pkg.ContractPackage.DisabledVersions, 1)
}

func TestUpgradeRejectsNonIncreasingVersion(t *testing.T) {
	gs, root, _ := runTestGenesis(t)
	_, _, err := RunUpgrade(gs, UpgradeConfig{
		PreStateHash:           root,
		CurrentProtocolVersion: protocolV1,
		NewProtocolVersion:     protocolV1,
	})
	var upgradeErr *ProtocolUpgradeError
	require.ErrorAs(t, err, &upgradeErr)
	assert.Equal(t, InvalidUpgradeConfig, upgradeErr.Kind)
}
