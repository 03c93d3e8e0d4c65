// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

// Package genesis materializes the chain's initial global state: the four
// system contracts, their purses, the founding validator bids and the
// initial seigniorage snapshot. The whole run is deterministic: two runs
// on the same ExecConfig produce byte-identical effects.
package genesis

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/casperlabs/casper-node/state"
	"github.com/casperlabs/casper-node/types"
)

var (
	ErrCreateRuntimeFailed             = errors.New("create runtime failed")
	ErrUnableToReadContract            = errors.New("unable to read contract")
	ErrUnableToCreatePurse             = errors.New("unable to create purse")
	ErrUnableToGenerateDeployHash      = errors.New("unable to generate deploy hash")
	ErrUnableToCreateSystemModule      = errors.New("unable to create system module")
	ErrMissingProofOfStakePaymentPurse = errors.New("missing proof of stake payment purse")
	ErrMissingValidatorRewardPurse     = errors.New("missing validator reward purse")
	ErrMissingDelegatorRewardPurse     = errors.New("missing delegator reward purse")
)

// MintError is the closed mint error enum surfaced through genesis.
type MintError uint8

const (
	MintInsufficientFunds MintError = iota
	MintSourceNotFound
	MintDestNotFound
	MintInvalidContext
	MintArithmeticOverflow
)

func (e MintError) Error() string {
	switch e {
	case MintInsufficientFunds:
		return "mint error: insufficient funds"
	case MintSourceNotFound:
		return "mint error: source not found"
	case MintDestNotFound:
		return "mint error: destination not found"
	case MintInvalidContext:
		return "mint error: invalid context"
	default:
		return "mint error: arithmetic overflow"
	}
}

// CLValueError reports a value that could not be represented.
type CLValueError struct {
	Name string
}

func (e *CLValueError) Error() string {
	return fmt.Sprintf("clvalue error: %s", e.Name)
}

// purseKind tags the purses created at genesis, in creation order.
type purseKind uint8

const (
	purseProofOfStake purseKind = iota
	purseDelegatorReward
	purseValidatorReward
	purseGenesisValidator
	purseGenesisAccount
)

type genesisPurse struct {
	kind        purseKind
	uref        types.URef
	accountHash types.AccountHash
	publicKey   types.PublicKey
	amount      types.Motes
}

// Installer writes the genesis state into a tracking copy. Create the
// installer, call Run, commit the effect.
type Installer struct {
	protocolVersion types.ProtocolVersion
	config          ExecConfig
	gen             *state.AddressGenerator
	tc              *state.TrackingCopy
}

// NewInstaller seeds the address generator with the deploy hash
// hash(genesis_config_hash || phase=System). Run writes the synthetic
// system account.
func NewInstaller(
	genesisConfigHash types.Hash,
	protocolVersion types.ProtocolVersion,
	config ExecConfig,
	tc *state.TrackingCopy,
) *Installer {
	deployHash := types.HashBytes(append(genesisConfigHash.Bytes(), byte(state.PhaseSystem)))
	installer := &Installer{
		protocolVersion: protocolVersion,
		config:          config,
		gen:             state.NewAddressGenerator(deployHash, state.PhaseSystem),
		tc:              tc,
	}
	return installer
}

// Run executes all genesis steps in their fixed order.
func (in *Installer) Run() error {
	in.writeSystemAccount()

	mintHash, purses, err := in.createMint()
	if err != nil {
		return err
	}
	posHash, err := in.createProofOfStake(purses)
	if err != nil {
		return err
	}
	auctionHash, err := in.createAuction(purses)
	if err != nil {
		return err
	}
	standardPaymentHash := in.createStandardPayment()
	in.createAccounts(purses)

	err = in.registerSystemContracts(types.NamedKeys{
		types.MintContractName:            types.HashKey(mintHash),
		types.ProofOfStakeContractName:    types.HashKey(posHash),
		types.AuctionContractName:         types.HashKey(auctionHash),
		types.StandardPaymentContractName: types.HashKey(standardPaymentHash),
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"mint":    mintHash,
		"auction": auctionHash,
	}).Debug("genesis installed system contracts")
	return nil
}

// writeSystemAccount stores the synthetic system account with a fresh
// purse. Step 1 of the fixed order; this purse stays unfunded, and
// createAccounts later replaces the record with one whose main purse is
// the system account's minted genesis purse.
func (in *Installer) writeSystemAccount() {
	purse := in.gen.NewURef(types.AccessReadAddWrite)
	account := types.NewAccount(types.SystemAccountAddr, purse)
	in.tc.Write(types.AccountKey(types.SystemAccountAddr), types.StoredAccount(account))
}

func (in *Installer) createMint() (types.Hash, []genesisPurse, error) {
	accessKey := in.gen.NewURef(types.AccessReadAddWrite)

	rateURef := in.gen.NewURef(types.AccessReadAddWrite)
	in.tc.Write(
		types.URefKey(rateURef),
		types.StoredCLValue(types.NewCLValue(
			types.Tuple2Type(types.SimpleType(types.CLTypeU64), types.SimpleType(types.CLTypeU64)),
			in.config.RoundSeigniorageRate,
		)),
	)

	totalSupplyURef := in.gen.NewURef(types.AccessReadAddWrite)
	in.tc.Write(
		types.URefKey(totalSupplyURef),
		types.StoredCLValue(types.CLValueU512(types.Motes{})),
	)

	namedKeys := types.NamedKeys{
		types.RoundSeigniorageRateKey: types.URefKey(rateURef),
		types.TotalSupplyKey:          types.URefKey(totalSupplyURef),
	}

	mintHash := in.storeContract(accessKey, namedKeys, mintEntryPoints())

	purses, err := in.createPurses(totalSupplyURef)
	if err != nil {
		return types.Hash{}, nil, err
	}
	return mintHash, purses, nil
}

// createPurses mints every genesis purse in fixed order: proof-of-stake
// payment, delegator reward, validator reward, one per genesis validator,
// one per genesis account. Each purse is created by writing its balance
// record and adding the amount to the total supply directly in the
// tracking copy; no mint contract entry point is called and no caller
// authorization is checked. A mint failure is fatal to genesis.
func (in *Installer) createPurses(totalSupplyURef types.URef) ([]genesisPurse, error) {
	var purses []genesisPurse

	mint := func(amount types.Motes) (types.URef, error) {
		uref := in.gen.NewURef(types.AccessReadAddWrite)
		state.WriteBalance(in.tc, uref, amount)
		if !amount.IsZero() {
			if err := in.tc.Add(types.URefKey(totalSupplyURef), state.AddU512Transform(amount)); err != nil {
				return types.URef{}, MintArithmeticOverflow
			}
		}
		return uref, nil
	}

	uref, err := mint(types.Motes{})
	if err != nil {
		return nil, err
	}
	purses = append(purses, genesisPurse{kind: purseProofOfStake, uref: uref})

	uref, err = mint(types.Motes{})
	if err != nil {
		return nil, err
	}
	purses = append(purses, genesisPurse{kind: purseDelegatorReward, uref: uref})

	uref, err = mint(types.Motes{})
	if err != nil {
		return nil, err
	}
	purses = append(purses, genesisPurse{kind: purseValidatorReward, uref: uref})

	for _, account := range in.config.Accounts {
		if !account.IsGenesisValidator() {
			continue
		}
		uref, err := mint(account.BondedAmount)
		if err != nil {
			return nil, err
		}
		purses = append(purses, genesisPurse{
			kind:      purseGenesisValidator,
			uref:      uref,
			publicKey: *account.PublicKey,
			amount:    account.BondedAmount,
		})
	}

	for _, account := range in.config.Accounts {
		uref, err := mint(account.Balance)
		if err != nil {
			return nil, err
		}
		purses = append(purses, genesisPurse{
			kind:        purseGenesisAccount,
			uref:        uref,
			accountHash: account.AccountHash,
			amount:      account.Balance,
		})
	}

	return purses, nil
}

func (in *Installer) createProofOfStake(purses []genesisPurse) (types.Hash, error) {
	var paymentPurse *types.URef
	for i := range purses {
		if purses[i].kind == purseProofOfStake {
			paymentPurse = &purses[i].uref
			break
		}
	}
	if paymentPurse == nil {
		return types.Hash{}, ErrMissingProofOfStakePaymentPurse
	}

	namedKeys := types.NamedKeys{
		types.PosPaymentPurseKey: types.URefKey(*paymentPurse),
	}
	accessKey := in.gen.NewURef(types.AccessReadAddWrite)
	return in.storeContract(accessKey, namedKeys, proofOfStakeEntryPoints()), nil
}

func (in *Installer) createAuction(purses []genesisPurse) (types.Hash, error) {
	namedKeys := types.NamedKeys{}

	var validatorReward, delegatorReward *types.URef
	for i := range purses {
		switch purses[i].kind {
		case purseValidatorReward:
			validatorReward = &purses[i].uref
		case purseDelegatorReward:
			delegatorReward = &purses[i].uref
		}
	}
	if validatorReward == nil {
		return types.Hash{}, ErrMissingValidatorRewardPurse
	}
	if delegatorReward == nil {
		return types.Hash{}, ErrMissingDelegatorRewardPurse
	}
	namedKeys[types.ValidatorRewardPurseKey] = types.URefKey(*validatorReward)
	namedKeys[types.DelegatorRewardPurseKey] = types.URefKey(*delegatorReward)

	bids := types.Bids{}
	for _, purse := range purses {
		if purse.kind != purseGenesisValidator {
			continue
		}
		releaseEra := types.InitialEraID + in.config.LockedFundsPeriod
		bids[purse.publicKey] = types.NewLockedBid(purse.uref, purse.amount, releaseEra)
	}

	snapshot := initialSeigniorageRecipients(bids, in.config.AuctionDelay)

	writeNamed := func(name string, value types.CLValue) {
		uref := in.gen.NewURef(types.AccessReadAddWrite)
		in.tc.Write(types.URefKey(uref), types.StoredCLValue(value))
		namedKeys[name] = types.URefKey(uref)
	}

	writeNamed(types.EraIDKey, types.CLValueU64(uint64(types.InitialEraID)))
	writeNamed(types.SeigniorageRecipientsSnapshotKey,
		types.NewCLValue(types.SimpleType(types.CLTypeAny), snapshot))
	writeNamed(types.BidsKey, types.NewCLValue(types.SimpleType(types.CLTypeAny), bids))
	writeNamed(types.UnbondingPursesKey,
		types.NewCLValue(types.SimpleType(types.CLTypeAny), types.UnbondingPurses{}))
	writeNamed(types.ValidatorSlotsKey, types.CLValueU32(in.config.ValidatorSlots))
	writeNamed(types.AuctionDelayKey, types.CLValueU64(in.config.AuctionDelay))
	writeNamed(types.LockedFundsPeriodKey, types.CLValueU64(uint64(in.config.LockedFundsPeriod)))
	writeNamed(types.UnbondingDelayKey, types.CLValueU64(in.config.UnbondingDelay))
	writeNamed(types.EraEndTimestampMillisKey, types.CLValueU64(0))
	writeNamed(types.ValidatorRewardMapKey,
		types.NewCLValue(types.SimpleType(types.CLTypeAny), types.ValidatorRewards{}))
	writeNamed(types.DelegatorRewardMapKey,
		types.NewCLValue(types.SimpleType(types.CLTypeAny), types.DelegatorRewards{}))

	accessKey := in.gen.NewURef(types.AccessReadAddWrite)
	return in.storeContract(accessKey, namedKeys, auctionEntryPoints()), nil
}

func (in *Installer) createStandardPayment() types.Hash {
	accessKey := in.gen.NewURef(types.AccessReadAddWrite)
	return in.storeContract(accessKey, types.NamedKeys{}, standardPaymentEntryPoints())
}

// createAccounts writes one account record per genesis account. The
// synthetic system account already exists; its record is overwritten with
// the funded purse, which keeps the write set deterministic.
func (in *Installer) createAccounts(purses []genesisPurse) {
	for _, purse := range purses {
		if purse.kind != purseGenesisAccount {
			continue
		}
		account := types.NewAccount(purse.accountHash, purse.uref)
		in.tc.Write(types.AccountKey(purse.accountHash), types.StoredAccount(account))
	}
}

// registerSystemContracts records the system contract hashes in the
// system account's named keys so later executions can locate them.
func (in *Installer) registerSystemContracts(keys types.NamedKeys) error {
	return in.tc.Add(types.AccountKey(types.SystemAccountAddr), state.AddKeysTransform(keys))
}

// storeContract draws the wasm, contract and package addresses in fixed
// order and writes all three records.
func (in *Installer) storeContract(
	accessKey types.URef,
	namedKeys types.NamedKeys,
	entryPoints types.EntryPoints,
) types.Hash {
	wasmHash := types.Hash(in.gen.NewHashAddress())
	contractHash := types.Hash(in.gen.NewHashAddress())
	packageHash := types.Hash(in.gen.NewHashAddress())

	contract := types.Contract{
		ContractPackageHash: packageHash,
		ContractWasmHash:    wasmHash,
		NamedKeys:           namedKeys,
		EntryPoints:         entryPoints,
		ProtocolVersion:     in.protocolVersion,
	}
	pkg := types.NewContractPackage(accessKey)
	pkg.Insert(in.protocolVersion.Major, contractHash)

	in.tc.Write(types.HashKey(wasmHash), types.StoredContractWasm(types.ContractWasm{}))
	in.tc.Write(types.HashKey(contractHash), types.StoredContract(contract))
	in.tc.Write(types.HashKey(packageHash), types.StoredContractPackage(pkg))
	return contractHash
}

// initialSeigniorageRecipients freezes the founding validators into every
// era of the window [INITIAL_ERA_ID, INITIAL_ERA_ID+auction_delay].
func initialSeigniorageRecipients(bids types.Bids, auctionDelay uint64) *types.SeigniorageRecipientsSnapshot {
	recipients := types.SeigniorageRecipients{}
	for pk, bid := range bids {
		recipients[pk] = types.RecipientFromBid(bid)
	}
	snapshot := types.NewSeigniorageRecipientsSnapshot()
	for era := types.InitialEraID; era <= types.InitialEraID+types.EraID(auctionDelay); era++ {
		cp := make(types.SeigniorageRecipients, len(recipients))
		for pk, r := range recipients {
			cp[pk] = r
		}
		snapshot.Put(era, cp)
	}
	return snapshot
}

// Run performs genesis against a fresh tracking copy over the provider's
// empty root and commits, returning the post-state hash and the effect.
func Run(
	gs *state.InMemoryGlobalState,
	genesisConfigHash types.Hash,
	protocolVersion types.ProtocolVersion,
	config ExecConfig,
) (types.Hash, state.ExecutionEffect, error) {
	reader, err := gs.Checkout(gs.EmptyRoot())
	if err != nil {
		return types.Hash{}, state.ExecutionEffect{}, err
	}
	tc := state.NewTrackingCopy(reader)
	installer := NewInstaller(genesisConfigHash, protocolVersion, config, tc)
	if err := installer.Run(); err != nil {
		return types.Hash{}, state.ExecutionEffect{}, err
	}
	effect := tc.Effect()
	postState, err := gs.Commit(gs.EmptyRoot(), effect)
	if err != nil {
		return types.Hash{}, state.ExecutionEffect{}, err
	}
	log.WithFields(log.Fields{
		"postStateHash": postState,
		"accounts":      len(config.Accounts),
	}).Info("ran genesis")
	return postState, effect, nil
}
