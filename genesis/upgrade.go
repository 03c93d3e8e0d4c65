// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

package genesis

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/casperlabs/casper-node/state"
	"github.com/casperlabs/casper-node/types"
)

// ActivationPoint is the era at which an upgrade takes effect.
type ActivationPoint = types.EraID

// UpgradeConfig describes a protocol upgrade: a version bump of all four
// system contracts plus optional overrides for the tunable chain
// parameters.
type UpgradeConfig struct {
	PreStateHash            types.Hash
	CurrentProtocolVersion  types.ProtocolVersion
	NewProtocolVersion      types.ProtocolVersion
	WasmConfig              *WasmConfig
	ActivationPoint         *ActivationPoint
	NewValidatorSlots       *uint32
	NewAuctionDelay         *uint64
	NewLockedFundsPeriod    *types.EraID
	NewRoundSeigniorageRate *Ratio
	NewUnbondingDelay       *uint64
	NewWasmlessTransferCost *uint64
}

// ProtocolUpgradeError is the closed error enum of the upgrade path.
type ProtocolUpgradeError struct {
	Kind         ProtocolUpgradeErrorKind
	ContractName string
}

type ProtocolUpgradeErrorKind uint8

const (
	InvalidUpgradeConfig ProtocolUpgradeErrorKind = iota
	UnableToRetrieveSystemContract
	UnableToRetrieveSystemContractPackage
	FailedToDisablePreviousVersion
)

func (e *ProtocolUpgradeError) Error() string {
	switch e.Kind {
	case InvalidUpgradeConfig:
		return "invalid upgrade config"
	case UnableToRetrieveSystemContract:
		return fmt.Sprintf("unable to retrieve system contract: %s", e.ContractName)
	case UnableToRetrieveSystemContractPackage:
		return fmt.Sprintf("unable to retrieve system contract package: %s", e.ContractName)
	default:
		return fmt.Sprintf("failed to disable previous version of system contract: %s", e.ContractName)
	}
}

// Upgrader bumps the major version of the four system contracts in a
// tracking copy over the pre-state.
type Upgrader struct {
	config UpgradeConfig
	tc     *state.TrackingCopy
}

func NewUpgrader(config UpgradeConfig, tc *state.TrackingCopy) *Upgrader {
	return &Upgrader{config: config, tc: tc}
}

// Run validates the version bump and upgrades each system contract. The
// contract hashes are resolved through the system account's named keys.
func (up *Upgrader) Run() error {
	current, next := up.config.CurrentProtocolVersion, up.config.NewProtocolVersion
	if next.Compare(current) <= 0 {
		return &ProtocolUpgradeError{Kind: InvalidUpgradeConfig}
	}

	registry, err := up.systemContractRegistry()
	if err != nil {
		return err
	}

	for _, name := range []string{
		types.MintContractName,
		types.AuctionContractName,
		types.ProofOfStakeContractName,
		types.StandardPaymentContractName,
	} {
		key, ok := registry[name]
		if !ok || key.Tag != types.KeyTagHash {
			return &ProtocolUpgradeError{Kind: UnableToRetrieveSystemContract, ContractName: name}
		}
		if err := up.upgradeContract(types.Hash(key.Addr), name); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"from": current,
		"to":   next,
	}).Info("upgraded system contracts")
	return nil
}

func (up *Upgrader) systemContractRegistry() (types.NamedKeys, error) {
	value, err := up.tc.Read(types.AccountKey(types.SystemAccountAddr))
	if err != nil || value == nil || value.Tag != types.StoredValueTagAccount {
		return nil, &ProtocolUpgradeError{Kind: InvalidUpgradeConfig}
	}
	return value.Account.NamedKeys, nil
}

// upgradeContract reads the contract and its package, disables the
// previous version, bumps the contract's protocol version and registers
// the new major version in the package.
func (up *Upgrader) upgradeContract(contractHash types.Hash, name string) error {
	value, err := up.tc.Read(types.HashKey(contractHash))
	if err != nil || value == nil || value.Tag != types.StoredValueTagContract {
		return &ProtocolUpgradeError{Kind: UnableToRetrieveSystemContract, ContractName: name}
	}
	contract := *value.Contract

	packageKey := types.HashKey(contract.ContractPackageHash)
	value, err = up.tc.Read(packageKey)
	if err != nil || value == nil || value.Tag != types.StoredValueTagContractPackage {
		return &ProtocolUpgradeError{Kind: UnableToRetrieveSystemContractPackage, ContractName: name}
	}
	pkg := *value.ContractPackage

	if pkg.IsDisabled(contractHash) {
		return &ProtocolUpgradeError{Kind: FailedToDisablePreviousVersion, ContractName: name}
	}
	pkg.Disable(contractHash)
	contract.ProtocolVersion = up.config.NewProtocolVersion
	pkg.Insert(up.config.NewProtocolVersion.Major, contractHash)

	up.tc.Write(types.HashKey(contractHash), types.StoredContract(contract))
	up.tc.Write(packageKey, types.StoredContractPackage(pkg))
	return nil
}

// RunUpgrade performs a protocol upgrade against the provider and
// commits, returning the post-state hash.
func RunUpgrade(gs *state.InMemoryGlobalState, config UpgradeConfig) (types.Hash, state.ExecutionEffect, error) {
	reader, err := gs.Checkout(config.PreStateHash)
	if err != nil {
		return types.Hash{}, state.ExecutionEffect{}, err
	}
	tc := state.NewTrackingCopy(reader)
	if err := NewUpgrader(config, tc).Run(); err != nil {
		return types.Hash{}, state.ExecutionEffect{}, err
	}
	effect := tc.Effect()
	postState, err := gs.Commit(config.PreStateHash, effect)
	if err != nil {
		return types.Hash{}, state.ExecutionEffect{}, err
	}
	return postState, effect, nil
}
