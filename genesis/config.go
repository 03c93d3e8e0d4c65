// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

package genesis

import (
	"github.com/casperlabs/casper-node/types"
)

// Ratio is an exact u64/u64 rational, used for the round seigniorage rate.
type Ratio struct {
	Numer uint64 `mapstructure:"numer"`
	Denom uint64 `mapstructure:"denom"`
}

func (r Ratio) MarshalBytes(e *types.Encoder) {
	e.WriteU64(r.Numer)
	e.WriteU64(r.Denom)
}

func (r *Ratio) UnmarshalBytes(d *types.Decoder) error {
	var err error
	if r.Numer, err = d.ReadU64(); err != nil {
		return err
	}
	r.Denom, err = d.ReadU64()
	return err
}

// WasmConfig bounds WASM execution. The preprocessor and metering tables
// consuming it are external collaborators; the installer only persists
// and upgrades the limits.
type WasmConfig struct {
	MaxMemory      uint32 `mapstructure:"max-memory"`
	MaxStackHeight uint32 `mapstructure:"max-stack-height"`
}

func (w WasmConfig) MarshalBytes(e *types.Encoder) {
	e.WriteU32(w.MaxMemory)
	e.WriteU32(w.MaxStackHeight)
}

func (w *WasmConfig) UnmarshalBytes(d *types.Decoder) error {
	var err error
	if w.MaxMemory, err = d.ReadU32(); err != nil {
		return err
	}
	w.MaxStackHeight, err = d.ReadU32()
	return err
}

// GenesisAccount seeds one account at genesis. An account with a bonded
// amount greater than zero is a genesis validator; the account with the
// all-zero address is the synthetic system account.
type GenesisAccount struct {
	PublicKey    *types.PublicKey `mapstructure:"public-key"`
	AccountHash  types.AccountHash
	Balance      types.Motes `mapstructure:"balance"`
	BondedAmount types.Motes `mapstructure:"bonded-amount"`
}

// NewGenesisAccount builds an account record for a public key.
func NewGenesisAccount(pk types.PublicKey, balance, bonded types.Motes) GenesisAccount {
	return GenesisAccount{
		PublicKey:    &pk,
		AccountHash:  pk.AccountHash(),
		Balance:      balance,
		BondedAmount: bonded,
	}
}

// SystemGenesisAccount builds the synthetic system account record.
func SystemGenesisAccount() GenesisAccount {
	return GenesisAccount{AccountHash: types.SystemAccountAddr}
}

// IsGenesisValidator reports whether the account seeds a founding bid.
func (a GenesisAccount) IsGenesisValidator() bool {
	return a.PublicKey != nil && !a.BondedAmount.IsZero()
}

// IsSystemAccount reports whether this is the synthetic system account.
func (a GenesisAccount) IsSystemAccount() bool {
	return a.AccountHash == types.SystemAccountAddr
}

func (a GenesisAccount) MarshalBytes(e *types.Encoder) {
	e.WriteOption(a.PublicKey != nil)
	if a.PublicKey != nil {
		a.PublicKey.MarshalBytes(e)
	}
	a.AccountHash.MarshalBytes(e)
	a.Balance.MarshalBytes(e)
	a.BondedAmount.MarshalBytes(e)
}

func (a *GenesisAccount) UnmarshalBytes(d *types.Decoder) error {
	present, err := d.ReadOption()
	if err != nil {
		return err
	}
	a.PublicKey = nil
	if present {
		a.PublicKey = new(types.PublicKey)
		if err := a.PublicKey.UnmarshalBytes(d); err != nil {
			return err
		}
	}
	if err := a.AccountHash.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := a.Balance.UnmarshalBytes(d); err != nil {
		return err
	}
	return a.BondedAmount.UnmarshalBytes(d)
}

// ExecConfig is the full recognized option set of a genesis run.
type ExecConfig struct {
	Accounts             []GenesisAccount `mapstructure:"accounts"`
	WasmConfig           WasmConfig       `mapstructure:"wasm-config"`
	ValidatorSlots       uint32           `mapstructure:"validator-slots"`
	AuctionDelay         uint64           `mapstructure:"auction-delay"`
	LockedFundsPeriod    types.EraID      `mapstructure:"locked-funds-period"`
	RoundSeigniorageRate Ratio            `mapstructure:"round-seigniorage-rate"`
	UnbondingDelay       uint64           `mapstructure:"unbonding-delay"`
	WasmlessTransferCost uint64           `mapstructure:"wasmless-transfer-cost"`
}

func (c ExecConfig) MarshalBytes(e *types.Encoder) {
	e.WriteU32(uint32(len(c.Accounts)))
	for _, account := range c.Accounts {
		account.MarshalBytes(e)
	}
	c.WasmConfig.MarshalBytes(e)
	e.WriteU32(c.ValidatorSlots)
	e.WriteU64(c.AuctionDelay)
	e.WriteU64(uint64(c.LockedFundsPeriod))
	c.RoundSeigniorageRate.MarshalBytes(e)
	e.WriteU64(c.UnbondingDelay)
	e.WriteU64(c.WasmlessTransferCost)
}

func (c *ExecConfig) UnmarshalBytes(d *types.Decoder) error {
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	c.Accounts = make([]GenesisAccount, count)
	for i := range c.Accounts {
		if err := c.Accounts[i].UnmarshalBytes(d); err != nil {
			return err
		}
	}
	if err := c.WasmConfig.UnmarshalBytes(d); err != nil {
		return err
	}
	if c.ValidatorSlots, err = d.ReadU32(); err != nil {
		return err
	}
	if c.AuctionDelay, err = d.ReadU64(); err != nil {
		return err
	}
	period, err := d.ReadU64()
	if err != nil {
		return err
	}
	c.LockedFundsPeriod = types.EraID(period)
	if err := c.RoundSeigniorageRate.UnmarshalBytes(d); err != nil {
		return err
	}
	if c.UnbondingDelay, err = d.ReadU64(); err != nil {
		return err
	}
	c.WasmlessTransferCost, err = d.ReadU64()
	return err
}

// Hash is the genesis config hash seeding all genesis address generation.
func (c ExecConfig) Hash() types.Hash {
	return types.HashBytes(types.Marshal(c))
}
