package auction

import (
	"math/big"

	"github.com/casperlabs/casper-node/state"
	"github.com/casperlabs/casper-node/types"
)

// Runtime realizes the provider set over a tracking copy: the auction
// contract executing natively inside one deploy. It resolves the auction
// and mint contracts through the system account's named keys.
type Runtime struct {
	tc     *state.TrackingCopy
	gen    *state.AddressGenerator
	caller types.AccountHash

	auctionKeys types.NamedKeys
	mintKeys    types.NamedKeys
}

var (
	_ RuntimeProvider = (*Runtime)(nil)
	_ StorageProvider = (*Runtime)(nil)
	_ SystemProvider  = (*Runtime)(nil)
)

// NewRuntime builds the call context for one auction invocation.
func NewRuntime(
	tc *state.TrackingCopy,
	gen *state.AddressGenerator,
	caller types.AccountHash,
) (*Runtime, error) {
	system, err := tc.Read(types.AccountKey(types.SystemAccountAddr))
	if err != nil || system == nil || system.Tag != types.StoredValueTagAccount {
		return nil, ErrInvalidContext
	}

	readContractKeys := func(name string) (types.NamedKeys, error) {
		key, ok := system.Account.NamedKeys[name]
		if !ok || key.Tag != types.KeyTagHash {
			return nil, ErrMissingKey
		}
		value, err := tc.Read(key)
		if err != nil || value == nil || value.Tag != types.StoredValueTagContract {
			return nil, ErrMissingValue
		}
		return value.Contract.NamedKeys, nil
	}

	auctionKeys, err := readContractKeys(types.AuctionContractName)
	if err != nil {
		return nil, err
	}
	mintKeys, err := readContractKeys(types.MintContractName)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		tc:          tc,
		gen:         gen,
		caller:      caller,
		auctionKeys: auctionKeys,
		mintKeys:    mintKeys,
	}, nil
}

// Providers bundles the runtime for the Auction entry points.
func (r *Runtime) Providers() Providers {
	return Providers{Runtime: r, Storage: r, System: r}
}

func (r *Runtime) GetCaller() types.AccountHash {
	return r.caller
}

func (r *Runtime) GetKey(name string) (types.Key, bool) {
	key, ok := r.auctionKeys[name]
	return key, ok
}

func (r *Runtime) Read(uref types.URef) (types.CLValue, bool, error) {
	value, err := r.tc.Read(types.URefKey(uref))
	if err != nil {
		return types.CLValue{}, false, err
	}
	if value == nil {
		return types.CLValue{}, false, nil
	}
	clv, ok := value.AsCLValue()
	if !ok {
		return types.CLValue{}, false, ErrSerialization
	}
	return clv, true, nil
}

func (r *Runtime) Write(uref types.URef, value types.CLValue) error {
	r.tc.Write(types.URefKey(uref), types.StoredCLValue(value))
	return nil
}

func (r *Runtime) CreatePurse() (types.URef, error) {
	uref := r.gen.NewURef(types.AccessReadAddWrite)
	state.WriteBalance(r.tc, uref, types.Motes{})
	return uref, nil
}

func (r *Runtime) GetBalance(purse types.URef) (types.Motes, bool, error) {
	return state.ReadBalance(r.tc, purse)
}

func (r *Runtime) Transfer(source, target types.URef, amount types.Motes) error {
	return state.TransferBalance(r.tc, source, target, amount)
}

// TransferToAccount pays into the target account's main purse, creating
// the account with a fresh purse when it does not exist yet.
func (r *Runtime) TransferToAccount(
	source types.URef,
	target types.AccountHash,
	amount types.Motes,
) error {
	account, err := r.tc.Read(types.AccountKey(target))
	if err != nil {
		return err
	}
	var mainPurse types.URef
	if account == nil {
		mainPurse, err = r.CreatePurse()
		if err != nil {
			return err
		}
		record := types.NewAccount(target, mainPurse)
		r.tc.Write(types.AccountKey(target), types.StoredAccount(record))
	} else {
		if account.Tag != types.StoredValueTagAccount {
			return ErrInvalidContext
		}
		mainPurse = account.Account.MainPurse
	}
	return state.TransferBalance(r.tc, source, mainPurse, amount)
}

func (r *Runtime) mintURef(name string) (types.URef, error) {
	key, ok := r.mintKeys[name]
	if !ok {
		return types.URef{}, ErrMissingKey
	}
	uref, ok := key.AsURef()
	if !ok {
		return types.URef{}, ErrInvalidKeyVariant
	}
	return uref, nil
}

func (r *Runtime) totalSupply() (types.Motes, types.URef, error) {
	uref, err := r.mintURef(types.TotalSupplyKey)
	if err != nil {
		return types.Motes{}, types.URef{}, err
	}
	value, err := r.tc.Read(types.URefKey(uref))
	if err != nil || value == nil {
		return types.Motes{}, types.URef{}, ErrMissingValue
	}
	clv, ok := value.AsCLValue()
	if !ok {
		return types.Motes{}, types.URef{}, ErrSerialization
	}
	supply, err := clv.ToU512()
	if err != nil {
		return types.Motes{}, types.URef{}, ErrSerialization
	}
	return supply, uref, nil
}

// MintIntoPurse creates new supply in the target purse, increasing the
// mint's total supply alongside.
func (r *Runtime) MintIntoPurse(target types.URef, amount types.Motes) error {
	if amount.IsZero() {
		return nil
	}
	if err := state.AddToBalance(r.tc, target, amount); err != nil {
		return err
	}
	supplyURef, err := r.mintURef(types.TotalSupplyKey)
	if err != nil {
		return err
	}
	return r.tc.Add(types.URefKey(supplyURef), state.AddU512Transform(amount))
}

// ReadBaseRoundReward computes round_seigniorage_rate * total_supply,
// floored.
func (r *Runtime) ReadBaseRoundReward() (types.Motes, error) {
	supply, _, err := r.totalSupply()
	if err != nil {
		return types.Motes{}, err
	}
	rateURef, err := r.mintURef(types.RoundSeigniorageRateKey)
	if err != nil {
		return types.Motes{}, err
	}
	value, err := r.tc.Read(types.URefKey(rateURef))
	if err != nil || value == nil {
		return types.Motes{}, ErrMissingValue
	}
	clv, ok := value.AsCLValue()
	if !ok {
		return types.Motes{}, ErrSerialization
	}
	d := types.NewDecoder(clv.Bytes)
	numer, err := d.ReadU64()
	if err != nil {
		return types.Motes{}, ErrSerialization
	}
	denom, err := d.ReadU64()
	if err != nil {
		return types.Motes{}, ErrSerialization
	}
	if denom == 0 {
		return types.Motes{}, ErrArithmeticOverflow
	}
	return supply.MulDiv(new(big.Int).SetUint64(numer), new(big.Int).SetUint64(denom))
}

func (r *Runtime) RecordEraInfo(era types.EraID, info types.EraInfo) error {
	r.tc.Write(types.EraInfoKey(era), types.StoredEraInfo(info))
	return nil
}
