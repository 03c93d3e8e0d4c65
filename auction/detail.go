package auction

import (
	"github.com/casperlabs/casper-node/types"
)

// Named-key accessors over the contract's storage. Every getter resolves
// the named key, follows the uref and decodes the cell; every setter
// writes it back whole.

func (a *Auction) readNamed(name string, out types.Unmarshaler) error {
	key, ok := a.providers.Storage.GetKey(name)
	if !ok {
		return ErrMissingKey
	}
	uref, ok := key.AsURef()
	if !ok {
		return ErrInvalidKeyVariant
	}
	value, found, err := a.providers.Storage.Read(uref)
	if err != nil {
		return ErrStorage
	}
	if !found {
		return ErrMissingValue
	}
	if err := value.Decode(out); err != nil {
		return ErrSerialization
	}
	return nil
}

func (a *Auction) writeNamed(name string, t types.CLType, value types.Marshaler) error {
	key, ok := a.providers.Storage.GetKey(name)
	if !ok {
		return ErrMissingKey
	}
	uref, ok := key.AsURef()
	if !ok {
		return ErrInvalidKeyVariant
	}
	if err := a.providers.Storage.Write(uref, types.NewCLValue(t, value)); err != nil {
		return ErrStorage
	}
	return nil
}

func (a *Auction) namedPurse(name string) (types.URef, error) {
	key, ok := a.providers.Storage.GetKey(name)
	if !ok {
		return types.URef{}, ErrMissingKey
	}
	uref, ok := key.AsURef()
	if !ok {
		return types.URef{}, ErrInvalidKeyVariant
	}
	return uref, nil
}

func anyType() types.CLType { return types.SimpleType(types.CLTypeAny) }

func (a *Auction) getBids() (types.Bids, error) {
	var bids types.Bids
	if err := a.readNamed(types.BidsKey, &bids); err != nil {
		return nil, err
	}
	return bids, nil
}

func (a *Auction) setBids(bids types.Bids) error {
	return a.writeNamed(types.BidsKey, anyType(), bids)
}

func (a *Auction) getUnbondingPurses() (types.UnbondingPurses, error) {
	var purses types.UnbondingPurses
	if err := a.readNamed(types.UnbondingPursesKey, &purses); err != nil {
		return nil, err
	}
	return purses, nil
}

func (a *Auction) setUnbondingPurses(purses types.UnbondingPurses) error {
	return a.writeNamed(types.UnbondingPursesKey, anyType(), purses)
}

type u64Cell uint64

func (c u64Cell) MarshalBytes(e *types.Encoder) { e.WriteU64(uint64(c)) }

func (c *u64Cell) UnmarshalBytes(d *types.Decoder) error {
	v, err := d.ReadU64()
	*c = u64Cell(v)
	return err
}

type u32Cell uint32

func (c u32Cell) MarshalBytes(e *types.Encoder) { e.WriteU32(uint32(c)) }

func (c *u32Cell) UnmarshalBytes(d *types.Decoder) error {
	v, err := d.ReadU32()
	*c = u32Cell(v)
	return err
}

func (a *Auction) getU64(name string) (uint64, error) {
	var cell u64Cell
	if err := a.readNamed(name, &cell); err != nil {
		return 0, err
	}
	return uint64(cell), nil
}

func (a *Auction) setU64(name string, v uint64) error {
	return a.writeNamed(name, types.SimpleType(types.CLTypeU64), u64Cell(v))
}

func (a *Auction) getEraID() (types.EraID, error) {
	v, err := a.getU64(types.EraIDKey)
	return types.EraID(v), err
}

func (a *Auction) setEraID(era types.EraID) error {
	return a.setU64(types.EraIDKey, uint64(era))
}

func (a *Auction) getValidatorSlots() (int, error) {
	var cell u32Cell
	if err := a.readNamed(types.ValidatorSlotsKey, &cell); err != nil {
		return 0, err
	}
	return int(cell), nil
}

func (a *Auction) getAuctionDelay() (uint64, error) {
	return a.getU64(types.AuctionDelayKey)
}

func (a *Auction) getUnbondingDelay() (uint64, error) {
	return a.getU64(types.UnbondingDelayKey)
}

func (a *Auction) getSnapshot() (*types.SeigniorageRecipientsSnapshot, error) {
	snapshot := types.NewSeigniorageRecipientsSnapshot()
	if err := a.readNamed(types.SeigniorageRecipientsSnapshotKey, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (a *Auction) setSnapshot(snapshot *types.SeigniorageRecipientsSnapshot) error {
	return a.writeNamed(types.SeigniorageRecipientsSnapshotKey, anyType(), snapshot)
}

func (a *Auction) getValidatorRewardMap() (types.ValidatorRewards, error) {
	var rewards types.ValidatorRewards
	if err := a.readNamed(types.ValidatorRewardMapKey, &rewards); err != nil {
		return nil, err
	}
	return rewards, nil
}

func (a *Auction) setValidatorRewardMap(rewards types.ValidatorRewards) error {
	return a.writeNamed(types.ValidatorRewardMapKey, anyType(), rewards)
}

func (a *Auction) getDelegatorRewardMap() (types.DelegatorRewards, error) {
	var rewards types.DelegatorRewards
	if err := a.readNamed(types.DelegatorRewardMapKey, &rewards); err != nil {
		return nil, err
	}
	return rewards, nil
}

func (a *Auction) setDelegatorRewardMap(rewards types.DelegatorRewards) error {
	return a.writeNamed(types.DelegatorRewardMapKey, anyType(), rewards)
}

// processUnbondRequests pays out every unbonding purse that has matured:
// current era at or past era_of_creation + unbonding_delay. Runs strictly
// before winner selection during an auction run. System only.
func (a *Auction) processUnbondRequests() error {
	if a.providers.Runtime.GetCaller() != types.SystemAccountAddr {
		return ErrInvalidCaller
	}

	unbondingPurses, err := a.getUnbondingPurses()
	if err != nil {
		return err
	}
	currentEra, err := a.getEraID()
	if err != nil {
		return err
	}
	unbondingDelay, err := a.getUnbondingDelay()
	if err != nil {
		return err
	}

	remaining := types.UnbondingPurses{}
	for _, validatorKey := range types.SortedKeys(unbondingPurses) {
		var kept []types.UnbondingPurse
		for _, entry := range unbondingPurses[validatorKey] {
			if currentEra >= entry.MaturesAt(unbondingDelay) {
				target := entry.UnbonderKey.AccountHash()
				if err := a.providers.System.TransferToAccount(entry.BondingPurse, target, entry.Amount); err != nil {
					return ErrTransferToUnbondingPurse
				}
			} else {
				kept = append(kept, entry)
			}
		}
		if len(kept) > 0 {
			remaining[validatorKey] = kept
		}
	}
	return a.setUnbondingPurses(remaining)
}

// createUnbondingPurse appends a new escrow entry for amount held in
// bondingPurse. Entries are never merged: each withdrawal keeps its own
// maturation bookkeeping.
func (a *Auction) createUnbondingPurse(
	validatorKey, unbonderKey types.PublicKey,
	bondingPurse types.URef,
	amount types.Motes,
) error {
	balance, found, err := a.providers.System.GetBalance(bondingPurse)
	if err != nil {
		return ErrGetBalance
	}
	if !found || balance.Cmp(amount) < 0 {
		return ErrUnbondTooLarge
	}

	unbondingPurses, err := a.getUnbondingPurses()
	if err != nil {
		return err
	}
	eraOfCreation, err := a.getEraID()
	if err != nil {
		return err
	}
	unbondingPurses[validatorKey] = append(unbondingPurses[validatorKey], types.UnbondingPurse{
		BondingPurse:  bondingPurse,
		ValidatorKey:  validatorKey,
		UnbonderKey:   unbonderKey,
		EraOfCreation: eraOfCreation,
		Amount:        amount,
	})
	return a.setUnbondingPurses(unbondingPurses)
}
