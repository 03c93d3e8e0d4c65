package types

import "errors"

// DelegationRateDenominator bounds the delegation rate: a percentage.
const DelegationRateDenominator = 100

var ErrDelegationRateTooLarge = errors.New("delegation rate too large")

// VestingSchedule locks a founding validator's stake until a release era.
type VestingSchedule struct {
	ReleaseEra EraID
}

// IsLocked reports whether the stake is still locked in the given era.
func (v VestingSchedule) IsLocked(current EraID) bool {
	return current < v.ReleaseEra
}

func (v VestingSchedule) MarshalBytes(e *Encoder) {
	e.WriteU64(uint64(v.ReleaseEra))
}

func (v *VestingSchedule) UnmarshalBytes(d *Decoder) error {
	era, err := d.ReadU64()
	if err != nil {
		return err
	}
	v.ReleaseEra = EraID(era)
	return nil
}

// Delegator is a third-party stake put under a validator.
type Delegator struct {
	StakedAmount    Motes
	BondingPurse    URef
	ValidatorKey    PublicKey
	VestingSchedule *VestingSchedule
}

// IncreaseStake adds to the delegated stake, checked.
func (del *Delegator) IncreaseStake(amount Motes) error {
	sum, err := del.StakedAmount.Add(amount)
	if err != nil {
		return err
	}
	del.StakedAmount = sum
	return nil
}

// DecreaseStake removes from the delegated stake, checked.
func (del *Delegator) DecreaseStake(amount Motes) error {
	diff, err := del.StakedAmount.Sub(amount)
	if err != nil {
		return err
	}
	del.StakedAmount = diff
	return nil
}

func (del Delegator) MarshalBytes(e *Encoder) {
	del.StakedAmount.MarshalBytes(e)
	del.BondingPurse.MarshalBytes(e)
	del.ValidatorKey.MarshalBytes(e)
	e.WriteOption(del.VestingSchedule != nil)
	if del.VestingSchedule != nil {
		del.VestingSchedule.MarshalBytes(e)
	}
}

func (del *Delegator) UnmarshalBytes(d *Decoder) error {
	if err := del.StakedAmount.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := del.BondingPurse.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := del.ValidatorKey.UnmarshalBytes(d); err != nil {
		return err
	}
	present, err := d.ReadOption()
	if err != nil {
		return err
	}
	del.VestingSchedule = nil
	if present {
		del.VestingSchedule = new(VestingSchedule)
		return del.VestingSchedule.UnmarshalBytes(d)
	}
	return nil
}

// Bid is a validator's self-stake plus the delegations put under it.
// Invariant: StakedAmount equals the validator share of the bonding purse
// balance.
type Bid struct {
	BondingPurse    URef
	StakedAmount    Motes
	DelegationRate  uint8
	VestingSchedule *VestingSchedule
	Delegators      map[PublicKey]*Delegator
	Inactive        bool
}

// NewBid creates an unlocked bid.
func NewBid(bondingPurse URef, staked Motes, delegationRate uint8) *Bid {
	return &Bid{
		BondingPurse:   bondingPurse,
		StakedAmount:   staked,
		DelegationRate: delegationRate,
		Delegators:     map[PublicKey]*Delegator{},
	}
}

// NewLockedBid creates a founding-validator bid whose stake is locked
// until the release era.
func NewLockedBid(bondingPurse URef, staked Motes, releaseEra EraID) *Bid {
	bid := NewBid(bondingPurse, staked, 0)
	bid.VestingSchedule = &VestingSchedule{ReleaseEra: releaseEra}
	return bid
}

// IsLocked reports whether the founding stake is still vesting.
func (b *Bid) IsLocked(current EraID) bool {
	return b.VestingSchedule != nil && b.VestingSchedule.IsLocked(current)
}

// TotalStake is the validator stake plus all delegated stake.
func (b *Bid) TotalStake() (Motes, error) {
	total := b.StakedAmount
	for _, pk := range SortedKeys(b.Delegators) {
		var err error
		total, err = total.Add(b.Delegators[pk].StakedAmount)
		if err != nil {
			return Motes{}, err
		}
	}
	return total, nil
}

// DelegatorStake sums the delegated stake only.
func (b *Bid) DelegatorStake() (Motes, error) {
	var total Motes
	for _, pk := range SortedKeys(b.Delegators) {
		var err error
		total, err = total.Add(b.Delegators[pk].StakedAmount)
		if err != nil {
			return Motes{}, err
		}
	}
	return total, nil
}

// IncreaseStake adds to the validator's own stake, checked.
func (b *Bid) IncreaseStake(amount Motes) error {
	sum, err := b.StakedAmount.Add(amount)
	if err != nil {
		return err
	}
	b.StakedAmount = sum
	return nil
}

// DecreaseStake removes from the validator's own stake, checked.
func (b *Bid) DecreaseStake(amount Motes) error {
	diff, err := b.StakedAmount.Sub(amount)
	if err != nil {
		return err
	}
	b.StakedAmount = diff
	return nil
}

func (b *Bid) Clone() *Bid {
	out := *b
	if b.VestingSchedule != nil {
		vs := *b.VestingSchedule
		out.VestingSchedule = &vs
	}
	out.Delegators = make(map[PublicKey]*Delegator, len(b.Delegators))
	for pk, del := range b.Delegators {
		cp := *del
		out.Delegators[pk] = &cp
	}
	return &out
}

func (b Bid) MarshalBytes(e *Encoder) {
	b.BondingPurse.MarshalBytes(e)
	b.StakedAmount.MarshalBytes(e)
	e.WriteU8(b.DelegationRate)
	e.WriteOption(b.VestingSchedule != nil)
	if b.VestingSchedule != nil {
		b.VestingSchedule.MarshalBytes(e)
	}
	keys := SortedKeys(b.Delegators)
	e.WriteU32(uint32(len(keys)))
	for _, pk := range keys {
		pk.MarshalBytes(e)
		b.Delegators[pk].MarshalBytes(e)
	}
	e.WriteBool(b.Inactive)
}

func (b *Bid) UnmarshalBytes(d *Decoder) error {
	if err := b.BondingPurse.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := b.StakedAmount.UnmarshalBytes(d); err != nil {
		return err
	}
	rate, err := d.ReadU8()
	if err != nil {
		return err
	}
	if rate > DelegationRateDenominator {
		return ErrFormatting
	}
	b.DelegationRate = rate
	present, err := d.ReadOption()
	if err != nil {
		return err
	}
	b.VestingSchedule = nil
	if present {
		b.VestingSchedule = new(VestingSchedule)
		if err := b.VestingSchedule.UnmarshalBytes(d); err != nil {
			return err
		}
	}
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	b.Delegators = make(map[PublicKey]*Delegator, count)
	for i := 0; i < count; i++ {
		var pk PublicKey
		if err := pk.UnmarshalBytes(d); err != nil {
			return err
		}
		del := new(Delegator)
		if err := del.UnmarshalBytes(d); err != nil {
			return err
		}
		b.Delegators[pk] = del
	}
	b.Inactive, err = d.ReadBool()
	return err
}

// Bids is the full bid table, keyed by validator public key.
type Bids map[PublicKey]*Bid

func (bids Bids) MarshalBytes(e *Encoder) {
	keys := SortedKeys(bids)
	e.WriteU32(uint32(len(keys)))
	for _, pk := range keys {
		pk.MarshalBytes(e)
		bids[pk].MarshalBytes(e)
	}
}

func (bids *Bids) UnmarshalBytes(d *Decoder) error {
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	out := make(Bids, count)
	for i := 0; i < count; i++ {
		var pk PublicKey
		if err := pk.UnmarshalBytes(d); err != nil {
			return err
		}
		bid := new(Bid)
		if err := bid.UnmarshalBytes(d); err != nil {
			return err
		}
		out[pk] = bid
	}
	*bids = out
	return nil
}

// UnbondingPurse is an escrow entry holding withdrawn stake until its
// maturation era.
type UnbondingPurse struct {
	BondingPurse  URef
	ValidatorKey  PublicKey
	UnbonderKey   PublicKey
	EraOfCreation EraID
	Amount        Motes
}

// MaturesAt returns the first era in which the entry may be paid out.
func (u UnbondingPurse) MaturesAt(unbondingDelay uint64) EraID {
	return EraID(uint64(u.EraOfCreation) + unbondingDelay)
}

func (u UnbondingPurse) MarshalBytes(e *Encoder) {
	u.BondingPurse.MarshalBytes(e)
	u.ValidatorKey.MarshalBytes(e)
	u.UnbonderKey.MarshalBytes(e)
	e.WriteU64(uint64(u.EraOfCreation))
	u.Amount.MarshalBytes(e)
}

func (u *UnbondingPurse) UnmarshalBytes(d *Decoder) error {
	if err := u.BondingPurse.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := u.ValidatorKey.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := u.UnbonderKey.UnmarshalBytes(d); err != nil {
		return err
	}
	era, err := d.ReadU64()
	if err != nil {
		return err
	}
	u.EraOfCreation = EraID(era)
	return u.Amount.UnmarshalBytes(d)
}

// UnbondingPurses groups pending unbonds by validator key. Entries under
// one validator keep their creation order.
type UnbondingPurses map[PublicKey][]UnbondingPurse

func (u UnbondingPurses) MarshalBytes(e *Encoder) {
	keys := SortedKeys(u)
	e.WriteU32(uint32(len(keys)))
	for _, pk := range keys {
		pk.MarshalBytes(e)
		list := u[pk]
		e.WriteU32(uint32(len(list)))
		for _, entry := range list {
			entry.MarshalBytes(e)
		}
	}
}

func (u *UnbondingPurses) UnmarshalBytes(d *Decoder) error {
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	out := make(UnbondingPurses, count)
	for i := 0; i < count; i++ {
		var pk PublicKey
		if err := pk.UnmarshalBytes(d); err != nil {
			return err
		}
		n, err := d.ReadLength()
		if err != nil {
			return err
		}
		list := make([]UnbondingPurse, n)
		for j := range list {
			if err := list[j].UnmarshalBytes(d); err != nil {
				return err
			}
		}
		out[pk] = list
	}
	*u = out
	return nil
}
