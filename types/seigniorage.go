package types

import (
	"github.com/emirpasic/gods/maps/treemap"
)

// SeigniorageRecipient is the frozen weight of one validator at the moment
// it was elected into a future era's validator set.
type SeigniorageRecipient struct {
	Stake          Motes
	DelegationRate uint8
	DelegatorStake map[PublicKey]Motes
}

// RecipientFromBid snapshots a bid's current stake distribution.
func RecipientFromBid(bid *Bid) SeigniorageRecipient {
	delegatorStake := make(map[PublicKey]Motes, len(bid.Delegators))
	for pk, del := range bid.Delegators {
		delegatorStake[pk] = del.StakedAmount
	}
	return SeigniorageRecipient{
		Stake:          bid.StakedAmount,
		DelegationRate: bid.DelegationRate,
		DelegatorStake: delegatorStake,
	}
}

// TotalStake is the recipient's own stake plus all delegated stake.
func (r SeigniorageRecipient) TotalStake() (Motes, error) {
	total := r.Stake
	for _, pk := range SortedKeys(r.DelegatorStake) {
		var err error
		total, err = total.Add(r.DelegatorStake[pk])
		if err != nil {
			return Motes{}, err
		}
	}
	return total, nil
}

func (r SeigniorageRecipient) MarshalBytes(e *Encoder) {
	r.Stake.MarshalBytes(e)
	e.WriteU8(r.DelegationRate)
	keys := SortedKeys(r.DelegatorStake)
	e.WriteU32(uint32(len(keys)))
	for _, pk := range keys {
		pk.MarshalBytes(e)
		stake := r.DelegatorStake[pk]
		stake.MarshalBytes(e)
	}
}

func (r *SeigniorageRecipient) UnmarshalBytes(d *Decoder) error {
	if err := r.Stake.UnmarshalBytes(d); err != nil {
		return err
	}
	rate, err := d.ReadU8()
	if err != nil {
		return err
	}
	r.DelegationRate = rate
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	r.DelegatorStake = make(map[PublicKey]Motes, count)
	for i := 0; i < count; i++ {
		var pk PublicKey
		if err := pk.UnmarshalBytes(d); err != nil {
			return err
		}
		var stake Motes
		if err := stake.UnmarshalBytes(d); err != nil {
			return err
		}
		r.DelegatorStake[pk] = stake
	}
	return nil
}

// SeigniorageRecipients is one era's elected validator set with weights.
type SeigniorageRecipients map[PublicKey]SeigniorageRecipient

func (sr SeigniorageRecipients) MarshalBytes(e *Encoder) {
	keys := SortedKeys(sr)
	e.WriteU32(uint32(len(keys)))
	for _, pk := range keys {
		pk.MarshalBytes(e)
		recipient := sr[pk]
		recipient.MarshalBytes(e)
	}
}

func (sr *SeigniorageRecipients) UnmarshalBytes(d *Decoder) error {
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	out := make(SeigniorageRecipients, count)
	for i := 0; i < count; i++ {
		var pk PublicKey
		if err := pk.UnmarshalBytes(d); err != nil {
			return err
		}
		var recipient SeigniorageRecipient
		if err := recipient.UnmarshalBytes(d); err != nil {
			return err
		}
		out[pk] = recipient
	}
	*sr = out
	return nil
}

// SeigniorageRecipientsSnapshot is the era-keyed window of future validator
// sets. Its length is always exactly auction_delay+1 and its keys are the
// contiguous range [current, current+auction_delay].
type SeigniorageRecipientsSnapshot struct {
	eras *treemap.Map
}

func eraComparator(a, b interface{}) int {
	ea, eb := a.(EraID), b.(EraID)
	switch {
	case ea < eb:
		return -1
	case ea > eb:
		return 1
	default:
		return 0
	}
}

func NewSeigniorageRecipientsSnapshot() *SeigniorageRecipientsSnapshot {
	return &SeigniorageRecipientsSnapshot{eras: treemap.NewWith(eraComparator)}
}

func (s *SeigniorageRecipientsSnapshot) Len() int {
	return s.eras.Size()
}

// Eras returns the snapshot's era keys in ascending order.
func (s *SeigniorageRecipientsSnapshot) Eras() []EraID {
	out := make([]EraID, 0, s.eras.Size())
	for _, k := range s.eras.Keys() {
		out = append(out, k.(EraID))
	}
	return out
}

func (s *SeigniorageRecipientsSnapshot) Get(era EraID) (SeigniorageRecipients, bool) {
	v, ok := s.eras.Get(era)
	if !ok {
		return nil, false
	}
	return v.(SeigniorageRecipients), true
}

func (s *SeigniorageRecipientsSnapshot) Put(era EraID, recipients SeigniorageRecipients) {
	s.eras.Put(era, recipients)
}

// PruneBelow drops every entry with an era id strictly less than era.
func (s *SeigniorageRecipientsSnapshot) PruneBelow(era EraID) {
	for {
		k, _ := s.eras.Min()
		if k == nil || k.(EraID) >= era {
			return
		}
		s.eras.Remove(k)
	}
}

func (s *SeigniorageRecipientsSnapshot) Clone() *SeigniorageRecipientsSnapshot {
	out := NewSeigniorageRecipientsSnapshot()
	it := s.eras.Iterator()
	for it.Next() {
		recipients := it.Value().(SeigniorageRecipients)
		cp := make(SeigniorageRecipients, len(recipients))
		for pk, r := range recipients {
			cp[pk] = r
		}
		out.eras.Put(it.Key(), cp)
	}
	return out
}

func (s *SeigniorageRecipientsSnapshot) MarshalBytes(e *Encoder) {
	e.WriteU32(uint32(s.eras.Size()))
	it := s.eras.Iterator()
	for it.Next() {
		e.WriteU64(uint64(it.Key().(EraID)))
		it.Value().(SeigniorageRecipients).MarshalBytes(e)
	}
}

func (s *SeigniorageRecipientsSnapshot) UnmarshalBytes(d *Decoder) error {
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	s.eras = treemap.NewWith(eraComparator)
	for i := 0; i < count; i++ {
		era, err := d.ReadU64()
		if err != nil {
			return err
		}
		var recipients SeigniorageRecipients
		if err := recipients.UnmarshalBytes(d); err != nil {
			return err
		}
		s.eras.Put(EraID(era), recipients)
	}
	return nil
}

// SeigniorageAllocation is one line of the per-era reward audit log.
type SeigniorageAllocation struct {
	// DelegatorKey is unset for validator allocations.
	DelegatorKey *PublicKey
	ValidatorKey PublicKey
	Amount       Motes
}

func ValidatorAllocation(validator PublicKey, amount Motes) SeigniorageAllocation {
	return SeigniorageAllocation{ValidatorKey: validator, Amount: amount}
}

func DelegatorAllocation(delegator, validator PublicKey, amount Motes) SeigniorageAllocation {
	return SeigniorageAllocation{DelegatorKey: &delegator, ValidatorKey: validator, Amount: amount}
}

func (a SeigniorageAllocation) MarshalBytes(e *Encoder) {
	if a.DelegatorKey == nil {
		e.WriteU8(0)
	} else {
		e.WriteU8(1)
		a.DelegatorKey.MarshalBytes(e)
	}
	a.ValidatorKey.MarshalBytes(e)
	a.Amount.MarshalBytes(e)
}

func (a *SeigniorageAllocation) UnmarshalBytes(d *Decoder) error {
	tag, err := d.ReadU8()
	if err != nil {
		return err
	}
	switch tag {
	case 0:
		a.DelegatorKey = nil
	case 1:
		a.DelegatorKey = new(PublicKey)
		if err := a.DelegatorKey.UnmarshalBytes(d); err != nil {
			return err
		}
	default:
		return ErrFormatting
	}
	if err := a.ValidatorKey.UnmarshalBytes(d); err != nil {
		return err
	}
	return a.Amount.UnmarshalBytes(d)
}

// EraInfo is the audit record of one era's seigniorage distribution.
type EraInfo struct {
	SeigniorageAllocations []SeigniorageAllocation
}

func (info EraInfo) MarshalBytes(e *Encoder) {
	e.WriteU32(uint32(len(info.SeigniorageAllocations)))
	for _, alloc := range info.SeigniorageAllocations {
		alloc.MarshalBytes(e)
	}
}

func (info *EraInfo) UnmarshalBytes(d *Decoder) error {
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	info.SeigniorageAllocations = make([]SeigniorageAllocation, count)
	for i := range info.SeigniorageAllocations {
		if err := info.SeigniorageAllocations[i].UnmarshalBytes(d); err != nil {
			return err
		}
	}
	return nil
}
