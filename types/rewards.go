package types

// ValidatorRewards holds per-validator reward amounts that were computed
// by a distribution but could not be reinvested; they remain withdrawable
// from the validator reward purse.
type ValidatorRewards map[PublicKey]Motes

func (r ValidatorRewards) MarshalBytes(e *Encoder) {
	keys := SortedKeys(r)
	e.WriteU32(uint32(len(keys)))
	for _, pk := range keys {
		pk.MarshalBytes(e)
		amount := r[pk]
		amount.MarshalBytes(e)
	}
}

func (r *ValidatorRewards) UnmarshalBytes(d *Decoder) error {
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	out := make(ValidatorRewards, count)
	for i := 0; i < count; i++ {
		var pk PublicKey
		if err := pk.UnmarshalBytes(d); err != nil {
			return err
		}
		var amount Motes
		if err := amount.UnmarshalBytes(d); err != nil {
			return err
		}
		out[pk] = amount
	}
	*r = out
	return nil
}

// DelegatorRewards is the delegator-side analogue, keyed by delegator and
// then by validator.
type DelegatorRewards map[PublicKey]ValidatorRewards

func (r DelegatorRewards) MarshalBytes(e *Encoder) {
	keys := SortedKeys(r)
	e.WriteU32(uint32(len(keys)))
	for _, pk := range keys {
		pk.MarshalBytes(e)
		r[pk].MarshalBytes(e)
	}
}

func (r *DelegatorRewards) UnmarshalBytes(d *Decoder) error {
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	out := make(DelegatorRewards, count)
	for i := 0; i < count; i++ {
		var pk PublicKey
		if err := pk.UnmarshalBytes(d); err != nil {
			return err
		}
		var inner ValidatorRewards
		if err := inner.UnmarshalBytes(d); err != nil {
			return err
		}
		out[pk] = inner
	}
	*r = out
	return nil
}
