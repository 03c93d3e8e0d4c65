package types

// Transfer records a completed token movement between two purses.
type Transfer struct {
	DeployHash Hash
	From       AccountHash
	To         *AccountHash
	Source     URef
	Target     URef
	Amount     Motes
	Gas        Motes
	ID         *uint64
}

func (t Transfer) MarshalBytes(e *Encoder) {
	t.DeployHash.MarshalBytes(e)
	t.From.MarshalBytes(e)
	e.WriteOption(t.To != nil)
	if t.To != nil {
		t.To.MarshalBytes(e)
	}
	t.Source.MarshalBytes(e)
	t.Target.MarshalBytes(e)
	t.Amount.MarshalBytes(e)
	t.Gas.MarshalBytes(e)
	e.WriteOption(t.ID != nil)
	if t.ID != nil {
		e.WriteU64(*t.ID)
	}
}

func (t *Transfer) UnmarshalBytes(d *Decoder) error {
	if err := t.DeployHash.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := t.From.UnmarshalBytes(d); err != nil {
		return err
	}
	present, err := d.ReadOption()
	if err != nil {
		return err
	}
	t.To = nil
	if present {
		t.To = new(AccountHash)
		if err := t.To.UnmarshalBytes(d); err != nil {
			return err
		}
	}
	if err := t.Source.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := t.Target.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := t.Amount.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := t.Gas.UnmarshalBytes(d); err != nil {
		return err
	}
	present, err = d.ReadOption()
	if err != nil {
		return err
	}
	t.ID = nil
	if present {
		id, err := d.ReadU64()
		if err != nil {
			return err
		}
		t.ID = &id
	}
	return nil
}

// DeployInfo records the execution footprint of one deploy.
type DeployInfo struct {
	DeployHash Hash
	Transfers  []Key
	From       AccountHash
	Source     URef
	Gas        Motes
}

func (info DeployInfo) MarshalBytes(e *Encoder) {
	info.DeployHash.MarshalBytes(e)
	e.WriteU32(uint32(len(info.Transfers)))
	for _, k := range info.Transfers {
		k.MarshalBytes(e)
	}
	info.From.MarshalBytes(e)
	info.Source.MarshalBytes(e)
	info.Gas.MarshalBytes(e)
}

func (info *DeployInfo) UnmarshalBytes(d *Decoder) error {
	if err := info.DeployHash.UnmarshalBytes(d); err != nil {
		return err
	}
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	info.Transfers = make([]Key, count)
	for i := range info.Transfers {
		if err := info.Transfers[i].UnmarshalBytes(d); err != nil {
			return err
		}
	}
	if err := info.From.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := info.Source.UnmarshalBytes(d); err != nil {
		return err
	}
	return info.Gas.UnmarshalBytes(d)
}
