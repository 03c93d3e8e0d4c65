package types

import "sort"

// NamedKeys maps human-readable names to global-state keys. Serialized in
// name order.
type NamedKeys map[string]Key

func (n NamedKeys) Clone() NamedKeys {
	out := make(NamedKeys, len(n))
	for k, v := range n {
		out[k] = v
	}
	return out
}

// SortedNames returns the key names in serialization order.
func (n NamedKeys) SortedNames() []string {
	names := make([]string, 0, len(n))
	for name := range n {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n NamedKeys) MarshalBytes(e *Encoder) {
	names := n.SortedNames()
	e.WriteU32(uint32(len(names)))
	for _, name := range names {
		e.WriteString(name)
		key := n[name]
		key.MarshalBytes(e)
	}
}

func (n *NamedKeys) UnmarshalBytes(d *Decoder) error {
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	out := make(NamedKeys, count)
	for i := 0; i < count; i++ {
		name, err := d.ReadString()
		if err != nil {
			return err
		}
		var key Key
		if err := key.UnmarshalBytes(d); err != nil {
			return err
		}
		out[name] = key
	}
	*n = out
	return nil
}

// Account is the on-chain record of an externally owned account.
type Account struct {
	AccountHash AccountHash
	NamedKeys   NamedKeys
	MainPurse   URef
}

func NewAccount(addr AccountHash, mainPurse URef) Account {
	return Account{
		AccountHash: addr,
		NamedKeys:   NamedKeys{},
		MainPurse:   mainPurse,
	}
}

func (a Account) MarshalBytes(e *Encoder) {
	a.AccountHash.MarshalBytes(e)
	a.NamedKeys.MarshalBytes(e)
	a.MainPurse.MarshalBytes(e)
}

func (a *Account) UnmarshalBytes(d *Decoder) error {
	if err := a.AccountHash.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := a.NamedKeys.UnmarshalBytes(d); err != nil {
		return err
	}
	return a.MainPurse.UnmarshalBytes(d)
}
