package types

import (
	"bytes"
	"fmt"
	"sort"
)

// KeyTag discriminates the variants of a global-state Key. The numeric
// values are wire-stable.
type KeyTag uint8

const (
	KeyTagAccount    KeyTag = 0x01
	KeyTagHash       KeyTag = 0x02
	KeyTagURef       KeyTag = 0x03
	KeyTagTransfer   KeyTag = 0x04
	KeyTagDeployInfo KeyTag = 0x05
	KeyTagEraInfo    KeyTag = 0x06
	KeyTagBalance    KeyTag = 0x07
	KeyTagBid        KeyTag = 0x08
	KeyTagWithdraw   KeyTag = 0x09
)

func (t KeyTag) String() string {
	switch t {
	case KeyTagAccount:
		return "account"
	case KeyTagHash:
		return "hash"
	case KeyTagURef:
		return "uref"
	case KeyTagTransfer:
		return "transfer"
	case KeyTagDeployInfo:
		return "deploy-info"
	case KeyTagEraInfo:
		return "era-info"
	case KeyTagBalance:
		return "balance"
	case KeyTagBid:
		return "bid"
	case KeyTagWithdraw:
		return "withdraw"
	default:
		return fmt.Sprintf("key-tag-%d", uint8(t))
	}
}

// Key addresses a stored value in global state. It is comparable and
// usable as a map key; the Rights field only participates for URef keys
// and is normalized away by Normalize.
type Key struct {
	Tag    KeyTag
	Addr   [32]byte
	Rights AccessRights
	Era    EraID
}

func AccountKey(a AccountHash) Key {
	return Key{Tag: KeyTagAccount, Addr: a}
}

func HashKey(h Hash) Key {
	return Key{Tag: KeyTagHash, Addr: h}
}

func URefKey(u URef) Key {
	return Key{Tag: KeyTagURef, Addr: u.Addr, Rights: u.Access}
}

func TransferKey(h Hash) Key {
	return Key{Tag: KeyTagTransfer, Addr: h}
}

func DeployInfoKey(h Hash) Key {
	return Key{Tag: KeyTagDeployInfo, Addr: h}
}

func EraInfoKey(era EraID) Key {
	return Key{Tag: KeyTagEraInfo, Era: era}
}

func BalanceKey(u URef) Key {
	return Key{Tag: KeyTagBalance, Addr: u.Addr}
}

func BidKey(pk PublicKey) Key {
	return Key{Tag: KeyTagBid, Addr: [32]byte(pk.AccountHash())}
}

func WithdrawKey(pk PublicKey) Key {
	return Key{Tag: KeyTagWithdraw, Addr: [32]byte(pk.AccountHash())}
}

// Normalize strips access rights so that URefs addressing the same cell
// compare equal regardless of the rights they were held with.
func (k Key) Normalize() Key {
	if k.Tag == KeyTagURef {
		k.Rights = AccessNone
	}
	return k
}

// AsURef recovers the URef of a URef-tagged key.
func (k Key) AsURef() (URef, bool) {
	if k.Tag != KeyTagURef {
		return URef{}, false
	}
	return URef{Addr: k.Addr, Access: k.Rights}, true
}

// Compare orders keys by their canonical serialized form.
func (k Key) Compare(other Key) int {
	return bytes.Compare(Marshal(k), Marshal(other))
}

func (k Key) String() string {
	if k.Tag == KeyTagEraInfo {
		return fmt.Sprintf("era-info-%d", uint64(k.Era))
	}
	return fmt.Sprintf("%s-%x", k.Tag, k.Addr)
}

func (k Key) MarshalBytes(e *Encoder) {
	e.WriteU8(uint8(k.Tag))
	switch k.Tag {
	case KeyTagURef:
		e.WriteRaw(k.Addr[:])
		e.WriteU8(uint8(k.Rights))
	case KeyTagEraInfo:
		e.WriteU64(uint64(k.Era))
	default:
		e.WriteRaw(k.Addr[:])
	}
}

func (k *Key) UnmarshalBytes(d *Decoder) error {
	tag, err := d.ReadU8()
	if err != nil {
		return err
	}
	k.Tag = KeyTag(tag)
	switch k.Tag {
	case KeyTagAccount, KeyTagHash, KeyTagTransfer, KeyTagDeployInfo, KeyTagBalance, KeyTagBid, KeyTagWithdraw:
		raw, err := d.ReadRaw(32)
		if err != nil {
			return err
		}
		copy(k.Addr[:], raw)
	case KeyTagURef:
		raw, err := d.ReadRaw(32)
		if err != nil {
			return err
		}
		copy(k.Addr[:], raw)
		rights, err := d.ReadU8()
		if err != nil {
			return err
		}
		k.Rights = AccessRights(rights)
	case KeyTagEraInfo:
		era, err := d.ReadU64()
		if err != nil {
			return err
		}
		k.Era = EraID(era)
	default:
		return ErrFormatting
	}
	return nil
}

// SortKeys sorts global-state keys into canonical order.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
}
