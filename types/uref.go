package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AccessRights is the bitmask of operations a URef holder may perform.
// Holding a URef grants exactly the bits it carries; forged rights are
// rejected at the runtime boundary.
type AccessRights uint8

const (
	AccessNone  AccessRights = 0
	AccessRead  AccessRights = 1
	AccessWrite AccessRights = 1 << 1
	AccessAdd   AccessRights = 1 << 2

	AccessReadAddWrite = AccessRead | AccessAdd | AccessWrite
)

func (r AccessRights) CanRead() bool  { return r&AccessRead != 0 }
func (r AccessRights) CanWrite() bool { return r&AccessWrite != 0 }
func (r AccessRights) CanAdd() bool   { return r&AccessAdd != 0 }

// URefAddrLength is the length of the opaque address part of a URef.
const URefAddrLength = 32

// URef is an unforgeable reference into global state: a 32-byte address
// plus the access rights its holder enjoys.
type URef struct {
	Addr   [URefAddrLength]byte
	Access AccessRights
}

func NewURef(addr [URefAddrLength]byte, access AccessRights) URef {
	return URef{Addr: addr, Access: access}
}

// WithAccess returns a copy of the URef carrying different access rights.
// Attenuation only; the state layer never widens rights on read-back.
func (u URef) WithAccess(access AccessRights) URef {
	return URef{Addr: u.Addr, Access: access}
}

// String renders the uref in the canonical uref-<addr>-<rights> form.
func (u URef) String() string {
	return fmt.Sprintf("uref-%s-%03o", hexutil.Encode(u.Addr[:])[2:], uint8(u.Access))
}

func (u URef) MarshalBytes(e *Encoder) {
	e.WriteRaw(u.Addr[:])
	e.WriteU8(uint8(u.Access))
}

func (u *URef) UnmarshalBytes(d *Decoder) error {
	raw, err := d.ReadRaw(URefAddrLength)
	if err != nil {
		return err
	}
	copy(u.Addr[:], raw)
	access, err := d.ReadU8()
	if err != nil {
		return err
	}
	if AccessRights(access) > AccessReadAddWrite {
		return ErrFormatting
	}
	u.Access = AccessRights(access)
	return nil
}
