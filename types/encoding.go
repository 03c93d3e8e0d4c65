package types

import (
	"encoding/binary"
	"errors"
	"sort"
)

// Canonical byte encoding shared by every persisted and signed structure:
// integers are little-endian fixed width, amounts are length-prefixed
// big-endian with the high bytes trimmed, options carry a 0/1 tag,
// sequences a u32 length, maps are sorted-by-key sequences and enums a u8
// discriminant.

var (
	ErrEarlyEndOfStream = errors.New("early end of stream")
	ErrFormatting       = errors.New("formatting error")
	ErrLeftOverBytes    = errors.New("left over bytes")
)

// Marshaler is implemented by every structure with a canonical encoding.
type Marshaler interface {
	MarshalBytes(e *Encoder)
}

// Unmarshaler is the inverse of Marshaler.
type Unmarshaler interface {
	UnmarshalBytes(d *Decoder) error
}

type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Marshal returns the canonical encoding of m.
func Marshal(m Marshaler) []byte {
	e := NewEncoder()
	m.MarshalBytes(e)
	return e.Bytes()
}

// Unmarshal decodes exactly one value of u from data. Trailing bytes are an
// error.
func Unmarshal(data []byte, u Unmarshaler) error {
	d := NewDecoder(data)
	if err := u.UnmarshalBytes(d); err != nil {
		return err
	}
	return d.Finish()
}

func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) WriteRaw(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *Encoder) WriteBool(b bool) {
	if b {
		e.WriteU8(1)
	} else {
		e.WriteU8(0)
	}
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteU16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) WriteU32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) WriteU64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// WriteBytes writes a u32 length prefix followed by the raw bytes.
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteU32(uint32(len(b)))
	e.WriteRaw(b)
}

func (e *Encoder) WriteString(s string) {
	e.WriteBytes([]byte(s))
}

// WriteOption writes the 0/1 presence tag; the caller writes the payload
// when present is true.
func (e *Encoder) WriteOption(present bool) {
	e.WriteBool(present)
}

// WriteStringMap writes a map with string keys as a sorted-by-key sequence.
func WriteStringMap[V Marshaler](e *Encoder, m map[string]V) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.WriteU32(uint32(len(keys)))
	for _, k := range keys {
		e.WriteString(k)
		m[k].MarshalBytes(e)
	}
}

type Decoder struct {
	rest []byte
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{rest: data}
}

// Finish reports an error unless the decoder consumed its entire input.
func (d *Decoder) Finish() error {
	if len(d.rest) != 0 {
		return ErrLeftOverBytes
	}
	return nil
}

func (d *Decoder) take(n int) ([]byte, error) {
	if len(d.rest) < n {
		return nil, ErrEarlyEndOfStream
	}
	out := d.rest[:n]
	d.rest = d.rest[n:]
	return out, nil
}

func (d *Decoder) ReadByte() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrFormatting
	}
}

func (d *Decoder) ReadU8() (uint8, error) {
	return d.ReadByte()
}

func (d *Decoder) ReadU16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) ReadU32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) ReadU64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadRaw reads exactly n bytes with no length prefix.
func (d *Decoder) ReadRaw(n int) ([]byte, error) {
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadBytes reads a u32 length prefix followed by that many bytes.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(len(d.rest)) {
		return nil, ErrEarlyEndOfStream
	}
	return d.ReadRaw(int(n))
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadOption reads the presence tag of an option.
func (d *Decoder) ReadOption() (bool, error) {
	return d.ReadBool()
}

// ReadLength reads a sequence length and sanity-checks it against the
// number of remaining bytes, assuming every element occupies at least one.
func (d *Decoder) ReadLength() (int, error) {
	n, err := d.ReadU32()
	if err != nil {
		return 0, err
	}
	if uint64(n) > uint64(len(d.rest)) {
		return 0, ErrEarlyEndOfStream
	}
	return int(n), nil
}
