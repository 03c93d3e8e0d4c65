package types

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrArithmeticOverflow is returned by every checked Motes operation whose
// result would not fit in 512 bits, and by subtractions going below zero.
var ErrArithmeticOverflow = errors.New("arithmetic overflow")

// maxMotesBytes is the width of the U512 amount type in bytes.
const maxMotesBytes = 64

// Motes is the unsigned 512-bit token-amount type. The zero value is a
// usable zero amount. All arithmetic is checked.
type Motes struct {
	v *big.Int
}

func NewMotes(v uint64) Motes {
	return Motes{v: new(big.Int).SetUint64(v)}
}

// MotesFromBig wraps an existing big integer, copying it. Negative or
// over-wide values fail.
func MotesFromBig(v *big.Int) (Motes, error) {
	if v.Sign() < 0 || len(v.Bytes()) > maxMotesBytes {
		return Motes{}, ErrArithmeticOverflow
	}
	return Motes{v: new(big.Int).Set(v)}, nil
}

// MotesFromString parses a base-10 amount.
func MotesFromString(s string) (Motes, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Motes{}, fmt.Errorf("invalid motes amount %q", s)
	}
	return MotesFromBig(v)
}

func (m Motes) big() *big.Int {
	if m.v == nil {
		return new(big.Int)
	}
	return m.v
}

// Big returns a copy of the amount as a big integer.
func (m Motes) Big() *big.Int {
	return new(big.Int).Set(m.big())
}

func (m Motes) IsZero() bool { return m.big().Sign() == 0 }

func (m Motes) Cmp(other Motes) int { return m.big().Cmp(other.big()) }

func (m Motes) String() string { return m.big().String() }

func (m Motes) Add(other Motes) (Motes, error) {
	sum := new(big.Int).Add(m.big(), other.big())
	if len(sum.Bytes()) > maxMotesBytes {
		return Motes{}, ErrArithmeticOverflow
	}
	return Motes{v: sum}, nil
}

func (m Motes) Sub(other Motes) (Motes, error) {
	if m.Cmp(other) < 0 {
		return Motes{}, ErrArithmeticOverflow
	}
	return Motes{v: new(big.Int).Sub(m.big(), other.big())}, nil
}

func (m Motes) Mul(other Motes) (Motes, error) {
	prod := new(big.Int).Mul(m.big(), other.big())
	if len(prod.Bytes()) > maxMotesBytes {
		return Motes{}, ErrArithmeticOverflow
	}
	return Motes{v: prod}, nil
}

// MulDiv computes floor(m * num / den), the building block of all
// seigniorage ratio math. Division by zero fails with overflow.
func (m Motes) MulDiv(num, den *big.Int) (Motes, error) {
	if den.Sign() == 0 {
		return Motes{}, ErrArithmeticOverflow
	}
	out := new(big.Int).Mul(m.big(), num)
	out.Quo(out, den)
	return MotesFromBig(out)
}

func (m Motes) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Motes) UnmarshalText(input []byte) error {
	parsed, err := MotesFromString(string(input))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalBytes writes the amount as a 1-byte length followed by the
// big-endian bytes with the high zero bytes trimmed.
func (m Motes) MarshalBytes(e *Encoder) {
	raw := m.big().Bytes()
	e.WriteU8(uint8(len(raw)))
	e.WriteRaw(raw)
}

func (m *Motes) UnmarshalBytes(d *Decoder) error {
	n, err := d.ReadU8()
	if err != nil {
		return err
	}
	if n > maxMotesBytes {
		return ErrFormatting
	}
	raw, err := d.ReadRaw(int(n))
	if err != nil {
		return err
	}
	if len(raw) > 0 && raw[0] == 0 {
		return ErrFormatting
	}
	m.v = new(big.Int).SetBytes(raw)
	return nil
}
