package types

// CLTypeTag discriminates the closed set of value types the system
// contracts declare in their entry points and store in global state.
type CLTypeTag uint8

const (
	CLTypeBool      CLTypeTag = 0
	CLTypeU8        CLTypeTag = 3
	CLTypeU32       CLTypeTag = 4
	CLTypeU64       CLTypeTag = 5
	CLTypeU512      CLTypeTag = 8
	CLTypeUnit      CLTypeTag = 9
	CLTypeString    CLTypeTag = 10
	CLTypeKey       CLTypeTag = 11
	CLTypeURef      CLTypeTag = 12
	CLTypeOption    CLTypeTag = 13
	CLTypeList      CLTypeTag = 14
	CLTypeResult    CLTypeTag = 16
	CLTypeMap       CLTypeTag = 17
	CLTypeTuple2    CLTypeTag = 19
	CLTypeAny       CLTypeTag = 21
	CLTypePublicKey CLTypeTag = 22
)

// CLType is a (possibly nested) value type description.
type CLType struct {
	Tag   CLTypeTag
	Inner []CLType
}

func SimpleType(tag CLTypeTag) CLType { return CLType{Tag: tag} }

func OptionType(inner CLType) CLType {
	return CLType{Tag: CLTypeOption, Inner: []CLType{inner}}
}

func ListType(inner CLType) CLType {
	return CLType{Tag: CLTypeList, Inner: []CLType{inner}}
}

func MapType(key, value CLType) CLType {
	return CLType{Tag: CLTypeMap, Inner: []CLType{key, value}}
}

// ResultType describes Result<ok, err>. System contracts use it with a u8
// error discriminant.
func ResultType(ok, errT CLType) CLType {
	return CLType{Tag: CLTypeResult, Inner: []CLType{ok, errT}}
}

func Tuple2Type(a, b CLType) CLType {
	return CLType{Tag: CLTypeTuple2, Inner: []CLType{a, b}}
}

func (t CLType) MarshalBytes(e *Encoder) {
	e.WriteU8(uint8(t.Tag))
	for _, inner := range t.Inner {
		inner.MarshalBytes(e)
	}
}

func (t *CLType) UnmarshalBytes(d *Decoder) error {
	tag, err := d.ReadU8()
	if err != nil {
		return err
	}
	t.Tag = CLTypeTag(tag)
	var arity int
	switch t.Tag {
	case CLTypeBool, CLTypeU8, CLTypeU32, CLTypeU64, CLTypeU512, CLTypeUnit,
		CLTypeString, CLTypeKey, CLTypeURef, CLTypePublicKey, CLTypeAny:
		arity = 0
	case CLTypeOption, CLTypeList:
		arity = 1
	case CLTypeResult, CLTypeMap, CLTypeTuple2:
		arity = 2
	default:
		return ErrFormatting
	}
	t.Inner = nil
	for i := 0; i < arity; i++ {
		var inner CLType
		if err := inner.UnmarshalBytes(d); err != nil {
			return err
		}
		t.Inner = append(t.Inner, inner)
	}
	return nil
}

// CLValue is a typed value: a type descriptor plus the canonical encoding
// of the payload. Values are kept opaque at rest and decoded by the caller
// that knows the expected type.
type CLValue struct {
	Type  CLType
	Bytes []byte
}

func NewCLValue(t CLType, payload Marshaler) CLValue {
	return CLValue{Type: t, Bytes: Marshal(payload)}
}

func CLValueUnit() CLValue {
	return CLValue{Type: SimpleType(CLTypeUnit)}
}

func CLValueU8(v uint8) CLValue {
	e := NewEncoder()
	e.WriteU8(v)
	return CLValue{Type: SimpleType(CLTypeU8), Bytes: e.Bytes()}
}

func CLValueU32(v uint32) CLValue {
	e := NewEncoder()
	e.WriteU32(v)
	return CLValue{Type: SimpleType(CLTypeU32), Bytes: e.Bytes()}
}

func CLValueU64(v uint64) CLValue {
	e := NewEncoder()
	e.WriteU64(v)
	return CLValue{Type: SimpleType(CLTypeU64), Bytes: e.Bytes()}
}

func CLValueU512(v Motes) CLValue {
	return NewCLValue(SimpleType(CLTypeU512), v)
}

func CLValueString(s string) CLValue {
	e := NewEncoder()
	e.WriteString(s)
	return CLValue{Type: SimpleType(CLTypeString), Bytes: e.Bytes()}
}

func CLValueURef(u URef) CLValue {
	return NewCLValue(SimpleType(CLTypeURef), u)
}

func CLValueKey(k Key) CLValue {
	return NewCLValue(SimpleType(CLTypeKey), k)
}

// ToU64 decodes a u64 payload.
func (v CLValue) ToU64() (uint64, error) {
	if v.Type.Tag != CLTypeU64 {
		return 0, ErrFormatting
	}
	d := NewDecoder(v.Bytes)
	out, err := d.ReadU64()
	if err != nil {
		return 0, err
	}
	return out, d.Finish()
}

// ToU512 decodes an amount payload.
func (v CLValue) ToU512() (Motes, error) {
	if v.Type.Tag != CLTypeU512 {
		return Motes{}, ErrFormatting
	}
	var out Motes
	err := Unmarshal(v.Bytes, &out)
	return out, err
}

// ToURef decodes a uref payload.
func (v CLValue) ToURef() (URef, error) {
	if v.Type.Tag != CLTypeURef {
		return URef{}, ErrFormatting
	}
	var out URef
	err := Unmarshal(v.Bytes, &out)
	return out, err
}

// Decode unmarshals the payload into out without checking the type
// descriptor. Used where the caller's expected Go type is authoritative.
func (v CLValue) Decode(out Unmarshaler) error {
	return Unmarshal(v.Bytes, out)
}

func (v CLValue) MarshalBytes(e *Encoder) {
	e.WriteBytes(v.Bytes)
	v.Type.MarshalBytes(e)
}

func (v *CLValue) UnmarshalBytes(d *Decoder) error {
	payload, err := d.ReadBytes()
	if err != nil {
		return err
	}
	v.Bytes = payload
	return v.Type.UnmarshalBytes(d)
}
