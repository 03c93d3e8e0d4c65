package state

import (
	"fmt"

	"github.com/casperlabs/casper-node/types"
)

// TypeMismatchError reports a transform applied to a stored value of the
// wrong shape. Key absence is never a type mismatch.
type TypeMismatchError struct {
	Expected string
	Found    string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, found %s", e.Expected, e.Found)
}

// Op classifies how an execution touched a key.
type Op uint8

const (
	OpNoOp Op = iota
	OpRead
	OpWrite
	OpAdd
)

func (op Op) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpAdd:
		return "add"
	default:
		return "noop"
	}
}

// TransformKind discriminates journal entries.
type TransformKind uint8

const (
	TransformIdentity TransformKind = iota
	TransformWrite
	TransformAddUInt64
	TransformAddU512
	TransformAddKeys
)

// Transform is one journaled mutation of a key. Write replaces the stored
// value; the Add kinds merge commutatively at commit.
type Transform struct {
	Kind      TransformKind
	Value     types.StoredValue
	AddU64    uint64
	AddAmount types.Motes
	AddKeys   types.NamedKeys
}

func IdentityTransform() Transform {
	return Transform{Kind: TransformIdentity}
}

func WriteTransform(value types.StoredValue) Transform {
	return Transform{Kind: TransformWrite, Value: value}
}

func AddUInt64Transform(v uint64) Transform {
	return Transform{Kind: TransformAddUInt64, AddU64: v}
}

func AddU512Transform(v types.Motes) Transform {
	return Transform{Kind: TransformAddU512, AddAmount: v}
}

func AddKeysTransform(keys types.NamedKeys) Transform {
	return Transform{Kind: TransformAddKeys, AddKeys: keys}
}

// Apply merges the transform into an existing stored value. A nil current
// value is only legal for Write.
func (t Transform) Apply(current *types.StoredValue) (types.StoredValue, error) {
	switch t.Kind {
	case TransformIdentity:
		if current == nil {
			return types.StoredValue{}, &TypeMismatchError{Expected: "stored value", Found: "none"}
		}
		return *current, nil
	case TransformWrite:
		return t.Value, nil
	case TransformAddUInt64:
		clv, err := expectCLValue(current)
		if err != nil {
			return types.StoredValue{}, err
		}
		switch clv.Type.Tag {
		case types.CLTypeU64:
			v, err := clv.ToU64()
			if err != nil {
				return types.StoredValue{}, err
			}
			return types.StoredCLValue(types.CLValueU64(v + t.AddU64)), nil
		case types.CLTypeU512:
			v, err := clv.ToU512()
			if err != nil {
				return types.StoredValue{}, err
			}
			sum, err := v.Add(types.NewMotes(t.AddU64))
			if err != nil {
				return types.StoredValue{}, err
			}
			return types.StoredCLValue(types.CLValueU512(sum)), nil
		default:
			return types.StoredValue{}, &TypeMismatchError{Expected: "U64 or U512", Found: "CLValue"}
		}
	case TransformAddU512:
		clv, err := expectCLValue(current)
		if err != nil {
			return types.StoredValue{}, err
		}
		if clv.Type.Tag != types.CLTypeU512 {
			return types.StoredValue{}, &TypeMismatchError{Expected: "U512", Found: "CLValue"}
		}
		v, err := clv.ToU512()
		if err != nil {
			return types.StoredValue{}, err
		}
		sum, err := v.Add(t.AddAmount)
		if err != nil {
			return types.StoredValue{}, err
		}
		return types.StoredCLValue(types.CLValueU512(sum)), nil
	case TransformAddKeys:
		if current == nil {
			return types.StoredValue{}, &TypeMismatchError{Expected: "Account or Contract", Found: "none"}
		}
		switch current.Tag {
		case types.StoredValueTagAccount:
			account := *current.Account
			account.NamedKeys = account.NamedKeys.Clone()
			for name, key := range t.AddKeys {
				account.NamedKeys[name] = key
			}
			return types.StoredAccount(account), nil
		case types.StoredValueTagContract:
			contract := *current.Contract
			contract.NamedKeys = contract.NamedKeys.Clone()
			for name, key := range t.AddKeys {
				contract.NamedKeys[name] = key
			}
			return types.StoredContract(contract), nil
		default:
			return types.StoredValue{}, &TypeMismatchError{Expected: "Account or Contract", Found: current.TypeName()}
		}
	default:
		return types.StoredValue{}, &TypeMismatchError{Expected: "transform", Found: "unknown"}
	}
}

// Combine merges a later transform into t, preserving the journal's
// collapse rules: a later Write wins outright, and an Add after a Write
// folds into the written value.
func (t Transform) Combine(later Transform) (Transform, error) {
	switch later.Kind {
	case TransformIdentity:
		return t, nil
	case TransformWrite:
		return later, nil
	default:
		if t.Kind == TransformIdentity {
			return later, nil
		}
		if t.Kind == TransformWrite {
			applied, err := later.Apply(&t.Value)
			if err != nil {
				return Transform{}, err
			}
			return WriteTransform(applied), nil
		}
		return combineAdds(t, later)
	}
}

func combineAdds(a, b Transform) (Transform, error) {
	switch {
	case a.Kind == TransformAddUInt64 && b.Kind == TransformAddUInt64:
		return AddUInt64Transform(a.AddU64 + b.AddU64), nil
	case a.Kind == TransformAddKeys && b.Kind == TransformAddKeys:
		merged := a.AddKeys.Clone()
		for name, key := range b.AddKeys {
			merged[name] = key
		}
		return AddKeysTransform(merged), nil
	case (a.Kind == TransformAddU512 || a.Kind == TransformAddUInt64) &&
		(b.Kind == TransformAddU512 || b.Kind == TransformAddUInt64):
		sum, err := addAmount(a).Add(addAmount(b))
		if err != nil {
			return Transform{}, err
		}
		return AddU512Transform(sum), nil
	default:
		return Transform{}, &TypeMismatchError{Expected: "matching add transforms", Found: "mixed"}
	}
}

func addAmount(t Transform) types.Motes {
	if t.Kind == TransformAddUInt64 {
		return types.NewMotes(t.AddU64)
	}
	return t.AddAmount
}

func expectCLValue(current *types.StoredValue) (types.CLValue, error) {
	if current == nil {
		return types.CLValue{}, &TypeMismatchError{Expected: "CLValue", Found: "none"}
	}
	clv, ok := current.AsCLValue()
	if !ok {
		return types.CLValue{}, &TypeMismatchError{Expected: "CLValue", Found: current.TypeName()}
	}
	return clv, nil
}
