package highway

import (
	"sort"

	"github.com/casperlabs/casper-node/types"
)

// ValidatorIndex is a validator's fixed position within one era's
// validator set.
type ValidatorIndex uint32

// Validators is an era's validator set with fixed indices, ordered by
// public key. Indices are stable for the era's lifetime.
type Validators struct {
	keys    []types.PublicKey
	weights []uint64
	index   map[types.PublicKey]ValidatorIndex
	total   uint64
}

// NewValidators assigns indices in canonical public-key order.
func NewValidators(weights map[types.PublicKey]uint64) *Validators {
	keys := make([]types.PublicKey, 0, len(weights))
	for pk := range weights {
		keys = append(keys, pk)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })

	v := &Validators{
		keys:  keys,
		index: make(map[types.PublicKey]ValidatorIndex, len(keys)),
	}
	for i, pk := range keys {
		v.index[pk] = ValidatorIndex(i)
		v.weights = append(v.weights, weights[pk])
		v.total += weights[pk]
	}
	return v
}

func (v *Validators) Len() int { return len(v.keys) }

func (v *Validators) TotalWeight() uint64 { return v.total }

// Contains reports whether idx is a valid index.
func (v *Validators) Contains(idx ValidatorIndex) bool {
	return int(idx) < len(v.keys)
}

func (v *Validators) PublicKey(idx ValidatorIndex) (types.PublicKey, bool) {
	if !v.Contains(idx) {
		return types.PublicKey{}, false
	}
	return v.keys[idx], true
}

func (v *Validators) Index(pk types.PublicKey) (ValidatorIndex, bool) {
	idx, ok := v.index[pk]
	return idx, ok
}

func (v *Validators) Weight(idx ValidatorIndex) uint64 {
	if !v.Contains(idx) {
		return 0
	}
	return v.weights[idx]
}

// Keys returns the validators in index order.
func (v *Validators) Keys() []types.PublicKey {
	out := make([]types.PublicKey, len(v.keys))
	copy(out, v.keys)
	return out
}
