package state

import (
	"github.com/casperlabs/casper-node/types"
)

// Reader is the read side of a state snapshot: what the tracking copy
// overlays. The production implementation is the content-addressed trie;
// tests and genesis use the in-memory provider.
type Reader interface {
	// Read returns nil with no error when the key is absent.
	Read(key types.Key) (*types.StoredValue, error)
}

// Operation is one entry of the ordered operation trail.
type Operation struct {
	Key types.Key
	Op  Op
}

// ExecutionEffect is the committed footprint of one execution: the ordered
// operation trail plus the collapsed per-key transforms, in first-touch
// order.
type ExecutionEffect struct {
	Operations []Operation
	Keys       []types.Key
	Transforms map[types.Key]Transform
}

// TrackingCopy overlays an effect journal on a state snapshot. Reads pull
// through and are cached; writes and adds are journaled and only become
// state at commit. Two executions with identical inputs and generator
// seeds produce bitwise-identical journals.
type TrackingCopy struct {
	reader     Reader
	cache      map[types.Key]*types.StoredValue
	operations []Operation
	order      []types.Key
	transforms map[types.Key]Transform
}

func NewTrackingCopy(reader Reader) *TrackingCopy {
	return &TrackingCopy{
		reader:     reader,
		cache:      map[types.Key]*types.StoredValue{},
		transforms: map[types.Key]Transform{},
	}
}

func (tc *TrackingCopy) record(key types.Key, op Op, t Transform) error {
	tc.operations = append(tc.operations, Operation{Key: key, Op: op})
	existing, ok := tc.transforms[key]
	if !ok {
		tc.order = append(tc.order, key)
		tc.transforms[key] = t
		return nil
	}
	combined, err := existing.Combine(t)
	if err != nil {
		return err
	}
	tc.transforms[key] = combined
	return nil
}

// currentValue resolves the key against the journal first, then the
// underlying snapshot.
func (tc *TrackingCopy) currentValue(key types.Key) (*types.StoredValue, error) {
	key = key.Normalize()
	if t, ok := tc.transforms[key]; ok && t.Kind != TransformIdentity {
		base, err := tc.readThrough(key)
		if err != nil {
			return nil, err
		}
		applied, err := t.Apply(base)
		if err != nil {
			return nil, err
		}
		return &applied, nil
	}
	return tc.readThrough(key)
}

func (tc *TrackingCopy) readThrough(key types.Key) (*types.StoredValue, error) {
	if cached, ok := tc.cache[key]; ok {
		return cached, nil
	}
	value, err := tc.reader.Read(key)
	if err != nil {
		return nil, err
	}
	tc.cache[key] = value
	return value, nil
}

// Read returns the value under key, nil if absent.
func (tc *TrackingCopy) Read(key types.Key) (*types.StoredValue, error) {
	key = key.Normalize()
	value, err := tc.currentValue(key)
	if err != nil {
		return nil, err
	}
	if err := tc.record(key, OpRead, IdentityTransform()); err != nil {
		return nil, err
	}
	return value, nil
}

// Write journals a full overwrite of key. A write always succeeds: it
// replaces whatever transform was journaled before it.
func (tc *TrackingCopy) Write(key types.Key, value types.StoredValue) {
	// Combine with a Write on the right never fails.
	_ = tc.record(key.Normalize(), OpWrite, WriteTransform(value))
}

// Add journals a commutative merge into key. Fails with a type mismatch
// when the current value does not support the operation.
func (tc *TrackingCopy) Add(key types.Key, t Transform) error {
	key = key.Normalize()
	// Probe the merge eagerly so callers observe type mismatches at the
	// add site, not at commit.
	current, err := tc.readThrough(key)
	if err != nil {
		return err
	}
	if existing, ok := tc.transforms[key]; ok && existing.Kind != TransformIdentity {
		if current == nil {
			if applied, applyErr := existing.Apply(nil); applyErr == nil {
				current = &applied
			}
		} else {
			applied, applyErr := existing.Apply(current)
			if applyErr != nil {
				return applyErr
			}
			current = &applied
		}
	}
	if _, err := t.Apply(current); err != nil {
		return err
	}
	return tc.record(key, OpAdd, t)
}

// Effect snapshots the journal. Idempotent; the journal is not drained.
func (tc *TrackingCopy) Effect() ExecutionEffect {
	operations := make([]Operation, len(tc.operations))
	copy(operations, tc.operations)
	keys := make([]types.Key, len(tc.order))
	copy(keys, tc.order)
	transforms := make(map[types.Key]Transform, len(tc.transforms))
	for k, v := range tc.transforms {
		transforms[k] = v
	}
	return ExecutionEffect{Operations: operations, Keys: keys, Transforms: transforms}
}
