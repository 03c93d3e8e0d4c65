package state

import (
	"errors"
	"sync"

	"github.com/casperlabs/casper-node/types"
)

// ErrRootNotFound is returned when checking out a state root that was
// never committed.
var ErrRootNotFound = errors.New("state root not found")

// InMemoryGlobalState is the in-process state provider used by genesis
// and tests. Every commit produces a new immutable snapshot addressed by
// its root hash; the production LMDB trie satisfies the same contract.
type InMemoryGlobalState struct {
	mu        sync.RWMutex
	snapshots map[types.Hash]map[types.Key][]byte
	emptyRoot types.Hash
}

func NewInMemoryGlobalState() *InMemoryGlobalState {
	gs := &InMemoryGlobalState{
		snapshots: map[types.Hash]map[types.Key][]byte{},
	}
	empty := map[types.Key][]byte{}
	gs.emptyRoot = rootHash(empty)
	gs.snapshots[gs.emptyRoot] = empty
	return gs
}

// EmptyRoot is the root of the empty snapshot, the pre-state of genesis.
func (gs *InMemoryGlobalState) EmptyRoot() types.Hash {
	return gs.emptyRoot
}

// Checkout returns a reader over the snapshot at root.
func (gs *InMemoryGlobalState) Checkout(root types.Hash) (Reader, error) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	snapshot, ok := gs.snapshots[root]
	if !ok {
		return nil, ErrRootNotFound
	}
	return &snapshotReader{snapshot: snapshot}, nil
}

// Commit applies an effect's transforms to the snapshot at preState and
// stores the result under its new root hash. The operation trail is not
// part of the committed state.
func (gs *InMemoryGlobalState) Commit(preState types.Hash, effect ExecutionEffect) (types.Hash, error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	base, ok := gs.snapshots[preState]
	if !ok {
		return types.Hash{}, ErrRootNotFound
	}
	next := make(map[types.Key][]byte, len(base)+len(effect.Keys))
	for k, v := range base {
		next[k] = v
	}
	reader := &snapshotReader{snapshot: next}
	for _, key := range effect.Keys {
		transform := effect.Transforms[key]
		if transform.Kind == TransformIdentity {
			continue
		}
		current, err := reader.Read(key)
		if err != nil {
			return types.Hash{}, err
		}
		applied, err := transform.Apply(current)
		if err != nil {
			return types.Hash{}, err
		}
		next[key] = types.Marshal(applied)
	}
	root := rootHash(next)
	if _, exists := gs.snapshots[root]; !exists {
		gs.snapshots[root] = next
	}
	return root, nil
}

// rootHash digests the snapshot as the sorted sequence of serialized
// key/value pairs. Not a Merkle trie, but the same determinism contract:
// equal contents, equal root.
func rootHash(snapshot map[types.Key][]byte) types.Hash {
	keys := make([]types.Key, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	types.SortKeys(keys)
	e := types.NewEncoder()
	e.WriteU32(uint32(len(keys)))
	for _, k := range keys {
		k.MarshalBytes(e)
		e.WriteBytes(snapshot[k])
	}
	return types.HashBytes(e.Bytes())
}

type snapshotReader struct {
	snapshot map[types.Key][]byte
}

func (r *snapshotReader) Read(key types.Key) (*types.StoredValue, error) {
	raw, ok := r.snapshot[key.Normalize()]
	if !ok {
		return nil, nil
	}
	var value types.StoredValue
	if err := types.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return &value, nil
}
