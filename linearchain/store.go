package linearchain

import (
	"sync"

	"github.com/casperlabs/casper-node/types"
)

// Store is the persistence contract the finalizer writes through. The
// production implementation sits on the node's database; tests use the
// in-memory one.
type Store interface {
	PutBlock(block *types.Block) error
	GetBlock(hash types.Hash) (*types.Block, error)
	GetBlockByHeight(height uint64) (*types.Block, error)
	PutBlockSignatures(sigs *types.BlockSignatures) error
	GetBlockSignatures(blockHash types.Hash) (*types.BlockSignatures, error)
}

// MemStore is the in-memory Store.
type MemStore struct {
	mu       sync.RWMutex
	blocks   map[types.Hash]*types.Block
	byHeight map[uint64]types.Hash
	sigs     map[types.Hash]*types.BlockSignatures
}

func NewMemStore() *MemStore {
	return &MemStore{
		blocks:   map[types.Hash]*types.Block{},
		byHeight: map[uint64]types.Hash{},
		sigs:     map[types.Hash]*types.BlockSignatures{},
	}
}

func (s *MemStore) PutBlock(block *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[block.Hash()] = block
	s.byHeight[block.Height()] = block.Hash()
	return nil
}

func (s *MemStore) GetBlock(hash types.Hash) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[hash], nil
}

func (s *MemStore) GetBlockByHeight(height uint64) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.byHeight[height]
	if !ok {
		return nil, nil
	}
	return s.blocks[hash], nil
}

func (s *MemStore) PutBlockSignatures(sigs *types.BlockSignatures) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sigs[sigs.BlockHash] = sigs
	return nil
}

func (s *MemStore) GetBlockSignatures(blockHash types.Hash) (*types.BlockSignatures, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sigs[blockHash], nil
}
