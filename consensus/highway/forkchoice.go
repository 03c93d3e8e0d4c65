package highway

import (
	"github.com/casperlabs/casper-node/types"
)

// Fork choice: greedy-heaviest-observed-subtree over the weight-weighted
// votes of a panorama. Blocks are proposal units; a proposal's parent is
// the fork choice of its own panorama, fixed when the unit is added.

// initVoteBlock derives the block a unit votes for: itself if it is a
// proposal (with the fork choice of its panorama as parent), otherwise
// the fork choice directly. Zero when nothing is supported yet.
func (s *State) initVoteBlock(unit *storedUnit) {
	choice := s.ForkChoice(unit.wire().Panorama)
	if unit.wire().IsProposal() {
		unit.voteBlock = unit.hash
		unit.parent = choice
	} else {
		unit.voteBlock = choice
	}
}

// parentBlock returns the parent of a block (a proposal unit hash), zero
// for a root block.
func (s *State) parentBlock(block types.Hash) types.Hash {
	unit, ok := s.units[block]
	if !ok {
		return types.Hash{}
	}
	return unit.parent
}

// isAncestorBlock reports whether ancestor is on block's parent chain,
// inclusive.
func (s *State) isAncestorBlock(ancestor, block types.Hash) bool {
	if ancestor.IsZero() {
		return true
	}
	cursor := block
	for !cursor.IsZero() {
		if cursor == ancestor {
			return true
		}
		cursor = s.parentBlock(cursor)
	}
	return false
}

// BlockHeight is the number of ancestor blocks below the block.
func (s *State) BlockHeight(block types.Hash) uint64 {
	var height uint64
	cursor := s.parentBlock(block)
	for !cursor.IsZero() {
		height++
		cursor = s.parentBlock(cursor)
	}
	return height
}

// ForkChoice returns the tip supported by the panorama's votes, or zero
// when no block is supported.
func (s *State) ForkChoice(pan Panorama) types.Hash {
	// Resolve each validator's vote to a block.
	votes := make(map[types.Hash]uint64)
	for idx, obs := range pan {
		if !obs.IsCorrect() {
			continue
		}
		unit, ok := s.units[obs.Hash]
		if !ok {
			continue
		}
		if unit.voteBlock.IsZero() {
			continue
		}
		votes[unit.voteBlock] += s.validators.Weight(ValidatorIndex(idx))
	}
	if len(votes) == 0 {
		return types.Hash{}
	}

	var tip types.Hash
	for {
		next := s.heaviestChild(tip, votes)
		if next.IsZero() {
			return tip
		}
		tip = next
	}
}

// heaviestChild picks the child of parent with the greatest supporting
// weight; ties break by hash, ascending. Zero when no child is supported.
func (s *State) heaviestChild(parent types.Hash, votes map[types.Hash]uint64) types.Hash {
	// A block's supporting weight is the weight of all votes for blocks
	// in its subtree. Children of parent are the first blocks above it on
	// each voted block's ancestor chain.
	childWeight := make(map[types.Hash]uint64)
	for block, weight := range votes {
		child, ok := s.childToward(parent, block)
		if !ok {
			continue
		}
		childWeight[child] += weight
	}
	var best types.Hash
	var bestWeight uint64
	for child, weight := range childWeight {
		if weight > bestWeight ||
			(weight == bestWeight && !best.IsZero() && child.Compare(best) < 0) {
			best = child
			bestWeight = weight
		}
	}
	return best
}

// childToward walks block's ancestor chain down to the direct child of
// parent, reporting false when parent is not an ancestor.
func (s *State) childToward(parent, block types.Hash) (types.Hash, bool) {
	cursor := block
	for !cursor.IsZero() {
		up := s.parentBlock(cursor)
		if up == parent {
			return cursor, true
		}
		cursor = up
	}
	return types.Hash{}, false
}
