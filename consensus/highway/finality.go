package highway

import (
	"github.com/casperlabs/casper-node/types"
)

// FinalizedBlock is the finality detector's output for one newly
// finalized value.
type FinalizedBlock struct {
	Value     types.Hash
	Timestamp types.Timestamp
	Height    uint64
	Rewards   map[types.PublicKey]uint64
	Proposer  types.PublicKey
	EraEnd    *TerminalData
}

// TerminalData is present exactly when the finalized block is the era's
// switch block.
type TerminalData struct {
	Equivocators       []types.PublicKey
	InactiveValidators []types.PublicKey
	Rewards            map[types.PublicKey]uint64
}

// FinalityDetector finds fork-choice prefixes whose supporting summit
// weight can no longer be overturned by any adversary controlling at most
// ftt weight.
type FinalityDetector struct {
	lastFinalized types.Hash
	finalizedHt   map[types.Hash]uint64
}

func NewFinalityDetector() *FinalityDetector {
	return &FinalityDetector{finalizedHt: map[types.Hash]uint64{}}
}

// Run inspects the state and returns every block newly finalized since
// the last call, in chain order.
func (fd *FinalityDetector) Run(s *State) []FinalizedBlock {
	var out []FinalizedBlock
	for {
		next := fd.nextCandidate(s)
		if next == nil {
			return out
		}
		out = append(out, *next)
	}
}

// nextCandidate examines the direct successor of the last finalized block
// on the fork choice and finalizes it when its committee weight reaches
// total - ftt: any set of equivocators able to revert it would have to
// exceed the fault tolerance threshold.
func (fd *FinalityDetector) nextCandidate(s *State) *FinalizedBlock {
	tip := s.ForkChoice(s.Panorama())
	if tip.IsZero() || !s.isAncestorBlock(fd.lastFinalized, tip) {
		return nil
	}
	candidate, ok := fd.childOnChain(s, tip)
	if !ok {
		return nil
	}

	var committee uint64
	for idx, obs := range s.Panorama() {
		if !obs.IsCorrect() {
			continue
		}
		unit := s.unit(obs.Hash)
		if unit == nil || unit.voteBlock.IsZero() {
			continue
		}
		if s.isAncestorBlock(candidate, unit.voteBlock) {
			committee += s.validators.Weight(ValidatorIndex(idx))
		}
	}
	quorum := s.validators.TotalWeight() - s.params.FTT
	if committee < quorum {
		return nil
	}

	unit := s.unit(candidate)
	if unit == nil || unit.wire().Value == nil {
		return nil
	}
	height := s.BlockHeight(candidate)
	fd.lastFinalized = candidate
	fd.finalizedHt[candidate] = height

	proposer, _ := s.validators.PublicKey(unit.wire().Creator)
	fb := &FinalizedBlock{
		Value:     *unit.wire().Value,
		Timestamp: unit.wire().Timestamp,
		Height:    height,
		Proposer:  proposer,
	}
	if fd.isTerminal(s, unit, height) {
		fb.Rewards = fd.rewards(s)
		fb.EraEnd = &TerminalData{
			Equivocators:       fd.equivocators(s),
			InactiveValidators: fd.inactive(s),
			Rewards:            fb.Rewards,
		}
	}
	return fb
}

// childOnChain returns the fork-choice child of the last finalized block.
func (fd *FinalityDetector) childOnChain(s *State, tip types.Hash) (types.Hash, bool) {
	cursor := tip
	for {
		if cursor == fd.lastFinalized {
			return types.Hash{}, false
		}
		parent := s.parentBlock(cursor)
		if parent == fd.lastFinalized {
			return cursor, true
		}
		if parent.IsZero() {
			// The tip does not descend from the last finalized block.
			return types.Hash{}, false
		}
		cursor = parent
	}
}

// isTerminal reports whether the block ends the era: minimum height
// reached and the era duration elapsed.
func (fd *FinalityDetector) isTerminal(s *State, unit *storedUnit, height uint64) bool {
	if height+1 < s.params.MinEraHeight {
		return false
	}
	end := s.params.EraStartTimestamp.Add(s.params.EraDuration)
	return unit.wire().Timestamp >= end
}

// rewards assigns the full block reward to every validator whose latest
// unit in the panorama is correct; faulty and silent validators get no
// entry. The reduced block reward is not used, and the factors do not
// depend on validator weight.
func (fd *FinalityDetector) rewards(s *State) map[types.PublicKey]uint64 {
	out := map[types.PublicKey]uint64{}
	for idx, obs := range s.Panorama() {
		if obs.IsFaulty() {
			continue
		}
		pk, ok := s.validators.PublicKey(ValidatorIndex(idx))
		if !ok {
			continue
		}
		if obs.IsCorrect() {
			out[pk] = s.params.BlockReward
		}
	}
	return out
}

func (fd *FinalityDetector) equivocators(s *State) []types.PublicKey {
	var out []types.PublicKey
	for _, idx := range s.FaultyValidators() {
		if pk, ok := s.validators.PublicKey(idx); ok {
			out = append(out, pk)
		}
	}
	return out
}

func (fd *FinalityDetector) inactive(s *State) []types.PublicKey {
	var out []types.PublicKey
	for idx, obs := range s.Panorama() {
		if !obs.IsNone() {
			continue
		}
		if pk, ok := s.validators.PublicKey(ValidatorIndex(idx)); ok {
			out = append(out, pk)
		}
	}
	return out
}
