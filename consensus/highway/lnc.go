package highway

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/casperlabs/casper-node/types"
)

// The liveness-no-conflict rule: a panorama may naively cite at most one
// fork of any known-faulty validator. A citation is naive when no
// quorum-endorsed unit sees it.

type lncForks uint8

const (
	lncNone lncForks = iota
	lncSingle
	lncMultiple
)

// findForks looks for forks created by eqIdx that are visible in the past
// of the panorama, exiting early as soon as two incompatible forks are
// cited naively.
func (s *State) findForks(pan Panorama, eqIdx ValidatorIndex) lncForks {
	endorsed := s.endorsed.ToSlice()

	// Reports whether any endorsed unit cites the given unit.
	seenByEndorsed := func(h types.Hash) bool {
		for _, eHash := range endorsed {
			if s.Sees(eHash, h) {
				return true
			}
		}
		return false
	}

	var naive *types.Hash

	toVisit := pan.CorrectHashes()
	added := mapset.NewThreadUnsafeSet[types.Hash](toVisit...)
	for len(toVisit) > 0 {
		hash := toVisit[len(toVisit)-1]
		toVisit = toVisit[:len(toVisit)-1]
		if seenByEndorsed(hash) {
			continue // This unit and everything below is not cited naively.
		}
		unit, ok := s.units[hash]
		if !ok {
			continue
		}
		obs := unit.wire().Panorama.Get(eqIdx)
		switch {
		case obs.IsCorrect():
			// The unit (and everything it cites) can only see a single
			// fork; no need to traverse further down.
			eqHash := obs.Hash
			if seenByEndorsed(eqHash) {
				continue
			}
			if naive == nil {
				h := eqHash
				naive = &h
				continue
			}
			// If eqHash is later on the same fork, it becomes the tip;
			// otherwise two incompatible forks are cited naively.
			switch {
			case s.Sees(eqHash, *naive):
				h := eqHash
				naive = &h
			case !s.Sees(*naive, eqHash):
				return lncMultiple
			}
		case obs.IsNone():
			// No forks cited by this unit; nothing below to check.
		default:
			// The unit still sees the equivocator as faulty: traverse
			// further down to find all cited forks.
			for _, h := range unit.wire().Panorama.CorrectHashes() {
				if added.Add(h) {
					toVisit = append(toVisit, h)
				}
			}
		}
	}

	if naive == nil {
		return lncNone
	}
	return lncSingle
}

// checkLNC validates the rule for every validator the panorama marks
// faulty.
func (s *State) checkLNC(pan Panorama) error {
	for idx, obs := range pan {
		if !obs.IsFaulty() {
			continue
		}
		if s.findForks(pan, ValidatorIndex(idx)) == lncMultiple {
			return ErrUnitLNC
		}
	}
	return nil
}
