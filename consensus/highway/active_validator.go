package highway

import (
	log "github.com/sirupsen/logrus"

	"github.com/casperlabs/casper-node/crypto/ed25519"
	"github.com/casperlabs/casper-node/types"
)

// EffectKind tags an active validator's requested side effect.
type EffectKind uint8

const (
	// EffectScheduleTimer asks the reactor to call HandleTimer at the
	// given timestamp.
	EffectScheduleTimer EffectKind = iota
	// EffectRequestNewBlock asks the block proposer for a value to
	// propose; the reactor answers by calling Propose.
	EffectRequestNewBlock
	// EffectNewVertex carries a unit this node just created, to be added
	// to its own state and gossiped.
	EffectNewVertex
)

// Effect is one requested side effect, dispatched by the reactor.
type Effect struct {
	Kind   EffectKind
	Timer  types.Timestamp
	Vertex *ValidVertex
}

func scheduleTimer(t types.Timestamp) Effect {
	return Effect{Kind: EffectScheduleTimer, Timer: t}
}

// ActiveValidator produces this node's own units: proposals in rounds it
// leads, witness units otherwise. At most one exists per era, and it
// deactivates itself permanently if its own equivocation is ever
// observed.
type ActiveValidator struct {
	index    ValidatorIndex
	keypair  *ed25519.Keypair
	roundExp uint8
}

func (av *ActiveValidator) Index() ValidatorIndex { return av.index }

// ActivateValidator makes this node an active participant. Returns the
// first timer to schedule.
func (hw *Highway) ActivateValidator(
	pk types.PublicKey,
	keypair *ed25519.Keypair,
	roundExp uint8,
	now types.Timestamp,
) []Effect {
	idx, ok := hw.validators.Index(pk)
	if !ok {
		log.WithField("publicKey", pk).Warn("not in the validator set, not activating")
		return nil
	}
	if roundExp < hw.state.params.MinRoundExp {
		roundExp = hw.state.params.MinRoundExp
	}
	hw.active = &ActiveValidator{index: idx, keypair: keypair, roundExp: roundExp}
	return []Effect{scheduleTimer(hw.nextRoundBoundary(now))}
}

// DeactivateValidator stops producing units. Irreversible within the era:
// a validator that observed its own equivocation must never sign again.
func (hw *Highway) DeactivateValidator() {
	if hw.active != nil {
		log.WithField("validator", hw.active.index).Warn("deactivated validator")
	}
	hw.active = nil
}

// IsActive reports whether this node currently produces units.
func (hw *Highway) IsActive() bool { return hw.active != nil }

func (hw *Highway) roundLen() uint64 {
	if hw.active == nil {
		return 1 << hw.state.params.MinRoundExp
	}
	return 1 << hw.active.roundExp
}

func (hw *Highway) roundID(t types.Timestamp) types.Timestamp {
	return types.Timestamp(uint64(t) &^ (hw.roundLen() - 1))
}

func (hw *Highway) nextRoundBoundary(now types.Timestamp) types.Timestamp {
	return types.Timestamp(uint64(hw.roundID(now)) + hw.roundLen())
}

// HandleTimer drives the round state machine: at a round start the
// leader requests a value to propose; at the round midpoint everyone
// else emits a witness unit confirming what they saw.
func (hw *Highway) HandleTimer(now types.Timestamp) []Effect {
	av := hw.active
	if av == nil {
		return nil
	}
	roundID := hw.roundID(now)
	half := types.Timestamp(uint64(roundID) + hw.roundLen()/2)

	var effects []Effect
	switch {
	case now == roundID:
		if hw.Leader(roundID) == av.index {
			effects = append(effects, Effect{Kind: EffectRequestNewBlock})
		}
		effects = append(effects, scheduleTimer(half))
	case now >= half:
		if hw.Leader(roundID) != av.index {
			if effect := hw.createUnit(nil, now); effect != nil {
				effects = append(effects, *effect)
			}
		}
		effects = append(effects, scheduleTimer(hw.nextRoundBoundary(now)))
	default:
		effects = append(effects, scheduleTimer(half))
	}
	return effects
}

// Propose creates this node's proposal unit for the round covering now.
// The caller must have been asked for a block via EffectRequestNewBlock.
func (hw *Highway) Propose(value types.Hash, now types.Timestamp) []Effect {
	if hw.active == nil {
		return nil
	}
	effect := hw.createUnit(&value, hw.roundID(now))
	if effect == nil {
		return nil
	}
	return []Effect{*effect}
}

// createUnit assembles, signs and pre-admits one own unit. Returns nil if
// signing is impossible without risking equivocation.
func (hw *Highway) createUnit(value *types.Hash, timestamp types.Timestamp) *Effect {
	av := hw.active
	if hw.state.IsFaulty(av.index) {
		hw.DeactivateValidator()
		return nil
	}

	panorama := hw.state.Panorama()
	var seq uint64
	if obs := panorama.Get(av.index); obs.IsCorrect() {
		prev, ok := hw.state.Unit(obs.Hash)
		if !ok {
			return nil
		}
		seq = prev.Unit.SeqNumber + 1
	}

	wu := WireUnit{
		Creator:    av.index,
		InstanceID: hw.instanceID,
		Panorama:   panorama,
		Value:      value,
		SeqNumber:  seq,
		Timestamp:  timestamp,
		RoundExp:   av.roundExp,
	}
	hash := wu.Hash()
	swu := SignedWireUnit{
		Unit:      wu,
		Signature: types.NewSignature(av.keypair.Sign(hash.Bytes())),
	}
	vv := ValidVertex{vertex: UnitVertex(swu)}
	return &Effect{Kind: EffectNewVertex, Vertex: &vv}
}
