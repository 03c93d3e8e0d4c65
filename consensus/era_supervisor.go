// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

package consensus

import (
	"math/big"

	log "github.com/sirupsen/logrus"

	"github.com/casperlabs/casper-node/consensus/highway"
	"github.com/casperlabs/casper-node/crypto/ed25519"
	"github.com/casperlabs/casper-node/types"
)

// Config is the consensus component's slice of the chainspec.
type Config struct {
	ChainName        string          `mapstructure:"chain-name"`
	GenesisTimestamp types.Timestamp `mapstructure:"genesis-timestamp"`
	// BondedEras is the unbonding delay: eras whose validators are still
	// bonded and accountable.
	BondedEras   uint64 `mapstructure:"bonded-eras"`
	AuctionDelay uint64 `mapstructure:"auction-delay"`

	FinalityThresholdPercent uint64         `mapstructure:"finality-threshold-percent"`
	MinimumRoundExponent     uint8          `mapstructure:"minimum-round-exponent"`
	MinimumEraHeight         uint64         `mapstructure:"minimum-era-height"`
	EraDuration              types.TimeDiff `mapstructure:"era-duration"`
	PendingVertexTimeout     types.TimeDiff `mapstructure:"pending-vertex-timeout"`
	BlockReward              uint64         `mapstructure:"block-reward"`
	ReducedBlockReward       uint64         `mapstructure:"reduced-block-reward"`
}

// PendingCandidate is a proposed value whose external validity is still
// being checked, together with the accusations it carries.
type PendingCandidate struct {
	Value           types.Hash
	ProtoValidated  bool
	MissingEvidence []types.PublicKey
	Vertices        []PendingVertex
}

// Era is one consensus era: its protocol instance, synchronizer and
// candidate queue.
type Era struct {
	ID              types.EraID
	Highway         *highway.Highway
	Sync            *Synchronizer
	StartTime       types.Timestamp
	StartHeight     uint64
	candidates      []PendingCandidate
	validatedValues map[types.Hash]bool
}

// EraSupervisor keeps the active eras alive and routes incoming events to
// them. Eras further back than 2*BondedEras are discarded; eras within
// BondedEras of the current one accept only evidence.
type EraSupervisor struct {
	cfg       Config
	keypair   *ed25519.Keypair
	publicKey types.PublicKey

	current      types.EraID
	eras         map[types.EraID]*Era
	switchBlocks map[types.EraID]*types.Block
}

// New creates the supervisor with era 0 running the genesis validator
// set.
func New(
	cfg Config,
	genesisValidators map[types.PublicKey]types.Motes,
	keypair *ed25519.Keypair,
	now types.Timestamp,
) (*EraSupervisor, []ProtocolOutcome) {
	es := &EraSupervisor{
		cfg:          cfg,
		keypair:      keypair,
		eras:         map[types.EraID]*Era{},
		switchBlocks: map[types.EraID]*types.Block{},
	}
	if keypair != nil {
		es.publicKey = types.NewPublicKey(keypair.PublicKeyBytes())
	}
	outcomes := es.newEra(types.InitialEraID, genesisValidators, 0, cfg.GenesisTimestamp, 0, nil, now)
	return es, outcomes
}

func (es *EraSupervisor) CurrentEra() types.EraID { return es.current }

func (es *EraSupervisor) Era(id types.EraID) (*Era, bool) {
	era, ok := es.eras[id]
	return era, ok
}

// bookingSeed derives the new era's seed from the booking block (the last
// block of era newEra - auction_delay - 1) and the key block (the
// predecessor's switch block).
func (es *EraSupervisor) bookingSeed(newEra types.EraID, keyBlock *types.Block) uint64 {
	var bookingHash types.Hash
	bookingEra := newEra.SaturatingSub(es.cfg.AuctionDelay + 1)
	if booking, ok := es.switchBlocks[bookingEra]; ok {
		bookingHash = booking.Hash()
	}
	seedHash := types.HashPair(bookingHash, keyBlock.Header.AccumulatedSeed)
	d := types.NewDecoder(seedHash.Bytes())
	seed, _ := d.ReadU64()
	return seed
}

func (es *EraSupervisor) newEra(
	id types.EraID,
	weights map[types.PublicKey]types.Motes,
	seed uint64,
	startTime types.Timestamp,
	startHeight uint64,
	banned []types.PublicKey,
	now types.Timestamp,
) []ProtocolOutcome {
	scaled := scaleWeights(weights)
	validators := highway.NewValidators(scaled)
	params := highway.Params{
		Seed:               seed,
		BlockReward:        es.cfg.BlockReward,
		ReducedBlockReward: es.cfg.ReducedBlockReward,
		MinRoundExp:        es.cfg.MinimumRoundExponent,
		MinEraHeight:       es.cfg.MinimumEraHeight,
		EraStartTimestamp:  startTime,
		EraDuration:        es.cfg.EraDuration,
		FTT:                validators.TotalWeight() / 100 * es.cfg.FinalityThresholdPercent,
	}
	instanceID := ComputeInstanceID(es.cfg.ChainName, es.cfg.GenesisTimestamp, id)
	hw := highway.New(instanceID, validators, params)
	for _, pk := range banned {
		hw.MarkFaulty(pk)
	}

	era := &Era{
		ID:          id,
		Highway:     hw,
		Sync:        NewSynchronizer(id, es.cfg.PendingVertexTimeout),
		StartTime:   startTime,
		StartHeight: startHeight,
	}
	es.eras[id] = era
	es.current = id

	log.WithFields(log.Fields{
		"era":        id,
		"validators": validators.Len(),
		"instanceID": instanceID,
	}).Info("created new era")

	var outcomes []ProtocolOutcome
	if es.keypair != nil {
		if _, ok := validators.Index(es.publicKey); ok {
			effects := hw.ActivateValidator(es.publicKey, es.keypair, es.cfg.MinimumRoundExponent, now)
			outcomes = append(outcomes, es.convertEffects(era, effects)...)
		}
	}

	es.pruneEras()
	return outcomes
}

// pruneEras discards eras more than 2*BondedEras behind the current one.
func (es *EraSupervisor) pruneEras() {
	oldest := es.current.SaturatingSub(2 * es.cfg.BondedEras)
	for id := range es.eras {
		if id < oldest {
			delete(es.eras, id)
			delete(es.switchBlocks, id)
		}
	}
}

// evidenceOnly reports whether the era is in the window that accepts
// nothing but evidence.
func (es *EraSupervisor) evidenceOnly(id types.EraID) bool {
	return id < es.current && id >= es.current.SaturatingSub(es.cfg.BondedEras)
}

// HandleSwitchBlock creates the successor era from a finalized switch
// block: its validators are the next era's weights, its seed mixes the
// booking block hash with the key block's accumulated seed, and the
// equivocators named in the era end are banned.
func (es *EraSupervisor) HandleSwitchBlock(block *types.Block, now types.Timestamp) []ProtocolOutcome {
	if !block.IsSwitchBlock() {
		return nil
	}
	eraEnd := block.Header.EraEnd
	es.switchBlocks[block.EraID()] = block

	newEra := block.EraID().Successor()
	if _, exists := es.eras[newEra]; exists {
		return nil
	}
	seed := es.bookingSeed(newEra, block)
	return es.newEra(
		newEra,
		eraEnd.NextEraValidatorWeights,
		seed,
		block.Header.Timestamp,
		block.Height()+1,
		eraEnd.Report.Equivocators,
		now,
	)
}

// HandleMessage routes one incoming consensus message. Unknown eras and
// non-evidence traffic for evidence-only eras are dropped; invalid
// vertices penalize the sender but never crash.
func (es *EraSupervisor) HandleMessage(peer NodeID, raw []byte, now types.Timestamp) []ProtocolOutcome {
	var msg Message
	if err := types.Unmarshal(raw, &msg); err != nil {
		return []ProtocolOutcome{{Kind: OutcomeInvalidIncomingMessage, Peer: peer, Err: err}}
	}

	era, ok := es.eras[msg.EraID]
	if !ok {
		log.WithFields(log.Fields{"era": msg.EraID, "peer": peer}).Debug("message for unknown era")
		return nil
	}
	// Eras kept only for equivocation bookkeeping accept nothing at all.
	if msg.EraID < es.current.SaturatingSub(es.cfg.BondedEras) {
		return nil
	}
	if es.evidenceOnly(msg.EraID) {
		acceptable := msg.Kind == MessageEvidenceRequest ||
			(msg.Kind == MessageVertex && msg.Vertex.Kind == highway.VertexEvidence)
		if !acceptable {
			return nil
		}
	}

	switch msg.Kind {
	case MessageVertex:
		pvv, err := era.Highway.PreValidateVertex(*msg.Vertex)
		if err != nil {
			return []ProtocolOutcome{{Kind: OutcomeInvalidIncomingMessage, EraID: era.ID, Peer: peer, Err: err}}
		}
		if era.Highway.HasVertex(*msg.Vertex) {
			return nil
		}
		return era.Sync.ScheduleAddVertex(peer, pvv, now)

	case MessageRequestDependency:
		if vertex, ok := era.Highway.GetDependency(*msg.Dependency); ok {
			payload := types.Marshal(VertexMessage(era.ID, vertex))
			return []ProtocolOutcome{{
				Kind:    OutcomeCreatedTargetedMessage,
				EraID:   era.ID,
				Payload: payload,
				Peer:    peer,
			}}
		}
		return nil

	case MessageEvidenceRequest:
		if idx, ok := era.Highway.Validators().Index(*msg.PublicKey); ok {
			if ev := era.Highway.State().GetEvidence(idx); ev != nil {
				payload := types.Marshal(VertexMessage(era.ID, highway.EvidenceVertex(*ev)))
				return []ProtocolOutcome{{
					Kind:    OutcomeCreatedTargetedMessage,
					EraID:   era.ID,
					Payload: payload,
					Peer:    peer,
				}}
			}
		}
		return nil

	case MessageLatestStateRequest:
		var outcomes []ProtocolOutcome
		for _, obs := range era.Highway.State().Panorama() {
			if !obs.IsCorrect() {
				continue
			}
			if swu, ok := era.Highway.State().Unit(obs.Hash); ok {
				payload := types.Marshal(VertexMessage(era.ID, highway.UnitVertex(*swu)))
				outcomes = append(outcomes, ProtocolOutcome{
					Kind:    OutcomeCreatedTargetedMessage,
					EraID:   era.ID,
					Payload: payload,
					Peer:    peer,
				})
			}
		}
		return outcomes
	}
	return nil
}

// ProcessQueuedVertices drains the era's main queue: validated vertices
// enter the state, proposals with unvalidated values are parked as
// candidates, and missing dependencies trigger targeted requests.
func (es *EraSupervisor) ProcessQueuedVertices(eraID types.EraID) []ProtocolOutcome {
	era, ok := es.eras[eraID]
	if !ok {
		return nil
	}
	var outcomes []ProtocolOutcome
	for era.Sync.MainQueueLen() > 0 {
		pv, popOutcomes := era.Sync.PopVertexToAdd(era.Highway, era.pendingProposalHashes())
		outcomes = append(outcomes, popOutcomes...)
		if pv == nil {
			continue
		}

		vertex := pv.PVV.Inner()
		if vertex.IsProposal() && !era.isValueValidated(*vertex.Value()) {
			era.parkCandidate(*pv)
			outcomes = append(outcomes, ProtocolOutcome{
				Kind:  OutcomeValidateConsensusValue,
				EraID: era.ID,
				Value: *vertex.Value(),
			})
			continue
		}

		vv, err := era.Highway.ValidateVertex(pv.PVV)
		if err != nil {
			outcomes = append(outcomes, ProtocolOutcome{
				Kind: OutcomeInvalidIncomingMessage, EraID: era.ID, Peer: pv.Peer, Err: err,
			})
			continue
		}
		outcomes = append(outcomes, es.addValidVertex(era, vv)...)
		outcomes = append(outcomes, era.Sync.RemoveSatisfiedDeps(era.Highway)...)
	}
	return outcomes
}

func (es *EraSupervisor) addValidVertex(era *Era, vv highway.ValidVertex) []ProtocolOutcome {
	var outcomes []ProtocolOutcome
	add := era.Highway.AddValidVertex(vv)
	if add.NewEvidence != nil {
		if pk, ok := era.Highway.Validators().PublicKey(add.NewEvidence.Perpetrator()); ok {
			outcomes = append(outcomes, ProtocolOutcome{
				Kind: OutcomeNewEvidence, EraID: era.ID, Evidence: pk,
			})
		}
		payload := types.Marshal(VertexMessage(era.ID, highway.EvidenceVertex(*add.NewEvidence)))
		outcomes = append(outcomes, ProtocolOutcome{
			Kind: OutcomeCreatedGossipMessage, EraID: era.ID, Payload: payload,
		})
	}
	if add.WeEquivocated {
		outcomes = append(outcomes, ProtocolOutcome{Kind: OutcomeWeAreFaulty, EraID: era.ID})
	}
	for i := range add.Finalized {
		fb := add.Finalized[i]
		outcomes = append(outcomes, ProtocolOutcome{
			Kind: OutcomeFinalizedBlock, EraID: era.ID, Finalized: &fb,
		})
	}
	return outcomes
}

// HandleTimer drives the era's round machinery and the synchronizer's
// time-based queues.
func (es *EraSupervisor) HandleTimer(eraID types.EraID, now types.Timestamp) []ProtocolOutcome {
	era, ok := es.eras[eraID]
	if !ok {
		return nil
	}
	var outcomes []ProtocolOutcome
	outcomes = append(outcomes, era.Sync.AddPastDueStoredVertices(now)...)
	era.Sync.PurgeVertices(now)
	outcomes = append(outcomes, es.convertEffects(era, era.Highway.HandleTimer(now))...)
	return outcomes
}

// HandleNewBlockPayload answers an earlier request for a value to
// propose.
func (es *EraSupervisor) HandleNewBlockPayload(eraID types.EraID, value types.Hash, now types.Timestamp) []ProtocolOutcome {
	era, ok := es.eras[eraID]
	if !ok {
		return nil
	}
	return es.convertEffects(era, era.Highway.Propose(value, now))
}

// ResolveValidity reports the external validity verdict for a proposed
// value. Valid candidates and their parked vertices proceed; invalid
// ones are dropped and their senders penalized.
func (es *EraSupervisor) ResolveValidity(eraID types.EraID, value types.Hash, valid bool) []ProtocolOutcome {
	era, ok := es.eras[eraID]
	if !ok {
		return nil
	}
	var outcomes []ProtocolOutcome
	var remaining []PendingCandidate
	for _, candidate := range era.candidates {
		if candidate.Value != value {
			remaining = append(remaining, candidate)
			continue
		}
		if !valid {
			for _, pv := range candidate.Vertices {
				outcomes = append(outcomes, ProtocolOutcome{
					Kind: OutcomeInvalidIncomingMessage, EraID: era.ID, Peer: pv.Peer,
					Err: highway.ErrUnitPanorama,
				})
			}
			continue
		}
		era.validated(value)
		for _, pv := range candidate.Vertices {
			vv, err := era.Highway.ValidateVertex(pv.PVV)
			if err != nil {
				outcomes = append(outcomes, ProtocolOutcome{
					Kind: OutcomeInvalidIncomingMessage, EraID: era.ID, Peer: pv.Peer, Err: err,
				})
				continue
			}
			outcomes = append(outcomes, es.addValidVertex(era, vv)...)
		}
		outcomes = append(outcomes, era.Sync.RemoveSatisfiedDeps(era.Highway)...)
	}
	era.candidates = remaining
	return outcomes
}

// AddLocalVertex admits a vertex produced by this node itself.
func (es *EraSupervisor) AddLocalVertex(eraID types.EraID, vv highway.ValidVertex) []ProtocolOutcome {
	era, ok := es.eras[eraID]
	if !ok {
		return nil
	}
	outcomes := es.addValidVertex(era, vv)
	payload := types.Marshal(VertexMessage(era.ID, vv.Inner()))
	outcomes = append(outcomes, ProtocolOutcome{
		Kind: OutcomeCreatedGossipMessage, EraID: era.ID, Payload: payload,
	})
	outcomes = append(outcomes, era.Sync.RemoveSatisfiedDeps(era.Highway)...)
	return outcomes
}

func (es *EraSupervisor) convertEffects(era *Era, effects []highway.Effect) []ProtocolOutcome {
	var outcomes []ProtocolOutcome
	for _, effect := range effects {
		switch effect.Kind {
		case highway.EffectScheduleTimer:
			outcomes = append(outcomes, ProtocolOutcome{
				Kind: OutcomeScheduleTimer, EraID: era.ID, Timer: effect.Timer,
			})
		case highway.EffectRequestNewBlock:
			outcomes = append(outcomes, ProtocolOutcome{
				Kind: OutcomeRequestNewBlock, EraID: era.ID,
			})
		case highway.EffectNewVertex:
			outcomes = append(outcomes, es.AddLocalVertex(era.ID, *effect.Vertex)...)
		}
	}
	return outcomes
}

// Era helpers for candidate tracking.

func (era *Era) pendingProposalHashes() map[types.Hash]struct{} {
	out := map[types.Hash]struct{}{}
	for _, candidate := range era.candidates {
		for _, pv := range candidate.Vertices {
			v := pv.PVV.Inner()
			if v.Kind == highway.VertexUnit {
				out[v.Unit.Hash()] = struct{}{}
			}
		}
	}
	return out
}

func (era *Era) parkCandidate(pv PendingVertex) {
	value := *pv.PVV.Inner().Value()
	for i := range era.candidates {
		if era.candidates[i].Value == value {
			era.candidates[i].Vertices = append(era.candidates[i].Vertices, pv)
			return
		}
	}
	era.candidates = append(era.candidates, PendingCandidate{
		Value:    value,
		Vertices: []PendingVertex{pv},
	})
}

func (era *Era) isValueValidated(value types.Hash) bool {
	for _, candidate := range era.candidates {
		if candidate.Value == value {
			return candidate.ProtoValidated
		}
	}
	return era.validatedValues[value]
}

func (era *Era) validated(value types.Hash) {
	if era.validatedValues == nil {
		era.validatedValues = map[types.Hash]bool{}
	}
	era.validatedValues[value] = true
}

// scaleWeights converts motes stakes to u64 consensus weights, shifting
// uniformly right until the total fits.
func scaleWeights(weights map[types.PublicKey]types.Motes) map[types.PublicKey]uint64 {
	total := new(big.Int)
	for _, stake := range weights {
		total.Add(total, stake.Big())
	}
	shift := 0
	if bits := total.BitLen(); bits > 64 {
		shift = bits - 64
	}
	out := make(map[types.PublicKey]uint64, len(weights))
	for pk, stake := range weights {
		out[pk] = new(big.Int).Rsh(stake.Big(), uint(shift)).Uint64()
	}
	return out
}
