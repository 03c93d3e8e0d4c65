// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

// Package node wires the core components into the event-driven reactor:
// genesis bootstraps the state, the era supervisor drives consensus, the
// auction rotates validator sets on switch blocks, and the linear chain
// persists blocks and signature bundles. All component calls happen on
// the single dispatch goroutine; components never share mutable state.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/casperlabs/casper-node/auction"
	"github.com/casperlabs/casper-node/config"
	"github.com/casperlabs/casper-node/consensus"
	"github.com/casperlabs/casper-node/consensus/highway"
	"github.com/casperlabs/casper-node/crypto/ed25519"
	"github.com/casperlabs/casper-node/genesis"
	"github.com/casperlabs/casper-node/linearchain"
	"github.com/casperlabs/casper-node/state"
	"github.com/casperlabs/casper-node/types"
)

// highwayFinalized is the finality detector's output type.
type highwayFinalized = highway.FinalizedBlock

// event is one unit of reactor work.
type event struct {
	timerEra  types.EraID
	timer     types.Timestamp
	isTimer   bool
	queuedEra types.EraID
	isQueued  bool
}

// Node is the assembled reactor.
type Node struct {
	cfg     *config.Config
	keypair *ed25519.Keypair

	globalState   *state.InMemoryGlobalState
	postStateHash types.Hash

	supervisor *consensus.EraSupervisor
	linear     *linearchain.LinearChain
	store      linearchain.Store

	mu           sync.RWMutex
	weightsByEra map[types.EraID]map[types.PublicKey]types.Motes

	events chan event
}

// New bootstraps the node: runs genesis and builds the components.
func New(cfg *config.Config) (*Node, error) {
	keypair, err := ed25519.ResolveKeypair(cfg.Node.ValidatorKey, cfg.Node.ValidatorKeyFile)
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:          cfg,
		keypair:      keypair,
		globalState:  state.NewInMemoryGlobalState(),
		store:        linearchain.NewMemStore(),
		weightsByEra: map[types.EraID]map[types.PublicKey]types.Motes{},
		events:       make(chan event, 128),
	}

	postState, _, err := genesis.Run(
		n.globalState,
		cfg.Genesis.Hash(),
		cfg.Protocol.Version,
		cfg.Genesis,
	)
	if err != nil {
		return nil, fmt.Errorf("run genesis: %w", err)
	}
	n.postStateHash = postState

	genesisWeights := map[types.PublicKey]types.Motes{}
	for _, account := range cfg.Genesis.Accounts {
		if account.IsGenesisValidator() {
			genesisWeights[*account.PublicKey] = account.BondedAmount
		}
	}
	// The genesis snapshot freezes the founding validators into every era
	// of the initial window.
	for era := types.InitialEraID; era <= types.EraID(cfg.Genesis.AuctionDelay); era++ {
		n.weightsByEra[era] = genesisWeights
	}

	n.linear = linearchain.New(n.store, n, keypair)

	supervisor, outcomes := consensus.New(cfg.Consensus, genesisWeights, keypair, types.TimestampNow())
	n.supervisor = supervisor
	n.dispatch(outcomes)

	return n, nil
}

// PostStateHash is the current committed state root.
func (n *Node) PostStateHash() types.Hash {
	return n.postStateHash
}

// BondedValidators implements linearchain.WeightsProvider.
func (n *Node) BondedValidators(era types.EraID) (map[types.PublicKey]types.Motes, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	weights, ok := n.weightsByEra[era]
	return weights, ok
}

// Start runs the reactor loop under the errgroup.
func (n *Node) Start(ctx context.Context, eg *errgroup.Group) error {
	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-n.events:
				switch {
				case ev.isTimer:
					n.dispatch(n.supervisor.HandleTimer(ev.timerEra, ev.timer))
				case ev.isQueued:
					n.dispatch(n.supervisor.ProcessQueuedVertices(ev.queuedEra))
				}
			}
		}
	})
	log.WithField("chain", n.cfg.Consensus.ChainName).Info("node started")
	return nil
}

// HandleMessage feeds one consensus message from a peer into the
// supervisor.
func (n *Node) HandleMessage(peer consensus.NodeID, payload []byte) {
	n.dispatch(n.supervisor.HandleMessage(peer, payload, types.TimestampNow()))
}

// dispatch executes a list of protocol outcomes in order.
func (n *Node) dispatch(outcomes []consensus.ProtocolOutcome) {
	for _, outcome := range outcomes {
		switch outcome.Kind {
		case consensus.OutcomeScheduleTimer:
			n.scheduleTimer(outcome.EraID, outcome.Timer)
		case consensus.OutcomeQueueAction:
			select {
			case n.events <- event{isQueued: true, queuedEra: outcome.EraID}:
			default:
				n.dispatch(n.supervisor.ProcessQueuedVertices(outcome.EraID))
			}
		case consensus.OutcomeRequestNewBlock:
			n.dispatch(n.supervisor.HandleNewBlockPayload(
				outcome.EraID, n.proposeValue(outcome.EraID), types.TimestampNow(),
			))
		case consensus.OutcomeValidateConsensusValue:
			// Deploy-level validation is an external collaborator; values
			// produced by this node are vacuously valid.
			n.dispatch(n.supervisor.ResolveValidity(outcome.EraID, outcome.Value, true))
		case consensus.OutcomeFinalizedBlock:
			if err := n.handleFinalizedBlock(outcome.EraID, outcome.Finalized); err != nil {
				log.WithError(err).Error("failed to handle finalized block")
			}
		case consensus.OutcomeNewEvidence:
			log.WithField("validator", outcome.Evidence).Warn("new equivocation evidence")
		case consensus.OutcomeWeAreFaulty:
			log.Error("our own equivocation was detected, deactivated validator")
		case consensus.OutcomeInvalidIncomingMessage:
			log.WithError(outcome.Err).WithField("peer", outcome.Peer).
				Info("invalid incoming consensus message")
		case consensus.OutcomeCreatedGossipMessage,
			consensus.OutcomeCreatedTargetedMessage:
			// Network transport is an external collaborator; messages are
			// handed to it here.
		}
	}
}

func (n *Node) scheduleTimer(era types.EraID, at types.Timestamp) {
	delay := time.Until(at.GoTime())
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		select {
		case n.events <- event{isTimer: true, timerEra: era, timer: at}:
		default:
		}
	})
}

// proposeValue picks the value for a proposal. The deploy buffer is an
// external collaborator; without one the value commits to the proposer's
// view of time.
func (n *Node) proposeValue(era types.EraID) types.Hash {
	e := types.NewEncoder()
	e.WriteU64(uint64(era))
	e.WriteU64(uint64(types.TimestampNow()))
	return types.HashBytes(e.Bytes())
}

// handleFinalizedBlock turns a consensus-finalized value into a stored
// block. A switch block additionally distributes rewards, rotates the
// auction and spawns the successor era.
func (n *Node) handleFinalizedBlock(era types.EraID, fb *highwayFinalized) error {
	parentHash := types.Hash{}
	accumulatedSeed := types.Hash{}
	height := uint64(0)
	if latest := n.linear.LatestBlock(); latest != nil {
		parentHash = latest.Hash()
		accumulatedSeed = latest.Header.AccumulatedSeed
		height = latest.Height() + 1
	}

	var eraEnd *types.EraEnd
	if fb.EraEnd != nil {
		report, stateHash, err := n.runEraEnd(era, fb)
		if err != nil {
			return err
		}
		eraEnd = report
		n.postStateHash = stateHash
	}

	body := types.BlockBody{Proposer: fb.Proposer}
	header := types.BlockHeader{
		ParentHash:      parentHash,
		StateRootHash:   n.postStateHash,
		BodyHash:        body.Hash(),
		RandomBit:       fb.Value[0]&1 == 1,
		AccumulatedSeed: types.HashPair(accumulatedSeed, fb.Value),
		EraEnd:          eraEnd,
		Timestamp:       fb.Timestamp,
		EraID:           era,
		Height:          height,
		ProtocolVersion: n.cfg.Protocol.Version,
	}
	block := types.NewBlock(header, body)

	if err := n.linear.NewLinearChainBlock(block); err != nil {
		return err
	}
	if block.IsSwitchBlock() {
		n.dispatch(n.supervisor.HandleSwitchBlock(block, types.TimestampNow()))
	}
	return nil
}

// runEraEnd executes the auction's era-end logic: distribute the era's
// rewards, then rotate via run_auction, and commit. Returns the switch
// block's era end and the new state root.
func (n *Node) runEraEnd(era types.EraID, fb *highwayFinalized) (*types.EraEnd, types.Hash, error) {
	reader, err := n.globalState.Checkout(n.postStateHash)
	if err != nil {
		return nil, types.Hash{}, err
	}
	tc := state.NewTrackingCopy(reader)
	gen := state.NewAddressGenerator(types.HashPair(n.postStateHash, fb.Value), state.PhaseSystem)
	runtime, err := auction.NewRuntime(tc, gen, types.SystemAccountAddr)
	if err != nil {
		return nil, types.Hash{}, err
	}
	contract := auction.New(runtime.Providers())

	if len(fb.EraEnd.Rewards) > 0 {
		if err := contract.Distribute(fb.EraEnd.Rewards); err != nil {
			return nil, types.Hash{}, fmt.Errorf("distribute: %w", err)
		}
	}
	if len(fb.EraEnd.Equivocators) > 0 {
		if err := contract.Slash(fb.EraEnd.Equivocators); err != nil {
			return nil, types.Hash{}, fmt.Errorf("slash: %w", err)
		}
	}
	if err := contract.RunAuction(uint64(fb.Timestamp)); err != nil {
		return nil, types.Hash{}, fmt.Errorf("run auction: %w", err)
	}

	nextWeights, err := contract.GetEraValidators()
	if err != nil {
		return nil, types.Hash{}, fmt.Errorf("get era validators: %w", err)
	}

	stateHash, err := n.globalState.Commit(n.postStateHash, tc.Effect())
	if err != nil {
		return nil, types.Hash{}, err
	}

	n.mu.Lock()
	n.weightsByEra[era.Successor()] = nextWeights
	n.mu.Unlock()

	eraEnd := &types.EraEnd{
		Report: types.EraReport{
			Equivocators:       fb.EraEnd.Equivocators,
			Rewards:            fb.EraEnd.Rewards,
			InactiveValidators: fb.EraEnd.InactiveValidators,
		},
		NextEraValidatorWeights: nextWeights,
	}
	return eraEnd, stateHash, nil
}
