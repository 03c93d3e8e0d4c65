// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

// Package consensus hosts the era supervisor, the vertex synchronizer
// and the protocol abstraction over the per-era consensus instances.
// Components here are synchronous state machines: every call returns the
// outcomes the reactor must dispatch, and nothing blocks.
package consensus

import (
	"github.com/casperlabs/casper-node/consensus/highway"
	"github.com/casperlabs/casper-node/types"
)

// NodeID identifies a peer on the network layer.
type NodeID string

// ActionID distinguishes queued follow-up actions the reactor feeds back
// into the component.
type ActionID uint8

// ActionIDVertex asks the reactor to call ProcessQueuedVertices.
const ActionIDVertex ActionID = 0

// OutcomeKind tags a protocol outcome.
type OutcomeKind uint8

const (
	// OutcomeCreatedGossipMessage broadcasts a serialized message.
	OutcomeCreatedGossipMessage OutcomeKind = iota
	// OutcomeCreatedTargetedMessage sends a serialized message to one
	// peer.
	OutcomeCreatedTargetedMessage
	// OutcomeScheduleTimer asks for a HandleTimer call at the timestamp.
	OutcomeScheduleTimer
	// OutcomeQueueAction re-enqueues a deferred action.
	OutcomeQueueAction
	// OutcomeRequestNewBlock asks the block proposer for a value.
	OutcomeRequestNewBlock
	// OutcomeFinalizedBlock reports a newly finalized block.
	OutcomeFinalizedBlock
	// OutcomeNewEvidence reports a newly detected equivocator.
	OutcomeNewEvidence
	// OutcomeWeAreFaulty reports that this node's own equivocation was
	// observed; the validator deactivated itself.
	OutcomeWeAreFaulty
	// OutcomeInvalidIncomingMessage asks to penalize the sending peer.
	OutcomeInvalidIncomingMessage
	// OutcomeValidateConsensusValue asks for a proposed value to be
	// validated before its proposal can be added.
	OutcomeValidateConsensusValue
)

// ProtocolOutcome is one effect the reactor dispatches on behalf of the
// consensus component. Ordering within one returned list is significant.
type ProtocolOutcome struct {
	Kind      OutcomeKind
	EraID     types.EraID
	Payload   []byte
	Peer      NodeID
	Timer     types.Timestamp
	Action    ActionID
	Finalized *highway.FinalizedBlock
	Evidence  types.PublicKey
	Value     types.Hash
	Err       error
}

// MessageKind tags the consensus wire payloads.
type MessageKind uint8

const (
	// MessageVertex carries a pre-validated vertex.
	MessageVertex MessageKind = iota
	// MessageRequestDependency asks a peer for a missing vertex.
	MessageRequestDependency
	// MessageEvidenceRequest asks for evidence against a validator.
	MessageEvidenceRequest
	// MessageLatestStateRequest asks for the peer's panorama tips.
	MessageLatestStateRequest
)

// Message is the consensus-level wire envelope: Protocol{era_id, payload}.
// Transport framing and signatures live a layer below; consensus-layer
// signatures cover unit hashes only.
type Message struct {
	Kind       MessageKind
	EraID      types.EraID
	Vertex     *highway.Vertex
	Dependency *highway.Dependency
	PublicKey  *types.PublicKey
}

func VertexMessage(era types.EraID, v highway.Vertex) Message {
	return Message{Kind: MessageVertex, EraID: era, Vertex: &v}
}

func RequestDependencyMessage(era types.EraID, dep highway.Dependency) Message {
	return Message{Kind: MessageRequestDependency, EraID: era, Dependency: &dep}
}

func EvidenceRequestMessage(era types.EraID, pk types.PublicKey) Message {
	return Message{Kind: MessageEvidenceRequest, EraID: era, PublicKey: &pk}
}

func LatestStateRequestMessage(era types.EraID) Message {
	return Message{Kind: MessageLatestStateRequest, EraID: era}
}

func (m Message) MarshalBytes(e *types.Encoder) {
	e.WriteU8(uint8(m.Kind))
	e.WriteU64(uint64(m.EraID))
	switch m.Kind {
	case MessageVertex:
		m.Vertex.MarshalBytes(e)
	case MessageRequestDependency:
		m.Dependency.MarshalBytes(e)
	case MessageEvidenceRequest:
		m.PublicKey.MarshalBytes(e)
	}
}

func (m *Message) UnmarshalBytes(d *types.Decoder) error {
	kind, err := d.ReadU8()
	if err != nil {
		return err
	}
	era, err := d.ReadU64()
	if err != nil {
		return err
	}
	*m = Message{Kind: MessageKind(kind), EraID: types.EraID(era)}
	switch m.Kind {
	case MessageVertex:
		m.Vertex = new(highway.Vertex)
		return m.Vertex.UnmarshalBytes(d)
	case MessageRequestDependency:
		m.Dependency = new(highway.Dependency)
		return m.Dependency.UnmarshalBytes(d)
	case MessageEvidenceRequest:
		m.PublicKey = new(types.PublicKey)
		return m.PublicKey.UnmarshalBytes(d)
	case MessageLatestStateRequest:
		return nil
	default:
		return types.ErrFormatting
	}
}

// ComputeInstanceID derives the era's consensus instance id, committing
// to the chain, its genesis time and the era.
func ComputeInstanceID(chainName string, genesisTimestamp types.Timestamp, era types.EraID) types.Hash {
	e := types.NewEncoder()
	e.WriteString(chainName)
	e.WriteU64(uint64(genesisTimestamp))
	e.WriteU64(uint64(era))
	return types.HashBytes(e.Bytes())
}
