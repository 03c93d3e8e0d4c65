package consensus

import (
	"github.com/ethereum/go-ethereum/common/prque"
	log "github.com/sirupsen/logrus"

	"github.com/casperlabs/casper-node/consensus/highway"
	"github.com/casperlabs/casper-node/types"
)

// PendingVertex is a pre-validated vertex waiting in the synchronizer,
// with the peer that sent it and its arrival time.
type PendingVertex struct {
	Peer     NodeID
	PVV      highway.PreValidatedVertex
	Received types.Timestamp
}

// Synchronizer holds vertices whose dependencies are not yet in the
// protocol state and drives their resolution. Single-threaded
// cooperative: every call returns outcomes for the reactor to dispatch
// and never blocks; ordering within one call is insertion order.
type Synchronizer struct {
	eraID types.EraID

	// mainQueue holds vertices ready for a dependency check.
	mainQueue []PendingVertex
	// vertexDeps holds vertices blocked on a dependency, keyed by it.
	vertexDeps map[highway.Dependency][]PendingVertex
	// futureQueue defers vertices whose timestamp has not arrived,
	// earliest first.
	futureQueue *prque.Prque[int64, PendingVertex]

	pendingVertexTimeout types.TimeDiff
}

func NewSynchronizer(eraID types.EraID, pendingVertexTimeout types.TimeDiff) *Synchronizer {
	return &Synchronizer{
		eraID:                eraID,
		vertexDeps:           map[highway.Dependency][]PendingVertex{},
		futureQueue:          prque.New[int64, PendingVertex](nil),
		pendingVertexTimeout: pendingVertexTimeout,
	}
}

// ScheduleAddVertex stores a vertex for addition. Future-dated vertices
// wait in the future queue until their timestamp arrives.
func (sync *Synchronizer) ScheduleAddVertex(
	peer NodeID,
	pvv highway.PreValidatedVertex,
	now types.Timestamp,
) []ProtocolOutcome {
	pv := PendingVertex{Peer: peer, PVV: pvv, Received: now}
	if ts, ok := pvv.Inner().Timestamp(); ok && ts > now {
		sync.futureQueue.Push(pv, -int64(ts))
		return nil
	}
	sync.mainQueue = append(sync.mainQueue, pv)
	return []ProtocolOutcome{{Kind: OutcomeQueueAction, EraID: sync.eraID, Action: ActionIDVertex}}
}

// PopVertexToAdd takes the next vertex off the main queue. If a
// dependency is missing the vertex is parked and, unless the dependency
// is already expected from elsewhere, a targeted request goes to the
// vertex's sender. Otherwise the vertex is returned for validation and
// addition.
func (sync *Synchronizer) PopVertexToAdd(
	hw *highway.Highway,
	pendingProposals map[types.Hash]struct{},
) (*PendingVertex, []ProtocolOutcome) {
	for len(sync.mainQueue) > 0 {
		pv := sync.mainQueue[0]
		sync.mainQueue = sync.mainQueue[1:]

		dep := hw.MissingDependency(pv.PVV)
		if dep == nil {
			return &pv, nil
		}

		alreadyExpected := sync.expectsDependency(*dep, pendingProposals)
		sync.vertexDeps[*dep] = append(sync.vertexDeps[*dep], pv)
		if alreadyExpected {
			// The dependency is already pending here or being validated;
			// requesting it again would be redundant.
			continue
		}
		msg := types.Marshal(RequestDependencyMessage(sync.eraID, *dep))
		return nil, []ProtocolOutcome{{
			Kind:    OutcomeCreatedTargetedMessage,
			EraID:   sync.eraID,
			Payload: msg,
			Peer:    pv.Peer,
		}}
	}
	return nil, nil
}

// expectsDependency reports whether the dependency is already satisfied
// by a vertex somewhere in the synchronizer, including transitively
// through known pending units' panoramas, or by a proposal that is
// currently being validated.
func (sync *Synchronizer) expectsDependency(
	dep highway.Dependency,
	pendingProposals map[types.Hash]struct{},
) bool {
	if _, ok := sync.vertexDeps[dep]; ok {
		return true
	}
	if dep.Kind != highway.DependencyUnit {
		return false
	}
	if _, ok := pendingProposals[dep.Hash]; ok {
		return true
	}
	for _, pv := range sync.allPending() {
		v := pv.PVV.Inner()
		if v.Kind != highway.VertexUnit {
			continue
		}
		if v.Unit.Hash() == dep.Hash {
			return true
		}
		// A pending unit whose panorama cites the hash will pull it in
		// through its own dependency chain.
		for _, cited := range v.Unit.Unit.Panorama.CorrectHashes() {
			if cited == dep.Hash {
				return true
			}
		}
	}
	return false
}

func (sync *Synchronizer) allPending() []PendingVertex {
	out := make([]PendingVertex, 0, len(sync.mainQueue))
	out = append(out, sync.mainQueue...)
	for _, waiters := range sync.vertexDeps {
		out = append(out, waiters...)
	}
	return out
}

// AddPastDueStoredVertices moves future-dated vertices whose timestamp
// has arrived into the main queue.
func (sync *Synchronizer) AddPastDueStoredVertices(now types.Timestamp) []ProtocolOutcome {
	var outcomes []ProtocolOutcome
	for !sync.futureQueue.Empty() {
		pv, negTs := sync.futureQueue.Peek()
		if types.Timestamp(-negTs) > now {
			break
		}
		sync.futureQueue.Pop()
		pv.Received = now
		sync.mainQueue = append(sync.mainQueue, pv)
		outcomes = append(outcomes, ProtocolOutcome{
			Kind:   OutcomeQueueAction,
			EraID:  sync.eraID,
			Action: ActionIDVertex,
		})
	}
	return outcomes
}

// RemoveSatisfiedDeps re-enqueues every vertex whose dependency the
// protocol state now satisfies.
func (sync *Synchronizer) RemoveSatisfiedDeps(hw *highway.Highway) []ProtocolOutcome {
	var outcomes []ProtocolOutcome
	for dep, waiters := range sync.vertexDeps {
		if !hw.HasDependency(dep) {
			continue
		}
		delete(sync.vertexDeps, dep)
		sync.mainQueue = append(sync.mainQueue, waiters...)
		for range waiters {
			outcomes = append(outcomes, ProtocolOutcome{
				Kind:   OutcomeQueueAction,
				EraID:  sync.eraID,
				Action: ActionIDVertex,
			})
		}
	}
	return outcomes
}

// PurgeVertices evicts every pending vertex that arrived before
// now - pending_vertex_timeout, and transitively every vertex parked on a
// dependency a purged vertex would have provided.
func (sync *Synchronizer) PurgeVertices(now types.Timestamp) {
	var cutoff types.Timestamp
	if now.Millis() > sync.pendingVertexTimeout.Millis() {
		cutoff = types.Timestamp(now.Millis() - sync.pendingVertexTimeout.Millis())
	}
	alive := func(pv PendingVertex) bool { return pv.Received >= cutoff }

	purgedUnits := map[types.Hash]struct{}{}
	purged := 0
	drop := func(pv PendingVertex) {
		purged++
		v := pv.PVV.Inner()
		if v.Kind == highway.VertexUnit {
			purgedUnits[v.Unit.Hash()] = struct{}{}
		}
	}

	var kept []PendingVertex
	for _, pv := range sync.mainQueue {
		if alive(pv) {
			kept = append(kept, pv)
		} else {
			drop(pv)
		}
	}
	sync.mainQueue = kept

	requeue := prque.New[int64, PendingVertex](nil)
	for !sync.futureQueue.Empty() {
		pv, prio := sync.futureQueue.Pop()
		if alive(pv) {
			requeue.Push(pv, prio)
		} else {
			drop(pv)
		}
	}
	sync.futureQueue = requeue

	// Age pass over parked vertices, then cascade: a vertex waiting on a
	// purged unit will never resolve here.
	for dep, waiters := range sync.vertexDeps {
		var keptWaiters []PendingVertex
		for _, pv := range waiters {
			if alive(pv) {
				keptWaiters = append(keptWaiters, pv)
			} else {
				drop(pv)
			}
		}
		if len(keptWaiters) == 0 {
			delete(sync.vertexDeps, dep)
		} else {
			sync.vertexDeps[dep] = keptWaiters
		}
	}
	for changed := true; changed; {
		changed = false
		for dep, waiters := range sync.vertexDeps {
			if dep.Kind != highway.DependencyUnit {
				continue
			}
			if _, hit := purgedUnits[dep.Hash]; !hit {
				continue
			}
			for _, pv := range waiters {
				drop(pv)
			}
			delete(sync.vertexDeps, dep)
			changed = true
		}
	}

	if purged > 0 {
		log.WithFields(log.Fields{
			"era":    sync.eraID,
			"purged": purged,
		}).Debug("purged timed out vertices")
	}
}

// HasPending reports whether anything is still queued or parked.
func (sync *Synchronizer) HasPending() bool {
	return len(sync.mainQueue) > 0 || len(sync.vertexDeps) > 0 || !sync.futureQueue.Empty()
}

// MainQueueLen is the number of vertices ready for a dependency check.
func (sync *Synchronizer) MainQueueLen() int { return len(sync.mainQueue) }
