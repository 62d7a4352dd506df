package avalanche

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Manager is the peer manager: the sybil-resistance gate deciding which
// proofs of stake are accepted, which conflict, which are orphaned awaiting
// chain data, and how connected nodes are bound to accepted proofs for
// weighted random selection.
//
// Manager is safe for concurrent use. One sync.RWMutex is held for the
// duration of each public call, single-writer-many-reader; callbacks passed
// to the For*/ForEach* family run under the read lock and must not call back
// into the Manager.
type Manager struct {
	mu sync.RWMutex

	cfg Config

	peers       *peerTable
	nodes       *nodeTable
	pending     *pendingTable
	conflicting *conflictPool
	orphans     *orphanPool
	slots       slotVector

	nextPeerID PeerID

	shouldRequestMore bool

	unbroadcast map[chainhash.Hash]struct{}

	metrics Metrics
}

// Metrics returns a point-in-time snapshot of the manager's activity
// counters. The avalanchrpc façade does not include them in its responses.
func (m *Manager) Metrics() Snapshot {
	return m.metrics.Snapshot()
}

// NewManager constructs a Manager from cfg. CoinLookup and Verifier must be
// non-nil; every other field has a usable default.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.CoinLookup == nil {
		return nil, errors.New("avalanche: Config.CoinLookup is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("avalanche: Config.Verifier is required")
	}

	cfg.setDefaults()

	return &Manager{
		cfg:         cfg,
		peers:       newPeerTable(),
		nodes:       newNodeTable(),
		pending:     newPendingTable(),
		conflicting: newConflictPool(cfg.MaxConflictingProofs),
		orphans:     newOrphanPool(cfg.MaxOrphanProofs),
		nextPeerID:  1,
		unbroadcast: make(map[chainhash.Hash]struct{}),
	}, nil
}

// RegisterProof attempts to admit proof into the manager: the proof becomes
// a peer, lands in the conflicting pool, becomes an orphan, or is rejected
// outright.
func (m *Manager) RegisterProof(proof *Proof, mode RegisterMode) (bool, RegisterReason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.registerProofLocked(proof, mode)
}

func (m *Manager) registerProofLocked(proof *Proof, mode RegisterMode) (ok bool, reason RegisterReason) {
	defer func() { m.metrics.recordOutcome(ok, reason) }()

	id := proof.ID()

	if _, ok := m.peers.getByProofID(id); ok {
		return false, ReasonAlreadyRegistered
	}
	if m.orphans.has(id) {
		return false, ReasonAlreadyRegistered
	}
	if m.conflicting.has(id) {
		return false, ReasonAlreadyRegistered
	}
	if m.conflicting.tombstoned(id) {
		return false, ReasonRejected
	}

	if err := m.cfg.Verifier.Verify(proof, m.cfg.CoinLookup); err != nil {
		log.Debugf("avalanche: proof %s failed verification: %v", id, err)
		return false, ReasonInvalid
	}

	if valid, reason := m.checkChainConstraints(proof); !valid {
		m.orphans.insert(proof, reason)
		log.Debugf("avalanche: proof %s orphaned: %s", id, reason)
		return false, reason
	}

	return m.resolveAndAccept(proof, mode)
}

// checkChainConstraints consults the coin oracle for every stake and
// reports whether the proof currently satisfies on-chain constraints, along
// with the orphan reason if not. Missing UTXOs take priority over height
// mismatches when a proof has both, matching the order they're listed in
// spec.md's register_proof algorithm.
func (m *Manager) checkChainConstraints(proof *Proof) (bool, RegisterReason) {
	missing := false
	heightMismatch := false

	for _, s := range proof.stakes {
		status, ok := m.cfg.CoinLookup.LookupCoin(s.Outpoint)
		if !ok {
			missing = true
			continue
		}
		if status.Height != s.Height {
			heightMismatch = true
		}
	}

	switch {
	case missing:
		return false, ReasonMissingUTXO
	case heightMismatch:
		return false, ReasonHeightMismatch
	default:
		return true, ReasonNone
	}
}

// resolveAndAccept runs the UTXO-collision resolution and acceptance steps
// of register_proof (spec.md §4.D steps 4-5) against a proof already known
// to be structurally valid and chain-satisfying. It backs both RegisterProof
// and the chain-tip rescan's orphan-promotion path.
func (m *Manager) resolveAndAccept(proof *Proof, mode RegisterMode) (bool, RegisterReason) {
	colliding := m.collidingPeers(proof)

	if len(colliding) == 0 {
		m.acceptProof(proof)
		return true, ReasonNone
	}

	now := m.cfg.Clock.NowSeconds()

	if mode == ModeDefault {
		for _, peer := range colliding {
			if now < peer.NextPossibleConflictTime+int64(m.cfg.ConflictingProofCooldown/time.Second) {
				return false, ReasonCooldownNotElapsed
			}
		}

		beatsAll := true
		for _, peer := range colliding {
			if !betterProof(proof, peer.Proof) {
				beatsAll = false
				break
			}
		}

		if !beatsAll {
			ok, _ := m.conflicting.tryInsert(proof)
			if ok {
				return false, ReasonConflicting
			}
			return false, ReasonRejected
		}
	}

	// Either every colliding peer lost the comparison, or we're in
	// FORCE_ACCEPT mode and skip the comparator entirely: demote every
	// colliding peer and accept the challenger.
	for _, peer := range colliding {
		m.demotePeerLocked(peer)
		m.conflicting.tryInsert(peer.Proof)
	}

	m.acceptProof(proof)

	return true, ReasonNone
}

// collidingPeers returns every live peer sharing a UTXO with proof.
func (m *Manager) collidingPeers(proof *Proof) []*Peer {
	seen := make(map[PeerID]*Peer)
	for _, s := range proof.stakes {
		for _, peer := range m.peers.byID {
			if _, ok := seen[peer.PeerID]; ok {
				continue
			}
			for _, ps := range peer.Proof.stakes {
				if ps.Outpoint == s.Outpoint {
					seen[peer.PeerID] = peer
					break
				}
			}
		}
	}

	peers := make([]*Peer, 0, len(seen))
	for _, p := range seen {
		peers = append(peers, p)
	}
	return peers
}

// acceptProof allocates a peer id and slot for proof, then rebinds any
// pending nodes that had announced it.
func (m *Manager) acceptProof(proof *Proof) *Peer {
	peerID := m.nextPeerID
	m.nextPeerID++

	idx := m.slots.addPeer(peerID, proof.Score())

	peer := &Peer{
		PeerID:                   peerID,
		Proof:                    proof,
		indexInSlotVector:        idx,
		NextPossibleConflictTime: m.cfg.Clock.NowSeconds(),
	}
	m.peers.insert(peer)

	for _, nodeID := range m.pending.takeAllFor(proof.ID()) {
		m.nodes.insert(&Node{NodeID: nodeID, PeerID: peerID})
		peer.NodeCount++
	}

	return peer
}

// demotePeerLocked removes peer from the live set, reverting its nodes to
// pending and tombstoning its slot. The caller decides what happens to the
// vacated proof (conflicting pool, orphan pool, or nothing).
func (m *Manager) demotePeerLocked(peer *Peer) {
	for _, node := range m.nodes.nodesOf(peer.PeerID) {
		m.pending.set(node.NodeID, peer.Proof.ID())
		m.nodes.remove(node)
	}

	m.slots.removePeer(peer.indexInSlotVector)
	m.peers.remove(peer)
}

// RejectProof removes proofID from wherever it currently lives (peer,
// orphan, or conflicting pool). If it was a peer, the vacated UTXOs are
// offered to the conflicting pool for promotion. If it was an orphan, it is
// dropped unconditionally regardless of mode: the manager's observed
// behavior never retains an orphan tombstone, only conflicting-pool
// tombstones survive RejectInvalidate.
func (m *Manager) RejectProof(proofID chainhash.Hash, mode RejectMode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if peer, ok := m.peers.getByProofID(proofID); ok {
		m.demotePeerLocked(peer)
		m.promoteFromConflictingPool(peer.Proof)
		return true
	}

	if _, ok := m.orphans.remove(proofID); ok {
		return true
	}

	if _, ok := m.conflicting.remove(proofID, mode == RejectInvalidate); ok {
		return true
	}

	return false
}

// promoteFromConflictingPool looks for conflicting-pool entries that were
// only blocked by vacatedProof and promotes each of them to a peer. Distinct
// occupants found this way cannot conflict with each other (conflictPool's
// invariant already resolved that), so each is promoted independently.
func (m *Manager) promoteFromConflictingPool(vacatedProof *Proof) {
	if !m.cfg.EnableProofReplacement {
		return
	}

	for _, candidate := range m.conflicting.occupants(vacatedProof) {
		if len(m.collidingPeers(candidate)) > 0 {
			// Defensive: shouldn't happen given conflictPool's own
			// invariants, but never silently promote into a fresh
			// collision.
			continue
		}

		m.conflicting.evict(candidate)
		m.acceptProof(candidate)

		m.promoteFromConflictingPool(candidate)
	}
}

// RemovePeer unbinds peerID's nodes (they become pending), tombstones its
// slot and removes its indexed entries. Unlike RejectProof, it never
// triggers conflicting-pool promotion; that's the caller's responsibility.
func (m *Manager) RemovePeer(peerID PeerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	peer, ok := m.peers.getByID(peerID)
	if !ok {
		return false
	}

	m.demotePeerLocked(peer)
	return true
}

// AddNode binds nodeID to the peer named by proofID. If proofID is unknown
// to the manager, the node is recorded as pending instead.
func (m *Manager) AddNode(nodeID NodeID, proofID chainhash.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	peer, ok := m.peers.getByProofID(proofID)
	if !ok {
		m.pending.set(nodeID, proofID)
		return false
	}

	if existing, ok := m.nodes.getByID(nodeID); ok {
		if oldPeer, ok := m.peers.getByID(existing.PeerID); ok {
			oldPeer.NodeCount--
		}
		m.nodes.remove(existing)
	}
	m.pending.clear(nodeID)

	m.nodes.insert(&Node{NodeID: nodeID, PeerID: peer.PeerID})
	peer.NodeCount++

	return true
}

// RemoveNode unbinds nodeID, whether it was bound to a peer or pending.
func (m *Manager) RemoveNode(nodeID NodeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if node, ok := m.nodes.getByID(nodeID); ok {
		if peer, ok := m.peers.getByID(node.PeerID); ok {
			peer.NodeCount--
		}
		m.nodes.remove(node)
		return true
	}

	if _, ok := m.pending.get(nodeID); ok {
		m.pending.clear(nodeID)
		return true
	}

	return false
}

// UpdateNextRequestTime sets nodeID's polling cooldown. Unlike
// UpdateNextPossibleConflictTime, this is not required to be monotonic.
func (m *Manager) UpdateNextRequestTime(nodeID NodeID, when time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes.getByID(nodeID)
	if !ok {
		return false
	}

	node.NextRequestTime = when.UnixNano()
	return true
}

// UpdateNextPossibleConflictTime advances peerID's conflict cooldown clock.
// It accepts the update only if when is not before the current value; the
// cooldown clock never moves backwards.
func (m *Manager) UpdateNextPossibleConflictTime(peerID PeerID, when int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	peer, ok := m.peers.getByID(peerID)
	if !ok {
		return false
	}

	if when < peer.NextPossibleConflictTime {
		return false
	}

	peer.NextPossibleConflictTime = when
	return true
}

// UpdatedBlockTip re-evaluates every orphan, peer and conflicting-pool entry
// against the current chain state. Orphans that now satisfy UTXO
// constraints are re-registered, subject to the usual conflict resolution.
// Peers and conflicting entries that no longer satisfy chain state become
// orphans, and peer demotions offer their vacated UTXOs to the conflicting
// pool exactly as RejectProof does. Processing order is by ascending
// proof id so the outcome never depends on map iteration order.
func (m *Manager) UpdatedBlockTip() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.orphans.orderedByProofID() {
		proof := entry.proof
		if valid, _ := m.checkChainConstraints(proof); valid {
			m.orphans.remove(proof.ID())
			m.resolveAndAccept(proof, ModeDefault)
		}
	}

	for _, peer := range m.peers.orderedByProofID() {
		if valid, reason := m.checkChainConstraints(peer.Proof); !valid {
			proof := peer.Proof
			m.demotePeerLocked(peer)
			m.orphans.insert(proof, reason)
			m.promoteFromConflictingPool(proof)
		}
	}

	for _, proof := range m.conflicting.orderedByProofID() {
		if valid, reason := m.checkChainConstraints(proof); !valid {
			m.conflicting.remove(proof.ID(), false)
			m.orphans.insert(proof, reason)
		}
	}
}

// SelectPeer draws a peer weighted by score, or NoPeer if there are no live
// peers or the draw lands on a tombstoned gap.
func (m *Manager) SelectPeer() PeerID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.metrics.recordDraw()
	return m.slots.selectPeer(m.cfg.RNG.Uint64n)
}

// SelectNode picks a weighted-random peer, then returns whichever of its
// bound nodes has the earliest NextRequestTime at or before now. It returns
// NoNode if the drawn peer has no due node; when every peer's nodes are all
// still in cooldown, it sets a one-shot flag readable via
// ShouldRequestMoreNodes.
func (m *Manager) SelectNode() NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.recordDraw()
	peerID := m.slots.selectPeer(m.cfg.RNG.Uint64n)
	if peerID == NoPeer {
		return NoNode
	}

	now := m.cfg.Clock.NowSteady().UnixNano()

	var best *Node
	for _, node := range m.nodes.nodesOf(peerID) {
		if node.NextRequestTime > now {
			continue
		}
		if best == nil || node.NextRequestTime < best.NextRequestTime {
			best = node
		}
	}

	if best == nil {
		anyDue := false
		for _, node := range m.nodes.byID {
			if node.NextRequestTime <= now {
				anyDue = true
				break
			}
		}
		if !anyDue {
			m.shouldRequestMore = true
		}
		return NoNode
	}

	return best.NodeID
}

// ShouldRequestMoreNodes reads and clears the one-shot flag SelectNode sets
// when every peer's nodes were all in cooldown.
func (m *Manager) ShouldRequestMoreNodes() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.shouldRequestMore
	m.shouldRequestMore = false
	return v
}

// GetProof returns the proof named by id, wherever it currently lives.
func (m *Manager) GetProof(id chainhash.Hash) (*Proof, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if peer, ok := m.peers.getByProofID(id); ok {
		return peer.Proof, true
	}
	if entry, ok := m.orphans.get(id); ok {
		return entry.proof, true
	}
	if proof, ok := m.conflicting.get(id); ok {
		return proof, true
	}
	return nil, false
}

// Exists reports whether id names a peer, orphan, or conflicting-pool entry.
func (m *Manager) Exists(id chainhash.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.existsLocked(id)
}

// existsLocked is Exists without taking the lock, for callers that already
// hold m.mu (e.g. verifyLocked). m.mu is not reentrant, so any lock-taking
// method must never be called while the same goroutine already holds it.
func (m *Manager) existsLocked(id chainhash.Hash) bool {
	if _, ok := m.peers.getByProofID(id); ok {
		return true
	}
	if _, ok := m.orphans.get(id); ok {
		return true
	}
	if _, ok := m.conflicting.get(id); ok {
		return true
	}
	return false
}

// IsOrphan reports whether id names an orphan.
func (m *Manager) IsOrphan(id chainhash.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.orphans.has(id)
}

// IsBoundToPeer reports whether id names a live, accepted peer.
func (m *Manager) IsBoundToPeer(id chainhash.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.peers.getByProofID(id)
	return ok
}

// IsInConflictingPool reports whether id names a conflicting-pool entry.
func (m *Manager) IsInConflictingPool(id chainhash.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.conflicting.has(id)
}

// ForPeer runs f against the peer named by proofID under the read lock and
// returns its result, or false if proofID does not name a live peer. f must
// not retain the *Peer it is given, nor call back into the Manager.
func (m *Manager) ForPeer(proofID chainhash.Hash, f func(*Peer) bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	peer, ok := m.peers.getByProofID(proofID)
	if !ok {
		return false
	}
	return f(peer)
}

// ForEachPeer runs f once per live peer, in descending-score order (ties by
// ascending PeerID), under the read lock.
func (m *Manager) ForEachPeer(f func(*Peer)) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, peer := range m.peers.orderedByScore() {
		f(peer)
	}
}

// ForNode runs f against the node named by nodeID under the read lock and
// returns its result, or false if nodeID does not name a bound node.
func (m *Manager) ForNode(nodeID NodeID, f func(*Node) bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes.getByID(nodeID)
	if !ok {
		return false
	}
	return f(node)
}

// ForEachNode runs f once per node bound to peerID, under the read lock.
func (m *Manager) ForEachNode(peerID PeerID, f func(*Node)) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, node := range m.nodes.nodesOf(peerID) {
		f(node)
	}
}

// GetNodeCount returns the number of nodes currently bound to a peer.
func (m *Manager) GetNodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.nodes.byID)
}

// GetPendingNodeCount returns the number of nodes awaiting an unknown proof.
func (m *Manager) GetPendingNodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.pending.count()
}

// GetSlotCount returns the selector's total slot width: the sum of live
// peer scores plus fragmentation.
func (m *Manager) GetSlotCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.slots.totalSlotWidth()
}

// GetFragmentation returns the sum of tombstoned slot widths not yet
// reclaimed by Compact.
func (m *Manager) GetFragmentation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.slots.fragmentation
}

// Compact rebuilds the slot vector, dropping tombstones, and returns the
// number of score-width units reclaimed.
func (m *Manager) Compact() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	reclaimed, updates := m.slots.compact()
	for _, u := range updates {
		if peer, ok := m.peers.getByID(u.peerID); ok {
			peer.indexInSlotVector = u.newIndex
		}
	}

	return reclaimed
}

// AddUnbroadcastProof records proofID as one the caller should (re)announce
// to the network. This is pure bookkeeping for the RPC/adapter layer; the
// manager does not act on it beyond storing and reporting the set.
func (m *Manager) AddUnbroadcastProof(proofID chainhash.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unbroadcast[proofID] = struct{}{}
}

// UnbroadcastProofs returns every proof id recorded by AddUnbroadcastProof.
func (m *Manager) UnbroadcastProofs() []chainhash.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]chainhash.Hash, 0, len(m.unbroadcast))
	for id := range m.unbroadcast {
		ids = append(ids, id)
	}
	return ids
}

// Verify is the mandatory self-check exercising every invariant listed in
// spec.md §3. It is intended for test harness use: a broken invariant is a
// programmer error, not a domain error, and the manager never checks this
// on the hot path.
func (m *Manager) Verify() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.verifyLocked()
}

func (m *Manager) verifyLocked() error {
	// Invariant 1 & 2: slots sorted, non-overlapping, and every live
	// peer's cached index points at its own slot.
	var cursor uint64
	for i, s := range m.slots.slots {
		if s.start != cursor {
			return fmt.Errorf("avalanche: slot %d start %d != expected %d", i, s.start, cursor)
		}
		cursor += uint64(s.score)

		if s.peerID == NoPeer {
			continue
		}
		peer, ok := m.peers.getByID(s.peerID)
		if !ok {
			return fmt.Errorf("avalanche: slot %d references unknown peer %d", i, s.peerID)
		}
		if peer.indexInSlotVector != i {
			return fmt.Errorf("avalanche: peer %d index mismatch: slot %d, cached %d",
				s.peerID, i, peer.indexInSlotVector)
		}
	}
	if cursor != m.slots.totalWidth {
		return fmt.Errorf("avalanche: slot cursor %d != total width %d", cursor, m.slots.totalWidth)
	}

	// Invariant 3: live score sum + fragmentation == total width.
	var liveSum uint64
	for _, peer := range m.peers.byID {
		liveSum += uint64(peer.Proof.Score())
	}
	if liveSum+m.slots.fragmentation != m.slots.totalWidth {
		return fmt.Errorf("avalanche: live sum %d + fragmentation %d != total width %d",
			liveSum, m.slots.fragmentation, m.slots.totalWidth)
	}

	// Invariant 4: every node names a live peer, node counts match.
	counted := make(map[PeerID]int)
	for _, node := range m.nodes.byID {
		if _, ok := m.peers.getByID(node.PeerID); !ok {
			return fmt.Errorf("avalanche: node %d bound to unknown peer %d", node.NodeID, node.PeerID)
		}
		counted[node.PeerID]++
	}
	for id, peer := range m.peers.byID {
		if counted[id] != peer.NodeCount {
			return fmt.Errorf("avalanche: peer %d node_count %d != actual %d",
				id, peer.NodeCount, counted[id])
		}
	}

	// Invariant 5: a proof id lives in at most one of {peers, orphans,
	// conflicting}.
	for id := range m.peers.byProofID {
		if m.orphans.has(id) || m.conflicting.has(id) {
			return fmt.Errorf("avalanche: proof %s present in peers and another pool", id)
		}
	}
	for id := range m.orphans.byProofID {
		if m.conflicting.has(id) {
			return fmt.Errorf("avalanche: proof %s present in both orphans and conflicting", id)
		}
	}

	// Invariant 6: no two conflicting-pool entries share a UTXO.
	seenOutpoints := make(map[wire.OutPoint]chainhash.Hash)
	for op, p := range m.conflicting.byOutpoint {
		if other, ok := seenOutpoints[op]; ok && other != p.ID() {
			return fmt.Errorf("avalanche: outpoint %v claimed by two conflicting entries", op)
		}
		seenOutpoints[op] = p.ID()
	}

	// Invariant 7: pending entries name unknown proofs.
	for _, proofID := range m.pending.byNodeID {
		if m.existsLocked(proofID) {
			return fmt.Errorf("avalanche: pending entry names known proof %s", proofID)
		}
	}

	return nil
}
