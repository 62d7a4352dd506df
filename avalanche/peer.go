package avalanche

import (
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Peer is an accepted proof holding a selection slot.
type Peer struct {
	// PeerID is the peer's dense identifier.
	PeerID PeerID

	// Proof is the accepted, shared immutable proof instance.
	Proof *Proof

	// indexInSlotVector is this peer's current slot index, kept in sync
	// by every operation that mutates the slot vector.
	indexInSlotVector int

	// NodeCount is the number of nodes currently bound to this peer.
	NodeCount int

	// NextPossibleConflictTime is the earliest moment, in wall-clock
	// seconds, at which a conflicting registration may challenge this
	// peer. It only ever moves forward.
	NextPossibleConflictTime int64
}

// Node is a connected participant bound to at most one peer.
type Node struct {
	// NodeID is the externally supplied node identifier.
	NodeID NodeID

	// PeerID is the peer this node is currently bound to.
	PeerID PeerID

	// NextRequestTime is the steady-clock instant, in nanoseconds since
	// an arbitrary epoch, at which this node may next be polled. It is a
	// passive field: callers set it via UpdateNextRequestTime and it is
	// not otherwise enforced.
	NextRequestTime int64
}

// peerTable is the multi-keyed collection of live peers: a primary map by
// PeerID plus a secondary map by ProofID, kept consistent by every mutating
// call. Score- and proof-id-ordered views are computed on demand (peer
// cardinalities are expected in the thousands, per the design notes),
// rather than maintained as standing indices the way a boost::multi_index
// container would. There is no conflict-time-ordered view.
type peerTable struct {
	byID      map[PeerID]*Peer
	byProofID map[chainhash.Hash]*Peer
}

func newPeerTable() *peerTable {
	return &peerTable{
		byID:      make(map[PeerID]*Peer),
		byProofID: make(map[chainhash.Hash]*Peer),
	}
}

func (t *peerTable) insert(p *Peer) {
	t.byID[p.PeerID] = p
	t.byProofID[p.Proof.ID()] = p
}

func (t *peerTable) remove(p *Peer) {
	delete(t.byID, p.PeerID)
	delete(t.byProofID, p.Proof.ID())
}

func (t *peerTable) getByID(id PeerID) (*Peer, bool) {
	p, ok := t.byID[id]
	return p, ok
}

func (t *peerTable) getByProofID(id chainhash.Hash) (*Peer, bool) {
	p, ok := t.byProofID[id]
	return p, ok
}

// orderedByScore returns all peers sorted by descending score, breaking ties
// by PeerID for determinism.
func (t *peerTable) orderedByScore() []*Peer {
	peers := make([]*Peer, 0, len(t.byID))
	for _, p := range t.byID {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		if peers[i].Proof.Score() != peers[j].Proof.Score() {
			return peers[i].Proof.Score() > peers[j].Proof.Score()
		}
		return peers[i].PeerID < peers[j].PeerID
	})
	return peers
}

// orderedByProofID returns all peers sorted by ascending proof id, used to
// give the chain-tip rescan a deterministic, container-iteration-order-
// independent processing sequence.
func (t *peerTable) orderedByProofID() []*Peer {
	peers := make([]*Peer, 0, len(t.byID))
	for _, p := range t.byID {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		return lessHash(peers[i].Proof.ID(), peers[j].Proof.ID())
	})
	return peers
}

func lessHash(a, b chainhash.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// nodeTable is the multi-keyed collection of connected nodes: a primary map
// by NodeID plus a reverse index from PeerID to its bound nodes, so
// ForEachNode(peer) and node unbinding don't require a full scan.
type nodeTable struct {
	byID     map[NodeID]*Node
	byPeerID map[PeerID]map[NodeID]*Node
}

func newNodeTable() *nodeTable {
	return &nodeTable{
		byID:     make(map[NodeID]*Node),
		byPeerID: make(map[PeerID]map[NodeID]*Node),
	}
}

func (t *nodeTable) insert(n *Node) {
	t.byID[n.NodeID] = n

	bucket, ok := t.byPeerID[n.PeerID]
	if !ok {
		bucket = make(map[NodeID]*Node)
		t.byPeerID[n.PeerID] = bucket
	}
	bucket[n.NodeID] = n
}

func (t *nodeTable) remove(n *Node) {
	delete(t.byID, n.NodeID)
	if bucket, ok := t.byPeerID[n.PeerID]; ok {
		delete(bucket, n.NodeID)
		if len(bucket) == 0 {
			delete(t.byPeerID, n.PeerID)
		}
	}
}

func (t *nodeTable) getByID(id NodeID) (*Node, bool) {
	n, ok := t.byID[id]
	return n, ok
}

func (t *nodeTable) nodesOf(peerID PeerID) []*Node {
	bucket := t.byPeerID[peerID]
	nodes := make([]*Node, 0, len(bucket))
	for _, n := range bucket {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	return nodes
}

// pendingTable holds (NodeID, ProofID) tuples for nodes that announced a
// proof unknown to the manager.
type pendingTable struct {
	byNodeID  map[NodeID]chainhash.Hash
	byProofID map[chainhash.Hash]map[NodeID]struct{}
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		byNodeID:  make(map[NodeID]chainhash.Hash),
		byProofID: make(map[chainhash.Hash]map[NodeID]struct{}),
	}
}

func (t *pendingTable) set(nodeID NodeID, proofID chainhash.Hash) {
	t.clear(nodeID)

	t.byNodeID[nodeID] = proofID
	bucket, ok := t.byProofID[proofID]
	if !ok {
		bucket = make(map[NodeID]struct{})
		t.byProofID[proofID] = bucket
	}
	bucket[nodeID] = struct{}{}
}

func (t *pendingTable) clear(nodeID NodeID) {
	proofID, ok := t.byNodeID[nodeID]
	if !ok {
		return
	}
	delete(t.byNodeID, nodeID)
	if bucket, ok := t.byProofID[proofID]; ok {
		delete(bucket, nodeID)
		if len(bucket) == 0 {
			delete(t.byProofID, proofID)
		}
	}
}

func (t *pendingTable) get(nodeID NodeID) (chainhash.Hash, bool) {
	id, ok := t.byNodeID[nodeID]
	return id, ok
}

// takeAllFor removes and returns every node id pending on proofID.
func (t *pendingTable) takeAllFor(proofID chainhash.Hash) []NodeID {
	bucket, ok := t.byProofID[proofID]
	if !ok {
		return nil
	}

	nodeIDs := make([]NodeID, 0, len(bucket))
	for nodeID := range bucket {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })

	for _, nodeID := range nodeIDs {
		delete(t.byNodeID, nodeID)
	}
	delete(t.byProofID, proofID)

	return nodeIDs
}

func (t *pendingTable) count() int { return len(t.byNodeID) }
