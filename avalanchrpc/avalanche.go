// Package avalanchrpc adapts avalanche.Manager onto a JSON-serialisable
// call surface, mirroring the getavalancheinfo/getavalanchepeerinfo/
// addavalanchenode/getrawavalancheproof handlers of an eCash-derivative full
// node's RPC layer, in the subserver-façade shape lnrpc uses over its own
// subsystems.
package avalanchrpc

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ecash-avalanche/peermgr/avalanche"
)

// Server is the RPC façade over a single avalanche.Manager. It never holds
// state of its own beyond the manager reference: all locking, pool
// bookkeeping and invariants live in avalanche.Manager.
type Server struct {
	mgr *avalanche.Manager
}

// New constructs a Server wrapping mgr.
func New(mgr *avalanche.Manager) *Server {
	return &Server{mgr: mgr}
}

// LocalInfo describes the node's own proof, mirroring getavalancheinfo's
// "local" object.
type LocalInfo struct {
	Live          bool   `json:"live"`
	ProofID       string `json:"proofid"`
	LimitedProofID string `json:"limited_proofid"`
	StakeAmount   int64  `json:"stake_amount"`
}

// NetworkInfo summarizes the whole peer/node population, mirroring
// getavalancheinfo's "network" object.
type NetworkInfo struct {
	ProofCount          int    `json:"proof_count"`
	ConnectedProofCount int    `json:"connected_proof_count"`
	TotalStakeAmount    int64  `json:"total_stake_amount"`
	ConnectedStakeAmount int64 `json:"connected_stake_amount"`
	NodeCount           int    `json:"node_count"`
	ConnectedNodeCount  int    `json:"connected_node_count"`
	PendingNodeCount    int    `json:"pending_node_count"`
}

// Info is the full getavalancheinfo response.
type Info struct {
	Local   *LocalInfo  `json:"local,omitempty"`
	Network NetworkInfo `json:"network"`
}

// GetAvalancheInfo mirrors getavalancheinfo. localProofID is optional; pass
// the zero hash to omit the "local" section, matching the original's
// behavior when the node has not built a local proof.
func (s *Server) GetAvalancheInfo(localProofID chainhash.Hash) Info {
	info := Info{
		Network: NetworkInfo{
			NodeCount:        s.mgr.GetNodeCount() + s.mgr.GetPendingNodeCount(),
			ConnectedNodeCount: s.mgr.GetNodeCount(),
			PendingNodeCount: s.mgr.GetPendingNodeCount(),
		},
	}

	s.mgr.ForEachPeer(func(peer *avalanche.Peer) {
		amount := int64(peer.Proof.StakedAmount())
		info.Network.ProofCount++
		info.Network.TotalStakeAmount += amount
		if peer.NodeCount > 0 {
			info.Network.ConnectedProofCount++
			info.Network.ConnectedStakeAmount += amount
		}
	})

	if localProofID != (chainhash.Hash{}) {
		if proof, ok := s.mgr.GetProof(localProofID); ok {
			info.Local = &LocalInfo{
				Live:           s.mgr.IsBoundToPeer(localProofID),
				ProofID:        proof.ID().String(),
				LimitedProofID: proof.LimitedID().String(),
				StakeAmount:    int64(proof.StakedAmount()),
			}
		}
	}

	return info
}

// NodeInfo describes one node bound to a peer, mirroring
// getavalanchepeerinfo's per-peer "nodes" array entries.
type NodeInfo struct {
	NodeID int64 `json:"nodeid"`
}

// PeerInfo describes one accepted peer, mirroring getavalanchepeerinfo's
// per-peer object.
type PeerInfo struct {
	PeerID      uint32     `json:"peerid"`
	ProofID     string     `json:"proofid"`
	StakeAmount int64      `json:"stake_amount"`
	NodeCount   int        `json:"nodecount"`
	Nodes       []NodeInfo `json:"nodes"`
}

// GetAvalanchePeerInfo mirrors getavalanchepeerinfo with no filter argument:
// every live peer, in descending-score order.
func (s *Server) GetAvalanchePeerInfo() []PeerInfo {
	var out []PeerInfo
	s.mgr.ForEachPeer(func(peer *avalanche.Peer) {
		out = append(out, PeerInfo{
			PeerID:      uint32(peer.PeerID),
			ProofID:     peer.Proof.ID().String(),
			StakeAmount: int64(peer.Proof.StakedAmount()),
			NodeCount:   peer.NodeCount,
		})
	})
	for i := range out {
		s.mgr.ForEachNode(avalanche.PeerID(out[i].PeerID), func(n *avalanche.Node) {
			out[i].Nodes = append(out[i].Nodes, NodeInfo{NodeID: int64(n.NodeID)})
		})
	}
	return out
}

// GetAvalanchePeerInfoFor mirrors getavalanchepeerinfo called with a single
// proofid filter argument.
func (s *Server) GetAvalanchePeerInfoFor(proofID chainhash.Hash) (PeerInfo, bool) {
	var info PeerInfo
	var found bool

	found = s.mgr.ForPeer(proofID, func(peer *avalanche.Peer) bool {
		info = PeerInfo{
			PeerID:      uint32(peer.PeerID),
			ProofID:     peer.Proof.ID().String(),
			StakeAmount: int64(peer.Proof.StakedAmount()),
			NodeCount:   peer.NodeCount,
		}
		return true
	})
	if found {
		s.mgr.ForEachNode(avalanche.PeerID(info.PeerID), func(n *avalanche.Node) {
			info.Nodes = append(info.Nodes, NodeInfo{NodeID: int64(n.NodeID)})
		})
	}

	return info, found
}

// AddAvalancheNode mirrors addavalanchenode: bind a connected node to the
// peer for proofID. It reports the same false-on-unknown-proof behavior as
// avalanche.Manager.AddNode; the caller decides whether that's fatal.
func (s *Server) AddAvalancheNode(nodeID int64, proofID chainhash.Hash) bool {
	ok := s.mgr.AddNode(avalanche.NodeID(nodeID), proofID)
	if ok {
		s.mgr.AddUnbroadcastProof(proofID)
	}
	return ok
}

// RawProofInfo mirrors getrawavalancheproof's response shape.
type RawProofInfo struct {
	ProofID      string `json:"proofid"`
	Orphan       bool   `json:"orphan"`
	IsBoundToPeer bool  `json:"isBoundToPeer"`
}

// GetRawAvalancheProof mirrors getrawavalancheproof, reporting a proof's
// pool membership by id.
func (s *Server) GetRawAvalancheProof(proofID chainhash.Hash) (RawProofInfo, error) {
	if !s.mgr.Exists(proofID) {
		return RawProofInfo{}, fmt.Errorf("avalanchrpc: proof not found: %s", proofID)
	}

	return RawProofInfo{
		ProofID:       proofID.String(),
		Orphan:        s.mgr.IsOrphan(proofID),
		IsBoundToPeer: s.mgr.IsBoundToPeer(proofID),
	}, nil
}

// ParseProofID decodes a hex-encoded, byte-reversed proof id the way the
// original RPC layer's ParseHashV accepts "proofid" string arguments.
func ParseProofID(hexStr string) (chainhash.Hash, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("avalanchrpc: invalid proofid: %w", err)
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	h, err := chainhash.NewHash(b)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("avalanchrpc: invalid proofid: %w", err)
	}
	return *h, nil
}
