package avalanche

// PeerID is the dense, monotonically-assigned small integer identifying an
// accepted proof (a "peer" in avalanche polling terms).
type PeerID uint32

// NoPeer is the sentinel PeerID meaning "no peer", returned by selection and
// lookup calls that find nothing.
const NoPeer PeerID = 0

// NodeID is the externally supplied identifier of a connected network
// participant.
type NodeID int64

// NoNode is the sentinel NodeID meaning "no node".
const NoNode NodeID = -1
