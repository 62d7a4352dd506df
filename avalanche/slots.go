package avalanche

import "sort"

// slot is a half-open score interval [start, start+score) owned by one peer,
// or tombstoned (peerID == NoPeer) once that peer is removed.
type slot struct {
	start  uint64
	score  uint32
	peerID PeerID
}

// stop returns the exclusive end of the slot's window.
func (s slot) stop() uint64 { return s.start + uint64(s.score) }

// contains reports whether the draw v falls within this slot's window.
func (s slot) contains(v uint64) bool { return v >= s.start && v < s.stop() }

// selectPeerImpl binary-searches slots (assumed sorted by start, with
// non-overlapping windows) for the slot containing draw s out of total. It
// returns NoPeer on undershoot, overshoot, or a tombstoned hit.
//
// Ported from the boundary and randomized cases exercised against
// Bitcoin ABC's selectPeerImpl in avalanche/test/peermanager_tests.cpp.
func selectPeerImpl(slots []slot, s uint64, total uint64) PeerID {
	if len(slots) == 0 || s >= total {
		return NoPeer
	}

	// Binary search for the last slot whose start is <= s.
	i := sort.Search(len(slots), func(i int) bool {
		return slots[i].start > s
	}) - 1

	if i < 0 || !slots[i].contains(s) {
		return NoPeer
	}

	return slots[i].peerID
}

// slotVector is the flat array of slots plus the running total width used
// for weighted peer selection. It is not safe for concurrent use; callers
// (the Manager) serialize access.
type slotVector struct {
	slots         []slot
	totalWidth    uint64
	fragmentation uint64
}

// addPeer appends a new slot for peerID with the given score, returning the
// slot's index for the caller to remember on the corresponding Peer record.
func (sv *slotVector) addPeer(peerID PeerID, score uint32) int {
	idx := len(sv.slots)
	sv.slots = append(sv.slots, slot{
		start:  sv.totalWidth,
		score:  score,
		peerID: peerID,
	})
	sv.totalWidth += uint64(score)
	return idx
}

// removePeer tombstones the slot at idx. If it is the trailing slot, the
// vector shrinks immediately and total width drops by the slot's score;
// otherwise the gap is left in place and its width is added to
// fragmentation. The index of every other live peer is unaffected, which is
// the entire point of tombstoning instead of shifting.
func (sv *slotVector) removePeer(idx int) {
	s := sv.slots[idx]
	if s.peerID == NoPeer {
		return
	}

	sv.slots[idx].peerID = NoPeer

	if idx == len(sv.slots)-1 {
		sv.slots = sv.slots[:idx]
		sv.totalWidth -= uint64(s.score)
		return
	}

	sv.fragmentation += uint64(s.score)
}

// slotReindex records that a live peer's slot moved to a new index during
// compaction, so the Manager can update the peer's cached index.
type slotReindex struct {
	peerID   PeerID
	newIndex int
}

// compact rebuilds the slot vector dropping every tombstone, recomputing
// cumulative starts from zero, and returns both the score width reclaimed
// (the prior fragmentation) and the new index of every surviving peer's slot.
func (sv *slotVector) compact() (uint64, []slotReindex) {
	reclaimed := sv.fragmentation

	fresh := make([]slot, 0, len(sv.slots))
	updates := make([]slotReindex, 0, len(sv.slots))

	var cursor uint64
	for _, s := range sv.slots {
		if s.peerID == NoPeer {
			continue
		}

		newIdx := len(fresh)
		fresh = append(fresh, slot{
			start:  cursor,
			score:  s.score,
			peerID: s.peerID,
		})
		updates = append(updates, slotReindex{
			peerID:   s.peerID,
			newIndex: newIdx,
		})
		cursor += uint64(s.score)
	}

	sv.slots = fresh
	sv.totalWidth = cursor
	sv.fragmentation = 0

	return reclaimed, updates
}

// selectPeer draws a peer weighted by score using the supplied uniform
// [0, total) generator. It returns NoPeer if there are no live peers or the
// draw lands in a tombstoned gap.
func (sv *slotVector) selectPeer(draw func(n uint64) uint64) PeerID {
	if sv.totalWidth == 0 {
		return NoPeer
	}

	s := draw(sv.totalWidth)
	return selectPeerImpl(sv.slots, s, sv.totalWidth)
}

// entryCount returns the number of slot entries currently in the vector,
// including tombstones not yet compacted away. This is an internal
// bookkeeping helper used by the package's tests; the externally-visible
// "slot count" is the total slot width (see totalSlotWidth).
func (sv *slotVector) entryCount() int { return len(sv.slots) }

// totalSlotWidth returns the sum of live and tombstoned slot widths, i.e.
// live-peer score sum plus fragmentation. This is what Manager.GetSlotCount
// exposes.
func (sv *slotVector) totalSlotWidth() uint64 { return sv.totalWidth }

// scoreAt returns the score of the slot at idx, live or tombstoned.
func (sv *slotVector) scoreAt(idx int) uint32 { return sv.slots[idx].score }
