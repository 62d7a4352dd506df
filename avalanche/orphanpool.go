package avalanche

import (
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// orphanEntry pairs an orphaned proof with the reason it could not be
// accepted, so a later re-evaluation (or a caller inspecting the pool) knows
// whether it is waiting on a missing UTXO or a height mismatch.
type orphanEntry struct {
	proof  *Proof
	reason RegisterReason
}

// orphanPool is the bounded container of structurally-valid proofs waiting
// on chain data: either a missing UTXO or a height mismatch, re-examined on
// every chain-tip notification.
type orphanPool struct {
	byProofID  map[chainhash.Hash]orphanEntry
	maxEntries int
}

func newOrphanPool(maxEntries int) *orphanPool {
	return &orphanPool{
		byProofID:  make(map[chainhash.Hash]orphanEntry),
		maxEntries: maxEntries,
	}
}

func (o *orphanPool) has(id chainhash.Hash) bool {
	_, ok := o.byProofID[id]
	return ok
}

func (o *orphanPool) get(id chainhash.Hash) (orphanEntry, bool) {
	e, ok := o.byProofID[id]
	return e, ok
}

func (o *orphanPool) insert(p *Proof, reason RegisterReason) {
	o.byProofID[p.ID()] = orphanEntry{proof: p, reason: reason}
	o.enforceCapacity()
}

func (o *orphanPool) remove(id chainhash.Hash) (*Proof, bool) {
	e, ok := o.byProofID[id]
	if !ok {
		return nil, false
	}
	delete(o.byProofID, id)
	return e.proof, true
}

// enforceCapacity drops the lowest-scored orphan once the pool exceeds its
// configured bound; orphans carry no relative ordering of their own (they
// don't conflict with one another by definition), so score is the only
// available tie-break.
func (o *orphanPool) enforceCapacity() {
	if o.maxEntries <= 0 {
		return
	}

	for len(o.byProofID) > o.maxEntries {
		var worstID chainhash.Hash
		var worst *Proof
		for id, e := range o.byProofID {
			if worst == nil || e.proof.Score() < worst.Score() ||
				(e.proof.Score() == worst.Score() && lessHash(id, worstID)) {
				worst = e.proof
				worstID = id
			}
		}
		if worst == nil {
			return
		}
		delete(o.byProofID, worstID)
	}
}

func (o *orphanPool) count() int { return len(o.byProofID) }

// orderedByProofID returns every orphan sorted by ascending proof id, for
// deterministic chain-tip rescans.
func (o *orphanPool) orderedByProofID() []orphanEntry {
	entries := make([]orphanEntry, 0, len(o.byProofID))
	for _, e := range o.byProofID {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return lessHash(entries[i].proof.ID(), entries[j].proof.ID())
	})
	return entries
}
