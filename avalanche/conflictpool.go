package avalanche

import (
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// conflictPool is the bounded container of rejected-but-viable proofs: per
// spec invariant 6, no two entries in the pool share any UTXO, with the
// comparator deciding which proof holds a contested outpoint.
//
// A proof may occupy several outpoints at once (one per stake); all of them
// point back at the same *Proof. When a challenger beats every incumbent it
// collides with, the incumbents are evicted as whole proofs, not partially.
type conflictPool struct {
	byOutpoint map[wire.OutPoint]*Proof
	byProofID  map[chainhash.Hash]*Proof

	// tombstones holds proof ids rejected with RejectInvalidate, so a
	// later re-registration attempt is refused outright instead of being
	// re-evaluated.
	tombstones map[chainhash.Hash]struct{}

	maxEntries int
}

func newConflictPool(maxEntries int) *conflictPool {
	return &conflictPool{
		byOutpoint: make(map[wire.OutPoint]*Proof),
		byProofID:  make(map[chainhash.Hash]*Proof),
		tombstones: make(map[chainhash.Hash]struct{}),
		maxEntries: maxEntries,
	}
}

func (c *conflictPool) has(id chainhash.Hash) bool {
	_, ok := c.byProofID[id]
	return ok
}

func (c *conflictPool) tombstoned(id chainhash.Hash) bool {
	_, ok := c.tombstones[id]
	return ok
}

func (c *conflictPool) get(id chainhash.Hash) (*Proof, bool) {
	p, ok := c.byProofID[id]
	return p, ok
}

// occupants returns the set of distinct proofs currently occupying any of
// candidate's stake outpoints.
func (c *conflictPool) occupants(candidate *Proof) []*Proof {
	seen := make(map[chainhash.Hash]*Proof)
	for _, s := range candidate.stakes {
		if occ, ok := c.byOutpoint[s.Outpoint]; ok {
			seen[occ.ID()] = occ
		}
	}

	occs := make([]*Proof, 0, len(seen))
	for _, p := range seen {
		occs = append(occs, p)
	}
	sort.Slice(occs, func(i, j int) bool { return lessHash(occs[i].ID(), occs[j].ID()) })

	return occs
}

func (c *conflictPool) insertUnconditional(p *Proof) {
	for _, s := range p.stakes {
		c.byOutpoint[s.Outpoint] = p
	}
	c.byProofID[p.ID()] = p
}

func (c *conflictPool) evict(p *Proof) {
	for _, s := range p.stakes {
		if occ, ok := c.byOutpoint[s.Outpoint]; ok && occ.ID() == p.ID() {
			delete(c.byOutpoint, s.Outpoint)
		}
	}
	delete(c.byProofID, p.ID())
}

// tryInsert attempts to place candidate in the pool. If candidate collides
// with existing occupants, it must strictly beat every one of them; they
// are then evicted in full and returned. If candidate loses to any
// occupant, nothing changes and ok is false.
func (c *conflictPool) tryInsert(candidate *Proof) (ok bool, evicted []*Proof) {
	occs := c.occupants(candidate)

	for _, occ := range occs {
		if !betterProof(candidate, occ) {
			return false, nil
		}
	}

	for _, occ := range occs {
		c.evict(occ)
	}

	c.insertUnconditional(candidate)
	c.enforceCapacity()

	return true, occs
}

// enforceCapacity evicts the globally lowest-scored entry until the pool is
// back within its configured bound. The conflicting pool has no single
// comparator across unrelated UTXOs, so capacity eviction falls back to raw
// score rather than betterProof.
func (c *conflictPool) enforceCapacity() {
	if c.maxEntries <= 0 {
		return
	}

	for len(c.byProofID) > c.maxEntries {
		var worst *Proof
		for _, p := range c.byProofID {
			if worst == nil || p.Score() < worst.Score() ||
				(p.Score() == worst.Score() && lessHash(p.ID(), worst.ID())) {
				worst = p
			}
		}
		if worst == nil {
			return
		}
		c.evict(worst)
	}
}

func (c *conflictPool) remove(id chainhash.Hash, invalidate bool) (*Proof, bool) {
	p, ok := c.byProofID[id]
	if !ok {
		return nil, false
	}

	c.evict(p)
	if invalidate {
		c.tombstones[id] = struct{}{}
	}

	return p, true
}

func (c *conflictPool) count() int { return len(c.byProofID) }

// orderedByProofID returns every entry sorted by ascending proof id, for
// deterministic chain-tip rescans.
func (c *conflictPool) orderedByProofID() []*Proof {
	proofs := make([]*Proof, 0, len(c.byProofID))
	for _, p := range c.byProofID {
		proofs = append(proofs, p)
	}
	sort.Slice(proofs, func(i, j int) bool { return lessHash(proofs[i].ID(), proofs[j].ID()) })
	return proofs
}
