package avalanche

import "bytes"

// betterProof implements the conflicting-proof comparator: given two proofs
// known to share at least one stake outpoint, it returns true iff a is
// strictly preferred to b.
//
// The order is lexicographic and stops at the first difference:
//
//  1. Higher sequence wins, but only when both proofs carry the same master
//     public key. With different masters the sequence is adversary
//     controlled and is ignored entirely.
//  2. Higher staked amount wins.
//  3. Lower stake count wins (fewer UTXOs means less chain-reorg surface).
//  4. Smaller proof id wins, byte-wise, as a deterministic tie-break.
//
// betterProof is total, antisymmetric and transitive: for any a != b it
// returns opposite results for betterProof(a, b) and betterProof(b, a), and
// for a, b, c it never cycles.
func betterProof(a, b *Proof) bool {
	if a.id == b.id {
		return false
	}

	if sameMaster(a, b) && a.sequence != b.sequence {
		return a.sequence > b.sequence
	}

	if aAmt, bAmt := a.StakedAmount(), b.StakedAmount(); aAmt != bAmt {
		return aAmt > bAmt
	}

	if len(a.stakes) != len(b.stakes) {
		return len(a.stakes) < len(b.stakes)
	}

	return bytes.Compare(a.id[:], b.id[:]) < 0
}
