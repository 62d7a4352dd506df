package avalanche

import (
	"bytes"
	"errors"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrEmptyStakes is returned when a proof is built with no stakes.
var ErrEmptyStakes = errors.New("avalanche: proof must commit at least one stake")

// ErrDuplicateStake is returned when a proof commits the same outpoint more
// than once.
var ErrDuplicateStake = errors.New("avalanche: proof commits a duplicate stake")

// ErrUnsortedStakes is returned when a proof's stakes are not strictly
// ordered by outpoint, as required by the wire format this package assumes
// its caller has already validated.
var ErrUnsortedStakes = errors.New("avalanche: proof stakes are not strictly ordered")

// Stake is a single UTXO committed by a proof.
type Stake struct {
	// Outpoint identifies the committed UTXO.
	Outpoint wire.OutPoint

	// Amount is the value of the committed UTXO.
	Amount btcutil.Amount

	// Height is the height at which the stake claims the UTXO was
	// confirmed.
	Height int32

	// IsCoinbase indicates the stake claims the UTXO originated from a
	// coinbase transaction, which affects the maturity check performed
	// by the caller's coin oracle.
	IsCoinbase bool

	// PubKey is the per-stake signing key committed by the proof.
	PubKey *btcec.PublicKey
}

func compareOutpoints(a, b wire.OutPoint) int {
	if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
		return c
	}
	switch {
	case a.Index < b.Index:
		return -1
	case a.Index > b.Index:
		return 1
	default:
		return 0
	}
}

// Proof is an immutable commitment binding a master key to a non-empty set
// of UTXOs (stakes), granting participation in avalanche polling. Proofs are
// value types shared by reference between the manager's pools; nothing
// mutates a Proof after construction.
type Proof struct {
	id        chainhash.Hash
	limitedID chainhash.Hash
	master    *btcec.PublicKey
	sequence  uint64
	expiration int64
	score     uint32
	stakes    []Stake
}

// NewProof constructs a Proof from its already-verified fields. The caller
// (the external proof verifier named in the package's oracle interfaces) is
// responsible for cryptographic and structural validation; NewProof only
// enforces the structural invariants the manager itself depends on: a
// non-empty, duplicate-free, outpoint-ordered stake list.
func NewProof(id, limitedID chainhash.Hash, master *btcec.PublicKey,
	sequence uint64, expiration int64, score uint32,
	stakes []Stake) (*Proof, error) {

	if len(stakes) == 0 {
		return nil, ErrEmptyStakes
	}

	for i := 1; i < len(stakes); i++ {
		c := compareOutpoints(stakes[i-1].Outpoint, stakes[i].Outpoint)
		switch {
		case c == 0:
			return nil, ErrDuplicateStake
		case c > 0:
			return nil, ErrUnsortedStakes
		}
	}

	cp := make([]Stake, len(stakes))
	copy(cp, stakes)

	return &Proof{
		id:         id,
		limitedID:  limitedID,
		master:     master,
		sequence:   sequence,
		expiration: expiration,
		score:      score,
		stakes:     cp,
	}, nil
}

// ID returns the proof's full-content hash.
func (p *Proof) ID() chainhash.Hash { return p.id }

// LimitedID returns the proof's hash excluding the master key.
func (p *Proof) LimitedID() chainhash.Hash { return p.limitedID }

// Master returns the proof's master public key.
func (p *Proof) Master() *btcec.PublicKey { return p.master }

// Sequence returns the proof's sequence number.
func (p *Proof) Sequence() uint64 { return p.sequence }

// Expiration returns the proof's expiration time, in wall-clock seconds.
func (p *Proof) Expiration() int64 { return p.expiration }

// Score returns the proof's score, derived from staked amounts by the
// caller's proof-construction pipeline. This package treats it as opaque.
func (p *Proof) Score() uint32 { return p.score }

// Stakes returns an immutable, outpoint-ordered view of the proof's
// committed UTXOs. Callers must not mutate the returned slice.
func (p *Proof) Stakes() []Stake { return p.stakes }

// StakedAmount returns the sum of all stakes' amounts.
func (p *Proof) StakedAmount() btcutil.Amount {
	var total btcutil.Amount
	for _, s := range p.stakes {
		total += s.Amount
	}
	return total
}

// sameMaster reports whether two proofs share the same master public key.
// A nil master never matches, including against another nil master, since a
// masterless proof cannot be attributed to any single operator.
func sameMaster(a, b *Proof) bool {
	if a.master == nil || b.master == nil {
		return false
	}
	return a.master.IsEqual(b.master)
}

// conflictsWith reports whether two proofs commit at least one shared
// outpoint, and returns the shared outpoints.
func conflictsWith(a, b *Proof) []wire.OutPoint {
	bSet := make(map[wire.OutPoint]struct{}, len(b.stakes))
	for _, s := range b.stakes {
		bSet[s.Outpoint] = struct{}{}
	}

	var shared []wire.OutPoint
	for _, s := range a.stakes {
		if _, ok := bSet[s.Outpoint]; ok {
			shared = append(shared, s.Outpoint)
		}
	}

	sort.Slice(shared, func(i, j int) bool {
		return compareOutpoints(shared[i], shared[j]) < 0
	})

	return shared
}
