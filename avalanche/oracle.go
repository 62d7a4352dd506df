package avalanche

import (
	"time"

	"github.com/btcsuite/btcd/wire"
)

// CoinStatus is what the coin oracle reports about a single outpoint.
type CoinStatus struct {
	Amount     int64
	Height     int32
	IsCoinbase bool
}

// CoinLookup is the read-only view of the active chain's UTXO set the
// manager consults during registration and chain-tip rescans. It is the
// "coin_view.lookup" oracle named in the package's design: the caller is
// responsible for positioning it at a consistent chain tip and holding
// whatever lock guards that view for the duration of the call.
type CoinLookup interface {
	// LookupCoin returns the committed status of outpoint, and false if
	// the outpoint is unspent-and-unknown to the active chain.
	LookupCoin(outpoint wire.OutPoint) (CoinStatus, bool)
}

// ProofVerifier performs cryptographic and structural validation of a proof
// against a coin view. This package never implements proof cryptography; it
// only consumes the verdict.
type ProofVerifier interface {
	Verify(proof *Proof, coins CoinLookup) error
}

// Clock supplies the two time sources the manager needs: a monotonic clock
// for cooldown bookkeeping and a wall-clock second counter for peer
// bookkeeping fields defined in wall-clock seconds. Both are mockable so
// tests can advance time deterministically.
type Clock interface {
	NowSteady() time.Time
	NowSeconds() int64
}

// RNG draws a uniform random value in [0, n). It backs weighted peer
// selection; the draw is stateless from the manager's perspective.
type RNG interface {
	Uint64n(n uint64) uint64
}

// systemClock is the default Clock backed by the real wall clock.
type systemClock struct{}

func (systemClock) NowSteady() time.Time { return time.Now() }
func (systemClock) NowSeconds() int64    { return time.Now().Unix() }

// SystemClock returns the default Clock implementation, backed by the
// process's real time source.
func SystemClock() Clock { return systemClock{} }
