package avalanche

import "time"

// DefaultConflictingProofCooldown is the default minimum gap between
// successive conflicting-proof challenges against the same peer, matching
// the chain's avalancheconflictingproofcooldown default.
const DefaultConflictingProofCooldown = 2 * time.Hour

// DefaultMaxOrphanProofs bounds the orphan pool.
const DefaultMaxOrphanProofs = 1000

// DefaultMaxConflictingProofs bounds the conflicting pool.
const DefaultMaxConflictingProofs = 1000

// Config bundles the Manager's dependencies and tunables. It is the
// programmatic counterpart of the avalancheconflictingproofcooldown and
// enableavalancheproofreplacement options in the RPC-facing config package.
type Config struct {
	// CoinLookup resolves stake outpoints against the active chain.
	CoinLookup CoinLookup

	// Verifier performs cryptographic/structural proof validation.
	Verifier ProofVerifier

	// Clock supplies wall and steady time. Defaults to SystemClock.
	Clock Clock

	// RNG backs weighted peer selection. Defaults to NewMathRNG.
	RNG RNG

	// ConflictingProofCooldown is the minimum wall-clock gap enforced
	// before a peer may be challenged by a conflicting registration. A
	// value of 0 disables the cooldown; this is the test-fixture
	// behavior the chain's "-avalancheconflictingproofcooldown=0" flag
	// selects.
	ConflictingProofCooldown time.Duration

	// EnableProofReplacement gates whether the conflicting pool ever
	// promotes an entry back to peer status. When false, the pool is
	// write-only: entries still accumulate (so they remain available if
	// the flag is later flipped at runtime) but RejectProof and
	// UpdatedBlockTip never promote out of it.
	EnableProofReplacement bool

	// MaxOrphanProofs bounds the orphan pool. Zero (the Config zero value)
	// means unbounded; this is left alone by setDefaults, not rewritten to
	// DefaultMaxOrphanProofs. A caller that wants the recommended 1000-entry
	// bound must set this field explicitly, as config.DefaultConfig() does.
	MaxOrphanProofs int

	// MaxConflictingProofs bounds the conflicting pool. Zero (the Config
	// zero value) means unbounded, for the same reason as MaxOrphanProofs.
	MaxConflictingProofs int
}

// setDefaults fills in any unset fields with the package defaults. It never
// touches MaxOrphanProofs or MaxConflictingProofs: their zero value is a
// meaningful "unbounded" setting that the orphan and conflicting pools honor
// directly, not an unset placeholder to overwrite.
func (c *Config) setDefaults() {
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	if c.RNG == nil {
		c.RNG = NewMathRNG()
	}
}
