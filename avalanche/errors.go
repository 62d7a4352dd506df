package avalanche

// RegisterMode controls how RegisterProof resolves UTXO collisions with
// existing peers.
type RegisterMode int

const (
	// ModeDefault applies the cooldown gate and the comparator before
	// displacing any colliding peer.
	ModeDefault RegisterMode = iota

	// ModeForceAccept skips the cooldown and unconditionally accepts the
	// new proof, demoting every colliding peer regardless of the
	// comparator's verdict.
	ModeForceAccept
)

// RejectMode controls whether a rejected proof leaves a negative-cache
// tombstone behind.
type RejectMode int

const (
	// RejectDefault removes the proof without retaining a tombstone.
	RejectDefault RejectMode = iota

	// RejectInvalidate removes the proof and, for conflicting-pool
	// entries, retains a tombstone so a later re-registration attempt is
	// rejected outright. Orphans behave identically under both modes;
	// see RejectProof's doc comment.
	RejectInvalidate
)

// RegisterReason enumerates every outcome RegisterProof can report.
type RegisterReason int

const (
	// ReasonNone is the zero value, used only for successful
	// registrations where no failure reason applies.
	ReasonNone RegisterReason = iota

	// ReasonAlreadyRegistered means the proof id is already a peer,
	// orphan, or conflicting-pool entry.
	ReasonAlreadyRegistered

	// ReasonInvalid means the external verifier rejected the proof.
	ReasonInvalid

	// ReasonMissingUTXO means at least one stake's outpoint is absent
	// from the active chain; the proof is retained as an orphan.
	ReasonMissingUTXO

	// ReasonHeightMismatch means a stake's claimed height does not match
	// the chain's committed height for that outpoint; the proof is
	// retained as an orphan.
	ReasonHeightMismatch

	// ReasonCooldownNotElapsed means a colliding peer's conflict cooldown
	// has not yet elapsed; the proof is not stored anywhere.
	ReasonCooldownNotElapsed

	// ReasonConflicting means the proof lost to a colliding peer and was
	// placed in the conflicting pool, possibly displacing weaker
	// conflicting entries.
	ReasonConflicting

	// ReasonRejected means the proof lost every comparison it needed to
	// win and was not stored anywhere.
	ReasonRejected
)

// String implements fmt.Stringer.
func (r RegisterReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonAlreadyRegistered:
		return "already-registered"
	case ReasonInvalid:
		return "invalid"
	case ReasonMissingUTXO:
		return "missing-utxo"
	case ReasonHeightMismatch:
		return "height-mismatch"
	case ReasonCooldownNotElapsed:
		return "cooldown-not-elapsed"
	case ReasonConflicting:
		return "conflicting"
	case ReasonRejected:
		return "rejected"
	default:
		return "unknown"
	}
}
