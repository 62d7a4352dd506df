// Package avalanche implements the peer manager for Avalanche pre-consensus
// polling: the sybil-resistance gate that decides which proofs of stake are
// accepted, which conflict, which are dormant awaiting chain data, and how
// connected nodes are bound to accepted proofs for weighted random polling.
//
// The package does not implement proof cryptography, the polling protocol
// itself, or any network transport. It consumes a coin-lookup oracle and a
// proof verifier supplied by the caller and exposes a single-writer,
// many-reader Manager guarded by one lock per public call.
package avalanche
