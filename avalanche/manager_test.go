package avalanche

import (
	"math"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWeightedSelectionTwoPeers is scenario S1: two peers at scores 100 and
// 200 should be drawn in roughly a 1:2 ratio over many draws.
func TestWeightedSelectionTwoPeers(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{})

	op0 := newTestOutpoint(t, 0)
	op1 := newTestOutpoint(t, 1)
	coins.add(op0, 100)
	coins.add(op1, 100)

	p0 := newTestProof(t, testProofOpts{seed: 0, score: 100, outpoints: []wire.OutPoint{op0}})
	p1 := newTestProof(t, testProofOpts{seed: 1, score: 200, outpoints: []wire.OutPoint{op1}})

	ok, reason := m.RegisterProof(p0, ModeDefault)
	require.True(t, ok, reason)
	ok, reason = m.RegisterProof(p1, ModeDefault)
	require.True(t, ok, reason)

	const draws = 10_000
	counts := map[PeerID]int{}
	for i := 0; i < draws; i++ {
		counts[m.SelectPeer()]++
	}

	peer0, ok := m.peers.getByProofID(p0.ID())
	require.True(t, ok)
	peer1, ok := m.peers.getByProofID(p1.ID())
	require.True(t, ok)

	assert.InDelta(t, 3333, counts[peer0.PeerID], 500)
	assert.InDelta(t, 6666, counts[peer1.PeerID], 500)
	assert.Zero(t, counts[NoPeer])

	require.NoError(t, m.Verify())
}

// TestRemoveAndCompact is scenario S2: four equal-score peers, one removed,
// slot count and fragmentation track the spec's literal numbers, and
// Compact() reclaims the gap.
func TestRemoveAndCompact(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{})

	var peerIDs []PeerID
	for i := byte(0); i < 4; i++ {
		op := newTestOutpoint(t, i)
		coins.add(op, 100)
		p := newTestProof(t, testProofOpts{seed: i, score: 100, outpoints: []wire.OutPoint{op}})
		ok, reason := m.RegisterProof(p, ModeDefault)
		require.True(t, ok, reason)
		peer, ok := m.peers.getByProofID(p.ID())
		require.True(t, ok)
		peerIDs = append(peerIDs, peer.PeerID)
	}

	require.Equal(t, uint64(400), m.GetSlotCount())

	removedID := peerIDs[2]
	require.True(t, m.RemovePeer(removedID))

	assert.Equal(t, uint64(400), m.GetSlotCount())
	assert.Equal(t, uint64(100), m.GetFragmentation())

	for i := 0; i < 1000; i++ {
		assert.NotEqual(t, removedID, m.SelectPeer())
	}

	reclaimed := m.Compact()
	assert.Equal(t, uint64(100), reclaimed)
	assert.Equal(t, uint64(300), m.GetSlotCount())
	assert.Equal(t, uint64(0), m.GetFragmentation())

	for i := 0; i < 1000; i++ {
		assert.NotEqual(t, NoPeer, m.SelectPeer())
	}

	require.NoError(t, m.Verify())
}

// TestOrphanPromotionOnTipUpdate is scenario S3: a proof staking one present
// and one absent UTXO is orphaned, then promoted to peer once the missing
// UTXO appears and the chain tip is re-evaluated.
func TestOrphanPromotionOnTipUpdate(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{})

	u1 := newTestOutpoint(t, 1)
	u2 := newTestOutpoint(t, 2)
	coins.add(u1, 100)

	p := newTestProof(t, testProofOpts{seed: 0, outpoints: []wire.OutPoint{u1, u2}})

	ok, reason := m.RegisterProof(p, ModeDefault)
	assert.False(t, ok)
	assert.Equal(t, ReasonMissingUTXO, reason)
	assert.True(t, m.IsOrphan(p.ID()))
	assert.False(t, m.IsBoundToPeer(p.ID()))

	coins.add(u2, 100)
	m.UpdatedBlockTip()

	assert.False(t, m.IsOrphan(p.ID()))
	assert.True(t, m.IsBoundToPeer(p.ID()))

	require.NoError(t, m.Verify())
}

// TestConflictingPoolReplacementBySequence is scenario S4: same-master
// proofs at increasing sequence numbers displace each other through the
// conflicting pool, and FORCE_ACCEPT unconditionally displaces regardless of
// the comparator.
func TestConflictingPoolReplacementBySequence(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{})

	master := newTestMaster(t)
	c := newTestOutpoint(t, 0)
	coins.add(c, 100)

	p30 := newTestProof(t, testProofOpts{seed: 30, master: master, sequence: 30, outpoints: []wire.OutPoint{c}})
	p20 := newTestProof(t, testProofOpts{seed: 20, master: master, sequence: 20, outpoints: []wire.OutPoint{c}})
	p40 := newTestProof(t, testProofOpts{seed: 40, master: master, sequence: 40, outpoints: []wire.OutPoint{c}})

	ok, reason := m.RegisterProof(p30, ModeDefault)
	require.True(t, ok, reason)

	ok, reason = m.RegisterProof(p20, ModeDefault)
	assert.False(t, ok)
	assert.Equal(t, ReasonConflicting, reason)

	assert.True(t, m.IsBoundToPeer(p30.ID()))
	assert.True(t, m.IsInConflictingPool(p20.ID()))

	ok, reason = m.RegisterProof(p40, ModeForceAccept)
	require.True(t, ok, reason)

	assert.True(t, m.IsBoundToPeer(p40.ID()))
	assert.True(t, m.IsInConflictingPool(p30.ID()))
	assert.False(t, m.IsInConflictingPool(p20.ID()))
	assert.False(t, m.Exists(p20.ID()))

	require.NoError(t, m.Verify())
}

// TestCooldownGate is scenario S5: a conflicting challenger is refused
// outright until the configured cooldown elapses, at which point it's
// evaluated normally and lands in the conflicting pool.
func TestCooldownGate(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{
		ConflictingProofCooldown: 100 * time.Second,
	})

	master := newTestMaster(t)
	c := newTestOutpoint(t, 0)
	coins.add(c, 100)

	p30 := newTestProof(t, testProofOpts{seed: 30, master: master, sequence: 30, outpoints: []wire.OutPoint{c}})
	p40 := newTestProof(t, testProofOpts{seed: 40, master: master, sequence: 40, outpoints: []wire.OutPoint{c}})

	ok, reason := m.RegisterProof(p30, ModeDefault)
	require.True(t, ok, reason)

	ok, reason = m.RegisterProof(p40, ModeDefault)
	assert.False(t, ok)
	assert.Equal(t, ReasonCooldownNotElapsed, reason)
	assert.False(t, m.Exists(p40.ID()))

	clock.advance(100 * time.Second)

	ok, reason = m.RegisterProof(p40, ModeDefault)
	assert.False(t, ok)
	assert.Equal(t, ReasonConflicting, reason)
	assert.True(t, m.IsInConflictingPool(p40.ID()))

	require.NoError(t, m.Verify())
}

// TestReorgUnbindsNodes is scenario S6: spending a live peer's UTXO unbinds
// every node back to pending and orphans the proof; restoring the UTXO
// rebinds everything on the next tip update.
func TestReorgUnbindsNodes(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{})

	op := newTestOutpoint(t, 0)
	coins.add(op, 100)
	p := newTestProof(t, testProofOpts{seed: 0, outpoints: []wire.OutPoint{op}})

	ok, reason := m.RegisterProof(p, ModeDefault)
	require.True(t, ok, reason)

	const nodeCount = 10
	for i := NodeID(0); i < nodeCount; i++ {
		assert.True(t, m.AddNode(i, p.ID()))
	}
	assert.Equal(t, nodeCount, m.GetNodeCount())

	coins.spend(op)
	m.UpdatedBlockTip()

	assert.True(t, m.IsOrphan(p.ID()))
	assert.False(t, m.IsBoundToPeer(p.ID()))
	assert.Equal(t, 0, m.GetNodeCount())
	assert.Equal(t, nodeCount, m.GetPendingNodeCount())

	coins.add(op, 100)
	m.UpdatedBlockTip()

	assert.True(t, m.IsBoundToPeer(p.ID()))
	assert.Equal(t, nodeCount, m.GetNodeCount())
	assert.Equal(t, 0, m.GetPendingNodeCount())

	require.NoError(t, m.Verify())
}

// TestRegisterProofAlreadyRegistered covers the idempotency edge case: a
// proof id already resident as a peer, orphan or conflicting entry refuses
// re-registration regardless of mode.
func TestRegisterProofAlreadyRegistered(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{})

	op := newTestOutpoint(t, 0)
	coins.add(op, 100)
	p := newTestProof(t, testProofOpts{seed: 0, outpoints: []wire.OutPoint{op}})

	ok, _ := m.RegisterProof(p, ModeDefault)
	require.True(t, ok)

	ok, reason := m.RegisterProof(p, ModeDefault)
	assert.False(t, ok)
	assert.Equal(t, ReasonAlreadyRegistered, reason)
}

// TestRejectInvalidateTombstonesConflictingPool covers the negative cache:
// RejectInvalidate on a conflicting-pool entry blocks future
// re-registration with ReasonRejected.
func TestRejectInvalidateTombstonesConflictingPool(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{})

	master := newTestMaster(t)
	c := newTestOutpoint(t, 0)
	coins.add(c, 100)

	p30 := newTestProof(t, testProofOpts{seed: 30, master: master, sequence: 30, outpoints: []wire.OutPoint{c}})
	p20 := newTestProof(t, testProofOpts{seed: 20, master: master, sequence: 20, outpoints: []wire.OutPoint{c}})

	ok, _ := m.RegisterProof(p30, ModeDefault)
	require.True(t, ok)
	ok, reason := m.RegisterProof(p20, ModeDefault)
	require.False(t, ok)
	require.Equal(t, ReasonConflicting, reason)

	require.True(t, m.RejectProof(p20.ID(), RejectInvalidate))
	assert.False(t, m.Exists(p20.ID()))

	ok, reason = m.RegisterProof(p20, ModeDefault)
	assert.False(t, ok)
	assert.Equal(t, ReasonRejected, reason)
}

// TestRemovePeerUnbindsWithoutPromotion covers the RemovePeer/RejectProof
// asymmetry: removing a peer tombstones its slot and unbinds its nodes, but
// never promotes a waiting conflicting-pool entry the way RejectProof does.
func TestRemovePeerUnbindsWithoutPromotion(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{EnableProofReplacement: true})

	master := newTestMaster(t)
	c := newTestOutpoint(t, 0)
	coins.add(c, 100)

	p30 := newTestProof(t, testProofOpts{seed: 30, master: master, sequence: 30, outpoints: []wire.OutPoint{c}})
	p20 := newTestProof(t, testProofOpts{seed: 20, master: master, sequence: 20, outpoints: []wire.OutPoint{c}})

	ok, _ := m.RegisterProof(p30, ModeDefault)
	require.True(t, ok)
	_, reason := m.RegisterProof(p20, ModeDefault)
	require.Equal(t, ReasonConflicting, reason)

	peer, ok := m.peers.getByProofID(p30.ID())
	require.True(t, ok)
	require.True(t, m.RemovePeer(peer.PeerID))

	assert.False(t, m.Exists(p30.ID()))
	assert.True(t, m.IsInConflictingPool(p20.ID()))
	assert.False(t, m.IsBoundToPeer(p20.ID()))

	require.NoError(t, m.Verify())
}

// TestRejectProofPromotesConflictingPool mirrors
// TestRemovePeerUnbindsWithoutPromotion but through RejectProof, which must
// promote the best waiting conflicting-pool entry.
func TestRejectProofPromotesConflictingPool(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{EnableProofReplacement: true})

	master := newTestMaster(t)
	c := newTestOutpoint(t, 0)
	coins.add(c, 100)

	p30 := newTestProof(t, testProofOpts{seed: 30, master: master, sequence: 30, outpoints: []wire.OutPoint{c}})
	p20 := newTestProof(t, testProofOpts{seed: 20, master: master, sequence: 20, outpoints: []wire.OutPoint{c}})

	ok, _ := m.RegisterProof(p30, ModeDefault)
	require.True(t, ok)
	_, reason := m.RegisterProof(p20, ModeDefault)
	require.Equal(t, ReasonConflicting, reason)

	require.True(t, m.RejectProof(p30.ID(), RejectDefault))

	assert.False(t, m.Exists(p30.ID()))
	assert.True(t, m.IsBoundToPeer(p20.ID()))
	assert.False(t, m.IsInConflictingPool(p20.ID()))

	require.NoError(t, m.Verify())
}

// TestEnableProofReplacementGatesPromotion confirms the conflicting pool
// stays write-only when EnableProofReplacement is false: entries accumulate
// but are never promoted back to peer status.
func TestEnableProofReplacementGatesPromotion(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{EnableProofReplacement: false})

	master := newTestMaster(t)
	c := newTestOutpoint(t, 0)
	coins.add(c, 100)

	p30 := newTestProof(t, testProofOpts{seed: 30, master: master, sequence: 30, outpoints: []wire.OutPoint{c}})
	p20 := newTestProof(t, testProofOpts{seed: 20, master: master, sequence: 20, outpoints: []wire.OutPoint{c}})

	ok, _ := m.RegisterProof(p30, ModeDefault)
	require.True(t, ok)
	_, reason := m.RegisterProof(p20, ModeDefault)
	require.Equal(t, ReasonConflicting, reason)

	require.True(t, m.RejectProof(p30.ID(), RejectDefault))

	assert.False(t, m.Exists(p30.ID()))
	assert.True(t, m.IsInConflictingPool(p20.ID()))
	assert.False(t, m.IsBoundToPeer(p20.ID()))
}

// TestAddNodeUnknownProofIsPending covers node binding against a proof the
// manager has never seen: the node is recorded pending, not dropped, and
// ShouldRequestMoreNodes never fires spuriously from an empty peer set.
func TestAddNodeUnknownProofIsPending(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{})

	unknown := newTestProof(t, testProofOpts{seed: 99}).ID()

	assert.False(t, m.AddNode(1, unknown))
	assert.Equal(t, 1, m.GetPendingNodeCount())
	assert.Equal(t, 0, m.GetNodeCount())
	assert.Equal(t, NoNode, m.SelectNode())
	assert.False(t, m.ShouldRequestMoreNodes())
}

// TestSelectNodeRespectsCooldownAndSetsFlag exercises SelectNode's
// next-request-time filter and the ShouldRequestMoreNodes one-shot signal.
func TestSelectNodeRespectsCooldownAndSetsFlag(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{})

	op := newTestOutpoint(t, 0)
	coins.add(op, 100)
	p := newTestProof(t, testProofOpts{seed: 0, outpoints: []wire.OutPoint{op}})
	ok, _ := m.RegisterProof(p, ModeDefault)
	require.True(t, ok)

	require.True(t, m.AddNode(1, p.ID()))
	require.True(t, m.UpdateNextRequestTime(1, clock.NowSteady().Add(time.Hour)))

	assert.Equal(t, NoNode, m.SelectNode())
	assert.True(t, m.ShouldRequestMoreNodes())
	// The flag is one-shot: reading it again without a new SelectNode call
	// finds it already cleared.
	assert.False(t, m.ShouldRequestMoreNodes())

	require.True(t, m.UpdateNextRequestTime(1, clock.NowSteady()))
	assert.Equal(t, NodeID(1), m.SelectNode())
}

// TestForEachPeerAndNode exercises the read-locked iteration helpers.
func TestForEachPeerAndNode(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{})

	op := newTestOutpoint(t, 0)
	coins.add(op, 100)
	p := newTestProof(t, testProofOpts{seed: 0, outpoints: []wire.OutPoint{op}})
	ok, _ := m.RegisterProof(p, ModeDefault)
	require.True(t, ok)
	require.True(t, m.AddNode(1, p.ID()))

	var sawPeer bool
	m.ForEachPeer(func(peer *Peer) {
		sawPeer = true
		assert.Equal(t, p.ID(), peer.Proof.ID())
	})
	assert.True(t, sawPeer)

	peer, ok := m.peers.getByProofID(p.ID())
	require.True(t, ok)

	var sawNode bool
	m.ForEachNode(peer.PeerID, func(n *Node) {
		sawNode = true
		assert.Equal(t, NodeID(1), n.NodeID)
	})
	assert.True(t, sawNode)

	found := m.ForPeer(p.ID(), func(peer *Peer) bool {
		return peer.NodeCount == 1
	})
	assert.True(t, found)

	assert.False(t, m.ForPeer(newTestProof(t, testProofOpts{seed: 77}).ID(), func(*Peer) bool {
		return true
	}))
}

// TestSelectPeerEmptyManager covers the degenerate zero-peer case.
func TestSelectPeerEmptyManager(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{})

	assert.Equal(t, NoPeer, m.SelectPeer())
	assert.Equal(t, uint64(0), m.GetSlotCount())
}

// TestConflictingPoolCapacityEviction covers MaxConflictingProofs enforcement:
// once the pool is full, the globally lowest-scored entry is evicted to make
// room, independent of which UTXO the new entry contests.
func TestConflictingPoolCapacityEviction(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{MaxConflictingProofs: 1})

	masterA := newTestMaster(t)
	opA := newTestOutpoint(t, 0)
	coins.add(opA, 100)
	peerA := newTestProof(t, testProofOpts{seed: 0, master: masterA, sequence: 10, outpoints: []wire.OutPoint{opA}})
	loserA := newTestProof(t, testProofOpts{seed: 1, master: masterA, sequence: 5, score: 50, outpoints: []wire.OutPoint{opA}})

	ok, _ := m.RegisterProof(peerA, ModeDefault)
	require.True(t, ok)
	_, reason := m.RegisterProof(loserA, ModeDefault)
	require.Equal(t, ReasonConflicting, reason)
	require.True(t, m.IsInConflictingPool(loserA.ID()))

	masterB := newTestMaster(t)
	opB := newTestOutpoint(t, 2)
	coins.add(opB, 100)
	peerB := newTestProof(t, testProofOpts{seed: 2, master: masterB, sequence: 10, outpoints: []wire.OutPoint{opB}})
	loserB := newTestProof(t, testProofOpts{seed: 3, master: masterB, sequence: 5, score: 200, outpoints: []wire.OutPoint{opB}})

	ok, _ = m.RegisterProof(peerB, ModeDefault)
	require.True(t, ok)
	_, reason = m.RegisterProof(loserB, ModeDefault)
	require.Equal(t, ReasonConflicting, reason)

	assert.False(t, m.IsInConflictingPool(loserA.ID()))
	assert.True(t, m.IsInConflictingPool(loserB.ID()))

	require.NoError(t, m.Verify())
}

// TestVerifyDetectsNodeCountMismatch is a white-box check that Verify()
// actually catches a broken invariant rather than trivially passing.
func TestVerifyDetectsNodeCountMismatch(t *testing.T) {
	coins := newFakeCoinLookup()
	clock := newFakeClock()
	m := newTestManager(t, coins, clock, Config{})

	op := newTestOutpoint(t, 0)
	coins.add(op, 100)
	p := newTestProof(t, testProofOpts{seed: 0, outpoints: []wire.OutPoint{op}})
	ok, _ := m.RegisterProof(p, ModeDefault)
	require.True(t, ok)

	peer, ok := m.peers.getByProofID(p.ID())
	require.True(t, ok)
	peer.NodeCount = 42

	err := m.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node_count")
}

// statisticalTolerance mirrors the ±k·sqrt(N) style bound used by the
// corpus's own weighted-selection fixtures, for reference in case a future
// scenario wants a sample-size-scaled bound instead of the scenario's fixed
// ±500.
func statisticalTolerance(n float64, p float64, k float64) float64 {
	return k * math.Sqrt(n*p*(1-p))
}
