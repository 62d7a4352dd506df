package avalanche

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// fakeCoinLookup is a controllable CoinLookup backed by a plain map, letting
// tests spend, restore, or otherwise mutate the "active chain" between
// RegisterProof/UpdatedBlockTip calls.
type fakeCoinLookup struct {
	coins map[wire.OutPoint]CoinStatus
}

func newFakeCoinLookup() *fakeCoinLookup {
	return &fakeCoinLookup{coins: make(map[wire.OutPoint]CoinStatus)}
}

func (f *fakeCoinLookup) add(op wire.OutPoint, height int32) {
	f.coins[op] = CoinStatus{Amount: 1_000_000, Height: height}
}

func (f *fakeCoinLookup) spend(op wire.OutPoint) {
	delete(f.coins, op)
}

func (f *fakeCoinLookup) LookupCoin(op wire.OutPoint) (CoinStatus, bool) {
	s, ok := f.coins[op]
	return s, ok
}

// acceptAllVerifier treats every structurally-valid proof as cryptographically
// sound; the manager never implements proof cryptography itself.
type acceptAllVerifier struct{}

func (acceptAllVerifier) Verify(*Proof, CoinLookup) error { return nil }

// fakeClock is a controllable Clock, advanced explicitly by tests exercising
// cooldown and reorg behavior.
type fakeClock struct {
	seconds int64
	steady  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{steady: time.Unix(0, 0)}
}

func (c *fakeClock) NowSeconds() int64      { return c.seconds }
func (c *fakeClock) NowSteady() time.Time   { return c.steady }
func (c *fakeClock) advance(d time.Duration) {
	c.seconds += int64(d / time.Second)
	c.steady = c.steady.Add(d)
}

func newTestOutpoint(t *testing.T, seed byte) wire.OutPoint {
	t.Helper()
	return wire.OutPoint{Hash: chainhash.HashH([]byte{'u', seed}), Index: 0}
}

func newTestMaster(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

// testProofOpts lets each scenario only specify the fields it cares about;
// zero values pick sane defaults.
type testProofOpts struct {
	seed      byte
	master    *btcec.PublicKey
	sequence  uint64
	score     uint32
	outpoints []wire.OutPoint
	height    int32
}

func newTestProof(t *testing.T, opts testProofOpts) *Proof {
	t.Helper()

	if opts.score == 0 {
		opts.score = 100
	}
	if opts.height == 0 {
		opts.height = 100
	}
	if len(opts.outpoints) == 0 {
		opts.outpoints = []wire.OutPoint{newTestOutpoint(t, opts.seed)}
	}

	ops := make([]wire.OutPoint, len(opts.outpoints))
	copy(ops, opts.outpoints)
	sortOutpoints(ops)

	stakes := make([]Stake, len(ops))
	for i, op := range ops {
		stakes[i] = Stake{
			Outpoint: op,
			Amount:   btcutil.Amount(opts.score),
			Height:   opts.height,
		}
	}

	id := chainhash.HashH([]byte{'p', opts.seed})
	limitedID := chainhash.HashH([]byte{'l', opts.seed})

	p, err := NewProof(id, limitedID, opts.master, opts.sequence, 0, opts.score, stakes)
	require.NoError(t, err)
	return p
}

func sortOutpoints(ops []wire.OutPoint) {
	for i := 1; i < len(ops); i++ {
		for j := i; j > 0 && compareOutpoints(ops[j-1], ops[j]) > 0; j-- {
			ops[j-1], ops[j] = ops[j], ops[j-1]
		}
	}
}

func newTestManager(t *testing.T, coins *fakeCoinLookup, clock *fakeClock, cfg Config) *Manager {
	t.Helper()

	cfg.CoinLookup = coins
	cfg.Verifier = acceptAllVerifier{}
	cfg.Clock = clock
	if cfg.RNG == nil {
		cfg.RNG = NewMathRNG()
	}

	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}
