package avalanche

import (
	prand "math/rand"
	"sync"
	"time"
)

// mathRNG is the default RNG, backed by a mutex-guarded math/rand source.
// Grounded on the math/rand usage in autopilot/prefattach.go; avalanche
// selection has no adversarial-randomness requirement of its own since the
// draw only ever influences which already-accepted peer answers a poll.
type mathRNG struct {
	mu  sync.Mutex
	src *prand.Rand
}

// NewMathRNG returns the default RNG implementation.
func NewMathRNG() RNG {
	return &mathRNG{
		src: prand.New(prand.NewSource(time.Now().UnixNano())),
	}
}

func (r *mathRNG) Uint64n(n uint64) uint64 {
	if n == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return uint64(r.src.Int63n(int64(n)))
}
