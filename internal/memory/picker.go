package memory

import (
	"math/rand"
	"sync"
)

// RandPicker selects uniformly at random from a seeded source. The seed
// is explicit so a run can be replayed when auditing synthesized
// replies.
type RandPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandPicker(seed int64) *RandPicker {
	return &RandPicker{rng: rand.New(rand.NewSource(seed))}
}

func (p *RandPicker) Pick(n int) int {
	if n <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}

// FixedPicker always returns the same index; used in tests.
type FixedPicker int

func (p FixedPicker) Pick(n int) int {
	if n <= 0 {
		return 0
	}
	return int(p) % n
}
