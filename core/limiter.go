package core

import (
	"fmt"
	"sync"
)

// InteractionLimiter enforces a maximum number of reasoner interactions per
// conversation. Exhaustion is the policy-level signal that terminates runaway
// automation (maxInteractionsReached), escalating instead of timing out.
type InteractionLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewInteractionLimiter creates a limiter seeded with the number of
// interactions already spent on the conversation. If max == 0, unlimited
// interactions are allowed.
func NewInteractionLimiter(max, spent int) *InteractionLimiter {
	return &InteractionLimiter{max: max, count: spent}
}

// Increment increases the interaction counter and returns an error if the
// limit is exceeded.
func (il *InteractionLimiter) Increment() error {
	il.mu.Lock()
	defer il.mu.Unlock()

	il.count++
	if il.max > 0 && il.count > il.max {
		return fmt.Errorf("exceeded max interactions: %d", il.max)
	}

	return nil
}

// Exhausted reports whether the budget has been fully spent.
func (il *InteractionLimiter) Exhausted() bool {
	il.mu.Lock()
	defer il.mu.Unlock()

	return il.max > 0 && il.count >= il.max
}

// Count returns the current number of interactions recorded.
func (il *InteractionLimiter) Count() int {
	il.mu.Lock()
	defer il.mu.Unlock()

	return il.count
}

// Remaining returns how many interactions are left before hitting the limit.
func (il *InteractionLimiter) Remaining() int {
	il.mu.Lock()
	defer il.mu.Unlock()

	if il.max == 0 {
		return -1 // unlimited
	}

	return il.max - il.count
}
