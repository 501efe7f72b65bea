// Package executor performs the side effects implied by an agent result and
// persists the resulting orchestration state. It is the sole writer of the
// orchestration fields on a conversation; every status, owner and
// waiting-for-customer change flows through UpdateState.
package executor
