package core

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ConversationStore persists conversation records. UpdateOrchestration is
// called exclusively by the ActionExecutor.
type ConversationStore interface {
	// GetByExternalID loads a conversation by its external platform id.
	GetByExternalID(ctx context.Context, externalConversationID string) (*Conversation, error)
	// Create inserts a new conversation row.
	Create(ctx context.Context, conv *Conversation) error
	// UpdateHandler sets the handler attribution after a routing decision.
	UpdateHandler(ctx context.Context, id int64, handler, handlerName string) error
	// UpdateOrchestration writes the orchestration field triple.
	UpdateOrchestration(ctx context.Context, id int64, status OrchestratorStatus, owner Owner, waiting bool) error
	// UpdateInteractions persists the cumulative automation interaction
	// count, so the per-conversation budget survives across events.
	UpdateInteractions(ctx context.Context, id int64, count int) error
	// Close stamps closedAt/closedReason and moves the row to StatusClosed.
	Close(ctx context.Context, id int64, reason ClosedReason) error
}

// ConsumeResult reports the outcome of one atomic capacity consumption.
type ConsumeResult struct {
	// Allocated is false when the conditional update affected no rows: the
	// rule lost the race, was concurrently deactivated, or is exhausted.
	Allocated bool
	// AllocatedCount is the post-increment counter when Allocated.
	AllocatedCount int
	// Exhausted is true when the post-increment counter reached the cap, so
	// the caller should deactivate the rule.
	Exhausted bool
}

// RuleStore persists routing rules. ConsumeCapacity is the single operation
// in the system expected to race across conversations: implementations must
// perform the compare-and-increment as one indivisible statement against the
// store, never a read followed by a separate write.
type RuleStore interface {
	// GetRule loads one rule by id.
	GetRule(ctx context.Context, id int64) (*RoutingRule, error)
	// PutRule inserts or replaces a rule (admin surface, used by tests and
	// seed tooling).
	PutRule(ctx context.Context, rule *RoutingRule) error
	// ListCandidates returns all rules that are active, unexpired at now and
	// have remaining capacity, ordered by ascending id (oldest rule wins).
	ListCandidates(ctx context.Context, now time.Time) ([]RoutingRule, error)
	// ConsumeCapacity atomically increments AllocatedCount only if the rule
	// is still active and below its cap (or uncapped).
	ConsumeCapacity(ctx context.Context, ruleID int64) (ConsumeResult, error)
	// Deactivate clears IsActive so future evaluations skip the rule.
	Deactivate(ctx context.Context, ruleID int64) error
}

// ProcessedEventStore persists the idempotency ledger.
type ProcessedEventStore interface {
	// GetProcessed returns the ledger entry for the composite key, expired
	// or not, or ErrNotFound.
	GetProcessed(ctx context.Context, externalConversationID, ruleType string) (*ProcessedEvent, error)
	// UpsertProcessed inserts or replaces the entry keyed by
	// (externalConversationID, ruleType). Safe under concurrent calls for
	// the same key.
	UpsertProcessed(ctx context.Context, entry ProcessedEvent) error
	// DeleteExpired removes all entries whose ExpiresAt has passed and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
