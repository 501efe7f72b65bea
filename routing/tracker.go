package routing

import (
	"context"
	"errors"
	"time"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/observe"
)

// DefaultLedgerTTL is how long an admission decision blocks re-evaluation of
// the same conversation for the same rule type.
const DefaultLedgerTTL = 24 * time.Hour

// DefaultSweepInterval is how often expired ledger entries are pruned.
const DefaultSweepInterval = 15 * time.Minute

// IdempotencyTracker records "this conversation has already been evaluated
// against this rule type" with a TTL. Without it, every subsequent event on
// an already-routed conversation would re-evaluate the rules and potentially
// re-consume capacity.
type IdempotencyTracker struct {
	store   core.ProcessedEventStore
	ttl     time.Duration
	logger  logging.Logger
	metrics *observe.Metrics
	now     func() time.Time
}

// TrackerOptions configures an IdempotencyTracker.
type TrackerOptions struct {
	// TTL applied to every ledger entry. Defaults to DefaultLedgerTTL.
	TTL time.Duration
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
	// Metrics is optional. Nil disables recording.
	Metrics *observe.Metrics
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewIdempotencyTracker constructs a tracker over the given ledger store.
func NewIdempotencyTracker(store core.ProcessedEventStore, optFns ...func(o *TrackerOptions)) *IdempotencyTracker {
	opts := TrackerOptions{
		TTL:    DefaultLedgerTTL,
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &IdempotencyTracker{store: store, ttl: opts.TTL, logger: opts.Logger, metrics: opts.Metrics, now: opts.Now}
}

// TTL returns the configured ledger entry lifetime.
func (t *IdempotencyTracker) TTL() time.Duration { return t.ttl }

// HasProcessed reports whether a non-expired ledger entry exists for the
// composite key. An expired entry counts as absent: the conversation may be
// re-evaluated once the sweep (or this check) has passed its TTL.
func (t *IdempotencyTracker) HasProcessed(ctx context.Context, externalConversationID, ruleType string) (bool, error) {
	entry, err := t.store.GetProcessed(ctx, externalConversationID, ruleType)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return !entry.Expired(t.now()), nil
}

// MarkProcessed inserts or replaces the ledger entry for the composite key.
// Upsert semantics make duplicate writes after a retry harmless.
func (t *IdempotencyTracker) MarkProcessed(ctx context.Context, externalConversationID string, ruleID int64, ruleType string) error {
	now := t.now()
	return t.store.UpsertProcessed(ctx, core.ProcessedEvent{
		ExternalConversationID: externalConversationID,
		RuleType:               ruleType,
		RuleID:                 ruleID,
		ProcessedAt:            now,
		ExpiresAt:              now.Add(t.ttl),
	})
}

// PruneExpired deletes all ledger entries whose TTL has passed, returning the
// number removed.
func (t *IdempotencyTracker) PruneExpired(ctx context.Context) (int, error) {
	return t.store.DeleteExpired(ctx, t.now())
}

// StartSweeper launches the periodic prune loop. It runs independently of
// request traffic and stops when ctx is cancelled.
func (t *IdempotencyTracker) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				count, err := t.PruneExpired(ctx)
				if err != nil {
					t.logger.Warn("ledger sweep failed", "error", err)
					continue
				}
				if count > 0 {
					t.logger.Debug("ledger sweep removed entries", "count", count)
					t.metrics.RecordLedgerPruned(count)
				}
			}
		}
	}()
}
