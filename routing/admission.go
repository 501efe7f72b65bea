package routing

import (
	"context"
	"time"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/observe"
)

// Outcome classifies what the admission controller decided for one event.
type Outcome string

const (
	// OutcomeRouted means a rule matched, capacity was consumed and the
	// conversation was assigned to the rule's target.
	OutcomeRouted Outcome = "routed"
	// OutcomeAlreadyProcessed means the idempotency ledger short-circuited
	// evaluation.
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomeDefaulted means no rule applied and the configured default
	// target was assigned instead.
	OutcomeDefaulted Outcome = "defaulted"
	// OutcomeNoDecision means no rule applied and no default is configured.
	OutcomeNoDecision Outcome = "no_decision"
)

// Decision is the result of evaluating one inbound event against the rule set.
type Decision struct {
	Outcome Outcome
	// RuleID and RuleType are set when Outcome is OutcomeRouted.
	RuleID   int64
	RuleType string
	// Target is the logical handler name, set for OutcomeRouted and
	// OutcomeDefaulted.
	Target string
	// Handler is the resolved concrete handler, when the resolver knows the
	// target. May be nil even for OutcomeRouted if resolution failed.
	Handler *core.HandlerRef
}

// Routed reports whether the decision assigned a handler via a rule.
func (d Decision) Routed() bool { return d.Outcome == OutcomeRouted }

// AdmissionControllerOptions configures an AdmissionController.
type AdmissionControllerOptions struct {
	// DefaultTarget is assigned when no rule matches. Empty disables the
	// fallthrough and yields OutcomeNoDecision instead.
	DefaultTarget string
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
	// Metrics is optional. Nil disables recording.
	Metrics *observe.Metrics
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// AdmissionController decides, for an inbound event on a conversation not yet
// routed for a given rule type, which target handler to assign. It respects
// exact-text match, authentication filter and remaining capacity, and commits
// each decision exactly once through the idempotency tracker.
type AdmissionController struct {
	rules         core.RuleStore
	conversations core.ConversationStore
	tracker       *IdempotencyTracker
	resolver      core.TargetResolver
	defaultTarget string
	logger        logging.Logger
	metrics       *observe.Metrics
	now           func() time.Time

	// locks serializes admissions for the same conversation. The ledger
	// check and write are two store calls; without this, two concurrent
	// events on one conversation could both pass the check.
	locks *core.ConversationLocks
}

// NewAdmissionController constructs an admission controller.
func NewAdmissionController(
	rules core.RuleStore,
	conversations core.ConversationStore,
	tracker *IdempotencyTracker,
	resolver core.TargetResolver,
	optFns ...func(o *AdmissionControllerOptions),
) *AdmissionController {
	opts := AdmissionControllerOptions{
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &AdmissionController{
		rules:         rules,
		conversations: conversations,
		tracker:       tracker,
		resolver:      resolver,
		defaultTarget: opts.DefaultTarget,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Now,
		locks:         core.NewConversationLocks(),
	}
}

// Admit evaluates the event against the active rule set and, for the first
// rule that matches and still has capacity, atomically consumes one unit,
// assigns the conversation to the rule's target and records the decision in
// the ledger.
//
// Losing the capacity race on one rule is not an error: evaluation moves on
// to the next candidate. A ledger write failure after a successful allocation
// is logged but does not roll anything back, because a retried ledger write
// lands on the same unique key.
func (c *AdmissionController) Admit(ctx context.Context, conv *core.Conversation, ev core.InboundEvent) (Decision, error) {
	release := c.locks.Lock(ev.ExternalConversationID)
	defer release()

	candidates, err := c.rules.ListCandidates(ctx, c.now())
	if err != nil {
		return Decision{}, err
	}

	// Ledger lookups are cached per rule type: a rule set usually contains
	// few distinct types, and every rule of an already-processed type is
	// skipped without another store round trip.
	processed := map[string]bool{}
	skippedProcessed := false

	for _, rule := range candidates {
		seen, ok := processed[rule.RuleType]
		if !ok {
			seen, err = c.tracker.HasProcessed(ctx, ev.ExternalConversationID, rule.RuleType)
			if err != nil {
				return Decision{}, err
			}
			processed[rule.RuleType] = seen
		}
		if seen {
			skippedProcessed = true
			continue
		}
		if !rule.Matches(ev) {
			continue
		}

		res, err := c.rules.ConsumeCapacity(ctx, rule.ID)
		if err != nil {
			c.logger.Warn("capacity consume failed, trying next rule",
				"rule_id", rule.ID, "error", err)
			continue
		}
		if !res.Allocated {
			// Lost the race or the rule was deactivated underneath us.
			c.logger.Debug("capacity race lost", "rule_id", rule.ID)
			c.metrics.RecordCapacityRaceLoss()
			continue
		}

		if res.Exhausted {
			if err := c.rules.Deactivate(ctx, rule.ID); err != nil {
				c.logger.Warn("rule deactivation failed",
					"rule_id", rule.ID, "error", err)
			} else {
				c.metrics.RecordRuleDeactivated()
			}
		}

		decision := Decision{
			Outcome:  OutcomeRouted,
			RuleID:   rule.ID,
			RuleType: rule.RuleType,
			Target:   rule.Target,
		}
		if err := c.assign(ctx, conv, rule.Target, &decision); err != nil {
			c.logger.Error("handler assignment failed",
				"rule_id", rule.ID, "target", rule.Target, "error", err)
		}

		if err := c.tracker.MarkProcessed(ctx, ev.ExternalConversationID, rule.ID, rule.RuleType); err != nil {
			c.logger.Error("ledger write failed after allocation",
				"rule_id", rule.ID,
				"external_conversation_id", ev.ExternalConversationID,
				"error", err)
		}

		c.logger.Info("conversation routed",
			"external_conversation_id", ev.ExternalConversationID,
			"rule_id", rule.ID,
			"rule_type", rule.RuleType,
			"target", rule.Target,
			"allocated_count", res.AllocatedCount)
		return decision, nil
	}

	if skippedProcessed {
		// The conversation was already routed for at least one applicable
		// rule type. Re-assigning a handler here would undo that decision.
		return Decision{Outcome: OutcomeAlreadyProcessed}, nil
	}

	// The default is a fallback for conversations nobody has claimed yet. A
	// handler assigned earlier, by a rule or by a human, stays in place.
	if c.defaultTarget != "" && conv.CurrentHandler == "" && conv.CurrentHandlerName == "" {
		decision := Decision{Outcome: OutcomeDefaulted, Target: c.defaultTarget}
		if err := c.assign(ctx, conv, c.defaultTarget, &decision); err != nil {
			c.logger.Error("default handler assignment failed",
				"target", c.defaultTarget, "error", err)
		}
		return decision, nil
	}
	return Decision{Outcome: OutcomeNoDecision}, nil
}

// AlreadyProcessed reports whether the ledger short-circuits evaluation for
// the given rule type. Callers that know the relevant type up front can use
// this to skip Admit entirely.
func (c *AdmissionController) AlreadyProcessed(ctx context.Context, externalConversationID, ruleType string) (bool, error) {
	return c.tracker.HasProcessed(ctx, externalConversationID, ruleType)
}

func (c *AdmissionController) assign(ctx context.Context, conv *core.Conversation, target string, decision *Decision) error {
	ref, err := c.resolver.ResolveTarget(ctx, target)
	if err != nil {
		return err
	}
	if ref == nil {
		c.logger.Warn("target has no resolvable handler", "target", target)
		return nil
	}
	decision.Handler = ref
	if err := c.conversations.UpdateHandler(ctx, conv.ID, ref.ID, ref.Name); err != nil {
		return err
	}
	conv.CurrentHandler = ref.ID
	conv.CurrentHandlerName = ref.Name
	return nil
}
