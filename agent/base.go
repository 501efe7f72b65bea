package agent

import (
	"context"
	"time"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/observe"
	"github.com/convomesh/convomesh/reasoner"
)

// DefaultCallTimeout bounds a single reasoner call. A stalled call is
// treated as an agent failure and escalates.
const DefaultCallTimeout = 60 * time.Second

// Options configures the shared behavior of the phase agents.
type Options struct {
	// CallTimeout bounds each reasoner call. Zero means DefaultCallTimeout;
	// negative disables the timeout.
	CallTimeout time.Duration
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
	// Metrics is optional. Nil disables recording.
	Metrics *observe.Metrics
}

// base carries the plumbing shared by the three phase agents.
type base struct {
	name        string
	owner       core.Owner
	reasoner    reasoner.Reasoner
	callTimeout time.Duration
	logger      logging.Logger
	metrics     *observe.Metrics
}

func defaultOptions() Options {
	return Options{
		CallTimeout: DefaultCallTimeout,
		Logger:      logging.NoOpLogger{},
	}
}

func newBase(name string, owner core.Owner, r reasoner.Reasoner, optFns ...func(o *Options)) base {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.CallTimeout == 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return base{
		name:        name,
		owner:       owner,
		reasoner:    r,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

// Name returns the agent's name.
func (b *base) Name() string { return b.name }

// Owner returns the ownership role this agent holds while driving a
// conversation.
func (b *base) Owner() core.Owner { return b.owner }

// spend consumes one interaction from the limiter. The second return value
// is false when the budget is exhausted, which the caller converts into a
// max-interactions escalation.
func (b *base) spend(octx *core.OrchestratorContext) bool {
	if octx.Interactions == nil {
		return true
	}
	if err := octx.Interactions.Increment(); err != nil {
		b.logger.Warn("interaction budget exhausted",
			"conversation_id", octx.ConversationID,
			"agent", b.name,
			"count", octx.Interactions.Count())
		return false
	}
	return true
}

// consult builds the structured request from the context snapshot and runs
// the reasoner under the configured timeout.
func (b *base) consult(octx *core.OrchestratorContext) (reasoner.Decision, error) {
	req := reasoner.Request{
		AgentKey:               b.name,
		ExternalConversationID: octx.ExternalConversationID,
		Summary:                octx.Findings.Summary,
		Classification:         octx.Findings.Classification,
		Demand:                 octx.Findings.Demand,
		Message:                octx.Event.Text,
		History:                octx.History,
		Candidates:             octx.Findings.Candidates,
	}

	ctx := octx.Context
	if b.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.callTimeout)
		defer cancel()
	}

	start := time.Now()
	decision, err := b.reasoner.Run(ctx, req)
	b.metrics.RecordReasonerCall(b.name, err == nil, time.Since(start))
	if err != nil {
		b.logger.Error("reasoner call failed",
			"agent", b.name,
			"conversation_id", octx.ConversationID,
			"duration", time.Since(start),
			"error", err)
		return reasoner.Decision{}, err
	}
	b.logger.Debug("reasoner decision",
		"agent", b.name,
		"conversation_id", octx.ConversationID,
		"outcome", decision.Outcome,
		"duration", time.Since(start))
	return decision, nil
}

// reply queues a SendMessage action for the decision's suggested message and
// records it on the result. A decision without a message queues nothing.
func (b *base) reply(octx *core.OrchestratorContext, decision reasoner.Decision, result *core.AgentResult) {
	if decision.Message == "" {
		return
	}
	octx.AddAction(core.SendMessage{
		SuggestionID: decision.SuggestionID,
		Preview:      decision.Message,
		InResponseTo: octx.Event.ID,
	})
	result.MessageSent = true
	result.SuggestedResponse = decision.Message
	result.SuggestionID = decision.SuggestionID
}
