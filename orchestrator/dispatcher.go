package orchestrator

import (
	"fmt"
	"time"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/executor"
	"github.com/convomesh/convomesh/logging"
)

// Outcome summarizes what one dispatch call did, for logging and metrics.
type Outcome struct {
	// Agent is the name of the agent that processed the event, empty for
	// no-op dispatches on terminal conversations.
	Agent string
	// Status is the conversation's orchestrator status after the dispatch.
	Status core.OrchestratorStatus
	// Escalated reports whether this dispatch ended in an escalation.
	Escalated bool
	// Duration covers the whole dispatch including the agent call.
	Duration time.Duration
}

// Dispatcher is the conversation state machine. Given a conversation's
// persisted status it selects the agent that owns that phase, runs it, and
// applies the agent's result as a state transition through the action
// executor. Callers must guarantee that no two dispatches for the same
// conversation run concurrently.
type Dispatcher struct {
	demandFinder     core.Agent
	solutionProvider core.Agent
	closer           core.Agent
	exec             *executor.ActionExecutor
	escalator        *Escalator
	logger           logging.Logger
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// NewDispatcher constructs a Dispatcher over the three phase agents.
func NewDispatcher(
	demandFinder, solutionProvider, closer core.Agent,
	exec *executor.ActionExecutor,
	escalator *Escalator,
	optFns ...func(o *DispatcherOptions),
) *Dispatcher {
	opts := DispatcherOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{
		demandFinder:     demandFinder,
		solutionProvider: solutionProvider,
		closer:           closer,
		exec:             exec,
		escalator:        escalator,
		logger:           opts.Logger,
	}
}

// agentFor maps the persisted status to the agent that drives that phase.
// Terminal statuses map to nil: the dispatcher never runs agent logic for an
// escalated or closed conversation.
func (d *Dispatcher) agentFor(status core.OrchestratorStatus) core.Agent {
	switch status {
	case core.StatusNew, core.StatusFindingDemand, core.StatusAwaitingCustomerReply:
		return d.demandFinder
	case core.StatusDemandConfirmed, core.StatusProvidingSolution:
		return d.solutionProvider
	case core.StatusCompleted:
		return d.closer
	default:
		return nil
	}
}

// Dispatch runs one event through the state machine. Agent failures and
// policy exhaustion never surface as errors: they are converted into
// escalations internally. The returned error indicates a defect in the
// wiring, not a conversation-level failure.
func (d *Dispatcher) Dispatch(octx *core.OrchestratorContext) (Outcome, error) {
	start := time.Now()

	if octx.Event.Kind == core.EventConversationClosed {
		return d.handleExternalClose(octx, start)
	}

	if octx.CurrentStatus.IsTerminal() {
		d.logger.Debug("ignoring event on terminal conversation",
			"conversation_id", octx.ConversationID,
			"status", octx.CurrentStatus)
		return Outcome{Status: octx.CurrentStatus, Duration: time.Since(start)}, nil
	}

	// A fresh or parked conversation is moved into active demand finding
	// before the agent runs, so the agent always observes an in-progress
	// status with an owner.
	switch octx.CurrentStatus {
	case core.StatusNew:
		if err := d.exec.UpdateState(octx, core.StatusFindingDemand, core.OwnerDemandFinder, false); err != nil {
			return Outcome{}, fmt.Errorf("claim new conversation: %w", err)
		}
	case core.StatusAwaitingCustomerReply:
		if err := d.exec.UpdateState(octx, core.StatusFindingDemand, octx.CurrentOwner, false); err != nil {
			return Outcome{}, fmt.Errorf("resume conversation: %w", err)
		}
	}

	agent := d.agentFor(octx.CurrentStatus)
	if agent == nil {
		return Outcome{}, fmt.Errorf("no agent for status %q", octx.CurrentStatus)
	}

	result := agent.Process(octx)
	d.logger.Debug("agent returned",
		"conversation_id", octx.ConversationID,
		"agent", agent.Name(),
		"success", result.Success)

	if !result.Success {
		d.escalator.HandleAgentError(octx, agent.Name(), result.Err)
		return d.outcome(octx, agent, start, true), nil
	}
	if result.MaxInteractionsReached {
		d.escalator.EscalateConversation(octx, "max interactions reached", EscalateOptions{
			SendApology: true,
			CaseStatus:  d.exhaustionCaseStatus(octx.CurrentOwner),
		})
		return d.outcome(octx, agent, start, true), nil
	}

	if err := d.exec.Execute(octx); err != nil {
		d.escalator.HandleAgentError(octx, agent.Name(), err)
		return d.outcome(octx, agent, start, true), nil
	}

	if err := d.applyTransition(octx, result); err != nil {
		d.escalator.HandleAgentError(octx, agent.Name(), err)
		return d.outcome(octx, agent, start, true), nil
	}
	return d.outcome(octx, agent, start, false), nil
}

// Escalate routes the conversation to a human outside the normal agent flow,
// used for failures caught above the dispatcher.
func (d *Dispatcher) Escalate(octx *core.OrchestratorContext, reason string) {
	d.escalator.EscalateConversation(octx, reason, EscalateOptions{
		CaseStatus: core.CaseStatusError,
	})
}

// applyTransition computes the next (status, owner, waitingForCustomer)
// triple from the agent result and writes it. Exactly one result flag drives
// the transition; with none set the conversation stays where it is.
func (d *Dispatcher) applyTransition(octx *core.OrchestratorContext, result core.AgentResult) error {
	switch {
	case result.ConversationClosed:
		return d.exec.CloseConversation(octx.Context, octx, core.CloseReasonResolved)
	case result.DemandConfirmed:
		return d.exec.UpdateState(octx, core.StatusDemandConfirmed, core.OwnerSolutionProvider, false)
	case result.NeedsClarification:
		return d.exec.UpdateState(octx, core.StatusAwaitingCustomerReply, octx.CurrentOwner, true)
	case result.Resolved:
		return d.exec.UpdateState(octx, core.StatusCompleted, core.OwnerCloser, false)
	case result.SolutionProposed:
		return d.exec.UpdateState(octx, core.StatusProvidingSolution, octx.CurrentOwner, true)
	case result.NewDemand:
		return d.exec.UpdateState(octx, core.StatusFindingDemand, core.OwnerDemandFinder, false)
	default:
		return nil
	}
}

// handleExternalClose processes the out-of-band "conversation closed" signal.
// It closes the conversation regardless of phase, running no agent logic.
func (d *Dispatcher) handleExternalClose(octx *core.OrchestratorContext, start time.Time) (Outcome, error) {
	if octx.CurrentStatus == core.StatusClosed {
		return Outcome{Status: core.StatusClosed, Duration: time.Since(start)}, nil
	}
	d.logger.Info("conversation closed externally",
		"conversation_id", octx.ConversationID,
		"status", octx.CurrentStatus)
	if err := d.exec.CloseConversation(octx.Context, octx, core.CloseReasonExternal); err != nil {
		d.logger.Error("external close failed",
			"conversation_id", octx.ConversationID, "error", err)
	}
	return Outcome{Status: octx.CurrentStatus, Duration: time.Since(start)}, nil
}

func (d *Dispatcher) exhaustionCaseStatus(owner core.Owner) string {
	if owner == core.OwnerDemandFinder {
		return core.CaseStatusDemandNotFound
	}
	return core.CaseStatusError
}

func (d *Dispatcher) outcome(octx *core.OrchestratorContext, agent core.Agent, start time.Time, escalated bool) Outcome {
	return Outcome{
		Agent:     agent.Name(),
		Status:    octx.CurrentStatus,
		Escalated: escalated,
		Duration:  time.Since(start),
	}
}
