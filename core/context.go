package core

import (
	"context"
	"time"

	"github.com/convomesh/convomesh/logging"
)

// TranscriptMessage is one entry of the recent conversation history handed to
// the reasoning collaborator.
type TranscriptMessage struct {
	Role string    `json:"role"` // "customer", "agent" or "human"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// SolutionCandidate is one candidate root-cause/solution record surfaced by a
// prior search stage, scored against the customer's demand.
type SolutionCandidate struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Findings accumulates what earlier stages established about the
// conversation: summary and classification from the fan-out processors, the
// demand description once found, candidate search results and the resolved
// root-cause/solution identifiers.
type Findings struct {
	Summary        string              `json:"summary,omitempty"`
	Classification string              `json:"classification,omitempty"`
	Demand         string              `json:"demand,omitempty"`
	Candidates     []SolutionCandidate `json:"candidates,omitempty"`
	RootCauseID    string              `json:"root_cause_id,omitempty"`
	SolutionID     string              `json:"solution_id,omitempty"`
}

// OrchestratorContext carries the working state for processing exactly one
// inbound event. It is exclusively owned by the single dispatch call handling
// that event and is never shared across concurrent invocations; none of its
// methods take locks.
//
// CurrentStatus and CurrentOwner are a snapshot of the conversation at
// dispatch time; the ActionExecutor updates them after a successful state
// write so that later logic within the same dispatch observes the new state.
type OrchestratorContext struct {
	Context                context.Context
	Event                  InboundEvent
	ConversationID         int64
	ExternalConversationID string
	CurrentStatus          OrchestratorStatus
	CurrentOwner           Owner
	WaitingForCustomer     bool
	Findings               Findings
	History                []TranscriptMessage
	Interactions           *InteractionLimiter
	Logger                 logging.Logger

	actions []Action
}

// NewOrchestratorContext snapshots a conversation into a fresh per-event
// context. A nil logger is replaced with a NoOpLogger.
func NewOrchestratorContext(
	ctx context.Context,
	conv *Conversation,
	ev InboundEvent,
	logger logging.Logger,
) *OrchestratorContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &OrchestratorContext{
		Context:                ctx,
		Event:                  ev,
		ConversationID:         conv.ID,
		ExternalConversationID: conv.ExternalConversationID,
		CurrentStatus:          conv.OrchestratorStatus,
		CurrentOwner:           conv.Owner,
		WaitingForCustomer:     conv.WaitingForCustomer,
		Logger:                 logger,
	}
}

// Done proxies the embedded context's cancellation channel.
func (c *OrchestratorContext) Done() <-chan struct{} { return c.Context.Done() }

// Err proxies the embedded context's error.
func (c *OrchestratorContext) Err() error { return c.Context.Err() }

// AddAction queues a side effect for the ActionExecutor.
func (c *OrchestratorContext) AddAction(a Action) { c.actions = append(c.actions, a) }

// Actions returns the queued actions in insertion order.
func (c *OrchestratorContext) Actions() []Action { return c.actions }

// DrainActions returns the queued actions and clears the queue.
func (c *OrchestratorContext) DrainActions() []Action {
	out := c.actions
	c.actions = nil
	return out
}
