package reasoner

import (
	"context"
	"sync"

	"github.com/convomesh/convomesh/core"
)

// Outcome is the parsed decision category returned by a reasoning run.
type Outcome string

const (
	// OutcomeNeedsClarification means a clarifying question must be asked.
	OutcomeNeedsClarification Outcome = "needs_clarification"
	// OutcomeConfirmed means the demand is understood well enough to proceed.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeProposed means a candidate solution is being offered but the
	// demand is not yet resolved.
	OutcomeProposed Outcome = "proposed"
	// OutcomeResolved means a known solution fully resolves the demand.
	OutcomeResolved Outcome = "resolved"
	// OutcomeClose means the customer is done and the conversation may close.
	OutcomeClose Outcome = "close"
	// OutcomeNewDemand means the customer raised a fresh need after
	// resolution.
	OutcomeNewDemand Outcome = "new_demand"
	// OutcomeContinue means no state change: keep the conversation where it is.
	OutcomeContinue Outcome = "continue"
	// OutcomeEscalate means the reasoner declared it cannot proceed.
	OutcomeEscalate Outcome = "escalate"
)

// Request is the structured context assembled by a conversation agent and
// serialized to the reasoning service. The agents own what goes in here; the
// reasoner implementations own only the transport.
type Request struct {
	AgentKey               string                   `json:"agent_key"`
	ExternalConversationID string                   `json:"external_conversation_id"`
	Summary                string                   `json:"summary,omitempty"`
	Classification         string                   `json:"classification,omitempty"`
	Demand                 string                   `json:"demand,omitempty"`
	Message                string                   `json:"message"`
	History                []core.TranscriptMessage `json:"history,omitempty"`
	Candidates             []core.SolutionCandidate `json:"candidates,omitempty"`
}

// Decision is the structured result of a reasoning run. Message carries the
// suggested customer-facing text when the outcome implies one.
type Decision struct {
	Outcome            Outcome `json:"outcome"`
	Demand             string  `json:"demand,omitempty"`
	MatchedCandidateID string  `json:"matched_candidate_id,omitempty"`
	Confidence         float64 `json:"confidence,omitempty"`
	Message            string  `json:"message,omitempty"`
	SuggestionID       string  `json:"suggestion_id,omitempty"`
}

// Info contains metadata about a reasoner implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Reasoner is the external reasoning-agent collaborator consumed by the
// conversation agents. Run blocks until the decision is available, the
// context is cancelled, or the request-level timeout fires; a timeout is
// treated by callers as an agent failure.
type Reasoner interface {
	Run(ctx context.Context, req Request) (Decision, error)

	// Info returns information about the reasoner implementation.
	Info() Info
}

// MockReasoner is a lightweight in-memory Reasoner useful for tests and
// examples. Decisions are scripted per agent key and consumed in order; when
// a script is exhausted the configured default decision is returned.
type MockReasoner struct {
	mu       sync.Mutex
	info     Info
	scripts  map[string][]Decision
	fallback Decision
	calls    []Request
}

// NewMockReasoner constructs a MockReasoner whose fallback decision is
// OutcomeContinue.
func NewMockReasoner() *MockReasoner {
	return &MockReasoner{
		info:     Info{Name: "mock", Provider: "mock"},
		scripts:  make(map[string][]Decision),
		fallback: Decision{Outcome: OutcomeContinue},
	}
}

// Script appends scripted decisions for an agent key, consumed FIFO.
func (m *MockReasoner) Script(agentKey string, decisions ...Decision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[agentKey] = append(m.scripts[agentKey], decisions...)
}

// SetFallback replaces the decision returned once a script is exhausted.
func (m *MockReasoner) SetFallback(d Decision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = d
}

// Calls returns a copy of every request seen so far, in order.
func (m *MockReasoner) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Run implements Reasoner.
func (m *MockReasoner) Run(ctx context.Context, req Request) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	queue := m.scripts[req.AgentKey]
	if len(queue) == 0 {
		return m.fallback, nil
	}
	d := queue[0]
	m.scripts[req.AgentKey] = queue[1:]
	return d, nil
}

// Info implements Reasoner.
func (m *MockReasoner) Info() Info { return m.info }
