package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/reasoner"
)

type failingReasoner struct{}

func (failingReasoner) Run(context.Context, reasoner.Request) (reasoner.Decision, error) {
	return reasoner.Decision{}, errors.New("reasoner unavailable")
}

func (failingReasoner) Info() reasoner.Info { return reasoner.Info{Name: "failing", Provider: "mock"} }

func newAgentContext(status core.OrchestratorStatus, owner core.Owner) *core.OrchestratorContext {
	conv := core.NewConversation("ext-1", "user-1")
	conv.OrchestratorStatus = status
	conv.Owner = owner
	octx := core.NewOrchestratorContext(context.Background(), conv, core.NewMessageEvent("ext-1", "user-1", "my router is broken"), nil)
	octx.Interactions = core.NewInteractionLimiter(5, 0)
	return octx
}

func TestDemandFinder_ConfirmsAboveThreshold(t *testing.T) {
	mock := reasoner.NewMockReasoner()
	mock.Script(DemandFinderName, reasoner.Decision{
		Outcome:            reasoner.OutcomeConfirmed,
		Demand:             "router firmware fails",
		MatchedCandidateID: "kb-1",
		Confidence:         0.9,
	})
	finder := NewDemandFinder(mock)
	octx := newAgentContext(core.StatusFindingDemand, core.OwnerDemandFinder)

	result := finder.Process(octx)
	assert.True(t, result.Success)
	assert.True(t, result.DemandConfirmed)
	assert.Equal(t, "router firmware fails", octx.Findings.Demand)
	assert.Equal(t, "kb-1", octx.Findings.RootCauseID)
}

func TestDemandFinder_DefaultConstruction(t *testing.T) {
	mock := reasoner.NewMockReasoner()
	mock.Script(DemandFinderName, reasoner.Decision{Outcome: reasoner.OutcomeContinue})

	// No options at all: the logger and timeout defaults must survive.
	finder := NewDemandFinder(mock)
	require.NotNil(t, finder.logger)
	assert.Equal(t, DefaultCallTimeout, finder.callTimeout)

	result := finder.Process(newAgentContext(core.StatusFindingDemand, core.OwnerDemandFinder))
	assert.True(t, result.Success)

	// A partial override must not clobber the remaining defaults.
	finder = NewDemandFinder(failingReasoner{}, func(o *DemandFinderOptions) {
		o.MatchThreshold = 0.9
	})
	require.NotNil(t, finder.logger)
	assert.Equal(t, DefaultCallTimeout, finder.callTimeout)
	assert.Equal(t, 0.9, finder.matchThreshold)

	result = finder.Process(newAgentContext(core.StatusFindingDemand, core.OwnerDemandFinder))
	assert.False(t, result.Success)
}

func TestDemandFinder_BelowThresholdAsksClarification(t *testing.T) {
	mock := reasoner.NewMockReasoner()
	mock.Script(DemandFinderName, reasoner.Decision{
		Outcome:            reasoner.OutcomeConfirmed,
		MatchedCandidateID: "kb-1",
		Confidence:         0.4,
		Message:            "can you tell me more?",
	})
	finder := NewDemandFinder(mock)
	octx := newAgentContext(core.StatusFindingDemand, core.OwnerDemandFinder)

	result := finder.Process(octx)
	assert.True(t, result.Success)
	assert.False(t, result.DemandConfirmed)
	assert.True(t, result.NeedsClarification)
	assert.True(t, result.MessageSent)
	require.Len(t, octx.Actions(), 1)
}

func TestDemandFinder_NeedsClarificationQueuesMessage(t *testing.T) {
	mock := reasoner.NewMockReasoner()
	mock.Script(DemandFinderName, reasoner.Decision{
		Outcome:      reasoner.OutcomeNeedsClarification,
		Message:      "which device?",
		SuggestionID: "sug-1",
	})
	finder := NewDemandFinder(mock)
	octx := newAgentContext(core.StatusFindingDemand, core.OwnerDemandFinder)

	result := finder.Process(octx)
	assert.True(t, result.Success)
	assert.True(t, result.NeedsClarification)
	assert.Equal(t, "which device?", result.SuggestedResponse)
	assert.Equal(t, "sug-1", result.SuggestionID)

	actions := octx.Actions()
	require.Len(t, actions, 1)
	send, ok := actions[0].(core.SendMessage)
	require.True(t, ok)
	assert.Equal(t, "which device?", send.Preview)
	assert.Equal(t, octx.Event.ID, send.InResponseTo)
}

func TestDemandFinder_ReasonerFailure(t *testing.T) {
	finder := NewDemandFinder(failingReasoner{})
	octx := newAgentContext(core.StatusFindingDemand, core.OwnerDemandFinder)

	result := finder.Process(octx)
	assert.False(t, result.Success)
	assert.Error(t, result.Err)
}

func TestDemandFinder_EscalateOutcomeFails(t *testing.T) {
	mock := reasoner.NewMockReasoner()
	mock.Script(DemandFinderName, reasoner.Decision{Outcome: reasoner.OutcomeEscalate})
	finder := NewDemandFinder(mock)
	octx := newAgentContext(core.StatusFindingDemand, core.OwnerDemandFinder)

	result := finder.Process(octx)
	assert.False(t, result.Success)
}

func TestDemandFinder_InteractionBudget(t *testing.T) {
	mock := reasoner.NewMockReasoner()
	finder := NewDemandFinder(mock)
	octx := newAgentContext(core.StatusFindingDemand, core.OwnerDemandFinder)
	octx.Interactions = core.NewInteractionLimiter(1, 1)

	result := finder.Process(octx)
	assert.True(t, result.Success)
	assert.True(t, result.MaxInteractionsReached)
	assert.Empty(t, mock.Calls(), "exhausted budget must not reach the reasoner")
}

func TestDemandFinder_RequestCarriesContext(t *testing.T) {
	mock := reasoner.NewMockReasoner()
	mock.Script(DemandFinderName, reasoner.Decision{Outcome: reasoner.OutcomeConfirmed, Confidence: 0.9, MatchedCandidateID: "kb-1"})
	finder := NewDemandFinder(mock)
	octx := newAgentContext(core.StatusFindingDemand, core.OwnerDemandFinder)
	octx.Findings.Summary = "customer struggling with firmware"
	octx.History = []core.TranscriptMessage{{Role: "user", Text: "earlier message"}}

	finder.Process(octx)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, DemandFinderName, calls[0].AgentKey)
	assert.Equal(t, "customer struggling with firmware", calls[0].Summary)
	assert.Equal(t, "my router is broken", calls[0].Message)
	require.Len(t, calls[0].History, 1)
}
