package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/reasoner"
)

func TestCloser_ClosesConversation(t *testing.T) {
	mock := reasoner.NewMockReasoner()
	mock.Script(CloserName, reasoner.Decision{
		Outcome: reasoner.OutcomeClose,
		Message: "happy to help, closing now",
	})
	closer := NewCloser(mock)
	octx := newAgentContext(core.StatusCompleted, core.OwnerCloser)

	result := closer.Process(octx)
	assert.True(t, result.Success)
	assert.True(t, result.ConversationClosed)
	assert.True(t, result.MessageSent)
}

func TestCloser_NewDemandResetsFindings(t *testing.T) {
	mock := reasoner.NewMockReasoner()
	mock.Script(CloserName, reasoner.Decision{
		Outcome: reasoner.OutcomeNewDemand,
		Demand:  "now the wifi is down",
	})
	closer := NewCloser(mock)
	octx := newAgentContext(core.StatusCompleted, core.OwnerCloser)
	octx.Findings = core.Findings{
		Summary:     "old summary",
		Demand:      "firmware update fails",
		RootCauseID: "kb-1",
		SolutionID:  "sol-1",
	}

	result := closer.Process(octx)
	assert.True(t, result.Success)
	assert.True(t, result.NewDemand)
	assert.Equal(t, "now the wifi is down", octx.Findings.Demand)
	assert.Empty(t, octx.Findings.RootCauseID, "resolved findings no longer apply")
	assert.Empty(t, octx.Findings.SolutionID)
}

func TestCloser_ContinueAsksFollowUp(t *testing.T) {
	mock := reasoner.NewMockReasoner()
	mock.Script(CloserName, reasoner.Decision{
		Outcome: reasoner.OutcomeContinue,
		Message: "anything else I can help with?",
	})
	closer := NewCloser(mock)
	octx := newAgentContext(core.StatusCompleted, core.OwnerCloser)

	result := closer.Process(octx)
	assert.True(t, result.Success)
	assert.False(t, result.ConversationClosed)
	assert.False(t, result.NewDemand)
	require.Len(t, octx.Actions(), 1)
}

func TestCloser_ReasonerFailure(t *testing.T) {
	closer := NewCloser(failingReasoner{})
	octx := newAgentContext(core.StatusCompleted, core.OwnerCloser)

	result := closer.Process(octx)
	assert.False(t, result.Success)
}
