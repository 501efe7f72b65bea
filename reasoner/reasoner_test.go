package reasoner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockReasoner_ScriptedDecisions(t *testing.T) {
	ctx := context.Background()
	mock := NewMockReasoner()
	mock.Script("demand_finder",
		Decision{Outcome: OutcomeNeedsClarification, Message: "which device?"},
		Decision{Outcome: OutcomeConfirmed, Confidence: 0.9},
	)

	d, err := mock.Run(ctx, Request{AgentKey: "demand_finder"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNeedsClarification, d.Outcome)

	d, err = mock.Run(ctx, Request{AgentKey: "demand_finder"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, d.Outcome)

	// Script exhausted, the fallback applies.
	d, err = mock.Run(ctx, Request{AgentKey: "demand_finder"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, d.Outcome)
}

func TestMockReasoner_ScriptsAreKeyedByAgent(t *testing.T) {
	ctx := context.Background()
	mock := NewMockReasoner()
	mock.Script("closer", Decision{Outcome: OutcomeClose})

	d, err := mock.Run(ctx, Request{AgentKey: "solution_provider"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, d.Outcome, "other keys fall back")

	d, err = mock.Run(ctx, Request{AgentKey: "closer"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeClose, d.Outcome)
}

func TestMockReasoner_SetFallback(t *testing.T) {
	ctx := context.Background()
	mock := NewMockReasoner()
	mock.SetFallback(Decision{Outcome: OutcomeEscalate})

	d, err := mock.Run(ctx, Request{AgentKey: "anything"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEscalate, d.Outcome)
}

func TestMockReasoner_RecordsCalls(t *testing.T) {
	ctx := context.Background()
	mock := NewMockReasoner()

	_, err := mock.Run(ctx, Request{AgentKey: "a", Message: "one"})
	require.NoError(t, err)
	_, err = mock.Run(ctx, Request{AgentKey: "b", Message: "two"})
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "one", calls[0].Message)
	assert.Equal(t, "two", calls[1].Message)
}

func TestMockReasoner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := NewMockReasoner()

	_, err := mock.Run(ctx, Request{AgentKey: "a"})
	assert.Error(t, err)
}
