package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/executor"
	"github.com/convomesh/convomesh/store"
)

type failingConversationStore struct {
	core.ConversationStore
}

func (failingConversationStore) UpdateOrchestration(context.Context, int64, core.OrchestratorStatus, core.Owner, bool) error {
	return errors.New("store unavailable")
}

func newEscalationContext(t *testing.T, mem *store.InMemoryStore, status core.OrchestratorStatus, owner core.Owner) *core.OrchestratorContext {
	t.Helper()
	conv := core.NewConversation("ext-1", "user-1")
	conv.OrchestratorStatus = status
	conv.Owner = owner
	require.NoError(t, mem.Create(context.Background(), conv))
	return core.NewOrchestratorContext(context.Background(), conv, core.NewMessageEvent("ext-1", "user-1", "hi"), nil)
}

func TestEscalator_TransitionsAndHandsOff(t *testing.T) {
	mem := store.NewInMemoryStore()
	messenger := &capturingMessenger{}
	handoff := &capturingHandoff{}
	cases := &capturingCaseMarker{}
	esc := NewEscalator(executor.New(mem, messenger, handoff), func(o *EscalatorOptions) { o.Cases = cases })
	octx := newEscalationContext(t, mem, core.StatusFindingDemand, core.OwnerDemandFinder)

	esc.EscalateConversation(octx, "stuck", EscalateOptions{
		SendApology:    true,
		ApologyMessage: "sorry about this",
		CaseStatus:     core.CaseStatusError,
	})

	conv, err := mem.GetByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusEscalated, conv.OrchestratorStatus)
	assert.Equal(t, core.OwnerNone, conv.Owner)
	assert.False(t, conv.WaitingForCustomer)

	require.Len(t, messenger.requests, 1)
	assert.Equal(t, "sorry about this", messenger.requests[0].Message)
	require.Len(t, handoff.requests, 1)
	assert.Equal(t, "stuck", handoff.requests[0].Reason)
	assert.Equal(t, core.CaseStatusError, cases.statuses[octx.ConversationID])
}

func TestEscalator_SilentEscalationSkipsApology(t *testing.T) {
	mem := store.NewInMemoryStore()
	messenger := &capturingMessenger{}
	handoff := &capturingHandoff{}
	esc := NewEscalator(executor.New(mem, messenger, handoff))
	octx := newEscalationContext(t, mem, core.StatusFindingDemand, core.OwnerDemandFinder)

	esc.EscalateConversation(octx, "internal error", EscalateOptions{})

	assert.Empty(t, messenger.requests)
	require.Len(t, handoff.requests, 1, "the handoff itself always happens")
}

func TestEscalator_AlreadyEscalatedIsNoOp(t *testing.T) {
	mem := store.NewInMemoryStore()
	messenger := &capturingMessenger{}
	handoff := &capturingHandoff{}
	esc := NewEscalator(executor.New(mem, messenger, handoff))
	octx := newEscalationContext(t, mem, core.StatusEscalated, core.OwnerNone)

	esc.EscalateConversation(octx, "again", EscalateOptions{SendApology: true})

	assert.Empty(t, messenger.requests)
	assert.Empty(t, handoff.requests)
}

func TestEscalator_ClosedConversationIsNoOp(t *testing.T) {
	mem := store.NewInMemoryStore()
	messenger := &capturingMessenger{}
	handoff := &capturingHandoff{}
	esc := NewEscalator(executor.New(mem, messenger, handoff))
	octx := newEscalationContext(t, mem, core.StatusClosed, core.OwnerNone)

	esc.EscalateConversation(octx, "late failure", EscalateOptions{SendApology: true})

	assert.Empty(t, messenger.requests)
	assert.Empty(t, handoff.requests)

	conv, err := mem.GetByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusClosed, conv.OrchestratorStatus, "an escalation never overwrites a close")
}

func TestEscalator_ToleratesStateWriteFailure(t *testing.T) {
	mem := store.NewInMemoryStore()
	messenger := &capturingMessenger{}
	handoff := &capturingHandoff{}
	esc := NewEscalator(executor.New(failingConversationStore{mem}, messenger, handoff))
	octx := newEscalationContext(t, mem, core.StatusFindingDemand, core.OwnerDemandFinder)

	assert.NotPanics(t, func() {
		esc.EscalateConversation(octx, "stuck", EscalateOptions{})
	})
	// The conversation stays in its last good state.
	conv, err := mem.GetByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusFindingDemand, conv.OrchestratorStatus)
}

func TestEscalator_HandleAgentError(t *testing.T) {
	mem := store.NewInMemoryStore()
	messenger := &capturingMessenger{}
	handoff := &capturingHandoff{}
	cases := &capturingCaseMarker{}
	esc := NewEscalator(executor.New(mem, messenger, handoff), func(o *EscalatorOptions) { o.Cases = cases })
	octx := newEscalationContext(t, mem, core.StatusFindingDemand, core.OwnerDemandFinder)

	esc.HandleAgentError(octx, "demand_finder", errors.New("boom"))

	conv, err := mem.GetByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusEscalated, conv.OrchestratorStatus)
	require.Len(t, messenger.requests, 1, "agent errors are customer-visible escalations")
	assert.Equal(t, core.CaseStatusError, cases.statuses[octx.ConversationID])
}
