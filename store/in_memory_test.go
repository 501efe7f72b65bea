package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convomesh/convomesh/core"
)

func TestInMemoryStore_ConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.GetByExternalID(ctx, "ext-1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	conv := core.NewConversation("ext-1", "user-1")
	require.NoError(t, s.Create(ctx, conv))

	got, err := s.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, core.StatusNew, got.OrchestratorStatus)

	require.NoError(t, s.UpdateHandler(ctx, conv.ID, "h-1", "support"))
	require.NoError(t, s.UpdateOrchestration(ctx, conv.ID, core.StatusFindingDemand, core.OwnerDemandFinder, false))
	require.NoError(t, s.UpdateInteractions(ctx, conv.ID, 4))

	got, err = s.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "support", got.CurrentHandlerName)
	assert.Equal(t, core.StatusFindingDemand, got.OrchestratorStatus)
	assert.Equal(t, core.OwnerDemandFinder, got.Owner)
	assert.Equal(t, 4, got.InteractionCount)

	require.NoError(t, s.Close(ctx, conv.ID, core.CloseReasonResolved))
	got, err = s.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusClosed, got.OrchestratorStatus)
	assert.Equal(t, core.OwnerNone, got.Owner)
	assert.True(t, got.Closed())
	assert.Equal(t, core.CloseReasonResolved, got.ClosedReason)
}

func TestInMemoryStore_GetByExternalIDReturnsClone(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.Create(ctx, core.NewConversation("ext-1", "user-1")))

	got, err := s.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	got.OrchestratorStatus = core.StatusEscalated

	again, err := s.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusNew, again.OrchestratorStatus)
}

func TestInMemoryStore_ListCandidates(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	now := time.Now()
	past := now.Add(-time.Hour)
	capacity := 1

	require.NoError(t, s.PutRule(ctx, &core.RoutingRule{ID: 3, IsActive: true}))
	require.NoError(t, s.PutRule(ctx, &core.RoutingRule{ID: 1, IsActive: true}))
	require.NoError(t, s.PutRule(ctx, &core.RoutingRule{ID: 2, IsActive: false}))
	require.NoError(t, s.PutRule(ctx, &core.RoutingRule{ID: 4, IsActive: true, ExpiresAt: &past}))
	require.NoError(t, s.PutRule(ctx, &core.RoutingRule{ID: 5, IsActive: true, AllocateCount: &capacity, AllocatedCount: 1}))

	candidates, err := s.ListCandidates(ctx, now)
	require.NoError(t, err)
	require.Len(t, candidates, 2, "inactive, expired and exhausted rules are filtered")
	assert.Equal(t, int64(1), candidates[0].ID, "oldest rule first")
	assert.Equal(t, int64(3), candidates[1].ID)
}

func TestInMemoryStore_PutRuleAssignsIDs(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	first := &core.RoutingRule{IsActive: true}
	second := &core.RoutingRule{IsActive: true}
	require.NoError(t, s.PutRule(ctx, first))
	require.NoError(t, s.PutRule(ctx, second))
	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)
}

func TestInMemoryStore_ConsumeCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	capacity := 2
	require.NoError(t, s.PutRule(ctx, &core.RoutingRule{ID: 1, IsActive: true, AllocateCount: &capacity}))

	res, err := s.ConsumeCapacity(ctx, 1)
	require.NoError(t, err)
	assert.True(t, res.Allocated)
	assert.Equal(t, 1, res.AllocatedCount)
	assert.False(t, res.Exhausted)

	res, err = s.ConsumeCapacity(ctx, 1)
	require.NoError(t, err)
	assert.True(t, res.Allocated)
	assert.Equal(t, 2, res.AllocatedCount)
	assert.True(t, res.Exhausted, "hitting the cap reports exhaustion")

	res, err = s.ConsumeCapacity(ctx, 1)
	require.NoError(t, err)
	assert.False(t, res.Allocated, "over-cap consume must be refused")

	rule, err := s.GetRule(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, rule.AllocatedCount)
}

func TestInMemoryStore_ConsumeCapacityUnlimited(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.PutRule(ctx, &core.RoutingRule{ID: 1, IsActive: true}))

	for i := 1; i <= 10; i++ {
		res, err := s.ConsumeCapacity(ctx, 1)
		require.NoError(t, err)
		assert.True(t, res.Allocated)
		assert.Equal(t, i, res.AllocatedCount)
		assert.False(t, res.Exhausted)
	}
}

// Many goroutines race one capacity-limited rule; exactly cap allocations
// may succeed and the counter must never pass the cap.
func TestInMemoryStore_ConsumeCapacityConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	capacity := 5
	require.NoError(t, s.PutRule(ctx, &core.RoutingRule{ID: 1, IsActive: true, AllocateCount: &capacity}))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		allocated int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.ConsumeCapacity(ctx, 1)
			require.NoError(t, err)
			if res.Allocated {
				mu.Lock()
				allocated++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, allocated)
	rule, err := s.GetRule(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, capacity, rule.AllocatedCount)
}

func TestInMemoryStore_ConsumeCapacityInactive(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.PutRule(ctx, &core.RoutingRule{ID: 1, IsActive: true}))
	require.NoError(t, s.Deactivate(ctx, 1))

	res, err := s.ConsumeCapacity(ctx, 1)
	require.NoError(t, err)
	assert.False(t, res.Allocated)
}

func TestInMemoryStore_ProcessedLedger(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	now := time.Now()

	_, err := s.GetProcessed(ctx, "ext-1", core.RuleTypeMatchText)
	assert.ErrorIs(t, err, core.ErrNotFound)

	entry := core.ProcessedEvent{
		ExternalConversationID: "ext-1",
		RuleType:               core.RuleTypeMatchText,
		RuleID:                 7,
		ProcessedAt:            now,
		ExpiresAt:              now.Add(time.Hour),
	}
	require.NoError(t, s.UpsertProcessed(ctx, entry))

	got, err := s.GetProcessed(ctx, "ext-1", core.RuleTypeMatchText)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.RuleID)

	// Re-marking the same pair replaces the row.
	entry.RuleID = 9
	require.NoError(t, s.UpsertProcessed(ctx, entry))
	got, err = s.GetProcessed(ctx, "ext-1", core.RuleTypeMatchText)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.RuleID)

	deleted, err := s.DeleteExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	_, err = s.GetProcessed(ctx, "ext-1", core.RuleTypeMatchText)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
