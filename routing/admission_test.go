package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/internal/testutil"
	"github.com/convomesh/convomesh/store"
)

type staticResolver struct{}

func (staticResolver) ResolveTarget(_ context.Context, name string) (*core.HandlerRef, error) {
	return &core.HandlerRef{ID: "id-" + name, Name: name}, nil
}

// flakyRuleStore makes ConsumeCapacity fail or refuse for chosen rule ids.
type flakyRuleStore struct {
	core.RuleStore
	failIDs   map[int64]bool
	refuseIDs map[int64]bool
}

func (s *flakyRuleStore) ConsumeCapacity(ctx context.Context, ruleID int64) (core.ConsumeResult, error) {
	if s.failIDs[ruleID] {
		return core.ConsumeResult{}, errors.New("store unavailable")
	}
	if s.refuseIDs[ruleID] {
		return core.ConsumeResult{Allocated: false}, nil
	}
	return s.RuleStore.ConsumeCapacity(ctx, ruleID)
}

func newAdmissionFixture(t *testing.T, rules []core.RoutingRule, optFns ...func(o *AdmissionControllerOptions)) (*store.InMemoryStore, *AdmissionController) {
	t.Helper()
	mem := store.NewInMemoryStore()
	ctx := context.Background()
	for i := range rules {
		require.NoError(t, mem.PutRule(ctx, &rules[i]))
	}
	tracker := NewIdempotencyTracker(mem)
	ctrl := NewAdmissionController(mem, mem, tracker, staticResolver{}, optFns...)
	return mem, ctrl
}

func newAdmittedConversation(t *testing.T, mem *store.InMemoryStore, extID string) *core.Conversation {
	t.Helper()
	conv := testutil.NewConversationBuilder(extID).Build()
	require.NoError(t, mem.Create(context.Background(), conv))
	return conv
}

func TestAdmissionController_RoutesFirstMatch(t *testing.T) {
	ctx := context.Background()
	mem, ctrl := newAdmissionFixture(t, []core.RoutingRule{
		testutil.NewRuleBuilder().ID(1).MatchText("billing").Target("billing-team").Build(),
		testutil.NewRuleBuilder().ID(2).MatchText("help").Target("late-team").Build(),
		testutil.NewRuleBuilder().ID(3).MatchText("help").Target("early-team").Build(),
	})
	conv := newAdmittedConversation(t, mem, "ext-1")

	decision, err := ctrl.Admit(ctx, conv, core.NewMessageEvent("ext-1", "user-1", "  HELP "))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRouted, decision.Outcome)
	assert.Equal(t, int64(2), decision.RuleID, "oldest matching rule wins")
	assert.Equal(t, "late-team", decision.Target)
	require.NotNil(t, decision.Handler)
	assert.Equal(t, "id-late-team", decision.Handler.ID)

	got, err := mem.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "late-team", got.CurrentHandlerName)
	assert.Equal(t, "late-team", conv.CurrentHandlerName, "caller's snapshot is updated")
}

func TestAdmissionController_AuthFilter(t *testing.T) {
	ctx := context.Background()
	mem, ctrl := newAdmissionFixture(t, []core.RoutingRule{
		testutil.NewRuleBuilder().ID(1).MatchText("help").Target("vip").AuthFilter(core.AuthFilterAuthenticated).Build(),
		testutil.NewRuleBuilder().ID(2).MatchText("help").Target("anyone").Build(),
	})
	conv := newAdmittedConversation(t, mem, "ext-1")

	ev := core.NewMessageEvent("ext-1", "user-1", "help")
	ev.Auth = core.AuthUnauthenticated
	decision, err := ctrl.Admit(ctx, conv, ev)
	require.NoError(t, err)
	assert.Equal(t, int64(2), decision.RuleID, "auth-filtered rule is skipped for anonymous users")
}

func TestAdmissionController_SecondEventShortCircuits(t *testing.T) {
	ctx := context.Background()
	mem, ctrl := newAdmissionFixture(t, []core.RoutingRule{
		testutil.NewRuleBuilder().ID(1).MatchText("help").Target("support").Build(),
	}, func(o *AdmissionControllerOptions) { o.DefaultTarget = "fallback" })
	conv := newAdmittedConversation(t, mem, "ext-1")

	first, err := ctrl.Admit(ctx, conv, core.NewMessageEvent("ext-1", "user-1", "help"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRouted, first.Outcome)

	second, err := ctrl.Admit(ctx, conv, core.NewMessageEvent("ext-1", "user-1", "help"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, second.Outcome)

	rule, err := mem.GetRule(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rule.AllocatedCount, "re-evaluation must not re-consume capacity")

	got, err := mem.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "support", got.CurrentHandlerName, "handler must not be reassigned to the default")
}

func TestAdmissionController_ExhaustionDeactivatesRule(t *testing.T) {
	ctx := context.Background()
	mem, ctrl := newAdmissionFixture(t, []core.RoutingRule{
		testutil.NewRuleBuilder().ID(1).MatchText("help").Target("support").Capacity(1).Build(),
	})
	conv := newAdmittedConversation(t, mem, "ext-1")

	decision, err := ctrl.Admit(ctx, conv, core.NewMessageEvent("ext-1", "user-1", "help"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRouted, decision.Outcome)

	rule, err := mem.GetRule(ctx, 1)
	require.NoError(t, err)
	assert.False(t, rule.IsActive, "exhausted rule gets deactivated")
	assert.Equal(t, 1, rule.AllocatedCount)
}

func TestAdmissionController_RaceLossFallsThrough(t *testing.T) {
	ctx := context.Background()
	mem := store.NewInMemoryStore()
	require.NoError(t, mem.PutRule(ctx, &core.RoutingRule{
		ID: 1, RuleType: core.RuleTypeMatchText, Target: "first",
		MatchText: "help", AuthFilter: core.AuthFilterAll, IsActive: true,
	}))
	require.NoError(t, mem.PutRule(ctx, &core.RoutingRule{
		ID: 2, RuleType: core.RuleTypeAllocateNextN, Target: "second",
		MatchText: "help", AuthFilter: core.AuthFilterAll, IsActive: true,
	}))
	flaky := &flakyRuleStore{RuleStore: mem, refuseIDs: map[int64]bool{1: true}}
	ctrl := NewAdmissionController(flaky, mem, NewIdempotencyTracker(mem), staticResolver{})
	conv := newAdmittedConversation(t, mem, "ext-1")

	decision, err := ctrl.Admit(ctx, conv, core.NewMessageEvent("ext-1", "user-1", "help"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRouted, decision.Outcome)
	assert.Equal(t, int64(2), decision.RuleID, "a lost increment moves on to the next rule")
}

func TestAdmissionController_StoreErrorFallsThrough(t *testing.T) {
	ctx := context.Background()
	mem := store.NewInMemoryStore()
	require.NoError(t, mem.PutRule(ctx, &core.RoutingRule{
		ID: 1, RuleType: core.RuleTypeMatchText, Target: "first",
		MatchText: "help", AuthFilter: core.AuthFilterAll, IsActive: true,
	}))
	require.NoError(t, mem.PutRule(ctx, &core.RoutingRule{
		ID: 2, RuleType: core.RuleTypeAllocateNextN, Target: "second",
		MatchText: "help", AuthFilter: core.AuthFilterAll, IsActive: true,
	}))
	flaky := &flakyRuleStore{RuleStore: mem, failIDs: map[int64]bool{1: true}}
	ctrl := NewAdmissionController(flaky, mem, NewIdempotencyTracker(mem), staticResolver{})
	conv := newAdmittedConversation(t, mem, "ext-1")

	decision, err := ctrl.Admit(ctx, conv, core.NewMessageEvent("ext-1", "user-1", "help"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRouted, decision.Outcome)
	assert.Equal(t, int64(2), decision.RuleID, "a consume error is not a hard failure for the event")
}

func TestAdmissionController_DefaultTarget(t *testing.T) {
	ctx := context.Background()
	mem, ctrl := newAdmissionFixture(t, nil, func(o *AdmissionControllerOptions) {
		o.DefaultTarget = "general"
	})
	conv := newAdmittedConversation(t, mem, "ext-1")

	decision, err := ctrl.Admit(ctx, conv, core.NewMessageEvent("ext-1", "user-1", "anything"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDefaulted, decision.Outcome)
	assert.Equal(t, "general", decision.Target)

	got, err := mem.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "general", got.CurrentHandlerName)
}

func TestAdmissionController_NoDecision(t *testing.T) {
	ctx := context.Background()
	mem, ctrl := newAdmissionFixture(t, []core.RoutingRule{
		testutil.NewRuleBuilder().ID(1).MatchText("billing").Target("billing-team").Build(),
	})
	conv := newAdmittedConversation(t, mem, "ext-1")

	decision, err := ctrl.Admit(ctx, conv, core.NewMessageEvent("ext-1", "user-1", "something else"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoDecision, decision.Outcome)

	got, err := mem.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Empty(t, got.CurrentHandlerName)
}

// Many conversations race one capacity-limited rule concurrently; exactly cap
// of them may be routed and the counter must end exactly at the cap.
func TestAdmissionController_ConcurrentCapacity(t *testing.T) {
	ctx := context.Background()
	capacity := 3
	mem, ctrl := newAdmissionFixture(t, []core.RoutingRule{
		testutil.NewRuleBuilder().ID(1).Type(core.RuleTypeAllocateNextN).MatchText("promo").Target("beta").Capacity(capacity).Build(),
	}, func(o *AdmissionControllerOptions) { o.DefaultTarget = "general" })

	const conversations = 20
	convs := make([]*core.Conversation, conversations)
	for i := 0; i < conversations; i++ {
		convs[i] = newAdmittedConversation(t, mem, "ext-"+string(rune('a'+i)))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		routed   int
		defaults int
	)
	for i := 0; i < conversations; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := core.NewMessageEvent(convs[i].ExternalConversationID, "user", "promo")
			decision, err := ctrl.Admit(ctx, convs[i], ev)
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			switch decision.Outcome {
			case OutcomeRouted:
				routed++
			case OutcomeDefaulted:
				defaults++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, routed)
	assert.Equal(t, conversations-capacity, defaults)

	rule, err := mem.GetRule(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, capacity, rule.AllocatedCount)
	assert.False(t, rule.IsActive)
}

func TestAdmissionController_ExpiredLedgerAllowsReEvaluation(t *testing.T) {
	ctx := context.Background()
	mem := store.NewInMemoryStore()
	rule := testutil.NewRuleBuilder().ID(1).MatchText("help").Target("support").Build()
	require.NoError(t, mem.PutRule(ctx, &rule))

	now := time.Now()
	clock := now
	tracker := NewIdempotencyTracker(mem, func(o *TrackerOptions) {
		o.TTL = time.Hour
		o.Now = func() time.Time { return clock }
	})
	ctrl := NewAdmissionController(mem, mem, tracker, staticResolver{})
	conv := newAdmittedConversation(t, mem, "ext-1")

	first, err := ctrl.Admit(ctx, conv, core.NewMessageEvent("ext-1", "user-1", "help"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRouted, first.Outcome)

	clock = now.Add(2 * time.Hour)
	second, err := ctrl.Admit(ctx, conv, core.NewMessageEvent("ext-1", "user-1", "help"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRouted, second.Outcome, "an expired ledger entry permits a fresh decision")
}
