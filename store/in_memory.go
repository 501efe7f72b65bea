package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/convomesh/convomesh/core"
)

// processedKey is the composite uniqueness key of the idempotency ledger.
type processedKey struct {
	externalConversationID string
	ruleType               string
}

// InMemoryStore implements core.ConversationStore, core.RuleStore and
// core.ProcessedEventStore over process-local maps. All mutating rule
// operations run inside one critical section, which makes ConsumeCapacity a
// genuine compare-and-increment: two racing calls can never both pass the
// cap check.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*core.Conversation // by external conversation id
	rules         map[int64]*core.RoutingRule
	processed     map[processedKey]core.ProcessedEvent
	nextRuleID    int64
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]*core.Conversation),
		rules:         make(map[int64]*core.RoutingRule),
		processed:     make(map[processedKey]core.ProcessedEvent),
	}
}

// GetByExternalID returns a clone of the stored conversation or ErrNotFound.
func (s *InMemoryStore) GetByExternalID(_ context.Context, externalConversationID string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[externalConversationID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return conv.Clone(), nil
}

// Create stores a clone of the conversation keyed by its external id.
func (s *InMemoryStore) Create(_ context.Context, conv *core.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ExternalConversationID] = conv.Clone()
	return nil
}

// UpdateHandler sets handler attribution on an existing conversation.
func (s *InMemoryStore) UpdateHandler(_ context.Context, id int64, handler, handlerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.findByIDLocked(id)
	if err != nil {
		return err
	}
	conv.CurrentHandler = handler
	conv.CurrentHandlerName = handlerName
	conv.Updated = time.Now().UTC()
	return nil
}

// UpdateOrchestration writes the orchestration field triple.
func (s *InMemoryStore) UpdateOrchestration(_ context.Context, id int64, status core.OrchestratorStatus, owner core.Owner, waiting bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.findByIDLocked(id)
	if err != nil {
		return err
	}
	conv.OrchestratorStatus = status
	conv.Owner = owner
	conv.WaitingForCustomer = waiting
	conv.Updated = time.Now().UTC()
	return nil
}

// UpdateInteractions persists the cumulative automation interaction count.
func (s *InMemoryStore) UpdateInteractions(_ context.Context, id int64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.findByIDLocked(id)
	if err != nil {
		return err
	}
	conv.InteractionCount = count
	conv.Updated = time.Now().UTC()
	return nil
}

// Close stamps the closed timestamp/reason and moves the row to StatusClosed.
func (s *InMemoryStore) Close(_ context.Context, id int64, reason core.ClosedReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.findByIDLocked(id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	conv.OrchestratorStatus = core.StatusClosed
	conv.Owner = core.OwnerNone
	conv.WaitingForCustomer = false
	conv.ClosedAt = &now
	conv.ClosedReason = reason
	conv.Updated = now
	return nil
}

func (s *InMemoryStore) findByIDLocked(id int64) (*core.Conversation, error) {
	for _, conv := range s.conversations {
		if conv.ID == id {
			return conv, nil
		}
	}
	return nil, core.ErrNotFound
}

// GetRule returns a clone of the stored rule or ErrNotFound.
func (s *InMemoryStore) GetRule(_ context.Context, id int64) (*core.RoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *rule
	return &clone, nil
}

// PutRule inserts or replaces a rule, assigning an id when missing.
func (s *InMemoryStore) PutRule(_ context.Context, rule *core.RoutingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == 0 {
		s.nextRuleID++
		rule.ID = s.nextRuleID
	} else if rule.ID > s.nextRuleID {
		s.nextRuleID = rule.ID
	}
	clone := *rule
	s.rules[rule.ID] = &clone
	return nil
}

// ListCandidates implements the candidate query: active, unexpired at now,
// remaining capacity, ordered by ascending id.
func (s *InMemoryStore) ListCandidates(_ context.Context, now time.Time) ([]core.RoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.RoutingRule
	for _, rule := range s.rules {
		if !rule.IsActive || rule.Expired(now) || rule.Exhausted() {
			continue
		}
		out = append(out, *rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ConsumeCapacity performs the conditional increment under the store lock.
func (s *InMemoryStore) ConsumeCapacity(_ context.Context, ruleID int64) (core.ConsumeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return core.ConsumeResult{}, core.ErrNotFound
	}
	if !rule.IsActive || rule.Exhausted() {
		return core.ConsumeResult{Allocated: false}, nil
	}
	rule.AllocatedCount++
	rule.Updated = time.Now().UTC()
	return core.ConsumeResult{
		Allocated:      true,
		AllocatedCount: rule.AllocatedCount,
		Exhausted:      rule.Exhausted(),
	}, nil
}

// Deactivate clears IsActive on the rule.
func (s *InMemoryStore) Deactivate(_ context.Context, ruleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return core.ErrNotFound
	}
	rule.IsActive = false
	rule.Updated = time.Now().UTC()
	return nil
}

// GetProcessed returns the ledger entry for the composite key or ErrNotFound.
func (s *InMemoryStore) GetProcessed(_ context.Context, externalConversationID, ruleType string) (*core.ProcessedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.processed[processedKey{externalConversationID, ruleType}]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := entry
	return &clone, nil
}

// UpsertProcessed inserts or replaces the ledger entry. Replacement under the
// same key is what makes retried ledger writes idempotent.
func (s *InMemoryStore) UpsertProcessed(_ context.Context, entry core.ProcessedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[processedKey{entry.ExternalConversationID, entry.RuleType}] = entry
	return nil
}

// DeleteExpired removes expired ledger entries and returns the count.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for key, entry := range s.processed {
		if entry.Expired(now) {
			delete(s.processed, key)
			count++
		}
	}
	return count, nil
}
