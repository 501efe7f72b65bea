package testutil

import (
	"time"

	"github.com/convomesh/convomesh/core"
)

// RuleBuilder provides a fluent helper for constructing routing rules in
// tests. Example:
//
//	rule := NewRuleBuilder().MatchText("help").Target("support").Capacity(3).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type RuleBuilder struct {
	rule core.RoutingRule
}

// NewRuleBuilder creates a builder for an active match-text rule.
func NewRuleBuilder() *RuleBuilder {
	return &RuleBuilder{rule: core.RoutingRule{
		RuleType:   core.RuleTypeMatchText,
		AuthFilter: core.AuthFilterAll,
		IsActive:   true,
		Created:    time.Now(),
		Updated:    time.Now(),
	}}
}

// ID overrides the auto-assigned rule id (chainable).
func (b *RuleBuilder) ID(id int64) *RuleBuilder { b.rule.ID = id; return b }

// Type sets the rule type (chainable).
func (b *RuleBuilder) Type(t string) *RuleBuilder { b.rule.RuleType = t; return b }

// Target sets the logical handler name the rule assigns (chainable).
func (b *RuleBuilder) Target(t string) *RuleBuilder { b.rule.Target = t; return b }

// MatchText sets the exact-match trigger text (chainable).
func (b *RuleBuilder) MatchText(t string) *RuleBuilder { b.rule.MatchText = t; return b }

// AuthFilter sets the authentication filter (chainable).
func (b *RuleBuilder) AuthFilter(f core.AuthFilter) *RuleBuilder { b.rule.AuthFilter = f; return b }

// Capacity sets the allocation budget (chainable).
func (b *RuleBuilder) Capacity(n int) *RuleBuilder { b.rule.AllocateCount = &n; return b }

// Allocated sets the consumed allocation counter (chainable).
func (b *RuleBuilder) Allocated(n int) *RuleBuilder { b.rule.AllocatedCount = n; return b }

// Inactive marks the rule inactive (chainable).
func (b *RuleBuilder) Inactive() *RuleBuilder { b.rule.IsActive = false; return b }

// ExpiresAt sets the rule expiry (chainable).
func (b *RuleBuilder) ExpiresAt(t time.Time) *RuleBuilder { b.rule.ExpiresAt = &t; return b }

// Build returns the constructed rule.
func (b *RuleBuilder) Build() core.RoutingRule { return b.rule }

// ConversationBuilder provides a fluent helper for constructing
// conversations in tests.
type ConversationBuilder struct {
	conv *core.Conversation
}

// NewConversationBuilder creates a builder for a fresh NEW conversation.
func NewConversationBuilder(externalConversationID string) *ConversationBuilder {
	return &ConversationBuilder{conv: core.NewConversation(externalConversationID, "user-1")}
}

// User sets the external user id (chainable).
func (b *ConversationBuilder) User(id string) *ConversationBuilder {
	b.conv.ExternalUserID = id
	return b
}

// Handler assigns the current handler (chainable).
func (b *ConversationBuilder) Handler(id, name string) *ConversationBuilder {
	b.conv.CurrentHandler = id
	b.conv.CurrentHandlerName = name
	return b
}

// Status sets the orchestration triple (chainable).
func (b *ConversationBuilder) Status(status core.OrchestratorStatus, owner core.Owner, waiting bool) *ConversationBuilder {
	b.conv.OrchestratorStatus = status
	b.conv.Owner = owner
	b.conv.WaitingForCustomer = waiting
	return b
}

// Build returns the constructed conversation.
func (b *ConversationBuilder) Build() *core.Conversation { return b.conv }
