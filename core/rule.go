package core

import (
	"strings"
	"time"
)

// AuthFilter restricts a routing rule to events from authenticated or
// unauthenticated users, or admits both.
type AuthFilter string

const (
	// AuthFilterAll matches every event regardless of authentication state.
	AuthFilterAll AuthFilter = "all"
	// AuthFilterAuthenticated matches events from authenticated users.
	AuthFilterAuthenticated AuthFilter = "authenticated"
	// AuthFilterUnauthenticated matches events from unauthenticated users.
	AuthFilterUnauthenticated AuthFilter = "unauthenticated"
)

// Well-known rule types. Rules are admin-managed; the engine consumes them
// read-mostly and only ever mutates AllocatedCount/IsActive.
const (
	RuleTypeMatchText     = "match-text"
	RuleTypeAllocateNextN = "allocate-next-n"
)

// RoutingRule assigns conversations whose first message matches MatchText to
// a logical target handler, under an optional allocation budget.
//
// Invariant: AllocatedCount <= *AllocateCount whenever AllocateCount is
// non-nil. The increment that would break the invariant must never be
// applied; once AllocatedCount reaches the cap the rule is exhausted and gets
// deactivated. The conditional increment lives in RuleStore.ConsumeCapacity
// as a single atomic statement against the store.
type RoutingRule struct {
	ID             int64      `json:"id"`
	RuleType       string     `json:"rule_type"`
	Target         string     `json:"target"`
	MatchText      string     `json:"match_text"`
	AuthFilter     AuthFilter `json:"auth_filter"`
	AllocateCount  *int       `json:"allocate_count,omitempty"`
	AllocatedCount int        `json:"allocated_count"`
	IsActive       bool       `json:"is_active"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Created        time.Time  `json:"created"`
	Updated        time.Time  `json:"updated"`
}

// Expired reports whether the rule's expiry has passed at the given instant.
func (r *RoutingRule) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// Exhausted reports whether the allocation budget has been fully consumed.
func (r *RoutingRule) Exhausted() bool {
	return r.AllocateCount != nil && r.AllocatedCount >= *r.AllocateCount
}

// MatchesText compares the event text against MatchText, both trimmed and
// lower-cased.
func (r *RoutingRule) MatchesText(text string) bool {
	return NormalizeMatchText(text) == NormalizeMatchText(r.MatchText)
}

// MatchesAuthFilter reports whether the rule admits the event's
// authentication state. Unknown authentication always matches.
func (r *RoutingRule) MatchesAuthFilter(auth AuthState) bool {
	switch r.AuthFilter {
	case AuthFilterAuthenticated:
		return auth != AuthUnauthenticated
	case AuthFilterUnauthenticated:
		return auth != AuthAuthenticated
	default:
		return true
	}
}

// Matches reports whether the rule applies to the inbound event.
func (r *RoutingRule) Matches(ev InboundEvent) bool {
	return r.MatchesText(ev.Text) && r.MatchesAuthFilter(ev.Auth)
}

// NormalizeMatchText canonicalizes trigger text for exact-match comparison.
func NormalizeMatchText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ProcessedEvent is one row of the idempotency ledger: "this conversation has
// already been evaluated against this rule type". Uniqueness is on
// (ExternalConversationID, RuleType); re-marking the same pair replaces the
// row, which is what makes retries after a partial failure safe.
type ProcessedEvent struct {
	ExternalConversationID string    `json:"external_conversation_id"`
	RuleType               string    `json:"rule_type"`
	RuleID                 int64     `json:"rule_id"`
	ProcessedAt            time.Time `json:"processed_at"`
	ExpiresAt              time.Time `json:"expires_at"`
}

// Expired reports whether the ledger entry's TTL has passed, after which the
// conversation may be re-evaluated for this rule type.
func (p *ProcessedEvent) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}
