package core

import "time"

// Conversation is the durable record for one external support conversation.
//
// Invariant: Owner is non-OwnerNone only while OrchestratorStatus is one of
// the in-progress automation states; it is always OwnerNone in ESCALATED and
// CLOSED. The ActionExecutor is the sole writer of the orchestration fields
// (OrchestratorStatus, Owner, WaitingForCustomer); every other component only
// reads them.
type Conversation struct {
	ID                     int64              `json:"id"`
	ExternalConversationID string             `json:"external_conversation_id"`
	ExternalUserID         string             `json:"external_user_id"`
	CurrentHandler         string             `json:"current_handler"`
	CurrentHandlerName     string             `json:"current_handler_name"`
	OrchestratorStatus     OrchestratorStatus `json:"orchestrator_status"`
	Owner                  Owner              `json:"conversation_owner"`
	WaitingForCustomer     bool               `json:"waiting_for_customer"`
	InteractionCount       int                `json:"interaction_count"`
	Created                time.Time          `json:"created"`
	Updated                time.Time          `json:"updated"`
	ClosedAt               *time.Time         `json:"closed_at,omitempty"`
	ClosedReason           ClosedReason       `json:"closed_reason,omitempty"`
}

// NewConversation creates a fresh conversation record in StatusNew with no
// owner and a generated row id.
func NewConversation(externalConversationID, externalUserID string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:                     NewRowID(),
		ExternalConversationID: externalConversationID,
		ExternalUserID:         externalUserID,
		OrchestratorStatus:     StatusNew,
		Owner:                  OwnerNone,
		Created:                now,
		Updated:                now,
	}
}

// OwnedByAutomation reports whether the conversation is currently assigned to
// the automation stack identified by handlerName.
func (c *Conversation) OwnedByAutomation(handlerName string) bool {
	return handlerName != "" && c.CurrentHandlerName == handlerName
}

// Closed reports whether the conversation has left the active set.
func (c *Conversation) Closed() bool { return c.ClosedAt != nil }

// Clone returns a copy safe for independent mutation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		clone.ClosedAt = &t
	}
	return &clone
}

// CheckOwnerInvariant reports whether the status/owner pair is consistent:
// terminal statuses carry no owner, in-progress statuses carry one once the
// conversation has left StatusNew.
func (c *Conversation) CheckOwnerInvariant() bool {
	if c.OrchestratorStatus.IsTerminal() {
		return c.Owner == OwnerNone
	}
	if c.OrchestratorStatus == StatusNew {
		return true
	}
	return c.Owner != OwnerNone
}
