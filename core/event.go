package core

import "time"

// AuthState describes what is known about the authentication of the user
// behind an inbound event. AuthUnknown matches every rule auth filter.
type AuthState string

const (
	// AuthUnknown means the upstream platform did not report a state.
	AuthUnknown AuthState = ""
	// AuthAuthenticated means the user is signed in.
	AuthAuthenticated AuthState = "authenticated"
	// AuthUnauthenticated means the user is anonymous.
	AuthUnauthenticated AuthState = "unauthenticated"
)

// EventKind distinguishes customer messages from platform lifecycle signals.
type EventKind string

const (
	// EventMessage is an inbound customer message.
	EventMessage EventKind = "message"
	// EventConversationClosed is an external "conversation closed" signal.
	EventConversationClosed EventKind = "conversation_closed"
)

// InboundEvent is one unit of work for the engine: a single parsed
// conversation event handed over by the (out of scope) webhook layer.
// Events for the same ExternalConversationID are processed strictly in
// arrival order; events for different conversations proceed in parallel.
type InboundEvent struct {
	ID                     string    `json:"id"`
	Kind                   EventKind `json:"kind"`
	ExternalConversationID string    `json:"external_conversation_id"`
	ExternalUserID         string    `json:"external_user_id"`
	Text                   string    `json:"text"`
	Auth                   AuthState `json:"auth"`
	ReceivedAt             time.Time `json:"received_at"`
}

// NewMessageEvent builds an inbound customer message event.
func NewMessageEvent(externalConversationID, externalUserID, text string) InboundEvent {
	return InboundEvent{
		ID:                     NewID(),
		Kind:                   EventMessage,
		ExternalConversationID: externalConversationID,
		ExternalUserID:         externalUserID,
		Text:                   text,
		ReceivedAt:             time.Now().UTC(),
	}
}

// NewClosedEvent builds an external conversation-closed signal.
func NewClosedEvent(externalConversationID string) InboundEvent {
	return InboundEvent{
		ID:                     NewID(),
		Kind:                   EventConversationClosed,
		ExternalConversationID: externalConversationID,
		ReceivedAt:             time.Now().UTC(),
	}
}
