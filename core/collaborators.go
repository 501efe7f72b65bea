package core

import "context"

// SendRequest is the payload for the messaging-send collaborator.
type SendRequest struct {
	ConversationID         int64  `json:"conversation_id"`
	ExternalConversationID string `json:"external_conversation_id"`
	Message                string `json:"message"`
	SuggestionID           string `json:"suggestion_id,omitempty"`
	InResponseTo           string `json:"in_response_to,omitempty"`
}

// SendResult reports whether the platform accepted the message.
type SendResult struct {
	Sent   bool   `json:"sent"`
	Reason string `json:"reason,omitempty"`
}

// Messenger is the external messaging-send collaborator. The executor never
// retries a failed send; failure is surfaced to the caller, which may
// escalate.
type Messenger interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// TransferRequest is the payload for the handoff collaborator.
type TransferRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Reason         string `json:"reason"`
	Message        string `json:"message,omitempty"`
}

// Handoff is the external collaborator that moves a conversation out of
// automation and into a human queue.
type Handoff interface {
	TransferToHuman(ctx context.Context, req TransferRequest) error
}

// HandlerRef is a concrete handler resolved from a rule's logical target.
type HandlerRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TargetResolver turns a rule's logical target name into a concrete handler.
// A nil HandlerRef with nil error means the target is unknown.
type TargetResolver interface {
	ResolveTarget(ctx context.Context, name string) (*HandlerRef, error)
}

// CaseMarker optionally stamps a terminal status (CaseStatusError or
// CaseStatusDemandNotFound) on the case/demand record associated with a
// conversation, for downstream reporting after an escalation.
type CaseMarker interface {
	MarkCaseTerminal(ctx context.Context, conversationID int64, status string) error
}

// FindingsSource exposes what the out-of-band processors (summary,
// classification, search) have established about a conversation. The
// dispatcher snapshots it into the OrchestratorContext; a nil source yields
// empty findings.
type FindingsSource interface {
	Findings(ctx context.Context, conversationID int64) (Findings, error)
}

// TranscriptSource exposes the recent message history of a conversation for
// inclusion in the reasoner context.
type TranscriptSource interface {
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]TranscriptMessage, error)
}
