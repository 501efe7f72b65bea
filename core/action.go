package core

// Action represents a side effect an agent wants performed on its behalf.
// Concrete action types implement the unexported isAction marker enabling a
// closed variant set; the ActionExecutor dispatches over it exhaustively.
type Action interface{ isAction() }

// SendMessage asks the messaging collaborator to deliver a suggested response
// to the customer. SuggestionID references the stored suggestion; Preview is
// a short plain-text form used for logging and the send call itself.
type SendMessage struct {
	SuggestionID string // Stable id of the suggested response
	Preview      string // Customer-facing text
	InResponseTo string // Inbound event id this message answers, if any
}

// isAction implements the Action interface for SendMessage.
func (SendMessage) isAction() {}

// TransferToHuman asks the handoff collaborator to move the conversation out
// of automation, optionally delivering an apology/explanatory message first.
type TransferToHuman struct {
	Reason  string // Machine-readable escalation reason
	Message string // Customer-facing explanation, may be empty
}

// isAction implements the Action interface for TransferToHuman.
func (TransferToHuman) isAction() {}
