package core

// AgentResult is the structured outcome of one agent invocation. The
// dispatcher translates it into the next (status, owner, waitingForCustomer)
// triple; agents never write orchestration state themselves.
//
// Exactly one of the progress flags is normally set. Success=false always
// wins and escalates regardless of other flags, as does
// MaxInteractionsReached.
type AgentResult struct {
	// Success is false when the agent (or its reasoner call) failed or the
	// agent declared it cannot proceed. Always escalates.
	Success bool
	// DemandConfirmed moves the conversation to DEMAND_CONFIRMED and hands
	// ownership to the Solution-Provider.
	DemandConfirmed bool
	// NeedsClarification moves the conversation to AWAITING_CUSTOMER_REPLY
	// with waitingForCustomer set; ownership is unchanged.
	NeedsClarification bool
	// MaxInteractionsReached is the policy-level fatal condition terminating
	// runaway automation. Always escalates with a customer-visible apology.
	MaxInteractionsReached bool
	// SolutionProposed moves a confirmed conversation into
	// PROVIDING_SOLUTION while the candidate solution is worked through.
	SolutionProposed bool
	// Resolved marks terminal success: the conversation moves to COMPLETED
	// and the Closer takes over.
	Resolved bool
	// ConversationClosed is set by the Closer when the customer is done.
	ConversationClosed bool
	// NewDemand is set by the Closer when the customer raises a fresh need;
	// the conversation loops back to FINDING_DEMAND.
	NewDemand bool
	// MessageSent records that a SendMessage action was queued.
	MessageSent bool
	// SuggestedResponse carries the customer-facing text of the queued
	// message, if any.
	SuggestedResponse string
	// SuggestionID references the suggestion backing the queued message.
	SuggestionID string
	// Err carries the failure when Success is false.
	Err error
}

// FailureResult builds the canonical failed result for err.
func FailureResult(err error) AgentResult {
	return AgentResult{Success: false, Err: err}
}
