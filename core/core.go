package core

// OrchestratorStatus tracks where a conversation sits in the automated
// resolution process. The zero value is not meaningful; new conversations
// start at StatusNew.
type OrchestratorStatus string

const (
	// StatusNew marks a conversation that has been admitted to automation but
	// not yet processed by any agent.
	StatusNew OrchestratorStatus = "NEW"
	// StatusFindingDemand marks a conversation whose customer need is still
	// being established by the Demand-Finder.
	StatusFindingDemand OrchestratorStatus = "FINDING_DEMAND"
	// StatusAwaitingCustomerReply marks a conversation where a clarifying
	// question was asked and the next customer message resumes demand finding.
	StatusAwaitingCustomerReply OrchestratorStatus = "AWAITING_CUSTOMER_REPLY"
	// StatusDemandConfirmed marks a conversation whose demand is understood
	// well enough for the Solution-Provider to act.
	StatusDemandConfirmed OrchestratorStatus = "DEMAND_CONFIRMED"
	// StatusProvidingSolution marks a conversation where a candidate solution
	// is being worked through with the customer.
	StatusProvidingSolution OrchestratorStatus = "PROVIDING_SOLUTION"
	// StatusCompleted marks a conversation whose demand was resolved; the
	// Closer offers further help or closes out.
	StatusCompleted OrchestratorStatus = "COMPLETED"
	// StatusEscalated marks a conversation handed to a human. Terminal for
	// the engine: no further automated processing occurs.
	StatusEscalated OrchestratorStatus = "ESCALATED"
	// StatusClosed marks a finished conversation. Terminal.
	StatusClosed OrchestratorStatus = "CLOSED"
)

// IsTerminal reports whether the engine performs no further automated
// processing for conversations in this status.
func (s OrchestratorStatus) IsTerminal() bool {
	return s == StatusEscalated || s == StatusClosed
}

// InProgress reports whether the status is one of the "in-progress automation"
// states during which a conversation owner must be set.
func (s OrchestratorStatus) InProgress() bool {
	switch s {
	case StatusNew, StatusFindingDemand, StatusAwaitingCustomerReply,
		StatusDemandConfirmed, StatusProvidingSolution, StatusCompleted:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a member of the closed status set.
func (s OrchestratorStatus) Valid() bool {
	return s.InProgress() || s.IsTerminal()
}

// Owner identifies the internal agent currently driving an automated
// conversation. OwnerNone (the empty string) means no agent owns it, which is
// the case in ESCALATED and CLOSED.
type Owner string

const (
	// OwnerNone means no internal agent owns the conversation.
	OwnerNone Owner = ""
	// OwnerDemandFinder owns conversations until the demand is confirmed.
	OwnerDemandFinder Owner = "demand_finder"
	// OwnerSolutionProvider owns conversations from confirmation to resolution.
	OwnerSolutionProvider Owner = "solution_provider"
	// OwnerCloser owns resolved conversations until close-out.
	OwnerCloser Owner = "closer"
)

// ownerTransitions is the closed set of permitted owner hand-offs. A
// transition to OwnerNone is always permitted (escalation or closure) and is
// handled in ValidOwnerTransition directly. The Closer may hand back to the
// Demand-Finder when the customer raises a fresh demand after resolution.
var ownerTransitions = map[Owner][]Owner{
	OwnerNone:             {OwnerDemandFinder},
	OwnerDemandFinder:     {OwnerDemandFinder, OwnerSolutionProvider},
	OwnerSolutionProvider: {OwnerSolutionProvider, OwnerCloser},
	OwnerCloser:           {OwnerCloser, OwnerDemandFinder},
}

// ValidOwnerTransition reports whether handing a conversation from one owner
// to another is permitted. Any attempted transition outside this set is a
// programming error: callers must reject it, never silently apply it.
func ValidOwnerTransition(from, to Owner) bool {
	if to == OwnerNone {
		return true
	}
	for _, allowed := range ownerTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ClosedReason records why a conversation left the active set.
type ClosedReason string

const (
	// CloseReasonResolved means the automated flow resolved the demand.
	CloseReasonResolved ClosedReason = "resolved"
	// CloseReasonEscalated means a human took over before close.
	CloseReasonEscalated ClosedReason = "escalated_handoff"
	// CloseReasonExternal means the external platform signalled closure.
	CloseReasonExternal ClosedReason = "external"
)

// CaseStatusError and CaseStatusDemandNotFound are the terminal statuses an
// escalation can stamp on an associated case/demand record for downstream
// reporting.
const (
	CaseStatusError          = "error"
	CaseStatusDemandNotFound = "demand_not_found"
)
