package core

// Agent defines the single capability shared by the conversation agents
// (Demand-Finder, Solution-Provider, Closer).
//
// Process receives the OrchestratorContext for exactly one event, consults
// the external reasoning collaborator, records findings and queues actions on
// the context, and returns a structured AgentResult. It must not write
// orchestration state: the dispatcher applies the transition through the
// ActionExecutor, which is the sole writer of those fields.
//
// Implementations must respect cancellation of the context embedded in the
// OrchestratorContext; a timed-out reasoner call surfaces as a failed result.
type Agent interface {
	Name() string
	Owner() Owner
	Process(octx *OrchestratorContext) AgentResult
}
