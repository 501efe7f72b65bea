// Package core contains the shared vocabulary of the ConvoMesh routing and
// orchestration engine: the conversation and routing rule models, the
// orchestration status/owner enums, the per-event OrchestratorContext, the
// closed Action variant set, the Agent contract and the store/collaborator
// interfaces implemented elsewhere.
//
// The package is deliberately free of side effects: all persistence and
// external communication happens behind the interfaces declared here
// (ConversationStore, RuleStore, ProcessedEventStore, Messenger, Handoff,
// TargetResolver, CaseMarker), keeping the orchestration logic testable with
// in-memory fakes.
package core
