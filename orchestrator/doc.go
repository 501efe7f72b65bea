// Package orchestrator contains the conversation state machine: the
// dispatcher that selects an agent for the conversation's current status,
// applies the agent's result as a state transition, and the escalation
// handler that routes every failure mode to a human handoff.
package orchestrator
