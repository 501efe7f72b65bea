// Package reasoner defines the contract for the external reasoning-agent
// collaborator and a scripted mock for tests. The conversation agents
// assemble a structured Request (summary, classification, demand, history,
// candidate solutions) and receive back a structured Decision; what the
// reasoning service says to the customer is decided there, never here.
//
// Provider-backed implementations live in the openai and anthropic
// sub-packages.
package reasoner
