// Package agent implements the three conversation phase agents: the
// demand finder, the solution provider and the closer. Each one is a thin
// layer of decision-to-state-transition wiring around a reasoner call; the
// actual content decision is delegated to the configured reasoner.
package agent
