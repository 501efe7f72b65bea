// Package routing contains the admission side of ConvoMesh: the idempotency
// tracker that guarantees one routing decision per conversation per rule
// type, and the admission controller that evaluates routing rules against an
// inbound event and atomically consumes bounded rule capacity.
package routing
