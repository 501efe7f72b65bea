// Package engine ties admission and orchestration together behind a single
// event intake. It guarantees that events for the same conversation are
// processed in arrival order and never concurrently, while events for
// different conversations proceed in parallel on a bounded worker pool.
package engine
