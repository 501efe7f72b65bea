// Package store provides a volatile, process-local implementation of the
// conversation, routing rule and idempotency ledger stores. It is safe for
// concurrent access and best suited for tests, examples and ephemeral demo
// deployments; production setups use the postgres sub-package.
package store
