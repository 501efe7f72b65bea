package core

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// NewID generates a new unique identifier for events and dispatch runs.
func NewID() string { return uuid.NewString() }

var (
	idNodeOnce sync.Once
	idNode     *snowflake.Node
)

// NewRowID generates a sortable int64 identifier for durable rows
// (conversations). Snowflake ids keep insertion order roughly monotonic,
// which the routing precedence rule ("oldest rule wins") relies on.
func NewRowID() int64 {
	idNodeOnce.Do(func() {
		node, err := snowflake.NewNode(1)
		if err != nil {
			// Node number 1 is always in range; NewNode only fails on an
			// out-of-range node id.
			panic(err)
		}
		idNode = node
	})
	return idNode.Generate().Int64()
}
