package utilities

import (
	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake ids from a single node so the sequence
// counter is shared by every caller in the process.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator creates a generator bound to nodeID (0-1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &IDGenerator{node: node}, nil
}

// Next returns the next snowflake id as a decimal string.
func (g *IDGenerator) Next() string {
	return g.node.Generate().String()
}
