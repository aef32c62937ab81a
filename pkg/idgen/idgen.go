package idgen

import (
	"fmt"
	"strconv"

	"github.com/ShiraazMoollatjie/goluhn"
	"github.com/bwmarrin/snowflake"
)

// Generator issues public order numbers: a snowflake id followed by a Luhn check digit.
type Generator struct {
	node *snowflake.Node
}

func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return &Generator{node: node}, nil
}

func (g *Generator) NextOrderNumber() string {
	base := strconv.FormatInt(g.node.Generate().Int64(), 10)
	_, number, err := goluhn.Calculate(base)
	if err != nil {
		// base is always a decimal string
		panic(err)
	}
	return number
}
