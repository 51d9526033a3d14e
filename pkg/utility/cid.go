package utility

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

type ConnectionID = snowflake.ID

var (
	node     *snowflake.Node
	nodeOnce sync.Once
)

// NewConnectionID returns a time-ordered id for a client connection.
func NewConnectionID() ConnectionID {
	nodeOnce.Do(func() {
		var err error
		maxNode := uint32(1)<<snowflake.NodeBits - 1
		node, err = snowflake.NewNode(int64(uuid.New().ID() & maxNode))
		if err != nil {
			panic(fmt.Sprintf("unable to create snowflake node: %v", err))
		}
	})
	return node.Generate()
}
