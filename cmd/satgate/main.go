package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/migration"
	"github.com/satgate/satgate/internal/observability"
	"github.com/satgate/satgate/internal/scheduler"
	"github.com/satgate/satgate/internal/server"
	"github.com/satgate/satgate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		server.Module,

		migration.Module,
		scheduler.Module,
	)
	app.Run()
}

// RegisterSnowflake builds the process-wide id generator. NODE_ID keeps
// ids distinct across replicas; single-node deployments can leave it
// unset.
func RegisterSnowflake() *snowflake.Node {
	nodeID := int64(1)
	if raw := os.Getenv("NODE_ID"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			panic("invalid NODE_ID: " + raw)
		}
		nodeID = parsed
	}

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		panic(err)
	}
	return node
}
