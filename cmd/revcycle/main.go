package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/carebridge/revcycle/internal/clock"
	"github.com/carebridge/revcycle/internal/config"
	"github.com/carebridge/revcycle/internal/migration"
	"github.com/carebridge/revcycle/internal/observability"
	"github.com/carebridge/revcycle/internal/scheduler"
	"github.com/carebridge/revcycle/internal/server"
	"github.com/carebridge/revcycle/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
