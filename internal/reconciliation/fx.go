package reconciliation

import (
	"github.com/carebridge/revcycle/internal/reconciliation/repository"
	"github.com/carebridge/revcycle/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation.engine",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewEngine),
)
