package audit

import (
	"github.com/carebridge/revcycle/internal/audit/repository"
	"github.com/carebridge/revcycle/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
