package authorization

import (
	"github.com/carebridge/revcycle/internal/authorization/repository"
	"github.com/carebridge/revcycle/internal/authorization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("authorization.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
