package servicedelivery

import (
	"github.com/carebridge/revcycle/internal/servicedelivery/repository"
	"github.com/carebridge/revcycle/internal/servicedelivery/service"
	"go.uber.org/fx"
)

var Module = fx.Module("servicedelivery.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.NewValidator),
)
