package payer

import (
	"github.com/carebridge/revcycle/internal/payer/repository"
	"github.com/carebridge/revcycle/internal/payer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
