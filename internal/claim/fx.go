package claim

import (
	"github.com/carebridge/revcycle/internal/claim/repository"
	"github.com/carebridge/revcycle/internal/claim/service"
	"go.uber.org/fx"
)

var Module = fx.Module("claim.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
