package remittance

import (
	"github.com/carebridge/revcycle/internal/remittance/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("remittance",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideLookup),
)
