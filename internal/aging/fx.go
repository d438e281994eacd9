package aging

import (
	"github.com/carebridge/revcycle/internal/aging/service"
	"go.uber.org/fx"
)

var Module = fx.Module("aging.calculator",
	fx.Provide(service.NewCalculator),
)
