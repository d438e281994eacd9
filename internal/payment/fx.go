package payment

import (
	"github.com/carebridge/revcycle/internal/payment/repository"
	"github.com/carebridge/revcycle/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
