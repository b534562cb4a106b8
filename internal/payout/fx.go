package payout

import (
	"go.uber.org/fx"

	"github.com/tipwave/tipwave/internal/payout/repository"
	"github.com/tipwave/tipwave/internal/payout/service"
)

var Module = fx.Module("payout",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
