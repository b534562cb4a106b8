package debit

import (
	"go.uber.org/fx"

	"github.com/tipwave/tipwave/internal/debit/repository"
	"github.com/tipwave/tipwave/internal/debit/service"
)

var Module = fx.Module("debit",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
