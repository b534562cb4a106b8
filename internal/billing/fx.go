package billing

import (
	"go.uber.org/fx"

	"github.com/tipwave/tipwave/internal/billing/repository"
	"github.com/tipwave/tipwave/internal/billing/service"
)

var Module = fx.Module("billing",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
