package restaurant

import (
	"go.uber.org/fx"

	"github.com/tipwave/tipwave/internal/restaurant/repository"
)

var Module = fx.Module("restaurant",
	fx.Provide(
		repository.Provide,
	),
)
