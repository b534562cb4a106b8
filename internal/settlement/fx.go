package settlement

import (
	"go.uber.org/fx"

	"github.com/tipwave/tipwave/internal/settlement/repository"
)

var Module = fx.Module("settlement",
	fx.Provide(
		repository.Provide,
	),
)
