package transfer

import (
	"go.uber.org/fx"

	"github.com/tipwave/tipwave/internal/transfer/repository"
)

var Module = fx.Module("transfer",
	fx.Provide(
		repository.Provide,
	),
)
