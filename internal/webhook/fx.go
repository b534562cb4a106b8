package webhook

import (
	"go.uber.org/fx"

	"github.com/tipwave/tipwave/internal/webhook/repository"
	"github.com/tipwave/tipwave/internal/webhook/service"
)

var Module = fx.Module("webhook",
	fx.Provide(
		repository.Provide,
		service.NewReconciler,
	),
)
