package provider

import (
	"go.uber.org/fx"

	"github.com/tipwave/tipwave/internal/config"
	"github.com/tipwave/tipwave/internal/provider/adapters"
	"github.com/tipwave/tipwave/internal/provider/adapters/moov"
	"github.com/tipwave/tipwave/internal/provider/adapters/stripe"
	"github.com/tipwave/tipwave/internal/provider/domain"
)

// Adapters bundles the two provider roles the pipeline depends on:
// Payout moves funds between accounts, Billing issues platform invoices.
type Adapters struct {
	Payout  domain.Adapter
	Billing domain.Adapter
}

func NewRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		moov.NewFactory(),
		stripe.NewFactory(),
	)
}

func NewAdapters(registry *adapters.Registry, cfg *config.Config) (*Adapters, error) {
	payout, err := registry.NewAdapter(cfg.PayoutProvider, domain.AdapterConfig{
		Provider: cfg.PayoutProvider,
		APIKey:   cfg.PayoutAPIKey,
		BaseURL:  cfg.PayoutBaseURL,
	})
	if err != nil {
		return nil, err
	}
	billing, err := registry.NewAdapter(cfg.BillingProvider, domain.AdapterConfig{
		Provider: cfg.BillingProvider,
		APIKey:   cfg.BillingAPIKey,
		BaseURL:  cfg.BillingBaseURL,
	})
	if err != nil {
		return nil, err
	}
	return &Adapters{Payout: payout, Billing: billing}, nil
}

var Module = fx.Module("provider",
	fx.Provide(
		NewRegistry,
		NewAdapters,
	),
)
