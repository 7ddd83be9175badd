package payment

import (
	"strings"

	"github.com/tapmenu/platform/internal/config"
	"github.com/tapmenu/platform/internal/payment/domain"
	"github.com/tapmenu/platform/internal/payment/providers"
	"github.com/tapmenu/platform/internal/payment/providers/fakepay"
	"github.com/tapmenu/platform/internal/payment/providers/hmacpay"
	"github.com/tapmenu/platform/internal/payment/repository"
	"github.com/tapmenu/platform/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(service.NewService),
)

// NewRegistry builds the provider registry from configuration. The signed
// processor is only registered when its secret is set; the fake processor is
// always registered so non-production environments can drive the full billing
// flow without an external dependency. A misconfigured active provider fails
// startup instead of the first invoice run.
func NewRegistry(cfg config.Config) (*providers.Registry, error) {
	var list []domain.Provider
	if strings.TrimSpace(cfg.ProviderHMACSecret) != "" {
		hmac, err := hmacpay.New(hmacpay.Config{
			Secret:           cfg.ProviderHMACSecret,
			SignatureHeader:  cfg.ProviderSignatureHdr,
			CreateInvoiceURL: cfg.ProviderCreateURL,
		})
		if err != nil {
			return nil, err
		}
		list = append(list, hmac)
	}
	list = append(list, fakepay.New())

	registry := providers.NewRegistry(cfg.ActiveProvider, list...)
	if _, err := registry.Active(); err != nil {
		return nil, err
	}
	return registry, nil
}
