package subscription

import (
	"github.com/tapmenu/platform/internal/subscription/repository"
	"github.com/tapmenu/platform/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.ProvideHook),
)
