package settings

import (
	"github.com/tapmenu/platform/internal/settings/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("settings.store",
	fx.Provide(repository.Provide),
)
