package notification

import (
	"github.com/tapmenu/platform/internal/notification/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.store",
	fx.Provide(repository.Provide),
)
