package audit

import (
	"github.com/tapmenu/platform/internal/audit/repository"
	"github.com/tapmenu/platform/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
