package invoice

import (
	"github.com/tapmenu/platform/internal/invoice/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.store",
	fx.Provide(repository.Provide),
)
