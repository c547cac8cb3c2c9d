package tenant

import (
	"github.com/windparklabs/windbill/internal/tenant/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant",
	fx.Provide(repository.NewRepository),
)
