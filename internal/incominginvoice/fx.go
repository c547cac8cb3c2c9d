package incominginvoice

import (
	"github.com/windparklabs/windbill/internal/incominginvoice/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("incominginvoice",
	fx.Provide(repository.NewRepository),
)
