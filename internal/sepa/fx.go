package sepa

import (
	"github.com/windparklabs/windbill/internal/incominginvoice"
	"github.com/windparklabs/windbill/internal/sepa/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sepa.service",
	incominginvoice.Module,
	fx.Provide(service.NewService),
)
