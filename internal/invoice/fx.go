package invoice

import (
	"github.com/windparklabs/windbill/internal/invoice/service"
	"github.com/windparklabs/windbill/internal/sequence"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	sequence.Module,
	fx.Provide(service.NewService),
)
