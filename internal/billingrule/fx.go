package billingrule

import (
	"github.com/windparklabs/windbill/internal/billingrule/service"
	"github.com/windparklabs/windbill/internal/invoice"
	"go.uber.org/fx"
)

var Module = fx.Module("billingrule.service",
	invoice.Module,
	fx.Provide(service.NewService),
)
