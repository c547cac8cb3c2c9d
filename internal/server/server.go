// Package server exposes the billing API over HTTP. Every business route is
// scoped to a tenant via the X-Tenant-ID header.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	billingruledomain "github.com/windparklabs/windbill/internal/billingrule/domain"
	"github.com/windparklabs/windbill/internal/clock"
	"github.com/windparklabs/windbill/internal/config"
	incomingdomain "github.com/windparklabs/windbill/internal/incominginvoice/domain"
	invoicedomain "github.com/windparklabs/windbill/internal/invoice/domain"
	"github.com/windparklabs/windbill/internal/observability"
	sepadomain "github.com/windparklabs/windbill/internal/sepa/domain"
	sequencedomain "github.com/windparklabs/windbill/internal/sequence/domain"
	tenantdomain "github.com/windparklabs/windbill/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	log          *zap.Logger
	cfg          *config.Config
	db           *gorm.DB
	clock        clock.Clock
	genID        *snowflake.Node
	redis        *goredis.Client
	metrics      *observability.Metrics
	tenantRepo   tenantdomain.Repository
	incomingRepo incomingdomain.Repository
	seqSvc       sequencedomain.Service
	ruleSvc      billingruledomain.Service
	invoiceSvc   invoicedomain.Service
	sepaSvc      sepadomain.Service
}

type Param struct {
	fx.In

	Log          *zap.Logger
	Config       *config.Config
	DB           *gorm.DB
	Clock        clock.Clock
	GenID        *snowflake.Node
	Redis        *goredis.Client `optional:"true"`
	Metrics      *observability.Metrics `optional:"true"`
	TenantRepo   tenantdomain.Repository
	IncomingRepo incomingdomain.Repository
	SeqSvc       sequencedomain.Service
	RuleSvc      billingruledomain.Service
	InvoiceSvc   invoicedomain.Service
	SepaSvc      sepadomain.Service
}

func NewServer(p Param) *Server {
	return &Server{
		log:          p.Log.Named("server"),
		cfg:          p.Config,
		db:           p.DB,
		clock:        p.Clock,
		genID:        p.GenID,
		redis:        p.Redis,
		metrics:      p.Metrics,
		tenantRepo:   p.TenantRepo,
		incomingRepo: p.IncomingRepo,
		seqSvc:       p.SeqSvc,
		ruleSvc:      p.RuleSvc,
		invoiceSvc:   p.InvoiceSvc,
		sepaSvc:      p.SepaSvc,
	}
}

const tenantIDKey = "windbill.tenant_id"

// TenantRequired resolves the tenant from the X-Tenant-ID header and stores
// it on both the gin and request contexts.
func (s *Server) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("X-Tenant-ID"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_tenant_id"})
			return
		}
		id, err := snowflake.ParseString(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_tenant_id"})
			return
		}
		c.Set(tenantIDKey, id)
		c.Request = c.Request.WithContext(tenantdomain.WithTenantID(c.Request.Context(), id))
		c.Next()
	}
}

func tenantIDFromGin(c *gin.Context) snowflake.ID {
	if value, ok := c.Get(tenantIDKey); ok {
		if id, ok := value.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}

func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.Healthz)
	engine.GET("/readyz", s.Readyz)

	v1 := engine.Group("/v1")
	v1.POST("/tenants", s.CreateTenant)

	scoped := v1.Group("", s.TenantRequired())
	scoped.GET("/tenant", s.GetTenant)

	scoped.GET("/sequences/:documentType", s.GetSequence)
	scoped.PUT("/sequences/:documentType", s.UpdateSequence)
	scoped.GET("/sequences/:documentType/preview", s.PreviewSequence)

	scoped.GET("/rules", s.ListRules)
	scoped.POST("/rules", s.CreateRule)
	scoped.GET("/rules/:ruleId", s.GetRule)
	scoped.POST("/rules/:ruleId/execute", s.IdempotencyGuard(), s.ExecuteRule)
	scoped.POST("/rules/:ruleId/preview", s.PreviewRule)

	scoped.GET("/invoices", s.ListInvoices)
	scoped.POST("/invoices/batch", s.BatchInvoiceAction)

	scoped.POST("/incoming-invoices/:invoiceId/approve", s.ApproveIncomingInvoice)
	scoped.POST("/sepa/exports", s.IdempotencyGuard(), s.ExportSepa)
}

// RunHTTP starts the API server under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, s *Server, log *zap.Logger) {
	s.RegisterRoutes(engine)
	srv := &http.Server{Addr: s.cfg.HTTP.Addr, Handler: engine}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting http server", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)
