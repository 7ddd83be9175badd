package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/tapmenu/platform/internal/audit/domain"
	"github.com/tapmenu/platform/internal/clock"
	"github.com/tapmenu/platform/internal/config"
	invoicedomain "github.com/tapmenu/platform/internal/invoice/domain"
	paymentservice "github.com/tapmenu/platform/internal/payment/service"
	subscriptiondomain "github.com/tapmenu/platform/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.BillingPolicyHolder
	billingSvc  *paymentservice.Service
	invoiceRepo invoicedomain.Repository
	subRepo     subscriptiondomain.Repository
	auditSvc    auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.BillingPolicyHolder
	BillingSvc  *paymentservice.Service
	InvoiceRepo invoicedomain.Repository
	SubRepo     subscriptiondomain.Repository
	AuditSvc    auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("http"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		billingSvc:  p.BillingSvc,
		invoiceRepo: p.InvoiceRepo,
		subRepo:     p.SubRepo,
		auditSvc:    p.AuditSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	webhook := s.engine.Group("/billing/webhook")
	webhook.Use(s.WebhookSecretRequired())
	webhook.POST("/:provider", s.HandlePaymentWebhook)

	admin := s.engine.Group("/admin")
	admin.GET("/venues/:venue_id/subscription", s.GetSubscription)
	admin.PUT("/venues/:venue_id/subscription", s.UpsertSubscription)
	admin.GET("/venues/:venue_id/invoices", s.ListInvoices)
	admin.POST("/venues/:venue_id/invoices", s.CreateInvoice)
	admin.GET("/venues/:venue_id/audit-logs", s.ListAuditLogs)
	admin.GET("/invoices/:invoice_id", s.GetInvoice)
	admin.POST("/invoices/:invoice_id/cancel", s.CancelInvoice)
}
