package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/aging"
	agingdomain "github.com/carebridge/revcycle/internal/aging/domain"
	"github.com/carebridge/revcycle/internal/audit"
	auditdomain "github.com/carebridge/revcycle/internal/audit/domain"
	"github.com/carebridge/revcycle/internal/authorization"
	authdomain "github.com/carebridge/revcycle/internal/authorization/domain"
	"github.com/carebridge/revcycle/internal/claim"
	claimdomain "github.com/carebridge/revcycle/internal/claim/domain"
	"github.com/carebridge/revcycle/internal/config"
	"github.com/carebridge/revcycle/internal/observability"
	obslogger "github.com/carebridge/revcycle/internal/observability/logger"
	obsmetrics "github.com/carebridge/revcycle/internal/observability/metrics"
	obstracing "github.com/carebridge/revcycle/internal/observability/tracing"
	"github.com/carebridge/revcycle/internal/payer"
	payerdomain "github.com/carebridge/revcycle/internal/payer/domain"
	"github.com/carebridge/revcycle/internal/payment"
	paymentdomain "github.com/carebridge/revcycle/internal/payment/domain"
	"github.com/carebridge/revcycle/internal/reconciliation"
	recondomain "github.com/carebridge/revcycle/internal/reconciliation/domain"
	"github.com/carebridge/revcycle/internal/remittance"
	"github.com/carebridge/revcycle/internal/servicedelivery"
	svcdomain "github.com/carebridge/revcycle/internal/servicedelivery/domain"
	"github.com/carebridge/revcycle/pkg/lock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	lock.Module,
	audit.Module,
	payer.Module,
	authorization.Module,
	servicedelivery.Module,
	claim.Module,
	payment.Module,
	remittance.Module,
	reconciliation.Module,
	aging.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ActorContextMiddleware(cfg))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(cfg, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	payerSvc     payerdomain.Service
	authSvc      authdomain.Service
	serviceSvc   svcdomain.Service
	validator    svcdomain.Validator
	claimSvc     claimdomain.Service
	paymentSvc   paymentdomain.Service
	reconEngine  recondomain.Engine
	agingCalc    agingdomain.Calculator
	auditSvc     auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	PayerSvc    payerdomain.Service
	AuthSvc     authdomain.Service
	ServiceSvc  svcdomain.Service
	Validator   svcdomain.Validator
	ClaimSvc    claimdomain.Service
	PaymentSvc  paymentdomain.Service
	ReconEngine recondomain.Engine
	AgingCalc   agingdomain.Calculator
	AuditSvc    auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		payerSvc:    p.PayerSvc,
		authSvc:     p.AuthSvc,
		serviceSvc:  p.ServiceSvc,
		validator:   p.Validator,
		claimSvc:    p.ClaimSvc,
		paymentSvc:  p.PaymentSvc,
		reconEngine: p.ReconEngine,
		agingCalc:   p.AgingCalc,
		auditSvc:    p.AuditSvc,
	}

	svc.registerAPIRoutes()
	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	payers := api.Group("/payers")
	payers.POST("", s.CreatePayer)
	payers.GET("", s.ListPayers)
	payers.GET("/:payer_id", s.GetPayer)
	payers.PATCH("/:payer_id", s.UpdatePayer)

	auths := api.Group("/authorizations")
	auths.POST("", s.CreateAuthorization)
	auths.GET("/:authorization_id", s.GetAuthorization)
	auths.POST("/:authorization_id/activate", s.ActivateAuthorization)
	auths.POST("/:authorization_id/cancel", s.CancelAuthorization)

	services := api.Group("/services")
	services.POST("", s.CreateService)
	services.GET("", s.ListServices)
	services.GET("/:service_id", s.GetService)
	services.PATCH("/:service_id/documentation", s.UpdateServiceDocumentation)
	services.POST("/validate", s.ValidateServices)

	claims := api.Group("/claims")
	claims.POST("", s.CreateClaim)
	claims.GET("", s.ListClaims)
	claims.GET("/:claim_id", s.GetClaim)
	claims.POST("/:claim_id/revalidate", s.RevalidateClaim)
	claims.POST("/:claim_id/submit", s.SubmitClaim)
	claims.POST("/:claim_id/acknowledge", s.AcknowledgeClaim)
	claims.POST("/:claim_id/pending", s.MarkClaimPending)
	claims.POST("/:claim_id/appeal", s.AppealClaim)
	claims.POST("/:claim_id/finalize-denial", s.FinalizeClaimDenial)
	claims.POST("/:claim_id/void", s.VoidClaim)
	claims.POST("/:claim_id/resubmit", s.ResubmitClaim)

	payments := api.Group("/payments")
	payments.POST("", s.CreatePayment)
	payments.GET("", s.ListPayments)
	payments.GET("/:payment_id", s.GetPayment)
	payments.GET("/:payment_id/suggestions", s.SuggestPaymentMatches)
	payments.POST("/:payment_id/reconcile", s.ReconcilePayment)
	payments.POST("/:payment_id/auto-reconcile", s.AutoReconcilePayment)
	payments.POST("/:payment_id/undo-reconciliation", s.UndoReconciliation)

	recon := api.Group("/reconciliation")
	recon.POST("/batch", s.BatchReconcile)
	recon.POST("/remittances", s.ImportRemittance)

	reports := api.Group("/reports")
	reports.GET("/aging", s.AgingReport)
	reports.GET("/collections-worklist", s.CollectionWorklist)

	api.GET("/audit-logs", s.ListAuditLogs)
}
