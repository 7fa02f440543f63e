package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/bloodbridge/internal/actor"
	"github.com/smallbiznis/bloodbridge/internal/audit"
	auditdomain "github.com/smallbiznis/bloodbridge/internal/audit/domain"
	"github.com/smallbiznis/bloodbridge/internal/config"
	"github.com/smallbiznis/bloodbridge/internal/donor"
	"github.com/smallbiznis/bloodbridge/internal/identifier"
	"github.com/smallbiznis/bloodbridge/internal/inventory"
	invdomain "github.com/smallbiznis/bloodbridge/internal/inventory/domain"
	"github.com/smallbiznis/bloodbridge/internal/observability"
	obslogger "github.com/smallbiznis/bloodbridge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bloodbridge/internal/observability/metrics"
	obstracing "github.com/smallbiznis/bloodbridge/internal/observability/tracing"
	"github.com/smallbiznis/bloodbridge/internal/organization"
	orgdomain "github.com/smallbiznis/bloodbridge/internal/organization/domain"
	"github.com/smallbiznis/bloodbridge/internal/ratelimit"
	"github.com/smallbiznis/bloodbridge/internal/request"
	reqdomain "github.com/smallbiznis/bloodbridge/internal/request/domain"
	"github.com/smallbiznis/bloodbridge/internal/translog"
	logdomain "github.com/smallbiznis/bloodbridge/internal/translog/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	organization.Module,
	donor.Module,
	identifier.Module,
	inventory.Module,
	translog.Module,
	request.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obsCfg.ServiceName))
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())
	r.Use(ActorContextMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
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
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	requestSvc   reqdomain.Service
	viewSvc      logdomain.ViewService
	inventorySvc invdomain.Service
	orgRepo      orgdomain.Repository
	auditSvc     auditdomain.Service
	donorLimiter *ratelimit.DonorAcceptLimiter
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	RequestSvc   reqdomain.Service
	ViewSvc      logdomain.ViewService
	InventorySvc invdomain.Service
	OrgRepo      orgdomain.Repository
	AuditSvc     auditdomain.Service
	DonorLimiter *ratelimit.DonorAcceptLimiter `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics           `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		requestSvc:   p.RequestSvc,
		viewSvc:      p.ViewSvc,
		inventorySvc: p.InventorySvc,
		orgRepo:      p.OrgRepo,
		auditSvc:     p.AuditSvc,
		donorLimiter: p.DonorLimiter,
		obsMetrics:   p.ObsMetrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	requests := api.Group("/requests")
	{
		requests.GET("", s.listRequests)
		requests.GET("/queue", RequireRole(actor.RoleBloodBank), s.listBankQueue)
		requests.GET("/fulfilled", RequireRole(actor.RoleBloodBank, actor.RoleDonor), s.listFulfilledHistory)
		requests.GET("/visible", RequireRole(actor.RoleDonor), s.listDonorVisible)
		requests.GET("/mine", RequireRole(actor.RoleHospital, actor.RoleBloodBank), s.listMyRequests)

		requests.POST("/emergency", RequireRole(actor.RoleHospital, actor.RoleBloodBank), s.openEmergency)
		requests.POST("/drives", RequireRole(actor.RoleHospital, actor.RoleBloodBank), s.openBloodDrive)

		requests.POST("/:id/accept", RequireRole(actor.RoleBloodBank), s.bankAccept)
		requests.POST("/:id/reject", RequireRole(actor.RoleBloodBank), s.bankReject)
		requests.POST("/:id/donor-accept", RequireRole(actor.RoleDonor), s.donorAccept)
		requests.POST("/:id/donor-reject", RequireRole(actor.RoleDonor), s.donorReject)
	}

	api.POST("/inventory", RequireRole(actor.RoleBloodBank), s.adjustInventory)
	api.GET("/inventory", s.listInventory)

	api.GET("/organizations", s.listOrganizations)
	api.GET("/audit-logs", s.listAuditLogs)
}
