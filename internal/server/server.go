package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/satgate/satgate/internal/apikey"
	apikeydomain "github.com/satgate/satgate/internal/apikey/domain"
	"github.com/satgate/satgate/internal/authz"
	"github.com/satgate/satgate/internal/challenge"
	challengedomain "github.com/satgate/satgate/internal/challenge/domain"
	"github.com/satgate/satgate/internal/config"
	"github.com/satgate/satgate/internal/earner"
	earnerdomain "github.com/satgate/satgate/internal/earner/domain"
	"github.com/satgate/satgate/internal/gateway"
	gatewaydomain "github.com/satgate/satgate/internal/gateway/domain"
	"github.com/satgate/satgate/internal/metricspush"
	obslogger "github.com/satgate/satgate/internal/observability/logger"
	obsmetrics "github.com/satgate/satgate/internal/observability/metrics"
	obstracing "github.com/satgate/satgate/internal/observability/tracing"
	"github.com/satgate/satgate/internal/payout"
	payoutdomain "github.com/satgate/satgate/internal/payout/domain"
	"github.com/satgate/satgate/internal/proxy"
	proxydomain "github.com/satgate/satgate/internal/proxy/domain"
	"github.com/satgate/satgate/internal/rail"
	"github.com/satgate/satgate/internal/ratelimit"
	"github.com/satgate/satgate/internal/requestlog"
	requestlogdomain "github.com/satgate/satgate/internal/requestlog/domain"
	"github.com/satgate/satgate/internal/session"
	sessiondomain "github.com/satgate/satgate/internal/session/domain"
	"github.com/satgate/satgate/internal/topup"
	topupdomain "github.com/satgate/satgate/internal/topup/domain"
	"github.com/satgate/satgate/internal/voucher"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	metricspush.Module,
	fx.Provide(registerGin),
	authz.Module,
	rail.Module,
	ratelimit.Module,
	voucher.Module,
	apikey.Module,
	earner.Module,
	session.Module,
	gateway.Module,
	topup.Module,
	payout.Module,
	requestlog.Module,
	challenge.Module,
	proxy.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
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
	engine           *gin.Engine
	cfg              config.Config
	db               *gorm.DB
	genID            *snowflake.Node
	proxySvc         proxydomain.Service
	challengeSvc     challengedomain.Service
	sessionSvc       sessiondomain.Service
	topupSvc         topupdomain.Service
	gatewaySvc       gatewaydomain.Service
	earnerSvc        earnerdomain.Service
	apiKeySvc        apikeydomain.Service
	payoutSvc        payoutdomain.Service
	requestLogSvc    requestlogdomain.Service
	authzSvc         authz.Service
	challengeLimiter *ratelimit.ChallengeLimiter
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	DB               *gorm.DB
	GenID            *snowflake.Node
	ProxySvc         proxydomain.Service
	ChallengeSvc     challengedomain.Service
	SessionSvc       sessiondomain.Service
	TopupSvc         topupdomain.Service
	GatewaySvc       gatewaydomain.Service
	EarnerSvc        earnerdomain.Service
	APIKeySvc        apikeydomain.Service
	PayoutSvc        payoutdomain.Service
	RequestLogSvc    requestlogdomain.Service
	AuthzSvc         authz.Service
	ChallengeLimiter *ratelimit.ChallengeLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		db:               p.DB,
		genID:            p.GenID,
		proxySvc:         p.ProxySvc,
		challengeSvc:     p.ChallengeSvc,
		sessionSvc:       p.SessionSvc,
		topupSvc:         p.TopupSvc,
		gatewaySvc:       p.GatewaySvc,
		earnerSvc:        p.EarnerSvc,
		apiKeySvc:        p.APIKeySvc,
		payoutSvc:        p.PayoutSvc,
		requestLogSvc:    p.RequestLogSvc,
		authzSvc:         p.AuthzSvc,
		challengeLimiter: p.ChallengeLimiter,
	}

	svc.registerProxyRoutes()
	svc.registerPublicRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerProxyRoutes() {
	g := s.engine.Group("/g")

	g.Any("/:gateway_id/*path", s.HandleProxy)
}

func (s *Server) registerPublicRoutes() {
	// NewEngine's /health is pure liveness; readiness also pings the
	// database.
	s.engine.GET("/ready", s.Ready)

	v1 := s.engine.Group("/v1")

	// -------- Sessions --------
	v1.POST("/sessions", s.CreateSession)
	v1.GET("/sessions/balance", s.GetSessionBalance)

	// -------- Top-ups --------
	// The payment page polls GET /v1/topups/:id, so it stays public.
	v1.POST("/topups", s.CreateTopup)
	v1.GET("/topups/:id", s.GetTopupStatus)
	v1.GET("/topups/:id/status", s.GetTopupStatus)

	// -------- Earner signup --------
	v1.POST("/earners", s.RegisterEarner)
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.APIKeyRequired())

	// -------- Gateways --------
	v1.GET("/gateways", s.authorizeAction(authz.ObjectGateway, authz.ActionGatewayView), s.ListGateways)
	v1.POST("/gateways", s.authorizeAction(authz.ObjectGateway, authz.ActionGatewayCreate), s.RequireScope(apikeydomain.ScopeGatewaysWrite), s.CreateGateway)
	v1.GET("/gateways/:id", s.authorizeAction(authz.ObjectGateway, authz.ActionGatewayView), s.GetGateway)
	v1.PATCH("/gateways/:id", s.authorizeAction(authz.ObjectGateway, authz.ActionGatewayUpdate), s.RequireScope(apikeydomain.ScopeGatewaysWrite), s.UpdateGateway)
	v1.POST("/gateways/:id/activate", s.authorizeAction(authz.ObjectGateway, authz.ActionGatewayActivate), s.RequireScope(apikeydomain.ScopeGatewaysWrite), s.ActivateGateway)
	v1.POST("/gateways/:id/deactivate", s.authorizeAction(authz.ObjectGateway, authz.ActionGatewayDeactivate), s.RequireScope(apikeydomain.ScopeGatewaysWrite), s.DeactivateGateway)

	// -------- Request logs --------
	v1.GET("/gateways/:id/logs", s.authorizeAction(authz.ObjectRequestLog, authz.ActionRequestLogView), s.RequireScope(apikeydomain.ScopeLogsRead), s.ListGatewayLogs)

	// -------- Earner self-service --------
	v1.GET("/earners/me", s.authorizeAction(authz.ObjectEarner, authz.ActionEarnerView), s.GetMe)
	v1.PATCH("/earners/me", s.authorizeAction(authz.ObjectEarner, authz.ActionEarnerUpdate), s.UpdateMe)
	v1.GET("/earners/me/balances", s.authorizeAction(authz.ObjectEarner, authz.ActionEarnerView), s.GetMyBalances)

	// -------- Statements --------
	v1.GET("/earners/me/statement", s.authorizeAction(authz.ObjectStatement, authz.ActionStatementView), s.RequireScope(apikeydomain.ScopeLogsRead), s.GetStatement)
	v1.GET("/earners/me/statement/pdf", s.authorizeAction(authz.ObjectStatement, authz.ActionStatementView), s.RequireScope(apikeydomain.ScopeLogsRead), s.GetStatementPDF)

	// -------- API keys --------
	v1.GET("/api-keys", s.authorizeAction(authz.ObjectAPIKey, authz.ActionAPIKeyView), s.ListAPIKeys)
	v1.POST("/api-keys", s.authorizeAction(authz.ObjectAPIKey, authz.ActionAPIKeyCreate), s.CreateAPIKey)
	v1.POST("/api-keys/:key_id/rotate", s.authorizeAction(authz.ObjectAPIKey, authz.ActionAPIKeyCreate), s.RotateAPIKey)
	v1.POST("/api-keys/:key_id/revoke", s.authorizeAction(authz.ObjectAPIKey, authz.ActionAPIKeyRevoke), s.RevokeAPIKey)

	// -------- Payouts --------
	v1.POST("/payouts", s.authorizeAction(authz.ObjectPayout, authz.ActionPayoutRequest), s.RequireScope(apikeydomain.ScopePayoutsWrite), s.RequestPayout)
	v1.GET("/payouts", s.authorizeAction(authz.ObjectPayout, authz.ActionPayoutView), s.ListPayouts)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/v1/admin", s.APIKeyRequired(), s.RequireAdmin())

	admin.GET("/earners", s.authorizeAction(authz.ObjectEarner, authz.ActionEarnerList), s.ListEarners)
	admin.POST("/sweep", s.authorizeAction(authz.ObjectSweep, authz.ActionSweepRun), s.RunSweep)
}
