package server

import (
	"context"
	"net/http"
	"time"

	"github.com/creditrail/creditrail/internal/access"
	"github.com/creditrail/creditrail/internal/config"
	grantdomain "github.com/creditrail/creditrail/internal/grant/domain"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	"github.com/creditrail/creditrail/internal/reconciler"
	subscriptiondomain "github.com/creditrail/creditrail/internal/subscription/domain"
	webhookdomain "github.com/creditrail/creditrail/internal/webhook/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
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
	engine          *gin.Engine
	log             *zap.Logger
	grantSvc        grantdomain.Service
	ledgerSvc       ledgerdomain.Service
	subscriptionSvc subscriptiondomain.Service
	dispatcher      webhookdomain.Dispatcher
	accessSvc       *access.Service
	reconciler      *reconciler.Reconciler
}

type ServerParams struct {
	fx.In

	Engine          *gin.Engine
	Log             *zap.Logger
	GrantSvc        grantdomain.Service
	LedgerSvc       ledgerdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Dispatcher      webhookdomain.Dispatcher
	AccessSvc       *access.Service
	Reconciler      *reconciler.Reconciler
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Engine,
		log:             p.Log.Named("http.server"),
		grantSvc:        p.GrantSvc,
		ledgerSvc:       p.LedgerSvc,
		subscriptionSvc: p.SubscriptionSvc,
		dispatcher:      p.Dispatcher,
		accessSvc:       p.AccessSvc,
		reconciler:      p.Reconciler,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/webhooks/payments", s.handlePaymentWebhook)

	users := v1.Group("/users/:user_id")
	users.POST("/signup", s.handleSignup)
	users.POST("/access", s.handleAccess)
	users.POST("/plan", s.handleActivatePlan)
	users.POST("/adjustments", s.handleCreateAdjustment)
	users.GET("/balance", s.handleGetBalance)
	users.GET("/transactions", s.handleListTransactions)
	users.GET("/subscription", s.handleGetActiveSubscription)

	subscriptions := v1.Group("/subscriptions/:subscription_id")
	subscriptions.GET("", s.handleGetSubscription)
	subscriptions.POST("/cancel", s.handleCancelSubscription)

	v1.POST("/admin/reconcile", s.handleReconcile)
}
