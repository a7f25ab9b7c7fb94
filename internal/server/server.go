package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/bazaar/internal/authorization"
	"github.com/smallbiznis/bazaar/internal/config"
	"github.com/smallbiznis/bazaar/internal/entity"
	"github.com/smallbiznis/bazaar/internal/identity"
	"github.com/smallbiznis/bazaar/internal/observability"
	obsmiddleware "github.com/smallbiznis/bazaar/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bazaar/internal/observability/metrics"
	obstracing "github.com/smallbiznis/bazaar/internal/observability/tracing"
	onboardingdomain "github.com/smallbiznis/bazaar/internal/onboarding/domain"
	"github.com/smallbiznis/bazaar/internal/ratelimit"
	userdomain "github.com/smallbiznis/bazaar/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(identity.NewContextProvider),
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine     *gin.Engine
	log        *zap.Logger
	identity   identity.Provider
	authz      authorization.Service
	users      userdomain.Service
	store      *entity.Store
	onboarding onboardingdomain.Service
	limiter    ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Log        *zap.Logger
	Identity   identity.Provider
	Authz      authorization.Service
	Users      userdomain.Service
	Store      *entity.Store
	Onboarding onboardingdomain.Service
	Limiter    ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		log:        p.Log.Named("http.server"),
		identity:   p.Identity,
		authz:      p.Authz,
		users:      p.Users,
		store:      p.Store,
		onboarding: p.Onboarding,
		limiter:    p.Limiter,
	}
	if svc.limiter == nil {
		svc.limiter = ratelimit.Unlimited{}
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.Identity())

	v1.POST("/users", s.RateLimit("register"), s.RegisterUser)
	v1.GET("/users/me", s.AuthRequired(), s.Me)
	v1.PATCH("/users/me", s.AuthRequired(), s.UpdateMe)

	v1.POST("/authorize", s.Authorize)

	v1.GET("/onboarding/vendor", s.AuthRequired(), s.OnboardingState)
	v1.POST("/onboarding/vendor", s.AuthRequired(), s.RateLimit("onboarding"), s.BecomeVendor)

	realms := v1.Group("/realms")
	{
		realms.GET("", s.AuthRequired(), s.ListRealms)

		realm := realms.Group("/:type/:slug", s.RealmContext())
		realm.GET("", s.GetRealm)
		realm.GET("/store", s.GetRealmStore)
		realm.GET("/products", s.ListRealmProducts)
		realm.POST("/products", s.AuthRequired(), s.CreateProduct)
		realm.GET("/cart", s.AuthRequired(), s.ListCart)
		realm.POST("/cart", s.AuthRequired(), s.AddCartItem)
	}

	v1.GET("/products", s.ListProducts)
	v1.GET("/products/:id", s.GetProduct)
	v1.PATCH("/products/:id", s.AuthRequired(), s.UpdateProduct)
	v1.DELETE("/products/:id", s.AuthRequired(), s.DeleteProduct)

	v1.GET("/stores/:id", s.GetStore)

	v1.PATCH("/cart/:id", s.AuthRequired(), s.UpdateCartItem)
	v1.DELETE("/cart/:id", s.AuthRequired(), s.DeleteCartItem)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
