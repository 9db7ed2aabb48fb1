package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/moleart/turnstile/internal/app/api/handlers"
	mw "github.com/moleart/turnstile/internal/app/api/middleware"
	historysvc "github.com/moleart/turnstile/internal/app/service/history"
	paysvc "github.com/moleart/turnstile/internal/app/service/payment"
	quotasvc "github.com/moleart/turnstile/internal/app/service/quota"
	subsvc "github.com/moleart/turnstile/internal/app/service/subscription"
	usersvc "github.com/moleart/turnstile/internal/app/service/user"
	cfgpkg "github.com/moleart/turnstile/pkg/config"
	"github.com/moleart/turnstile/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes.
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config,
	pay *paysvc.Service, quota *quotasvc.Service, subs *subsvc.Service, hist *historysvc.Service,
	users *usersvc.Service) {
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	handlers.RegisterAuthRoutes(pub, users)
	// Gateway callback carries its own signature; no bearer token here.
	handlers.RegisterPaymentNotifyRoutes(pub, pay, log)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.AuthMiddleware(cfg.JWT.Secret), mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterQuotaRoutes(apiV1, quota)
	handlers.RegisterPlanRoutes(apiV1, subs)
	handlers.RegisterPaymentRoutes(apiV1, pay)
	handlers.RegisterHistoryRoutes(apiV1, hist)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
