package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/docs"
	"github.com/bayarinter/billing/internal/app/api/handlers"
	mw "github.com/bayarinter/billing/internal/app/api/middleware"
	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/app/service/billing"
	"github.com/bayarinter/billing/internal/app/service/invoice"
	"github.com/bayarinter/billing/internal/app/service/payment"
	"github.com/bayarinter/billing/internal/app/service/subscriber"
	cfgpkg "github.com/bayarinter/billing/pkg/config"
	"github.com/bayarinter/billing/pkg/metrics"
)

// Services bundles what the route table needs.
type Services struct {
	fx.In

	Invoices    *invoice.Manager
	Payments    *payment.Service
	Subscribers *subscriber.Service
	Engine      *billing.Engine
	DB          *repository.Postgres
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config, svc Services) {
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: metrics.RouteLabel,
			Logger:                  log,
		})
		p.Use(r)
	}

	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub, svc.DB)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))

	// Provider callbacks authenticate themselves, not with a reseller token.
	handlers.RegisterPaymentWebhookRoutes(apiV1, svc.Payments, log, mw.AdminAuth(cfg))

	admin := apiV1.Group("/admin")
	admin.Use(mw.AdminAuth(cfg))
	handlers.RegisterAdminRoutes(admin, svc.Engine, svc.Invoices, log)

	reseller := apiV1.Group("")
	reseller.Use(mw.ResellerAuth(cfg, log))
	handlers.RegisterCustomerInvoiceRoutes(reseller, svc.Invoices, log)
	handlers.RegisterResellerInvoiceRoutes(reseller, svc.Invoices, log)
	handlers.RegisterPaymentRoutes(reseller, svc.Payments, log)
	handlers.RegisterSubscriberRoutes(reseller, svc.Subscribers, log)
}

func runServer(lc fx.Lifecycle, sd fx.Shutdowner, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("server_error", "err", err)
					_ = sd.Shutdown(fx.ExitCode(1))
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
