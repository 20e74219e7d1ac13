package app

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/api/server"
	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/app/service/billing"
	"github.com/bayarinter/billing/internal/app/service/invoice"
	"github.com/bayarinter/billing/internal/app/service/notification"
	notificationlog "github.com/bayarinter/billing/internal/app/service/notification_log"
	"github.com/bayarinter/billing/internal/app/service/payment"
	"github.com/bayarinter/billing/internal/app/service/scheduler"
	"github.com/bayarinter/billing/internal/app/service/session"
	"github.com/bayarinter/billing/internal/app/service/subscriber"
	"github.com/bayarinter/billing/internal/platform/db"
	"github.com/bayarinter/billing/pkg/config"
	"github.com/bayarinter/billing/pkg/logger"
	"github.com/bayarinter/billing/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// runMetricsServer exposes /metrics on MetricsAddr when one is configured.
func runMetricsServer(lc fx.Lifecycle, sd fx.Shutdowner, log *zap.SugaredLogger, cfg *config.Config) {
	metrics.Register(log)
	if cfg.MetricsAddr == "" {
		return
	}
	srv := metrics.NewServer(cfg.MetricsAddr, "")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("metrics started", "addr", cfg.MetricsAddr)
			srv.Start(func(err error) {
				log.Errorw("metrics_server_error", "err", err)
				_ = sd.Shutdown(fx.ExitCode(1))
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
}

// core is shared by the API and the worker: storage, outbound channels and billing rules.
var core = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	repository.Module,
	notification.Module,
	notificationlog.Module,
	session.Module,
	invoice.Module,
	billing.Module,
	fx.Invoke(runMetricsServer),
)

var ApiModule = fx.Options(
	core,
	subscriber.Module,
	payment.Module,
	server.Module,
)

var WorkerModule = fx.Options(
	core,
	scheduler.Module,
)
