package scheduler

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/service/billing"
)

func asRunner(e *billing.Engine) Runner { return e }

func registerLifecycle(lc fx.Lifecycle, s *Scheduler, log *zap.SugaredLogger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.Register(); err != nil {
				return err
			}
			s.Start()
			log.Infow("scheduler_started", "jobs", len(s.Jobs()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("scheduler_stopping")
			return s.Stop(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(asRunner, New),
	fx.Invoke(registerLifecycle),
)
