// Package scheduler fires the billing batch jobs on wall-clock cron schedules in the
// configured timezone. Jobs never overlap, even when their triggers coincide.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/service/billing"
	"github.com/bayarinter/billing/pkg/config"
	"github.com/bayarinter/billing/pkg/dates"
	"github.com/bayarinter/billing/pkg/logctx"
	"github.com/bayarinter/billing/pkg/metrics"
	"github.com/bayarinter/billing/pkg/tool"
	"github.com/bayarinter/billing/pkg/types"
)

// Runner executes one named batch job for a calendar day. *billing.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, job string, today time.Time) (*billing.BatchResult, error)
}

// Job pairs a job name with its cron spec.
type Job struct {
	Name string
	Spec string
}

type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	jobs   []Job
	loc    *time.Location
	log    *zap.SugaredLogger
	now    func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg *config.Config, runner Runner, log *zap.SugaredLogger) *Scheduler {
	loc := cfg.Location()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger{log})),
			cron.WithLogger(cronLogger{log}),
		),
		runner: runner,
		jobs: []Job{
			{Name: types.JobGenerateCustomerInvoices, Spec: cfg.Scheduler.CustomerInvoice},
			{Name: types.JobRemindUnpaidInvoices, Spec: cfg.Scheduler.RemindUnpaid},
			{Name: types.JobSuspendOverdueUsers, Spec: cfg.Scheduler.SuspendOverdue},
			{Name: types.JobGenerateResellerInvoices, Spec: cfg.Scheduler.ResellerInvoice},
		},
		loc:    loc,
		log:    log,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) Jobs() []Job {
	return s.jobs
}

// Register adds every job to the cron table. An invalid spec fails registration as a whole.
func (s *Scheduler) Register() error {
	for _, j := range s.jobs {
		if _, err := s.cron.AddFunc(j.Spec, func() {
			_, _ = s.RunJob(s.ctx, j.Name)
		}); err != nil {
			return fmt.Errorf("failed to schedule %s (%q): %w", j.Name, j.Spec, err)
		}
		s.log.Infow("job_scheduled", "job", j.Name, "schedule", j.Spec, "timezone", s.loc.String())
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new firings, cancels running jobs and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunJob runs one job to completion with today bound to the current date in the billing
// timezone. Calls are serialized.
func (s *Scheduler) RunJob(ctx context.Context, name string) (*billing.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = logctx.WithLogger(ctx, s.log.With("job", name, "run_id", tool.GenerateUUIDV7()))
	lg := logctx.FromCtx(ctx, s.log)
	today := dates.Today(s.now(), s.loc)
	start := time.Now()
	lg.Infow("job_started", "today", dates.Format(today))

	res, err := s.runner.Run(ctx, name, today)
	metrics.JobDuration.WithLabelValues(name).Observe(metrics.MillisecondsSince(start))
	metrics.JobRuns.WithLabelValues(name, metrics.ResultLabel(err == nil)).Inc()
	if res != nil {
		metrics.JobItems.WithLabelValues(name, "processed").Add(float64(res.Processed))
		metrics.JobItems.WithLabelValues(name, "skipped").Add(float64(res.Skipped))
		metrics.JobItems.WithLabelValues(name, "failed").Add(float64(res.Failed))
	}
	if err != nil {
		lg.Errorw("job_failed", "err", err, "result", res)
		return res, err
	}
	lg.Infow("job_finished", "candidates", res.Candidates, "processed", res.Processed,
		"skipped", res.Skipped, "failed", res.Failed, "duration_ms", metrics.MillisecondsSince(start))
	return res, nil
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron_"+msg, append(keysAndValues, "err", err)...)
}
