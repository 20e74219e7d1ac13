package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/service/billing"
	"github.com/bayarinter/billing/pkg/config"
	"github.com/bayarinter/billing/pkg/dates"
	"github.com/bayarinter/billing/pkg/metrics"
	"github.com/bayarinter/billing/pkg/types"
)

type fakeRunner struct {
	mu      sync.Mutex
	days    []time.Time
	running atomic.Int32
	overlap atomic.Bool
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, job string, today time.Time) (*billing.BatchResult, error) {
	if f.running.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.running.Add(-1)
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.days = append(f.days, today)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &billing.BatchResult{Job: job, Candidates: 3, Processed: 2, Skipped: 1}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Timezone: "Asia/Jakarta",
		Scheduler: config.SchedulerConfig{
			CustomerInvoice: "0 9 * * *",
			RemindUnpaid:    "10 9 * * *",
			SuspendOverdue:  "0 6 1 * *",
			ResellerInvoice: "10 0 1 * *",
		},
	}
}

func TestRunJob_BindsTodayInTimezone(t *testing.T) {
	runner := &fakeRunner{}
	s := New(testConfig(), runner, zap.NewNop().Sugar())
	// 20:00 UTC on the 6th is already the 7th in Jakarta
	s.now = func() time.Time { return time.Date(2025, 1, 6, 20, 0, 0, 0, time.UTC) }

	before := testutil.ToFloat64(metrics.JobItems.WithLabelValues(types.JobRemindUnpaidInvoices, "processed"))
	res, err := s.RunJob(context.Background(), types.JobRemindUnpaidInvoices)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	require.Len(t, runner.days, 1)
	assert.Equal(t, dates.New(2025, 1, 7), runner.days[0])

	after := testutil.ToFloat64(metrics.JobItems.WithLabelValues(types.JobRemindUnpaidInvoices, "processed"))
	assert.Equal(t, float64(2), after-before)
}

func TestRunJob_RecordsFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("db down")}
	s := New(testConfig(), runner, zap.NewNop().Sugar())

	failed := metrics.JobRuns.WithLabelValues(types.JobSuspendOverdueUsers, "failed")
	before := testutil.ToFloat64(failed)
	_, err := s.RunJob(context.Background(), types.JobSuspendOverdueUsers)
	assert.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(failed)-before)
}

func TestRunJob_Serialized(t *testing.T) {
	runner := &fakeRunner{}
	s := New(testConfig(), runner, zap.NewNop().Sugar())

	var wg sync.WaitGroup
	for _, j := range s.Jobs() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RunJob(context.Background(), j.Name)
		}()
	}
	wg.Wait()

	assert.False(t, runner.overlap.Load())
	assert.Len(t, runner.days, 4)
}

func TestRegister(t *testing.T) {
	s := New(testConfig(), &fakeRunner{}, zap.NewNop().Sugar())
	require.NoError(t, s.Register())
	assert.Len(t, s.cron.Entries(), 4)

	cfg := testConfig()
	cfg.Scheduler.RemindUnpaid = "every morning"
	s = New(cfg, &fakeRunner{}, zap.NewNop().Sugar())
	assert.Error(t, s.Register())
}

func TestRegister_NextFiringInTimezone(t *testing.T) {
	s := New(testConfig(), &fakeRunner{}, zap.NewNop().Sugar())
	require.NoError(t, s.Register())

	loc := testConfig().Location()
	from := time.Date(2025, 1, 31, 12, 0, 0, 0, loc)
	names := map[string]time.Time{}
	for i, e := range s.cron.Entries() {
		names[s.Jobs()[i].Name] = e.Schedule.Next(from)
	}
	assert.Equal(t, time.Date(2025, 2, 1, 9, 0, 0, 0, loc), names[types.JobGenerateCustomerInvoices])
	assert.Equal(t, time.Date(2025, 2, 1, 6, 0, 0, 0, loc), names[types.JobSuspendOverdueUsers])
	assert.Equal(t, time.Date(2025, 2, 1, 0, 10, 0, 0, loc), names[types.JobGenerateResellerInvoices])
}

func TestStop(t *testing.T) {
	s := New(testConfig(), &fakeRunner{}, zap.NewNop().Sugar())
	require.NoError(t, s.Register())
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
	assert.Error(t, s.ctx.Err(), "running jobs see cancellation")
}
