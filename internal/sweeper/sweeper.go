package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// OrderSweeper removes drafts that expired before now
type OrderSweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// PriceRefresher reloads cached prices. Failures are handled by the
// refresher and only reported here for logging.
type PriceRefresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler runs the draft sweep and the price refresh on cron schedules.
// Neither job blocks request handling.
type Scheduler struct {
	cron    *cron.Cron
	orders  OrderSweeper
	prices  PriceRefresher
	logger  *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

// New registers the jobs. An empty price schedule disables the refresh job.
func New(orders OrderSweeper, prices PriceRefresher, sweepSpec, refreshSpec string, logger *zap.Logger, now func() time.Time) (*Scheduler, error) {
	if now == nil {
		now = time.Now
	}
	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		orders:  orders,
		prices:  prices,
		logger:  logger,
		now:     now,
		timeout: 30 * time.Second,
	}

	if _, err := s.cron.AddFunc(sweepSpec, s.sweepJob); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", sweepSpec, err)
	}
	if prices != nil && refreshSpec != "" {
		if _, err := s.cron.AddFunc(refreshSpec, s.refreshJob); err != nil {
			return nil, fmt.Errorf("invalid price refresh schedule %q: %w", refreshSpec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs or ctx, whichever is first
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// RunOnce sweeps immediately and returns the number of drafts removed
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	return s.orders.Sweep(ctx, s.now())
}

func (s *Scheduler) sweepJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) refreshJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.prices.Refresh(ctx); err != nil {
		s.logger.Debug("price refresh failed, keeping cached prices", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
