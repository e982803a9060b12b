package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nkiryanov/walletledger/internal/logger"
)

type checker interface {
	Check(ctx context.Context) (Report, error)
}

// Scheduler runs the ledger check periodically
type Scheduler struct {
	cron    *cron.Cron
	checker checker
	timeout time.Duration
	logger  logger.Logger
}

// Schedule is a standard cron spec or descriptor like "@hourly" or "@every 30m"
func NewScheduler(c checker, schedule string, timeout time.Duration, l logger.Logger) (*Scheduler, error) {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	cl := cronLogger{logger: l}
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		checker: c,
		timeout: timeout,
		logger:  l,
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and returns context done when the running check finishes
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.checker.Check(ctx)
	if err != nil {
		s.logger.Error("Ledger reconciliation failed", "error", err)
		return
	}

	s.logger.Info("Ledger reconciled",
		"wallets", report.Wallets,
		"entries", report.Entries,
		"violations", len(report.Violations),
	)
}

// Makes our logger usable by cron
type cronLogger struct {
	logger logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
