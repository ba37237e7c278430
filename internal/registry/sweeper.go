package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper runs Sweep on a cron schedule.
type Sweeper struct {
	reg     *Registry
	cron    *cron.Cron
	timeout time.Duration
	logger  *zap.Logger
}

// NewSweeper schedules reg.Sweep with a standard cron spec or descriptor
// such as "@daily". An empty schedule disables sweeping and returns nil.
func NewSweeper(reg *Registry, schedule string, logger *zap.Logger) (*Sweeper, error) {
	if schedule == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	s := &Sweeper{
		reg:     reg,
		timeout: time.Minute,
		logger:  logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cl),
			cron.Recover(cl),
		)),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.reg.Sweep(ctx, false); err != nil {
		s.logger.Warn("attribute name sweep failed", zap.Error(err))
	}
}

func (s *Sweeper) Start() {
	if s == nil {
		return
	}
	s.cron.Start()
	s.logger.Info("attribute name sweeper started")
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	<-s.cron.Stop().Done()
}

type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...any) { l.s.Debugw(msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}
