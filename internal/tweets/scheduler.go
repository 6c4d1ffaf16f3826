package tweets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
)

// Batcher runs one tweet batch.
type Batcher interface {
	ProcessBatch(ctx context.Context) (BatchResult, error)
}

type SchedulerConfig struct {
	Processor Batcher
	// Schedule is a standard cron spec or descriptor such as "@every 6h".
	Schedule   string
	RunOnStart bool
	Logger     logging.Logger
}

// Scheduler triggers tweet batches on a cron schedule. Overlapping ticks
// are skipped while a batch is still running.
type Scheduler struct {
	processor  Batcher
	schedule   cron.Schedule
	spec       string
	runOnStart bool
	logger     logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Processor == nil {
		return nil, errors.New("tweets: processor is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 6h"
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("tweets: invalid schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	return &Scheduler{
		processor:  cfg.Processor,
		schedule:   schedule,
		spec:       cfg.Schedule,
		runOnStart: cfg.RunOnStart,
		logger:     cfg.Logger,
	}, nil
}

// Start registers the batch job and, when configured, runs one batch
// immediately in the background. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil || s.stopped {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	clog := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	job := s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.runBatch(ctx, "scheduled") }))
	s.cron.Start()

	s.logger.WithFields(logging.Fields{
		"schedule": s.spec,
		"entry_id": job,
	}).Info("Tweet processor scheduler started")

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runBatch(ctx, "startup")
		}()
	}
}

// Stop cancels any running batch between candidates and waits for it to
// return. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.stopped = true
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()
	if c != nil {
		s.logger.Info("Tweet processor scheduler shutdown")
	}
}

func (s *Scheduler) runBatch(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	s.logger.WithField("trigger", trigger).Info("Starting scheduled tweet processing")
	res, err := s.processor.ProcessBatch(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("trigger", trigger).Error("Error in scheduled tweet processing")
		return
	}
	s.logger.WithFields(logging.Fields{
		"trigger":         trigger,
		"processed_count": res.ProcessedCount,
		"failed_count":    res.FailedCount,
	}).Info("Scheduled tweet processing finished")
}

// cronLogger routes cron's key/value logging into logrus.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(kvFields(keysAndValues)).Error("cron: " + msg)
}

func kvFields(kv []interface{}) logging.Fields {
	fields := logging.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
