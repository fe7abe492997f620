package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/observability"
	"go-stepflow/internal/service"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs registered jobs on cron schedules. A job still running when
// its next tick fires is skipped for that tick.
type Scheduler struct {
	cron     *cron.Cron
	registry JobRegistry
	metrics  *observability.Metrics
	log      *zap.Logger

	mu  sync.Mutex
	ctx context.Context
}

func NewScheduler(registry JobRegistry, metrics *observability.Metrics, log *zap.Logger) *Scheduler {
	log = log.Named("scheduler")
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		registry: registry,
		metrics:  metrics,
		log:      log,
		ctx:      context.Background(),
	}
}

// Schedule registers the named job under a standard cron spec or a
// descriptor such as "@every 5m".
func (s *Scheduler) Schedule(name, spec string) error {
	if _, ok := s.registry[name]; !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunJob(s.baseContext(), name) }); err != nil {
		return fmt.Errorf("scheduling %s: %w", name, err)
	}
	return nil
}

// RunJob runs one job now and records its duration.
func (s *Scheduler) RunJob(ctx context.Context, name string) (service.SweepResult, error) {
	job, ok := s.registry[name]
	if !ok {
		return service.SweepResult{}, fmt.Errorf("unknown job %q", name)
	}

	start := time.Now()
	res, err := job(ctx)
	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.SweepDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}

	log := s.log.With(zap.String("job", name), zap.Duration("elapsed", elapsed))
	if err != nil {
		log.Error("sweep failed", zap.Error(err))
		return res, err
	}
	if res.Examined > 0 {
		log.Info("sweep finished",
			zap.Int("examined", res.Examined),
			zap.Int("applied", res.Applied),
			zap.Int("unassigned", res.Unassigned),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}

// Start begins firing jobs. Runs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop halts the schedule and waits for running jobs, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs still running")
	}
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Pool drains the re-evaluation queue, running auto-approval for each
// submission popped.
type Pool struct {
	workerID   string
	queue      ports.TaskQueue
	engine     Sweeper
	log        *zap.Logger
	errorDelay time.Duration
	wg         sync.WaitGroup
}

func NewPool(queue ports.TaskQueue, engine Sweeper, log *zap.Logger) *Pool {
	id := uuid.New().String()
	return &Pool{
		workerID:   id,
		queue:      queue,
		engine:     engine,
		log:        log.Named("worker").With(zap.String("worker_id", id)),
		errorDelay: time.Second,
	}
}

// ProcessNext handles exactly one queue entry. It reports false when the
// queue could not be read.
func (p *Pool) ProcessNext(ctx context.Context) bool {
	// 1. POP: wait until a submission is available
	raw, err := p.queue.Pop(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("popping from queue", zap.Error(err))
		}
		return false
	}
	if raw == "" {
		return true
	}

	// 2. PARSE
	submissionID, err := uuid.Parse(raw)
	if err != nil {
		p.log.Warn("dropping malformed queue entry", zap.String("entry", raw), zap.Error(err))
		return true
	}

	// 3. EVALUATE
	res, err := p.engine.EvaluateAutoApprovals(ctx, submissionID)
	log := p.log.With(zap.Stringer("submission_id", submissionID))
	if err != nil {
		log.Error("re-evaluating auto-approvals", zap.Error(err))
		return true
	}
	if res.Applied > 0 {
		log.Info("auto-approved steps", zap.Int("applied", res.Applied))
	}
	return true
}

// StartPool launches concurrency worker loops that run until ctx is done.
func (p *Pool) StartPool(ctx context.Context, concurrency int) {
	p.log.Info("starting worker pool", zap.Int("concurrency", concurrency))

	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go func(threadID int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					p.log.Debug("worker thread shutting down", zap.Int("thread", threadID))
					return
				default:
				}
				if !p.ProcessNext(ctx) {
					select {
					case <-ctx.Done():
					case <-time.After(p.errorDelay):
					}
				}
			}
		}(i)
	}
}

// Wait blocks until every worker loop has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
