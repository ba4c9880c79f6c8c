package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	appartner "github.com/supplychain/backend/internal/application/partner"
	"github.com/supplychain/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Repairer fixes a single pair
type Repairer interface {
	Repair(ctx context.Context, req appartner.RepairRequest) (*appartner.RepairResult, error)
}

// Sweeper scans the whole table for broken pairs
type Sweeper interface {
	Sweep(ctx context.Context) (*appartner.SweepReport, error)
}

// Config holds reconcile scheduler configuration
type Config struct {
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	SweepInterval time.Duration // zero disables periodic sweeps
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Workers:    2,
		QueueSize:  256,
		JobTimeout: 10 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// RepairJob is one queued repair attempt
type RepairJob struct {
	ID      uuid.UUID
	Request appartner.RepairRequest
	Attempt int
}

// Stats counts job outcomes since start
type Stats struct {
	Submitted int64 `json:"submitted"`
	Succeeded int64 `json:"succeeded"`
	Retried   int64 `json:"retried"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Sweeps    int64 `json:"sweeps"`
	Queued    int   `json:"queued"`
}

// ReconcileScheduler runs pair repairs on a bounded worker pool and,
// optionally, a periodic full sweep. Failed repairs are retried with
// exponential backoff up to MaxRetries.
type ReconcileScheduler struct {
	config   Config
	repairer Repairer
	sweeper  Sweeper
	logger   *zap.Logger

	jobs      chan *RepairJob
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	submitted atomic.Int64
	succeeded atomic.Int64
	retried   atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	sweeps    atomic.Int64
}

// NewReconcileScheduler creates a scheduler. sweeper may be nil.
func NewReconcileScheduler(config Config, repairer Repairer, sweeper Sweeper, logger *zap.Logger) *ReconcileScheduler {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileScheduler{
		config:   config,
		repairer: repairer,
		sweeper:  sweeper,
		logger:   logger,
		jobs:     make(chan *RepairJob, config.QueueSize),
	}
}

// Start launches the workers and the sweep loop
func (s *ReconcileScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	if s.sweeper != nil && s.config.SweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}

	s.logger.Info("Reconcile scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Int("queue_size", s.config.QueueSize),
		zap.Duration("sweep_interval", s.config.SweepInterval),
	)
	return nil
}

// Stop cancels in-flight work and waits for the workers. Queued jobs are dropped.
func (s *ReconcileScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if n := len(s.jobs); n > 0 {
			s.dropped.Add(int64(n))
			s.logger.Warn("Reconcile scheduler dropped queued repairs", zap.Int("count", n))
		}
		s.logger.Info("Reconcile scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Reconcile scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit queues a repair. It never blocks.
func (s *ReconcileScheduler) Submit(req appartner.RepairRequest) error {
	job := &RepairJob{ID: uuid.New(), Request: req, Attempt: 1}
	if err := s.enqueue(job); err != nil {
		return err
	}
	s.submitted.Add(1)
	s.logger.Debug("Repair submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("operation", string(req.Operation)),
	)
	return nil
}

// Stats returns a snapshot of the job counters
func (s *ReconcileScheduler) Stats() Stats {
	return Stats{
		Submitted: s.submitted.Load(),
		Succeeded: s.succeeded.Load(),
		Retried:   s.retried.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
		Sweeps:    s.sweeps.Load(),
		Queued:    len(s.jobs),
	}
}

func (s *ReconcileScheduler) enqueue(job *RepairJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	select {
	case s.jobs <- job:
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *ReconcileScheduler) worker(workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.jobs:
			s.process(job, workerID)
		}
	}
}

func (s *ReconcileScheduler) process(job *RepairJob, workerID int) {
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("operation", string(job.Request.Operation)),
		zap.String("self_address", job.Request.SelfAddress),
		zap.String("company_address", job.Request.CompanyAddress),
		zap.Int("attempt", job.Attempt),
	)

	ctx, cancel := context.WithTimeout(s.ctx, s.config.JobTimeout)
	defer cancel()

	result, err := s.repairer.Repair(ctx, job.Request)
	if err == nil {
		s.succeeded.Add(1)
		log.Info("Pair repair finished", zap.String("action", result.Action))
		return
	}

	if shared.IsValidation(err) || job.Attempt > s.config.MaxRetries || s.ctx.Err() != nil {
		s.failed.Add(1)
		log.Error("Pair repair failed", zap.Error(err))
		return
	}

	delay := s.backoff(job.Attempt)
	job.Attempt++
	s.retried.Add(1)
	log.Warn("Pair repair failed, will retry", zap.Duration("delay", delay), zap.Error(err))

	time.AfterFunc(delay, func() {
		if err := s.enqueue(job); err != nil {
			s.dropped.Add(1)
			s.logger.Warn("Failed to re-queue repair",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
		}
	})
}

// backoff doubles RetryDelay per failed attempt, capped at one minute
func (s *ReconcileScheduler) backoff(attempt int) time.Duration {
	d := s.config.RetryDelay
	for i := 1; i < attempt && d < time.Minute; i++ {
		d *= 2
	}
	return min(d, time.Minute)
}

func (s *ReconcileScheduler) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runSweep()
		}
	}
}

func (s *ReconcileScheduler) runSweep() {
	report, err := s.sweeper.Sweep(s.ctx)
	s.sweeps.Add(1)
	if err != nil {
		s.logger.Error("Scheduled sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("Scheduled sweep finished",
		zap.Int("unpaired", report.Unpaired),
		zap.Int("status_mismatch", report.StatusMismatch),
		zap.Int("repaired", report.Repaired),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
}

var _ appartner.RepairSubmitter = (*ReconcileScheduler)(nil)
