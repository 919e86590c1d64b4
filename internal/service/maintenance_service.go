package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/library-api/pkg/jobs"
)

// Maintenance job types.
const (
	JobOverdueRefresh = "overdue.refresh"
	JobExportsCleanup = "exports.cleanup"
)

type overdueRefresher interface {
	RefreshOverdueStatuses(ctx context.Context, asOf time.Time) (int64, error)
}

type exportCleaner interface {
	Cleanup() ([]string, error)
}

type jobQueue interface {
	Handle(jobType string, h jobs.Handler)
	Start(ctx context.Context)
	Stop()
	Enqueue(job jobs.Job) error
}

// MaintenanceService periodically sweeps overdue loans and removes expired exports.
type MaintenanceService struct {
	queue    jobQueue
	loans    overdueRefresher
	exports  exportCleaner
	metrics  *MetricsService
	logger   *zap.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewMaintenanceService wires the job handlers onto queue. exports may be nil.
func NewMaintenanceService(queue jobQueue, loans overdueRefresher, exports exportCleaner, metrics *MetricsService, interval time.Duration, logger *zap.Logger) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	s := &MaintenanceService{queue: queue, loans: loans, exports: exports, metrics: metrics, logger: logger, interval: interval}
	queue.Handle(JobOverdueRefresh, s.refreshOverdue)
	if exports != nil {
		queue.Handle(JobExportsCleanup, s.cleanupExports)
	}
	return s
}

// Start launches the queue and the ticker. The first sweep is enqueued immediately.
func (s *MaintenanceService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.queue.Start(ctx)
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.Tick()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
	s.logger.Info("maintenance started", zap.Duration("interval", s.interval))
}

// Stop halts the ticker and drains the queue.
func (s *MaintenanceService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.queue.Stop()
	s.logger.Info("maintenance stopped")
}

// Tick enqueues one round of maintenance jobs.
func (s *MaintenanceService) Tick() {
	types := []string{JobOverdueRefresh}
	if s.exports != nil {
		types = append(types, JobExportsCleanup)
	}
	for _, t := range types {
		if err := s.queue.Enqueue(jobs.Job{Type: t}); err != nil {
			level := s.logger.Warn
			if errors.Is(err, jobs.ErrNotStarted) {
				level = s.logger.Debug
			}
			level("maintenance enqueue failed", zap.String("type", t), zap.Error(err))
		}
	}
}

func (s *MaintenanceService) refreshOverdue(ctx context.Context, job jobs.Job) error {
	n, err := s.loans.RefreshOverdueStatuses(ctx, time.Time{})
	s.metrics.JobFinished(job.Type, err)
	if err != nil {
		return err
	}
	s.logger.Debug("overdue refresh job done", zap.String("job_id", job.ID), zap.Int64("reclassified", n))
	return nil
}

func (s *MaintenanceService) cleanupExports(ctx context.Context, job jobs.Job) error {
	removed, err := s.exports.Cleanup()
	s.metrics.JobFinished(job.Type, err)
	if err != nil {
		return err
	}
	s.logger.Debug("export cleanup job done", zap.String("job_id", job.ID), zap.Int("removed", len(removed)))
	return nil
}
