// Package supervisor is the Run Supervisor (component D): a bounded
// worker pool that takes campaigns through query build, fetch and
// stream processing sequentially, off the HTTP goroutine.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hotosm/mapcampaign/internal/apperr"
	"github.com/hotosm/mapcampaign/internal/core/observability"
	"github.com/hotosm/mapcampaign/internal/fetcher"
	"github.com/hotosm/mapcampaign/internal/logger"
	"github.com/hotosm/mapcampaign/internal/model"
	"github.com/hotosm/mapcampaign/internal/querybuilder"
	"github.com/hotosm/mapcampaign/internal/store"
	"github.com/hotosm/mapcampaign/internal/streamproc"
)

// Store is the subset of *store.Store the supervisor depends on.
type Store interface {
	Load(uuid string) (model.Campaign, error)
	SetStatus(uuid string, status model.Status) error
	AllRunning() ([]string, error)
	OverpassPath(uuid string) string
	OutputPath(uuid string) string
}

var _ Store = (*store.Store)(nil)

// Fetcher is the subset of *fetcher.Fetcher the supervisor depends on.
type Fetcher interface {
	Fetch(ctx context.Context, query, outputPath string) error
}

var _ Fetcher = (*fetcher.Fetcher)(nil)

// Supervisor owns the bounded worker pool that runs campaigns.
type Supervisor struct {
	log          *slog.Logger
	store        Store
	fetcher      Fetcher
	fetchTimeout time.Duration

	jobs    chan string
	workers int

	idle   int32
	idleMu sync.Mutex

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Supervisor with the given worker pool and queue sizes.
// workers and queueSize fall back to 1 and 1024 respectively if non-positive.
// fetchTimeout bounds the B phase of each run; zero means no extra deadline
// beyond the run's own context.
func New(log *slog.Logger, st Store, f Fetcher, workers, queueSize int, fetchTimeout time.Duration) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Supervisor{
		log:          log,
		store:        st,
		fetcher:      f,
		fetchTimeout: fetchTimeout,
		jobs:         make(chan string, queueSize),
		workers:      workers,
		idle:         int32(workers),
	}
}

// Start launches the worker pool, then runs Recover before returning.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go s.worker(ctx)
	}

	if err := s.Recover(); err != nil {
		s.log.Error("supervisor recover failed", "err", err)
	}
}

// Stop cancels all workers and waits for them to drain.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Enqueue submits uuid for processing. It never blocks under normal
// operation: the jobs channel is sized generously (MAPCAMPAIGN_RUN_QUEUE_SIZE).
func (s *Supervisor) Enqueue(uuid string) error {
	select {
	case s.jobs <- uuid:
		return nil
	default:
		return fmt.Errorf("supervisor: run queue full")
	}
}

// RunNow drives uuid through the pipeline synchronously on the caller's
// goroutine, bypassing the worker pool. Used by the CLI's one-shot `run`
// subcommand, where there is no pool to hand a job off to.
func (s *Supervisor) RunNow(ctx context.Context, uuid string) {
	s.setBusy()
	defer s.setIdle()
	s.runOne(ctx, uuid)
}

// Readiness implements health.ReadinessReporter: ready once at least one
// worker exists, idleWorkers reports how many are not currently processing.
func (s *Supervisor) Readiness() (ready bool, idleWorkers int) {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	return s.workers > 0, int(s.idle)
}

// Recover sweeps the store for campaigns left Running from a prior crash
// and marks them Failed, since no in-memory run can possibly still be
// in flight for them after a restart.
func (s *Supervisor) Recover() error {
	uuids, err := s.store.AllRunning()
	if err != nil {
		return fmt.Errorf("supervisor: recover: %w", err)
	}
	for _, uuid := range uuids {
		if err := s.store.SetStatus(uuid, model.StatusFailed); err != nil {
			s.log.Error("recover: mark failed", "uuid", uuid, "err", err)
			continue
		}
		s.log.Warn("recover: marked interrupted run failed", "uuid", uuid, "reason", "interrupted by restart")
	}
	return nil
}

func (s *Supervisor) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case uuid, ok := <-s.jobs:
			if !ok {
				return
			}
			s.setBusy()
			s.runOne(ctx, uuid)
			s.setIdle()
		}
	}
}

func (s *Supervisor) setBusy() {
	s.idleMu.Lock()
	s.idle--
	s.idleMu.Unlock()
}

func (s *Supervisor) setIdle() {
	s.idleMu.Lock()
	s.idle++
	s.idleMu.Unlock()
}

// runOne drives a single campaign through A -> B -> C sequentially,
// persisting the terminal status regardless of outcome.
func (s *Supervisor) runOne(ctx context.Context, uuid string) {
	ctx = logger.WithCampaignUUID(ctx, uuid)
	start := time.Now()
	log := s.log.With("campaign_uuid", uuid)

	result := "ok"
	defer func() {
		observability.ObserveRun(result, time.Since(start).Seconds())
	}()

	c, err := s.store.Load(uuid)
	if err != nil {
		log.Error("load campaign", "err", err)
		result = "load_failed"
		return
	}

	if err := s.store.SetStatus(uuid, model.StatusRunning); err != nil {
		log.Error("set running", "err", err)
		result = "persist_failed"
		return
	}

	query, err := querybuilder.Build(c)
	if err != nil {
		log.Error("build query", "err", err)
		s.fail(uuid, log)
		result = "build_failed"
		return
	}

	fetchCtx := ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	overpassPath := s.store.OverpassPath(uuid)
	if err := s.fetcher.Fetch(fetchCtx, query, overpassPath); err != nil {
		log.Error("fetch", "err", err)
		s.fail(uuid, log)
		result = fetchResultLabel(err)
		return
	}

	outputPath := s.store.OutputPath(uuid)
	if err := streamproc.Run(overpassPath, outputPath, c.Tags, c.GeometryTypes); err != nil {
		log.Error("stream process", "err", err)
		s.fail(uuid, log)
		result = "parse_failed"
		return
	}

	if err := s.store.SetStatus(uuid, model.StatusFinished); err != nil {
		log.Error("set finished", "err", err)
		result = "persist_failed"
		return
	}
	log.Info("run finished", "dur", time.Since(start).String())
}

func (s *Supervisor) fail(uuid string, log *slog.Logger) {
	if err := s.store.SetStatus(uuid, model.StatusFailed); err != nil {
		log.Error("set failed", "err", err)
	}
}

func fetchResultLabel(err error) string {
	if errors.Is(err, apperr.ErrFetchFailed) {
		return "fetch_failed"
	}
	return "fetch_error"
}
