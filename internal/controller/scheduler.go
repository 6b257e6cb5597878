package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/specsync/specsync/internal/api"
	"github.com/specsync/specsync/internal/metrics"
)

// SchedulerConfig controls the periodic sweep cadence.
type SchedulerConfig struct {
	SweepInterval time.Duration
}

// LoadSchedulerConfigFromEnv loads scheduler config from environment variables.
func LoadSchedulerConfigFromEnv() (SchedulerConfig, error) {
	interval := 2 * time.Minute
	if value := strings.TrimSpace(os.Getenv("SPECSYNC_SWEEP_INTERVAL")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return SchedulerConfig{}, fmt.Errorf("invalid SPECSYNC_SWEEP_INTERVAL: %s", value)
		}
		if parsed > 0 {
			interval = parsed
		}
	}
	return SchedulerConfig{SweepInterval: interval}, nil
}

// Scheduler drives periodic syncs: a fixed-interval sweep over every active
// config, plus optional per-config cron jobs for repositories that declare
// their own cadence. One failing repository never stops the others.
type Scheduler struct {
	Registry *Registry
	Orch     *Orchestrator
	Logger   *slog.Logger
	Recorder metrics.Recorder
	Config   SchedulerConfig

	scheduler gocron.Scheduler

	mu       sync.Mutex
	baseCtx  context.Context
	cronJobs map[string]uuid.UUID
}

// NewScheduler creates a new scheduler.
func NewScheduler(registry *Registry, orch *Orchestrator, logger *slog.Logger, recorder metrics.Recorder, cfg SchedulerConfig) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Scheduler{
		Registry:  registry,
		Orch:      orch,
		Logger:    logger,
		Recorder:  recorder,
		Config:    cfg,
		scheduler: gs,
		baseCtx:   context.Background(),
		cronJobs:  make(map[string]uuid.UUID),
	}, nil
}

// Start registers the sweep job plus cron jobs for already-active configs
// and begins scheduling. The sweep runs once immediately so a restarted
// service catches up without waiting a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.Config.SweepInterval),
		gocron.NewTask(s.Sweep, ctx),
		gocron.WithName("repository-sweep"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule repository sweep: %w", err)
	}

	configs, err := s.Registry.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active configs: %w", err)
	}
	for _, cfg := range configs {
		if err := s.RefreshCronJob(cfg); err != nil {
			s.Logger.Warn("Failed to schedule repository cron job", "config_id", cfg.ID, "name", cfg.Name, "error", err)
		}
	}

	s.scheduler.Start()
	s.Logger.Info("Scheduler started", "sweep_interval", s.Config.SweepInterval, "active_configs", len(configs))
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs to finish.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// Sweep synchronizes every active config once, sequentially. Failures are
// logged and counted per repository without aborting the tick.
func (s *Scheduler) Sweep(ctx context.Context) {
	configs, err := s.Registry.ListActive(ctx)
	if err != nil {
		s.Logger.Error("Sweep aborted: failed to list active configs", "error", err)
		return
	}
	s.Recorder.SetActiveRepos(len(configs))

	var succeeded, failed int
	for _, cfg := range configs {
		if ctx.Err() != nil {
			return
		}
		if s.syncOne(ctx, cfg, false) {
			succeeded++
		} else {
			failed++
		}
	}
	s.Recorder.IncTick(succeeded, failed)
	if len(configs) > 0 {
		s.Logger.Info("Repository sweep complete", "repositories", len(configs), "succeeded", succeeded, "failed", failed)
	}
}

// RunNow force-syncs a single config synchronously and persists the result.
// Returns ErrSyncInProgress when the config is already being synced.
func (s *Scheduler) RunNow(ctx context.Context, id string) (api.SyncReport, error) {
	cfg, err := s.Registry.Get(ctx, id)
	if err != nil {
		return api.SyncReport{}, err
	}
	state, report, err := s.Orch.ForceSync(ctx, cfg)
	if err != nil {
		return api.SyncReport{}, err
	}
	s.persist(ctx, cfg, state, report)
	return report, nil
}

// KickInitialImport runs the first full import for a freshly activated
// config in the background, so activation responds immediately.
func (s *Scheduler) KickInitialImport(cfg *api.RepositoryConfig) {
	go func() {
		ctx := context.Background()
		s.Logger.Info("Starting initial import", "config_id", cfg.ID, "name", cfg.Name)
		s.syncOne(ctx, cfg, true)
	}()
}

// RefreshCronJob (re)installs the per-config cron job when the config
// declares a cron expression, and removes any stale one otherwise. The job
// runs under the scheduler's own context, never the installing caller's: a
// management request's context is cancelled the moment the handler returns,
// long before the first cron fire.
func (s *Scheduler) RefreshCronJob(cfg *api.RepositoryConfig) error {
	s.RemoveCronJob(cfg.ID)
	if cfg.CronExpr == "" {
		return nil
	}

	id := cfg.ID
	job, err := s.scheduler.NewJob(
		gocron.CronJob(cfg.CronExpr, false),
		gocron.NewTask(s.runCronSync, id),
		gocron.WithName("repository-cron-"+cfg.Name),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule cron job for %s: %w", cfg.Name, err)
	}

	s.mu.Lock()
	s.cronJobs[cfg.ID] = job.ID()
	s.mu.Unlock()
	return nil
}

// runCronSync is the body of a per-config cron job. It reloads the config
// so edits and deactivation between fires are honored.
func (s *Scheduler) runCronSync(id string) {
	ctx := s.taskContext()
	cfg, err := s.Registry.Get(ctx, id)
	if err != nil {
		s.Logger.Warn("Skipping cron sync: config not loadable", "config_id", id, "error", err)
		return
	}
	if !cfg.Active {
		return
	}
	s.syncOne(ctx, cfg, false)
}

// taskContext returns the long-lived context scheduled jobs run under.
func (s *Scheduler) taskContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// RemoveCronJob drops the per-config cron job if one is registered.
func (s *Scheduler) RemoveCronJob(configID string) {
	s.mu.Lock()
	jobID, ok := s.cronJobs[configID]
	if ok {
		delete(s.cronJobs, configID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.scheduler.RemoveJob(jobID); err != nil {
		s.Logger.Warn("Failed to remove repository cron job", "config_id", configID, "error", err)
	}
}

// syncOne runs a single sync, persists its outcome, and reports success.
// A panic in one repository's sync is contained to that repository.
func (s *Scheduler) syncOne(ctx context.Context, cfg *api.RepositoryConfig, force bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("Panic during repository sync", "config_id", cfg.ID, "name", cfg.Name, "panic", r)
			ok = false
		}
	}()

	var (
		state  api.SyncState
		report api.SyncReport
		err    error
	)
	if force {
		state, report, err = s.Orch.ForceSync(ctx, cfg)
	} else {
		state, report, err = s.Orch.Sync(ctx, cfg)
	}
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			s.Logger.Warn("Repository sync skipped: previous sync still running", "config_id", cfg.ID, "name", cfg.Name)
			return false
		}
		s.Logger.Error("Repository sync errored", "config_id", cfg.ID, "name", cfg.Name, "error", err)
		return false
	}
	s.persist(ctx, cfg, state, report)
	return report.Error == ""
}

// persist writes the post-sync snapshot back unless the sync was a no-op,
// which by contract leaves state untouched.
func (s *Scheduler) persist(ctx context.Context, cfg *api.RepositoryConfig, state api.SyncState, report api.SyncReport) {
	if report.NoOp {
		return
	}
	if err := s.Registry.SaveSyncState(ctx, cfg.ID, state); err != nil {
		s.Logger.Error("Failed to persist sync state", "config_id", cfg.ID, "name", cfg.Name, "error", err)
	}
}
