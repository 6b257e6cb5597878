package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/specsync/specsync/internal/api"
	"github.com/specsync/specsync/internal/gitvcs"
	"github.com/specsync/specsync/internal/importer"
	"github.com/specsync/specsync/internal/metrics"
	"github.com/specsync/specsync/internal/retry"
)

// AuthResolver produces the transport credentials for a repository config.
// A nil auth method means anonymous access.
type AuthResolver interface {
	ResolveAuth(ctx context.Context, cfg *api.RepositoryConfig) (transport.AuthMethod, error)
}

// OrchestratorConfig controls per-sync timeouts and transient-error retries.
type OrchestratorConfig struct {
	SyncTimeout time.Duration
	Retry       retry.Policy
}

// LoadOrchestratorConfigFromEnv loads orchestrator config from environment variables.
func LoadOrchestratorConfigFromEnv() (OrchestratorConfig, error) {
	timeout := 5 * time.Minute
	if value := strings.TrimSpace(os.Getenv("SPECSYNC_SYNC_TIMEOUT")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return OrchestratorConfig{}, fmt.Errorf("invalid SPECSYNC_SYNC_TIMEOUT: %s", value)
		}
		if parsed > 0 {
			timeout = parsed
		}
	}

	policy, err := retry.PolicyFromEnv()
	if err != nil {
		return OrchestratorConfig{}, err
	}

	return OrchestratorConfig{
		SyncTimeout: timeout,
		Retry:       policy,
	}, nil
}

// Orchestrator drives the sync lifecycle of a single repository config:
// clone or pull, change detection, spec imports, and working copy cleanup.
// It never persists anything itself; callers receive the updated state
// snapshot and decide where it goes.
type Orchestrator struct {
	VCS      gitvcs.VCS
	Importer importer.Importer
	Auth     AuthResolver
	Logger   *slog.Logger
	Recorder metrics.Recorder
	Config   OrchestratorConfig

	locks *lockTable
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(vcs gitvcs.VCS, imp importer.Importer, auth AuthResolver, logger *slog.Logger, recorder metrics.Recorder, cfg OrchestratorConfig) *Orchestrator {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Orchestrator{
		VCS:      vcs,
		Importer: imp,
		Auth:     auth,
		Logger:   logger,
		Recorder: recorder,
		Config:   cfg,
		locks:    newLockTable(),
	}
}

// Sync performs an incremental synchronization: refresh the working copy,
// detect which tracked spec paths changed since the last recorded revision,
// and import only those. A repository that was never cloned gets a full
// first import. Returns ErrSyncInProgress without doing any work when
// another sync for the same config is already running.
func (o *Orchestrator) Sync(ctx context.Context, cfg *api.RepositoryConfig) (api.SyncState, api.SyncReport, error) {
	return o.run(ctx, cfg, false)
}

// ForceSync behaves like Sync but skips change detection and re-imports
// every tracked spec path at the current revision.
func (o *Orchestrator) ForceSync(ctx context.Context, cfg *api.RepositoryConfig) (api.SyncState, api.SyncReport, error) {
	return o.run(ctx, cfg, true)
}

// Cleanup removes the working copy for a config and clears its local path.
// It takes the same per-config lock as Sync so a cleanup never races a
// running sync on the same directory.
func (o *Orchestrator) Cleanup(ctx context.Context, cfg *api.RepositoryConfig) (api.SyncState, error) {
	state := api.StateOf(cfg)
	if !o.locks.TryLock(cfg.ID) {
		return state, ErrSyncInProgress
	}
	defer o.locks.Unlock(cfg.ID)

	if cfg.LocalPath == "" {
		return state, nil
	}
	if err := o.VCS.Cleanup(cfg.LocalPath); err != nil {
		return state, fmt.Errorf("failed to remove working copy: %w", err)
	}
	state.LocalPath = ""
	o.Logger.Info("Removed repository working copy", "config_id", cfg.ID, "name", cfg.Name)
	return state, nil
}

func (o *Orchestrator) run(ctx context.Context, cfg *api.RepositoryConfig, force bool) (api.SyncState, api.SyncReport, error) {
	state := api.StateOf(cfg)
	report := api.SyncReport{}

	if !o.locks.TryLock(cfg.ID) {
		o.Recorder.IncSyncOutcome(cfg.Name, metrics.OutcomeContended)
		return state, report, ErrSyncInProgress
	}
	defer o.locks.Unlock(cfg.ID)

	if o.Config.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Config.SyncTimeout)
		defer cancel()
	}

	start := time.Now()
	state, report = o.syncLocked(ctx, cfg, force)
	o.Recorder.ObserveSyncDuration(cfg.Name, time.Since(start))
	o.Recorder.IncImports(cfg.Name, len(report.ImportedPaths), len(report.FailedPaths))
	o.Recorder.IncSyncOutcome(cfg.Name, outcomeOf(report))
	return state, report, nil
}

func (o *Orchestrator) syncLocked(ctx context.Context, cfg *api.RepositoryConfig, force bool) (api.SyncState, api.SyncReport) {
	state := api.StateOf(cfg)
	report := api.SyncReport{}

	auth, err := o.Auth.ResolveAuth(ctx, cfg)
	if err != nil {
		return o.fail(cfg, state, report, fmt.Errorf("failed to resolve repository credentials: %w", err))
	}

	fullImport := force
	var newRev string

	if !cfg.Cloned() {
		localPath, rev, err := o.cloneWithRetry(ctx, cfg, auth)
		if err != nil {
			return o.fail(cfg, state, report, err)
		}
		state.LocalPath = localPath
		newRev = rev
		fullImport = true
		o.Logger.Info("Cloned repository", "config_id", cfg.ID, "name", cfg.Name, "revision", newRev)
	} else {
		current, err := o.VCS.CurrentRevision(cfg.LocalPath)
		if err != nil {
			return o.fail(cfg, state, report, err)
		}
		if current != cfg.LastCommitHash && cfg.LastCommitHash != "" {
			// A previous sync pulled but never finished importing.
			// Diffing from the recorded hash below still covers the gap.
			o.Logger.Warn("Working copy ahead of recorded revision",
				"config_id", cfg.ID, "name", cfg.Name,
				"working_copy", current, "recorded", cfg.LastCommitHash)
		}

		newRev, err = o.pullWithRetry(ctx, cfg, auth)
		if err != nil {
			return o.fail(cfg, state, report, err)
		}
		if !force && newRev == cfg.LastCommitHash {
			report.NoOp = true
			report.CommitHash = newRev
			o.Logger.Debug("Repository already up to date", "config_id", cfg.ID, "name", cfg.Name, "revision", newRev)
			return state, report
		}
	}

	report.CommitHash = newRev

	selected := cfg.SpecPaths
	if !fullImport {
		changed, err := o.VCS.Diff(state.LocalPath, cfg.LastCommitHash, newRev)
		if err != nil {
			var revErr *gitvcs.RevisionNotFoundError
			if !errors.As(err, &revErr) {
				return o.fail(cfg, state, report, err)
			}
			// The recorded revision is gone (history rewrite, shallow
			// truncation). Change detection is impossible, so re-import
			// everything at the new revision.
			o.Logger.Warn("Recorded revision not found; falling back to full import",
				"config_id", cfg.ID, "name", cfg.Name, "revision", cfg.LastCommitHash)
		} else {
			selected = intersectPaths(cfg.SpecPaths, changed)
		}
	}

	var failures []string
	for _, specPath := range selected {
		if err := ctx.Err(); err != nil {
			return o.fail(cfg, state, report, fmt.Errorf("sync interrupted: %w", err))
		}
		abs := filepath.Join(state.LocalPath, filepath.FromSlash(specPath))
		if _, err := o.Importer.Import(ctx, cfg, specPath, abs); err != nil {
			report.FailedPaths = append(report.FailedPaths, specPath)
			failures = append(failures, fmt.Sprintf("%s: %v", specPath, err))
			o.Logger.Error("Spec import failed", "config_id", cfg.ID, "name", cfg.Name, "path", specPath, "error", err)
			continue
		}
		report.ImportedPaths = append(report.ImportedPaths, specPath)
	}

	// The revision advances as soon as the VCS step has succeeded, even
	// when individual imports failed; those paths are reported and retried
	// by a later force sync, not by replaying the same diff forever.
	state.LastCommitHash = newRev
	state.LastImportDate = time.Now().UTC()
	if len(failures) > 0 {
		state.LastImportError = "import failed for: " + strings.Join(failures, "; ")
	} else {
		state.LastImportError = ""
	}

	o.Logger.Info("Repository sync complete",
		"config_id", cfg.ID, "name", cfg.Name, "revision", newRev,
		"imported", len(report.ImportedPaths), "failed", len(report.FailedPaths), "full_import", fullImport)
	return state, report
}

func (o *Orchestrator) fail(cfg *api.RepositoryConfig, state api.SyncState, report api.SyncReport, err error) (api.SyncState, api.SyncReport) {
	report.Error = err.Error()
	state.LastImportError = err.Error()
	o.Logger.Error("Repository sync failed", "config_id", cfg.ID, "name", cfg.Name, "error", err)
	return state, report
}

func (o *Orchestrator) cloneWithRetry(ctx context.Context, cfg *api.RepositoryConfig, auth transport.AuthMethod) (string, string, error) {
	var localPath, rev string
	err := o.withRetry(ctx, cfg, "clone", func() error {
		var err error
		localPath, rev, err = o.VCS.Clone(ctx, cfg.RepoURL, cfg.Branch, auth)
		return err
	})
	return localPath, rev, err
}

func (o *Orchestrator) pullWithRetry(ctx context.Context, cfg *api.RepositoryConfig, auth transport.AuthMethod) (string, error) {
	var rev string
	err := o.withRetry(ctx, cfg, "pull", func() error {
		var err error
		rev, err = o.VCS.Pull(ctx, cfg.LocalPath, auth)
		return err
	})
	return rev, err
}

// withRetry re-runs fn for transient transport failures, honoring the
// configured backoff policy. Non-retryable errors are returned immediately.
func (o *Orchestrator) withRetry(ctx context.Context, cfg *api.RepositoryConfig, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt >= o.Config.Retry.MaxRetries || !gitvcs.Retryable(lastErr) {
			return lastErr
		}
		delay := o.Config.Retry.Delay(attempt + 1)
		o.Logger.Warn("Retrying git operation",
			"config_id", cfg.ID, "name", cfg.Name, "op", op,
			"attempt", attempt+1, "delay", delay, "error", lastErr)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}

func outcomeOf(report api.SyncReport) string {
	switch {
	case report.Error != "":
		return metrics.OutcomeFailed
	case report.NoOp:
		return metrics.OutcomeNoop
	case len(report.FailedPaths) > 0:
		return metrics.OutcomePartial
	default:
		return metrics.OutcomeSuccess
	}
}

func intersectPaths(tracked, changed []string) []string {
	if len(tracked) == 0 || len(changed) == 0 {
		return nil
	}
	changedSet := make(map[string]bool, len(changed))
	for _, p := range changed {
		changedSet[p] = true
	}
	var out []string
	for _, p := range tracked {
		if changedSet[p] {
			out = append(out, p)
		}
	}
	return out
}
