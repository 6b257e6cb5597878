package controller

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/require"

	"github.com/specsync/specsync/internal/api"
	"github.com/specsync/specsync/internal/gitvcs"
)

// multiVCS serves several repositories at once, failing the ones listed
// in failURLs.
type multiVCS struct {
	mu       sync.Mutex
	failURLs map[string]error
	clones   []string
}

func (m *multiVCS) Clone(ctx context.Context, url, branch string, auth transport.AuthMethod) (string, string, error) {
	m.mu.Lock()
	m.clones = append(m.clones, url)
	m.mu.Unlock()
	if err := m.failURLs[url]; err != nil {
		return "", "", err
	}
	name := path.Base(strings.TrimSuffix(url, ".git"))
	return "/work/" + name, "rev-" + name, nil
}

func (m *multiVCS) Pull(ctx context.Context, localPath string, auth transport.AuthMethod) (string, error) {
	return "rev-" + path.Base(localPath), nil
}

func (m *multiVCS) CurrentRevision(localPath string) (string, error) {
	return "rev-" + path.Base(localPath), nil
}

func (m *multiVCS) Diff(localPath, oldRev, newRev string) ([]string, error) {
	return nil, nil
}

func (m *multiVCS) Cleanup(localPath string) error { return nil }

type tickRecorder struct {
	mu        sync.Mutex
	succeeded int
	failed    int
	ticks     int
}

func (r *tickRecorder) ObserveSyncDuration(string, time.Duration) {}
func (r *tickRecorder) IncSyncOutcome(string, string)             {}
func (r *tickRecorder) IncImports(string, int, int)               {}
func (r *tickRecorder) SetActiveRepos(int)                        {}

func (r *tickRecorder) IncTick(succeeded, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks++
	r.succeeded += succeeded
	r.failed += failed
}

func newTestScheduler(t *testing.T, vcs gitvcs.VCS, recorder *tickRecorder) (*Scheduler, *memStore) {
	t.Helper()
	st := newMemStore()
	registry := NewRegistry(st, testCredentials(t), testLogger())
	orch := NewOrchestrator(vcs, &fakeImporter{}, registry, testLogger(), nil, OrchestratorConfig{
		SyncTimeout: time.Minute,
		Retry:       fastRetry(0),
	})
	scheduler, err := NewScheduler(registry, orch, testLogger(), recorder, SchedulerConfig{SweepInterval: time.Hour})
	require.NoError(t, err)
	return scheduler, st
}

func seedActiveConfig(t *testing.T, st *memStore, id, name, url string) *api.RepositoryConfig {
	t.Helper()
	cfg := &api.RepositoryConfig{
		ID:        id,
		Name:      name,
		RepoURL:   url,
		Branch:    "main",
		Active:    true,
		AuthKind:  api.AuthNone,
		SpecPaths: []string{"apis/" + name + ".yaml"},
	}
	require.NoError(t, st.CreateConfig(context.Background(), cfg))
	return cfg
}

func TestSweepIsolatesFailingRepositories(t *testing.T) {
	vcs := &multiVCS{failURLs: map[string]error{
		"https://example.com/beta.git": &gitvcs.TransportError{
			Op: "clone", URL: "https://example.com/beta.git", Err: errors.New("connection reset"),
		},
	}}
	recorder := &tickRecorder{}
	scheduler, st := newTestScheduler(t, vcs, recorder)

	seedActiveConfig(t, st, "a", "alpha", "https://example.com/alpha.git")
	seedActiveConfig(t, st, "b", "beta", "https://example.com/beta.git")
	seedActiveConfig(t, st, "c", "gamma", "https://example.com/gamma.git")

	scheduler.Sweep(context.Background())

	require.Len(t, vcs.clones, 3, "every active config gets its attempt")

	ctx := context.Background()
	alpha, err := st.GetConfig(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "rev-alpha", alpha.LastCommitHash)
	require.Empty(t, alpha.LastImportError)

	beta, err := st.GetConfig(ctx, "b")
	require.NoError(t, err)
	require.Empty(t, beta.LastCommitHash, "failed clone leaves no revision")
	require.NotEmpty(t, beta.LastImportError)

	gamma, err := st.GetConfig(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, "rev-gamma", gamma.LastCommitHash)

	require.Equal(t, 1, recorder.ticks)
	require.Equal(t, 2, recorder.succeeded)
	require.Equal(t, 1, recorder.failed)
}

func TestSweepSkipsInactiveConfigs(t *testing.T) {
	vcs := &multiVCS{}
	scheduler, st := newTestScheduler(t, vcs, &tickRecorder{})

	cfg := seedActiveConfig(t, st, "a", "alpha", "https://example.com/alpha.git")
	require.NoError(t, st.SetActive(context.Background(), cfg.ID, false))

	scheduler.Sweep(context.Background())
	require.Empty(t, vcs.clones)
}

func TestRunNowForceSyncsAndPersists(t *testing.T) {
	vcs := &multiVCS{}
	scheduler, st := newTestScheduler(t, vcs, &tickRecorder{})
	cfg := seedActiveConfig(t, st, "a", "alpha", "https://example.com/alpha.git")

	report, err := scheduler.RunNow(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.Empty(t, report.Error)
	require.Equal(t, []string{"apis/alpha.yaml"}, report.ImportedPaths)

	stored, err := st.GetConfig(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.Equal(t, "rev-alpha", stored.LastCommitHash)
	require.Equal(t, "/work/alpha", stored.LocalPath)
}

func TestRunNowUnknownConfig(t *testing.T) {
	scheduler, _ := newTestScheduler(t, &multiVCS{}, &tickRecorder{})
	_, err := scheduler.RunNow(context.Background(), "missing")
	require.Error(t, err)
}

func TestRefreshCronJobLifecycle(t *testing.T) {
	scheduler, st := newTestScheduler(t, &multiVCS{}, &tickRecorder{})
	cfg := seedActiveConfig(t, st, "a", "alpha", "https://example.com/alpha.git")

	require.NoError(t, scheduler.RefreshCronJob(cfg))
	scheduler.mu.Lock()
	require.Empty(t, scheduler.cronJobs)
	scheduler.mu.Unlock()

	cfg.CronExpr = "*/5 * * * *"
	require.NoError(t, scheduler.RefreshCronJob(cfg))
	scheduler.mu.Lock()
	require.Contains(t, scheduler.cronJobs, cfg.ID)
	scheduler.mu.Unlock()

	scheduler.RemoveCronJob(cfg.ID)
	scheduler.mu.Lock()
	require.Empty(t, scheduler.cronJobs)
	scheduler.mu.Unlock()
}

func TestCronSyncRunsUnderSchedulerContext(t *testing.T) {
	vcs := &multiVCS{}
	scheduler, st := newTestScheduler(t, vcs, &tickRecorder{})
	cfg := seedActiveConfig(t, st, "a", "alpha", "https://example.com/alpha.git")
	cfg.CronExpr = "*/5 * * * *"
	require.NoError(t, st.UpdateConfig(context.Background(), cfg))

	// Install the job the way the management API does, from a request
	// whose context dies as soon as the handler returns. The first cron
	// fire happens long after that.
	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.RefreshCronJob(cfg))
	cancel()
	require.Error(t, reqCtx.Err())

	scheduler.runCronSync(cfg.ID)

	stored, err := st.GetConfig(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.Equal(t, "rev-alpha", stored.LastCommitHash, "cron sync must execute after the installing request is gone")
}

func TestCronSyncSkipsDeactivatedConfig(t *testing.T) {
	vcs := &multiVCS{}
	scheduler, st := newTestScheduler(t, vcs, &tickRecorder{})
	cfg := seedActiveConfig(t, st, "a", "alpha", "https://example.com/alpha.git")
	cfg.CronExpr = "*/5 * * * *"
	require.NoError(t, st.UpdateConfig(context.Background(), cfg))
	require.NoError(t, scheduler.RefreshCronJob(cfg))

	require.NoError(t, st.SetActive(context.Background(), cfg.ID, false))
	scheduler.runCronSync(cfg.ID)
	require.Empty(t, vcs.clones)
}

func TestSweepCountsContendedRepositoryAsFailed(t *testing.T) {
	vcs := &multiVCS{}
	recorder := &tickRecorder{}
	scheduler, st := newTestScheduler(t, vcs, recorder)

	held := seedActiveConfig(t, st, "a", "alpha", "https://example.com/alpha.git")
	seedActiveConfig(t, st, "b", "beta", "https://example.com/beta.git")

	require.True(t, scheduler.Orch.locks.TryLock(held.ID))
	defer scheduler.Orch.locks.Unlock(held.ID)

	scheduler.Sweep(context.Background())

	require.Equal(t, []string{"https://example.com/beta.git"}, vcs.clones)
	require.Equal(t, 1, recorder.succeeded)
	require.Equal(t, 1, recorder.failed, "a contended repository is surfaced in the tick tally")

	stored, err := st.GetConfig(context.Background(), held.ID)
	require.NoError(t, err)
	require.Empty(t, stored.LastCommitHash)
}
