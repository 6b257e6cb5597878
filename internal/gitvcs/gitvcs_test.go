package gitvcs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	return NewAdapter(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// initOriginRepo creates a local repository with one initial commit.
func initOriginRepo(t *testing.T) (string, *git.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	rev := commitFiles(t, repo, dir, map[string]string{
		"apis/orders.yaml": "openapi: 3.0.0\ninfo:\n  title: Orders\n  version: \"1.0\"\n",
		"README.md":        "specs\n",
	})
	return dir, repo, rev
}

func commitFiles(t *testing.T, repo *git.Repository, dir string, files map[string]string) string {
	t.Helper()
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		abs := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
		_, err = worktree.Add(name)
		require.NoError(t, err)
	}

	hash, err := worktree.Commit("update specs", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestAdapterCloneChecksOutHead(t *testing.T) {
	origin, _, rev := initOriginRepo(t)
	adapter := newTestAdapter(t)

	localPath, cloneRev, err := adapter.Clone(context.Background(), origin, "master", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Cleanup(localPath) })

	require.Equal(t, rev, cloneRev)
	require.FileExists(t, filepath.Join(localPath, "apis", "orders.yaml"))

	current, err := adapter.CurrentRevision(localPath)
	require.NoError(t, err)
	require.Equal(t, rev, current)
}

func TestAdapterCloneMissingBranch(t *testing.T) {
	origin, _, _ := initOriginRepo(t)
	adapter := newTestAdapter(t)

	_, _, err := adapter.Clone(context.Background(), origin, "does-not-exist", nil)
	var refErr *RefNotFoundError
	require.ErrorAs(t, err, &refErr)
}

func TestAdapterCloneBadURL(t *testing.T) {
	adapter := newTestAdapter(t)
	_, _, err := adapter.Clone(context.Background(), filepath.Join(t.TempDir(), "nope"), "master", nil)
	require.Error(t, err)
}

func TestAdapterPullAlreadyUpToDate(t *testing.T) {
	origin, _, rev := initOriginRepo(t)
	adapter := newTestAdapter(t)

	localPath, _, err := adapter.Clone(context.Background(), origin, "master", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Cleanup(localPath) })

	pulled, err := adapter.Pull(context.Background(), localPath, nil)
	require.NoError(t, err)
	require.Equal(t, rev, pulled)
}

func TestAdapterPullFetchesNewCommits(t *testing.T) {
	origin, repo, rev1 := initOriginRepo(t)
	adapter := newTestAdapter(t)

	localPath, cloneRev, err := adapter.Clone(context.Background(), origin, "master", nil)
	require.NoError(t, err)
	require.Equal(t, rev1, cloneRev)
	t.Cleanup(func() { _ = adapter.Cleanup(localPath) })

	rev2 := commitFiles(t, repo, origin, map[string]string{
		"apis/orders.yaml":  "openapi: 3.0.0\ninfo:\n  title: Orders\n  version: \"2.0\"\n",
		"apis/billing.yaml": "openapi: 3.0.0\ninfo:\n  title: Billing\n  version: \"1.0\"\n",
	})

	pulled, err := adapter.Pull(context.Background(), localPath, nil)
	require.NoError(t, err)
	require.Equal(t, rev2, pulled)

	// The clone boundary commit stays reachable, so the incremental
	// baseline diff works on the pulled working copy.
	changed, err := adapter.Diff(localPath, rev1, rev2)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"apis/orders.yaml", "apis/billing.yaml"}, changed)
	require.NotContains(t, changed, "README.md")
}

func TestAdapterPullMissingWorkingCopy(t *testing.T) {
	adapter := newTestAdapter(t)
	_, err := adapter.Pull(context.Background(), filepath.Join(t.TempDir(), "gone"), nil)
	var missing *WorkingCopyMissingError
	require.ErrorAs(t, err, &missing)
}

func TestAdapterDiffBetweenRevisions(t *testing.T) {
	origin, repo, rev1 := initOriginRepo(t)
	rev2 := commitFiles(t, repo, origin, map[string]string{
		"apis/orders.yaml":  "openapi: 3.0.0\ninfo:\n  title: Orders\n  version: \"1.1\"\n",
		"apis/billing.yaml": "openapi: 3.0.0\ninfo:\n  title: Billing\n  version: \"1.0\"\n",
	})

	adapter := newTestAdapter(t)
	changed, err := adapter.Diff(origin, rev1, rev2)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"apis/orders.yaml", "apis/billing.yaml"}, changed)
	require.NotContains(t, changed, "README.md")
}

func TestAdapterDiffUnknownRevision(t *testing.T) {
	origin, _, rev := initOriginRepo(t)
	adapter := newTestAdapter(t)

	_, err := adapter.Diff(origin, "0000000000000000000000000000000000000000", rev)
	var revErr *RevisionNotFoundError
	require.ErrorAs(t, err, &revErr)
}

func TestAdapterCleanupIdempotent(t *testing.T) {
	origin, _, _ := initOriginRepo(t)
	adapter := newTestAdapter(t)

	localPath, _, err := adapter.Clone(context.Background(), origin, "master", nil)
	require.NoError(t, err)

	require.NoError(t, adapter.Cleanup(localPath))
	require.NoDirExists(t, localPath)
	require.NoError(t, adapter.Cleanup(localPath), "cleanup of a missing path is a no-op")
	require.NoError(t, adapter.Cleanup(""))
}
