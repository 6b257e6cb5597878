// Package gitvcs implements the version-control adapter consumed by the sync
// engine: clone, pull, revision reads and tree diffs on top of go-git. The
// engine never touches go-git directly; it only sees the four operations and
// the typed error taxonomy in errors.go.
package gitvcs

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// VCS is the adapter contract consumed by the sync orchestrator.
type VCS interface {
	// Clone performs a shallow, single-branch checkout and returns the
	// working copy path and head revision.
	Clone(ctx context.Context, url, branch string, auth transport.AuthMethod) (string, string, error)

	// Pull fast-forwards an existing working copy and returns the new head.
	Pull(ctx context.Context, localPath string, auth transport.AuthMethod) (string, error)

	// CurrentRevision reads HEAD without touching the network.
	CurrentRevision(localPath string) (string, error)

	// Diff returns the relative paths whose content differs between two
	// revisions (new-side path for renames).
	Diff(localPath, oldRev, newRev string) ([]string, error)

	// Cleanup removes the working copy. Calling it on a missing path is a
	// no-op, not an error.
	Cleanup(localPath string) error
}

// Adapter is the default go-git backed implementation of VCS.
type Adapter struct {
	workspaceDir string
	logger       *slog.Logger
}

// NewAdapter creates an adapter that keeps working copies under workspaceDir.
func NewAdapter(workspaceDir string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{workspaceDir: workspaceDir, logger: logger}
}

func (a *Adapter) Clone(ctx context.Context, url, branch string, auth transport.AuthMethod) (string, string, error) {
	if err := os.MkdirAll(a.workspaceDir, 0750); err != nil {
		return "", "", fmt.Errorf("failed to create workspace dir: %w", err)
	}
	localPath, err := os.MkdirTemp(a.workspaceDir, "repo-")
	if err != nil {
		return "", "", fmt.Errorf("failed to create working copy dir: %w", err)
	}

	a.logger.Debug("Cloning repository", "url", url, "branch", branch, "path", localPath)

	cloneOptions := &git.CloneOptions{
		URL:           url,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1, // shallow clone for speed
		Auth:          auth,
	}
	repo, err := git.PlainCloneContext(ctx, localPath, false, cloneOptions)
	if err != nil {
		_ = os.RemoveAll(localPath)
		return "", "", classifyCloneError(url, branch, err)
	}

	head, err := repo.Head()
	if err != nil {
		_ = os.RemoveAll(localPath)
		return "", "", &TransportError{Op: "clone", URL: url, Err: err}
	}

	revision := head.Hash().String()
	a.logger.Info("Repository cloned", "url", url, "commit", shortHash(revision), "path", localPath)
	return localPath, revision, nil
}

func (a *Adapter) Pull(ctx context.Context, localPath string, auth transport.AuthMethod) (string, error) {
	repo, worktree, err := a.open(localPath)
	if err != nil {
		return "", err
	}

	a.logger.Debug("Pulling repository", "path", localPath)

	pullOptions := &git.PullOptions{
		RemoteName: "origin",
		Auth:       auth,
	}
	if err := worktree.PullContext(ctx, pullOptions); err != nil && err != git.NoErrAlreadyUpToDate {
		return "", classifyPullError(localPath, err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", &WorkingCopyMissingError{Path: localPath, Err: err}
	}
	return head.Hash().String(), nil
}

func (a *Adapter) CurrentRevision(localPath string) (string, error) {
	repo, _, err := a.open(localPath)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", &WorkingCopyMissingError{Path: localPath, Err: err}
	}
	return head.Hash().String(), nil
}

func (a *Adapter) Diff(localPath, oldRev, newRev string) ([]string, error) {
	repo, _, err := a.open(localPath)
	if err != nil {
		return nil, err
	}

	oldTree, err := treeAt(repo, oldRev)
	if err != nil {
		return nil, err
	}
	newTree, err := treeAt(repo, newRev)
	if err != nil {
		return nil, err
	}

	changes, err := oldTree.Diff(newTree)
	if err != nil {
		return nil, fmt.Errorf("failed to compute changes: %w", err)
	}

	paths := make([]string, 0, len(changes))
	seen := make(map[string]bool, len(changes))
	for _, change := range changes {
		path := change.To.Name
		if path == "" {
			path = change.From.Name
		}
		if path != "" && !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (a *Adapter) Cleanup(localPath string) error {
	if localPath == "" {
		return nil
	}
	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		return nil
	}
	a.logger.Info("Removing working copy", "path", localPath)
	return os.RemoveAll(localPath)
}

func (a *Adapter) open(localPath string) (*git.Repository, *git.Worktree, error) {
	if localPath == "" {
		return nil, nil, &WorkingCopyMissingError{Path: localPath, Err: fmt.Errorf("empty local path")}
	}
	if _, err := os.Stat(localPath); err != nil {
		return nil, nil, &WorkingCopyMissingError{Path: localPath, Err: err}
	}
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return nil, nil, &WorkingCopyMissingError{Path: localPath, Err: err}
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, nil, &WorkingCopyMissingError{Path: localPath, Err: err}
	}
	return repo, worktree, nil
}

func treeAt(repo *git.Repository, rev string) (*object.Tree, error) {
	commit, err := repo.CommitObject(plumbing.NewHash(rev))
	if err != nil {
		return nil, &RevisionNotFoundError{Revision: rev, Err: err}
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, &RevisionNotFoundError{Revision: rev, Err: err}
	}
	return tree, nil
}

func shortHash(revision string) string {
	if len(revision) > 8 {
		return revision[:8]
	}
	return revision
}
