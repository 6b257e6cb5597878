package gitvcs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Typed errors enabling structured classification without string parsing
// upstream. All wrap the underlying go-git error.

// TransportError covers network and authentication failures during clone,
// fetch, or pull.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport error for %s: %v", e.Op, e.URL, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// RefNotFoundError indicates the requested branch does not exist on the remote.
type RefNotFoundError struct {
	Branch string
	URL    string
	Err    error
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("branch %q not found for %s: %v", e.Branch, e.URL, e.Err)
}
func (e *RefNotFoundError) Unwrap() error { return e.Err }

// WorkingCopyMissingError indicates an operation on a path that holds no
// usable working copy.
type WorkingCopyMissingError struct {
	Path string
	Err  error
}

func (e *WorkingCopyMissingError) Error() string {
	return fmt.Sprintf("working copy missing at %s: %v", e.Path, e.Err)
}
func (e *WorkingCopyMissingError) Unwrap() error { return e.Err }

// RevisionNotFoundError indicates a diff baseline is unreachable from the
// history still present locally (shallow clones may lack old revisions).
type RevisionNotFoundError struct {
	Revision string
	Err      error
}

func (e *RevisionNotFoundError) Error() string {
	return fmt.Sprintf("revision %s not found in local history: %v", e.Revision, e.Err)
}
func (e *RevisionNotFoundError) Unwrap() error { return e.Err }

// classifyCloneError maps go-git clone failures onto the typed taxonomy.
func classifyCloneError(url, branch string, err error) error {
	if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, git.ErrBranchNotFound) {
		return &RefNotFoundError{Branch: branch, URL: url, Err: err}
	}
	l := strings.ToLower(err.Error())
	if strings.Contains(l, "couldn't find remote ref") || strings.Contains(l, "reference not found") {
		return &RefNotFoundError{Branch: branch, URL: url, Err: err}
	}
	return &TransportError{Op: "clone", URL: url, Err: err}
}

// classifyPullError maps go-git fetch/pull failures onto the typed taxonomy.
func classifyPullError(url string, err error) error {
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return &WorkingCopyMissingError{Path: url, Err: err}
	}
	return &TransportError{Op: "pull", URL: url, Err: err}
}

// isAuthOrNetwork reports whether an error looks like a transient transport
// failure worth retrying within the same sync attempt.
func isAuthOrNetwork(err error) bool {
	if errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) {
		return false // retrying with the same credential will not help
	}
	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "timeout"),
		strings.Contains(l, "i/o timeout"),
		strings.Contains(l, "connection reset"),
		strings.Contains(l, "remote hung up"),
		strings.Contains(l, "no route to host"),
		strings.Contains(l, "temporary failure"):
		return true
	}
	return false
}

// Retryable reports whether err is a transport failure that may succeed on a
// prompt retry (network blips), as opposed to auth or missing-ref failures.
func Retryable(err error) bool {
	var terr *TransportError
	if !errors.As(err, &terr) {
		return false
	}
	return isAuthOrNetwork(terr.Err)
}
