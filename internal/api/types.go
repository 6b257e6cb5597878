package api

import "time"

// Auth kinds accepted for a repository configuration.
const (
	AuthNone   = "none"
	AuthToken  = "token"
	AuthSSHKey = "ssh_key"
)

// RepositoryConfig represents one tracked Git repository and its sync state.
// Kept in the api package so store and controller don't import each other.
type RepositoryConfig struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RepoURL  string `json:"repo_url"`
	Branch   string `json:"branch"`
	CronExpr string `json:"cron_expr,omitempty"`
	Active   bool   `json:"active"`

	// SpecPaths are the relative file paths watched for import. Empty means
	// the repository is tracked for revision bookkeeping only.
	SpecPaths []string `json:"spec_paths"`

	// Sync state. LocalPath is empty until the first successful clone.
	// LastCommitHash is the revision whose tracked paths were last attempted.
	LocalPath       string    `json:"local_path,omitempty"`
	LastCommitHash  string    `json:"last_commit_hash,omitempty"`
	LastImportDate  time.Time `json:"last_import_date,omitzero"`
	LastImportError string    `json:"last_import_error,omitempty"`

	// Authentication. SecretName references an encrypted secret held by the
	// store; raw credentials are never kept on this struct.
	AuthKind   string `json:"auth_kind"`
	SecretName string `json:"secret_name,omitempty"`
}

// Cloned reports whether a working copy exists for this config.
func (c *RepositoryConfig) Cloned() bool {
	return c.LocalPath != ""
}

// SyncState is the post-sync snapshot of the mutable tracking fields. The
// orchestrator returns it instead of mutating the config in place; the caller
// persists it.
type SyncState struct {
	LocalPath       string
	LastCommitHash  string
	LastImportDate  time.Time
	LastImportError string
}

// StateOf extracts the current sync state from a config.
func StateOf(c *RepositoryConfig) SyncState {
	return SyncState{
		LocalPath:       c.LocalPath,
		LastCommitHash:  c.LastCommitHash,
		LastImportDate:  c.LastImportDate,
		LastImportError: c.LastImportError,
	}
}

// Apply copies the snapshot back onto a config.
func (s SyncState) Apply(c *RepositoryConfig) {
	c.LocalPath = s.LocalPath
	c.LastCommitHash = s.LastCommitHash
	c.LastImportDate = s.LastImportDate
	c.LastImportError = s.LastImportError
}

// SyncReport is the outcome of one sync or force-sync operation.
type SyncReport struct {
	ImportedPaths []string `json:"imported_paths"`
	FailedPaths   []string `json:"failed_paths,omitempty"`
	CommitHash    string   `json:"commit_hash,omitempty"`
	NoOp          bool     `json:"no_op,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Success reports whether the sync completed without any failure.
func (r SyncReport) Success() bool {
	return r.Error == "" && len(r.FailedPaths) == 0
}

// CatalogEntry is one imported artifact produced from a tracked path.
type CatalogEntry struct {
	ID         string    `json:"id"`
	ConfigID   string    `json:"config_id"`
	SpecPath   string    `json:"spec_path"`
	Title      string    `json:"title,omitempty"`
	Version    string    `json:"version,omitempty"`
	Checksum   string    `json:"checksum"`
	ImportedAt time.Time `json:"imported_at"`
}

// APIResponse is a standard wrapper for API responses.
type APIResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
