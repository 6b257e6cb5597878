package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/specsync/specsync/internal/api"
	"github.com/specsync/specsync/internal/credentials"
	"github.com/specsync/specsync/internal/repoauth"
	"github.com/specsync/specsync/internal/store"
)

// Registry owns repository config lifecycle: validation, identity,
// credential storage, and persistence. It is the only component that
// handles raw secrets; everything else sees opaque auth methods.
type Registry struct {
	Store       store.Store
	Credentials *credentials.Service
	Logger      *slog.Logger
}

// NewRegistry creates a new registry.
func NewRegistry(st store.Store, creds *credentials.Service, logger *slog.Logger) *Registry {
	return &Registry{Store: st, Credentials: creds, Logger: logger}
}

// Create validates and persists a new repository config. The secret is the
// raw credential (token or SSH private key) and is stored encrypted; it
// never lands on the config itself. New configs start inactive.
func (r *Registry) Create(ctx context.Context, cfg *api.RepositoryConfig, secret string) error {
	if err := r.normalizeAndValidate(cfg, secret); err != nil {
		return err
	}
	if existing, err := r.Store.GetConfigByName(ctx, cfg.Name); err == nil && existing != nil {
		return fmt.Errorf("repository config %q already exists", cfg.Name)
	} else if err != nil && !errors.Is(err, store.ErrConfigNotFound) {
		return fmt.Errorf("failed to check for existing config: %w", err)
	}

	cfg.ID = uuid.NewString()
	cfg.Active = false
	cfg.LocalPath = ""
	cfg.LastCommitHash = ""
	cfg.LastImportError = ""

	if err := r.Store.CreateConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to persist repository config: %w", err)
	}
	if secret != "" {
		if err := r.storeSecret(ctx, cfg, secret); err != nil {
			_ = r.Store.DeleteConfig(ctx, cfg.ID)
			return err
		}
	}

	r.Logger.Info("Registered repository config", "config_id", cfg.ID, "name", cfg.Name, "repo_url", cfg.RepoURL, "branch", cfg.Branch)
	return nil
}

// Update validates and persists changes to an existing config. Sync state
// fields are carried over from the stored record; only Sync advances them.
// A non-empty secret rotates the stored credential; empty keeps it.
func (r *Registry) Update(ctx context.Context, cfg *api.RepositoryConfig, secret string) error {
	existing, err := r.Store.GetConfig(ctx, cfg.ID)
	if err != nil {
		return err
	}
	if err := r.normalizeAndValidate(cfg, secret); err != nil {
		return err
	}

	cfg.Active = existing.Active
	cfg.LocalPath = existing.LocalPath
	cfg.LastCommitHash = existing.LastCommitHash
	cfg.LastImportDate = existing.LastImportDate
	cfg.LastImportError = existing.LastImportError
	if cfg.SecretName == "" {
		cfg.SecretName = existing.SecretName
	}

	if err := r.Store.UpdateConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to update repository config: %w", err)
	}
	if secret != "" {
		if err := r.storeSecret(ctx, cfg, secret); err != nil {
			return err
		}
	}
	if cfg.AuthKind == api.AuthNone {
		if err := r.Store.DeleteSecret(ctx, cfg.ID); err != nil && !errors.Is(err, store.ErrSecretNotFound) {
			r.Logger.Warn("Failed to drop stale credential", "config_id", cfg.ID, "error", err)
		}
	}

	r.Logger.Info("Updated repository config", "config_id", cfg.ID, "name", cfg.Name)
	return nil
}

// Get returns one config by id.
func (r *Registry) Get(ctx context.Context, id string) (*api.RepositoryConfig, error) {
	return r.Store.GetConfig(ctx, id)
}

// GetByName returns one config by its unique name.
func (r *Registry) GetByName(ctx context.Context, name string) (*api.RepositoryConfig, error) {
	return r.Store.GetConfigByName(ctx, name)
}

// List returns all configs.
func (r *Registry) List(ctx context.Context) ([]*api.RepositoryConfig, error) {
	return r.Store.ListConfigs(ctx)
}

// ListActive returns the configs eligible for scheduled syncs.
func (r *Registry) ListActive(ctx context.Context) ([]*api.RepositoryConfig, error) {
	return r.Store.ListActiveConfigs(ctx)
}

// SetActive flips the scheduling gate for one config.
func (r *Registry) SetActive(ctx context.Context, id string, active bool) error {
	return r.Store.SetActive(ctx, id, active)
}

// Delete removes a config along with its stored credential and catalog
// references. Working copy removal is the orchestrator's job and must
// happen before the record disappears.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.Store.DeleteSecret(ctx, id); err != nil && !errors.Is(err, store.ErrSecretNotFound) {
		return fmt.Errorf("failed to delete repository credential: %w", err)
	}
	if err := r.Store.DeleteCatalogRefs(ctx, id); err != nil {
		return fmt.Errorf("failed to delete catalog references: %w", err)
	}
	if err := r.Store.DeleteConfig(ctx, id); err != nil {
		return err
	}
	r.Logger.Info("Deleted repository config", "config_id", id)
	return nil
}

// SaveSyncState persists the post-sync snapshot for one config.
func (r *Registry) SaveSyncState(ctx context.Context, id string, state api.SyncState) error {
	return r.Store.UpdateSyncState(ctx, id, state)
}

// ListCatalogRefs returns the catalog entries recorded for one config.
func (r *Registry) ListCatalogRefs(ctx context.Context, id string) ([]api.CatalogEntry, error) {
	return r.Store.ListCatalogRefs(ctx, id)
}

// ResolveAuth loads and decrypts the stored credential for a config and
// turns it into a git transport auth method. Anonymous configs resolve to
// nil. Implements the orchestrator's AuthResolver.
func (r *Registry) ResolveAuth(ctx context.Context, cfg *api.RepositoryConfig) (transport.AuthMethod, error) {
	if cfg.AuthKind == "" || cfg.AuthKind == api.AuthNone {
		return nil, nil
	}
	record, err := r.Store.GetSecret(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential for config %s: %w", cfg.ID, err)
	}
	plaintext, err := r.Credentials.Decrypt(record.Ciphertext, record.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential for config %s: %w", cfg.ID, err)
	}
	defer zeroBytes(plaintext)
	return repoauth.BuildAuthMethod(cfg.AuthKind, plaintext)
}

func (r *Registry) normalizeAndValidate(cfg *api.RepositoryConfig, secret string) error {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.RepoURL = strings.TrimSpace(cfg.RepoURL)
	cfg.Branch = strings.TrimSpace(cfg.Branch)
	cfg.AuthKind = repoauth.NormalizeKind(cfg.AuthKind)

	if cfg.AuthKind == "" {
		return fmt.Errorf("unsupported auth kind")
	}
	if cfg.Name == "" {
		return fmt.Errorf("name is required")
	}
	if cfg.RepoURL == "" {
		return fmt.Errorf("repo_url is required")
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	for i, p := range cfg.SpecPaths {
		p = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), "/"))
		if p == "" {
			return fmt.Errorf("spec_paths must not contain empty entries")
		}
		cfg.SpecPaths[i] = p
	}
	if cfg.CronExpr != "" {
		if _, err := cron.ParseStandard(cfg.CronExpr); err != nil {
			return fmt.Errorf("invalid cron_expr: %w", err)
		}
	}
	if err := repoauth.ValidateConfigInput(cfg.RepoURL, cfg.AuthKind, secret); err != nil {
		return err
	}
	if secret != "" && !r.Credentials.Enabled() {
		return fmt.Errorf("credential encryption is not configured; cannot store secrets")
	}
	return nil
}

func (r *Registry) storeSecret(ctx context.Context, cfg *api.RepositoryConfig, secret string) error {
	if cfg.AuthKind == api.AuthSSHKey {
		secret = repoauth.NormalizeSSHKey(secret)
	}
	plaintext := []byte(secret)
	defer zeroBytes(plaintext)

	ciphertext, nonce, err := r.Credentials.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}
	record := &store.RepositorySecret{ConfigID: cfg.ID, Ciphertext: ciphertext, Nonce: nonce, UpdatedAt: time.Now().UTC()}
	if err := r.Store.UpsertSecret(ctx, record); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	if cfg.SecretName == "" {
		cfg.SecretName = cfg.Name + "-credentials"
		if err := r.Store.UpdateConfig(ctx, cfg); err != nil {
			return fmt.Errorf("failed to record credential reference: %w", err)
		}
	}
	return nil
}

func zeroBytes(value []byte) {
	for i := range value {
		value[i] = 0
	}
}
