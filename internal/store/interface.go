package store

import (
	"context"
	"errors"
	"time"

	"github.com/specsync/specsync/internal/api"
)

var (
	ErrConfigNotFound = errors.New("repository config not found")
	ErrSecretNotFound = errors.New("repository secret not found")
)

// Store defines the interface for data persistence.
type Store interface {
	CreateConfig(ctx context.Context, cfg *api.RepositoryConfig) error
	GetConfig(ctx context.Context, id string) (*api.RepositoryConfig, error)
	GetConfigByName(ctx context.Context, name string) (*api.RepositoryConfig, error)
	ListConfigs(ctx context.Context) ([]*api.RepositoryConfig, error)
	ListActiveConfigs(ctx context.Context) ([]*api.RepositoryConfig, error)
	UpdateConfig(ctx context.Context, cfg *api.RepositoryConfig) error
	DeleteConfig(ctx context.Context, id string) error

	// SetActive flips the scheduling gate without touching sync state.
	SetActive(ctx context.Context, id string, active bool) error

	// UpdateSyncState persists the post-sync snapshot for one config.
	UpdateSyncState(ctx context.Context, id string, state api.SyncState) error

	UpsertSecret(ctx context.Context, secret *RepositorySecret) error
	GetSecret(ctx context.Context, configID string) (*RepositorySecret, error)
	DeleteSecret(ctx context.Context, configID string) error

	// ReplaceCatalogRefs swaps the catalog entries recorded for one spec path
	// of a config.
	ReplaceCatalogRefs(ctx context.Context, configID, specPath string, entries []api.CatalogEntry) error
	ListCatalogRefs(ctx context.Context, configID string) ([]api.CatalogEntry, error)
	DeleteCatalogRefs(ctx context.Context, configID string) error

	Close()
}

// RepositorySecret stores encrypted repository credentials.
type RepositorySecret struct {
	ConfigID   string
	Ciphertext []byte
	Nonce      []byte
	UpdatedAt  time.Time
}
