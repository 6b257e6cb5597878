package controller

import (
	"context"
	"sync"

	"github.com/specsync/specsync/internal/api"
	"github.com/specsync/specsync/internal/store"
)

// memStore is an in-memory store.Store used by registry and scheduler tests.
// Like the SQL-backed stores, every call fails once its context is done.
type memStore struct {
	mu      sync.Mutex
	configs map[string]*api.RepositoryConfig
	secrets map[string]*store.RepositorySecret
	catalog map[string][]api.CatalogEntry
}

func newMemStore() *memStore {
	return &memStore{
		configs: make(map[string]*api.RepositoryConfig),
		secrets: make(map[string]*store.RepositorySecret),
		catalog: make(map[string][]api.CatalogEntry),
	}
}

func (m *memStore) CreateConfig(ctx context.Context, cfg *api.RepositoryConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *cfg
	m.configs[cfg.ID] = &clone
	return nil
}

func (m *memStore) GetConfig(ctx context.Context, id string) (*api.RepositoryConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[id]
	if !ok {
		return nil, store.ErrConfigNotFound
	}
	clone := *cfg
	return &clone, nil
}

func (m *memStore) GetConfigByName(ctx context.Context, name string) (*api.RepositoryConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cfg := range m.configs {
		if cfg.Name == name {
			clone := *cfg
			return &clone, nil
		}
	}
	return nil, store.ErrConfigNotFound
}

func (m *memStore) ListConfigs(ctx context.Context) ([]*api.RepositoryConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*api.RepositoryConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		clone := *cfg
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memStore) ListActiveConfigs(ctx context.Context) ([]*api.RepositoryConfig, error) {
	all, err := m.ListConfigs(ctx)
	if err != nil {
		return nil, err
	}
	var out []*api.RepositoryConfig
	for _, cfg := range all {
		if cfg.Active {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (m *memStore) UpdateConfig(ctx context.Context, cfg *api.RepositoryConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[cfg.ID]; !ok {
		return store.ErrConfigNotFound
	}
	clone := *cfg
	m.configs[cfg.ID] = &clone
	return nil
}

func (m *memStore) DeleteConfig(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[id]; !ok {
		return store.ErrConfigNotFound
	}
	delete(m.configs, id)
	return nil
}

func (m *memStore) SetActive(ctx context.Context, id string, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[id]
	if !ok {
		return store.ErrConfigNotFound
	}
	cfg.Active = active
	return nil
}

func (m *memStore) UpdateSyncState(ctx context.Context, id string, state api.SyncState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[id]
	if !ok {
		return store.ErrConfigNotFound
	}
	state.Apply(cfg)
	return nil
}

func (m *memStore) UpsertSecret(ctx context.Context, secret *store.RepositorySecret) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *secret
	m.secrets[secret.ConfigID] = &clone
	return nil
}

func (m *memStore) GetSecret(ctx context.Context, configID string) (*store.RepositorySecret, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	secret, ok := m.secrets[configID]
	if !ok {
		return nil, store.ErrSecretNotFound
	}
	clone := *secret
	return &clone, nil
}

func (m *memStore) DeleteSecret(ctx context.Context, configID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[configID]; !ok {
		return store.ErrSecretNotFound
	}
	delete(m.secrets, configID)
	return nil
}

func (m *memStore) ReplaceCatalogRefs(ctx context.Context, configID, specPath string, entries []api.CatalogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []api.CatalogEntry
	for _, e := range m.catalog[configID] {
		if e.SpecPath != specPath {
			kept = append(kept, e)
		}
	}
	m.catalog[configID] = append(kept, entries...)
	return nil
}

func (m *memStore) ListCatalogRefs(ctx context.Context, configID string) ([]api.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]api.CatalogEntry(nil), m.catalog[configID]...), nil
}

func (m *memStore) DeleteCatalogRefs(ctx context.Context, configID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.catalog, configID)
	return nil
}

func (m *memStore) Close() {}
