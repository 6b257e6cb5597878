package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/specsync/specsync/internal/api"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	configsQuery := `
	CREATE TABLE IF NOT EXISTS repository_configs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		repo_url TEXT NOT NULL,
		branch TEXT NOT NULL,
		cron_expr TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT FALSE,
		spec_paths JSONB NOT NULL DEFAULT '[]',
		local_path TEXT NOT NULL DEFAULT '',
		last_commit_hash TEXT NOT NULL DEFAULT '',
		last_import_date TIMESTAMPTZ,
		last_import_error TEXT NOT NULL DEFAULT '',
		auth_kind TEXT NOT NULL DEFAULT 'none',
		secret_name TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.pool.Exec(ctx, configsQuery); err != nil {
		return err
	}

	secretsQuery := `
	CREATE TABLE IF NOT EXISTS repository_secrets (
		config_id TEXT PRIMARY KEY REFERENCES repository_configs(id) ON DELETE CASCADE,
		ciphertext BYTEA NOT NULL,
		nonce BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	`
	if _, err := s.pool.Exec(ctx, secretsQuery); err != nil {
		return err
	}

	entriesQuery := `
	CREATE TABLE IF NOT EXISTS catalog_entries (
		id TEXT PRIMARY KEY,
		config_id TEXT NOT NULL REFERENCES repository_configs(id) ON DELETE CASCADE,
		spec_path TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL DEFAULT '',
		checksum TEXT NOT NULL,
		imported_at TIMESTAMPTZ NOT NULL
	);
	`
	if _, err := s.pool.Exec(ctx, entriesQuery); err != nil {
		return err
	}

	return nil
}

const pgConfigColumns = `id, name, repo_url, branch, cron_expr, active, spec_paths, local_path, last_commit_hash, last_import_date, last_import_error, auth_kind, secret_name`

func (s *PostgresStore) CreateConfig(ctx context.Context, cfg *api.RepositoryConfig) error {
	paths, err := encodeSpecPaths(cfg.SpecPaths)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO repository_configs (` + pgConfigColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.pool.Exec(
		ctx,
		query,
		cfg.ID,
		cfg.Name,
		cfg.RepoURL,
		cfg.Branch,
		cfg.CronExpr,
		cfg.Active,
		paths,
		cfg.LocalPath,
		cfg.LastCommitHash,
		pgNullableTime(cfg.LastImportDate),
		cfg.LastImportError,
		cfg.AuthKind,
		cfg.SecretName,
	)
	return err
}

func (s *PostgresStore) GetConfig(ctx context.Context, id string) (*api.RepositoryConfig, error) {
	query := `SELECT ` + pgConfigColumns + ` FROM repository_configs WHERE id = $1`
	return s.scanOne(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) GetConfigByName(ctx context.Context, name string) (*api.RepositoryConfig, error) {
	query := `SELECT ` + pgConfigColumns + ` FROM repository_configs WHERE name = $1`
	return s.scanOne(s.pool.QueryRow(ctx, query, name))
}

func (s *PostgresStore) ListConfigs(ctx context.Context) ([]*api.RepositoryConfig, error) {
	query := `SELECT ` + pgConfigColumns + ` FROM repository_configs ORDER BY name`
	return s.queryConfigs(ctx, query)
}

func (s *PostgresStore) ListActiveConfigs(ctx context.Context) ([]*api.RepositoryConfig, error) {
	query := `SELECT ` + pgConfigColumns + ` FROM repository_configs WHERE active ORDER BY name`
	return s.queryConfigs(ctx, query)
}

func (s *PostgresStore) queryConfigs(ctx context.Context, query string, args ...any) ([]*api.RepositoryConfig, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*api.RepositoryConfig
	for rows.Next() {
		cfg, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *PostgresStore) UpdateConfig(ctx context.Context, cfg *api.RepositoryConfig) error {
	paths, err := encodeSpecPaths(cfg.SpecPaths)
	if err != nil {
		return err
	}
	query := `
	UPDATE repository_configs
	SET name = $1, repo_url = $2, branch = $3, cron_expr = $4, active = $5, spec_paths = $6,
		local_path = $7, last_commit_hash = $8, last_import_date = $9, last_import_error = $10,
		auth_kind = $11, secret_name = $12
	WHERE id = $13
	`
	tag, err := s.pool.Exec(
		ctx,
		query,
		cfg.Name,
		cfg.RepoURL,
		cfg.Branch,
		cfg.CronExpr,
		cfg.Active,
		paths,
		cfg.LocalPath,
		cfg.LastCommitHash,
		pgNullableTime(cfg.LastImportDate),
		cfg.LastImportError,
		cfg.AuthKind,
		cfg.SecretName,
		cfg.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteConfig(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM repository_configs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigNotFound
	}
	return nil
}

func (s *PostgresStore) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE repository_configs SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateSyncState(ctx context.Context, id string, state api.SyncState) error {
	query := `
	UPDATE repository_configs
	SET local_path = $1, last_commit_hash = $2, last_import_date = $3, last_import_error = $4
	WHERE id = $5
	`
	tag, err := s.pool.Exec(
		ctx,
		query,
		state.LocalPath,
		state.LastCommitHash,
		pgNullableTime(state.LastImportDate),
		state.LastImportError,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertSecret(ctx context.Context, secret *RepositorySecret) error {
	query := `
	INSERT INTO repository_secrets (config_id, ciphertext, nonce, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (config_id) DO UPDATE SET
		ciphertext = EXCLUDED.ciphertext,
		nonce = EXCLUDED.nonce,
		updated_at = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(ctx, query, secret.ConfigID, secret.Ciphertext, secret.Nonce, secret.UpdatedAt)
	return err
}

func (s *PostgresStore) GetSecret(ctx context.Context, configID string) (*RepositorySecret, error) {
	query := `SELECT config_id, ciphertext, nonce, updated_at FROM repository_secrets WHERE config_id = $1`
	row := s.pool.QueryRow(ctx, query, configID)

	secret := &RepositorySecret{}
	if err := row.Scan(&secret.ConfigID, &secret.Ciphertext, &secret.Nonce, &secret.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSecretNotFound
		}
		return nil, err
	}
	return secret, nil
}

func (s *PostgresStore) DeleteSecret(ctx context.Context, configID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM repository_secrets WHERE config_id = $1`, configID)
	return err
}

func (s *PostgresStore) ReplaceCatalogRefs(ctx context.Context, configID, specPath string, entries []api.CatalogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM catalog_entries WHERE config_id = $1 AND spec_path = $2`, configID, specPath); err != nil {
		return err
	}

	insert := `
	INSERT INTO catalog_entries (id, config_id, spec_path, title, version, checksum, imported_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, entry := range entries {
		if _, err := tx.Exec(ctx, insert, entry.ID, entry.ConfigID, entry.SpecPath, entry.Title, entry.Version, entry.Checksum, entry.ImportedAt); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ListCatalogRefs(ctx context.Context, configID string) ([]api.CatalogEntry, error) {
	query := `SELECT id, config_id, spec_path, title, version, checksum, imported_at FROM catalog_entries WHERE config_id = $1 ORDER BY spec_path`
	rows, err := s.pool.Query(ctx, query, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []api.CatalogEntry
	for rows.Next() {
		var entry api.CatalogEntry
		if err := rows.Scan(&entry.ID, &entry.ConfigID, &entry.SpecPath, &entry.Title, &entry.Version, &entry.Checksum, &entry.ImportedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) DeleteCatalogRefs(ctx context.Context, configID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM catalog_entries WHERE config_id = $1`, configID)
	return err
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) scanOne(row pgx.Row) (*api.RepositoryConfig, error) {
	cfg, err := s.scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return cfg, nil
}

func (s *PostgresStore) scanRow(row pgx.Row) (*api.RepositoryConfig, error) {
	var cfg api.RepositoryConfig
	var paths []byte
	var lastImport *time.Time

	err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.RepoURL,
		&cfg.Branch,
		&cfg.CronExpr,
		&cfg.Active,
		&paths,
		&cfg.LocalPath,
		&cfg.LastCommitHash,
		&lastImport,
		&cfg.LastImportError,
		&cfg.AuthKind,
		&cfg.SecretName,
	)
	if err != nil {
		return nil, err
	}

	if lastImport != nil {
		cfg.LastImportDate = *lastImport
	}
	if err := json.Unmarshal(paths, &cfg.SpecPaths); err != nil {
		return nil, fmt.Errorf("failed to decode spec paths: %w", err)
	}
	return &cfg, nil
}

func pgNullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
