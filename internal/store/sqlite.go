package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/specsync/specsync/internal/api"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore initializes the SQLite database and creates necessary tables.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	configsQuery := `
	CREATE TABLE IF NOT EXISTS repository_configs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		repo_url TEXT NOT NULL,
		branch TEXT NOT NULL,
		cron_expr TEXT,
		active INTEGER NOT NULL DEFAULT 0,
		spec_paths TEXT NOT NULL DEFAULT '[]',
		local_path TEXT,
		last_commit_hash TEXT,
		last_import_date DATETIME,
		last_import_error TEXT,
		auth_kind TEXT NOT NULL DEFAULT 'none',
		secret_name TEXT
	);
	`
	if _, err := db.Exec(configsQuery); err != nil {
		return nil, fmt.Errorf("failed to create repository_configs table: %w", err)
	}

	secretsQuery := `
	CREATE TABLE IF NOT EXISTS repository_secrets (
		config_id TEXT PRIMARY KEY,
		ciphertext BLOB NOT NULL,
		nonce BLOB NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(config_id) REFERENCES repository_configs(id) ON DELETE CASCADE
	);
	`
	if _, err := db.Exec(secretsQuery); err != nil {
		return nil, fmt.Errorf("failed to create repository_secrets table: %w", err)
	}

	entriesQuery := `
	CREATE TABLE IF NOT EXISTS catalog_entries (
		id TEXT PRIMARY KEY,
		config_id TEXT NOT NULL,
		spec_path TEXT NOT NULL,
		title TEXT,
		version TEXT,
		checksum TEXT NOT NULL,
		imported_at DATETIME NOT NULL,
		FOREIGN KEY(config_id) REFERENCES repository_configs(id) ON DELETE CASCADE
	);
	`
	if _, err := db.Exec(entriesQuery); err != nil {
		return nil, fmt.Errorf("failed to create catalog_entries table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

const sqliteConfigColumns = `id, name, repo_url, branch, cron_expr, active, spec_paths, local_path, last_commit_hash, last_import_date, last_import_error, auth_kind, secret_name`

func (s *SQLiteStore) CreateConfig(ctx context.Context, cfg *api.RepositoryConfig) error {
	paths, err := encodeSpecPaths(cfg.SpecPaths)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO repository_configs (` + sqliteConfigColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(
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
		nullableTime(cfg.LastImportDate),
		cfg.LastImportError,
		cfg.AuthKind,
		cfg.SecretName,
	)
	return err
}

func (s *SQLiteStore) GetConfig(ctx context.Context, id string) (*api.RepositoryConfig, error) {
	query := `SELECT ` + sqliteConfigColumns + ` FROM repository_configs WHERE id = ?`
	return scanConfig(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLiteStore) GetConfigByName(ctx context.Context, name string) (*api.RepositoryConfig, error) {
	query := `SELECT ` + sqliteConfigColumns + ` FROM repository_configs WHERE name = ?`
	return scanConfig(s.db.QueryRowContext(ctx, query, name))
}

func (s *SQLiteStore) ListConfigs(ctx context.Context) ([]*api.RepositoryConfig, error) {
	query := `SELECT ` + sqliteConfigColumns + ` FROM repository_configs ORDER BY name`
	return s.queryConfigs(ctx, query)
}

func (s *SQLiteStore) ListActiveConfigs(ctx context.Context) ([]*api.RepositoryConfig, error) {
	query := `SELECT ` + sqliteConfigColumns + ` FROM repository_configs WHERE active = 1 ORDER BY name`
	return s.queryConfigs(ctx, query)
}

func (s *SQLiteStore) queryConfigs(ctx context.Context, query string, args ...any) ([]*api.RepositoryConfig, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*api.RepositoryConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *SQLiteStore) UpdateConfig(ctx context.Context, cfg *api.RepositoryConfig) error {
	paths, err := encodeSpecPaths(cfg.SpecPaths)
	if err != nil {
		return err
	}
	query := `
	UPDATE repository_configs
	SET name = ?, repo_url = ?, branch = ?, cron_expr = ?, active = ?, spec_paths = ?,
		local_path = ?, last_commit_hash = ?, last_import_date = ?, last_import_error = ?,
		auth_kind = ?, secret_name = ?
	WHERE id = ?
	`
	result, err := s.db.ExecContext(
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
		nullableTime(cfg.LastImportDate),
		cfg.LastImportError,
		cfg.AuthKind,
		cfg.SecretName,
		cfg.ID,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (s *SQLiteStore) DeleteConfig(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM repository_secrets WHERE config_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_entries WHERE config_id = ?`, id); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM repository_configs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireRowAffected(result); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) SetActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE repository_configs SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (s *SQLiteStore) UpdateSyncState(ctx context.Context, id string, state api.SyncState) error {
	query := `
	UPDATE repository_configs
	SET local_path = ?, last_commit_hash = ?, last_import_date = ?, last_import_error = ?
	WHERE id = ?
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		state.LocalPath,
		state.LastCommitHash,
		nullableTime(state.LastImportDate),
		state.LastImportError,
		id,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (s *SQLiteStore) UpsertSecret(ctx context.Context, secret *RepositorySecret) error {
	query := `
	INSERT INTO repository_secrets (config_id, ciphertext, nonce, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(config_id) DO UPDATE SET
		ciphertext = excluded.ciphertext,
		nonce = excluded.nonce,
		updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, secret.ConfigID, secret.Ciphertext, secret.Nonce, secret.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetSecret(ctx context.Context, configID string) (*RepositorySecret, error) {
	query := `SELECT config_id, ciphertext, nonce, updated_at FROM repository_secrets WHERE config_id = ?`
	row := s.db.QueryRowContext(ctx, query, configID)

	secret := &RepositorySecret{}
	if err := row.Scan(&secret.ConfigID, &secret.Ciphertext, &secret.Nonce, &secret.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSecretNotFound
		}
		return nil, err
	}
	return secret, nil
}

func (s *SQLiteStore) DeleteSecret(ctx context.Context, configID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM repository_secrets WHERE config_id = ?`, configID)
	return err
}

func (s *SQLiteStore) ReplaceCatalogRefs(ctx context.Context, configID, specPath string, entries []api.CatalogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_entries WHERE config_id = ? AND spec_path = ?`, configID, specPath); err != nil {
		return err
	}

	insert := `
	INSERT INTO catalog_entries (id, config_id, spec_path, title, version, checksum, imported_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, insert, entry.ID, entry.ConfigID, entry.SpecPath, entry.Title, entry.Version, entry.Checksum, entry.ImportedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListCatalogRefs(ctx context.Context, configID string) ([]api.CatalogEntry, error) {
	query := `SELECT id, config_id, spec_path, title, version, checksum, imported_at FROM catalog_entries WHERE config_id = ? ORDER BY spec_path`
	rows, err := s.db.QueryContext(ctx, query, configID)
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

func (s *SQLiteStore) DeleteCatalogRefs(ctx context.Context, configID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM catalog_entries WHERE config_id = ?`, configID)
	return err
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*api.RepositoryConfig, error) {
	var cfg api.RepositoryConfig
	var paths string
	var localPath, lastCommit, cronExpr, lastErr, secretName sql.NullString
	var lastImport sql.NullTime

	err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.RepoURL,
		&cfg.Branch,
		&cronExpr,
		&cfg.Active,
		&paths,
		&localPath,
		&lastCommit,
		&lastImport,
		&lastErr,
		&cfg.AuthKind,
		&secretName,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	cfg.CronExpr = cronExpr.String
	cfg.LocalPath = localPath.String
	cfg.LastCommitHash = lastCommit.String
	cfg.LastImportError = lastErr.String
	cfg.SecretName = secretName.String
	if lastImport.Valid {
		cfg.LastImportDate = lastImport.Time
	}
	if err := json.Unmarshal([]byte(paths), &cfg.SpecPaths); err != nil {
		return nil, fmt.Errorf("failed to decode spec paths: %w", err)
	}
	return &cfg, nil
}

func encodeSpecPaths(paths []string) (string, error) {
	if paths == nil {
		paths = []string{}
	}
	encoded, err := json.Marshal(paths)
	if err != nil {
		return "", fmt.Errorf("failed to encode spec paths: %w", err)
	}
	return string(encoded), nil
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConfigNotFound
	}
	return nil
}
