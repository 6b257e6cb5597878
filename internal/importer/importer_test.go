package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specsync/specsync/internal/api"
	"github.com/specsync/specsync/internal/store"
)

const ordersSpec = `openapi: 3.0.0
info:
  title: Orders API
  version: 1.2.0
paths: {}
`

func newTestImporter(t *testing.T) (*CatalogImporter, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return NewCatalogImporter(st, nil), st
}

func seedConfig(t *testing.T, st store.Store) *api.RepositoryConfig {
	t.Helper()
	cfg := &api.RepositoryConfig{
		ID:       "cfg-1",
		Name:     "orders",
		RepoURL:  "https://example.com/specs.git",
		Branch:   "main",
		AuthKind: api.AuthNone,
	}
	require.NoError(t, st.CreateConfig(context.Background(), cfg))
	return cfg
}

func TestImportRecordsCatalogEntry(t *testing.T) {
	imp, st := newTestImporter(t)
	cfg := seedConfig(t, st)

	dir := t.TempDir()
	abs := filepath.Join(dir, "orders.yaml")
	require.NoError(t, os.WriteFile(abs, []byte(ordersSpec), 0o644))

	entry, err := imp.Import(context.Background(), cfg, "apis/orders.yaml", abs)
	require.NoError(t, err)

	require.NotEmpty(t, entry.ID)
	require.Equal(t, "Orders API", entry.Title)
	require.Equal(t, "1.2.0", entry.Version)

	sum := sha256.Sum256([]byte(ordersSpec))
	require.Equal(t, hex.EncodeToString(sum[:]), entry.Checksum)

	stored, err := st.ListCatalogRefs(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, entry.ID, stored[0].ID)
}

func TestImportJSONSpecMetadata(t *testing.T) {
	imp, st := newTestImporter(t)
	cfg := seedConfig(t, st)

	abs := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(abs, []byte(`{"info": {"title": "Orders", "version": "2.0"}}`), 0o644))

	entry, err := imp.Import(context.Background(), cfg, "apis/orders.json", abs)
	require.NoError(t, err)
	require.Equal(t, "Orders", entry.Title)
	require.Equal(t, "2.0", entry.Version)
}

func TestImportReplacesPreviousEntryForSamePath(t *testing.T) {
	imp, st := newTestImporter(t)
	cfg := seedConfig(t, st)

	abs := filepath.Join(t.TempDir(), "orders.yaml")
	require.NoError(t, os.WriteFile(abs, []byte(ordersSpec), 0o644))

	first, err := imp.Import(context.Background(), cfg, "apis/orders.yaml", abs)
	require.NoError(t, err)
	second, err := imp.Import(context.Background(), cfg, "apis/orders.yaml", abs)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	stored, err := st.ListCatalogRefs(context.Background(), cfg.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1, "re-import is idempotent per path")
	require.Equal(t, second.ID, stored[0].ID)
}

func TestImportMissingFileReturnsImportError(t *testing.T) {
	imp, st := newTestImporter(t)
	cfg := seedConfig(t, st)

	_, err := imp.Import(context.Background(), cfg, "apis/gone.yaml", filepath.Join(t.TempDir(), "gone.yaml"))
	var impErr *ImportError
	require.ErrorAs(t, err, &impErr)
	require.Equal(t, "apis/gone.yaml", impErr.Path)
}

func TestImportUnparseableSpecStillImported(t *testing.T) {
	imp, st := newTestImporter(t)
	cfg := seedConfig(t, st)

	abs := filepath.Join(t.TempDir(), "weird.txt")
	require.NoError(t, os.WriteFile(abs, []byte(":\tnot yaml {{{"), 0o644))

	entry, err := imp.Import(context.Background(), cfg, "apis/weird.txt", abs)
	require.NoError(t, err, "unknown formats are imported without metadata")
	require.Empty(t, entry.Title)
	require.Empty(t, entry.Version)
}
