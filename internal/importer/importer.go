// Package importer turns local spec files into catalog entries. The sync
// engine treats it as an opaque collaborator: a path goes in, a catalog entry
// or an ImportError comes out.
package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/specsync/specsync/internal/api"
	"github.com/specsync/specsync/internal/store"
)

// ImportError wraps a single path's import failure. It is collected by the
// orchestrator, never fatal to the batch.
type ImportError struct {
	Path string
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import failed for %s: %v", e.Path, e.Err)
}
func (e *ImportError) Unwrap() error { return e.Err }

// Importer consumes a local file and produces a catalog entry.
type Importer interface {
	Import(ctx context.Context, cfg *api.RepositoryConfig, specPath, absolutePath string) (api.CatalogEntry, error)
}

// CatalogImporter records imported specs through the store. Title and version
// are lifted from the document's info block when one is present; anything
// beyond that is left to downstream consumers (parsing/validating formats is
// not this component's job).
type CatalogImporter struct {
	store  store.Store
	logger *slog.Logger
}

func NewCatalogImporter(s store.Store, logger *slog.Logger) *CatalogImporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogImporter{store: s, logger: logger}
}

func (i *CatalogImporter) Import(ctx context.Context, cfg *api.RepositoryConfig, specPath, absolutePath string) (api.CatalogEntry, error) {
	content, err := os.ReadFile(absolutePath)
	if err != nil {
		return api.CatalogEntry{}, &ImportError{Path: specPath, Err: err}
	}

	sum := sha256.Sum256(content)
	entry := api.CatalogEntry{
		ID:         uuid.NewString(),
		ConfigID:   cfg.ID,
		SpecPath:   specPath,
		Checksum:   hex.EncodeToString(sum[:]),
		ImportedAt: time.Now().UTC(),
	}
	entry.Title, entry.Version = specInfo(content)

	if err := i.store.ReplaceCatalogRefs(ctx, cfg.ID, specPath, []api.CatalogEntry{entry}); err != nil {
		return api.CatalogEntry{}, &ImportError{Path: specPath, Err: err}
	}

	i.logger.Info("Imported spec", "repo", cfg.Name, "path", specPath, "title", entry.Title)
	return entry, nil
}

// specInfo extracts title/version from an OpenAPI/AsyncAPI-style info block.
// YAML is a superset of JSON, so one decoder covers both encodings. A file
// that does not decode simply yields empty metadata.
func specInfo(content []byte) (title, version string) {
	var doc struct {
		Info struct {
			Title   string `yaml:"title"`
			Version string `yaml:"version"`
		} `yaml:"info"`
	}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return "", ""
	}
	return doc.Info.Title, doc.Info.Version
}
