package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"tryon-server-go/internal/platform/config"
	"tryon-server-go/internal/platform/errors"
	"tryon-server-go/internal/platform/logging"
)

// Item is one selectable clothing entry.
type Item = config.CatalogItem

// Table is the process-wide, read-only clothing catalog. It is loaded once
// at bootstrap and shared by the listing endpoint and try-on validation,
// so the two can never drift apart.
type Table struct {
	items  []Item
	byID   map[string]Item
	assets string
}

// Load builds the catalog table from configuration. assetsDir is the
// directory holding the clothing image files.
func Load(items []Item, assetsDir string, logger *logging.Logger) (*Table, error) {
	if len(items) == 0 {
		return nil, errors.New(errors.KindConfig, "catalog.load", "catalog has no items")
	}

	byID := make(map[string]Item, len(items))
	for _, item := range items {
		if item.ID == "" {
			return nil, errors.New(errors.KindConfig, "catalog.load", "catalog item missing id")
		}
		if _, dup := byID[item.ID]; dup {
			return nil, errors.New(errors.KindConfig, "catalog.load",
				fmt.Sprintf("duplicate catalog id %q", item.ID))
		}
		byID[item.ID] = item
	}

	logger.InfoTag("Catalog", "catalog loaded: %d items, assets in %s", len(items), assetsDir)

	return &Table{
		items:  append([]Item(nil), items...),
		byID:   byID,
		assets: assetsDir,
	}, nil
}

// Items returns the catalog entries in listing order. The returned slice is
// a copy; callers cannot mutate the table.
func (t *Table) Items() []Item {
	return append([]Item(nil), t.items...)
}

// Lookup resolves a clothing id to its catalog entry.
func (t *Table) Lookup(id string) (Item, bool) {
	item, ok := t.byID[id]
	return item, ok
}

// AssetFilename is the id-to-filename convention for clothing images.
func AssetFilename(id string) string {
	return fmt.Sprintf("clothing_%s.png", id)
}

// ImagePath validates a clothing id and resolves it to an on-disk asset
// path. Unknown ids and missing asset files are both validation errors,
// surfaced to the caller before any streaming begins.
func (t *Table) ImagePath(id string) (string, error) {
	if _, ok := t.byID[id]; !ok {
		return "", errors.New(errors.KindValidation, "catalog.image_path",
			fmt.Sprintf("unknown clothing id: %s", id))
	}

	path := filepath.Join(t.assets, AssetFilename(id))
	if _, err := os.Stat(path); err != nil {
		return "", errors.New(errors.KindValidation, "catalog.image_path",
			fmt.Sprintf("Clothing image not found: %s", AssetFilename(id)))
	}
	return path, nil
}
