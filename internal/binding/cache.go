package binding

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Cache persists binding tables as one JSON document per model, keyed by
// the model's filename. It is the sole durability mechanism for user edits
// made through the external editor.
type Cache struct {
	dir    string
	logger zerolog.Logger
}

// NewCache creates a cache rooted at dir. The directory is created lazily
// on first store.
func NewCache(dir string, logger zerolog.Logger) *Cache {
	return &Cache{
		dir:    dir,
		logger: logger.With().Str("component", "bindcache").Logger(),
	}
}

// Load returns the cached table for the model, or ok=false on a miss.
// A corrupt or structurally invalid cache file is treated as a miss, never
// raised to the caller; it is overwritten by the next successful Store.
func (c *Cache) Load(modelPath string) (Table, bool) {
	path := c.entryPath(modelPath)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var table Table
	if err := json.Unmarshal(data, &table); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("Corrupt binding cache entry, treating as miss")
		return nil, false
	}
	if !structurallyValid(table) {
		c.logger.Warn().Str("path", path).Msg("Structurally invalid binding cache entry, treating as miss")
		return nil, false
	}

	c.logger.Info().Str("model", filepath.Base(modelPath)).Int("entries", len(table)).Msg("Binding table loaded from cache")
	return table, true
}

// Store persists the table for the model. Idempotent: repeated stores
// overwrite.
func (c *Cache) Store(modelPath string, table Table) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(table, "", "    ")
	if err != nil {
		return fmt.Errorf("serialize binding table: %w", err)
	}

	path := c.entryPath(modelPath)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write binding cache: %w", err)
	}

	c.logger.Info().Str("model", filepath.Base(modelPath)).Int("entries", len(table)).Msg("Binding table cached")
	return nil
}

// entryPath derives the on-disk key: <model-filename>.map.json under the
// cache directory.
func (c *Cache) entryPath(modelPath string) string {
	return filepath.Join(c.dir, filepath.Base(modelPath)+".map.json")
}

func structurallyValid(table Table) bool {
	if table == nil {
		return false
	}
	known := make(map[string]struct{})
	for _, tag := range UsageTags() {
		known[tag] = struct{}{}
	}
	for name, p := range table {
		if name == "" || p == nil {
			return false
		}
		for _, tag := range p.SpecialUsage {
			if _, ok := known[tag]; !ok {
				return false
			}
		}
	}
	return true
}
