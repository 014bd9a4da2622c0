package autoconfirm

import (
	"database/sql"

	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/config"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/store"
)

// Config is the daemon configuration.
type Config = config.Config

// PageConfig is a page opened at startup.
type PageConfig = config.PageConfig

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) { return config.LoadFile(path) }

// OpenDB opens the template database at path, creating its directory and
// schema. The caller must blank-import modernc.org/sqlite.
func OpenDB(path string) (*sql.DB, error) {
	return store.OpenDB(path, store.WithMkdirAll())
}
