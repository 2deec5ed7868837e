// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type StorageBackend string

const (
	StorageBackendFile     StorageBackend = "file"
	StorageBackendValKey   StorageBackend = "valkey"
	StorageBackendPostgres StorageBackend = "postgres"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP           HTTPServer     `yaml:"http"`
	API            API            `yaml:"api"`
	Cache          Cache          `yaml:"cache"`
	Storage        Storage        `yaml:"storage"`
	TokenRefresher TokenRefresher `yaml:"tokenRefresher"`
	Migrate        Migrate        `yaml:"migrate"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

// API configures the upstream analytics backend.
type API struct {
	BaseURL   string        `yaml:"baseURL"`
	Timeout   time.Duration `yaml:"timeout" default:"30s"`
	UserAgent string        `yaml:"userAgent" default:"analytics-dashboard"`
}

type Cache struct {
	TTL time.Duration `yaml:"ttl" default:"5m"`
}

// Storage selects where the auth-storage and ui-storage blobs are persisted.
type Storage struct {
	Backend  StorageBackend `yaml:"backend" default:"file"`
	Path     string         `yaml:"path" default:"$HOME/.analytics-dashboard/storage.json"`
	Prefix   string         `yaml:"prefix" default:"analytics-dashboard"`
	ValKey   ValKey         `yaml:"valkey"`
	Database Database       `yaml:"database"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type ValKey struct {
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type TokenRefresher struct {
	RefreshInterval time.Duration `yaml:"refreshInterval" default:"1m"`
	// RefreshWindow is how long before expiry an access token gets refreshed.
	RefreshWindow time.Duration `yaml:"refreshWindow" default:"5m"`
}

type Migrate struct {
	// TargetVersion stops the migration at the given version. Zero applies
	// every pending migration.
	TargetVersion int64 `yaml:"targetVersion"`
}
