package main

import (
	"fmt"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/rundb"
)

type StoreConfig struct {
	// Storage type: "memory", "disk" or "sqlite"
	StorageType string `mapstructure:"storage"`
	// Directory of run documents (disk) or database file (sqlite)
	Path string `mapstructure:"path"`
	// Compress run documents on disk with zstd
	Compress bool `mapstructure:"compress"`
}

func (c *StoreConfig) SetDefaults() {
	if c.StorageType == "" {
		c.StorageType = "memory"
	}
}

func (c *StoreConfig) Validate() error {
	switch c.StorageType {
	case "memory":
		return nil
	case "disk", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("no path configured for %s run storage", c.StorageType)
		}
		return nil
	default:
		return fmt.Errorf("invalid run storage type configured: %s", c.StorageType)
	}
}

func (c *StoreConfig) CreateStore() (rundb.Store, error) {
	switch c.StorageType {
	case "disk":
		log.Info("Runs stored in", c.Path)
		return rundb.NewDiskStore(c.Path, c.Compress)

	case "sqlite":
		log.Info("Runs stored in database", c.Path)
		return rundb.NewSqliteStore(c.Path)

	case "", "memory":
		log.Warn("Runs stored in memory, they will be lost on restart")
		return rundb.NewMemoryStore()

	default:
		return nil, fmt.Errorf("invalid run storage type configured: %s", c.StorageType)
	}
}

func (c *StoreConfig) LogValues() {
	log.Infof("  Store configuration:")
	log.Infof("    storage = %s", c.StorageType)
	if c.StorageType != "memory" {
		log.Infof("    path = %s", c.Path)
	}
	if c.StorageType == "disk" {
		log.Infof("    compress = %v", c.Compress)
	}
}
