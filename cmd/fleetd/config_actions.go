package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/utils"
)

type ActionLogConfig struct {
	// Maximum size of the action log.
	// When the size is exceeded, the oldest run histories will be removed.
	// Decimal (K, M, G) and binary (Ki, Mi, Gi) suffixes are supported.
	MaxSize_ string `mapstructure:"size"`
	// Storage type: "memory" or "disk"
	StorageType string `mapstructure:"storage"`
	// Path to store run histories (for disk storage)
	Path string `mapstructure:"path"`
}

func (c *ActionLogConfig) MaxSize() int64 {
	size, _ := utils.ParseSize(c.MaxSize_)
	return size
}

func (c *ActionLogConfig) CreateFs() (utils.Fs, error) {
	switch c.StorageType {
	case "disk":
		if c.Path == "" {
			return nil, fmt.Errorf("no path configured for action log disk storage")
		}

		os := afero.NewOsFs()
		if err := os.MkdirAll(c.Path, 0777); err != nil {
			return nil, err
		}

		fs := afero.NewBasePathFs(os, c.Path)

		log.Info("Action log stored in", c.Path)
		return fs, nil

	case "", "memory":
		log.Info("Action log stored in memory")
		return afero.NewMemMapFs(), nil

	default:
		return nil, fmt.Errorf("invalid action log storage type configured: %s", c.StorageType)
	}
}

func (c *ActionLogConfig) SetDefaults() {
	if c.StorageType == "" {
		c.StorageType = "memory"
	}
	if c.MaxSize_ == "" {
		c.MaxSize_ = "64M"
	}
}

func (c *ActionLogConfig) Validate() error {
	if _, err := utils.ParseSize(c.MaxSize_); err != nil {
		return fmt.Errorf("invalid action log size: %w", err)
	}
	return nil
}

func (c *ActionLogConfig) LogValues() {
	log.Infof("  Action log configuration:")
	log.Infof("    storage = %s", c.StorageType)
	log.Infof("    size = %s", utils.HumanByteSize(c.MaxSize()))
	if c.StorageType == "disk" {
		log.Infof("    path = %s", c.Path)
	}
}
