package storage

import (
	"fmt"

	"github.com/kebairia/sbackup/internal/config"
	"github.com/kebairia/sbackup/internal/logger"
)

// NewProvider builds the provider selected by cfg.Driver.
func NewProvider(cfg config.StorageConfig, log logger.Logger) (Provider, error) {
	switch cfg.Driver {
	case DriverS3, "":
		return NewS3Provider(cfg, log), nil
	case DriverMinio:
		return NewMinioProvider(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
