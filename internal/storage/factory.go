package storage

import (
	"fmt"
	"strings"

	"github.com/timmy/harvester/internal/config"
)

// NewStorage creates an ObjectStorage instance based on the configuration.
// Parameters:
//   - cfg: storage configuration including endpoint, credentials, and bucket.
// Returns:
//   - ObjectStorage: initialized storage client implementation, or an
//     in-memory store when storage is disabled.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	if !cfg.Enabled {
		return NewMemoryStorage(), nil
	}
	if cfg.Type != "" && cfg.Type != "s3" {
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}

	return NewS3Storage(&S3Config{
		Flavor:       detectFlavor(cfg.Endpoint),
		Endpoint:     cfg.Endpoint,
		AccessKey:    cfg.AccessKey,
		SecretKey:    cfg.SecretKey,
		UseSSL:       cfg.UseSSL,
		UsePathStyle: cfg.UsePathStyle,
		Bucket:       cfg.Bucket,
		Region:       cfg.Region,
	})
}

// detectFlavor attempts to detect the S3 flavor from the endpoint
func detectFlavor(endpoint string) Flavor {
	endpoint = strings.ToLower(endpoint)

	switch {
	case endpoint == "", strings.Contains(endpoint, "amazonaws.com"):
		return FlavorAWS
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return FlavorR2
	default:
		return FlavorCompatible
	}
}
