package storage

import (
	"fmt"
	"strings"
)

// Config selects and configures the blob store backend.
type Config struct {
	Type      StorageType
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
	LocalDir  string
}

// NewStorage creates a BlobStore instance based on the configuration.
// Parameters:
//   - cfg: storage configuration including type, endpoint, credentials and bucket.
// Returns:
//   - BlobStore: initialized storage client implementation.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(cfg *Config) (BlobStore, error) {
	// Auto-detect storage type if not specified
	if cfg.Type == "" {
		if cfg.Endpoint == "" && cfg.LocalDir != "" {
			cfg.Type = StorageTypeLocal
		} else {
			cfg.Type = detectStorageType(cfg.Endpoint)
		}
	}

	switch cfg.Type {
	case StorageTypeLocal:
		return NewLocalStorage(cfg.LocalDir)
	case StorageTypeR2, StorageTypeS3, StorageTypeS3Compatible:
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
