package blob

import (
	"context"
	"fmt"
)

// Config selects and configures the blob backend.
type Config struct {
	// Backend is "local" or "s3".
	Backend string `mapstructure:"backend"`
	// LocalPath is the base directory for the local backend.
	LocalPath string   `mapstructure:"local_path"`
	S3        S3Config `mapstructure:"s3"`
}

// ApplyDefaults fills zero fields with sensible values.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "local"
	}
	if c.LocalPath == "" {
		c.LocalPath = "./data/blobs"
	}
}

// Validate checks the backend selection.
func (c *Config) Validate() error {
	switch c.Backend {
	case "local":
		if c.LocalPath == "" {
			return fmt.Errorf("blob.local_path is required for the local backend")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("blob.backend must be local or s3 (got: %s)", c.Backend)
	}
	return nil
}

// New creates the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return NewLocal(cfg.LocalPath)
	}
}
