package accessor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fruitsalade/fsaccess/internal/accessor/local"
	"github.com/fruitsalade/fsaccess/internal/accessor/memory"
	"github.com/fruitsalade/fsaccess/internal/accessor/remote"
	s3acc "github.com/fruitsalade/fsaccess/internal/accessor/s3"
	"github.com/fruitsalade/fsaccess/internal/config"
)

// Backend types accepted by NewFromConfig.
const (
	TypeLocal  = "local"
	TypeMemory = "memory"
	TypeS3     = "s3"
	TypeRemote = "remote"
)

// NewFromConfig builds an accessor of the given type from its JSON config.
func NewFromConfig(ctx context.Context, backendType string, raw json.RawMessage) (Accessor, error) {
	switch backendType {
	case TypeLocal:
		return local.NewFromJSON(raw)
	case TypeMemory:
		var cfg struct {
			Name string `json:"name"`
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("parse memory config: %w", err)
			}
		}
		return memory.New(cfg.Name), nil
	case TypeS3:
		return s3acc.NewFromJSON(ctx, raw)
	case TypeRemote:
		return remote.NewFromJSON(raw)
	default:
		return nil, fmt.Errorf("unknown backend type %q", backendType)
	}
}

// FromEnv builds the accessor the server exposes from environment configuration.
func FromEnv(ctx context.Context, cfg *config.Config) (Accessor, error) {
	switch cfg.StorageBackend {
	case TypeLocal:
		return local.New(local.Config{RootPath: cfg.LocalStoragePath})
	case TypeMemory:
		return memory.New("server"), nil
	case TypeS3:
		return s3acc.New(ctx, s3acc.Config{
			Endpoint:     cfg.S3Endpoint,
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Region:       cfg.S3Region,
			UseSSL:       cfg.S3UseSSL,
			PresignTTL:   cfg.LocatorTTL,
			CreateBucket: true,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
