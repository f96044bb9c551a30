package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/fruitsalade/fsaccess/internal/accessor"
)

// openLocation builds the accessor a location argument names.
func openLocation(ctx context.Context, loc string) (accessor.Accessor, error) {
	typ, raw, err := locationConfig(loc)
	if err != nil {
		return nil, err
	}
	return accessor.NewFromConfig(ctx, typ, raw)
}

func locationConfig(loc string) (string, json.RawMessage, error) {
	var (
		typ string
		v   any
	)
	switch {
	case loc == "":
		return "", nil, fmt.Errorf("empty location")
	case strings.HasPrefix(loc, "mem:"):
		typ = accessor.TypeMemory
		v = map[string]string{"name": strings.TrimPrefix(loc, "mem:")}
	case strings.HasPrefix(loc, "s3://"):
		u, err := url.Parse(loc)
		if err != nil || u.Host == "" {
			return "", nil, fmt.Errorf("invalid s3 location %q", loc)
		}
		typ = accessor.TypeS3
		v = map[string]any{
			"endpoint":    cfg.S3Endpoint,
			"bucket":      u.Host,
			"prefix":      strings.Trim(u.Path, "/"),
			"access_key":  cfg.S3AccessKey,
			"secret_key":  cfg.S3SecretKey,
			"region":      cfg.S3Region,
			"use_ssl":     cfg.S3UseSSL,
			"presign_ttl": cfg.LocatorTTL,
		}
	case strings.HasPrefix(loc, "http://"), strings.HasPrefix(loc, "https://"):
		typ = accessor.TypeRemote
		v = map[string]string{"base_url": loc, "token": token}
	default:
		typ = accessor.TypeLocal
		v = map[string]string{"root_path": strings.TrimPrefix(loc, "local:")}
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s config: %w", typ, err)
	}
	return typ, raw, nil
}
