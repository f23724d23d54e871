package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
)

// ForURL resolves a destination string to a concrete BlobStore. Values of
// the form s3://bucket/prefix select S3 with credentials from the ambient
// AWS environment; anything else is treated as a local directory.
func ForURL(ctx context.Context, raw string) (BlobStore, error) {
	if !strings.HasPrefix(raw, "s3://") {
		return NewLocalStore(raw), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid s3 url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid s3 url %q: missing bucket", raw)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return NewS3Store(cfg, u.Host, strings.TrimPrefix(u.Path, "/")), nil
}

// Fetch reads a single blob addressed by raw, which is either an s3://
// object URL or a local file path. Used for pulling a prior document
// without standing up a full store.
func Fetch(ctx context.Context, raw string) ([]byte, error) {
	if !strings.HasPrefix(raw, "s3://") {
		return os.ReadFile(raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid s3 url %q: %w", raw, err)
	}
	if u.Host == "" || u.Path == "" || u.Path == "/" {
		return nil, fmt.Errorf("invalid s3 url %q: need bucket and key", raw)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	store := NewS3Store(cfg, u.Host, "")
	return store.Get(ctx, strings.TrimPrefix(u.Path, "/"))
}
