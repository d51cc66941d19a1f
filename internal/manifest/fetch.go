package manifest

import (
	"context"
	"fmt"
	"log/slog"
)

// MaxManifestSize bounds how much of a manifest document is read.
const MaxManifestSize = 32 << 20

// Fetcher reads a small remote object into memory. *download.Engine implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxSize int64) ([]byte, error)
}

// Fetch downloads and parses the manifest at url. Transport failures keep their
// download error types; malformed content is a *ParseError.
func Fetch(ctx context.Context, f Fetcher, url string) (*RemoteManifest, error) {
	data, err := f.Fetch(ctx, url, MaxManifestSize)
	if err != nil {
		return nil, fmt.Errorf("manifest: fetch %s: %w", url, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, err
	}

	slog.Debug("manifest fetched", "url", url, "version", m.Version, "files", len(m.Files))
	return m, nil
}
