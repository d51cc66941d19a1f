package download

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// FileSource opens file:// URLs and plain paths, for local mirrors and tests.
type FileSource struct{}

func (FileSource) Open(ctx context.Context, rawURL string, offset int64) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filePathFromURL(rawURL)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &HTTPStatusError{URL: rawURL, StatusCode: 404}
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if offset > info.Size() {
		f.Close()
		return nil, errRestart
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	return &Response{Body: f, Offset: offset, Total: info.Size()}, nil
}

func filePathFromURL(rawURL string) string {
	if !strings.HasPrefix(strings.ToLower(rawURL), "file:") {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.TrimPrefix(rawURL, "file://")
	}
	path := u.Path
	if runtime.GOOS == "windows" {
		path = strings.TrimPrefix(path, "/")
	}
	return filepath.FromSlash(path)
}
