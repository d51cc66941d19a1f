package download

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// Response is an open remote object.
type Response struct {
	// Body streams the object starting at Offset.
	Body io.ReadCloser
	// Offset is where Body starts. It is 0 when the source ignored the requested offset.
	Offset int64
	// Total is the full object size, or -1 when the source did not say.
	Total int64
}

// Source opens remote objects, optionally starting at a byte offset.
type Source interface {
	Open(ctx context.Context, rawURL string, offset int64) (*Response, error)
}

// Mux dispatches to a Source by URL scheme.
type Mux struct {
	sources map[string]Source
}

func NewMux() *Mux {
	return &Mux{sources: make(map[string]Source)}
}

// Handle registers src for the given schemes. The empty scheme matches plain paths.
func (m *Mux) Handle(src Source, schemes ...string) *Mux {
	for _, scheme := range schemes {
		m.sources[strings.ToLower(scheme)] = src
	}
	return m
}

func (m *Mux) Open(ctx context.Context, rawURL string, offset int64) (*Response, error) {
	scheme := schemeOf(rawURL)
	src, ok := m.sources[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotConfigured, scheme)
	}
	return src.Open(ctx, rawURL, offset)
}

func schemeOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	// windows drive letters parse as a one letter scheme
	if len(u.Scheme) == 1 {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// parseContentRange parses "bytes start-end/total". total is -1 for "*".
func parseContentRange(v string) (start, total int64, ok bool) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "bytes ") {
		return 0, 0, false
	}
	v = strings.TrimPrefix(v, "bytes ")

	rangePart, totalPart, found := strings.Cut(v, "/")
	if !found {
		return 0, 0, false
	}
	startPart, _, found := strings.Cut(rangePart, "-")
	if !found {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(startPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if totalPart == "*" {
		return start, -1, true
	}
	total, err = strconv.ParseInt(totalPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, total, true
}
