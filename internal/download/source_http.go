package download

import (
	"context"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
	"github.com/yagualauncher/yagua/internal/utils"
	"github.com/yagualauncher/yagua/internal/version"
)

const (
	HeaderLauncherVersion = "X-Yagua-Version"
	HeaderDeviceID        = "X-Yagua-Device-Id"
)

// NewHTTPClient returns the launcher's HTTP client. Retries are handled by the
// Engine so that they can resume partial files; the client does not retry.
func NewHTTPClient() *req.Client {
	return req.C().
		SetUserAgent(version.UserAgent()).
		SetCommonHeader(HeaderLauncherVersion, version.Version).
		SetCommonHeader(HeaderDeviceID, utils.HWID).
		SetJsonMarshal(utils.JSONMarshal).
		SetJsonUnmarshal(utils.JSONUnmarshal).
		DisableAutoDecompress().
		// bodies of large assets outlive any fixed client timeout; callers bound requests with ctx
		SetTimeout(0)
}

// HTTPSource opens objects over HTTP(S) with range requests.
type HTTPSource struct {
	client *req.Client
}

func NewHTTPSource(client *req.Client) *HTTPSource {
	if client == nil {
		client = NewHTTPClient()
	}
	return &HTTPSource{client: client}
}

func (s *HTTPSource) Open(ctx context.Context, rawURL string, offset int64) (*Response, error) {
	r := s.client.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		SetHeader("Accept-Encoding", "identity")
	if offset > 0 {
		r.SetHeader("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := r.Get(rawURL)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &Response{Body: resp.Body, Offset: 0, Total: resp.ContentLength}, nil

	case http.StatusPartialContent:
		start, total, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if !ok || start != offset {
			resp.Body.Close()
			return nil, errRestart
		}
		return &Response{Body: resp.Body, Offset: start, Total: total}, nil

	case http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		return nil, errRestart
	}

	resp.Body.Close()
	return nil, &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
}
