package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrSourceNotConfigured = errors.New("download: no source configured for url scheme")
	ErrTooLarge            = errors.New("download: response exceeds size limit")

	// errRestart asks the engine to drop the partial file and retry from zero.
	errRestart = errors.New("download: server cannot resume from offset")
)

// NetworkError is a transport level failure (connection reset, timeout,
// truncated body). It is retried with backoff.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("download: network error for %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError is a non-success status from the remote.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("download: %s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPStatusError) Retryable() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	}
	return false
}

// SizeMismatchError is returned when the remote size differs from the expected
// size, either as declared up front or as actually received.
type SizeMismatchError struct {
	URL      string
	Expected int64
	Actual   int64
	Declared bool
}

func (e *SizeMismatchError) Error() string {
	what := "received"
	if e.Declared {
		what = "declared"
	}
	return fmt.Sprintf("download: size mismatch for %s: expected %d bytes, %s %d", e.URL, e.Expected, what, e.Actual)
}

// IsRetryable classifies an error returned by a Source or the Engine.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, errRestart) {
		return true
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	var netErr *NetworkError
	return errors.As(err, &netErr)
}
