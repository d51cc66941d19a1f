package manifest

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptState means the local state file exists but cannot be decoded.
	// It is distinct from an absent file, which means "never installed".
	ErrCorruptState = errors.New("manifest: corrupt local state")

	ErrNoCachedManifest = errors.New("manifest: no cached manifest")
)

// ParseError reports a malformed manifest. Index is the offending file entry,
// or -1 when the problem is at the top level.
type ParseError struct {
	Index  int
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "manifest: parse error"
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s in files[%d]", msg, e.Index)
		if e.Path != "" {
			msg = fmt.Sprintf("%s (%s)", msg, e.Path)
		}
	}
	msg = msg + ": " + e.Reason
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

func topLevelError(reason string, err error) *ParseError {
	return &ParseError{Index: -1, Reason: reason, Err: err}
}
