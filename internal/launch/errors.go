package launch

import (
	"errors"
	"fmt"
)

var (
	ErrNotRunning   = errors.New("launch: process not running")
	ErrNoExecutable = errors.New("launch: no executable configured")
)

// LaunchError is any failure to start or observe the target process.
// Launches are never retried automatically.
type LaunchError struct {
	Op         string
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch: %s %s: %v", e.Op, e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
