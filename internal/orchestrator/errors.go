package orchestrator

import (
	"context"
	"errors"

	"github.com/yagualauncher/yagua/internal/download"
	"github.com/yagualauncher/yagua/internal/install"
	"github.com/yagualauncher/yagua/internal/integrity"
	"github.com/yagualauncher/yagua/internal/launch"
	"github.com/yagualauncher/yagua/internal/manifest"
	"github.com/yagualauncher/yagua/internal/update"
)

// ErrorKind names a failure class for event consumers.
type ErrorKind string

const (
	KindNetwork          ErrorKind = "NetworkError"
	KindParse            ErrorKind = "ParseError"
	KindSizeMismatch     ErrorKind = "SizeMismatchError"
	KindChecksumMismatch ErrorKind = "ChecksumMismatchError"
	KindIO               ErrorKind = "IOError"
	KindPartialUpdate    ErrorKind = "PartialUpdateError"
	KindConcurrentUpdate ErrorKind = "ConcurrentUpdateError"
	KindLaunch           ErrorKind = "LaunchError"
	KindCancelled        ErrorKind = "Cancelled"
)

var ErrBusy = errors.New("orchestrator: a run is already in progress")

// Kind classifies err. Anything unrecognized is an IOError.
func Kind(err error) ErrorKind {
	var (
		partialErr  *update.PartialUpdateError
		launchErr   *launch.LaunchError
		parseErr    *manifest.ParseError
		checksumErr *integrity.ChecksumMismatchError
		sizeErr     *download.SizeMismatchError
		networkErr  *download.NetworkError
		statusErr   *download.HTTPStatusError
	)
	switch {
	case errors.As(err, &partialErr):
		return KindPartialUpdate
	case errors.Is(err, install.ErrConcurrentUpdate), errors.Is(err, ErrBusy):
		return KindConcurrentUpdate
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.As(err, &launchErr):
		return KindLaunch
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &checksumErr):
		return KindChecksumMismatch
	case errors.As(err, &sizeErr):
		return KindSizeMismatch
	case errors.As(err, &networkErr), errors.As(err, &statusErr),
		errors.Is(err, download.ErrTooLarge), errors.Is(err, download.ErrSourceNotConfigured):
		return KindNetwork
	}
	return KindIO
}
