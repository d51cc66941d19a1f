// Package download fetches remote files into staging with resume, size bounds
// and bounded retries.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/yagualauncher/yagua/internal/utils"
)

const (
	PartSuffix = ".part"

	DefaultMaxRetries       = 3
	DefaultRetryBaseDelay   = 500 * time.Millisecond
	DefaultRetryMaxDelay    = 10 * time.Second
	DefaultProgressInterval = 100 * time.Millisecond

	chunkSize = 32 * 1024
)

// Task is a single file transfer. It is owned by the Engine while Download runs.
type Task struct {
	URL              string
	Dest             string
	ExpectedSize     int64
	ExpectedChecksum string

	BytesTransferred int64
}

type EngineConfig struct {
	MaxRetries       int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	ProgressInterval time.Duration
}

// Engine downloads Tasks from a Source.
type Engine struct {
	src Source
	cfg EngineConfig
}

func NewEngine(src Source, cfg EngineConfig) *Engine {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	return &Engine{src: src, cfg: cfg}
}

func (e *Engine) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryBaseDelay
	b.MaxInterval = e.cfg.RetryMaxDelay
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.cfg.MaxRetries)), ctx)
}

// retry runs op until it succeeds, fails permanently or the retry budget is spent.
func (e *Engine) retry(ctx context.Context, url string, op func() error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err == nil || IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, e.newBackOff(ctx), func(err error, wait time.Duration) {
		slog.Warn("download retry", "url", url, "attempt", attempt, "wait", wait, "error", err)
	})
}

// Download transfers task.URL into task.Dest. Bytes land in Dest+".part" first,
// so an existing Dest always holds a complete transfer. A partial file left by
// an interrupted attempt or run is resumed when the source supports it.
func (e *Engine) Download(ctx context.Context, task *Task, onProgress ProgressFunc) error {
	if task.ExpectedSize < 0 {
		return fmt.Errorf("download: %s: expected size required", task.URL)
	}
	if err := utils.EnsureParent(task.Dest); err != nil {
		return err
	}

	part := task.Dest + PartSuffix
	progress := newProgressThrottle(onProgress, e.cfg.ProgressInterval, task.ExpectedSize)

	err := e.retry(ctx, task.URL, func() error {
		return e.attempt(ctx, task, part, progress)
	})
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) && task.BytesTransferred < task.ExpectedSize {
			// the body kept ending early on every attempt
			err = &SizeMismatchError{URL: task.URL, Expected: task.ExpectedSize, Actual: task.BytesTransferred}
		}
		var sizeErr *SizeMismatchError
		if errors.As(err, &sizeErr) {
			os.Remove(part)
		}
		return err
	}

	if err := os.Rename(part, task.Dest); err != nil {
		return err
	}
	progress.flush(task.ExpectedSize)

	slog.Debug("download complete", "url", task.URL, "dest", task.Dest, "size", humanize.Bytes(uint64(task.ExpectedSize)))
	return nil
}

func (e *Engine) attempt(ctx context.Context, task *Task, part string, progress *progressThrottle) error {
	var offset int64
	if info, err := os.Stat(part); err == nil {
		offset = info.Size()
	}
	if offset > task.ExpectedSize {
		offset = 0
	}

	if offset == task.ExpectedSize {
		// nothing left to transfer, possibly an empty file
		f, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		task.BytesTransferred = offset
		return f.Close()
	}

	resp, err := e.src.Open(ctx, task.URL, offset)
	if errors.Is(err, errRestart) {
		os.Remove(part)
		return err
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.Offset != offset {
		slog.Debug("download restart", "url", task.URL, "requested", offset, "got", resp.Offset)
		offset = resp.Offset
	}
	if resp.Total >= 0 && resp.Total != task.ExpectedSize {
		return &SizeMismatchError{URL: task.URL, Expected: task.ExpectedSize, Actual: resp.Total, Declared: true}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset == 0 {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	remaining := task.ExpectedSize - offset
	var written int64
	buf := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if written+int64(n) > remaining {
				return &SizeMismatchError{URL: task.URL, Expected: task.ExpectedSize, Actual: offset + written + int64(n)}
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
			written += int64(n)
			task.BytesTransferred = offset + written
			progress.update(task.BytesTransferred)
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			// keep what was written, the next attempt resumes from there
			f.Sync()
			return &NetworkError{URL: task.URL, Err: rerr}
		}
	}

	if written < remaining {
		return &SizeMismatchError{URL: task.URL, Expected: task.ExpectedSize, Actual: offset + written}
	}
	return f.Sync()
}

// Fetch reads a whole (small) object into memory with the same retry policy,
// refusing anything larger than maxSize.
func (e *Engine) Fetch(ctx context.Context, url string, maxSize int64) ([]byte, error) {
	var data []byte
	err := e.retry(ctx, url, func() error {
		resp, err := e.src.Open(ctx, url, 0)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.Total > maxSize {
			return fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, url, resp.Total)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
		if err != nil {
			return &NetworkError{URL: url, Err: err}
		}
		if int64(len(body)) > maxSize {
			return fmt.Errorf("%w: %s", ErrTooLarge, url)
		}
		data = body
		return nil
	})
	return data, err
}
