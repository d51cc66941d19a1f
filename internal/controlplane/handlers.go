package controlplane

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/yagualauncher/yagua/internal/orchestrator"
)

// Runner is the orchestrator surface the control plane drives.
type Runner interface {
	Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error)
	// Start claims the runner and runs in the background, or returns
	// orchestrator.ErrBusy.
	Start(ctx context.Context, opts orchestrator.RunOptions) (after uint64, done <-chan error, err error)
	Status() orchestrator.Status
	Log() *orchestrator.EventLog
}

// ResolveFunc turns a request into run options, typically by loading the
// named profile and the stored session.
type ResolveFunc func(req RunRequest) (orchestrator.RunOptions, error)

type Handler struct {
	runner  Runner
	resolve ResolveFunc

	mu   sync.Mutex
	ctx  context.Context
	runs sync.WaitGroup
}

func NewHandler(runner Runner, resolve ResolveFunc) *Handler {
	if resolve == nil {
		resolve = func(req RunRequest) (orchestrator.RunOptions, error) {
			return orchestrator.RunOptions{ManifestURL: req.ManifestURL}, nil
		}
	}
	return &Handler{runner: runner, resolve: resolve, ctx: context.Background()}
}

func (h *Handler) bind(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()
}

func (h *Handler) baseContext() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctx
}

func (h *Handler) wait() {
	h.runs.Wait()
}

func (h *Handler) Status(c *gin.Context) {
	c.PureJSON(http.StatusOK, h.runner.Status())
}

func (h *Handler) Update(c *gin.Context) {
	h.start(c, false)
}

func (h *Handler) Launch(c *gin.Context) {
	h.start(c, true)
}

func (h *Handler) start(c *gin.Context, launch bool) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	opts, err := h.resolve(req)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}
	if req.ManifestURL != "" {
		opts.ManifestURL = req.ManifestURL
	}
	opts.Launch = launch
	opts.Wait = launch && req.Wait

	if req.Wait {
		res, err := h.runner.Run(c.Request.Context(), opts)
		if err != nil {
			h.abortRun(c, err)
			return
		}
		c.PureJSON(http.StatusOK, newRunResponse(res))
		return
	}

	after, done, err := h.runner.Start(h.baseContext(), opts)
	if err != nil {
		h.abortRun(c, err)
		return
	}

	h.runs.Add(1)
	go func() {
		defer h.runs.Done()
		if err := <-done; err != nil {
			slog.Warn("control plane run", "launch", launch, "error", err)
		}
	}()

	c.PureJSON(http.StatusAccepted, RunResponse{
		Code:   CodeAccepted,
		Events: fmt.Sprintf("/v1/events?after=%d", after),
	})
}

func (h *Handler) abortRun(c *gin.Context, err error) {
	if errors.Is(err, orchestrator.ErrBusy) {
		abortWithError(c, http.StatusConflict, ErrCodeBusy, err)
		return
	}
	c.Abort()
	_ = c.Error(err)
	c.PureJSON(http.StatusInternalServerError, ErrorResponse{
		Code:  ErrCodeRunFailed,
		Kind:  orchestrator.Kind(err),
		Error: err.Error(),
	})
}

// Events streams the run log as server-sent events. The stream resumes after
// the "after" query parameter or the Last-Event-ID header.
func (h *Handler) Events(c *gin.Context) {
	cursor := c.Query("after")
	if cursor == "" {
		cursor = c.GetHeader("Last-Event-ID")
	}
	var after uint64
	if cursor != "" {
		v, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Errorf("invalid event cursor %q", cursor))
			return
		}
		after = v
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	events := h.runner.Log().Subscribe(c.Request.Context(), after)
	c.Stream(func(w io.Writer) bool {
		e, ok := <-events
		if !ok {
			return false
		}
		c.Render(-1, sse.Event{
			Id:    strconv.FormatUint(e.Seq, 10),
			Event: string(e.Type),
			Data:  e,
		})
		return true
	})
}
