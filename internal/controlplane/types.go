package controlplane

import (
	"github.com/gin-gonic/gin"

	"github.com/yagualauncher/yagua/internal/orchestrator"
	"github.com/yagualauncher/yagua/internal/reconcile"
)

const (
	CodeOk              = "OK"
	CodeAccepted        = "ACCEPTED"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeBusy         = "ERR_BUSY"
	ErrCodeRunFailed    = "ERR_RUN_FAILED"
	ErrCodeUnknownError = "ERR_UNKNOWN_ERROR"
)

// RunRequest is the optional body of /v1/update and /v1/launch.
type RunRequest struct {
	Profile     string `json:"profile,omitempty"`
	ManifestURL string `json:"manifestUrl,omitempty"`
	// Wait keeps the request open until the run ends, and for launches until the game exits.
	Wait bool `json:"wait,omitempty"`
}

type RunResponse struct {
	Code     string             `json:"code"`
	State    orchestrator.State `json:"state,omitempty"`
	Version  string             `json:"version,omitempty"`
	Offline  bool               `json:"offline,omitempty"`
	Counts   *reconcile.Counts  `json:"counts,omitempty"`
	PID      int                `json:"pid,omitempty"`
	ExitCode *int               `json:"exitCode,omitempty"`
	// Events is where to follow a run that was accepted in the background.
	Events string `json:"events,omitempty"`
}

type ErrorResponse struct {
	Code  string                 `json:"code"`
	Kind  orchestrator.ErrorKind `json:"kind,omitempty"`
	Error string                 `json:"error"`
}

func abortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	_ = c.Error(err)
	c.PureJSON(status, ErrorResponse{Code: code, Error: err.Error()})
}

func newRunResponse(res *orchestrator.Result) RunResponse {
	resp := RunResponse{Code: CodeOk}
	if res == nil {
		return resp
	}
	resp.State = res.State
	resp.Version = res.Version
	resp.Offline = res.Offline
	if !res.Plan.Empty() {
		counts := res.Plan.Counts()
		resp.Counts = &counts
	}
	if res.Process != nil {
		resp.PID = res.Process.PID()
	}
	resp.ExitCode = res.ExitCode
	return resp
}
