//go:build !windows

package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yagualauncher/yagua/internal/launch"
	"github.com/yagualauncher/yagua/internal/profile"
)

func TestRunLaunchAndWait(t *testing.T) {
	h := newHarness(t, Config{
		Launch: launch.BuildOptions{
			Executable: "/bin/sh",
			Args:       []string{"-c", `test "$1" = "Steve" && test -f app.bin && exit 7`, "sh", "${auth_player_name}"},
		},
	})

	session, err := profile.Offline("Steve")
	require.NoError(t, err)

	res, err := h.orch.Run(context.Background(), RunOptions{Launch: true, Wait: true, Session: session, Profile: profile.Profile{Name: "default"}})
	require.NoError(t, err)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 7, *res.ExitCode)

	ms := milestones(h.orch.Log().Since(0))
	assert.Equal(t, []string{"state:ready_to_launch", "state:launching", "launch_started", "launch_exited", "state:done"}, ms[len(ms)-5:])
}

func TestRunLaunchFailure(t *testing.T) {
	h := newHarness(t, Config{Launch: launch.BuildOptions{Executable: "/nonexistent/game"}})

	_, err := h.orch.Run(context.Background(), RunOptions{Launch: true})
	assert.Equal(t, KindLaunch, Kind(err))
	assert.Equal(t, Failed, h.orch.State())
}
