package install

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupCreatesLayout(t *testing.T) {
	inst, err := New(filepath.Join(t.TempDir(), "game"))
	require.NoError(t, err)
	require.NoError(t, inst.Setup())

	assert.DirExists(t, inst.Root)
	assert.DirExists(t, inst.MetaDir)
	assert.DirExists(t, inst.LogsDir)
	assert.Equal(t, filepath.Join(inst.Root, ".yagua", "state.json"), inst.StateFile)
	assert.Equal(t, filepath.Join(inst.Root, "a", "b.bin"), inst.Path("a/b.bin"))
}

func TestLockingSingleInstance(t *testing.T) {
	root := t.TempDir()
	a, err := New(root)
	require.NoError(t, err)
	b, err := New(root)
	require.NoError(t, err)

	require.NoError(t, a.Lock())
	assert.ErrorIs(t, b.Lock(), ErrConcurrentUpdate)

	require.NoError(t, a.Unlock())
	require.NoError(t, b.Lock())
	require.NoError(t, b.Unlock())

	// unlocking without holding is a no-op
	assert.NoError(t, a.Unlock())
}

func TestLockWait(t *testing.T) {
	root := t.TempDir()
	a, err := New(root)
	require.NoError(t, err)
	b, err := New(root)
	require.NoError(t, err)

	require.NoError(t, a.Lock())

	start := time.Now()
	err = b.LockWait(context.Background(), 300*time.Millisecond)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)

	go func() {
		time.Sleep(100 * time.Millisecond)
		a.Unlock()
	}()
	require.NoError(t, b.LockWait(context.Background(), 5*time.Second))
	require.NoError(t, b.Unlock())
}

func TestCheckStaging(t *testing.T) {
	inst, err := New(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, inst.CheckStaging(inst.StagingDir))
	assert.NoError(t, inst.CheckStaging(t.TempDir()))
	assert.ErrorIs(t, inst.CheckStaging(inst.Root), ErrInvalidStaging)
	assert.ErrorIs(t, inst.CheckStaging(filepath.Join(inst.Root, "bin")), ErrInvalidStaging)
	assert.ErrorIs(t, inst.CheckStaging(filepath.Dir(inst.Root)), ErrInvalidStaging)
}
