package update

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yagualauncher/yagua/internal/download"
	"github.com/yagualauncher/yagua/internal/install"
	"github.com/yagualauncher/yagua/internal/integrity"
	"github.com/yagualauncher/yagua/internal/manifest"
	"github.com/yagualauncher/yagua/internal/reconcile"
)

func sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// distServer serves files by path and counts requests per path.
type distServer struct {
	*httptest.Server
	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
}

func newDistServer(t *testing.T, files map[string][]byte) *distServer {
	d := &distServer{files: files, hits: make(map[string]int)}
	d.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(r.URL.Path, "/")
		d.mu.Lock()
		d.hits[p]++
		data, ok := d.files[p]
		d.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, p, time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(d.Close)
	return d
}

func (d *distServer) set(path string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[path] = data
}

func (d *distServer) hitCount(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits[path]
}

func manifestFor(version, baseURL string, files map[string][]byte, order ...string) *manifest.RemoteManifest {
	m := &manifest.RemoteManifest{Version: version, BaseURL: baseURL}
	for _, p := range order {
		data := files[p]
		m.Files = append(m.Files, manifest.FileEntry{Path: p, Size: int64(len(data)), Checksum: sum(data), Algo: integrity.SHA256})
	}
	return m
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(path string, s EntryState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, path+":"+s.String())
}

func (r *recorder) committed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if strings.HasSuffix(e, ":committed") {
			out = append(out, strings.TrimSuffix(e, ":committed"))
		}
	}
	return out
}

func setup(t *testing.T) (*install.Installation, *Executor) {
	inst, err := install.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, inst.Setup())

	engine := download.NewEngine(download.NewHTTPSource(nil), download.EngineConfig{
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
	})
	return inst, NewExecutor(inst, engine, integrity.NewVerifier(0), Config{Workers: 2})
}

func plan(t *testing.T, inst *install.Installation, m *manifest.RemoteManifest, r reconcile.Reconciler) reconcile.UpdatePlan {
	state, err := inst.LoadState()
	require.NoError(t, err)
	return r.Plan(m, state)
}

func TestExecuteFreshInstall(t *testing.T) {
	files := map[string][]byte{"app.bin": []byte("the application binary")}
	srv := newDistServer(t, files)
	inst, x := setup(t)

	m := manifestFor("1", srv.URL, files, "app.bin")
	p := plan(t, inst, m, reconcile.Reconciler{})
	require.Equal(t, reconcile.Counts{Add: 1}, p.Counts())

	require.NoError(t, x.Execute(context.Background(), p, m, ""))

	ok, err := integrity.Verify(inst.Path("app.bin"), sum(files["app.bin"]), integrity.SHA256)
	require.NoError(t, err)
	assert.True(t, ok)

	state, err := inst.LoadState()
	require.NoError(t, err)
	assert.Equal(t, "1", state.ManifestVersion)
	assert.Equal(t, sum(files["app.bin"]), state.Files["app.bin"].Checksum)
	assert.NoDirExists(t, inst.StagingDir)

	// a second pass has nothing left to do
	assert.True(t, plan(t, inst, m, reconcile.Reconciler{}).Empty())
}

func TestExecuteDeletesAfterCommits(t *testing.T) {
	v1 := map[string][]byte{"a.bin": []byte("old a"), "data/old.dat": []byte("obsolete")}
	srv := newDistServer(t, map[string][]byte{"a.bin": v1["a.bin"], "data/old.dat": v1["data/old.dat"]})
	inst, x := setup(t)

	m1 := manifestFor("1", srv.URL, v1, "a.bin", "data/old.dat")
	require.NoError(t, x.Execute(context.Background(), plan(t, inst, m1, reconcile.Reconciler{}), m1, ""))
	require.FileExists(t, inst.Path("data/old.dat"))

	v2 := map[string][]byte{"a.bin": []byte("new a")}
	srv.set("a.bin", v2["a.bin"])
	m2 := manifestFor("2", srv.URL, v2, "a.bin")

	p := plan(t, inst, m2, reconcile.Reconciler{})
	require.Len(t, p, 2)
	assert.Equal(t, reconcile.Replace, p[0].Action)
	assert.Equal(t, reconcile.Delete, p[1].Action)

	rec := &recorder{}
	x.OnEntryState = rec.record
	require.NoError(t, x.Execute(context.Background(), p, m2, ""))

	assert.Equal(t, []string{"a.bin", "data/old.dat"}, rec.committed())
	assert.NoFileExists(t, inst.Path("data/old.dat"))
	assert.NoDirExists(t, inst.Path("data"))

	got, err := os.ReadFile(inst.Path("a.bin"))
	require.NoError(t, err)
	assert.Equal(t, v2["a.bin"], got)

	state, err := inst.LoadState()
	require.NoError(t, err)
	assert.NotContains(t, state.Files, "data/old.dat")
	assert.Equal(t, "2", state.ManifestVersion)
}

func TestExecuteCancelLeavesInstallUntouched(t *testing.T) {
	big := bytes.Repeat([]byte("x"), 1<<20)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.WriteHeader(http.StatusOK)
		w.Write(big[:4096])
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	inst, x := setup(t)
	require.NoError(t, os.WriteFile(inst.Path("keep.txt"), []byte("user data"), 0o644))
	before := manifest.NewLocalState()
	before.ManifestVersion = "0"
	require.NoError(t, inst.SaveState(before))

	m := manifestFor("1", srv.URL, map[string][]byte{"big.bin": big}, "big.bin")
	p := plan(t, inst, m, reconcile.Reconciler{})

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	x.OnProgress = func(path string, done, total int64) {
		once.Do(cancel)
	}

	err := x.Execute(ctx, p, m, "")
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoFileExists(t, inst.Path("big.bin"))
	assert.NoDirExists(t, inst.StagingDir)
	state, err := inst.LoadState()
	require.NoError(t, err)
	assert.Equal(t, "0", state.ManifestVersion)
	assert.Empty(t, state.Files)
}

func TestExecuteChecksumMismatchRedownloadsOnce(t *testing.T) {
	good := []byte("correct payload")
	files := map[string][]byte{"lib.jar": good}
	m := manifestFor("1", "", files, "lib.jar")

	srv := newDistServer(t, map[string][]byte{"lib.jar": []byte("corrupt payload")})
	m.BaseURL = srv.URL
	inst, x := setup(t)

	err := x.Execute(context.Background(), plan(t, inst, m, reconcile.Reconciler{}), m, "")
	var sumErr *integrity.ChecksumMismatchError
	require.ErrorAs(t, err, &sumErr)
	assert.Equal(t, 2, srv.hitCount("lib.jar"))
	assert.NoFileExists(t, inst.Path("lib.jar"))
	assert.NoDirExists(t, inst.StagingDir)

	srv.set("lib.jar", good)
	require.NoError(t, x.Execute(context.Background(), plan(t, inst, m, reconcile.Reconciler{}), m, ""))
	assert.FileExists(t, inst.Path("lib.jar"))
}

func TestExecuteShortBodyDiscardsStaging(t *testing.T) {
	payload := []byte("0123456789")
	m := manifestFor("1", "", map[string][]byte{"a.bin": payload}, "a.bin")
	srv := newDistServer(t, map[string][]byte{"a.bin": payload[:4]})
	m.BaseURL = srv.URL
	inst, x := setup(t)

	err := x.Execute(context.Background(), plan(t, inst, m, reconcile.Reconciler{}), m, "")
	var sizeErr *download.SizeMismatchError
	require.ErrorAs(t, err, &sizeErr)
	assert.NoDirExists(t, inst.StagingDir)
	assert.NoFileExists(t, inst.Path("a.bin"))
}

func TestExecuteConcurrentUpdate(t *testing.T) {
	inst, x := setup(t)
	other, err := install.New(inst.Root)
	require.NoError(t, err)
	require.NoError(t, other.Lock())
	defer other.Unlock()

	m := &manifest.RemoteManifest{Version: "1"}
	err = x.Execute(context.Background(), nil, m, "")
	assert.ErrorIs(t, err, install.ErrConcurrentUpdate)
}

func TestExecuteRejectsLiveStaging(t *testing.T) {
	inst, x := setup(t)
	m := &manifest.RemoteManifest{Version: "1"}
	err := x.Execute(context.Background(), nil, m, inst.Root)
	assert.ErrorIs(t, err, install.ErrInvalidStaging)
}

func TestExecutePartialUpdateAndResume(t *testing.T) {
	files := map[string][]byte{"a.bin": []byte("first file"), "b.bin": []byte("second file")}
	srv := newDistServer(t, files)
	inst, x := setup(t)
	m := manifestFor("1", srv.URL, files, "a.bin", "b.bin")

	// a non-empty directory where b.bin goes makes its commit fail
	blocker := inst.Path("b.bin")
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "sub"), 0o755))

	err := x.Execute(context.Background(), plan(t, inst, m, reconcile.Reconciler{}), m, "")
	var perr *PartialUpdateError
	require.ErrorAs(t, err, &perr)
	require.Len(t, perr.Remaining, 1)
	assert.Equal(t, "b.bin", perr.Remaining[0].Path)

	state, err := inst.LoadState()
	require.NoError(t, err)
	assert.Contains(t, state.Files, "a.bin")
	assert.NotContains(t, state.Files, "b.bin")
	assert.FileExists(t, install.StagedPath(inst.StagingDir, "b.bin"))

	require.NoError(t, os.RemoveAll(blocker))
	require.NoError(t, x.ExecuteRemaining(context.Background(), perr, m, ""))

	// the staged copy was reused
	assert.Equal(t, 1, srv.hitCount("b.bin"))
	state, err = inst.LoadState()
	require.NoError(t, err)
	assert.Contains(t, state.Files, "b.bin")
	assert.Equal(t, "1", state.ManifestVersion)
	assert.True(t, plan(t, inst, m, reconcile.Reconciler{}).Empty())
}

func makePatch(t *testing.T, base, target []byte) []byte {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderDictRaw(0, base))
	require.NoError(t, err)
	_, err = enc.Write(target)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

func TestExecutePatch(t *testing.T) {
	oldData := bytes.Repeat([]byte("level data chunk "), 4096)
	newData := append(append([]byte{}, oldData...), []byte("one more line")...)
	patch := makePatch(t, oldData, newData)
	require.Less(t, len(patch), len(newData))

	srv := newDistServer(t, map[string][]byte{"world.pak": oldData})
	inst, x := setup(t)

	m1 := manifestFor("1", srv.URL, map[string][]byte{"world.pak": oldData}, "world.pak")
	require.NoError(t, x.Execute(context.Background(), plan(t, inst, m1, reconcile.Reconciler{}), m1, ""))

	srv.set("world.pak", newData)
	srv.set("patches/world.pak.zst", patch)
	m2 := manifestFor("2", srv.URL, map[string][]byte{"world.pak": newData}, "world.pak")
	m2.Files[0].Patch = &manifest.PatchRef{URL: "patches/world.pak.zst", Size: int64(len(patch)), Checksum: sum(patch), Algo: integrity.SHA256}

	p := plan(t, inst, m2, reconcile.Reconciler{PreferPatch: true})
	require.Equal(t, reconcile.Patch, p[0].Action)
	require.NoError(t, x.Execute(context.Background(), p, m2, ""))

	got, err := os.ReadFile(inst.Path("world.pak"))
	require.NoError(t, err)
	assert.Equal(t, newData, got)
	assert.Equal(t, 1, srv.hitCount("world.pak"))
	assert.Equal(t, 1, srv.hitCount("patches/world.pak.zst"))
}

func TestExecutePatchFallsBackToFullDownload(t *testing.T) {
	oldData := []byte("old contents of the file")
	newData := []byte("completely new contents of the file")
	bogus := []byte("not a zstd frame")

	srv := newDistServer(t, map[string][]byte{"f.bin": oldData})
	inst, x := setup(t)
	m1 := manifestFor("1", srv.URL, map[string][]byte{"f.bin": oldData}, "f.bin")
	require.NoError(t, x.Execute(context.Background(), plan(t, inst, m1, reconcile.Reconciler{}), m1, ""))

	srv.set("f.bin", newData)
	srv.set("f.patch", bogus)
	m2 := manifestFor("2", srv.URL, map[string][]byte{"f.bin": newData}, "f.bin")
	m2.Files[0].Patch = &manifest.PatchRef{URL: "f.patch", Size: int64(len(bogus)), Checksum: sum(bogus), Algo: integrity.SHA256}

	p := plan(t, inst, m2, reconcile.Reconciler{PreferPatch: true})
	require.Equal(t, reconcile.Patch, p[0].Action)
	require.NoError(t, x.Execute(context.Background(), p, m2, ""))

	got, err := os.ReadFile(inst.Path("f.bin"))
	require.NoError(t, err)
	assert.Equal(t, newData, got)
	assert.Equal(t, 2, srv.hitCount("f.bin"))
}

func TestExecuteWorkerPoolBounded(t *testing.T) {
	files := map[string][]byte{}
	var order []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		files[name] = []byte("content of " + name)
		order = append(order, name)
	}

	var inflight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		data := files[strings.TrimPrefix(r.URL.Path, "/")]
		http.ServeContent(w, r, "x", time.Time{}, bytes.NewReader(data))
	}))
	defer srv.Close()

	inst, x := setup(t)
	m := manifestFor("1", srv.URL, files, order...)
	require.NoError(t, x.Execute(context.Background(), plan(t, inst, m, reconcile.Reconciler{}), m, ""))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
