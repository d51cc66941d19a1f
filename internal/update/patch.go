package update

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/yagualauncher/yagua/internal/download"
	"github.com/yagualauncher/yagua/internal/integrity"
	"github.com/yagualauncher/yagua/internal/manifest"
	"github.com/yagualauncher/yagua/internal/reconcile"
)

const patchSuffix = ".zst-patch"

// maxPatchWindow bounds the decoder window; patch-from frames reference the
// whole previous file.
const maxPatchWindow = 1 << 31

// stagePatch rebuilds the new version of the entry into dst from the live file
// and a zstd patch-from frame, then verifies it.
func (x *Executor) stagePatch(ctx context.Context, m *manifest.RemoteManifest, pe reconcile.PlanEntry, dst string) error {
	ref := pe.Entry.Patch
	patchPath := dst + patchSuffix
	defer os.Remove(patchPath)

	x.setState(pe.Path, Downloading, nil)
	task := &download.Task{
		URL:              m.PatchURLFor(pe.Entry),
		Dest:             patchPath,
		ExpectedSize:     ref.Size,
		ExpectedChecksum: ref.Checksum,
	}
	if err := x.engine.Download(ctx, task, x.progressFor(pe.Path)); err != nil {
		return err
	}
	if err := integrity.Check(patchPath, ref.Checksum, ref.Algo); err != nil {
		return err
	}

	old, err := os.ReadFile(x.inst.Path(pe.Path))
	if err != nil {
		return fmt.Errorf("read patch base: %w", err)
	}

	x.setState(pe.Path, Verifying, nil)
	if err := applyPatch(old, patchPath, dst, pe.Entry.Size); err != nil {
		os.Remove(dst)
		return err
	}
	if err := integrity.Check(dst, pe.Entry.Checksum, pe.Entry.Algo); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

func applyPatch(base []byte, patchPath, dst string, size int64) error {
	in, err := os.Open(patchPath)
	if err != nil {
		return err
	}
	defer in.Close()

	dec, err := zstd.NewReader(in,
		zstd.WithDecoderDictRaw(0, base),
		zstd.WithDecoderMaxWindow(maxPatchWindow),
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		return fmt.Errorf("patch decoder: %w", err)
	}
	defer dec.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	// one byte past the size bound is enough to detect an oversized result
	n, err := io.Copy(out, io.LimitReader(dec, size+1))
	if err != nil {
		out.Close()
		return fmt.Errorf("apply patch: %w", err)
	}
	if n != size {
		out.Close()
		return &download.SizeMismatchError{URL: patchPath, Expected: size, Actual: n}
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
