// Package transfer sequences acquisition, optional external transforms, and
// delivery of byte artifacts, with progress callbacks on both legs and
// guaranteed cleanup of local staging files.
package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Labels attached to the two progress legs.
const (
	LabelDownloading = "Downloading"
	LabelUploading   = "Uploading"
)

// Source yields a byte stream to acquire. Total length may be unknown, in
// which case Open returns -1 and progress displays stay indeterminate.
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, int64, error)
}

// Destination consumes the staged artifact. Implementations must not retain
// path after Deliver returns.
type Destination interface {
	Deliver(ctx context.Context, path string, name string) error
}

// Transform converts a staged artifact into a new one via an external tool.
// The returned path is removed by the orchestrator after delivery.
type Transform interface {
	Name() string
	Apply(ctx context.Context, inPath string) (outPath string, err error)
}

// ProgressFunc receives transfer samples. current is monotonically
// non-decreasing per leg; total is -1 when unknown.
type ProgressFunc func(label string, current, total int64)

// Orchestrator runs transfers through a shared staging directory. Staging
// names embed a UUID so concurrent transfers never collide.
type Orchestrator struct {
	stagingDir string
}

// NewOrchestrator creates an orchestrator staging into dir, which is created
// if missing.
func NewOrchestrator(dir string) (*Orchestrator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &Orchestrator{stagingDir: dir}, nil
}

// Run acquires bytes from src into a staging artifact, optionally applies
// transform, and delivers the result to dst. The staging artifact and any
// transform byproducts are removed on every exit path; only the destination's
// own copy of the deliverable survives. No automatic retry, no resume: a
// retried transfer starts from zero.
func (o *Orchestrator) Run(ctx context.Context, src Source, dst Destination, transform Transform, onProgress ProgressFunc) error {
	staged, err := o.acquire(ctx, src, onProgress)
	if staged != "" {
		defer removeQuiet(staged)
	}
	if err != nil {
		return err
	}

	deliverable := staged
	name := src.Name()
	if transform != nil {
		if err := ctx.Err(); err != nil {
			return ErrCancelled
		}
		out, err := transform.Apply(ctx, staged)
		if out != "" {
			defer removeQuiet(out)
		}
		if err != nil {
			return err
		}
		deliverable = out
		name = filepath.Base(out)
	}

	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}
	if err := o.deliver(ctx, dst, deliverable, name, onProgress); err != nil {
		return err
	}
	return nil
}

// acquire pulls the source stream into a fresh staging file, reporting
// progress on the downloading leg. On failure the partial file path is still
// returned so the caller's deferred cleanup removes it.
func (o *Orchestrator) acquire(ctx context.Context, src Source, onProgress ProgressFunc) (string, error) {
	rc, total, err := src.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceUnreachable, src.Name(), err)
	}
	defer rc.Close()

	path := o.stagingPath(src.Name())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create staging artifact: %w", err)
	}

	counted := &countingReader{
		r: rc,
		report: func(n int64) error {
			if err := ctx.Err(); err != nil {
				return ErrCancelled
			}
			if onProgress != nil {
				onProgress(LabelDownloading, n, total)
			}
			return nil
		},
	}

	written, err := io.Copy(f, counted)
	closeErr := f.Close()
	if err != nil {
		if ctx.Err() != nil {
			return path, ErrCancelled
		}
		return path, fmt.Errorf("%w: %s: %v", ErrSourceUnreachable, src.Name(), err)
	}
	if closeErr != nil {
		return path, fmt.Errorf("flush staging artifact: %w", closeErr)
	}

	if onProgress != nil && total > 0 {
		onProgress(LabelDownloading, written, total)
	}
	slog.Info("Acquisition complete", "source", src.Name(), "bytes", written, "path", path)
	return path, nil
}

// deliver pushes the artifact to the destination, reporting progress on the
// uploading leg via the size-aware wrapper destinations use.
func (o *Orchestrator) deliver(ctx context.Context, dst Destination, path, name string, onProgress ProgressFunc) error {
	if pd, ok := dst.(progressAware); ok && onProgress != nil {
		pd.setProgress(func(current, total int64) {
			onProgress(LabelUploading, current, total)
		})
	}
	if err := dst.Deliver(ctx, path, name); err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		return fmt.Errorf("%w: %s: %v", ErrDeliveryFailed, name, err)
	}
	slog.Info("Delivery complete", "name", name)
	return nil
}

// stagingPath builds a collision-resistant staging file name.
func (o *Orchestrator) stagingPath(name string) string {
	return filepath.Join(o.stagingDir, uuid.NewString()+"-"+filepath.Base(name))
}

// Stage acquires the source into a staging artifact and hands ownership of
// it to the caller, who must eventually RemoveArtifact it. Flows that pause
// between acquisition and delivery (e.g. waiting for a track choice) use
// this instead of Run.
func (o *Orchestrator) Stage(ctx context.Context, src Source, onProgress ProgressFunc) (string, error) {
	path, err := o.acquire(ctx, src, onProgress)
	if err != nil {
		if path != "" {
			removeQuiet(path)
		}
		return "", err
	}
	return path, nil
}

// DeliverArtifact pushes a caller-owned artifact to the destination with
// uploading-leg progress. The artifact is not removed; the caller keeps
// ownership.
func (o *Orchestrator) DeliverArtifact(ctx context.Context, dst Destination, path, name string, onProgress ProgressFunc) error {
	return o.deliver(ctx, dst, path, name, onProgress)
}

// RemoveArtifact deletes a staged artifact previously returned by Stage.
// Missing files are ignored.
func (o *Orchestrator) RemoveArtifact(path string) {
	if path != "" {
		removeQuiet(path)
	}
}

// StagingDir returns the staging directory path.
func (o *Orchestrator) StagingDir() string {
	return o.stagingDir
}

func removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove staging artifact", "path", path, "error", err)
	}
}

// progressAware lets the orchestrator hand destinations an upload-leg
// callback without widening the Destination interface.
type progressAware interface {
	setProgress(fn func(current, total int64))
}

// countingReader invokes report with the running byte count after every read
// chunk. A non-nil report error aborts the copy, which is how cooperative
// cancellation reaches io.Copy.
type countingReader struct {
	r      io.Reader
	n      int64
	report func(n int64) error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		if repErr := c.report(c.n); repErr != nil {
			return n, repErr
		}
	}
	return n, err
}
