package transfer

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// RunArchive packages the sources, in order, into one zip artifact and
// delivers it under archiveName. Member order inside the archive matches the
// order of sources (which is the order the user supplied them). The staging
// artifact is removed on every exit path.
func (o *Orchestrator) RunArchive(ctx context.Context, sources []Source, archiveName string, dst Destination, onProgress ProgressFunc) error {
	if len(sources) == 0 {
		return fmt.Errorf("%w: no inputs to archive", ErrSourceUnreachable)
	}

	staged := o.stagingPath(archiveName)
	defer removeQuiet(staged)

	if err := o.buildArchive(ctx, sources, staged, onProgress); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}
	return o.deliver(ctx, dst, staged, archiveName, onProgress)
}

// buildArchive streams every source into a zip writer on the staging file.
// Progress is reported against the summed declared sizes; sources with
// unknown size make the total indeterminate.
func (o *Orchestrator) buildArchive(ctx context.Context, sources []Source, staged string, onProgress ProgressFunc) error {
	f, err := os.Create(staged)
	if err != nil {
		return fmt.Errorf("create staging artifact: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	var done int64
	total := int64(-1) // resolved after the first pass over sizes
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return ErrCancelled
		}

		rc, _, err := src.Open(ctx)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSourceUnreachable, src.Name(), err)
		}
		if i == 0 {
			total = sumSizes(sources)
		}

		w, err := zw.Create(src.Name())
		if err != nil {
			rc.Close()
			return fmt.Errorf("add archive member %s: %w", src.Name(), err)
		}

		base := done
		counted := &countingReader{
			r: rc,
			report: func(n int64) error {
				if err := ctx.Err(); err != nil {
					return ErrCancelled
				}
				if onProgress != nil {
					onProgress(LabelDownloading, base+n, total)
				}
				return nil
			},
		}
		n, err := io.Copy(w, counted)
		rc.Close()
		if err != nil {
			if ctx.Err() != nil {
				return ErrCancelled
			}
			return fmt.Errorf("%w: %s: %v", ErrSourceUnreachable, src.Name(), err)
		}
		done += n
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}

	if onProgress != nil && total > 0 {
		onProgress(LabelDownloading, total, total)
	}
	slog.Info("Archive built", "members", len(sources), "bytes", done, "path", staged)
	return nil
}

// sumSizes adds up declared source sizes; any unknown size makes the archive
// total indeterminate.
func sumSizes(sources []Source) int64 {
	var total int64
	for _, src := range sources {
		sized, ok := src.(interface{ DeclaredSize() int64 })
		if !ok {
			return -1
		}
		n := sized.DeclaredSize()
		if n <= 0 {
			return -1
		}
		total += n
	}
	return total
}
