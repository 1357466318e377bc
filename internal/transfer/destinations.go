package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// progressBase carries the upload-leg callback the orchestrator injects.
type progressBase struct {
	progress func(current, total int64)
}

func (p *progressBase) setProgress(fn func(current, total int64)) { p.progress = fn }

// openCounted opens path for reading wrapped in a counting reader that feeds
// the upload-leg progress callback.
func (p *progressBase) openCounted(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	total := info.Size()

	counted := &countingReader{
		r: f,
		report: func(n int64) error {
			if err := ctx.Err(); err != nil {
				return ErrCancelled
			}
			if p.progress != nil {
				p.progress(n, total)
			}
			return nil
		},
	}
	return &readCloser{Reader: counted, closer: f}, total, nil
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r *readCloser) Close() error { return r.closer.Close() }

// DocumentSender uploads a named stream as a chat document. The telegram bot
// adapter implements it; tests use a fake.
type DocumentSender interface {
	SendDocument(chatID int64, r io.Reader, name string, size int64) error
}

// ChatDestination delivers the artifact back into the chat as a document,
// streaming through a counting reader so the uploading leg gets progress.
type ChatDestination struct {
	progressBase
	Sender DocumentSender
	ChatID int64
}

// Deliver uploads the artifact to the chat.
func (d *ChatDestination) Deliver(ctx context.Context, path string, name string) error {
	rc, total, err := d.openCounted(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()
	return d.Sender.SendDocument(d.ChatID, rc, name, total)
}

// DirDestination moves the artifact into a local directory; same-filesystem
// renames consume the staging file in place.
type DirDestination struct {
	progressBase
	Dir string
}

// Deliver relocates (or copies, across filesystems) the artifact into Dir.
func (d *DirDestination) Deliver(ctx context.Context, path string, name string) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	target := filepath.Join(d.Dir, name)

	if err := os.Rename(path, target); err == nil {
		if d.progress != nil {
			if info, statErr := os.Stat(target); statErr == nil {
				d.progress(info.Size(), info.Size())
			}
		}
		return nil
	}

	rc, _, err := d.openCounted(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(target)
		return err
	}
	return out.Close()
}

// HTTPDestination uploads the artifact to a remote store with a single PUT,
// e.g. a WebDAV share or a pre-signed upload URL.
type HTTPDestination struct {
	progressBase
	BaseURL string
	Client  *http.Client
}

// Deliver PUTs the artifact to BaseURL/name.
func (d *HTTPDestination) Deliver(ctx context.Context, path string, name string) error {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	rc, total, err := d.openCounted(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()

	target, err := url.JoinPath(d.BaseURL, name)
	if err != nil {
		return fmt.Errorf("build upload url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, rc)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = total

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
