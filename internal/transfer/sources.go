package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
)

// URLSource fetches bytes from a remote URL over HTTP. Total length is the
// response Content-Length, or -1 when the server does not declare one.
type URLSource struct {
	URL    string
	Client *http.Client
}

// Name derives a file name from the URL path, falling back to "download".
func (s *URLSource) Name() string {
	u, err := url.Parse(s.URL)
	if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return "download"
	}
	return path.Base(u.Path)
}

// Open issues the GET request. Any non-2xx status is an acquisition failure.
func (s *URLSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 0} // transfers are bounded by ctx, not a flat timeout
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	total := resp.ContentLength // -1 when unknown
	return resp.Body, total, nil
}

// FileSource reads a local file; used when a flow re-delivers an artifact it
// already staged (and by tests).
type FileSource struct {
	Path     string
	FileName string
}

// Name returns the explicit FileName, or the base of Path.
func (s *FileSource) Name() string {
	if s.FileName != "" {
		return s.FileName
	}
	return path.Base(s.Path)
}

// DeclaredSize stats the file; 0 when unreadable, which downgrades archive
// totals to indeterminate.
func (s *FileSource) DeclaredSize() int64 {
	info, err := os.Stat(s.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Open opens the local file and stats it for the total size.
func (s *FileSource) Open(_ context.Context) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// FileStreamer opens a download stream for a chat-transport file handle.
// The telegram bot adapter implements it; tests use an in-memory fake.
type FileStreamer interface {
	StreamFile(fileID string) (io.ReadCloser, error)
}

// AttachmentSource acquires a file the user sent to the chat.
type AttachmentSource struct {
	Streamer FileStreamer
	FileID   string
	FileName string
	Size     int64
}

// Name returns the attachment's file name.
func (s *AttachmentSource) Name() string { return s.FileName }

// DeclaredSize returns the size the transport reported for the attachment;
// archive packaging uses it to compute an aggregate total.
func (s *AttachmentSource) DeclaredSize() int64 { return s.Size }

// Open starts the transport download stream. The declared attachment size is
// used as the total; Telegram reports it reliably for bot-downloadable files.
func (s *AttachmentSource) Open(_ context.Context) (io.ReadCloser, int64, error) {
	rc, err := s.Streamer.StreamFile(s.FileID)
	if err != nil {
		return nil, 0, err
	}
	total := s.Size
	if total == 0 {
		total = -1
	}
	return rc, total, nil
}
