package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ExecTransform runs an external tool over the staged artifact. The tool is
// a black box: only its exit status and stderr are interpreted.
type ExecTransform struct {
	// Tool is the binary to invoke, e.g. "ffmpeg".
	Tool string
	// ArgsFor builds the full argument list for converting in into out.
	ArgsFor func(in, out string) []string
	// OutPath derives the output artifact path from the input path.
	OutPath func(in string) string
	// Label names the transform in progress text and errors.
	Label string
}

// Name returns the transform's display label.
func (t *ExecTransform) Name() string { return t.Label }

// Apply runs the tool. A non-zero exit yields a TransformError carrying the
// truncated stderr; the (possibly partial) output path is still returned so
// the orchestrator can clean it up.
func (t *ExecTransform) Apply(ctx context.Context, inPath string) (string, error) {
	outPath := t.OutPath(inPath)

	cmd := exec.CommandContext(ctx, t.Tool, t.ArgsFor(inPath, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Info("Transform started", "tool", t.Tool, "label", t.Label, "in", inPath, "out", outPath)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return outPath, ErrCancelled
		}
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return outPath, newTransformError(t.Tool, diag)
	}
	return outPath, nil
}

// StreamInfo describes one stream of a media container, as reported by the
// probe tool.
type StreamInfo struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Tags      struct {
		Language string `json:"language"`
		Title    string `json:"title"`
	} `json:"tags"`
}

// ProbeStreams enumerates the streams of a media file via ffprobe-compatible
// JSON output. Flows use it to offer subtitle tracks as buttons.
func ProbeStreams(ctx context.Context, probeBin, path string) ([]StreamInfo, error) {
	cmd := exec.CommandContext(ctx, probeBin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return nil, newTransformError(probeBin, diag)
	}

	var out struct {
		Streams []StreamInfo `json:"streams"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("parse probe output: %w", err)
	}
	return out.Streams, nil
}

// SubtitleStreams filters probe output down to subtitle tracks.
func SubtitleStreams(streams []StreamInfo) []StreamInfo {
	var subs []StreamInfo
	for _, s := range streams {
		if s.CodecType == "subtitle" {
			subs = append(subs, s)
		}
	}
	return subs
}
