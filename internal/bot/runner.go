package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/ashmarin/filebutler/internal/chat"
	"github.com/ashmarin/filebutler/internal/domain"
	"github.com/ashmarin/filebutler/internal/progress"
	"github.com/ashmarin/filebutler/internal/session"
	"github.com/ashmarin/filebutler/internal/transfer"
)

// runArchive executes the confirmed archive flow: package the collected
// items into one zip and deliver it back into the chat.
func (b *Bot) runArchive(key session.Key, snapshot domain.Session) {
	name := snapshot.Option(OptArchiveName)
	if name == "" {
		name = "archive.zip"
	}

	sources := make([]transfer.Source, 0, len(snapshot.Items))
	for _, it := range snapshot.Items {
		if it.URL != "" {
			sources = append(sources, &transfer.URLSource{URL: it.URL})
			continue
		}
		sources = append(sources, &transfer.AttachmentSource{
			Streamer: b,
			FileID:   it.FileID,
			FileName: it.Name,
			Size:     it.Size,
		})
	}

	b.execute(key, "zip", name, func(ctx context.Context, onProgress transfer.ProgressFunc) error {
		dst := &transfer.ChatDestination{Sender: b, ChatID: key.ChatID}
		return b.orch.RunArchive(ctx, sources, name, dst, onProgress)
	})
}

// runGet executes the remote-download flow for a single URL.
func (b *Bot) runGet(key session.Key, url string) {
	src := &transfer.URLSource{URL: url}
	b.sessions.Start(key, "get", domain.StageExecuting, nil)

	b.execute(key, "get", src.Name(), func(ctx context.Context, onProgress transfer.ProgressFunc) error {
		dst := &transfer.ChatDestination{Sender: b, ChatID: key.ChatID}
		return b.orch.Run(ctx, src, dst, nil, onProgress)
	})
}

// runSubsProbe downloads the replied video, enumerates its subtitle tracks,
// and offers them as buttons. The staged file is kept in the session until a
// track is picked, cancelled, or the session is evicted.
func (b *Bot) runSubsProbe(key session.Key, item domain.Item) {
	sess := b.sessions.Start(key, "subs", domain.StageExecuting, nil)

	ctx, cancel := context.WithCancel(context.Background())
	b.sessions.Mutate(key, func(s *domain.Session) { s.Cancel = cancel })
	defer cancel()

	status := b.newStatus(key, "Fetching "+item.Name+"…")
	render, _ := b.progressFunc(key, &status)

	sampler := progress.NewSampler(0)
	go sampler.Drain(func(s progress.Sample) { render(s.Label, s.Current, s.Total) })

	src := &transfer.AttachmentSource{Streamer: b, FileID: item.FileID, FileName: item.Name, Size: item.Size}
	staged, err := b.orch.Stage(ctx, src, sampler.Publish)
	sampler.Close()
	if err != nil {
		b.finishWithError(key, "subs", item.Name, sess.CreatedAt, 0, err, status)
		return
	}

	streams, err := transfer.ProbeStreams(ctx, b.cfg.ProbeBin, staged)
	if err != nil {
		b.orch.RemoveArtifact(staged)
		b.finishWithError(key, "subs", item.Name, sess.CreatedAt, 0, err, status)
		return
	}

	subs := transfer.SubtitleStreams(streams)
	if len(subs) == 0 {
		b.orch.RemoveArtifact(staged)
		b.finishWithError(key, "subs", item.Name, sess.CreatedAt, 0,
			errors.New("no subtitle tracks found"), status)
		return
	}

	found := b.sessions.Mutate(key, func(s *domain.Session) {
		s.Stage = domain.StageAwaitingConfirmation
		s.Cancel = nil
		s.SetOption(OptStagedPath, staged)
		s.SetOption(OptSourceName, item.Name)
	})
	if !found {
		// Cancelled while probing.
		b.orch.RemoveArtifact(staged)
		return
	}

	markup := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, s := range subs {
		label := "Track " + strconv.Itoa(s.Index)
		if s.Tags.Language != "" {
			label += " (" + s.Tags.Language + ")"
		}
		rows = append(rows, markup.Row(markup.Data(label, uniqueTrack, strconv.Itoa(s.Index))))
	}
	rows = append(rows, markup.Row(markup.Data("Cancel", uniqueCancel)))
	markup.Inline(rows...)

	b.replaceStatus(key, &status, "Pick a subtitle track:", markup)
}

// runSubsExtract extracts the chosen track from the staged video and
// delivers it as an .srt document.
func (b *Bot) runSubsExtract(key session.Key, trackIndex int) {
	var staged, srcName string
	found := b.sessions.Mutate(key, func(s *domain.Session) {
		if s.Stage != domain.StageAwaitingConfirmation {
			return
		}
		staged = s.Option(OptStagedPath)
		srcName = s.Option(OptSourceName)
		s.Stage = domain.StageExecuting
	})
	if !found || staged == "" {
		b.notify(key, noticeRestart)
		return
	}

	outName := srcName + ".track" + strconv.Itoa(trackIndex) + ".srt"
	tf := &transfer.ExecTransform{
		Tool:  b.cfg.TransformBin,
		Label: "subtitle extraction",
		OutPath: func(in string) string {
			return in + ".track" + strconv.Itoa(trackIndex) + ".srt"
		},
		ArgsFor: func(in, out string) []string {
			return []string{"-y", "-i", in, "-map", "0:" + strconv.Itoa(trackIndex), out}
		},
	}

	b.execute(key, "subs", outName, func(ctx context.Context, onProgress transfer.ProgressFunc) error {
		defer b.orch.RemoveArtifact(staged)

		out, err := tf.Apply(ctx, staged)
		if out != "" {
			defer b.orch.RemoveArtifact(out)
		}
		if err != nil {
			return err
		}

		dst := &transfer.ChatDestination{Sender: b, ChatID: key.ChatID}
		return b.orch.DeliverArtifact(ctx, dst, out, outName, onProgress)
	})
}

// execute wraps one transfer attempt with the shared plumbing: cancellable
// context stored in the session, a status message with a cancel button,
// throttled progress edits, a single terminal user-visible outcome, an audit
// row, and session removal.
func (b *Bot) execute(key session.Key, flow, name string, run func(ctx context.Context, onProgress transfer.ProgressFunc) error) {
	startedAt := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	found := b.sessions.Mutate(key, func(s *domain.Session) {
		s.Stage = domain.StageExecuting
		s.Cancel = cancel
	})
	if !found {
		return
	}

	status := b.newStatus(key, "Starting "+name+"…")
	render, lastBytes := b.progressFunc(key, &status)

	// Samples flow through a drop-oldest pipe so slow display edits never
	// stall the transfer itself.
	sampler := progress.NewSampler(0)
	go sampler.Drain(func(s progress.Sample) { render(s.Label, s.Current, s.Total) })

	err := run(ctx, sampler.Publish)
	sampler.Close()
	b.finish(key, flow, name, startedAt, lastBytes.Load(), err, status)
}

// progressFunc builds the ProgressFunc for one transfer, binding the
// reporter to the status message and resetting throttle state when the leg
// label changes (each leg restarts its percentage from zero).
func (b *Bot) progressFunc(key session.Key, status **tele.Message) (transfer.ProgressFunc, *atomic.Int64) {
	var lastLabel string
	legStart := time.Now()
	bytes := &atomic.Int64{}

	fn := func(label string, current, total int64) {
		if *status == nil {
			return
		}
		if label != lastLabel {
			b.reporter.Forget(*status)
			lastLabel = label
			legStart = time.Now()
		}
		bytes.Store(current)
		*status = b.reporter.Report(current, total, label, *status, legStart)
	}
	return fn, bytes
}

// newStatus sends a fresh status message, deleting the previous one for this
// session so only a single live status exists per identity.
func (b *Bot) newStatus(key session.Key, text string) *tele.Message {
	var prev *domain.MessageRef
	b.sessions.Mutate(key, func(s *domain.Session) { prev = s.StatusMsg })
	b.editor.Delete(prev)

	msg := b.editor.Send(key.ChatID, text, b.cancelMarkup())
	b.sessions.Mutate(key, func(s *domain.Session) { s.StatusMsg = chat.Ref(msg) })
	return msg
}

// replaceStatus swaps the status message text and markup in place.
func (b *Bot) replaceStatus(key session.Key, status **tele.Message, text string, markup *tele.ReplyMarkup) {
	if *status == nil {
		*status = b.newStatus(key, text)
		return
	}
	updated, _ := b.editor.DisplayText(*status, text, markup)
	*status = updated
	b.sessions.Mutate(key, func(s *domain.Session) { s.StatusMsg = chat.Ref(updated) })
}

// finish emits the single terminal outcome message, records the audit row,
// and removes the session.
func (b *Bot) finish(key session.Key, flow, name string, startedAt time.Time, bytes int64, err error, status *tele.Message) {
	if err != nil {
		b.finishWithError(key, flow, name, startedAt, bytes, err, status)
		return
	}

	b.reporter.Forget(status)
	text := fmt.Sprintf("Done. Sent %s (%s).", name, progress.HumanBytes(float64(bytes)))
	if status != nil {
		b.editor.DisplayText(status, text)
	} else {
		b.notify(key, text)
	}

	b.record(key, flow, name, bytes, domain.TransferOK, "", startedAt)
	b.sessions.End(key)
}

func (b *Bot) finishWithError(key session.Key, flow, name string, startedAt time.Time, bytes int64, err error, status *tele.Message) {
	b.reporter.Forget(status)

	text := describeError(err, name)
	outcome := domain.TransferFailed
	if errors.Is(err, transfer.ErrCancelled) {
		outcome = domain.TransferCancelled
	}

	if status != nil {
		b.editor.DisplayText(status, text)
	} else {
		b.notify(key, text)
	}

	slog.Warn("Transfer failed",
		"chat_id", key.ChatID, "flow", flow, "name", name, "outcome", outcome, "error", err)

	b.record(key, flow, name, bytes, outcome, err.Error(), startedAt)
	b.sessions.End(key)
}

func (b *Bot) record(key session.Key, flow, name string, bytes int64, status domain.TransferStatus, errText string, startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &domain.TransferRecord{
		ChatID:     key.ChatID,
		Flow:       flow,
		Name:       name,
		Bytes:      bytes,
		Status:     status,
		Error:      errText,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	if err := b.repo.RecordTransfer(ctx, rec); err != nil {
		slog.Error("Failed to record transfer", "chat_id", key.ChatID, "error", err)
	}
}

func (b *Bot) notify(key session.Key, text string) {
	b.editor.Send(key.ChatID, text)
}

// describeError maps the transfer error taxonomy onto the single
// user-visible failure message.
func describeError(err error, name string) string {
	var tfErr *transfer.TransformError
	switch {
	case errors.Is(err, transfer.ErrCancelled):
		return "Cancelled. Nothing was sent."
	case errors.Is(err, transfer.ErrSourceUnreachable):
		return "Could not fetch " + name + ". The source is unreachable."
	case errors.Is(err, transfer.ErrDeliveryFailed):
		return "Could not deliver " + name + ". Please try again."
	case errors.As(err, &tfErr):
		return "Processing failed: " + tfErr.Diagnostic
	default:
		return "Transfer of " + name + " failed: " + err.Error()
	}
}
