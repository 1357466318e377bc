package bot

import (
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"

	"github.com/ashmarin/filebutler/internal/chat"
	"github.com/ashmarin/filebutler/internal/config"
	"github.com/ashmarin/filebutler/internal/domain"
	"github.com/ashmarin/filebutler/internal/progress"
	"github.com/ashmarin/filebutler/internal/session"
	"github.com/ashmarin/filebutler/internal/store"
	"github.com/ashmarin/filebutler/internal/transfer"
)

// Callback button uniques.
const (
	uniqueConfirm = "zip_confirm"
	uniqueCancel  = "flow_cancel"
	uniqueTrack   = "subs_track"
)

const helpText = `Commands:
/zip — pack files you send into an archive
/get <url> — fetch a remote file into this chat
/subs — reply to a video to extract its subtitles
/status — show the current flow state
/cancel — abort the current flow`

// Bot wires the Telegram transport to the flows, the session store, and the
// transfer machinery.
type Bot struct {
	tb       *tele.Bot
	cfg      *config.Config
	flow     *Flow
	sessions *session.Store
	editor   *chat.Editor
	reporter *progress.Reporter
	orch     *transfer.Orchestrator
	repo     store.Repository
}

// New creates the bot, connects to Telegram, and registers all handlers.
func New(cfg *config.Config, sessions *session.Store, orch *transfer.Orchestrator, repo store.Repository) (*Bot, error) {
	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			// Handler errors are absorbed by the guard; anything arriving
			// here is a poller-level failure.
			slog.Error("Transport error", "error", err)
		},
	})
	if err != nil {
		return nil, err
	}

	editor := chat.NewEditor(tb)
	b := &Bot{
		tb:       tb,
		cfg:      cfg,
		flow:     &Flow{Sessions: sessions},
		sessions: sessions,
		editor:   editor,
		reporter: progress.NewReporter(editor, cfg.EditInterval),
		orch:     orch,
		repo:     repo,
	}

	tb.Use(middleware.Whitelist(cfg.AllowedUserID))

	tb.Handle("/start", b.guard(b.onHelp))
	tb.Handle("/help", b.guard(b.onHelp))
	tb.Handle("/zip", b.guard(b.onZip))
	tb.Handle("/get", b.guard(b.onGet))
	tb.Handle("/subs", b.guard(b.onSubs))
	tb.Handle("/status", b.guard(b.onStatus))
	tb.Handle("/cancel", b.guard(b.onCancel))

	tb.Handle(tele.OnText, b.guard(b.onText))
	tb.Handle(tele.OnDocument, b.guard(b.onAttachment))
	tb.Handle(tele.OnVideo, b.guard(b.onAttachment))
	tb.Handle(tele.OnAudio, b.guard(b.onAttachment))
	tb.Handle(tele.OnPhoto, b.guard(b.onAttachment))

	tb.Handle(&tele.Btn{Unique: uniqueConfirm}, b.guard(b.onConfirm))
	tb.Handle(&tele.Btn{Unique: uniqueCancel}, b.guard(b.onCancelButton))
	tb.Handle(&tele.Btn{Unique: uniqueTrack}, b.guard(b.onTrack))

	return b, nil
}

// Start begins long polling. Blocks until Stop is called.
func (b *Bot) Start() {
	slog.Info("Bot polling started", "allowed_user_id", b.cfg.AllowedUserID)
	b.tb.Start()
}

// Stop terminates long polling.
func (b *Bot) Stop() {
	b.tb.Stop()
}

// OnEvict deletes the stale status message and any staged artifact of a
// TTL-evicted session. Registered with the session sweeper.
func (b *Bot) OnEvict(_ session.Key, sess *domain.Session) {
	b.editor.Delete(sess.StatusMsg)
	if staged := sess.Option(OptStagedPath); staged != "" {
		b.orch.RemoveArtifact(staged)
	}
}

// guard keeps handler failures contained to one identity: returned errors
// are logged, and a panic (invariant violation) defensively discards the
// session so inconsistent state cannot propagate. No error ever reaches
// telebot's dispatch loop.
func (b *Bot) guard(fn tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if r := recover(); r != nil {
				key := keyOf(c)
				slog.Error("Handler panic, discarding session",
					"chat_id", key.ChatID, "panic", r)
				b.sessions.End(key)
				_ = c.Send("Something went wrong on my side. Please restart the flow.")
			}
		}()

		if err := fn(c); err != nil {
			slog.Error("Handler failed", "chat_id", c.Chat().ID, "error", err)
		}
		return nil
	}
}

func keyOf(c tele.Context) session.Key {
	return session.Key{ChatID: c.Chat().ID, UserID: c.Sender().ID}
}

func (b *Bot) onHelp(c tele.Context) error {
	return c.Send(helpText)
}

func (b *Bot) onZip(c tele.Context) error {
	return c.Send(b.flow.BeginArchive(keyOf(c)))
}

func (b *Bot) onGet(c tele.Context) error {
	url := strings.TrimSpace(c.Message().Payload)
	if url == "" {
		return c.Send("Usage: /get <url>")
	}
	go b.runGet(keyOf(c), url)
	return nil
}

func (b *Bot) onStatus(c tele.Context) error {
	sess, ok := b.sessions.Get(keyOf(c))
	if !ok {
		return c.Send("No active flow. Send /zip, /get or /subs to start one.")
	}

	var sb strings.Builder
	sb.WriteString("Flow: /" + sess.Flow + "\n")
	sb.WriteString("Stage: " + string(sess.Stage))
	if n := len(sess.Items); n > 0 {
		sb.WriteString("\nCollected: " + strconv.Itoa(n) + " item(s)")
	}
	if name := sess.Option(OptArchiveName); name != "" {
		sb.WriteString("\nArchive: " + name)
	}
	return c.Send(sb.String())
}

func (b *Bot) onCancel(c tele.Context) error {
	snap, ok := b.cancelFlow(keyOf(c))
	if !ok {
		return c.Send("Nothing to cancel.")
	}
	if snap.Stage == domain.StageExecuting {
		// The transfer goroutine observes the cancellation and edits the
		// status message itself; a second notice would be noise.
		return nil
	}
	return c.Send(noticeCancelled)
}

func (b *Bot) onCancelButton(c tele.Context) error {
	snap, ok := b.cancelFlow(keyOf(c))
	if !ok {
		_ = c.Respond(&tele.CallbackResponse{Text: noticeRestart})
		return nil
	}
	_ = c.Respond(&tele.CallbackResponse{Text: "Cancelled"})
	if snap.Stage == domain.StageExecuting {
		return nil
	}
	return c.Send(noticeCancelled)
}

// cancelFlow tears down the session and whatever it left behind: a staged
// artifact waiting on a track choice, and (for flows not currently
// executing) the stale status message.
func (b *Bot) cancelFlow(key session.Key) (domain.Session, bool) {
	snap, ok := b.flow.CancelFlow(key)
	if !ok {
		return snap, false
	}
	if staged := snap.Option(OptStagedPath); staged != "" {
		b.orch.RemoveArtifact(staged)
	}
	if snap.Stage != domain.StageExecuting {
		b.editor.Delete(snap.StatusMsg)
	}
	return snap, true
}

func (b *Bot) onText(c tele.Context) error {
	key := keyOf(c)
	text := c.Text()

	if reply, consumed := b.flow.SubmitName(key, text); consumed {
		return c.Send(reply, b.confirmMarkup())
	}

	// A bare URL during collection joins the archive as a remote member.
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		src := &transfer.URLSource{URL: text}
		item := domain.Item{Kind: domain.AttachmentURL, Name: src.Name(), URL: text}
		return c.Send(b.addToArchive(key, item))
	}
	return nil
}

// addToArchive records one collected input and returns the user-visible
// reply; a stale or absent session gets the same notice regardless of
// whether the input was an attachment or a URL.
func (b *Bot) addToArchive(key session.Key, item domain.Item) string {
	reply, ok := b.flow.AddItem(key, item)
	if !ok {
		return noticeNotCollecting
	}
	return reply
}

func (b *Bot) onAttachment(c tele.Context) error {
	item, ok := ResolveAttachment(c.Message())
	if !ok {
		return nil
	}

	return c.Send(b.addToArchive(keyOf(c), item))
}

func (b *Bot) onConfirm(c tele.Context) error {
	key := keyOf(c)
	snapshot, ok := b.flow.Confirm(key)
	if !ok {
		_ = c.Respond(&tele.CallbackResponse{Text: noticeRestart})
		return nil
	}
	_ = c.Respond(&tele.CallbackResponse{Text: "Packing…"})

	go b.runArchive(key, snapshot)
	return nil
}

func (b *Bot) onSubs(c tele.Context) error {
	replied := c.Message().ReplyTo
	if replied == nil {
		return c.Send("Reply to a video with /subs to extract its subtitles.")
	}
	item, ok := ResolveAttachment(replied)
	if !ok || (item.Kind != domain.AttachmentVideo && item.Kind != domain.AttachmentDocument) {
		return c.Send("That message has no video I can probe.")
	}

	go b.runSubsProbe(keyOf(c), item)
	return nil
}

func (b *Bot) onTrack(c tele.Context) error {
	key := keyOf(c)
	idx, err := strconv.Atoi(strings.TrimSpace(c.Data()))
	if err != nil {
		_ = c.Respond(&tele.CallbackResponse{Text: noticeRestart})
		return nil
	}
	_ = c.Respond(&tele.CallbackResponse{Text: "Extracting…"})

	go b.runSubsExtract(key, idx)
	return nil
}

func (b *Bot) confirmMarkup() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("Create archive", uniqueConfirm),
		markup.Data("Cancel", uniqueCancel),
	))
	return markup
}

func (b *Bot) cancelMarkup() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(markup.Data("Cancel", uniqueCancel)))
	return markup
}

// StreamFile implements transfer.FileStreamer over the Telegram file API.
func (b *Bot) StreamFile(fileID string) (io.ReadCloser, error) {
	return b.tb.File(&tele.File{FileID: fileID})
}

// SendDocument implements transfer.DocumentSender: the artifact is streamed
// into the chat as a document through the counting reader the destination
// provides.
func (b *Bot) SendDocument(chatID int64, r io.Reader, name string, _ int64) error {
	doc := &tele.Document{
		File:     tele.FromReader(r),
		FileName: name,
	}
	_, err := b.tb.Send(tele.ChatID(chatID), doc)
	return err
}
