// Package chat wraps the Telegram transport's message operations with the
// idempotence and failure-absorption semantics the rest of the bot relies on.
package chat

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/ashmarin/filebutler/internal/domain"
)

// Transport is the subset of the telebot API the editor needs. *tele.Bot
// satisfies it; tests substitute a fake.
type Transport interface {
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// invisibleMarker is appended to force an edit through when Telegram insists
// the content is identical (formatting-only differences the caller cannot
// see). Zero-width space renders as nothing.
const invisibleMarker = "​"

// Editor provides an idempotent "set the visible text of message M to T"
// operation. It never returns an error: transport failures degrade to a
// no-op and the previous message handle is returned unchanged.
type Editor struct {
	bot Transport
}

// NewEditor creates an editor over the given transport.
func NewEditor(bot Transport) *Editor {
	return &Editor{bot: bot}
}

// DisplayText sets the visible text (or caption, for media messages) of msg
// to text. A nil msg is a no-op. The returned duration is non-zero only when
// the transport reported a flood limit, and carries its retry-after hint so
// the caller can widen its own throttle; the editor itself never sleeps.
func (e *Editor) DisplayText(msg *tele.Message, text string, opts ...interface{}) (*tele.Message, time.Duration) {
	if msg == nil {
		return nil, 0
	}

	current := msg.Text
	if msg.Caption != "" {
		current = msg.Caption
	}
	if strings.TrimSpace(current) == strings.TrimSpace(text) {
		// Telegram rejects no-op edits; skip the round trip entirely.
		return msg, 0
	}

	updated, err := e.bot.Edit(msg, text, opts...)
	if err == nil {
		return updated, 0
	}

	if isUnmodified(err) {
		// The caller-visible text differs but Telegram considers the
		// rendered content identical. Force distinctness once.
		updated, err = e.bot.Edit(msg, text+invisibleMarker, opts...)
		if err == nil {
			return updated, 0
		}
	}

	if retryAfter, ok := floodDelay(err); ok {
		slog.Warn("Edit rate-limited", "chat_id", msg.Chat.ID, "message_id", msg.ID, "retry_after", retryAfter)
		return msg, retryAfter
	}

	slog.Warn("Edit failed", "chat_id", msg.Chat.ID, "message_id", msg.ID, "error", err)
	return msg, 0
}

// Send posts a new message and returns its handle, or nil when the transport
// rejects it. Failures are logged, never raised.
func (e *Editor) Send(chatID int64, what interface{}, opts ...interface{}) *tele.Message {
	msg, err := e.bot.Send(tele.ChatID(chatID), what, opts...)
	if err != nil {
		slog.Warn("Send failed", "chat_id", chatID, "error", err)
		return nil
	}
	return msg
}

// Delete removes a previously sent message by reference. Failures (already
// deleted, too old) are silently ignorable and only logged at debug level.
func (e *Editor) Delete(ref *domain.MessageRef) {
	if ref == nil {
		return
	}
	stored := tele.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	}
	if err := e.bot.Delete(stored); err != nil {
		slog.Debug("Delete failed", "chat_id", ref.ChatID, "message_id", ref.MessageID, "error", err)
	}
}

// Ref converts a transport message into a weak domain reference.
func Ref(msg *tele.Message) *domain.MessageRef {
	if msg == nil {
		return nil
	}
	return &domain.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}
}

func isUnmodified(err error) bool {
	if errors.Is(err, tele.ErrSameMessageContent) {
		return true
	}
	return strings.Contains(err.Error(), "message is not modified")
}

func floodDelay(err error) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	if strings.Contains(strings.ToLower(err.Error()), "too many requests") {
		return 3 * time.Second, true
	}
	return 0, false
}
