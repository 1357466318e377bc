// Package progress renders throttled, human-readable transfer progress into
// chat status messages.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TextDisplayer is the editor contract the reporter drives. *chat.Editor
// satisfies it.
type TextDisplayer interface {
	DisplayText(msg *tele.Message, text string, opts ...interface{}) (*tele.Message, time.Duration)
}

// DefaultInterval is the minimum wall-clock spacing between successive edits
// of one status message.
const DefaultInterval = time.Second

const barWidth = 20

// minElapsed floors the elapsed time used for speed computation so a burst
// of callbacks right after start cannot divide by zero.
const minElapsed = 100 * time.Millisecond

type messageState struct {
	lastEdit    time.Time
	penalty     time.Duration
	lastCurrent int64
}

// Reporter converts high-frequency (current, total) samples into at most one
// message edit per interval. State is keyed by (chat id, message id) so
// concurrent transfers throttle independently.
type Reporter struct {
	editor   TextDisplayer
	interval time.Duration

	mu    sync.Mutex
	state map[string]*messageState

	now func() time.Time // overridable in tests
}

// NewReporter creates a reporter with the given edit interval; interval <= 0
// falls back to DefaultInterval.
func NewReporter(editor TextDisplayer, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		editor:   editor,
		interval: interval,
		state:    make(map[string]*messageState),
		now:      time.Now,
	}
}

func messageKey(msg *tele.Message) string {
	return fmt.Sprintf("%d:%d", msg.Chat.ID, msg.ID)
}

// Report renders one progress sample into the status message, subject to the
// per-message throttle. Samples arriving before the interval elapses are
// dropped silently, except completion (current == total) which always
// flushes. Out-of-order samples are clamped so the displayed value never
// moves backward. Returns the possibly-updated message handle; callers
// should carry it into the next call.
func (r *Reporter) Report(current, total int64, label string, msg *tele.Message, started time.Time) *tele.Message {
	if msg == nil {
		return nil
	}

	key := messageKey(msg)
	now := r.now()
	done := total > 0 && current >= total

	r.mu.Lock()
	st, ok := r.state[key]
	if !ok {
		st = &messageState{}
		r.state[key] = st
	}
	if current < st.lastCurrent {
		current = st.lastCurrent
	}
	if !done && !st.lastEdit.IsZero() && now.Sub(st.lastEdit) < r.interval+st.penalty {
		r.mu.Unlock()
		return msg
	}
	st.lastEdit = now
	st.lastCurrent = current
	r.mu.Unlock()

	text := render(current, total, label, now.Sub(started))
	updated, retryAfter := r.editor.DisplayText(msg, text)

	if retryAfter > 0 {
		// The transport pushed back; widen this message's window so the
		// next bursts self-quiet instead of hammering it.
		r.mu.Lock()
		st.penalty = retryAfter
		r.mu.Unlock()
	} else if done {
		r.Forget(msg)
	}

	return updated
}

// Forget drops throttle state for a status message that will not be edited
// again (transfer finished or abandoned).
func (r *Reporter) Forget(msg *tele.Message) {
	if msg == nil {
		return
	}
	r.mu.Lock()
	delete(r.state, messageKey(msg))
	r.mu.Unlock()
}

// render builds the full status text for one sample.
func render(current, total int64, label string, elapsed time.Duration) string {
	if elapsed < minElapsed {
		elapsed = minElapsed
	}

	var percent float64
	if total > 0 {
		percent = float64(current) * 100 / float64(total)
		if percent > 100 {
			percent = 100
		}
	}

	speed := float64(current) / elapsed.Seconds()

	eta := "unknown"
	if total > 0 && speed > 0 {
		remaining := time.Duration(float64(total-current) / speed * float64(time.Second))
		eta = FormatETA(remaining)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", label)
	if total > 0 {
		fmt.Fprintf(&b, "[%s] %.2f%%\n", renderBar(percent), percent)
		fmt.Fprintf(&b, "%s of %s @ %s/s\n", HumanBytes(float64(current)), HumanBytes(float64(total)), HumanBytes(speed))
		fmt.Fprintf(&b, "ETA: %s", eta)
	} else {
		// Unknown total: no percentage or ETA, just raw counters.
		fmt.Fprintf(&b, "%s @ %s/s", HumanBytes(float64(current)), HumanBytes(speed))
	}
	return b.String()
}

func renderBar(percent float64) string {
	filled := int(percent / 100 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}
