package chat

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/ashmarin/filebutler/internal/domain"
)

// fakeTransport scripts Edit results and records every call.
type fakeTransport struct {
	edits   []string
	editErr []error // consumed per call; nil once exhausted
	deletes int
	sends   int
}

func (f *fakeTransport) Edit(msg tele.Editable, what interface{}, _ ...interface{}) (*tele.Message, error) {
	text, _ := what.(string)
	f.edits = append(f.edits, text)

	var err error
	if len(f.editErr) > 0 {
		err = f.editErr[0]
		f.editErr = f.editErr[1:]
	}
	if err != nil {
		return nil, err
	}

	m := msg.(*tele.Message)
	updated := *m
	updated.Text = text
	return &updated, nil
}

func (f *fakeTransport) Send(_ tele.Recipient, _ interface{}, _ ...interface{}) (*tele.Message, error) {
	f.sends++
	return &tele.Message{ID: f.sends, Chat: &tele.Chat{ID: 42}}, nil
}

func (f *fakeTransport) Delete(_ tele.Editable) error {
	f.deletes++
	return nil
}

func message(text string) *tele.Message {
	return &tele.Message{ID: 7, Chat: &tele.Chat{ID: 42}, Text: text}
}

func TestDisplayText_NilMessageIsNoop(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	e := NewEditor(transport)

	msg, retryAfter := e.DisplayText(nil, "anything")
	if msg != nil || retryAfter != 0 {
		t.Errorf("Expected nil no-op, got %v, %v", msg, retryAfter)
	}
	if len(transport.edits) != 0 {
		t.Errorf("Expected no transport calls, got %d", len(transport.edits))
	}
}

func TestDisplayText_SkipsIdenticalText(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	e := NewEditor(transport)

	msg, _ := e.DisplayText(message("old"), "new")
	if msg.Text != "new" {
		t.Fatalf("Expected updated message text, got %q", msg.Text)
	}

	again, _ := e.DisplayText(msg, "new")
	if again != msg {
		t.Error("Expected the same message handle back on a no-op")
	}
	if len(transport.edits) != 1 {
		t.Errorf("Expected exactly 1 transport edit for two identical calls, got %d", len(transport.edits))
	}
}

func TestDisplayText_ComparesTrimmed(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	e := NewEditor(transport)

	e.DisplayText(message("same"), "  same\n")
	if len(transport.edits) != 0 {
		t.Errorf("Expected whitespace-only difference to skip the edit, got %d calls", len(transport.edits))
	}
}

func TestDisplayText_RetriesUnmodifiedWithMarker(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		editErr: []error{errors.New("telegram: Bad Request: message is not modified (400)")},
	}
	e := NewEditor(transport)

	msg, retryAfter := e.DisplayText(message("*old*"), "old")
	if retryAfter != 0 {
		t.Errorf("Expected no retry-after, got %v", retryAfter)
	}
	if len(transport.edits) != 2 {
		t.Fatalf("Expected original attempt plus one forced retry, got %d", len(transport.edits))
	}
	if !strings.HasSuffix(transport.edits[1], invisibleMarker) {
		t.Errorf("Expected forced retry to append the invisible marker, got %q", transport.edits[1])
	}
	if msg == nil {
		t.Error("Expected a message handle back")
	}
}

func TestDisplayText_FloodReturnsRetryHint(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		editErr: []error{errors.New("telegram: Too Many Requests: retry after 5 (429)")},
	}
	e := NewEditor(transport)

	original := message("old")
	msg, retryAfter := e.DisplayText(original, "new")

	if msg != original {
		t.Error("Expected the original handle back on flood")
	}
	if retryAfter <= 0 {
		t.Errorf("Expected a positive retry-after hint, got %v", retryAfter)
	}
	if len(transport.edits) != 1 {
		t.Errorf("Expected no retry on flood, got %d edits", len(transport.edits))
	}
}

func TestDisplayText_OtherErrorsDegradeToNoop(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{
		editErr: []error{errors.New("telegram: Bad Request: message to edit not found (400)")},
	}
	e := NewEditor(transport)

	original := message("old")
	msg, retryAfter := e.DisplayText(original, "new")

	if msg != original || retryAfter != 0 {
		t.Errorf("Expected silent degradation to no-op, got %v, %v", msg, retryAfter)
	}
}

func TestDelete_UsesStoredReference(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	e := NewEditor(transport)

	e.Delete(nil)
	e.Delete(&domain.MessageRef{ChatID: 42, MessageID: 7})

	if transport.deletes != 1 {
		t.Errorf("Expected 1 delete call, got %d", transport.deletes)
	}
}

func TestRef(t *testing.T) {
	t.Parallel()

	if Ref(nil) != nil {
		t.Error("Expected nil ref for nil message")
	}
	ref := Ref(message("x"))
	if ref.ChatID != 42 || ref.MessageID != 7 {
		t.Errorf("Unexpected ref %+v", ref)
	}
}
