package bot

import (
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/ashmarin/filebutler/internal/domain"
)

func TestResolveAttachment(t *testing.T) {
	t.Parallel()

	doc := &tele.Document{FileName: "notes.pdf"}
	doc.FileID = "doc-1"
	doc.FileSize = 2048

	video := &tele.Video{FileName: "clip.mkv"}
	video.FileID = "vid-1"

	unnamed := &tele.Document{}
	unnamed.FileID = "doc-2"

	photo := &tele.Photo{}
	photo.FileID = "pic-1"

	tests := []struct {
		name     string
		msg      *tele.Message
		wantKind domain.AttachmentKind
		wantName string
		wantID   string
		wantOK   bool
	}{
		{"document", &tele.Message{Document: doc}, domain.AttachmentDocument, "notes.pdf", "doc-1", true},
		{"video", &tele.Message{Video: video}, domain.AttachmentVideo, "clip.mkv", "vid-1", true},
		{"unnamed document", &tele.Message{Document: unnamed}, domain.AttachmentDocument, "document", "doc-2", true},
		{"photo", &tele.Message{Photo: photo}, domain.AttachmentPhoto, "photo.jpg", "pic-1", true},
		{"plain text", &tele.Message{Text: "hi"}, domain.AttachmentNone, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			item, ok := ResolveAttachment(tt.msg)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if item.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", item.Kind, tt.wantKind)
			}
			if item.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", item.Name, tt.wantName)
			}
			if item.FileID != tt.wantID {
				t.Errorf("FileID = %q, want %q", item.FileID, tt.wantID)
			}
		})
	}
}

func TestResolveAttachment_SizeProjection(t *testing.T) {
	t.Parallel()

	doc := &tele.Document{FileName: "big.iso"}
	doc.FileID = "doc-3"
	doc.FileSize = 1 << 30

	item, ok := ResolveAttachment(&tele.Message{Document: doc})
	if !ok {
		t.Fatal("Expected attachment")
	}
	if item.Size != 1<<30 {
		t.Errorf("Size = %d, want %d", item.Size, int64(1<<30))
	}
}
