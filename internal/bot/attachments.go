package bot

import (
	tele "gopkg.in/telebot.v4"

	"github.com/ashmarin/filebutler/internal/domain"
)

// ResolveAttachment projects whichever media an inbound message carries into
// a tagged Item exactly once, so no downstream code probes optional fields.
// Returns ok=false when the message carries no usable attachment.
func ResolveAttachment(m *tele.Message) (domain.Item, bool) {
	switch {
	case m.Document != nil:
		name := m.Document.FileName
		if name == "" {
			name = "document"
		}
		return domain.Item{
			Kind:   domain.AttachmentDocument,
			Name:   name,
			Size:   int64(m.Document.FileSize),
			FileID: m.Document.FileID,
		}, true

	case m.Video != nil:
		name := m.Video.FileName
		if name == "" {
			name = "video.mp4"
		}
		return domain.Item{
			Kind:   domain.AttachmentVideo,
			Name:   name,
			Size:   int64(m.Video.FileSize),
			FileID: m.Video.FileID,
		}, true

	case m.Audio != nil:
		name := m.Audio.FileName
		if name == "" {
			name = "audio.mp3"
		}
		return domain.Item{
			Kind:   domain.AttachmentAudio,
			Name:   name,
			Size:   int64(m.Audio.FileSize),
			FileID: m.Audio.FileID,
		}, true

	case m.Photo != nil:
		return domain.Item{
			Kind:   domain.AttachmentPhoto,
			Name:   "photo.jpg",
			Size:   int64(m.Photo.FileSize),
			FileID: m.Photo.FileID,
		}, true

	default:
		return domain.Item{}, false
	}
}
