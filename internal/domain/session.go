package domain

import (
	"context"
	"time"
)

// Stage identifies the current step of an interactive flow.
type Stage string

const (
	// StageAwaitingName means the bot asked for a name and is waiting for a
	// text reply.
	StageAwaitingName Stage = "awaiting_name"
	// StageAwaitingConfirmation means inputs are being collected and the bot
	// is waiting for the user to press Confirm.
	StageAwaitingConfirmation Stage = "awaiting_confirmation"
	// StageExecuting means a transfer is in flight for this session.
	StageExecuting Stage = "executing"
	// StageDone is terminal; the session is removed right after.
	StageDone Stage = "done"
	// StageCancelled is terminal; set by an explicit user cancel.
	StageCancelled Stage = "cancelled"
)

// Terminal reports whether the stage ends the flow.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageCancelled
}

// AttachmentKind tags the media type of an inbound attachment, resolved once
// at ingestion so downstream code never probes optional fields.
type AttachmentKind int

const (
	AttachmentNone AttachmentKind = iota
	AttachmentDocument
	AttachmentVideo
	AttachmentAudio
	AttachmentPhoto
	AttachmentURL
)

// String returns the lowercase kind name.
func (k AttachmentKind) String() string {
	switch k {
	case AttachmentDocument:
		return "document"
	case AttachmentVideo:
		return "video"
	case AttachmentAudio:
		return "audio"
	case AttachmentPhoto:
		return "photo"
	case AttachmentURL:
		return "url"
	default:
		return "none"
	}
}

// Item is one collected input of a flow: a chat attachment or a URL.
// Insertion order is meaningful and preserved by Session.Items.
type Item struct {
	Kind   AttachmentKind
	Name   string
	Size   int64
	FileID string // chat-transport file handle, empty for URLs
	URL    string // remote source, empty for attachments
}

// MessageRef is a weak reference to a chat message: enough identity to edit
// or delete it later without holding the transport's message object.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Session holds the state of one in-progress multi-step interaction for one
// chat/user identity. All Session objects are owned by the session store;
// handlers must not retain them past a single invocation.
type Session struct {
	ChatID int64
	UserID int64

	Stage   Stage
	Flow    string // entry command that started the flow, e.g. "zip"
	Items   []Item
	Options map[string]string

	// StatusMsg points at the most recent status message so a replacement
	// can delete it.
	StatusMsg *MessageRef

	// Cancel interrupts an in-flight transfer for this session; nil unless
	// Stage is StageExecuting.
	Cancel context.CancelFunc

	CreatedAt    time.Time
	LastActivity time.Time
}

// AddItem appends an input, preserving arrival order.
func (s *Session) AddItem(it Item) {
	s.Items = append(s.Items, it)
}

// Option returns the named flow option, or "" when unset.
func (s *Session) Option(key string) string {
	if s.Options == nil {
		return ""
	}
	return s.Options[key]
}

// SetOption stores a flow option selected via a button or text reply.
func (s *Session) SetOption(key, value string) {
	if s.Options == nil {
		s.Options = make(map[string]string)
	}
	s.Options[key] = value
}
