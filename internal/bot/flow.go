// Package bot implements the interactive flows and their Telegram adapters.
package bot

import (
	"strconv"
	"strings"

	"github.com/ashmarin/filebutler/internal/domain"
	"github.com/ashmarin/filebutler/internal/session"
)

// Flow option keys.
const (
	// OptArchiveName is the zip file name chosen in the archive flow.
	OptArchiveName = "zip_name"
	// OptStagedPath points at an artifact staged between flow steps (subs
	// flow keeps the downloaded video here while the user picks a track).
	OptStagedPath = "staged_path"
	// OptSourceName is the original attachment name behind OptStagedPath.
	OptSourceName = "source_name"
)

// User-facing notices shared by flows.
const (
	noticeAskName       = "What should the archive be called?"
	noticeRestart       = "That flow is no longer active. Send the command again to restart."
	noticeCancelled     = "Cancelled. Nothing was sent."
	noticeNotCollecting = "Send /zip first to start an archive."
)

// Flow drives the multi-step interactions over the session store. Its
// methods are the programmatic entry points the Telegram handlers adapt to;
// automated callers invoke them directly instead of forging fake events.
type Flow struct {
	Sessions *session.Store
}

// BeginArchive starts (or restarts, discarding any prior state) the archive
// flow and returns the prompt to show the user.
func (f *Flow) BeginArchive(key session.Key) string {
	f.Sessions.Start(key, "zip", domain.StageAwaitingName, nil)
	return noticeAskName
}

// SubmitName consumes a text reply while the archive flow awaits its name.
// It returns the reply to show and whether the text was consumed by a flow;
// unconsumed text should be ignored by the caller.
func (f *Flow) SubmitName(key session.Key, text string) (string, bool) {
	name := sanitizeName(text)
	if name == "" {
		name = "archive"
	}

	var reply string
	consumed := false
	found := f.Sessions.Mutate(key, func(s *domain.Session) {
		if s.Stage != domain.StageAwaitingName {
			return
		}
		s.SetOption(OptArchiveName, name+".zip")
		s.Stage = domain.StageAwaitingConfirmation
		reply = "Creating " + name + ".zip. Send the files to include, then press Create."
		consumed = true
	})
	if !found {
		return "", false
	}
	return reply, consumed
}

// AddItem records an attachment or URL into the active session, preserving
// arrival order. The second return is false when no session accepts items
// for this identity; stale input gets the restart notice.
func (f *Flow) AddItem(key session.Key, item domain.Item) (string, bool) {
	var reply string
	accepted := false
	found := f.Sessions.Mutate(key, func(s *domain.Session) {
		if s.Stage != domain.StageAwaitingConfirmation {
			return
		}
		s.AddItem(item)
		reply = "Added " + item.Name + " (" + item.Kind.String() + "). Total: " + strconv.Itoa(len(s.Items)) + "."
		accepted = true
	})
	if !found || !accepted {
		return noticeRestart, false
	}
	return reply, true
}

// Confirm moves the session into the executing stage and returns a snapshot
// of its collected items. It returns ok=false when there is nothing to
// confirm (stale button).
func (f *Flow) Confirm(key session.Key) (snapshot domain.Session, ok bool) {
	found := f.Sessions.Mutate(key, func(s *domain.Session) {
		if s.Stage != domain.StageAwaitingConfirmation || len(s.Items) == 0 {
			return
		}
		s.Stage = domain.StageExecuting
		snapshot = *s
		snapshot.Items = append([]domain.Item(nil), s.Items...)
		ok = true
	})
	if !found {
		return domain.Session{}, false
	}
	return snapshot, ok
}

// CancelFlow cancels any in-flight transfer for key and removes the session.
// The returned snapshot carries the pre-cancel state (stage, staged paths,
// status message) so the caller can clean up; ok is false when there was no
// active session.
func (f *Flow) CancelFlow(key session.Key) (snapshot domain.Session, ok bool) {
	found := f.Sessions.Mutate(key, func(s *domain.Session) {
		snapshot = *s
		if s.Cancel != nil {
			s.Cancel()
		}
		s.Stage = domain.StageCancelled
	})
	if !found {
		return domain.Session{}, false
	}
	f.Sessions.End(key)
	return snapshot, true
}

func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".zip")
	// Strip path separators so a name can never escape the staging area.
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return -1
		default:
			return r
		}
	}, s)
	return s
}
