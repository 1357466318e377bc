package session

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ashmarin/filebutler/internal/domain"
)

func testKey() Key {
	return Key{ChatID: 100, UserID: 200}
}

func TestStore_StartReplacesExisting(t *testing.T) {
	t.Parallel()

	s := New(time.Minute)
	key := testKey()

	s.Start(key, "zip", domain.StageAwaitingConfirmation, nil)
	s.Mutate(key, func(sess *domain.Session) {
		sess.AddItem(domain.Item{Name: "old.txt"})
		sess.AddItem(domain.Item{Name: "older.txt"})
	})

	sess := s.Start(key, "zip", domain.StageAwaitingName, nil)

	if len(sess.Items) != 0 {
		t.Errorf("Expected new session with no items, got %d", len(sess.Items))
	}
	if sess.Stage != domain.StageAwaitingName {
		t.Errorf("Expected stage %q, got %q", domain.StageAwaitingName, sess.Stage)
	}
	if s.Len() != 1 {
		t.Errorf("Expected exactly one session, got %d", s.Len())
	}
}

func TestStore_StartCancelsReplacedTransfer(t *testing.T) {
	t.Parallel()

	s := New(time.Minute)
	key := testKey()

	cancelled := false
	s.Start(key, "get", domain.StageExecuting, nil)
	s.Mutate(key, func(sess *domain.Session) {
		sess.Cancel = func() { cancelled = true }
	})

	s.Start(key, "zip", domain.StageAwaitingName, nil)

	if !cancelled {
		t.Error("Expected replaced session's transfer to be cancelled")
	}
}

func TestStore_GetAbsent(t *testing.T) {
	t.Parallel()

	s := New(time.Minute)
	if _, ok := s.Get(testKey()); ok {
		t.Error("Expected no session for unknown key")
	}
}

func TestStore_MutateAbsentIsNoop(t *testing.T) {
	t.Parallel()

	s := New(time.Minute)
	called := false
	found := s.Mutate(testKey(), func(*domain.Session) { called = true })

	if found {
		t.Error("Expected Mutate to report absence")
	}
	if called {
		t.Error("Expected fn not to be called for absent session")
	}
}

func TestStore_End(t *testing.T) {
	t.Parallel()

	s := New(time.Minute)
	key := testKey()
	s.Start(key, "zip", domain.StageAwaitingName, nil)
	s.End(key)
	s.End(key) // idempotent

	if s.Len() != 0 {
		t.Errorf("Expected 0 sessions after End, got %d", s.Len())
	}
}

// TestStore_ConcurrentMutateSameKey verifies that concurrent item additions
// for one identity are serialized by the per-key lock: no add may be lost.
//
// Run with: go test -race ./internal/session/...
func TestStore_ConcurrentMutateSameKey(t *testing.T) {
	t.Parallel()

	s := New(time.Minute)
	key := testKey()
	s.Start(key, "zip", domain.StageAwaitingConfirmation, nil)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Mutate(key, func(sess *domain.Session) {
				sess.AddItem(domain.Item{Name: "file-" + strconv.Itoa(i)})
			})
		}(i)
	}
	wg.Wait()

	sess, ok := s.Get(key)
	if !ok {
		t.Fatal("Expected session to exist")
	}
	if len(sess.Items) != n {
		t.Errorf("Expected %d items after %d concurrent adds, got %d", n, n, len(sess.Items))
	}
}

// TestStore_GetDoesNotRaceMutate hammers Get against concurrent item
// additions for the same key. Get must hand back a snapshot copy, so reading
// its Items and Options while Mutate appends is safe.
//
// Run with: go test -race ./internal/session/...
func TestStore_GetDoesNotRaceMutate(t *testing.T) {
	t.Parallel()

	s := New(time.Minute)
	key := testKey()
	s.Start(key, "zip", domain.StageAwaitingConfirmation, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.Mutate(key, func(sess *domain.Session) {
				sess.AddItem(domain.Item{Name: "file-" + strconv.Itoa(i)})
				sess.SetOption("zip_name", "backup.zip")
			})
		}
	}()

	for i := 0; i < 200; i++ {
		sess, ok := s.Get(key)
		if !ok {
			t.Fatal("Expected session to exist")
		}
		for _, it := range sess.Items {
			_ = it.Name
		}
		_ = sess.Option("zip_name")
	}
	<-done

	sess, _ := s.Get(key)
	if len(sess.Items) != 200 {
		t.Errorf("Expected 200 items after all adds, got %d", len(sess.Items))
	}
}

// TestStore_GetReturnsCopy verifies that mutating the returned session does
// not leak into the stored one.
func TestStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := New(time.Minute)
	key := testKey()
	s.Start(key, "zip", domain.StageAwaitingConfirmation, nil)
	s.Mutate(key, func(sess *domain.Session) {
		sess.AddItem(domain.Item{Name: "a.txt"})
	})

	snap, _ := s.Get(key)
	snap.AddItem(domain.Item{Name: "rogue.txt"})
	snap.SetOption("zip_name", "rogue.zip")

	stored, _ := s.Get(key)
	if len(stored.Items) != 1 {
		t.Errorf("Expected stored session unchanged, got %d items", len(stored.Items))
	}
	if stored.Option("zip_name") != "" {
		t.Errorf("Expected no option leak, got %q", stored.Option("zip_name"))
	}
}

func TestStore_ConcurrentDifferentKeys(t *testing.T) {
	t.Parallel()

	s := New(time.Minute)
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key{ChatID: int64(i), UserID: int64(i)}
			s.Start(key, "zip", domain.StageAwaitingName, nil)
			s.Mutate(key, func(sess *domain.Session) {
				sess.AddItem(domain.Item{Name: "x"})
			})
		}(i)
	}
	wg.Wait()

	if s.Len() != n {
		t.Errorf("Expected %d sessions, got %d", n, s.Len())
	}
}

func TestStore_SweepEvictsIdleSessions(t *testing.T) {
	t.Parallel()

	s := New(time.Minute)
	fresh := Key{ChatID: 1, UserID: 1}
	stale := Key{ChatID: 2, UserID: 2}

	base := time.Now()
	s.now = func() time.Time { return base }
	s.Start(stale, "zip", domain.StageAwaitingName, nil)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	s.Start(fresh, "zip", domain.StageAwaitingName, nil)

	var evicted []Key
	s.sweep(func(key Key, _ *domain.Session) {
		evicted = append(evicted, key)
	})

	if len(evicted) != 1 || evicted[0] != stale {
		t.Errorf("Expected only %v evicted, got %v", stale, evicted)
	}
	if _, ok := s.Get(fresh); !ok {
		t.Error("Expected fresh session to survive the sweep")
	}
	if _, ok := s.Get(stale); ok {
		t.Error("Expected stale session to be gone")
	}
}

func TestStore_SweepReapsOrphanedLocks(t *testing.T) {
	t.Parallel()

	s := New(time.Minute)
	key := testKey()
	s.Start(key, "zip", domain.StageAwaitingName, nil)
	s.End(key)

	s.sweep(nil)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.locks) != 0 {
		t.Errorf("Expected lock map to be reaped, got %d entries", len(s.locks))
	}
}
