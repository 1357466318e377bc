package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashmarin/filebutler/internal/domain"
	"github.com/ashmarin/filebutler/internal/session"
)

// fakeRepo implements store.Repository in memory.
type fakeRepo struct {
	pingErr error
	recs    []*domain.TransferRecord
}

func (f *fakeRepo) RecordTransfer(_ context.Context, rec *domain.TransferRecord) error {
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeRepo) RecentTransfers(_ context.Context, limit int) ([]*domain.TransferRecord, error) {
	if limit > len(f.recs) {
		limit = len(f.recs)
	}
	return f.recs[:limit], nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return f.pingErr }

func (f *fakeRepo) Close() error { return nil }

func newTestServer(repo *fakeRepo, sessions *session.Store) *chi.Mux {
	r := chi.NewRouter()
	NewHandler(repo, sessions).RegisterRoutes(r)
	return r
}

func TestHealth_OK(t *testing.T) {
	t.Parallel()

	sessions := session.New(time.Minute)
	sessions.Start(session.Key{ChatID: 1, UserID: 1}, "zip", domain.StageAwaitingName, nil)

	r := newTestServer(&fakeRepo{}, sessions)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["db"] != "ok" {
		t.Errorf("Expected db ok, got %v", body["db"])
	}
	if body["active_sessions"] != float64(1) {
		t.Errorf("Expected 1 active session, got %v", body["active_sessions"])
	}
}

func TestHealth_DBDown(t *testing.T) {
	t.Parallel()

	r := newTestServer(&fakeRepo{pingErr: errors.New("boom")}, session.New(time.Minute))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestRecentTransfers(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{recs: []*domain.TransferRecord{
		{ID: 1, Flow: "zip", Name: "backup.zip", Status: domain.TransferOK},
		{ID: 2, Flow: "get", Name: "a.bin", Status: domain.TransferFailed},
	}}
	r := newTestServer(repo, session.New(time.Minute))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transfers/recent?limit=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var rows []domain.TransferRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Expected 1 row, got %d", len(rows))
	}
}
