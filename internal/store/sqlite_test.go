package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashmarin/filebutler/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteStore_RecordAndList(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	records := []*domain.TransferRecord{
		{ChatID: 42, Flow: "zip", Name: "backup.zip", Bytes: 1024, Status: domain.TransferOK, StartedAt: base, FinishedAt: base.Add(time.Second)},
		{ChatID: 42, Flow: "get", Name: "video.mp4", Bytes: 0, Status: domain.TransferFailed, Error: "source unreachable", StartedAt: base, FinishedAt: base.Add(2 * time.Second)},
	}
	for _, rec := range records {
		if err := repo.RecordTransfer(ctx, rec); err != nil {
			t.Fatalf("RecordTransfer: %v", err)
		}
		if rec.ID == 0 {
			t.Error("Expected assigned row ID")
		}
	}

	got, err := repo.RecentTransfers(ctx, 10)
	if err != nil {
		t.Fatalf("RecentTransfers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(got))
	}

	// Newest first.
	if got[0].Name != "video.mp4" {
		t.Errorf("Expected newest record first, got %q", got[0].Name)
	}
	if got[0].Status != domain.TransferFailed || got[0].Error != "source unreachable" {
		t.Errorf("Unexpected failure record %+v", got[0])
	}
	if got[1].Bytes != 1024 {
		t.Errorf("Expected 1024 bytes, got %d", got[1].Bytes)
	}
	if !got[1].FinishedAt.Equal(base.Add(time.Second)) {
		t.Errorf("FinishedAt roundtrip mismatch: %v", got[1].FinishedAt)
	}
}

func TestSQLiteStore_RecentTransfersLimit(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := &domain.TransferRecord{
			ChatID: 1, Flow: "get", Name: "f", Status: domain.TransferOK,
			StartedAt: time.Now(), FinishedAt: time.Now(),
		}
		if err := repo.RecordTransfer(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.RecentTransfers(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("Expected limit of 3, got %d", len(got))
	}
}

func TestSQLiteStore_Ping(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
