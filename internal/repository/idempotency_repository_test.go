package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/emberplay/economy-core/internal/models"
)

func TestIdempotencyRepository_InsertPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIdempotencyRepository(db)

	rec, err := repo.InsertPending("battlepass.claim", "key-1", "hash-1")
	if err != nil {
		t.Fatalf("InsertPending() error = %v", err)
	}
	if rec.Status != models.IdempotencyStatusPending {
		t.Errorf("Status = %q, want %q", rec.Status, models.IdempotencyStatusPending)
	}

	// Second insert for the same (scope, key) loses the race.
	_, err = repo.InsertPending("battlepass.claim", "key-1", "hash-1")
	if !errors.Is(err, ErrDuplicatePending) {
		t.Errorf("Second InsertPending() error = %v, want ErrDuplicatePending", err)
	}

	// Same key under a different scope is a different operation.
	if _, err := repo.InsertPending("battlepass.ingest", "key-1", "hash-1"); err != nil {
		t.Errorf("InsertPending() with different scope error = %v", err)
	}
}

func TestIdempotencyRepository_FindMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIdempotencyRepository(db)

	rec, err := repo.Find("battlepass.claim", "nope")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if rec != nil {
		t.Errorf("Find() = %+v, want nil for missing record", rec)
	}
}

func TestIdempotencyRepository_MarkCompleted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIdempotencyRepository(db)

	rec, err := repo.InsertPending("battlepass.claim", "key-1", "hash-1")
	if err != nil {
		t.Fatalf("InsertPending() error = %v", err)
	}

	body := []byte(`{"tier":3}`)
	if err := repo.MarkCompleted(rec.ID, body); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	stored, err := repo.Find("battlepass.claim", "key-1")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if stored.Status != models.IdempotencyStatusCompleted {
		t.Errorf("Status = %q, want completed", stored.Status)
	}
	if string(stored.ResponseBody) != string(body) {
		t.Errorf("ResponseBody = %s, want %s", stored.ResponseBody, body)
	}
	if stored.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	// Completed records are final; a second finalize must not touch them.
	if err := repo.MarkCompleted(rec.ID, []byte(`{"tier":99}`)); err != nil {
		t.Fatalf("MarkCompleted() second call error = %v", err)
	}
	stored, _ = repo.Find("battlepass.claim", "key-1")
	if string(stored.ResponseBody) != string(body) {
		t.Errorf("ResponseBody overwritten to %s", stored.ResponseBody)
	}
}

func TestIdempotencyRepository_Reacquire(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIdempotencyRepository(db)

	rec, err := repo.InsertPending("battlepass.claim", "key-1", "hash-1")
	if err != nil {
		t.Fatalf("InsertPending() error = %v", err)
	}
	if err := repo.MarkFailed(rec.ID); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	failed, _ := repo.Find("battlepass.claim", "key-1")
	ok, err := repo.Reacquire(failed, "hash-2", 15*time.Minute)
	if err != nil {
		t.Fatalf("Reacquire() error = %v", err)
	}
	if !ok {
		t.Fatal("Reacquire() = false, want true for failed record")
	}

	stored, _ := repo.Find("battlepass.claim", "key-1")
	if stored.Status != models.IdempotencyStatusPending {
		t.Errorf("Status = %q, want pending after reacquire", stored.Status)
	}
	if stored.RequestHash != "hash-2" {
		t.Errorf("RequestHash = %q, want hash-2 (retry may change payload)", stored.RequestHash)
	}
}

func TestIdempotencyRepository_ReacquireFreshPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIdempotencyRepository(db)

	rec, err := repo.InsertPending("battlepass.claim", "key-1", "hash-1")
	if err != nil {
		t.Fatalf("InsertPending() error = %v", err)
	}

	// A pending record locked moments ago is not stale; reacquire must lose.
	ok, err := repo.Reacquire(rec, "hash-1", 15*time.Minute)
	if err != nil {
		t.Fatalf("Reacquire() error = %v", err)
	}
	if ok {
		t.Error("Reacquire() = true for fresh pending record, want false")
	}
}

func TestIdempotencyRepository_ReapStalePending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIdempotencyRepository(db)

	stale, err := repo.InsertPending("battlepass.claim", "stale-key", "hash-1")
	if err != nil {
		t.Fatalf("InsertPending() error = %v", err)
	}
	// Backdate the marker past the TTL.
	old := time.Now().UTC().Add(-time.Hour)
	if err := db.Model(&models.IdempotencyRecord{}).Where("id = ?", stale.ID).Update("locked_at", old).Error; err != nil {
		t.Fatalf("Failed to backdate record: %v", err)
	}

	if _, err := repo.InsertPending("battlepass.claim", "fresh-key", "hash-2"); err != nil {
		t.Fatalf("InsertPending() error = %v", err)
	}

	reclaimed, err := repo.ReapStalePending(15 * time.Minute)
	if err != nil {
		t.Fatalf("ReapStalePending() error = %v", err)
	}
	if reclaimed != 1 {
		t.Errorf("ReapStalePending() = %d, want 1", reclaimed)
	}

	staleRec, _ := repo.Find("battlepass.claim", "stale-key")
	if staleRec.Status != models.IdempotencyStatusFailed {
		t.Errorf("Stale record status = %q, want failed", staleRec.Status)
	}
	freshRec, _ := repo.Find("battlepass.claim", "fresh-key")
	if freshRec.Status != models.IdempotencyStatusPending {
		t.Errorf("Fresh record status = %q, want pending", freshRec.Status)
	}
}

func TestIdempotencyRepository_CountByStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIdempotencyRepository(db)

	rec, _ := repo.InsertPending("s", "a", "h")
	_, _ = repo.InsertPending("s", "b", "h")
	_ = repo.MarkCompleted(rec.ID, []byte(`{}`))

	pending, err := repo.CountByStatus(models.IdempotencyStatusPending)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if pending != 1 {
		t.Errorf("pending count = %d, want 1", pending)
	}
}
