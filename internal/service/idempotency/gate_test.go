package idempotency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/emberplay/economy-core/internal/errs"
	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/internal/service/audit"
	"github.com/emberplay/economy-core/pkg/logger"
)

func setupGateTest(t *testing.T) (*Gate, *repository.DB, *repository.IdempotencyRepository) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	if err := gdb.AutoMigrate(
		&models.IdempotencyRecord{},
		&models.AuditEvent{},
		&models.CurrencyBalance{},
	); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	db := &repository.DB{DB: gdb}
	records := repository.NewIdempotencyRepository(db)
	log := logger.New("error", "json", "stdout")
	auditor := audit.NewAppender(repository.NewAuditRepository(db), log)

	return NewGate(db, records, auditor, 15*time.Minute, log), db, records
}

// creditClosure credits a balance; used as the side effect under test.
func creditClosure(db *repository.DB, userID string, amount int64) MutationFunc {
	return func(tx *gorm.DB) (*Outcome, error) {
		wallets := repository.NewWalletRepository(db).WithTx(tx)
		balance, err := wallets.Credit(userID, models.CurrencySeasonCoins, amount)
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Response: map[string]interface{}{"amount": balance.Amount},
			Audit: []models.AuditEvent{{
				EventType: models.AuditEventCurrencyCredited,
				Metadata:  json.RawMessage(`{"amount":100}`),
			}},
		}, nil
	}
}

func balanceOf(t *testing.T, db *repository.DB, userID string) int64 {
	t.Helper()
	balance, err := repository.NewWalletRepository(db).GetBalance(userID, models.CurrencySeasonCoins)
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	return balance.Amount
}

func TestGate_ExactlyOnce(t *testing.T) {
	gate, db, _ := setupGateTest(t)
	ctx := context.Background()

	req := Request{Scope: "wallet.credit", Key: "k1", Payload: map[string]int{"amount": 100}}

	first, err := gate.Execute(ctx, req, creditClosure(db, "u1", 100))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if first.Replayed {
		t.Error("first execution marked replayed")
	}

	// Re-issuing the identical request replays the stored response and
	// causes no second credit.
	second, err := gate.Execute(ctx, req, creditClosure(db, "u1", 100))
	if err != nil {
		t.Fatalf("Execute() replay error = %v", err)
	}
	if !second.Replayed {
		t.Error("second execution not marked replayed")
	}
	if string(first.Response) != string(second.Response) {
		t.Errorf("replayed response %s differs from original %s", second.Response, first.Response)
	}
	if got := balanceOf(t, db, "u1"); got != 100 {
		t.Errorf("balance = %d, want exactly one credit of 100", got)
	}
}

func TestGate_PayloadMismatch(t *testing.T) {
	gate, db, _ := setupGateTest(t)
	ctx := context.Background()

	if _, err := gate.Execute(ctx, Request{
		Scope:   "wallet.credit",
		Key:     "k1",
		Payload: map[string]int{"amount": 100},
	}, creditClosure(db, "u1", 100)); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	_, err := gate.Execute(ctx, Request{
		Scope:   "wallet.credit",
		Key:     "k1",
		Payload: map[string]int{"amount": 999},
	}, creditClosure(db, "u1", 999))
	if !errs.HasCode(err, errs.CodeIdempotencyPayloadMismatch) {
		t.Errorf("Execute() with reused key error = %v, want IDEMPOTENCY_PAYLOAD_MISMATCH", err)
	}
	if got := balanceOf(t, db, "u1"); got != 100 {
		t.Errorf("balance = %d, the mismatched request must not execute", got)
	}
}

func TestGate_InProgress(t *testing.T) {
	gate, db, records := setupGateTest(t)
	ctx := context.Background()

	// Simulate a first attempt still mid-flight.
	if _, err := records.InsertPending("wallet.credit", "k1", mustFingerprint(t, map[string]int{"amount": 100})); err != nil {
		t.Fatalf("InsertPending() error = %v", err)
	}

	_, err := gate.Execute(ctx, Request{
		Scope:   "wallet.credit",
		Key:     "k1",
		Payload: map[string]int{"amount": 100},
	}, creditClosure(db, "u1", 100))
	if !errs.HasCode(err, errs.CodeIdempotencyInProgress) {
		t.Errorf("Execute() against pending key error = %v, want IDEMPOTENCY_IN_PROGRESS", err)
	}
	if got := balanceOf(t, db, "u1"); got != 0 {
		t.Errorf("balance = %d, nothing may execute while the key is pending", got)
	}
}

func TestGate_FailedAttemptIsRetryable(t *testing.T) {
	gate, db, _ := setupGateTest(t)
	ctx := context.Background()

	req := Request{Scope: "wallet.credit", Key: "k1", Payload: map[string]int{"amount": 100}}

	boom := func(tx *gorm.DB) (*Outcome, error) {
		wallets := repository.NewWalletRepository(db).WithTx(tx)
		if _, err := wallets.Credit("u1", models.CurrencySeasonCoins, 100); err != nil {
			return nil, err
		}
		return nil, errs.Conflict(errs.CodeTierNotReached, "domain failure")
	}

	_, err := gate.Execute(ctx, req, boom)
	if !errs.HasCode(err, errs.CodeTierNotReached) {
		t.Fatalf("Execute() error = %v, want the closure's domain error", err)
	}
	// Domain failure rolls back the whole transaction.
	if got := balanceOf(t, db, "u1"); got != 0 {
		t.Errorf("balance = %d after rollback, want 0", got)
	}

	// A retry with the same key executes for real.
	result, err := gate.Execute(ctx, req, creditClosure(db, "u1", 100))
	if err != nil {
		t.Fatalf("Execute() retry error = %v", err)
	}
	if result.Replayed {
		t.Error("retry after failure marked replayed")
	}
	if got := balanceOf(t, db, "u1"); got != 100 {
		t.Errorf("balance = %d after retry, want 100", got)
	}
}

func TestGate_StalePendingReclaim(t *testing.T) {
	gate, db, records := setupGateTest(t)
	ctx := context.Background()

	req := Request{Scope: "wallet.credit", Key: "k1", Payload: map[string]int{"amount": 100}}

	rec, err := records.InsertPending("wallet.credit", "k1", mustFingerprint(t, req.Payload))
	if err != nil {
		t.Fatalf("InsertPending() error = %v", err)
	}
	// Backdate the marker past the 15 minute TTL: a crashed first attempt.
	old := time.Now().UTC().Add(-time.Hour)
	if err := db.Model(&models.IdempotencyRecord{}).Where("id = ?", rec.ID).Update("locked_at", old).Error; err != nil {
		t.Fatalf("Failed to backdate record: %v", err)
	}

	result, err := gate.Execute(ctx, req, creditClosure(db, "u1", 100))
	if err != nil {
		t.Fatalf("Execute() over stale pending error = %v", err)
	}
	if result.Replayed {
		t.Error("reclaimed execution marked replayed")
	}
	if got := balanceOf(t, db, "u1"); got != 100 {
		t.Errorf("balance = %d, want 100 after reclaim", got)
	}
}

func TestGate_AuditAppendedAfterCommit(t *testing.T) {
	gate, db, _ := setupGateTest(t)
	ctx := context.Background()

	req := Request{
		Scope:        "wallet.credit",
		Key:          "k1",
		Payload:      map[string]int{"amount": 100},
		ActorUserID:  "u1",
		TargetUserID: "u1",
		EntityType:   "wallet",
		EntityID:     "u1",
		RequestID:    "req-42",
	}
	if _, err := gate.Execute(ctx, req, creditClosure(db, "u1", 100)); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	events, err := repository.NewAuditRepository(db).GetByIdempotencyKey("k1")
	if err != nil {
		t.Fatalf("GetByIdempotencyKey() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(events))
	}
	event := events[0]
	if event.ActorUserID != "u1" || event.RequestID != "req-42" {
		t.Errorf("audit identity not stamped: %+v", event)
	}
	if event.ID == "" {
		t.Error("audit event ID not assigned")
	}

	// A replay of the same key appends nothing further.
	if _, err := gate.Execute(ctx, req, creditClosure(db, "u1", 100)); err != nil {
		t.Fatalf("Execute() replay error = %v", err)
	}
	events, _ = repository.NewAuditRepository(db).GetByIdempotencyKey("k1")
	if len(events) != 1 {
		t.Errorf("audit events after replay = %d, want still 1", len(events))
	}
}

func TestGate_RequiresScopeAndKey(t *testing.T) {
	gate, db, _ := setupGateTest(t)
	ctx := context.Background()

	_, err := gate.Execute(ctx, Request{Scope: "wallet.credit"}, creditClosure(db, "u1", 100))
	if !errs.HasCode(err, errs.CodeInvalidArgument) {
		t.Errorf("Execute() without key error = %v, want INVALID_ARGUMENT", err)
	}
}

func TestFingerprint_Canonical(t *testing.T) {
	// Key order must not change the fingerprint.
	a, err := Fingerprint(json.RawMessage(`{"a":1,"b":2}`))
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	b, err := Fingerprint(json.RawMessage(`{"b":2,"a":1}`))
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if a != b {
		t.Errorf("fingerprints differ for equivalent payloads: %s vs %s", a, b)
	}

	c, err := Fingerprint(json.RawMessage(`{"a":1,"b":3}`))
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if a == c {
		t.Error("fingerprints collide for different payloads")
	}
}

func mustFingerprint(t *testing.T, payload interface{}) string {
	t.Helper()
	fp, err := Fingerprint(payload)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	return fp
}
