// Package idempotency implements the gate that guarantees exactly-once
// economic effect per (scope, key) pair, and the transactional executor the
// domain closures run under.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/emberplay/economy-core/internal/errs"
	"github.com/emberplay/economy-core/internal/metrics"
	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/pkg/logger"
)

// Outcome is what a mutation closure produces: the response persisted for
// replay, and the audit events appended once the transaction has committed.
type Outcome struct {
	Response interface{}
	Audit    []models.AuditEvent
}

// MutationFunc is a domain closure executed inside one store transaction.
// Any error aborts the transaction with a full rollback.
type MutationFunc func(tx *gorm.DB) (*Outcome, error)

// Request carries the idempotency metadata for one logical mutation.
type Request struct {
	Scope        string      // operation family, e.g. "battlepass.claim"
	Key          string      // caller-supplied idempotency key, required
	Payload      interface{} // canonical request data, fingerprinted for reuse detection
	ActorUserID  string
	TargetUserID string
	EntityType   string
	EntityID     string
	EventType    string
	RequestID    string
}

// Result is returned to the caller: the response body and whether it was
// replayed from a previous execution.
type Result struct {
	Response json.RawMessage `json:"response"`
	Replayed bool            `json:"replayed"`
}

// Records is the idempotency persistence surface the gate needs.
type Records interface {
	Find(scope, key string) (*models.IdempotencyRecord, error)
	InsertPending(scope, key, requestHash string) (*models.IdempotencyRecord, error)
	Reacquire(rec *models.IdempotencyRecord, requestHash string, staleAfter time.Duration) (bool, error)
	MarkCompleted(id uint, responseBody []byte) error
	MarkFailed(id uint) error
}

// Auditor appends events for committed mutations.
type Auditor interface {
	AppendAll(ctx context.Context, events []models.AuditEvent)
}

// Gate decides whether a mutation attempt executes, replays, or is rejected.
type Gate struct {
	db         *gorm.DB
	records    Records
	auditor    Auditor
	pendingTTL time.Duration
	log        *logger.Logger
}

// NewGate creates a gate over the given database and repositories.
func NewGate(db *repository.DB, records *repository.IdempotencyRepository, auditor Auditor, pendingTTL time.Duration, log *logger.Logger) *Gate {
	return &Gate{db: db.DB, records: records, auditor: auditor, pendingTTL: pendingTTL, log: log}
}

// NewGateWithInterfaces creates a gate with interface dependencies (useful for testing).
func NewGateWithInterfaces(db *gorm.DB, records Records, auditor Auditor, pendingTTL time.Duration, log *logger.Logger) *Gate {
	return &Gate{db: db, records: records, auditor: auditor, pendingTTL: pendingTTL, log: log}
}

// Fingerprint computes the canonical payload hash used for key-reuse
// detection. The payload is round-tripped through JSON so map keys sort and
// formatting differences disappear.
func Fingerprint(payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Execute runs fn under idempotency control. The same (scope, key, payload)
// never produces more than one side-effecting execution: later attempts
// replay the stored response. A different payload under a reused key is a
// conflict, as is a key whose first attempt is still in flight.
func (g *Gate) Execute(ctx context.Context, req Request, fn MutationFunc) (*Result, error) {
	if req.Scope == "" || req.Key == "" {
		return nil, errs.Invalid(errs.CodeInvalidArgument, "idempotency scope and key are required")
	}

	fingerprint, err := Fingerprint(req.Payload)
	if err != nil {
		return nil, errs.Invalid(errs.CodeInvalidArgument, "request payload is not serializable: %v", err)
	}

	rec, err := g.claim(req, fingerprint)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Resolved without executing: the find in claim returned a
		// completed record whose response we replay.
		return g.replay(req, fingerprint)
	}

	start := time.Now()
	var outcome *Outcome
	txErr := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fnErr error
		outcome, fnErr = fn(tx)
		return fnErr
	})
	metrics.ObserveMutationDuration(req.Scope, time.Since(start).Seconds())

	if txErr != nil {
		if markErr := g.records.MarkFailed(rec.ID); markErr != nil {
			g.log.Error().
				Err(markErr).
				Str("scope", req.Scope).
				Str("key", req.Key).
				Msg("Failed to release idempotency record after mutation failure")
		}
		metrics.RecordMutationExecuted(req.Scope, "failed")
		return nil, txErr
	}

	body, err := json.Marshal(outcome.Response)
	if err != nil {
		// The mutation committed; a response we cannot serialize is a
		// programming error, but the record must not stay pending.
		if markErr := g.records.MarkFailed(rec.ID); markErr != nil {
			g.log.Error().Err(markErr).Str("key", req.Key).Msg("Failed to release idempotency record")
		}
		return nil, fmt.Errorf("failed to serialize mutation response: %w", err)
	}

	if err := g.records.MarkCompleted(rec.ID, body); err != nil {
		g.log.Error().
			Err(err).
			Str("scope", req.Scope).
			Str("key", req.Key).
			Msg("Failed to finalize idempotency record after commit")
	}

	g.appendAudit(ctx, req, outcome.Audit)

	metrics.RecordMutationExecuted(req.Scope, "completed")
	g.log.Info().
		Str("scope", req.Scope).
		Str("key", req.Key).
		Str("request_id", req.RequestID).
		Msg("Mutation executed")

	return &Result{Response: body, Replayed: false}, nil
}

// claim resolves the (scope, key) state machine. It returns the pending
// record to execute under, or (nil, nil) when the caller should replay a
// completed record instead.
func (g *Gate) claim(req Request, fingerprint string) (*models.IdempotencyRecord, error) {
	rec, err := g.records.Find(req.Scope, req.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency record: %w", err)
	}

	if rec == nil {
		created, err := g.records.InsertPending(req.Scope, req.Key, fingerprint)
		if errors.Is(err, repository.ErrDuplicatePending) {
			// Lost the insert race; the winner is mid-flight.
			metrics.RecordIdempotencyConflict(req.Scope, "in_progress")
			return nil, errs.Conflict(errs.CodeIdempotencyInProgress,
				"a request with key %q is already in progress, retry later", req.Key)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert idempotency record: %w", err)
		}
		return created, nil
	}

	switch rec.Status {
	case models.IdempotencyStatusCompleted:
		if rec.RequestHash != fingerprint {
			metrics.RecordIdempotencyConflict(req.Scope, "payload_mismatch")
			return nil, errs.Conflict(errs.CodeIdempotencyPayloadMismatch,
				"key %q was already used with a different payload", req.Key)
		}
		return nil, nil // replay

	case models.IdempotencyStatusPending:
		if !rec.StalePending(g.pendingTTL, time.Now().UTC()) {
			metrics.RecordIdempotencyConflict(req.Scope, "in_progress")
			return nil, errs.Conflict(errs.CodeIdempotencyInProgress,
				"a request with key %q is already in progress, retry later", req.Key)
		}
		// Abandoned marker (crash or timeout mid-transaction); reclaim it.
		return g.reacquire(req, rec, fingerprint)

	case models.IdempotencyStatusFailed:
		return g.reacquire(req, rec, fingerprint)

	default:
		return nil, fmt.Errorf("idempotency record %d has unknown status %q", rec.ID, rec.Status)
	}
}

func (g *Gate) reacquire(req Request, rec *models.IdempotencyRecord, fingerprint string) (*models.IdempotencyRecord, error) {
	ok, err := g.records.Reacquire(rec, fingerprint, g.pendingTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to reacquire idempotency record: %w", err)
	}
	if !ok {
		// Another retry won the conditioned update.
		metrics.RecordIdempotencyConflict(req.Scope, "in_progress")
		return nil, errs.Conflict(errs.CodeIdempotencyInProgress,
			"a request with key %q is already in progress, retry later", req.Key)
	}
	rec.Status = models.IdempotencyStatusPending
	rec.RequestHash = fingerprint
	return rec, nil
}

// replay returns the stored response for a completed record.
func (g *Gate) replay(req Request, fingerprint string) (*Result, error) {
	rec, err := g.records.Find(req.Scope, req.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to reread idempotency record: %w", err)
	}
	if rec == nil || rec.Status != models.IdempotencyStatusCompleted || rec.RequestHash != fingerprint {
		return nil, errs.Conflict(errs.CodeIdempotencyInProgress,
			"record for key %q changed underneath the replay, retry later", req.Key)
	}

	metrics.RecordMutationReplay(req.Scope)
	g.log.Info().
		Str("scope", req.Scope).
		Str("key", req.Key).
		Str("request_id", req.RequestID).
		Msg("Mutation replayed from stored response")

	return &Result{Response: rec.ResponseBody, Replayed: true}, nil
}

// appendAudit stamps the request's identity onto the closure's events and
// hands them to the auditor after the commit.
func (g *Gate) appendAudit(ctx context.Context, req Request, events []models.AuditEvent) {
	if g.auditor == nil || len(events) == 0 {
		return
	}
	for i := range events {
		if events[i].ActorUserID == "" {
			events[i].ActorUserID = req.ActorUserID
		}
		if events[i].TargetUserID == "" {
			events[i].TargetUserID = req.TargetUserID
		}
		if events[i].EntityType == "" {
			events[i].EntityType = req.EntityType
		}
		if events[i].EntityID == "" {
			events[i].EntityID = req.EntityID
		}
		if events[i].EventType == "" {
			events[i].EventType = req.EventType
		}
		events[i].IdempotencyKey = req.Key
		events[i].RequestID = req.RequestID
	}
	g.auditor.AppendAll(ctx, events)
}
