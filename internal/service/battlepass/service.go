// Package battlepass implements the season progression engine: quest event
// ingestion, tier reward claims, team XP pooling, and retroactive
// reconciliation. Every mutating operation runs through the idempotency gate.
package battlepass

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emberplay/economy-core/internal/errs"
	"github.com/emberplay/economy-core/internal/metrics"
	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/internal/service/idempotency"
	"github.com/emberplay/economy-core/pkg/logger"
)

// Event types follow a strict token pattern; anything else is rejected
// before a transaction opens.
var eventTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_.]{2,63}$`)

// Notifier announces milestone events; failures are logged, never fatal.
type Notifier interface {
	Announce(ctx context.Context, text string) error
}

// Service is the battle-pass progression engine.
type Service struct {
	db       *repository.DB
	gate     *idempotency.Gate
	seasons  *repository.SeasonRepository
	progress *repository.ProgressRepository
	quests   *repository.QuestRepository
	teams    *repository.TeamRepository
	claims   *repository.ClaimRepository
	wallets  *repository.WalletRepository
	boosters *repository.BoosterRepository
	notifier Notifier
	maxValue int64
	skew     time.Duration
	log      *logger.Logger
}

// Deps bundles the service's repository dependencies.
type Deps struct {
	DB       *repository.DB
	Gate     *idempotency.Gate
	Seasons  *repository.SeasonRepository
	Progress *repository.ProgressRepository
	Quests   *repository.QuestRepository
	Teams    *repository.TeamRepository
	Claims   *repository.ClaimRepository
	Wallets  *repository.WalletRepository
	Boosters *repository.BoosterRepository
	Notifier Notifier
}

// NewService creates a progression engine. maxEventValue and futureSkew bound
// ingest validation; notifier may be nil.
func NewService(deps Deps, maxEventValue int64, futureSkew time.Duration, log *logger.Logger) *Service {
	if maxEventValue <= 0 {
		maxEventValue = 5000
	}
	if futureSkew <= 0 {
		futureSkew = 5 * time.Minute
	}
	return &Service{
		db:       deps.DB,
		gate:     deps.Gate,
		seasons:  deps.Seasons,
		progress: deps.Progress,
		quests:   deps.Quests,
		teams:    deps.Teams,
		claims:   deps.Claims,
		wallets:  deps.Wallets,
		boosters: deps.Boosters,
		notifier: deps.Notifier,
		maxValue: maxEventValue,
		skew:     futureSkew,
		log:      log,
	}
}

// ResolveSeason resolves by explicit key, or the currently active season when
// key is empty.
func (s *Service) ResolveSeason(seasonKey string, now time.Time) (*models.Season, error) {
	if seasonKey != "" {
		season, err := s.seasons.GetByKey(seasonKey)
		if err != nil {
			return nil, fmt.Errorf("failed to look up season: %w", err)
		}
		if season == nil {
			return nil, errs.NotFound(errs.CodeSeasonNotFound, "season %q does not exist", seasonKey)
		}
		return season, nil
	}

	season, err := s.seasons.GetActive(now)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active season: %w", err)
	}
	if season == nil {
		return nil, errs.NotFound(errs.CodeNoActiveSeason, "no season is currently active")
	}
	return season, nil
}

// bucketFor computes the completion bucket for a quest kind at a point in
// time: a UTC calendar day for daily quests, an ISO week for weekly quests,
// and "all" for one-shot quests.
func bucketFor(kind string, at time.Time) string {
	t := at.UTC()
	switch kind {
	case models.QuestKindDaily:
		return t.Format("2006-01-02")
	case models.QuestKindWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	default:
		return "all"
	}
}

// dayKey is the UTC calendar day used for team contribution ledgers.
func dayKey(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

// IngestInput is one quest event delivered by the game.
type IngestInput struct {
	UserID         string    `json:"user_id"`
	EventType      string    `json:"event_type"`
	EventValue     int64     `json:"event_value"`
	OccurredAt     time.Time `json:"occurred_at"`
	SeasonKey      string    `json:"season_key,omitempty"`
	IdempotencyKey string    `json:"-"`
	RequestID      string    `json:"-"`
}

// CompletedQuest reports one quest bucket that crossed its threshold.
type CompletedQuest struct {
	Code   string `json:"code"`
	Kind   string `json:"kind"`
	Bucket string `json:"bucket"`
	XP     int64  `json:"xp"`
}

// IngestResult is the ingest response persisted for replay.
type IngestResult struct {
	SeasonKey       string           `json:"season_key"`
	CompletedQuests []CompletedQuest `json:"completed_quests"`
	BaseXP          int64            `json:"base_xp"`
	Multiplier      float64          `json:"multiplier"`
	XPAwarded       int64            `json:"xp_awarded"`
	TotalXP         int64            `json:"total_xp"`
	Tier            int              `json:"tier"`
	TierUp          bool             `json:"tier_up"`
}

// IngestEvent validates and applies one quest event. Progress toward every
// matching quest is bucketed; XP is awarded at most once per bucket, run
// through any active booster, and added to the user's season progress.
func (s *Service) IngestEvent(ctx context.Context, input IngestInput) (*IngestResult, bool, error) {
	now := time.Now().UTC()

	if input.UserID == "" {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "user_id is required")
	}
	if !eventTypePattern.MatchString(input.EventType) {
		return nil, false, errs.Invalid(errs.CodeInvalidEventType, "event type %q is not a valid token", input.EventType)
	}
	if input.EventValue < 1 || input.EventValue > s.maxValue {
		return nil, false, errs.Invalid(errs.CodeInvalidEventValue, "event value must be between 1 and %d", s.maxValue)
	}
	// Fingerprint the request as received: defaulting occurred_at below
	// must not make an identical retry look like a different payload.
	payload := input
	if input.OccurredAt.IsZero() {
		input.OccurredAt = now
	}
	if input.OccurredAt.After(now.Add(s.skew)) {
		return nil, false, errs.Invalid(errs.CodeEventTimeInFuture, "event timestamp is more than %s in the future", s.skew)
	}

	season, err := s.ResolveSeason(input.SeasonKey, now)
	if err != nil {
		return nil, false, err
	}

	var result *IngestResult
	outcome, err := s.gate.Execute(ctx, idempotency.Request{
		Scope:        "battlepass.ingest",
		Key:          input.IdempotencyKey,
		Payload:      payload,
		ActorUserID:  input.UserID,
		TargetUserID: input.UserID,
		EntityType:   "battle_pass_season",
		EntityID:     season.Key,
		EventType:    input.EventType,
		RequestID:    input.RequestID,
	}, func(tx *gorm.DB) (*idempotency.Outcome, error) {
		var fnErr error
		result, fnErr = s.applyEvent(tx, season, input)
		if fnErr != nil {
			return nil, fnErr
		}

		out := &idempotency.Outcome{Response: result}
		if result.XPAwarded > 0 {
			metadata, _ := json.Marshal(map[string]interface{}{
				"event_type": input.EventType,
				"base_xp":    result.BaseXP,
				"multiplier": result.Multiplier,
				"final_xp":   result.XPAwarded,
				"quests":     result.CompletedQuests,
			})
			out.Audit = append(out.Audit, models.AuditEvent{
				EventType: models.AuditEventXPGranted,
				Metadata:  metadata,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}

	if outcome.Replayed {
		replayed := &IngestResult{}
		if err := json.Unmarshal(outcome.Response, replayed); err != nil {
			return nil, false, fmt.Errorf("failed to decode replayed response: %w", err)
		}
		return replayed, true, nil
	}

	for _, quest := range result.CompletedQuests {
		metrics.RecordQuestCompletion(quest.Kind)
	}
	if result.XPAwarded > 0 {
		metrics.RecordXPGranted("quest", result.XPAwarded)
	}
	if result.TierUp {
		s.announce(ctx, fmt.Sprintf("Player %s reached tier %d in season %s", input.UserID, result.Tier, season.Key))
	}

	return result, false, nil
}

// applyEvent is the ingest mutation closure body.
func (s *Service) applyEvent(tx *gorm.DB, season *models.Season, input IngestInput) (*IngestResult, error) {
	quests := s.quests.WithTx(tx)
	seasons := s.seasons.WithTx(tx)
	progress := s.progress.WithTx(tx)
	boosters := s.boosters.WithTx(tx)

	if err := quests.RecordEvent(&models.QuestEvent{
		ID:         uuid.NewString(),
		UserID:     input.UserID,
		EventType:  input.EventType,
		EventValue: input.EventValue,
		OccurredAt: input.OccurredAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to record quest event: %w", err)
	}

	bound, err := seasons.GetQuestsByEventType(season.ID, input.EventType)
	if err != nil {
		return nil, fmt.Errorf("failed to load quests for event type: %w", err)
	}

	result := &IngestResult{
		SeasonKey:  season.Key,
		Multiplier: 1.0,
	}

	for i := range bound {
		quest := &bound[i]
		if !quest.ValidAt(input.OccurredAt, season) {
			continue
		}
		bucket := bucketFor(quest.Kind, input.OccurredAt)
		_, awarded, err := quests.AddProgress(quest, input.UserID, bucket, input.EventValue, input.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to update quest progress: %w", err)
		}
		if awarded {
			result.BaseXP += quest.XPReward
			result.CompletedQuests = append(result.CompletedQuests, CompletedQuest{
				Code:   quest.Code,
				Kind:   quest.Kind,
				Bucket: bucket,
				XP:     quest.XPReward,
			})
		}
	}

	row, err := progress.GetOrCreate(season.ID, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load season progress: %w", err)
	}

	if result.BaseXP > 0 {
		booster, err := boosters.GetActive(input.UserID, input.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to look up booster: %w", err)
		}
		final := result.BaseXP
		if booster != nil && booster.Multiplier > 1.0 {
			result.Multiplier = booster.Multiplier
			boosted := int64(float64(result.BaseXP) * booster.Multiplier)
			if boosted > final {
				final = boosted
			}
		}
		result.XPAwarded = final

		locked, err := progress.GetLocked(season.ID, input.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to lock season progress: %w", err)
		}
		if locked == nil {
			return nil, fmt.Errorf("season progress row disappeared for user %s", input.UserID)
		}
		previousTier := locked.Tier
		if err := progress.AddXP(locked, season, final, input.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to add XP: %w", err)
		}
		row = locked
		result.TierUp = locked.Tier > previousTier
	}

	result.TotalXP = row.XP
	result.Tier = row.Tier
	return result, nil
}

// GetProgress returns a user's standing in a season.
func (s *Service) GetProgress(ctx context.Context, userID, seasonKey string) (*models.UserProgress, *models.Season, error) {
	season, err := s.ResolveSeason(seasonKey, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}
	row, err := s.progress.Get(season.ID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load progress: %w", err)
	}
	if row == nil {
		row = &models.UserProgress{SeasonID: season.ID, UserID: userID, XP: 0, Tier: 1}
	}
	return row, season, nil
}

func (s *Service) announce(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Announce(ctx, text); err != nil {
		s.log.Warn().Err(err).Msg("Milestone announcement failed")
	}
}
