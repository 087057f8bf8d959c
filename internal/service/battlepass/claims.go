package battlepass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/emberplay/economy-core/internal/errs"
	"github.com/emberplay/economy-core/internal/metrics"
	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/internal/service/idempotency"
)

// ClaimInput identifies one tier-reward claim.
type ClaimInput struct {
	UserID         string `json:"user_id"`
	Tier           int    `json:"tier"`
	SeasonKey      string `json:"season_key,omitempty"`
	IdempotencyKey string `json:"-"`
	RequestID      string `json:"-"`
}

// ClaimResult is a single granted claim, persisted for replay.
type ClaimResult struct {
	SeasonKey string  `json:"season_key"`
	Tier      int     `json:"tier"`
	ClaimType string  `json:"claim_type"`
	Reward    *Reward `json:"reward"`
}

// ClaimTier grants the reward for one reached, unclaimed tier.
func (s *Service) ClaimTier(ctx context.Context, input ClaimInput) (*ClaimResult, bool, error) {
	now := time.Now().UTC()
	if input.UserID == "" {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "user_id is required")
	}
	if input.Tier < 1 {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "tier must be positive")
	}

	season, err := s.ResolveSeason(input.SeasonKey, now)
	if err != nil {
		return nil, false, err
	}

	var result *ClaimResult
	outcome, err := s.gate.Execute(ctx, idempotency.Request{
		Scope:        "battlepass.claim",
		Key:          input.IdempotencyKey,
		Payload:      input,
		ActorUserID:  input.UserID,
		TargetUserID: input.UserID,
		EntityType:   "battle_pass_season",
		EntityID:     season.Key,
		EventType:    models.AuditEventRewardClaimed,
		RequestID:    input.RequestID,
	}, func(tx *gorm.DB) (*idempotency.Outcome, error) {
		reward, fnErr := s.grantTier(tx, season, input.UserID, input.Tier, models.ClaimTypeStandard, input.IdempotencyKey)
		if fnErr != nil {
			return nil, fnErr
		}
		result = &ClaimResult{
			SeasonKey: season.Key,
			Tier:      input.Tier,
			ClaimType: models.ClaimTypeStandard,
			Reward:    reward,
		}
		return &idempotency.Outcome{
			Response: result,
			Audit:    []models.AuditEvent{claimAuditEvent(result)},
		}, nil
	})
	if err != nil {
		return nil, false, err
	}

	if outcome.Replayed {
		replayed := &ClaimResult{}
		if err := json.Unmarshal(outcome.Response, replayed); err != nil {
			return nil, false, fmt.Errorf("failed to decode replayed response: %w", err)
		}
		return replayed, true, nil
	}

	metrics.RecordRewardClaim(result.ClaimType, result.Reward.Type)
	if result.Reward.Type == RewardTypeItem && result.Reward.ItemKind == mythicItemKind {
		s.announce(ctx, fmt.Sprintf("Player %s unlocked %s at tier %d", input.UserID, result.Reward.Name, input.Tier))
	}
	return result, false, nil
}

// RetroactiveInput identifies a catch-up claim over a tier range.
type RetroactiveInput struct {
	UserID         string `json:"user_id"`
	FromTier       int    `json:"from_tier"`
	ToTier         int    `json:"to_tier"`
	SeasonKey      string `json:"season_key,omitempty"`
	IdempotencyKey string `json:"-"`
	RequestID      string `json:"-"`
}

// RetroactiveResult reports every tier granted by one reconciliation pass.
type RetroactiveResult struct {
	SeasonKey string   `json:"season_key"`
	Granted   []Reward `json:"granted"`
	Skipped   []int    `json:"skipped"` // tiers already claimed
}

// ClaimRetroactive grants every unclaimed tier in [fromTier, toTier],
// resolving each reward identically to the live-claim path and recording it
// with the retroactive claim type. Used after a late season-pass purchase.
func (s *Service) ClaimRetroactive(ctx context.Context, input RetroactiveInput) (*RetroactiveResult, bool, error) {
	now := time.Now().UTC()
	if input.UserID == "" {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "user_id is required")
	}
	if input.FromTier < 1 || input.ToTier < input.FromTier {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "tier range [%d, %d] is invalid", input.FromTier, input.ToTier)
	}

	season, err := s.ResolveSeason(input.SeasonKey, now)
	if err != nil {
		return nil, false, err
	}

	var result *RetroactiveResult
	outcome, err := s.gate.Execute(ctx, idempotency.Request{
		Scope:        "battlepass.claim_retroactive",
		Key:          input.IdempotencyKey,
		Payload:      input,
		ActorUserID:  input.UserID,
		TargetUserID: input.UserID,
		EntityType:   "battle_pass_season",
		EntityID:     season.Key,
		EventType:    models.AuditEventRewardClaimed,
		RequestID:    input.RequestID,
	}, func(tx *gorm.DB) (*idempotency.Outcome, error) {
		progress, fnErr := s.progress.WithTx(tx).GetOrCreate(season.ID, input.UserID)
		if fnErr != nil {
			return nil, fmt.Errorf("failed to load season progress: %w", fnErr)
		}
		if input.ToTier > progress.Tier {
			return nil, errs.Conflict(errs.CodeTierNotReached,
				"tier %d has not been reached, current tier is %d", input.ToTier, progress.Tier)
		}

		claimed, fnErr := s.claims.WithTx(tx).ClaimedTiers(season.ID, input.UserID, input.FromTier, input.ToTier)
		if fnErr != nil {
			return nil, fmt.Errorf("failed to load claimed tiers: %w", fnErr)
		}

		result = &RetroactiveResult{SeasonKey: season.Key, Granted: []Reward{}, Skipped: []int{}}
		out := &idempotency.Outcome{}
		for tier := input.FromTier; tier <= input.ToTier; tier++ {
			if claimed[tier] {
				result.Skipped = append(result.Skipped, tier)
				continue
			}
			reward, fnErr := s.grantResolvedTier(tx, season, input.UserID, tier, models.ClaimTypeRetroactive, input.IdempotencyKey)
			if fnErr != nil {
				return nil, fnErr
			}
			result.Granted = append(result.Granted, *reward)
			out.Audit = append(out.Audit, claimAuditEvent(&ClaimResult{
				SeasonKey: season.Key,
				Tier:      tier,
				ClaimType: models.ClaimTypeRetroactive,
				Reward:    reward,
			}))
		}
		out.Response = result
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}

	if outcome.Replayed {
		replayed := &RetroactiveResult{}
		if err := json.Unmarshal(outcome.Response, replayed); err != nil {
			return nil, false, fmt.Errorf("failed to decode replayed response: %w", err)
		}
		return replayed, true, nil
	}

	for i := range result.Granted {
		metrics.RecordRewardClaim(models.ClaimTypeRetroactive, result.Granted[i].Type)
	}
	return result, false, nil
}

// grantTier is the live-claim path: checks the tier is reached and unclaimed,
// then resolves and grants the reward.
func (s *Service) grantTier(tx *gorm.DB, season *models.Season, userID string, tier int, claimType, idempotencyKey string) (*Reward, error) {
	progress, err := s.progress.WithTx(tx).GetOrCreate(season.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load season progress: %w", err)
	}
	if tier > progress.Tier {
		return nil, errs.Conflict(errs.CodeTierNotReached,
			"tier %d has not been reached, current tier is %d", tier, progress.Tier)
	}

	exists, err := s.claims.WithTx(tx).Exists(season.ID, userID, tier)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing claim: %w", err)
	}
	if exists {
		return nil, errs.Conflict(errs.CodeDuplicateClaim, "tier %d is already claimed", tier)
	}

	return s.grantResolvedTier(tx, season, userID, tier, claimType, idempotencyKey)
}

// grantResolvedTier resolves, applies, and records one tier reward. The
// unique (season, user, tier) index backs up the existence check: a losing
// concurrent insert surfaces as DUPLICATE_CLAIM and rolls everything back.
func (s *Service) grantResolvedTier(tx *gorm.DB, season *models.Season, userID string, tier int, claimType, idempotencyKey string) (*Reward, error) {
	reward, err := s.ResolveReward(tx, season, tier)
	if err != nil {
		return nil, err
	}
	if err := s.applyReward(tx, userID, reward); err != nil {
		return nil, err
	}

	claim := &models.RewardClaim{
		SeasonID:       season.ID,
		UserID:         userID,
		Tier:           tier,
		ClaimType:      claimType,
		RewardType:     reward.Type,
		RewardName:     reward.Name,
		RewardAmount:   reward.Amount,
		IdempotencyKey: idempotencyKey,
	}
	if err := s.claims.WithTx(tx).Create(claim); err != nil {
		if errors.Is(err, repository.ErrClaimExists) {
			return nil, errs.Conflict(errs.CodeDuplicateClaim, "tier %d is already claimed", tier)
		}
		return nil, fmt.Errorf("failed to record claim: %w", err)
	}
	return reward, nil
}

func claimAuditEvent(result *ClaimResult) models.AuditEvent {
	metadata, _ := json.Marshal(map[string]interface{}{
		"season_key":  result.SeasonKey,
		"tier":        result.Tier,
		"claim_type":  result.ClaimType,
		"reward_type": result.Reward.Type,
		"reward_name": result.Reward.Name,
		"amount":      result.Reward.Amount,
	})
	return models.AuditEvent{
		EventType: models.AuditEventRewardClaimed,
		Metadata:  metadata,
	}
}

// BonusInput identifies a weekly-quest bonus currency claim.
type BonusInput struct {
	UserID         string `json:"user_id"`
	QuestCode      string `json:"quest_code"`
	SeasonKey      string `json:"season_key,omitempty"`
	IdempotencyKey string `json:"-"`
	RequestID      string `json:"-"`
}

// BonusResult is the bonus claim response, persisted for replay.
type BonusResult struct {
	SeasonKey string `json:"season_key"`
	QuestCode string `json:"quest_code"`
	Bucket    string `json:"bucket"`
	Currency  string `json:"currency"`
	Amount    int64  `json:"amount"`
}

// ClaimQuestBonus grants a weekly quest's bonus currency once the current
// ISO-week bucket is complete. Each bucket's bonus can be claimed once.
func (s *Service) ClaimQuestBonus(ctx context.Context, input BonusInput) (*BonusResult, bool, error) {
	now := time.Now().UTC()
	if input.UserID == "" {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "user_id is required")
	}
	if input.QuestCode == "" {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "quest_code is required")
	}

	season, err := s.ResolveSeason(input.SeasonKey, now)
	if err != nil {
		return nil, false, err
	}

	quest, err := s.seasons.GetQuestByCode(season.ID, input.QuestCode)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up quest: %w", err)
	}
	if quest == nil {
		return nil, false, errs.NotFound(errs.CodeQuestNotFound, "quest %q does not exist", input.QuestCode)
	}
	if quest.Kind != models.QuestKindWeekly || quest.BonusCurrency <= 0 {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "quest %q has no weekly bonus", input.QuestCode)
	}

	bucket := bucketFor(quest.Kind, now)

	var result *BonusResult
	outcome, err := s.gate.Execute(ctx, idempotency.Request{
		Scope:        "battlepass.quest_bonus",
		Key:          input.IdempotencyKey,
		Payload:      input,
		ActorUserID:  input.UserID,
		TargetUserID: input.UserID,
		EntityType:   "battle_pass_quest",
		EntityID:     quest.Code,
		EventType:    models.AuditEventQuestBonus,
		RequestID:    input.RequestID,
	}, func(tx *gorm.DB) (*idempotency.Outcome, error) {
		quests := s.quests.WithTx(tx)
		completion, fnErr := quests.GetCompletion(quest.ID, input.UserID, bucket)
		if fnErr != nil {
			return nil, fmt.Errorf("failed to load quest completion: %w", fnErr)
		}
		if completion == nil || !completion.XPAwarded {
			return nil, errs.Conflict(errs.CodeWeeklyQuestRequirementNotMet,
				"quest %q is not complete for week %s", quest.Code, bucket)
		}

		claimed, fnErr := quests.MarkBonusClaimed(completion.ID, now)
		if fnErr != nil {
			return nil, fmt.Errorf("failed to mark bonus claimed: %w", fnErr)
		}
		if !claimed {
			return nil, errs.Conflict(errs.CodeDuplicateClaim,
				"bonus for quest %q is already claimed for week %s", quest.Code, bucket)
		}

		if _, fnErr := s.wallets.WithTx(tx).Credit(input.UserID, models.CurrencySeasonCoins, quest.BonusCurrency); fnErr != nil {
			return nil, fmt.Errorf("failed to credit bonus: %w", fnErr)
		}

		result = &BonusResult{
			SeasonKey: season.Key,
			QuestCode: quest.Code,
			Bucket:    bucket,
			Currency:  models.CurrencySeasonCoins,
			Amount:    quest.BonusCurrency,
		}
		metadata, _ := json.Marshal(map[string]interface{}{
			"quest_code": quest.Code,
			"bucket":     bucket,
			"currency":   result.Currency,
			"amount":     result.Amount,
		})
		return &idempotency.Outcome{
			Response: result,
			Audit: []models.AuditEvent{{
				EventType: models.AuditEventQuestBonus,
				Metadata:  metadata,
			}},
		}, nil
	})
	if err != nil {
		return nil, false, err
	}

	if outcome.Replayed {
		replayed := &BonusResult{}
		if err := json.Unmarshal(outcome.Response, replayed); err != nil {
			return nil, false, fmt.Errorf("failed to decode replayed response: %w", err)
		}
		return replayed, true, nil
	}

	metrics.RecordRewardClaim("quest_bonus", RewardTypeCurrency)
	return result, false, nil
}
