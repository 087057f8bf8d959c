// Package analytics provides daily batch aggregation of the audit ledger
// into economy-wide rollup rows.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/pkg/logger"
)

// Service aggregates audit events into daily economy stats.
type Service struct {
	auditRepo *repository.AuditRepository
	statsRepo *repository.StatsRepository
	log       *logger.Logger
}

// NewService creates a new analytics service.
func NewService(auditRepo *repository.AuditRepository, statsRepo *repository.StatsRepository, log *logger.Logger) *Service {
	return &Service{
		auditRepo: auditRepo,
		statsRepo: statsRepo,
		log:       log,
	}
}

// AggregateDaily rolls up one day's audit events. Re-running for the same day
// overwrites the previous rollup, so late or repeated runs converge on the
// same numbers.
func (s *Service) AggregateDaily(ctx context.Context, date time.Time) error {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := startOfDay.Add(24 * time.Hour)

	s.log.Info().
		Time("date", startOfDay).
		Msg("Starting daily economy aggregation")

	events, err := s.auditRepo.GetByDateRange(startOfDay, endOfDay)
	if err != nil {
		return fmt.Errorf("failed to load audit events: %w", err)
	}

	stat := &models.DailyEconomyStat{Date: startOfDay}
	contributors := make(map[string]bool)

	for i := range events {
		event := &events[i]
		switch event.EventType {
		case models.AuditEventXPGranted:
			stat.XPGranted += metadataInt(event.Metadata, "final_xp")
			stat.QuestCompletions += metadataLen(event.Metadata, "quests")
		case models.AuditEventRewardClaimed:
			stat.RewardClaims++
			if metadataString(event.Metadata, "claim_type") == models.ClaimTypeRetroactive {
				stat.RetroactiveClaims++
			}
			stat.CurrencyCredited += metadataCurrency(event.Metadata)
		case models.AuditEventQuestBonus:
			stat.CurrencyCredited += metadataInt(event.Metadata, "amount")
		case models.AuditEventTeamContribution:
			stat.TeamContributions++
			if event.TargetUserID != "" {
				contributors[event.TargetUserID] = true
			}
		case models.AuditEventCurrencyCredited:
			stat.CurrencyCredited += metadataInt(event.Metadata, "amount")
		}
	}
	stat.ActiveContributors = int64(len(contributors))

	if err := s.statsRepo.Upsert(stat); err != nil {
		return fmt.Errorf("failed to upsert daily stat: %w", err)
	}

	s.log.Info().
		Time("date", startOfDay).
		Int("event_count", len(events)).
		Int64("xp_granted", stat.XPGranted).
		Int64("reward_claims", stat.RewardClaims).
		Msg("Daily economy aggregation complete")
	return nil
}

// GetRange returns rollup rows for a date range.
func (s *Service) GetRange(ctx context.Context, start, end time.Time) ([]models.DailyEconomyStat, error) {
	return s.statsRepo.GetRange(start, end)
}

func metadataInt(raw json.RawMessage, field string) int64 {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return 0
	}
	var v int64
	if err := json.Unmarshal(m[field], &v); err != nil {
		return 0
	}
	return v
}

func metadataString(raw json.RawMessage, field string) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	var v string
	if err := json.Unmarshal(m[field], &v); err != nil {
		return ""
	}
	return v
}

func metadataLen(raw json.RawMessage, field string) int64 {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return 0
	}
	var list []json.RawMessage
	if err := json.Unmarshal(m[field], &list); err != nil {
		return 0
	}
	return int64(len(list))
}

// metadataCurrency counts a claim's amount only when the reward was currency.
func metadataCurrency(raw json.RawMessage) int64 {
	if metadataString(raw, "reward_type") != "currency" {
		return 0
	}
	return metadataInt(raw, "amount")
}
