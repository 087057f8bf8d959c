// Package content loads the authored season catalog (seasons, quests, tier
// rewards) from YAML and seeds the store. Seeding is additive: existing rows
// are left untouched so a redeploy never rewrites live season configuration.
package content

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/pkg/logger"
)

// Catalog is the root of the authored content file.
type Catalog struct {
	Seasons []SeasonDef `yaml:"seasons"`
}

// SeasonDef is one authored season with its quests and tier rewards.
type SeasonDef struct {
	Key                    string          `yaml:"key"`
	Name                   string          `yaml:"name"`
	XPPerTier              int64           `yaml:"xp_per_tier"`
	MaxBaseTier            int             `yaml:"max_base_tier"`
	MaxBonusTier           int             `yaml:"max_bonus_tier"`
	TeamDailyCap           int64           `yaml:"team_daily_cap"`
	RepeatableRewardAmount int64           `yaml:"repeatable_reward_amount"`
	StartsAt               time.Time       `yaml:"starts_at"`
	EndsAt                 time.Time       `yaml:"ends_at"`
	Quests                 []QuestDef      `yaml:"quests"`
	TierRewards            []TierRewardDef `yaml:"tier_rewards"`
}

// QuestDef is one authored quest definition.
type QuestDef struct {
	Code          string     `yaml:"code"`
	Name          string     `yaml:"name"`
	Kind          string     `yaml:"kind"`
	EventType     string     `yaml:"event_type"`
	RequiredCount int64      `yaml:"required_count"`
	XPReward      int64      `yaml:"xp_reward"`
	BonusCurrency int64      `yaml:"bonus_currency"`
	StartsAt      *time.Time `yaml:"starts_at"`
	EndsAt        *time.Time `yaml:"ends_at"`
}

// TierRewardDef is one authored tier reward row.
type TierRewardDef struct {
	Tier       int    `yaml:"tier"`
	RewardType string `yaml:"reward_type"`
	Name       string `yaml:"name"`
	ItemKind   string `yaml:"item_kind"`
	Amount     int64  `yaml:"amount"`
}

// Load parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content file: %w", err)
	}

	catalog := &Catalog{}
	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("failed to parse content file: %w", err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid content file: %w", err)
	}
	return catalog, nil
}

// Validate checks structural constraints before any row is written.
func (c *Catalog) Validate() error {
	for i := range c.Seasons {
		season := &c.Seasons[i]
		if season.Key == "" {
			return fmt.Errorf("season %d: key is required", i)
		}
		if season.XPPerTier <= 0 {
			return fmt.Errorf("season %q: xp_per_tier must be positive", season.Key)
		}
		if !season.EndsAt.After(season.StartsAt) {
			return fmt.Errorf("season %q: ends_at must be after starts_at", season.Key)
		}
		if season.MaxBonusTier < season.MaxBaseTier {
			return fmt.Errorf("season %q: max_bonus_tier must not be below max_base_tier", season.Key)
		}
		for j := range season.Quests {
			quest := &season.Quests[j]
			if quest.Code == "" {
				return fmt.Errorf("season %q quest %d: code is required", season.Key, j)
			}
			switch quest.Kind {
			case models.QuestKindDaily, models.QuestKindWeekly, models.QuestKindRepeatable:
			default:
				return fmt.Errorf("season %q quest %q: unknown kind %q", season.Key, quest.Code, quest.Kind)
			}
			if quest.EventType == "" || quest.RequiredCount <= 0 {
				return fmt.Errorf("season %q quest %q: event_type and required_count are required", season.Key, quest.Code)
			}
		}
		for j := range season.TierRewards {
			reward := &season.TierRewards[j]
			if reward.Tier < 1 {
				return fmt.Errorf("season %q tier reward %d: tier must be positive", season.Key, j)
			}
			switch reward.RewardType {
			case "currency", "title", "item":
			default:
				return fmt.Errorf("season %q tier %d: unknown reward type %q", season.Key, reward.Tier, reward.RewardType)
			}
		}
	}
	return nil
}

// Seeder writes catalog rows into the store.
type Seeder struct {
	seasons *repository.SeasonRepository
	log     *logger.Logger
}

// NewSeeder creates a content seeder.
func NewSeeder(seasons *repository.SeasonRepository, log *logger.Logger) *Seeder {
	return &Seeder{seasons: seasons, log: log}
}

// Seed inserts every season, quest, and tier reward not already present.
func (s *Seeder) Seed(catalog *Catalog) error {
	for i := range catalog.Seasons {
		def := &catalog.Seasons[i]

		season, err := s.seasons.GetByKey(def.Key)
		if err != nil {
			return fmt.Errorf("failed to look up season %q: %w", def.Key, err)
		}
		if season == nil {
			season = &models.Season{
				Key:                    def.Key,
				Name:                   def.Name,
				XPPerTier:              def.XPPerTier,
				MaxBaseTier:            def.MaxBaseTier,
				MaxBonusTier:           def.MaxBonusTier,
				TeamDailyCap:           def.TeamDailyCap,
				RepeatableRewardAmount: def.RepeatableRewardAmount,
				StartsAt:               def.StartsAt,
				EndsAt:                 def.EndsAt,
			}
			if err := s.seasons.Create(season); err != nil {
				return fmt.Errorf("failed to create season %q: %w", def.Key, err)
			}
			s.log.Info().Str("season", def.Key).Msg("Seeded season")
		}

		for j := range def.Quests {
			if err := s.seedQuest(season, &def.Quests[j]); err != nil {
				return err
			}
		}
		for j := range def.TierRewards {
			if err := s.seedTierReward(season, &def.TierRewards[j]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Seeder) seedQuest(season *models.Season, def *QuestDef) error {
	existing, err := s.seasons.GetQuestByCode(season.ID, def.Code)
	if err != nil {
		return fmt.Errorf("failed to look up quest %q: %w", def.Code, err)
	}
	if existing != nil {
		return nil
	}

	quest := &models.Quest{
		SeasonID:      season.ID,
		Code:          def.Code,
		Name:          def.Name,
		Kind:          def.Kind,
		EventType:     def.EventType,
		RequiredCount: def.RequiredCount,
		XPReward:      def.XPReward,
		BonusCurrency: def.BonusCurrency,
		StartsAt:      def.StartsAt,
		EndsAt:        def.EndsAt,
	}
	if err := s.seasons.CreateQuest(quest); err != nil {
		return fmt.Errorf("failed to create quest %q: %w", def.Code, err)
	}
	s.log.Debug().Str("season", season.Key).Str("quest", def.Code).Msg("Seeded quest")
	return nil
}

func (s *Seeder) seedTierReward(season *models.Season, def *TierRewardDef) error {
	existing, err := s.seasons.GetTierReward(season.ID, def.Tier)
	if err != nil {
		return fmt.Errorf("failed to look up tier reward %d: %w", def.Tier, err)
	}
	if existing != nil {
		return nil
	}

	reward := &models.SeasonTierReward{
		SeasonID:   season.ID,
		Tier:       def.Tier,
		RewardType: def.RewardType,
		Name:       def.Name,
		ItemKind:   def.ItemKind,
		Amount:     def.Amount,
	}
	if err := s.seasons.CreateTierReward(reward); err != nil {
		return fmt.Errorf("failed to create tier reward %d: %w", def.Tier, err)
	}
	s.log.Debug().Str("season", season.Key).Int("tier", def.Tier).Msg("Seeded tier reward")
	return nil
}
