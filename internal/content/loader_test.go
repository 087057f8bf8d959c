package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/pkg/logger"
)

const validCatalog = `
seasons:
  - key: season-1
    name: First Light
    xp_per_tier: 1000
    max_base_tier: 100
    max_bonus_tier: 200
    team_daily_cap: 500
    repeatable_reward_amount: 25
    starts_at: 2026-08-01T00:00:00Z
    ends_at: 2026-10-01T00:00:00Z
    quests:
      - code: daily_win
        name: Win a match
        kind: daily
        event_type: match.win
        required_count: 1
        xp_reward: 100
      - code: weekly_wins
        name: Win five matches
        kind: weekly
        event_type: match.win
        required_count: 5
        xp_reward: 400
        bonus_currency: 500
    tier_rewards:
      - tier: 1
        reward_type: currency
        name: Starter Coins
        amount: 50
      - tier: 2
        reward_type: item
        name: Supply Crate
        item_kind: crate
        amount: 1
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "content.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write catalog file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	catalog, err := Load(writeCatalog(t, validCatalog))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(catalog.Seasons) != 1 {
		t.Fatalf("Seasons = %d, want 1", len(catalog.Seasons))
	}
	season := catalog.Seasons[0]
	if season.Key != "season-1" || season.XPPerTier != 1000 {
		t.Errorf("season = %+v", season)
	}
	if len(season.Quests) != 2 {
		t.Errorf("Quests = %d, want 2", len(season.Quests))
	}
	if season.Quests[1].BonusCurrency != 500 {
		t.Errorf("weekly bonus = %d, want 500", season.Quests[1].BonusCurrency)
	}
	if len(season.TierRewards) != 2 {
		t.Errorf("TierRewards = %d, want 2", len(season.TierRewards))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() error = nil for missing file")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantMsg string
	}{
		{
			name:    "missing season key",
			mutate:  func(s string) string { return strings.Replace(s, "key: season-1", "key: \"\"", 1) },
			wantMsg: "key is required",
		},
		{
			name:    "zero xp per tier",
			mutate:  func(s string) string { return strings.Replace(s, "xp_per_tier: 1000", "xp_per_tier: 0", 1) },
			wantMsg: "xp_per_tier",
		},
		{
			name: "window inverted",
			mutate: func(s string) string {
				return strings.Replace(s, "ends_at: 2026-10-01T00:00:00Z", "ends_at: 2026-07-01T00:00:00Z", 1)
			},
			wantMsg: "ends_at",
		},
		{
			name:    "unknown quest kind",
			mutate:  func(s string) string { return strings.Replace(s, "kind: daily", "kind: hourly", 1) },
			wantMsg: "unknown kind",
		},
		{
			name:    "unknown reward type",
			mutate:  func(s string) string { return strings.Replace(s, "reward_type: item", "reward_type: mount", 1) },
			wantMsg: "unknown reward type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeCatalog(t, tt.mutate(validCatalog)))
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %v, want message containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestSeeder_SeedIsAdditive(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Season{}, &models.Quest{}, &models.SeasonTierReward{}); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}
	db := &repository.DB{DB: gdb}
	seasons := repository.NewSeasonRepository(db)
	seeder := NewSeeder(seasons, logger.New("error", "json", "stdout"))

	catalog, err := Load(writeCatalog(t, validCatalog))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Seeding twice must not duplicate rows.
	for i := 0; i < 2; i++ {
		if err := seeder.Seed(catalog); err != nil {
			t.Fatalf("Seed() run %d error = %v", i, err)
		}
	}

	var seasonCount, questCount, rewardCount int64
	gdb.Model(&models.Season{}).Count(&seasonCount)
	gdb.Model(&models.Quest{}).Count(&questCount)
	gdb.Model(&models.SeasonTierReward{}).Count(&rewardCount)
	if seasonCount != 1 || questCount != 2 || rewardCount != 2 {
		t.Errorf("rows = %d seasons %d quests %d rewards, want 1/2/2", seasonCount, questCount, rewardCount)
	}

	season, err := seasons.GetByKey("season-1")
	if err != nil || season == nil {
		t.Fatalf("GetByKey() = %v, %v", season, err)
	}
	quest, err := seasons.GetQuestByCode(season.ID, "weekly_wins")
	if err != nil || quest == nil {
		t.Fatalf("GetQuestByCode() = %v, %v", quest, err)
	}
	if quest.BonusCurrency != 500 {
		t.Errorf("seeded bonus = %d, want 500", quest.BonusCurrency)
	}
}
