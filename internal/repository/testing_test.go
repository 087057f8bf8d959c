package repository

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/emberplay/economy-core/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing. TranslateError
// is on so unique violations surface as gorm.ErrDuplicatedKey, same as the
// postgres configuration.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(
		&models.IdempotencyRecord{},
		&models.AuditEvent{},
		&models.Season{},
		&models.Quest{},
		&models.SeasonTierReward{},
		&models.UserProgress{},
		&models.QuestCompletion{},
		&models.QuestEvent{},
		&models.XPBooster{},
		&models.Team{},
		&models.TeamMember{},
		&models.TeamDailyContribution{},
		&models.RewardClaim{},
		&models.CurrencyBalance{},
		&models.InventoryItem{},
		&models.UserTitle{},
		&models.FeatureFlag{},
		&models.DailyEconomyStat{},
	)
	if err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &DB{db}
}

// createTestSeason creates an active season spanning yesterday to 30 days out.
func createTestSeason(t *testing.T, repo *SeasonRepository, key string) *models.Season {
	t.Helper()

	now := time.Now().UTC()
	season := &models.Season{
		Key:                    key,
		Name:                   "Test Season",
		XPPerTier:              1000,
		MaxBaseTier:            100,
		MaxBonusTier:           200,
		TeamDailyCap:           500,
		RepeatableRewardAmount: 25,
		StartsAt:               now.Add(-24 * time.Hour),
		EndsAt:                 now.Add(30 * 24 * time.Hour),
	}
	if err := repo.Create(season); err != nil {
		t.Fatalf("Failed to create test season: %v", err)
	}
	return season
}

// createTestQuest creates a quest bound to an event type.
func createTestQuest(t *testing.T, repo *SeasonRepository, seasonID uint, code, kind, eventType string, required, xp int64) *models.Quest {
	t.Helper()

	quest := &models.Quest{
		SeasonID:      seasonID,
		Code:          code,
		Name:          code,
		Kind:          kind,
		EventType:     eventType,
		RequiredCount: required,
		XPReward:      xp,
	}
	if err := repo.CreateQuest(quest); err != nil {
		t.Fatalf("Failed to create test quest: %v", err)
	}
	return quest
}
