package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/pkg/logger"
)

func setupAggregator(t *testing.T) (*Service, *repository.DB) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.AuditEvent{}, &models.DailyEconomyStat{}))

	db := &repository.DB{DB: gdb}
	service := NewService(
		repository.NewAuditRepository(db),
		repository.NewStatsRepository(db),
		logger.New("error", "json", "stdout"),
	)
	return service, db
}

func seedEvent(t *testing.T, db *repository.DB, eventType, targetUser string, at time.Time, metadata map[string]interface{}) {
	raw, err := json.Marshal(metadata)
	require.NoError(t, err)

	event := &models.AuditEvent{
		ID:           uuid.NewString(),
		TargetUserID: targetUser,
		EntityType:   "test",
		EventType:    eventType,
		Metadata:     raw,
		CreatedAt:    at,
	}
	require.NoError(t, db.Create(event).Error)
}

func TestAggregateDaily(t *testing.T) {
	service, db := setupAggregator(t)
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	noon := day.Add(12 * time.Hour)

	// Two ingests: 150 + 200 XP, 1 + 2 quest completions.
	seedEvent(t, db, models.AuditEventXPGranted, "u1", noon, map[string]interface{}{
		"final_xp": 150, "quests": []string{"daily_win"},
	})
	seedEvent(t, db, models.AuditEventXPGranted, "u2", noon, map[string]interface{}{
		"final_xp": 200, "quests": []string{"daily_win", "weekly_wins"},
	})
	// Three claims: one retroactive, one currency, one title. Only the
	// currency claim credits.
	seedEvent(t, db, models.AuditEventRewardClaimed, "u1", noon, map[string]interface{}{
		"claim_type": "standard", "reward_type": "currency", "amount": 50,
	})
	seedEvent(t, db, models.AuditEventRewardClaimed, "u1", noon, map[string]interface{}{
		"claim_type": "retroactive", "reward_type": "title", "amount": 0,
	})
	seedEvent(t, db, models.AuditEventRewardClaimed, "u2", noon, map[string]interface{}{
		"claim_type": "standard", "reward_type": "item", "amount": 1,
	})
	// A weekly bonus and a direct credit both count as credited currency.
	seedEvent(t, db, models.AuditEventQuestBonus, "u1", noon, map[string]interface{}{
		"amount": 500,
	})
	seedEvent(t, db, models.AuditEventCurrencyCredited, "u3", noon, map[string]interface{}{
		"amount": 25,
	})
	// Three contributions from two distinct users.
	for _, user := range []string{"u1", "u1", "u2"} {
		seedEvent(t, db, models.AuditEventTeamContribution, user, noon, map[string]interface{}{
			"applied_xp": 100,
		})
	}
	// An event outside the window must not count.
	seedEvent(t, db, models.AuditEventXPGranted, "u9", day.Add(25*time.Hour), map[string]interface{}{
		"final_xp": 9999, "quests": []string{"daily_win"},
	})

	require.NoError(t, service.AggregateDaily(context.Background(), day))

	stat, err := repository.NewStatsRepository(db).GetByDate(day)
	require.NoError(t, err)
	require.NotNil(t, stat)

	assert.Equal(t, int64(350), stat.XPGranted)
	assert.Equal(t, int64(3), stat.QuestCompletions)
	assert.Equal(t, int64(3), stat.RewardClaims)
	assert.Equal(t, int64(1), stat.RetroactiveClaims)
	// 50 currency claim + 500 weekly bonus + 25 direct credit.
	assert.Equal(t, int64(575), stat.CurrencyCredited)
	assert.Equal(t, int64(3), stat.TeamContributions)
	assert.Equal(t, int64(2), stat.ActiveContributors)
}

func TestAggregateDaily_RerunConverges(t *testing.T) {
	service, db := setupAggregator(t)
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	seedEvent(t, db, models.AuditEventXPGranted, "u1", day.Add(time.Hour), map[string]interface{}{
		"final_xp": 100, "quests": []string{"daily_win"},
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, service.AggregateDaily(context.Background(), day))
	}

	var count int64
	require.NoError(t, db.Model(&models.DailyEconomyStat{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "reruns must upsert a single row")

	stat, err := repository.NewStatsRepository(db).GetByDate(day)
	require.NoError(t, err)
	assert.Equal(t, int64(100), stat.XPGranted, "reruns must not accumulate")
}

func TestAggregateDaily_EmptyDay(t *testing.T) {
	service, db := setupAggregator(t)
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, service.AggregateDaily(context.Background(), day))

	stat, err := repository.NewStatsRepository(db).GetByDate(day)
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Zero(t, stat.XPGranted)
	assert.Zero(t, stat.RewardClaims)
}

func TestGetRange(t *testing.T) {
	service, db := setupAggregator(t)

	for _, day := range []time.Time{
		time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
	} {
		seedEvent(t, db, models.AuditEventXPGranted, "u1", day.Add(time.Hour), map[string]interface{}{
			"final_xp": 100, "quests": []string{"daily_win"},
		})
		require.NoError(t, service.AggregateDaily(context.Background(), day))
	}

	stats, err := service.GetRange(context.Background(),
		time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, stats, 2)
}
