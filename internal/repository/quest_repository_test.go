package repository

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/emberplay/economy-core/internal/models"
)

func TestQuestRepository_AddProgressAwardsOnce(t *testing.T) {
	db := setupTestDB(t)
	seasons := NewSeasonRepository(db)
	quests := NewQuestRepository(db)
	season := createTestSeason(t, seasons, "s1")
	quest := createTestQuest(t, seasons, season.ID, "win_3", models.QuestKindDaily, "match.win", 3, 100)

	now := time.Now().UTC()
	bucket := "2026-08-31"

	addProgress := func(value int64) (*models.QuestCompletion, bool) {
		var completion *models.QuestCompletion
		var awarded bool
		err := db.DB.Transaction(func(tx *gorm.DB) error {
			var innerErr error
			completion, awarded, innerErr = quests.WithTx(tx).AddProgress(quest, "u1", bucket, value, now)
			return innerErr
		})
		if err != nil {
			t.Fatalf("AddProgress() error = %v", err)
		}
		return completion, awarded
	}

	completion, awarded := addProgress(2)
	if awarded {
		t.Error("AddProgress() awarded at 2/3")
	}
	if completion.Progress != 2 {
		t.Errorf("Progress = %d, want 2", completion.Progress)
	}

	completion, awarded = addProgress(1)
	if !awarded {
		t.Error("AddProgress() did not award when threshold crossed")
	}
	if !completion.XPAwarded {
		t.Error("XPAwarded not set")
	}

	// Further events in the same bucket never award again, and progress
	// stays capped at the requirement.
	completion, awarded = addProgress(5)
	if awarded {
		t.Error("AddProgress() awarded twice for one bucket")
	}
	if completion.Progress != 3 {
		t.Errorf("Progress = %d, want capped at 3", completion.Progress)
	}
}

func TestQuestRepository_BucketsAreIndependent(t *testing.T) {
	db := setupTestDB(t)
	seasons := NewSeasonRepository(db)
	quests := NewQuestRepository(db)
	season := createTestSeason(t, seasons, "s1")
	quest := createTestQuest(t, seasons, season.ID, "win_1", models.QuestKindDaily, "match.win", 1, 50)

	now := time.Now().UTC()
	for _, bucket := range []string{"2026-08-30", "2026-08-31"} {
		var awarded bool
		err := db.DB.Transaction(func(tx *gorm.DB) error {
			var innerErr error
			_, awarded, innerErr = quests.WithTx(tx).AddProgress(quest, "u1", bucket, 1, now)
			return innerErr
		})
		if err != nil {
			t.Fatalf("AddProgress() error = %v", err)
		}
		if !awarded {
			t.Errorf("bucket %s did not award", bucket)
		}
	}
}

func TestQuestRepository_MarkBonusClaimed(t *testing.T) {
	db := setupTestDB(t)
	seasons := NewSeasonRepository(db)
	quests := NewQuestRepository(db)
	season := createTestSeason(t, seasons, "s1")
	quest := createTestQuest(t, seasons, season.ID, "weekly_5", models.QuestKindWeekly, "match.win", 1, 200)

	now := time.Now().UTC()
	var completion *models.QuestCompletion
	err := db.DB.Transaction(func(tx *gorm.DB) error {
		var innerErr error
		completion, _, innerErr = quests.WithTx(tx).AddProgress(quest, "u1", "2026-W36", 1, now)
		return innerErr
	})
	if err != nil {
		t.Fatalf("AddProgress() error = %v", err)
	}

	claimed, err := quests.MarkBonusClaimed(completion.ID, now)
	if err != nil {
		t.Fatalf("MarkBonusClaimed() error = %v", err)
	}
	if !claimed {
		t.Fatal("MarkBonusClaimed() = false on first claim")
	}

	claimed, err = quests.MarkBonusClaimed(completion.ID, now)
	if err != nil {
		t.Fatalf("MarkBonusClaimed() error = %v", err)
	}
	if claimed {
		t.Error("MarkBonusClaimed() = true on second claim, want false")
	}
}

func TestQuestRepository_RecordEvent(t *testing.T) {
	db := setupTestDB(t)
	quests := NewQuestRepository(db)

	event := &models.QuestEvent{
		ID:         "11111111-1111-1111-1111-111111111111",
		UserID:     "u1",
		EventType:  "match.win",
		EventValue: 1,
		OccurredAt: time.Now().UTC(),
	}
	if err := quests.RecordEvent(event); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
}
