package battlepass

import (
	"testing"

	"github.com/emberplay/economy-core/internal/errs"
	"github.com/emberplay/economy-core/internal/models"
)

func TestGenerateReward(t *testing.T) {
	season := &models.Season{
		Name:                   "First Light",
		MaxBaseTier:            100,
		MaxBonusTier:           200,
		RepeatableRewardAmount: 25,
	}

	tests := []struct {
		tier       int
		wantType   string
		wantAmount int64
		wantName   string
		wantKind   string
	}{
		{tier: 5, wantType: RewardTypeCurrency, wantAmount: 50},
		{tier: 25, wantType: RewardTypeTitle, wantName: "First Light Vanguard 25"},
		{tier: 50, wantType: RewardTypeItem, wantKind: "mythic_chest", wantAmount: 1},
		// Past the authored range every tier pays scaled currency.
		{tier: 103, wantType: RewardTypeCurrency, wantAmount: 1030},
		{tier: 105, wantType: RewardTypeCurrency, wantAmount: 1050},
		// Milestones still outrank the scaled fallback in the bonus range.
		{tier: 150, wantType: RewardTypeItem, wantKind: "mythic_chest", wantAmount: 1},
		{tier: 175, wantType: RewardTypeTitle, wantName: "First Light Vanguard 175"},
		// Beyond the bonus cap everything flattens to the repeatable amount.
		{tier: 201, wantType: RewardTypeCurrency, wantAmount: 25},
		{tier: 250, wantType: RewardTypeCurrency, wantAmount: 25},
	}

	for _, tt := range tests {
		reward, err := GenerateReward(season, tt.tier)
		if err != nil {
			t.Errorf("GenerateReward(%d) error = %v", tt.tier, err)
			continue
		}
		if reward.Type != tt.wantType {
			t.Errorf("GenerateReward(%d).Type = %q, want %q", tt.tier, reward.Type, tt.wantType)
		}
		if reward.Amount != tt.wantAmount {
			t.Errorf("GenerateReward(%d).Amount = %d, want %d", tt.tier, reward.Amount, tt.wantAmount)
		}
		if tt.wantName != "" && reward.Name != tt.wantName {
			t.Errorf("GenerateReward(%d).Name = %q, want %q", tt.tier, reward.Name, tt.wantName)
		}
		if tt.wantKind != "" && reward.ItemKind != tt.wantKind {
			t.Errorf("GenerateReward(%d).ItemKind = %q, want %q", tt.tier, reward.ItemKind, tt.wantKind)
		}
	}
}

func TestGenerateReward_NotConfigured(t *testing.T) {
	season := &models.Season{MaxBaseTier: 100, MaxBonusTier: 200}

	// Non-milestone tiers inside the authored range have no procedural
	// fallback.
	for _, tier := range []int{1, 7, 99} {
		_, err := GenerateReward(season, tier)
		if !errs.HasCode(err, errs.CodeRewardNotConfigured) {
			t.Errorf("GenerateReward(%d) error = %v, want REWARD_NOT_CONFIGURED", tier, err)
		}
	}
}

func TestGenerateReward_Deterministic(t *testing.T) {
	season := &models.Season{Name: "S", MaxBaseTier: 100, MaxBonusTier: 200, RepeatableRewardAmount: 25}

	first, err := GenerateReward(season, 105)
	if err != nil {
		t.Fatalf("GenerateReward() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := GenerateReward(season, 105)
		if err != nil {
			t.Fatalf("GenerateReward() error = %v", err)
		}
		if *again != *first {
			t.Fatalf("GenerateReward() = %+v, want stable %+v", again, first)
		}
	}
}

func TestRewardFromCatalog(t *testing.T) {
	item := rewardFromCatalog(&models.SeasonTierReward{
		RewardType: "item", Name: "Gilded Crate", ItemKind: "crate", Amount: 3,
	}, 12)
	if item.Type != RewardTypeItem || item.ItemKind != "crate" || item.Amount != 3 || item.Tier != 12 {
		t.Errorf("rewardFromCatalog() = %+v", item)
	}

	currency := rewardFromCatalog(&models.SeasonTierReward{
		RewardType: "currency", Name: "Coins", Amount: 75,
	}, 4)
	if currency.Currency != models.CurrencySeasonCoins || currency.Amount != 75 {
		t.Errorf("rewardFromCatalog() = %+v", currency)
	}
}
