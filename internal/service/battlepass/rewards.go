package battlepass

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/emberplay/economy-core/internal/errs"
	"github.com/emberplay/economy-core/internal/models"
)

// Reward types; Type selects which of the remaining fields are meaningful.
const (
	RewardTypeCurrency = "currency"
	RewardTypeTitle    = "title"
	RewardTypeItem     = "item"
)

// Procedural generation constants. These feed a pure function of
// (season, tier), so live and retroactive claims resolve identically.
const (
	mythicItemKind     = "mythic_chest"
	scaledCurrencyBase = 10
)

// Reward is a resolved tier reward. Exactly one variant is populated,
// selected by Type.
type Reward struct {
	Type     string `json:"type"`
	Tier     int    `json:"tier"`
	Name     string `json:"name"`
	Currency string `json:"currency,omitempty"`
	Amount   int64  `json:"amount,omitempty"`
	ItemKind string `json:"item_kind,omitempty"`
}

// ResolveReward resolves the reward for a tier: the authored catalog row when
// one exists, otherwise procedural generation.
func (s *Service) ResolveReward(tx *gorm.DB, season *models.Season, tier int) (*Reward, error) {
	authored, err := s.seasons.WithTx(tx).GetTierReward(season.ID, tier)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tier reward: %w", err)
	}
	if authored != nil {
		return rewardFromCatalog(authored, tier), nil
	}
	return GenerateReward(season, tier)
}

func rewardFromCatalog(row *models.SeasonTierReward, tier int) *Reward {
	reward := &Reward{
		Type: row.RewardType,
		Tier: tier,
		Name: row.Name,
	}
	switch row.RewardType {
	case RewardTypeCurrency:
		reward.Currency = models.CurrencySeasonCoins
		reward.Amount = row.Amount
	case RewardTypeItem:
		reward.ItemKind = row.ItemKind
		reward.Amount = row.Amount
	}
	return reward
}

// GenerateReward procedurally derives a reward for a tier without authored
// content. Deterministic: milestone tiers (every 50th, 25th, 5th) get item,
// title, and scaled currency respectively; the remaining tiers past the
// authored range get scaled currency up to the bonus cap and a flat
// repeatable amount beyond it.
func GenerateReward(season *models.Season, tier int) (*Reward, error) {
	switch {
	case tier > season.MaxBonusTier:
		return &Reward{
			Type:     RewardTypeCurrency,
			Tier:     tier,
			Name:     fmt.Sprintf("Tier %d Repeatable Cache", tier),
			Currency: models.CurrencySeasonCoins,
			Amount:   season.RepeatableRewardAmount,
		}, nil
	case tier%50 == 0:
		return &Reward{
			Type:     RewardTypeItem,
			Tier:     tier,
			Name:     fmt.Sprintf("Mythic Chest %d", tier),
			ItemKind: mythicItemKind,
			Amount:   1,
		}, nil
	case tier%25 == 0:
		return &Reward{
			Type: RewardTypeTitle,
			Tier: tier,
			Name: fmt.Sprintf("%s Vanguard %d", season.Name, tier),
		}, nil
	case tier%5 == 0, tier > season.MaxBaseTier:
		return &Reward{
			Type:     RewardTypeCurrency,
			Tier:     tier,
			Name:     fmt.Sprintf("Tier %d Coin Cache", tier),
			Currency: models.CurrencySeasonCoins,
			Amount:   scaledCurrencyBase * int64(tier),
		}, nil
	default:
		return nil, errs.NotFound(errs.CodeRewardNotConfigured,
			"no reward is configured for tier %d", tier)
	}
}

// applyReward grants a resolved reward to a user inside the claim transaction.
func (s *Service) applyReward(tx *gorm.DB, userID string, reward *Reward) error {
	wallets := s.wallets.WithTx(tx)
	switch reward.Type {
	case RewardTypeCurrency:
		if _, err := wallets.Credit(userID, reward.Currency, reward.Amount); err != nil {
			return fmt.Errorf("failed to credit currency: %w", err)
		}
	case RewardTypeTitle:
		if err := wallets.GrantTitle(userID, reward.Name, "battle_pass"); err != nil {
			return fmt.Errorf("failed to grant title: %w", err)
		}
	case RewardTypeItem:
		if _, err := wallets.AddInventoryItem(userID, reward.ItemKind, reward.Tier, reward.Amount, "battle_pass"); err != nil {
			return fmt.Errorf("failed to add inventory item: %w", err)
		}
	default:
		return fmt.Errorf("unknown reward type %q", reward.Type)
	}
	return nil
}
