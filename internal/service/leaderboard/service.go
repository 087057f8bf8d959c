// Package leaderboard serves season standings for players and teams.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/emberplay/economy-core/internal/errs"
	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/pkg/logger"
)

// PlayerEntry is one row of the season XP leaderboard.
type PlayerEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	XP     int64  `json:"xp"`
	Tier   int    `json:"tier"`
}

// TeamEntry is one row of the team standings.
type TeamEntry struct {
	Rank    int    `json:"rank"`
	TeamID  uint   `json:"team_id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	TotalXP int64  `json:"total_xp"`
}

// UserStats is the aggregate view of one user's season standing.
type UserStats struct {
	UserID       string                   `json:"user_id"`
	SeasonKey    string                   `json:"season_key"`
	XP           int64                    `json:"xp"`
	Tier         int                      `json:"tier"`
	ClaimedTiers int                      `json:"claimed_tiers"`
	Balances     []models.CurrencyBalance `json:"balances"`
	Titles       []models.UserTitle       `json:"titles"`
}

// Service computes leaderboards out of the progression tables.
type Service struct {
	seasons  *repository.SeasonRepository
	progress *repository.ProgressRepository
	teams    *repository.TeamRepository
	claims   *repository.ClaimRepository
	wallets  *repository.WalletRepository
	log      *logger.Logger
}

// NewService creates a leaderboard service.
func NewService(seasons *repository.SeasonRepository, progress *repository.ProgressRepository, teams *repository.TeamRepository, claims *repository.ClaimRepository, wallets *repository.WalletRepository, log *logger.Logger) *Service {
	return &Service{
		seasons:  seasons,
		progress: progress,
		teams:    teams,
		claims:   claims,
		wallets:  wallets,
		log:      log,
	}
}

func (s *Service) resolveSeason(seasonKey string) (*models.Season, error) {
	now := time.Now().UTC()
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

// TopPlayers returns the highest-XP players for a season.
func (s *Service) TopPlayers(ctx context.Context, seasonKey string, limit int) ([]PlayerEntry, error) {
	season, err := s.resolveSeason(seasonKey)
	if err != nil {
		return nil, err
	}

	rows, err := s.progress.TopBySeason(season.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load player standings: %w", err)
	}

	entries := make([]PlayerEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, PlayerEntry{
			Rank:   i + 1,
			UserID: row.UserID,
			XP:     row.XP,
			Tier:   row.Tier,
		})
	}
	return entries, nil
}

// TopTeams returns the highest-XP teams for a season.
func (s *Service) TopTeams(ctx context.Context, seasonKey string, limit int) ([]TeamEntry, error) {
	season, err := s.resolveSeason(seasonKey)
	if err != nil {
		return nil, err
	}

	rows, err := s.teams.TopBySeason(season.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load team standings: %w", err)
	}

	entries := make([]TeamEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, TeamEntry{
			Rank:    i + 1,
			TeamID:  row.ID,
			Name:    row.Name,
			Slug:    row.Slug,
			TotalXP: row.TotalXP,
		})
	}
	return entries, nil
}

// GetUserStats aggregates one user's season standing, wallet, and titles.
func (s *Service) GetUserStats(ctx context.Context, userID, seasonKey string) (*UserStats, error) {
	if userID == "" {
		return nil, errs.Invalid(errs.CodeInvalidArgument, "user_id is required")
	}

	season, err := s.resolveSeason(seasonKey)
	if err != nil {
		return nil, err
	}

	progress, err := s.progress.Get(season.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	if progress == nil {
		return nil, errs.NotFound(errs.CodeUserNotFound, "user %q has no progress this season", userID)
	}

	claims, err := s.claims.GetByUser(season.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claims: %w", err)
	}

	stats := &UserStats{
		UserID:       userID,
		SeasonKey:    season.Key,
		XP:           progress.XP,
		Tier:         progress.Tier,
		ClaimedTiers: len(claims),
	}

	for _, currency := range []string{models.CurrencySeasonCoins, models.CurrencyGems} {
		balance, err := s.wallets.GetBalance(userID, currency)
		if err != nil {
			return nil, fmt.Errorf("failed to load balance: %w", err)
		}
		stats.Balances = append(stats.Balances, *balance)
	}

	titles, err := s.wallets.GetTitles(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load titles: %w", err)
	}
	stats.Titles = titles

	return stats, nil
}
