package battlepass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/emberplay/economy-core/internal/errs"
	"github.com/emberplay/economy-core/internal/metrics"
	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/internal/service/idempotency"
)

// CreateTeamInput names a new season team.
type CreateTeamInput struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	SeasonKey      string `json:"season_key,omitempty"`
	IdempotencyKey string `json:"-"`
	RequestID      string `json:"-"`
}

// TeamResult describes a team after create or join.
type TeamResult struct {
	TeamID    uint   `json:"team_id"`
	SeasonKey string `json:"season_key"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	TotalXP   int64  `json:"total_xp"`
}

// CreateTeam creates a team and enrolls the creator as its owner. Team names
// are case-sensitively unique per season; a user may belong to one team per
// season.
func (s *Service) CreateTeam(ctx context.Context, input CreateTeamInput) (*TeamResult, bool, error) {
	now := time.Now().UTC()
	if input.UserID == "" {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "user_id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > 64 {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "team name must be 1-64 characters")
	}

	season, err := s.ResolveSeason(input.SeasonKey, now)
	if err != nil {
		return nil, false, err
	}

	var result *TeamResult
	outcome, err := s.gate.Execute(ctx, idempotency.Request{
		Scope:        "battlepass.team_create",
		Key:          input.IdempotencyKey,
		Payload:      input,
		ActorUserID:  input.UserID,
		TargetUserID: input.UserID,
		EntityType:   "battle_pass_team",
		EntityID:     name,
		RequestID:    input.RequestID,
	}, func(tx *gorm.DB) (*idempotency.Outcome, error) {
		teams := s.teams.WithTx(tx)

		membership, fnErr := teams.GetMembership(season.ID, input.UserID)
		if fnErr != nil {
			return nil, fmt.Errorf("failed to check membership: %w", fnErr)
		}
		if membership != nil {
			return nil, errs.Conflict(errs.CodeAlreadyInTeam, "user already belongs to a team this season")
		}

		team := &models.Team{
			SeasonID:    season.ID,
			Name:        name,
			Slug:        slug.Make(name),
			OwnerUserID: input.UserID,
		}
		if fnErr := teams.Create(team); fnErr != nil {
			if errors.Is(fnErr, repository.ErrTeamNameTaken) {
				return nil, errs.Conflict(errs.CodeTeamNameTaken, "team name %q is taken this season", name)
			}
			return nil, fmt.Errorf("failed to create team: %w", fnErr)
		}

		if fnErr := teams.AddMember(&models.TeamMember{
			TeamID:   team.ID,
			SeasonID: season.ID,
			UserID:   input.UserID,
			JoinedAt: now,
		}); fnErr != nil {
			if errors.Is(fnErr, repository.ErrAlreadyInTeam) {
				return nil, errs.Conflict(errs.CodeAlreadyInTeam, "user already belongs to a team this season")
			}
			return nil, fmt.Errorf("failed to enroll owner: %w", fnErr)
		}

		result = &TeamResult{
			TeamID:    team.ID,
			SeasonKey: season.Key,
			Name:      team.Name,
			Slug:      team.Slug,
		}
		return &idempotency.Outcome{Response: result}, nil
	})
	if err != nil {
		return nil, false, err
	}

	if outcome.Replayed {
		replayed := &TeamResult{}
		if err := json.Unmarshal(outcome.Response, replayed); err != nil {
			return nil, false, fmt.Errorf("failed to decode replayed response: %w", err)
		}
		return replayed, true, nil
	}
	return result, false, nil
}

// JoinTeamInput identifies a join request.
type JoinTeamInput struct {
	UserID         string `json:"user_id"`
	TeamID         uint   `json:"team_id"`
	SeasonKey      string `json:"season_key,omitempty"`
	IdempotencyKey string `json:"-"`
	RequestID      string `json:"-"`
}

// JoinTeam enrolls a user into an existing team.
func (s *Service) JoinTeam(ctx context.Context, input JoinTeamInput) (*TeamResult, bool, error) {
	now := time.Now().UTC()
	if input.UserID == "" {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "user_id is required")
	}

	season, err := s.ResolveSeason(input.SeasonKey, now)
	if err != nil {
		return nil, false, err
	}

	var result *TeamResult
	outcome, err := s.gate.Execute(ctx, idempotency.Request{
		Scope:        "battlepass.team_join",
		Key:          input.IdempotencyKey,
		Payload:      input,
		ActorUserID:  input.UserID,
		TargetUserID: input.UserID,
		EntityType:   "battle_pass_team",
		EntityID:     fmt.Sprintf("%d", input.TeamID),
		RequestID:    input.RequestID,
	}, func(tx *gorm.DB) (*idempotency.Outcome, error) {
		teams := s.teams.WithTx(tx)

		team, fnErr := teams.GetByID(input.TeamID)
		if fnErr != nil {
			return nil, fmt.Errorf("failed to look up team: %w", fnErr)
		}
		if team == nil || team.SeasonID != season.ID {
			return nil, errs.NotFound(errs.CodeTeamNotFound, "team %d does not exist this season", input.TeamID)
		}

		if fnErr := teams.AddMember(&models.TeamMember{
			TeamID:   team.ID,
			SeasonID: season.ID,
			UserID:   input.UserID,
			JoinedAt: now,
		}); fnErr != nil {
			if errors.Is(fnErr, repository.ErrAlreadyInTeam) {
				return nil, errs.Conflict(errs.CodeAlreadyInTeam, "user already belongs to a team this season")
			}
			return nil, fmt.Errorf("failed to enroll member: %w", fnErr)
		}

		result = &TeamResult{
			TeamID:    team.ID,
			SeasonKey: season.Key,
			Name:      team.Name,
			Slug:      team.Slug,
			TotalXP:   team.TotalXP,
		}
		return &idempotency.Outcome{Response: result}, nil
	})
	if err != nil {
		return nil, false, err
	}

	if outcome.Replayed {
		replayed := &TeamResult{}
		if err := json.Unmarshal(outcome.Response, replayed); err != nil {
			return nil, false, fmt.Errorf("failed to decode replayed response: %w", err)
		}
		return replayed, true, nil
	}
	return result, false, nil
}

// ContributeInput is one XP donation to the user's team.
type ContributeInput struct {
	UserID         string `json:"user_id"`
	XPAmount       int64  `json:"xp_amount"`
	SeasonKey      string `json:"season_key,omitempty"`
	IdempotencyKey string `json:"-"`
	RequestID      string `json:"-"`
}

// ContributeResult reports the applied amount after daily-cap clamping.
type ContributeResult struct {
	TeamID      uint   `json:"team_id"`
	SeasonKey   string `json:"season_key"`
	Day         string `json:"day"`
	RequestedXP int64  `json:"requested_xp"`
	AppliedXP   int64  `json:"applied_xp"`
	Capped      bool   `json:"capped"`
}

// Contribute donates XP to the user's team, clamped to the remaining daily
// capacity. A partially applied donation succeeds with Capped true; only a
// day whose capacity is already exhausted fails.
func (s *Service) Contribute(ctx context.Context, input ContributeInput) (*ContributeResult, bool, error) {
	now := time.Now().UTC()
	if input.UserID == "" {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "user_id is required")
	}
	if input.XPAmount < 1 {
		return nil, false, errs.Invalid(errs.CodeInvalidArgument, "xp_amount must be positive")
	}

	season, err := s.ResolveSeason(input.SeasonKey, now)
	if err != nil {
		return nil, false, err
	}

	day := dayKey(now)

	var result *ContributeResult
	outcome, err := s.gate.Execute(ctx, idempotency.Request{
		Scope:        "battlepass.team_contribute",
		Key:          input.IdempotencyKey,
		Payload:      input,
		ActorUserID:  input.UserID,
		TargetUserID: input.UserID,
		EntityType:   "battle_pass_team",
		EventType:    models.AuditEventTeamContribution,
		RequestID:    input.RequestID,
	}, func(tx *gorm.DB) (*idempotency.Outcome, error) {
		teams := s.teams.WithTx(tx)

		membership, fnErr := teams.GetMembership(season.ID, input.UserID)
		if fnErr != nil {
			return nil, fmt.Errorf("failed to check membership: %w", fnErr)
		}
		if membership == nil {
			return nil, errs.NotFound(errs.CodeTeamNotFound, "user has no team this season")
		}

		applied, fnErr := teams.ApplyContribution(membership.TeamID, season.ID, input.UserID, day, input.XPAmount, season.TeamDailyCap)
		if errors.Is(fnErr, repository.ErrNoDailyCapacity) {
			return nil, errs.Conflict(errs.CodeDailyTeamContributionCapReached,
				"daily team contribution cap of %d XP is already reached", season.TeamDailyCap)
		}
		if fnErr != nil {
			return nil, fmt.Errorf("failed to apply contribution: %w", fnErr)
		}

		if fnErr := teams.AddTeamXP(membership.TeamID, applied); fnErr != nil {
			return nil, fmt.Errorf("failed to add team XP: %w", fnErr)
		}
		if fnErr := teams.Touch(membership.TeamID, now); fnErr != nil {
			return nil, fmt.Errorf("failed to touch team: %w", fnErr)
		}

		result = &ContributeResult{
			TeamID:      membership.TeamID,
			SeasonKey:   season.Key,
			Day:         day,
			RequestedXP: input.XPAmount,
			AppliedXP:   applied,
			Capped:      applied < input.XPAmount,
		}
		metadata, _ := json.Marshal(map[string]interface{}{
			"team_id":      membership.TeamID,
			"day":          day,
			"requested_xp": input.XPAmount,
			"applied_xp":   applied,
			"capped":       result.Capped,
		})
		return &idempotency.Outcome{
			Response: result,
			Audit: []models.AuditEvent{{
				EntityID:  fmt.Sprintf("%d", membership.TeamID),
				EventType: models.AuditEventTeamContribution,
				Metadata:  metadata,
			}},
		}, nil
	})
	if err != nil {
		return nil, false, err
	}

	if outcome.Replayed {
		replayed := &ContributeResult{}
		if err := json.Unmarshal(outcome.Response, replayed); err != nil {
			return nil, false, fmt.Errorf("failed to decode replayed response: %w", err)
		}
		return replayed, true, nil
	}

	metrics.RecordTeamContribution(result.Capped)
	return result, false, nil
}

// GetTeam returns a team with its roster.
func (s *Service) GetTeam(ctx context.Context, teamID uint) (*models.Team, []models.TeamMember, error) {
	team, err := s.teams.GetByID(teamID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up team: %w", err)
	}
	if team == nil {
		return nil, nil, errs.NotFound(errs.CodeTeamNotFound, "team %d does not exist", teamID)
	}
	members, err := s.teams.GetMembers(teamID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load roster: %w", err)
	}
	return team, members, nil
}
