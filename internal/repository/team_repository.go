package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberplay/economy-core/internal/models"
)

// Sentinel errors translated by the service layer into stable codes.
var (
	ErrTeamNameTaken   = errors.New("team name already taken in season")
	ErrAlreadyInTeam   = errors.New("user already belongs to a team this season")
	ErrNoDailyCapacity = errors.New("daily contribution capacity exhausted")
)

// TeamRepository handles teams, membership, and capped daily contributions.
type TeamRepository struct {
	db *gorm.DB
}

// NewTeamRepository creates a new team repository.
func NewTeamRepository(db *DB) *TeamRepository {
	return &TeamRepository{db: db.DB}
}

// WithTx returns a repository bound to the given transaction.
func (r *TeamRepository) WithTx(tx *gorm.DB) *TeamRepository {
	return &TeamRepository{db: tx}
}

// Create inserts a team; the (season, name) unique index resolves naming
// races case-sensitively.
func (r *TeamRepository) Create(team *models.Team) error {
	err := r.db.Create(team).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrTeamNameTaken
	}
	return err
}

// GetByID retrieves a team, or nil when unknown.
func (r *TeamRepository) GetByID(id uint) (*models.Team, error) {
	var team models.Team
	err := r.db.First(&team, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// GetByName retrieves a team by exact name within a season, or nil.
func (r *TeamRepository) GetByName(seasonID uint, name string) (*models.Team, error) {
	var team models.Team
	err := r.db.Where("season_id = ? AND name = ?", seasonID, name).First(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// AddMember enrolls a user; the (season, user) unique index enforces
// exclusive membership.
func (r *TeamRepository) AddMember(member *models.TeamMember) error {
	err := r.db.Create(member).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyInTeam
	}
	return err
}

// GetMembership retrieves the user's membership for a season, or nil.
func (r *TeamRepository) GetMembership(seasonID uint, userID string) (*models.TeamMember, error) {
	var member models.TeamMember
	err := r.db.Where("season_id = ? AND user_id = ?", seasonID, userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetMembers returns a team's roster.
func (r *TeamRepository) GetMembers(teamID uint) ([]models.TeamMember, error) {
	var members []models.TeamMember
	err := r.db.Where("team_id = ?", teamID).Order("joined_at ASC").Find(&members).Error
	return members, err
}

// ApplyContribution applies up to amount XP to the user's daily contribution
// row, clamped so the day's total never exceeds dailyCap. The row is created on
// first use and locked for the read-modify-write, so two simultaneous
// contributions cannot both see the same remaining capacity. Must run inside
// a transaction. Returns the applied amount; ErrNoDailyCapacity when the cap
// was already reached.
func (r *TeamRepository) ApplyContribution(teamID, seasonID uint, userID, day string, amount, dailyCap int64) (int64, error) {
	var row models.TeamDailyContribution
	err := r.db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("season_id = ? AND user_id = ? AND day = ?", seasonID, userID, day).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.TeamDailyContribution{
			TeamID:   teamID,
			SeasonID: seasonID,
			UserID:   userID,
			Day:      day,
		}
		if err := r.db.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				if err := r.db.
					Clauses(clause.Locking{Strength: "UPDATE"}).
					Where("season_id = ? AND user_id = ? AND day = ?", seasonID, userID, day).
					First(&row).Error; err != nil {
					return 0, err
				}
			} else {
				return 0, err
			}
		}
	} else if err != nil {
		return 0, err
	}

	remaining := dailyCap - row.XP
	if remaining <= 0 {
		return 0, ErrNoDailyCapacity
	}

	applied := amount
	if applied > remaining {
		applied = remaining
	}

	row.XP += applied
	if err := r.db.Save(&row).Error; err != nil {
		return 0, err
	}
	return applied, nil
}

// AddTeamXP increments the team's running total.
func (r *TeamRepository) AddTeamXP(teamID uint, xp int64) error {
	return r.db.Model(&models.Team{}).
		Where("id = ?", teamID).
		Update("total_xp", gorm.Expr("total_xp + ?", xp)).Error
}

// GetContribution retrieves the user's contribution row for a day, or nil.
func (r *TeamRepository) GetContribution(seasonID uint, userID, day string) (*models.TeamDailyContribution, error) {
	var row models.TeamDailyContribution
	err := r.db.Where("season_id = ? AND user_id = ? AND day = ?", seasonID, userID, day).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// TopBySeason returns the highest-XP teams for a season.
func (r *TeamRepository) TopBySeason(seasonID uint, limit int) ([]models.Team, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var teams []models.Team
	err := r.db.
		Where("season_id = ?", seasonID).
		Order("total_xp DESC").
		Limit(limit).
		Find(&teams).Error
	return teams, err
}

// Touch updates the team's UpdatedAt; used after contribution writes so
// standings reads can order ties stably.
func (r *TeamRepository) Touch(teamID uint, at time.Time) error {
	return r.db.Model(&models.Team{}).
		Where("id = ?", teamID).
		Update("updated_at", at).Error
}
