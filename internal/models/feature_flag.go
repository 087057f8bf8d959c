package models

import (
	"encoding/json"
	"time"
)

// FeatureFlag is an operator-managed gating rule. Target rules are stored as
// JSON and parsed into FlagRules at evaluation time.
type FeatureFlag struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Key               string          `gorm:"uniqueIndex;size:128;not null" json:"key"`
	Description       string          `gorm:"size:512" json:"description"`
	Enabled           bool            `gorm:"not null;default:false" json:"enabled"`
	RolloutPercentage int             `gorm:"not null;default:0" json:"rollout_percentage"`
	Rules             json.RawMessage `gorm:"type:jsonb" json:"rules"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName specifies the table name for FeatureFlag model.
func (FeatureFlag) TableName() string {
	return "feature_flags"
}

// FlagRules are allow-lists evaluated before the percentage rollout. An empty
// list matches everything; a non-empty list must contain the context value.
type FlagRules struct {
	UserIDs      []string `json:"user_ids,omitempty"`
	Regions      []string `json:"regions,omitempty"`
	Environments []string `json:"environments,omitempty"`
}

// ParseRules decodes the stored rule JSON; a flag without rules yields the
// zero value, which matches everything.
func (f *FeatureFlag) ParseRules() (*FlagRules, error) {
	rules := &FlagRules{}
	if len(f.Rules) == 0 {
		return rules, nil
	}
	if err := json.Unmarshal(f.Rules, rules); err != nil {
		return nil, err
	}
	return rules, nil
}
