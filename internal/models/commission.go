package models

import "time"

// CommissionLevel is one row of the level rate table.
type CommissionLevel struct {
	LevelNumber          int     `json:"level_number" yaml:"level_number" validate:"gte=1"`
	CommissionPercentage float64 `json:"commission_percentage" yaml:"commission_percentage" validate:"gte=0,lte=100"`
	Active               bool    `json:"active" yaml:"active"`
}

// CommissionBreakdownEntry is the commission paid to one ancestor for one
// triggering transaction.
type CommissionBreakdownEntry struct {
	Level int `json:"level"`

	// UserID is the ancestor credited at this level.
	UserID string `json:"user_id"`

	// ReferralUser is the member whose transaction triggered the commission.
	ReferralUser string `json:"referral_user"`

	OnAmount             float64   `json:"on_amount"`
	CommissionPercentage float64   `json:"commission_percentage"`
	CommissionAmount     float64   `json:"commission_amount"`
	Timestamp            time.Time `json:"timestamp"`
}

// CommissionSummary totals a breakdown.
type CommissionSummary struct {
	TotalCommission float64 `json:"total_commission"`

	// LevelsEarnedFrom are the sorted distinct levels with a non-zero row.
	LevelsEarnedFrom []int `json:"levels_earned_from"`

	MaxLevelEligible int `json:"max_level_eligible"`
}

// CommissionUserInfo describes the triggering member.
type CommissionUserInfo struct {
	UserID      string `json:"user_id"`
	UplineDepth int    `json:"upline_depth"`
}

// CommissionBreakdown is the full per-transaction payload.
type CommissionBreakdown struct {
	CommissionBreakdown []CommissionBreakdownEntry `json:"commission_breakdown"`
	Summary             CommissionSummary          `json:"summary"`
	UserInfo            CommissionUserInfo         `json:"user_info"`
}
