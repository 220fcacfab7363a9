// Package api defines the referralnet.v1 RPC surface: request and response
// messages, procedure names, and Connect handler and client constructors.
package api

import (
	"github.com/mmynk/referralnet/internal/models"
	"github.com/mmynk/referralnet/internal/rewards"
)

// GetTreeRequest asks for the genealogy below UserID.
type GetTreeRequest struct {
	UserID string `json:"user_id" validate:"required"`

	// MaxDepth overrides the server's depth bound; 0 means unbounded.
	MaxDepth *int `json:"max_depth,omitempty" validate:"omitempty,gte=0"`

	// Mode is "structural" (default) or "statistical".
	Mode models.TraversalMode `json:"mode,omitempty"`
}

// GetBusinessBreakdownRequest asks for the leg business of UserID.
type GetBusinessBreakdownRequest struct {
	UserID string `json:"user_id" validate:"required"`

	// Target caps each leg at its ratio share of Target.
	Target *float64 `json:"target,omitempty" validate:"omitempty,gte=0"`

	MaxDepth *int `json:"max_depth,omitempty" validate:"omitempty,gte=0"`
}

// BusinessBreakdownResponse is the dashboard breakdown plus the root totals.
type BusinessBreakdownResponse struct {
	models.BusinessBreakdown

	UserID            string  `json:"user_id"`
	PersonalBusiness  float64 `json:"personalBusiness"`
	DirectBusiness    float64 `json:"directBusiness"`
	TeamBusiness      float64 `json:"teamBusiness"`
	CappedLegBusiness float64 `json:"cappedLegBusiness"`
	Target            float64 `json:"target"`
	TeamSize          int     `json:"teamSize"`
	ActiveTeamSize    int     `json:"activeTeamSize"`
	DirectReferrals   int     `json:"directReferrals"`
}

type AssignRewardRequest struct {
	UserID          string `json:"user_id" validate:"required"`
	RewardProgramID string `json:"reward_program_id" validate:"required"`
}

type AssignRewardResponse struct {
	Reward  *models.UserReward `json:"reward"`
	Created bool               `json:"created"`
}

type AssignRewardToAllRequest struct {
	RewardProgramID string `json:"reward_program_id" validate:"required"`
}

type AssignRewardToAllResponse = rewards.AssignmentReport

type UserRewardsRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// UserRewardsResponse lists a user's rewards for the dashboard.
type UserRewardsResponse struct {
	Rewards []*models.UserReward `json:"rewards"`
}

type ClaimRewardRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	RewardID string `json:"reward_id" validate:"required"`
}

type ClaimRewardResponse = rewards.ClaimResult

type CleanupExpiredRequest struct{}

type CleanupExpiredResponse struct {
	Expired int `json:"expired"`
}

// GetCommissionBreakdownRequest computes the commission UserID's upline earns
// from a transaction of OnAmount.
type GetCommissionBreakdownRequest struct {
	UserID   string  `json:"user_id" validate:"required"`
	OnAmount float64 `json:"on_amount" validate:"gte=0"`

	// MaxLevels overrides the server default; 0 walks the whole upline.
	MaxLevels *int `json:"max_levels,omitempty" validate:"omitempty,gte=0"`
}

type GetLevelCommissionRequest struct {
	LevelNumber int `json:"level_number" validate:"gte=1"`
}
