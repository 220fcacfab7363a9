package models

import (
	"fmt"
	"time"
)

// RewardStatus is the state of one (user, reward program) pair.
//
//	NotAssigned -> InProgress -> Completed -> Claimed
//	InProgress | Completed -> Expired
//
// Claimed and Expired are terminal.
type RewardStatus uint8

const (
	RewardNotAssigned RewardStatus = iota
	RewardInProgress
	RewardCompleted
	RewardClaimed
	RewardExpired
)

var rewardStatusNames = [...]string{
	RewardNotAssigned: "not_assigned",
	RewardInProgress:  "in_progress",
	RewardCompleted:   "completed",
	RewardClaimed:     "claimed",
	RewardExpired:     "expired",
}

// rewardTransitions lists the allowed forward moves out of each state.
var rewardTransitions = map[RewardStatus][]RewardStatus{
	RewardNotAssigned: {RewardInProgress},
	RewardInProgress:  {RewardCompleted, RewardExpired},
	RewardCompleted:   {RewardClaimed, RewardExpired},
}

func (s RewardStatus) String() string {
	if int(s) < len(rewardStatusNames) {
		return rewardStatusNames[s]
	}
	return fmt.Sprintf("RewardStatus(%d)", uint8(s))
}

// ParseRewardStatus converts the stored text form back to a status.
func ParseRewardStatus(text string) (RewardStatus, error) {
	for i, name := range rewardStatusNames {
		if name == text {
			return RewardStatus(i), nil
		}
	}
	return RewardNotAssigned, fmt.Errorf("unknown reward status: %q", text)
}

func (s RewardStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(rewardStatusNames) {
		return nil, fmt.Errorf("invalid reward status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *RewardStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseRewardStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Terminal reports whether no further transition is possible.
func (s RewardStatus) Terminal() bool {
	return s == RewardClaimed || s == RewardExpired
}

// CanTransition reports whether moving from s to next is a legal forward step.
func (s RewardStatus) CanTransition(next RewardStatus) bool {
	for _, allowed := range rewardTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RewardProgram is an admin-managed reward definition. The engine only reads it.
type RewardProgram struct {
	ID    string `json:"id" yaml:"id" validate:"required"`
	Title string `json:"title" yaml:"title" validate:"required"`

	// BusinessThreshold is the capped leg business required for completion.
	BusinessThreshold float64 `json:"business_threshold" yaml:"business_threshold" validate:"gte=0"`

	// TeamSizeThreshold and DirectReferralsThreshold are optional; zero means
	// the threshold is not part of the program.
	TeamSizeThreshold        int `json:"team_size_threshold" yaml:"team_size_threshold" validate:"gte=0"`
	DirectReferralsThreshold int `json:"direct_referrals_threshold" yaml:"direct_referrals_threshold" validate:"gte=0"`

	// DurationDays is how long a user has to complete the program once assigned.
	DurationDays int `json:"duration_days" yaml:"duration_days" validate:"gte=0"`

	RewardAmount     float64 `json:"reward_amount,omitempty" yaml:"reward_amount" validate:"gte=0"`
	RewardPercentage float64 `json:"reward_percentage,omitempty" yaml:"reward_percentage" validate:"gte=0,lte=100"`

	// StartDate and EndDate bound when the program can be assigned.
	// A zero value leaves that side open.
	StartDate time.Time `json:"start_date" yaml:"start_date"`
	EndDate   time.Time `json:"end_date" yaml:"end_date"`

	Active bool `json:"active" yaml:"active"`
}

// Available reports whether the program can be assigned at now.
func (p RewardProgram) Available(now time.Time) bool {
	if !p.Active {
		return false
	}
	if !p.StartDate.IsZero() && now.Before(p.StartDate) {
		return false
	}
	if !p.EndDate.IsZero() && now.After(p.EndDate) {
		return false
	}
	return true
}

// ExpiryFrom returns the expiry for an assignment made at now. Programs
// without a duration expire at their end date, or never when that is unset.
func (p RewardProgram) ExpiryFrom(now time.Time) time.Time {
	if p.DurationDays > 0 {
		return now.AddDate(0, 0, p.DurationDays)
	}
	return p.EndDate
}

// UserReward tracks one user's progress on one reward program.
type UserReward struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id"`
	RewardProgramID string       `json:"reward_program_id"`
	Status          RewardStatus `json:"status"`

	// AchievementPercentage is clamped to [0, 100].
	AchievementPercentage float64 `json:"achievement_percentage"`

	RequiredTarget float64 `json:"required_target"`

	// ExpiresAt is zero when the reward never expires.
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// PastExpiry reports whether now is after the reward's expiry.
func (r UserReward) PastExpiry(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
