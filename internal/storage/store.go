// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/referralnet/internal/models"
)

// ErrNotFound is wrapped by every lookup that finds no row.
var ErrNotFound = errors.New("not found")

// Store defines the storage operations the engine needs.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	// UpsertMembers inserts members or updates sponsor, business and activity
	// of existing ones. Join order is kept from the first insert.
	UpsertMembers(ctx context.Context, members []models.ReferralEdge) error

	// GetMember retrieves one member.
	GetMember(ctx context.Context, userID string) (*models.ReferralEdge, error)

	// ListDownline returns rootID's member row (if any) and every member below
	// it, in join order. Sponsor loops terminate the query instead of repeating.
	ListDownline(ctx context.Context, rootID string) ([]models.ReferralEdge, error)

	// ListUpline returns userID's sponsors nearest first, at most maxLevels
	// of them (maxLevels <= 0 applies a storage-defined cap).
	ListUpline(ctx context.Context, userID string, maxLevels int) ([]string, error)

	// ListMemberIDs returns every member id in join order.
	ListMemberIDs(ctx context.Context) ([]string, error)

	UpsertRewardProgram(ctx context.Context, program *models.RewardProgram) error
	GetRewardProgram(ctx context.Context, id string) (*models.RewardProgram, error)
	ListRewardPrograms(ctx context.Context, activeOnly bool) ([]*models.RewardProgram, error)

	// CreateUserReward inserts the reward unless the (user, program) pair
	// already has one. It reports whether a row was created.
	CreateUserReward(ctx context.Context, reward *models.UserReward) (bool, error)

	GetUserReward(ctx context.Context, id string) (*models.UserReward, error)
	GetUserRewardByProgram(ctx context.Context, userID, programID string) (*models.UserReward, error)
	ListUserRewards(ctx context.Context, userID string) ([]*models.UserReward, error)

	// UpdateRewardProgress records a new achievement percentage on an
	// in-progress reward. It reports whether the row was updated.
	UpdateRewardProgress(ctx context.Context, id string, pct float64, at time.Time) (bool, error)

	// TransitionUserReward moves a reward from one status to another if it is
	// still in from. It reports whether this call made the move.
	TransitionUserReward(ctx context.Context, id string, from, to models.RewardStatus, at time.Time) (bool, error)

	// ClaimUserReward moves a completed, unexpired reward to claimed.
	// Exactly one of any number of concurrent callers gets true.
	ClaimUserReward(ctx context.Context, id string, at time.Time) (bool, error)

	// ExpireUserRewards moves every in-progress or completed reward whose
	// expiry is before now to expired, and returns the moved rows.
	ExpireUserRewards(ctx context.Context, now time.Time) ([]*models.UserReward, error)

	UpsertCommissionLevel(ctx context.Context, level models.CommissionLevel) error
	GetCommissionLevel(ctx context.Context, levelNumber int) (*models.CommissionLevel, error)
	ListCommissionLevels(ctx context.Context, activeOnly bool) ([]models.CommissionLevel, error)

	// Close releases any resources held by the store.
	Close() error
}
