package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/referralnet/internal/models"
	"github.com/mmynk/referralnet/internal/storage"
)

const rewardColumns = `id, user_id, reward_program_id, status, achievement_percentage, required_target,
	expires_at, created_at, updated_at, claimed_at`

// CreateUserReward persists a new user reward unless the user already holds
// one for the same program.
func (s *SQLiteStore) CreateUserReward(ctx context.Context, r *models.UserReward) (bool, error) {
	// Generate ID if not set
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}

	var claimed interface{}
	if r.ClaimedAt != nil {
		claimed = toUnix(*r.ClaimedAt)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_rewards (`+rewardColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, reward_program_id) DO NOTHING`,
		r.ID, r.UserID, r.RewardProgramID, r.Status.String(), r.AchievementPercentage, r.RequiredTarget,
		toUnix(r.ExpiresAt), toUnix(r.CreatedAt), toUnix(r.UpdatedAt), claimed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert user reward: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return n == 1, nil
}

// GetUserReward retrieves a user reward by ID.
func (s *SQLiteStore) GetUserReward(ctx context.Context, id string) (*models.UserReward, error) {
	r, err := scanReward(s.db.QueryRowContext(ctx,
		"SELECT "+rewardColumns+" FROM user_rewards WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user reward %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user reward: %w", err)
	}

	return r, nil
}

// GetUserRewardByProgram retrieves the reward a user holds for a program.
func (s *SQLiteStore) GetUserRewardByProgram(ctx context.Context, userID, programID string) (*models.UserReward, error) {
	r, err := scanReward(s.db.QueryRowContext(ctx,
		"SELECT "+rewardColumns+" FROM user_rewards WHERE user_id = ? AND reward_program_id = ?",
		userID, programID,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user reward for %s in %s: %w", userID, programID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user reward: %w", err)
	}

	return r, nil
}

// ListUserRewards retrieves all rewards of a user, oldest first.
func (s *SQLiteStore) ListUserRewards(ctx context.Context, userID string) ([]*models.UserReward, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+rewardColumns+" FROM user_rewards WHERE user_id = ? ORDER BY created_at, id",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user rewards: %w", err)
	}

	return collectRewards(rows)
}

// UpdateRewardProgress stores a new achievement percentage on an in-progress reward.
func (s *SQLiteStore) UpdateRewardProgress(ctx context.Context, id string, pct float64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE user_rewards SET achievement_percentage = ?, updated_at = ? WHERE id = ? AND status = ?",
		pct, toUnix(at), id, models.RewardInProgress.String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update reward progress: %w", err)
	}

	return affectedOne(res)
}

// TransitionUserReward performs a compare-and-set on the reward status.
func (s *SQLiteStore) TransitionUserReward(ctx context.Context, id string, from, to models.RewardStatus, at time.Time) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("invalid reward transition %s -> %s", from, to)
	}

	query := "UPDATE user_rewards SET status = ?, updated_at = ?"
	args := []interface{}{to.String(), toUnix(at)}
	if to == models.RewardCompleted {
		query += ", achievement_percentage = 100"
	}
	if to == models.RewardClaimed {
		query += ", claimed_at = ?"
		args = append(args, toUnix(at))
	}
	query += " WHERE id = ? AND status = ?"
	args = append(args, id, from.String())

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition user reward: %w", err)
	}

	return affectedOne(res)
}

// ClaimUserReward moves a completed reward to claimed if it has not expired.
// The status check and the write are one statement, so only one concurrent
// claim can match the row.
func (s *SQLiteStore) ClaimUserReward(ctx context.Context, id string, at time.Time) (bool, error) {
	ts := toUnix(at)
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_rewards SET status = ?, claimed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND (expires_at = 0 OR expires_at >= ?)`,
		models.RewardClaimed.String(), ts, ts, id, models.RewardCompleted.String(), ts,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim user reward: %w", err)
	}

	return affectedOne(res)
}

// ExpireUserRewards marks open rewards past their expiry as expired.
func (s *SQLiteStore) ExpireUserRewards(ctx context.Context, now time.Time) ([]*models.UserReward, error) {
	ts := toUnix(now)
	rows, err := s.db.QueryContext(ctx,
		`UPDATE user_rewards SET status = ?, updated_at = ?
		 WHERE status IN (?, ?) AND expires_at > 0 AND expires_at < ?
		 RETURNING `+rewardColumns,
		models.RewardExpired.String(), ts,
		models.RewardInProgress.String(), models.RewardCompleted.String(), ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to expire user rewards: %w", err)
	}

	return collectRewards(rows)
}

func collectRewards(rows *sql.Rows) ([]*models.UserReward, error) {
	defer rows.Close()

	rewards := []*models.UserReward{}
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user reward: %w", err)
		}
		rewards = append(rewards, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rewards: %w", err)
	}

	return rewards, nil
}

func scanReward(row rowScanner) (*models.UserReward, error) {
	r := &models.UserReward{}
	var status string
	var expires, created, updated int64
	var claimed sql.NullInt64
	if err := row.Scan(&r.ID, &r.UserID, &r.RewardProgramID, &status, &r.AchievementPercentage, &r.RequiredTarget,
		&expires, &created, &updated, &claimed); err != nil {
		return nil, err
	}

	st, err := models.ParseRewardStatus(status)
	if err != nil {
		return nil, err
	}
	r.Status = st
	r.ExpiresAt = fromUnix(expires)
	r.CreatedAt = fromUnix(created)
	r.UpdatedAt = fromUnix(updated)
	if claimed.Valid {
		t := fromUnix(claimed.Int64)
		r.ClaimedAt = &t
	}

	return r, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return n == 1, nil
}
