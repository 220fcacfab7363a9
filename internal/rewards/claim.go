package rewards

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmynk/referralnet/internal/events"
	"github.com/mmynk/referralnet/internal/models"
	"github.com/mmynk/referralnet/internal/storage"
)

// ClaimResult reports a claim attempt and the reward as it stands afterwards.
type ClaimResult struct {
	Outcome ClaimOutcome       `json:"outcome"`
	Reward  *models.UserReward `json:"reward,omitempty"`
}

// Claim pays out a completed reward. Precondition failures are reported in the
// result; the error is only set for storage failures.
//
// Concurrent claims of the same reward are decided by a single conditional
// update, so exactly one caller sees ClaimSucceeded.
func (e *Engine) Claim(ctx context.Context, userID, rewardID string) (ClaimResult, error) {
	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, rewardID)
		if err != nil {
			slog.Warn("Claim lock unavailable", "reward_id", rewardID, "error", err)
			return ClaimResult{Outcome: ClaimBusy}, nil
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("Failed to release claim lock", "reward_id", rewardID, "error", err)
			}
		}()
	}

	reward, err := e.store.GetUserReward(ctx, rewardID)
	if errors.Is(err, storage.ErrNotFound) {
		return ClaimResult{Outcome: ClaimNotFound}, nil
	}
	if err != nil {
		return ClaimResult{}, err
	}
	if reward.UserID != userID {
		return ClaimResult{Outcome: ClaimNotFound}, nil
	}

	now := e.nowFn()
	if outcome, done := e.precheck(ctx, reward); done {
		return ClaimResult{Outcome: outcome, Reward: reward}, nil
	}

	ok, err := e.store.ClaimUserReward(ctx, reward.ID, now)
	if err != nil {
		return ClaimResult{}, err
	}

	current, err := e.store.GetUserReward(ctx, reward.ID)
	if err != nil {
		return ClaimResult{}, err
	}
	if !ok {
		// Lost a race; report what the winner left behind.
		outcome, done := e.precheck(ctx, current)
		if !done {
			outcome = ClaimNotEligible
		}
		return ClaimResult{Outcome: outcome, Reward: current}, nil
	}

	slog.Info("Reward claimed", "user_id", userID, "reward_id", reward.ID)
	e.transitioned(ctx, events.RewardClaimed, current)
	return ClaimResult{Outcome: ClaimSucceeded, Reward: current}, nil
}

// precheck decides outcomes that do not need a write other than expiry.
// done is false only for a completed, unexpired reward.
func (e *Engine) precheck(ctx context.Context, r *models.UserReward) (ClaimOutcome, bool) {
	switch r.Status {
	case models.RewardClaimed:
		return ClaimAlreadyClaimed, true
	case models.RewardExpired:
		return ClaimExpired, true
	}

	now := e.nowFn()
	if r.PastExpiry(now) {
		if err := e.expire(ctx, r, now); err != nil {
			slog.Warn("Failed to expire reward", "reward_id", r.ID, "error", err)
		}
		return ClaimExpired, true
	}
	if r.Status != models.RewardCompleted {
		return ClaimNotEligible, true
	}
	return "", false
}
