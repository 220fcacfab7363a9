package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/referralnet/internal/models"
	"github.com/mmynk/referralnet/internal/rewards"
	"github.com/mmynk/referralnet/pkg/api"
)

// RewardService implements the Connect RewardService
type RewardService struct {
	engine *rewards.Engine
}

var _ api.RewardServiceHandler = (*RewardService)(nil)

// NewRewardService creates a new RewardService backed by engine.
func NewRewardService(engine *rewards.Engine) *RewardService {
	return &RewardService{engine: engine}
}

// AssignReward assigns a program to one user. Repeating the call is a no-op.
func (s *RewardService) AssignReward(ctx context.Context, req *connect.Request[api.AssignRewardRequest]) (*connect.Response[api.AssignRewardResponse], error) {
	slog.Info("AssignReward request received", "user_id", req.Msg.UserID, "program_id", req.Msg.RewardProgramID)

	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	reward, created, err := s.engine.Assign(ctx, req.Msg.UserID, req.Msg.RewardProgramID)
	if err != nil {
		slog.Error("AssignReward failed", "user_id", req.Msg.UserID, "program_id", req.Msg.RewardProgramID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.AssignRewardResponse{Reward: reward, Created: created}), nil
}

// AssignRewardToAll assigns a program to every member and reports per-user failures.
func (s *RewardService) AssignRewardToAll(ctx context.Context, req *connect.Request[api.AssignRewardToAllRequest]) (*connect.Response[api.AssignRewardToAllResponse], error) {
	slog.Info("AssignRewardToAll request received", "program_id", req.Msg.RewardProgramID)

	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	report, err := s.engine.AssignToAll(ctx, req.Msg.RewardProgramID)
	if err != nil {
		slog.Error("AssignRewardToAll failed", "program_id", req.Msg.RewardProgramID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&report), nil
}

// RefreshProgress re-evaluates a user's open rewards and returns them.
func (s *RewardService) RefreshProgress(ctx context.Context, req *connect.Request[api.UserRewardsRequest]) (*connect.Response[api.UserRewardsResponse], error) {
	slog.Info("RefreshProgress request received", "user_id", req.Msg.UserID)

	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	list, err := s.engine.RefreshProgress(ctx, req.Msg.UserID)
	if err != nil {
		slog.Error("RefreshProgress failed", "user_id", req.Msg.UserID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.UserRewardsResponse{Rewards: nonNil(list)}), nil
}

// ListUserRewards returns a user's rewards as last stored.
func (s *RewardService) ListUserRewards(ctx context.Context, req *connect.Request[api.UserRewardsRequest]) (*connect.Response[api.UserRewardsResponse], error) {
	slog.Info("ListUserRewards request received", "user_id", req.Msg.UserID)

	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	list, err := s.engine.ListUserRewards(ctx, req.Msg.UserID)
	if err != nil {
		slog.Error("ListUserRewards failed", "user_id", req.Msg.UserID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.UserRewardsResponse{Rewards: nonNil(list)}), nil
}

// ClaimReward claims a completed reward. Unmet preconditions are reported in
// the outcome, not as errors.
func (s *RewardService) ClaimReward(ctx context.Context, req *connect.Request[api.ClaimRewardRequest]) (*connect.Response[api.ClaimRewardResponse], error) {
	slog.Info("ClaimReward request received", "user_id", req.Msg.UserID, "reward_id", req.Msg.RewardID)

	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	result, err := s.engine.Claim(ctx, req.Msg.UserID, req.Msg.RewardID)
	if err != nil {
		slog.Error("ClaimReward failed", "reward_id", req.Msg.RewardID, "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("ClaimReward finished", "reward_id", req.Msg.RewardID, "outcome", result.Outcome)
	return connect.NewResponse(&result), nil
}

// CleanupExpired expires every open reward past its deadline.
func (s *RewardService) CleanupExpired(ctx context.Context, req *connect.Request[api.CleanupExpiredRequest]) (*connect.Response[api.CleanupExpiredResponse], error) {
	slog.Info("CleanupExpired request received")

	n, err := s.engine.CleanupExpired(ctx)
	if err != nil {
		slog.Error("CleanupExpired failed", "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.CleanupExpiredResponse{Expired: n}), nil
}

func nonNil(list []*models.UserReward) []*models.UserReward {
	if list == nil {
		return []*models.UserReward{}
	}
	return list
}
