package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/referralnet/internal/calculator"
	"github.com/mmynk/referralnet/internal/events"
	"github.com/mmynk/referralnet/internal/metrics"
	"github.com/mmynk/referralnet/internal/models"
	"github.com/mmynk/referralnet/internal/storage"
	"github.com/mmynk/referralnet/pkg/api"
)

// CommissionService implements the Connect CommissionService
type CommissionService struct {
	store     storage.Store
	maxLevels int
	publisher events.Publisher
	metrics   *metrics.Metrics
	nowFn     func() time.Time
}

var _ api.CommissionServiceHandler = (*CommissionService)(nil)

// NewCommissionService creates a CommissionService. maxLevels is used when a
// request does not set its own bound.
func NewCommissionService(store storage.Store, maxLevels int, publisher events.Publisher, m *metrics.Metrics) *CommissionService {
	if publisher == nil {
		publisher = events.NewLoggingPublisher(nil)
	}
	return &CommissionService{
		store:     store,
		maxLevels: maxLevels,
		publisher: publisher,
		metrics:   m,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// GetCommissionBreakdown computes what each upline level earns from one transaction.
func (s *CommissionService) GetCommissionBreakdown(ctx context.Context, req *connect.Request[api.GetCommissionBreakdownRequest]) (*connect.Response[models.CommissionBreakdown], error) {
	slog.Info("GetCommissionBreakdown request received",
		"user_id", req.Msg.UserID,
		"on_amount", req.Msg.OnAmount,
	)

	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	maxLevels := s.maxLevels
	if req.Msg.MaxLevels != nil {
		maxLevels = *req.Msg.MaxLevels
	}

	if _, err := s.store.GetMember(ctx, req.Msg.UserID); err != nil {
		slog.Error("GetCommissionBreakdown failed", "user_id", req.Msg.UserID, "error", err)
		return nil, toConnectError(err)
	}

	upline, err := s.store.ListUpline(ctx, req.Msg.UserID, maxLevels)
	if err != nil {
		slog.Error("GetCommissionBreakdown failed", "user_id", req.Msg.UserID, "error", err)
		return nil, toConnectError(err)
	}

	levels, err := s.store.ListCommissionLevels(ctx, true)
	if err != nil {
		slog.Error("GetCommissionBreakdown failed", "user_id", req.Msg.UserID, "error", err)
		return nil, toConnectError(err)
	}

	now := s.nowFn()
	breakdown, err := calculator.ComputeBreakdown(req.Msg.UserID, req.Msg.OnAmount, levels, upline, maxLevels, now)
	if err != nil {
		slog.Error("GetCommissionBreakdown failed", "user_id", req.Msg.UserID, "error", err)
		return nil, toConnectError(err)
	}

	s.metrics.Commission(breakdown.Summary.TotalCommission)
	payload := events.CommissionPayload{
		UserID:          req.Msg.UserID,
		OnAmount:        req.Msg.OnAmount,
		TotalCommission: breakdown.Summary.TotalCommission,
		Levels:          breakdown.Summary.LevelsEarnedFrom,
	}
	if err := events.Emit(ctx, s.publisher, events.CommissionComputed, req.Msg.UserID, payload, now); err != nil {
		slog.Warn("Failed to publish commission event", "user_id", req.Msg.UserID, "error", err)
	}

	slog.Debug("Commission computed",
		"user_id", req.Msg.UserID,
		"total", breakdown.Summary.TotalCommission,
		"levels", breakdown.Summary.LevelsEarnedFrom,
	)
	return connect.NewResponse(&breakdown), nil
}

// GetLevelCommission returns the active commission rate for one level.
func (s *CommissionService) GetLevelCommission(ctx context.Context, req *connect.Request[api.GetLevelCommissionRequest]) (*connect.Response[models.CommissionLevel], error) {
	slog.Info("GetLevelCommission request received", "level_number", req.Msg.LevelNumber)

	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	levels, err := s.store.ListCommissionLevels(ctx, true)
	if err != nil {
		slog.Error("GetLevelCommission failed", "level_number", req.Msg.LevelNumber, "error", err)
		return nil, toConnectError(err)
	}

	level, ok := calculator.LevelCommission(levels, req.Msg.LevelNumber)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("no active commission level %d", req.Msg.LevelNumber))
	}

	return connect.NewResponse(&level), nil
}
