package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/referralnet/internal/calculator"
	"github.com/mmynk/referralnet/internal/metrics"
	"github.com/mmynk/referralnet/internal/models"
	"github.com/mmynk/referralnet/internal/storage"
	"github.com/mmynk/referralnet/pkg/api"
)

// NetworkConfig holds the server-side defaults for tree requests.
type NetworkConfig struct {
	MaxDepth    int
	TreeTimeout time.Duration
	Ratio       models.RatioConfig
}

// NetworkService implements the Connect NetworkService
type NetworkService struct {
	store   storage.Store
	cfg     NetworkConfig
	metrics *metrics.Metrics
}

var _ api.NetworkServiceHandler = (*NetworkService)(nil)

// NewNetworkService creates a new NetworkService with the given storage backend.
func NewNetworkService(store storage.Store, cfg NetworkConfig, m *metrics.Metrics) *NetworkService {
	return &NetworkService{store: store, cfg: cfg, metrics: m}
}

// buildTree loads userID's downline and builds it under the configured deadline.
func (s *NetworkService) buildTree(ctx context.Context, userID string, maxDepth *int, mode models.TraversalMode) (*calculator.Tree, error) {
	depth := s.cfg.MaxDepth
	if maxDepth != nil {
		depth = *maxDepth
	}
	if mode == "" {
		mode = models.TraversalStructural
	}
	if !mode.Valid() {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown traversal mode %q", mode))
	}

	if s.cfg.TreeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TreeTimeout)
		defer cancel()
	}

	edges, err := s.store.ListDownline(ctx, userID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if len(edges) == 0 {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("user %s not found", userID))
	}

	start := time.Now()
	tree, err := calculator.BuildTree(ctx, edges, userID, depth, mode)
	if err != nil {
		return nil, toConnectError(err)
	}
	s.metrics.ObserveTree(string(mode), tree.Len(), time.Since(start))

	return tree, nil
}

// GetTree returns the nested genealogy view below a user.
func (s *NetworkService) GetTree(ctx context.Context, req *connect.Request[api.GetTreeRequest]) (*connect.Response[models.TreeView], error) {
	slog.Info("GetTree request received", "user_id", req.Msg.UserID, "mode", req.Msg.Mode)

	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	tree, err := s.buildTree(ctx, req.Msg.UserID, req.Msg.MaxDepth, req.Msg.Mode)
	if err != nil {
		slog.Error("GetTree failed", "user_id", req.Msg.UserID, "error", err)
		return nil, err
	}

	slog.Debug("Tree built", "user_id", req.Msg.UserID, "nodes", tree.Len(), "beyond_depth", tree.BeyondDepth)
	view := tree.Nested()
	return connect.NewResponse(&view), nil
}

// GetBusinessBreakdown returns the leg business of a user under the plan's ratio config.
func (s *NetworkService) GetBusinessBreakdown(ctx context.Context, req *connect.Request[api.GetBusinessBreakdownRequest]) (*connect.Response[api.BusinessBreakdownResponse], error) {
	slog.Info("GetBusinessBreakdown request received", "user_id", req.Msg.UserID)

	if err := validateRequest(req.Msg); err != nil {
		return nil, err
	}

	tree, err := s.buildTree(ctx, req.Msg.UserID, req.Msg.MaxDepth, models.TraversalStructural)
	if err != nil {
		slog.Error("GetBusinessBreakdown failed", "user_id", req.Msg.UserID, "error", err)
		return nil, err
	}

	snapshot, err := calculator.Aggregate(tree, s.cfg.Ratio)
	if err != nil {
		slog.Error("GetBusinessBreakdown failed", "user_id", req.Msg.UserID, "error", err)
		return nil, toConnectError(err)
	}
	if req.Msg.Target != nil {
		snapshot = calculator.ApplyTarget(snapshot, *req.Msg.Target)
	}

	return connect.NewResponse(&api.BusinessBreakdownResponse{
		BusinessBreakdown: snapshot.Breakdown(),
		UserID:            snapshot.RootID,
		PersonalBusiness:  snapshot.PersonalBusiness,
		DirectBusiness:    snapshot.DirectBusiness,
		TeamBusiness:      snapshot.TeamBusiness,
		CappedLegBusiness: snapshot.CappedLegBusiness,
		Target:            snapshot.Target,
		TeamSize:          snapshot.TeamSize,
		ActiveTeamSize:    snapshot.ActiveTeamSize,
		DirectReferrals:   snapshot.DirectReferrals,
	}), nil
}
