package service

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/referralnet/internal/events"
	"github.com/mmynk/referralnet/internal/metrics"
	"github.com/mmynk/referralnet/internal/models"
	"github.com/mmynk/referralnet/internal/rewards"
	"github.com/mmynk/referralnet/internal/storage/sqlite"
	"github.com/mmynk/referralnet/pkg/api"
)

type testClients struct {
	network    *api.NetworkServiceClient
	reward     *api.RewardServiceClient
	commission *api.CommissionServiceClient
	store      *sqlite.SQLiteStore
}

// setupTestServer serves all three services over a seeded database:
//
//	root(30) -> a(301) -> a1(100)
//	         -> b(200)
func setupTestServer(t *testing.T) *testClients {
	t.Helper()

	// Create temp database
	tmpFile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	store, err := sqlite.New(tmpFile.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.UpsertMembers(ctx, []models.ReferralEdge{
		{UserID: "root", PersonalBusiness: 30, Active: true},
		{UserID: "a", ParentID: "root", PersonalBusiness: 301, Active: true},
		{UserID: "a1", ParentID: "a", PersonalBusiness: 100, Active: true},
		{UserID: "b", ParentID: "root", PersonalBusiness: 200, Active: false},
	}); err != nil {
		t.Fatalf("failed to seed members: %v", err)
	}
	for _, p := range []*models.RewardProgram{
		{ID: "gold", Title: "Gold", BusinessThreshold: 500, DurationDays: 30, RewardAmount: 1000, Active: true},
		{ID: "off", Title: "Switched off", BusinessThreshold: 10},
	} {
		if err := store.UpsertRewardProgram(ctx, p); err != nil {
			t.Fatalf("failed to seed program: %v", err)
		}
	}
	for _, lvl := range []models.CommissionLevel{
		{LevelNumber: 1, CommissionPercentage: 10, Active: true},
		{LevelNumber: 2, CommissionPercentage: 5, Active: true},
		{LevelNumber: 3, CommissionPercentage: 1, Active: false},
	} {
		if err := store.UpsertCommissionLevel(ctx, lvl); err != nil {
			t.Fatalf("failed to seed level: %v", err)
		}
	}

	ratio := models.RatioConfig{Mode: models.DistributionFixed, Ratios: []float64{50, 50}}
	m := metrics.New()
	publisher := events.NewLoggingPublisher(nil)
	engine := rewards.NewEngine(store, rewards.Config{Ratio: ratio}, rewards.WithPublisher(publisher), rewards.WithMetrics(m))

	networkPath, networkHandler := api.NewNetworkServiceHandler(NewNetworkService(store, NetworkConfig{
		TreeTimeout: 5 * time.Second,
		Ratio:       ratio,
	}, m))
	rewardPath, rewardHandler := api.NewRewardServiceHandler(NewRewardService(engine))
	commissionPath, commissionHandler := api.NewCommissionServiceHandler(NewCommissionService(store, 10, publisher, m))

	mux := http.NewServeMux()
	mux.Handle(networkPath, networkHandler)
	mux.Handle(rewardPath, rewardHandler)
	mux.Handle(commissionPath, commissionHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testClients{
		network:    api.NewNetworkServiceClient(http.DefaultClient, server.URL),
		reward:     api.NewRewardServiceClient(http.DefaultClient, server.URL),
		commission: api.NewCommissionServiceClient(http.DefaultClient, server.URL),
		store:      store,
	}
}

func assertCode(t *testing.T, err error, want connect.Code) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %v error, got nil", want)
	}
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected connect error, got %T: %v", err, err)
	}
	if connectErr.Code() != want {
		t.Errorf("expected %v, got %v: %v", want, connectErr.Code(), connectErr.Message())
	}
}

func TestGetTree(t *testing.T) {
	c := setupTestServer(t)

	resp, err := c.network.GetTree(context.Background(), connect.NewRequest(&api.GetTreeRequest{UserID: "root"}))
	if err != nil {
		t.Fatalf("GetTree failed: %v", err)
	}

	root := resp.Msg.Tree
	if root == nil || root.ID != "root" {
		t.Fatalf("expected root node, got %+v", root)
	}
	if len(root.Children) != 2 || root.Children[0].ID != "a" || root.Children[1].ID != "b" {
		t.Fatalf("expected children [a b] in join order, got %+v", root.Children)
	}
	if root.TotalTeamSize != 3 || root.ActiveTeamSize != 2 || root.DirectReferrals != 2 {
		t.Errorf("unexpected root stats: %+v", root)
	}
	if len(root.Children[0].Children) != 1 || root.Children[0].Children[0].ID != "a1" {
		t.Errorf("expected a1 under a, got %+v", root.Children[0].Children)
	}
}

func TestGetTree_MaxDepth(t *testing.T) {
	c := setupTestServer(t)
	depth := 1

	resp, err := c.network.GetTree(context.Background(), connect.NewRequest(&api.GetTreeRequest{
		UserID:   "root",
		MaxDepth: &depth,
	}))
	if err != nil {
		t.Fatalf("GetTree failed: %v", err)
	}
	if resp.Msg.MaxDepth != 1 {
		t.Errorf("expected maxDepth 1, got %d", resp.Msg.MaxDepth)
	}
	for _, child := range resp.Msg.Tree.Children {
		if len(child.Children) != 0 {
			t.Errorf("node %s should have no children past depth 1", child.ID)
		}
	}
}

func TestGetTree_Errors(t *testing.T) {
	c := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *api.GetTreeRequest
		want connect.Code
	}{
		{"missing user id", &api.GetTreeRequest{}, connect.CodeInvalidArgument},
		{"unknown user", &api.GetTreeRequest{UserID: "ghost"}, connect.CodeNotFound},
		{"unknown mode", &api.GetTreeRequest{UserID: "root", Mode: "sideways"}, connect.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.network.GetTree(ctx, connect.NewRequest(tt.req))
			assertCode(t, err, tt.want)
		})
	}
}

func TestGetBusinessBreakdown(t *testing.T) {
	c := setupTestServer(t)
	target := 500.0

	resp, err := c.network.GetBusinessBreakdown(context.Background(), connect.NewRequest(&api.GetBusinessBreakdownRequest{
		UserID: "root",
		Target: &target,
	}))
	if err != nil {
		t.Fatalf("GetBusinessBreakdown failed: %v", err)
	}

	msg := resp.Msg
	if len(msg.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(msg.Legs))
	}
	if msg.Legs[0].Business != 401 || msg.Legs[1].Business != 200 {
		t.Errorf("unexpected leg business: %v, %v", msg.Legs[0].Business, msg.Legs[1].Business)
	}
	if msg.Legs[0].WeightedBusiness != 250 || msg.Legs[1].WeightedBusiness != 200 {
		t.Errorf("unexpected weighted business: %v, %v", msg.Legs[0].WeightedBusiness, msg.Legs[1].WeightedBusiness)
	}
	if msg.TotalLegBusiness != 601 || msg.CappedLegBusiness != 450 {
		t.Errorf("total = %v, capped = %v, want 601 and 450", msg.TotalLegBusiness, msg.CappedLegBusiness)
	}
	if msg.TeamBusiness != 631 || msg.PersonalBusiness != 30 {
		t.Errorf("team = %v, personal = %v, want 631 and 30", msg.TeamBusiness, msg.PersonalBusiness)
	}
	if msg.DistributionMode != models.DistributionFixed || len(msg.Ratios) != 2 {
		t.Errorf("unexpected distribution: %v %v", msg.DistributionMode, msg.Ratios)
	}
}

func TestAssignReward(t *testing.T) {
	c := setupTestServer(t)
	ctx := context.Background()

	resp, err := c.reward.AssignReward(ctx, connect.NewRequest(&api.AssignRewardRequest{UserID: "root", RewardProgramID: "gold"}))
	if err != nil {
		t.Fatalf("AssignReward failed: %v", err)
	}
	if !resp.Msg.Created || resp.Msg.Reward.Status != models.RewardInProgress {
		t.Errorf("expected a new in-progress reward, got %+v", resp.Msg)
	}
	if resp.Msg.Reward.RequiredTarget != 500 {
		t.Errorf("required target = %v, want 500", resp.Msg.Reward.RequiredTarget)
	}

	again, err := c.reward.AssignReward(ctx, connect.NewRequest(&api.AssignRewardRequest{UserID: "root", RewardProgramID: "gold"}))
	if err != nil {
		t.Fatalf("second AssignReward failed: %v", err)
	}
	if again.Msg.Created || again.Msg.Reward.ID != resp.Msg.Reward.ID {
		t.Errorf("expected the existing reward back, got %+v", again.Msg)
	}
}

func TestAssignReward_Errors(t *testing.T) {
	c := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *api.AssignRewardRequest
		want connect.Code
	}{
		{"missing program", &api.AssignRewardRequest{UserID: "root"}, connect.CodeInvalidArgument},
		{"unknown program", &api.AssignRewardRequest{UserID: "root", RewardProgramID: "platinum"}, connect.CodeNotFound},
		{"inactive program", &api.AssignRewardRequest{UserID: "root", RewardProgramID: "off"}, connect.CodeFailedPrecondition},
		{"unknown user", &api.AssignRewardRequest{UserID: "ghost", RewardProgramID: "gold"}, connect.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.reward.AssignReward(ctx, connect.NewRequest(tt.req))
			assertCode(t, err, tt.want)
		})
	}
}

func TestAssignRewardToAll(t *testing.T) {
	c := setupTestServer(t)
	ctx := context.Background()

	if _, err := c.reward.AssignReward(ctx, connect.NewRequest(&api.AssignRewardRequest{UserID: "a", RewardProgramID: "gold"})); err != nil {
		t.Fatalf("AssignReward failed: %v", err)
	}

	resp, err := c.reward.AssignRewardToAll(ctx, connect.NewRequest(&api.AssignRewardToAllRequest{RewardProgramID: "gold"}))
	if err != nil {
		t.Fatalf("AssignRewardToAll failed: %v", err)
	}
	if resp.Msg.Total != 4 || resp.Msg.Assigned != 3 || resp.Msg.AlreadyAssigned != 1 || len(resp.Msg.Failures) != 0 {
		t.Errorf("unexpected report: %+v", resp.Msg)
	}

	_, err = c.reward.AssignRewardToAll(ctx, connect.NewRequest(&api.AssignRewardToAllRequest{RewardProgramID: "off"}))
	assertCode(t, err, connect.CodeFailedPrecondition)
}

func TestRewardLifecycle(t *testing.T) {
	c := setupTestServer(t)
	ctx := context.Background()

	assigned, err := c.reward.AssignReward(ctx, connect.NewRequest(&api.AssignRewardRequest{UserID: "root", RewardProgramID: "gold"}))
	if err != nil {
		t.Fatalf("AssignReward failed: %v", err)
	}
	rewardID := assigned.Msg.Reward.ID

	t.Run("claim before completion is not eligible", func(t *testing.T) {
		resp, err := c.reward.ClaimReward(ctx, connect.NewRequest(&api.ClaimRewardRequest{UserID: "root", RewardID: rewardID}))
		if err != nil {
			t.Fatalf("ClaimReward failed: %v", err)
		}
		if resp.Msg.Outcome != rewards.ClaimNotEligible {
			t.Errorf("outcome = %s, want %s", resp.Msg.Outcome, rewards.ClaimNotEligible)
		}
	})

	t.Run("refresh reports partial progress", func(t *testing.T) {
		resp, err := c.reward.RefreshProgress(ctx, connect.NewRequest(&api.UserRewardsRequest{UserID: "root"}))
		if err != nil {
			t.Fatalf("RefreshProgress failed: %v", err)
		}
		if len(resp.Msg.Rewards) != 1 {
			t.Fatalf("expected 1 reward, got %d", len(resp.Msg.Rewards))
		}
		if got := resp.Msg.Rewards[0].AchievementPercentage; math.Abs(got-90) > 0.01 {
			t.Errorf("achievement = %v, want 90", got)
		}
	})

	t.Run("refresh completes once the short leg grows", func(t *testing.T) {
		if err := c.store.UpsertMembers(ctx, []models.ReferralEdge{
			{UserID: "b", ParentID: "root", PersonalBusiness: 260, Active: true},
		}); err != nil {
			t.Fatalf("UpsertMembers failed: %v", err)
		}
		resp, err := c.reward.RefreshProgress(ctx, connect.NewRequest(&api.UserRewardsRequest{UserID: "root"}))
		if err != nil {
			t.Fatalf("RefreshProgress failed: %v", err)
		}
		got := resp.Msg.Rewards[0]
		if got.Status != models.RewardCompleted || got.AchievementPercentage != 100 {
			t.Errorf("expected completed at 100%%, got %s at %v", got.Status, got.AchievementPercentage)
		}
	})

	t.Run("claim by another user is not found", func(t *testing.T) {
		resp, err := c.reward.ClaimReward(ctx, connect.NewRequest(&api.ClaimRewardRequest{UserID: "a", RewardID: rewardID}))
		if err != nil {
			t.Fatalf("ClaimReward failed: %v", err)
		}
		if resp.Msg.Outcome != rewards.ClaimNotFound {
			t.Errorf("outcome = %s, want %s", resp.Msg.Outcome, rewards.ClaimNotFound)
		}
	})

	t.Run("claim succeeds once", func(t *testing.T) {
		resp, err := c.reward.ClaimReward(ctx, connect.NewRequest(&api.ClaimRewardRequest{UserID: "root", RewardID: rewardID}))
		if err != nil {
			t.Fatalf("ClaimReward failed: %v", err)
		}
		if resp.Msg.Outcome != rewards.ClaimSucceeded || resp.Msg.Reward == nil || resp.Msg.Reward.ClaimedAt == nil {
			t.Errorf("expected a claimed reward, got %+v", resp.Msg)
		}

		again, err := c.reward.ClaimReward(ctx, connect.NewRequest(&api.ClaimRewardRequest{UserID: "root", RewardID: rewardID}))
		if err != nil {
			t.Fatalf("second ClaimReward failed: %v", err)
		}
		if again.Msg.Outcome != rewards.ClaimAlreadyClaimed {
			t.Errorf("outcome = %s, want %s", again.Msg.Outcome, rewards.ClaimAlreadyClaimed)
		}
	})

	t.Run("list shows the claimed reward", func(t *testing.T) {
		resp, err := c.reward.ListUserRewards(ctx, connect.NewRequest(&api.UserRewardsRequest{UserID: "root"}))
		if err != nil {
			t.Fatalf("ListUserRewards failed: %v", err)
		}
		if len(resp.Msg.Rewards) != 1 || resp.Msg.Rewards[0].Status != models.RewardClaimed {
			t.Errorf("unexpected rewards: %+v", resp.Msg.Rewards)
		}
	})
}

func TestListUserRewards_Empty(t *testing.T) {
	c := setupTestServer(t)

	resp, err := c.reward.ListUserRewards(context.Background(), connect.NewRequest(&api.UserRewardsRequest{UserID: "b"}))
	if err != nil {
		t.Fatalf("ListUserRewards failed: %v", err)
	}
	if resp.Msg.Rewards == nil || len(resp.Msg.Rewards) != 0 {
		t.Errorf("expected an empty list, got %v", resp.Msg.Rewards)
	}
}

func TestCleanupExpired_NothingDue(t *testing.T) {
	c := setupTestServer(t)
	ctx := context.Background()

	if _, err := c.reward.AssignReward(ctx, connect.NewRequest(&api.AssignRewardRequest{UserID: "root", RewardProgramID: "gold"})); err != nil {
		t.Fatalf("AssignReward failed: %v", err)
	}

	resp, err := c.reward.CleanupExpired(ctx, connect.NewRequest(&api.CleanupExpiredRequest{}))
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if resp.Msg.Expired != 0 {
		t.Errorf("expected nothing expired, got %d", resp.Msg.Expired)
	}
}

func TestGetCommissionBreakdown(t *testing.T) {
	c := setupTestServer(t)

	resp, err := c.commission.GetCommissionBreakdown(context.Background(), connect.NewRequest(&api.GetCommissionBreakdownRequest{
		UserID:   "a1",
		OnAmount: 200,
	}))
	if err != nil {
		t.Fatalf("GetCommissionBreakdown failed: %v", err)
	}

	rows := resp.Msg.CommissionBreakdown
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %+v", rows)
	}
	if rows[0].UserID != "a" || rows[0].CommissionAmount != 20 {
		t.Errorf("level 1 row = %+v", rows[0])
	}
	if rows[1].UserID != "root" || rows[1].CommissionAmount != 10 {
		t.Errorf("level 2 row = %+v", rows[1])
	}
	if resp.Msg.Summary.TotalCommission != 30 || resp.Msg.UserInfo.UplineDepth != 2 {
		t.Errorf("unexpected summary %+v / %+v", resp.Msg.Summary, resp.Msg.UserInfo)
	}
}

func TestGetCommissionBreakdown_MaxLevels(t *testing.T) {
	c := setupTestServer(t)
	levels := 1

	resp, err := c.commission.GetCommissionBreakdown(context.Background(), connect.NewRequest(&api.GetCommissionBreakdownRequest{
		UserID:    "a1",
		OnAmount:  200,
		MaxLevels: &levels,
	}))
	if err != nil {
		t.Fatalf("GetCommissionBreakdown failed: %v", err)
	}
	if len(resp.Msg.CommissionBreakdown) != 1 || resp.Msg.Summary.TotalCommission != 20 {
		t.Errorf("expected only level 1, got %+v", resp.Msg)
	}
}

func TestGetCommissionBreakdown_Errors(t *testing.T) {
	c := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *api.GetCommissionBreakdownRequest
		want connect.Code
	}{
		{"negative amount", &api.GetCommissionBreakdownRequest{UserID: "a1", OnAmount: -5}, connect.CodeInvalidArgument},
		{"unknown user", &api.GetCommissionBreakdownRequest{UserID: "ghost", OnAmount: 10}, connect.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.commission.GetCommissionBreakdown(ctx, connect.NewRequest(tt.req))
			assertCode(t, err, tt.want)
		})
	}
}

func TestGetLevelCommission(t *testing.T) {
	c := setupTestServer(t)
	ctx := context.Background()

	resp, err := c.commission.GetLevelCommission(ctx, connect.NewRequest(&api.GetLevelCommissionRequest{LevelNumber: 2}))
	if err != nil {
		t.Fatalf("GetLevelCommission failed: %v", err)
	}
	if resp.Msg.CommissionPercentage != 5 {
		t.Errorf("level 2 percentage = %v, want 5", resp.Msg.CommissionPercentage)
	}

	_, err = c.commission.GetLevelCommission(ctx, connect.NewRequest(&api.GetLevelCommissionRequest{LevelNumber: 3}))
	assertCode(t, err, connect.CodeNotFound)

	_, err = c.commission.GetLevelCommission(ctx, connect.NewRequest(&api.GetLevelCommissionRequest{LevelNumber: 0}))
	assertCode(t, err, connect.CodeInvalidArgument)
}

func TestToConnectError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want connect.Code
	}{
		{"program not found", rewards.ErrProgramNotFound, connect.CodeNotFound},
		{"program inactive", rewards.ErrProgramInactive, connect.CodeFailedPrecondition},
		{"deadline", context.DeadlineExceeded, connect.CodeDeadlineExceeded},
		{"other", errors.New("boom"), connect.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toConnectError(tt.err).Code(); got != tt.want {
				t.Errorf("code = %v, want %v", got, tt.want)
			}
		})
	}
}
