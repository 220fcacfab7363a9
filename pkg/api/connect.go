package api

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/referralnet/internal/models"
)

const (
	NetworkServiceName    = "referralnet.v1.NetworkService"
	RewardServiceName     = "referralnet.v1.RewardService"
	CommissionServiceName = "referralnet.v1.CommissionService"
)

// Procedure names, as they appear in the URL path.
const (
	NetworkServiceGetTreeProcedure              = "/referralnet.v1.NetworkService/GetTree"
	NetworkServiceGetBusinessBreakdownProcedure = "/referralnet.v1.NetworkService/GetBusinessBreakdown"

	RewardServiceAssignRewardProcedure      = "/referralnet.v1.RewardService/AssignReward"
	RewardServiceAssignRewardToAllProcedure = "/referralnet.v1.RewardService/AssignRewardToAll"
	RewardServiceRefreshProgressProcedure   = "/referralnet.v1.RewardService/RefreshProgress"
	RewardServiceListUserRewardsProcedure   = "/referralnet.v1.RewardService/ListUserRewards"
	RewardServiceClaimRewardProcedure       = "/referralnet.v1.RewardService/ClaimReward"
	RewardServiceCleanupExpiredProcedure    = "/referralnet.v1.RewardService/CleanupExpired"

	CommissionServiceGetCommissionBreakdownProcedure = "/referralnet.v1.CommissionService/GetCommissionBreakdown"
	CommissionServiceGetLevelCommissionProcedure     = "/referralnet.v1.CommissionService/GetLevelCommission"
)

// NetworkServiceHandler serves genealogy and business views.
type NetworkServiceHandler interface {
	GetTree(context.Context, *connect.Request[GetTreeRequest]) (*connect.Response[models.TreeView], error)
	GetBusinessBreakdown(context.Context, *connect.Request[GetBusinessBreakdownRequest]) (*connect.Response[BusinessBreakdownResponse], error)
}

// RewardServiceHandler serves the reward lifecycle.
type RewardServiceHandler interface {
	AssignReward(context.Context, *connect.Request[AssignRewardRequest]) (*connect.Response[AssignRewardResponse], error)
	AssignRewardToAll(context.Context, *connect.Request[AssignRewardToAllRequest]) (*connect.Response[AssignRewardToAllResponse], error)
	RefreshProgress(context.Context, *connect.Request[UserRewardsRequest]) (*connect.Response[UserRewardsResponse], error)
	ListUserRewards(context.Context, *connect.Request[UserRewardsRequest]) (*connect.Response[UserRewardsResponse], error)
	ClaimReward(context.Context, *connect.Request[ClaimRewardRequest]) (*connect.Response[ClaimRewardResponse], error)
	CleanupExpired(context.Context, *connect.Request[CleanupExpiredRequest]) (*connect.Response[CleanupExpiredResponse], error)
}

// CommissionServiceHandler serves commission breakdowns and the level table.
type CommissionServiceHandler interface {
	GetCommissionBreakdown(context.Context, *connect.Request[GetCommissionBreakdownRequest]) (*connect.Response[models.CommissionBreakdown], error)
	GetLevelCommission(context.Context, *connect.Request[GetLevelCommissionRequest]) (*connect.Response[models.CommissionLevel], error)
}

func handlerOptions(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
}

// route dispatches on the exact procedure path.
func route(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// NewNetworkServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewNetworkServiceHandler(svc NetworkServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return "/" + NetworkServiceName + "/", route(map[string]http.Handler{
		NetworkServiceGetTreeProcedure:              connect.NewUnaryHandler(NetworkServiceGetTreeProcedure, svc.GetTree, opts...),
		NetworkServiceGetBusinessBreakdownProcedure: connect.NewUnaryHandler(NetworkServiceGetBusinessBreakdownProcedure, svc.GetBusinessBreakdown, opts...),
	})
}

// NewRewardServiceHandler builds an HTTP handler from the service implementation.
func NewRewardServiceHandler(svc RewardServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return "/" + RewardServiceName + "/", route(map[string]http.Handler{
		RewardServiceAssignRewardProcedure:      connect.NewUnaryHandler(RewardServiceAssignRewardProcedure, svc.AssignReward, opts...),
		RewardServiceAssignRewardToAllProcedure: connect.NewUnaryHandler(RewardServiceAssignRewardToAllProcedure, svc.AssignRewardToAll, opts...),
		RewardServiceRefreshProgressProcedure:   connect.NewUnaryHandler(RewardServiceRefreshProgressProcedure, svc.RefreshProgress, opts...),
		RewardServiceListUserRewardsProcedure:   connect.NewUnaryHandler(RewardServiceListUserRewardsProcedure, svc.ListUserRewards, opts...),
		RewardServiceClaimRewardProcedure:       connect.NewUnaryHandler(RewardServiceClaimRewardProcedure, svc.ClaimReward, opts...),
		RewardServiceCleanupExpiredProcedure:    connect.NewUnaryHandler(RewardServiceCleanupExpiredProcedure, svc.CleanupExpired, opts...),
	})
}

// NewCommissionServiceHandler builds an HTTP handler from the service implementation.
func NewCommissionServiceHandler(svc CommissionServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return "/" + CommissionServiceName + "/", route(map[string]http.Handler{
		CommissionServiceGetCommissionBreakdownProcedure: connect.NewUnaryHandler(CommissionServiceGetCommissionBreakdownProcedure, svc.GetCommissionBreakdown, opts...),
		CommissionServiceGetLevelCommissionProcedure:     connect.NewUnaryHandler(CommissionServiceGetLevelCommissionProcedure, svc.GetLevelCommission, opts...),
	})
}

// NetworkServiceClient calls NetworkService over Connect with the JSON codec.
type NetworkServiceClient struct {
	getTree              *connect.Client[GetTreeRequest, models.TreeView]
	getBusinessBreakdown *connect.Client[GetBusinessBreakdownRequest, BusinessBreakdownResponse]
}

func NewNetworkServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *NetworkServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &NetworkServiceClient{
		getTree:              connect.NewClient[GetTreeRequest, models.TreeView](httpClient, baseURL+NetworkServiceGetTreeProcedure, opts...),
		getBusinessBreakdown: connect.NewClient[GetBusinessBreakdownRequest, BusinessBreakdownResponse](httpClient, baseURL+NetworkServiceGetBusinessBreakdownProcedure, opts...),
	}
}

func (c *NetworkServiceClient) GetTree(ctx context.Context, req *connect.Request[GetTreeRequest]) (*connect.Response[models.TreeView], error) {
	return c.getTree.CallUnary(ctx, req)
}

func (c *NetworkServiceClient) GetBusinessBreakdown(ctx context.Context, req *connect.Request[GetBusinessBreakdownRequest]) (*connect.Response[BusinessBreakdownResponse], error) {
	return c.getBusinessBreakdown.CallUnary(ctx, req)
}

// RewardServiceClient calls RewardService over Connect with the JSON codec.
type RewardServiceClient struct {
	assignReward      *connect.Client[AssignRewardRequest, AssignRewardResponse]
	assignRewardToAll *connect.Client[AssignRewardToAllRequest, AssignRewardToAllResponse]
	refreshProgress   *connect.Client[UserRewardsRequest, UserRewardsResponse]
	listUserRewards   *connect.Client[UserRewardsRequest, UserRewardsResponse]
	claimReward       *connect.Client[ClaimRewardRequest, ClaimRewardResponse]
	cleanupExpired    *connect.Client[CleanupExpiredRequest, CleanupExpiredResponse]
}

func NewRewardServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *RewardServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &RewardServiceClient{
		assignReward:      connect.NewClient[AssignRewardRequest, AssignRewardResponse](httpClient, baseURL+RewardServiceAssignRewardProcedure, opts...),
		assignRewardToAll: connect.NewClient[AssignRewardToAllRequest, AssignRewardToAllResponse](httpClient, baseURL+RewardServiceAssignRewardToAllProcedure, opts...),
		refreshProgress:   connect.NewClient[UserRewardsRequest, UserRewardsResponse](httpClient, baseURL+RewardServiceRefreshProgressProcedure, opts...),
		listUserRewards:   connect.NewClient[UserRewardsRequest, UserRewardsResponse](httpClient, baseURL+RewardServiceListUserRewardsProcedure, opts...),
		claimReward:       connect.NewClient[ClaimRewardRequest, ClaimRewardResponse](httpClient, baseURL+RewardServiceClaimRewardProcedure, opts...),
		cleanupExpired:    connect.NewClient[CleanupExpiredRequest, CleanupExpiredResponse](httpClient, baseURL+RewardServiceCleanupExpiredProcedure, opts...),
	}
}

func (c *RewardServiceClient) AssignReward(ctx context.Context, req *connect.Request[AssignRewardRequest]) (*connect.Response[AssignRewardResponse], error) {
	return c.assignReward.CallUnary(ctx, req)
}

func (c *RewardServiceClient) AssignRewardToAll(ctx context.Context, req *connect.Request[AssignRewardToAllRequest]) (*connect.Response[AssignRewardToAllResponse], error) {
	return c.assignRewardToAll.CallUnary(ctx, req)
}

func (c *RewardServiceClient) RefreshProgress(ctx context.Context, req *connect.Request[UserRewardsRequest]) (*connect.Response[UserRewardsResponse], error) {
	return c.refreshProgress.CallUnary(ctx, req)
}

func (c *RewardServiceClient) ListUserRewards(ctx context.Context, req *connect.Request[UserRewardsRequest]) (*connect.Response[UserRewardsResponse], error) {
	return c.listUserRewards.CallUnary(ctx, req)
}

func (c *RewardServiceClient) ClaimReward(ctx context.Context, req *connect.Request[ClaimRewardRequest]) (*connect.Response[ClaimRewardResponse], error) {
	return c.claimReward.CallUnary(ctx, req)
}

func (c *RewardServiceClient) CleanupExpired(ctx context.Context, req *connect.Request[CleanupExpiredRequest]) (*connect.Response[CleanupExpiredResponse], error) {
	return c.cleanupExpired.CallUnary(ctx, req)
}

// CommissionServiceClient calls CommissionService over Connect with the JSON codec.
type CommissionServiceClient struct {
	getCommissionBreakdown *connect.Client[GetCommissionBreakdownRequest, models.CommissionBreakdown]
	getLevelCommission     *connect.Client[GetLevelCommissionRequest, models.CommissionLevel]
}

func NewCommissionServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *CommissionServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &CommissionServiceClient{
		getCommissionBreakdown: connect.NewClient[GetCommissionBreakdownRequest, models.CommissionBreakdown](httpClient, baseURL+CommissionServiceGetCommissionBreakdownProcedure, opts...),
		getLevelCommission:     connect.NewClient[GetLevelCommissionRequest, models.CommissionLevel](httpClient, baseURL+CommissionServiceGetLevelCommissionProcedure, opts...),
	}
}

func (c *CommissionServiceClient) GetCommissionBreakdown(ctx context.Context, req *connect.Request[GetCommissionBreakdownRequest]) (*connect.Response[models.CommissionBreakdown], error) {
	return c.getCommissionBreakdown.CallUnary(ctx, req)
}

func (c *CommissionServiceClient) GetLevelCommission(ctx context.Context, req *connect.Request[GetLevelCommissionRequest]) (*connect.Response[models.CommissionLevel], error) {
	return c.getLevelCommission.CallUnary(ctx, req)
}
