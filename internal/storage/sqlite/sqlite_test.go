package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmynk/referralnet/internal/models"
	"github.com/mmynk/referralnet/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	// Create temp directory for test database
	tempDir, err := os.MkdirTemp("", "referralnet-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestMembers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpsertMembers(ctx, []models.ReferralEdge{
		{UserID: "root", PersonalBusiness: 10, Active: true},
		{UserID: "a", ParentID: "root", PersonalBusiness: 100, Active: true},
		{UserID: "b", ParentID: "root", PersonalBusiness: 50},
		{UserID: "a1", ParentID: "a", PersonalBusiness: 25, Active: true},
		{UserID: "a1x", ParentID: "a1", PersonalBusiness: 5},
		{UserID: "other", PersonalBusiness: 1},
	})
	if err != nil {
		t.Fatalf("UpsertMembers failed: %v", err)
	}

	t.Run("ListDownline returns the subtree in join order", func(t *testing.T) {
		edges, err := store.ListDownline(ctx, "a")
		if err != nil {
			t.Fatalf("ListDownline failed: %v", err)
		}
		want := []string{"a", "a1", "a1x"}
		if len(edges) != len(want) {
			t.Fatalf("Expected %d members, got %+v", len(want), edges)
		}
		for i, id := range want {
			if edges[i].UserID != id {
				t.Errorf("edges[%d] = %s, want %s", i, edges[i].UserID, id)
			}
		}
		if edges[0].ParentID != "root" || edges[0].PersonalBusiness != 100 || !edges[0].Active {
			t.Errorf("Unexpected root edge: %+v", edges[0])
		}
	})

	t.Run("ListDownline of unknown root is empty", func(t *testing.T) {
		edges, err := store.ListDownline(ctx, "ghost")
		if err != nil {
			t.Fatalf("ListDownline failed: %v", err)
		}
		if len(edges) != 0 {
			t.Errorf("Expected no members, got %+v", edges)
		}
	})

	t.Run("ListUpline is nearest first and bounded", func(t *testing.T) {
		upline, err := store.ListUpline(ctx, "a1x", 0)
		if err != nil {
			t.Fatalf("ListUpline failed: %v", err)
		}
		if len(upline) != 3 || upline[0] != "a1" || upline[1] != "a" || upline[2] != "root" {
			t.Errorf("Unexpected upline: %v", upline)
		}

		upline, err = store.ListUpline(ctx, "a1x", 2)
		if err != nil {
			t.Fatalf("ListUpline failed: %v", err)
		}
		if len(upline) != 2 || upline[1] != "a" {
			t.Errorf("Unexpected bounded upline: %v", upline)
		}

		upline, err = store.ListUpline(ctx, "root", 0)
		if err != nil {
			t.Fatalf("ListUpline failed: %v", err)
		}
		if upline == nil || len(upline) != 0 {
			t.Errorf("Expected empty, non-nil upline for root, got %v", upline)
		}
	})

	t.Run("Upsert keeps join order and updates fields", func(t *testing.T) {
		if err := store.UpsertMembers(ctx, []models.ReferralEdge{
			{UserID: "a", ParentID: "root", PersonalBusiness: 150, Active: false},
		}); err != nil {
			t.Fatalf("UpsertMembers failed: %v", err)
		}

		m, err := store.GetMember(ctx, "a")
		if err != nil {
			t.Fatalf("GetMember failed: %v", err)
		}
		if m.PersonalBusiness != 150 || m.Active {
			t.Errorf("Member not updated: %+v", m)
		}

		ids, err := store.ListMemberIDs(ctx)
		if err != nil {
			t.Fatalf("ListMemberIDs failed: %v", err)
		}
		if len(ids) != 6 || ids[1] != "a" {
			t.Errorf("Unexpected member order: %v", ids)
		}
	})

	t.Run("GetMember returns ErrNotFound", func(t *testing.T) {
		_, err := store.GetMember(ctx, "ghost")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Sponsor loops terminate", func(t *testing.T) {
		if err := store.UpsertMembers(ctx, []models.ReferralEdge{
			{UserID: "x", ParentID: "y"},
			{UserID: "y", ParentID: "x"},
		}); err != nil {
			t.Fatalf("UpsertMembers failed: %v", err)
		}

		edges, err := store.ListDownline(ctx, "x")
		if err != nil {
			t.Fatalf("ListDownline failed: %v", err)
		}
		if len(edges) != 2 {
			t.Errorf("Expected both loop members once, got %+v", edges)
		}

		upline, err := store.ListUpline(ctx, "x", 0)
		if err != nil {
			t.Fatalf("ListUpline failed: %v", err)
		}
		if len(upline) != maxUplineLevels {
			t.Errorf("Expected the upline to stop at the cap, got %d entries", len(upline))
		}
	})
}

func TestRewardPrograms(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	program := &models.RewardProgram{
		ID:                "gold",
		Title:             "Gold",
		BusinessThreshold: 500,
		TeamSizeThreshold: 3,
		DurationDays:      30,
		RewardAmount:      1000,
		EndDate:           end,
		Active:            true,
	}
	if err := store.UpsertRewardProgram(ctx, program); err != nil {
		t.Fatalf("UpsertRewardProgram failed: %v", err)
	}
	if err := store.UpsertRewardProgram(ctx, &models.RewardProgram{ID: "retired", Title: "Retired"}); err != nil {
		t.Fatalf("UpsertRewardProgram failed: %v", err)
	}

	got, err := store.GetRewardProgram(ctx, "gold")
	if err != nil {
		t.Fatalf("GetRewardProgram failed: %v", err)
	}
	if got.BusinessThreshold != 500 || got.TeamSizeThreshold != 3 || !got.EndDate.Equal(end) || !got.StartDate.IsZero() || !got.Active {
		t.Errorf("Unexpected program: %+v", got)
	}

	active, err := store.ListRewardPrograms(ctx, true)
	if err != nil {
		t.Fatalf("ListRewardPrograms failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "gold" {
		t.Errorf("Expected only gold to be active, got %d programs", len(active))
	}

	all, err := store.ListRewardPrograms(ctx, false)
	if err != nil {
		t.Fatalf("ListRewardPrograms failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 programs, got %d", len(all))
	}

	if _, err := store.GetRewardProgram(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUserRewards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertRewardProgram(ctx, &models.RewardProgram{ID: "gold", Title: "Gold", Active: true}); err != nil {
		t.Fatalf("UpsertRewardProgram failed: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	newReward := func(user string, expires time.Time) *models.UserReward {
		return &models.UserReward{
			UserID:          user,
			RewardProgramID: "gold",
			Status:          models.RewardInProgress,
			RequiredTarget:  500,
			ExpiresAt:       expires,
			CreatedAt:       now,
		}
	}

	t.Run("Create is idempotent per user and program", func(t *testing.T) {
		first := newReward("alice", now.Add(24*time.Hour))
		created, err := store.CreateUserReward(ctx, first)
		if err != nil || !created {
			t.Fatalf("CreateUserReward = %v, %v", created, err)
		}
		if first.ID == "" {
			t.Error("Expected reward ID to be generated")
		}

		created, err = store.CreateUserReward(ctx, newReward("alice", now))
		if err != nil {
			t.Fatalf("CreateUserReward failed: %v", err)
		}
		if created {
			t.Error("Expected second assignment to be a no-op")
		}

		got, err := store.GetUserRewardByProgram(ctx, "alice", "gold")
		if err != nil {
			t.Fatalf("GetUserRewardByProgram failed: %v", err)
		}
		if got.ID != first.ID || !got.ExpiresAt.Equal(first.ExpiresAt) || got.Status != models.RewardInProgress {
			t.Errorf("Unexpected stored reward: %+v", got)
		}
	})

	t.Run("Progress then completion then claim", func(t *testing.T) {
		r := newReward("bob", time.Time{})
		if _, err := store.CreateUserReward(ctx, r); err != nil {
			t.Fatalf("CreateUserReward failed: %v", err)
		}

		ok, err := store.UpdateRewardProgress(ctx, r.ID, 42.5, now)
		if err != nil || !ok {
			t.Fatalf("UpdateRewardProgress = %v, %v", ok, err)
		}

		ok, err = store.TransitionUserReward(ctx, r.ID, models.RewardInProgress, models.RewardCompleted, now)
		if err != nil || !ok {
			t.Fatalf("TransitionUserReward = %v, %v", ok, err)
		}
		ok, err = store.TransitionUserReward(ctx, r.ID, models.RewardInProgress, models.RewardCompleted, now)
		if err != nil || ok {
			t.Errorf("Second transition should not match, got %v, %v", ok, err)
		}

		// Progress no longer applies once completed
		ok, err = store.UpdateRewardProgress(ctx, r.ID, 10, now)
		if err != nil || ok {
			t.Errorf("Progress update on completed reward = %v, %v", ok, err)
		}

		ok, err = store.ClaimUserReward(ctx, r.ID, now)
		if err != nil || !ok {
			t.Fatalf("ClaimUserReward = %v, %v", ok, err)
		}

		got, err := store.GetUserReward(ctx, r.ID)
		if err != nil {
			t.Fatalf("GetUserReward failed: %v", err)
		}
		if got.Status != models.RewardClaimed || got.ClaimedAt == nil || !got.ClaimedAt.Equal(now) || got.AchievementPercentage != 100 {
			t.Errorf("Unexpected claimed reward: %+v", got)
		}
	})

	t.Run("Invalid transition is rejected", func(t *testing.T) {
		if _, err := store.TransitionUserReward(ctx, "any", models.RewardClaimed, models.RewardInProgress, now); err == nil {
			t.Error("Expected error for backward transition")
		}
	})

	t.Run("Concurrent claims succeed once", func(t *testing.T) {
		r := newReward("carol", time.Time{})
		if _, err := store.CreateUserReward(ctx, r); err != nil {
			t.Fatalf("CreateUserReward failed: %v", err)
		}
		if _, err := store.TransitionUserReward(ctx, r.ID, models.RewardInProgress, models.RewardCompleted, now); err != nil {
			t.Fatalf("TransitionUserReward failed: %v", err)
		}

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.ClaimUserReward(ctx, r.ID, now)
				if err != nil {
					t.Errorf("ClaimUserReward failed: %v", err)
					return
				}
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Errorf("Expected exactly one successful claim, got %d", wins.Load())
		}
	})

	t.Run("Expired rewards cannot be claimed and are swept", func(t *testing.T) {
		r := newReward("dave", now.Add(time.Hour))
		if _, err := store.CreateUserReward(ctx, r); err != nil {
			t.Fatalf("CreateUserReward failed: %v", err)
		}
		if _, err := store.TransitionUserReward(ctx, r.ID, models.RewardInProgress, models.RewardCompleted, now); err != nil {
			t.Fatalf("TransitionUserReward failed: %v", err)
		}

		later := now.Add(2 * time.Hour)
		ok, err := store.ClaimUserReward(ctx, r.ID, later)
		if err != nil || ok {
			t.Errorf("Claim after expiry = %v, %v", ok, err)
		}

		expired, err := store.ExpireUserRewards(ctx, later)
		if err != nil {
			t.Fatalf("ExpireUserRewards failed: %v", err)
		}
		// alice's reward runs for another day and is left alone
		if len(expired) != 1 || expired[0].ID != r.ID {
			t.Fatalf("Expected only dave's reward to expire, got %d", len(expired))
		}
		for _, e := range expired {
			if e.Status != models.RewardExpired {
				t.Errorf("Reward %s has status %s", e.ID, e.Status)
			}
		}

		again, err := store.ExpireUserRewards(ctx, later)
		if err != nil {
			t.Fatalf("ExpireUserRewards failed: %v", err)
		}
		if len(again) != 0 {
			t.Errorf("Expected sweep to be idempotent, got %d", len(again))
		}
	})

	t.Run("ListUserRewards", func(t *testing.T) {
		rewards, err := store.ListUserRewards(ctx, "bob")
		if err != nil {
			t.Fatalf("ListUserRewards failed: %v", err)
		}
		if len(rewards) != 1 || rewards[0].UserID != "bob" {
			t.Errorf("Unexpected rewards: %+v", rewards)
		}

		rewards, err = store.ListUserRewards(ctx, "nobody")
		if err != nil {
			t.Fatalf("ListUserRewards failed: %v", err)
		}
		if rewards == nil || len(rewards) != 0 {
			t.Errorf("Expected empty, non-nil list, got %v", rewards)
		}
	})
}

func TestCommissionLevels(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, lvl := range []models.CommissionLevel{
		{LevelNumber: 2, CommissionPercentage: 5, Active: true},
		{LevelNumber: 1, CommissionPercentage: 10, Active: true},
		{LevelNumber: 3, CommissionPercentage: 2, Active: false},
	} {
		if err := store.UpsertCommissionLevel(ctx, lvl); err != nil {
			t.Fatalf("UpsertCommissionLevel failed: %v", err)
		}
	}

	levels, err := store.ListCommissionLevels(ctx, false)
	if err != nil {
		t.Fatalf("ListCommissionLevels failed: %v", err)
	}
	if len(levels) != 3 || levels[0].LevelNumber != 1 || levels[2].Active {
		t.Errorf("Unexpected levels: %+v", levels)
	}

	active, err := store.ListCommissionLevels(ctx, true)
	if err != nil {
		t.Fatalf("ListCommissionLevels failed: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("Expected 2 active levels, got %d", len(active))
	}

	if err := store.UpsertCommissionLevel(ctx, models.CommissionLevel{LevelNumber: 1, CommissionPercentage: 12, Active: true}); err != nil {
		t.Fatalf("UpsertCommissionLevel failed: %v", err)
	}
	lvl, err := store.GetCommissionLevel(ctx, 1)
	if err != nil {
		t.Fatalf("GetCommissionLevel failed: %v", err)
	}
	if lvl.CommissionPercentage != 12 {
		t.Errorf("Expected updated percentage 12, got %v", lvl.CommissionPercentage)
	}

	if _, err := store.GetCommissionLevel(ctx, 9); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
