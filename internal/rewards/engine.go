// Package rewards runs the reward lifecycle: assignment, progress tracking,
// completion, claiming and expiry.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/referralnet/internal/calculator"
	"github.com/mmynk/referralnet/internal/events"
	"github.com/mmynk/referralnet/internal/metrics"
	"github.com/mmynk/referralnet/internal/models"
	"github.com/mmynk/referralnet/internal/storage"
)

// DefaultFanOut is the number of concurrent workers used by bulk operations.
const DefaultFanOut = 8

// ClaimLocker serializes claims of one reward across service instances.
// Any error from Lock is reported as ClaimBusy.
type ClaimLocker interface {
	Lock(ctx context.Context, rewardID string) (func(context.Context) error, error)
}

// Config controls how progress is measured.
type Config struct {
	// MaxDepth bounds the tree built for progress; <= 0 is unbounded.
	MaxDepth int

	// Mode is the traversal mode; empty means statistical, so members below
	// MaxDepth still count toward team size thresholds.
	Mode models.TraversalMode

	// Ratio is the leg distribution used to cap business.
	Ratio models.RatioConfig

	// FanOut is the worker count for AssignToAll and RefreshAll.
	FanOut int
}

// Engine drives user rewards through their lifecycle.
// It is safe for concurrent use.
type Engine struct {
	store     storage.Store
	cfg       Config
	locker    ClaimLocker
	publisher events.Publisher
	metrics   *metrics.Metrics
	nowFn     func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLocker enables cross-instance claim locking.
func WithLocker(l ClaimLocker) Option { return func(e *Engine) { e.locker = l } }

// WithPublisher sets the domain event publisher.
func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.publisher = p } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.nowFn = now } }

// NewEngine creates an Engine over store.
func NewEngine(store storage.Store, cfg Config, opts ...Option) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = models.TraversalStatistical
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = DefaultFanOut
	}
	e := &Engine{
		store:     store,
		cfg:       cfg,
		publisher: events.NewLoggingPublisher(nil),
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assign gives userID the program. Assigning twice returns the existing reward
// with created=false.
func (e *Engine) Assign(ctx context.Context, userID, programID string) (*models.UserReward, bool, error) {
	program, err := e.availableProgram(ctx, programID)
	if err != nil {
		return nil, false, err
	}
	return e.assign(ctx, userID, program)
}

func (e *Engine) assign(ctx context.Context, userID string, program *models.RewardProgram) (*models.UserReward, bool, error) {
	if _, err := e.store.GetMember(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, false, err
	}

	now := e.nowFn()
	reward := &models.UserReward{
		UserID:          userID,
		RewardProgramID: program.ID,
		Status:          models.RewardInProgress,
		RequiredTarget:  program.BusinessThreshold,
		ExpiresAt:       program.ExpiryFrom(now),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := e.store.CreateUserReward(ctx, reward)
	if err != nil {
		return nil, false, fmt.Errorf("failed to assign reward: %w", err)
	}
	if !created {
		existing, err := e.store.GetUserRewardByProgram(ctx, userID, program.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load existing reward: %w", err)
		}
		return existing, false, nil
	}

	slog.Info("Reward assigned", "user_id", userID, "program_id", program.ID, "reward_id", reward.ID)
	e.transitioned(ctx, events.RewardAssigned, reward)
	return reward, true, nil
}

func (e *Engine) availableProgram(ctx context.Context, programID string) (*models.RewardProgram, error) {
	program, err := e.store.GetRewardProgram(ctx, programID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, programID)
		}
		return nil, err
	}
	if !program.Available(e.nowFn()) {
		return nil, fmt.Errorf("%w: %s", ErrProgramInactive, programID)
	}
	return program, nil
}

// ListUserRewards returns the user's rewards, oldest first.
func (e *Engine) ListUserRewards(ctx context.Context, userID string) ([]*models.UserReward, error) {
	return e.store.ListUserRewards(ctx, userID)
}

// Snapshot builds userID's downline and aggregates its business.
func (e *Engine) Snapshot(ctx context.Context, userID string) (models.BusinessSnapshot, error) {
	edges, err := e.store.ListDownline(ctx, userID)
	if err != nil {
		return models.BusinessSnapshot{}, err
	}

	start := time.Now()
	tree, err := calculator.BuildTree(ctx, edges, userID, e.cfg.MaxDepth, e.cfg.Mode)
	if err != nil {
		return models.BusinessSnapshot{}, err
	}
	e.metrics.ObserveTree(string(tree.Mode), tree.Len(), time.Since(start))

	return calculator.Aggregate(tree, e.cfg.Ratio)
}

// RefreshProgress re-evaluates every open reward of userID, completes the ones
// that reached their thresholds and expires the ones past their deadline.
// It returns the user's rewards after the update.
func (e *Engine) RefreshProgress(ctx context.Context, userID string) ([]*models.UserReward, error) {
	rewards, err := e.store.ListUserRewards(ctx, userID)
	if err != nil {
		return nil, err
	}

	var snapshot *models.BusinessSnapshot
	for _, r := range rewards {
		if r.Status != models.RewardInProgress && r.Status != models.RewardCompleted {
			continue
		}

		now := e.nowFn()
		if r.PastExpiry(now) {
			if err := e.expire(ctx, r, now); err != nil {
				return nil, err
			}
			continue
		}
		if r.Status != models.RewardInProgress {
			continue
		}

		if snapshot == nil {
			s, err := e.Snapshot(ctx, userID)
			if err != nil {
				return nil, err
			}
			snapshot = &s
		}

		program, err := e.store.GetRewardProgram(ctx, r.RewardProgramID)
		if err != nil {
			return nil, fmt.Errorf("failed to load program %s: %w", r.RewardProgramID, err)
		}
		// The target fixed at assignment wins over later plan edits.
		program.BusinessThreshold = r.RequiredTarget

		progress := calculator.EvaluateProgress(*snapshot, *program)
		if _, err := e.store.UpdateRewardProgress(ctx, r.ID, progress.AchievementPercentage, now); err != nil {
			return nil, err
		}
		r.AchievementPercentage = progress.AchievementPercentage

		if progress.Eligible {
			ok, err := e.store.TransitionUserReward(ctx, r.ID, models.RewardInProgress, models.RewardCompleted, now)
			if err != nil {
				return nil, err
			}
			if ok {
				r.Status = models.RewardCompleted
				slog.Info("Reward completed", "user_id", userID, "reward_id", r.ID)
				e.transitioned(ctx, events.RewardCompleted, r)
			}
		}
	}

	return e.store.ListUserRewards(ctx, userID)
}

func (e *Engine) expire(ctx context.Context, r *models.UserReward, now time.Time) error {
	ok, err := e.store.TransitionUserReward(ctx, r.ID, r.Status, models.RewardExpired, now)
	if err != nil {
		return err
	}
	if ok {
		r.Status = models.RewardExpired
		e.transitioned(ctx, events.RewardExpired, r)
	}
	return nil
}

// CleanupExpired expires every open reward past its deadline and returns how
// many were moved.
func (e *Engine) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := e.store.ExpireUserRewards(ctx, e.nowFn())
	if err != nil {
		return 0, err
	}
	for _, r := range expired {
		e.transitioned(ctx, events.RewardExpired, r)
	}
	e.metrics.Expired(len(expired))
	if len(expired) > 0 {
		slog.Info("Expired rewards cleaned up", "count", len(expired))
	}
	return len(expired), nil
}

// transitioned records a reward entering a new state. Publish failures are
// logged; the state change has already been committed.
func (e *Engine) transitioned(ctx context.Context, eventType string, r *models.UserReward) {
	e.metrics.RewardTransition(r.Status.String())

	payload := events.RewardPayload{
		RewardID:              r.ID,
		UserID:                r.UserID,
		RewardProgramID:       r.RewardProgramID,
		Status:                r.Status.String(),
		AchievementPercentage: r.AchievementPercentage,
		RequiredTarget:        r.RequiredTarget,
		ExpiresAt:             r.ExpiresAt,
	}
	if err := events.Emit(ctx, e.publisher, eventType, r.UserID, payload, e.nowFn()); err != nil {
		slog.Warn("Failed to publish reward event", "event_type", eventType, "reward_id", r.ID, "error", err)
	}
}
