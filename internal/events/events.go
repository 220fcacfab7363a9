// Package events publishes domain events about reward and commission activity.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	RewardAssigned     = "reward.assigned"
	RewardCompleted    = "reward.completed"
	RewardClaimed      = "reward.claimed"
	RewardExpired      = "reward.expired"
	CommissionComputed = "commission.computed"
)

// SourceService is stamped on every envelope.
const SourceService = "referralnet"

// Publisher delivers an encoded event. partitionKey groups events that must
// stay ordered (the user id for reward events).
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
	Close() error
}

// Envelope wraps every event payload.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PartitionKey  string          `json:"partition_key"`
	SourceService string          `json:"source_service"`
	Data          json.RawMessage `json:"data"`
}

// RewardPayload is the data of every reward.* event.
type RewardPayload struct {
	RewardID              string    `json:"reward_id"`
	UserID                string    `json:"user_id"`
	RewardProgramID       string    `json:"reward_program_id"`
	Status                string    `json:"status"`
	AchievementPercentage float64   `json:"achievement_percentage"`
	RequiredTarget        float64   `json:"required_target"`
	ExpiresAt             time.Time `json:"expires_at"`
}

// CommissionPayload is the data of a commission.computed event.
type CommissionPayload struct {
	UserID          string  `json:"user_id"`
	OnAmount        float64 `json:"on_amount"`
	TotalCommission float64 `json:"total_commission"`
	Levels          []int   `json:"levels_earned_from"`
}

// Encode builds the envelope for data and returns it as JSON.
func Encode(eventType, partitionKey string, data any, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		OccurredAt:    now.UTC(),
		PartitionKey:  partitionKey,
		SourceService: SourceService,
		Data:          raw,
	})
}

// Emit encodes and publishes one event.
func Emit(ctx context.Context, p Publisher, eventType, partitionKey string, data any, now time.Time) error {
	payload, err := Encode(eventType, partitionKey, data, now)
	if err != nil {
		return err
	}
	if err := p.Publish(ctx, eventType, payload, partitionKey); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}
