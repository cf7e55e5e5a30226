package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
)

// SessionEndedChannel carries one event per finalized session.
const SessionEndedChannel = "interview_session_ended"

// SessionEndedEvent is published on SessionEndedChannel.
type SessionEndedEvent struct {
	Token      string        `json:"token"`
	Status     SessionStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Answered   int           `json:"questionsAnswered"`
	InstanceID string        `json:"instanceId"`
	Timestamp  time.Time     `json:"timestamp"`
}

// RedisState holds the short-lived per-session state: pause snapshots,
// active markers and the session-ended feed.
type RedisState struct {
	rdb         *redis.Client
	instanceID  string
	markerTTL   time.Duration
	snapshotTTL time.Duration
}

func NewRedisState(rdb *redis.Client, markerTTL, snapshotTTL time.Duration) *RedisState {
	if markerTTL <= 0 {
		markerTTL = 2 * time.Hour
	}
	if snapshotTTL <= 0 {
		snapshotTTL = 24 * time.Hour
	}
	return &RedisState{rdb: rdb, instanceID: uuid.New().String(), markerTTL: markerTTL, snapshotTTL: snapshotTTL}
}

func snapshotKey(token string) string { return "interview:" + token + ":snapshot" }
func activeKey(token string) string   { return "interview:" + token + ":active" }

func (r *RedisState) SaveSnapshot(ctx context.Context, token string, snap agent.PauseSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return r.rdb.Set(ctx, snapshotKey(token), data, r.snapshotTTL).Err()
}

func (r *RedisState) LoadSnapshot(ctx context.Context, token string) (*agent.PauseSnapshot, error) {
	data, err := r.rdb.Get(ctx, snapshotKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap agent.PauseSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (r *RedisState) DeleteSnapshot(ctx context.Context, token string) error {
	return r.rdb.Del(ctx, snapshotKey(token)).Err()
}

func (r *RedisState) MarkActive(ctx context.Context, token string) error {
	return r.rdb.Set(ctx, activeKey(token), r.instanceID, r.markerTTL).Err()
}

func (r *RedisState) IsActive(ctx context.Context, token string) (bool, error) {
	n, err := r.rdb.Exists(ctx, activeKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisState) ClearActive(ctx context.Context, token string) error {
	return r.rdb.Del(ctx, activeKey(token)).Err()
}

// PublishEnded announces a finalized session to other services.
func (r *RedisState) PublishEnded(ctx context.Context, ev SessionEndedEvent) error {
	ev.InstanceID = r.instanceID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session ended event: %w", err)
	}
	return r.rdb.Publish(ctx, SessionEndedChannel, data).Err()
}
