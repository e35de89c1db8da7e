package pairstate

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/tradekit/pair-engine/internal/entity"
)

// IntentSnapshot is the persisted mirror of a live pair state, written so a
// restarted process can see what was pending before it went down.
type IntentSnapshot struct {
	Exchange string                  `json:"exchange"`
	Symbol   string                  `json:"symbol"`
	State    entity.PairStateName    `json:"state"`
	Options  entity.PairStateOptions `json:"options"`
	Time     time.Time               `json:"time"`
}

type IntentSnapshotStore interface {
	Save(ctx context.Context, snapshot IntentSnapshot) error
	Load(ctx context.Context, exchange, symbol string) (IntentSnapshot, bool, error)
	Delete(ctx context.Context, exchange, symbol string) error
}

type RedisIntentSnapshotStore struct {
	client *redis.Client
}

func NewRedisIntentSnapshotStore(cacheDSN string) (*RedisIntentSnapshotStore, error) {
	if cacheDSN == "" {
		return nil, fmt.Errorf("redis cache_dsn is required")
	}

	options, err := redis.ParseURL(cacheDSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis cache_dsn: %w", err)
	}

	return &RedisIntentSnapshotStore{client: redis.NewClient(options)}, nil
}

func snapshotKey(exchange, symbol string) string {
	return fmt.Sprintf("pair-engine:intent:%s:%s", exchange, symbol)
}

func (s *RedisIntentSnapshotStore) Save(ctx context.Context, snapshot IntentSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, snapshotKey(snapshot.Exchange, snapshot.Symbol), payload, 0).Err()
}

func (s *RedisIntentSnapshotStore) Load(ctx context.Context, exchange, symbol string) (IntentSnapshot, bool, error) {
	rawSnapshot, err := s.client.Get(ctx, snapshotKey(exchange, symbol)).Result()
	if err != nil {
		if err == redis.Nil {
			return IntentSnapshot{}, false, nil
		}
		return IntentSnapshot{}, false, err
	}

	var snapshot IntentSnapshot
	if err := json.Unmarshal([]byte(rawSnapshot), &snapshot); err != nil {
		return IntentSnapshot{}, false, err
	}

	return snapshot, true, nil
}

func (s *RedisIntentSnapshotStore) Delete(ctx context.Context, exchange, symbol string) error {
	return s.client.Del(ctx, snapshotKey(exchange, symbol)).Err()
}

func (s *RedisIntentSnapshotStore) Close() error {
	return s.client.Close()
}
