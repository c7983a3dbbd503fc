package incidents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cordum/packedge/core/infra/redisutil"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL       = 7 * 24 * time.Hour
	keyPrefix        = "edge:incident:"
	recentKey        = "edge:incidents:recent"
	maxRecentEntries = 1000
)

// RedisStore keeps incidents in Redis with a retention TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and returns an incident store.
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	client, err := redisutil.Connect(context.Background(), url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Put stores the incident under its error id and indexes it by time.
func (s *RedisStore) Put(ctx context.Context, incident Incident) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("incident store unavailable")
	}
	if incident.ErrorID == "" {
		return fmt.Errorf("incident error id required")
	}
	if incident.OccurredAt.IsZero() {
		incident.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, incidentKey(incident.ErrorID), payload, s.ttl)
	pipe.ZAdd(ctx, recentKey, redis.Z{Score: float64(incident.OccurredAt.UnixMilli()), Member: incident.ErrorID})
	pipe.ZRemRangeByRank(ctx, recentKey, 0, -maxRecentEntries-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store incident: %w", err)
	}
	return nil
}

// Get returns the incident for errorID or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, errorID string) (*Incident, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("incident store unavailable")
	}
	data, err := s.client.Get(ctx, incidentKey(errorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load incident: %w", err)
	}
	var incident Incident
	if err := json.Unmarshal(data, &incident); err != nil {
		return nil, fmt.Errorf("decode incident: %w", err)
	}
	return &incident, nil
}

// Recent returns up to limit error ids, newest first. Expired incidents may
// still be listed until trimmed; Get reports them as ErrNotFound.
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("incident store unavailable")
	}
	if limit <= 0 || limit > maxRecentEntries {
		limit = 50
	}
	return s.client.ZRevRange(ctx, recentKey, 0, int64(limit-1)).Result()
}

func incidentKey(errorID string) string {
	return keyPrefix + errorID
}
