package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"aagateway/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix  = "aagateway:idempotency:"
	defaultIdempotencyTTL = 24 * time.Hour
)

var pendingMarker = []byte(`{"pending":true}`)

// IdempotencyStore keeps the first response seen for an Idempotency-Key.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) (*IdempotencyStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &IdempotencyStore{client: client, ttl: ttl}, nil
}

// Reserve claims key for the caller. When the key is already taken it
// returns the stored response, which is Pending while the first request runs.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (domain.StoredResponse, bool, error) {
	redisKey := idempotencyKeyPrefix + key
	for attempt := 0; attempt < 2; attempt++ {
		reserved, err := s.client.SetNX(ctx, redisKey, pendingMarker, s.ttl).Result()
		if err != nil {
			return domain.StoredResponse{}, false, err
		}
		if reserved {
			return domain.StoredResponse{}, true, nil
		}
		raw, err := s.client.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return domain.StoredResponse{}, false, err
		}
		var stored domain.StoredResponse
		if err := json.Unmarshal(raw, &stored); err != nil {
			return domain.StoredResponse{}, false, err
		}
		return stored, false, nil
	}
	return domain.StoredResponse{Pending: true}, false, nil
}

// Save replaces the pending marker with the final response.
func (s *IdempotencyStore) Save(ctx context.Context, key string, response domain.StoredResponse) error {
	response.Pending = false
	payload, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, idempotencyKeyPrefix+key, payload, s.ttl).Err()
}

// Release drops a reservation that produced no response.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
