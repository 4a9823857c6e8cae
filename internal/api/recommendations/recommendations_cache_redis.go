package recommendations

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

const redisCachePrefix = "poirec:"

// RedisCacheBackend shares sets across instances as JSON values.
type RedisCacheBackend struct {
	client redis.UniversalClient
}

func NewRedisCacheBackend(client redis.UniversalClient) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

func (r *RedisCacheBackend) Get(ctx context.Context, key string) (types.RecommendationSet, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.RecommendationSet{}, false, nil
		}
		return types.RecommendationSet{}, false, err
	}
	var set types.RecommendationSet
	if err := json.Unmarshal(data, &set); err != nil {
		return types.RecommendationSet{}, false, err
	}
	return set, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, set types.RecommendationSet, ttl time.Duration) error {
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

func (r *RedisCacheBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
