package redis

import (
	"context"
	"encoding/json"
	"time"

	"ms-booking/internal/models"

	"github.com/go-redis/redis/v8"
)

const spaceCachePrefix = "cache:space:"

type SpaceSource interface {
	GetSpace(ctx context.Context, spaceID string) (*models.Space, error)
}

// SpaceCache fronts the listing service. Rates and capacity change rarely, and
// the price is fixed at admission anyway.
type SpaceCache struct {
	Source SpaceSource
	Client *redis.Client
	TTL    time.Duration
}

func NewSpaceCache(source SpaceSource, client *redis.Client, ttl time.Duration) *SpaceCache {
	return &SpaceCache{Source: source, Client: client, TTL: ttl}
}

func (c *SpaceCache) GetSpace(ctx context.Context, spaceID string) (*models.Space, error) {
	key := spaceCachePrefix + spaceID
	if data, err := c.Client.Get(ctx, key).Bytes(); err == nil {
		var space models.Space
		if json.Unmarshal(data, &space) == nil {
			return &space, nil
		}
	}

	space, err := c.Source.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(space); err == nil {
		c.Client.Set(ctx, key, data, c.TTL)
	}
	return space, nil
}
