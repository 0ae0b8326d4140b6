package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/easybet/internal/domain"
)

var _ domain.ReplayGuard = (*ReplayGuard)(nil)

// ReplayGuard implements domain.ReplayGuard with SETNX so that every
// instance behind the load balancer shares one view of used keys.
type ReplayGuard struct {
	rdb *redis.Client
}

// NewReplayGuard creates a ReplayGuard backed by the given Client.
func NewReplayGuard(c *Client) *ReplayGuard {
	return &ReplayGuard{rdb: c.Underlying()}
}

// Claim sets easybet:replay:<key> for ttl if it does not exist yet.
func (g *ReplayGuard) Claim(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, key("replay", name), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: replay claim: %w", err)
	}
	return ok, nil
}
