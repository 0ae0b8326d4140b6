package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/alanyoungcy/easybet/internal/domain"
)

var _ domain.ReplayGuard = (*ReplayGuard)(nil)

// ReplayGuard is the in-process domain.ReplayGuard. Expired keys are swept
// every minute.
type ReplayGuard struct {
	seen *gocache.Cache
}

// NewReplayGuard creates an empty in-process ReplayGuard.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{seen: gocache.New(gocache.NoExpiration, time.Minute)}
}

// Claim stores key for ttl unless it is already present.
func (g *ReplayGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	// Add fails when an unexpired item exists.
	return g.seen.Add(key, struct{}{}, ttl) == nil, nil
}
