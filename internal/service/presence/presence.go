package presence

import (
	"context"
	"fmt"
	"time"

	"lrnchat/internal/repository/user"
	redisSvc "lrnchat/internal/service/redis"
	"lrnchat/internal/utils/log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lastSeenTTL = 30 * 24 * time.Hour

// Recorder writes last-seen marks through to the user store and keeps a fast
// copy in redis for presence lookups.
type Recorder struct {
	users *user.UserRepo
	cache *redisSvc.RedisService
}

func NewRecorder(users *user.UserRepo, cache *redisSvc.RedisService) *Recorder {
	return &Recorder{
		users: users,
		cache: cache,
	}
}

func cacheKey(userID string) string {
	return fmt.Sprintf("lastseen:%s", userID)
}

// TouchLastSeen is best-effort on both legs: a cache failure is only logged,
// and the caller treats a store failure the same way.
func (r *Recorder) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	if err := r.cache.Set(ctx, cacheKey(userID), at.Format(time.RFC3339Nano), lastSeenTTL); err != nil {
		log.Warn("cache last seen failed", zap.String("userID", userID), zap.Error(err))
	}
	return r.users.TouchLastSeen(ctx, userID, at)
}

// LastSeen reads the cached mark, falling back to the user store on a miss.
// The zero time means the identity has never been seen.
func (r *Recorder) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	v, err := r.cache.Get(ctx, cacheKey(userID))
	if err == nil {
		if t, perr := time.Parse(time.RFC3339Nano, v); perr == nil {
			return t, nil
		}
	} else if err != redis.Nil {
		log.Warn("read last seen cache failed", zap.String("userID", userID), zap.Error(err))
	}

	u, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if u == nil {
		return time.Time{}, nil
	}
	return u.LastSeen, nil
}
