package cache

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// CounterCache backs the rate-limit middleware. Counters live in Redis so
// limits hold across instances; when Redis is unreachable the cache
// degrades to an in-process counter rather than failing requests.
type CounterCache struct {
	redisClient *redis.Client
	localCache  *gocache.Cache
}

func NewCounterCache(redisURL string) *CounterCache {
	cc := &CounterCache{
		localCache: gocache.New(time.Hour, 10*time.Minute),
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Redis connection failed, using local counters only: %v", err)
	} else {
		log.Println("Redis connection established successfully")
		cc.redisClient = client
	}

	return cc
}

// Increment bumps a counter and sets its expiry on first use. The
// returned value is the count within the current window.
func (cc *CounterCache) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	if cc.redisClient != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		count, err := cc.redisClient.Incr(ctx, key).Result()
		if err != nil {
			return 0, err
		}
		if count == 1 {
			cc.redisClient.Expire(ctx, key, window)
		}
		return count, nil
	}

	var current int64
	if val, found := cc.localCache.Get(key); found {
		current = val.(int64)
	}
	current++
	cc.localCache.Set(key, current, window)
	return current, nil
}

func (cc *CounterCache) IsAvailable() bool {
	return cc.redisClient != nil
}
