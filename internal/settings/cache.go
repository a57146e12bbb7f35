package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/go-crashcart-checkout/internal/pricing"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisClient is the part of *redis.Client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

const scanBatch = 100

// CachedProvider is a read-through Redis cache in front of another Provider.
// Cache failures degrade to reading the source.
type CachedProvider struct {
	source Provider
	redis  redisClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProvider wraps source with a Redis cache under prefix.
func NewCachedProvider(source Provider, client redisClient, prefix string, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	return &CachedProvider{source: source, redis: client, prefix: prefix, ttl: ttl, logger: logger}
}

var _ Provider = (*CachedProvider)(nil)

func (p *CachedProvider) redisKey(k Key) string {
	return p.prefix + ":" + string(k)
}

// FeeSchedule implements Provider.
func (p *CachedProvider) FeeSchedule(ctx context.Context) (pricing.FeeSchedule, error) {
	var s pricing.FeeSchedule
	if p.load(ctx, FeesKey, &s) {
		return s, nil
	}
	s, err := p.source.FeeSchedule(ctx)
	if err != nil {
		return s, err
	}
	p.store(ctx, FeesKey, s)
	return s, nil
}

// Coupon implements Provider. Unknown codes are not cached.
func (p *CachedProvider) Coupon(ctx context.Context, code string) (*pricing.CouponDefinition, error) {
	key := CouponKey(code)
	var def pricing.CouponDefinition
	if p.load(ctx, key, &def) {
		return &def, nil
	}
	found, err := p.source.Coupon(ctx, code)
	if err != nil || found == nil {
		return found, err
	}
	p.store(ctx, key, found)
	return found, nil
}

// Invalidate implements Provider.
func (p *CachedProvider) Invalidate(ctx context.Context, keys ...Key) error {
	var redisKeys []string
	if len(keys) == 0 {
		all, err := p.scanKeys(ctx, p.prefix+":*")
		if err != nil {
			return fmt.Errorf("list cached settings: %w", err)
		}
		redisKeys = all
	} else {
		for _, k := range keys {
			redisKeys = append(redisKeys, p.redisKey(k))
		}
	}
	if len(redisKeys) == 0 {
		return nil
	}
	if err := p.redis.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("invalidate settings: %w", err)
	}
	if err := p.source.Invalidate(ctx, keys...); err != nil {
		return err
	}
	p.logger.Info("settings cache invalidated", zap.Strings("keys", redisKeys))
	return nil
}

func (p *CachedProvider) scanKeys(ctx context.Context, match string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := p.redis.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func (p *CachedProvider) load(ctx context.Context, k Key, out interface{}) bool {
	raw, err := p.redis.Get(ctx, p.redisKey(k)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			p.logger.Warn("settings cache read failed", zap.String("key", string(k)), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		p.logger.Warn("settings cache entry corrupt", zap.String("key", string(k)), zap.Error(err))
		return false
	}
	return true
}

func (p *CachedProvider) store(ctx context.Context, k Key, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("settings cache encode failed", zap.String("key", string(k)), zap.Error(err))
		return
	}
	if err := p.redis.Set(ctx, p.redisKey(k), raw, p.ttl).Err(); err != nil {
		p.logger.Warn("settings cache write failed", zap.String("key", string(k)), zap.Error(err))
	}
}
