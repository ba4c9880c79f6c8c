package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/supplychain/backend/internal/domain/partner"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCompanyNamePrefix = "partner:company-name:"
	defaultCompanyNameTTL    = 10 * time.Minute

	// stored for addresses the directory does not know
	notFoundMarker = "\x00"
)

// CompanyNameCache is a read-through Redis cache in front of a
// partner.CompanyDirectory. Redis failures degrade to direct lookups.
type CompanyNameCache struct {
	client      redis.UniversalClient
	next        partner.CompanyDirectory
	prefix      string
	ttl         time.Duration
	negativeTTL time.Duration
	group       singleflight.Group
	logger      *zap.Logger
}

// CompanyNameCacheOption is a functional option for configuring the cache
type CompanyNameCacheOption func(*CompanyNameCache)

// WithNameTTL sets how long resolved names are kept
func WithNameTTL(ttl time.Duration) CompanyNameCacheOption {
	return func(c *CompanyNameCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithNegativeTTL sets how long unknown addresses are remembered. Zero disables negative caching.
func WithNegativeTTL(ttl time.Duration) CompanyNameCacheOption {
	return func(c *CompanyNameCache) {
		c.negativeTTL = ttl
	}
}

// WithKeyPrefix overrides the Redis key prefix
func WithKeyPrefix(prefix string) CompanyNameCacheOption {
	return func(c *CompanyNameCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithNameCacheLogger sets the logger for the cache
func WithNameCacheLogger(logger *zap.Logger) CompanyNameCacheOption {
	return func(c *CompanyNameCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCompanyNameCache wraps next with a Redis cache. The caller owns client.
func NewCompanyNameCache(client redis.UniversalClient, next partner.CompanyDirectory, opts ...CompanyNameCacheOption) *CompanyNameCache {
	c := &CompanyNameCache{
		client: client,
		next:   next,
		prefix: defaultCompanyNamePrefix,
		ttl:    defaultCompanyNameTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRedisClient connects to Redis and pings it
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (c *CompanyNameCache) key(address string) string {
	return c.prefix + address
}

// ResolveName implements partner.CompanyDirectory
func (c *CompanyNameCache) ResolveName(ctx context.Context, address string) (string, bool, error) {
	address = partner.NormalizeAddress(address)
	key := c.key(address)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == notFoundMarker {
			return "", false, nil
		}
		return cached, true, nil
	case errors.Is(err, redis.Nil):
		c.logger.Debug("Company name cache miss", zap.String("address", address))
	default:
		c.logger.Warn("Company name cache unavailable, reading directory",
			zap.String("address", address),
			zap.Error(err))
		return c.next.ResolveName(ctx, address)
	}

	type resolved struct {
		name  string
		found bool
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		name, found, err := c.next.ResolveName(ctx, address)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, name, found)
		return resolved{name: name, found: found}, nil
	})
	if err != nil {
		return "", false, err
	}
	r := v.(resolved)
	return r.name, r.found, nil
}

// Invalidate drops the cached entry for address
func (c *CompanyNameCache) Invalidate(ctx context.Context, address string) error {
	return c.client.Del(ctx, c.key(partner.NormalizeAddress(address))).Err()
}

func (c *CompanyNameCache) store(ctx context.Context, key, name string, found bool) {
	value, ttl := name, c.ttl
	if !found {
		if c.negativeTTL <= 0 {
			return
		}
		value, ttl = notFoundMarker, c.negativeTTL
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("Failed to cache company name", zap.String("key", key), zap.Error(err))
	}
}

var _ partner.CompanyDirectory = (*CompanyNameCache)(nil)
