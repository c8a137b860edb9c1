/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache keeps short-lived copies of zone pad rosters in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/dronepad/internal/events"
	"github.com/friendsincode/dronepad/internal/models"
	"github.com/friendsincode/dronepad/internal/telemetry"
)

const (
	// DefaultZoneRosterTTL bounds staleness if an invalidation is missed.
	DefaultZoneRosterTTL = 30 * time.Second

	// DefaultCooldown is how long the cache stays off after a Redis error.
	DefaultCooldown = 30 * time.Second

	// KeyZoneRoster + zone
	KeyZoneRoster = "dronepad:cache:zone_pads:"

	kindZoneRoster = "zone_roster"
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ZoneRosterTTL time.Duration
	Cooldown      time.Duration
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:     "localhost:6379",
		ZoneRosterTTL: DefaultZoneRosterTTL,
		Cooldown:      DefaultCooldown,
	}
}

// NewClient creates the Redis client shared by the cache and leader election.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

// PadSource is the authoritative zone roster.
type PadSource interface {
	ListPadsInZone(ctx context.Context, zone string) ([]models.Pad, error)
}

// Cache provides Redis-backed caching that degrades to pass-through.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config
	now    func() time.Time

	mu            sync.RWMutex
	disabledUntil time.Time
}

// New creates a cache over client. A nil client or a failed ping yields a
// cache that is temporarily disabled and retries after the cooldown.
func New(client *redis.Client, cfg Config, logger zerolog.Logger) *Cache {
	if cfg.ZoneRosterTTL <= 0 {
		cfg.ZoneRosterTTL = DefaultZoneRosterTTL
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	c := &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
		now:    time.Now,
	}
	if client == nil {
		return c
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		c.trip()
		return c
	}
	c.logger.Info().Msg("Redis cache initialized")
	return c
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil || c.client == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.now().Before(c.disabledUntil)
}

func (c *Cache) trip() {
	c.mu.Lock()
	c.disabledUntil = c.now().Add(c.config.Cooldown)
	c.mu.Unlock()
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	c.logger.Warn().Err(err).Str("operation", operation).Dur("cooldown", c.config.Cooldown).Msg("cache operation failed, bypassing cache")
	c.trip()
}

func (c *Cache) get(ctx context.Context, key string, dest any) bool {
	if !c.IsAvailable() {
		return false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		c.handleError(err, "get")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false
	}
	return true
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) {
	if !c.IsAvailable() {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to marshal cache value")
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
	}
}

// InvalidateZone drops the cached roster of a zone.
func (c *Cache) InvalidateZone(ctx context.Context, zone string) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, KeyZoneRoster+zone).Err(); err != nil {
		c.handleError(err, "delete")
		return fmt.Errorf("invalidate zone %q: %w", zone, err)
	}
	return nil
}

// ZoneRoster is a cache-aside PadSource.
type ZoneRoster struct {
	cache  *Cache
	source PadSource
}

// NewZoneRoster wraps source with the cache.
func NewZoneRoster(c *Cache, source PadSource) *ZoneRoster {
	return &ZoneRoster{cache: c, source: source}
}

// ListPadsInZone serves from Redis when possible and fills it on a miss.
func (z *ZoneRoster) ListPadsInZone(ctx context.Context, zone string) ([]models.Pad, error) {
	key := KeyZoneRoster + zone

	var pads []models.Pad
	if z.cache.get(ctx, key, &pads) {
		telemetry.CacheHitsTotal.WithLabelValues(kindZoneRoster).Inc()
		return pads, nil
	}
	telemetry.CacheMissesTotal.WithLabelValues(kindZoneRoster).Inc()

	pads, err := z.source.ListPadsInZone(ctx, zone)
	if err != nil {
		return nil, err
	}
	z.cache.set(ctx, key, pads, z.cache.config.ZoneRosterTTL)
	return pads, nil
}

// WatchPadUpdates invalidates zone rosters on pad.updated events until ctx
// is done.
func (c *Cache) WatchPadUpdates(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(events.EventPadUpdated)
	go func() {
		defer bus.Unsubscribe(events.EventPadUpdated, sub)
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-sub:
				if !ok {
					return
				}
				zone, _ := payload["zone"].(string)
				if zone == "" {
					continue
				}
				if err := c.InvalidateZone(ctx, zone); err != nil {
					c.logger.Debug().Err(err).Str("zone", zone).Msg("roster invalidation failed")
				}
			}
		}
	}()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
