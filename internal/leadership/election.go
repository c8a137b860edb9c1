/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/dronepad/internal/telemetry"
)

const (
	// Default election key in Redis
	defaultElectionKey = "dronepad:leader:sweeper"

	// Leader must renew before this expires
	defaultLeaseDuration = 15 * time.Second

	// How often followers and the leader campaign
	defaultRetryInterval = 3 * time.Second
)

// Acquire takes the key when free, or refreshes it when we already own it.
// Returns 1 when this instance holds the lease afterwards.
var acquireScript = redis.NewScript(`
local current = redis.call("get", KEYS[1])
if current == false then
	redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
if current == ARGV[1] then
	redis.call("pexpire", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ElectionConfig configures leader election behavior
type ElectionConfig struct {
	// ElectionKey is the Redis key holding the leader's instance ID
	ElectionKey string

	// LeaseDuration is how long the lease is valid without renewal
	LeaseDuration time.Duration

	// RetryInterval is how often the campaign runs
	RetryInterval time.Duration

	// InstanceID uniquely identifies this instance
	InstanceID string
}

// DefaultConfig returns default election configuration
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		ElectionKey:   defaultElectionKey,
		LeaseDuration: defaultLeaseDuration,
		RetryInterval: defaultRetryInterval,
		InstanceID:    uuid.NewString(),
	}
}

// Election manages a single-holder lease in Redis
type Election struct {
	client *redis.Client
	logger zerolog.Logger
	config ElectionConfig

	isLeader atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	leaderCh chan bool
}

// NewElection creates an election over an existing Redis client.
func NewElection(client *redis.Client, config ElectionConfig, logger zerolog.Logger) (*Election, error) {
	if client == nil {
		return nil, errors.New("leader election requires a redis client")
	}
	defaults := DefaultConfig()
	if config.ElectionKey == "" {
		config.ElectionKey = defaults.ElectionKey
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = defaults.LeaseDuration
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaults.RetryInterval
	}
	if config.RetryInterval >= config.LeaseDuration {
		return nil, fmt.Errorf("retry interval %s must be shorter than lease %s", config.RetryInterval, config.LeaseDuration)
	}
	if config.InstanceID == "" {
		config.InstanceID = defaults.InstanceID
	}

	return &Election{
		client:   client,
		logger:   logger.With().Str("component", "leader_election").Str("instance_id", config.InstanceID).Logger(),
		config:   config,
		done:     make(chan struct{}),
		leaderCh: make(chan bool, 1),
	}, nil
}

// Start campaigns immediately and then every RetryInterval until Stop.
func (e *Election) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.logger.Info().
		Str("key", e.config.ElectionKey).
		Dur("lease_duration", e.config.LeaseDuration).
		Msg("starting leader election")

	go e.campaignLoop(ctx)
	return nil
}

// Stop ends the campaign and releases the lease if held. Safe to call twice.
func (e *Election) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.logger.Info().Msg("stopping leader election")
		if e.cancel != nil {
			e.cancel()
			<-e.done
		}

		if e.isLeader.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err = e.releaseLock(ctx); err != nil {
				e.logger.Error().Err(err).Msg("failed to release leadership lock")
			}
			e.setLeader(false)
		}
	})
	return err
}

// IsLeader returns whether this instance currently holds the lease
func (e *Election) IsLeader() bool {
	return e.isLeader.Load()
}

// LeaderCh delivers leadership changes. Only the latest state is buffered.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// InstanceID returns this instance's identity in the election.
func (e *Election) InstanceID() string {
	return e.config.InstanceID
}

// GetLeader returns the current leader instance ID, or "" when vacant
func (e *Election) GetLeader(ctx context.Context) (string, error) {
	leaderID, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return leaderID, nil
}

func (e *Election) campaignLoop(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.config.RetryInterval)
	defer ticker.Stop()

	e.attemptLeadership(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.attemptLeadership(ctx)
		}
	}
}

func (e *Election) attemptLeadership(ctx context.Context) {
	acquired, err := e.acquireLock(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Error().Err(err).Msg("failed to acquire leadership lock")
		// Without Redis we cannot prove we still hold the lease.
		e.setLeader(false)
		return
	}
	e.setLeader(acquired)
}

func (e *Election) acquireLock(ctx context.Context) (bool, error) {
	held, err := acquireScript.Run(ctx, e.client,
		[]string{e.config.ElectionKey},
		e.config.InstanceID, e.config.LeaseDuration.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return held == 1, nil
}

func (e *Election) releaseLock(ctx context.Context) error {
	if err := releaseScript.Run(ctx, e.client, []string{e.config.ElectionKey}, e.config.InstanceID).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	e.logger.Info().Msg("released leadership lock")
	return nil
}

// setLeader records a status change and notifies the listener.
func (e *Election) setLeader(isLeader bool) {
	if e.isLeader.Swap(isLeader) == isLeader {
		return
	}

	event := "lost"
	gauge := 0.0
	if isLeader {
		event = "acquired"
		gauge = 1
		e.logger.Info().Msg("acquired leadership")
	} else {
		e.logger.Warn().Msg("lost leadership")
	}
	telemetry.LeaderElectionStatus.WithLabelValues(e.config.InstanceID).Set(gauge)
	telemetry.LeaderElectionChanges.WithLabelValues(e.config.InstanceID, event).Inc()

	// Replace any unread state with the latest one.
	select {
	case <-e.leaderCh:
	default:
	}
	select {
	case e.leaderCh <- isLeader:
	default:
	}
}
