/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sweeper

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Elector reports lease ownership changes.
type Elector interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderCh() <-chan bool
}

// LeaderAware runs the sweeper only while this instance holds the lease.
type LeaderAware struct {
	sweeper  *Service
	election Elector
	logger   zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
	active  bool
}

// NewLeaderAware wraps a sweeper with leader election.
func NewLeaderAware(sweeper *Service, election Elector, logger zerolog.Logger) *LeaderAware {
	return &LeaderAware{
		sweeper:  sweeper,
		election: election,
		logger:   logger.With().Str("component", "leader_aware_sweeper").Logger(),
	}
}

// Start begins campaigning and watching leadership.
func (la *LeaderAware) Start(ctx context.Context) error {
	la.mu.Lock()
	la.ctx = ctx
	la.mu.Unlock()

	la.logger.Info().Msg("starting leader-aware sweeper")
	if err := la.election.Start(ctx); err != nil {
		return err
	}
	go la.monitorLeadership(ctx)
	return nil
}

// Stop halts the sweeper and gives up the lease.
func (la *LeaderAware) Stop() error {
	la.logger.Info().Msg("stopping leader-aware sweeper")
	la.stopSweeper()
	return la.election.Stop()
}

// IsLeader returns whether this instance is the leader.
func (la *LeaderAware) IsLeader() bool {
	return la.election.IsLeader()
}

// Running reports whether the sweep loop is active on this instance.
func (la *LeaderAware) Running() bool {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.active
}

func (la *LeaderAware) monitorLeadership(ctx context.Context) {
	if la.election.IsLeader() {
		la.startSweeper()
	}

	leaderCh := la.election.LeaderCh()
	for {
		select {
		case <-ctx.Done():
			la.stopSweeper()
			return
		case isLeader, ok := <-leaderCh:
			if !ok {
				la.stopSweeper()
				return
			}
			if isLeader {
				la.logger.Info().Msg("became leader, starting sweeper")
				la.startSweeper()
			} else {
				la.logger.Warn().Msg("lost leadership, stopping sweeper")
				la.stopSweeper()
			}
		}
	}
}

func (la *LeaderAware) startSweeper() {
	la.mu.Lock()
	defer la.mu.Unlock()
	if la.active || la.ctx == nil {
		return
	}

	ctx, cancel := context.WithCancel(la.ctx)
	la.cancel = cancel
	la.active = true
	la.running.Add(1)

	go func() {
		defer la.running.Done()
		if err := la.sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			la.logger.Error().Err(err).Msg("sweeper error")
		}
	}()
}

// stopSweeper cancels the loop and waits for it to exit.
func (la *LeaderAware) stopSweeper() {
	la.mu.Lock()
	if !la.active {
		la.mu.Unlock()
		return
	}
	la.cancel()
	la.cancel = nil
	la.active = false
	la.mu.Unlock()

	la.running.Wait()
}
