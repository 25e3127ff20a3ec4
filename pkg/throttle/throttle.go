// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package throttle implements the background-activity throttle
// controller: it derives a per-operation delay and batch size from
// how long it has been since the last externally observed activity.
package throttle

import (
	"sync/atomic"
	"time"
)

// Config holds the idle-duration thresholds that drive the state
// machine. Defaults match the originating daemon's tuning.
type Config struct {
	ActiveThreshold         time.Duration
	RecentActivityThreshold time.Duration
	IdleThreshold           time.Duration
	AwayDuration            time.Duration
}

// DefaultConfig returns the default threshold ladder: active < 5s,
// recent < 30s, idle < 300s, otherwise away.
func DefaultConfig() Config {
	return Config{
		ActiveThreshold:         5 * time.Second,
		RecentActivityThreshold: 30 * time.Second,
		IdleThreshold:           300 * time.Second,
		AwayDuration:            600 * time.Second,
	}
}

// ResourceLimits is the throttle's output: how long to wait before
// the next unit of background work, and how many items to batch.
type ResourceLimits struct {
	MinDelay  time.Duration
	BatchSize int
}

// Throttler tracks the last externally observed activity and derives
// ResourceLimits from how long ago that was.
type Throttler struct {
	start             time.Time
	lastActivityTicks atomic.Int64 // nanoseconds since start, set atomically
	hasActivity       atomic.Bool
	config            Config
}

// New returns a Throttler that has not yet observed any activity; its
// idle duration is treated as the configured AwayDuration, so
// background jobs start at full speed immediately.
func New(config Config) *Throttler {
	return &Throttler{start: time.Now(), config: config}
}

// RecordActivity marks the current instant as the last externally
// observed activity.
func (t *Throttler) RecordActivity() {
	t.lastActivityTicks.Store(int64(time.Since(t.start)))
	t.hasActivity.Store(true)
}

// IdleDuration returns how long it has been since the last recorded
// activity. If no activity was ever recorded, it returns the
// configured AwayDuration rather than an unbounded value — "no
// activity ever" is treated as maximally idle.
func (t *Throttler) IdleDuration() time.Duration {
	if !t.hasActivity.Load() {
		return t.config.AwayDuration
	}
	elapsed := time.Duration(int64(time.Since(t.start))) - time.Duration(t.lastActivityTicks.Load())
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// GetLimits returns the ResourceLimits implied by the current idle
// duration.
func (t *Throttler) GetLimits() ResourceLimits {
	idle := t.IdleDuration()
	switch {
	case idle < t.config.ActiveThreshold:
		return ResourceLimits{MinDelay: 500 * time.Millisecond, BatchSize: 1}
	case idle < t.config.RecentActivityThreshold:
		return ResourceLimits{MinDelay: 200 * time.Millisecond, BatchSize: 2}
	case idle < t.config.IdleThreshold:
		return ResourceLimits{MinDelay: 50 * time.Millisecond, BatchSize: 5}
	default:
		return ResourceLimits{MinDelay: 10 * time.Millisecond, BatchSize: 10}
	}
}

// StateDescription returns a short, human-readable label for the
// current throttle state; the four strings are distinct and stable.
func (t *Throttler) StateDescription() string {
	idle := t.IdleDuration()
	switch {
	case idle < t.config.ActiveThreshold:
		return "active (throttled)"
	case idle < t.config.RecentActivityThreshold:
		return "recent activity"
	case idle < t.config.IdleThreshold:
		return "idle"
	default:
		return "away (full speed)"
	}
}
