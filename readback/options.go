// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package readback

import (
	"log/slog"
	"time"
)

const (
	// DefaultBuffers is the number of staging slots an async reader cycles
	// through.
	DefaultBuffers = 2

	// DefaultMaxPollAttempts bounds fence polling before a read fails with
	// a timeout.
	DefaultMaxPollAttempts = 64

	defaultPollStart = 500 * time.Microsecond
	defaultPollMin   = 50 * time.Microsecond
)

type options struct {
	buffers         int
	maxPollAttempts int
	pollStart       time.Duration
	pollMin         time.Duration
	log             *slog.Logger
}

func defaultOptions() options {
	return options{
		buffers:         DefaultBuffers,
		maxPollAttempts: DefaultMaxPollAttempts,
		pollStart:       defaultPollStart,
		pollMin:         defaultPollMin,
	}
}

// pollBudget is the worst-case wall time one fence wait can take.
func (o options) pollBudget() time.Duration {
	return time.Duration(o.maxPollAttempts) * o.pollStart
}

// Option configures a Reader.
type Option func(*options)

// WithBuffers sets the number of staging slots. More slots allow deeper
// GPU/host overlap at the cost of result latency.
func WithBuffers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffers = n
		}
	}
}

// WithMaxPollAttempts sets the fence poll attempt budget.
func WithMaxPollAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPollAttempts = n
		}
	}
}

// WithPollInterval sets the adaptive poll interval. Polling starts at start
// and shrinks toward min as the fence nears completion.
func WithPollInterval(start, min time.Duration) Option {
	return func(o *options) {
		if start > 0 {
			o.pollStart = start
		}
		if min > 0 && min <= o.pollStart {
			o.pollMin = min
		}
	}
}

// WithLogger sets the logger for degraded-mode diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}
