// Copyright (c) 2026 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package rworker

import (
	"time"

	"github.com/relaykit/relay/internal/clock"
	"go.uber.org/net/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultTerminationDelay bounds how long a deactivated worker is given to
	// quiesce before it is stopped regardless.
	DefaultTerminationDelay = 5 * time.Second

	// DefaultZombieGrace is how recently a backend connection of a closing
	// session may have been active and still hold back the close while its
	// protocol is not ready.
	DefaultZombieGrace = time.Second

	// DefaultRebalanceThreshold is the load difference, in percentage points,
	// between the busiest and the idlest worker that triggers a rebalance.
	DefaultRebalanceThreshold = 20

	// DefaultRebalanceWindow is the number of one-second load samples that
	// are averaged when comparing workers.
	DefaultRebalanceWindow = 10

	// DefaultCallTimeout bounds the cross-thread calls the coordinator makes
	// on its own initiative.
	DefaultCallTimeout = 10 * time.Second

	// WaitRetryInterval is the period of the backstop activation of waiting
	// endpoints.
	WaitRetryInterval = 5 * time.Second

	// WaitTimeoutInterval is the period of the sweep that fails endpoints
	// which waited longer than their multiplex timeout.
	WaitTimeoutInterval = 10 * time.Second

	terminationPollInterval = 500 * time.Millisecond
	poolExpiryInterval      = time.Second
	timeoutInterval         = time.Second
	metricsInterval         = time.Second
)

// Option customizes a Manager.
type Option interface {
	apply(*managerOptions)
}

type optionFunc func(*managerOptions)

func (f optionFunc) apply(o *managerOptions) { f(o) }

type managerOptions struct {
	logger             *zap.Logger
	clock              clock.Clock
	meter              *metrics.Scope
	terminationDelay   time.Duration
	zombieGrace        time.Duration
	rebalancePeriod    time.Duration
	rebalanceThreshold int
	rebalanceWindow    int
	rebalancePolicy    RebalancePolicy
	callTimeout        time.Duration
}

func defaultOptions() managerOptions {
	return managerOptions{
		logger:             zap.NewNop(),
		clock:              clock.NewReal(),
		terminationDelay:   DefaultTerminationDelay,
		zombieGrace:        DefaultZombieGrace,
		rebalanceThreshold: DefaultRebalanceThreshold,
		rebalanceWindow:    DefaultRebalanceWindow,
		callTimeout:        DefaultCallTimeout,
	}
}

// Logger sets the logger of the manager and its workers.
func Logger(logger *zap.Logger) Option {
	return optionFunc(func(o *managerOptions) {
		if logger != nil {
			o.logger = logger
		}
	})
}

// Clock sets the clock that drives delayed calls, timeouts and load.
func Clock(c clock.Clock) Option {
	return optionFunc(func(o *managerOptions) {
		o.clock = c
	})
}

// Meter sets the metrics scope the manager registers its gauges and
// counters under. Without a meter no metrics are kept.
func Meter(meter *metrics.Scope) Option {
	return optionFunc(func(o *managerOptions) {
		o.meter = meter
	})
}

// TerminationDelay sets how long a deactivated worker may take to quiesce.
func TerminationDelay(d time.Duration) Option {
	return optionFunc(func(o *managerOptions) {
		o.terminationDelay = d
	})
}

// ZombieGrace sets the backend activity grace of closing sessions.
func ZombieGrace(d time.Duration) Option {
	return optionFunc(func(o *managerOptions) {
		o.zombieGrace = d
	})
}

// RebalancePeriod sets how often worker loads are compared. Zero disables
// rebalancing.
func RebalancePeriod(d time.Duration) Option {
	return optionFunc(func(o *managerOptions) {
		o.rebalancePeriod = d
	})
}

// RebalanceThreshold sets the load difference that triggers a rebalance.
func RebalanceThreshold(percent int) Option {
	return optionFunc(func(o *managerOptions) {
		o.rebalanceThreshold = percent
	})
}

// RebalanceWindow sets how many one-second samples are averaged.
func RebalanceWindow(seconds int) Option {
	return optionFunc(func(o *managerOptions) {
		o.rebalanceWindow = seconds
	})
}

// WithRebalancePolicy replaces the default threshold policy.
func WithRebalancePolicy(p RebalancePolicy) Option {
	return optionFunc(func(o *managerOptions) {
		o.rebalancePolicy = p
	})
}

// CallTimeout bounds the cross-thread calls the coordinator makes on its own
// initiative, such as rebalancing and terminating workers.
func CallTimeout(d time.Duration) Option {
	return optionFunc(func(o *managerOptions) {
		o.callTimeout = d
	})
}
