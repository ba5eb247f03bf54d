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

// Package backoff computes retry delays for loops that must not spin on a
// persistent failure, such as a listener whose accept keeps failing.
package backoff

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// ExponentialOption defines options that can be applied to an
// exponential backoff strategy.
type ExponentialOption func(*exponentialOptions)

type exponentialOptions struct {
	base, min, max time.Duration
	newRand        func() *rand.Rand
}

func (e exponentialOptions) validate() (err error) {
	if e.base <= 0 {
		err = multierr.Append(err, errors.New("invalid base for exponential backoff, need greater than zero"))
	}
	if e.min < 0 {
		err = multierr.Append(err, errors.New("invalid min for exponential backoff, need greater than or equal to zero"))
	}
	if e.max < 0 {
		err = multierr.Append(err, errors.New("invalid max for exponential backoff, need greater than or equal to zero"))
	}
	if e.max < e.min {
		err = multierr.Append(err, errors.New("exponential max value must be greater than min value"))
	}
	return err
}

var defaultExponentialOpts = exponentialOptions{
	base: 5 * time.Millisecond,
	max:  time.Second,
	newRand: func() *rand.Rand {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	},
}

// BaseJump sets the first step of the exponential curve.
func BaseJump(t time.Duration) ExponentialOption {
	return func(options *exponentialOptions) {
		options.base = t
	}
}

// MaxBackoff sets absolute max time that will ever be returned for a backoff.
func MaxBackoff(t time.Duration) ExponentialOption {
	return func(options *exponentialOptions) {
		options.max = t
	}
}

// MinBackoff sets absolute min time that will ever be returned for a backoff.
func MinBackoff(t time.Duration) ExponentialOption {
	return func(options *exponentialOptions) {
		options.min = t
	}
}

// randSource overrides the random number generator in tests.
func randSource(r *rand.Rand) ExponentialOption {
	return func(options *exponentialOptions) {
		options.newRand = func() *rand.Rand { return r }
	}
}

// Exponential is a "Full Jitter" exponential backoff bounded to the closed
// interval [Min, Max]. It is safe to use concurrently.
type Exponential struct {
	base, min  time.Duration
	minMaxDiff int64

	mu   sync.Mutex
	rand *rand.Rand
}

// NewExponential returns a new Exponential backoff strategy.
func NewExponential(opts ...ExponentialOption) (*Exponential, error) {
	options := defaultExponentialOpts
	for _, opt := range opts {
		opt(&options)
	}

	if err := options.validate(); err != nil {
		return nil, err
	}

	return &Exponential{
		base:       options.base,
		min:        options.min,
		minMaxDiff: options.max.Nanoseconds() - options.min.Nanoseconds(),
		rand:       options.newRand(),
	}, nil
}

// Duration takes an attempt number and returns the duration the caller should
// wait.
func (e *Exponential) Duration(attempts uint) time.Duration {
	var minless int64
	if attempts < 63 {
		minless = (int64(1) << attempts) * e.base.Nanoseconds()
	}

	// Either the shift overflowed or we went past the max; clamp to max.
	if minless > e.minMaxDiff || minless <= 0 {
		minless = e.minMaxDiff
	}

	e.mu.Lock()
	jitter := e.rand.Int63n(minless + 1)
	e.mu.Unlock()
	return e.min + time.Duration(jitter)
}

// Retrier counts consecutive failures of a single loop and hands out the
// matching delay. It is not safe for concurrent use.
type Retrier struct {
	strategy *Exponential
	attempts uint
}

// NewRetrier returns a Retrier using the given strategy.
func NewRetrier(strategy *Exponential) *Retrier {
	return &Retrier{strategy: strategy}
}

// Next records a failure and returns how long to wait before trying again.
func (r *Retrier) Next() time.Duration {
	d := r.strategy.Duration(r.attempts)
	r.attempts++
	return d
}

// Reset records a success.
func (r *Retrier) Reset() {
	r.attempts = 0
}

// Attempts returns the number of consecutive failures.
func (r *Retrier) Attempts() uint {
	return r.attempts
}
