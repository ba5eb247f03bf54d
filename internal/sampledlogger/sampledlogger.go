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

// Package sampledlogger rate-limits log messages that can fire on every
// connection attempt, such as a server at its connection limit.
package sampledlogger

import (
	"sync"
	"time"

	"github.com/relaykit/relay/internal/clock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SampledLogger logs a given key at most once per interval. Messages for
// different keys are sampled independently.
type SampledLogger struct {
	logger   *zap.Logger
	interval time.Duration
	clock    clock.Clock

	mu      sync.Mutex
	last    map[string]time.Time
	dropped map[string]int
}

// Option customizes a SampledLogger.
type Option func(*SampledLogger)

// WithClock sets the clock used to measure the interval.
func WithClock(c clock.Clock) Option {
	return func(sl *SampledLogger) {
		sl.clock = c
	}
}

// New creates a SampledLogger that emits each key at most once per interval.
func New(interval time.Duration, logger *zap.Logger, opts ...Option) *SampledLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	sl := &SampledLogger{
		logger:   logger,
		interval: interval,
		clock:    clock.NewReal(),
		last:     make(map[string]time.Time),
		dropped:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(sl)
	}
	return sl
}

// NewDefault creates a SampledLogger with zap.NewNop() and a 1 minute interval.
func NewDefault() *SampledLogger {
	return New(time.Minute, zap.NewNop())
}

func (sl *SampledLogger) log(level zapcore.Level, key, msg string, fields ...zap.Field) {
	now := sl.clock.Now()

	sl.mu.Lock()
	last, seen := sl.last[key]
	if seen && now.Sub(last) < sl.interval {
		sl.dropped[key]++
		sl.mu.Unlock()
		return
	}
	dropped := sl.dropped[key]
	sl.last[key] = now
	delete(sl.dropped, key)
	sl.mu.Unlock()

	if dropped > 0 {
		fields = append(fields, zap.Int("suppressed", dropped))
	}
	if ce := sl.logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Debug logs a debug-level message under key with rate limiting.
func (sl *SampledLogger) Debug(key, msg string, fields ...zap.Field) {
	sl.log(zapcore.DebugLevel, key, msg, fields...)
}

// Info logs an info-level message under key with rate limiting.
func (sl *SampledLogger) Info(key, msg string, fields ...zap.Field) {
	sl.log(zapcore.InfoLevel, key, msg, fields...)
}

// Warn logs a warn-level message under key with rate limiting.
func (sl *SampledLogger) Warn(key, msg string, fields ...zap.Field) {
	sl.log(zapcore.WarnLevel, key, msg, fields...)
}

// Error logs an error-level message under key with rate limiting.
func (sl *SampledLogger) Error(key, msg string, fields ...zap.Field) {
	sl.log(zapcore.ErrorLevel, key, msg, fields...)
}
