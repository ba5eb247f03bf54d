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

// Package server holds the process-wide state of a backend server that every
// routing worker shares: connection accounting, health and pool settings.
package server

import (
	"fmt"
	"time"

	"github.com/relaykit/relay/api/backend"
	"go.uber.org/atomic"
)

// Server is a backend server. All methods are safe for concurrent use.
type Server struct {
	name      string
	address   string
	connector backend.Connector

	live   atomic.Int64
	intent atomic.Int64

	maxConnections atomic.Int64
	poolCapacity   atomic.Int64
	maxAge         atomic.Duration
	healthy        atomic.Bool
}

// Option customizes a Server.
type Option func(*Server)

// MaxConnections limits the number of live connections across all workers.
// Zero means unlimited.
func MaxConnections(n int) Option {
	return func(s *Server) {
		s.maxConnections.Store(int64(n))
	}
}

// PoolCapacity sets the global number of idle connections that may be
// pooled, split evenly between the running workers. Zero disables pooling.
func PoolCapacity(n int) Option {
	return func(s *Server) {
		s.poolCapacity.Store(int64(n))
	}
}

// MaxAge is the age after which a pooled connection is closed. Zero means
// connections never expire by age.
func MaxAge(d time.Duration) Option {
	return func(s *Server) {
		s.maxAge.Store(d)
	}
}

// Healthy sets the initial health of the server.
func Healthy(ok bool) Option {
	return func(s *Server) {
		s.healthy.Store(ok)
	}
}

// New builds a Server that opens connections with connector.
func New(name, address string, connector backend.Connector, opts ...Option) *Server {
	s := &Server{
		name:      name,
		address:   address,
		connector: connector,
	}
	s.healthy.Store(true)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the configured name of the server.
func (s *Server) Name() string { return s.name }

// Address returns the network address of the server.
func (s *Server) Address() string { return s.address }

// Connector returns the protocol connector for the server.
func (s *Server) Connector() backend.Connector { return s.connector }

func (s *Server) String() string {
	return fmt.Sprintf("%s (%s)", s.name, s.address)
}

// IsHealthy reports whether the monitor considers the server usable.
func (s *Server) IsHealthy() bool { return s.healthy.Load() }

// SetHealthy records the server health.
func (s *Server) SetHealthy(ok bool) { s.healthy.Store(ok) }

// PoolCapacity returns the global pool capacity.
func (s *Server) PoolCapacity() int { return int(s.poolCapacity.Load()) }

// SetPoolCapacity changes the global pool capacity. Workers must be told
// to recompute their local share; see rworker.Manager.SetPoolCapacity.
func (s *Server) SetPoolCapacity(n int) { s.poolCapacity.Store(int64(n)) }

// MaxAge returns the maximum age of a pooled connection.
func (s *Server) MaxAge() time.Duration { return s.maxAge.Load() }

// SetMaxAge changes the maximum age of a pooled connection.
func (s *Server) SetMaxAge(d time.Duration) { s.maxAge.Store(d) }

// MaxConnections returns the connection limit, zero if unlimited.
func (s *Server) MaxConnections() int { return int(s.maxConnections.Load()) }

// SetMaxConnections changes the connection limit.
func (s *Server) SetMaxConnections(n int) { s.maxConnections.Store(int64(n)) }

// LiveConnections returns the number of open connections to the server.
func (s *Server) LiveConnections() int64 { return s.live.Load() }

// PendingConnections returns the number of connection attempts in flight.
func (s *Server) PendingConnections() int64 { return s.intent.Load() }

// Reserve claims the right to open one connection. It returns false when the
// connection limit is reached.
//
// The intent counter is raised before the limit is checked a second time, so
// workers racing past the first check overshoot the limit by at most the
// number of racing workers minus one. A successful Reserve must be followed
// by exactly one Commit or Cancel.
func (s *Server) Reserve() bool {
	if s.AtLimit() {
		return false
	}

	intent := s.intent.Inc()
	if limit := s.maxConnections.Load(); limit > 0 && s.live.Load()+intent > limit {
		s.intent.Dec()
		return false
	}
	return true
}

// Commit converts a reservation into a live connection.
func (s *Server) Commit() {
	// Raise live before dropping intent so that the total never dips.
	s.live.Inc()
	s.intent.Dec()
}

// Cancel releases a reservation whose connection attempt failed.
func (s *Server) Cancel() {
	s.intent.Dec()
}

// Disconnected records that a live connection was closed.
func (s *Server) Disconnected() {
	s.live.Dec()
}

// AtLimit reports whether a new connection would exceed the limit.
func (s *Server) AtLimit() bool {
	limit := s.maxConnections.Load()
	return limit > 0 && s.live.Load()+s.intent.Load() >= limit
}
