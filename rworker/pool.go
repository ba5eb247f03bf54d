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
	"sort"
	"time"

	"github.com/relaykit/relay/api/backend"
	"github.com/relaykit/relay/server"
)

// PoolStats are the observable counters of a connection pool.
type PoolStats struct {
	// CurrSize is the number of pooled connections.
	CurrSize int
	// MaxSize is the largest CurrSize ever observed.
	MaxSize int
	// TimesFound counts GetConnection calls that returned a connection.
	TimesFound int64
	// TimesEmpty counts GetConnection calls that found nothing reusable.
	TimesEmpty int64
	// Capacity is the local capacity of the pool.
	Capacity int
}

func (s *PoolStats) add(o PoolStats) {
	s.CurrSize += o.CurrSize
	s.MaxSize += o.MaxSize
	s.TimesFound += o.TimesFound
	s.TimesEmpty += o.TimesEmpty
	s.Capacity += o.Capacity
}

type poolEntry struct {
	created time.Time
}

// ConnectionPool holds the idle backend connections of one worker to one
// server. It is owned by the worker's loop and is not safe for concurrent
// use.
type ConnectionPool struct {
	server   *server.Server
	capacity int
	entries  map[*DCB]poolEntry

	// close frees a connection the pool gave up on. The owning worker sends
	// the connection-available notification when the slot is released.
	close func(*DCB)

	maxSize    int
	timesFound int64
	timesEmpty int64
}

func newConnectionPool(srv *server.Server, capacity int, closeFn func(*DCB)) *ConnectionPool {
	return &ConnectionPool{
		server:   srv,
		capacity: capacity,
		entries:  make(map[*DCB]poolEntry),
		close:    closeFn,
	}
}

// Server returns the server whose connections the pool holds.
func (p *ConnectionPool) Server() *server.Server { return p.server }

// Len returns the number of pooled connections.
func (p *ConnectionPool) Len() int { return len(p.entries) }

// Capacity returns the local capacity.
func (p *ConnectionPool) Capacity() int { return p.capacity }

// HasSpace reports whether one more connection fits.
func (p *ConnectionPool) HasSpace() bool {
	return len(p.entries) < p.capacity
}

// SetCapacity changes the local capacity. Excess connections stay until the
// next CloseExpired.
func (p *ConnectionPool) SetCapacity(n int) {
	p.capacity = n
}

// Contains reports whether dcb is pooled here.
func (p *ConnectionPool) Contains(dcb *DCB) bool {
	_, ok := p.entries[dcb]
	return ok
}

// GetConnection removes and returns the pooled connection that best fits
// session, or nil if none can serve it. A connection is only a candidate
// when its score is above backend.ReuseNotPossible; the search stops early
// on backend.ReuseOptimal.
func (p *ConnectionPool) GetConnection(session backend.Session) (*DCB, backend.ReuseScore) {
	var (
		best      *DCB
		bestScore = backend.ReuseNotPossible
	)
	for dcb := range p.entries {
		score := dcb.bconn.CanReuse(session)
		if score > bestScore {
			best, bestScore = dcb, score
			if score == backend.ReuseOptimal {
				break
			}
		}
	}

	if best == nil {
		p.timesEmpty++
		return nil, backend.ReuseNotPossible
	}
	delete(p.entries, best)
	p.timesFound++
	return best, bestScore
}

// AddConnection pools dcb if there is space. It only checks the local
// share: concurrent reconfiguration may overshoot briefly and is corrected by
// the next CloseExpired.
func (p *ConnectionPool) AddConnection(dcb *DCB) bool {
	if !p.HasSpace() {
		return false
	}
	if _, dup := p.entries[dcb]; dup {
		return false
	}
	p.entries[dcb] = poolEntry{created: dcb.createdAt}
	if n := len(p.entries); n > p.maxSize {
		p.maxSize = n
	}
	return true
}

// Remove takes dcb out of the pool without closing it.
func (p *ConnectionPool) Remove(dcb *DCB) bool {
	if _, ok := p.entries[dcb]; !ok {
		return false
	}
	delete(p.entries, dcb)
	return true
}

// CloseExpired closes hung-up connections, connections older than the
// server's maximum age and, when the pool is over capacity, the oldest
// connections beyond it. It returns the number closed.
func (p *ConnectionPool) CloseExpired(now time.Time) int {
	maxAge := p.server.MaxAge()

	var (
		expired []*DCB
		alive   []*DCB
	)
	for dcb, e := range p.entries {
		if dcb.bconn.HangedUp() || (maxAge > 0 && now.Sub(e.created) > maxAge) {
			expired = append(expired, dcb)
		} else {
			alive = append(alive, dcb)
		}
	}

	if excess := len(alive) - p.capacity; excess > 0 {
		sort.Slice(alive, func(i, j int) bool {
			return p.entries[alive[i]].created.Before(p.entries[alive[j]].created)
		})
		expired = append(expired, alive[:excess]...)
	}

	for _, dcb := range expired {
		delete(p.entries, dcb)
		p.close(dcb)
	}
	return len(expired)
}

// CloseAll closes every pooled connection.
func (p *ConnectionPool) CloseAll() int {
	n := len(p.entries)
	for dcb := range p.entries {
		delete(p.entries, dcb)
		p.close(dcb)
	}
	return n
}

// Statistics returns the pool counters.
func (p *ConnectionPool) Statistics() PoolStats {
	return PoolStats{
		CurrSize:   len(p.entries),
		MaxSize:    p.maxSize,
		TimesFound: p.timesFound,
		TimesEmpty: p.timesEmpty,
		Capacity:   p.capacity,
	}
}

// localCapacity is the share of a global pool capacity owned by one of
// running workers. The shares never add up to more than global, so a
// capacity below the number of workers disables pooling.
func localCapacity(global, running int) int {
	if global <= 0 || running <= 0 {
		return 0
	}
	return global / running
}
