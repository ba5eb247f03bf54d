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
	"fmt"
	"testing"
	"time"

	"github.com/relaykit/relay/api/backend"
	"github.com/relaykit/relay/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPooledDCB(srv *server.Server, created time.Time, score backend.ReuseScore) (*DCB, *fakeBackendConn) {
	c := newFakeBackendConn()
	c.score.Store(int64(score))
	return &DCB{
		role:      RoleBackend,
		server:    srv,
		bconn:     c,
		owner:     PoolOwned,
		createdAt: created,
	}, c
}

type closeRecorder struct {
	closed []*DCB
}

func (r *closeRecorder) close(d *DCB) { r.closed = append(r.closed, d) }

func TestLocalCapacity(t *testing.T) {
	tests := []struct {
		global, running, want int
	}{
		{global: 0, running: 4, want: 0},
		{global: 10, running: 0, want: 0},
		{global: 10, running: 5, want: 2},
		{global: 20, running: 5, want: 4},
		{global: 10, running: 3, want: 3},
		{global: 2, running: 8, want: 0},
		{global: 8, running: 8, want: 1},
		{global: -1, running: 2, want: 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.global, tt.running), func(t *testing.T) {
			got := localCapacity(tt.global, tt.running)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got*tt.running, max(tt.global, 0), "shares exceed the global capacity")
		})
	}
}

func TestPoolGetConnectionBestScore(t *testing.T) {
	srv, _ := newTestServer("db1")
	var rec closeRecorder
	p := newConnectionPool(srv, 3, rec.close)
	now := time.Unix(100, 0)

	low, _ := newPooledDCB(srv, now, 1)
	high, _ := newPooledDCB(srv, now, 7)
	none, _ := newPooledDCB(srv, now, backend.ReuseNotPossible)
	for _, d := range []*DCB{low, high, none} {
		require.True(t, p.AddConnection(d))
	}
	assert.False(t, p.HasSpace())

	s := newFakeSession(1)
	got, score := p.GetConnection(s)
	assert.Same(t, high, got)
	assert.Equal(t, backend.ReuseScore(7), score)
	assert.False(t, p.Contains(high), "the winner leaves the pool")

	got, _ = p.GetConnection(s)
	assert.Same(t, low, got)

	got, score = p.GetConnection(s)
	assert.Nil(t, got, "score zero is never a candidate")
	assert.Equal(t, backend.ReuseNotPossible, score)
	assert.Equal(t, 1, p.Len())

	stats := p.Statistics()
	assert.Equal(t, int64(2), stats.TimesFound)
	assert.Equal(t, int64(1), stats.TimesEmpty)
	assert.Equal(t, 3, stats.MaxSize)
	assert.Equal(t, 1, stats.CurrSize)
	assert.Equal(t, 3, stats.Capacity)
	assert.Empty(t, rec.closed)
}

func TestPoolOnlyUnusableEntry(t *testing.T) {
	srv, _ := newTestServer("db1")
	p := newConnectionPool(srv, 1, func(*DCB) {})
	d, _ := newPooledDCB(srv, time.Unix(0, 0), backend.ReuseNotPossible)
	require.True(t, p.AddConnection(d))

	got, _ := p.GetConnection(newFakeSession(1))
	assert.Nil(t, got)
	assert.Equal(t, 1, p.Len(), "a non-empty pool can still come up empty")
}

func TestPoolAddConnection(t *testing.T) {
	srv, _ := newTestServer("db1")
	p := newConnectionPool(srv, 1, func(*DCB) {})
	a, _ := newPooledDCB(srv, time.Unix(0, 0), 1)
	b, _ := newPooledDCB(srv, time.Unix(0, 0), 1)

	assert.True(t, p.AddConnection(a))
	assert.False(t, p.AddConnection(a), "duplicate")
	assert.False(t, p.AddConnection(b), "full")
	assert.True(t, p.Remove(a))
	assert.False(t, p.Remove(a))
	assert.True(t, p.AddConnection(b))
}

func TestPoolCloseExpired(t *testing.T) {
	srv, _ := newTestServer("db1", server.MaxAge(time.Minute))
	var rec closeRecorder
	p := newConnectionPool(srv, 4, rec.close)
	start := time.Unix(1000, 0)

	old, _ := newPooledDCB(srv, start.Add(-2*time.Minute), 1)
	hung, hc := newPooledDCB(srv, start, 1)
	fresh, _ := newPooledDCB(srv, start, 1)
	for _, d := range []*DCB{old, hung, fresh} {
		require.True(t, p.AddConnection(d))
	}
	hc.hangedUp.Store(true)

	assert.Equal(t, 2, p.CloseExpired(start))
	assert.ElementsMatch(t, []*DCB{old, hung}, rec.closed)
	assert.True(t, p.Contains(fresh))
}

// After an external capacity reduction the pool may be over capacity until
// the next CloseExpired, which closes the oldest entries first.
func TestPoolCapacityReduction(t *testing.T) {
	srv, _ := newTestServer("db1")
	var rec closeRecorder
	p := newConnectionPool(srv, 4, rec.close)
	start := time.Unix(1000, 0)

	var dcbs []*DCB
	for i := 0; i < 4; i++ {
		d, _ := newPooledDCB(srv, start.Add(time.Duration(i)*time.Second), 1)
		require.True(t, p.AddConnection(d))
		dcbs = append(dcbs, d)
	}

	p.SetCapacity(2)
	assert.Equal(t, 4, p.Len(), "reduction alone closes nothing")
	assert.False(t, p.HasSpace())

	assert.Equal(t, 2, p.CloseExpired(start.Add(time.Minute)))
	assert.Equal(t, []*DCB{dcbs[0], dcbs[1]}, rec.closed)
	assert.LessOrEqual(t, p.Len(), p.Capacity())
}

func TestPoolCloseAll(t *testing.T) {
	srv, _ := newTestServer("db1")
	var rec closeRecorder
	p := newConnectionPool(srv, 3, rec.close)
	for i := 0; i < 3; i++ {
		d, _ := newPooledDCB(srv, time.Unix(0, 0), 1)
		require.True(t, p.AddConnection(d))
	}
	assert.Equal(t, 3, p.CloseAll())
	assert.Len(t, rec.closed, 3)
	assert.Equal(t, 0, p.Len())
}

// Any sequence of adds, gets and expiries keeps the pool within capacity
// and never hands out or closes a connection twice.
func TestPoolOwnershipSequence(t *testing.T) {
	srv, _ := newTestServer("db1", server.MaxAge(10*time.Second))
	start := time.Unix(0, 0)

	owners := make(map[*DCB]string)
	var p *ConnectionPool
	p = newConnectionPool(srv, 3, func(d *DCB) {
		require.Equal(t, "pool", owners[d], "closed while %s", owners[d])
		owners[d] = "closed"
	})

	s := newFakeSession(1)
	var live []*DCB
	for step := 0; step < 200; step++ {
		now := start.Add(time.Duration(step) * time.Second)
		switch step % 5 {
		case 0, 1:
			d, _ := newPooledDCB(srv, now, backend.ReuseScore(step%3))
			owners[d] = "pool"
			if !p.AddConnection(d) {
				owners[d] = "closed"
			}
		case 2:
			if d, _ := p.GetConnection(s); d != nil {
				require.Equal(t, "pool", owners[d])
				owners[d] = "session"
				live = append(live, d)
			}
		case 3:
			if len(live) > 0 {
				d := live[0]
				live = live[1:]
				owners[d] = "pool"
				if !p.AddConnection(d) {
					owners[d] = "closed"
				}
			}
		case 4:
			if step%20 == 4 {
				p.SetCapacity(1 + step%3)
			}
			p.CloseExpired(now)
			require.LessOrEqual(t, p.Len(), p.Capacity())
		}
		for d, o := range owners {
			require.Equal(t, o == "pool", p.Contains(d))
		}
	}
}
