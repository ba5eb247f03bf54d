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
	"testing"
	"time"

	"github.com/relaykit/relay/api/backend"
	"github.com/relaykit/relay/internal/testtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdPolicy(t *testing.T) {
	tests := []struct {
		msg       string
		threshold int
		loads     []WorkerLoad
		want      Move
		wantOK    bool
	}{
		{
			msg:       "single worker",
			threshold: 10,
			loads:     []WorkerLoad{{ID: 0, Load: 90, Sessions: 5}},
		},
		{
			msg:       "disabled",
			threshold: 0,
			loads:     []WorkerLoad{{ID: 0, Load: 90, Sessions: 5}, {ID: 1, Load: 0}},
		},
		{
			msg:       "below threshold",
			threshold: 20,
			loads:     []WorkerLoad{{ID: 0, Load: 50, Sessions: 5}, {ID: 1, Load: 31}},
		},
		{
			msg:       "at threshold",
			threshold: 20,
			loads:     []WorkerLoad{{ID: 0, Load: 50, Sessions: 5}, {ID: 1, Load: 30}},
			want:      Move{From: 0, To: 1, N: 1},
			wantOK:    true,
		},
		{
			msg:       "busiest to idlest",
			threshold: 10,
			loads: []WorkerLoad{
				{ID: 0, Load: 40, Sessions: 2},
				{ID: 1, Load: 5, Sessions: 1},
				{ID: 2, Load: 80, Sessions: 3},
			},
			want:   Move{From: 2, To: 1, N: 1},
			wantOK: true,
		},
		{
			msg:       "large difference moves more",
			threshold: 10,
			loads:     []WorkerLoad{{ID: 0, Load: 40, Sessions: 10}, {ID: 1, Load: 10}},
			want:      Move{From: 0, To: 1, N: 3},
			wantOK:    true,
		},
		{
			msg:       "at most half of the sessions",
			threshold: 10,
			loads:     []WorkerLoad{{ID: 0, Load: 95, Sessions: 10}, {ID: 1, Load: 5}},
			want:      Move{From: 0, To: 1, N: 5},
			wantOK:    true,
		},
		{
			msg:       "busiest has no sessions",
			threshold: 10,
			loads:     []WorkerLoad{{ID: 0, Load: 90}, {ID: 1, Load: 0}},
		},
		{
			msg:       "all equal",
			threshold: 1,
			loads:     []WorkerLoad{{ID: 0, Load: 0, Sessions: 1}, {ID: 1, Load: 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got, ok := ThresholdPolicy{Threshold: tt.threshold}.Decide(tt.loads)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoveSessionPicksMostActive(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	src, dst := env.m.Worker(0), env.m.Worker(1)

	var sessions []*fakeSession
	for _, activity := range []int64{1, 5, 3} {
		s, _, _ := env.openSession(src)
		s.activity.Store(activity)
		sessions = append(sessions, s)
	}
	busiest := sessions[1]
	srv, _ := newTestServer("db1")
	b, err := env.connect(src, srv, busiest)
	require.NoError(t, err)

	var moved int
	env.on(src, func() { moved = src.moveSessions(dst, 1) })
	assert.Equal(t, 1, moved)
	env.sync(dst)

	env.on(dst, func() {
		assert.NotNil(t, dst.Session(busiest.ID()))
		assert.Equal(t, 2, dst.dcbs.Len(), "client and backend moved")
	})
	env.on(src, func() {
		assert.Nil(t, src.Session(busiest.ID()))
		assert.Equal(t, 2, src.SessionCount())
	})
	assert.Same(t, dst, b.Worker())
}

func TestMoveSessionsByID(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	src, dst := env.m.Worker(0), env.m.Worker(1)

	var ids []uint64
	for i := 0; i < 4; i++ {
		s, _, _ := env.openSession(src)
		s.activity.Store(int64(10 - i))
		ids = append(ids, s.ID())
	}

	env.on(src, func() { assert.Equal(t, 2, src.moveSessions(dst, 2)) })
	env.sync(dst)
	env.on(dst, func() {
		assert.NotNil(t, dst.Session(ids[0]))
		assert.NotNil(t, dst.Session(ids[1]))
		assert.Equal(t, 2, dst.SessionCount())
	})
}

func TestEventsFollowMovedSession(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	src, dst := env.m.Worker(0), env.m.Worker(1)
	_, dcb, conn := env.openSession(src)

	dcb.Notify(backend.EventRead)
	env.sync(src)

	env.on(src, func() { require.Equal(t, 1, src.moveSessions(dst, 1)) })
	dcb.Notify(backend.EventWrite)
	env.sync(dst)

	assert.Equal(t, []backend.Event{backend.EventRead, backend.EventWrite}, conn.Events())
	assert.Equal(t, []*Worker{src, dst}, conn.HandledBy())
}

func TestImmovableSessionsStay(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	src, dst := env.m.Worker(0), env.m.Worker(1)
	srv, _ := newTestServer("db1")

	pinned, _, _ := env.openSession(src)
	pinned.movable.Store(false)
	pinned.activity.Store(100)

	waiting, _, _ := env.openSession(src)
	waiting.activity.Store(50)
	env.on(src, func() {
		require.NoError(t, src.AddWaitingEndpoint(srv, &fakeEndpoint{name: "w", session: waiting}))
	})

	idle, _, _ := env.openSession(src)
	idle.activity.Store(1)

	for i := 0; i < 3; i++ {
		env.on(src, func() { src.moveSessions(dst, 1) })
	}
	env.sync(dst)

	env.on(src, func() {
		assert.NotNil(t, src.Session(pinned.ID()), "immovable session was moved")
		assert.NotNil(t, src.Session(waiting.ID()), "session with a waiting endpoint was moved")
		assert.Nil(t, src.Session(idle.ID()))
	})
	assert.Equal(t, 1, dst.SessionCount())
}

func TestMoveToInactiveTarget(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	src, dst := env.m.Worker(0), env.m.Worker(1)
	env.openSession(src)
	env.on(dst, dst.deactivate)

	env.on(src, func() { assert.Equal(t, 0, src.moveSessions(dst, 1)) })
	assert.Equal(t, 1, src.SessionCount())
}

type fixedPolicy struct{ move Move }

func (p fixedPolicy) Decide(loads []WorkerLoad) (Move, bool) {
	return p.move, len(loads) > 1
}

func TestPeriodicRebalance(t *testing.T) {
	env := newTestEnv(t, 2, 2,
		RebalancePeriod(time.Second),
		WithRebalancePolicy(fixedPolicy{Move{From: 0, To: 1, N: 1}}))
	src, dst := env.m.Worker(0), env.m.Worker(1)
	env.openSession(src)

	env.advance(time.Second)
	env.sync(src)
	env.sync(dst)

	assert.Equal(t, 0, src.SessionCount())
	assert.Equal(t, 1, dst.SessionCount())
	assert.Equal(t, 1, env.logs.FilterMessage("rebalancing sessions").Len())
}

func TestRequestRebalance(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	src, dst := env.m.Worker(0), env.m.Worker(1)
	env.openSession(src)
	env.openSession(src)

	env.on(src, func() { src.RequestRebalance(dst, 5) })
	env.sync(src)
	env.sync(dst)
	assert.Equal(t, 2, dst.SessionCount())
}

func TestDrainingWorkerDeactivatesWhenSessionsMoveAway(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	m := env.m
	dst, src := m.Worker(0), m.Worker(1)
	env.openSession(src)

	require.NoError(t, m.AdjustThreads(ctxTimeout(t), 1))
	env.syncCoordinator()
	require.Equal(t, Draining, src.State())

	// The move runs at the end of this iteration; the worker may be
	// terminated right after it.
	env.on(src, func() { src.RequestRebalance(dst, 1) })
	require.Eventually(t, func() bool { return m.NRunning() == 1 }, testtime.Second, time.Millisecond)
	<-src.Done()

	assert.Equal(t, Dormant, src.State())
	assert.Equal(t, 1, dst.SessionCount())
	assert.Equal(t, 1, env.logs.FilterMessage("worker deactivated").Len())
	assertScaling(t, m)
}

func TestStoppingWorkerClosesDockedSession(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	m := env.m
	src, dst := m.Worker(0), m.Worker(1)
	s, _, conn := env.openSession(src)

	started, release := make(chan struct{}), make(chan struct{})
	require.True(t, dst.Execute(func() {
		close(started)
		<-release
	}))
	<-started
	env.on(src, func() { require.Equal(t, 1, src.moveSessions(dst, 1)) })

	// Take dst out of the manager the way a termination does, then stop it
	// while the docking task is still queued behind the blocked one.
	m.mu.Lock()
	m.workers[1] = nil
	m.nRunning.Store(1)
	m.nConfigured.Store(1)
	m.mu.Unlock()

	stopped := make(chan error, 1)
	go func() { stopped <- dst.stop() }()
	require.Eventually(t, dst.closed.Load, testtime.Second, time.Millisecond)
	close(release)
	require.NoError(t, <-stopped)

	assert.Equal(t, int32(1), s.closed.Load(), "the docked session was closed")
	assert.Equal(t, int32(1), conn.closed.Load())
	assert.Equal(t, int64(0), dst.nDCBs.Load())
	assert.Equal(t, 0, src.SessionCount())
}
