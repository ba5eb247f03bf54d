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
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/relaykit/relay/api/backend"
	"github.com/relaykit/relay/internal/clock"
	"github.com/relaykit/relay/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSession struct {
	id       uint64
	movable  atomic.Bool
	canPool  atomic.Bool
	timeout  time.Duration
	activity atomic.Int64
	ticks    atomic.Int32
	closed   atomic.Int32
}

var _ backend.Session = (*fakeSession)(nil)

func newFakeSession(id uint64) *fakeSession {
	s := &fakeSession{id: id}
	s.movable.Store(true)
	s.canPool.Store(true)
	return s
}

func (s *fakeSession) ID() uint64                      { return s.id }
func (s *fakeSession) CanPoolBackends() bool           { return s.canPool.Load() }
func (s *fakeSession) IsMovable() bool                 { return s.movable.Load() }
func (s *fakeSession) MultiplexTimeout() time.Duration { return s.timeout }
func (s *fakeSession) IOActivity() int                 { return int(s.activity.Load()) }
func (s *fakeSession) Tick(time.Time)                  { s.ticks.Inc() }

func (s *fakeSession) Close() error {
	s.closed.Inc()
	return nil
}

// fakeConn is the protocol side of a client connection.
type fakeConn struct {
	mu      sync.Mutex
	events  []backend.Event
	workers []*Worker
	dcb     *DCB

	closed atomic.Int32
}

var _ backend.Conn = (*fakeConn)(nil)

func (c *fakeConn) HandleEvent(ev backend.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	if c.dcb != nil {
		c.workers = append(c.workers, c.dcb.Worker())
	}
}

func (c *fakeConn) Events() []backend.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]backend.Event(nil), c.events...)
}

func (c *fakeConn) HandledBy() []*Worker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Worker(nil), c.workers...)
}

func (c *fakeConn) HangedUp() bool     { return false }
func (c *fakeConn) ReadyToClose() bool { return true }

func (c *fakeConn) Close() error {
	c.closed.Inc()
	return nil
}

// fakeBackendConn is a backend connection whose state tests flip directly.
type fakeBackendConn struct {
	fakeConn

	established atomic.Bool
	hangedUp    atomic.Bool
	pending     atomic.Bool
	notReady    atomic.Bool
	score       atomic.Int64
	reuseErr    error
	reuses      atomic.Int32
}

var _ backend.Connection = (*fakeBackendConn)(nil)

func newFakeBackendConn() *fakeBackendConn {
	c := &fakeBackendConn{}
	c.established.Store(true)
	c.score.Store(int64(backend.ReuseOptimal))
	return c
}

func (c *fakeBackendConn) HangedUp() bool       { return c.hangedUp.Load() }
func (c *fakeBackendConn) ReadyToClose() bool   { return !c.notReady.Load() }
func (c *fakeBackendConn) Established() bool    { return c.established.Load() }
func (c *fakeBackendConn) HasPendingData() bool { return c.pending.Load() }

func (c *fakeBackendConn) CanReuse(backend.Session) backend.ReuseScore {
	return backend.ReuseScore(c.score.Load())
}

func (c *fakeBackendConn) Reuse(backend.Session) error {
	c.reuses.Inc()
	return c.reuseErr
}

// fakeConnector records every connection it opens.
type fakeConnector struct {
	mu    sync.Mutex
	conns []*fakeBackendConn
	err   error
}

var _ backend.Connector = (*fakeConnector)(nil)

func (fc *fakeConnector) Connect(sink backend.EventSink, s backend.Session) (backend.Connection, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.err != nil {
		return nil, fc.err
	}
	c := newFakeBackendConn()
	if dcb, ok := sink.(*DCB); ok {
		c.dcb = dcb
	}
	fc.conns = append(fc.conns, c)
	return c, nil
}

func (fc *fakeConnector) Conns() []*fakeBackendConn {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]*fakeBackendConn(nil), fc.conns...)
}

// fakeEndpoint answers ContinueConnecting from a script and records the
// terminal callbacks.
type fakeEndpoint struct {
	name    string
	session backend.Session
	log     *[]string

	results  []backend.ContinueResult
	timeouts int
	failures []error
	onRetry  func()
}

var _ backend.Endpoint = (*fakeEndpoint)(nil)

func (e *fakeEndpoint) Session() backend.Session { return e.session }

func (e *fakeEndpoint) ContinueConnecting() (backend.ContinueResult, error) {
	if e.log != nil {
		*e.log = append(*e.log, e.name)
	}
	if e.onRetry != nil {
		e.onRetry()
	}
	if len(e.results) == 0 {
		return backend.ContinueSuccess, nil
	}
	r := e.results[0]
	e.results = e.results[1:]
	if r == backend.ContinueFail {
		return r, errors.New("great sadness")
	}
	return r, nil
}

func (e *fakeEndpoint) HandleTimeout()          { e.timeouts++ }
func (e *fakeEndpoint) HandleFailure(err error) { e.failures = append(e.failures, err) }

// fakeListener builds fake sessions for accepted connections.
type fakeListener struct {
	name      string
	shared    bool
	m         *Manager
	listenErr error

	mu        sync.Mutex
	listening map[int]bool
	sessions  []*fakeSession
	conns     []*fakeConn
}

var _ Listener = (*fakeListener)(nil)

func newFakeListener(name string, shared bool, m *Manager) *fakeListener {
	return &fakeListener{name: name, shared: shared, m: m, listening: make(map[int]bool)}
}

func (l *fakeListener) Name() string { return l.name }
func (l *fakeListener) Shared() bool { return l.shared }

func (l *fakeListener) ListenOn(w *Worker) error {
	if l.listenErr != nil {
		return l.listenErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listening[w.ID()] = true
	return nil
}

func (l *fakeListener) UnlistenOn(w *Worker) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.listening, w.ID())
}

func (l *fakeListener) IsListening(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening[id]
}

func (l *fakeListener) NewSession(dcb *DCB, conn net.Conn) (backend.Session, backend.Conn, error) {
	s := newFakeSession(l.m.NextSessionID())
	c := &fakeConn{dcb: dcb}
	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.conns = append(l.conns, c)
	l.mu.Unlock()
	return s, c, nil
}

func (l *fakeListener) Sessions() []*fakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeSession(nil), l.sessions...)
}

type testEnv struct {
	t      *testing.T
	m      *Manager
	clock  *clock.FakeClock
	logs   *observer.ObservedLogs
	nextID uint64
}

func newTestEnv(t *testing.T, maxThreads, n int, opts ...Option) *testEnv {
	core, logs := observer.New(zapcore.DebugLevel)
	fc := clock.NewFake()
	all := append([]Option{Logger(zap.New(core)), Clock(fc)}, opts...)
	m := New(all...)
	require.NoError(t, m.Init(maxThreads))
	if n > 0 {
		require.NoError(t, m.StartWorkers(n))
	}
	env := &testEnv{t: t, m: m, clock: fc, logs: logs, nextID: 1000}
	t.Cleanup(func() {
		require.NoError(t, m.Finish(context.Background()))
	})
	return env
}

// on runs f on w and waits for it.
func (e *testEnv) on(w *Worker, f func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(e.t, w.Call(ctx, f))
}

// sync waits until w has finished the loop iteration that a previous Add of
// the fake clock woke it for, including its end-of-iteration tick.
func (e *testEnv) sync(w *Worker) {
	e.on(w, func() {})
	e.on(w, func() {})
}

func (e *testEnv) syncCoordinator() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(e.t, e.m.coord.Call(ctx, func() {}))
	require.NoError(e.t, e.m.coord.Call(ctx, func() {}))
}

// advance moves the clock forward in one second steps so that every
// periodic pass in between runs, syncing every running worker after each.
func (e *testEnv) advance(d time.Duration) {
	for d > 0 {
		step := time.Second
		if d < step {
			step = d
		}
		e.clock.Add(step)
		for _, w := range e.m.runningWorkers() {
			e.sync(w)
		}
		e.syncCoordinator()
		d -= step
	}
}

// openSession registers a client session on w, the way an accepted
// connection would be.
func (e *testEnv) openSession(w *Worker) (*fakeSession, *DCB, *fakeConn) {
	e.nextID++
	s := newFakeSession(e.nextID)
	c := &fakeConn{}
	var dcb *DCB
	e.on(w, func() {
		dcb = w.newDCB(RoleClient, nil, s)
		dcb.conn = c
		c.dcb = dcb
		require.NoError(e.t, w.RegisterSession(s, dcb))
	})
	return s, dcb, c
}

// connect acquires a new backend connection on w.
func (e *testEnv) connect(w *Worker, srv *server.Server, s backend.Session) (*DCB, error) {
	var (
		dcb *DCB
		err error
	)
	e.on(w, func() { dcb, err = w.GetBackendConnection(srv, s) })
	return dcb, err
}

func newTestServer(name string, opts ...server.Option) (*server.Server, *fakeConnector) {
	c := &fakeConnector{}
	return server.New(name, "127.0.0.1:3306", c, opts...), c
}

func ctxTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// sessionBackends returns the backend connections attached to s on w.
func (w *Worker) sessionBackends(s backend.Session) []*DCB {
	e, ok := w.sessions[s.ID()]
	if !ok {
		return nil
	}
	out := make([]*DCB, 0, len(e.backends))
	for b := range e.backends {
		out = append(out, b)
	}
	return out
}

func (r *waitRegistry) contains(ep backend.Endpoint) bool {
	_, ok := r.index[ep]
	return ok
}
