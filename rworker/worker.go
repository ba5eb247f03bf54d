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
	"sort"
	"time"

	"github.com/relaykit/relay/api/backend"
	"github.com/relaykit/relay/internal/errorsync"
	"github.com/relaykit/relay/internal/slotmap"
	"github.com/relaykit/relay/proxyerrors"
	"github.com/relaykit/relay/server"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type event struct {
	dcb *DCB
	ev  backend.Event
}

type sessionEntry struct {
	session  backend.Session
	client   *DCB
	backends map[*DCB]struct{}
	closing  bool
}

// Worker is a routing worker: one goroutine running an event loop that owns
// a partition of the client and backend connections.
//
// Unless stated otherwise, methods must be called on the worker's own loop,
// that is from a protocol handler, a delayed call, or a function passed to
// Execute or Call.
type Worker struct {
	*loop

	id int
	m  *Manager

	state         atomic.Int32
	events        *mailbox[event]
	privateAccept chan Accepted
	listening     bool

	dcbs     *slotmap.Map[*DCB]
	sessions map[uint64]*sessionEntry
	pools    map[*server.Server]*ConnectionPool
	waiting  *waitRegistry
	zombies  []*DCB

	load        *Load
	stats       counters
	lastTimeout time.Time
	tickFuncs   []func()

	activationPending bool
	rebalance         *rebalanceRequest
	errs              errorsync.Buffer

	nSessions atomic.Int64
	nDCBs     atomic.Int64

	metrics *workerMetrics
}

func newWorker(m *Manager, id int) *Worker {
	name := fmt.Sprintf("worker-%d", id)
	w := &Worker{
		loop:          newLoop(name, m.opts.clock, m.logger.With(zap.Int("worker", id))),
		id:            id,
		m:             m,
		events:        newMailbox[event](),
		privateAccept: make(chan Accepted),
		dcbs:          slotmap.New[*DCB](),
		sessions:      make(map[uint64]*sessionEntry),
		pools:         make(map[*server.Server]*ConnectionPool),
		waiting:       newWaitRegistry(),
	}
	w.metrics = m.metrics.forWorker(id)
	w.state.Store(int32(Dormant))
	return w
}

// ID returns the index of the worker in [0, Manager.NMax()).
func (w *Worker) ID() int { return w.id }

// Manager returns the manager that owns the worker.
func (w *Worker) Manager() *Manager { return w.m }

// State returns the lifecycle state. It is safe to call from any goroutine.
func (w *Worker) State() State { return State(w.state.Load()) }

// PrivateAccept is the channel unique listeners send the connections they
// accept for this worker on.
func (w *Worker) PrivateAccept() chan<- Accepted { return w.privateAccept }

// IsListening reports whether the worker accepts new connections.
func (w *Worker) IsListening() bool { return w.listening }

func (w *Worker) start() error {
	return w.loop.start(w.run)
}

func (w *Worker) run() {
	now := w.clock.Now()
	w.load = newLoad(now)
	w.lastTimeout = now

	w.DCall(poolExpiryInterval, func(a DCallAction) bool {
		if a == DCallExecute {
			w.closeExpired()
		}
		return true
	})
	w.DCall(metricsInterval, func(a DCallAction) bool {
		if a == DCallExecute {
			w.refreshMetrics()
		}
		return true
	})
	w.DCall(WaitRetryInterval, func(a DCallAction) bool {
		if a == DCallExecute {
			w.activateWaiting()
		}
		return true
	})
	w.DCall(WaitTimeoutInterval, func(a DCallAction) bool {
		if a == DCallExecute {
			w.failTimedOutEndpoints()
		}
		return true
	})
	defer w.shutdown()

	for {
		var (
			shared   <-chan Accepted
			accepted Accepted
			got      bool
			private  bool
		)
		if w.listening {
			shared = w.m.sharedAccept
		}

		w.load.beginWait(w.clock.Now())
		select {
		case <-w.tasks.wake:
		case <-w.events.wake:
		case accepted = <-shared:
			got = true
		case accepted = <-w.privateAccept:
			got, private = true, true
		case <-w.timer.C():
		case <-w.stopCh:
			w.load.endWait(w.clock.Now())
			return
		}
		now := w.clock.Now()
		w.load.endWait(now)
		w.stats.polls++

		w.runDCalls(now)
		switch {
		case private:
			// The kernel already chose this worker.
			w.acceptConn(accepted)
		case got:
			w.dispatchAccepted(accepted)
		}
		if n := w.handleEvents(); n > 0 {
			w.stats.pollsWithEvents++
			w.stats.recordEvents(n)
		}
		w.runTasks()
		w.epollTick()
	}
}

// shutdown releases everything the worker still owns once its loop exits.
func (w *Worker) shutdown() {
	// Tasks accepted before the mailbox closed still run; a docking task
	// hands over a session that is closed below with the others.
	w.tasks.close()
	w.runTasks()
	w.dcalls.cancelAll()
	w.stopListening()
	for _, e := range w.sortedSessions() {
		w.closeSession(e)
	}
	for _, p := range w.pools {
		p.CloseAll()
	}
	for len(w.zombies) > 0 {
		// Nothing can become ready to close after the loop stopped.
		z := w.zombies
		w.zombies = nil
		for i := len(z) - 1; i >= 0; i-- {
			w.finalClose(z[i])
		}
	}
	w.state.Store(int32(Dormant))
}

// epollTick runs after every batch of work.
func (w *Worker) epollTick() {
	now := w.clock.Now()
	w.load.tick(now)
	if now.Sub(w.lastTimeout) >= timeoutInterval {
		w.lastTimeout = now
		w.processTimeouts(now)
	}

	w.deleteZombies()

	for _, f := range w.tickFuncs {
		f()
	}

	if r := w.rebalance; r != nil {
		w.rebalance = nil
		w.moveSessions(r.to, r.n)
	}
}

// AddTickFunc registers f to run at the end of every loop iteration.
func (w *Worker) AddTickFunc(f func()) {
	w.tickFuncs = append(w.tickFuncs, f)
}

func (w *Worker) processTimeouts(now time.Time) {
	for _, e := range w.sortedSessions() {
		if !e.closing {
			e.session.Tick(now)
		}
	}
}

func (w *Worker) dispatchAccepted(a Accepted) {
	target := w.m.PickWorker()
	if target == nil || target == w {
		w.acceptConn(a)
		return
	}
	if !target.Execute(func() { target.acceptConn(a) }) {
		w.acceptConn(a)
	}
}

func (w *Worker) acceptConn(a Accepted) {
	w.stats.accepts++
	w.metrics.accepted()

	dcb := w.newDCB(RoleClient, nil, nil)
	s, conn, err := a.Listener.NewSession(dcb, a.Conn)
	if err != nil {
		w.logger.Warn("could not create session",
			zap.String("listener", a.Listener.Name()),
			zap.String("remote", a.Conn.RemoteAddr().String()),
			zap.Error(err))
		w.freeDCB(dcb)
		a.Conn.Close()
		return
	}
	dcb.session, dcb.conn = s, conn
	if err := w.RegisterSession(s, dcb); err != nil {
		w.logger.DPanic("session id reused", zap.Uint64("session", s.ID()), zap.Error(err))
		conn.Close()
		w.freeDCB(dcb)
	}
}

// postEvent is called from any goroutine.
func (w *Worker) postEvent(d *DCB, ev backend.Event) {
	w.events.push(event{dcb: d, ev: ev})
}

func (w *Worker) handleEvents() int {
	batch := w.events.take()
	for i := range batch {
		e := batch[i]
		batch[i] = event{}
		w.dispatch(e.dcb, e.ev)
	}
	return len(batch)
}

// dispatch is the single place where I/O events reach connection handlers.
func (w *Worker) dispatch(d *DCB, ev backend.Event) {
	if d.closed.Load() {
		return
	}
	if owner := d.worker.Load(); owner != w {
		// The connection migrated after the event was posted.
		if owner != nil {
			owner.postEvent(d, ev)
		}
		return
	}
	if got, ok := w.dcbs.Get(d.key); !ok || got != d {
		// The connection is being docked here; the docking task is already
		// queued, so retry after it.
		w.Execute(func() { w.dispatch(d, ev) })
		return
	}
	if d.zombie {
		return
	}

	if ev.Has(backend.EventRead) {
		w.stats.reads++
	}
	if ev.Has(backend.EventWrite) {
		w.stats.writes++
	}
	if ev.Has(backend.EventError) {
		w.stats.errors++
	}
	if ev.Has(backend.EventHangup) {
		w.stats.hangups++
	}
	d.lastActivity = w.clock.Now()

	switch d.owner {
	case PoolOwned:
		w.evictPooled(d)
	case SessionOwned:
		d.handle().HandleEvent(ev)
	}
}

func (w *Worker) evictPooled(d *DCB) {
	pool, ok := w.pools[d.server]
	if !ok || !pool.Remove(d) {
		w.logger.DPanic("pooled connection missing from its pool", zap.Stringer("dcb", d))
	}
	w.logger.Debug("closing pooled connection after unexpected activity",
		zap.String("server", d.server.Name()))
	w.CloseConnection(d)
}

func (w *Worker) newDCB(role Role, srv *server.Server, s backend.Session) *DCB {
	now := w.clock.Now()
	d := &DCB{
		role:         role,
		server:       srv,
		session:      s,
		owner:        SessionOwned,
		createdAt:    now,
		lastActivity: now,
	}
	d.worker.Store(w)
	d.key = w.dcbs.Insert(d)
	w.nDCBs.Inc()
	w.stats.totalDescriptors++
	return d
}

func (w *Worker) freeDCB(d *DCB) {
	if _, ok := w.dcbs.Remove(d.key); !ok {
		w.logger.DPanic("freeing unknown connection", zap.Stringer("dcb", d))
		return
	}
	w.nDCBs.Dec()
	d.closed.Store(true)
}

// RegisterSession adds s to the session registry with its client connection.
func (w *Worker) RegisterSession(s backend.Session, client *DCB) error {
	if _, ok := w.sessions[s.ID()]; ok {
		return proxyerrors.AlreadyExistsErrorf("session %d is already registered on worker %d", s.ID(), w.id)
	}
	w.sessions[s.ID()] = &sessionEntry{
		session:  s,
		client:   client,
		backends: make(map[*DCB]struct{}),
	}
	w.nSessions.Inc()
	return nil
}

// DeregisterSession removes a session from the registry without closing it.
func (w *Worker) DeregisterSession(id uint64) bool {
	if _, ok := w.sessions[id]; !ok {
		return false
	}
	delete(w.sessions, id)
	w.nSessions.Dec()
	if w.State() == Draining && len(w.sessions) == 0 {
		w.deactivate()
	}
	return true
}

// Session returns the registered session with the given id.
func (w *Worker) Session(id uint64) backend.Session {
	if e, ok := w.sessions[id]; ok {
		return e.session
	}
	return nil
}

// SessionCount returns the number of registered sessions. It is safe to call
// from any goroutine.
func (w *Worker) SessionCount() int {
	return int(w.nSessions.Load())
}

func (w *Worker) sortedSessions() []*sessionEntry {
	out := make([]*sessionEntry, 0, len(w.sessions))
	for _, e := range w.sessions {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].session.ID() < out[j].session.ID()
	})
	return out
}

// CloseSession closes s and its client connection. Backend connections it
// still holds are pooled when possible, closed otherwise. The close of the
// client connection is deferred while a recently active backend connection is
// not ready to close.
func (w *Worker) CloseSession(s backend.Session) {
	if e, ok := w.sessions[s.ID()]; ok {
		w.closeSession(e)
	}
}

func (w *Worker) closeSession(e *sessionEntry) {
	if e.closing {
		return
	}
	e.closing = true
	for _, wt := range w.waiting.removeSession(e.session) {
		w.logger.Debug("dropping waiting endpoint of closing session",
			zap.Uint64("session", e.session.ID()),
			zap.String("server", wt.server.Name()))
	}
	e.client.zombie = true
	w.zombies = append(w.zombies, e.client)
}

// ReleaseConnection returns a backend connection the session no longer
// needs: it is pooled when MoveToPool allows it and closed otherwise.
func (w *Worker) ReleaseConnection(d *DCB) {
	if !w.MoveToPool(d) {
		w.CloseConnection(d)
	}
}

// CloseConnection queues a backend connection for closing. The close
// happens at the end of the current loop iteration.
func (w *Worker) CloseConnection(d *DCB) {
	if d.zombie || d.closed.Load() {
		return
	}
	if d.role == RoleClient {
		if e, ok := w.sessions[d.session.ID()]; ok {
			w.closeSession(e)
		}
		return
	}
	w.detachBackend(d)
	if d.owner == PoolOwned {
		if p, ok := w.pools[d.server]; ok {
			p.Remove(d)
		}
	}
	d.zombie = true
	w.zombies = append(w.zombies, d)
}

func (w *Worker) detachBackend(d *DCB) {
	if d.session == nil {
		return
	}
	if e, ok := w.sessions[d.session.ID()]; ok {
		delete(e.backends, d)
	}
}

func (w *Worker) attachBackend(d *DCB, s backend.Session) {
	d.session = s
	d.owner = SessionOwned
	if e, ok := w.sessions[s.ID()]; ok {
		e.backends[d] = struct{}{}
	}
}

func (w *Worker) deleteZombies() {
	var deferred []*DCB
	// Closing a connection may queue more zombies, so no range loop.
	for len(w.zombies) > 0 {
		d := w.zombies[len(w.zombies)-1]
		w.zombies = w.zombies[:len(w.zombies)-1]

		if d.role == RoleClient && !w.canCloseClient(d) {
			deferred = append(deferred, d)
			continue
		}
		w.finalClose(d)
	}
	w.zombies = deferred
}

func (w *Worker) canCloseClient(d *DCB) bool {
	e, ok := w.sessions[d.session.ID()]
	if !ok {
		return true
	}
	now := w.clock.Now()
	for b := range e.backends {
		if now.Sub(b.lastActivity) < w.m.opts.zombieGrace && !b.bconn.ReadyToClose() {
			return false
		}
	}
	return true
}

func (w *Worker) finalClose(d *DCB) {
	if d.closed.Load() {
		return
	}
	switch d.role {
	case RoleClient:
		id := d.session.ID()
		if e, ok := w.sessions[id]; ok {
			for b := range e.backends {
				// Detaches b from the session.
				w.ReleaseConnection(b)
			}
		}
		if err := d.session.Close(); err != nil {
			w.logger.Debug("session close failed", zap.Uint64("session", id), zap.Error(err))
		}
		if err := d.conn.Close(); err != nil {
			w.logger.Debug("client connection close failed", zap.Uint64("session", id), zap.Error(err))
		}
		w.freeDCB(d)
		w.DeregisterSession(id)

	case RoleBackend:
		if err := d.bconn.Close(); err != nil {
			w.logger.Debug("backend connection close failed",
				zap.String("server", d.server.Name()), zap.Error(err))
		}
		w.freeDCB(d)
		d.server.Disconnected()
		w.connectionAvailable(d.server)
	}
}

// Statistics returns the worker's counters.
func (w *Worker) Statistics() Statistics {
	return Statistics{
		Reads:                w.stats.reads,
		Writes:               w.stats.writes,
		Errors:               w.stats.errors,
		Hangups:              w.stats.hangups,
		Accepts:              w.stats.accepts,
		Polls:                w.stats.polls,
		PollsWithEvents:      w.stats.pollsWithEvents,
		EventQueueAvg:        w.stats.eventAvg(),
		EventQueueMax:        w.stats.eventMax,
		MaxQueueTime:         w.maxQueueTime,
		MaxExecTime:          w.maxExecTime,
		CurrentDescriptors:   int64(w.dcbs.Len()),
		TotalDescriptors:     w.stats.totalDescriptors,
		ConnectionsAvailable: w.stats.connectionsAvailable,
		Sessions:             int64(len(w.sessions)),
		Zombies:              int64(len(w.zombies)),
		Waiting:              int64(w.waiting.len()),
		Load1s:               w.load.Second(),
		Load1m:               w.load.Minute(),
		Load1h:               w.load.Hour(),
	}
}

// Load returns the worker's load history.
func (w *Worker) Load() *Load {
	return w.load
}

// StartListening makes the worker accept connections from every listener.
// Bind failures of unique listeners are recorded in the worker's error
// buffer and reported by the manager. It reports whether all listeners are
// listening.
func (w *Worker) StartListening() bool {
	if w.listening {
		return true
	}
	w.listening = true

	ok := true
	for _, l := range w.m.snapshotListeners() {
		if l.Shared() {
			continue
		}
		if err := l.ListenOn(w); err != nil {
			w.errs.Add(proxyerrors.UnavailableErrorf("worker %d could not listen on %q: %w", w.id, l.Name(), err))
			ok = false
		}
	}
	return ok
}

// StopListening makes the worker stop accepting connections.
func (w *Worker) StopListening() {
	w.stopListening()
}

func (w *Worker) stopListening() {
	if !w.listening {
		return
	}
	w.listening = false
	for _, l := range w.m.snapshotListeners() {
		if !l.Shared() {
			l.UnlistenOn(w)
		}
	}
}

// activate moves the worker to Active and starts listening.
func (w *Worker) activate() bool {
	w.state.Store(int32(Active))
	return w.StartListening()
}

// deactivate moves the worker to Dormant and asks the coordinator whether it
// can be terminated. Deactivating a dormant worker does nothing.
func (w *Worker) deactivate() {
	if w.State() == Dormant {
		return
	}
	w.state.Store(int32(Dormant))
	w.stopListening()
	for _, p := range w.pools {
		p.CloseAll()
	}
	w.logger.Info("worker deactivated")
	w.m.coord.Execute(w.m.checkTermination)
}

// drainOrDeactivate is run when the worker is no longer configured.
func (w *Worker) drainOrDeactivate() {
	w.stopListening()
	if len(w.sessions) == 0 {
		w.deactivate()
		return
	}
	w.state.Store(int32(Draining))
	w.logger.Info("worker draining", zap.Int("sessions", len(w.sessions)))
}

// quiescent reports whether the worker has nothing left to do. It is safe to
// call from any goroutine.
func (w *Worker) quiescent() bool {
	return w.nDCBs.Load() == 0 && w.tasks.len() == 0 && w.events.len() == 0
}

func (w *Worker) refreshMetrics() {
	w.metrics.refresh(w)
}
