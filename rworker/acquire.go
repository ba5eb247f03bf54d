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
	"github.com/relaykit/relay/api/backend"
	"github.com/relaykit/relay/proxyerrors"
	"github.com/relaykit/relay/server"
	"go.uber.org/zap"
)

// IsConnectionLimit reports whether err is the error GetBackendConnection
// returns when the server has reached its connection limit. Endpoints that
// get it usually register with AddWaitingEndpoint.
func IsConnectionLimit(err error) bool {
	return proxyerrors.IsResourceExhausted(err)
}

// GetBackendConnection returns a backend connection to srv for s. A pooled
// connection that the protocol can reuse for s is preferred; otherwise a new
// connection is opened if the server's connection limit allows it.
func (w *Worker) GetBackendConnection(srv *server.Server, s backend.Session) (*DCB, error) {
	if srv.PoolCapacity() > 0 && srv.IsHealthy() {
		if pool, ok := w.pools[srv]; ok {
			for {
				dcb, _ := pool.GetConnection(s)
				if dcb == nil {
					break
				}
				dcb.owner = SessionOwned
				dcb.session = s
				if err := dcb.bconn.Reuse(s); err != nil {
					w.logger.Debug("pooled connection could not be reused",
						zap.String("server", srv.Name()), zap.Error(err))
					dcb.session = nil
					w.CloseConnection(dcb)
					continue
				}
				dcb.reused = true
				w.attachBackend(dcb, s)
				w.metrics.poolHit(srv)
				return dcb, nil
			}
		}
		w.metrics.poolMiss(srv)
	}

	if !srv.Reserve() {
		w.m.limitLog.Warn(srv.Name(), "server is at its connection limit",
			zap.String("server", srv.Name()),
			zap.Int("max_connections", srv.MaxConnections()))
		w.metrics.connectionLimit(srv)
		return nil, proxyerrors.ResourceExhaustedErrorf(
			"server %q has reached its limit of %d connections", srv.Name(), srv.MaxConnections())
	}

	dcb := w.newDCB(RoleBackend, srv, s)
	conn, err := srv.Connector().Connect(dcb, s)
	if err != nil {
		srv.Cancel()
		w.freeDCB(dcb)
		return nil, proxyerrors.UnavailableErrorf("could not connect to server %q: %w", srv.Name(), err)
	}
	srv.Commit()
	dcb.bconn = conn
	w.attachBackend(dcb, s)
	return dcb, nil
}

// MoveToPool tries to park an idle backend connection in the worker's pool
// for its server. It returns false, leaving the connection untouched, when
// pooling is disabled, the connection or server is in a state that does not
// allow it, the session forbids it, or the pool is full.
func (w *Worker) MoveToPool(d *DCB) bool {
	srv := d.server
	if d.role != RoleBackend || d.zombie || d.owner == PoolOwned {
		return false
	}
	if w.closed.Load() || w.State() == Dormant {
		return false
	}
	if srv.PoolCapacity() <= 0 || !srv.IsHealthy() {
		return false
	}
	if !d.bconn.Established() || d.bconn.HangedUp() || d.bconn.HasPendingData() {
		return false
	}
	if d.session != nil && !d.session.CanPoolBackends() {
		return false
	}

	pool := w.poolFor(srv)
	if !pool.HasSpace() {
		return false
	}
	w.detachBackend(d)
	d.session = nil
	d.owner = PoolOwned
	if !pool.AddConnection(d) {
		w.logger.DPanic("pool refused a connection it had space for", zap.Stringer("dcb", d))
		d.owner = SessionOwned
		w.CloseConnection(d)
		return false
	}
	w.connectionAvailable(srv)
	return true
}

// poolFor returns the pool for srv, creating it on first use. The local
// capacity follows the server's configuration and the number of running
// workers.
func (w *Worker) poolFor(srv *server.Server) *ConnectionPool {
	capacity := localCapacity(srv.PoolCapacity(), w.m.NRunning())
	pool, ok := w.pools[srv]
	if !ok {
		pool = newConnectionPool(srv, capacity, w.CloseConnection)
		w.pools[srv] = pool
		return pool
	}
	pool.SetCapacity(capacity)
	return pool
}

// recomputePoolCapacity applies the current local capacity to every pool.
// Pools that shrank are trimmed right away.
func (w *Worker) recomputePoolCapacity() {
	now := w.clock.Now()
	for srv := range w.pools {
		w.poolFor(srv).CloseExpired(now)
	}
}

func (w *Worker) closeExpired() {
	now := w.clock.Now()
	for srv, pool := range w.pools {
		pool.SetCapacity(localCapacity(srv.PoolCapacity(), w.m.NRunning()))
		if n := pool.CloseExpired(now); n > 0 {
			w.logger.Debug("closed expired pooled connections",
				zap.String("server", srv.Name()), zap.Int("count", n))
		}
	}
}

// CloseServerPool closes every connection to srv pooled by this worker.
func (w *Worker) CloseServerPool(srv *server.Server) int {
	if pool, ok := w.pools[srv]; ok {
		return pool.CloseAll()
	}
	return 0
}

// PoolStatistics returns the statistics of the worker's pool for srv.
func (w *Worker) PoolStatistics(srv *server.Server) (PoolStats, bool) {
	pool, ok := w.pools[srv]
	if !ok {
		return PoolStats{}, false
	}
	return pool.Statistics(), true
}

// AddWaitingEndpoint queues ep until a connection to srv may be available.
// An endpoint waits for at most one server at a time.
func (w *Worker) AddWaitingEndpoint(srv *server.Server, ep backend.Endpoint) error {
	return w.waiting.add(srv, ep, w.clock.Now())
}

// RemoveWaitingEndpoint removes ep from the wait queue without calling it.
func (w *Worker) RemoveWaitingEndpoint(ep backend.Endpoint) bool {
	_, ok := w.waiting.remove(ep)
	return ok
}

// WaitingCount returns the number of endpoints waiting for srv.
func (w *Worker) WaitingCount(srv *server.Server) int {
	return w.waiting.count(srv)
}

// connectionAvailable is called whenever a connection to srv was released
// or pooled. The waiting endpoints are activated from a separate task so
// that the caller finishes first.
func (w *Worker) connectionAvailable(srv *server.Server) {
	w.stats.connectionsAvailable++
	if w.activationPending || w.waiting.count(srv) == 0 {
		return
	}
	w.activationPending = true
	w.Execute(func() {
		w.activationPending = false
		w.activateWaiting()
	})
}

// activateWaiting gives every waiting endpoint, oldest first, a chance to
// continue connecting. A server's pass ends at the first endpoint that has
// to wait again.
func (w *Worker) activateWaiting() {
	for _, srv := range w.waiting.servers() {
		// Endpoints that re-register during the pass are handled next time.
		for n := w.waiting.count(srv); n > 0; n-- {
			wt := w.waiting.front(srv)
			if wt == nil {
				break
			}
			w.waiting.remove(wt.ep)

			res, err := wt.ep.ContinueConnecting()
			if res == backend.ContinueWait {
				w.waiting.remove(wt.ep)
				w.waiting.requeueFront(wt)
				break
			}
			if res == backend.ContinueFail {
				if err == nil {
					err = proxyerrors.UnavailableErrorf("could not connect to server %q", srv.Name())
				}
				wt.ep.HandleFailure(err)
			}
		}
	}
}

// failTimedOutEndpoints times out the endpoints that waited longer than
// their session's multiplex timeout.
func (w *Worker) failTimedOutEndpoints() {
	for _, wt := range w.waiting.expired(w.clock.Now()) {
		w.logger.Info("timed out waiting for a backend connection",
			zap.String("server", wt.server.Name()),
			zap.Uint64("session", wt.ep.Session().ID()),
			zap.Duration("waited", w.clock.Now().Sub(wt.since)))
		w.metrics.waitTimeout()
		wt.ep.HandleTimeout()
	}
}
