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
	"strconv"

	"github.com/relaykit/relay/server"
	"go.uber.org/net/metrics"
	"go.uber.org/zap"
)

const (
	_workerTag = "worker"
	_serverTag = "server"
)

// managerMetrics are the metrics shared by every worker. All fields are nil
// when the manager has no meter.
type managerMetrics struct {
	sessions     *metrics.GaugeVector
	load         *metrics.GaugeVector
	descriptors  *metrics.GaugeVector
	zombies      *metrics.GaugeVector
	waiting      *metrics.GaugeVector
	poolSize     *metrics.GaugeVector
	accepts      *metrics.CounterVector
	poolHits     *metrics.CounterVector
	poolMisses   *metrics.CounterVector
	limitRejects *metrics.CounterVector
	waitTimeouts *metrics.CounterVector
	running      *metrics.Gauge
}

func newManagerMetrics(meter *metrics.Scope, logger *zap.Logger) *managerMetrics {
	mm := &managerMetrics{}
	if meter == nil {
		return mm
	}

	gaugeVec := func(name, help string, tags ...string) *metrics.GaugeVector {
		g, err := meter.GaugeVector(metrics.Spec{Name: name, Help: help, VarTags: tags})
		if err != nil {
			logger.DPanic("failed to create gauge", zap.String("name", name), zap.Error(err))
		}
		return g
	}
	counterVec := func(name, help string, tags ...string) *metrics.CounterVector {
		c, err := meter.CounterVector(metrics.Spec{Name: name, Help: help, VarTags: tags})
		if err != nil {
			logger.DPanic("failed to create counter", zap.String("name", name), zap.Error(err))
		}
		return c
	}

	mm.sessions = gaugeVec("sessions", "Sessions registered on a worker.", _workerTag)
	mm.load = gaugeVec("load_1s", "Busy percentage of a worker over the last second.", _workerTag)
	mm.descriptors = gaugeVec("descriptors", "Live connections owned by a worker.", _workerTag)
	mm.zombies = gaugeVec("zombies", "Connections waiting to be closed.", _workerTag)
	mm.waiting = gaugeVec("waiting_endpoints", "Endpoints waiting for a backend connection.", _workerTag)
	mm.poolSize = gaugeVec("pool_size", "Idle pooled backend connections.", _workerTag, _serverTag)
	mm.accepts = counterVec("accepts", "Client connections accepted.", _workerTag)
	mm.poolHits = counterVec("pool_hits", "Backend connections reused from a pool.", _workerTag, _serverTag)
	mm.poolMisses = counterVec("pool_misses", "Pool lookups that found nothing reusable.", _workerTag, _serverTag)
	mm.limitRejects = counterVec("connection_limit_rejections", "Connection attempts refused at the server limit.", _workerTag, _serverTag)
	mm.waitTimeouts = counterVec("wait_timeouts", "Endpoints that timed out waiting for a connection.", _workerTag)

	running, err := meter.Gauge(metrics.Spec{Name: "workers_running", Help: "Routing workers with a running loop."})
	if err != nil {
		logger.DPanic("failed to create gauge", zap.String("name", "workers_running"), zap.Error(err))
	}
	mm.running = running
	return mm
}

func (mm *managerMetrics) setRunning(n int) {
	if mm.running != nil {
		mm.running.Store(int64(n))
	}
}

func (mm *managerMetrics) forWorker(id int) *workerMetrics {
	return &workerMetrics{mm: mm, worker: strconv.Itoa(id)}
}

// workerMetrics binds the shared vectors to one worker. It is used only on
// that worker's loop.
type workerMetrics struct {
	mm     *managerMetrics
	worker string
}

func (wm *workerMetrics) accepted() {
	if v := wm.mm.accepts; v != nil {
		v.MustGet(_workerTag, wm.worker).Inc()
	}
}

func (wm *workerMetrics) poolHit(srv *server.Server) {
	if v := wm.mm.poolHits; v != nil {
		v.MustGet(_workerTag, wm.worker, _serverTag, srv.Name()).Inc()
	}
}

func (wm *workerMetrics) poolMiss(srv *server.Server) {
	if v := wm.mm.poolMisses; v != nil {
		v.MustGet(_workerTag, wm.worker, _serverTag, srv.Name()).Inc()
	}
}

func (wm *workerMetrics) connectionLimit(srv *server.Server) {
	if v := wm.mm.limitRejects; v != nil {
		v.MustGet(_workerTag, wm.worker, _serverTag, srv.Name()).Inc()
	}
}

func (wm *workerMetrics) waitTimeout() {
	if v := wm.mm.waitTimeouts; v != nil {
		v.MustGet(_workerTag, wm.worker).Inc()
	}
}

func (wm *workerMetrics) store(v *metrics.GaugeVector, n int64) {
	if v != nil {
		v.MustGet(_workerTag, wm.worker).Store(n)
	}
}

// refresh updates the gauges of w from its loop.
func (wm *workerMetrics) refresh(w *Worker) {
	wm.store(wm.mm.sessions, int64(len(w.sessions)))
	wm.store(wm.mm.load, int64(w.load.Second()))
	wm.store(wm.mm.descriptors, int64(w.dcbs.Len()))
	wm.store(wm.mm.zombies, int64(len(w.zombies)))
	wm.store(wm.mm.waiting, int64(w.waiting.len()))
	if v := wm.mm.poolSize; v != nil {
		for srv, pool := range w.pools {
			v.MustGet(_workerTag, wm.worker, _serverTag, srv.Name()).Store(int64(pool.Len()))
		}
	}
}
