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
	"sync"
	"time"

	"github.com/relaykit/relay/internal/errorsync"
	"github.com/relaykit/relay/internal/sampledlogger"
	"github.com/relaykit/relay/proxyerrors"
	"github.com/relaykit/relay/server"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Manager owns the routing workers of a process: it starts and stops them,
// scales their number at run time and hands out new connections.
//
// Workers occupy the slots [0, NRunning()) of a fixed array of NMax() slots.
// The first NConfigured() of them are the ones new connections go to; the
// rest are draining or about to be terminated.
type Manager struct {
	opts     managerOptions
	logger   *zap.Logger
	metrics  *managerMetrics
	limitLog *sampledlogger.SampledLogger

	// lifeMu serializes Init, StartWorkers and Finish.
	lifeMu      sync.Mutex
	initialized bool

	// mu guards the slot array. nRunning and nConfigured are written under
	// it and may be read without it.
	mu          sync.RWMutex
	workers     []*Worker
	nRunning    atomic.Int32
	nConfigured atomic.Int32
	next        atomic.Uint32

	sharedAccept chan Accepted

	lmu       sync.Mutex
	listeners []Listener

	coord  *loop
	funnel errorsync.Funnel

	// terminating is owned by the coordinator loop.
	terminating bool
	finishing   atomic.Bool

	sessionID atomic.Uint64

	// beforeStart lets tests fail the start of a given worker.
	beforeStart func(id int) error
}

// New builds a Manager. Init must be called before workers are started.
func New(opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	if o.rebalancePolicy == nil {
		o.rebalancePolicy = ThresholdPolicy{Threshold: o.rebalanceThreshold}
	}
	logger := o.logger.Named("rworker")
	return &Manager{
		opts:         o,
		logger:       logger,
		metrics:      newManagerMetrics(o.meter, logger),
		limitLog:     sampledlogger.New(10*time.Second, logger, sampledlogger.WithClock(o.clock)),
		sharedAccept: make(chan Accepted),
	}
}

// Init allocates maxThreads worker slots and starts the coordinator.
func (m *Manager) Init(maxThreads int) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.initialized {
		return proxyerrors.FailedPreconditionErrorf("routing workers are already initialized")
	}
	if maxThreads < 1 {
		return proxyerrors.InvalidArgumentErrorf("maximum number of routing workers must be at least 1, got %d", maxThreads)
	}

	m.mu.Lock()
	m.workers = make([]*Worker, maxThreads)
	m.nRunning.Store(0)
	m.nConfigured.Store(0)
	m.mu.Unlock()

	m.finishing.Store(false)
	m.terminating = false
	m.coord = newLoop("coordinator", m.opts.clock, m.logger.Named("coordinator"))
	if err := m.coord.start(m.coord.runBasic); err != nil {
		return proxyerrors.InternalErrorf("could not start coordinator: %w", err)
	}
	if period := m.opts.rebalancePeriod; period > 0 {
		m.coord.Execute(func() {
			m.coord.DCall(period, func(a DCallAction) bool {
				if a == DCallExecute {
					ctx, cancel := context.WithTimeout(context.Background(), m.opts.callTimeout)
					m.Rebalance(ctx)
					cancel()
				}
				return true
			})
		})
	}
	m.initialized = true
	m.logger.Info("routing workers initialized", zap.Int("max", maxThreads))
	return nil
}

// StartWorkers creates, starts and activates n workers. When some of them
// fail to start the ones that did keep running and the error describes every
// failure.
func (m *Manager) StartWorkers(n int) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if !m.initialized {
		return proxyerrors.FailedPreconditionErrorf("routing workers are not initialized")
	}
	if m.NRunning() > 0 {
		return proxyerrors.FailedPreconditionErrorf("routing workers are already started")
	}
	if n < 1 || n > m.NMax() {
		return proxyerrors.InvalidArgumentErrorf("number of routing workers must be in [1, %d], got %d", m.NMax(), n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.callTimeout)
	defer cancel()

	var err error
	for i := 0; i < n; i++ {
		w, startErr := m.startWorker(i)
		if startErr != nil {
			err = multierr.Append(err, startErr)
			break
		}
		m.setConfigured(i + 1)
		err = multierr.Append(err, m.activateWorker(ctx, w))
	}
	if listenErr := m.flushListenErrors(); listenErr != nil {
		err = multierr.Append(err, listenErr)
	}
	m.logger.Info("routing workers started", zap.Int("requested", n), zap.Int("running", m.NRunning()))
	return err
}

// startWorker creates the worker for slot i, which must be the first free
// one, and starts its loop.
func (m *Manager) startWorker(i int) (*Worker, error) {
	if m.beforeStart != nil {
		if err := m.beforeStart(i); err != nil {
			return nil, proxyerrors.InternalErrorf("could not start routing worker %d: %w", i, err)
		}
	}
	w := newWorker(m, i)
	if err := w.start(); err != nil {
		return nil, proxyerrors.InternalErrorf("could not start routing worker %d: %w", i, err)
	}

	m.mu.Lock()
	m.workers[i] = w
	m.nRunning.Store(int32(i + 1))
	m.mu.Unlock()
	m.metrics.setRunning(i + 1)
	m.recomputeCapacity()
	return w, nil
}

// activateWorker makes w active on its own loop and moves its listen errors
// into the funnel.
func (m *Manager) activateWorker(ctx context.Context, w *Worker) error {
	return w.Call(ctx, func() {
		w.activate()
		m.funnel.Drain(&w.errs)
	})
}

func (m *Manager) flushListenErrors() error {
	err := m.funnel.Flush()
	if err != nil {
		m.logger.Error("routing workers could not listen", zap.Error(err))
	}
	return err
}

// Finish stops every worker and the coordinator. It must not run
// concurrently with StartWorkers or AdjustThreads.
func (m *Manager) Finish(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if !m.initialized {
		return nil
	}
	m.finishing.Store(true)

	workers := m.runningWorkers()
	err := m.Broadcast(ctx, (*Worker).StopListening)

	// Stopping the coordinator also stops a worker whose termination is in
	// progress.
	err = multierr.Append(err, m.coord.stop())
	for i := len(workers) - 1; i >= 0; i-- {
		err = multierr.Append(err, workers[i].stop())
	}

	m.mu.Lock()
	for i := range m.workers {
		m.workers[i] = nil
	}
	m.nRunning.Store(0)
	m.nConfigured.Store(0)
	m.mu.Unlock()
	m.metrics.setRunning(0)

	m.initialized = false
	m.logger.Info("routing workers finished")
	return err
}

func (m *Manager) setConfigured(n int) {
	m.mu.Lock()
	m.nConfigured.Store(int32(n))
	m.mu.Unlock()
}

// NMax returns the number of worker slots.
func (m *Manager) NMax() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// NRunning returns the number of workers with a running loop.
func (m *Manager) NRunning() int {
	return int(m.nRunning.Load())
}

// NConfigured returns the number of workers that receive new connections.
func (m *Manager) NConfigured() int {
	return int(m.nConfigured.Load())
}

// Worker returns the worker in slot i, or nil.
func (m *Manager) Worker(i int) *Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.workers) {
		return nil
	}
	return m.workers[i]
}

// PickWorker returns the worker the next connection should go to, chosen
// round robin among the configured workers.
func (m *Manager) PickWorker() *Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := uint32(m.nConfigured.Load())
	if n == 0 {
		return nil
	}
	return m.workers[(m.next.Inc()-1)%n]
}

func (m *Manager) runningWorkers() []*Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Worker(nil), m.workers[:m.nRunning.Load()]...)
}

func (m *Manager) configuredWorkers() []*Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Worker(nil), m.workers[:m.nConfigured.Load()]...)
}

// SharedAccept is the channel the accept loops of shared listeners send to.
// A receive only happens while at least one worker is listening.
func (m *Manager) SharedAccept() chan<- Accepted {
	return m.sharedAccept
}

// NextSessionID returns a process-wide unique session id.
func (m *Manager) NextSessionID() uint64 {
	return m.sessionID.Inc()
}

// AddListener registers l. Workers that are already listening start
// listening on it when it is unique.
func (m *Manager) AddListener(ctx context.Context, l Listener) error {
	m.lmu.Lock()
	for _, o := range m.listeners {
		if o.Name() == l.Name() {
			m.lmu.Unlock()
			return proxyerrors.AlreadyExistsErrorf("listener %q is already registered", l.Name())
		}
	}
	m.listeners = append(m.listeners, l)
	m.lmu.Unlock()

	if l.Shared() || !m.hasWorkers() {
		return nil
	}
	err := m.Broadcast(ctx, func(w *Worker) {
		if w.listening {
			if err := l.ListenOn(w); err != nil {
				w.errs.Add(proxyerrors.UnavailableErrorf("worker %d could not listen on %q: %w", w.id, l.Name(), err))
			}
			m.funnel.Drain(&w.errs)
		}
	})
	return multierr.Append(err, m.flushListenErrors())
}

// RemoveListener unregisters the listener with the given name.
func (m *Manager) RemoveListener(ctx context.Context, name string) error {
	var removed Listener
	m.lmu.Lock()
	for i, l := range m.listeners {
		if l.Name() == name {
			removed = l
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			break
		}
	}
	m.lmu.Unlock()

	if removed == nil {
		return proxyerrors.NotFoundErrorf("listener %q is not registered", name)
	}
	if removed.Shared() || !m.hasWorkers() {
		return nil
	}
	return m.Broadcast(ctx, func(w *Worker) {
		if w.listening {
			removed.UnlistenOn(w)
		}
	})
}

func (m *Manager) snapshotListeners() []Listener {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	return append([]Listener(nil), m.listeners...)
}

func (m *Manager) hasWorkers() bool {
	return m.NMax() > 0 && m.NRunning() > 0
}

// Broadcast runs f on every running worker and waits for all of them.
func (m *Manager) Broadcast(ctx context.Context, f func(*Worker)) error {
	var ew errorsync.ErrorWaiter
	for _, w := range m.runningWorkers() {
		w := w
		ew.Submit(func() error {
			return w.Call(ctx, func() { f(w) })
		})
	}
	return ew.Wait()
}

// SetListenMode makes worker i start or stop listening.
func (m *Manager) SetListenMode(ctx context.Context, i int, enabled bool) error {
	w := m.Worker(i)
	if w == nil {
		return proxyerrors.NotFoundErrorf("routing worker %d is not running", i)
	}
	err := w.Call(ctx, func() {
		if enabled {
			w.StartListening()
			m.funnel.Drain(&w.errs)
		} else {
			w.StopListening()
		}
	})
	return multierr.Append(err, m.flushListenErrors())
}

// SetPoolCapacity changes the global pool capacity of srv and applies the
// new local share on every worker.
func (m *Manager) SetPoolCapacity(ctx context.Context, srv *server.Server, size int) error {
	if size < 0 {
		return proxyerrors.InvalidArgumentErrorf("pool capacity of %q must not be negative, got %d", srv.Name(), size)
	}
	srv.SetPoolCapacity(size)
	return m.Broadcast(ctx, (*Worker).recomputePoolCapacity)
}

// ServerDown marks srv unhealthy and closes its pooled connections on every
// worker.
func (m *Manager) ServerDown(ctx context.Context, srv *server.Server) error {
	srv.SetHealthy(false)
	return m.Broadcast(ctx, func(w *Worker) {
		if n := w.CloseServerPool(srv); n > 0 {
			w.logger.Info("closed pooled connections of a server that is down",
				zap.String("server", srv.Name()), zap.Int("count", n))
		}
	})
}

// Statistics returns the statistics of every running worker combined.
func (m *Manager) Statistics(ctx context.Context) (Statistics, error) {
	var (
		mu  sync.Mutex
		all []Statistics
	)
	err := m.Broadcast(ctx, func(w *Worker) {
		s := w.Statistics()
		mu.Lock()
		all = append(all, s)
		mu.Unlock()
	})
	return aggregate(all), err
}

// WorkerStatistics returns the statistics of worker i.
func (m *Manager) WorkerStatistics(ctx context.Context, i int) (Statistics, error) {
	w := m.Worker(i)
	if w == nil {
		return Statistics{}, proxyerrors.NotFoundErrorf("routing worker %d is not running", i)
	}
	var s Statistics
	err := w.Call(ctx, func() { s = w.Statistics() })
	return s, err
}

// PoolStatistics returns the pool statistics for srv summed over all
// workers.
func (m *Manager) PoolStatistics(ctx context.Context, srv *server.Server) (PoolStats, error) {
	var (
		mu    sync.Mutex
		total PoolStats
	)
	err := m.Broadcast(ctx, func(w *Worker) {
		if s, ok := w.PoolStatistics(srv); ok {
			mu.Lock()
			total.add(s)
			mu.Unlock()
		}
	})
	return total, err
}

// recomputeCapacity asks every running worker to apply the local pool
// capacity for the current number of running workers.
func (m *Manager) recomputeCapacity() {
	for _, w := range m.runningWorkers() {
		w.Execute(w.recomputePoolCapacity)
	}
}
