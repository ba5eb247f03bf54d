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

	"github.com/relaykit/relay/proxyerrors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AdjustThreads changes the number of configured workers to target.
//
// Decreasing stops the highest workers from listening. A worker without
// sessions is deactivated right away; one with sessions drains and is
// deactivated when its last session closes. Deactivated workers are
// terminated from the top slot down. Increasing first reactivates workers
// that are still running, then starts new ones.
func (m *Manager) AdjustThreads(ctx context.Context, target int) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if !m.initialized {
		return proxyerrors.FailedPreconditionErrorf("routing workers are not initialized")
	}
	if target < 1 || target > m.NMax() {
		return proxyerrors.InvalidArgumentErrorf("number of routing workers must be in [1, %d], got %d", m.NMax(), target)
	}

	var err error
	callErr := m.coord.Call(ctx, func() {
		cur := m.NConfigured()
		switch {
		case target < cur:
			err = m.decrease(ctx, target)
		case target > cur:
			err = m.increase(ctx, target)
		}
	})
	if callErr != nil {
		return callErr
	}
	m.logger.Info("adjusted routing workers",
		zap.Int("target", target),
		zap.Int("configured", m.NConfigured()),
		zap.Int("running", m.NRunning()))
	return err
}

func (m *Manager) decrease(ctx context.Context, target int) error {
	var err error
	for i := m.NConfigured() - 1; i >= target; i-- {
		w := m.Worker(i)
		m.setConfigured(i)
		if callErr := w.Call(ctx, w.drainOrDeactivate); callErr != nil {
			m.setConfigured(i + 1)
			err = multierr.Append(err, callErr)
			break
		}
	}
	return err
}

func (m *Manager) increase(ctx context.Context, target int) error {
	var err error
	for i := m.NConfigured(); i < target; i++ {
		var w *Worker
		if i < m.NRunning() {
			w = m.Worker(i)
		} else {
			var startErr error
			if w, startErr = m.startWorker(i); startErr != nil {
				err = multierr.Append(err, startErr)
				break
			}
		}
		if callErr := m.activateWorker(ctx, w); callErr != nil {
			err = multierr.Append(err, callErr)
			break
		}
		m.setConfigured(i + 1)
	}
	return multierr.Append(err, m.flushListenErrors())
}

// checkTermination terminates the highest running worker if it is no longer
// configured and has been deactivated. It runs on the coordinator, handles
// one worker at a time and checks again once that worker is gone.
func (m *Manager) checkTermination() {
	if m.terminating || m.finishing.Load() {
		return
	}

	m.mu.Lock()
	i := int(m.nRunning.Load()) - 1
	if i < 0 || i < int(m.nConfigured.Load()) {
		m.mu.Unlock()
		return
	}
	w := m.workers[i]
	if w.State() != Dormant {
		m.mu.Unlock()
		return
	}
	m.workers[i] = nil
	m.nRunning.Store(int32(i))
	m.mu.Unlock()

	m.terminating = true
	m.metrics.setRunning(i)
	m.recomputeCapacity()
	m.logger.Info("terminating routing worker", zap.Int("worker", i))

	terminate := func() {
		if err := w.stop(); err != nil {
			m.logger.Error("could not stop routing worker", zap.Int("worker", i), zap.Error(err))
		}
		m.terminating = false
	}

	if w.quiescent() {
		terminate()
		m.checkTermination()
		return
	}

	deadline := m.opts.clock.Now().Add(m.opts.terminationDelay)
	m.coord.DCall(terminationPollInterval, func(a DCallAction) bool {
		if a == DCallCancel {
			terminate()
			return false
		}
		if !w.quiescent() && m.opts.clock.Now().Before(deadline) {
			return true
		}
		if !w.quiescent() {
			m.logger.Warn("routing worker did not quiesce in time",
				zap.Int("worker", i), zap.Duration("delay", m.opts.terminationDelay))
		}
		terminate()
		m.checkTermination()
		return false
	})
}
