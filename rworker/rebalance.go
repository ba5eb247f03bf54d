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
	"sort"

	"go.uber.org/zap"
)

// WorkerLoad is the load sample of one active worker as seen by a
// RebalancePolicy.
type WorkerLoad struct {
	ID       int
	Load     int
	Sessions int
}

// Move asks the worker From to migrate N sessions to the worker To.
type Move struct {
	From int
	To   int
	N    int
}

// RebalancePolicy decides whether sessions should migrate between workers.
type RebalancePolicy interface {
	Decide(loads []WorkerLoad) (Move, bool)
}

// ThresholdPolicy moves sessions from the busiest to the idlest worker when
// their loads differ by at least Threshold percentage points. One session
// moves per Threshold of difference, at most half of the busiest worker's
// sessions and never fewer than one.
type ThresholdPolicy struct {
	Threshold int
}

var _ RebalancePolicy = ThresholdPolicy{}

// Decide implements RebalancePolicy.
func (p ThresholdPolicy) Decide(loads []WorkerLoad) (Move, bool) {
	if len(loads) < 2 || p.Threshold <= 0 {
		return Move{}, false
	}
	hi, lo := loads[0], loads[0]
	for _, l := range loads[1:] {
		if l.Load > hi.Load {
			hi = l
		}
		if l.Load < lo.Load {
			lo = l
		}
	}
	if hi.ID == lo.ID || hi.Sessions == 0 || hi.Load-lo.Load < p.Threshold {
		return Move{}, false
	}
	n := (hi.Load - lo.Load) / p.Threshold
	if half := hi.Sessions / 2; n > half {
		n = half
	}
	if n < 1 {
		n = 1
	}
	return Move{From: hi.ID, To: lo.ID, N: n}, true
}

type rebalanceRequest struct {
	to *Worker
	n  int
}

// Rebalance compares the loads of the active workers and, if the policy
// says so, asks the busiest to move sessions. It must run on the
// coordinator; the move itself happens later on the source worker.
func (m *Manager) Rebalance(ctx context.Context) {
	workers := m.configuredWorkers()
	loads := make([]WorkerLoad, 0, len(workers))
	for _, w := range workers {
		var l WorkerLoad
		err := w.Call(ctx, func() {
			l = WorkerLoad{
				ID:       w.id,
				Load:     w.load.Window(m.opts.rebalanceWindow),
				Sessions: len(w.sessions),
			}
		})
		if err != nil {
			m.logger.Warn("could not sample worker load", zap.Int("worker", w.id), zap.Error(err))
			return
		}
		if w.State() == Active {
			loads = append(loads, l)
		}
	}

	mv, ok := m.opts.rebalancePolicy.Decide(loads)
	if !ok || mv.N <= 0 {
		return
	}
	from, to := m.Worker(mv.From), m.Worker(mv.To)
	if from == nil || to == nil || from == to {
		return
	}
	m.logger.Info("rebalancing sessions",
		zap.Int("from", mv.From), zap.Int("to", mv.To), zap.Int("count", mv.N))
	from.Execute(func() {
		from.rebalance = &rebalanceRequest{to: to, n: mv.N}
	})
}

// RequestRebalance asks w to move up to n sessions to target at the end of
// its current loop iteration.
func (w *Worker) RequestRebalance(target *Worker, n int) {
	w.rebalance = &rebalanceRequest{to: target, n: n}
}

func (w *Worker) movable(e *sessionEntry) bool {
	return !e.closing && e.session.IsMovable() && !w.waiting.hasSession(e.session)
}

// moveSessions migrates up to n sessions to target. With n == 1 the most
// active movable session goes, otherwise the first n in id order.
func (w *Worker) moveSessions(target *Worker, n int) int {
	if target == nil || target == w || n <= 0 || target.State() != Active {
		return 0
	}
	var candidates []*sessionEntry
	for _, e := range w.sortedSessions() {
		if w.movable(e) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return 0
	}
	if n == 1 {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].session.IOActivity() > candidates[j].session.IOActivity()
		})
	}
	if n < len(candidates) {
		candidates = candidates[:n]
	}

	moved := 0
	for _, e := range candidates {
		if w.moveSession(e, target) {
			moved++
		}
	}
	if moved > 0 {
		w.logger.Info("moved sessions", zap.Int("to", target.id), zap.Int("count", moved))
	}
	if w.State() == Draining && len(w.sessions) == 0 {
		w.deactivate()
	}
	return moved
}

func (w *Worker) moveSession(e *sessionEntry, target *Worker) bool {
	dcbs := make([]*DCB, 0, 1+len(e.backends))
	dcbs = append(dcbs, e.client)
	for b := range e.backends {
		dcbs = append(dcbs, b)
	}

	id := e.session.ID()
	for _, d := range dcbs {
		w.dcbs.Remove(d.key)
		w.nDCBs.Dec()
	}
	delete(w.sessions, id)
	w.nSessions.Dec()

	// The docking task has to be queued on the target before any event can
	// reach it through the new owner pointer.
	if !target.Execute(func() { target.dock(e, dcbs) }) {
		for _, d := range dcbs {
			d.key = w.dcbs.Insert(d)
			w.nDCBs.Inc()
		}
		w.sessions[id] = e
		w.nSessions.Inc()
		return false
	}
	for _, d := range dcbs {
		d.worker.Store(target)
	}
	return true
}

// dock adopts a session moved from another worker.
func (w *Worker) dock(e *sessionEntry, dcbs []*DCB) {
	for _, d := range dcbs {
		d.key = w.dcbs.Insert(d)
		w.nDCBs.Inc()
	}
	w.sessions[e.session.ID()] = e
	w.nSessions.Inc()
	w.logger.Debug("session docked", zap.Uint64("session", e.session.ID()))
}
