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

	"github.com/relaykit/relay/internal/clock"
	"github.com/relaykit/relay/pkg/lifecycle"
	"github.com/relaykit/relay/proxyerrors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// mailbox is an unbounded multi-producer queue drained by one loop. A push
// never blocks, so a loop may post to itself.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	spare  []T
	closed bool
	wake   chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{wake: make(chan struct{}, 1)}
}

// push queues v. It returns false once the mailbox is closed.
func (m *mailbox[T]) push(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// close rejects further pushes. Items already queued can still be taken.
func (m *mailbox[T]) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// take returns everything queued so far. The returned slice is valid until
// the next call to take.
func (m *mailbox[T]) take() []T {
	m.mu.Lock()
	out := m.items
	m.items = m.spare[:0]
	m.mu.Unlock()
	m.spare = out
	return out
}

func (m *mailbox[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type task struct {
	fn       func()
	enqueued time.Time
}

// loop is the part shared by routing workers and the coordinator: a task
// queue, delayed calls and the goroutine lifecycle. Everything except the
// mailbox and the lifecycle channels is owned by the loop goroutine.
type loop struct {
	name   string
	clock  clock.Clock
	logger *zap.Logger

	once   *lifecycle.Once
	tasks  *mailbox[task]
	stopCh chan struct{}
	doneCh chan struct{}
	closed atomic.Bool

	dcalls   *dcalls
	timer    clock.Timer
	timerDue time.Time

	maxQueueTime time.Duration
	maxExecTime  time.Duration
}

func newLoop(name string, c clock.Clock, logger *zap.Logger) *loop {
	t := c.Timer(time.Hour)
	t.Stop()
	return &loop{
		name:   name,
		clock:  c,
		logger: logger,
		once:   lifecycle.NewOnce(),
		tasks:  newMailbox[task](),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		dcalls: newDCalls(),
		timer:  t,
	}
}

// Execute queues f to run on the loop and returns immediately. It returns
// false if the loop has stopped and f will never run.
func (l *loop) Execute(f func()) bool {
	if l.closed.Load() {
		return false
	}
	return l.tasks.push(task{fn: f, enqueued: l.clock.Now()})
}

// Call runs f on the loop and waits for it to finish. It must not be called
// from the loop's own goroutine.
func (l *loop) Call(ctx context.Context, f func()) error {
	done := make(chan struct{})
	if !l.Execute(func() {
		defer close(done)
		f()
	}) {
		return proxyerrors.AbortedErrorf("could not call worker thread %q: it has stopped", l.name)
	}

	select {
	case <-done:
		return nil
	case <-l.doneCh:
		// The loop may have run f just before it stopped.
		select {
		case <-done:
			return nil
		default:
		}
		return proxyerrors.AbortedErrorf("could not call worker thread %q: it has stopped", l.name)
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return proxyerrors.DeadlineExceededErrorf("could not call worker thread %q: %v", l.name, ctx.Err())
		}
		return proxyerrors.CancelledErrorf("could not call worker thread %q: %v", l.name, ctx.Err())
	}
}

// DCall registers fn to run on the loop after delay. fn is re-armed for as
// long as it returns true. DCall must be called on the loop.
func (l *loop) DCall(delay time.Duration, fn func(DCallAction) bool) DCallID {
	id := l.dcalls.add(l.clock.Now(), delay, fn)
	l.armTimer()
	return id
}

// CancelDCall cancels a delayed call, which runs once with DCallCancel. It
// must be called on the loop.
func (l *loop) CancelDCall(id DCallID) bool {
	ok := l.dcalls.cancel(id)
	l.armTimer()
	return ok
}

func (l *loop) armTimer() {
	due, ok := l.dcalls.next()
	if !ok {
		l.timer.Stop()
		l.timerDue = time.Time{}
		return
	}
	if due.Equal(l.timerDue) {
		return
	}
	l.timerDue = due
	l.timer.Stop()
	l.timer.Reset(due.Sub(l.clock.Now()))
}

// runDCalls runs due delayed calls and re-arms the timer.
func (l *loop) runDCalls(now time.Time) {
	l.timerDue = time.Time{}
	l.dcalls.runDue(now)
	l.armTimer()
}

// runTasks runs every queued task and returns how many ran.
func (l *loop) runTasks() int {
	batch := l.tasks.take()
	for i := range batch {
		t := batch[i]
		batch[i] = task{}

		start := l.clock.Now()
		if q := start.Sub(t.enqueued); q > l.maxQueueTime {
			l.maxQueueTime = q
		}
		t.fn()
		if e := l.clock.Now().Sub(start); e > l.maxExecTime {
			l.maxExecTime = e
		}
	}
	return len(batch)
}

// start launches run on a new goroutine.
func (l *loop) start(run func()) error {
	if err := l.once.Start(func() error {
		go func() {
			defer close(l.doneCh)
			run()
		}()
		return nil
	}); err != nil {
		return err
	}
	if !l.once.IsRunning() {
		return proxyerrors.FailedPreconditionErrorf("could not start %q: current state is %q", l.name, l.once.State())
	}
	return nil
}

// stop asks the loop to exit and waits for its goroutine.
func (l *loop) stop() error {
	l.closed.Store(true)
	if l.once.State() == lifecycle.Idle {
		return l.once.Stop(func() error { return nil })
	}
	return l.once.Stop(func() error {
		close(l.stopCh)
		<-l.doneCh
		return nil
	})
}

// Done returns a channel that closes once the loop goroutine has returned.
func (l *loop) Done() <-chan struct{} {
	return l.doneCh
}

// runBasic is the loop body of a loop that serves only tasks and delayed
// calls, such as the coordinator.
func (l *loop) runBasic() {
	for {
		select {
		case <-l.tasks.wake:
		case <-l.timer.C():
		case <-l.stopCh:
			l.dcalls.cancelAll()
			return
		}
		l.runDCalls(l.clock.Now())
		l.runTasks()
	}
}
