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

package clock

import (
	"container/heap"
	"runtime"
	"sync"
	"time"
)

// FakeClock is a clock that only moves forward when told to. Timers fire
// synchronously from Add and Set, in deadline order.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers timers
}

var _ Clock = (*FakeClock)(nil)

// NewFake returns a fake clock whose current time is the Unix epoch.
func NewFake() *FakeClock {
	// Unix(0, 0) rather than the zero time so that a zero time.Time can mean
	// "never" in the code under test.
	return &FakeClock{now: time.Unix(0, 0)}
}

// Add moves the current time of the fake clock forward by the duration.
// This should only be called from a single goroutine at a time.
func (fc *FakeClock) Add(d time.Duration) {
	fc.mu.Lock()
	end := fc.now.Add(d)
	fc.mu.Unlock()
	fc.Set(end)
}

// Set advances the current time of the fake clock to the given absolute
// time. Setting a time in the past is a no-op.
func (fc *FakeClock) Set(end time.Time) {
	fc.mu.Lock()
	for len(fc.timers) > 0 && !fc.timers[0].time.After(end) {
		t := heap.Pop(&fc.timers).(*FakeTimer)
		if fc.now.Before(t.time) {
			fc.now = t.time
		}
		fc.mu.Unlock()
		t.fire()
		fc.mu.Lock()
	}
	if fc.now.Before(end) {
		fc.now = end
	}
	fc.mu.Unlock()
	nap()
}

// FakeTimer produces a timer that will emit a time some duration after now,
// exposing the fake timer internals and type.
func (fc *FakeClock) FakeTimer(d time.Duration) *FakeTimer {
	t := &FakeTimer{
		c:     make(chan time.Time, 1),
		clock: fc,
		index: -1,
	}
	t.Reset(d)
	return t
}

// Timer produces a timer that will emit a time some duration after now.
func (fc *FakeClock) Timer(d time.Duration) Timer {
	return fc.FakeTimer(d)
}

// After produces a channel that will emit the time after a duration passes.
func (fc *FakeClock) After(d time.Duration) <-chan time.Time {
	return fc.FakeTimer(d).C()
}

// AfterFunc runs f in its own goroutine once the duration elapses on the
// fake clock.
func (fc *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &FakeTimer{
		c:     make(chan time.Time, 1),
		clock: fc,
		index: -1,
		fn:    f,
	}
	t.Reset(d)
	return t
}

// Now returns the current time on the fake clock.
func (fc *FakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

// Sleep pauses the goroutine for the given duration on the fake clock.
// The clock must be moved forward in a separate goroutine.
func (fc *FakeClock) Sleep(d time.Duration) {
	<-fc.After(d)
}

// Pending returns the number of timers that have not fired yet.
func (fc *FakeClock) Pending() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.timers)
}

// FakeTimer represents a single event on a FakeClock.
type FakeTimer struct {
	c     chan time.Time
	time  time.Time
	clock *FakeClock
	index int
	fn    func()
}

// C returns a channel that will send the time when it fires.
func (t *FakeTimer) C() <-chan time.Time {
	return t.c
}

func (t *FakeTimer) fire() {
	if t.fn != nil {
		go t.fn()
		return
	}
	select {
	case t.c <- t.time:
	default:
	}
}

// Reset schedules the timer d after the clock's current time. It reports
// whether the timer was still pending. A non-positive d fires immediately.
func (t *FakeTimer) Reset(d time.Duration) bool {
	fc := t.clock
	fc.mu.Lock()

	select {
	case <-t.c:
	default:
	}

	t.time = fc.now.Add(d)
	wasPending := t.index >= 0
	if wasPending {
		heap.Fix(&fc.timers, t.index)
	} else {
		heap.Push(&fc.timers, t)
	}
	now := fc.now
	fc.mu.Unlock()

	if d <= 0 {
		fc.Set(now)
	}
	return wasPending
}

// Stop removes the timer from the clock. It reports whether the timer was
// still pending.
func (t *FakeTimer) Stop() bool {
	fc := t.clock
	fc.mu.Lock()
	defer fc.mu.Unlock()

	select {
	case <-t.c:
	default:
	}

	if t.index < 0 {
		return false
	}
	heap.Remove(&fc.timers, t.index)
	return true
}

func nap() {
	runtime.Gosched()
}
