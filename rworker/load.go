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

import "time"

// averageN is the running average of the last n samples.
type averageN struct {
	samples []int
	pos     int
	full    bool
	sum     int
}

func newAverageN(n int) *averageN {
	return &averageN{samples: make([]int, n)}
}

// add records v and reports whether the ring wrapped around.
func (a *averageN) add(v int) bool {
	a.sum += v - a.samples[a.pos]
	a.samples[a.pos] = v
	a.pos++
	if a.pos == len(a.samples) {
		a.pos = 0
		a.full = true
		return true
	}
	return false
}

func (a *averageN) count() int {
	if a.full {
		return len(a.samples)
	}
	return a.pos
}

func (a *averageN) value() int {
	n := a.count()
	if n == 0 {
		return 0
	}
	return a.sum / n
}

// recent returns the average of the last n samples.
func (a *averageN) recent(n int) int {
	c := a.count()
	if n > c {
		n = c
	}
	if n <= 0 {
		return 0
	}
	sum := 0
	for i := 1; i <= n; i++ {
		sum += a.samples[(a.pos-i+len(a.samples))%len(a.samples)]
	}
	return sum / n
}

// Load measures how busy a loop is: the percentage of wall time spent
// outside of the wait for work. One-second samples cascade into a one
// minute average, and minute averages into a one hour average.
type Load struct {
	start     time.Time
	waitStart time.Time
	waited    time.Duration

	second int
	minute *averageN
	hour   *averageN
}

func newLoad(now time.Time) *Load {
	return &Load{
		start:  now,
		minute: newAverageN(60),
		hour:   newAverageN(60),
	}
}

func (l *Load) beginWait(now time.Time) {
	l.waitStart = now
}

func (l *Load) endWait(now time.Time) {
	if !l.waitStart.IsZero() {
		l.waited += now.Sub(l.waitStart)
		l.waitStart = time.Time{}
	}
}

// tick closes the current one-second sample if it is due.
func (l *Load) tick(now time.Time) {
	elapsed := now.Sub(l.start)
	if elapsed < time.Second {
		return
	}

	busy := elapsed - l.waited
	if busy < 0 {
		busy = 0
	}
	l.second = int(100 * busy / elapsed)
	if l.minute.add(l.second) {
		l.hour.add(l.minute.value())
	}
	l.start = now
	l.waited = 0
}

// Second returns the busy percentage of the last complete second.
func (l *Load) Second() int { return l.second }

// Minute returns the average of the last 60 one-second samples.
func (l *Load) Minute() int { return l.minute.value() }

// Hour returns the average of the last 60 minute averages.
func (l *Load) Hour() int { return l.hour.value() }

// Window returns the average of the last n one-second samples, where n is at
// most 60.
func (l *Load) Window(n int) int { return l.minute.recent(n) }
