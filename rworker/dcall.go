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
	"container/heap"
	"time"
)

// DCallAction tells a delayed-call callback why it runs.
type DCallAction int

const (
	// DCallExecute means the delay elapsed.
	DCallExecute DCallAction = iota
	// DCallCancel means the call was cancelled; the return value is ignored.
	DCallCancel
)

// DCallID identifies a delayed call on its loop. The zero ID is never used.
type DCallID uint64

type dcall struct {
	id    DCallID
	due   time.Time
	delay time.Duration
	fn    func(DCallAction) bool
	index int
}

// dcallHeap orders delayed calls by due time, then by registration order.
type dcallHeap []*dcall

func (h dcallHeap) Len() int { return len(h) }

func (h dcallHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].id < h[j].id
	}
	return h[i].due.Before(h[j].due)
}

func (h dcallHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *dcallHeap) Push(x interface{}) {
	d := x.(*dcall)
	d.index = len(*h)
	*h = append(*h, d)
}

func (h *dcallHeap) Pop() interface{} {
	old := *h
	d := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	d.index = -1
	return d
}

// dcalls is the delayed-call table of one loop. It is only touched by the
// loop goroutine.
type dcalls struct {
	heap   dcallHeap
	byID   map[DCallID]*dcall
	nextID DCallID
}

func newDCalls() *dcalls {
	return &dcalls{byID: make(map[DCallID]*dcall)}
}

func (d *dcalls) add(now time.Time, delay time.Duration, fn func(DCallAction) bool) DCallID {
	d.nextID++
	c := &dcall{
		id:    d.nextID,
		due:   now.Add(delay),
		delay: delay,
		fn:    fn,
	}
	heap.Push(&d.heap, c)
	d.byID[c.id] = c
	return c.id
}

func (d *dcalls) cancel(id DCallID) bool {
	c, ok := d.byID[id]
	if !ok {
		return false
	}
	delete(d.byID, id)
	if c.index >= 0 {
		heap.Remove(&d.heap, c.index)
	}
	c.fn(DCallCancel)
	return true
}

func (d *dcalls) cancelAll() {
	for len(d.heap) > 0 {
		d.cancel(d.heap[0].id)
	}
}

// runDue runs every call due at or before now. A callback that returns true
// is re-armed relative to now; re-armed calls do not run again in the same
// pass even when their delay is zero.
func (d *dcalls) runDue(now time.Time) {
	var rearm []*dcall
	for len(d.heap) > 0 && !d.heap[0].due.After(now) {
		c := heap.Pop(&d.heap).(*dcall)
		if c.fn(DCallExecute) {
			// The callback may have cancelled itself.
			if _, ok := d.byID[c.id]; ok {
				rearm = append(rearm, c)
			}
		} else {
			delete(d.byID, c.id)
		}
	}
	for _, c := range rearm {
		c.due = now.Add(c.delay)
		heap.Push(&d.heap, c)
	}
}

// next returns the due time of the earliest call.
func (d *dcalls) next() (time.Time, bool) {
	if len(d.heap) == 0 {
		return time.Time{}, false
	}
	return d.heap[0].due, true
}

func (d *dcalls) len() int {
	return len(d.heap)
}
