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

// State is the lifecycle state of a routing worker.
type State int32

const (
	// Dormant workers route nothing and do not listen.
	Dormant State = iota
	// Active workers listen and route.
	Active
	// Draining workers no longer listen but still route their sessions.
	Draining
)

func (s State) String() string {
	switch s {
	case Dormant:
		return "dormant"
	case Active:
		return "active"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// Statistics are the counters of one worker, or the aggregate of several.
type Statistics struct {
	Reads   int64
	Writes  int64
	Errors  int64
	Hangups int64
	Accepts int64

	// Polls counts the wakeups of the loop.
	Polls int64
	// PollsWithEvents counts wakeups that delivered at least one I/O event.
	PollsWithEvents int64

	// EventQueueAvg and EventQueueMax describe the number of I/O events
	// handled per wakeup.
	EventQueueAvg int64
	EventQueueMax int64

	// MaxQueueTime is the longest time a task waited before running, and
	// MaxExecTime the longest time a task ran.
	MaxQueueTime time.Duration
	MaxExecTime  time.Duration

	// CurrentDescriptors and TotalDescriptors count live and ever-created
	// connections.
	CurrentDescriptors int64
	TotalDescriptors   int64

	// ConnectionsAvailable counts the notifications that a backend slot was
	// freed.
	ConnectionsAvailable int64

	Sessions int64
	Zombies  int64
	Waiting  int64

	// Load1s, Load1m and Load1h are busy percentages.
	Load1s int
	Load1m int
	Load1h int
}

// aggregate sums counters and takes the maximum of maxima. Averages and
// loads are averaged over the inputs.
func aggregate(all []Statistics) Statistics {
	var s Statistics
	if len(all) == 0 {
		return s
	}
	for _, o := range all {
		s.Reads += o.Reads
		s.Writes += o.Writes
		s.Errors += o.Errors
		s.Hangups += o.Hangups
		s.Accepts += o.Accepts
		s.Polls += o.Polls
		s.PollsWithEvents += o.PollsWithEvents
		s.EventQueueAvg += o.EventQueueAvg
		if o.EventQueueMax > s.EventQueueMax {
			s.EventQueueMax = o.EventQueueMax
		}
		if o.MaxQueueTime > s.MaxQueueTime {
			s.MaxQueueTime = o.MaxQueueTime
		}
		if o.MaxExecTime > s.MaxExecTime {
			s.MaxExecTime = o.MaxExecTime
		}
		s.CurrentDescriptors += o.CurrentDescriptors
		s.TotalDescriptors += o.TotalDescriptors
		s.ConnectionsAvailable += o.ConnectionsAvailable
		s.Sessions += o.Sessions
		s.Zombies += o.Zombies
		s.Waiting += o.Waiting
		s.Load1s += o.Load1s
		s.Load1m += o.Load1m
		s.Load1h += o.Load1h
	}
	n := len(all)
	s.EventQueueAvg /= int64(n)
	s.Load1s /= n
	s.Load1m /= n
	s.Load1h /= n
	return s
}

// counters is the loop-owned mutable part of a worker's statistics.
type counters struct {
	reads, writes, errors, hangups, accepts int64
	polls, pollsWithEvents                  int64
	eventBatches, eventTotal, eventMax      int64
	totalDescriptors                        int64
	connectionsAvailable                    int64
}

func (c *counters) recordEvents(n int) {
	c.eventBatches++
	c.eventTotal += int64(n)
	if int64(n) > c.eventMax {
		c.eventMax = int64(n)
	}
}

func (c *counters) eventAvg() int64 {
	if c.eventBatches == 0 {
		return 0
	}
	return c.eventTotal / c.eventBatches
}
