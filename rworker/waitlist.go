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
	"container/list"
	"time"

	"github.com/relaykit/relay/api/backend"
	"github.com/relaykit/relay/proxyerrors"
	"github.com/relaykit/relay/server"
)

type waiter struct {
	ep     backend.Endpoint
	server *server.Server
	since  time.Time
	elem   *list.Element
}

// waitRegistry holds, per server, the endpoints of one worker that are
// waiting for a backend connection, oldest first. An endpoint is in at most
// one queue.
type waitRegistry struct {
	queues map[*server.Server]*list.List
	// order keeps the servers in first-use order so passes are deterministic.
	order []*server.Server
	index map[backend.Endpoint]*waiter
}

func newWaitRegistry() *waitRegistry {
	return &waitRegistry{
		queues: make(map[*server.Server]*list.List),
		index:  make(map[backend.Endpoint]*waiter),
	}
}

func (r *waitRegistry) add(srv *server.Server, ep backend.Endpoint, now time.Time) error {
	if w, ok := r.index[ep]; ok {
		return proxyerrors.AlreadyExistsErrorf("endpoint is already waiting for server %q", w.server.Name())
	}
	q, ok := r.queues[srv]
	if !ok {
		q = list.New()
		r.queues[srv] = q
		r.order = append(r.order, srv)
	}
	w := &waiter{ep: ep, server: srv, since: now}
	w.elem = q.PushBack(w)
	r.index[ep] = w
	return nil
}

func (r *waitRegistry) remove(ep backend.Endpoint) (*waiter, bool) {
	w, ok := r.index[ep]
	if !ok {
		return nil, false
	}
	delete(r.index, ep)
	r.queues[w.server].Remove(w.elem)
	return w, true
}

// requeueFront puts a waiter back at the head of its queue keeping its
// original wait start.
func (r *waitRegistry) requeueFront(w *waiter) {
	q := r.queues[w.server]
	w.elem = q.PushFront(w)
	r.index[w.ep] = w
}

func (r *waitRegistry) front(srv *server.Server) *waiter {
	q, ok := r.queues[srv]
	if !ok || q.Len() == 0 {
		return nil
	}
	return q.Front().Value.(*waiter)
}

func (r *waitRegistry) count(srv *server.Server) int {
	if q, ok := r.queues[srv]; ok {
		return q.Len()
	}
	return 0
}

func (r *waitRegistry) len() int {
	return len(r.index)
}

// hasSession reports whether any waiting endpoint belongs to s.
func (r *waitRegistry) hasSession(s backend.Session) bool {
	for ep := range r.index {
		if ep.Session() == s {
			return true
		}
	}
	return false
}

// servers returns the servers with at least one waiter in first-use order.
func (r *waitRegistry) servers() []*server.Server {
	out := make([]*server.Server, 0, len(r.order))
	for _, srv := range r.order {
		if r.queues[srv].Len() > 0 {
			out = append(out, srv)
		}
	}
	return out
}

// expired removes and returns every waiter whose session's multiplex
// timeout has elapsed at now.
func (r *waitRegistry) expired(now time.Time) []*waiter {
	var out []*waiter
	for _, srv := range r.order {
		q := r.queues[srv]
		for e := q.Front(); e != nil; {
			next := e.Next()
			w := e.Value.(*waiter)
			if timeout := w.ep.Session().MultiplexTimeout(); timeout > 0 && now.Sub(w.since) >= timeout {
				q.Remove(e)
				delete(r.index, w.ep)
				out = append(out, w)
			}
			e = next
		}
	}
	return out
}

// removeSession removes every waiter of s and returns them.
func (r *waitRegistry) removeSession(s backend.Session) []*waiter {
	var out []*waiter
	for ep, w := range r.index {
		if ep.Session() == s {
			out = append(out, w)
		}
	}
	for _, w := range out {
		r.remove(w.ep)
	}
	return out
}
