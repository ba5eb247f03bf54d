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

// Package backend declares the collaborators the routing core drives but
// does not implement: client sessions, backend connections, the endpoints
// that wait for them, and the protocol modules that open them.
//
// Every method is called on the routing worker that currently owns the
// object, never concurrently.
package backend

//go:generate mockgen -destination=backendtest/backend.go -package=backendtest github.com/relaykit/relay/api/backend Conn,Connection,Session,Endpoint,Connector,EventSink

import (
	"math"
	"time"
)

// Event is a set of I/O readiness conditions for a connection.
type Event uint8

const (
	// EventRead means data can be read.
	EventRead Event = 1 << iota
	// EventWrite means data can be written.
	EventWrite
	// EventError means the connection failed.
	EventError
	// EventHangup means the peer closed the connection.
	EventHangup
)

// Has reports whether every bit of o is set in e.
func (e Event) Has(o Event) bool {
	return e&o == o
}

func (e Event) String() string {
	var s string
	for _, f := range []struct {
		bit  Event
		name string
	}{{EventRead, "read"}, {EventWrite, "write"}, {EventError, "error"}, {EventHangup, "hangup"}} {
		if e.Has(f.bit) {
			if s != "" {
				s += "|"
			}
			s += f.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// ReuseScore rates how well a pooled connection fits a session. Higher is
// better.
type ReuseScore int

const (
	// ReuseNotPossible means the connection cannot serve the session.
	ReuseNotPossible ReuseScore = 0

	// ReuseOptimal means the connection is a perfect fit and the pool may stop
	// searching.
	ReuseOptimal ReuseScore = math.MaxInt32
)

// ContinueResult is the outcome of a waiting endpoint's retry.
type ContinueResult int

const (
	// ContinueSuccess means the endpoint got its connection.
	ContinueSuccess ContinueResult = iota

	// ContinueWait means the blocking condition still holds.
	ContinueWait

	// ContinueFail means the endpoint cannot proceed and must be failed.
	ContinueFail
)

func (r ContinueResult) String() string {
	switch r {
	case ContinueSuccess:
		return "success"
	case ContinueWait:
		return "wait"
	case ContinueFail:
		return "fail"
	default:
		return "unknown"
	}
}

// EventSink receives readiness events for one connection. Protocol modules
// call Notify from their I/O goroutines; the event is delivered on the
// worker that owns the connection at delivery time.
type EventSink interface {
	Notify(Event)
}

// Conn is the part of a connection the worker needs to dispatch events and
// close it. Client connections implement only this.
type Conn interface {
	// HandleEvent processes a readiness event while the connection is owned
	// by a session.
	HandleEvent(Event)

	// HangedUp reports whether the peer has closed the connection.
	HangedUp() bool

	// ReadyToClose reports whether the protocol has no acknowledgements
	// outstanding and the connection may be torn down.
	ReadyToClose() bool

	Close() error
}

// Connection is a backend connection, which can be pooled and reused.
type Connection interface {
	Conn

	// CanReuse scores whether the connection can serve s.
	CanReuse(s Session) ReuseScore

	// Reuse prepares the connection for s after it left the pool. An error
	// means the connection is unusable and must be closed.
	Reuse(s Session) error

	// Established reports whether the connection finished its handshake.
	Established() bool

	// HasPendingData reports whether the server sent bytes nobody has read.
	HasPendingData() bool
}

// Session is a client session.
type Session interface {
	ID() uint64

	// CanPoolBackends reports whether the session's backend connections may be
	// returned to the pool in the session's current protocol phase.
	CanPoolBackends() bool

	// IsMovable reports whether the session may migrate to another worker.
	// It is false while the session is pinned, for example mid-transaction.
	IsMovable() bool

	// MultiplexTimeout is how long an endpoint of this session may wait for a
	// backend connection. Zero means forever.
	MultiplexTimeout() time.Duration

	// IOActivity is a relative measure of recent traffic, used to choose
	// which session to migrate.
	IOActivity() int

	// Tick is called about once per second by the owning worker.
	Tick(now time.Time)

	// Close releases the session's protocol state. Its connections are closed
	// by the worker.
	Close() error
}

// Endpoint is one logical backend target of a session that is waiting for a
// connection.
type Endpoint interface {
	Session() Session

	// ContinueConnecting retries the acquisition. When the result is
	// ContinueFail the error describes why.
	ContinueConnecting() (ContinueResult, error)

	// HandleTimeout is called once when the endpoint waited longer than its
	// session's multiplex timeout. It is terminal.
	HandleTimeout()

	// HandleFailure is called once when ContinueConnecting failed. It is
	// terminal.
	HandleFailure(err error)
}

// Connector opens backend connections for a protocol. Connect must not
// block: the returned connection reports Established once its handshake
// completes and announces progress through sink.
type Connector interface {
	Connect(sink EventSink, s Session) (Connection, error)
}
