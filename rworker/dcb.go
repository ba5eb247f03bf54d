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
	"fmt"
	"time"

	"github.com/relaykit/relay/api/backend"
	"github.com/relaykit/relay/internal/slotmap"
	"github.com/relaykit/relay/server"
	"go.uber.org/atomic"
)

// Role tells client connections apart from backend connections.
type Role int

const (
	// RoleClient is a connection accepted from a client.
	RoleClient Role = iota
	// RoleBackend is a connection to a backend server.
	RoleBackend
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "backend"
}

// Owner is who handles the events of a connection.
type Owner int

const (
	// SessionOwned connections deliver events to their protocol handler.
	SessionOwned Owner = iota
	// PoolOwned connections are idle in a connection pool; any event evicts
	// and closes them.
	PoolOwned
)

func (o Owner) String() string {
	if o == PoolOwned {
		return "pool"
	}
	return "session"
}

// DCB is the descriptor control block of one connection. It belongs to
// exactly one worker at a time; only that worker's loop reads or writes its
// unexported state, except for the owner pointer and the closed flag.
type DCB struct {
	role   Role
	server *server.Server

	worker atomic.Pointer[Worker]
	closed atomic.Bool

	key          slotmap.Key
	owner        Owner
	session      backend.Session
	conn         backend.Conn
	bconn        backend.Connection
	createdAt    time.Time
	lastActivity time.Time
	reused       bool
	zombie       bool
}

// Notify posts an I/O event for the connection. It is safe to call from any
// goroutine; the event is handled by the worker that owns the connection
// when it is delivered, and dropped once the connection has been freed.
func (d *DCB) Notify(ev backend.Event) {
	if d.closed.Load() {
		return
	}
	if w := d.worker.Load(); w != nil {
		w.postEvent(d, ev)
	}
}

// Worker returns the worker that currently owns the connection.
func (d *DCB) Worker() *Worker {
	return d.worker.Load()
}

// Role returns whether this is a client or a backend connection.
func (d *DCB) Role() Role { return d.role }

// Server returns the backend server, nil for client connections.
func (d *DCB) Server() *server.Server { return d.server }

// Session returns the owning session, nil when pooled.
func (d *DCB) Session() backend.Session { return d.session }

// Conn returns the protocol side of a client connection.
func (d *DCB) Conn() backend.Conn { return d.conn }

// Connection returns the protocol side of a backend connection.
func (d *DCB) Connection() backend.Connection { return d.bconn }

// Owner returns who currently handles the connection's events.
func (d *DCB) Owner() Owner { return d.owner }

// WasReused reports whether the connection came out of a pool.
func (d *DCB) WasReused() bool { return d.reused }

// CreatedAt returns when the connection was opened.
func (d *DCB) CreatedAt() time.Time { return d.createdAt }

// IsClosed reports whether the connection has been freed.
func (d *DCB) IsClosed() bool { return d.closed.Load() }

func (d *DCB) String() string {
	if d.server != nil {
		return fmt.Sprintf("%v dcb %v to %s", d.role, d.key, d.server.Name())
	}
	return fmt.Sprintf("%v dcb %v", d.role, d.key)
}

func (d *DCB) handle() backend.Conn {
	if d.bconn != nil {
		return d.bconn
	}
	return d.conn
}
