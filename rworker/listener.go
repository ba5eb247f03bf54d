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
	"net"

	"github.com/relaykit/relay/api/backend"
)

// Listener is a network endpoint that feeds accepted connections to the
// routing workers.
//
// A shared listener owns a single socket whose accept loop sends to
// Manager.SharedAccept; whichever listening worker receives a connection
// hands it to the worker chosen by Manager.PickWorker. A unique listener
// binds one socket per listening worker and sends to that worker's
// PrivateAccept channel, leaving the distribution to the kernel.
type Listener interface {
	Name() string

	// Shared reports whether the listener uses the shared model.
	Shared() bool

	// ListenOn binds the private socket of a unique listener for w. It runs
	// on w's loop and is not called for shared listeners.
	ListenOn(w *Worker) error

	// UnlistenOn closes the private socket of w.
	UnlistenOn(w *Worker)

	// NewSession builds the session of an accepted connection. dcb is the
	// client connection's control block; its Worker is the session's worker.
	NewSession(dcb *DCB, conn net.Conn) (backend.Session, backend.Conn, error)
}

// Accepted is an accepted connection not yet owned by a worker.
type Accepted struct {
	Listener Listener
	Conn     net.Conn
}
