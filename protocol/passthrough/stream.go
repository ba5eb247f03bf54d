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

package passthrough

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/relaykit/relay/api/backend"
	"go.uber.org/atomic"
)

const _readBufferSize = 16 * 1024

// stream reads one socket on its own goroutine and reports readiness to the
// routing worker through sink. Everything else happens on the worker.
type stream struct {
	sink         backend.EventSink
	writeTimeout time.Duration

	established atomic.Bool
	eof         atomic.Bool

	mu     sync.Mutex
	nc     net.Conn
	buf    []byte
	err    error
	closed bool
	cancel context.CancelFunc

	done chan struct{}
}

func newStream(sink backend.EventSink, writeTimeout time.Duration) *stream {
	return &stream{
		sink:         sink,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// serve takes over an accepted connection.
func (st *stream) serve(nc net.Conn) {
	st.nc = nc
	st.established.Store(true)
	go func() {
		defer close(st.done)
		st.readLoop(nc)
	}()
}

// dial opens the connection in the background. The sink sees EventWrite
// once it is established and EventError if it fails.
func (st *stream) dial(d *net.Dialer, address string) {
	ctx, cancel := context.WithCancel(context.Background())
	st.cancel = cancel
	go func() {
		defer close(st.done)
		defer cancel()

		nc, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			st.fail(err)
			return
		}
		if !st.attach(nc) {
			return
		}
		st.established.Store(true)
		st.sink.Notify(backend.EventWrite)
		st.readLoop(nc)
	}()
}

func (st *stream) attach(nc net.Conn) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		nc.Close()
		return false
	}
	st.nc = nc
	return true
}

func (st *stream) readLoop(nc net.Conn) {
	b := make([]byte, _readBufferSize)
	for {
		n, err := nc.Read(b)
		if n > 0 {
			st.mu.Lock()
			st.buf = append(st.buf, b[:n]...)
			st.mu.Unlock()
			st.sink.Notify(backend.EventRead)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				st.eof.Store(true)
				st.sink.Notify(backend.EventHangup)
				return
			}
			st.fail(err)
			return
		}
	}
}

func (st *stream) fail(err error) {
	st.mu.Lock()
	closed := st.closed
	if st.err == nil {
		st.err = err
	}
	st.mu.Unlock()
	if !closed {
		st.sink.Notify(backend.EventError)
	}
}

// take returns the bytes read so far.
func (st *stream) take() []byte {
	st.mu.Lock()
	defer st.mu.Unlock()
	b := st.buf
	st.buf = nil
	return b
}

func (st *stream) pending() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.buf) > 0
}

func (st *stream) failure() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

func (st *stream) hangedUp() bool {
	if st.eof.Load() || st.failure() != nil {
		return true
	}
	st.mu.Lock()
	nc := st.nc
	st.mu.Unlock()
	return nc != nil && peerClosed(nc)
}

func (st *stream) write(p []byte) error {
	st.mu.Lock()
	nc := st.nc
	st.mu.Unlock()
	if nc == nil {
		return errNotConnected
	}
	if st.writeTimeout > 0 {
		if err := nc.SetWriteDeadline(time.Now().Add(st.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := nc.Write(p)
	return err
}

// close closes the socket and waits for the reader to exit.
func (st *stream) close() error {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil
	}
	st.closed = true
	nc := st.nc
	st.mu.Unlock()

	if st.cancel != nil {
		st.cancel()
	}
	var err error
	if nc != nil {
		err = nc.Close()
	}
	<-st.done
	return err
}

var errNotConnected = errors.New("connection is not established")
