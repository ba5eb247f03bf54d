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
	"net"
	"time"

	"github.com/relaykit/relay/api/backend"
	"github.com/relaykit/relay/proxyerrors"
)

const (
	_defaultConnectTimeout = 5 * time.Second
	_defaultWriteTimeout   = 10 * time.Second
)

// ConnectorOption customizes a Connector.
type ConnectorOption func(*Connector)

// ConnectTimeout bounds how long a backend dial may take.
func ConnectTimeout(d time.Duration) ConnectorOption {
	return func(c *Connector) {
		c.dialer.Timeout = d
	}
}

// BackendWriteTimeout bounds a single write to the backend.
func BackendWriteTimeout(d time.Duration) ConnectorOption {
	return func(c *Connector) {
		c.writeTimeout = d
	}
}

// Connector opens TCP connections to one backend address.
type Connector struct {
	address      string
	dialer       net.Dialer
	writeTimeout time.Duration
}

var _ backend.Connector = (*Connector)(nil)

// NewConnector builds a Connector for address.
func NewConnector(address string, opts ...ConnectorOption) *Connector {
	c := &Connector{
		address:      address,
		dialer:       net.Dialer{Timeout: _defaultConnectTimeout},
		writeTimeout: _defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect implements backend.Connector. It returns at once; the dial
// completes in the background.
func (c *Connector) Connect(sink backend.EventSink, s backend.Session) (backend.Connection, error) {
	b := &backendConn{stream: newStream(sink, c.writeTimeout)}
	if ps, ok := s.(*session); ok {
		b.session = ps
	}
	b.stream.dial(&c.dialer, c.address)
	return b, nil
}

// backendConn is the backend side of a relayed session.
type backendConn struct {
	stream  *stream
	session *session
}

var _ backend.Connection = (*backendConn)(nil)

func (b *backendConn) HandleEvent(ev backend.Event) {
	s := b.session
	if s == nil {
		return
	}
	switch {
	case ev.Has(backend.EventError), ev.Has(backend.EventHangup):
		s.backendClosed(b.stream.failure())
	case ev.Has(backend.EventRead):
		s.toClient(b.stream.take())
	case ev.Has(backend.EventWrite):
		s.flush()
	}
}

func (b *backendConn) HangedUp() bool { return b.stream.hangedUp() }

// ReadyToClose implements backend.Conn. A relay has nothing to acknowledge.
func (b *backendConn) ReadyToClose() bool { return true }

func (b *backendConn) Close() error { return b.stream.close() }

// CanReuse implements backend.Connection. Every session of a passthrough
// listener speaks the same bytes.
func (b *backendConn) CanReuse(s backend.Session) backend.ReuseScore {
	if _, ok := s.(*session); !ok {
		return backend.ReuseNotPossible
	}
	return backend.ReuseOptimal
}

func (b *backendConn) Reuse(s backend.Session) error {
	ps, ok := s.(*session)
	if !ok {
		return proxyerrors.InvalidArgumentErrorf("session %d is not a passthrough session", s.ID())
	}
	if b.stream.hangedUp() {
		return proxyerrors.UnavailableErrorf("pooled connection was closed by the server")
	}
	b.session = ps
	return nil
}

func (b *backendConn) Established() bool { return b.stream.established.Load() }

func (b *backendConn) HasPendingData() bool { return b.stream.pending() }
