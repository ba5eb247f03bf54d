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

// Package passthrough is a protocol module that relays bytes between a
// client and one backend server without looking at them. It makes a relay
// binary runnable and exercises the routing core end to end: backend
// connections are pooled when a client disconnects, and clients wait for a
// connection when the server is at its limit.
package passthrough

import (
	"errors"
	"net"
	"time"

	"github.com/relaykit/relay/api/backend"
	internalconfig "github.com/relaykit/relay/internal/config"
	"github.com/relaykit/relay/rworker"
	"github.com/relaykit/relay/server"
	"go.uber.org/zap"
)

// Option customizes a Protocol.
type Option func(*Protocol)

// Logger sets the logger of the protocol.
func Logger(logger *zap.Logger) Option {
	return func(p *Protocol) {
		p.logger = logger
	}
}

// MultiplexTimeout bounds how long a client waits for a backend connection
// when the server is at its limit. Zero waits forever.
func MultiplexTimeout(d time.Duration) Option {
	return func(p *Protocol) {
		p.multiplexTimeout = d
	}
}

// ClientWriteTimeout bounds a single write to the client.
func ClientWriteTimeout(d time.Duration) Option {
	return func(p *Protocol) {
		p.writeTimeout = d
	}
}

// ParseOptions reads the protocol options of a listener:
//
//	options:
//	  multiplex_timeout: 30s
//	  client_write_timeout: 10s
//
// Unknown keys are an error.
func ParseOptions(attrs map[string]interface{}) ([]Option, error) {
	m := make(internalconfig.AttributeMap, len(attrs))
	for k, v := range attrs {
		m[k] = v
	}

	var (
		opts []Option
		d    time.Duration
	)
	if ok, err := m.Pop("multiplex_timeout", &d); err != nil {
		return nil, err
	} else if ok {
		opts = append(opts, MultiplexTimeout(d))
	}
	if ok, err := m.Pop("client_write_timeout", &d); err != nil {
		return nil, err
	} else if ok {
		opts = append(opts, ClientWriteTimeout(d))
	}
	if err := m.Unused(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Protocol builds passthrough sessions that relay to one server.
type Protocol struct {
	m      *rworker.Manager
	srv    *server.Server
	logger *zap.Logger

	multiplexTimeout time.Duration
	writeTimeout     time.Duration
}

// New returns a Protocol relaying to srv.
func New(m *rworker.Manager, srv *server.Server, opts ...Option) *Protocol {
	p := &Protocol{
		m:            m,
		srv:          srv,
		logger:       zap.NewNop(),
		writeTimeout: _defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("passthrough").With(zap.String("server", srv.Name()))
	return p
}

// NewSession builds the session of an accepted client connection. The
// backend connection is requested once the session is registered.
func (p *Protocol) NewSession(dcb *rworker.DCB, nc net.Conn) (backend.Session, backend.Conn, error) {
	s := &session{
		id:  p.m.NextSessionID(),
		p:   p,
		dcb: dcb,
	}
	s.client = &clientConn{session: s, stream: newStream(dcb, p.writeTimeout)}
	s.client.stream.serve(nc)
	dcb.Worker().Execute(s.start)
	return s, s.client, nil
}

// session relays one client. All of its methods run on the worker that
// owns it.
type session struct {
	id  uint64
	p   *Protocol
	dcb *rworker.DCB

	client   *clientConn
	backend  *rworker.DCB
	pending  [][]byte
	activity int
	closed   bool
}

var _ backend.Session = (*session)(nil)

func (s *session) ID() uint64 { return s.id }

// CanPoolBackends implements backend.Session. The backend connection is
// clean once every byte of the client reached it.
func (s *session) CanPoolBackends() bool { return len(s.pending) == 0 }

func (s *session) IsMovable() bool { return true }

func (s *session) MultiplexTimeout() time.Duration { return s.p.multiplexTimeout }

func (s *session) IOActivity() int { return s.activity }

// Tick decays the activity so that recent traffic weighs most.
func (s *session) Tick(time.Time) { s.activity /= 2 }

func (s *session) Close() error {
	s.closed = true
	s.backend = nil
	s.pending = nil
	return nil
}

func (s *session) worker() *rworker.Worker { return s.dcb.Worker() }

func (s *session) start() {
	if s.closed {
		return
	}
	switch res, err := s.connect(); res {
	case backend.ContinueWait:
		if err := s.worker().AddWaitingEndpoint(s.p.srv, &endpoint{session: s}); err != nil {
			s.abort("could not wait for a backend connection", err)
		}
	case backend.ContinueFail:
		s.abort("could not connect to the backend", err)
	}
}

func (s *session) connect() (backend.ContinueResult, error) {
	dcb, err := s.worker().GetBackendConnection(s.p.srv, s)
	switch {
	case err == nil:
		s.backend = dcb
		if dcb.Connection().Established() {
			s.flush()
		}
		return backend.ContinueSuccess, nil
	case rworker.IsConnectionLimit(err):
		return backend.ContinueWait, nil
	default:
		return backend.ContinueFail, err
	}
}

func (s *session) abort(msg string, err error) {
	s.p.logger.Info(msg, zap.Uint64("session", s.id), zap.Error(err))
	s.worker().CloseSession(s)
}

func (s *session) fromClient(data []byte) {
	if len(data) == 0 {
		return
	}
	s.activity += len(data)
	s.pending = append(s.pending, data)
	if s.backend != nil && s.backend.Connection().Established() {
		s.flush()
	}
}

// flush sends the client bytes that arrived before the backend connection
// was ready.
func (s *session) flush() {
	b := s.backendConn()
	if b == nil {
		return
	}
	for len(s.pending) > 0 {
		if err := b.stream.write(s.pending[0]); err != nil {
			s.abort("could not write to the backend", err)
			return
		}
		s.pending = s.pending[1:]
	}
}

func (s *session) toClient(data []byte) {
	if len(data) == 0 {
		return
	}
	s.activity += len(data)
	if err := s.client.stream.write(data); err != nil {
		s.abort("could not write to the client", err)
	}
}

func (s *session) backendClosed(err error) {
	s.abort("backend connection closed", err)
}

func (s *session) backendConn() *backendConn {
	if s.backend == nil {
		return nil
	}
	b, _ := s.backend.Connection().(*backendConn)
	return b
}

// clientConn is the client side of a relayed session.
type clientConn struct {
	session *session
	stream  *stream
}

var _ backend.Conn = (*clientConn)(nil)

func (c *clientConn) HandleEvent(ev backend.Event) {
	switch {
	case ev.Has(backend.EventRead):
		c.session.fromClient(c.stream.take())
	case ev.Has(backend.EventError), ev.Has(backend.EventHangup):
		c.session.fromClient(c.stream.take())
		c.session.worker().CloseSession(c.session)
	}
}

func (c *clientConn) HangedUp() bool { return c.stream.hangedUp() }

func (c *clientConn) ReadyToClose() bool { return true }

func (c *clientConn) Close() error { return c.stream.close() }

// endpoint is a session waiting for a backend connection.
type endpoint struct {
	session *session
}

var _ backend.Endpoint = (*endpoint)(nil)

func (e *endpoint) Session() backend.Session { return e.session }

func (e *endpoint) ContinueConnecting() (backend.ContinueResult, error) {
	if e.session.closed {
		return backend.ContinueFail, errSessionClosed
	}
	return e.session.connect()
}

func (e *endpoint) HandleTimeout() {
	e.session.abort("timed out waiting for a backend connection", nil)
}

func (e *endpoint) HandleFailure(err error) {
	e.session.abort("could not connect to the backend", err)
}

var errSessionClosed = errors.New("session is closed")
