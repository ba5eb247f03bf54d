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

// Package listener accepts client connections and hands them to the routing
// workers.
//
// A shared listener owns one socket. Its accept loop feeds the manager's
// shared accept channel, and whichever listening worker receives a
// connection passes it on to the worker picked in round robin. A unique
// listener binds one SO_REUSEPORT socket per listening worker, and the
// kernel spreads connections over them. Unix socket listeners are always
// shared, as are TCP listeners on platforms without SO_REUSEPORT.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/relaykit/relay/api/backend"
	"github.com/relaykit/relay/internal/backoff"
	"github.com/relaykit/relay/internal/clock"
	"github.com/relaykit/relay/internal/sampledlogger"
	"github.com/relaykit/relay/pkg/lifecycle"
	"github.com/relaykit/relay/proxyerrors"
	"github.com/relaykit/relay/rworker"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const _acceptLogInterval = 10 * time.Second

// SessionFactory builds the protocol session of an accepted connection.
type SessionFactory interface {
	NewSession(dcb *rworker.DCB, conn net.Conn) (backend.Session, backend.Conn, error)
}

// Config describes one listener.
type Config struct {
	Name string

	// Network is "tcp" or "unix".
	Network string

	// Address is host:port for TCP, where an empty host means every address,
	// or the socket path for unix.
	Address string

	// Shared forces the shared model for a TCP listener even where unique
	// sockets are available.
	Shared bool
}

// Option customizes a Listener.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	clock   clock.Clock
	backoff *backoff.Exponential
}

// Logger sets the logger of the listener.
func Logger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Clock sets the clock used for accept backoff and log sampling.
func Clock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// AcceptBackoff sets the strategy for waiting after failed accepts.
func AcceptBackoff(b *backoff.Exponential) Option {
	return func(o *options) {
		o.backoff = b
	}
}

// Listener is a network endpoint registered with a rworker.Manager.
type Listener struct {
	name    string
	network string
	address string
	shared  bool

	m       *rworker.Manager
	factory SessionFactory
	logger  *zap.Logger
	sampled *sampledlogger.SampledLogger
	clock   clock.Clock
	backoff *backoff.Exponential
	once    *lifecycle.Once

	mu     sync.Mutex
	addr   net.Addr
	main   *acceptor
	unique map[int]*acceptor

	accepts  atomic.Int64
	failures atomic.Int64
}

var _ rworker.Listener = (*Listener)(nil)

// New builds a listener for cfg. It does not bind until Start.
func New(m *rworker.Manager, cfg Config, factory SessionFactory, opts ...Option) (*Listener, error) {
	if cfg.Name == "" {
		return nil, proxyerrors.InvalidArgumentErrorf("listener name must not be empty")
	}
	if factory == nil {
		return nil, proxyerrors.InvalidArgumentErrorf("listener %q has no session factory", cfg.Name)
	}
	network := cfg.Network
	if network == "" {
		network = networkTCP
	}
	if network != networkTCP && network != networkUnix {
		return nil, proxyerrors.InvalidArgumentErrorf("listener %q: unsupported network %q", cfg.Name, network)
	}
	address, err := normalizeAddress(network, cfg.Address)
	if err != nil {
		return nil, proxyerrors.InvalidArgumentErrorf("listener %q: invalid address %q: %v", cfg.Name, cfg.Address, err)
	}

	o := options{logger: zap.NewNop(), clock: clock.NewReal()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.backoff == nil {
		if o.backoff, err = backoff.NewExponential(backoff.MaxBackoff(time.Second)); err != nil {
			return nil, err
		}
	}

	logger := o.logger.Named("listener").With(zap.String("listener", cfg.Name))
	return &Listener{
		name:    cfg.Name,
		network: network,
		address: address,
		shared:  network == networkUnix || cfg.Shared || !ReusePortSupported(),
		m:       m,
		factory: factory,
		logger:  logger,
		sampled: sampledlogger.New(_acceptLogInterval, logger, sampledlogger.WithClock(o.clock)),
		clock:   o.clock,
		backoff: o.backoff,
		once:    lifecycle.NewOnce(),
		unique:  make(map[int]*acceptor),
	}, nil
}

// Name implements rworker.Listener.
func (l *Listener) Name() string { return l.name }

// Shared implements rworker.Listener.
func (l *Listener) Shared() bool { return l.shared }

// Addr returns the bound address once the listener has started.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Accepts returns the number of connections accepted so far.
func (l *Listener) Accepts() int64 { return l.accepts.Load() }

// AcceptFailures returns the number of failed accepts.
func (l *Listener) AcceptFailures() int64 { return l.failures.Load() }

// Start binds the listener and registers it with the manager.
func (l *Listener) Start(ctx context.Context) error {
	return l.once.Start(func() error { return l.start(ctx) })
}

func (l *Listener) start(ctx context.Context) error {
	if l.shared {
		ln, err := bind(l.network, l.address, false)
		if err != nil {
			return proxyerrors.UnavailableErrorf("listener %q could not listen on %q: %w", l.name, l.address, err)
		}
		l.mu.Lock()
		l.addr = ln.Addr()
		l.main = l.serve(ln, l.m.SharedAccept())
		l.mu.Unlock()
	} else {
		// Resolve the address once so that every worker binds the same port
		// and a bad address fails here rather than on every worker.
		ln, err := bind(l.network, l.address, true)
		if err != nil {
			return proxyerrors.UnavailableErrorf("listener %q could not listen on %q: %w", l.name, l.address, err)
		}
		l.mu.Lock()
		l.addr = ln.Addr()
		l.mu.Unlock()
		if err := ln.Close(); err != nil {
			return err
		}
	}

	if err := l.m.AddListener(ctx, l); err != nil {
		// A name clash leaves the other listener registered.
		if !proxyerrors.IsAlreadyExists(err) {
			err = multierr.Append(err, l.m.RemoveListener(ctx, l.name))
		}
		return multierr.Append(err, l.closeAll())
	}
	l.logger.Info("listener started",
		zap.String("address", l.Addr().String()),
		zap.Bool("shared", l.shared))
	return nil
}

// Stop unregisters the listener and closes its sockets.
func (l *Listener) Stop(ctx context.Context) error {
	return l.once.Stop(func() error {
		err := l.m.RemoveListener(ctx, l.name)
		if proxyerrors.IsNotFound(err) {
			err = nil
		}
		err = multierr.Append(err, l.closeAll())
		l.logger.Info("listener stopped", zap.Int64("accepts", l.accepts.Load()))
		return err
	})
}

func (l *Listener) closeAll() error {
	l.mu.Lock()
	main := l.main
	l.main = nil
	unique := l.unique
	l.unique = make(map[int]*acceptor)
	l.mu.Unlock()

	var err error
	if main != nil {
		err = multierr.Append(err, main.close())
	}
	for _, a := range unique {
		err = multierr.Append(err, a.close())
	}
	return err
}

// ListenOn implements rworker.Listener. It binds w's own socket.
func (l *Listener) ListenOn(w *rworker.Worker) error {
	if l.shared {
		return nil
	}
	l.mu.Lock()
	_, ok := l.unique[w.ID()]
	addr := l.addr
	l.mu.Unlock()
	if ok {
		return nil
	}
	if addr == nil {
		return proxyerrors.FailedPreconditionErrorf("listener %q is not started", l.name)
	}

	ln, err := bind(l.network, addr.String(), true)
	if err != nil {
		return err
	}
	a := l.serve(ln, w.PrivateAccept())

	l.mu.Lock()
	l.unique[w.ID()] = a
	l.mu.Unlock()
	l.logger.Debug("worker listening", zap.Int("worker", w.ID()))
	return nil
}

// UnlistenOn implements rworker.Listener.
func (l *Listener) UnlistenOn(w *rworker.Worker) {
	l.mu.Lock()
	a, ok := l.unique[w.ID()]
	delete(l.unique, w.ID())
	l.mu.Unlock()
	if !ok {
		return
	}
	if err := a.close(); err != nil {
		l.logger.Warn("could not close worker socket", zap.Int("worker", w.ID()), zap.Error(err))
	}
}

// NewSession implements rworker.Listener.
func (l *Listener) NewSession(dcb *rworker.DCB, conn net.Conn) (backend.Session, backend.Conn, error) {
	s, c, err := l.factory.NewSession(dcb, conn)
	if err != nil {
		return nil, nil, fmt.Errorf("listener %q: %w", l.name, err)
	}
	return s, c, nil
}

func (l *Listener) serve(ln net.Listener, out chan<- rworker.Accepted) *acceptor {
	a := &acceptor{
		l:       l,
		ln:      ln,
		out:     out,
		retrier: backoff.NewRetrier(l.backoff),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go a.run()
	return a
}

// acceptor runs the accept loop of one socket.
type acceptor struct {
	l       *Listener
	ln      net.Listener
	out     chan<- rworker.Accepted
	retrier *backoff.Retrier

	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  chan struct{}
}

func (a *acceptor) run() {
	defer close(a.stopped)

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if a.stopping() || errors.Is(err, net.ErrClosed) {
				return
			}
			a.l.failures.Inc()
			d := a.retrier.Next()
			a.l.sampled.Warn(a.l.name, "accept failed",
				zap.Error(err),
				zap.Uint("attempts", a.retrier.Attempts()),
				zap.Duration("backoff", d))
			select {
			case <-a.l.clock.After(d):
				continue
			case <-a.stopCh:
				return
			}
		}
		a.retrier.Reset()
		a.l.accepts.Inc()

		select {
		case a.out <- rworker.Accepted{Listener: a.l, Conn: conn}:
		case <-a.stopCh:
			conn.Close()
			return
		}
	}
}

func (a *acceptor) stopping() bool {
	select {
	case <-a.stopCh:
		return true
	default:
		return false
	}
}

func (a *acceptor) close() error {
	var err error
	a.stopOnce.Do(func() {
		close(a.stopCh)
		err = a.ln.Close()
		<-a.stopped
	})
	return err
}
