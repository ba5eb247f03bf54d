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

// Package relayfx wires a relay process together with fx.
//
// The module expects a config.Config in the container and provides the
// logger, the metrics root, the routing worker manager, the backend servers
// and the listeners built from it. Workers start and listeners open in the
// OnStart hooks; shutdown runs in reverse order.
package relayfx

import (
	"context"
	"fmt"
	"time"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/listener"
	"github.com/relaykit/relay/protocol/passthrough"
	"github.com/relaykit/relay/rworker"
	"github.com/relaykit/relay/server"
	"github.com/uber-go/tally"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/net/metrics"
	"go.uber.org/net/metrics/tallypush"
	"go.uber.org/zap"
)

// Module provides a complete relay.
var Module = fx.Options(
	fx.Provide(NewLogger),
	fx.Provide(NewMetrics),
	fx.Provide(NewManager),
	fx.Provide(NewServers),
	fx.Provide(NewListeners),
	fx.Invoke(func(*Listeners) {}),
)

// NewLogger builds the production logger at the configured level.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	lvl, err := cfg.Logging.ZapLevel()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// MetricsParams are the inputs of NewMetrics.
type MetricsParams struct {
	fx.In

	Config    config.Config
	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Tally     tally.Scope `optional:"true"`
}

// MetricsResult holds the metrics root and the scope the relay records to.
type MetricsResult struct {
	fx.Out

	Root  *metrics.Root
	Scope *metrics.Scope
}

// NewMetrics builds the metrics root. When a tally scope is available the
// root is pushed to it while the application runs.
func NewMetrics(p MetricsParams) MetricsResult {
	root := metrics.New()
	scope := root.Scope().Tagged(metrics.Tags{"component": "relay"})

	if p.Tally != nil {
		var stop context.CancelFunc
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				var err error
				stop, err = root.Push(tallypush.New(p.Tally), pushInterval(p.Config))
				if err != nil {
					p.Logger.Error("failed to start pushing metrics to tally", zap.Error(err))
				}
				return nil
			},
			OnStop: func(context.Context) error {
				if stop != nil {
					stop()
				}
				return nil
			},
		})
	}
	return MetricsResult{Root: root, Scope: scope}
}

func pushInterval(cfg config.Config) time.Duration {
	if cfg.Metrics.TallyPushInterval <= 0 {
		return config.DefaultTallyPushInterval
	}
	return cfg.Metrics.TallyPushInterval
}

// ManagerParams are the inputs of NewManager.
type ManagerParams struct {
	fx.In

	Config    config.Config
	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Scope     *metrics.Scope
}

// NewManager builds the routing worker manager. Its workers start with the
// application and drain when it stops.
func NewManager(p ManagerParams) (*rworker.Manager, error) {
	cfg := p.Config
	m := rworker.New(
		rworker.Logger(p.Logger),
		rworker.Meter(p.Scope),
		rworker.TerminationDelay(cfg.TerminationDelay),
		rworker.RebalancePeriod(cfg.Rebalance.Period),
		rworker.RebalanceThreshold(cfg.Rebalance.Threshold),
		rworker.RebalanceWindow(cfg.Rebalance.Window),
	)
	if err := m.Init(cfg.ThreadsMax); err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return m.StartWorkers(cfg.Threads)
		},
		OnStop: m.Finish,
	})
	return m, nil
}

// Servers are the configured backend servers.
type Servers struct {
	byName map[string]*server.Server
	all    []*server.Server
}

// NewServers builds a server with a passthrough connector for every
// configured server.
func NewServers(cfg config.Config) *Servers {
	s := &Servers{byName: make(map[string]*server.Server, len(cfg.Servers))}
	for _, sc := range cfg.Servers {
		srv := server.New(sc.Name, sc.Address,
			passthrough.NewConnector(sc.Address),
			server.MaxConnections(sc.MaxRoutingConnections),
			server.PoolCapacity(sc.PersistPoolMax),
			server.MaxAge(sc.PersistMaxTime),
			server.Healthy(sc.IsHealthy()),
		)
		s.byName[sc.Name] = srv
		s.all = append(s.all, srv)
	}
	return s
}

// Get returns the server called name, or nil.
func (s *Servers) Get(name string) *server.Server { return s.byName[name] }

// All returns the servers in configuration order.
func (s *Servers) All() []*server.Server { return s.all }

// ListenersParams are the inputs of NewListeners.
type ListenersParams struct {
	fx.In

	Config    config.Config
	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Manager   *rworker.Manager
	Servers   *Servers
}

// Listeners are the open client-facing listeners.
type Listeners struct {
	all []*listener.Listener
}

// NewListeners builds a passthrough listener for every configured listener.
// They open after the workers have started and close before they stop.
func NewListeners(p ListenersParams) (*Listeners, error) {
	ls := &Listeners{}
	for _, lc := range p.Config.Listeners {
		srv := p.Servers.Get(lc.Server)
		if srv == nil {
			return nil, fmt.Errorf("listener %q refers to unknown server %q", lc.Name, lc.Server)
		}
		popts, err := passthrough.ParseOptions(lc.Options)
		if err != nil {
			return nil, fmt.Errorf("listener %q: %v", lc.Name, err)
		}
		l, err := listener.New(p.Manager,
			listener.Config{
				Name:    lc.Name,
				Network: lc.Network(),
				Address: lc.ListenAddress(),
				Shared:  lc.Shared,
			},
			passthrough.New(p.Manager, srv, append(popts, passthrough.Logger(p.Logger))...),
			listener.Logger(p.Logger),
		)
		if err != nil {
			return nil, err
		}
		ls.all = append(ls.all, l)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for i, l := range ls.all {
				if err := l.Start(ctx); err != nil {
					for _, started := range ls.all[:i] {
						err = multierr.Append(err, started.Stop(ctx))
					}
					return err
				}
				p.Logger.Info("listening", zap.String("listener", l.Name()), zap.Stringer("address", l.Addr()))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			var err error
			for _, l := range ls.all {
				err = multierr.Append(err, l.Stop(ctx))
			}
			return err
		},
	})
	return ls, nil
}

// All returns the listeners in configuration order.
func (ls *Listeners) All() []*listener.Listener { return ls.all }
