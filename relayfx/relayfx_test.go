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

package relayfx

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/internal/testtime"
	"github.com/relaykit/relay/rworker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/goleak"
	"go.uber.org/net/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	// fx installs a signal handler on Start; the runtime never stops it.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("os/signal.signal_recv"),
		goleak.IgnoreTopFunction("os/signal.loop"),
	)
}

func echo(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c)
			}()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		<-done
	})
	return ln.Addr().String()
}

func testConfig(t *testing.T, backend string) config.Config {
	cfg, err := config.Load(map[string]interface{}{
		"threads":     2,
		"threads_max": 4,
		"servers": []interface{}{
			map[string]interface{}{"name": "db1", "address": backend, "persistpoolmax": 4},
		},
		"listeners": []interface{}{
			map[string]interface{}{"name": "rw", "address": "127.0.0.1", "port": 0, "server": "db1", "shared": true},
		},
	}, nil)
	require.NoError(t, err)
	return cfg
}

func TestModule(t *testing.T) {
	var (
		m   *rworker.Manager
		ls  *Listeners
		srv *Servers
	)
	app := fxtest.New(t,
		fx.Supply(testConfig(t, echo(t))),
		Module,
		fx.Replace(zaptest.NewLogger(t)),
		fx.Populate(&m, &ls, &srv),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, 2, m.NRunning())
	assert.Equal(t, 4, m.NMax())
	require.Len(t, ls.All(), 1)
	require.NotNil(t, srv.Get("db1"))
	assert.Nil(t, srv.Get("db2"))
	assert.Equal(t, 4, srv.Get("db1").PoolCapacity())

	c, err := net.Dial("tcp", ls.All()[0].Addr().String())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(testtime.Second)))
	got := make([]byte, 5)
	_, err = io.ReadFull(c, got)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestListenerStartFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	_, port, err := net.SplitHostPort(taken.Addr().String())
	require.NoError(t, err)

	cfg := testConfig(t, echo(t))
	cfg.Listeners = append(cfg.Listeners, config.Listener{
		Name:    "busy",
		Address: "127.0.0.1",
		Port:    mustAtoi(t, port),
		Server:  "db1",
		Shared:  true,
	})

	app := fx.New(
		fx.Supply(cfg),
		Module,
		fx.Replace(zaptest.NewLogger(t)),
		fx.NopLogger,
	)
	ctx, cancel := context.WithTimeout(context.Background(), testtime.Second)
	defer cancel()
	assert.Error(t, app.Start(ctx), "the second listener cannot bind")
}

func mustAtoi(t *testing.T, s string) int {
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "warn"
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))

	cfg.Logging.Level = "loud"
	_, err = NewLogger(cfg)
	assert.Error(t, err)
}

func TestNewListenersUnknownServer(t *testing.T) {
	cfg := config.Default()
	cfg.Listeners = []config.Listener{{Name: "rw", Server: "missing"}}
	_, err := NewListeners(ListenersParams{
		Config:    cfg,
		Lifecycle: fxtest.NewLifecycle(t),
		Logger:    zaptest.NewLogger(t),
		Manager:   rworker.New(),
		Servers:   NewServers(cfg),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown server "missing"`)
}

func TestNewListenersBadOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Servers = []config.Server{{Name: "db1", Address: "127.0.0.1:3306"}}
	cfg.Listeners = []config.Listener{{Name: "rw", Server: "db1", Options: map[string]interface{}{"tls": true}}}
	_, err := NewListeners(ListenersParams{
		Config:    cfg,
		Lifecycle: fxtest.NewLifecycle(t),
		Logger:    zaptest.NewLogger(t),
		Manager:   rworker.New(),
		Servers:   NewServers(cfg),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `listener "rw": unknown attributes: [tls]`)
}

func TestMetricsPushToTally(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.TallyPushInterval = 10 * time.Millisecond
	ts := tally.NewTestScope("", nil)
	lc := fxtest.NewLifecycle(t)

	res := NewMetrics(MetricsParams{
		Config:    cfg,
		Lifecycle: lc,
		Logger:    zaptest.NewLogger(t),
		Tally:     ts,
	})
	counter, err := res.Scope.Counter(metrics.Spec{Name: "pushed", Help: "Pushed to tally."})
	require.NoError(t, err)
	counter.Inc()

	lc.RequireStart()
	defer lc.RequireStop()

	require.Eventually(t, func() bool {
		for _, c := range ts.Snapshot().Counters() {
			if c.Name() == "pushed" {
				return c.Value() == 1 && c.Tags()["component"] == "relay"
			}
		}
		return false
	}, testtime.Second, 5*time.Millisecond)
}

func TestMetricsWithoutTally(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	res := NewMetrics(MetricsParams{
		Config:    config.Default(),
		Lifecycle: lc,
		Logger:    zaptest.NewLogger(t),
	})
	require.NotNil(t, res.Root)
	require.NotNil(t, res.Scope)
	lc.RequireStart()
	lc.RequireStop()
}
