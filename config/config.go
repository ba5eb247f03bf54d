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

// Package config loads the relay configuration from YAML.
//
// The document is decoded into a generic map first and then into typed
// structs, so every key can also be supplied programmatically through Load.
// String fields marked for interpolation accept ${NAME} and ${NAME:default}
// references to environment variables.
//
//	threads: 4
//	threads_max: 16
//	termination_delay: 5s
//	rebalance:
//	  threshold: 20
//	  period: 10s
//	  window: 10
//	servers:
//	  - name: db1
//	    address: ${DB1_ADDRESS:127.0.0.1:3306}
//	    persistpoolmax: 40
//	    persistmaxtime: 1h
//	    max_routing_connections: 100
//	listeners:
//	  - name: rw
//	    port: 4006
//	    server: db1
//	    options:
//	      multiplex_timeout: 30s
package config

import (
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"os"
	"runtime"
	"time"

	internalconfig "github.com/relaykit/relay/internal/config"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultThreadsMax is the number of worker slots when none is configured.
	DefaultThreadsMax = 256

	// DefaultTallyPushInterval is how often metrics are pushed to tally.
	DefaultTallyPushInterval = 500 * time.Millisecond
)

// Config is the whole relay configuration.
type Config struct {
	Threads          int           `config:"threads"`
	ThreadsMax       int           `config:"threads_max"`
	TerminationDelay time.Duration `config:"termination_delay"`
	Rebalance        Rebalance     `config:"rebalance"`
	Servers          []Server      `config:"servers"`
	Listeners        []Listener    `config:"listeners"`
	Logging          Logging       `config:"logging"`
	Metrics          Metrics       `config:"metrics"`
}

// Rebalance configures session migration between workers.
type Rebalance struct {
	// Threshold is the load difference in percentage points that triggers a
	// move.
	Threshold int `config:"threshold"`
	// Period is how often loads are compared. Zero disables rebalancing.
	Period time.Duration `config:"period"`
	// Window is the number of one second load samples averaged.
	Window int `config:"window"`
}

// Server is one backend server.
type Server struct {
	Name    string `config:"name"`
	Address string `config:"address,interpolate"`

	// PersistPoolMax is the global pool capacity, shared by the workers.
	PersistPoolMax int `config:"persistpoolmax"`
	// PersistMaxTime is the maximum age of a pooled connection.
	PersistMaxTime time.Duration `config:"persistmaxtime"`
	// MaxRoutingConnections limits open connections. Zero is unlimited.
	MaxRoutingConnections int `config:"max_routing_connections"`

	Healthy *bool `config:"healthy"`
}

// IsHealthy reports the configured health, which defaults to true.
func (s Server) IsHealthy() bool {
	return s.Healthy == nil || *s.Healthy
}

// Listener is one client-facing endpoint.
type Listener struct {
	Name    string `config:"name"`
	Address string `config:"address,interpolate"`
	Port    int    `config:"port"`
	// Socket is a unix socket path, used instead of Address and Port.
	Socket string `config:"socket,interpolate"`
	// Server is the name of the server the listener relays to.
	Server string `config:"server"`
	// Shared forces the shared listening model.
	Shared bool `config:"shared"`
	// Options are handed to the protocol module as they are.
	Options map[string]interface{} `config:"options"`
}

// Network returns "unix" for socket listeners and "tcp" otherwise.
func (l Listener) Network() string {
	if l.Socket != "" {
		return "unix"
	}
	return "tcp"
}

// ListenAddress returns the address to bind.
func (l Listener) ListenAddress() string {
	if l.Socket != "" {
		return l.Socket
	}
	host := l.Address
	if host == "" {
		host = "::"
	}
	return net.JoinHostPort(host, fmt.Sprint(l.Port))
}

// Logging configures the process logger.
type Logging struct {
	Level string `config:"level"`
}

// ZapLevel parses the configured level, defaulting to info.
func (l Logging) ZapLevel() (zapcore.Level, error) {
	var lvl zapcore.Level
	if l.Level == "" {
		return zapcore.InfoLevel, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return lvl, fmt.Errorf("invalid logging level %q: %v", l.Level, err)
	}
	return lvl, nil
}

// Metrics configures metrics reporting.
type Metrics struct {
	TallyPushInterval time.Duration `config:"tally_push_interval"`
}

// Default returns the configuration used for keys that are not set.
func Default() Config {
	return Config{
		Threads:          runtime.NumCPU(),
		ThreadsMax:       DefaultThreadsMax,
		TerminationDelay: 5 * time.Second,
		Rebalance: Rebalance{
			Threshold: 20,
			Window:    10,
		},
		Metrics: Metrics{TallyPushInterval: DefaultTallyPushInterval},
	}
}

// LoadYAML reads a YAML document and decodes it on top of Default.
// Environment variables are resolved with os.LookupEnv.
func LoadYAML(r io.Reader) (Config, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	var data map[string]interface{}
	if err := yaml.Unmarshal(b, &data); err != nil {
		return Config{}, err
	}
	return Load(data, os.LookupEnv)
}

// Load decodes a map[string]interface{} or map[interface{}]interface{} on top
// of Default and validates the result.
func Load(data interface{}, resolver internalconfig.VariableResolver) (Config, error) {
	if resolver == nil {
		resolver = func(string) (string, bool) { return "", false }
	}
	cfg := Default()
	if data != nil {
		if err := internalconfig.DecodeInto(&cfg, data, internalconfig.InterpolateWith(resolver)); err != nil {
			return Config{}, fmt.Errorf("failed to decode configuration: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem it finds.
func (c Config) Validate() error {
	var err error
	if c.ThreadsMax < 1 {
		err = multierr.Append(err, fmt.Errorf("threads_max must be at least 1, got %d", c.ThreadsMax))
	}
	if c.Threads < 1 || c.Threads > c.ThreadsMax {
		err = multierr.Append(err, fmt.Errorf("threads must be in [1, threads_max=%d], got %d", c.ThreadsMax, c.Threads))
	}
	if c.TerminationDelay < 0 {
		err = multierr.Append(err, fmt.Errorf("termination_delay must not be negative, got %v", c.TerminationDelay))
	}
	if c.Rebalance.Threshold < 0 || c.Rebalance.Threshold > 100 {
		err = multierr.Append(err, fmt.Errorf("rebalance.threshold must be in [0, 100], got %d", c.Rebalance.Threshold))
	}
	if c.Rebalance.Window < 1 {
		err = multierr.Append(err, fmt.Errorf("rebalance.window must be at least 1, got %d", c.Rebalance.Window))
	}
	if c.Rebalance.Period < 0 {
		err = multierr.Append(err, fmt.Errorf("rebalance.period must not be negative, got %v", c.Rebalance.Period))
	}
	if _, lvlErr := c.Logging.ZapLevel(); lvlErr != nil {
		err = multierr.Append(err, lvlErr)
	}

	servers := make(map[string]struct{}, len(c.Servers))
	for i, s := range c.Servers {
		switch {
		case s.Name == "":
			err = multierr.Append(err, fmt.Errorf("servers[%d] has no name", i))
		case hasKey(servers, s.Name):
			err = multierr.Append(err, fmt.Errorf("server %q is defined more than once", s.Name))
		default:
			servers[s.Name] = struct{}{}
		}
		if _, _, splitErr := net.SplitHostPort(s.Address); splitErr != nil {
			err = multierr.Append(err, fmt.Errorf("server %q has an invalid address %q: %v", s.Name, s.Address, splitErr))
		}
		if s.PersistPoolMax < 0 {
			err = multierr.Append(err, fmt.Errorf("server %q: persistpoolmax must not be negative", s.Name))
		}
		if s.PersistMaxTime < 0 {
			err = multierr.Append(err, fmt.Errorf("server %q: persistmaxtime must not be negative", s.Name))
		}
		if s.MaxRoutingConnections < 0 {
			err = multierr.Append(err, fmt.Errorf("server %q: max_routing_connections must not be negative", s.Name))
		}
	}

	listeners := make(map[string]struct{}, len(c.Listeners))
	for i, l := range c.Listeners {
		switch {
		case l.Name == "":
			err = multierr.Append(err, fmt.Errorf("listeners[%d] has no name", i))
		case hasKey(listeners, l.Name):
			err = multierr.Append(err, fmt.Errorf("listener %q is defined more than once", l.Name))
		default:
			listeners[l.Name] = struct{}{}
		}
		switch {
		case l.Socket != "" && (l.Port != 0 || l.Address != ""):
			err = multierr.Append(err, fmt.Errorf("listener %q: socket cannot be combined with address or port", l.Name))
		case l.Socket == "" && (l.Port < 0 || l.Port > 65535):
			err = multierr.Append(err, fmt.Errorf("listener %q: port must be in [0, 65535], got %d", l.Name, l.Port))
		}
		if !hasKey(servers, l.Server) {
			err = multierr.Append(err, fmt.Errorf("listener %q refers to unknown server %q", l.Name, l.Server))
		}
	}
	return err
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}
