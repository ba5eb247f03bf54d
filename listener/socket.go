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

package listener

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
)

const (
	networkTCP  = "tcp"
	networkUnix = "unix"

	_anyIPv6 = "::"
	_anyIPv4 = "0.0.0.0"
)

// listenFunc binds a socket. It is replaced in tests.
var listenFunc = func(network, address string, reusePort bool) (net.Listener, error) {
	lc := net.ListenConfig{}
	if reusePort {
		lc.Control = setReusePort
	}
	return lc.Listen(context.Background(), network, address)
}

// bind opens the listening socket for network and address. A TCP listener
// configured for every IPv6 address falls back to every IPv4 address when
// the host has no IPv6 support.
func bind(network, address string, reusePort bool) (net.Listener, error) {
	if network == networkUnix {
		if err := removeStaleSocket(address); err != nil {
			return nil, err
		}
		return listenFunc(network, address, false)
	}

	ln, err := listenFunc(network, address, reusePort)
	if err == nil {
		return ln, nil
	}
	host, port, splitErr := net.SplitHostPort(address)
	if splitErr != nil || host != _anyIPv6 || !errors.Is(err, syscall.EAFNOSUPPORT) {
		return nil, err
	}
	return listenFunc(network, net.JoinHostPort(_anyIPv4, port), reusePort)
}

// removeStaleSocket deletes a unix socket left behind by an earlier process.
// Anything that is not a socket is left alone and reported by the bind.
func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return nil
	}
	return os.Remove(path)
}

// normalizeAddress fills in the default host of a TCP address.
func normalizeAddress(network, address string) (string, error) {
	if network == networkUnix {
		return address, nil
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", err
	}
	if host == "" {
		host = _anyIPv6
	}
	return net.JoinHostPort(host, port), nil
}
