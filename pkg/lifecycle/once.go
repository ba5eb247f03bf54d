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

// Package lifecycle provides a helper for objects that start at most once and
// stop at most once, such as a routing worker or the worker pool manager.
package lifecycle

import (
	"context"
	syncatomic "sync/atomic"

	"github.com/relaykit/relay/proxyerrors"
	"go.uber.org/atomic"
)

// State represents `states` that a lifecycle object can be in.
type State int

const (
	// Idle indicates the Lifecycle hasn't been operated on yet.
	Idle State = iota

	// Starting indicates that the Lifecycle has begun it's "start" command
	// but hasn't finished yet.
	Starting

	// Running indicates that the Lifecycle has finished starting and is
	// available.
	Running

	// Stopping indicates that the Lifecycle 'stop' method has been called
	// but hasn't finished yet.
	Stopping

	// Stopped indicates that the Lifecycle has been stopped.
	Stopped

	// Errored indicates that the Lifecycle experienced an error and we can't
	// reasonably determine what state the lifecycle is in.
	Errored
)

var stateToName = map[State]string{
	Idle:     "idle",
	Starting: "starting",
	Running:  "running",
	Stopping: "stopping",
	Stopped:  "stopped",
	Errored:  "errored",
}

func (s State) String() string {
	if name, ok := stateToName[s]; ok {
		return name
	}
	return "unknown"
}

// Once advances monotonically through the lifecycle states, running the
// start and stop functions at most once each.
//
//  0. The observable state only goes forward from birth to death.
//  1. Start blocks until the state is >= Running.
//  2. Stop blocks until the state is >= Stopped.
//  3. Stop pre-empts Start if it occurs first.
//  4. The start and stop functions are each called at most once.
type Once struct {
	// startCh closes once the state is Running or beyond.
	startCh chan struct{}
	// stoppingCh closes once the state is Stopping or beyond.
	stoppingCh chan struct{}
	// stopCh closes once the state is Stopped or Errored.
	stopCh chan struct{}
	// err is written only by the goroutine that won the right to start or
	// stop, and is immutable afterwards.
	err   syncatomic.Value
	state atomic.Int32
}

type storedError struct{ err error }

// NewOnce returns a lifecycle controller in the Idle state.
func NewOnce() *Once {
	return &Once{
		startCh:    make(chan struct{}),
		stoppingCh: make(chan struct{}),
		stopCh:     make(chan struct{}),
	}
}

// Start runs f once and returns its error. Later calls block until the first
// call finishes and return the same error.
func (o *Once) Start(f func() error) error {
	if o.state.CAS(int32(Idle), int32(Starting)) {
		var err error
		if f != nil {
			err = f()
		}

		// skip forward to error state
		if err != nil {
			o.err.Store(storedError{err})
			o.state.Store(int32(Errored))
			close(o.stoppingCh)
			close(o.stopCh)
		} else {
			o.state.Store(int32(Running))
		}
		close(o.startCh)

		return err
	}

	<-o.startCh
	return o.loadError()
}

// WaitUntilRunning blocks until the object is running or ctx is done.
func (o *Once) WaitUntilRunning(ctx context.Context) error {
	state := o.State()
	if state == Running {
		return nil
	}
	if state > Running {
		return proxyerrors.FailedPreconditionErrorf("could not wait for instance to start running: current state is %q", state)
	}

	select {
	case <-o.startCh:
		if state := o.State(); state != Running {
			return proxyerrors.FailedPreconditionErrorf("instance did not enter running state, current state is %q", state)
		}
		return nil
	case <-ctx.Done():
		return proxyerrors.CancelledErrorf("context finished while waiting for instance to start: %v", ctx.Err())
	}
}

// Stop runs f once and returns its error. A Stop that arrives before Start
// moves the object straight to Stopped without running anything.
func (o *Once) Stop(f func() error) error {
	if o.state.CAS(int32(Idle), int32(Stopped)) {
		close(o.startCh)
		close(o.stoppingCh)
		close(o.stopCh)
		return nil
	}

	<-o.startCh

	if o.state.CAS(int32(Running), int32(Stopping)) {
		close(o.stoppingCh)

		var err error
		if f != nil {
			err = f()
		}

		if err != nil {
			o.err.Store(storedError{err})
			o.state.Store(int32(Errored))
		} else {
			o.state.Store(int32(Stopped))
		}
		close(o.stopCh)
		return err
	}

	<-o.stopCh
	return o.loadError()
}

// Started returns a channel that will close when the lifecycle starts.
func (o *Once) Started() <-chan struct{} {
	return o.startCh
}

// Stopping returns a channel that will close when the lifecycle is stopping.
func (o *Once) Stopping() <-chan struct{} {
	return o.stoppingCh
}

// Stopped returns a channel that will close when the lifecycle stops.
func (o *Once) Stopped() <-chan struct{} {
	return o.stopCh
}

func (o *Once) loadError() error {
	if v, ok := o.err.Load().(storedError); ok {
		return v.err
	}
	return nil
}

// State returns the state of the object. The object has at least reached
// the returned state and may have progressed further since.
func (o *Once) State() State {
	return State(o.state.Load())
}

// IsRunning reports whether the object is in the Running state.
func (o *Once) IsRunning() bool {
	return o.State() == Running
}
