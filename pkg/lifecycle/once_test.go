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

package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaykit/relay/internal/testtime"
	"github.com/relaykit/relay/proxyerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "errored", Errored.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestStartStop(t *testing.T) {
	o := NewOnce()
	assert.Equal(t, Idle, o.State())

	starts := 0
	require.NoError(t, o.Start(func() error { starts++; return nil }))
	require.NoError(t, o.Start(func() error { starts++; return nil }))
	assert.Equal(t, 1, starts)
	assert.True(t, o.IsRunning())

	stops := 0
	require.NoError(t, o.Stop(func() error { stops++; return nil }))
	require.NoError(t, o.Stop(func() error { stops++; return nil }))
	assert.Equal(t, 1, stops)
	assert.Equal(t, Stopped, o.State())

	select {
	case <-o.Stopped():
	default:
		t.Fatal("stopped channel was not closed")
	}
}

func TestStartError(t *testing.T) {
	o := NewOnce()
	boom := errors.New("listen failed")

	assert.Equal(t, boom, o.Start(func() error { return boom }))
	assert.Equal(t, Errored, o.State())
	assert.Equal(t, boom, o.Start(nil), "later starts must see the first error")
	assert.Equal(t, boom, o.Stop(nil))

	<-o.Stopping()
	<-o.Stopped()
}

func TestStopBeforeStart(t *testing.T) {
	o := NewOnce()
	require.NoError(t, o.Stop(func() error {
		t.Fatal("stop function must not run when never started")
		return nil
	}))
	assert.Equal(t, Stopped, o.State())

	ran := false
	require.NoError(t, o.Start(func() error { ran = true; return nil }))
	assert.False(t, ran)
}

func TestStopError(t *testing.T) {
	o := NewOnce()
	require.NoError(t, o.Start(nil))

	boom := errors.New("join failed")
	assert.Equal(t, boom, o.Stop(func() error { return boom }))
	assert.Equal(t, Errored, o.State())
	assert.Equal(t, boom, o.Stop(nil))
}

func TestConcurrentStartRunsOnce(t *testing.T) {
	o := NewOnce()
	release := make(chan struct{})

	var (
		mu    sync.Mutex
		calls int
		wg    sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.Start(func() error {
				mu.Lock()
				calls++
				mu.Unlock()
				<-release
				return nil
			}))
		}()
	}

	time.Sleep(10 * testtime.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, 1, calls)
}

func TestWaitUntilRunning(t *testing.T) {
	t.Run("already running", func(t *testing.T) {
		o := NewOnce()
		require.NoError(t, o.Start(nil))
		assert.NoError(t, o.WaitUntilRunning(context.Background()))
	})

	t.Run("started later", func(t *testing.T) {
		o := NewOnce()
		go func() {
			time.Sleep(5 * testtime.Millisecond)
			o.Start(nil)
		}()
		ctx, cancel := context.WithTimeout(context.Background(), testtime.Second)
		defer cancel()
		assert.NoError(t, o.WaitUntilRunning(ctx))
	})

	t.Run("stopped", func(t *testing.T) {
		o := NewOnce()
		require.NoError(t, o.Stop(nil))
		err := o.WaitUntilRunning(context.Background())
		assert.True(t, proxyerrors.IsFailedPrecondition(err), "got %v", err)
	})

	t.Run("context done", func(t *testing.T) {
		o := NewOnce()
		ctx, cancel := context.WithTimeout(context.Background(), 5*testtime.Millisecond)
		defer cancel()
		err := o.WaitUntilRunning(ctx)
		assert.True(t, proxyerrors.IsCancelled(err), "got %v", err)
	})

	t.Run("start failed", func(t *testing.T) {
		o := NewOnce()
		go o.Start(func() error {
			time.Sleep(5 * testtime.Millisecond)
			return errors.New("nope")
		})
		ctx, cancel := context.WithTimeout(context.Background(), testtime.Second)
		defer cancel()
		err := o.WaitUntilRunning(ctx)
		assert.Error(t, err)
	})
}
