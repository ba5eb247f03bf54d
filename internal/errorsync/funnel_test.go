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

package errorsync

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"
)

func TestFunnelEmpty(t *testing.T) {
	var f Funnel
	f.Drain(nil)
	f.Drain(&Buffer{})
	assert.NoError(t, f.Flush())
}

func TestFunnelCombinesBuffers(t *testing.T) {
	var (
		f  Funnel
		wg sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			var b Buffer
			b.Add(nil)
			b.Add(fmt.Errorf("worker %d: bind failed", worker))
			b.Add(fmt.Errorf("worker %d: listen failed", worker))
			assert.Equal(t, 2, b.Len())
			f.Drain(&b)
			assert.Equal(t, 0, b.Len(), "drain must empty the buffer")
		}(i)
	}
	wg.Wait()

	err := f.Flush()
	assert.Len(t, multierr.Errors(err), 8)
	assert.NoError(t, f.Flush(), "flush must reset the funnel")
}

func TestFunnelKeepsBufferOrder(t *testing.T) {
	var (
		f Funnel
		b Buffer
	)
	one, two := errors.New("one"), errors.New("two")
	b.Add(one)
	b.Add(two)
	f.Drain(&b)
	assert.Equal(t, []error{one, two}, multierr.Errors(f.Flush()))
}
