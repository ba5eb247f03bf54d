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
	"sync"

	"go.uber.org/multierr"
)

// Buffer accumulates errors on the goroutine that owns it. A Buffer is not
// safe for concurrent use; each worker holds its own and hands it to a Funnel
// when done.
type Buffer struct {
	errs []error
}

// Add records err. Nil errors are ignored.
func (b *Buffer) Add(err error) {
	if err != nil {
		b.errs = append(b.errs, err)
	}
}

// Len returns the number of recorded errors.
func (b *Buffer) Len() int {
	return len(b.errs)
}

// Funnel drains Buffers from many goroutines under a single lock so that the
// combined result is reported once, in one piece.
type Funnel struct {
	mu   sync.Mutex
	errs []error
}

// Drain moves the contents of b into the funnel and empties b.
func (f *Funnel) Drain(b *Buffer) {
	if b == nil || len(b.errs) == 0 {
		return
	}
	f.mu.Lock()
	f.errs = append(f.errs, b.errs...)
	f.mu.Unlock()
	b.errs = nil
}

// Flush returns every drained error combined into one and resets the funnel.
func (f *Funnel) Flush() error {
	f.mu.Lock()
	errs := f.errs
	f.errs = nil
	f.mu.Unlock()
	return multierr.Combine(errs...)
}
