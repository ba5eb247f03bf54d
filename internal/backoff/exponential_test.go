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

package backoff

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestExponentialValidation(t *testing.T) {
	tests := []struct {
		msg        string
		base       time.Duration
		min, max   time.Duration
		wantErrors []string
	}{
		{
			msg:        "invalid base",
			wantErrors: []string{"invalid base for exponential backoff, need greater than zero"},
		},
		{
			msg:        "invalid min",
			base:       time.Microsecond,
			min:        -100,
			wantErrors: []string{"invalid min for exponential backoff, need greater than or equal to zero"},
		},
		{
			msg:  "invalid max and min",
			base: time.Microsecond,
			min:  -100,
			max:  -1,
			wantErrors: []string{
				"invalid min for exponential backoff, need greater than or equal to zero",
				"invalid max for exponential backoff, need greater than or equal to zero",
			},
		},
		{
			msg:        "max below min",
			base:       time.Microsecond,
			min:        time.Second,
			max:        time.Millisecond,
			wantErrors: []string{"exponential max value must be greater than min value"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			_, err := NewExponential(BaseJump(tt.base), MinBackoff(tt.min), MaxBackoff(tt.max))
			require.Error(t, err)
			var msgs []string
			for _, e := range multierr.Errors(err) {
				msgs = append(msgs, e.Error())
			}
			assert.Equal(t, tt.wantErrors, msgs)
		})
	}
}

func TestExponentialBounds(t *testing.T) {
	e, err := NewExponential(
		BaseJump(time.Millisecond),
		MinBackoff(10*time.Millisecond),
		MaxBackoff(100*time.Millisecond),
		randSource(rand.New(rand.NewSource(1))),
	)
	require.NoError(t, err)

	for attempt := uint(0); attempt < 80; attempt++ {
		d := e.Duration(attempt)
		assert.True(t, d >= 10*time.Millisecond, "attempt %d: %v below min", attempt, d)
		assert.True(t, d <= 100*time.Millisecond, "attempt %d: %v above max", attempt, d)
	}
}

func TestExponentialGrowth(t *testing.T) {
	e, err := NewExponential(
		BaseJump(time.Nanosecond),
		MaxBackoff(100*time.Nanosecond),
		randSource(rand.New(rand.NewSource(7))),
	)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		assert.True(t, e.Duration(0) <= 1)
		assert.True(t, e.Duration(3) <= 8)
		assert.True(t, e.Duration(6) <= 64)
		assert.True(t, e.Duration(200) <= 100)
	}
}

func TestRetrier(t *testing.T) {
	e, err := NewExponential(BaseJump(time.Nanosecond), MaxBackoff(time.Microsecond))
	require.NoError(t, err)

	r := NewRetrier(e)
	r.Next()
	r.Next()
	assert.Equal(t, uint(2), r.Attempts())
	r.Reset()
	assert.Equal(t, uint(0), r.Attempts())
}
