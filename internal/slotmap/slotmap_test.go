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

package slotmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	m := New[string]()
	a := m.Insert("a")
	b := m.Insert("b")
	assert.Equal(t, 2, m.Len())

	v, ok := m.Get(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = m.Remove(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.False(t, m.Contains(a))
	assert.True(t, m.Contains(b))

	_, ok = m.Remove(a)
	assert.False(t, ok, "double remove must fail")
	assert.Equal(t, 1, m.Len())
}

func TestStaleKeyAfterReuse(t *testing.T) {
	m := New[int]()
	old := m.Insert(1)
	m.Remove(old)

	fresh := m.Insert(2)
	assert.NotEqual(t, old, fresh)

	_, ok := m.Get(old)
	assert.False(t, ok, "stale key must not resolve to the new occupant")

	v, ok := m.Get(fresh)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestZeroKey(t *testing.T) {
	m := New[int]()
	m.Insert(1)

	var k Key
	assert.True(t, k.IsZero())
	assert.False(t, m.Contains(k))
	assert.False(t, m.Contains(Key{index: 99, gen: 1}))
}

func TestRange(t *testing.T) {
	m := New[int]()
	keys := []Key{m.Insert(1), m.Insert(2), m.Insert(3)}
	m.Remove(keys[1])

	sum := 0
	m.Range(func(_ Key, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 4, sum)

	visited := 0
	m.Range(func(Key, int) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}
