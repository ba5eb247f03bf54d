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

// Package slotmap stores values under generation-checked keys.
//
// A key names a slot and the generation the slot had when the value was
// inserted. Removing a value bumps the generation, so a stale key held by
// another goroutine or a late event never resolves to a newer occupant.
package slotmap

import "fmt"

// Key identifies a value in a Map. The zero Key is never valid.
type Key struct {
	index uint32
	gen   uint32
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k.gen == 0
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.index, k.gen)
}

type slot[V any] struct {
	gen      uint32
	occupied bool
	value    V
}

// Map is a slot map. It is not safe for concurrent use.
type Map[V any] struct {
	slots []slot[V]
	free  []uint32
	n     int
}

// New returns an empty Map.
func New[V any]() *Map[V] {
	return &Map[V]{}
}

// Insert stores v and returns its key.
func (m *Map[V]) Insert(v V) Key {
	var idx uint32
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		idx = uint32(len(m.slots))
		m.slots = append(m.slots, slot[V]{})
	}

	s := &m.slots[idx]
	s.gen++
	if s.gen == 0 {
		// Skip the zero generation on wrap-around.
		s.gen = 1
	}
	s.occupied = true
	s.value = v
	m.n++
	return Key{index: idx, gen: s.gen}
}

// Get returns the value stored under k.
func (m *Map[V]) Get(k Key) (V, bool) {
	if s := m.lookup(k); s != nil {
		return s.value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether k names a live value.
func (m *Map[V]) Contains(k Key) bool {
	return m.lookup(k) != nil
}

// Remove deletes the value stored under k and returns it. Removing a stale
// key is a no-op that reports false.
func (m *Map[V]) Remove(k Key) (V, bool) {
	var zero V
	s := m.lookup(k)
	if s == nil {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.occupied = false
	m.free = append(m.free, k.index)
	m.n--
	return v, true
}

// Len returns the number of live values.
func (m *Map[V]) Len() int {
	return m.n
}

// Range calls f for every live value until f returns false. f must not
// insert or remove.
func (m *Map[V]) Range(f func(Key, V) bool) {
	for i := range m.slots {
		s := &m.slots[i]
		if !s.occupied {
			continue
		}
		if !f(Key{index: uint32(i), gen: s.gen}, s.value) {
			return
		}
	}
}

func (m *Map[V]) lookup(k Key) *slot[V] {
	if k.gen == 0 || int(k.index) >= len(m.slots) {
		return nil
	}
	s := &m.slots[k.index]
	if !s.occupied || s.gen != k.gen {
		return nil
	}
	return s
}
