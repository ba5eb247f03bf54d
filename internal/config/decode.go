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

package config

import (
	"fmt"
	"sort"
)

// AttributeMap is the opaque parameter bag handed to protocol modules. Each
// module pops the keys it understands and reports the rest as unknown.
type AttributeMap map[string]interface{}

// Pop removes the named key from the AttributeMap and decodes the value into
// the dst interface.
func (m AttributeMap) Pop(name string, dst interface{}) (ok bool, err error) {
	ok, err = m.Get(name, dst)
	if ok {
		delete(m, name)
	}
	return
}

// Get grabs a value from the attribute map and decodes it into the dst
// interface.
func (m AttributeMap) Get(name string, dst interface{}) (ok bool, err error) {
	v, ok := m[name]
	if !ok {
		return ok, nil
	}

	if err = DecodeInto(dst, v); err != nil {
		err = fmt.Errorf("failed to read attribute %q: %v", name, err)
	}
	return true, err
}

// Keys returns all the keys of the attribute map in sorted order.
func (m AttributeMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Unused returns an error naming every key that nothing popped.
func (m AttributeMap) Unused() error {
	if len(m) == 0 {
		return nil
	}
	return fmt.Errorf("unknown attributes: %v", m.Keys())
}
