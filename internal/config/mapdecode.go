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

// Package config holds the decoding helpers shared by the configuration
// layer: struct decoding with `config` tags and environment interpolation.
package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/uber-go/mapdecode"
)

const (
	_tagName           = "config"
	_interpolateOption = "interpolate"
)

// VariableResolver looks up the value of a variable referenced as ${NAME}.
type VariableResolver func(name string) (value string, ok bool)

// DecodeInto will decode the src's data into the dst interface.
func DecodeInto(dst interface{}, src interface{}, opts ...mapdecode.Option) error {
	opts = append(opts, mapdecode.TagName(_tagName))
	return mapdecode.Decode(dst, src, opts...)
}

// InterpolateWith is a mapdecode option that expands ${NAME} and
// ${NAME:default} references in string values of fields tagged with the
// `interpolate` option, such as `config:"address,interpolate"`.
func InterpolateWith(resolver VariableResolver) mapdecode.Option {
	return mapdecode.FieldHook(func(dest reflect.StructField, srcData reflect.Value) (reflect.Value, error) {
		if !hasOption(dest.Tag.Get(_tagName), _interpolateOption) {
			return srcData, nil
		}

		// Use Interface().(string) so that we handle the case where data is an
		// interface{} holding a string.
		v, ok := srcData.Interface().(string)
		if !ok {
			// An integer field may be marked as interpolatable and receive an
			// integer as expected.
			return srcData, nil
		}

		out, err := interpolate(v, resolver)
		if err != nil {
			return srcData, err
		}
		return reflect.ValueOf(out), nil
	})
}

func hasOption(tag, option string) bool {
	for _, o := range strings.Split(tag, ",")[1:] {
		if o == option {
			return true
		}
	}
	return false
}

func interpolate(s string, resolver VariableResolver) (string, error) {
	var (
		b    strings.Builder
		rest = s
	)
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", fmt.Errorf("failed to parse %q for interpolation: unterminated variable reference", s)
		}
		b.WriteString(rest[:start])

		ref := rest[start+2 : start+end]
		name, def, hasDefault := strings.Cut(ref, ":")
		if name == "" {
			return "", fmt.Errorf("failed to parse %q for interpolation: empty variable name", s)
		}
		val, ok := resolver(name)
		switch {
		case ok:
			b.WriteString(val)
		case hasDefault:
			b.WriteString(def)
		default:
			return "", fmt.Errorf("failed to render %q with environment variables: %q is not set", s, name)
		}
		rest = rest[start+end+1:]
	}
}
