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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeMapPop(t *testing.T) {
	m := AttributeMap{
		"nodelay":  true,
		"idle":     "30s",
		"leftover": 1,
	}

	var b bool
	ok, err := m.Pop("nodelay", &b)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, b)

	var d time.Duration
	ok, err = m.Pop("idle", &d)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	var s string
	ok, err = m.Pop("missing", &s)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{"leftover"}, m.Keys())
	assert.EqualError(t, m.Unused(), "unknown attributes: [leftover]")
}

func TestAttributeMapBadType(t *testing.T) {
	m := AttributeMap{"nodelay": "sometimes"}
	var b bool
	_, err := m.Pop("nodelay", &b)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `failed to read attribute "nodelay"`)
}

func TestAttributeMapDecode(t *testing.T) {
	var dst struct {
		Nodelay bool `config:"nodelay"`
		Port    int  `config:"port"`
	}
	require.NoError(t, AttributeMap{"nodelay": true, "port": 4006}.Decode(&dst))
	assert.True(t, dst.Nodelay)
	assert.Equal(t, 4006, dst.Port)
	assert.NoError(t, AttributeMap{}.Unused())
}

func TestInterpolateHook(t *testing.T) {
	type server struct {
		Address string `config:"address,interpolate"`
		Port    int    `config:"port,interpolate"`
		Name    string `config:"name"`
	}

	env := map[string]string{"DB_HOST": "10.0.0.7", "DB_PORT": "3307"}
	resolver := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	tests := []struct {
		desc    string
		give    map[string]interface{}
		want    server
		wantErr string
	}{
		{
			desc: "expands references",
			give: map[string]interface{}{"address": "${DB_HOST}", "port": "${DB_PORT}"},
			want: server{Address: "10.0.0.7", Port: 3307},
		},
		{
			desc: "default",
			give: map[string]interface{}{"address": "${MISSING:127.0.0.1}"},
			want: server{Address: "127.0.0.1"},
		},
		{
			desc: "mixed text",
			give: map[string]interface{}{"address": "db-${DB_PORT}.local"},
			want: server{Address: "db-3307.local"},
		},
		{
			desc: "non-interpolated field",
			give: map[string]interface{}{"name": "${DB_HOST}"},
			want: server{Name: "${DB_HOST}"},
		},
		{
			desc: "int passes through",
			give: map[string]interface{}{"port": 3306},
			want: server{Port: 3306},
		},
		{
			desc:    "missing variable",
			give:    map[string]interface{}{"address": "${MISSING}"},
			wantErr: `failed to render "${MISSING}" with environment variables`,
		},
		{
			desc:    "unterminated",
			give:    map[string]interface{}{"address": "${DB_HOST"},
			wantErr: `failed to parse "${DB_HOST" for interpolation`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			var got server
			err := DecodeInto(&got, tt.give, InterpolateWith(resolver))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
