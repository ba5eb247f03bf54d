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

package proxyerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsString(t *testing.T) {
	for code, s := range _codeToString {
		t.Run(s, func(t *testing.T) {
			assert.Equal(t, s, code.String())
			text, err := code.MarshalText()
			require.NoError(t, err)

			var decoded Code
			require.NoError(t, decoded.UnmarshalText(text))
			assert.Equal(t, code, decoded)
		})
	}

	assert.Equal(t, "99", Code(99).String())
	_, err := Code(99).MarshalText()
	assert.Error(t, err)

	var c Code
	assert.Error(t, c.UnmarshalText([]byte("nope")))
}

func TestNewfOK(t *testing.T) {
	assert.Nil(t, Newf(CodeOK, "fine"))
}

func TestConstructorsAndPredicates(t *testing.T) {
	tests := []struct {
		code  Code
		build func(string, ...interface{}) error
		is    func(error) bool
	}{
		{CodeCancelled, CancelledErrorf, IsCancelled},
		{CodeInvalidArgument, InvalidArgumentErrorf, IsInvalidArgument},
		{CodeDeadlineExceeded, DeadlineExceededErrorf, IsDeadlineExceeded},
		{CodeNotFound, NotFoundErrorf, IsNotFound},
		{CodeAlreadyExists, AlreadyExistsErrorf, IsAlreadyExists},
		{CodeResourceExhausted, ResourceExhaustedErrorf, IsResourceExhausted},
		{CodeFailedPrecondition, FailedPreconditionErrorf, IsFailedPrecondition},
		{CodeAborted, AbortedErrorf, IsAborted},
		{CodeInternal, InternalErrorf, IsInternal},
		{CodeUnavailable, UnavailableErrorf, IsUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := tt.build("worker %d: %s", 3, "boom")
			require.Error(t, err)
			assert.True(t, tt.is(err))
			assert.True(t, IsStatus(err))
			assert.Equal(t, tt.code, ErrorCode(err))
			assert.Equal(t, "worker 3: boom", FromError(err).Message())
			assert.Equal(t, fmt.Sprintf("code:%s message:worker 3: boom", tt.code), err.Error())

			wrapped := fmt.Errorf("adjusting threads: %w", err)
			assert.True(t, tt.is(wrapped), "predicates must see through wrapping")
		})
	}
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))
	assert.Equal(t, CodeOK, ErrorCode(nil))
	assert.False(t, IsStatus(nil))

	plain := errors.New("plain")
	st := FromError(plain)
	assert.Equal(t, CodeUnknown, st.Code())
	assert.Equal(t, "plain", st.Message())
	assert.True(t, errors.Is(st, plain))
	assert.False(t, IsStatus(plain))
}

func TestUnwrapNewf(t *testing.T) {
	cause := errors.New("bind: address already in use")
	err := Newf(CodeUnavailable, "listener %q: %w", "rw", cause)
	assert.True(t, errors.Is(err, cause))

	var nilStatus *Status
	assert.Nil(t, nilStatus.Unwrap())
	assert.Equal(t, "", nilStatus.Message())
}
