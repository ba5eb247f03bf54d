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
	"fmt"
	"strconv"
)

const (
	// CodeOK means no error.
	CodeOK Code = 0

	// CodeCancelled means the operation was cancelled by its caller, for
	// example a blocking call whose context was cancelled.
	CodeCancelled Code = 1

	// CodeUnknown means the error carried no classification.
	CodeUnknown Code = 2

	// CodeInvalidArgument means the caller supplied an argument that can never
	// be valid, such as a thread count of zero.
	CodeInvalidArgument Code = 3

	// CodeDeadlineExceeded means an operation did not complete in time. Waiting
	// endpoints that outlive their multiplex timeout and cross-thread calls that
	// are not answered fail with this code.
	CodeDeadlineExceeded Code = 4

	// CodeNotFound means a referenced worker, server or session does not exist.
	CodeNotFound Code = 5

	// CodeAlreadyExists means the entity being added is already registered,
	// such as an endpoint that is already waiting for a connection.
	CodeAlreadyExists Code = 6

	// CodeResourceExhausted means a limit was reached. A backend connection
	// request that hits the server's connection limit returns this code and
	// is expected to wait rather than fail.
	CodeResourceExhausted Code = 8

	// CodeFailedPrecondition means the system is not in a state that allows
	// the operation, for example calling Init twice.
	CodeFailedPrecondition Code = 9

	// CodeAborted means the operation was abandoned because a worker went away
	// while it was in progress.
	CodeAborted Code = 10

	// CodeInternal means an invariant was broken.
	CodeInternal Code = 13

	// CodeUnavailable means the operation could not be carried out now but may
	// succeed later, for example a listener that failed to bind.
	CodeUnavailable Code = 14
)

var (
	_codeToString = map[Code]string{
		CodeOK:                 "ok",
		CodeCancelled:          "cancelled",
		CodeUnknown:            "unknown",
		CodeInvalidArgument:    "invalid-argument",
		CodeDeadlineExceeded:   "deadline-exceeded",
		CodeNotFound:           "not-found",
		CodeAlreadyExists:      "already-exists",
		CodeResourceExhausted:  "resource-exhausted",
		CodeFailedPrecondition: "failed-precondition",
		CodeAborted:            "aborted",
		CodeInternal:           "internal",
		CodeUnavailable:        "unavailable",
	}
	_stringToCode = map[string]Code{}
)

func init() {
	for code, s := range _codeToString {
		_stringToCode[s] = code
	}
}

// Code represents the class of a failure in the routing core.
type Code int

// String returns the string representation of the Code.
func (c Code) String() string {
	if s, ok := _codeToString[c]; ok {
		return s
	}
	return strconv.Itoa(int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	s, ok := _codeToString[c]
	if ok {
		return []byte(s), nil
	}
	return nil, fmt.Errorf("unknown code: %d", int(c))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(text []byte) error {
	code, ok := _stringToCode[string(text)]
	if !ok {
		return fmt.Errorf("unknown code string: %s", string(text))
	}
	*c = code
	return nil
}
