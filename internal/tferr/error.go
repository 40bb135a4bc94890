/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package tferr provides the single tagged-error type shared by every
// engine in the core. It mirrors apache-mynewt-newt's util.NewtError:
// a stack-captured, chainable error with a machine-checkable Kind.
package tferr

import (
	"fmt"
	"runtime"
)

// Kind enumerates the error categories from the error-handling design.
type Kind int

const (
	KindUnknown Kind = iota
	KindFlashIo
	KindBadImage
	KindNotUpgradeable
	KindFull
	KindNotFound
	KindInvalidHandle
	KindParam
	KindAuthFail
	KindRollbackRefused
	KindPanic
)

func (k Kind) String() string {
	switch k {
	case KindFlashIo:
		return "FlashIoError"
	case KindBadImage:
		return "BadImage"
	case KindNotUpgradeable:
		return "NotUpgradeable"
	case KindFull:
		return "InsufficientSpace"
	case KindNotFound:
		return "UidNotFound"
	case KindInvalidHandle:
		return "InvalidHandle"
	case KindParam:
		return "ParamError"
	case KindAuthFail:
		return "AuthFail"
	case KindRollbackRefused:
		return "RollbackRefused"
	case KindPanic:
		return "Panic"
	default:
		return "Unknown"
	}
}

// Error is the core's single error type. Every core operation returns
// one of these (wrapped as the `error` interface) rather than a bare
// stdlib error, so that callers can recover the Kind and drive the
// policy table in the error-handling design.
type Error struct {
	Kind       Kind
	Text       string
	Parent     error
	StackTrace []byte
}

func (e *Error) Error() string {
	return e.Text
}

func (e *Error) Unwrap() error {
	return e.Parent
}

func New(kind Kind, msg string) *Error {
	e := &Error{
		Kind:       kind,
		Text:       msg,
		StackTrace: make([]byte, 65536),
	}
	n := runtime.Stack(e.StackTrace, false)
	e.StackTrace = e.StackTrace[:n]
	return e
}

func Fmt(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap chains a foreign error underneath a new core error of the given
// Kind, the way util.ChildNewtError walks to the original cause.
func Wrap(kind Kind, parent error, msg string) *Error {
	e := New(kind, msg)
	e.Parent = parent
	return e
}

// Chain wraps a foreign error with no added context, the direct
// counterpart to util.ChildNewtError for call sites that have nothing
// to add beyond the underlying cause.
func Chain(kind Kind, parent error) *Error {
	return Wrap(kind, parent, parent.Error())
}

// KindOf extracts the Kind from err, or KindUnknown if err is not one
// of ours (or is nil).
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if te, ok := err.(*Error); ok {
		return te.Kind
	}
	return KindUnknown
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
