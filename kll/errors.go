/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package kll

import (
	"errors"
	"fmt"
)

// ErrorKind tags a sketch error with a coarse category so callers can
// branch on failure mode without parsing message text.
type ErrorKind string

const (
	ErrInvalidArgument ErrorKind = "invalid_argument"
	ErrSketchEmpty     ErrorKind = "sketch_empty"
	ErrReadOnly        ErrorKind = "read_only"
	ErrInvalidFormat   ErrorKind = "invalid_format"
	ErrTypeMismatch    ErrorKind = "type_mismatch"
	ErrOutOfMemory     ErrorKind = "out_of_memory"
)

// SketchError is a plain error carrying an ErrorKind tag. It wraps like any
// other error produced with fmt.Errorf("%w", ...), so errors.Is/errors.As
// work against it.
type SketchError struct {
	Kind ErrorKind
	msg  string
}

func (e *SketchError) Error() string {
	return e.msg
}

func newError(kind ErrorKind, format string, args ...any) error {
	return &SketchError{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err (or any error it wraps) carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *SketchError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
