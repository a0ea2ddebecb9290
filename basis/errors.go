// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package basis

import (
	"errors"
	"fmt"

	"github.com/ffutop/basis-driver/modbus"
)

// ErrNotFound matches every *NotFoundError.
var ErrNotFound = errors.New("basis: not found")

// NotFoundError reports a key or code missing from a lookup table.
type NotFoundError struct {
	Table string
	Key   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("basis: %v not found in %s table", e.Key, e.Table)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports an input outside a field's domain. It is returned
// before any register is touched.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("basis: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TransportError wraps a failed register transaction.
type TransportError struct {
	Op      string // "read" or "write"
	Field   string
	Address uint16
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("basis: %s %s (register %d): %v", e.Op, e.Field, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the unit did not answer in time.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, modbus.ErrRequestTimedOut)
}
