// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"errors"

	"github.com/ffutop/basis-driver/modbus"
)

// ErrNoResponse is returned by a RequestHandler that stays silent on the
// line, like a unit that is not addressed or listens at another speed.
var ErrNoResponse = errors.New("transport: request not answered")

// RequestHandler answers one request PDU addressed to slaveID.
// Upstreams call it once per decoded frame.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

// Upstream represents a source of requests (a Modbus master connected to us).
// It acts as a Server and is used to expose the simulated unit.
type Upstream interface {
	// Start starts the server and blocks. It should be called in a goroutine.
	Start(ctx context.Context, handler RequestHandler) error
	Close() error
}

// Downstream represents the slave we talk to. It carries exactly one
// request/response transaction at a time.
type Downstream interface {
	// Send sends a PDU to a specific SlaveID and returns the response PDU.
	Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)
	Connect(ctx context.Context) error
	Close() error
}

// LineConfigurer is implemented by downstreams whose line speed is owned
// by the host and can be changed in place.
type LineConfigurer interface {
	BaudRate() int
	// SetBaudRate reconfigures the line. The next transaction uses the new speed.
	SetBaudRate(baud int)
}
