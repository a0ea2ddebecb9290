// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package basis drives a Basis mass flow controller through its Modbus
// holding registers.
//
// A Device turns engineering-unit operations into register transactions.
// It is synchronous and holds no lock: the caller owns a Device and must not
// use it from more than one goroutine at a time.
package basis

import (
	"context"
	"fmt"
)

// Transport carries holding register transactions to one unit. Every call is
// a single attempt bounded by the transport's response timeout.
type Transport interface {
	ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error)
	WriteMultipleRegisters(ctx context.Context, address uint16, values []uint16) error

	// UnitID and SetUnitID address the unit on the line.
	UnitID() byte
	SetUnitID(id byte)
	// BaudRate and SetBaudRate configure the host side of the line.
	BaudRate() int
	SetBaudRate(baud int)
}

// Device is one Basis unit reached through a Transport.
type Device struct {
	port      string
	transport Transport
}

// NewDevice binds a Device to t. port identifies the line in logs and output.
func NewDevice(port string, t Transport) *Device {
	return &Device{port: port, transport: t}
}

// Port returns the line identifier given to NewDevice.
func (d *Device) Port() string {
	return d.port
}

// UnitID returns the address the transport currently uses.
func (d *Device) UnitID() byte {
	return d.transport.UnitID()
}

// Transport returns the underlying transport.
func (d *Device) Transport() Transport {
	return d.transport
}

func (d *Device) read(ctx context.Context, f Field) ([]uint16, error) {
	regs, err := d.transport.ReadHoldingRegisters(ctx, f.Address, f.Width)
	if err != nil {
		return nil, &TransportError{Op: "read", Field: f.Name, Address: f.Address, Err: err}
	}
	if len(regs) != int(f.Width) {
		err = fmt.Errorf("got %d registers, want %d", len(regs), f.Width)
		return nil, &TransportError{Op: "read", Field: f.Name, Address: f.Address, Err: err}
	}
	return regs, nil
}

// write stores values with function code 16, also for single registers.
func (d *Device) write(ctx context.Context, f Field, values []uint16) error {
	if err := d.transport.WriteMultipleRegisters(ctx, f.Address, values); err != nil {
		return &TransportError{Op: "write", Field: f.Name, Address: f.Address, Err: err}
	}
	return nil
}

func (d *Device) readValue(ctx context.Context, f Field) (float64, error) {
	regs, err := d.read(ctx, f)
	if err != nil {
		return 0, err
	}
	return f.Decode(regs)
}

func (d *Device) writeValue(ctx context.Context, f Field, v float64) error {
	regs, err := f.Encode(v)
	if err != nil {
		return err
	}
	return d.write(ctx, f, regs)
}

func (d *Device) readRaw(ctx context.Context, f Field) (uint16, error) {
	regs, err := d.read(ctx, f)
	if err != nil {
		return 0, err
	}
	return regs[0], nil
}
