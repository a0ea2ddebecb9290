// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ffutop/basis-driver/modbus"
)

// Protocol limits for a single holding register transaction.
const (
	MaxReadQuantity  = 125
	MaxWriteQuantity = 123
)

// Client issues holding register transactions to one unit address over a
// Downstream. It performs no retries: each call is a single attempt.
type Client struct {
	Downstream Downstream

	slaveID  byte
	baudRate int
}

// NewClient binds ds to the unit at slaveID.
func NewClient(ds Downstream, slaveID byte) *Client {
	return &Client{
		Downstream: ds,
		slaveID:    slaveID,
	}
}

// UnitID returns the unit address the client talks to.
func (c *Client) UnitID() byte {
	return c.slaveID
}

// SetUnitID changes the unit address used by subsequent transactions.
func (c *Client) SetUnitID(id byte) {
	c.slaveID = id
}

// BaudRate returns the host line speed, or the last value set when the
// downstream does not own a serial line.
func (c *Client) BaudRate() int {
	if lc, ok := c.Downstream.(LineConfigurer); ok {
		return lc.BaudRate()
	}
	return c.baudRate
}

// SetBaudRate updates the host line speed in place.
func (c *Client) SetBaudRate(baud int) {
	c.baudRate = baud
	if lc, ok := c.Downstream.(LineConfigurer); ok {
		lc.SetBaudRate(baud)
	}
}

// ReadHoldingRegisters reads quantity registers starting at address (FC 03).
func (c *Client) ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	if quantity < 1 || quantity > MaxReadQuantity {
		return nil, fmt.Errorf("modbus: quantity '%v' must be between '%v' and '%v'", quantity, 1, MaxReadQuantity)
	}
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:], address)
	binary.BigEndian.PutUint16(data[2:], quantity)

	resp, err := c.send(ctx, modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeReadHoldingRegisters, Data: data})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) < 1 {
		return nil, fmt.Errorf("modbus: short read-registers payload")
	}
	count := int(resp.Data[0])
	if count != int(quantity)*2 || len(resp.Data)-1 != count {
		return nil, fmt.Errorf("modbus: response byte count '%v' does not match quantity '%v'", count, quantity)
	}
	regs := make([]uint16, quantity)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(resp.Data[1+2*i:])
	}
	return regs, nil
}

// WriteMultipleRegisters writes values starting at address (FC 16). It is
// the only write the client offers: Basis units are driven with FC 16 even
// for a single register.
func (c *Client) WriteMultipleRegisters(ctx context.Context, address uint16, values []uint16) error {
	quantity := len(values)
	if quantity < 1 || quantity > MaxWriteQuantity {
		return fmt.Errorf("modbus: quantity '%v' must be between '%v' and '%v'", quantity, 1, MaxWriteQuantity)
	}
	data := make([]byte, 5+2*quantity)
	binary.BigEndian.PutUint16(data[0:], address)
	binary.BigEndian.PutUint16(data[2:], uint16(quantity))
	data[4] = byte(2 * quantity)
	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+2*i:], v)
	}

	resp, err := c.send(ctx, modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeWriteMultipleRegisters, Data: data})
	if err != nil {
		return err
	}
	if len(resp.Data) != 4 || binary.BigEndian.Uint16(resp.Data) != address || int(binary.BigEndian.Uint16(resp.Data[2:])) != quantity {
		return fmt.Errorf("modbus: write multiple registers response '%X' does not echo request", resp.Data)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	resp, err := c.Downstream.Send(ctx, c.slaveID, req)
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	if err := resp.Exception(); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	if resp.FunctionCode != req.FunctionCode {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("modbus: response function '%v' does not match request '%v'", resp.FunctionCode, req.FunctionCode)
	}
	return resp, nil
}
