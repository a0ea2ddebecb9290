// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ffutop/basis-driver/internal/config"
	"github.com/ffutop/basis-driver/internal/simulator"
	"github.com/ffutop/basis-driver/modbus"
)

// Client implements Downstream interface for an in-process simulated unit.
// Like a serial line it has a host baud rate: requests sent at a speed the
// unit does not listen at, or to another address, time out.
type Client struct {
	unit *simulator.Unit

	mu       sync.Mutex
	baudRate int
}

// NewClient binds a Client to unit with the host line at baudRate.
func NewClient(unit *simulator.Unit, baudRate int) *Client {
	return &Client{
		unit:     unit,
		baudRate: baudRate,
	}
}

// Open creates the simulated unit described by cfg and binds a Client to it.
func Open(cfg config.LocalConfig, baudRate int) (*Client, error) {
	slog.Info("Initializing simulated unit", "persistence", cfg.Persistence.Type, "path", cfg.Persistence.Path)
	unit, err := simulator.Open(cfg.Persistence.Type, cfg.Persistence.Path, simulator.Options{
		RejectBaudWrites: cfg.RejectBaudWrites,
	})
	if err != nil {
		return nil, err
	}
	return NewClient(unit, baudRate), nil
}

// Unit returns the simulated unit behind the client.
func (c *Client) Unit() *simulator.Unit {
	return c.unit
}

// Send processes the PDU locally.
func (c *Client) Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if err := ctx.Err(); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	if baud := c.BaudRate(); baud != c.unit.BaudRate() {
		slog.Debug("simulated unit not listening at host baud rate", "host", baud, "unit", c.unit.BaudRate())
		return modbus.ProtocolDataUnit{}, modbus.ErrRequestTimedOut
	}
	if slaveID != c.unit.UnitID() {
		return modbus.ProtocolDataUnit{}, modbus.ErrRequestTimedOut
	}
	return c.unit.Process(pdu)
}

// BaudRate returns the host line speed.
func (c *Client) BaudRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baudRate
}

// SetBaudRate changes the host line speed.
func (c *Client) SetBaudRate(baud int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baudRate = baud
}

// Connect is a no-op for local slave.
func (c *Client) Connect(ctx context.Context) error {
	return nil
}

// Close closes the storage.
func (c *Client) Close() error {
	return c.unit.Close()
}
