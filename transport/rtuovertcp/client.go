// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ffutop/basis-driver/internal/config"
	"github.com/ffutop/basis-driver/modbus"
	rtupacket "github.com/ffutop/basis-driver/modbus/rtu"
)

const (
	tcpDialTimeout     = 10 * time.Second
	tcpResponseTimeout = 250 * time.Millisecond
)

// Client implements Downstream interface (Modbus RTU over TCP Client).
// It suits serial device servers that pass RTU frames through unchanged.
type Client struct {
	Address string
	// Timeout bounds the wait for a response to one request.
	Timeout time.Duration

	mu       sync.Mutex
	conn     net.Conn
	baudRate int
}

// NewClient allocates and initializes a TCP Client.
func NewClient(cfg config.TcpConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = tcpResponseTimeout
	}
	return &Client{
		Address: cfg.Address,
		Timeout: timeout,
	}
}

// Send sends a PDU to a Slave (Downstream) and returns the response PDU.
func (mb *Client) Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.connect(ctx); err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("modbus: failed to connect to %s: %w", mb.Address, err)
	}

	adu := &rtupacket.ApplicationDataUnit{
		SlaveID: slaveID,
		Pdu:     pdu,
	}

	aduBytes, err := adu.Encode()
	if err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("failed to encode ADU: %w", err)
	}

	deadline := time.Now().Add(mb.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err = mb.conn.SetDeadline(deadline); err != nil {
		mb.close()
		return modbus.ProtocolDataUnit{}, err
	}

	if _, err := mb.conn.Write(aduBytes); err != nil {
		mb.close() // Close connection on write failure to force reconnect next time
		return modbus.ProtocolDataUnit{}, fmt.Errorf("failed to write to connection: %w", err)
	}

	// RTU-over-TCP carries plain RTU frames, so the serial framer applies.
	respBytes, err := rtupacket.ReadResponse(slaveID, pdu.FunctionCode, mb.conn, deadline)
	if err != nil {
		// A late response would desynchronise the stream.
		mb.close()
		if errors.Is(err, modbus.ErrRequestTimedOut) {
			return modbus.ProtocolDataUnit{}, err
		}
		return modbus.ProtocolDataUnit{}, fmt.Errorf("failed to read response: %w", err)
	}

	respAdu, err := rtupacket.Decode(respBytes)
	if err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("failed to decode response ADU: %w", err)
	}

	if err := adu.Verify(respAdu); err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("verification failed: %w", err)
	}

	return respAdu.Pdu, nil
}

// BaudRate returns the last line speed recorded with SetBaudRate. The serial
// side of a device server is configured out of band.
func (mb *Client) BaudRate() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.baudRate
}

// SetBaudRate records the line speed.
func (mb *Client) SetBaudRate(baud int) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.baudRate = baud
}

// Connect implements Connector interface.
func (mb *Client) Connect(ctx context.Context) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.connect(ctx)
}

// Close implements Connector interface.
func (mb *Client) Close() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.close()
	return nil
}

// connect ensures there is an active connection. Caller must hold the mutex.
func (mb *Client) connect(ctx context.Context) error {
	if mb.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: tcpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", mb.Address)
	if err != nil {
		return err
	}
	mb.conn = conn
	return nil
}

// close closes the connection and resets the state. Caller must hold the mutex.
func (mb *Client) close() {
	if mb.conn != nil {
		mb.conn.Close()
		mb.conn = nil
	}
}
