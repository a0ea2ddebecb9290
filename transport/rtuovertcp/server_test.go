// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtuovertcp

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ffutop/basis-driver/internal/config"
	"github.com/ffutop/basis-driver/modbus"
	rtupacket "github.com/ffutop/basis-driver/modbus/rtu"
	"github.com/ffutop/basis-driver/transport"
)

func startServer(t *testing.T, handler transport.RequestHandler) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(l.Addr().String())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.Serve(ctx, l, handler); err != nil {
			t.Logf("Server stopped: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l.Addr().String()
}

func TestServer_LifeCycle(t *testing.T) {
	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		if slaveID != 1 {
			t.Errorf("Handler expected slaveID 1, got %d", slaveID)
		}
		if pdu.FunctionCode == 0x03 {
			return modbus.ProtocolDataUnit{
				FunctionCode: 0x03,
				Data:         []byte{0x02, 0xAA, 0xBB},
			}, nil
		}
		return modbus.ProtocolDataUnit{}, nil
	}
	addr := startServer(t, handler)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	// Slave: 1, Func: 3, Addr: 0, Quant: 1
	reqPDU := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	reqADU := &rtupacket.ApplicationDataUnit{SlaveID: 1, Pdu: reqPDU}
	reqBytes, _ := reqADU.Encode()

	if _, err := conn.Write(reqBytes); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	respBytes, err := rtupacket.ReadResponse(1, 0x03, conn, time.Now().Add(1*time.Second))
	if err != nil {
		t.Fatalf("ReadResponse failed: %v", err)
	}

	respADU, err := rtupacket.Decode(respBytes)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if respADU.Pdu.Data[1] != 0xAA {
		t.Errorf("Unexpected data: %X", respADU.Pdu.Data)
	}
}

func TestClient_RoundTrip(t *testing.T) {
	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		switch pdu.FunctionCode {
		case modbus.FuncCodeReadHoldingRegisters:
			return modbus.ProtocolDataUnit{FunctionCode: pdu.FunctionCode, Data: []byte{0x02, 0x08, 0xCA}}, nil
		case modbus.FuncCodeWriteMultipleRegisters:
			return modbus.ProtocolDataUnit{FunctionCode: pdu.FunctionCode, Data: pdu.Data[:4]}, nil
		}
		return modbus.NewException(pdu.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
	addr := startServer(t, handler)

	client := NewClient(config.TcpConfig{Address: addr, Timeout: time.Second})
	defer client.Close()

	resp, err := client.Send(context.Background(), 1, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegisters,
		Data:         []byte{0x08, 0x01, 0x00, 0x01},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !bytes.Equal(resp.Data, []byte{0x02, 0x08, 0xCA}) {
		t.Errorf("Unexpected data: %X", resp.Data)
	}

	resp, err = client.Send(context.Background(), 1, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteMultipleRegisters,
		Data:         []byte{0x00, 0x27, 0x00, 0x01, 0x02, 0xAA, 0x55},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !bytes.Equal(resp.Data, []byte{0x00, 0x27, 0x00, 0x01}) {
		t.Errorf("Unexpected data: %X", resp.Data)
	}
}

func TestClient_SilentUnitTimesOut(t *testing.T) {
	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		return modbus.ProtocolDataUnit{}, transport.ErrNoResponse
	}
	addr := startServer(t, handler)

	client := NewClient(config.TcpConfig{Address: addr, Timeout: 100 * time.Millisecond})
	defer client.Close()

	_, err := client.Send(context.Background(), 7, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegisters,
		Data:         []byte{0x08, 0x01, 0x00, 0x01},
	})
	if !errors.Is(err, modbus.ErrRequestTimedOut) {
		t.Fatalf("Expected ErrRequestTimedOut, got %v", err)
	}
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	client := NewClient(config.TcpConfig{Address: "127.0.0.1:502"})
	if client.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v, want 250ms", client.Timeout)
	}

	client.SetBaudRate(9600)
	if client.BaudRate() != 9600 {
		t.Errorf("BaudRate() = %d, want 9600", client.BaudRate())
	}
}
