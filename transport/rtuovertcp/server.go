// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/ffutop/basis-driver/modbus"
	rtupacket "github.com/ffutop/basis-driver/modbus/rtu"
	"github.com/ffutop/basis-driver/transport"
)

// Server implements a Modbus RTU over TCP Server.
// It listens on a TCP port and handles incoming connections as Modbus RTU streams.
// Requests from all connections are handled one at a time, as on a serial line.
type Server struct {
	Address string

	mu       sync.Mutex
	listener net.Listener
	serial   sync.Mutex
}

// NewServer creates a new RTU over TCP Server.
func NewServer(address string) *Server {
	return &Server{
		Address: address,
	}
}

// Start listens on Address and serves until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	return s.Serve(ctx, listener, handler)
}

// Serve accepts connections on listener until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context, listener net.Listener, handler transport.RequestHandler) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	slog.Info("RTU over TCP server listening", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}
		go s.handleConnection(ctx, conn, handler)
	}
}

// Close closes the server listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler transport.RequestHandler) {
	defer conn.Close()
	slog.Info("New RTU over TCP client connected", "addr", conn.RemoteAddr())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, rtupacket.MaxSize)

	for {
		// 1. Read first byte (SlaveID) to detect start of frame
		n, err := conn.Read(buf[:1])
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				slog.Error("Connection read error", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}
		if n == 0 {
			continue
		}

		// 2. Read header bytes up to the FC 16 byte count.
		current := 1
		need := 7

		for current < need {
			n, err := conn.Read(buf[current:need])
			if err != nil {
				return
			}
			current += n
		}

		// 3. Determine expected length
		functionCode := buf[1]
		expectedLen, err := rtupacket.CalculateRequestLength(functionCode, buf[:current])
		if err != nil {
			// The stream cannot be resynchronised after an unframeable request.
			slog.Warn("Invalid RTU frame header", "func", functionCode, "err", err)
			return
		}

		// 4. Read remaining body
		for current < expectedLen {
			n, err := conn.Read(buf[current:expectedLen])
			if err != nil {
				return
			}
			current += n
		}

		// 5. Decode and Verify CRC
		adu, err := rtupacket.Decode(buf[:expectedLen])
		if err != nil {
			slog.Warn("RTU frame decode failed", "err", err)
			continue
		}

		// 6. Handle Request
		s.serial.Lock()
		respPdu, err := handler(ctx, adu.SlaveID, adu.Pdu)
		s.serial.Unlock()
		if errors.Is(err, transport.ErrNoResponse) {
			continue
		}
		if err != nil {
			slog.Error("Handler failed", "err", err)
			exceptionCode := byte(modbus.ExceptionCodeServerDeviceFailure)
			if errors.Is(err, context.DeadlineExceeded) {
				exceptionCode = modbus.ExceptionCodeGatewayTargetDeviceFailedToRespond
			}
			respPdu = modbus.NewException(adu.Pdu.FunctionCode, exceptionCode)
		}

		// 7. Send Response
		respAdu := &rtupacket.ApplicationDataUnit{
			SlaveID: adu.SlaveID,
			Pdu:     respPdu,
		}

		respRaw, err := respAdu.Encode()
		if err != nil {
			slog.Error("Failed to encode response", "err", err)
			continue
		}

		if _, err := conn.Write(respRaw); err != nil {
			slog.Error("Failed to write response", "err", err)
			return
		}
	}
}
