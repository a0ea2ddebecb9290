// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package simulator emulates the holding register behaviour of a Basis mass
// flow controller so the driver can run without hardware.
package simulator

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"sync"

	"github.com/ffutop/basis-driver/internal/simulator/model"
	"github.com/ffutop/basis-driver/internal/simulator/persistence"
	"github.com/ffutop/basis-driver/modbus"
	"github.com/ffutop/basis-driver/transport"
)

// Register addresses of the unit.
const (
	RegBaud           = 21
	RegFirmware       = 25
	RegSerialNumber   = 26
	RegTare           = 39
	RegAveraging      = 40
	RegModbusID       = 45
	RegASCIIID        = 46
	RegFullScale      = 47
	RegUnits          = 49
	RegSTPTemperature = 52
	RegExhaust        = 512
	RegExhaustValve   = 513
	RegWatchdog       = 514
	RegSetpointSource = 516
	RegPGain          = 519
	RegIGain          = 520
	RegGas            = 2048
	RegTemperature    = 2049
	RegMassFlow       = 2050
	RegValveDrive     = 2052
	RegSetpoint       = 2053
)

// TareCommand is the only value accepted by the tare register.
const TareCommand = 43605

// Setpoint sources.
const (
	SourceLocal  = 0
	SourceRemote = 2
)

var baudRates = []int{4800, 9600, 19200, 38400, 57600, 115200}

// Factory settings written into a blank register image.
var (
	DefaultSerialNumber = "BA 21034"
	DefaultFirmware     = uint16(0x0A25) // 10.2.5
	DefaultFullScale    = float32(1000000) // 1000 SCCM
	DefaultTemperature  = uint16(2250)     // 22.50 C
)

// Options changes how the unit reacts to requests.
type Options struct {
	// RejectBaudWrites answers writes to the baud register with an exception.
	RejectBaudWrites bool
	// UnitID is the factory address of a blank image. Zero means 1.
	UnitID byte
}

// Unit implements the register semantics of one Basis unit on top of a
// DataModel. Requests are processed one at a time.
type Unit struct {
	mu      sync.Mutex
	model   *model.DataModel
	storage persistence.Storage
	opts    Options
}

// New creates a Unit. A blank image (unit address 0) gets factory settings.
func New(m *model.DataModel, storage persistence.Storage, opts Options) *Unit {
	if storage == nil {
		storage = persistence.NewMemoryStorage()
	}
	u := &Unit{model: m, storage: storage, opts: opts}
	if m.Register(RegModbusID) == 0 {
		u.reset()
		if err := storage.Save(m); err != nil {
			slog.Warn("Failed to save factory settings", "err", err)
		}
	}
	return u
}

// Open loads the register image from the named storage and returns a Unit
// bound to it.
func Open(kind, path string, opts Options) (*Unit, error) {
	storage, err := persistence.New(kind, path)
	if err != nil {
		return nil, err
	}
	m, err := storage.Load()
	if err != nil {
		return nil, err
	}
	slog.Info("Simulated unit loaded", "persistence", kind, "path", path)
	return New(m, storage, opts), nil
}

// Close releases the storage.
func (u *Unit) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.storage.Save(u.model); err != nil {
		slog.Warn("Failed to save register image", "err", err)
	}
	return u.storage.Close()
}

func (u *Unit) reset() {
	sn := make([]uint16, 5)
	padded := []byte(DefaultSerialNumber + "          ")[:10]
	for i := range sn {
		sn[i] = binary.BigEndian.Uint16(padded[2*i:])
	}
	fs := math.Float32bits(DefaultFullScale)
	id := uint16(u.opts.UnitID)
	if id == 0 {
		id = 1
	}

	u.model.SetRegisters(RegBaud, 3)
	u.model.SetRegisters(RegFirmware, DefaultFirmware)
	u.model.SetRegisters(RegSerialNumber, sn...)
	u.model.SetRegisters(RegAveraging, 0)
	u.model.SetRegisters(RegModbusID, id, 'A', uint16(fs>>16), uint16(fs), 0)
	u.model.SetRegisters(RegSTPTemperature, 2500)
	u.model.SetRegisters(RegWatchdog, 0)
	u.model.SetRegisters(RegSetpointSource, SourceLocal)
	u.model.SetRegisters(RegPGain, 100, 200)
	u.model.SetRegisters(RegGas, 0, DefaultTemperature, 0, 0, 0, 0, 0)
}

// UnitID returns the address the unit answers to.
func (u *Unit) UnitID() byte {
	return byte(u.model.Register(RegModbusID))
}

// BaudRate returns the line speed selected by the baud register.
func (u *Unit) BaudRate() int {
	code := int(u.model.Register(RegBaud))
	if code >= len(baudRates) {
		return 0
	}
	return baudRates[code]
}

// Register returns the raw value of one holding register.
func (u *Unit) Register(address uint16) uint16 {
	return u.model.Register(address)
}

// SetRegisters overwrites raw register values, bypassing write rules.
func (u *Unit) SetRegisters(address uint16, values ...uint16) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.model.SetRegisters(address, values...); err != nil {
		return err
	}
	u.storage.OnWrite(address, uint16(len(values)))
	return nil
}

// Handle answers requests addressed to the unit and stays silent for others.
// It is a transport.RequestHandler.
func (u *Unit) Handle(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if slaveID != u.UnitID() {
		return modbus.ProtocolDataUnit{}, transport.ErrNoResponse
	}
	return u.Process(pdu)
}

// Process executes the request PDU against the register image.
func (u *Unit) Process(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return u.handleReadHoldingRegisters(req)
	case modbus.FuncCodeWriteSingleRegister:
		return u.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return u.handleWriteMultipleRegisters(req)
	default:
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
}

func (u *Unit) handleReadHoldingRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > 125 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	data, err := u.model.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

func (u *Unit) handleWriteSingleRegister(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if code := u.write(address, []uint16{value}); code != 0 {
		return modbus.NewException(req.FunctionCode, code), nil
	}
	return req, nil // Echo request
}

func (u *Unit) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 6 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > 123 || int(byteCount) != 2*int(quantity) || len(req.Data)-5 != int(byteCount) {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(req.Data[5+2*i:])
	}
	if code := u.write(address, values); code != 0 {
		return modbus.NewException(req.FunctionCode, code), nil
	}

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

// write applies values at address and returns a Modbus exception code, or 0.
// The write is checked as a whole before any register changes.
func (u *Unit) write(address uint16, values []uint16) byte {
	if int(address)+len(values) > model.MaxAddress+1 {
		return modbus.ExceptionCodeIllegalDataAddress
	}
	for i, v := range values {
		if code := u.check(address+uint16(i), v); code != 0 {
			return code
		}
	}

	if address == RegTare {
		// The command register is not stored.
		u.model.SetRegisters(RegMassFlow, 0, 0)
		u.storage.OnWrite(RegMassFlow, 2)
		slog.Debug("Simulated unit tared")
		return 0
	}

	if err := u.model.SetRegisters(address, values...); err != nil {
		return modbus.ExceptionCodeIllegalDataAddress
	}
	u.storage.OnWrite(address, uint16(len(values)))

	if address <= RegSetpoint+1 && int(address)+len(values) > RegSetpoint {
		u.followSetpoint()
	}
	return 0
}

// check validates one register value against the unit's rules.
func (u *Unit) check(address, value uint16) byte {
	switch {
	case address == RegBaud:
		if u.opts.RejectBaudWrites {
			return modbus.ExceptionCodeServerDeviceFailure
		}
		if int(value) >= len(baudRates) {
			return modbus.ExceptionCodeIllegalDataValue
		}
	case address == RegTare:
		if value != TareCommand {
			return modbus.ExceptionCodeIllegalDataValue
		}
	case address == RegAveraging:
		if value > 9 {
			return modbus.ExceptionCodeIllegalDataValue
		}
	case address == RegModbusID:
		if value < 1 || value > 247 {
			return modbus.ExceptionCodeIllegalDataValue
		}
	case address == RegASCIIID:
		if value < 'A' || value > 'Z' {
			return modbus.ExceptionCodeIllegalDataValue
		}
	case address == RegExhaust:
		if value > 1 {
			return modbus.ExceptionCodeIllegalDataValue
		}
	case address == RegSetpointSource:
		if value != SourceLocal && value != SourceRemote {
			return modbus.ExceptionCodeIllegalDataValue
		}
	case address == RegGas:
		if value > 7 {
			return modbus.ExceptionCodeIllegalDataValue
		}
	case address == RegSetpoint || address == RegSetpoint+1:
		if u.model.Register(RegSetpointSource) != SourceRemote {
			return modbus.ExceptionCodeIllegalFunction
		}
	case address >= RegFirmware && address < RegSerialNumber+5,
		address >= RegFullScale && address <= RegUnits,
		address >= RegTemperature && address <= RegValveDrive:
		// Read-only.
		return modbus.ExceptionCodeIllegalDataAddress
	}
	return 0
}

// followSetpoint settles flow and valve drive on the new setpoint.
func (u *Unit) followSetpoint() {
	hi, lo := u.model.Register(RegSetpoint), u.model.Register(RegSetpoint+1)
	setpoint := uint32(hi)<<16 | uint32(lo)

	fs := math.Float32frombits(uint32(u.model.Register(RegFullScale))<<16 | uint32(u.model.Register(RegFullScale+1)))
	var drive uint16
	if fs > 0 {
		drive = uint16(math.Min(float64(setpoint)/float64(fs), 1) * 10000)
	}

	u.model.SetRegisters(RegMassFlow, hi, lo, drive)
	u.storage.OnWrite(RegMassFlow, 3)
}
