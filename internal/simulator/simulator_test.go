// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package simulator

import (
	"context"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ffutop/basis-driver/internal/simulator/model"
	"github.com/ffutop/basis-driver/modbus"
	"github.com/ffutop/basis-driver/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUnit(opts Options) *Unit {
	return New(model.NewDataModel(), nil, opts)
}

func readPDU(address, quantity uint16) modbus.ProtocolDataUnit {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data, address)
	binary.BigEndian.PutUint16(data[2:], quantity)
	return modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeReadHoldingRegisters, Data: data}
}

func writePDU(address uint16, values ...uint16) modbus.ProtocolDataUnit {
	data := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(data, address)
	binary.BigEndian.PutUint16(data[2:], uint16(len(values)))
	data[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+2*i:], v)
	}
	return modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeWriteMultipleRegisters, Data: data}
}

func exceptionCode(t *testing.T, pdu modbus.ProtocolDataUnit) byte {
	t.Helper()
	var mbErr *modbus.Error
	require.True(t, errors.As(pdu.Exception(), &mbErr), "expected exception, got %+v", pdu)
	return mbErr.ExceptionCode
}

func TestNew_FactorySettings(t *testing.T) {
	u := newUnit(Options{})

	assert.Equal(t, byte(1), u.UnitID())
	assert.Equal(t, 38400, u.BaudRate())
	assert.Equal(t, uint16('A'), u.Register(RegASCIIID))
	assert.Equal(t, DefaultFirmware, u.Register(RegFirmware))
	assert.Equal(t, uint16(SourceLocal), u.Register(RegSetpointSource))
	assert.Equal(t, DefaultTemperature, u.Register(RegTemperature))
	assert.Equal(t, uint16('B')<<8|'A', u.Register(RegSerialNumber))
}

func TestNew_FactoryUnitID(t *testing.T) {
	assert.Equal(t, byte(12), newUnit(Options{UnitID: 12}).UnitID())
}

func TestNew_KeepsExistingImage(t *testing.T) {
	m := model.NewDataModel()
	require.NoError(t, m.SetRegisters(RegModbusID, 9))
	require.NoError(t, m.SetRegisters(RegBaud, 1))

	u := New(m, nil, Options{})
	assert.Equal(t, byte(9), u.UnitID())
	assert.Equal(t, 9600, u.BaudRate())
}

func TestProcess_Read(t *testing.T) {
	u := newUnit(Options{})

	resp, err := u.Process(readPDU(RegTemperature, 1))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x08, 0xCA}, resp.Data)

	resp, err = u.Process(readPDU(0, 126))
	require.NoError(t, err)
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataValue), exceptionCode(t, resp))
}

func TestProcess_WriteSingleRegister(t *testing.T) {
	u := newUnit(Options{})

	req := modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeWriteSingleRegister, Data: []byte{0x08, 0x00, 0x00, 0x03}}
	resp, err := u.Process(req)
	require.NoError(t, err)
	assert.Equal(t, req, resp)
	assert.Equal(t, uint16(3), u.Register(RegGas))
}

func TestProcess_WriteRules(t *testing.T) {
	tests := []struct {
		name    string
		address uint16
		values  []uint16
		want    byte
	}{
		{"BaudCode", RegBaud, []uint16{6}, modbus.ExceptionCodeIllegalDataValue},
		{"TareValue", RegTare, []uint16{1}, modbus.ExceptionCodeIllegalDataValue},
		{"AveragingExponent", RegAveraging, []uint16{10}, modbus.ExceptionCodeIllegalDataValue},
		{"ModbusIDZero", RegModbusID, []uint16{0}, modbus.ExceptionCodeIllegalDataValue},
		{"ModbusIDTooLarge", RegModbusID, []uint16{248}, modbus.ExceptionCodeIllegalDataValue},
		{"ASCIIID", RegASCIIID, []uint16{'@'}, modbus.ExceptionCodeIllegalDataValue},
		{"Exhaust", RegExhaust, []uint16{2}, modbus.ExceptionCodeIllegalDataValue},
		{"SetpointSource", RegSetpointSource, []uint16{1}, modbus.ExceptionCodeIllegalDataValue},
		{"Gas", RegGas, []uint16{8}, modbus.ExceptionCodeIllegalDataValue},
		{"SetpointWhileLocal", RegSetpoint, []uint16{0, 500}, modbus.ExceptionCodeIllegalFunction},
		{"Firmware", RegFirmware, []uint16{1}, modbus.ExceptionCodeIllegalDataAddress},
		{"FullScale", RegFullScale, []uint16{0, 0}, modbus.ExceptionCodeIllegalDataAddress},
		{"Temperature", RegTemperature, []uint16{0}, modbus.ExceptionCodeIllegalDataAddress},
		{"MassFlow", RegMassFlow, []uint16{0, 0}, modbus.ExceptionCodeIllegalDataAddress},
		{"PastEnd", 65535, []uint16{0, 0}, modbus.ExceptionCodeIllegalDataAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUnit(Options{})
			before := u.Register(tt.address)

			resp, err := u.Process(writePDU(tt.address, tt.values...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, exceptionCode(t, resp))
			assert.Equal(t, before, u.Register(tt.address), "rejected write must not change the register")
		})
	}
}

func TestProcess_SetpointFollowsFlow(t *testing.T) {
	u := newUnit(Options{})

	resp, err := u.Process(writePDU(RegSetpointSource, SourceRemote))
	require.NoError(t, err)
	require.NoError(t, resp.Exception())

	// 500.000 SCCM on a 1000 SCCM unit.
	resp, err = u.Process(writePDU(RegSetpoint, 0x0007, 0xA120))
	require.NoError(t, err)
	require.NoError(t, resp.Exception())
	assert.Equal(t, []byte{0x08, 0x05, 0x00, 0x02}, resp.Data)

	assert.Equal(t, uint16(0x0007), u.Register(RegMassFlow))
	assert.Equal(t, uint16(0xA120), u.Register(RegMassFlow+1))
	assert.Equal(t, uint16(5000), u.Register(RegValveDrive))
}

func TestProcess_Tare(t *testing.T) {
	u := newUnit(Options{})
	require.NoError(t, u.SetRegisters(RegMassFlow, 0, 1234))

	resp, err := u.Process(writePDU(RegTare, TareCommand))
	require.NoError(t, err)
	require.NoError(t, resp.Exception())

	assert.Equal(t, uint16(0), u.Register(RegMassFlow+1))
	assert.Equal(t, uint16(0), u.Register(RegTare))
}

func TestProcess_RejectBaudWrites(t *testing.T) {
	u := newUnit(Options{RejectBaudWrites: true})

	resp, err := u.Process(writePDU(RegBaud, 1))
	require.NoError(t, err)
	assert.Equal(t, byte(modbus.ExceptionCodeServerDeviceFailure), exceptionCode(t, resp))
	assert.Equal(t, 38400, u.BaudRate())
}

func TestProcess_UnknownFunction(t *testing.T) {
	u := newUnit(Options{})

	resp, err := u.Process(modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeReadCoils, Data: []byte{0, 0, 0, 1}})
	require.NoError(t, err)
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalFunction), exceptionCode(t, resp))
}

func TestHandle_Addressing(t *testing.T) {
	u := newUnit(Options{})

	_, err := u.Handle(context.Background(), 2, readPDU(RegGas, 1))
	assert.ErrorIs(t, err, transport.ErrNoResponse)

	resp, err := u.Handle(context.Background(), 1, writePDU(RegModbusID, 2))
	require.NoError(t, err)
	require.NoError(t, resp.Exception())
	assert.Equal(t, byte(2), u.UnitID())

	_, err = u.Handle(context.Background(), 1, readPDU(RegGas, 1))
	assert.ErrorIs(t, err, transport.ErrNoResponse)
}

func TestOpen_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unit.img")

	u, err := Open("file", path, Options{})
	require.NoError(t, err)
	resp, err := u.Process(writePDU(RegGas, 6))
	require.NoError(t, err)
	require.NoError(t, resp.Exception())
	require.NoError(t, u.Close())

	u, err = Open("file", path, Options{})
	require.NoError(t, err)
	defer u.Close()
	assert.Equal(t, uint16(6), u.Register(RegGas))
}
