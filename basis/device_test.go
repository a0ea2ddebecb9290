// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package basis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ffutop/basis-driver/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registerWrite struct {
	Address uint16
	Values  []uint16
}

// fakeTransport is a register image with programmable failures.
type fakeTransport struct {
	regs   map[uint16]uint16
	writes []registerWrite
	reads  []uint16

	unit byte
	baud int

	readErr  error
	writeErr map[uint16]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		regs:     make(map[uint16]uint16),
		writeErr: make(map[uint16]error),
		unit:     1,
		baud:     38400,
	}
}

func (f *fakeTransport) ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	f.reads = append(f.reads, address)
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]uint16, quantity)
	for i := range out {
		out[i] = f.regs[address+uint16(i)]
	}
	return out, nil
}

func (f *fakeTransport) WriteMultipleRegisters(ctx context.Context, address uint16, values []uint16) error {
	if err := f.writeErr[address]; err != nil {
		return err
	}
	f.writes = append(f.writes, registerWrite{address, append([]uint16(nil), values...)})
	for i, v := range values {
		f.regs[address+uint16(i)] = v
	}
	return nil
}

func (f *fakeTransport) UnitID() byte         { return f.unit }
func (f *fakeTransport) SetUnitID(id byte)    { f.unit = id }
func (f *fakeTransport) BaudRate() int        { return f.baud }
func (f *fakeTransport) SetBaudRate(baud int) { f.baud = baud }

func newTestDevice() (*Device, *fakeTransport) {
	ft := newFakeTransport()
	return NewDevice("/dev/ttyUSB0", ft), ft
}

func requireValidationError(t *testing.T, err error) *ValidationError {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
	return verr
}

func TestDevice_Identity(t *testing.T) {
	d, ft := newTestDevice()
	assert.Equal(t, "/dev/ttyUSB0", d.Port())
	assert.Equal(t, byte(1), d.UnitID())
	assert.Equal(t, 38400, d.BaudRate())
	assert.Same(t, ft, d.Transport())
	assert.Empty(t, ft.reads)
}

func TestDevice_Measurements(t *testing.T) {
	d, ft := newTestDevice()
	ft.regs[2049] = 2250
	ft.regs[2050], ft.regs[2051] = 0x0001, 0x86A0
	ft.regs[2052] = 4250

	temp, err := d.Temperature(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 22.5, temp)

	flow, err := d.MassFlow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, flow)

	drive, err := d.ValveDrive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.5, drive)
}

func TestDevice_SetBaudRate(t *testing.T) {
	for _, fail := range []bool{false, true} {
		for _, baud := range BaudRates.Keys() {
			t.Run(fmt.Sprintf("%d/fail=%v", baud, fail), func(t *testing.T) {
				d, ft := newTestDevice()
				if fail {
					ft.writeErr[21] = modbus.ErrRequestTimedOut
				}

				require.NoError(t, d.SetBaudRate(context.Background(), baud))
				assert.Equal(t, baud, ft.baud)
				assert.Equal(t, baud, d.BaudRate())

				if fail {
					assert.Empty(t, ft.writes)
				} else {
					code, _ := BaudRates.Code(baud)
					assert.Equal(t, []registerWrite{{21, []uint16{code}}}, ft.writes)
				}
			})
		}
	}
}

func TestDevice_SetBaudRate_Unknown(t *testing.T) {
	d, ft := newTestDevice()

	err := d.SetBaudRate(context.Background(), 14400)
	verr := requireValidationError(t, err)
	assert.ErrorIs(t, verr, ErrNotFound)
	assert.Empty(t, ft.writes)
	assert.Equal(t, 38400, ft.baud)
}

func TestDevice_DeviceBaudRate(t *testing.T) {
	d, ft := newTestDevice()
	ft.regs[21] = 5

	baud, err := d.DeviceBaudRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 115200, baud)

	ft.regs[21] = 9
	_, err = d.DeviceBaudRate(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDevice_Gas(t *testing.T) {
	for _, name := range Gases.Keys() {
		t.Run(name, func(t *testing.T) {
			d, _ := newTestDevice()
			require.NoError(t, d.SetGas(context.Background(), name))
			got, err := d.Gas(context.Background())
			require.NoError(t, err)
			assert.Equal(t, name, got)
		})
	}
}

func TestDevice_SetGas_Unknown(t *testing.T) {
	for _, name := range []string{"Xe", "air", ""} {
		d, ft := newTestDevice()
		err := d.SetGas(context.Background(), name)
		requireValidationError(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, ft.writes, "no write for %q", name)
	}
}

func TestDevice_Gas_UnknownCode(t *testing.T) {
	d, ft := newTestDevice()
	ft.regs[2048] = 12

	_, err := d.Gas(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDevice_SetSetpoint_FromLocal(t *testing.T) {
	d, ft := newTestDevice()
	ft.regs[516] = 0

	require.NoError(t, d.SetSetpoint(context.Background(), 250.5))

	source, err := d.SetpointSource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, source)
	assert.Equal(t, []registerWrite{
		{516, []uint16{2}},
		{2053, []uint16{0x0003, 0xD284}},
	}, ft.writes)

	sp, err := d.Setpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250.5, sp)
}

func TestDevice_SetSetpoint_AlreadyRemote(t *testing.T) {
	d, ft := newTestDevice()
	ft.regs[516] = 2

	require.NoError(t, d.SetSetpoint(context.Background(), 1))
	assert.Equal(t, []registerWrite{{2053, []uint16{0, 1000}}}, ft.writes)
}

func TestDevice_SetSetpoint_OtherSource(t *testing.T) {
	d, ft := newTestDevice()
	ft.regs[516] = 1

	require.NoError(t, d.SetSetpoint(context.Background(), 10))
	assert.Equal(t, []registerWrite{{2053, []uint16{0, 10000}}}, ft.writes)
	assert.Equal(t, uint16(1), ft.regs[516])
}

func TestDevice_FullScale_Erased(t *testing.T) {
	d, ft := newTestDevice()
	ft.regs[47], ft.regs[48] = 0xFFFF, 0xFFFF

	_, err := d.FullScale(context.Background())
	assert.Error(t, err)
	_, err = d.Info(context.Background())
	assert.Error(t, err)
}

func TestDevice_SetSetpoint_Invalid(t *testing.T) {
	d, ft := newTestDevice()

	requireValidationError(t, d.SetSetpoint(context.Background(), -0.5))
	assert.Empty(t, ft.reads)
	assert.Empty(t, ft.writes)
}

func TestDevice_SetSetpoint_SourceReadFails(t *testing.T) {
	d, ft := newTestDevice()
	ft.readErr = modbus.ErrRequestTimedOut

	err := d.SetSetpoint(context.Background(), 10)
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, uint16(516), terr.Address)
	assert.Empty(t, ft.writes)
}

func TestDevice_SetpointSource(t *testing.T) {
	d, ft := newTestDevice()

	require.NoError(t, d.SetSetpointSource(context.Background(), SourceRemote))
	assert.Equal(t, uint16(2), ft.regs[516])

	requireValidationError(t, d.SetSetpointSource(context.Background(), "analog"))

	ft.regs[516] = 1
	_, err := d.SetpointSource(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDevice_AveragingTime(t *testing.T) {
	for k := 0; k <= 9; k++ {
		d, ft := newTestDevice()
		want := AveragingBase << k

		require.NoError(t, d.SetAveragingTime(context.Background(), want))
		assert.Equal(t, uint16(k), ft.regs[40])

		got, err := d.AveragingTime(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDevice_SetAveragingTime_Floor(t *testing.T) {
	d, ft := newTestDevice()

	require.NoError(t, d.SetAveragingTime(context.Background(), 6*time.Second))
	assert.Equal(t, uint16(1), ft.regs[40])

	require.NoError(t, d.SetAveragingTime(context.Background(), 2559*time.Second))
	assert.Equal(t, uint16(9), ft.regs[40])
}

func TestDevice_SetAveragingTime_Invalid(t *testing.T) {
	d, ft := newTestDevice()

	verr := requireValidationError(t, d.SetAveragingTime(context.Background(), AveragingBase<<10))
	assert.Equal(t, "averaging time too long", verr.Reason)
	requireValidationError(t, d.SetAveragingTime(context.Background(), 2*time.Second))
	requireValidationError(t, d.SetAveragingTime(context.Background(), 0))
	assert.Empty(t, ft.writes)
}

func TestDevice_SetModbusID(t *testing.T) {
	d, ft := newTestDevice()

	requireValidationError(t, d.SetModbusID(context.Background(), 248))
	requireValidationError(t, d.SetModbusID(context.Background(), 0))
	assert.Empty(t, ft.writes)
	assert.Equal(t, byte(1), ft.unit)

	for _, id := range []int{1, 247} {
		require.NoError(t, d.SetModbusID(context.Background(), id))
		assert.Equal(t, byte(id), ft.unit)
		assert.Equal(t, byte(id), d.UnitID())

		got, err := d.ModbusID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, byte(id), got)
	}
}

func TestDevice_SetModbusID_WriteFails(t *testing.T) {
	d, ft := newTestDevice()
	ft.writeErr[45] = &modbus.Error{FunctionCode: 0x10, ExceptionCode: modbus.ExceptionCodeIllegalDataValue}

	err := d.SetModbusID(context.Background(), 12)
	var mbErr *modbus.Error
	require.True(t, errors.As(err, &mbErr))
	assert.Equal(t, byte(1), ft.unit, "address must not change when the unit rejected it")
}

func TestDevice_ASCIIID(t *testing.T) {
	d, ft := newTestDevice()

	require.NoError(t, d.SetASCIIID(context.Background(), "b"))
	assert.Equal(t, uint16('B'), ft.regs[46])
	got, err := d.ASCIIID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "B", got)

	require.NoError(t, d.SetASCIIID(context.Background(), " y "))
	assert.Equal(t, uint16('Y'), ft.regs[46])

	ft.writes = nil
	for _, id := range []string{"BB", "@", "A", "Z", "a", "z", "", "1"} {
		requireValidationError(t, d.SetASCIIID(context.Background(), id))
	}
	assert.Empty(t, ft.writes)
}

func TestDevice_Identification(t *testing.T) {
	d, ft := newTestDevice()
	ft.regs[25] = 0x0A25
	for i, r := range EncodeASCII("BA 21034", 5) {
		ft.regs[26+uint16(i)] = r
	}
	fs := EncodeFloat(1000000)
	ft.regs[47], ft.regs[48] = fs[0], fs[1]
	ft.regs[49] = 1
	ft.regs[45] = 1
	ft.regs[46] = 'C'

	fw, err := d.FirmwareVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.2.5", fw)

	sn, err := d.SerialNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BA21034", sn)

	full, err := d.FullScale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, full)

	units, err := d.Units(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SLPM", units)

	info, err := d.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Info{
		Port:            "/dev/ttyUSB0",
		ModbusID:        1,
		ASCIIID:         "C",
		FirmwareVersion: "10.2.5",
		SerialNumber:    "BA21034",
		FullScale:       1000,
		Units:           "SLPM",
		BaudRate:        38400,
	}, info)
}

func TestDevice_Tuning(t *testing.T) {
	d, ft := newTestDevice()
	ctx := context.Background()

	require.NoError(t, d.SetPGain(ctx, 150))
	require.NoError(t, d.SetIGain(ctx, 65535))
	require.NoError(t, d.SetSetpointWatchdog(ctx, 5000))
	require.NoError(t, d.SetSTPTemperature(ctx, 21.115))
	require.NoError(t, d.SetExhaust(ctx, true))
	require.NoError(t, d.SetExhaustValveDrive(ctx, 37.5))

	assert.Equal(t, uint16(150), ft.regs[519])
	assert.Equal(t, uint16(65535), ft.regs[520])
	assert.Equal(t, uint16(5000), ft.regs[514])
	assert.Equal(t, uint16(2112), ft.regs[52])
	assert.Equal(t, uint16(1), ft.regs[512])
	assert.Equal(t, uint16(3750), ft.regs[513])

	p, err := d.PGain(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(150), p)
	i, err := d.IGain(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(65535), i)
	wd, err := d.SetpointWatchdog(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(5000), wd)
	stp, err := d.STPTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, 21.12, stp)
	on, err := d.Exhaust(ctx)
	require.NoError(t, err)
	assert.True(t, on)
	ev, err := d.ExhaustValveDrive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 37.5, ev)

	require.NoError(t, d.SetExhaust(ctx, false))
	assert.Equal(t, uint16(0), ft.regs[512])

	requireValidationError(t, d.SetSTPTemperature(ctx, -1))
	requireValidationError(t, d.SetExhaustValveDrive(ctx, 700))
}

func TestDevice_TareFlow(t *testing.T) {
	d, ft := newTestDevice()

	start := time.Now()
	require.NoError(t, d.TareFlow(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, []registerWrite{{39, []uint16{43605}}}, ft.writes)
	assert.Empty(t, ft.reads)
}

func TestDevice_TareFlow_IgnoresCancel(t *testing.T) {
	d, _ := newTestDevice()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, d.TareFlow(ctx))
	assert.GreaterOrEqual(t, time.Since(start), TareSettle)
}

func TestDevice_Dataframe(t *testing.T) {
	d, ft := newTestDevice()
	ft.regs[45] = 1
	ft.regs[2049] = 2250
	ft.regs[2050], ft.regs[2051] = 0, 12345
	ft.regs[2048] = 4

	df, err := d.Dataframe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Dataframe{UnitID: 1, Temperature: 22.5, MassFlow: 12.345, Gas: "O2"}, df)
	assert.Equal(t, []uint16{45, 2049, 2050, 2048}, ft.reads)
}

func TestDevice_Timeout(t *testing.T) {
	ctx := context.Background()
	gets := map[string]func(d *Device) error{
		"Temperature":     func(d *Device) error { _, err := d.Temperature(ctx); return err },
		"MassFlow":        func(d *Device) error { _, err := d.MassFlow(ctx); return err },
		"Gas":             func(d *Device) error { _, err := d.Gas(ctx); return err },
		"Setpoint":        func(d *Device) error { _, err := d.Setpoint(ctx); return err },
		"SerialNumber":    func(d *Device) error { _, err := d.SerialNumber(ctx); return err },
		"FirmwareVersion": func(d *Device) error { _, err := d.FirmwareVersion(ctx); return err },
		"AveragingTime":   func(d *Device) error { _, err := d.AveragingTime(ctx); return err },
		"Dataframe":       func(d *Device) error { _, err := d.Dataframe(ctx); return err },
		"SetGas":          func(d *Device) error { return d.SetGas(ctx, "N2") },
		"SetModbusID":     func(d *Device) error { return d.SetModbusID(ctx, 3) },
		"SetExhaust":      func(d *Device) error { return d.SetExhaust(ctx, true) },
		"TareFlow":        func(d *Device) error { return d.TareFlow(ctx) },
	}
	for name, op := range gets {
		t.Run(name, func(t *testing.T) {
			d, ft := newTestDevice()
			ft.readErr = modbus.ErrRequestTimedOut
			for _, addr := range []uint16{39, 45, 512, 2048} {
				ft.writeErr[addr] = modbus.ErrRequestTimedOut
			}

			err := op(d)
			var terr *TransportError
			require.True(t, errors.As(err, &terr), "expected *TransportError, got %v", err)
			assert.True(t, terr.Timeout())
			assert.ErrorIs(t, err, modbus.ErrRequestTimedOut)
		})
	}
}

func TestDevice_ShortRead(t *testing.T) {
	d := NewDevice("sim", shortTransport{newFakeTransport()})

	_, err := d.MassFlow(context.Background())
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.False(t, terr.Timeout())
}

type shortTransport struct {
	*fakeTransport
}

func (s shortTransport) ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	return []uint16{0}, nil
}
