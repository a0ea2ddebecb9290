// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package basis

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"strings"
	"time"
)

// AveragingBase is the averaging time of exponent 0.
const AveragingBase = 2500 * time.Millisecond

// BaudRate returns the host line speed. It performs no I/O.
func (d *Device) BaudRate() int {
	return d.transport.BaudRate()
}

// DeviceBaudRate reads the line speed stored in the unit.
func (d *Device) DeviceBaudRate(ctx context.Context) (int, error) {
	code, err := d.readRaw(ctx, BaudSelect)
	if err != nil {
		return 0, err
	}
	return BaudRates.Key(code)
}

// SetBaudRate changes the line speed of unit and host. The unit is asked to
// switch first; if that write fails the error is logged as configuration
// drift and dropped. The host side is switched in every case.
func (d *Device) SetBaudRate(ctx context.Context, baud int) error {
	code, err := BaudRates.Code(baud)
	if err != nil {
		return &ValidationError{Field: BaudSelect.Name, Value: baud, Reason: "unsupported baud rate", Err: err}
	}

	if err := d.write(ctx, BaudSelect, []uint16{code}); err != nil {
		slog.Warn("baud rate write failed, host and unit may disagree on line speed",
			"port", d.port, "unit", d.UnitID(), "baud", baud, "err", err)
	}
	d.transport.SetBaudRate(baud)
	return nil
}

// STPTemperature returns the standard temperature used for mass flow, in °C.
func (d *Device) STPTemperature(ctx context.Context) (float64, error) {
	return d.readValue(ctx, STPTemperature)
}

func (d *Device) SetSTPTemperature(ctx context.Context, celsius float64) error {
	return d.writeValue(ctx, STPTemperature, celsius)
}

// AveragingTime returns the flow averaging time constant.
func (d *Device) AveragingTime(ctx context.Context) (time.Duration, error) {
	k, err := d.readRaw(ctx, AveragingExponent)
	if err != nil {
		return 0, err
	}
	if k > 30 {
		return 0, fmt.Errorf("basis: averaging exponent %d out of range", k)
	}
	return AveragingBase << k, nil
}

// SetAveragingTime selects the largest averaging time 2.5 s × 2^k not above
// t, for k from 0 to 9.
func (d *Device) SetAveragingTime(ctx context.Context, t time.Duration) error {
	if t < AveragingBase {
		return &ValidationError{Field: AveragingExponent.Name, Value: t, Reason: "averaging time too short"}
	}
	k := bits.Len64(uint64(t/AveragingBase)) - 1
	if k > 9 {
		return &ValidationError{Field: AveragingExponent.Name, Value: t, Reason: "averaging time too long"}
	}
	return d.write(ctx, AveragingExponent, []uint16{uint16(k)})
}

// ModbusID returns the unit address stored in the unit.
func (d *Device) ModbusID(ctx context.Context) (byte, error) {
	v, err := d.readRaw(ctx, ModbusID)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// SetModbusID changes the unit address. After a successful write the
// transport addresses the unit at id.
func (d *Device) SetModbusID(ctx context.Context, id int) error {
	if err := d.writeValue(ctx, ModbusID, float64(id)); err != nil {
		return err
	}
	d.transport.SetUnitID(byte(id))
	return nil
}

// ASCIIID returns the single letter unit ID used by the ASCII protocol.
func (d *Device) ASCIIID(ctx context.Context) (string, error) {
	v, err := d.readRaw(ctx, ASCIIID)
	if err != nil {
		return "", err
	}
	return string(rune(v)), nil
}

// SetASCIIID sets the ASCII unit ID. The input is trimmed and upper-cased and
// must be one letter strictly between 'A' and 'Z'.
func (d *Device) SetASCIIID(ctx context.Context, id string) error {
	norm := strings.ToUpper(strings.TrimSpace(id))
	if len(norm) != 1 {
		return &ValidationError{Field: ASCIIID.Name, Value: id, Reason: "must be a single character"}
	}
	c := norm[0]
	if c <= 'A' || c >= 'Z' {
		return &ValidationError{Field: ASCIIID.Name, Value: id, Reason: "must be a letter between A and Z exclusive"}
	}
	return d.writeValue(ctx, ASCIIID, float64(c))
}

// FirmwareVersion returns the firmware version as "major.mid.minor".
func (d *Device) FirmwareVersion(ctx context.Context) (string, error) {
	v, err := d.readRaw(ctx, FirmwareVersion)
	if err != nil {
		return "", err
	}
	return DecodeVersion(v), nil
}

// SerialNumber returns the serial number with all spaces removed.
func (d *Device) SerialNumber(ctx context.Context) (string, error) {
	regs, err := d.read(ctx, SerialNumber)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(DecodeASCII(regs), " ", ""), nil
}

// FullScale returns the full scale flow in the unit's engineering units.
func (d *Device) FullScale(ctx context.Context) (float64, error) {
	return d.readValue(ctx, FullScale)
}

// Units returns the engineering units of flow values.
func (d *Device) Units(ctx context.Context) (string, error) {
	code, err := d.readRaw(ctx, UnitsSelect)
	if err != nil {
		return "", err
	}
	return Units.Key(code)
}

// Info describes a unit.
type Info struct {
	Port            string  `json:"port" yaml:"port"`
	ModbusID        byte    `json:"modbus_id" yaml:"modbus_id"`
	ASCIIID         string  `json:"ascii_id" yaml:"ascii_id"`
	FirmwareVersion string  `json:"firmware_version" yaml:"firmware_version"`
	SerialNumber    string  `json:"serial_number" yaml:"serial_number"`
	FullScale       float64 `json:"full_scale" yaml:"full_scale"`
	Units           string  `json:"units" yaml:"units"`
	BaudRate        int     `json:"baud_rate" yaml:"baud_rate"`
}

// Info reads the identity and range of the unit.
func (d *Device) Info(ctx context.Context) (Info, error) {
	info := Info{Port: d.port, BaudRate: d.BaudRate()}
	var err error
	if info.ModbusID, err = d.ModbusID(ctx); err != nil {
		return Info{}, err
	}
	if info.ASCIIID, err = d.ASCIIID(ctx); err != nil {
		return Info{}, err
	}
	if info.FirmwareVersion, err = d.FirmwareVersion(ctx); err != nil {
		return Info{}, err
	}
	if info.SerialNumber, err = d.SerialNumber(ctx); err != nil {
		return Info{}, err
	}
	if info.FullScale, err = d.FullScale(ctx); err != nil {
		return Info{}, err
	}
	if info.Units, err = d.Units(ctx); err != nil {
		return Info{}, err
	}
	return info, nil
}
