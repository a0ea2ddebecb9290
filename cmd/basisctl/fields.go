// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ffutop/basis-driver/basis"
)

type accessor struct {
	help string
	get  func(ctx context.Context, d *basis.Device) (any, error)
	set  func(ctx context.Context, d *basis.Device, arg string) error
}

var accessors = map[string]accessor{
	"temperature": {
		help: "gas temperature, °C",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.Temperature(ctx) },
	},
	"mass-flow": {
		help: "measured mass flow",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.MassFlow(ctx) },
	},
	"valve-drive": {
		help: "control valve drive, percent",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.ValveDrive(ctx) },
	},
	"setpoint": {
		help: "flow setpoint; setting it selects the remote source",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.Setpoint(ctx) },
		set:  withFloat((*basis.Device).SetSetpoint),
	},
	"setpoint-source": {
		help: "local or remote",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.SetpointSource(ctx) },
		set: func(ctx context.Context, d *basis.Device, arg string) error {
			return d.SetSetpointSource(ctx, basis.SetpointSource(strings.ToLower(arg)))
		},
	},
	"gas": {
		help: "selected gas (" + strings.Join(basis.Gases.Keys(), ", ") + ")",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.Gas(ctx) },
		set:  func(ctx context.Context, d *basis.Device, arg string) error { return d.SetGas(ctx, arg) },
	},
	"p-gain": {
		help: "proportional gain",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.PGain(ctx) },
		set:  withUint16((*basis.Device).SetPGain),
	},
	"i-gain": {
		help: "integral gain",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.IGain(ctx) },
		set:  withUint16((*basis.Device).SetIGain),
	},
	"watchdog": {
		help: "setpoint watchdog, ms",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.SetpointWatchdog(ctx) },
		set:  withUint16((*basis.Device).SetSetpointWatchdog),
	},
	"exhaust": {
		help: "exhaust mode, on or off",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.Exhaust(ctx) },
		set: func(ctx context.Context, d *basis.Device, arg string) error {
			on, err := parseSwitch(arg)
			if err != nil {
				return err
			}
			return d.SetExhaust(ctx, on)
		},
	},
	"exhaust-valve": {
		help: "valve drive in exhaust mode, percent",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.ExhaustValveDrive(ctx) },
		set:  withFloat((*basis.Device).SetExhaustValveDrive),
	},
	"stp-temperature": {
		help: "standard temperature, °C",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.STPTemperature(ctx) },
		set:  withFloat((*basis.Device).SetSTPTemperature),
	},
	"averaging": {
		help: "flow averaging time, 2.5s × 2^k for k 0-9",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.AveragingTime(ctx) },
		set: func(ctx context.Context, d *basis.Device, arg string) error {
			t, err := time.ParseDuration(arg)
			if err != nil {
				return err
			}
			return d.SetAveragingTime(ctx, t)
		},
	},
	"modbus-id": {
		help: "unit address, 1-247",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.ModbusID(ctx) },
		set: func(ctx context.Context, d *basis.Device, arg string) error {
			id, err := strconv.Atoi(arg)
			if err != nil {
				return err
			}
			return d.SetModbusID(ctx, id)
		},
	},
	"ascii-id": {
		help: "ASCII protocol unit ID, B-Y",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.ASCIIID(ctx) },
		set:  func(ctx context.Context, d *basis.Device, arg string) error { return d.SetASCIIID(ctx, arg) },
	},
	"baud": {
		help: "line speed of unit and host",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.DeviceBaudRate(ctx) },
		set: func(ctx context.Context, d *basis.Device, arg string) error {
			baud, err := strconv.Atoi(arg)
			if err != nil {
				return err
			}
			return d.SetBaudRate(ctx, baud)
		},
	},
	"firmware": {
		help: "firmware version",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.FirmwareVersion(ctx) },
	},
	"serial-number": {
		help: "serial number",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.SerialNumber(ctx) },
	},
	"full-scale": {
		help: "full scale flow",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.FullScale(ctx) },
	},
	"units": {
		help: "engineering units of flow",
		get:  func(ctx context.Context, d *basis.Device) (any, error) { return d.Units(ctx) },
	},
}

func fieldNames() []string {
	names := make([]string, 0, len(accessors))
	for name := range accessors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupAccessor(name string) (accessor, error) {
	acc, ok := accessors[strings.ToLower(name)]
	if !ok {
		return accessor{}, fmt.Errorf("unknown field %q", name)
	}
	return acc, nil
}

func withFloat(set func(*basis.Device, context.Context, float64) error) func(context.Context, *basis.Device, string) error {
	return func(ctx context.Context, d *basis.Device, arg string) error {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return err
		}
		return set(d, ctx, v)
	}
}

func withUint16(set func(*basis.Device, context.Context, uint16) error) func(context.Context, *basis.Device, string) error {
	return func(ctx context.Context, d *basis.Device, arg string) error {
		v, err := strconv.ParseUint(arg, 10, 16)
		if err != nil {
			return err
		}
		return set(d, ctx, uint16(v))
	}
}

func parseSwitch(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return strconv.ParseBool(arg)
}

// registerRow describes one field of the register map for "fields".
type registerRow struct {
	Name     string `json:"name" yaml:"name"`
	Address  uint16 `json:"address" yaml:"address"`
	Width    uint16 `json:"width" yaml:"width"`
	Encoding string `json:"encoding" yaml:"encoding"`
	Scale    int64  `json:"scale,omitempty" yaml:"scale,omitempty"`
	ReadOnly bool   `json:"read_only" yaml:"read_only"`
}

func fieldTable() []registerRow {
	fields := basis.Fields()
	rows := make([]registerRow, len(fields))
	for i, f := range fields {
		rows[i] = registerRow{
			Name:     f.Name,
			Address:  f.Address,
			Width:    f.Width,
			Encoding: f.Encoding.String(),
			Scale:    f.Scale,
			ReadOnly: f.ReadOnly,
		}
	}
	return rows
}
