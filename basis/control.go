// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package basis

import (
	"context"
	"log/slog"
	"time"
)

// TareSettle is how long TareFlow blocks after the tare command.
const TareSettle = time.Second

// Setpoint returns the flow setpoint.
func (d *Device) Setpoint(ctx context.Context) (float64, error) {
	return d.readValue(ctx, Setpoint)
}

// SetSetpoint writes the flow setpoint. A unit whose setpoint source is local
// is switched to remote first; no other source change is made.
func (d *Device) SetSetpoint(ctx context.Context, v float64) error {
	regs, err := Setpoint.Encode(v)
	if err != nil {
		return err
	}

	// Only the local code forces a switch; any other code is left alone.
	code, err := d.readRaw(ctx, SetpointSourceSel)
	if err != nil {
		return err
	}
	if local, _ := SetpointSources.Code(SourceLocal); code == local {
		slog.Debug("switching setpoint source to remote", "port", d.port, "unit", d.UnitID())
		if err := d.SetSetpointSource(ctx, SourceRemote); err != nil {
			return err
		}
	}
	return d.write(ctx, Setpoint, regs)
}

// SetpointSource returns who drives the setpoint.
func (d *Device) SetpointSource(ctx context.Context) (SetpointSource, error) {
	code, err := d.readRaw(ctx, SetpointSourceSel)
	if err != nil {
		return "", err
	}
	return SetpointSources.Key(code)
}

// SetSetpointSource selects who drives the setpoint.
func (d *Device) SetSetpointSource(ctx context.Context, source SetpointSource) error {
	code, err := SetpointSources.Code(source)
	if err != nil {
		return &ValidationError{Field: SetpointSourceSel.Name, Value: source, Reason: "unknown source", Err: err}
	}
	return d.write(ctx, SetpointSourceSel, []uint16{code})
}

// Gas returns the name of the selected gas.
func (d *Device) Gas(ctx context.Context) (string, error) {
	code, err := d.readRaw(ctx, GasSelect)
	if err != nil {
		return "", err
	}
	return Gases.Key(code)
}

// SetGas selects a gas by its exact name in Gases.
func (d *Device) SetGas(ctx context.Context, name string) error {
	code, err := Gases.Code(name)
	if err != nil {
		return &ValidationError{Field: GasSelect.Name, Value: name, Reason: "unknown gas", Err: err}
	}
	return d.write(ctx, GasSelect, []uint16{code})
}

// PGain returns the proportional gain of the control loop.
func (d *Device) PGain(ctx context.Context) (uint16, error) {
	return d.readRaw(ctx, PGain)
}

// SetPGain sets the proportional gain of the control loop.
func (d *Device) SetPGain(ctx context.Context, gain uint16) error {
	return d.write(ctx, PGain, []uint16{gain})
}

// IGain returns the integral gain of the control loop.
func (d *Device) IGain(ctx context.Context) (uint16, error) {
	return d.readRaw(ctx, IGain)
}

// SetIGain sets the integral gain of the control loop.
func (d *Device) SetIGain(ctx context.Context, gain uint16) error {
	return d.write(ctx, IGain, []uint16{gain})
}

// SetpointWatchdog returns the setpoint watchdog time in milliseconds.
func (d *Device) SetpointWatchdog(ctx context.Context) (uint16, error) {
	return d.readRaw(ctx, SetpointWatchdog)
}

func (d *Device) SetSetpointWatchdog(ctx context.Context, ms uint16) error {
	return d.write(ctx, SetpointWatchdog, []uint16{ms})
}

// Exhaust reports whether the exhaust mode is on.
func (d *Device) Exhaust(ctx context.Context) (bool, error) {
	v, err := d.readRaw(ctx, Exhaust)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (d *Device) SetExhaust(ctx context.Context, on bool) error {
	var v uint16
	if on {
		v = 1
	}
	return d.write(ctx, Exhaust, []uint16{v})
}

// ExhaustValveDrive returns the valve drive used in exhaust mode, in percent.
func (d *Device) ExhaustValveDrive(ctx context.Context) (float64, error) {
	return d.readValue(ctx, ExhaustValveDrive)
}

func (d *Device) SetExhaustValveDrive(ctx context.Context, percent float64) error {
	return d.writeValue(ctx, ExhaustValveDrive, percent)
}

// TareFlow zeroes the flow reading. The command is not read back. TareFlow
// then blocks for TareSettle; ctx does not shorten the wait.
func (d *Device) TareFlow(ctx context.Context) error {
	if err := d.writeValue(ctx, TareTrigger, TareCommand); err != nil {
		return err
	}
	time.Sleep(TareSettle)
	return nil
}
