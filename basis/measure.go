// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package basis

import "context"

// Temperature returns the gas temperature in °C.
func (d *Device) Temperature(ctx context.Context) (float64, error) {
	return d.readValue(ctx, Temperature)
}

// MassFlow returns the measured mass flow in the unit's engineering units.
func (d *Device) MassFlow(ctx context.Context) (float64, error) {
	return d.readValue(ctx, MassFlow)
}

// ValveDrive returns the control valve drive in percent.
func (d *Device) ValveDrive(ctx context.Context) (float64, error) {
	return d.readValue(ctx, ValveDrive)
}

// Dataframe is a snapshot of the main readings.
type Dataframe struct {
	UnitID      byte    `json:"unit_id" yaml:"unit_id"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MassFlow    float64 `json:"mass_flow" yaml:"mass_flow"`
	Gas         string  `json:"gas" yaml:"gas"`
}

// Dataframe reads unit ID, temperature, mass flow and gas. The four reads are
// separate transactions, so the values may come from slightly different
// instants.
func (d *Device) Dataframe(ctx context.Context) (Dataframe, error) {
	var (
		df  Dataframe
		err error
	)
	if df.UnitID, err = d.ModbusID(ctx); err != nil {
		return Dataframe{}, err
	}
	if df.Temperature, err = d.Temperature(ctx); err != nil {
		return Dataframe{}, err
	}
	if df.MassFlow, err = d.MassFlow(ctx); err != nil {
		return Dataframe{}, err
	}
	if df.Gas, err = d.Gas(ctx); err != nil {
		return Dataframe{}, err
	}
	return df, nil
}
