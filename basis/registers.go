// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package basis

import "math"

// Encoding is the representation of a field in its registers.
type Encoding int

const (
	RawInt          Encoding = iota // one register, unsigned
	ScaledInt                       // one register, value × Scale
	LongFixedPoint                  // two registers, signed 32 bit, value × Scale, high word first
	FloatFixedPoint                 // two registers, IEEE binary32 of value × Scale, high word first
	ASCIIBlock                      // two characters per register, high byte first
	PackedChar                      // one character code
	Enum                            // one register holding a table code
	Boolean                         // 1 or 0
	PackedVersion                   // major byte, mid and minor nibbles
	Sentinel                        // write-only command value
)

var encodingNames = [...]string{
	RawInt:          "raw",
	ScaledInt:       "scaled",
	LongFixedPoint:  "long",
	FloatFixedPoint: "float",
	ASCIIBlock:      "ascii",
	PackedChar:      "char",
	Enum:            "enum",
	Boolean:         "bool",
	PackedVersion:   "version",
	Sentinel:        "sentinel",
}

func (e Encoding) String() string {
	if e < 0 || int(e) >= len(encodingNames) {
		return "unknown"
	}
	return encodingNames[e]
}

// Field describes where and how one logical quantity is stored.
type Field struct {
	Name     string
	Address  uint16
	Width    uint16
	Encoding Encoding
	// Scale is the fixed-point factor between engineering value and raw value.
	Scale int64
	// Min and Max bound the engineering value accepted on encode.
	Min, Max float64
	ReadOnly bool
}

// TareCommand is the value written to the tare register.
const TareCommand = 43605

const (
	maxRaw  = math.MaxUint16
	maxLong = math.MaxInt32
)

// Register map of a Basis unit.
var (
	BaudSelect        = Field{Name: "baud", Address: 21, Width: 1, Encoding: Enum}
	FirmwareVersion   = Field{Name: "firmware version", Address: 25, Width: 1, Encoding: PackedVersion, ReadOnly: true}
	SerialNumber      = Field{Name: "serial number", Address: 26, Width: 5, Encoding: ASCIIBlock, ReadOnly: true}
	TareTrigger       = Field{Name: "tare", Address: 39, Width: 1, Encoding: Sentinel, Min: TareCommand, Max: TareCommand}
	AveragingExponent = Field{Name: "averaging exponent", Address: 40, Width: 1, Encoding: RawInt, Max: 9}
	ModbusID          = Field{Name: "modbus ID", Address: 45, Width: 1, Encoding: RawInt, Min: 1, Max: 247}
	ASCIIID           = Field{Name: "ascii ID", Address: 46, Width: 1, Encoding: PackedChar, Min: 'A' + 1, Max: 'Z' - 1}
	FullScale         = Field{Name: "full scale", Address: 47, Width: 2, Encoding: FloatFixedPoint, Scale: 1000, ReadOnly: true}
	UnitsSelect       = Field{Name: "units", Address: 49, Width: 1, Encoding: Enum, ReadOnly: true}
	STPTemperature    = Field{Name: "STP temperature", Address: 52, Width: 1, Encoding: ScaledInt, Scale: 100, Max: maxRaw / 100.0}
	Exhaust           = Field{Name: "exhaust", Address: 512, Width: 1, Encoding: Boolean, Max: 1}
	ExhaustValveDrive = Field{Name: "exhaust valve drive", Address: 513, Width: 1, Encoding: ScaledInt, Scale: 100, Max: maxRaw / 100.0}
	SetpointWatchdog  = Field{Name: "setpoint watchdog", Address: 514, Width: 1, Encoding: RawInt, Max: maxRaw}
	SetpointSourceSel = Field{Name: "setpoint source", Address: 516, Width: 1, Encoding: Enum}
	PGain             = Field{Name: "p-gain", Address: 519, Width: 1, Encoding: RawInt, Max: maxRaw}
	IGain             = Field{Name: "i-gain", Address: 520, Width: 1, Encoding: RawInt, Max: maxRaw}
	GasSelect         = Field{Name: "gas", Address: 2048, Width: 1, Encoding: Enum}
	Temperature       = Field{Name: "temperature", Address: 2049, Width: 1, Encoding: ScaledInt, Scale: 100, ReadOnly: true}
	MassFlow          = Field{Name: "mass flow", Address: 2050, Width: 2, Encoding: LongFixedPoint, Scale: 1000, ReadOnly: true}
	ValveDrive        = Field{Name: "valve drive", Address: 2052, Width: 1, Encoding: ScaledInt, Scale: 100, ReadOnly: true}
	Setpoint          = Field{Name: "setpoint", Address: 2053, Width: 2, Encoding: LongFixedPoint, Scale: 1000, Max: maxLong / 1000.0}
)

// Fields returns every field of the register map in address order.
func Fields() []Field {
	return []Field{
		BaudSelect, FirmwareVersion, SerialNumber, TareTrigger, AveragingExponent,
		ModbusID, ASCIIID, FullScale, UnitsSelect, STPTemperature,
		Exhaust, ExhaustValveDrive, SetpointWatchdog, SetpointSourceSel, PGain, IGain,
		GasSelect, Temperature, MassFlow, ValveDrive, Setpoint,
	}
}
