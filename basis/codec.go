// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package basis

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Encode converts an engineering value into the registers of a numeric field.
// Fixed-point values are rounded half away from zero after scaling.
func (f Field) Encode(v float64) ([]uint16, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, &ValidationError{Field: f.Name, Value: v, Reason: "not a finite number"}
	}
	if v < f.Min || v > f.Max {
		return nil, &ValidationError{Field: f.Name, Value: v, Reason: fmt.Sprintf("outside %v to %v", f.Min, f.Max)}
	}

	switch f.Encoding {
	case RawInt, PackedChar, Boolean, Enum, Sentinel:
		if v != math.Trunc(v) {
			return nil, &ValidationError{Field: f.Name, Value: v, Reason: "not an integer"}
		}
		return []uint16{uint16(v)}, nil
	case ScaledInt:
		return []uint16{uint16(scale(v, f.Scale))}, nil
	case LongFixedPoint:
		return EncodeLong(int32(scale(v, f.Scale))), nil
	default:
		return nil, fmt.Errorf("basis: %s field %s cannot be encoded from a number", f.Encoding, f.Name)
	}
}

// Decode converts the registers of a numeric field into its engineering value.
func (f Field) Decode(regs []uint16) (float64, error) {
	if len(regs) != int(f.Width) {
		return 0, fmt.Errorf("basis: %s needs %d registers, got %d", f.Name, f.Width, len(regs))
	}

	switch f.Encoding {
	case RawInt, PackedChar, Boolean, Enum:
		return float64(regs[0]), nil
	case ScaledInt:
		return unscale(decimal.NewFromInt(int64(regs[0])), f.Scale), nil
	case LongFixedPoint:
		return unscale(decimal.NewFromInt(int64(DecodeLong(regs))), f.Scale), nil
	case FloatFixedPoint:
		v := DecodeFloat(regs)
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return 0, fmt.Errorf("basis: %s holds no finite value (%04X %04X)", f.Name, regs[0], regs[1])
		}
		return unscale(decimal.NewFromFloat32(v), f.Scale), nil
	default:
		return 0, fmt.Errorf("basis: %s field %s cannot be decoded to a number", f.Encoding, f.Name)
	}
}

func scale(v float64, factor int64) int64 {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(factor)).Round(0).IntPart()
}

func unscale(raw decimal.Decimal, factor int64) float64 {
	return raw.Div(decimal.NewFromInt(factor)).InexactFloat64()
}

// EncodeLong splits v across two registers, high word first.
func EncodeLong(v int32) []uint16 {
	u := uint32(v)
	return []uint16{uint16(u >> 16), uint16(u)}
}

// DecodeLong joins two registers, high word first, into a signed value.
func DecodeLong(regs []uint16) int32 {
	return int32(uint32(regs[0])<<16 | uint32(regs[1]))
}

// EncodeFloat stores v as IEEE binary32, high word first.
func EncodeFloat(v float32) []uint16 {
	return EncodeLong(int32(math.Float32bits(v)))
}

// DecodeFloat reads an IEEE binary32 stored high word first.
func DecodeFloat(regs []uint16) float32 {
	return math.Float32frombits(uint32(regs[0])<<16 | uint32(regs[1]))
}

// EncodeASCII packs s two characters per register into n registers, padding
// with spaces.
func EncodeASCII(s string, n int) []uint16 {
	b := []byte(s)
	for len(b) < 2*n {
		b = append(b, ' ')
	}
	regs := make([]uint16, n)
	for i := range regs {
		regs[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return regs
}

// DecodeASCII unpacks two characters per register and trims trailing space
// and NUL padding.
func DecodeASCII(regs []uint16) string {
	b := make([]byte, 0, 2*len(regs))
	for _, r := range regs {
		b = append(b, byte(r>>8), byte(r))
	}
	return strings.TrimRight(string(b), " \x00")
}

// DecodeVersion formats a packed firmware version as "major.mid.minor".
func DecodeVersion(v uint16) string {
	return fmt.Sprintf("%d.%d.%d", v/256, v%256/16, v%256%16)
}
