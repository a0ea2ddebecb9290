// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

// polynomial is the reflected form of x^16 + x^15 + x^2 + 1.
const polynomial = 0xA001

// CRC is the Modbus RTU CRC-16 accumulator.
// Value returns the checksum with the first transmitted byte in the low byte.
type CRC struct {
	value uint16
}

func (crc *CRC) Reset() *CRC {
	crc.value = 0xFFFF
	return crc
}

func (crc *CRC) PushBytes(bs []byte) *CRC {
	for _, b := range bs {
		crc.value ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc.value&1 != 0 {
				crc.value = crc.value>>1 ^ polynomial
			} else {
				crc.value >>= 1
			}
		}
	}
	return crc
}

func (crc *CRC) Value() uint16 {
	return crc.value
}
