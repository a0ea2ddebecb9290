// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/basis-driver/modbus"
	"github.com/ffutop/basis-driver/modbus/crc"
)

// ApplicationDataUnit is one RTU frame.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode checks the trailing CRC of raw and splits it into address and PDU.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	if length < MinSize {
		err = fmt.Errorf("modbus: frame length '%v' does not meet minimum '%v'", length, MinSize)
		return
	}

	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-2])
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if checksum != c.Value() {
		err = fmt.Errorf("modbus: response crc '%v' does not match expected '%v'", checksum, c.Value())
		return
	}
	adu = &ApplicationDataUnit{SlaveID: raw[0]}
	adu.Pdu.FunctionCode = raw[1]
	adu.Pdu.Data = append([]byte(nil), raw[2:length-2]...)
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes, low byte first
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		err = fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}
	raw = make([]byte, length)

	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	copy(raw[2:], adu.Pdu.Data)

	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-2])
	checksum := c.Value()

	raw[length-1] = byte(checksum >> 8)
	raw[length-2] = byte(checksum)
	return
}

// Verify checks that resp answers req.
func (adu *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) error {
	if adu.SlaveID != resp.SlaveID {
		return fmt.Errorf("modbus: response slave id '%v' does not match request '%v'", resp.SlaveID, adu.SlaveID)
	}
	if resp.Pdu.FunctionCode&0x7F != adu.Pdu.FunctionCode {
		return fmt.Errorf("modbus: response function '%v' does not match request '%v'", resp.Pdu.FunctionCode, adu.Pdu.FunctionCode)
	}
	return nil
}
