// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/ffutop/basis-driver/internal/simulator/model"
)

// The image holds the holding registers only, 2 bytes per register in host
// byte order.
const (
	sizeHolding = (model.MaxAddress + 1) * 2
	totalSize   = sizeHolding
)

// mapBytesToModel constructs a DataModel backed by the provided data slice.
// The uint16 view relies on host endianness, so an image is not portable
// across architectures with different byte order.
func mapBytesToModel(data []byte) *model.DataModel {
	return &model.DataModel{
		HoldingRegisters: unsafe.Slice((*uint16)(unsafe.Pointer(&data[0])), sizeHolding/2),
	}
}

// byteRange returns the image offsets covering quantity registers at address.
func byteRange(address, quantity uint16) (int, int) {
	start := int(address) * 2
	end := start + int(quantity)*2
	if end > totalSize {
		end = totalSize
	}
	return start, end
}

// openImage opens the register image at path. A missing or empty file is
// created at full size; a file of any other size holds a different layout and
// is refused rather than truncated.
func openImage(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open register image: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	switch fi.Size() {
	case int64(totalSize):
	case 0:
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to size register image: %w", err)
		}
	default:
		f.Close()
		return nil, fmt.Errorf("register image %s has %d bytes, want %d", path, fi.Size(), totalSize)
	}
	return f, nil
}
