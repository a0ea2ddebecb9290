// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence keeps the register image of a simulated unit across runs.
package persistence

import (
	"fmt"

	"github.com/ffutop/basis-driver/internal/simulator/model"
)

// Storage defines the interface for persisting the simulator data model.
type Storage interface {
	// Load loads the data model from storage.
	// If no data exists, it returns a zeroed model.
	Load() (*model.DataModel, error)

	// Save saves the current data model to storage.
	Save(model *model.DataModel) error

	// OnWrite is called after quantity registers starting at address changed.
	OnWrite(address, quantity uint16)

	Close() error
}

// New returns the storage named by kind ("memory", "file" or "mmap").
func New(kind, path string) (Storage, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "file":
		return NewFileStorage(path), nil
	case "mmap":
		return NewMmapStorage(path), nil
	default:
		return nil, fmt.Errorf("unknown persistence type %q", kind)
	}
}
