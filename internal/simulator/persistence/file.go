// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/basis-driver/internal/simulator/model"
)

// FileStorage implements persistence using plain file operations.
// The register image is kept in memory and changed ranges are written back.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the register image, creating the file if necessary.
func (ms *FileStorage) Load() (*model.DataModel, error) {
	f, err := openImage(ms.path)
	if err != nil {
		return nil, err
	}
	ms.file = f

	data := make([]byte, totalSize)
	if _, err := io.ReadFull(f, data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	ms.data = data

	return mapBytesToModel(data), nil
}

// Save writes the whole image and syncs it to disk.
func (ms *FileStorage) Save(m *model.DataModel) error {
	return ms.sync(0, totalSize)
}

// OnWrite writes back the changed registers.
func (ms *FileStorage) OnWrite(address, quantity uint16) {
	start, end := byteRange(address, quantity)
	if err := ms.sync(start, end); err != nil {
		slog.Error("Failed to sync file", "path", ms.path, "err", err)
	}
}

func (ms *FileStorage) sync(start, end int) error {
	if ms.data == nil || ms.file == nil {
		return nil
	}
	if _, err := ms.file.WriteAt(ms.data[start:end], int64(start)); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := ms.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (ms *FileStorage) Close() error {
	if ms.file == nil {
		return nil
	}
	err := ms.file.Close()
	ms.file = nil
	return err
}
