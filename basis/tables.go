// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package basis

// Entry pairs a key with its register code.
type Entry[K comparable] struct {
	Key  K
	Code uint16
}

// Table is an ordered, bidirectional mapping between keys and register
// codes. Keys and codes are each unique.
type Table[K comparable] struct {
	name    string
	entries []Entry[K]
}

func newTable[K comparable](name string, entries ...Entry[K]) *Table[K] {
	seenKey := make(map[K]bool, len(entries))
	seenCode := make(map[uint16]bool, len(entries))
	for _, e := range entries {
		if seenKey[e.Key] || seenCode[e.Code] {
			panic("basis: duplicate entry in " + name + " table")
		}
		seenKey[e.Key] = true
		seenCode[e.Code] = true
	}
	return &Table[K]{name: name, entries: entries}
}

// Name returns the table name used in errors.
func (t *Table[K]) Name() string {
	return t.name
}

// Code returns the register code of key.
func (t *Table[K]) Code(key K) (uint16, error) {
	for _, e := range t.entries {
		if e.Key == key {
			return e.Code, nil
		}
	}
	return 0, &NotFoundError{Table: t.name, Key: key}
}

// Key returns the key stored under code.
func (t *Table[K]) Key(code uint16) (K, error) {
	for _, e := range t.entries {
		if e.Code == code {
			return e.Key, nil
		}
	}
	var zero K
	return zero, &NotFoundError{Table: t.name, Key: code}
}

// Keys returns the keys in table order.
func (t *Table[K]) Keys() []K {
	keys := make([]K, len(t.entries))
	for i, e := range t.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the table.
func (t *Table[K]) Entries() []Entry[K] {
	return append([]Entry[K](nil), t.entries...)
}

// SetpointSource selects who drives the flow setpoint.
type SetpointSource string

const (
	SourceLocal  SetpointSource = "local"
	SourceRemote SetpointSource = "remote"
)

// Gases lists the selectable gases.
var Gases = newTable("gas",
	Entry[string]{"Air", 0},
	Entry[string]{"Ar", 1},
	Entry[string]{"CO2", 2},
	Entry[string]{"N2", 3},
	Entry[string]{"O2", 4},
	Entry[string]{"N2O", 5},
	Entry[string]{"H2", 6},
	Entry[string]{"He", 7},
)

// BaudRates lists the supported line speeds.
var BaudRates = newTable("baud",
	Entry[int]{4800, 0},
	Entry[int]{9600, 1},
	Entry[int]{19200, 2},
	Entry[int]{38400, 3},
	Entry[int]{57600, 4},
	Entry[int]{115200, 5},
)

// Units lists the engineering units a unit reports flow in.
var Units = newTable("units",
	Entry[string]{"SCCM", 0},
	Entry[string]{"SLPM", 1},
)

// SetpointSources maps setpoint sources to register codes.
var SetpointSources = newTable("setpoint source",
	Entry[SetpointSource]{SourceLocal, 0},
	Entry[SetpointSource]{SourceRemote, 2},
)
