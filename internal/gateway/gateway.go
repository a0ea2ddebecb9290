// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/ffutop/basis-driver/internal/config"
	"github.com/ffutop/basis-driver/internal/simulator"
	"github.com/ffutop/basis-driver/modbus"
	"github.com/ffutop/basis-driver/transport"
)

// Gateway represents a simulated multi-drop line.
// It exposes a set of simulated units to every Upstream (Master). Each request
// is offered to all units and the unit currently holding the addressed ID
// answers; the others stay silent, as on an RS-485 bus.
type Gateway struct {
	Name      string
	Upstreams []transport.Upstream
	Units     []*simulator.Unit
}

// NewGateway creates a new Gateway instance
func NewGateway(name string, upstreams []transport.Upstream, units []*simulator.Unit) *Gateway {
	return &Gateway{
		Name:      name,
		Upstreams: upstreams,
		Units:     units,
	}
}

// ParseUnitIDs parses a string of unit IDs (e.g. "1,2,5-10") into a slice of bytes.
func ParseUnitIDs(input string) ([]byte, error) {
	var ids []byte
	seen := make(map[int]bool)
	add := func(id int) error {
		if id < 1 || id > 247 {
			return fmt.Errorf("id out of range: %d", id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate id: %d", id)
		}
		seen[id] = true
		ids = append(ids, byte(id))
		return nil
	}

	parts := strings.Split(input, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			// Range
			ranges := strings.Split(part, "-")
			if len(ranges) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(ranges[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid start of range: %w", err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(ranges[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid end of range: %w", err)
			}
			if start > end {
				return nil, fmt.Errorf("start of range %d is greater than end %d", start, end)
			}
			for i := start; i <= end; i++ {
				if err := add(i); err != nil {
					return nil, err
				}
			}
		} else {
			// Single
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid id: %w", err)
			}
			if err := add(id); err != nil {
				return nil, err
			}
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no unit ids given")
	}
	return ids, nil
}

// OpenUnits creates one simulated unit per id. With more than one unit a
// file or mmap image path gets the unit's factory id appended.
func OpenUnits(ids []byte, cfg config.LocalConfig) ([]*simulator.Unit, error) {
	units := make([]*simulator.Unit, 0, len(ids))
	for _, id := range ids {
		path := cfg.Persistence.Path
		if path != "" && len(ids) > 1 {
			path = fmt.Sprintf("%s.%d", path, id)
		}
		u, err := simulator.Open(cfg.Persistence.Type, path, simulator.Options{
			RejectBaudWrites: cfg.RejectBaudWrites,
			UnitID:           id,
		})
		if err != nil {
			for _, opened := range units {
				opened.Close()
			}
			return nil, fmt.Errorf("unit %d: %w", id, err)
		}
		units = append(units, u)
	}
	return units, nil
}

// Start starts all upstream servers and serves until ctx is done.
func (g *Gateway) Start(ctx context.Context) error {
	// Start Upstreams
	var wg sync.WaitGroup
	for i, us := range g.Upstreams {
		wg.Add(1)
		go func(ups transport.Upstream, idx int) {
			defer wg.Done()
			slog.Info("Starting upstream", "gateway", g.Name, "index", idx)
			if err := ups.Start(ctx, g.handleRequest); err != nil {
				slog.Error("Upstream stopped with error", "gateway", g.Name, "index", idx, "err", err)
			}
		}(us, i)
	}

	<-ctx.Done()

	// Graceful shutdown
	for _, us := range g.Upstreams {
		us.Close()
	}
	wg.Wait()
	for _, u := range g.Units {
		if err := u.Close(); err != nil {
			slog.Warn("Failed to close simulated unit", "gateway", g.Name, "unit", u.UnitID(), "err", err)
		}
	}
	return nil
}

// handleRequest is the central dispatch function
func (g *Gateway) handleRequest(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	for _, u := range g.Units {
		resp, err := u.Handle(ctx, slaveID, pdu)
		if errors.Is(err, transport.ErrNoResponse) {
			continue
		}
		if err != nil {
			slog.Error("Simulated unit failed", "gateway", g.Name, "slaveID", slaveID, "func", pdu.FunctionCode, "err", err)
		}
		return resp, err
	}
	slog.Debug("No unit at address", "gateway", g.Name, "slaveID", slaveID)
	return modbus.ProtocolDataUnit{}, transport.ErrNoResponse
}
