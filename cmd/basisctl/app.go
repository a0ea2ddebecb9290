// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/basis-driver/basis"
	"github.com/ffutop/basis-driver/internal/config"
	"github.com/ffutop/basis-driver/internal/gateway"
	"github.com/ffutop/basis-driver/internal/metrics"
	"github.com/ffutop/basis-driver/transport"
	"github.com/ffutop/basis-driver/transport/local"
	"github.com/ffutop/basis-driver/transport/rtu"
	"github.com/ffutop/basis-driver/transport/rtuovertcp"
	"github.com/prometheus/client_golang/prometheus"
)

type app struct {
	cfg      *config.Config
	out      *printer
	count    int
	interval time.Duration
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "fields":
		return a.out.print(fieldTable())
	case "simulate":
		return a.simulate(ctx)
	}

	ds, port, err := openDownstream(a.cfg.Device)
	if err != nil {
		return err
	}
	defer ds.Close()
	if err := ds.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", port, err)
	}

	client := transport.NewClient(ds, byte(a.cfg.Device.UnitID))
	client.SetBaudRate(a.cfg.Device.Serial.BaudRate)

	reg := prometheus.NewRegistry()
	t, err := metrics.NewInstrumented(client, reg, a.cfg.Metrics.Namespace)
	if err != nil {
		return err
	}
	defer a.writeMetrics(reg)

	return a.runDevice(ctx, basis.NewDevice(port, t), command, args)
}

func (a *app) runDevice(ctx context.Context, dev *basis.Device, command string, args []string) error {
	switch command {
	case "get":
		if len(args) != 1 {
			return errors.New("usage: get <field>")
		}
		acc, err := lookupAccessor(args[0])
		if err != nil {
			return err
		}
		v, err := acc.get(ctx, dev)
		if err != nil {
			return err
		}
		return a.out.print(v)
	case "set":
		if len(args) != 2 {
			return errors.New("usage: set <field> <value>")
		}
		acc, err := lookupAccessor(args[0])
		if err != nil {
			return err
		}
		if acc.set == nil {
			return fmt.Errorf("field %s is read-only", args[0])
		}
		return acc.set(ctx, dev, args[1])
	case "tare":
		return dev.TareFlow(ctx)
	case "dataframe":
		df, err := dev.Dataframe(ctx)
		if err != nil {
			return err
		}
		return a.out.print(df)
	case "poll":
		return a.poll(ctx, dev)
	case "info":
		info, err := dev.Info(ctx)
		if err != nil {
			return err
		}
		return a.out.print(info)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// poll prints a dataframe every interval until count frames were read or ctx
// is done. Failed reads are logged and polling continues.
func (a *app) poll(ctx context.Context, dev *basis.Device) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	var failed int
	for n := 0; a.count == 0 || n < a.count; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		df, err := dev.Dataframe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failed++
			slog.Warn("Dataframe read failed", "port", dev.Port(), "unit", dev.UnitID(), "err", err)
			continue
		}
		if err := a.out.print(df); err != nil {
			return err
		}
	}
	if a.count > 0 && failed == a.count {
		return errors.New("no dataframe could be read")
	}
	return nil
}

func (a *app) writeMetrics(reg *prometheus.Registry) {
	if a.cfg.Metrics.Textfile == "" {
		return
	}
	if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile, reg); err != nil {
		slog.Warn("Failed to write metrics textfile", "path", a.cfg.Metrics.Textfile, "err", err)
	}
}

// openDownstream creates the transport named by cfg and returns it with the
// line identifier used in logs and output.
func openDownstream(cfg config.DeviceConfig) (transport.Downstream, string, error) {
	switch cfg.Transport {
	case config.TransportRTU:
		return rtu.NewClient(cfg.Serial), cfg.Serial.Device, nil
	case config.TransportRTUOverTCP:
		return rtuovertcp.NewClient(cfg.Tcp), cfg.Tcp.Address, nil
	case config.TransportLocal:
		c, err := local.Open(cfg.Local, cfg.Serial.BaudRate)
		if err != nil {
			return nil, "", err
		}
		return c, "local", nil
	default:
		return nil, "", fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// simulate serves simulated units on the configured upstream until ctx is
// done.
func (a *app) simulate(ctx context.Context) error {
	sim := a.cfg.Simulator
	ids, err := gateway.ParseUnitIDs(sim.Units)
	if err != nil {
		return err
	}

	var us transport.Upstream
	switch sim.Upstream.Type {
	case config.TransportRTU:
		us = rtu.NewServer(sim.Upstream.Serial)
	case config.TransportRTUOverTCP:
		us = rtuovertcp.NewServer(sim.Upstream.Tcp.Address)
	default:
		return fmt.Errorf("unknown upstream type %q", sim.Upstream.Type)
	}

	units, err := gateway.OpenUnits(ids, sim.Local)
	if err != nil {
		return err
	}
	slog.Info("Starting simulated units", "units", sim.Units, "upstream", sim.Upstream.Type)
	return gateway.NewGateway("simulator", []transport.Upstream{us}, units).Start(ctx)
}
