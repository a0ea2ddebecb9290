// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command basisctl reads and configures a Basis mass flow controller over
// Modbus RTU, and can serve simulated units for testing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ffutop/basis-driver/internal/config"
	"github.com/spf13/pflag"
)

const usage = `Usage: basisctl [flags] <command> [args]

Commands:
  get <field>           Read one field
  set <field> <value>   Write one field
  tare                  Zero the flow reading
  dataframe             Read unit ID, temperature, mass flow and gas
  poll                  Print dataframes repeatedly (see -n, --interval)
  info                  Read identity, range and units
  fields                List the register map
  simulate              Serve simulated units to a master

Fields:
`

func main() {
	fs := pflag.NewFlagSet("basisctl", pflag.ContinueOnError)
	configFile := fs.StringP("config", "c", "", "Configuration file path.")
	fs.StringP("transport", "t", config.TransportRTU, "Device transport (rtu, rtu-over-tcp, local).")
	fs.IntP("unit", "u", config.DefaultUnitID, "Modbus unit address.")
	fs.StringP("port", "p", config.DefaultDevice, "Serial port device name.")
	fs.IntP("baud", "b", config.DefaultBaudRate, "Serial port speed.")
	fs.DurationP("timeout", "W", config.DefaultTimeout, "Response wait time.")
	fs.StringP("address", "a", "127.0.0.1:4001", "Serial device server address for rtu-over-tcp.")
	fs.String("persistence", "memory", "Register image storage of the local unit (memory, file, mmap).")
	fs.String("persistence-path", "", "Register image path for file and mmap storage.")
	fs.StringP("log-level", "v", "info", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log-file", "L", "", "Log file name ('-' for logging to STDERR only).")
	fs.String("metrics-textfile", "", "Write transaction metrics to this file after the run.")
	fs.String("units", "1", "Simulated unit addresses, e.g. 1,2,5-10.")
	fs.String("upstream", config.TransportRTUOverTCP, "Simulator upstream (rtu, rtu-over-tcp).")
	fs.String("listen", "127.0.0.1:4001", "Simulator listen address for rtu-over-tcp.")
	fs.String("serve-port", "", "Simulator serial port for rtu.")
	output := fs.StringP("output", "o", "text", "Output format (text, yaml, json).")
	count := fs.IntP("count", "n", 0, "Number of dataframes to poll, 0 for no limit.")
	interval := fs.DurationP("interval", "i", time.Second, "Poll interval.")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		for _, name := range fieldNames() {
			fmt.Fprintf(os.Stderr, "  %-18s %s\n", name, accessors[name].help)
		}
		fmt.Fprintf(os.Stderr, "\nFlags:\n%s", fs.FlagUsages())
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	// Load Configuration
	cfg, err := config.LoadConfig(*configFile, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	out, err := newPrinter(os.Stdout, *output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Shutting down...")
		cancel()
	}()

	app := &app{cfg: cfg, out: out, count: *count, interval: *interval}
	if err := app.run(ctx, args[0], args[1:]); err != nil {
		slog.Error("Command failed", "command", args[0], "err", err)
		fmt.Fprintf(os.Stderr, "basisctl: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	// Standard output carries command results, so logs go to stderr.
	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file, falling back to stderr: %v\n", err)
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
