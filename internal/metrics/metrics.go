// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package metrics records register transactions as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/ffutop/basis-driver/basis"
	"github.com/ffutop/basis-driver/modbus"
	"github.com/prometheus/client_golang/prometheus"
)

// Transaction results used as the "result" label.
const (
	ResultOK        = "ok"
	ResultTimeout   = "timeout"
	ResultException = "exception"
	ResultError     = "error"
)

// Instrumented wraps a basis.Transport and counts every transaction.
type Instrumented struct {
	basis.Transport

	transactions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	baudRate     prometheus.Gauge
}

// NewInstrumented registers the transaction metrics with reg and returns a
// Transport that records into them. Metrics already registered under the same
// name are reused.
func NewInstrumented(t basis.Transport, reg prometheus.Registerer, namespace string) (*Instrumented, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	transactions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_total",
		Help:      "Register transactions by operation and result.",
	}, []string{"op", "result"}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transaction_duration_seconds",
		Help:      "Time from request to response or timeout.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"op"}))
	if err != nil {
		return nil, err
	}
	baudRate, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "host_baud_rate",
		Help:      "Line speed currently used by the host.",
	}))
	if err != nil {
		return nil, err
	}
	baudRate.Set(float64(t.BaudRate()))

	return &Instrumented{
		Transport:    t,
		transactions: transactions,
		duration:     duration,
		baudRate:     baudRate,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (i *Instrumented) ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	start := time.Now()
	regs, err := i.Transport.ReadHoldingRegisters(ctx, address, quantity)
	i.observe("read", start, err)
	return regs, err
}

func (i *Instrumented) WriteMultipleRegisters(ctx context.Context, address uint16, values []uint16) error {
	start := time.Now()
	err := i.Transport.WriteMultipleRegisters(ctx, address, values)
	i.observe("write", start, err)
	return err
}

func (i *Instrumented) SetBaudRate(baud int) {
	i.Transport.SetBaudRate(baud)
	i.baudRate.Set(float64(baud))
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	i.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	i.transactions.WithLabelValues(op, Result(err)).Inc()
}

// Result classifies a transaction error for the "result" label.
func Result(err error) string {
	var mbErr *modbus.Error
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, modbus.ErrRequestTimedOut):
		return ResultTimeout
	case errors.As(err, &mbErr):
		return ResultException
	default:
		return ResultError
	}
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format, for the node exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, g)
}
