// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ffutop/basis-driver/basis"
	"gopkg.in/yaml.v3"
)

// printer renders command results in one output format.
type printer struct {
	w      io.Writer
	format string
	docs   int
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case "text", "yaml", "json":
		return &printer{w: w, format: format}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

func (p *printer) print(v any) error {
	switch p.format {
	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		if p.docs > 0 {
			if _, err := io.WriteString(p.w, "---\n"); err != nil {
				return err
			}
		}
		p.docs++
		_, err = p.w.Write(b)
		return err
	case "json":
		return json.NewEncoder(p.w).Encode(v)
	}
	return p.text(v)
}

func (p *printer) text(v any) error {
	var err error
	switch v := v.(type) {
	case basis.Dataframe:
		_, err = fmt.Fprintf(p.w, "unit=%d temperature=%.2f mass_flow=%.3f gas=%s\n", v.UnitID, v.Temperature, v.MassFlow, v.Gas)
	case basis.Info:
		tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Port:\t%s\n", v.Port)
		fmt.Fprintf(tw, "Modbus ID:\t%d\n", v.ModbusID)
		fmt.Fprintf(tw, "ASCII ID:\t%s\n", v.ASCIIID)
		fmt.Fprintf(tw, "Firmware:\t%s\n", v.FirmwareVersion)
		fmt.Fprintf(tw, "Serial number:\t%s\n", v.SerialNumber)
		fmt.Fprintf(tw, "Full scale:\t%g %s\n", v.FullScale, v.Units)
		fmt.Fprintf(tw, "Baud rate:\t%d\n", v.BaudRate)
		err = tw.Flush()
	case []registerRow:
		tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ADDRESS\tWIDTH\tNAME\tENCODING\tSCALE\tACCESS")
		for _, r := range v {
			access := "rw"
			if r.ReadOnly {
				access = "ro"
			}
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%s\n", r.Address, r.Width, r.Name, r.Encoding, r.Scale, access)
		}
		err = tw.Flush()
	default:
		_, err = fmt.Fprintln(p.w, v)
	}
	return err
}
