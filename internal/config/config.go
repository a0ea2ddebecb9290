// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Transport types.
const (
	TransportRTU        = "rtu"
	TransportRTUOverTCP = "rtu-over-tcp"
	TransportLocal      = "local"
)

// Config defines the global configuration structure
type Config struct {
	Device    DeviceConfig    `mapstructure:"device"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// MetricsConfig defines the Prometheus textfile export.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Textfile  string `mapstructure:"textfile"` // Written after each run when set
}

// DeviceConfig defines how the host reaches one Basis unit.
type DeviceConfig struct {
	Transport string       `mapstructure:"transport"` // "rtu", "rtu-over-tcp", "local"
	UnitID    int          `mapstructure:"unit_id"`
	Serial    SerialConfig `mapstructure:"serial"` // Used if Transport is "rtu"
	Tcp       TcpConfig    `mapstructure:"tcp"`    // Used if Transport is "rtu-over-tcp"
	Local     LocalConfig  `mapstructure:"local"`  // Used if Transport is "local"
}

// SimulatorConfig defines the simulated unit exposed by "basisctl simulate".
type SimulatorConfig struct {
	Units    string         `mapstructure:"units"` // Factory addresses, e.g. "1,2,5-10"
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Local    LocalConfig    `mapstructure:"local"`
}

// UpstreamConfig defines where the simulator listens for a master.
type UpstreamConfig struct {
	Type   string       `mapstructure:"type"`   // "rtu", "rtu-over-tcp"
	Tcp    TcpConfig    `mapstructure:"tcp"`    // Used if Type is "rtu-over-tcp"
	Serial SerialConfig `mapstructure:"serial"` // Used if Type is "rtu"
}

// LocalConfig defines settings for the simulated Basis unit
type LocalConfig struct {
	Persistence PersistenceConfig `mapstructure:"persistence"`
	// RejectBaudWrites makes the unit answer baud register writes with an
	// exception, to exercise configuration drift handling.
	RejectBaudWrites bool `mapstructure:"reject_baud_writes"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string        `mapstructure:"address"` // e.g. "0.0.0.0:4001" or "192.168.1.100:4001"
	Timeout time.Duration `mapstructure:"timeout"` // Response timeout
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// Connection defaults of a Basis unit as shipped.
const (
	DefaultDevice   = "/dev/ttyUSB0"
	DefaultBaudRate = 38400
	DefaultUnitID   = 1
	DefaultTimeout  = 250 * time.Millisecond
)

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"transport":        "device.transport",
	"unit":             "device.unit_id",
	"port":             "device.serial.device",
	"baud":             "device.serial.baud_rate",
	"timeout":          "device.serial.timeout",
	"address":          "device.tcp.address",
	"persistence":      "device.local.persistence.type",
	"persistence-path": "device.local.persistence.path",
	"log-level":        "log.level",
	"log-file":         "log.file",
	"metrics-textfile": "metrics.textfile",
	"units":            "simulator.units",
	"upstream":         "simulator.upstream.type",
	"listen":           "simulator.upstream.tcp.address",
	"serve-port":       "simulator.upstream.serial.device",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.transport", TransportRTU)
	v.SetDefault("device.unit_id", DefaultUnitID)
	v.SetDefault("device.serial.device", DefaultDevice)
	v.SetDefault("device.serial.baud_rate", DefaultBaudRate)
	v.SetDefault("device.serial.data_bits", 8)
	v.SetDefault("device.serial.parity", "N")
	v.SetDefault("device.serial.stop_bits", 1)
	v.SetDefault("device.serial.timeout", DefaultTimeout)
	v.SetDefault("device.tcp.address", "127.0.0.1:4001")
	v.SetDefault("device.tcp.timeout", DefaultTimeout)
	v.SetDefault("device.local.persistence.type", "memory")
	v.SetDefault("device.local.reject_baud_writes", false)

	v.SetDefault("simulator.units", "1")
	v.SetDefault("simulator.upstream.type", TransportRTUOverTCP)
	v.SetDefault("simulator.upstream.tcp.address", "127.0.0.1:4001")
	v.SetDefault("simulator.upstream.serial.baud_rate", DefaultBaudRate)
	v.SetDefault("simulator.local.persistence.type", "memory")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("metrics.namespace", "basis")
	v.SetDefault("metrics.textfile", "")
}

// LoadConfig loads configuration from file, environment (BASIS_*) and the
// flags of fs that have a configuration key. An empty configFile searches the
// default locations and tolerates a missing file.
func LoadConfig(configFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BASIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/basis/")
		v.AddConfigPath("$HOME/.basis")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// Configuration may come from flags and environment alone.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Device.Serial)
	fixupSerial(&config.Simulator.Upstream.Serial)
	if config.Device.Tcp.Timeout <= 0 {
		config.Device.Tcp.Timeout = DefaultTimeout
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports configuration values no transport can work with.
func (c *Config) Validate() error {
	switch c.Device.Transport {
	case TransportRTU, TransportRTUOverTCP, TransportLocal:
	default:
		return fmt.Errorf("unknown device transport %q", c.Device.Transport)
	}
	if c.Device.UnitID < 1 || c.Device.UnitID > 247 {
		return fmt.Errorf("device unit_id %d out of range 1-247", c.Device.UnitID)
	}
	switch c.Simulator.Upstream.Type {
	case TransportRTU, TransportRTUOverTCP:
	default:
		return fmt.Errorf("unknown simulator upstream type %q", c.Simulator.Upstream.Type)
	}
	for _, p := range []PersistenceConfig{c.Device.Local.Persistence, c.Simulator.Local.Persistence} {
		switch p.Type {
		case "", "memory":
		case "file", "mmap":
			if p.Path == "" {
				return fmt.Errorf("%s persistence requires a path", p.Type)
			}
		default:
			return fmt.Errorf("unknown persistence type %q", p.Type)
		}
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.BaudRate == 0 {
		s.BaudRate = DefaultBaudRate
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
}
