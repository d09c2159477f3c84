package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	USB     USBConfig     `yaml:"usb"`
	Session SessionConfig `yaml:"session"`
	Twostep TwostepConfig `yaml:"twostep"`
	Log     LogConfig     `yaml:"log"`
	Status  StatusConfig  `yaml:"status"`
	Redis   RedisConfig   `yaml:"redis"`
}

type USBConfig struct {
	Vendor           uint16        `yaml:"vendor"`
	Product          uint16        `yaml:"product"`
	Serial           string        `yaml:"serial"`
	ControlInterface int           `yaml:"control_interface"`
	DataInterface    int           `yaml:"data_interface"`
	BridgeInterface  int           `yaml:"bridge_interface"`
	BulkTimeout      time.Duration `yaml:"bulk_timeout"`
}

type SessionConfig struct {
	FirmwareMajor uint32        `yaml:"firmware_major"`
	FirmwareMinor uint32        `yaml:"firmware_minor"`
	DrainInterval time.Duration `yaml:"drain_interval"`
}

type TwostepConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay"`
	// SerialPort, when set, talks to the board through a serial adapter
	// instead of the UART bridge.
	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baud_rate"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
	Verbose  bool   `yaml:"verbose"`
}

type StatusConfig struct {
	Addr string `yaml:"addr"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Load reads a YAML file over the defaults, so a file only has to name
// what it changes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return config, nil
}

func Default() *Config {
	return &Config{
		USB: USBConfig{
			Vendor:           0x1fc9,
			Product:          0x04d8,
			ControlInterface: 0,
			DataInterface:    1,
			BridgeInterface:  2,
			BulkTimeout:      100 * time.Millisecond,
		},
		Session: SessionConfig{
			FirmwareMajor: 2,
			FirmwareMinor: 5,
			DrainInterval: time.Second,
		},
		Twostep: TwostepConfig{
			SettleDelay: 10 * time.Millisecond,
			BaudRate:    115200,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "lasershark",
		},
	}
}

func (c *Config) Validate() error {
	if c.USB.BulkTimeout <= 0 {
		return fmt.Errorf("usb.bulk_timeout must be positive, got %s", c.USB.BulkTimeout)
	}
	if c.Session.DrainInterval <= 0 {
		return fmt.Errorf("session.drain_interval must be positive, got %s", c.Session.DrainInterval)
	}
	if c.Twostep.SettleDelay < 0 {
		return fmt.Errorf("twostep.settle_delay is negative")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
