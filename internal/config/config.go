package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Receiver ReceiverConfig `yaml:"receiver"`
	Ntrip    NtripConfig    `yaml:"ntrip"`
	Web      WebConfig      `yaml:"web"`
	LED      LEDConfig      `yaml:"led"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

type ReceiverConfig struct {
	// Transport selects how the receiver is attached: "serial" or "tcp".
	Transport string `yaml:"transport"`

	// Device is the serial device path; empty auto-detects /dev/ttyACM*.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`

	// Addr is host:port for transport=="tcp".
	Addr string `yaml:"addr"`

	// IdleTimeout faults the link when no bytes arrive for this window.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// CursorCapacity bounds the decode buffer in bytes; 0 selects the
	// built-in default.
	CursorCapacity int `yaml:"cursor_capacity"`

	Configure ConfigureConfig `yaml:"configure"`
}

type ConfigureConfig struct {
	Enable       bool `yaml:"enable"`
	FactoryReset bool `yaml:"factory_reset"`

	// Mode is "survey-in" or "fixed".
	Mode string `yaml:"mode"`

	AccuracyLimitMM     uint32        `yaml:"accuracy_limit_mm"`
	SurveyInMinDuration time.Duration `yaml:"survey_in_min_duration"`
	AckTimeout          time.Duration `yaml:"ack_timeout"`

	// Fixed-mode antenna reference point.
	LatitudeDegrees  float64 `yaml:"latitude_degrees"`
	LongitudeDegrees float64 `yaml:"longitude_degrees"`
	AltitudeMeters   float64 `yaml:"altitude_meters"`
}

type NtripConfig struct {
	Listen           string        `yaml:"listen"`
	Mount            string        `yaml:"mount"`
	Password         string        `yaml:"password"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	QueueSize        int           `yaml:"queue_size"`
	DropLimit        int           `yaml:"drop_limit"`
	DropWindow       time.Duration `yaml:"drop_window"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type LEDConfig struct {
	Enable bool `yaml:"enable"`
	Pin    int  `yaml:"pin"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func DefaultAndValidate(cfg *Config) error {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}

	if cfg.Receiver.Transport == "" {
		cfg.Receiver.Transport = "serial"
	}
	switch cfg.Receiver.Transport {
	case "serial":
		if cfg.Receiver.Baud == 0 {
			cfg.Receiver.Baud = 9600
		}
	case "tcp":
		if cfg.Receiver.Addr == "" {
			return fmt.Errorf("receiver.addr is required when receiver.transport is tcp")
		}
	default:
		return fmt.Errorf("receiver.transport %q is not one of serial, tcp", cfg.Receiver.Transport)
	}

	// The decode buffer must hold at least one read chunk.
	if cfg.Receiver.CursorCapacity != 0 && cfg.Receiver.CursorCapacity < 4096 {
		return fmt.Errorf("receiver.cursor_capacity %d is below the 4096-byte minimum", cfg.Receiver.CursorCapacity)
	}

	if cfg.Receiver.Configure.Enable {
		if cfg.Receiver.Configure.Mode == "" {
			cfg.Receiver.Configure.Mode = "survey-in"
		}
		switch cfg.Receiver.Configure.Mode {
		case "survey-in":
			if cfg.Receiver.Configure.SurveyInMinDuration <= 0 {
				cfg.Receiver.Configure.SurveyInMinDuration = 60 * time.Second
			}
		case "fixed":
			if cfg.Receiver.Configure.LatitudeDegrees == 0 && cfg.Receiver.Configure.LongitudeDegrees == 0 {
				return fmt.Errorf("receiver.configure.latitude_degrees/longitude_degrees are required for fixed mode")
			}
		default:
			return fmt.Errorf("receiver.configure.mode %q is not one of survey-in, fixed", cfg.Receiver.Configure.Mode)
		}
		if cfg.Receiver.Configure.AccuracyLimitMM == 0 {
			cfg.Receiver.Configure.AccuracyLimitMM = 50000
		}
		if cfg.Receiver.Configure.AckTimeout <= 0 {
			cfg.Receiver.Configure.AckTimeout = 5 * time.Second
		}
	}

	if cfg.Ntrip.Listen == "" {
		cfg.Ntrip.Listen = ":2101"
	}
	if cfg.Ntrip.Mount == "" {
		return fmt.Errorf("ntrip.mount is required")
	}
	if cfg.Ntrip.HandshakeTimeout <= 0 {
		cfg.Ntrip.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Ntrip.WriteTimeout <= 0 {
		cfg.Ntrip.WriteTimeout = 10 * time.Second
	}
	if cfg.Ntrip.QueueSize <= 0 {
		cfg.Ntrip.QueueSize = 64
	}
	if cfg.Ntrip.DropLimit <= 0 {
		cfg.Ntrip.DropLimit = 50
	}
	if cfg.Ntrip.DropWindow <= 0 {
		cfg.Ntrip.DropWindow = 10 * time.Second
	}

	if cfg.Web.Enable && cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	if cfg.LED.Enable && cfg.LED.Pin <= 0 {
		return fmt.Errorf("led.pin is required when led.enable is true")
	}

	return nil
}
