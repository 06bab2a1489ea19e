// Package config loads the agent's YAML configuration file, the way
// cmd/multiserver and envsrv/cfg.go in this codebase load theirs: merge
// built-in defaults with whatever the file overrides, tolerating a
// missing file outright. The keys recognised here (database,
// SensirionSPS30, DHT22, serial, sampling) exist only so cmd/airmonitor
// can hand the right addresses, series names and sampling settings to its
// collaborators; this
// package does not itself open a database connection or a serial port.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yaml "gopkg.in/yaml.v2"
)

// DatabaseConfig names the time-series store the external sink
// collaborator connects to. This module never dials it directly.
type DatabaseConfig struct {
	Host     string `koanf:"host" yaml:"host"`
	Port     int    `koanf:"port" yaml:"port"`
	User     string `koanf:"user" yaml:"user"`
	Password string `koanf:"password" yaml:"password"`
	Name     string `koanf:"name" yaml:"name"`
}

// SeriesConfig names the measurement series a sensor's samples are
// written under.
type SeriesConfig struct {
	Measurement string `koanf:"measurement" yaml:"measurement"`
}

// SerialConfig names the UART device the SHDLC transport opens.
type SerialConfig struct {
	Port string `koanf:"port" yaml:"port"`
}

// SamplingConfig controls how cmd/airmonitor averages repeated reads
// within one cycle. IntervalSecs is expressed in seconds in the YAML
// file since that is how an operator thinks about it; callers convert it
// with util.SecsToDuration.
type SamplingConfig struct {
	Count        int     `koanf:"count" yaml:"count"`
	IntervalSecs float64 `koanf:"interval_secs" yaml:"interval_secs"`
}

// Config is the agent's full recognised configuration shape, spec.md
// section 6.
type Config struct {
	Database       DatabaseConfig `koanf:"database" yaml:"database"`
	SensirionSPS30 SeriesConfig   `koanf:"SensirionSPS30" yaml:"SensirionSPS30"`
	DHT22          SeriesConfig   `koanf:"DHT22" yaml:"DHT22"`
	Serial         SerialConfig   `koanf:"serial" yaml:"serial"`
	Sampling       SamplingConfig `koanf:"sampling" yaml:"sampling"`
}

// DefaultConfigFileName is the CLI's default -c/--config value.
const DefaultConfigFileName = "airmonitor_config.yml"

// DefaultSerialPort is where the sensor is expected to be attached absent
// any configuration override.
const DefaultSerialPort = "/dev/serial0"

// Default returns the configuration an agent run uses when no file
// overrides it.
func Default() Config {
	return Config{
		SensirionSPS30: SeriesConfig{Measurement: "particulates"},
		DHT22:          SeriesConfig{Measurement: "temphumid"},
		Serial:         SerialConfig{Port: DefaultSerialPort},
		Sampling:       SamplingConfig{Count: 5, IntervalSecs: 1.0},
	}
}

// Load merges Default() with whatever path contains, tolerating a
// missing file the same way cmd/multiserver's setupconfig does ("file
// missing, who cares").
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config: loading defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") { // file missing, who cares
			return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, fmt.Errorf("config: unmarshalling: %w", err)
	}
	return c, nil
}

// WriteDefault writes the default configuration to path, for operators
// bootstrapping a fresh airmonitor_config.yml, mirroring cmd/multiserver's
// mkconf.
func WriteDefault(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: creating %s: %w", path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	defer enc.Close()
	return enc.Encode(Default())
}
