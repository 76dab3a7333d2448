// Package config loads the settings of a simulation run.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/sarchlab/lamportvm/machine"
	"github.com/sarchlab/lamportvm/network"
)

// ErrInvalidConfig is returned when a setting is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix starts the name of every environment variable read by Load.
const EnvPrefix = "LAMPORTVM_"

// Config holds the settings of a run. The JSON keys host and port_base are
// shared with existing config.json files.
type Config struct {
	Host            string `json:"host"`
	PortBase        int    `json:"port_base"`
	NumMachines     int    `json:"num_machines"`
	DurationSeconds int    `json:"duration_seconds"`
	StartupDelayMS  int    `json:"startup_delay_ms"`
	LogDir          string `json:"log_dir"`
	Seed            uint64 `json:"seed"`
	ActionPolicy    string `json:"action_policy"`
	RecordDB        string `json:"record_db"`
	MonitorPort     int    `json:"monitor_port"`
}

// Default returns the settings used when nothing else is given.
func Default() Config {
	return Config{
		Host:            "localhost",
		PortBase:        5000,
		NumMachines:     3,
		DurationSeconds: 60,
		StartupDelayMS:  int(machine.DefaultStartupDelay / time.Millisecond),
		LogDir:          ".",
		ActionPolicy:    machine.ScaledBands.String(),
	}
}

// Load builds the configuration of a run. Defaults are overwritten by the JSON
// file at path (skipped when path is empty), then by the LAMPORTVM_*
// environment variables. A .env file in the working directory, if present,
// feeds the environment without overriding variables already set.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}

		err = json.Unmarshal(data, &c)
		if err != nil {
			return c, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, err
	}

	err = c.applyEnv(os.LookupEnv)
	if err != nil {
		return c, err
	}

	return c, c.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	integer := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrInvalidConfig, EnvPrefix, name, v)
		}

		*dst = n

		return nil
	}

	str("HOST", &c.Host)
	str("LOG_DIR", &c.LogDir)
	str("ACTION_POLICY", &c.ActionPolicy)
	str("RECORD_DB", &c.RecordDB)

	for name, dst := range map[string]*int{
		"PORT_BASE":        &c.PortBase,
		"NUM_MACHINES":     &c.NumMachines,
		"DURATION_SECONDS": &c.DurationSeconds,
		"STARTUP_DELAY_MS": &c.StartupDelayMS,
		"MONITOR_PORT":     &c.MonitorPort,
	} {
		if err := integer(name, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup(EnvPrefix + "SEED"); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %sSEED=%q", ErrInvalidConfig, EnvPrefix, v)
		}

		c.Seed = seed
	}

	return nil
}

// Validate checks every setting.
func (c Config) Validate() error {
	err := c.Topology().Validate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.DurationSeconds < 0 {
		return fmt.Errorf("%w: duration_seconds %d",
			ErrInvalidConfig, c.DurationSeconds)
	}

	if c.StartupDelayMS < 0 {
		return fmt.Errorf("%w: startup_delay_ms %d",
			ErrInvalidConfig, c.StartupDelayMS)
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("%w: monitor_port %d", ErrInvalidConfig, c.MonitorPort)
	}

	_, err = machine.ParseActionPolicy(c.ActionPolicy)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// Topology returns the addressing shared by every machine of the run.
func (c Config) Topology() network.Topology {
	return network.Topology{
		Host:        c.Host,
		BasePort:    c.PortBase,
		NumMachines: c.NumMachines,
	}
}

// Duration returns how long the run lasts.
func (c Config) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// StartupDelay returns how long machines wait before their first cycle.
func (c Config) StartupDelay() time.Duration {
	return time.Duration(c.StartupDelayMS) * time.Millisecond
}

// Policy returns the action policy of every machine. It panics on a
// configuration that did not pass Validate.
func (c Config) Policy() machine.ActionPolicy {
	p, err := machine.ParseActionPolicy(c.ActionPolicy)
	if err != nil {
		panic(err)
	}

	return p
}
