// Package config loads the server's tunable timings from an optional HCL
// file, following the same parse-or-default pattern the rest of this
// codebase's configuration layers use.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config holds every duration and bound the session manager and session
// loop need. Fields are expressed in seconds/milliseconds in HCL for
// readability and converted to time.Duration once loaded.
type Config struct {
	Timing TimingSettings `hcl:"timing,block"`
	Log    LogSettings    `hcl:"log,block"`
}

// TimingSettings are the raw HCL fields; Resolve converts them.
type TimingSettings struct {
	HeartbeatIntervalSeconds     int `hcl:"heartbeat_interval_seconds,optional"`
	ArrivalGraceMillis           int `hcl:"arrival_grace_millis,optional"`
	DisconnectGraceSocketSeconds int `hcl:"disconnect_grace_socket_seconds,optional"`
	TurnTimeoutSeconds           int `hcl:"turn_timeout_seconds,optional"`
}

// LogSettings controls the zerolog console writer.
type LogSettings struct {
	Level string `hcl:"level,optional"`
}

// Resolved is the Config with every timing converted to a time.Duration,
// ready to hand to pool.NewWithTiming and session.NewWithTurnTimeout.
type Resolved struct {
	HeartbeatInterval     time.Duration
	ArrivalGrace          time.Duration
	DisconnectGraceSocket time.Duration
	TurnTimeout           time.Duration
	LogLevel              string
}

// Default returns the built-in timings, matching the values named in the
// session manager and session loop lifecycle.
func Default() *Config {
	return &Config{
		Timing: TimingSettings{
			HeartbeatIntervalSeconds:     15,
			ArrivalGraceMillis:           200,
			DisconnectGraceSocketSeconds: 5,
			TurnTimeoutSeconds:           300,
		},
		Log: LogSettings{Level: "info"},
	}
}

// Load reads filename as HCL, falling back to Default() if the file does
// not exist. Zero-valued fields in a present file are filled from Default().
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("config: failed to parse %s: %s", filename, diags.Error())
	}

	cfg := Default()
	diags = gohcl.DecodeBody(file.Body, nil, cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("config: failed to decode %s: %s", filename, diags.Error())
	}

	defaults := Default()
	if cfg.Timing.HeartbeatIntervalSeconds == 0 {
		cfg.Timing.HeartbeatIntervalSeconds = defaults.Timing.HeartbeatIntervalSeconds
	}
	if cfg.Timing.ArrivalGraceMillis == 0 {
		cfg.Timing.ArrivalGraceMillis = defaults.Timing.ArrivalGraceMillis
	}
	if cfg.Timing.DisconnectGraceSocketSeconds == 0 {
		cfg.Timing.DisconnectGraceSocketSeconds = defaults.Timing.DisconnectGraceSocketSeconds
	}
	if cfg.Timing.TurnTimeoutSeconds == 0 {
		cfg.Timing.TurnTimeoutSeconds = defaults.Timing.TurnTimeoutSeconds
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}

	return cfg, nil
}

// Resolve converts every HCL timing field into a time.Duration.
func (c *Config) Resolve() Resolved {
	return Resolved{
		HeartbeatInterval:     time.Duration(c.Timing.HeartbeatIntervalSeconds) * time.Second,
		ArrivalGrace:          time.Duration(c.Timing.ArrivalGraceMillis) * time.Millisecond,
		DisconnectGraceSocket: time.Duration(c.Timing.DisconnectGraceSocketSeconds) * time.Second,
		TurnTimeout:           time.Duration(c.Timing.TurnTimeoutSeconds) * time.Second,
		LogLevel:              c.Log.Level,
	}
}
