// Package model defines the configuration, tunable-parameter, and snapshot
// structures shared across the rig controller.
package model

import "fmt"

const (
	ConfigSchemaVersion = 1
	ConfigFileType      = "rig_config"
)

type Config struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`

	Rig      RigConfig      `yaml:"rig"`
	Serial   SerialConfig   `yaml:"serial"`
	Actuator ActuatorConfig `yaml:"actuator"`
	Defaults Tunables       `yaml:"defaults"`
	Daemon   DaemonConfig   `yaml:"daemon"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type RigConfig struct {
	Name               string `yaml:"name"`
	Bench              string `yaml:"bench"`
	TickMs             int    `yaml:"tick_ms"`
	WeightEmitMs       int    `yaml:"weight_emit_ms"`
	LeverDebounceTicks int    `yaml:"lever_debounce_ticks"`
}

type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type ActuatorConfig struct {
	TotalTravelMs  int `yaml:"total_travel_ms"`
	SafetyMarginMs int `yaml:"safety_margin_ms"`
}

// Tunables is the mutable parameter set the host adjusts at runtime. The
// `defaults` config section seeds it at boot; the same shape travels in
// status snapshots.
type Tunables struct {
	RewardDelayMs      int     `yaml:"reward_delay_ms" json:"reward_delay_ms"`
	RewardDurationMs   int     `yaml:"reward_duration_ms" json:"reward_duration_ms"`
	RewardBufferMs     int     `yaml:"reward_buffer_ms" json:"reward_buffer_ms"`
	FixDurationMs      int     `yaml:"fix_duration_ms" json:"fix_duration_ms"`
	FixDelayMs         int     `yaml:"fix_delay_ms" json:"fix_delay_ms"`
	FixBufferMs        int     `yaml:"fix_buffer_ms" json:"fix_buffer_ms"`
	StruggleThresholdG float64 `yaml:"struggle_threshold_g" json:"struggle_threshold_g"`
	AllowFreeReward    bool    `yaml:"allow_free_reward" json:"allow_free_reward"`
	HabituationMode    bool    `yaml:"habituation_mode" json:"habituation_mode"`
}

type DaemonConfig struct {
	SocketName         string `yaml:"socket_name"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultTunables returns the boot parameter set. The values must agree with
// what the host GUI assumes before it pushes its own.
func DefaultTunables() Tunables {
	return Tunables{
		RewardDelayMs:      1000,
		RewardDurationMs:   500,
		RewardBufferMs:     1000,
		FixDurationMs:      7000,
		FixDelayMs:         1000,
		FixBufferMs:        500,
		StruggleThresholdG: 350.0,
		AllowFreeReward:    true,
		HabituationMode:    false,
	}
}

func DefaultConfig() *Config {
	return &Config{
		SchemaVersion: ConfigSchemaVersion,
		FileType:      ConfigFileType,
		Rig: RigConfig{
			Name:               "rig",
			Bench:              "sim",
			TickMs:             10,
			WeightEmitMs:       100,
			LeverDebounceTicks: 0,
		},
		Serial: SerialConfig{
			Device: "/dev/ttyACM0",
			Baud:   9600,
		},
		Actuator: ActuatorConfig{
			TotalTravelMs:  5500,
			SafetyMarginMs: 500,
		},
		Defaults: DefaultTunables(),
		Daemon: DaemonConfig{
			SocketName:         "headfixd.sock",
			ShutdownTimeoutSec: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func (c *Config) Validate() error {
	if c.SchemaVersion < 1 {
		return fmt.Errorf("invalid schema_version %d (must be >= 1)", c.SchemaVersion)
	}
	if c.SchemaVersion > ConfigSchemaVersion {
		return fmt.Errorf("unsupported schema_version %d (max supported: %d)", c.SchemaVersion, ConfigSchemaVersion)
	}
	if c.FileType != ConfigFileType {
		return fmt.Errorf("unexpected file_type: %q", c.FileType)
	}
	if c.Rig.Bench == "" {
		return fmt.Errorf("rig.bench must be set")
	}
	if c.Rig.TickMs <= 0 {
		return fmt.Errorf("rig.tick_ms must be positive, got %d", c.Rig.TickMs)
	}
	if c.Rig.WeightEmitMs < c.Rig.TickMs {
		return fmt.Errorf("rig.weight_emit_ms (%d) must be >= rig.tick_ms (%d)", c.Rig.WeightEmitMs, c.Rig.TickMs)
	}
	if c.Rig.LeverDebounceTicks < 0 {
		return fmt.Errorf("rig.lever_debounce_ticks must not be negative, got %d", c.Rig.LeverDebounceTicks)
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Actuator.TotalTravelMs <= 0 {
		return fmt.Errorf("actuator.total_travel_ms must be positive, got %d", c.Actuator.TotalTravelMs)
	}
	if c.Actuator.SafetyMarginMs < 0 {
		return fmt.Errorf("actuator.safety_margin_ms must not be negative, got %d", c.Actuator.SafetyMarginMs)
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	if c.Daemon.ShutdownTimeoutSec <= 0 {
		return fmt.Errorf("daemon.shutdown_timeout_sec must be positive, got %d", c.Daemon.ShutdownTimeoutSec)
	}
	return nil
}

func (t *Tunables) Validate() error {
	for name, v := range map[string]int{
		"reward_delay_ms":    t.RewardDelayMs,
		"reward_duration_ms": t.RewardDurationMs,
		"reward_buffer_ms":   t.RewardBufferMs,
		"fix_duration_ms":    t.FixDurationMs,
		"fix_delay_ms":       t.FixDelayMs,
		"fix_buffer_ms":      t.FixBufferMs,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	if t.StruggleThresholdG < 0 {
		return fmt.Errorf("struggle_threshold_g must not be negative, got %g", t.StruggleThresholdG)
	}
	return nil
}
