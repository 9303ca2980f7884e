// Package config loads the sonar service configuration from JSON. Every
// field is optional: the Get* accessors fall back to the driver defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/sonar/internal/sonar"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/sonar.defaults.json"

// SonarConfig is the root configuration document.
type SonarConfig struct {
	// Driver timing and geometry
	TickFrequencyHz   *float64 `json:"tick_frequency_hz,omitempty"`
	PreTriggerDelay   *string  `json:"pre_trigger_delay,omitempty"` // duration string like "5ms"
	PulseWidth        *string  `json:"pulse_width,omitempty"`
	SampleInterval    *string  `json:"sample_interval,omitempty"`
	StartupDelay      *string  `json:"startup_delay,omitempty"`
	WatchdogThreshold *int     `json:"watchdog_threshold,omitempty"`
	SpeedOfSound      *float64 `json:"speed_of_sound_mps,omitempty"`
	MinDistance       *float64 `json:"min_distance_m,omitempty"`
	MaxDistance       *float64 `json:"max_distance_m,omitempty"`
	SensorType        *string  `json:"sensor_type,omitempty"`

	Hardware *HardwareConfig `json:"hardware,omitempty"`
	Serial   *SerialConfig   `json:"serial,omitempty"`
	MQTT     *MQTTConfig     `json:"mqtt,omitempty"`
}

// HardwareConfig selects the GPIO backend and the pins it drives.
type HardwareConfig struct {
	Backend       string `json:"backend,omitempty"`
	Chip          string `json:"chip,omitempty"`
	TriggerOffset int    `json:"trigger_offset,omitempty"`
	EchoOffset    int    `json:"echo_offset,omitempty"`
	TriggerPin    string `json:"trigger_pin,omitempty"`
	EchoPin       string `json:"echo_pin,omitempty"`
	LockMemory    bool   `json:"lock_memory,omitempty"`
}

// SerialConfig enables the serial telemetry link when Port is set.
type SerialConfig struct {
	Port     string `json:"port,omitempty"`
	BaudRate int    `json:"baud_rate,omitempty"`
	DataBits int    `json:"data_bits,omitempty"`
	StopBits int    `json:"stop_bits,omitempty"`
	Parity   string `json:"parity,omitempty"`
}

// MQTTConfig enables MQTT publication when Broker is set.
type MQTTConfig struct {
	Broker   string `json:"broker,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Topic    string `json:"topic,omitempty"`
	QoS      byte   `json:"qos,omitempty"`
	Retain   bool   `json:"retain,omitempty"`
}

// LoadSonarConfig loads a SonarConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
// Fields omitted from the JSON file fall back to defaults, so
// partial configs are safe.
func LoadSonarConfig(path string) (*SonarConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &SonarConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that set values parse and that the resulting driver
// configuration is usable.
func (c *SonarConfig) Validate() error {
	for name, v := range map[string]*string{
		"pre_trigger_delay": c.PreTriggerDelay,
		"pulse_width":       c.PulseWidth,
		"sample_interval":   c.SampleInterval,
		"startup_delay":     c.StartupDelay,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	if c.MQTT != nil && c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return c.ToDriverConfig().Validate()
}

// ToDriverConfig builds the driver configuration, filling unset fields from
// sonar.DefaultConfig.
func (c *SonarConfig) ToDriverConfig() sonar.Config {
	return sonar.Config{
		TickFrequency:     c.GetTickFrequency(),
		PreTriggerDelay:   c.GetPreTriggerDelay(),
		PulseWidth:        c.GetPulseWidth(),
		SampleInterval:    c.GetSampleInterval(),
		StartupDelay:      c.GetStartupDelay(),
		WatchdogThreshold: c.GetWatchdogThreshold(),
		SpeedOfSound:      c.GetSpeedOfSound(),
		MinDistance:       c.GetMinDistance(),
		MaxDistance:       c.GetMaxDistance(),
		SensorType:        c.GetSensorType(),
	}
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetTickFrequency returns tick_frequency_hz or the default.
func (c *SonarConfig) GetTickFrequency() float64 {
	if c.TickFrequencyHz == nil {
		return sonar.DefaultConfig().TickFrequency
	}
	return *c.TickFrequencyHz
}

// GetPreTriggerDelay returns pre_trigger_delay or the default.
func (c *SonarConfig) GetPreTriggerDelay() time.Duration {
	return durationOr(c.PreTriggerDelay, sonar.DefaultConfig().PreTriggerDelay)
}

// GetPulseWidth returns pulse_width or the default.
func (c *SonarConfig) GetPulseWidth() time.Duration {
	return durationOr(c.PulseWidth, sonar.DefaultConfig().PulseWidth)
}

// GetSampleInterval returns sample_interval or the default.
func (c *SonarConfig) GetSampleInterval() time.Duration {
	return durationOr(c.SampleInterval, sonar.DefaultConfig().SampleInterval)
}

// GetStartupDelay returns startup_delay or the default.
func (c *SonarConfig) GetStartupDelay() time.Duration {
	return durationOr(c.StartupDelay, sonar.DefaultConfig().StartupDelay)
}

// GetWatchdogThreshold returns watchdog_threshold or the default.
func (c *SonarConfig) GetWatchdogThreshold() int {
	if c.WatchdogThreshold == nil {
		return sonar.DefaultConfig().WatchdogThreshold
	}
	return *c.WatchdogThreshold
}

// GetSpeedOfSound returns speed_of_sound_mps or the default.
func (c *SonarConfig) GetSpeedOfSound() float64 {
	if c.SpeedOfSound == nil {
		return sonar.DefaultConfig().SpeedOfSound
	}
	return *c.SpeedOfSound
}

// GetMinDistance returns min_distance_m or the default.
func (c *SonarConfig) GetMinDistance() float64 {
	if c.MinDistance == nil {
		return sonar.DefaultConfig().MinDistance
	}
	return *c.MinDistance
}

// GetMaxDistance returns max_distance_m or the default.
func (c *SonarConfig) GetMaxDistance() float64 {
	if c.MaxDistance == nil {
		return sonar.DefaultConfig().MaxDistance
	}
	return *c.MaxDistance
}

// GetSensorType returns sensor_type or the default.
func (c *SonarConfig) GetSensorType() sonar.SensorType {
	if c.SensorType == nil || *c.SensorType == "" {
		return sonar.DefaultConfig().SensorType
	}
	return sonar.SensorType(*c.SensorType)
}

// GetHardware returns the hardware section, defaulting to the simulator.
func (c *SonarConfig) GetHardware() HardwareConfig {
	if c.Hardware == nil {
		return HardwareConfig{Backend: "sim"}
	}
	h := *c.Hardware
	if h.Backend == "" {
		h.Backend = "sim"
	}
	return h
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *SonarConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadSonarConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}
