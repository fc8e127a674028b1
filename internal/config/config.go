package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps every YAML file the program reads.
const MaxConfigFileBytes = 1 << 20

// StepperConfig binds one actuator to a step/dir stepper output.
type StepperConfig struct {
	Actuator      string  `yaml:"actuator"`       // actuator key from the manifest
	StepPin       int     `yaml:"step_pin"`
	DirPin        int     `yaml:"dir_pin"`
	EnablePin     int     `yaml:"enable_pin"`     // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev   int     `yaml:"steps_per_rev"`
	Microstepping int     `yaml:"microstepping"`
	StepsPerUnit  float64 `yaml:"steps_per_unit"` // steps per degree (rotary) or per unit of travel (linear)
	StepDelayUs   int     `yaml:"step_delay_us"`  // half-cycle of the STEP pulse
}

// EditorConfig tunes the group editor and its drag and drop.
type EditorConfig struct {
	DefaultGroup    string  `yaml:"default_group"`    // group for actuators without a grouping key
	ScrollThreshold float64 `yaml:"scroll_threshold"` // distance from the viewport edge that scrolls while dragging
	ScrollSpeed     float64 `yaml:"scroll_speed"`     // scroll speed while dragging, per second
}

// DefaultsConfig contains runtime parameters.
type DefaultsConfig struct {
	TickMs     int  `yaml:"tick_ms"`     // control loop period
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Manifest    string          `yaml:"manifest"`     // actuator manifest (YAML)
	PresetsFile string          `yaml:"presets_file"` // where saved presets are kept
	Editor      EditorConfig    `yaml:"editor"`
	Outputs     []StepperConfig `yaml:"outputs"`
	Defaults    DefaultsConfig  `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files directly inside a directory
// named "configs", without "..".
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path %q must not contain \"..\"", path)
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if parent := filepath.Base(filepath.Dir(clean)); parent != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// ReadLimited reads a file, failing when it exceeds MaxConfigFileBytes.
func ReadLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("%s is larger than %d bytes", path, MaxConfigFileBytes)
	}
	return data, nil
}

// Load reads a YAML file and returns the configuration with defaults
// applied.
func Load(path string) (*Config, error) {
	data, err := ReadLimited(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if cfg.Manifest == "" {
		cfg.Manifest = filepath.Join("configs", "actuators.yaml")
	}
	if cfg.PresetsFile == "" {
		cfg.PresetsFile = "presets.yaml"
	}
	if cfg.Editor.DefaultGroup == "" {
		cfg.Editor.DefaultGroup = "Default"
	}
	if cfg.Editor.ScrollThreshold <= 0 {
		cfg.Editor.ScrollThreshold = 1
	}
	if cfg.Editor.ScrollSpeed <= 0 {
		cfg.Editor.ScrollSpeed = 40
	}
	if cfg.Defaults.TickMs <= 0 {
		cfg.Defaults.TickMs = 20
	}
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}

	seen := make(map[string]bool)
	for i, out := range cfg.Outputs {
		if out.Actuator == "" {
			return nil, fmt.Errorf("outputs[%d].actuator is required", i)
		}
		if seen[out.Actuator] {
			return nil, fmt.Errorf("outputs[%d]: actuator %q bound twice", i, out.Actuator)
		}
		seen[out.Actuator] = true
		if out.StepPin <= 0 || out.DirPin <= 0 {
			return nil, fmt.Errorf("outputs[%d]: step_pin and dir_pin are required", i)
		}
		if out.StepsPerUnit == 0 {
			return nil, fmt.Errorf("outputs[%d].steps_per_unit must be non-zero", i)
		}
		if out.StepDelayUs <= 0 {
			cfg.Outputs[i].StepDelayUs = 500
		}
	}

	return &cfg, nil
}

// Tick returns the control loop period.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Defaults.TickMs) * time.Millisecond
}

// StepDelay returns the STEP half-cycle of an output.
func (s StepperConfig) StepDelay() time.Duration {
	return time.Duration(s.StepDelayUs) * time.Microsecond
}
