// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development and emulator builds.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production device builds.
	Production Environment = "production"
)

// Config is the master configuration for sensord.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Sockets configures the Unix sockets sensord listens on.
	Sockets SocketsConfig `yaml:"sockets"`

	// Dispatch configures the producer thread and wakelock arbitration.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Policy configures access policy and operating-mode defaults.
	Policy PolicyConfig `yaml:"policy"`

	// Development, Staging, Production hold per-environment overrides
	// applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths    *PathsConfig    `yaml:"paths,omitempty"`
	Sockets  *SocketsConfig  `yaml:"sockets,omitempty"`
	Dispatch *DispatchConfig `yaml:"dispatch,omitempty"`
	Policy   *PolicyConfig   `yaml:"policy,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for sensord's persisted state.
	Root string `yaml:"root"`

	// State is where the HMAC identity key and any other persisted
	// state lives. Defaults under Root.
	State string `yaml:"state"`
}

// SocketsConfig configures the Unix sockets sensord exposes.
type SocketsConfig struct {
	// Event is the socket path clients connect to for subscriptions
	// and event delivery (lib/service EventServer).
	Event string `yaml:"event"`

	// Control is the socket path the sensordctl shell command surface
	// connects to (set-uid-state, restrict-ht, ...).
	Control string `yaml:"control"`
}

// DispatchConfig configures the producer thread.
type DispatchConfig struct {
	// BufferEvents is the maximum number of hardware events requested
	// per HAL poll call before virtual-sensor expansion headroom is
	// subtracted.
	BufferEvents int `yaml:"buffer_events"`

	// AckTimeout bounds how long the ack-receiver waits for a client to
	// acknowledge a wake-up event before force-releasing the wakelock.
	// Default 5s.
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// SchedulingPriority is the OS thread priority requested for the
	// dispatch thread once started. Values follow POSIX SCHED_FIFO priority
	// ranges; 0 disables the elevation attempt (useful in containers
	// without CAP_SYS_NICE).
	SchedulingPriority int `yaml:"scheduling_priority"`

	// RegistrationRingSize bounds the forensic dump ring.
	RegistrationRingSize int `yaml:"registration_ring_size"`
}

// PolicyConfig configures access policy and operating-mode defaults.
type PolicyConfig struct {
	// Automotive enables synthesis of the limited-axes IMU sensor
	// family alongside the standard virtual sensors.
	Automotive bool `yaml:"automotive"`

	// HeadTrackerTestOverride lifts the system/audio-server-only
	// restriction on head-tracker sensors. Only
	// meaningful on non-production builds; sensordctl's restrict-ht /
	// unrestrict-ht commands flip this at runtime.
	HeadTrackerTestOverride bool `yaml:"head_tracker_test_override"`

	// MicToggleRateCapHz bounds the effective sampling rate applied
	// while the microphone-toggle privacy cap is engaged. A zero value disables mic capping.
	MicToggleRateCapHz float64 `yaml:"mic_toggle_rate_cap_hz"`

	// UserBuild disables the replay and HAL-bypass data-injection
	// modes, which are never available on user-build images.
	UserBuild bool `yaml:"user_build"`
}

// Default returns the default configuration. These defaults give every
// field a sensible zero-value; they are not a fallback for a missing
// config file; the config file is required.
func Default() *Config {
	homeDirectory, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDirectory, ".cache", "sensord")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: filepath.Join(defaultRoot, "state"),
		},
		Sockets: SocketsConfig{
			Event:   "/run/sensord/event.sock",
			Control: "/run/sensord/control.sock",
		},
		Dispatch: DispatchConfig{
			BufferEvents:         256,
			AckTimeout:           5 * time.Second,
			SchedulingPriority:   0,
			RegistrationRingSize: 256,
		},
		Policy: PolicyConfig{
			Automotive:              false,
			HeadTrackerTestOverride: false,
			MicToggleRateCapHz:      0,
			UserBuild:               false,
		},
	}
}

// Load loads configuration from the SENSORD_CONFIG environment variable.
// This is the only way to load configuration without an explicit path.
// There is no fallback: if SENSORD_CONFIG is not set, this fails. This
// ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("SENSORD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SENSORD_CONFIG environment variable not set; " +
			"set it to the path of your sensord.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			// Production defaults: larger forensic ring, injection modes
			// locked down even if the file forgot to say so.
			overrides = &ConfigOverrides{
				Dispatch: &DispatchConfig{RegistrationRingSize: 1024},
				Policy:   &PolicyConfig{UserBuild: true},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
	}

	if overrides.Sockets != nil {
		if overrides.Sockets.Event != "" {
			c.Sockets.Event = overrides.Sockets.Event
		}
		if overrides.Sockets.Control != "" {
			c.Sockets.Control = overrides.Sockets.Control
		}
	}

	if overrides.Dispatch != nil {
		if overrides.Dispatch.BufferEvents != 0 {
			c.Dispatch.BufferEvents = overrides.Dispatch.BufferEvents
		}
		if overrides.Dispatch.AckTimeout != 0 {
			c.Dispatch.AckTimeout = overrides.Dispatch.AckTimeout
		}
		if overrides.Dispatch.SchedulingPriority != 0 {
			c.Dispatch.SchedulingPriority = overrides.Dispatch.SchedulingPriority
		}
		if overrides.Dispatch.RegistrationRingSize != 0 {
			c.Dispatch.RegistrationRingSize = overrides.Dispatch.RegistrationRingSize
		}
	}

	if overrides.Policy != nil {
		// Booleans are always applied from overrides; there is no
		// "unset" sentinel for bool fields in YAML.
		c.Policy.Automotive = overrides.Policy.Automotive
		c.Policy.HeadTrackerTestOverride = overrides.Policy.HeadTrackerTestOverride
		c.Policy.UserBuild = overrides.Policy.UserBuild
		if overrides.Policy.MicToggleRateCapHz != 0 {
			c.Policy.MicToggleRateCapHz = overrides.Policy.MicToggleRateCapHz
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"SENSORD_ROOT": c.Paths.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["SENSORD_ROOT"] = c.Paths.Root
	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Sockets.Event = expandVars(c.Sockets.Event, vars)
	c.Sockets.Control = expandVars(c.Sockets.Control, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Sockets.Event == "" {
		errs = append(errs, fmt.Errorf("sockets.event is required"))
	}
	if c.Sockets.Control == "" {
		errs = append(errs, fmt.Errorf("sockets.control is required"))
	}
	if c.Dispatch.BufferEvents <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.buffer_events must be positive"))
	}
	if c.Dispatch.AckTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.ack_timeout must be positive"))
	}
	if c.Dispatch.RegistrationRingSize <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.registration_ring_size must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.State} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
