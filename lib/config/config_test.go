// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() config failed validation: %v", err)
	}
}

func TestLoadFileBasic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensord.yaml")
	contents := `
environment: development
paths:
  root: /tmp/sensord-test
  state: /tmp/sensord-test/state
sockets:
  event: /tmp/sensord-test/event.sock
  control: /tmp/sensord-test/control.sock
dispatch:
  buffer_events: 128
  ack_timeout: 5s
  registration_ring_size: 64
policy:
  automotive: true
`
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Paths.Root != "/tmp/sensord-test" {
		t.Errorf("Paths.Root = %q, want /tmp/sensord-test", cfg.Paths.Root)
	}
	if cfg.Dispatch.BufferEvents != 128 {
		t.Errorf("Dispatch.BufferEvents = %d, want 128", cfg.Dispatch.BufferEvents)
	}
	if !cfg.Policy.Automotive {
		t.Error("Policy.Automotive = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("LoadFile should fail for a missing file")
	}
}

func TestLoadEnvVarRequired(t *testing.T) {
	t.Setenv("SENSORD_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load should fail when SENSORD_CONFIG is unset")
	}
}

func TestProductionOverridesApplyDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensord.yaml")
	contents := `
environment: production
paths:
  root: /var/lib/sensord
  state: /var/lib/sensord/state
sockets:
  event: /run/sensord/event.sock
  control: /run/sensord/control.sock
dispatch:
  buffer_events: 256
  ack_timeout: 5s
  registration_ring_size: 256
`
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Dispatch.RegistrationRingSize != 1024 {
		t.Errorf("RegistrationRingSize = %d, want 1024 (production default)", cfg.Dispatch.RegistrationRingSize)
	}
	if !cfg.Policy.UserBuild {
		t.Error("Policy.UserBuild should default true in production")
	}
}

func TestEnvironmentSpecificOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensord.yaml")
	contents := `
environment: staging
paths:
  root: /tmp/base
  state: /tmp/base/state
sockets:
  event: /tmp/base/event.sock
  control: /tmp/base/control.sock
dispatch:
  buffer_events: 256
  ack_timeout: 5s
  registration_ring_size: 256
staging:
  dispatch:
    buffer_events: 512
`
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Dispatch.BufferEvents != 512 {
		t.Errorf("BufferEvents = %d, want 512 (staging override)", cfg.Dispatch.BufferEvents)
	}
}

func TestVariableExpansion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensord.yaml")
	contents := `
environment: development
paths:
  root: ${SENSORD_TEST_ROOT:-/tmp/fallback}
  state: ${SENSORD_ROOT}/state
sockets:
  event: /tmp/event.sock
  control: /tmp/control.sock
dispatch:
  buffer_events: 256
  ack_timeout: 5s
  registration_ring_size: 256
`
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Paths.Root != "/tmp/fallback" {
		t.Errorf("Paths.Root = %q, want /tmp/fallback (default expansion)", cfg.Paths.Root)
	}
	if cfg.Paths.State != "/tmp/fallback/state" {
		t.Errorf("Paths.State = %q, want /tmp/fallback/state", cfg.Paths.State)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate should reject an empty config")
	}
}

func TestEnsurePaths(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	cfg := Default()
	cfg.Paths.Root = root
	cfg.Paths.State = filepath.Join(root, "state")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}

	for _, dir := range []string{cfg.Paths.Root, cfg.Paths.State} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("directory %s was not created", dir)
		}
	}
}
