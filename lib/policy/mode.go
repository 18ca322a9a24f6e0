// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"sync"

	"github.com/sensormux/sensord/lib/schema"
	"github.com/sensormux/sensord/lib/sensorerr"
)

// ModeTransitionHooks are the side effects a transition must perform
// before it becomes visible. The service implements these (adapting its
// connection holder and dispatch state); ModeMachine itself only
// sequences them.
type ModeTransitionHooks interface {
	// DisableAllSensors and EnableAllSensors call through to the HAL.
	DisableAllSensors() error
	EnableAllSensors() error

	// PauseDirectChannels and ResumeDirectChannels apply the
	// restricted-mode pause/resume backup to every direct channel.
	PauseDirectChannels()
	ResumeDirectChannels()

	// SetHALMode calls hal.set_mode. For HalBypassReplayInjection the
	// implementation must skip the HAL write entirely.
	SetHALMode(mode schema.OperatingModeKind) error
}

// ModeMachine is the Operating Mode State Machine. It
// holds the current mode and performs the side effects each legal
// transition requires, in a fixed order, returning
// InvalidOperation for any transition not in the table.
type ModeMachine struct {
	mu        sync.Mutex
	mode      schema.OperatingMode
	userBuild bool
	hooks     ModeTransitionHooks
}

// NewModeMachine returns a ModeMachine starting in Normal mode.
// userBuild, when true, rejects ReplayDataInjection and
// HalBypassReplayInjection.
func NewModeMachine(hooks ModeTransitionHooks, userBuild bool) *ModeMachine {
	return &ModeMachine{mode: schema.Normal(), hooks: hooks, userBuild: userBuild}
}

// Current returns the active mode.
func (m *ModeMachine) Current() schema.OperatingMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// TransitionTo attempts to move to target, running its required side
// effects. allowlist is only consulted for Restricted and the
// injection modes.
func (m *ModeMachine) TransitionTo(target schema.OperatingModeKind, allowlist []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.mode.Kind
	if from == target {
		return nil
	}

	switch {
	case from == schema.ModeNormal && target == schema.ModeRestricted:
		if err := m.hooks.DisableAllSensors(); err != nil {
			return sensorerr.Wrap(sensorerr.TransactionFailed, "policy.transition", "disable all sensors", err)
		}
		m.hooks.PauseDirectChannels()
		m.mode = schema.OperatingMode{Kind: schema.ModeRestricted, Allowlist: allowlist}
		return nil

	case from == schema.ModeRestricted && target == schema.ModeNormal:
		if err := m.hooks.EnableAllSensors(); err != nil {
			return sensorerr.Wrap(sensorerr.TransactionFailed, "policy.transition", "enable all sensors", err)
		}
		m.hooks.ResumeDirectChannels()
		m.mode = schema.Normal()
		return nil

	case from == schema.ModeNormal && target == schema.ModeDataInjection:
		if err := m.hooks.SetHALMode(schema.ModeDataInjection); err != nil {
			return sensorerr.Wrap(sensorerr.TransactionFailed, "policy.transition", "hal set_mode(data_injection) failed, reverting", err)
		}
		m.mode = schema.OperatingMode{Kind: schema.ModeDataInjection, Allowlist: allowlist}
		return nil

	case from == schema.ModeNormal && target == schema.ModeReplayDataInjection:
		if m.userBuild {
			return sensorerr.New(sensorerr.PermissionDenied, "policy.transition", "replay data injection rejected on user builds")
		}
		if err := m.hooks.SetHALMode(schema.ModeReplayDataInjection); err != nil {
			return sensorerr.Wrap(sensorerr.TransactionFailed, "policy.transition", "hal set_mode(replay_data_injection) failed, reverting", err)
		}
		m.mode = schema.OperatingMode{Kind: schema.ModeReplayDataInjection, Allowlist: allowlist}
		return nil

	case from == schema.ModeNormal && target == schema.ModeHalBypassReplayInjection:
		if m.userBuild {
			return sensorerr.New(sensorerr.PermissionDenied, "policy.transition", "hal-bypass replay injection rejected on user builds")
		}
		// HAL_BYPASS performs no HAL write.
		m.mode = schema.OperatingMode{Kind: schema.ModeHalBypassReplayInjection, Allowlist: allowlist}
		return nil

	case m.mode.IsInjection() && target == schema.ModeNormal:
		if err := m.hooks.SetHALMode(schema.ModeNormal); err != nil {
			return sensorerr.Wrap(sensorerr.TransactionFailed, "policy.transition", "hal set_mode(normal) failed", err)
		}
		if err := m.hooks.EnableAllSensors(); err != nil {
			return sensorerr.Wrap(sensorerr.TransactionFailed, "policy.transition", "enable all sensors", err)
		}
		m.mode = schema.Normal()
		return nil

	default:
		return sensorerr.New(sensorerr.InvalidOperation, "policy.transition",
			"no transition from "+from.String()+" to "+target.String())
	}
}

// AllowsNewConnection reports whether a new event connection for
// packageName may be created under the current mode.
func (m *ModeMachine) AllowsNewConnection(packageName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode.Allows(packageName)
}
