// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for sensord.
// Configuration is loaded from a single file specified by either the
// SENSORD_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery, and
// no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults are stricter: the
// registration ring is larger and UserBuild is set, locking out the
// replay and HAL-bypass injection modes. Boolean policy fields are always
// taken from the override section, so in production the automotive
// limited-axes sensor family and the head-tracker test override are off
// unless the production section itself turns them on.
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${SENSORD_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
// Key exports:
//
//   - [Config] -- master struct with Paths, Sockets, Dispatch, Policy
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other sensord packages.
package config
