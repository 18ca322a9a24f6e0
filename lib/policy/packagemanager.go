// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "github.com/sensormux/sensord/lib/sensorerr"

// PackageManager is the package-manager collaborator: it
// answers the questions the access policy needs about a calling
// package without the policy package knowing how those answers are
// produced (a real implementation would talk to Android's
// PackageManagerService; a test implementation is a fixed map).
type PackageManager interface {
	// GetPackageUID returns the UID the named package runs as for the
	// given user.
	GetPackageUID(packageName string, userID int) (int32, error)

	// GetTargetSDKVersion returns the package's targetSdkVersion.
	GetTargetSDKVersion(packageName string) (int, error)

	// HasSystemFeature reports whether the device declares the named
	// system feature (e.g. automotive).
	HasSystemFeature(name string) bool

	// IsPackageDebuggable reports whether the package is debuggable,
	// used to decide whether a rate-cap violation is surfaced as an
	// error or silently clamped.
	IsPackageDebuggable(packageName string) bool

	// HasPermission reports whether the package holds the named
	// permission, runtime or install-time.
	HasPermission(permission string, packageName string) bool
}

// AppOpChecker evaluates a declared app-op for a package, mirroring
// Android's AppOpsManager.checkOp. Kept as a separate small interface
// since not every sensor declares an app-op.
type AppOpChecker interface {
	// CheckOp reports whether op is currently allowed for packageName.
	CheckOp(op string, packageName string) bool
}

// StaticPackageManager is a fixed, in-memory PackageManager for tests
// and for embedders that configure package facts up front rather than
// querying a live package service.
type StaticPackageManager struct {
	UIDs        map[string]int32
	TargetSDKs  map[string]int
	Features    map[string]bool
	Debuggable  map[string]bool
	Permissions map[string]bool // keyed "permission:packageName"
	AllowedOps  map[string]bool // keyed "op:packageName"
}

// NewStaticPackageManager returns an empty StaticPackageManager ready
// for its maps to be populated.
func NewStaticPackageManager() *StaticPackageManager {
	return &StaticPackageManager{
		UIDs:        make(map[string]int32),
		TargetSDKs:  make(map[string]int),
		Features:    make(map[string]bool),
		Debuggable:  make(map[string]bool),
		Permissions: make(map[string]bool),
		AllowedOps:  make(map[string]bool),
	}
}

func (m *StaticPackageManager) GetPackageUID(packageName string, userID int) (int32, error) {
	uid, ok := m.UIDs[packageName]
	if !ok {
		return 0, sensorerr.New(sensorerr.NameNotFound, "policy.package_manager", "unknown package "+packageName)
	}
	return uid, nil
}

func (m *StaticPackageManager) GetTargetSDKVersion(packageName string) (int, error) {
	return m.TargetSDKs[packageName], nil
}

func (m *StaticPackageManager) HasSystemFeature(name string) bool { return m.Features[name] }

func (m *StaticPackageManager) IsPackageDebuggable(packageName string) bool {
	return m.Debuggable[packageName]
}

func (m *StaticPackageManager) HasPermission(permission string, packageName string) bool {
	return m.Permissions[permission+":"+packageName]
}

func (m *StaticPackageManager) CheckOp(op string, packageName string) bool {
	return m.AllowedOps[op+":"+packageName]
}
