// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"github.com/sensormux/sensord/lib/schema"
	"github.com/sensormux/sensord/lib/sensorerr"
)

// SystemUID is the privileged UID allowed unrestricted sensor access.
const SystemUID int32 = 1000

// TargetSDKP is the targetSdkVersion value for Android P, the cutoff
// at or below which legacy step sensors are exempt from permission checks.
const TargetSDKP = 28

// TargetSDKS is the targetSdkVersion value for Android S, the cutoff
// below which the high-sampling-rate permission is not required.
const TargetSDKS = 31

// HighSamplingRatePermission is the permission that exempts a package
// from the default sampling-rate cap.
const HighSamplingRatePermission = "android.permission.HIGH_SAMPLING_RATE_SENSORS"

// defaultRateCapPeriodNs is the sampling period floor applied to
// packages that lack HighSamplingRatePermission and target S or
// later: 200 Hz.
const defaultRateCapPeriodNs int64 = 5_000_000

// Access evaluates the access-policy questions for one
// calling package. It holds no mutable state; embedders construct one
// per call or keep a shared instance (PackageManager does the actual
// lookups).
type Access struct {
	pm                      PackageManager
	ops                     AppOpChecker
	headTrackerTestOverride func() bool
}

// NewAccess returns an Access evaluator backed by pm and ops.
// headTrackerTestOverride, when non-nil, is consulted for item 1 of
// can_access; pass nil to always enforce the restriction.
func NewAccess(pm PackageManager, ops AppOpChecker, headTrackerTestOverride func() bool) *Access {
	return &Access{pm: pm, ops: ops, headTrackerTestOverride: headTrackerTestOverride}
}

// CanAccess implements can_access(sensor, op_package) -> bool.
func (a *Access) CanAccess(sensor schema.Sensor, opPackage string, callerUID int32) (bool, error) {
	if sensor.Type == schema.TypeHeadTracker {
		// audioServerUID is Android's AID_AUDIOSERVER.
		const audioServerUID int32 = 1041
		overridden := a.headTrackerTestOverride != nil && a.headTrackerTestOverride()
		if callerUID != SystemUID && callerUID != audioServerUID && !overridden {
			return false, nil
		}
	}

	if sensor.RequiredPermission == "" {
		return true, nil
	}

	if callerUID == SystemUID {
		return true, nil
	}

	if sensor.Type == schema.TypeStepCounter || sensor.Type == schema.TypeStepDetector {
		targetSDK, err := a.pm.GetTargetSDKVersion(opPackage)
		if err != nil {
			return false, sensorerr.Wrap(sensorerr.TransactionFailed, "policy.can_access", "target sdk lookup failed", err)
		}
		if targetSDK <= TargetSDKP {
			return true, nil
		}
	}

	// The permission itself is always required; the app-op is an
	// additional gate only for sensors that declare one.
	if !a.pm.HasPermission(sensor.RequiredPermission, opPackage) {
		return false, nil
	}

	if sensor.RequiredAppOp != "" {
		if a.ops == nil || !a.ops.CheckOp(sensor.RequiredAppOp, opPackage) {
			return false, nil
		}
	}

	return true, nil
}

// IsRateCappedByPermission implements is_rate_capped_by_permission:
// an app's effective sampling rate is capped unless it
// holds HighSamplingRatePermission or targets pre-S.
func (a *Access) IsRateCappedByPermission(opPackage string) (bool, error) {
	targetSDK, err := a.pm.GetTargetSDKVersion(opPackage)
	if err != nil {
		return false, sensorerr.Wrap(sensorerr.TransactionFailed, "policy.is_rate_capped_by_permission", "target sdk lookup failed", err)
	}
	if targetSDK < TargetSDKS {
		return false, nil
	}
	if a.pm.HasPermission(HighSamplingRatePermission, opPackage) {
		return false, nil
	}
	return true, nil
}

// AdjustSamplingPeriod implements adjust_sampling_period(period_ns,
// op_package): requests faster than the cap are raised to
// it. A debuggable package instead gets PermissionDenied, surfacing
// the misuse rather than silently clamping it.
func (a *Access) AdjustSamplingPeriod(periodNs int64, opPackage string) (int64, error) {
	capped, err := a.IsRateCappedByPermission(opPackage)
	if err != nil {
		return periodNs, err
	}
	if !capped || periodNs >= defaultRateCapPeriodNs {
		return periodNs, nil
	}
	if a.pm.IsPackageDebuggable(opPackage) {
		return periodNs, sensorerr.New(sensorerr.PermissionDenied, "policy.adjust_sampling_period",
			"requested sampling period faster than the permitted cap for "+opPackage)
	}
	return defaultRateCapPeriodNs, nil
}
