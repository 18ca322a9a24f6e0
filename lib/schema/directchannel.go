// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// DirectChannelRecord is the server-side bookkeeping for one client's
// shared-memory direct channel: a HAL-assigned channel token, the
// per-sensor rate levels configured against it, and two independently
// restorable backups of those rates (one for operating-mode
// pause/resume, one for the microphone-toggle privacy cap).
type DirectChannelRecord struct {
	ChannelHandleInHAL int32 `cbor:"channel_handle_in_hal"`

	// MemoryFD is the duplicated file descriptor backing the shared
	// memory region (ashmem-style). Duplicated at registration time
	// so the daemon owns its copy; closed on destroy.
	MemoryFD int `cbor:"-"`

	// MemorySize is the client-declared size of the shared memory
	// region, validated before the HAL is told about it.
	MemorySize int64 `cbor:"memory_size"`

	DeviceID int32 `cbor:"device_id"`

	// PerSensorRate maps sensor handle to the currently configured HAL
	// rate level.
	PerSensorRate map[Handle]int32 `cbor:"per_sensor_rate"`

	// PausedBackup holds rates saved when the channel is paused for
	// restricted mode, UID-idle, or sensor privacy. Nil when not
	// paused.
	PausedBackup map[Handle]int32 `cbor:"paused_backup,omitempty"`

	// MicCapBackup holds rates saved when the microphone-toggle cap
	// reduces a rate below its configured level. Nil when the cap is
	// not engaged for this channel. Independent of PausedBackup: both
	// may be active simultaneously, and each restores independently.
	MicCapBackup map[Handle]int32 `cbor:"mic_cap_backup,omitempty"`
}

// NewDirectChannelRecord returns an empty record for a freshly
// registered direct channel.
func NewDirectChannelRecord(channelHandle int32, deviceID int32) *DirectChannelRecord {
	return &DirectChannelRecord{
		ChannelHandleInHAL: channelHandle,
		DeviceID:           deviceID,
		PerSensorRate:      make(map[Handle]int32),
	}
}

// Paused reports whether mode-driven pause backup is currently active.
func (d *DirectChannelRecord) Paused() bool { return d.PausedBackup != nil }

// MicCapped reports whether the microphone-toggle cap backup is
// currently active.
func (d *DirectChannelRecord) MicCapped() bool { return d.MicCapBackup != nil }
