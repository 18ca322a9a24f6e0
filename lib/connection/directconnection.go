// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"sync"

	"github.com/sensormux/sensord/lib/schema"
	"github.com/sensormux/sensord/lib/sensorerr"
)

// DirectChannelHAL is the slice of the HAL contract a direct channel
// needs. For platform sensors (device_id == 0) the full hal.Adapter
// satisfies it; for runtime sensors the owning device's registered
// RuntimeSensorCallback does, so the channel code is identical either
// way.
type DirectChannelHAL interface {
	RegisterDirectChannel(memoryFD int, size int64) (channelHandle int32, err error)
	ConfigureDirectChannel(channel int32, sensor schema.Handle, rateLevel int32) error
	UnregisterDirectChannel(channel int32) error
}

// DirectConnection is one client's shared-memory direct channel: a HAL-assigned channel token plus the per-sensor rate levels
// configured against it and two independently restorable backups.
type DirectConnection struct {
	id          schema.ConnectionID
	packageName string
	deviceID    int32

	hal DirectChannelHAL

	mu     sync.Mutex
	record *schema.DirectChannelRecord
}

// NewDirectConnection registers memoryFD/size with the HAL and
// returns the resulting DirectConnection.
func NewDirectConnection(id schema.ConnectionID, packageName string, deviceID int32, memoryFD int, size int64, adapter DirectChannelHAL) (*DirectConnection, error) {
	channel, err := adapter.RegisterDirectChannel(memoryFD, size)
	if err != nil {
		return nil, sensorerr.Wrap(sensorerr.TransactionFailed, "connection.direct.register", "hal.register_direct_channel failed", err)
	}
	record := schema.NewDirectChannelRecord(channel, deviceID)
	record.MemoryFD = memoryFD
	record.MemorySize = size
	return &DirectConnection{id: id, packageName: packageName, deviceID: deviceID, hal: adapter, record: record}, nil
}

func (d *DirectConnection) ID() schema.ConnectionID { return d.id }
func (d *DirectConnection) Package() string         { return d.packageName }

// ConfigureRate sets or clears (rateLevel == 0) the direct-delivery
// rate for sensor on this channel.
func (d *DirectConnection) ConfigureRate(sensor schema.Handle, rateLevel int32) error {
	if err := d.hal.ConfigureDirectChannel(d.record.ChannelHandleInHAL, sensor, rateLevel); err != nil {
		return sensorerr.Wrap(sensorerr.TransactionFailed, "connection.direct.configure", "hal.configure_direct_channel failed", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if rateLevel == 0 {
		delete(d.record.PerSensorRate, sensor)
	} else {
		d.record.PerSensorRate[sensor] = rateLevel
	}
	return nil
}

// Pause backs up every currently configured rate and zeroes it on the
// HAL, for entering Restricted mode, a UID going idle, or sensor
// privacy engaging. A no-op if already paused.
func (d *DirectConnection) Pause() error {
	d.mu.Lock()
	if d.record.Paused() || len(d.record.PerSensorRate) == 0 {
		d.mu.Unlock()
		return nil
	}
	backup := make(map[schema.Handle]int32, len(d.record.PerSensorRate))
	for h, rate := range d.record.PerSensorRate {
		backup[h] = rate
	}
	d.mu.Unlock()

	for h := range backup {
		if err := d.hal.ConfigureDirectChannel(d.record.ChannelHandleInHAL, h, 0); err != nil {
			return sensorerr.Wrap(sensorerr.TransactionFailed, "connection.direct.pause", "hal.configure_direct_channel failed", err)
		}
	}

	d.mu.Lock()
	d.record.PausedBackup = backup
	d.record.PerSensorRate = make(map[schema.Handle]int32)
	d.mu.Unlock()
	return nil
}

// Resume restores rates saved by Pause. A no-op if not paused.
func (d *DirectConnection) Resume() error {
	d.mu.Lock()
	if !d.record.Paused() {
		d.mu.Unlock()
		return nil
	}
	backup := d.record.PausedBackup
	d.mu.Unlock()

	for h, rate := range backup {
		if err := d.hal.ConfigureDirectChannel(d.record.ChannelHandleInHAL, h, rate); err != nil {
			return sensorerr.Wrap(sensorerr.TransactionFailed, "connection.direct.resume", "hal.configure_direct_channel failed", err)
		}
	}

	d.mu.Lock()
	d.record.PerSensorRate = backup
	d.record.PausedBackup = nil
	d.mu.Unlock()
	return nil
}

// ApplyMicCap reduces every rate above capLevel to capLevel, backing
// up the originals. Independent of and composable with Pause/Resume:
// both backups may be active at once and each restores separately.
func (d *DirectConnection) ApplyMicCap(capLevel int32) error {
	d.mu.Lock()
	if d.record.MicCapped() {
		d.mu.Unlock()
		return nil
	}
	toReduce := make(map[schema.Handle]int32)
	for h, rate := range d.record.PerSensorRate {
		if rate > capLevel {
			toReduce[h] = rate
		}
	}
	d.mu.Unlock()

	if len(toReduce) == 0 {
		d.mu.Lock()
		d.record.MicCapBackup = map[schema.Handle]int32{}
		d.mu.Unlock()
		return nil
	}

	for h := range toReduce {
		if err := d.hal.ConfigureDirectChannel(d.record.ChannelHandleInHAL, h, capLevel); err != nil {
			return sensorerr.Wrap(sensorerr.TransactionFailed, "connection.direct.mic_cap", "hal.configure_direct_channel failed", err)
		}
	}

	d.mu.Lock()
	d.record.MicCapBackup = toReduce
	for h := range toReduce {
		d.record.PerSensorRate[h] = capLevel
	}
	d.mu.Unlock()
	return nil
}

// ReleaseMicCap restores rates saved by ApplyMicCap.
func (d *DirectConnection) ReleaseMicCap() error {
	d.mu.Lock()
	if !d.record.MicCapped() {
		d.mu.Unlock()
		return nil
	}
	backup := d.record.MicCapBackup
	d.mu.Unlock()

	for h, rate := range backup {
		if err := d.hal.ConfigureDirectChannel(d.record.ChannelHandleInHAL, h, rate); err != nil {
			return sensorerr.Wrap(sensorerr.TransactionFailed, "connection.direct.mic_cap_release", "hal.configure_direct_channel failed", err)
		}
	}

	d.mu.Lock()
	for h, rate := range backup {
		d.record.PerSensorRate[h] = rate
	}
	d.record.MicCapBackup = nil
	d.mu.Unlock()
	return nil
}

// DumpState returns a copy of the configured rates plus the two
// backup flags, for the diagnostic dump.
func (d *DirectConnection) DumpState() (rates map[schema.Handle]int32, paused, micCapped bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rates = make(map[schema.Handle]int32, len(d.record.PerSensorRate))
	for h, rate := range d.record.PerSensorRate {
		rates[h] = rate
	}
	return rates, d.record.Paused(), d.record.MicCapped()
}

// DeviceID returns the runtime device this channel belongs to, 0 for
// platform sensors.
func (d *DirectConnection) DeviceID() int32 { return d.deviceID }

// Destroy unregisters this channel from the HAL. Idempotent.
func (d *DirectConnection) Destroy() error {
	if err := d.hal.UnregisterDirectChannel(d.record.ChannelHandleInHAL); err != nil {
		return sensorerr.Wrap(sensorerr.TransactionFailed, "connection.direct.destroy", "hal.unregister_direct_channel failed", err)
	}
	return nil
}
