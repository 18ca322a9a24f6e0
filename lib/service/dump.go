// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sensormux/sensord/lib/codec"
	"github.com/sensormux/sensord/lib/connection"
	"github.com/sensormux/sensord/lib/recentlog"
	"github.com/sensormux/sensord/lib/schema"
)

// eventWireSize approximates the encoded size of one queued event for
// the dump's per-connection memory figure. Go gives no portable
// per-object heap accounting, so the dump reports queue depth times
// this fixed estimate instead.
const eventWireSize = 104

// DumpReport is the machine-readable diagnostic dump (dump --proto),
// CBOR-encoded with the same deterministic encoder as the wire
// protocol so identical state dumps identically.
type DumpReport struct {
	GeneratedAt   time.Time                  `cbor:"generated_at"`
	Sensors       []schema.Sensor            `cbor:"sensors"`
	VirtualActive []int32                    `cbor:"virtual_active"`
	Mode          schema.OperatingMode       `cbor:"mode"`
	PrivacyOn     bool                       `cbor:"privacy_on"`
	MicCapped     bool                       `cbor:"mic_capped"`
	WakelockHeld  bool                       `cbor:"wakelock_held"`
	HTRestricted  bool                       `cbor:"head_tracker_restricted"`
	SocketBuffer  int                        `cbor:"socket_buffer_events"`
	Recent        []recentlog.DumpEntry      `cbor:"recent"`
	Active        []ActiveSensorDump         `cbor:"active"`
	Connections   []ConnectionDump           `cbor:"connections"`
	DirectDump    []DirectChannelDump        `cbor:"direct_channels"`
	Registrations []schema.RegistrationEntry `cbor:"registrations"`
}

// ActiveSensorDump is one active-sensor line in the dump.
type ActiveSensorDump struct {
	Handle          schema.Handle `cbor:"handle"`
	ConnectionCount int           `cbor:"connection_count"`
	PendingFlushes  int           `cbor:"pending_flushes"`
}

// ConnectionDump is one event-connection line in the dump.
type ConnectionDump struct {
	ID            schema.ConnectionID `cbor:"id"`
	Package       string              `cbor:"package"`
	UID           int32               `cbor:"uid"`
	Handles       []schema.Handle     `cbor:"handles"`
	NeedsWakelock bool                `cbor:"needs_wakelock"`
	QueueBytes    int                 `cbor:"queue_bytes"`
}

// DirectChannelDump is one direct-channel line in the dump.
type DirectChannelDump struct {
	ID        schema.ConnectionID     `cbor:"id"`
	Package   string                  `cbor:"package"`
	DeviceID  int32                   `cbor:"device_id"`
	Rates     map[schema.Handle]int32 `cbor:"rates"`
	Paused    bool                    `cbor:"paused"`
	MicCapped bool                    `cbor:"mic_capped"`
}

// buildDump collects the full report. privileged=false zeroes
// recent-event payloads for non-privileged callers.
func (s *Service) buildDump(privileged bool) DumpReport {
	report := DumpReport{
		GeneratedAt:  s.clk.Now(),
		Sensors:      s.ListSensors(privileged),
		Mode:         s.mode.Current(),
		PrivacyOn:    s.privacy.Enabled(),
		MicCapped:    s.mic.Engaged(),
		WakelockHeld: s.wakelock.Held(),
		HTRestricted: s.HeadTrackerRestricted(),
		SocketBuffer: socketBufferEvents,
		Recent:       s.recentLog.Dump(!privileged),
	}
	sort.Slice(report.Sensors, func(i, j int) bool {
		return report.Sensors[i].Handle < report.Sensors[j].Handle
	})
	sort.Slice(report.Recent, func(i, j int) bool {
		return report.Recent[i].Handle < report.Recent[j].Handle
	})

	for t := range s.activeVirtual {
		report.VirtualActive = append(report.VirtualActive, int32(t))
	}
	sort.Slice(report.VirtualActive, func(i, j int) bool {
		return report.VirtualActive[i] < report.VirtualActive[j]
	})

	s.records.ForEach(func(record *schema.ActiveSensorRecord) {
		report.Active = append(report.Active, ActiveSensorDump{
			Handle:          record.Handle,
			ConnectionCount: len(record.Connections),
			PendingFlushes:  len(record.PendingFlush),
		})
	})
	sort.Slice(report.Active, func(i, j int) bool {
		return report.Active[i].Handle < report.Active[j].Handle
	})

	for _, conn := range s.holder.Snapshot() {
		ec, ok := conn.(*connection.EventConnection)
		if !ok {
			continue
		}
		handles := ec.SubscribedHandles()
		sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
		dump := ConnectionDump{
			ID:            ec.ID(),
			Package:       ec.Package(),
			UID:           ec.UID(),
			Handles:       handles,
			NeedsWakelock: ec.NeedsWakelock(),
		}
		if depther, ok := ec.Sink().(interface{ QueueDepth() int }); ok {
			dump.QueueBytes = depther.QueueDepth() * eventWireSize
		}
		report.Connections = append(report.Connections, dump)
	}
	sort.Slice(report.Connections, func(i, j int) bool {
		return report.Connections[i].ID < report.Connections[j].ID
	})

	for _, dc := range s.directSnapshot() {
		rates, paused, micCapped := dc.conn.DumpState()
		report.DirectDump = append(report.DirectDump, DirectChannelDump{
			ID:        dc.conn.ID(),
			Package:   dc.conn.Package(),
			DeviceID:  dc.conn.DeviceID(),
			Rates:     rates,
			Paused:    paused,
			MicCapped: micCapped,
		})
	}
	sort.Slice(report.DirectDump, func(i, j int) bool {
		return report.DirectDump[i].ID < report.DirectDump[j].ID
	})

	// Entries() is already most-recent first.
	report.Registrations = s.regRing.Entries()
	return report
}

// DumpProto returns the binary (CBOR) dump.
func (s *Service) DumpProto(privileged bool) ([]byte, error) {
	return codec.Marshal(s.buildDump(privileged))
}

// DumpText writes the human-readable dump.
func (s *Service) DumpText(w io.Writer, privileged bool) {
	report := s.buildDump(privileged)

	fmt.Fprintf(w, "sensord dump at %s\n\n", report.GeneratedAt.Format(time.RFC3339Nano))

	fmt.Fprintf(w, "Sensor list (%d):\n", len(report.Sensors))
	for _, sensor := range report.Sensors {
		flags := ""
		if sensor.IsWakeUp() {
			flags += " wake-up"
		}
		if sensor.IsDynamic() {
			flags += " dynamic"
		}
		if sensor.Virtual {
			flags += " virtual"
		}
		if sensor.Debug {
			flags += " debug"
		}
		fmt.Fprintf(w, "  %#06x %-32s type=%d mode=%d min_delay=%dus device=%d%s\n",
			uint32(sensor.Handle), sensor.Name, int32(sensor.Type), int32(sensor.ReportingMode),
			sensor.MinDelayNs/1000, sensor.DeviceID, flags)
	}

	fmt.Fprintf(w, "\nFusion state: %d virtual sensor(s) active, types %v\n",
		len(report.VirtualActive), report.VirtualActive)

	fmt.Fprintf(w, "\nOperating mode: %s", report.Mode.Kind)
	if len(report.Mode.Allowlist) > 0 {
		fmt.Fprintf(w, " (allowlist: %v)", report.Mode.Allowlist)
	}
	fmt.Fprintf(w, "\nSensor privacy: %v\n", report.PrivacyOn)
	fmt.Fprintf(w, "Mic toggle cap: %v\n", report.MicCapped)
	fmt.Fprintf(w, "Head tracker restricted: %v\n", report.HTRestricted)
	fmt.Fprintf(w, "Wakelock held: %v\n", report.WakelockHeld)
	fmt.Fprintf(w, "Socket buffer: %d events\n", report.SocketBuffer)

	fmt.Fprintf(w, "\nRecent events (%d):\n", len(report.Recent))
	for _, entry := range report.Recent {
		stale := ""
		if entry.Stale {
			stale = " (stale)"
		}
		fmt.Fprintf(w, "  %#06x ts=%d data=%.4v%s\n",
			uint32(entry.Handle), entry.Event.TimestampNs, entry.Event.Data[:3], stale)
	}

	fmt.Fprintf(w, "\nActive sensors (%d):\n", len(report.Active))
	for _, active := range report.Active {
		fmt.Fprintf(w, "  %#06x connections=%d pending_flushes=%d\n",
			uint32(active.Handle), active.ConnectionCount, active.PendingFlushes)
	}

	fmt.Fprintf(w, "\nConnections (%d):\n", len(report.Connections))
	for _, conn := range report.Connections {
		fmt.Fprintf(w, "  #%d %s uid=%d handles=%v needs_wakelock=%v queue~%dB\n",
			conn.ID, conn.Package, conn.UID, conn.Handles, conn.NeedsWakelock, conn.QueueBytes)
	}

	fmt.Fprintf(w, "\nDirect channels (%d):\n", len(report.DirectDump))
	for _, dc := range report.DirectDump {
		fmt.Fprintf(w, "  #%d %s device=%d rates=%v paused=%v mic_capped=%v\n",
			dc.ID, dc.Package, dc.DeviceID, dc.Rates, dc.Paused, dc.MicCapped)
	}

	fmt.Fprintf(w, "\nRegistrations, most recent first (%d):\n", len(report.Registrations))
	for _, entry := range report.Registrations {
		action := "activate"
		if entry.Action == schema.RegistrationDeactivate {
			action = "deactivate"
		}
		fmt.Fprintf(w, "  %-10s %#06x pkg=%s period=%dus latency=%dus result=%s\n",
			action, uint32(entry.Handle), entry.Package,
			entry.PeriodNs/1000, entry.LatencyNs/1000, entry.ResultCode)
	}
}
