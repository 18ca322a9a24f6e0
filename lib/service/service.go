// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/sensormux/sensord/lib/clock"
	"github.com/sensormux/sensord/lib/config"
	"github.com/sensormux/sensord/lib/connection"
	"github.com/sensormux/sensord/lib/dispatch"
	"github.com/sensormux/sensord/lib/fusion"
	"github.com/sensormux/sensord/lib/hal"
	"github.com/sensormux/sensord/lib/identity"
	"github.com/sensormux/sensord/lib/policy"
	"github.com/sensormux/sensord/lib/recentlog"
	"github.com/sensormux/sensord/lib/registry"
	"github.com/sensormux/sensord/lib/ring"
	"github.com/sensormux/sensord/lib/schema"
	"github.com/sensormux/sensord/lib/sensorerr"
)

// RuntimeSensorCallback is the user-space counterpart of the HAL's
// direct-channel surface for sensors owned by a runtime device.
type RuntimeSensorCallback = connection.DirectChannelHAL

// micCapRateLevel is the direct-channel rate level every configured
// rate is reduced to while the microphone toggle is engaged.
const micCapRateLevel int32 = 1

// micToggleDebounce bounds how fast the mic-toggle flag may flap
// before transitions are ignored.
const micToggleDebounce = 100 * time.Millisecond

// hmacKeyFile is the file name of the persisted identity key under
// the state directory.
const hmacKeyFile = "hmac_key"

// Deps are the external collaborators a Service composes. HAL,
// Packages, and AppOps are required; Clock and Logger default to the
// real clock and slog.Default.
type Deps struct {
	HAL      hal.Adapter
	Packages policy.PackageManager
	AppOps   policy.AppOpChecker
	Clock    clock.Clock
	Logger   *slog.Logger
}

// directChannel pairs a DirectConnection with the service-owned
// descriptor backing it and the client UID for idle-state pausing.
type directChannel struct {
	conn     *connection.DirectConnection
	uid      int32
	memoryFD int
}

// Service is the assembled sensord daemon.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger
	clk    clock.Clock
	hal    hal.Adapter
	pm     policy.PackageManager

	registry  *registry.Registry
	records   *connection.RecordTable
	holder    *connection.Holder
	recentLog *recentlog.Log
	regRing   *ring.Ring
	fusion    *fusion.Engine
	wakelock  *dispatch.Wakelock
	loop      *dispatch.Loop
	ack       *dispatch.AckReceiver
	runtimeQ  *dispatch.RuntimeQueue
	runtime   *dispatch.RuntimeLoop

	access    *policy.Access
	mode      *policy.ModeMachine
	privacy   *policy.PrivacyMirror
	proximity *policy.ProximityNotifier
	uids      *policy.UIDActivity
	mic       *policy.MicToggle

	identityKey identity.Key

	htOverride  atomic.Bool
	initialized atomic.Bool
	closeOnce   sync.Once

	activeVirtual  map[schema.Type]bool
	virtualHandles map[schema.Type]schema.Handle
	dynamicMeta    schema.Handle

	mu               sync.Mutex
	direct           map[schema.ConnectionID]*directChannel
	runtimeCallbacks map[int32]RuntimeSensorCallback
}

// New initializes a Service against deps: checks the HAL, loads or
// generates the identity key, imports the HAL sensor catalog,
// synthesizes the virtual sensors the catalog lacks, and wires the
// dispatch machinery. The dispatch loop does not run until Run.
func New(cfg *config.Config, deps Deps) (*Service, error) {
	if deps.HAL == nil || deps.Packages == nil || deps.AppOps == nil {
		return nil, sensorerr.New(sensorerr.BadValue, "service.new", "missing required dependency")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}

	if err := deps.HAL.InitCheck(); err != nil {
		return nil, sensorerr.Wrap(sensorerr.NoInit, "service.new", "hal init check failed", err)
	}

	key, err := identity.LoadOrGenerate(filepath.Join(cfg.Paths.State, hmacKeyFile), logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:              cfg,
		logger:           logger,
		clk:              clk,
		hal:              deps.HAL,
		pm:               deps.Packages,
		registry:         registry.New(),
		records:          connection.NewRecordTable(),
		holder:           connection.NewHolder(),
		recentLog:        recentlog.New(),
		regRing:          ring.New(cfg.Dispatch.RegistrationRingSize),
		fusion:           fusion.New(),
		wakelock:         dispatch.NewWakelock(),
		runtimeQ:         dispatch.NewRuntimeQueue(),
		uids:             policy.NewUIDActivity(),
		mic:              policy.NewMicToggle(cfg.Policy.MicToggleRateCapHz, micToggleDebounce),
		identityKey:      key,
		direct:           make(map[schema.ConnectionID]*directChannel),
		runtimeCallbacks: make(map[int32]RuntimeSensorCallback),
	}
	s.htOverride.Store(cfg.Policy.HeadTrackerTestOverride)

	s.access = policy.NewAccess(deps.Packages, deps.AppOps, s.htOverride.Load)
	s.mode = policy.NewModeMachine(&modeHooks{s: s}, cfg.Policy.UserBuild)

	s.privacy = policy.NewPrivacyMirror()
	s.privacy.AddListener(func(enabled bool) {
		if enabled {
			if err := s.hal.DisableAllSensors(); err != nil {
				s.logger.Error("sensor privacy disable-all failed", "error", err)
			}
			s.pauseDirectChannels()
		} else {
			if err := s.hal.EnableAllSensors(); err != nil {
				s.logger.Error("sensor privacy enable-all failed", "error", err)
			}
			s.resumeDirectChannels()
		}
	})

	automotive := cfg.Policy.Automotive || deps.Packages.HasSystemFeature("android.hardware.type.automotive")
	if err := s.populateRegistry(automotive); err != nil {
		s.privacy.Close()
		return nil, err
	}

	s.proximity = policy.NewProximityNotifier()
	s.records.SetActiveChangeHook(func(handle schema.Handle, active bool) {
		if sensor, ok := s.registry.Lookup(handle); ok && sensor.Type == schema.TypeProximity {
			s.proximity.SetActive(active)
		}
	})

	s.loop = dispatch.New(dispatch.Deps{
		HAL:                  s.hal,
		Registry:             s.registry,
		Records:              s.records,
		Holder:               s.holder,
		Fusion:               s.fusion,
		RecentLog:            s.recentLog,
		Wakelock:             s.wakelock,
		Clock:                clk,
		Logger:               logger,
		BufferEvents:         cfg.Dispatch.BufferEvents,
		ActiveVirtualSensors: s.activeVirtual,
		VirtualHandles:       s.virtualHandles,
		DynamicMetaHandle:    s.dynamicMeta,
	})
	s.ack = dispatch.NewAckReceiver(s.wakelock, s.holder, clk, cfg.Dispatch.AckTimeout, logger)
	s.runtime = dispatch.NewRuntimeLoop(s.runtimeQ, s.holder, s.records, s.recentLog, logger)

	return s, nil
}

// populateRegistry imports the HAL catalog, decides which virtual
// sensors to synthesize, and reserves the meta-sensor
// handle synthetic DYNAMIC_SENSOR_META events are stamped with.
func (s *Service) populateRegistry(automotive bool) error {
	halSensors := s.hal.SensorList()

	var caps registry.Capabilities
	already := make(map[schema.Type]bool)
	var maxHandle schema.Handle
	var baseMinDelayNs int64 = 10_000_000

	for _, sensor := range halSensors {
		if !s.registry.Add(sensor) {
			s.logger.Error("duplicate handle in HAL sensor list, skipping",
				"handle", sensor.Handle, "name", sensor.Name)
			continue
		}
		already[sensor.Type] = true
		if sensor.Handle > maxHandle {
			maxHandle = sensor.Handle
		}
		switch sensor.Type {
		case schema.TypeAccelerometer:
			caps.Accelerometer = true
			baseMinDelayNs = sensor.MinDelayNs
		case schema.TypeGyroscope:
			caps.Gyroscope = true
		case schema.TypeMagnetometer:
			caps.Magnetometer = true
		}
	}

	next := maxHandle + 1
	allocate := func() (schema.Handle, bool) {
		for next < schema.PlatformHandleEnd && !s.registry.IsNewHandle(next) {
			next++
		}
		if next >= schema.PlatformHandleEnd {
			return 0, false
		}
		h := next
		next++
		return h, true
	}

	s.activeVirtual = make(map[schema.Type]bool)
	s.virtualHandles = make(map[schema.Type]schema.Handle)
	for _, t := range registry.DecideVirtualSensors(caps, already, automotive) {
		h, ok := allocate()
		if !ok {
			return sensorerr.New(sensorerr.BadValue, "service.init", "platform handle range exhausted")
		}
		sensor := virtualSensor(t, h, baseMinDelayNs)
		if !s.registry.Add(sensor) {
			return sensorerr.New(sensorerr.BadValue, "service.init", "virtual sensor handle collision")
		}
		s.activeVirtual[t] = true
		s.virtualHandles[t] = h
		s.logger.Info("synthesized virtual sensor", "type", int32(t), "name", sensor.Name, "handle", h)
	}

	metaHandle, ok := allocate()
	if !ok {
		return sensorerr.New(sensorerr.BadValue, "service.init", "no handle left for meta sensor")
	}
	s.dynamicMeta = metaHandle
	return nil
}

// virtualSensor builds the descriptor for a software fusion sensor.
// Virtual sensors inherit the accelerometer's minimum delay since
// they cannot produce output faster than their slowest input arrives.
func virtualSensor(t schema.Type, h schema.Handle, minDelayNs int64) schema.Sensor {
	name := map[schema.Type]string{
		schema.TypeGravity:                   "Gravity",
		schema.TypeLinearAcceleration:        "Linear Acceleration",
		schema.TypeRotationVector:            "Rotation Vector",
		schema.TypeGeomagneticRotationVector: "Geomagnetic Rotation Vector",
		schema.TypeGameRotationVector:        "Game Rotation Vector",
		schema.TypeLimitedAxesAccelerometer:  "Limited Axes Accelerometer",
		schema.TypeLimitedAxesGyroscope:      "Limited Axes Gyroscope",
		schema.TypeLimitedAxesMagnetometer:   "Limited Axes Magnetometer",
	}[t]
	if name == "" {
		name = fmt.Sprintf("Virtual Sensor %d", int32(t))
	}
	return schema.Sensor{
		Handle:        h,
		Type:          t,
		Name:          name,
		MinDelayNs:    minDelayNs,
		ReportingMode: schema.ReportingContinuous,
		Virtual:       true,
	}
}

// Run starts the dispatch, runtime-sensor, and ack-receiver threads
// plus both socket servers, then blocks until ctx is cancelled and
// everything has drained.
func (s *Service) Run(ctx context.Context) error {
	eventListener, err := listenUnix(s.cfg.Sockets.Event)
	if err != nil {
		return err
	}
	defer eventListener.Close()
	controlListener, err := listenUnix(s.cfg.Sockets.Control)
	if err != nil {
		return err
	}
	defer controlListener.Close()

	s.initialized.Store(true)
	s.logger.Info("sensord serving",
		"event_socket", s.cfg.Sockets.Event,
		"control_socket", s.cfg.Sockets.Control,
		"sensors", len(s.registry.UserSensors()),
		"virtual", len(s.activeVirtual))

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		dispatch.ElevateScheduling(s.cfg.Dispatch.SchedulingPriority, s.logger)
		if err := s.loop.Run(ctx); err != nil {
			s.logger.Error("dispatch loop exited", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		s.runtime.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.ack.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		newEventServer(s, eventListener).serve(ctx)
	}()
	go func() {
		defer wg.Done()
		newControlServer(s, controlListener).serve(ctx)
	}()

	<-ctx.Done()
	eventListener.Close()
	controlListener.Close()
	s.runtimeQ.Close()
	wg.Wait()
	s.Close()
	return nil
}

// Close releases everything New started: the privacy mirror's worker
// and any still-open direct channels. Idempotent; Run calls it on the
// way out, tests call it directly when they never ran the loops.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.privacy.Close()
		s.proximity.Close()
		s.closeAllDirectChannels()
	})
}

func listenUnix(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("socket directory: %w", err)
	}
	// A stale socket file from an unclean shutdown blocks bind.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	return listener, nil
}

// OpenEventConnection admits a new event client. Gated on service
// readiness and the operating mode's allowlist.
func (s *Service) OpenEventConnection(packageName string, uid int32, sink connection.EventSink) (*connection.EventConnection, error) {
	if !s.initialized.Load() {
		return nil, sensorerr.New(sensorerr.NoInit, "service.connect", "service still initializing")
	}
	if !s.mode.AllowsNewConnection(packageName) {
		return nil, sensorerr.New(sensorerr.PermissionDenied, "service.connect",
			"package not allowlisted for current operating mode")
	}
	privileged := uid == 0 || uid == policy.SystemUID
	conn := connection.NewEventConnection(s.holder.NextID(), packageName, uid, privileged,
		connection.EventConnectionDeps{
			HAL:             s.hal,
			Reg:             s.registry,
			Records:         s.records,
			Access:          s.access,
			Log:             s.recentLog,
			Ring:            s.regRing,
			ModeGate:        s.enableModeGate,
			AdjustPeriod:    s.mic.AdjustPeriod,
			AcquireWakelock: func() { s.wakelock.Acquire() },
		}, sink)
	s.holder.Add(conn)
	if err := s.hal.SetUIDStateForConnection(conn.ID(), s.uids.IsActive(uid)); err != nil {
		s.logger.Warn("hal uid-state notification failed", "connection", conn.ID(), "error", err)
	}
	s.logger.Info("event connection opened", "connection", conn.ID(), "package", packageName, "uid", uid)
	return conn, nil
}

// CloseEventConnection tears a client down: idempotent, synchronous
// subscription removal, then drop from the holder.
func (s *Service) CloseEventConnection(conn *connection.EventConnection) {
	conn.Destroy()
	s.holder.Remove(conn.ID())
	s.logger.Info("event connection closed", "connection", conn.ID(), "package", conn.Package())
}

// enableModeGate rejects enables from packages the current operating
// mode does not allow.
func (s *Service) enableModeGate(packageName string) error {
	mode := s.mode.Current()
	if mode.Kind == schema.ModeNormal || mode.Allows(packageName) {
		return nil
	}
	return sensorerr.New(sensorerr.InvalidOperation, "service.enable",
		"package not allowlisted in "+mode.Kind.String()+" mode")
}

// HandleAck processes a client wake-event acknowledgment.
func (s *Service) HandleAck(id schema.ConnectionID) {
	s.loop.HandleAck(id)
}

// RegisterRuntimeDevice installs the direct-channel callback for a
// runtime device. Direct channels opened with that device ID route
// through cb instead of the HAL.
func (s *Service) RegisterRuntimeDevice(deviceID int32, cb RuntimeSensorCallback) error {
	if deviceID == 0 {
		return sensorerr.New(sensorerr.BadValue, "service.runtime", "device id 0 is the platform HAL")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runtimeCallbacks[deviceID]; exists {
		return sensorerr.New(sensorerr.AlreadyExists, "service.runtime", "device already registered")
	}
	s.runtimeCallbacks[deviceID] = cb
	return nil
}

// AddRuntimeSensor registers a logical sensor backed by a user-space
// callback, allocating its handle from the runtime range.
func (s *Service) AddRuntimeSensor(sensor schema.Sensor, deviceID int32) (schema.Handle, error) {
	s.mu.Lock()
	_, known := s.runtimeCallbacks[deviceID]
	s.mu.Unlock()
	if !known {
		return 0, sensorerr.New(sensorerr.NameNotFound, "service.runtime", "unknown runtime device")
	}
	handle, ok := s.registry.NextRuntimeHandle()
	if !ok {
		return 0, sensorerr.New(sensorerr.BadValue, "service.runtime", "runtime handle range exhausted")
	}
	sensor.Handle = handle
	sensor.DeviceID = deviceID
	if !s.registry.Add(sensor) {
		return 0, sensorerr.New(sensorerr.BadValue, "service.runtime", "runtime handle collision")
	}
	return handle, nil
}

// InjectRuntimeEvent feeds one event from a runtime device's
// user-space producer into the runtime-sensor loop.
func (s *Service) InjectRuntimeEvent(event schema.Event) {
	s.runtimeQ.Push(event)
}

// InjectEvent delivers an externally-supplied event through the HAL's
// injection path. Only legal in a data-injection operating mode, and
// never for one-shot sensors.
func (s *Service) InjectEvent(event schema.Event) error {
	if err := dispatch.ValidateInjectedEvent(s.mode.Current(), s.registry, event); err != nil {
		return err
	}
	if s.mode.Current().Kind == schema.ModeHalBypassReplayInjection {
		// HAL-bypass replay never reaches the HAL: feed the runtime
		// loop directly so subscribers still observe the event.
		s.runtimeQ.Push(event)
		return nil
	}
	if err := s.hal.InjectSensorData(event); err != nil {
		return sensorerr.Wrap(sensorerr.TransactionFailed, "service.inject", "hal.inject_sensor_data failed", err)
	}
	return nil
}

// OpenDirectChannel validates and registers a shared-memory direct
// channel. The daemon opens its own descriptor for the
// client's memory file -- the moral equivalent of duplicating a
// received handle -- and closes it when the channel dies.
func (s *Service) OpenDirectChannel(packageName string, uid int32, deviceID int32, memoryPath string, declaredSize int64) (schema.ConnectionID, error) {
	if !s.initialized.Load() {
		return 0, sensorerr.New(sensorerr.NoInit, "service.direct", "service still initializing")
	}
	if declaredSize <= 0 {
		return 0, sensorerr.New(sensorerr.BadValue, "service.direct", "declared size must be positive")
	}

	var target connection.DirectChannelHAL = s.hal
	if deviceID != 0 {
		s.mu.Lock()
		cb, ok := s.runtimeCallbacks[deviceID]
		s.mu.Unlock()
		if !ok {
			return 0, sensorerr.New(sensorerr.Unsupported, "service.direct", "no runtime callback for device")
		}
		target = cb
	}

	fd, err := unix.Open(memoryPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, sensorerr.Wrap(sensorerr.BadValue, "service.direct", "shared memory open failed", err)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return 0, sensorerr.Wrap(sensorerr.BadValue, "service.direct", "shared memory stat failed", err)
	}
	if stat.Size < declaredSize {
		unix.Close(fd)
		return 0, sensorerr.New(sensorerr.BadValue, "service.direct",
			fmt.Sprintf("shared memory smaller than declared: %d < %d", stat.Size, declaredSize))
	}

	id := s.holder.NextID()
	conn, err := connection.NewDirectConnection(id, packageName, deviceID, fd, declaredSize, target)
	if err != nil {
		unix.Close(fd)
		return 0, err
	}

	s.mu.Lock()
	s.direct[id] = &directChannel{conn: conn, uid: uid, memoryFD: fd}
	s.mu.Unlock()
	s.holder.Add(conn)

	// A channel born into restricted mode, privacy, or an idle UID
	// starts paused, same as the pre-existing channels it joins.
	if s.mode.Current().Kind == schema.ModeRestricted || s.privacy.Enabled() || !s.uids.IsActive(uid) {
		if err := conn.Pause(); err != nil {
			s.logger.Warn("pausing newborn direct channel failed", "connection", id, "error", err)
		}
	}
	s.logger.Info("direct channel opened", "connection", id, "package", packageName, "device", deviceID)
	return id, nil
}

// ConfigureDirectChannel sets or clears the delivery rate for one
// sensor on an open channel. While the mic toggle is engaged,
// requested rates above the cap are reduced to it.
func (s *Service) ConfigureDirectChannel(id schema.ConnectionID, sensor schema.Handle, rateLevel int32) error {
	s.mu.Lock()
	dc, ok := s.direct[id]
	s.mu.Unlock()
	if !ok {
		return sensorerr.New(sensorerr.BadValue, "service.direct", "unknown direct channel")
	}
	if _, known := s.registry.Lookup(sensor); !known {
		return sensorerr.New(sensorerr.BadValue, "service.direct", "unknown sensor handle")
	}
	if s.mic.Engaged() && rateLevel > micCapRateLevel {
		rateLevel = micCapRateLevel
	}
	return dc.conn.ConfigureRate(sensor, rateLevel)
}

// CloseDirectChannel destroys an open channel and releases the
// descriptor backing it. Idempotent.
func (s *Service) CloseDirectChannel(id schema.ConnectionID) error {
	s.mu.Lock()
	dc, ok := s.direct[id]
	if ok {
		delete(s.direct, id)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	s.holder.Remove(id)
	err := dc.conn.Destroy()
	unix.Close(dc.memoryFD)
	s.logger.Info("direct channel closed", "connection", id)
	return err
}

func (s *Service) closeAllDirectChannels() {
	s.mu.Lock()
	ids := make([]schema.ConnectionID, 0, len(s.direct))
	for id := range s.direct {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		if err := s.CloseDirectChannel(id); err != nil {
			s.logger.Warn("direct channel teardown failed", "connection", id, "error", err)
		}
	}
}

// directSnapshot returns the current direct channels without holding
// the service lock across per-channel HAL calls.
func (s *Service) directSnapshot() []*directChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*directChannel, 0, len(s.direct))
	for _, dc := range s.direct {
		out = append(out, dc)
	}
	return out
}

func (s *Service) pauseDirectChannels() {
	for _, dc := range s.directSnapshot() {
		if err := dc.conn.Pause(); err != nil {
			s.logger.Warn("direct channel pause failed", "connection", dc.conn.ID(), "error", err)
		}
	}
}

func (s *Service) resumeDirectChannels() {
	for _, dc := range s.directSnapshot() {
		if dc.uid != 0 && !s.uids.IsActive(dc.uid) {
			continue // still idle; resumes when its UID does
		}
		if err := dc.conn.Resume(); err != nil {
			s.logger.Warn("direct channel resume failed", "connection", dc.conn.ID(), "error", err)
		}
	}
}

// SetOperatingMode drives the operating-mode state machine.
func (s *Service) SetOperatingMode(target schema.OperatingModeKind, allowlist []string) error {
	return s.mode.TransitionTo(target, allowlist)
}

// OperatingMode returns the current mode.
func (s *Service) OperatingMode() schema.OperatingMode { return s.mode.Current() }

// SetSensorPrivacy mirrors the privacy manager's flag into the
// service; the reaction (disable-all/enable-all plus direct-channel
// pause/resume) runs on the privacy mirror's ordered worker.
func (s *Service) SetSensorPrivacy(enabled bool) { s.privacy.SetEnabled(enabled) }

// SetMicToggle engages or releases the microphone-toggle rate cap on
// every direct channel.
func (s *Service) SetMicToggle(engaged bool) {
	if !s.mic.SetEngaged(engaged) {
		return
	}
	for _, dc := range s.directSnapshot() {
		var err error
		if engaged {
			err = dc.conn.ApplyMicCap(micCapRateLevel)
		} else {
			err = dc.conn.ReleaseMicCap()
		}
		if err != nil {
			s.logger.Warn("mic cap adjustment failed", "connection", dc.conn.ID(), "engaged", engaged, "error", err)
		}
	}
}

// SetUIDState marks a package's UID active or idle, pausing or
// resuming its direct channels and informing the HAL for every
// connection the UID owns.
func (s *Service) SetUIDState(packageName string, userID int, active bool) error {
	uid, err := s.pm.GetPackageUID(packageName, userID)
	if err != nil {
		return sensorerr.Wrap(sensorerr.NameNotFound, "service.uid_state", "unknown package", err)
	}
	if active {
		s.uids.SetActive(uid)
	} else {
		s.uids.SetIdle(uid)
	}
	s.applyUIDState(uid, active)
	return nil
}

// ResetUIDState drops any override for the package's UID, returning
// it to the default active state.
func (s *Service) ResetUIDState(packageName string, userID int) error {
	uid, err := s.pm.GetPackageUID(packageName, userID)
	if err != nil {
		return sensorerr.Wrap(sensorerr.NameNotFound, "service.uid_state", "unknown package", err)
	}
	s.uids.Reset(uid)
	s.applyUIDState(uid, true)
	return nil
}

// GetUIDState reports whether the package's UID is currently treated
// as active.
func (s *Service) GetUIDState(packageName string, userID int) (bool, error) {
	uid, err := s.pm.GetPackageUID(packageName, userID)
	if err != nil {
		return false, sensorerr.Wrap(sensorerr.NameNotFound, "service.uid_state", "unknown package", err)
	}
	return s.uids.IsActive(uid), nil
}

func (s *Service) applyUIDState(uid int32, active bool) {
	for _, dc := range s.directSnapshot() {
		if dc.uid != uid {
			continue
		}
		var err error
		if active {
			err = dc.conn.Resume()
		} else {
			err = dc.conn.Pause()
		}
		if err != nil {
			s.logger.Warn("uid-state direct channel adjustment failed",
				"connection", dc.conn.ID(), "active", active, "error", err)
		}
	}
	for _, conn := range s.holder.Snapshot() {
		ec, ok := conn.(*connection.EventConnection)
		if !ok || ec.UID() != uid {
			continue
		}
		if err := s.hal.SetUIDStateForConnection(ec.ID(), active); err != nil {
			s.logger.Warn("hal uid-state notification failed", "connection", ec.ID(), "error", err)
		}
	}
}

// AddProximityListener registers a named proximity active-state
// listener; RemoveProximityListener drops it. Errors are
// AlreadyExists and NameNotFound respectively.
func (s *Service) AddProximityListener(name string, l policy.ProximityListener) error {
	return s.proximity.AddListener(name, l)
}

// RemoveProximityListener unregisters a previously added listener.
func (s *Service) RemoveProximityListener(name string) error {
	return s.proximity.RemoveListener(name)
}

// RestrictHeadTracker re-enforces the system/audio-server-only gate on
// head-tracker sensors; UnrestrictHeadTracker lifts it for testing.
func (s *Service) RestrictHeadTracker()   { s.htOverride.Store(false) }
func (s *Service) UnrestrictHeadTracker() { s.htOverride.Store(true) }

// HeadTrackerRestricted reports whether the gate is enforced.
func (s *Service) HeadTrackerRestricted() bool { return !s.htOverride.Load() }

// ListSensors returns the catalog visible to a caller: debug sensors
// only for privileged callers, dynamic-sensor UUIDs anonymized for
// everyone else.
func (s *Service) ListSensors(privileged bool) []schema.Sensor {
	var out []schema.Sensor
	s.registry.ForEach(func(sensor schema.Sensor) bool {
		if sensor.Debug && !privileged {
			return true
		}
		sensor.UUID = identity.AnonymizeUUID(sensor.UUID, privileged)
		out = append(out, sensor)
		return true
	})
	return out
}

// IDFromUUID derives the caller-scoped anonymized dynamic-sensor ID.
func (s *Service) IDFromUUID(u uuid.UUID, callerUID int32) int32 {
	return identity.IDFromUUID(s.identityKey, u, callerUID)
}

// modeHooks adapts the Service to the mode machine's side-effect
// contract.
type modeHooks struct {
	s *Service
}

func (h *modeHooks) DisableAllSensors() error { return h.s.hal.DisableAllSensors() }
func (h *modeHooks) EnableAllSensors() error  { return h.s.hal.EnableAllSensors() }
func (h *modeHooks) PauseDirectChannels()     { h.s.pauseDirectChannels() }
func (h *modeHooks) ResumeDirectChannels()    { h.s.resumeDirectChannels() }

func (h *modeHooks) SetHALMode(mode schema.OperatingModeKind) error {
	if mode == schema.ModeHalBypassReplayInjection {
		return nil
	}
	return h.s.hal.SetMode(mode)
}
