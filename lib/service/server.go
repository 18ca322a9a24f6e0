// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/sensormux/sensord/lib/codec"
	"github.com/sensormux/sensord/lib/connection"
	"github.com/sensormux/sensord/lib/schema"
	"github.com/sensormux/sensord/lib/sensorerr"
)

// socketBufferEvents bounds the per-connection outbound event queue.
const socketBufferEvents = 256

// eventServer accepts event-socket clients and runs one handler
// goroutine per connection.
type eventServer struct {
	svc      *Service
	listener net.Listener
	logger   *slog.Logger
}

func newEventServer(svc *Service, listener net.Listener) *eventServer {
	return &eventServer{svc: svc, listener: listener, logger: svc.logger}
}

func (es *eventServer) serve(ctx context.Context) {
	for {
		conn, err := es.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			es.logger.Warn("event socket accept failed", "error", err)
			continue
		}
		go es.handle(ctx, conn)
	}
}

// peerUID extracts the connecting process's UID via SO_PEERCRED. The
// kernel vouches for it; the client never self-reports identity.
func peerUID(conn net.Conn) (int32, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, sensorerr.New(sensorerr.BadValue, "service.server", "not a unix socket")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, err
	}
	if credErr != nil {
		return 0, credErr
	}
	return int32(cred.Uid), nil
}

func (es *eventServer) handle(ctx context.Context, netConn net.Conn) {
	defer netConn.Close()

	uid, err := peerUID(netConn)
	if err != nil {
		es.logger.Warn("peer credential lookup failed", "error", err)
		return
	}

	decoder := codec.NewDecoder(netConn)

	var hello Request
	if err := decoder.Decode(&hello); err != nil {
		return
	}
	sink := newSocketSink(netConn, es.logger)
	defer sink.close()

	if hello.Action != ActionHello || hello.Package == "" {
		sink.respond(errorResponse(sensorerr.New(sensorerr.BadValue, "service.server", "first request must be hello with a package name")))
		return
	}

	conn, err := es.svc.OpenEventConnection(hello.Package, uid, sink)
	if err != nil {
		sink.respond(errorResponse(err))
		return
	}
	defer es.svc.CloseEventConnection(conn)
	sink.respond(&Response{OK: true})

	// Direct channels opened over this socket die with it.
	var sessionChannels []schema.ConnectionID
	defer func() {
		for _, id := range sessionChannels {
			if err := es.svc.CloseDirectChannel(id); err != nil {
				es.logger.Warn("session direct channel teardown failed", "channel", id, "error", err)
			}
		}
	}()

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				es.logger.Debug("event socket read ended", "connection", conn.ID(), "error", err)
			}
			return
		}
		resp := es.dispatch(conn, uid, &req, &sessionChannels)
		if resp != nil {
			sink.respond(resp)
		}
	}
}

func (es *eventServer) dispatch(conn *connection.EventConnection, uid int32, req *Request, sessionChannels *[]schema.ConnectionID) *Response {
	switch req.Action {
	case ActionListSensors:
		return &Response{OK: true, Sensors: es.svc.ListSensors(conn.Privileged())}

	case ActionEnable:
		return statusResponse(conn.Enable(req.Handle, req.PeriodNs, req.LatencyNs))

	case ActionDisable:
		return statusResponse(conn.Disable(req.Handle))

	case ActionSetRate:
		return statusResponse(conn.SetEventRate(req.Handle, req.PeriodNs))

	case ActionFlush:
		return statusResponse(conn.Flush())

	case ActionAck:
		es.svc.HandleAck(conn.ID())
		return nil // acks are fire-and-forget; no response frame

	case ActionOpenDirect:
		id, err := es.svc.OpenDirectChannel(conn.Package(), uid, req.DeviceID, req.MemoryPath, req.MemorySize)
		if err != nil {
			return errorResponse(err)
		}
		*sessionChannels = append(*sessionChannels, id)
		return &Response{OK: true, Channel: uint64(id)}

	case ActionConfigDirect:
		return statusResponse(es.svc.ConfigureDirectChannel(schema.ConnectionID(req.Channel), req.Handle, req.RateLevel))

	case ActionCloseDirect:
		id := schema.ConnectionID(req.Channel)
		for i, open := range *sessionChannels {
			if open == id {
				*sessionChannels = append((*sessionChannels)[:i], (*sessionChannels)[i+1:]...)
				return statusResponse(es.svc.CloseDirectChannel(id))
			}
		}
		return errorResponse(sensorerr.New(sensorerr.BadValue, "service.server", "channel not owned by this session"))

	default:
		return errorResponse(sensorerr.New(sensorerr.BadValue, "service.server", "unknown action "+req.Action))
	}
}

func statusResponse(err error) *Response {
	if err != nil {
		return errorResponse(err)
	}
	return &Response{OK: true}
}

func errorResponse(err error) *Response {
	return &Response{
		OK:        false,
		Error:     err.Error(),
		ErrorKind: sensorerr.KindOf(err).String(),
	}
}

// socketSink delivers Frames to one client socket. Events pass
// through a bounded queue drained by a single writer goroutine so a
// slow client stalls only its own delivery; responses are written
// from the request-handler goroutine under the same write mutex, so
// the CBOR stream never interleaves.
type socketSink struct {
	writeMu sync.Mutex
	encoder *codec.Encoder
	logger  *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []schema.Event
	closed bool
	done   chan struct{}
}

func newSocketSink(conn net.Conn, logger *slog.Logger) *socketSink {
	s := &socketSink{
		encoder: codec.NewEncoder(conn),
		logger:  logger,
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.writer()
	return s
}

// SendEvent implements connection.EventSink. Never blocks the
// dispatch loop: on overflow the oldest non-wake event is dropped;
// when the queue is all wake events (each of which charged the
// wakelock refcount and must reach the client) an incoming non-wake
// event is dropped instead, and an incoming wake event displaces the
// oldest queued one.
func (s *socketSink) SendEvent(event schema.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sensorerr.New(sensorerr.DeadObject, "service.sink", "socket closed")
	}
	if len(s.queue) >= socketBufferEvents {
		dropped := false
		for i, queued := range s.queue {
			if !queued.NeedsAck() {
				copy(s.queue[i:], s.queue[i+1:])
				s.queue = s.queue[:len(s.queue)-1]
				dropped = true
				break
			}
		}
		if !dropped {
			if !event.NeedsAck() {
				s.logger.Warn("event queue full of wake events, dropping incoming", "handle", event.SensorHandle)
				return nil
			}
			copy(s.queue, s.queue[1:])
			s.queue = s.queue[:len(s.queue)-1]
		}
		s.logger.Warn("event queue overflow, dropped oldest", "depth", len(s.queue))
	}
	s.queue = append(s.queue, event)
	s.cond.Signal()
	return nil
}

// QueueDepth reports the number of events awaiting the writer, for
// the diagnostic dump's memory approximation.
func (s *socketSink) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *socketSink) respond(resp *Response) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.encoder.Encode(Frame{Kind: frameResponse, Response: resp}); err != nil {
		s.logger.Debug("response write failed", "error", err)
	}
}

func (s *socketSink) writer() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed && len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		event := s.queue[0]
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		s.mu.Unlock()

		s.writeMu.Lock()
		err := s.encoder.Encode(Frame{Kind: frameEvent, Event: &event})
		s.writeMu.Unlock()
		if err != nil {
			s.mu.Lock()
			s.closed = true
			s.queue = nil
			s.mu.Unlock()
			return
		}
	}
}

func (s *socketSink) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
	<-s.done
}
