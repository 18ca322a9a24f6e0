// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sensormux/sensord/lib/codec"
	"github.com/sensormux/sensord/lib/policy"
)

// controlServer serves the privileged shell command surface:
// one request-response exchange per connection, gated on
// the peer UID as the MANAGE_SENSORS check.
type controlServer struct {
	svc      *Service
	listener net.Listener
	logger   *slog.Logger
}

func newControlServer(svc *Service, listener net.Listener) *controlServer {
	return &controlServer{svc: svc, listener: listener, logger: svc.logger}
}

func (cs *controlServer) serve(ctx context.Context) {
	for {
		conn, err := cs.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			cs.logger.Warn("control socket accept failed", "error", err)
			continue
		}
		go cs.handle(conn)
	}
}

func (cs *controlServer) handle(conn net.Conn) {
	defer conn.Close()

	encoder := codec.NewEncoder(conn)

	uid, err := peerUID(conn)
	if err != nil {
		cs.logger.Warn("control peer credential lookup failed", "error", err)
		return
	}
	if uid != 0 && uid != policy.SystemUID {
		_ = encoder.Encode(ControlResponse{
			ExitCode: 2,
			Output:   "permission denied: MANAGE_SENSORS required\n",
		})
		return
	}

	var req ControlRequest
	if err := codec.NewDecoder(conn).Decode(&req); err != nil {
		return
	}
	resp := cs.svc.ExecuteCommand(req.Args)
	if err := encoder.Encode(resp); err != nil {
		cs.logger.Debug("control response write failed", "error", err)
	}
}

// ExecuteCommand runs one shell command. Exit code 0 on
// success, 1 on execution failure, 2 on a parse error.
func (s *Service) ExecuteCommand(args []string) ControlResponse {
	if len(args) == 0 {
		return ControlResponse{ExitCode: 2, Output: commandUsage}
	}
	command, rest := args[0], args[1:]
	switch command {
	case "set-uid-state":
		return s.cmdSetUIDState(rest)
	case "reset-uid-state":
		return s.cmdResetUIDState(rest)
	case "get-uid-state":
		return s.cmdGetUIDState(rest)
	case "restrict-ht":
		s.RestrictHeadTracker()
		return ControlResponse{ExitCode: 0}
	case "unrestrict-ht":
		s.UnrestrictHeadTracker()
		return ControlResponse{ExitCode: 0}
	case "dump":
		return s.cmdDump(rest)
	case "help":
		return ControlResponse{ExitCode: 0, Output: commandUsage}
	default:
		return ControlResponse{ExitCode: 2, Output: fmt.Sprintf("unknown command %q\n\n%s", command, commandUsage)}
	}
}

const commandUsage = `sensord commands:
  set-uid-state <package> <active|idle> [--user USER_ID]
    Override the UID-active state for the package.
  reset-uid-state <package> [--user USER_ID]
    Drop any override, returning the package's UID to active.
  get-uid-state <package> [--user USER_ID]
    Print "active" or "idle".
  restrict-ht
    Enforce the system/audio-server-only head-tracker gate.
  unrestrict-ht
    Lift the head-tracker gate (test builds).
  dump [--proto]
    Print the diagnostic dump, binary CBOR with --proto.
  help
    Print this text.
`

// userFlag builds the shared [--user U] flag set for the uid-state
// commands.
func userFlag(name string) (*pflag.FlagSet, *int) {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(&bytes.Buffer{})
	userID := flags.Int("user", 0, "user id")
	return flags, userID
}

func (s *Service) cmdSetUIDState(args []string) ControlResponse {
	flags, userID := userFlag("set-uid-state")
	if err := flags.Parse(args); err != nil {
		return ControlResponse{ExitCode: 2, Output: "set-uid-state: " + err.Error() + "\n"}
	}
	positional := flags.Args()
	if len(positional) != 2 {
		return ControlResponse{ExitCode: 2, Output: "usage: set-uid-state <package> <active|idle> [--user U]\n"}
	}
	var active bool
	switch positional[1] {
	case "active":
		active = true
	case "idle":
		active = false
	default:
		return ControlResponse{ExitCode: 2, Output: fmt.Sprintf("set-uid-state: state must be active or idle, got %q\n", positional[1])}
	}
	if err := s.SetUIDState(positional[0], *userID, active); err != nil {
		return ControlResponse{ExitCode: 1, Output: "set-uid-state: " + err.Error() + "\n"}
	}
	return ControlResponse{ExitCode: 0}
}

func (s *Service) cmdResetUIDState(args []string) ControlResponse {
	flags, userID := userFlag("reset-uid-state")
	if err := flags.Parse(args); err != nil {
		return ControlResponse{ExitCode: 2, Output: "reset-uid-state: " + err.Error() + "\n"}
	}
	positional := flags.Args()
	if len(positional) != 1 {
		return ControlResponse{ExitCode: 2, Output: "usage: reset-uid-state <package> [--user U]\n"}
	}
	if err := s.ResetUIDState(positional[0], *userID); err != nil {
		return ControlResponse{ExitCode: 1, Output: "reset-uid-state: " + err.Error() + "\n"}
	}
	return ControlResponse{ExitCode: 0}
}

func (s *Service) cmdGetUIDState(args []string) ControlResponse {
	flags, userID := userFlag("get-uid-state")
	if err := flags.Parse(args); err != nil {
		return ControlResponse{ExitCode: 2, Output: "get-uid-state: " + err.Error() + "\n"}
	}
	positional := flags.Args()
	if len(positional) != 1 {
		return ControlResponse{ExitCode: 2, Output: "usage: get-uid-state <package> [--user U]\n"}
	}
	active, err := s.GetUIDState(positional[0], *userID)
	if err != nil {
		return ControlResponse{ExitCode: 1, Output: "get-uid-state: " + err.Error() + "\n"}
	}
	state := "idle"
	if active {
		state = "active"
	}
	return ControlResponse{ExitCode: 0, Output: state + "\n"}
}

func (s *Service) cmdDump(args []string) ControlResponse {
	flags := pflag.NewFlagSet("dump", pflag.ContinueOnError)
	flags.SetOutput(&bytes.Buffer{})
	proto := flags.Bool("proto", false, "binary output")
	if err := flags.Parse(args); err != nil {
		return ControlResponse{ExitCode: 2, Output: "dump: " + err.Error() + "\n"}
	}
	// Reaching the control socket already required a privileged UID,
	// so the dump never masks.
	if *proto {
		data, err := s.DumpProto(true)
		if err != nil {
			return ControlResponse{ExitCode: 1, Output: "dump: " + err.Error() + "\n"}
		}
		return ControlResponse{ExitCode: 0, Data: data}
	}
	var text strings.Builder
	s.DumpText(&text, true)
	return ControlResponse{ExitCode: 0, Output: text.String()}
}
