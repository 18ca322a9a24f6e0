// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/sensormux/sensord/lib/codec"
	"github.com/sensormux/sensord/lib/service"
)

const defaultControlSocket = "/run/sensord/control.sock"

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("sensordctl", pflag.ContinueOnError)
	socketPath := flags.String("socket", defaultControlSocket, "path to the sensord control socket")
	timeout := flags.Duration("timeout", 10*time.Second, "per-request deadline")
	// Everything after the first non-flag argument belongs to the
	// daemon-side command, including its own --user/--proto flags.
	flags.SetInterspersed(false)
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sensordctl: %v\n", err)
		return 2
	}
	args := flags.Args()
	if len(args) == 0 {
		args = []string{"help"}
	}

	conn, err := net.DialTimeout("unix", *socketPath, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sensordctl: connecting to %s: %v\n", *socketPath, err)
		return 1
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(*timeout)); err != nil {
		fmt.Fprintf(os.Stderr, "sensordctl: %v\n", err)
		return 1
	}

	if err := codec.NewEncoder(conn).Encode(service.ControlRequest{Args: args}); err != nil {
		fmt.Fprintf(os.Stderr, "sensordctl: sending request: %v\n", err)
		return 1
	}
	var resp service.ControlResponse
	if err := codec.NewDecoder(conn).Decode(&resp); err != nil {
		fmt.Fprintf(os.Stderr, "sensordctl: reading response: %v\n", err)
		return 1
	}

	if resp.Output != "" {
		out := os.Stdout
		if resp.ExitCode != 0 {
			out = os.Stderr
		}
		fmt.Fprint(out, resp.Output)
	}
	if len(resp.Data) > 0 {
		if _, err := os.Stdout.Write(resp.Data); err != nil {
			fmt.Fprintf(os.Stderr, "sensordctl: writing output: %v\n", err)
			return 1
		}
	}
	return resp.ExitCode
}
