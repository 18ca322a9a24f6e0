// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command sensordctl is the operator shell for sensord. It forwards
// its arguments to the daemon's control socket and prints the result:
//
//	sensordctl set-uid-state com.example idle --user 10
//	sensordctl get-uid-state com.example
//	sensordctl restrict-ht
//	sensordctl dump --proto > dump.cbor
//
// Commands are parsed and executed by the daemon; this binary is a
// thin transport so the two never disagree about syntax. The exit
// code is the daemon's: 0 on success, 1 on execution failure, 2 on a
// parse or permission failure.
package main
