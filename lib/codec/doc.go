// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides sensord's standard CBOR encoding configuration.
// sensord uses CBOR for every internal protocol: the event socket
// (subscribe/enable/disable/flush requests and pushed Event frames),
// the control socket (shell command surface), and the `--proto`
// diagnostic dump. There is no JSON external interface; every
// subscriber is a local process speaking the same wire format.
// This package provides the shared CBOR encoding and decoding modes so
// that every sensord package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which matters for the diagnostic dump's stability across runs.
// For buffer-oriented operations (files, single messages):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// Wire protocol types use `cbor` struct tags. Types that also need a
// human-readable text dump format carry a `json` tag as a fallback;
// fxamacker/cbor v2 reads `json` tags when `cbor` tags are absent, so a
// single tag set controls field naming and omitempty for both.
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract; doubling up is noise that obscures
// whether a type participates in text-dump serialization.
package codec
