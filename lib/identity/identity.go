// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// KeySize is the length in bytes of the persisted HMAC key.
const KeySize = 128

// Key is the HMAC-SHA256 key used to derive anonymized dynamic-sensor
// IDs. It is read once at init and thereafter immutable.
type Key [KeySize]byte

// LoadOrGenerate reads the HMAC key from path. If the file does not
// exist, it generates KeySize random bytes, attempts to persist them
// to path with mode 0400 (owner read-only), and returns the key
// regardless of whether persistence succeeded -- dynamic sensor IDs
// will then change across reboots, but the service remains usable.
// A read failure other than the file being absent (permission denied,
// corrupt length) is returned as an error: that indicates a
// misconfigured state directory, not an expected first-run condition.
func LoadOrGenerate(path string, logger *slog.Logger) (Key, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != KeySize {
			return Key{}, fmt.Errorf("identity: key file %s has length %d, want %d", path, len(data), KeySize)
		}
		var key Key
		copy(key[:], data)
		return key, nil
	}
	if !os.IsNotExist(err) {
		return Key{}, fmt.Errorf("identity: reading key file %s: %w", path, err)
	}

	var key Key
	if _, err := rand.Read(key[:]); err != nil {
		return Key{}, fmt.Errorf("identity: generating key: %w", err)
	}

	if err := persistAtomic(path, key[:]); err != nil {
		logger.Warn("failed to persist HMAC key; dynamic sensor IDs will not survive a restart",
			"path", path, "error", err)
	}

	return key, nil
}

// persistAtomic writes data to path via temporary file, fsync,
// rename, and parent-directory fsync, so readers never observe a
// partial key. Mode 0400: the key is owner read-only and never
// rewritten once persisted.
func persistAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0400)
	if err != nil {
		return fmt.Errorf("creating temporary key file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary key file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary key file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary key file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming key file into place: %w", err)
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return nil
}

// IDFromUUID derives the anonymized dynamic-sensor ID for uuid as
// observed by callerUID:
//
//   - the all-zeros UUID maps to 0 (meaning "no dynamic identity")
//   - the all-ones UUID maps to -1 (meaning "identify by type+name")
//   - otherwise HMAC-SHA256(key, uuid || callerUID), truncated to the
//     first 4 bytes as a signed int32, avoiding the two sentinel
//     values above by remapping 0 -> 1 and -1 -> -2.
func IDFromUUID(key Key, id uuid.UUID, callerUID int32) int32 {
	if id == (uuid.UUID{}) {
		return 0
	}
	if id == allOnesUUID {
		return -1
	}

	mac := hmac.New(sha256.New, key[:])
	mac.Write(id[:])
	var uidBytes [4]byte
	binary.BigEndian.PutUint32(uidBytes[:], uint32(callerUID))
	mac.Write(uidBytes[:])
	sum := mac.Sum(nil)

	result := int32(binary.BigEndian.Uint32(sum[:4]))
	switch result {
	case 0:
		return 1
	case -1:
		return -2
	default:
		return result
	}
}

var allOnesUUID = func() uuid.UUID {
	var u uuid.UUID
	for i := range u {
		u[i] = 0xff
	}
	return u
}()

// AnonymizeUUID returns id unchanged for a privileged caller, and the
// all-zeros UUID for a non-privileged one.
func AnonymizeUUID(id uuid.UUID, privileged bool) uuid.UUID {
	if privileged {
		return id
	}
	return uuid.UUID{}
}
