// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// ContentHash fingerprints the raw bytes of a file with 64-bit xxhash, a
// fast, non-cryptographic fingerprint used purely for change detection.
func ContentHash(data []byte) []byte {
	sum := xxhash.Sum64(data)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, sum)
	return buf
}
