// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package valparse

import "strings"

// Compression names the supported file-broadcast compression algorithms.
type Compression string

const (
	CompressionZlib Compression = "zlib"
	CompressionLZ4  Compression = "lz4"
	CompressionNone Compression = "none"
)

// DefaultCompression is the compile-time default selected by an empty
// compression string.
const DefaultCompression = CompressionZlib

// ParseCompression parses "zlib", "lz4", or "none"; an empty string
// selects the compile-time default; anything else downgrades to "none"
// and reports that a warning should be emitted (§4.1).
func ParseCompression(s string) (algo Compression, warn bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultCompression, false
	case string(CompressionZlib):
		return CompressionZlib, false
	case string(CompressionLZ4):
		return CompressionLZ4, false
	case string(CompressionNone):
		return CompressionNone, false
	default:
		return CompressionNone, true
	}
}
