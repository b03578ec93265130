// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package valparse

import (
	"strconv"
	"strings"

	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// ParseMemory parses a decimal integer with an optional K/M/G/T unit
// suffix (scaling by 2^10..2^40) and returns the value in MB, the
// protocol's default unit. defaultGBytes selects GB instead of MB as the
// unit for bare numbers with no suffix (§4.1, §8 memory law).
func ParseMemory(s string, defaultGBytes bool) (int64, error) {
	if s == "" {
		return 0, allocerrors.NewParseError(s, "empty memory value")
	}

	unit := byte(0)
	numPart := s
	last := s[len(s)-1]
	if last == 'K' || last == 'M' || last == 'G' || last == 'T' ||
		last == 'k' || last == 'm' || last == 'g' || last == 't' {
		unit = upper(last)
		numPart = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n < 0 {
		return 0, allocerrors.NewParseError(s, "malformed memory value")
	}

	switch unit {
	case 'K':
		return ceilDiv(n, 1024), nil
	case 'M':
		return n, nil
	case 'G':
		return n * 1024, nil
	case 'T':
		return n * 1024 * 1024, nil
	default:
		if defaultGBytes {
			return n * 1024, nil
		}
		return n, nil
	}
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func ceilDiv(n, d int64) int64 {
	return (n + d - 1) / d
}
