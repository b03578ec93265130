// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package valparse

import (
	"strconv"
	"strings"

	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// ParseGeometry parses N colon- or cross-separated unsigned integers, one
// per system dimension; every value must be > 0 (§4.1).
func ParseGeometry(s string) ([]int, error) {
	sep := ":"
	if strings.ContainsRune(s, 'x') {
		sep = "x"
	}

	parts := strings.Split(s, sep)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, allocerrors.NewParseError(s, "geometry dimension must be a positive integer")
		}
		out = append(out, n)
	}
	return out, nil
}
