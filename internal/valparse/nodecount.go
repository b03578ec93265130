// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package valparse implements the value parsers of §4.1: node counts,
// memory sizes, time strings, signals, distributions, geometries,
// resource tuples, mail-type lists, compression selectors, and tres
// formatting. Every parser is pure and reentrant.
package valparse

import (
	"strconv"
	"strings"

	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// NodeCount is the (min, max) result of parsing a node-count expression.
type NodeCount struct {
	Min, Max int64
}

// ParseNodeCount parses "N" into (N, N) or "min-max" into (min, max) with
// max >= min. A k/K suffix multiplies by 1024, m/M by 1024^2. A value
// containing '/' is not a node count; the caller must read it as a
// hostfile path instead (§3 invariant 7).
func ParseNodeCount(s string) (NodeCount, error) {
	if strings.ContainsRune(s, '/') {
		return NodeCount{}, allocerrors.NewParseError(s, "node count contains '/': treat as hostfile path")
	}

	dash := strings.IndexByte(s, '-')
	if dash < 0 {
		n, err := parseScaledInt(s)
		if err != nil {
			return NodeCount{}, err
		}
		return NodeCount{Min: n, Max: n}, nil
	}

	minStr, maxStr := s[:dash], s[dash+1:]
	min, err := parseScaledInt(minStr)
	if err != nil {
		return NodeCount{}, err
	}
	max, err := parseScaledInt(maxStr)
	if err != nil {
		return NodeCount{}, err
	}
	if max < min {
		return NodeCount{}, allocerrors.NewParseError(s, "node count max less than min")
	}
	return NodeCount{Min: min, Max: max}, nil
}

// parseScaledInt parses a decimal integer with an optional k/K (x1024) or
// m/M (x1024^2) suffix, rejecting any leading/trailing whitespace or other
// trailing garbage.
func parseScaledInt(s string) (int64, error) {
	if s == "" {
		return 0, allocerrors.NewParseError(s, "empty node count")
	}
	if s != strings.TrimSpace(s) {
		return 0, allocerrors.NewParseError(s, "whitespace in node count")
	}

	scale := int64(1)
	numPart := s
	switch s[len(s)-1] {
	case 'k', 'K':
		scale = 1024
		numPart = s[:len(s)-1]
	case 'm', 'M':
		scale = 1024 * 1024
		numPart = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, allocerrors.NewParseError(s, "malformed node count")
	}
	return n * scale, nil
}
