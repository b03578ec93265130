// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package valparse

import (
	"strings"

	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// ResourceTuple is the parsed S[:C[:T]] sockets/cores/threads expression.
// Each field is either unset (wildcard) or a (min, max) range.
type ResourceTuple struct {
	Sockets, Cores, Threads NodeCount
	SocketsSet, CoresSet, ThreadsSet bool
}

// ParseResourceTuple parses "S[:C[:T]]" where each field is "*" (unset),
// "N" (exact), or "min-max" (range), with optional K/M suffix (§4.1).
// A G suffix is not accepted.
func ParseResourceTuple(s string) (ResourceTuple, error) {
	parts := strings.SplitN(s, ":", 3)
	var rt ResourceTuple

	parseField := func(tok string) (NodeCount, bool, error) {
		tok = strings.TrimSpace(tok)
		if tok == "" || tok == "*" {
			return NodeCount{}, false, nil
		}
		nc, err := ParseNodeCount(tok)
		if err != nil {
			return NodeCount{}, false, err
		}
		if nc.Min < 1 {
			return NodeCount{}, false, allocerrors.NewParseError(s, "resource tuple field must be >= 1")
		}
		return nc, true, nil
	}

	if len(parts) >= 1 {
		nc, set, err := parseField(parts[0])
		if err != nil {
			return ResourceTuple{}, err
		}
		rt.Sockets, rt.SocketsSet = nc, set
	}
	if len(parts) >= 2 {
		nc, set, err := parseField(parts[1])
		if err != nil {
			return ResourceTuple{}, err
		}
		rt.Cores, rt.CoresSet = nc, set
	}
	if len(parts) >= 3 {
		nc, set, err := parseField(parts[2])
		if err != nil {
			return ResourceTuple{}, err
		}
		rt.Threads, rt.ThreadsSet = nc, set
	}

	return rt, nil
}
