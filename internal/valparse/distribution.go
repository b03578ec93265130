// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package valparse

import (
	"strconv"
	"strings"

	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// DistType is one layout token of a distribution expression.
type DistType string

const (
	DistBlock     DistType = "block"
	DistCyclic    DistType = "cyclic"
	DistArbitrary DistType = "arbitrary"
	DistFcyclic   DistType = "fcyclic"
	DistPlane     DistType = "plane"
)

// Distribution is the parsed result of a (possibly multi-level)
// distribution expression, e.g. "block:cyclic:fcyclic,nopack" or
// "plane=4" (§4.1).
type Distribution struct {
	Node      DistType
	Socket    DistType
	Core      DistType
	PlaneSize int // only meaningful when Node == DistPlane
	Pack      bool
	PackSet   bool
}

// ParseDistribution parses up to three colon-separated levels plus any
// comma-separated pack/nopack tokens. "*" at a level means "inherit":
// node defaults to block, socket defaults to cyclic, core defaults to
// whatever socket resolved to.
func ParseDistribution(s string) (Distribution, error) {
	var dist Distribution
	dist.Node = DistBlock
	dist.Socket = DistCyclic

	fields := strings.Split(s, ",")
	levels := fields[0]
	extras := fields[1:]

	for _, extra := range extras {
		switch strings.ToLower(strings.TrimSpace(extra)) {
		case "pack":
			dist.Pack, dist.PackSet = true, true
		case "nopack":
			dist.Pack, dist.PackSet = false, true
		default:
			return Distribution{}, allocerrors.NewParseError(s, "unknown distribution token")
		}
	}

	levelParts := strings.Split(levels, ":")
	if len(levelParts) > 3 {
		return Distribution{}, allocerrors.NewParseError(s, "too many distribution levels")
	}

	resolve := func(tok string, inherited DistType) (DistType, error) {
		tok = strings.TrimSpace(tok)
		if tok == "" || tok == "*" {
			return inherited, nil
		}
		eq := strings.IndexByte(tok, '=')
		base := tok
		if eq >= 0 {
			base = tok[:eq]
		}
		switch strings.ToLower(base) {
		case string(DistBlock):
			return DistBlock, nil
		case string(DistCyclic):
			return DistCyclic, nil
		case string(DistArbitrary):
			return DistArbitrary, nil
		case string(DistFcyclic):
			return DistFcyclic, nil
		case string(DistPlane):
			return DistPlane, nil
		default:
			return "", allocerrors.NewParseError(tok, "unknown distribution type")
		}
	}

	if len(levelParts) >= 1 && levelParts[0] != "" {
		node, err := resolve(levelParts[0], dist.Node)
		if err != nil {
			return Distribution{}, err
		}
		dist.Node = node
		if node == DistPlane {
			if eq := strings.IndexByte(levelParts[0], '='); eq >= 0 {
				size, err := strconv.Atoi(levelParts[0][eq+1:])
				if err != nil || size <= 0 {
					return Distribution{}, allocerrors.NewParseError(s, "malformed plane size")
				}
				dist.PlaneSize = size
			}
		}
	}
	if len(levelParts) >= 2 {
		socket, err := resolve(levelParts[1], dist.Socket)
		if err != nil {
			return Distribution{}, err
		}
		dist.Socket = socket
	}
	if len(levelParts) >= 3 {
		core, err := resolve(levelParts[2], dist.Socket)
		if err != nil {
			return Distribution{}, err
		}
		dist.Core = core
	} else {
		dist.Core = dist.Socket
	}

	return dist, nil
}

// CheckPlaneLayout implements invariant 6: reject a plane distribution
// when there aren't enough tasks for the requested layout.
func CheckPlaneLayout(numNodes, numTasks, planeSize int64) error {
	if planeSize <= 0 {
		return nil
	}
	if numTasks/planeSize < numNodes && (numNodes-1)*planeSize >= numTasks {
		return allocerrors.NewValidationError("distribution",
			"insufficient tasks for requested plane layout")
	}
	return nil
}
