// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package hostlist expands the bracketed range syntax shared by node-list
// strings (§3 placement fields) and job-array identifiers (§4.7), e.g.
// "node[01-03,05]" or "42_[1-3,5]".
package hostlist

import (
	"fmt"
	"strconv"
	"strings"

	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// Expand expands a single bracketed expression "prefix[ranges]suffix" into
// its component strings in order, preserving duplicates and input order.
// An expression with no brackets expands to itself alone.
func Expand(expr string) ([]string, error) {
	open := strings.IndexByte(expr, '[')
	if open < 0 {
		return []string{expr}, nil
	}
	closeIdx := strings.LastIndexByte(expr, ']')
	if closeIdx < open {
		return nil, allocerrors.NewParseError(expr, "unbalanced brackets in host expression")
	}

	prefix := expr[:open]
	body := expr[open+1 : closeIdx]
	suffix := expr[closeIdx+1:]

	items, err := expandRanges(body)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, prefix+item+suffix)
	}
	return out, nil
}

// expandRanges expands a comma-separated list of "a", "a-b", or zero-padded
// numeric ranges into the literal strings they denote, preserving any
// leading-zero width from the first bound.
func expandRanges(body string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(body, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, allocerrors.NewParseError(body, "empty range element")
		}

		dash := strings.IndexByte(part, '-')
		if dash < 0 {
			out = append(out, part)
			continue
		}

		loStr, hiStr := part[:dash], part[dash+1:]
		lo, err := strconv.Atoi(loStr)
		if err != nil {
			return nil, allocerrors.NewParseError(part, "malformed range start")
		}
		hi, err := strconv.Atoi(hiStr)
		if err != nil {
			return nil, allocerrors.NewParseError(part, "malformed range end")
		}
		if hi < lo {
			return nil, allocerrors.NewParseError(part, "range end before start")
		}

		width := 0
		if len(loStr) > 1 && loStr[0] == '0' {
			width = len(loStr)
		}

		for n := lo; n <= hi; n++ {
			if width > 0 {
				out = append(out, fmt.Sprintf("%0*d", width, n))
			} else {
				out = append(out, strconv.Itoa(n))
			}
		}
	}
	return out, nil
}

// ExpandJobArray expands a job-array identifier such as "42_[1-3,5]" into
// its component job-array task identifiers "42_1", "42_2", "42_3", "42_5",
// in order (§4.7, §8 array-expansion property). An identifier without an
// underscore-bracket suffix expands to itself alone.
func ExpandJobArray(id string) ([]string, error) {
	us := strings.IndexByte(id, '_')
	if us < 0 {
		return []string{id}, nil
	}

	base := id[:us]
	rest := id[us+1:]

	if !strings.HasPrefix(rest, "[") {
		// "_N" with a bare task id, not a range — not an array expression.
		return []string{id}, nil
	}

	closeIdx := strings.LastIndexByte(rest, ']')
	if closeIdx < 0 {
		return nil, allocerrors.NewParseError(id, "unbalanced brackets in job array expression")
	}

	items, err := expandRanges(rest[1:closeIdx])
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, base+"_"+item)
	}
	return out, nil
}

// ExpandFile reads a hostfile (one hostname per line, blank lines and
// lines beginning with '#' ignored) and returns the ordered host list
// plus the count of unique hosts (§3 invariant 7).
func ExpandFile(contents string) (hosts []string, uniqueCount int, err error) {
	seen := make(map[string]bool)
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hosts = append(hosts, line)
		if !seen[line] {
			seen[line] = true
			uniqueCount++
		}
	}
	return hosts, uniqueCount, nil
}

// IsHostfilePath reports whether a node-list argument should be treated as
// a path to a hostfile rather than an inline node-list expression (§3
// invariant 7: "contains /").
func IsHostfilePath(nodeList string) bool {
	return strings.ContainsRune(nodeList, '/')
}

// Join joins a list of hostnames with commas. It does not collapse
// contiguous numeric suffixes back into a bracketed expression.
func Join(hosts []string) string {
	if len(hosts) == 0 {
		return ""
	}
	if len(hosts) == 1 {
		return hosts[0]
	}
	return strings.Join(hosts, ",")
}

// FormatCPUsPerNode run-length-encodes a per-node CPU count list into the
// controller's environment-output form, e.g. []int32{4,2,2,2,1} becomes
// "4,2(x3),1" (§6 SLURM_JOB_CPUS_PER_NODE).
func FormatCPUsPerNode(counts []int32) string {
	if len(counts) == 0 {
		return ""
	}

	var b strings.Builder
	i := 0
	for i < len(counts) {
		j := i + 1
		for j < len(counts) && counts[j] == counts[i] {
			j++
		}
		run := j - i
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if run > 1 {
			fmt.Fprintf(&b, "%d(x%d)", counts[i], run)
		} else {
			fmt.Fprintf(&b, "%d", counts[i])
		}
		i = j
	}
	return b.String()
}
