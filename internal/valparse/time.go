// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package valparse

import (
	"strconv"
	"strings"

	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// TimeInfinite is the sentinel minute value meaning "no time limit".
const TimeInfinite int64 = -1

// ParseTime accepts "minutes", "minutes:seconds", "hours:minutes:seconds",
// "days-hours", "days-hours:minutes", "days-hours:minutes:seconds", the
// literal "INFINITE", or the empty string (which also means INFINITE).
// Non-zero seconds round up to the next minute (§8 time round-trip law).
func ParseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "INFINITE") {
		return TimeInfinite, nil
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	var days, hours, mins, secs int64
	var err error

	dash := strings.IndexByte(s, '-')
	rest := s
	if dash >= 0 {
		days, err = strconv.ParseInt(s[:dash], 10, 64)
		if err != nil || days < 0 {
			return 0, allocerrors.NewParseError(s, "malformed day count in time value")
		}
		rest = s[dash+1:]
	}

	parts := strings.Split(rest, ":")
	switch len(parts) {
	case 1:
		if dash >= 0 {
			hours, err = parsePositiveInt(parts[0], s)
		} else {
			mins, err = parsePositiveInt(parts[0], s)
		}
	case 2:
		if dash >= 0 {
			hours, err = parsePositiveInt(parts[0], s)
			if err == nil {
				mins, err = parsePositiveInt(parts[1], s)
			}
		} else {
			mins, err = parsePositiveInt(parts[0], s)
			if err == nil {
				secs, err = parsePositiveInt(parts[1], s)
			}
		}
	case 3:
		hours, err = parsePositiveInt(parts[0], s)
		if err == nil {
			mins, err = parsePositiveInt(parts[1], s)
		}
		if err == nil {
			secs, err = parsePositiveInt(parts[2], s)
		}
	default:
		return 0, allocerrors.NewParseError(s, "too many ':'-separated fields in time value")
	}
	if err != nil {
		return 0, err
	}

	total := days*24*60 + hours*60 + mins
	if secs > 0 {
		total++
	}
	if negative {
		total = -total
	}
	return total, nil
}

func parsePositiveInt(s, orig string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, allocerrors.NewParseError(orig, "malformed numeric field in time value")
	}
	return n, nil
}

// ResolveTimeLimit applies the time-limit-specific rule: a parsed value of
// 0 becomes INFINITE; a negative, non-INFINITE value is a fatal error
// (§4.2 cross-field rules).
func ResolveTimeLimit(minutes int64) (int64, error) {
	if minutes == 0 {
		return TimeInfinite, nil
	}
	if minutes < 0 && minutes != TimeInfinite {
		return 0, allocerrors.NewValidationError("time-limit", "negative time limit")
	}
	return minutes, nil
}
