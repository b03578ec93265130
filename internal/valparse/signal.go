// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package valparse

import (
	"strconv"
	"strings"

	allocerrors "github.com/hpcsched/alloc/pkg/errors"
)

// signalNumbers maps the recognised signal names (without "SIG") to their
// Linux signal numbers, matching the set named in §4.1.
var signalNumbers = map[string]int{
	"HUP": 1, "INT": 2, "QUIT": 3, "ABRT": 6, "KILL": 9,
	"USR1": 10, "USR2": 12, "PIPE": 13, "ALRM": 14, "TERM": 15,
	"CHLD": 17, "CONT": 18, "STOP": 19, "TSTP": 20,
	"TTIN": 21, "TTOU": 22, "URG": 23,
}

const sigrtmax = 64

// Signal is the result of parsing a signal expression, with its optional
// "B:" batch flag and "@seconds" lead time (§4.1).
type Signal struct {
	Num      int
	Batch    bool
	LeadTime int64 // seconds, 0 if not specified
}

// ParseSignal accepts a decimal in [1, SIGRTMAX) or a case-insensitive name
// (with optional "SIG" prefix) from the recognised set, with an optional
// leading "B:" batch flag and trailing "@seconds" lead time.
func ParseSignal(s string) (Signal, error) {
	orig := s
	var result Signal

	if strings.HasPrefix(strings.ToUpper(s), "B:") {
		result.Batch = true
		s = s[2:]
	}

	if at := strings.IndexByte(s, '@'); at >= 0 {
		secs, err := strconv.ParseInt(s[at+1:], 10, 64)
		if err != nil || secs < 0 {
			return Signal{}, allocerrors.NewParseError(orig, "malformed signal lead time")
		}
		result.LeadTime = secs
		s = s[:at]
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n >= sigrtmax {
			return Signal{}, allocerrors.NewParseError(orig, "signal number out of range")
		}
		result.Num = n
		return result, nil
	}

	name := strings.ToUpper(s)
	name = strings.TrimPrefix(name, "SIG")
	num, ok := signalNumbers[name]
	if !ok {
		return Signal{}, allocerrors.NewParseError(orig, "unrecognized signal name")
	}
	result.Num = num
	return result, nil
}

// SignalNameToNum resolves a bare signal name (with or without "SIG"
// prefix) or numeric string to its number, for the §8 signal round-trip
// law: SignalNameToNum(n) == SignalNameToNum("SIG"+n).
func SignalNameToNum(s string) (int, error) {
	sig, err := ParseSignal(s)
	if err != nil {
		return 0, err
	}
	return sig.Num, nil
}
