// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package valparse

import "strings"

// FormatTRESList prefixes every comma-separated element of a user-supplied
// tres string with P:, e.g. FormatTRESList("P", "a,b=2,c:3") returns
// "P:a,P:b=2,P:c:3" (§4.1 tres list formatter).
func FormatTRESList(prefix, userString string) string {
	if userString == "" {
		return ""
	}
	elems := strings.Split(userString, ",")
	for i, e := range elems {
		elems[i] = prefix + ":" + e
	}
	return strings.Join(elems, ",")
}
