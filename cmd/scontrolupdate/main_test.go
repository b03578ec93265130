// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunWithNoArgsReturnsUsageError(t *testing.T) {
	assert.Equal(t, 1, run(nil))
}
