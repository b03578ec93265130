// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmitPolicyWaitTimeIsLinear(t *testing.T) {
	p := NewSubmitPolicy(10, time.Second, 10*time.Second)

	assert.Equal(t, 1*time.Second, p.WaitTime(0))
	assert.Equal(t, 2*time.Second, p.WaitTime(1))
	assert.Equal(t, 10*time.Second, p.WaitTime(9))
	assert.Equal(t, 10*time.Second, p.WaitTime(20))
}

func TestSubmitPolicyShouldRetry(t *testing.T) {
	p := NewSubmitPolicy(10, time.Second, 10*time.Second)

	assert.True(t, p.ShouldRetry(0))
	assert.True(t, p.ShouldRetry(9))
	assert.False(t, p.ShouldRetry(10))
}
