// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommandPrintsRuntimeAndSpec(t *testing.T) {
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "runtime:")
	assert.Contains(t, out.String(), "spec:")
}

func TestCreateRequiresExactlyOneArg(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"create", "--bundle", "/tmp/bundle", "c-1", "extra-arg"})
	assert.Error(t, root.Execute())
}

func TestCreateRequiresBundleFlag(t *testing.T) {
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"create", "c-1"})
	assert.Error(t, root.Execute())
}

func TestKillRejectsUnrecognisedSignal(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"kill", "c-1", "not-a-signal"})
	assert.Error(t, root.Execute())
}

func TestParseKillSignalAcceptsNamesAnyCase(t *testing.T) {
	sig, err := parseKillSignal("sigterm")
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGTERM, sig)

	sig, err = parseKillSignal("KILL")
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGKILL, sig)

	sig, err = parseKillSignal("9")
	require.NoError(t, err)
	assert.Equal(t, syscall.Signal(9), sig)
}

func TestInsideUserNamespaceDoesNotPanic(t *testing.T) {
	// /proc/self/uid_map is Linux-only and may be unreadable in a
	// sandboxed test runner; either way the helper must not panic.
	assert.NotPanics(t, func() { insideUserNamespace() })
}
