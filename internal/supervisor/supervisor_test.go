// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"os"
	"syscall"
	"testing"

	"github.com/hpcsched/alloc/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsInteractiveFalseForNonTTY(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "not-a-tty")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsInteractive(int(f.Fd()), false))
}

func TestIsInteractiveFalseWhenNoShell(t *testing.T) {
	assert.False(t, IsInteractive(0, true))
}

func TestSpawnAndWaitExitCode(t *testing.T) {
	log := logging.NewLogger(nil)
	child, err := Spawn([]string{"/bin/sh", "-c", "exit 7"}, os.Environ(), "", nil, syscall.SIGTERM, log)
	require.NoError(t, err)

	code := child.Wait(context.Background())
	assert.Equal(t, ExitCode(7), code)
}

func TestSpawnSuccessExitsZero(t *testing.T) {
	log := logging.NewLogger(nil)
	child, err := Spawn([]string{"/bin/true"}, os.Environ(), "", nil, syscall.SIGTERM, log)
	require.NoError(t, err)

	code := child.Wait(context.Background())
	assert.Equal(t, ExitCode(0), code)
}

func TestSpawnStoppedChildIsKilledAndReportsExitOne(t *testing.T) {
	log := logging.NewLogger(nil)
	child, err := Spawn([]string{"/bin/sh", "-c", "kill -STOP $$; sleep 5"}, os.Environ(), "", nil, syscall.SIGTERM, log)
	require.NoError(t, err)

	code := child.Wait(context.Background())
	assert.Equal(t, ExitCode(1), code)
}
