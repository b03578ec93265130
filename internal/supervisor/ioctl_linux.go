// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package supervisor

import "golang.org/x/sys/unix"

// Terminal-attribute ioctl requests differ across build targets; this
// module only ships the Linux variant.
const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)
