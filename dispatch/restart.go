// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"fmt"
	"os"
	"syscall"
)

// execRestart replaces the current process image with a fresh copy of
// the same binary, arguments, and environment. On success it does not
// return.
func execRestart() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("dispatch: resolving executable: %w", err)
	}
	if err := syscall.Exec(executable, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("dispatch: exec %s: %w", executable, err)
	}
	return nil
}
