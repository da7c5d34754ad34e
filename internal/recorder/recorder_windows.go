// SPDX-License-Identifier: MIT

//go:build windows

package recorder

import (
	"io"
	"os/exec"
)

// platformStop writes "q" to the muxer's stdin, its graceful-quit signal
// on Windows where os.Process.Signal cannot deliver SIGINT to a child.
func platformStop(_ *exec.Cmd, stdin io.WriteCloser) error {
	if stdin == nil {
		return nil
	}
	_, err := stdin.Write([]byte("q"))
	return err
}
