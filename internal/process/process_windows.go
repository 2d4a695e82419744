//go:build windows

package process

import (
	"os"
	"os/exec"
)

func isolate(cmd *exec.Cmd) {}

// Windows has no SIGTERM; closing stdin is the polite request and Kill the
// only signal.
func signalTerminate(p *os.Process) error { return nil }

func forceKill(p *os.Process) error { return p.Kill() }
