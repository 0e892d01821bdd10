//go:build !unix && !windows

package process

import "os/exec"

func setDetachedProcAttr(*exec.Cmd) {}
