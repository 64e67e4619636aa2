//go:build !windows

package launcher

import "syscall"

// sysProcAttr detaches the child into its own process group so signals sent
// to the controller never reach launched workers.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
