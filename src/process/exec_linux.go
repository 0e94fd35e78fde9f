package process

import "syscall"

// Children get SIGHUP if we die so builds don't outlive us.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGHUP}
}
