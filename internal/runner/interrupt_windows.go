//go:build windows

package runner

import "golang.org/x/sys/windows"

// sendInterrupt delivers CTRL_C_EVENT to our own process group.
func sendInterrupt() {
	_ = windows.GenerateConsoleCtrlEvent(windows.CTRL_C_EVENT, 0)
}
