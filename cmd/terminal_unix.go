//go:build !windows
// +build !windows

package cmd

import (
	"os"
	"strconv"
	"syscall"
	"unsafe"
)

// getTerminalSize returns terminal dimensions for Unix-like systems.
// COLUMNS/LINES win when both are set; otherwise the stdout winsize
// ioctl is consulted. Returns (0, 0) when neither works.
func getTerminalSize() (int, int) {
	if cols, errC := strconv.Atoi(os.Getenv("COLUMNS")); errC == nil {
		if rows, errR := strconv.Atoi(os.Getenv("LINES")); errR == nil {
			return cols, rows
		}
	}

	type winsize struct {
		Row    uint16
		Col    uint16
		Xpixel uint16
		Ypixel uint16
	}

	ws := &winsize{}
	retCode, _, _ := syscall.Syscall(syscall.SYS_IOCTL,
		os.Stdout.Fd(),
		uintptr(syscall.TIOCGWINSZ),
		uintptr(unsafe.Pointer(ws)))
	if int(retCode) == -1 {
		return 0, 0
	}

	return int(ws.Col), int(ws.Row)
}
