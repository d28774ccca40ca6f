//go:build windows
// +build windows

package cmd

import (
	"os"
	"strconv"
	"syscall"
	"unsafe"
)

var (
	kernel32                       = syscall.NewLazyDLL("kernel32.dll")
	procGetConsoleScreenBufferInfo = kernel32.NewProc("GetConsoleScreenBufferInfo")
)

type (
	coord struct {
		X int16
		Y int16
	}
	smallRect struct {
		Left   int16
		Top    int16
		Right  int16
		Bottom int16
	}
	consoleScreenBufferInfo struct {
		Size              coord
		CursorPosition    coord
		Attributes        int16
		Window            smallRect
		MaximumWindowSize coord
	}
)

// getTerminalSize returns terminal dimensions for Windows. COLUMNS/LINES
// win when both are set; otherwise the console API is consulted.
// Returns (0, 0) when neither works and leaves detection to tview.
func getTerminalSize() (int, int) {
	if cols, errC := strconv.Atoi(os.Getenv("COLUMNS")); errC == nil {
		if rows, errR := strconv.Atoi(os.Getenv("LINES")); errR == nil {
			return cols, rows
		}
	}

	var csbi consoleScreenBufferInfo
	ret, _, _ := procGetConsoleScreenBufferInfo.Call(
		uintptr(syscall.Stdout),
		uintptr(unsafe.Pointer(&csbi)))
	if ret != 0 {
		width := int(csbi.Window.Right - csbi.Window.Left + 1)
		height := int(csbi.Window.Bottom - csbi.Window.Top + 1)
		if width > 0 && height > 0 {
			return width, height
		}
	}

	return 0, 0
}
