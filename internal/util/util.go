//go:build !windows

// Package util holds small platform helpers for the command line entry point.
package util

// IsRunFromGUI reports whether the binary was started from a file manager
// rather than a terminal. Only Windows can tell the difference.
func IsRunFromGUI() bool {
	return false
}
