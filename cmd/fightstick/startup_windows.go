//go:build windows

package main

import (
	"log/slog"
	"os"

	"github.com/fightstick/fightstick/internal/util"
)

// A double-clicked binary has no arguments; run play with the defaults.
func init() {
	if util.IsRunFromGUI() && len(os.Args) < 2 {
		slog.Info("Detected GUI startup, playing the built-in macro")
		slog.Warn("Run from a terminal for more options!")
		os.Args = append(os.Args, "play")
	}
}
