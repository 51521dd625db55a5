package cmd

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

var errInstallUnsupported = errors.New("service installation is only supported on Linux (systemd)")

// Install registers fightstick as a service that plays a script at boot.
type Install struct {
	Script string `help:"Script the service plays (absolute path or 'builtin')" default:"builtin"`
	Repeat int    `help:"Repeat factor passed to play" default:"4"`
}

func (c *Install) Run(logger *slog.Logger) error {
	script := c.Script
	if script != "builtin" {
		abs, err := filepath.Abs(script)
		if err != nil {
			return err
		}
		if _, err := os.Stat(abs); err != nil {
			return err
		}
		script = abs
	}
	return install(logger, script, c.Repeat)
}

// Uninstall removes the service created by Install.
type Uninstall struct{}

func (c *Uninstall) Run(logger *slog.Logger) error {
	return uninstall(logger)
}

func currentExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}
