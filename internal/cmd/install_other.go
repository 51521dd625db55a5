//go:build !linux

package cmd

import "log/slog"

func install(_ *slog.Logger, _ string, _ int) error {
	return errInstallUnsupported
}

func uninstall(_ *slog.Logger) error {
	return errInstallUnsupported
}
