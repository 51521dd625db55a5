//go:build !linux

package attach

import (
	"context"
	"log/slog"

	"github.com/fightstick/fightstick/usbip"
)

func Attach(_ context.Context, _ *usbip.ExportMeta, _ uint16, _ *slog.Logger) error {
	return ErrUnsupported
}

func CheckPrerequisites(logger *slog.Logger) bool {
	logger.Warn("Auto-attach is only available on Linux; attach the device with your USB/IP client")
	return false
}
