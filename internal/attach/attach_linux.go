//go:build linux

package attach

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"

	"github.com/fightstick/fightstick/usbip"
)

var procModules = "/proc/modules"

// Attach runs the usbip client against the local server.
func Attach(ctx context.Context, meta *usbip.ExportMeta, port uint16, logger *slog.Logger) error {
	if meta == nil {
		return ErrNoExportMeta
	}
	logger.Info("Auto-attaching localhost client", "busID", BusID(meta), "port", port)

	output, err := exec.CommandContext(ctx, "usbip", Args(meta, port)...).CombinedOutput()
	if err != nil {
		logger.Error("Failed to attach device",
			"error", err,
			"port", port,
			"output", string(output))
		return err
	}
	logger.Debug("usbip attach output", "output", string(output))
	return nil
}

// CheckPrerequisites reports whether the usbip tool and the vhci_hcd module
// are available, logging install hints when they are not.
func CheckPrerequisites(logger *slog.Logger) bool {
	ok := true

	if _, err := exec.LookPath("usbip"); err != nil {
		logger.Warn("USB/IP tool 'usbip' not found in PATH")
		logger.Info("Install usbip:")
		logger.Info("  Ubuntu/Debian: sudo apt install linux-tools-generic")
		logger.Info("  Arch Linux:    sudo pacman -S usbip")
		ok = false
	} else {
		logger.Debug("usbip tool found in PATH")
	}

	data, err := os.ReadFile(procModules)
	switch {
	case err != nil:
		logger.Debug("Could not read module list", "path", procModules, "error", err)
	case !bytes.Contains(data, []byte("vhci_hcd")):
		logger.Warn("USB/IP kernel module 'vhci-hcd' is not loaded")
		logger.Info("To load the module now:")
		logger.Info("  sudo modprobe vhci-hcd")
		logger.Info("To load it at boot:")
		logger.Info("  echo 'vhci-hcd' | sudo tee /etc/modules-load.d/fightstick.conf")
		ok = false
	default:
		logger.Debug("vhci-hcd kernel module is loaded")
	}
	return ok
}
