// Package attach imports exported devices into the local USB/IP client.
package attach

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/fightstick/fightstick/usbip"
)

var (
	ErrUnsupported  = errors.New("auto-attach is not supported on this platform")
	ErrNoExportMeta = errors.New("device has no export metadata")
)

// BusID formats meta the way the usbip tool expects it.
func BusID(meta *usbip.ExportMeta) string {
	return fmt.Sprintf("%d-%d", meta.BusId, meta.DevId)
}

// Args is the usbip argument list that imports meta from localhost:port.
func Args(meta *usbip.ExportMeta, port uint16) []string {
	return []string{
		"--tcp-port", strconv.FormatUint(uint64(port), 10),
		"attach",
		"-r", "localhost",
		"-b", BusID(meta),
	}
}
