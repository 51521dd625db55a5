// Package device holds what every emulated device shares: creation options
// and the lifecycle context handed out by the bus.
package device

import (
	"context"

	"github.com/fightstick/fightstick/usbip"
)

type contextKey int

const exportMetaKey contextKey = iota

// WithExportMeta attaches bus metadata to a device context.
func WithExportMeta(ctx context.Context, meta *usbip.ExportMeta) context.Context {
	return context.WithValue(ctx, exportMetaKey, meta)
}

// GetDeviceMeta extracts the bus metadata from a device context, or nil.
func GetDeviceMeta(ctx context.Context) *usbip.ExportMeta {
	if meta, ok := ctx.Value(exportMetaKey).(*usbip.ExportMeta); ok {
		return meta
	}
	return nil
}
