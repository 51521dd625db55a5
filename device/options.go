package device

// CreateOptions overrides descriptor identity fields when a device is built.
// Nil fields keep the device's defaults.
type CreateOptions struct {
	IdVendor  *uint16
	IdProduct *uint16
}
