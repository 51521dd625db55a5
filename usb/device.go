package usb

// Device is the minimal interface a device must implement.
// It only handles non-EP0 (interrupt/bulk) transfers.
type Device interface {
	// HandleTransfer processes a non-EP0 transfer (interrupt/bulk).
	// ep is the endpoint number (without direction). dir is usbip.DirIn or usbip.DirOut.
	// For IN transfers, return the payload to send; for OUT, consume 'out' and return nil.
	HandleTransfer(ep uint32, dir uint32, out []byte) []byte
	GetDescriptor() *Descriptor
}

// ControlHandler is implemented by devices that answer class or vendor
// requests on EP0. Standard requests never reach it.
// The bool result reports whether the request was handled.
type ControlHandler interface {
	HandleControl(bmRequestType, bRequest uint8, wValue, wIndex, wLength uint16, data []byte) ([]byte, bool)
}

// ConnectionObserver is implemented by devices that want to know when a
// USB/IP client imports them and when that client goes away.
type ConnectionObserver interface {
	OnConnect()
	OnDisconnect()
}
