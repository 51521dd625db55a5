package usb

import "time"

// ServerConfig configures the USB/IP listener.
type ServerConfig struct {
	Addr              string        `help:"USB-IP server listen address" default:":3240" env:"FIGHTSTICK_USB_ADDR"`
	ConnectionTimeout time.Duration `kong:"-"`
}
