// Package pokken provides a HORI Pokken Tournament Pro Pad device.
//
// The Switch enumerates this pad as a Pro Controller. Every interrupt IN
// transfer on EndpointIn is one host poll; the pad answers it with the next
// report pulled from its ReportSource. Output reports from the host are read
// and dropped.
package pokken

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fightstick/fightstick/device"
	"github.com/fightstick/fightstick/internal/log"
	"github.com/fightstick/fightstick/usb"
	"github.com/fightstick/fightstick/usb/hid"
	"github.com/fightstick/fightstick/usbip"
)

// ReportSource supplies one report per host poll.
// Calls are strictly sequential; implementations need no locking.
type ReportSource interface {
	NextReport() Report
}

// Options configures a Pad.
type Options struct {
	device.CreateOptions

	// ControlRequests enables HID GET_REPORT/SET_REPORT on EP0.
	// GET_REPORT pulls from the source like an interrupt poll does.
	ControlRequests bool

	Logger *slog.Logger
}

type Pad struct {
	srcMu sync.Mutex
	src   ReportSource

	controlRequests bool
	descriptor      usb.Descriptor
	logger          *slog.Logger

	ticks       atomic.Uint64
	connections atomic.Int32
}

// New returns a pad that reads its reports from src.
func New(src ReportSource, o *Options) *Pad {
	p := &Pad{
		src:        src,
		descriptor: defaultDescriptor,
		logger:     slog.Default(),
	}
	if o != nil {
		if o.IdVendor != nil {
			p.descriptor.Device.IDVendor = *o.IdVendor
		}
		if o.IdProduct != nil {
			p.descriptor.Device.IDProduct = *o.IdProduct
		}
		if o.Logger != nil {
			p.logger = o.Logger
		}
		p.controlRequests = o.ControlRequests
	}
	return p
}

// Ticks returns how many reports have been pulled from the source.
func (p *Pad) Ticks() uint64 {
	return p.ticks.Load()
}

// Connected reports whether a USB/IP client currently holds the pad.
func (p *Pad) Connected() bool {
	return p.connections.Load() > 0
}

func (p *Pad) nextReport() Report {
	p.srcMu.Lock()
	defer p.srcMu.Unlock()
	p.ticks.Add(1)
	return p.src.NextReport()
}

// HandleTransfer implements interrupt IN/OUT for the pad.
func (p *Pad) HandleTransfer(ep uint32, dir uint32, out []byte) []byte {
	switch {
	case dir == usbip.DirIn && ep == EndpointIn&0x0F:
		r := p.nextReport()
		return r.BuildReport()
	case dir == usbip.DirOut && ep == EndpointOut&0x0F:
		p.logger.Log(context.Background(), log.LevelTrace, "output report dropped", "len", len(out))
	}
	return nil
}

// HandleControl answers HID class requests when enabled.
func (p *Pad) HandleControl(bmRequestType, bRequest uint8, wValue, _ /* wIndex */, wLength uint16, data []byte) ([]byte, bool) {
	if !p.controlRequests {
		return nil, false
	}
	reportType := uint8(wValue >> 8)

	if bmRequestType == reqTypeClassInterfaceIn && bRequest == hidGetReport && reportType == reportTypeInput {
		report := p.nextReport().BuildReport()
		if wLength > 0 && int(wLength) < len(report) {
			return report[:wLength], true
		}
		return report, true
	}
	if bmRequestType == reqTypeClassInterfaceOut && bRequest == hidSetReport && reportType == reportTypeOutput {
		p.logger.Log(context.Background(), log.LevelTrace, "SET_REPORT dropped", "len", len(data))
		return nil, true
	}

	p.logger.Warn("Unsupported control request",
		"bmRequestType", bmRequestType,
		"bRequest", bRequest)
	return nil, false
}

// OnConnect is called by the server when a client imports the pad.
func (p *Pad) OnConnect() {
	n := p.connections.Add(1)
	p.logger.Info("Host attached", "connections", n)
}

// OnDisconnect is called by the server when the client's URB stream ends.
// Playback keeps its position; the next client continues where it stopped.
func (p *Pad) OnDisconnect() {
	n := p.connections.Add(-1)
	p.logger.Info("Host detached", "connections", n, "ticks", p.Ticks())
}

func (p *Pad) GetDescriptor() *usb.Descriptor {
	return &p.descriptor
}

const gamepadIO = hid.MainData | hid.MainVar | hid.MainAbs

var defaultDescriptor = usb.Descriptor{
	Device: usb.DeviceDescriptor{
		BcdUSB:             0x0200,
		BDeviceClass:       0x00,
		BDeviceSubClass:    0x00,
		BDeviceProtocol:    0x00,
		BMaxPacketSize0:    0x40,
		IDVendor:           DefaultVID,
		IDProduct:          DefaultPID,
		BcdDevice:          0x0100,
		IManufacturer:      0x01,
		IProduct:           0x02,
		ISerialNumber:      0x00,
		BNumConfigurations: 0x01,
		Speed:              2, // Full speed
	},
	Interfaces: []usb.InterfaceConfig{
		{
			Descriptor: usb.InterfaceDescriptor{
				BInterfaceNumber:   0x00,
				BAlternateSetting:  0x00,
				BNumEndpoints:      0x02,
				BInterfaceClass:    0x03,
				BInterfaceSubClass: 0x00,
				BInterfaceProtocol: 0x00,
				IInterface:         0x00,
			},
			HID: &usb.HIDFunction{
				Descriptor: usb.HIDDescriptor{
					BcdHID:       0x0111,
					BCountryCode: 0x00,
					Descriptors:  []usb.HIDSubDescriptor{{Type: usb.ReportDescType}},
				},
				Report: hid.Report{
					Items: []hid.Item{
						hid.UsagePage{Page: hid.UsagePageGenericDesktop},
						hid.Usage{Usage: hid.UsageGamePad},
						hid.Collection{Kind: hid.CollectionApplication, Items: []hid.Item{
							// 16 buttons, the host maps 14.
							hid.LogicalMinimum{Min: 0},
							hid.LogicalMaximum{Max: 1},
							hid.PhysicalMinimum{Min: 0},
							hid.PhysicalMaximum{Max: 1},
							hid.ReportSize{Bits: 1},
							hid.ReportCount{Count: 16},
							hid.UsagePage{Page: hid.UsagePageButton},
							hid.UsageMinimum{Min: 0x01},
							hid.UsageMaximum{Max: 0x10},
							hid.Input{Flags: gamepadIO},

							// Hat switch, one nibble.
							hid.UsagePage{Page: hid.UsagePageGenericDesktop},
							hid.LogicalMaximum{Max: 7},
							hid.PhysicalMaximum{Max: 315},
							hid.ReportSize{Bits: 4},
							hid.ReportCount{Count: 1},
							hid.Unit{Unit: hid.UnitDegrees},
							hid.Usage{Usage: hid.UsageHatSwitch},
							hid.Input{Flags: gamepadIO | hid.MainNullState},

							// Padding nibble.
							hid.Unit{Unit: 0},
							hid.ReportCount{Count: 1},
							hid.Input{Flags: hid.MainConst},

							// LX, LY, RX, RY.
							hid.LogicalMaximum{Max: 255},
							hid.PhysicalMaximum{Max: 255},
							hid.Usage{Usage: hid.UsageX},
							hid.Usage{Usage: hid.UsageY},
							hid.Usage{Usage: hid.UsageZ},
							hid.Usage{Usage: hid.UsageRz},
							hid.ReportSize{Bits: 8},
							hid.ReportCount{Count: 4},
							hid.Input{Flags: gamepadIO},

							// Vendor byte.
							hid.UsagePage{Page: hid.UsagePageVendor},
							hid.Usage{Usage: 0x20},
							hid.ReportCount{Count: 1},
							hid.Input{Flags: gamepadIO},

							// 8-byte output report.
							hid.Usage{Usage: 0x2621},
							hid.ReportCount{Count: OutputReportSize},
							hid.Output{Flags: gamepadIO},
						}},
					},
				},
			},
			Endpoints: []usb.EndpointDescriptor{
				{BEndpointAddress: EndpointIn, BMAttributes: 0x03, WMaxPacketSize: EndpointPacketSize, BInterval: PollIntervalMs},
				{BEndpointAddress: EndpointOut, BMAttributes: 0x03, WMaxPacketSize: EndpointPacketSize, BInterval: PollIntervalMs},
			},
		},
	},
	Strings: map[uint8]string{
		0: "\u0409", // LangID: en-US
		1: "HORI CO.,LTD.",
		2: "POKKEN CONTROLLER",
	},
}
