// Package usb contains helpers for building USB descriptors and data.
package usb

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fightstick/fightstick/usb/hid"
)

// USB descriptor type constants
const (
	DeviceDescType    = 0x01
	ConfigDescType    = 0x02
	StringDescType    = 0x03
	InterfaceDescType = 0x04
	EndpointDescType  = 0x05
	HIDDescType       = 0x21
	ReportDescType    = 0x22
)

// Descriptor lengths in bytes, fixed by USB 2.0.
const (
	DeviceDescLen    = 18
	ConfigDescLen    = 9
	InterfaceDescLen = 9
	EndpointDescLen  = 7
)

// Data is a descriptor payload.
type Data []uint8

// Descriptor holds all static descriptor/config data for a device.
type Descriptor struct {
	Device     DeviceDescriptor
	Interfaces []InterfaceConfig
	Strings    map[uint8]string
}

// InterfaceConfig holds all descriptors for a single interface.
type InterfaceConfig struct {
	Descriptor InterfaceDescriptor
	Endpoints  []EndpointDescriptor

	// HID describes a HID-class interface (bInterfaceClass=0x03).
	// When set, the HID class descriptor is emitted inside the configuration
	// descriptor and the report descriptor is served via GET_DESCRIPTOR.
	HID *HIDFunction
}

// DeviceDescriptor represents the standard USB device descriptor.
// BLength is computed dynamically; BDescriptorType is implied DeviceDescType.
type DeviceDescriptor struct {
	BcdUSB             uint16 // LE
	BDeviceClass       uint8
	BDeviceSubClass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize0    uint8
	IDVendor           uint16 // LE; may get overridden
	IDProduct          uint16 // LE; may get overridden
	BcdDevice          uint16 // LE
	IManufacturer      uint8
	IProduct           uint8
	ISerialNumber      uint8
	BNumConfigurations uint8
	Speed              uint32 // USB speed: 1=low, 2=full, 3=high, 4=super
}

// Bytes returns the 18-byte device descriptor.
func (d Descriptor) Bytes() []byte {
	dd := d.Device
	b := make([]byte, 0, DeviceDescLen)
	b = append(b, DeviceDescLen, DeviceDescType)
	b = binary.LittleEndian.AppendUint16(b, dd.BcdUSB)
	b = append(b, dd.BDeviceClass, dd.BDeviceSubClass, dd.BDeviceProtocol, dd.BMaxPacketSize0)
	b = binary.LittleEndian.AppendUint16(b, dd.IDVendor)
	b = binary.LittleEndian.AppendUint16(b, dd.IDProduct)
	b = binary.LittleEndian.AppendUint16(b, dd.BcdDevice)
	b = append(b, dd.IManufacturer, dd.IProduct, dd.ISerialNumber, dd.BNumConfigurations)
	return b
}

// ConfigBytes builds the full configuration descriptor: header, then every
// interface followed by its HID class descriptor and endpoints.
// wTotalLength is patched once everything is written.
func (d Descriptor) ConfigBytes(configValue, attributes, maxPower uint8) ([]byte, error) {
	var b bytes.Buffer
	b.Write([]byte{
		ConfigDescLen, ConfigDescType,
		0, 0, // wTotalLength
		uint8(len(d.Interfaces)),
		configValue,
		0, // iConfiguration
		attributes,
		maxPower,
	})
	for _, iface := range d.Interfaces {
		iface.Descriptor.Write(&b)
		if iface.HID != nil {
			hd, err := iface.HID.DescriptorBytes()
			if err != nil {
				return nil, fmt.Errorf("interface %d: %w", iface.Descriptor.BInterfaceNumber, err)
			}
			b.Write(hd)
		}
		for _, ep := range iface.Endpoints {
			ep.Write(&b)
		}
	}
	out := b.Bytes()
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(out)))
	return out, nil
}

// EncodeStringDescriptor converts a UTF-8 string to a USB string descriptor.
//
//	Byte 0: bLength
//	Byte 1: bDescriptorType (0x03)
//	Bytes 2+: UTF-16LE code units
func EncodeStringDescriptor(s string) []byte {
	runes := []rune(s)
	buf := make([]byte, 2+len(runes)*2)
	buf[0] = uint8(len(buf))
	buf[1] = StringDescType
	for i, r := range runes {
		binary.LittleEndian.PutUint16(buf[2+i*2:], uint16(r))
	}
	return buf
}

// InterfaceDescriptor (9 bytes) for each interface altsetting.
type InterfaceDescriptor struct {
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BNumEndpoints      uint8
	BInterfaceClass    uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
}

func (i InterfaceDescriptor) Write(b *bytes.Buffer) {
	b.Write([]byte{
		InterfaceDescLen, InterfaceDescType,
		i.BInterfaceNumber,
		i.BAlternateSetting,
		i.BNumEndpoints,
		i.BInterfaceClass,
		i.BInterfaceSubClass,
		i.BInterfaceProtocol,
		i.IInterface,
	})
}

// EndpointDescriptor (7 bytes) for each endpoint.
type EndpointDescriptor struct {
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16 // LE
	BInterval        uint8
}

func (e EndpointDescriptor) Write(b *bytes.Buffer) {
	b.Write([]byte{EndpointDescLen, EndpointDescType, e.BEndpointAddress, e.BMAttributes})
	_ = binary.Write(b, binary.LittleEndian, e.WMaxPacketSize)
	b.WriteByte(e.BInterval)
}

// HIDSubDescriptor is one subordinate descriptor entry in the HID class descriptor.
// A ReportDescType entry with Length 0 is filled from the report descriptor.
type HIDSubDescriptor struct {
	Type   uint8
	Length uint16 // LE
}

// HIDDescriptor is the HID class descriptor (0x21).
// bLength is 6 + 3*len(Descriptors).
type HIDDescriptor struct {
	BcdHID       uint16 // LE
	BCountryCode uint8
	Descriptors  []HIDSubDescriptor
}

func (h HIDDescriptor) Write(b *bytes.Buffer, reportLen uint16) error {
	if len(h.Descriptors) == 0 {
		return fmt.Errorf("usb: HIDDescriptor has no subordinate descriptors")
	}
	b.WriteByte(uint8(6 + 3*len(h.Descriptors)))
	b.WriteByte(HIDDescType)
	_ = binary.Write(b, binary.LittleEndian, h.BcdHID)
	b.WriteByte(h.BCountryCode)
	b.WriteByte(uint8(len(h.Descriptors)))
	for _, sd := range h.Descriptors {
		l := sd.Length
		if sd.Type == ReportDescType && l == 0 {
			l = reportLen
		}
		b.WriteByte(sd.Type)
		_ = binary.Write(b, binary.LittleEndian, l)
	}
	return nil
}

// HIDFunction bundles the HID class descriptor (0x21) and the report
// descriptor (0x22) of one HID interface.
type HIDFunction struct {
	Descriptor HIDDescriptor
	Report     hid.Report
}

// DescriptorBytes returns the HID class descriptor (0x21) bytes.
func (f HIDFunction) DescriptorBytes() (Data, error) {
	rb, err := f.Report.Bytes()
	if err != nil {
		return nil, err
	}
	if len(rb) > 0xFFFF {
		return nil, fmt.Errorf("usb: HID report descriptor too large: %d", len(rb))
	}
	var b bytes.Buffer
	if err := f.Descriptor.Write(&b, uint16(len(rb))); err != nil {
		return nil, err
	}
	return Data(b.Bytes()), nil
}

// ReportBytes returns the HID report descriptor (0x22) bytes.
func (f HIDFunction) ReportBytes() (Data, error) {
	rb, err := f.Report.Bytes()
	if err != nil {
		return nil, err
	}
	return Data(rb), nil
}
