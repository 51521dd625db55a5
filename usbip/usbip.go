// Package usbip encodes and decodes the USB/IP wire protocol.
// All multi-byte fields are big-endian.
package usbip

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	Version = 0x0111

	// Management commands
	OpReqDevlist = 0x8005
	OpRepDevlist = 0x0005
	OpReqImport  = 0x8003
	OpRepImport  = 0x0003

	// URB commands
	CmdSubmitCode = 0x00000001
	CmdUnlinkCode = 0x00000002
	RetSubmitCode = 0x00000003
	RetUnlinkCode = 0x00000004

	DirOut = 0x00000000
	DirIn  = 0x00000001
)

const (
	// MgmtHeaderSize is the size of MgmtHeader on the wire.
	MgmtHeaderSize = 8
	// URBHeaderSize is the fixed size of every URB command and reply header.
	URBHeaderSize = 0x30
	// BusIDSize is the size of the busid field of OP_REQ_IMPORT.
	BusIDSize = 32

	// StatusConnReset is -ECONNRESET, the status of a RET_UNLINK.
	StatusConnReset int32 = -104
)

var ErrShortHeader = errors.New("short usbip header")

// MgmtHeader starts every management request and reply.
type MgmtHeader struct {
	Version uint16
	Command uint16
	Status  uint32
}

func (h MgmtHeader) Append(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, h.Version)
	b = binary.BigEndian.AppendUint16(b, h.Command)
	return binary.BigEndian.AppendUint32(b, h.Status)
}

func (h MgmtHeader) Write(w io.Writer) error {
	_, err := w.Write(h.Append(make([]byte, 0, MgmtHeaderSize)))
	return err
}

// ParseMgmtHeader decodes the first MgmtHeaderSize bytes of b.
func ParseMgmtHeader(b []byte) (MgmtHeader, error) {
	if len(b) < MgmtHeaderSize {
		return MgmtHeader{}, ErrShortHeader
	}
	return MgmtHeader{
		Version: binary.BigEndian.Uint16(b[0:2]),
		Command: binary.BigEndian.Uint16(b[2:4]),
		Status:  binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// IsManagement reports whether h opens a devlist or import exchange.
func (h MgmtHeader) IsManagement() bool {
	return h.Version == Version && (h.Command == OpReqDevlist || h.Command == OpReqImport)
}

// DevListReplyHeader follows MgmtHeader in OP_REP_DEVLIST.
type DevListReplyHeader struct {
	NDevices uint32
}

func (d DevListReplyHeader) Write(w io.Writer) error {
	_, err := w.Write(binary.BigEndian.AppendUint32(nil, d.NDevices))
	return err
}

// ExportMeta is the bus identity of an exported device.
type ExportMeta struct {
	Path     [256]byte
	USBBusId [32]byte
	BusId    uint32
	DevId    uint32
}

// BusIDString returns USBBusId up to its first NUL.
func (m ExportMeta) BusIDString() string {
	return cString(m.USBBusId[:])
}

// ExportedDevice is one device entry in a devlist or import reply.
type ExportedDevice struct {
	ExportMeta
	Speed uint32

	IDVendor            uint16
	IDProduct           uint16
	BcdDevice           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BConfigurationValue uint8
	BNumConfigurations  uint8
	BNumInterfaces      uint8

	Interfaces []InterfaceDesc
}

type InterfaceDesc struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
}

func (d *ExportedDevice) appendDevice(b []byte) []byte {
	b = append(b, d.Path[:]...)
	b = append(b, d.USBBusId[:]...)
	b = binary.BigEndian.AppendUint32(b, d.BusId)
	b = binary.BigEndian.AppendUint32(b, d.DevId)
	b = binary.BigEndian.AppendUint32(b, d.Speed)
	b = binary.BigEndian.AppendUint16(b, d.IDVendor)
	b = binary.BigEndian.AppendUint16(b, d.IDProduct)
	b = binary.BigEndian.AppendUint16(b, d.BcdDevice)
	return append(b,
		d.BDeviceClass,
		d.BDeviceSubClass,
		d.BDeviceProtocol,
		d.BConfigurationValue,
		d.BNumConfigurations,
		d.BNumInterfaces,
	)
}

// WriteDevlist writes the OP_REP_DEVLIST entry, interface triplets included.
func (d *ExportedDevice) WriteDevlist(w io.Writer) error {
	b := d.appendDevice(nil)
	for _, iface := range d.Interfaces {
		b = append(b, iface.Class, iface.SubClass, iface.Protocol, 0)
	}
	_, err := w.Write(b)
	return err
}

// WriteImport writes the OP_REP_IMPORT entry, which ends at bNumInterfaces.
func (d *ExportedDevice) WriteImport(w io.Writer) error {
	_, err := w.Write(d.appendDevice(nil))
	return err
}

// HeaderBasic is common to all URB commands and replies.
type HeaderBasic struct {
	Command uint32
	Seqnum  uint32
	Devid   uint32
	Dir     uint32
	Ep      uint32
}

func (h HeaderBasic) append(b []byte) []byte {
	for _, v := range [...]uint32{h.Command, h.Seqnum, h.Devid, h.Dir, h.Ep} {
		b = binary.BigEndian.AppendUint32(b, v)
	}
	return b
}

// ParseHeaderBasic decodes the first 20 bytes of a URB header.
func ParseHeaderBasic(b []byte) (HeaderBasic, error) {
	if len(b) < URBHeaderSize {
		return HeaderBasic{}, ErrShortHeader
	}
	return HeaderBasic{
		Command: binary.BigEndian.Uint32(b[0x00:]),
		Seqnum:  binary.BigEndian.Uint32(b[0x04:]),
		Devid:   binary.BigEndian.Uint32(b[0x08:]),
		Dir:     binary.BigEndian.Uint32(b[0x0c:]),
		Ep:      binary.BigEndian.Uint32(b[0x10:]),
	}, nil
}

// CmdSubmit is the USBIP_CMD_SUBMIT header. OUT payloads follow it.
type CmdSubmit struct {
	Basic             HeaderBasic
	TransferFlags     uint32
	TransferBufferLen uint32
	StartFrame        uint32
	NumberOfPackets   uint32
	Interval          uint32
	Setup             [8]byte
}

func (c *CmdSubmit) Write(w io.Writer) error {
	b := c.Basic.append(make([]byte, 0, URBHeaderSize))
	for _, v := range [...]uint32{c.TransferFlags, c.TransferBufferLen, c.StartFrame, c.NumberOfPackets, c.Interval} {
		b = binary.BigEndian.AppendUint32(b, v)
	}
	_, err := w.Write(append(b, c.Setup[:]...))
	return err
}

// ParseCmdSubmit decodes a URBHeaderSize header whose command is
// CmdSubmitCode.
func ParseCmdSubmit(b []byte) (CmdSubmit, error) {
	basic, err := ParseHeaderBasic(b)
	if err != nil {
		return CmdSubmit{}, err
	}
	c := CmdSubmit{
		Basic:             basic,
		TransferFlags:     binary.BigEndian.Uint32(b[0x14:]),
		TransferBufferLen: binary.BigEndian.Uint32(b[0x18:]),
		StartFrame:        binary.BigEndian.Uint32(b[0x1c:]),
		NumberOfPackets:   binary.BigEndian.Uint32(b[0x20:]),
		Interval:          binary.BigEndian.Uint32(b[0x24:]),
	}
	copy(c.Setup[:], b[0x28:URBHeaderSize])
	return c, nil
}

// RetSubmit is the USBIP_RET_SUBMIT header. IN payloads follow it.
type RetSubmit struct {
	Basic           HeaderBasic
	Status          int32
	ActualLength    uint32
	StartFrame      uint32
	NumberOfPackets uint32
	ErrorCount      uint32
	Padding         [8]byte
}

// Append encodes the header followed by payload.
func (r *RetSubmit) Append(b []byte, payload []byte) []byte {
	b = r.Basic.append(b)
	b = binary.BigEndian.AppendUint32(b, uint32(r.Status))
	for _, v := range [...]uint32{r.ActualLength, r.StartFrame, r.NumberOfPackets, r.ErrorCount} {
		b = binary.BigEndian.AppendUint32(b, v)
	}
	b = append(b, r.Padding[:]...)
	return append(b, payload...)
}

func (r *RetSubmit) Write(w io.Writer) error {
	_, err := w.Write(r.Append(make([]byte, 0, URBHeaderSize), nil))
	return err
}

// ParseRetSubmit decodes a URBHeaderSize RET_SUBMIT header.
func ParseRetSubmit(b []byte) (RetSubmit, error) {
	basic, err := ParseHeaderBasic(b)
	if err != nil {
		return RetSubmit{}, err
	}
	return RetSubmit{
		Basic:           basic,
		Status:          int32(binary.BigEndian.Uint32(b[0x14:])),
		ActualLength:    binary.BigEndian.Uint32(b[0x18:]),
		StartFrame:      binary.BigEndian.Uint32(b[0x1c:]),
		NumberOfPackets: binary.BigEndian.Uint32(b[0x20:]),
		ErrorCount:      binary.BigEndian.Uint32(b[0x24:]),
	}, nil
}

// CmdUnlink asks the device to cancel the URB with UnlinkSeqnum.
type CmdUnlink struct {
	Basic        HeaderBasic
	UnlinkSeqnum uint32
	Padding      [24]byte
}

func (c *CmdUnlink) Write(w io.Writer) error {
	b := c.Basic.append(make([]byte, 0, URBHeaderSize))
	b = binary.BigEndian.AppendUint32(b, c.UnlinkSeqnum)
	_, err := w.Write(append(b, c.Padding[:]...))
	return err
}

// ParseCmdUnlink decodes a URBHeaderSize header whose command is
// CmdUnlinkCode.
func ParseCmdUnlink(b []byte) (CmdUnlink, error) {
	basic, err := ParseHeaderBasic(b)
	if err != nil {
		return CmdUnlink{}, err
	}
	return CmdUnlink{Basic: basic, UnlinkSeqnum: binary.BigEndian.Uint32(b[0x14:])}, nil
}

type RetUnlink struct {
	Basic   HeaderBasic
	Status  int32
	Padding [24]byte
}

func (r *RetUnlink) Write(w io.Writer) error {
	b := r.Basic.append(make([]byte, 0, URBHeaderSize))
	b = binary.BigEndian.AppendUint32(b, uint32(r.Status))
	_, err := w.Write(append(b, r.Padding[:]...))
	return err
}

// ReadExactly fills buf from r.
func ReadExactly(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

// PutFixedString copies s into dst, NUL-padding the rest.
func PutFixedString(dst []byte, s string) {
	n := copy(dst, s)
	clear(dst[n:])
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
