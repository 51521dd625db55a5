// Package testing is a minimal USB/IP client for end-to-end tests.
package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fightstick/fightstick/usbip"
)

const exportedDeviceSize = 312

type TestUsbIpClient struct {
	address string
	seq     atomic.Uint32
	Timeout time.Duration
}

// Device is one exported device as seen by the client.
type Device struct {
	Path       string
	BusID      string
	BusNum     uint32
	DeviceNum  uint32
	Speed      uint32
	IDVendor   uint16
	IDProduct  uint16
	BcdDevice  uint16
	Class      uint8
	SubClass   uint8
	Protocol   uint8
	ConfigVal  uint8
	NumConfigs uint8
	NumIfaces  uint8
	Interfaces []usbip.InterfaceDesc
}

type ImportResult struct {
	Conn     net.Conn
	Exported Device
}

func NewUsbIpClient(t *testing.T, addr string) *TestUsbIpClient {
	t.Helper()
	return &TestUsbIpClient{address: addr, Timeout: time.Second}
}

func (c *TestUsbIpClient) nextSeq() uint32 {
	return c.seq.Add(1)
}

func (c *TestUsbIpClient) ListDevices() ([]Device, error) {
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.Timeout))

	if err := (usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqDevlist}).Write(conn); err != nil {
		return nil, err
	}
	if err := readMgmtReply(conn, usbip.OpRepDevlist); err != nil {
		return nil, err
	}
	var nb [4]byte
	if err := usbip.ReadExactly(conn, nb[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(nb[:])
	devices := make([]Device, 0, n)
	for range n {
		dev, err := readExportedDevice(conn, true)
		if err != nil {
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// AttachDevice imports busID. The caller owns the returned connection.
func (c *TestUsbIpClient) AttachDevice(busID string) (*ImportResult, error) {
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(c.Timeout))

	req := (usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqImport}).Append(nil)
	var bus [usbip.BusIDSize]byte
	usbip.PutFixedString(bus[:], busID)
	if _, err := conn.Write(append(req, bus[:]...)); err != nil {
		conn.Close()
		return nil, err
	}
	if err := readMgmtReply(conn, usbip.OpRepImport); err != nil {
		conn.Close()
		return nil, err
	}
	dev, err := readExportedDevice(conn, false)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return &ImportResult{Conn: conn, Exported: dev}, nil
}

func readMgmtReply(r io.Reader, want uint16) error {
	var hdr [usbip.MgmtHeaderSize]byte
	if err := usbip.ReadExactly(r, hdr[:]); err != nil {
		return err
	}
	h, _ := usbip.ParseMgmtHeader(hdr[:])
	if h.Version != usbip.Version {
		return fmt.Errorf("unexpected usbip version %x", h.Version)
	}
	if h.Command != want {
		return fmt.Errorf("unexpected reply command %x", h.Command)
	}
	if h.Status != 0 {
		return fmt.Errorf("reply status %d", h.Status)
	}
	return nil
}

func readExportedDevice(r io.Reader, withIfaces bool) (Device, error) {
	var base [exportedDeviceSize]byte
	if err := usbip.ReadExactly(r, base[:]); err != nil {
		return Device{}, err
	}
	dev := Device{
		Path:       cString(base[0:256]),
		BusID:      cString(base[256:288]),
		BusNum:     binary.BigEndian.Uint32(base[288:292]),
		DeviceNum:  binary.BigEndian.Uint32(base[292:296]),
		Speed:      binary.BigEndian.Uint32(base[296:300]),
		IDVendor:   binary.BigEndian.Uint16(base[300:302]),
		IDProduct:  binary.BigEndian.Uint16(base[302:304]),
		BcdDevice:  binary.BigEndian.Uint16(base[304:306]),
		Class:      base[306],
		SubClass:   base[307],
		Protocol:   base[308],
		ConfigVal:  base[309],
		NumConfigs: base[310],
		NumIfaces:  base[311],
	}
	if withIfaces && dev.NumIfaces > 0 {
		buf := make([]byte, int(dev.NumIfaces)*4)
		if err := usbip.ReadExactly(r, buf); err != nil {
			return Device{}, err
		}
		for o := 0; o < len(buf); o += 4 {
			dev.Interfaces = append(dev.Interfaces, usbip.InterfaceDesc{Class: buf[o], SubClass: buf[o+1], Protocol: buf[o+2]})
		}
	}
	return dev, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// Submit sends one CMD_SUBMIT and returns the RET_SUBMIT payload.
func (c *TestUsbIpClient) Submit(conn net.Conn, dir, ep uint32, bufLen uint32, out []byte, setup [8]byte) ([]byte, error) {
	if conn == nil {
		return nil, io.ErrUnexpectedEOF
	}
	if dir == usbip.DirOut {
		bufLen = uint32(len(out))
	}
	seq := c.nextSeq()
	cmd := usbip.CmdSubmit{
		Basic:             usbip.HeaderBasic{Command: usbip.CmdSubmitCode, Seqnum: seq, Dir: dir, Ep: ep},
		TransferBufferLen: bufLen,
		Setup:             setup,
	}

	_ = conn.SetDeadline(time.Now().Add(c.Timeout))
	defer conn.SetDeadline(time.Time{})
	if err := cmd.Write(conn); err != nil {
		return nil, err
	}
	if len(out) > 0 {
		if _, err := conn.Write(out); err != nil {
			return nil, err
		}
	}

	var hdr [usbip.URBHeaderSize]byte
	if err := usbip.ReadExactly(conn, hdr[:]); err != nil {
		return nil, err
	}
	ret, _ := usbip.ParseRetSubmit(hdr[:])
	if ret.Basic.Command != usbip.RetSubmitCode {
		return nil, fmt.Errorf("unexpected ret cmd %x", ret.Basic.Command)
	}
	if ret.Basic.Seqnum != seq {
		return nil, fmt.Errorf("seqnum mismatch: sent %d got %d", seq, ret.Basic.Seqnum)
	}
	if ret.Status != 0 {
		return nil, fmt.Errorf("ret status %d", ret.Status)
	}
	data := make([]byte, ret.ActualLength)
	if dir == usbip.DirIn && ret.ActualLength > 0 {
		if err := usbip.ReadExactly(conn, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Control runs a control transfer on EP0.
func (c *TestUsbIpClient) Control(conn net.Conn, bmRequestType, bRequest uint8, wValue, wIndex, wLength uint16, out []byte) ([]byte, error) {
	var setup [8]byte
	setup[0] = bmRequestType
	setup[1] = bRequest
	binary.LittleEndian.PutUint16(setup[2:4], wValue)
	binary.LittleEndian.PutUint16(setup[4:6], wIndex)
	binary.LittleEndian.PutUint16(setup[6:8], wLength)
	dir := uint32(usbip.DirOut)
	if bmRequestType&0x80 != 0 {
		dir = usbip.DirIn
	}
	return c.Submit(conn, dir, 0, uint32(wLength), out, setup)
}

// ReadInputReport polls interrupt IN endpoint 1 once.
func (c *TestUsbIpClient) ReadInputReport(conn net.Conn) ([]byte, error) {
	return c.Submit(conn, usbip.DirIn, 1, 64, nil, [8]byte{})
}

// Unlink sends CMD_UNLINK for seq and returns the reply status.
func (c *TestUsbIpClient) Unlink(conn net.Conn, seq uint32) (int32, error) {
	cmd := usbip.CmdUnlink{
		Basic:        usbip.HeaderBasic{Command: usbip.CmdUnlinkCode, Seqnum: c.nextSeq()},
		UnlinkSeqnum: seq,
	}
	_ = conn.SetDeadline(time.Now().Add(c.Timeout))
	defer conn.SetDeadline(time.Time{})
	if err := cmd.Write(conn); err != nil {
		return 0, err
	}
	var hdr [usbip.URBHeaderSize]byte
	if err := usbip.ReadExactly(conn, hdr[:]); err != nil {
		return 0, err
	}
	basic, _ := usbip.ParseHeaderBasic(hdr[:])
	if basic.Command != usbip.RetUnlinkCode {
		return 0, fmt.Errorf("unexpected ret cmd %x", basic.Command)
	}
	return int32(binary.BigEndian.Uint32(hdr[0x14:0x18])), nil
}
