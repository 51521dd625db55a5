// Package usb serves virtual buses over USB/IP.
package usb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fightstick/fightstick/internal/log"
	"github.com/fightstick/fightstick/usb"
	"github.com/fightstick/fightstick/usbip"
	"github.com/fightstick/fightstick/virtualbus"
)

const (
	// Standard request codes
	usbReqGetStatus        = 0x00
	usbReqClearFeature     = 0x01
	usbReqSetFeature       = 0x03
	usbReqSetAddress       = 0x05
	usbReqGetDescriptor    = 0x06
	usbReqGetConfiguration = 0x08
	usbReqSetConfiguration = 0x09
	usbReqGetInterface     = 0x0A
	usbReqSetInterface     = 0x0B

	// bmRequestType
	usbReqTypeStandardFromDevice = 0x80
	usbReqTypeStandardFromIface  = 0x81
	usbReqTypeStandardFromEp     = 0x82
	usbReqTypeMask               = 0x60

	usbConfigValueDefault   = 1
	usbConfigAttrBusPowered = 0x80
	usbConfigMaxPower100mA  = 50 // 2mA units
)

var (
	ErrBusExists   = errors.New("bus already registered")
	ErrBusNotFound = errors.New("bus not found")
	ErrNoDevice    = errors.New("no device matches busid")
)

type Server struct {
	config    *ServerConfig
	logger    *slog.Logger
	rawLogger log.RawLogger
	busses    map[uint32]*virtualbus.VirtualBus
	busesMu   sync.Mutex
	ready     chan struct{}
	readyOnce sync.Once
	ln        net.Listener
}

func New(config ServerConfig, logger *slog.Logger, rawLogger log.RawLogger) *Server {
	return &Server{
		config:    &config,
		logger:    logger,
		rawLogger: rawLogger,
		busses:    make(map[uint32]*virtualbus.VirtualBus),
		ready:     make(chan struct{}),
	}
}

// AddBus registers a bus with the server.
func (s *Server) AddBus(bus *virtualbus.VirtualBus) error {
	if bus == nil {
		return fmt.Errorf("bus is nil")
	}
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	if _, ok := s.busses[bus.BusID()]; ok {
		return fmt.Errorf("%w: %d", ErrBusExists, bus.BusID())
	}
	s.busses[bus.BusID()] = bus
	return nil
}

// RemoveBus unregisters a bus, removing its devices first, and closes it.
func (s *Server) RemoveBus(busID uint32) error {
	s.busesMu.Lock()
	bus, ok := s.busses[busID]
	if ok {
		delete(s.busses, busID)
	}
	s.busesMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrBusNotFound, busID)
	}

	if devices := bus.Devices(); len(devices) > 0 {
		s.logger.Warn("Removing non-empty bus", "bus", busID, "devices", len(devices))
		for _, dev := range devices {
			_ = bus.Remove(dev)
		}
	}
	return bus.Close()
}

// ListBuses returns a snapshot of active bus numbers.
func (s *Server) ListBuses() []uint32 {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	out := make([]uint32, 0, len(s.busses))
	for k := range s.busses {
		out = append(out, k)
	}
	return out
}

// GetBus returns a bus by ID or nil if not present.
func (s *Server) GetBus(busID uint32) *virtualbus.VirtualBus {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	return s.busses[busID]
}

// ListenAndServe accepts USB/IP clients until Close is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("USBIP server listening", "addr", ln.Addr().String())
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("USBIP server stopped")
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		s.logger.Debug("Client connected", "remote", c.RemoteAddr())
		go func() {
			if err := s.handleConn(c); err != nil {
				if isClientDisconnect(err) {
					s.logger.Debug("Client disconnected", "error", err)
				} else {
					s.logger.Error("Connection handler error", "error", err)
				}
			}
		}()
	}
}

// Ready is closed once the server is bound and accepting.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Close stops the listener. Open URB streams end when their device is
// removed or the client goes away.
func (s *Server) Close() error {
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// Addr returns the bound listen address, or the configured one before
// ListenAndServe has bound.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.config.Addr
}

// GetListenPort returns the TCP port clients should attach to.
func (s *Server) GetListenPort() uint16 {
	_, portStr, err := net.SplitHostPort(s.Addr())
	if err != nil {
		return 0
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(port)
}

// --

func (s *Server) handleConn(conn net.Conn) error {
	defer conn.Close()
	conn = &logConn{Conn: conn, s: s}
	if s.config.ConnectionTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(s.config.ConnectionTimeout)); err != nil {
			s.logger.Warn("Failed to set deadline", "error", err)
		}
	}

	var hdrBuf [usbip.MgmtHeaderSize]byte
	if err := usbip.ReadExactly(conn, hdrBuf[:]); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	hdr, _ := usbip.ParseMgmtHeader(hdrBuf[:])
	if !hdr.IsManagement() {
		return fmt.Errorf("protocol violation: client sent URB data without OP_REQ_IMPORT")
	}

	switch hdr.Command {
	case usbip.OpReqDevlist:
		s.logger.Debug("OP_REQ_DEVLIST")
		return s.handleDevList(conn)
	default:
		s.logger.Debug("OP_REQ_IMPORT")
		dm, ctx, err := s.handleImport(conn)
		if err != nil {
			return fmt.Errorf("handle import: %w", err)
		}
		return s.handleUrbStream(ctx, conn, dm)
	}
}

func exportedDevice(m virtualbus.DeviceMeta) usbip.ExportedDevice {
	desc := m.Dev.GetDescriptor()
	exp := usbip.ExportedDevice{
		ExportMeta:          m.Meta,
		Speed:               desc.Device.Speed,
		IDVendor:            desc.Device.IDVendor,
		IDProduct:           desc.Device.IDProduct,
		BcdDevice:           desc.Device.BcdDevice,
		BDeviceClass:        desc.Device.BDeviceClass,
		BDeviceSubClass:     desc.Device.BDeviceSubClass,
		BDeviceProtocol:     desc.Device.BDeviceProtocol,
		BConfigurationValue: usbConfigValueDefault,
		BNumConfigurations:  desc.Device.BNumConfigurations,
		BNumInterfaces:      uint8(len(desc.Interfaces)),
	}
	for _, iface := range desc.Interfaces {
		exp.Interfaces = append(exp.Interfaces, usbip.InterfaceDesc{
			Class:    iface.Descriptor.BInterfaceClass,
			SubClass: iface.Descriptor.BInterfaceSubClass,
			Protocol: iface.Descriptor.BInterfaceProtocol,
		})
	}
	return exp
}

func (s *Server) handleDevList(conn net.Conn) error {
	_ = conn.SetDeadline(time.Time{})
	var buf writeBuffer
	_ = usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepDevlist}.Write(&buf)
	metas := s.getAllDeviceMetas()
	_ = usbip.DevListReplyHeader{NDevices: uint32(len(metas))}.Write(&buf)
	for _, m := range metas {
		exp := exportedDevice(m)
		_ = exp.WriteDevlist(&buf)
	}
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("write devlist: %w", err)
	}
	return nil
}

func (s *Server) handleImport(conn net.Conn) (virtualbus.DeviceMeta, context.Context, error) {
	var rest [usbip.BusIDSize]byte
	if err := usbip.ReadExactly(conn, rest[:]); err != nil {
		return virtualbus.DeviceMeta{}, nil, fmt.Errorf("read import busid: %w", err)
	}
	reqBus := usbip.ExportMeta{USBBusId: rest}.BusIDString()
	s.logger.Info("Import request", "busid", reqBus)

	dm, ctx, ok := s.lookup(reqBus)
	if !ok {
		// Tell the client before dropping it.
		_ = usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepImport, Status: 1}.Write(conn)
		return dm, nil, fmt.Errorf("%w %s", ErrNoDevice, reqBus)
	}

	var buf writeBuffer
	_ = usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepImport}.Write(&buf)
	exp := exportedDevice(dm)
	_ = exp.WriteImport(&buf)
	if _, err := conn.Write(buf); err != nil {
		return dm, nil, fmt.Errorf("write import reply failed: %w", err)
	}
	return dm, ctx, nil
}

func (s *Server) lookup(busid string) (virtualbus.DeviceMeta, context.Context, bool) {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	for _, b := range s.busses {
		if dm, ctx, ok := b.Lookup(busid); ok {
			return dm, ctx, true
		}
	}
	return virtualbus.DeviceMeta{}, nil, false
}

// getAllDeviceMetas aggregates device metas from all registered busses.
func (s *Server) getAllDeviceMetas() []virtualbus.DeviceMeta {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	out := []virtualbus.DeviceMeta{}
	for _, b := range s.busses {
		out = append(out, b.GetAllDeviceMetas()...)
	}
	return out
}

type writeBuffer []byte

func (w *writeBuffer) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}

type logConn struct {
	net.Conn
	s *Server
}

func (lc *logConn) Read(p []byte) (int, error) {
	n, err := lc.Conn.Read(p)
	if n > 0 && lc.s.rawLogger != nil {
		lc.s.rawLogger.Log(true, p[:n])
	}
	return n, err
}

func (lc *logConn) Write(p []byte) (int, error) {
	n, err := lc.Conn.Write(p)
	if n > 0 && lc.s.rawLogger != nil {
		lc.s.rawLogger.Log(false, p[:n])
	}
	return n, err
}

func (s *Server) handleUrbStream(ctx context.Context, conn net.Conn, dm virtualbus.DeviceMeta) error {
	_ = conn.SetDeadline(time.Time{})
	dev := dm.Dev

	// Unblock the read below when the device leaves the bus.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if obs, ok := dev.(usb.ConnectionObserver); ok {
		obs.OnConnect()
		defer obs.OnDisconnect()
	}

	var hdr [usbip.URBHeaderSize]byte
	var out []byte
	for {
		if err := usbip.ReadExactly(conn, hdr[:]); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("Device removed, closing URB stream", "busid", dm.Meta.BusIDString())
				return nil
			}
			return fmt.Errorf("read URB header: %w", err)
		}
		basic, _ := usbip.ParseHeaderBasic(hdr[:])

		switch basic.Command {
		case usbip.CmdUnlinkCode:
			unlink, _ := usbip.ParseCmdUnlink(hdr[:])
			s.logger.Debug("USBIP_CMD_UNLINK", "seq", basic.Seqnum, "unlink", unlink.UnlinkSeqnum)
			// Every submit has already been answered; report it as reset.
			ret := usbip.RetUnlink{Basic: usbip.HeaderBasic{Command: usbip.RetUnlinkCode, Seqnum: basic.Seqnum}, Status: usbip.StatusConnReset}
			if err := ret.Write(conn); err != nil {
				return fmt.Errorf("write RET_UNLINK: %w", err)
			}
			continue
		case usbip.CmdSubmitCode:
		default:
			return fmt.Errorf("unsupported cmd %d (seq=%d, devid=%d)", basic.Command, basic.Seqnum, basic.Devid)
		}

		cmd, _ := usbip.ParseCmdSubmit(hdr[:])
		var payload []byte
		if basic.Dir == usbip.DirOut && cmd.TransferBufferLen > 0 {
			payload = make([]byte, cmd.TransferBufferLen)
			if err := usbip.ReadExactly(conn, payload); err != nil {
				return fmt.Errorf("read OUT payload: %w", err)
			}
		}

		respData := s.processSubmit(dev, cmd, payload)
		if basic.Dir == usbip.DirIn && len(respData) > int(cmd.TransferBufferLen) {
			respData = respData[:cmd.TransferBufferLen]
		}

		ret := usbip.RetSubmit{
			Basic:        usbip.HeaderBasic{Command: usbip.RetSubmitCode, Seqnum: basic.Seqnum},
			ActualLength: uint32(len(respData)),
		}
		if basic.Dir == usbip.DirOut {
			ret.ActualLength = uint32(len(payload))
			respData = nil
		}
		out = ret.Append(out[:0], respData)
		if _, err := conn.Write(out); err != nil {
			return fmt.Errorf("write RET_SUBMIT: %w", err)
		}
	}
}

// isClientDisconnect tests whether err is a normal client disconnect:
// EOF, ECONNRESET, broken pipe or the Windows equivalents.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset by peer") || strings.Contains(e, "forcibly closed") || strings.Contains(e, "aborted")
}

// processSubmit answers EP0 enumeration and forwards everything else to the
// device.
func (s *Server) processSubmit(dev usb.Device, cmd usbip.CmdSubmit, out []byte) []byte {
	if cmd.Basic.Ep != 0 {
		return dev.HandleTransfer(cmd.Basic.Ep, cmd.Basic.Dir, out)
	}
	setup := cmd.Setup
	bm := setup[0]
	breq := setup[1]
	wValue := binary.LittleEndian.Uint16(setup[2:4])
	wIndex := binary.LittleEndian.Uint16(setup[4:6])
	wLength := binary.LittleEndian.Uint16(setup[6:8])

	if bm&usbReqTypeMask != 0 {
		if ch, ok := dev.(usb.ControlHandler); ok {
			if data, handled := ch.HandleControl(bm, breq, wValue, wIndex, wLength, out); handled {
				return truncate(data, wLength)
			}
		}
		s.logger.Debug("Unhandled class request", "bmRequestType", bm, "bRequest", breq, "wValue", wValue)
		return nil
	}

	desc := dev.GetDescriptor()

	switch {
	case breq == usbReqSetAddress, breq == usbReqSetConfiguration, breq == usbReqSetInterface,
		breq == usbReqClearFeature, breq == usbReqSetFeature:
		return nil
	case breq == usbReqGetConfiguration && bm == usbReqTypeStandardFromDevice:
		return []byte{usbConfigValueDefault}
	case breq == usbReqGetInterface && bm == usbReqTypeStandardFromIface:
		return []byte{0x00}
	case breq == usbReqGetStatus && (bm == usbReqTypeStandardFromDevice || bm == usbReqTypeStandardFromIface || bm == usbReqTypeStandardFromEp):
		return []byte{0x00, 0x00}
	case breq == usbReqGetDescriptor && bm == usbReqTypeStandardFromDevice:
		return truncate(s.deviceDescriptor(desc, uint8(wValue>>8), uint8(wValue)), wLength)
	case breq == usbReqGetDescriptor && bm == usbReqTypeStandardFromIface:
		return truncate(s.interfaceDescriptor(desc, uint8(wValue>>8), uint8(wIndex)), wLength)
	}
	s.logger.Debug("Unhandled standard request", "bmRequestType", bm, "bRequest", breq)
	return nil
}

func (s *Server) deviceDescriptor(desc *usb.Descriptor, dtype, index uint8) []byte {
	switch dtype {
	case usb.DeviceDescType:
		return desc.Bytes()
	case usb.ConfigDescType:
		data, err := desc.ConfigBytes(usbConfigValueDefault, usbConfigAttrBusPowered, usbConfigMaxPower100mA)
		if err != nil {
			s.logger.Error("Build configuration descriptor", "error", err)
			return nil
		}
		return data
	case usb.StringDescType:
		if str, ok := desc.Strings[index]; ok {
			return usb.EncodeStringDescriptor(str)
		}
	}
	return nil
}

func (s *Server) interfaceDescriptor(desc *usb.Descriptor, dtype, iface uint8) []byte {
	if int(iface) >= len(desc.Interfaces) || desc.Interfaces[iface].HID == nil {
		return nil
	}
	hid := desc.Interfaces[iface].HID
	var (
		data usb.Data
		err  error
	)
	switch dtype {
	case usb.HIDDescType:
		data, err = hid.DescriptorBytes()
	case usb.ReportDescType:
		data, err = hid.ReportBytes()
	}
	if err != nil {
		s.logger.Error("Build HID descriptor", "interface", iface, "error", err)
		return nil
	}
	return data
}

func truncate(data []byte, wLength uint16) []byte {
	if int(wLength) < len(data) {
		return data[:wLength]
	}
	return data
}
