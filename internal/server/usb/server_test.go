package usb_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fightstick/fightstick/device/pokken"
	"github.com/fightstick/fightstick/internal/log"
	srvusb "github.com/fightstick/fightstick/internal/server/usb"
	"github.com/fightstick/fightstick/macro"
	th "github.com/fightstick/fightstick/testing"
	"github.com/fightstick/fightstick/usbip"
	"github.com/fightstick/fightstick/virtualbus"
)

var (
	neutral   = []byte{0x00, 0x00, 0x08, 0x80, 0x80, 0x80, 0x80, 0x00}
	plusHeld  = []byte{0x00, 0x02, 0x08, 0x80, 0x80, 0x80, 0x80, 0x00}
	plusThree = macro.Instruction{Buttons: pokken.ButtonPlus, Direction: pokken.DirCenter, Duration: 3}
)

type fixture struct {
	srv    *srvusb.Server
	bus    *virtualbus.VirtualBus
	pad    *pokken.Pad
	engine *macro.Engine
	busID  string
	client *th.TestUsbIpClient
}

func newFixture(t *testing.T, busNum uint32, controlRequests bool) *fixture {
	t.Helper()
	srv := srvusb.New(srvusb.ServerConfig{Addr: "127.0.0.1:0", ConnectionTimeout: time.Second}, slog.Default(), log.NewRaw(nil))
	go func() { _ = srv.ListenAndServe() }()
	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready")
	}
	t.Cleanup(func() { _ = srv.Close() })

	bus, err := virtualbus.NewWithBusId(busNum)
	require.NoError(t, err)
	require.NoError(t, srv.AddBus(bus))
	t.Cleanup(func() { _ = srv.RemoveBus(busNum) })

	engine, err := macro.NewEngine(macro.MustScript(plusThree), macro.DefaultRepeat)
	require.NoError(t, err)
	pad := pokken.New(engine, &pokken.Options{ControlRequests: controlRequests})
	_, err = bus.Add(pad)
	require.NoError(t, err)

	return &fixture{
		srv:    srv,
		bus:    bus,
		pad:    pad,
		engine: engine,
		busID:  fmt.Sprintf("%d-1", busNum),
		client: th.NewUsbIpClient(t, srv.Addr()),
	}
}

func TestDevList(t *testing.T) {
	f := newFixture(t, 8101, false)

	devs, err := f.client.ListDevices()
	require.NoError(t, err)
	require.Len(t, devs, 1)
	d := devs[0]
	assert.Equal(t, f.busID, d.BusID)
	assert.Equal(t, uint16(pokken.DefaultVID), d.IDVendor)
	assert.Equal(t, uint16(pokken.DefaultPID), d.IDProduct)
	assert.Equal(t, uint32(2), d.Speed)
	require.Len(t, d.Interfaces, 1)
	assert.Equal(t, uint8(0x03), d.Interfaces[0].Class)
}

func TestImportUnknownBusID(t *testing.T) {
	f := newFixture(t, 8102, false)
	_, err := f.client.AttachDevice("8102-9")
	assert.Error(t, err)
}

func TestPlaybackOverUSBIP(t *testing.T) {
	f := newFixture(t, 8103, false)

	imp, err := f.client.AttachDevice(f.busID)
	require.NoError(t, err)
	defer imp.Conn.Close()
	assert.Equal(t, uint16(pokken.DefaultVID), imp.Exported.IDVendor)

	// Enumeration does not advance playback.
	devDesc, err := f.client.Control(imp.Conn, 0x80, 0x06, 0x0100, 0, 18, nil)
	require.NoError(t, err)
	require.Len(t, devDesc, 18)
	assert.Equal(t, []byte{0x0D, 0x0F, 0x92, 0x00}, devDesc[8:12])

	cfgHead, err := f.client.Control(imp.Conn, 0x80, 0x06, 0x0200, 0, 9, nil)
	require.NoError(t, err)
	require.Len(t, cfgHead, 9)
	assert.Equal(t, []byte{41, 0}, cfgHead[2:4])

	cfg, err := f.client.Control(imp.Conn, 0x80, 0x06, 0x0200, 0, 41, nil)
	require.NoError(t, err)
	assert.Len(t, cfg, 41)

	product, err := f.client.Control(imp.Conn, 0x80, 0x06, 0x0302, 0x0409, 255, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(2+2*len("POKKEN CONTROLLER")), product[0])

	report, err := f.client.Control(imp.Conn, 0x81, 0x06, 0x2200, 0, 255, nil)
	require.NoError(t, err)
	assert.Len(t, report, 86)

	_, err = f.client.Control(imp.Conn, 0x00, 0x09, 0x0001, 0, 0, nil)
	require.NoError(t, err)
	_, err = f.client.Control(imp.Conn, 0x21, 0x0A, 0, 0, 0, nil) // SET_IDLE
	require.NoError(t, err)
	assert.Equal(t, uint64(0), f.pad.Ticks())

	// Sync and Wait take 2(R+1) polls, PLUS is held 3(R+1), then idle.
	startup, run := macro.PollsFor(macro.MustScript(plusThree), macro.DefaultRepeat)
	for i := range startup + run + 20 {
		got, err := f.client.ReadInputReport(imp.Conn)
		require.NoError(t, err)
		switch {
		case i < startup:
			assert.Equal(t, neutral, got, "poll %d", i+1)
		case i < startup+run:
			assert.Equal(t, plusHeld, got, "poll %d", i+1)
		default:
			assert.Equal(t, neutral, got, "poll %d", i+1)
		}
	}
	assert.True(t, f.engine.Player().Done())
	assert.Equal(t, uint64(startup+run+20), f.pad.Ticks())

	// Output reports are accepted and ignored.
	_, err = f.client.Submit(imp.Conn, usbip.DirOut, 2, 0, make([]byte, 8), [8]byte{})
	require.NoError(t, err)

	status, err := f.client.Unlink(imp.Conn, 1)
	require.NoError(t, err)
	assert.Equal(t, usbip.StatusConnReset, status)
}

func TestControlGetReport(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, 8104, false)
		imp, err := f.client.AttachDevice(f.busID)
		require.NoError(t, err)
		defer imp.Conn.Close()

		data, err := f.client.Control(imp.Conn, 0xA1, 0x01, 0x0100, 0, 8, nil)
		require.NoError(t, err)
		assert.Empty(t, data)
		assert.Equal(t, uint64(0), f.pad.Ticks())
	})

	t.Run("enabled", func(t *testing.T) {
		f := newFixture(t, 8105, true)
		imp, err := f.client.AttachDevice(f.busID)
		require.NoError(t, err)
		defer imp.Conn.Close()

		data, err := f.client.Control(imp.Conn, 0xA1, 0x01, 0x0100, 0, 8, nil)
		require.NoError(t, err)
		assert.Equal(t, neutral, data)
		assert.Equal(t, uint64(1), f.pad.Ticks())

		// GET_REPORT and interrupt polls share one playback.
		for range 2*(macro.DefaultRepeat+1) - 1 {
			_, err := f.client.ReadInputReport(imp.Conn)
			require.NoError(t, err)
		}
		got, err := f.client.ReadInputReport(imp.Conn)
		require.NoError(t, err)
		assert.Equal(t, plusHeld, got)
	})
}

func TestConnectionLifecycle(t *testing.T) {
	f := newFixture(t, 8106, false)

	imp, err := f.client.AttachDevice(f.busID)
	require.NoError(t, err)
	assert.Eventually(t, f.pad.Connected, time.Second, 5*time.Millisecond)

	for range 3 {
		_, err := f.client.ReadInputReport(imp.Conn)
		require.NoError(t, err)
	}
	require.NoError(t, imp.Conn.Close())
	assert.Eventually(t, func() bool { return !f.pad.Connected() }, time.Second, 5*time.Millisecond)

	// A new client continues the same playback.
	imp, err = f.client.AttachDevice(f.busID)
	require.NoError(t, err)
	defer imp.Conn.Close()
	_, err = f.client.ReadInputReport(imp.Conn)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), f.pad.Ticks())

	// Removing the device ends the stream.
	require.NoError(t, f.bus.Remove(f.pad))
	assert.Eventually(t, func() bool { return !f.pad.Connected() }, time.Second, 5*time.Millisecond)
	_, err = f.client.ReadInputReport(imp.Conn)
	assert.Error(t, err)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(s string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Contains(b.buf.Bytes(), []byte(s))
}

func TestRawLoggerSeesTraffic(t *testing.T) {
	raw := &syncBuffer{}
	srv := srvusb.New(srvusb.ServerConfig{Addr: "127.0.0.1:0"}, slog.Default(), log.NewRaw(raw))
	go func() { _ = srv.ListenAndServe() }()
	<-srv.Ready()
	defer srv.Close()

	_, err := th.NewUsbIpClient(t, srv.Addr()).ListDevices()
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return raw.Contains("C->S") && raw.Contains("S->C") }, time.Second, 5*time.Millisecond)
}

func TestBusRegistry(t *testing.T) {
	srv := srvusb.New(srvusb.ServerConfig{Addr: "127.0.0.1:0"}, slog.Default(), log.NewRaw(nil))
	bus, err := virtualbus.NewWithBusId(8107)
	require.NoError(t, err)
	require.NoError(t, srv.AddBus(bus))
	assert.ErrorIs(t, srv.AddBus(bus), srvusb.ErrBusExists)
	assert.Equal(t, []uint32{8107}, srv.ListBuses())
	assert.Same(t, bus, srv.GetBus(8107))
	require.NoError(t, srv.RemoveBus(8107))
	assert.ErrorIs(t, srv.RemoveBus(8107), srvusb.ErrBusNotFound)
	assert.Nil(t, srv.GetBus(8107))
}
