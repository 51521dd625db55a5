// Package virtualbus assigns USB/IP bus and device ids to emulated devices.
package virtualbus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/fightstick/fightstick/device"
	"github.com/fightstick/fightstick/usb"
	"github.com/fightstick/fightstick/usbip"
)

const basepath = "/sys/devices/pci0000:00/0000:00:08.1/0000:00:04:00.3/usb"

var (
	ErrBusAllocated   = errors.New("bus number already allocated")
	ErrDeviceExists   = errors.New("device already registered on this bus")
	ErrDeviceNotFound = errors.New("device not found")
)

var (
	globalBusCounter uint32
	allocatedBusIds  = make(map[uint32]bool)
	globalMutex      sync.Mutex
)

type VirtualBus struct {
	mutex           sync.Mutex
	busId           uint32
	allocatedDevIDs map[uint32]bool
	devices         []busDevice
}

// DeviceMeta pairs a registered device with its export metadata.
type DeviceMeta struct {
	Dev  usb.Device
	Meta usbip.ExportMeta
}

type busDevice struct {
	dev    usb.Device
	meta   usbip.ExportMeta
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a bus with the next free bus number.
func New() *VirtualBus {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	busId := max(globalBusCounter, 1)
	for allocatedBusIds[busId] {
		busId++
	}
	globalBusCounter = busId + 1
	allocatedBusIds[busId] = true
	return newBus(busId)
}

// NewWithBusId returns a bus with a fixed number.
func NewWithBusId(busId uint32) (*VirtualBus, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if allocatedBusIds[busId] {
		return nil, fmt.Errorf("%w: %d", ErrBusAllocated, busId)
	}
	allocatedBusIds[busId] = true
	return newBus(busId), nil
}

func newBus(busId uint32) *VirtualBus {
	return &VirtualBus{
		busId:           busId,
		allocatedDevIDs: make(map[uint32]bool),
	}
}

// Add registers dev on the lowest free device id. The returned context
// carries the export metadata (see device.GetDeviceMeta) and is cancelled
// when the device is removed or the bus is closed.
func (vb *VirtualBus) Add(dev usb.Device) (context.Context, error) {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	for _, d := range vb.devices {
		if d.dev == dev {
			return nil, ErrDeviceExists
		}
	}
	devID := uint32(1)
	for vb.allocatedDevIDs[devID] {
		devID++
	}
	vb.allocatedDevIDs[devID] = true

	busDevID := fmt.Sprintf("%d-%d", vb.busId, devID)
	var meta usbip.ExportMeta
	usbip.PutFixedString(meta.Path[:], fmt.Sprintf("%s%d/%s", basepath, vb.busId, busDevID))
	usbip.PutFixedString(meta.USBBusId[:], busDevID)
	meta.BusId = vb.busId
	meta.DevId = devID

	ctx, cancel := context.WithCancel(context.Background())
	ctx = device.WithExportMeta(ctx, &meta)

	vb.devices = append(vb.devices, busDevice{dev: dev, meta: meta, ctx: ctx, cancel: cancel})
	return ctx, nil
}

// GetAllDeviceMetas returns a snapshot of every registered device.
func (vb *VirtualBus) GetAllDeviceMetas() []DeviceMeta {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	out := make([]DeviceMeta, 0, len(vb.devices))
	for _, d := range vb.devices {
		out = append(out, DeviceMeta{Dev: d.dev, Meta: d.meta})
	}
	return out
}

// Lookup finds a device by its USB/IP busid ("1-1").
func (vb *VirtualBus) Lookup(busid string) (DeviceMeta, context.Context, bool) {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for _, d := range vb.devices {
		if d.meta.BusIDString() == busid {
			return DeviceMeta{Dev: d.dev, Meta: d.meta}, d.ctx, true
		}
	}
	return DeviceMeta{}, nil, false
}

func (vb *VirtualBus) BusID() uint32 {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	return vb.busId
}

// Devices returns the devices currently on the bus.
func (vb *VirtualBus) Devices() []usb.Device {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	out := make([]usb.Device, 0, len(vb.devices))
	for _, d := range vb.devices {
		out = append(out, d.dev)
	}
	return out
}

// Remove unregisters dev and cancels its context, which ends any URB
// stream serving it.
func (vb *VirtualBus) Remove(dev usb.Device) error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	i := slices.IndexFunc(vb.devices, func(d busDevice) bool { return d.dev == dev })
	if i < 0 {
		return ErrDeviceNotFound
	}
	vb.devices[i].cancel()
	delete(vb.allocatedDevIDs, vb.devices[i].meta.DevId)
	vb.devices = slices.Delete(vb.devices, i, i+1)
	return nil
}

// Close cancels every device context and frees the bus number.
func (vb *VirtualBus) Close() error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	for _, d := range vb.devices {
		d.cancel()
	}
	vb.devices = nil

	globalMutex.Lock()
	defer globalMutex.Unlock()
	delete(allocatedBusIds, vb.busId)
	return nil
}
