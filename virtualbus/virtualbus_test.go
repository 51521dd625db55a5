package virtualbus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fightstick/fightstick/device"
	"github.com/fightstick/fightstick/usb"
	"github.com/fightstick/fightstick/virtualbus"
)

type stubDevice struct{ id int }

func (*stubDevice) HandleTransfer(uint32, uint32, []byte) []byte { return nil }
func (*stubDevice) GetDescriptor() *usb.Descriptor               { return &usb.Descriptor{} }

func TestBusAssignsIDs(t *testing.T) {
	bus, err := virtualbus.NewWithBusId(9101)
	require.NoError(t, err)
	defer bus.Close()

	_, err = virtualbus.NewWithBusId(9101)
	assert.ErrorIs(t, err, virtualbus.ErrBusAllocated)

	a, b := &stubDevice{1}, &stubDevice{2}
	ctxA, err := bus.Add(a)
	require.NoError(t, err)
	_, err = bus.Add(b)
	require.NoError(t, err)
	_, err = bus.Add(a)
	assert.ErrorIs(t, err, virtualbus.ErrDeviceExists)

	meta := device.GetDeviceMeta(ctxA)
	require.NotNil(t, meta)
	assert.Equal(t, "9101-1", meta.BusIDString())
	assert.Equal(t, uint32(9101), meta.BusId)
	assert.Equal(t, uint32(1), meta.DevId)

	dm, ctx, ok := bus.Lookup("9101-2")
	require.True(t, ok)
	assert.Same(t, b, dm.Dev)
	assert.NoError(t, ctx.Err())

	_, _, ok = bus.Lookup("9101-3")
	assert.False(t, ok)
}

func TestRemoveCancelsAndFreesID(t *testing.T) {
	bus := virtualbus.New()
	defer bus.Close()

	a := &stubDevice{1}
	ctx, err := bus.Add(a)
	require.NoError(t, err)
	require.NoError(t, bus.Remove(a))
	assert.Error(t, ctx.Err())
	assert.ErrorIs(t, bus.Remove(a), virtualbus.ErrDeviceNotFound)
	assert.Empty(t, bus.Devices())

	ctx, err = bus.Add(&stubDevice{2})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), device.GetDeviceMeta(ctx).DevId)
}

func TestCloseCancelsDevices(t *testing.T) {
	bus, err := virtualbus.NewWithBusId(9102)
	require.NoError(t, err)
	ctx, err := bus.Add(&stubDevice{1})
	require.NoError(t, err)
	require.NoError(t, bus.Close())
	assert.Error(t, ctx.Err())

	again, err := virtualbus.NewWithBusId(9102)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}
