package usbip_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fightstick/fightstick/usbip"
)

func TestMgmtHeader(t *testing.T) {
	h := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqImport, Status: 1}
	b := h.Append(nil)
	assert.Equal(t, []byte{0x01, 0x11, 0x80, 0x03, 0, 0, 0, 1}, b)

	back, err := usbip.ParseMgmtHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, back)
	assert.True(t, back.IsManagement())

	_, err = usbip.ParseMgmtHeader(b[:5])
	assert.ErrorIs(t, err, usbip.ErrShortHeader)
	assert.False(t, usbip.MgmtHeader{Version: 0x0100, Command: usbip.OpReqDevlist}.IsManagement())
}

func TestCmdSubmitRoundTrip(t *testing.T) {
	cmd := usbip.CmdSubmit{
		Basic:             usbip.HeaderBasic{Command: usbip.CmdSubmitCode, Seqnum: 7, Devid: 0x00010001, Dir: usbip.DirIn, Ep: 1},
		TransferBufferLen: 64,
		Interval:          5,
		Setup:             [8]byte{0x80, 0x06, 0x00, 0x01, 0, 0, 18, 0},
	}
	var buf bytes.Buffer
	require.NoError(t, cmd.Write(&buf))
	require.Equal(t, usbip.URBHeaderSize, buf.Len())

	back, err := usbip.ParseCmdSubmit(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, back)
}

func TestRetSubmitPayload(t *testing.T) {
	ret := usbip.RetSubmit{
		Basic:        usbip.HeaderBasic{Command: usbip.RetSubmitCode, Seqnum: 9},
		Status:       0,
		ActualLength: 8,
	}
	payload := []byte{0, 0, 8, 0x80, 0x80, 0x80, 0x80, 0}
	b := ret.Append(nil, payload)
	require.Len(t, b, usbip.URBHeaderSize+len(payload))
	assert.Equal(t, payload, b[usbip.URBHeaderSize:])

	back, err := usbip.ParseRetSubmit(b)
	require.NoError(t, err)
	assert.Equal(t, ret, back)
}

func TestUnlink(t *testing.T) {
	cmd := usbip.CmdUnlink{Basic: usbip.HeaderBasic{Command: usbip.CmdUnlinkCode, Seqnum: 3}, UnlinkSeqnum: 2}
	var buf bytes.Buffer
	require.NoError(t, cmd.Write(&buf))
	back, err := usbip.ParseCmdUnlink(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), back.UnlinkSeqnum)

	buf.Reset()
	ret := usbip.RetUnlink{Basic: usbip.HeaderBasic{Command: usbip.RetUnlinkCode, Seqnum: 3}, Status: usbip.StatusConnReset}
	require.NoError(t, ret.Write(&buf))
	require.Equal(t, usbip.URBHeaderSize, buf.Len())
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0x98}, buf.Bytes()[0x14:0x18])
}

func TestExportedDevice(t *testing.T) {
	d := usbip.ExportedDevice{
		Speed:              2,
		IDVendor:           0x0F0D,
		IDProduct:          0x0092,
		BNumConfigurations: 1,
		BNumInterfaces:     1,
		Interfaces:         []usbip.InterfaceDesc{{Class: 3}},
	}
	usbip.PutFixedString(d.USBBusId[:], "1-1")
	assert.Equal(t, "1-1", d.BusIDString())

	var devlist, imp bytes.Buffer
	require.NoError(t, d.WriteDevlist(&devlist))
	require.NoError(t, d.WriteImport(&imp))
	assert.Equal(t, 312, imp.Len())
	assert.Equal(t, 316, devlist.Len())
	assert.Equal(t, []byte{0x0F, 0x0D, 0x00, 0x92}, imp.Bytes()[300:304])
	assert.Equal(t, []byte{3, 0, 0, 0}, devlist.Bytes()[312:])
}
