package pokken

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fightstick/fightstick/device"
)

// Report is one complete controller snapshot as the host sees it.
//
// Wire layout (InputReportSize bytes):
//
//	0-1: Buttons (little-endian)
//	  2: Hat (HID hat switch, 8 = centre)
//	  3: LX
//	  4: LY
//	  5: RX
//	  6: RY
//	  7: Vendor
type Report struct {
	Buttons   Button
	Direction Direction
	// Sticks: 0x00-0xFF, StickCenter is neutral.
	LX, LY uint8
	RX, RY uint8
	Vendor uint8
}

// NeutralReport returns the idle report: nothing pressed, pad centred,
// both sticks at rest.
func NeutralReport() Report {
	return Report{
		Direction: DirCenter,
		LX:        StickCenter,
		LY:        StickCenter,
		RX:        StickCenter,
		RY:        StickCenter,
	}
}

// HatFromDirection converts a Direction to its HID hat-switch value.
// Invalid directions map to the null state.
func HatFromDirection(d Direction) uint8 {
	if d == DirCenter || !d.Valid() {
		return HatCenter
	}
	return uint8(d) - 1
}

// DirectionFromHat is the inverse of HatFromDirection. Values past the
// eight compass points are read as centred, as hosts treat them.
func DirectionFromHat(h uint8) Direction {
	if h > HatUpLeft {
		return DirCenter
	}
	return Direction(h + 1)
}

// BuildReport encodes the report for the interrupt IN endpoint.
func (r Report) BuildReport() []byte {
	b := make([]byte, InputReportSize)
	binary.LittleEndian.PutUint16(b[0:2], uint16(r.Buttons))
	b[2] = HatFromDirection(r.Direction)
	b[3] = r.LX
	b[4] = r.LY
	b[5] = r.RX
	b[6] = r.RY
	b[7] = r.Vendor
	return b
}

// MarshalBinary encodes the report in its wire layout.
func (r *Report) MarshalBinary() ([]byte, error) {
	if !r.Direction.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDirection, r.Direction)
	}
	return r.BuildReport(), nil
}

// UnmarshalBinary decodes an input report.
func (r *Report) UnmarshalBinary(data []byte) error {
	if len(data) < InputReportSize {
		return io.ErrUnexpectedEOF
	}
	r.Buttons = Button(binary.LittleEndian.Uint16(data[0:2]))
	r.Direction = DirectionFromHat(data[2])
	r.LX = data[3]
	r.LY = data[4]
	r.RX = data[5]
	r.RY = data[6]
	r.Vendor = data[7]
	return nil
}

func (r Report) String() string {
	return fmt.Sprintf("buttons=%s dir=%s sticks=%02x,%02x,%02x,%02x", r.Buttons, r.Direction, r.LX, r.LY, r.RX, r.RY)
}

var _ device.ReportBuilder = Report{}
