package pokken

const (
	DefaultVID = 0x0F0D // HORI CO.,LTD.
	DefaultPID = 0x0092 // Pokken Tournament Pro Pad
)

const (
	EndpointIn  = 0x81
	EndpointOut = 0x02

	// EndpointPacketSize is wMaxPacketSize for both interrupt endpoints.
	EndpointPacketSize = 64
	// PollIntervalMs is bInterval of both interrupt endpoints.
	PollIntervalMs = 5
)

const (
	InputReportSize  = 8
	OutputReportSize = 8
)

// StickCenter is the neutral value of every analog axis.
const StickCenter = 0x80

// Button is the 16-bit button field of the input report.
type Button uint16

const (
	ButtonY       Button = 0x0001
	ButtonB       Button = 0x0002
	ButtonA       Button = 0x0004
	ButtonX       Button = 0x0008
	ButtonL       Button = 0x0010
	ButtonR       Button = 0x0020
	ButtonZL      Button = 0x0040
	ButtonZR      Button = 0x0080
	ButtonMinus   Button = 0x0100
	ButtonPlus    Button = 0x0200
	ButtonLClick  Button = 0x0400
	ButtonRClick  Button = 0x0800
	ButtonHome    Button = 0x1000
	ButtonCapture Button = 0x2000

	ButtonNone Button = 0

	// ButtonsAll covers every button the host maps.
	ButtonsAll Button = 0x3FFF
)

// Direction is the directional pad position.
// Center is zero; the eight compass points follow clockwise from Up.
type Direction uint8

const (
	DirCenter Direction = iota
	DirUp
	DirUpRight
	DirRight
	DirDownRight
	DirDown
	DirDownLeft
	DirLeft
	DirUpLeft

	// DirectionCount is the number of legal Direction values.
	DirectionCount = 9
)

// HID hat-switch values as declared by the report descriptor:
// 0..7 clockwise from up, 8 is the null state.
const (
	HatUp        = 0x00
	HatUpRight   = 0x01
	HatRight     = 0x02
	HatDownRight = 0x03
	HatDown      = 0x04
	HatDownLeft  = 0x05
	HatLeft      = 0x06
	HatUpLeft    = 0x07
	HatCenter    = 0x08
)

// HID class requests.
const (
	hidGetReport = 0x01
	hidSetReport = 0x09

	reportTypeInput  = 0x01
	reportTypeOutput = 0x02

	reqTypeClassInterfaceIn  = 0xA1
	reqTypeClassInterfaceOut = 0x21
)
