package hid

// Usage pages (HID Usage Tables).
const (
	UsagePageGenericDesktop uint16 = 0x01
	UsagePageButton         uint16 = 0x09
	UsagePageVendor         uint16 = 0xFF00
)

// Generic Desktop usages.
const (
	UsageJoystick  uint16 = 0x04
	UsageGamePad   uint16 = 0x05
	UsageX         uint16 = 0x30
	UsageY         uint16 = 0x31
	UsageZ         uint16 = 0x32
	UsageRz        uint16 = 0x35
	UsageHatSwitch uint16 = 0x39
)

// UnitDegrees is English Rotation, degrees.
const UnitDegrees uint32 = 0x14

// CollectionKind values.
type CollectionKind uint8

const (
	CollectionPhysical    CollectionKind = 0x00
	CollectionApplication CollectionKind = 0x01
	CollectionLogical     CollectionKind = 0x02
)

type MainFlags uint8

const (
	MainData  MainFlags = 0x00
	MainConst MainFlags = 0x01

	MainArray MainFlags = 0x00
	MainVar   MainFlags = 0x02

	MainAbs MainFlags = 0x00
	MainRel MainFlags = 0x04

	MainNoNullPosition MainFlags = 0x00
	MainNullState      MainFlags = 0x40
)
