package hid_test

import (
	"testing"

	"github.com/fightstick/fightstick/usb/hid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportBytes(t *testing.T) {
	cases := []struct {
		name string
		item hid.Item
		want hid.Data
	}{
		{"usage page one byte", hid.UsagePage{Page: hid.UsagePageGenericDesktop}, hid.Data{0x05, 0x01}},
		{"usage page two bytes", hid.UsagePage{Page: hid.UsagePageVendor}, hid.Data{0x06, 0x00, 0xFF}},
		{"logical max 255 stays positive", hid.LogicalMaximum{Max: 255}, hid.Data{0x26, 0xFF, 0x00}},
		{"logical min negative", hid.LogicalMinimum{Min: -127}, hid.Data{0x15, 0x81}},
		{"physical max 315", hid.PhysicalMaximum{Max: 315}, hid.Data{0x46, 0x3B, 0x01}},
		{"unit degrees", hid.Unit{Unit: hid.UnitDegrees}, hid.Data{0x65, 0x14}},
		{"unit none", hid.Unit{}, hid.Data{0x65, 0x00}},
		{"input null state", hid.Input{Flags: hid.MainData | hid.MainVar | hid.MainAbs | hid.MainNullState}, hid.Data{0x81, 0x42}},
		{"output", hid.Output{Flags: hid.MainVar}, hid.Data{0x91, 0x02}},
		{"empty collection", hid.Collection{Kind: hid.CollectionApplication}, hid.Data{0xA1, 0x01, 0xC0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := hid.Report{Items: []hid.Item{tc.item}}.Bytes()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReportBytesErrors(t *testing.T) {
	_, err := hid.Report{Items: []hid.Item{nil}}.Bytes()
	assert.Error(t, err)

	_, err = hid.Report{Items: []hid.Item{hid.AnyItem{Type: hid.ItemTypeGlobal, Tag: 0x8, Data: hid.Data{1, 2, 3}}}}.Bytes()
	assert.Error(t, err)
}
