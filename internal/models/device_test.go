package models

import "testing"

func TestParseDeviceType(t *testing.T) {
	tests := []struct {
		input    string
		expected DeviceType
	}{
		{"desktop", DeviceDesktop},
		{"mobile", DeviceMobile},
		{"MOBILE", DeviceMobile},
		{" desktop ", DeviceDesktop},
		{"unknown", DeviceUnknown},
		{"headless", DeviceUnknown},
		{"", DeviceUnknown},
	}

	for _, tt := range tests {
		got := ParseDeviceType(tt.input)
		if got != tt.expected {
			t.Errorf("ParseDeviceType(%q) = %q; want %q", tt.input, got, tt.expected)
		}
	}
}
