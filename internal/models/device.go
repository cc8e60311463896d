package models

import "strings"

type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceUnknown DeviceType = "unknown"
)

// ParseDeviceType maps any unrecognized value to DeviceUnknown.
func ParseDeviceType(s string) DeviceType {
	switch DeviceType(strings.ToLower(strings.TrimSpace(s))) {
	case DeviceDesktop:
		return DeviceDesktop
	case DeviceMobile:
		return DeviceMobile
	default:
		return DeviceUnknown
	}
}

// DeviceInfo is one peer in the device registry, identified by ID.
type DeviceInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Address    string     `json:"address"`
	Port       uint16     `json:"port"`
	DeviceType DeviceType `json:"device_type"`
}

func NewDeviceInfo(id, name, address string, port uint16, typ DeviceType) DeviceInfo {
	return DeviceInfo{
		ID:         id,
		Name:       name,
		Address:    address,
		Port:       port,
		DeviceType: typ,
	}
}
