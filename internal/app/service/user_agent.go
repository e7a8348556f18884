package service

import (
	"github.com/mileusna/useragent"
	"github.com/sifan077/PowerLink/internal/app/model"
)

// Device classes recorded on click events.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

type clientInfo struct {
	Device  string
	Browser string
	OS      string
}

func classifyUserAgent(raw string) clientInfo {
	ua := useragent.Parse(raw)

	info := clientInfo{
		Device:  DeviceDesktop,
		Browser: orUnknown(ua.Name),
		OS:      orUnknown(ua.OS),
	}
	switch {
	case ua.Tablet:
		info.Device = DeviceTablet
	case ua.Mobile:
		info.Device = DeviceMobile
	}
	return info
}

func orUnknown(v string) string {
	if v == "" {
		return model.UnknownValue
	}
	return v
}
