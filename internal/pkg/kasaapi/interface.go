package kasaapi

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DeviceType is the family reported by the cloud for a registered device
type DeviceType string

const (
	DeviceTypeSmartBulb       DeviceType = "IOT.SMARTBULB"
	DeviceTypeSmartPlugSwitch DeviceType = "IOT.SMARTPLUGSWITCH"
)

type Device struct {
	DeviceType   DeviceType `json:"deviceType"`
	DeviceID     string     `json:"deviceId"`
	Alias        string     `json:"alias"`
	AppServerURL string     `json:"appServerUrl"`

	// informational only, never used for dispatch
	DeviceName  string `json:"deviceName,omitempty"`
	DeviceModel string `json:"deviceModel,omitempty"`
	Status      int    `json:"status,omitempty"`
}

// DeviceState is the desired power state of a device
type DeviceState string

const (
	DeviceStateOff DeviceState = "OFF"
	DeviceStateOn  DeviceState = "ON"
)

// ParseDeviceState accepts ON/OFF in any case, plus 1/0 and true/false
func ParseDeviceState(s string) (DeviceState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON", "1", "TRUE":
		return DeviceStateOn, nil
	case "OFF", "0", "FALSE":
		return DeviceStateOff, nil
	}

	return "", fmt.Errorf("bad device state: [%s], expected ON or OFF", s)
}

func (s DeviceState) On() bool {
	return s == DeviceStateOn
}

type DeviceController interface {
	WithContext(ctx context.Context) DeviceController
	WithTimeout(d time.Duration) DeviceController
	Login() error
	RefreshDeviceList() error
	Devices() ([]Device, error)
	SetDeviceState(alias string, state DeviceState) error
	TurnOn(alias string) error
	TurnOff(alias string) error
}
