package kasaapi

import (
	"github.com/pkg/errors"
)

const lightingService = "smartlife.iot.smartbulb.lightingservice"

// Command is a device-family specific request carried inside a passthrough
// call, together with the check for the device's reply
type Command interface {
	commandName() string
	requestData() (string, error)
	checkResponse(responseData string) error
}

type command struct {
	command string
}

func newCommand(name string) command {
	return command{
		command: name,
	}
}

func (c command) commandName() string {
	return c.command
}

/*
 *  Plug / switch relay: {"system":{"set_relay_state":{"state":1}}}
 */

type relayStateParams struct {
	State int `json:"state"`
}

type relaySystem struct {
	SetRelayState relayStateParams `json:"set_relay_state"`
}

type setRelayStateCommand struct {
	command
	System relaySystem `json:"system"`
}

func NewSetRelayStateCommand(state DeviceState) Command {
	relay := 0
	if state.On() {
		relay = 1
	}

	return setRelayStateCommand{
		command: newCommand("system.set_relay_state"),
		System: relaySystem{
			SetRelayState: relayStateParams{State: relay},
		},
	}
}

func (c setRelayStateCommand) requestData() (string, error) {
	b, err := marshalJSON(c)
	return string(b), err
}

func (c setRelayStateCommand) checkResponse(responseData string) error {
	return decodeRelayResponse(responseData)
}

/*
 *  Bulb: {"smartlife.iot.smartbulb.lightingservice":{"transition_light_state":{"on_off":true}}}
 *
 *  on_off is a JSON boolean here while the relay uses 0/1
 */

type lightStateParams struct {
	OnOff bool `json:"on_off"`
}

type lightingServiceParams struct {
	TransitionLightState lightStateParams `json:"transition_light_state"`
}

type transitionLightStateCommand struct {
	command
	LightingService lightingServiceParams `json:"smartlife.iot.smartbulb.lightingservice"`
}

func NewTransitionLightStateCommand(state DeviceState) Command {
	return transitionLightStateCommand{
		command: newCommand(lightingService + ".transition_light_state"),
		LightingService: lightingServiceParams{
			TransitionLightState: lightStateParams{OnOff: state.On()},
		},
	}
}

func (c transitionLightStateCommand) requestData() (string, error) {
	b, err := marshalJSON(c)
	return string(b), err
}

func (c transitionLightStateCommand) checkResponse(responseData string) error {
	return decodeLightResponse(responseData)
}

// commandForDevice picks the protocol for the device family
func commandForDevice(device Device, state DeviceState) (Command, error) {
	switch device.DeviceType {
	case DeviceTypeSmartBulb:
		return NewTransitionLightStateCommand(state), nil
	case DeviceTypeSmartPlugSwitch:
		return NewSetRelayStateCommand(state), nil
	}

	return nil, errors.Wrapf(ErrUnsupportedDeviceType, "device %s has type [%s]", device.Alias, device.DeviceType)
}
