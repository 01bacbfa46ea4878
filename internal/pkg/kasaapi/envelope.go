package kasaapi

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

/*
 *  Decoders for the cloud response envelopes.
 *
 *  Every response looks like {"error_code": 0, "result": {...}} on success or
 *  {"error_code": -20651, "msg": "..."} on failure.  Passthrough responses
 *  carry the device's own reply as a JSON *string* in result.responseData,
 *  which is decoded in a second, separate step.
 *
 *  Members are looked up by their exact key.  encoding/json folds case when
 *  filling structs, which would let {"ERR_CODE":0} stand in for a missing
 *  err_code, so each level is decoded into an object map first.
 *
 *  The decoders are total: any input, however malformed, yields either a
 *  value or an error, never a panic.
 */

type LoginResult struct {
	AccountID   string
	RegTime     string
	CountryCode string
	Token       string
}

// object is one decoded level of a response, keyed exactly as sent
type object map[string]json.RawMessage

func decodeObject(raw []byte, what string) (object, error) {
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", what)
	}

	// null decodes to a nil map without error
	if o == nil {
		return nil, errors.Errorf("%s is not an object", what)
	}

	return o, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// member returns the value of key, treating null as absent
func (o object) member(key string) (json.RawMessage, bool) {
	raw, ok := o[key]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

func (o object) child(key string, path string) (object, error) {
	raw, ok := o.member(key)
	if !ok {
		return nil, errors.Errorf("missing %s", path)
	}
	return decodeObject(raw, path)
}

// str returns key as a string, or "" when it is absent or not a string
func (o object) str(key string) string {
	var s string
	if raw, ok := o.member(key); ok {
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
	}
	return s
}

// integer accepts a JSON number or a numeric string, anything else is 0
func (o object) integer(key string) int {
	raw, ok := o.member(key)
	if !ok {
		return 0
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		n = json.Number(s)
	}

	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return int(f)
	}
	return 0
}

// zeroCode checks that key holds the number 0
func (o object) zeroCode(key string, path string) error {
	raw, ok := o.member(key)
	if !ok {
		return errors.Errorf("missing %s", path)
	}

	var code float64
	if err := json.Unmarshal(raw, &code); err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}

	if code != 0 {
		if msg := o.str("msg"); msg != "" {
			return errors.Errorf("%s %v: %s", path, code, msg)
		}
		return errors.Errorf("%s %v", path, code)
	}

	return nil
}

// truthy mirrors the loose "is this value set" test the service clients use:
// absent, null, false, 0 and "" are all unset
func truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	switch string(v) {
	case "", "null", "false", `""`:
		return false
	}

	if f, err := strconv.ParseFloat(string(v), 64); err == nil {
		return f != 0
	}

	return true
}

// decodeEnvelope checks the outer wrapper and returns the result member
func decodeEnvelope(raw []byte) (object, error) {
	env, err := decodeObject(raw, "envelope")
	if err != nil {
		return nil, err
	}

	if err := env.zeroCode("error_code", "error_code"); err != nil {
		return nil, err
	}

	if msg, ok := env.member("msg"); ok && truthy(msg) {
		return nil, errors.Errorf("error message present: %s", msg)
	}

	result, ok := env.member("result")
	if !ok || !truthy(result) {
		return nil, errors.New("missing result")
	}

	return decodeObject(result, "result")
}

func decodeLoginResult(raw []byte) (LoginResult, error) {
	var lr LoginResult

	result, err := decodeEnvelope(raw)
	if err != nil {
		return lr, err
	}

	tokenRaw, ok := result.member("token")
	if !ok {
		return lr, errors.New("missing result.token")
	}
	if err := json.Unmarshal(tokenRaw, &lr.Token); err != nil {
		return lr, errors.Wrap(err, "decoding result.token")
	}
	if lr.Token == "" {
		return lr, errors.New("empty result.token")
	}

	lr.AccountID = result.str("accountId")
	lr.RegTime = result.str("regTime")
	lr.CountryCode = result.str("countryCode")

	return lr, nil
}

// decodeDevice never fails: a field of the wrong type reads as empty, so an
// odd entry is only a problem if it is the device being switched
func decodeDevice(o object) Device {
	return Device{
		DeviceType:   DeviceType(o.str("deviceType")),
		DeviceID:     o.str("deviceId"),
		Alias:        o.str("alias"),
		AppServerURL: o.str("appServerUrl"),
		DeviceName:   o.str("deviceName"),
		DeviceModel:  o.str("deviceModel"),
		Status:       o.integer("status"),
	}
}

func decodeDeviceListResult(raw []byte) ([]Device, error) {
	result, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}

	listRaw, ok := result.member("deviceList")
	if !ok {
		return nil, errors.New("missing result.deviceList")
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(listRaw, &entries); err != nil {
		return nil, errors.Wrap(err, "decoding result.deviceList")
	}

	devices := make([]Device, 0, len(entries))
	for _, entry := range entries {
		o, err := decodeObject(entry, "device")
		if err != nil {
			// not a device record, it can never match an alias
			continue
		}
		devices = append(devices, decodeDevice(o))
	}

	if len(devices) == 0 {
		return nil, errors.New("empty result.deviceList")
	}

	return devices, nil
}

// decodePassthroughResult is the first decoding stage for device commands: it
// returns the still-encoded device response
func decodePassthroughResult(raw []byte) (string, error) {
	result, err := decodeEnvelope(raw)
	if err != nil {
		return "", err
	}

	dataRaw, ok := result.member("responseData")
	if !ok {
		return "", errors.New("missing result.responseData")
	}

	var data string
	if err := json.Unmarshal(dataRaw, &data); err != nil {
		return "", errors.Wrap(err, "decoding result.responseData")
	}
	if data == "" {
		return "", errors.New("empty result.responseData")
	}

	return data, nil
}

// decodeRelayResponse is the second decoding stage for plug/switch commands
func decodeRelayResponse(responseData string) error {
	r, err := decodeObject([]byte(responseData), "relay responseData")
	if err != nil {
		return err
	}

	system, err := r.child("system", "system")
	if err != nil {
		return err
	}

	state, err := system.child("set_relay_state", "system.set_relay_state")
	if err != nil {
		return err
	}

	return state.zeroCode("err_code", "system.set_relay_state.err_code")
}

// decodeLightResponse is the second decoding stage for bulb commands
func decodeLightResponse(responseData string) error {
	r, err := decodeObject([]byte(responseData), "light responseData")
	if err != nil {
		return err
	}

	service, err := r.child(lightingService, lightingService)
	if err != nil {
		return err
	}

	path := lightingService + ".transition_light_state"
	state, err := service.child("transition_light_state", path)
	if err != nil {
		return err
	}

	return state.zeroCode("err_code", path+".err_code")
}
