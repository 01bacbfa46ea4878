package kasaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser  = "someone@example.com"
	testPass  = "s3cret&<pass>"
	testToken = "tok-1234"
)

type passthroughCall struct {
	rawQuery    string
	deviceID    string
	requestData string
}

// fakeCloud plays both the wap endpoint and the devices' app server
type fakeCloud struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	calls        map[string]int
	loginBodies  []string
	listTokens   []string
	passthroughs []passthroughCall

	loginResponse       string
	deviceListResponse  string
	passthroughResponse string
}

func okPassthrough(responseData string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"error_code": 0,
		"result":     map[string]string{"responseData": responseData},
	})
	return string(b)
}

func newFakeCloud(t *testing.T) *fakeCloud {
	fc := &fakeCloud{
		t:                   t,
		calls:               make(map[string]int),
		loginResponse:       `{"error_code":0,"result":{"accountId":"1","regTime":"2019-01-01","countryCode":"GB","token":"` + testToken + `"}}`,
		passthroughResponse: okPassthrough(`{"system":{"set_relay_state":{"err_code":0}}}`),
	}
	fc.server = httptest.NewServer(http.HandlerFunc(fc.serveHTTP))
	t.Cleanup(fc.server.Close)

	fc.deviceListResponse = fc.deviceList(
		Device{DeviceType: DeviceTypeSmartPlugSwitch, DeviceID: "plug-1", Alias: "Kettle"},
		Device{DeviceType: DeviceTypeSmartBulb, DeviceID: "bulb-1", Alias: "Lamp"},
		Device{DeviceType: DeviceTypeSmartPlugSwitch, DeviceID: "plug-2", Alias: "Lamp"},
		Device{DeviceType: "IOT.IPCAMERA", DeviceID: "cam-1", Alias: "Door"},
	)

	return fc
}

// deviceList renders a getDeviceList response; devices talk to /app
func (fc *fakeCloud) deviceList(devices ...Device) string {
	for i := range devices {
		devices[i].AppServerURL = fc.server.URL + "/app"
	}

	b, err := json.Marshal(map[string]interface{}{
		"error_code": 0,
		"result":     map[string]interface{}{"deviceList": devices},
	})
	require.NoError(fc.t, err)
	return string(b)
}

func (fc *fakeCloud) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	require.NoError(fc.t, err)
	assert.Equal(fc.t, http.MethodPost, r.Method)

	var req struct {
		Method string `json:"method"`
		Params struct {
			DeviceID    string `json:"deviceId"`
			RequestData string `json:"requestData"`
		} `json:"params"`
	}
	require.NoError(fc.t, json.Unmarshal(body, &req))

	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.calls[req.Method]++

	var resp string
	switch req.Method {
	case "login":
		assert.Equal(fc.t, "/", r.URL.Path)
		fc.loginBodies = append(fc.loginBodies, string(body))
		resp = fc.loginResponse
	case "getDeviceList":
		assert.Equal(fc.t, "/", r.URL.Path)
		fc.listTokens = append(fc.listTokens, r.URL.Query().Get("token"))
		resp = fc.deviceListResponse
	case "passthrough":
		assert.Equal(fc.t, "/app", r.URL.Path)
		fc.passthroughs = append(fc.passthroughs, passthroughCall{
			rawQuery:    r.URL.RawQuery,
			deviceID:    req.Params.DeviceID,
			requestData: req.Params.RequestData,
		})
		resp = fc.passthroughResponse
	default:
		resp = `{"error_code":-1,"msg":"unknown method"}`
	}

	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	io.WriteString(w, resp)
}

func (fc *fakeCloud) count(method string) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.calls[method]
}

func (fc *fakeCloud) session() *Session {
	return NewSession(testUser, testPass).WithCloudURL(fc.server.URL)
}

func TestSession_LoginFetchesDeviceList(t *testing.T) {
	fc := newFakeCloud(t)
	s := fc.session()

	require.NoError(t, s.Login())

	assert.True(t, s.HasToken())
	assert.Equal(t, 1, fc.count("login"))
	assert.Equal(t, 1, fc.count("getDeviceList"))
	assert.Equal(t, []string{testToken}, fc.listTokens)

	// exact wire shape of the login body, no HTML escaping of the password
	require.Len(t, fc.loginBodies, 1)
	assert.Equal(t,
		`{"method":"login","params":{"appType":"Kasa_Android","cloudUserName":"someone@example.com","cloudPassword":"s3cret&<pass>","terminalUUID":"c39f7337-a17b-41a3-b5e4-0f34860a700f"}}`,
		fc.loginBodies[0],
	)

	devices, err := s.Devices()
	require.NoError(t, err)
	assert.Len(t, devices, 4)
	assert.Equal(t, 1, fc.count("getDeviceList"), "device list is cached")
}

func TestSession_RefreshBeforeLogin(t *testing.T) {
	fc := newFakeCloud(t)
	s := fc.session()

	require.NoError(t, s.RefreshDeviceList())

	assert.Equal(t, 1, fc.count("login"))
	assert.Equal(t, 1, fc.count("getDeviceList"), "login already fetched the list")

	require.NoError(t, s.RefreshDeviceList())
	assert.Equal(t, 1, fc.count("login"))
	assert.Equal(t, 2, fc.count("getDeviceList"))
}

func TestSession_SetRelayOn(t *testing.T) {
	fc := newFakeCloud(t)
	s := fc.session()

	require.NoError(t, s.SetDeviceState("Kettle", DeviceStateOn))

	assert.Equal(t, 1, fc.count("login"))
	assert.Equal(t, 1, fc.count("getDeviceList"))
	assert.Equal(t, 1, fc.count("passthrough"))

	require.Len(t, fc.passthroughs, 1)
	call := fc.passthroughs[0]
	assert.Equal(t, "plug-1", call.deviceID)
	assert.Equal(t, `{"system":{"set_relay_state":{"state":1}}}`, call.requestData)
	assert.Equal(t,
		"token="+testToken+"&appName=Kasa_Android&termID=c39f7337-a17b-41a3-b5e4-0f34860a700f&appVer=1.4.4.607&ospf=Android+6.0.1&netType=wifi&locale=en_US%20HTTP/1.1",
		call.rawQuery,
	)
}

func TestSession_SetBulbOffWithHeldToken(t *testing.T) {
	fc := newFakeCloud(t)
	fc.passthroughResponse = okPassthrough(`{"smartlife.iot.smartbulb.lightingservice":{"transition_light_state":{"on_off":0,"err_code":0}}}`)
	fc.deviceListResponse = fc.deviceList(
		Device{DeviceType: DeviceTypeSmartBulb, DeviceID: "bulb-1", Alias: "Lamp"},
	)

	s := fc.session().WithToken(testToken)
	require.NoError(t, s.TurnOff("Lamp"))

	assert.Equal(t, 0, fc.count("login"))
	assert.Equal(t, 1, fc.count("getDeviceList"))
	assert.Equal(t, 1, fc.count("passthrough"))
	require.Len(t, fc.passthroughs, 1)
	assert.Equal(t, "bulb-1", fc.passthroughs[0].deviceID)
	assert.Equal(t, `{"smartlife.iot.smartbulb.lightingservice":{"transition_light_state":{"on_off":false}}}`, fc.passthroughs[0].requestData)
}

func TestSession_FirstAliasMatchWins(t *testing.T) {
	fc := newFakeCloud(t)
	fc.passthroughResponse = okPassthrough(`{"smartlife.iot.smartbulb.lightingservice":{"transition_light_state":{"err_code":0}}}`)

	require.NoError(t, fc.session().TurnOn("Lamp"))

	require.Len(t, fc.passthroughs, 1)
	assert.Equal(t, "bulb-1", fc.passthroughs[0].deviceID)
	assert.Contains(t, fc.passthroughs[0].requestData, `"on_off":true`)
}

func TestSession_DeviceNotFound(t *testing.T) {
	fc := newFakeCloud(t)

	err := fc.session().SetDeviceState("Garage", DeviceStateOn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "Garage")
	assert.Equal(t, 0, fc.count("passthrough"))
}

func TestSession_UnsupportedDeviceType(t *testing.T) {
	fc := newFakeCloud(t)

	err := fc.session().SetDeviceState("Door", DeviceStateOn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedDeviceType))
	assert.Contains(t, err.Error(), "IOT.IPCAMERA")
	assert.Equal(t, 0, fc.count("passthrough"))
}

func TestSession_AuthenticationFailure(t *testing.T) {
	fc := newFakeCloud(t)
	fc.loginResponse = `{"error_code":-20601,"msg":"Incorrect email or password"}`

	err := fc.session().TurnOn("Kettle")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthentication))
	assert.Contains(t, err.Error(), "Incorrect email or password", "raw response is included")
	assert.Equal(t, 0, fc.count("getDeviceList"))
	assert.Equal(t, 0, fc.count("passthrough"))

	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.Contains(t, re.Response, "\n  \"error_code\": -20601", "response is pretty printed")
}

func TestSession_DirectoryFetchFailure(t *testing.T) {
	fc := newFakeCloud(t)
	fc.deviceListResponse = `{"error_code":-20651,"msg":"Token expired"}`

	err := fc.session().WithToken(testToken).TurnOn("Kettle")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDirectoryFetch))
	assert.Equal(t, 0, fc.count("login"), "no retry on a rejected token")
	assert.Equal(t, 0, fc.count("passthrough"))
}

func TestSession_CommandFailure(t *testing.T) {
	tests := map[string]string{
		"device err_code":    okPassthrough(`{"system":{"set_relay_state":{"err_code":1}}}`),
		"bad responseData":   okPassthrough(`{"system":`),
		"envelope error":     `{"error_code":-20571,"msg":"Device is offline"}`,
		"wrong family reply": okPassthrough(`{"smartlife.iot.smartbulb.lightingservice":{"transition_light_state":{"err_code":0}}}`),
	}

	for name, resp := range tests {
		t.Run(name, func(t *testing.T) {
			fc := newFakeCloud(t)
			fc.passthroughResponse = resp

			err := fc.session().TurnOn("Kettle")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCommand), "%v", err)
			assert.Equal(t, 1, fc.count("passthrough"))
		})
	}
}

func TestSession_TransportFailure(t *testing.T) {
	fc := newFakeCloud(t)
	fc.passthroughResponse = `<html>502 Bad Gateway</html>`

	err := fc.session().TurnOn("Kettle")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.False(t, errors.Is(err, ErrCommand))

	// unreachable cloud
	s := NewSession(testUser, testPass).WithCloudURL("http://127.0.0.1:1")
	err = s.Login()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestSession_TokenNotLeakedInTransportErrors(t *testing.T) {
	s := NewSession(testUser, testPass).WithCloudURL("http://127.0.0.1:1").WithToken(testToken)

	err := s.RefreshDeviceList()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.NotContains(t, fmt.Sprintf("%+v", err), testToken)
}

func TestSession_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	s := NewSession(testUser, testPass).WithCloudURL(slow.URL).WithTimeout(50 * time.Millisecond)

	start := time.Now()
	err := s.Login()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
}

func TestSession_ContextCancelled(t *testing.T) {
	fc := newFakeCloud(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fc.session().WithContext(ctx).TurnOn("Kettle")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, 0, fc.count("login"))
}

func TestSession_StringHidesSecrets(t *testing.T) {
	s := NewSession(testUser, testPass).WithToken(testToken)

	str := s.String()
	assert.Contains(t, str, testUser)
	assert.NotContains(t, str, testPass)
	assert.NotContains(t, str, testToken)
	assert.False(t, strings.Contains(str, "s3cret"))
}

func TestSession_BuildersShareCache(t *testing.T) {
	fc := newFakeCloud(t)
	s := fc.session()

	require.NoError(t, s.WithTimeout(time.Second).Login())
	assert.True(t, s.HasToken(), "login through a copy is visible to the original")

	_, err := s.Devices()
	require.NoError(t, err)
	assert.Equal(t, 1, fc.count("getDeviceList"))
}
