package kasaapi

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/kasa-cli/internal/pkg/logging"
)

const (
	DefaultCloudURL = "https://wap.tplinkcloud.com"

	// Identity presented to the cloud, as the Android app would
	appType      = "Kasa_Android"
	terminalUUID = "c39f7337-a17b-41a3-b5e4-0f34860a700f"
	appVersion   = "1.4.4.607"
	osPlatform   = "Android+6.0.1"
	netType      = "wifi"
	locale       = "en_US HTTP/1.1"
)

type loginParams struct {
	AppType       string `json:"appType"`
	CloudUserName string `json:"cloudUserName"`
	CloudPassword string `json:"cloudPassword"`
	TerminalUUID  string `json:"terminalUUID"`
}

type loginRequest struct {
	Method string      `json:"method"`
	Params loginParams `json:"params"`
}

type deviceListRequest struct {
	Method string `json:"method"`
}

type passthroughParams struct {
	DeviceID    string `json:"deviceId"`
	RequestData string `json:"requestData"`
}

type passthroughRequest struct {
	Method string            `json:"method"`
	Params passthroughParams `json:"params"`
}

// Token and device directory.  Shared by the copies returned from the With*
// builders so that a login through one copy is seen by the others.
type sessionCache struct {
	token   string
	devices []Device
}

// Session is a logged-in (or about to be) view of one cloud account.  It is
// not safe for concurrent use; make one per invocation.
type Session struct {
	username   string
	password   string
	cloudURL   string
	timeout    time.Duration
	httpClient *http.Client
	ctx        context.Context
	cache      *sessionCache
}

var _ DeviceController = (*Session)(nil)

func NewSession(username string, password string) *Session {
	return &Session{
		username:   username,
		password:   password,
		cloudURL:   DefaultCloudURL,
		httpClient: &http.Client{},
		ctx:        context.Background(),
		cache:      &sessionCache{},
	}
}

func hashOf(s string) string {
	if s == "" {
		return ""
	}
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// never print the password or token in clear
func (c *Session) String() string {
	return fmt.Sprintf("username [%s], password [%s], cloudURL [%s], token [%s], devices: %d",
		c.username, hashOf(c.password), c.cloudURL, hashOf(c.cache.token), len(c.cache.devices))
}

func (c *Session) WithContext(ctx context.Context) DeviceController {
	nc := *c
	nc.ctx = ctx
	return &nc
}

func (c *Session) WithTimeout(d time.Duration) DeviceController {
	nc := *c
	nc.timeout = d
	return &nc
}

func (c *Session) WithCloudURL(cloudURL string) *Session {
	nc := *c
	nc.cloudURL = cloudURL
	return &nc
}

func (c *Session) WithHTTPClient(cli *http.Client) *Session {
	nc := *c
	nc.httpClient = cli
	return &nc
}

// WithToken starts from an already issued token, skipping the login call
func (c *Session) WithToken(token string) *Session {
	nc := *c
	nc.cache = &sessionCache{token: token}
	return &nc
}

func (c *Session) HasToken() bool {
	return c.cache.token != ""
}

func (c *Session) MakeContext() (context.Context, context.CancelFunc) {
	var ctx = c.ctx
	var cancel context.CancelFunc = func() {}
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	return ctx, cancel
}

// Login exchanges the credentials for a token and then refreshes the device
// list
func (c *Session) Login() error {
	req := loginRequest{
		Method: "login",
		Params: loginParams{
			AppType:       appType,
			CloudUserName: c.username,
			CloudPassword: c.password,
			TerminalUUID:  terminalUUID,
		},
	}

	raw, err := c.post(c.cloudURL, req.Method, req, false)
	if err != nil {
		return errors.Wrap(err, "logging in")
	}

	result, err := decodeLoginResult(raw)
	if err != nil {
		return errors.WithStack(newResponseError(ErrAuthentication, raw, err))
	}

	c.cache.token = result.Token
	logging.Logger(c.ctx).Debugf("logged in to account [%s], country [%s]", result.AccountID, result.CountryCode)

	return c.fetchDeviceList()
}

// RefreshDeviceList replaces the cached device list.  Without a token it logs
// in, which fetches the list as a side effect.
func (c *Session) RefreshDeviceList() error {
	if c.cache.token == "" {
		return c.Login()
	}

	return c.fetchDeviceList()
}

func (c *Session) fetchDeviceList() error {
	req := deviceListRequest{Method: "getDeviceList"}
	raw, err := c.post(withQuery(c.cloudURL, []QueryParam{{"token", c.cache.token}}), req.Method, req, true)
	if err != nil {
		return errors.Wrap(err, "fetching device list")
	}

	devices, err := decodeDeviceListResult(raw)
	if err != nil {
		return errors.WithStack(newResponseError(ErrDirectoryFetch, raw, err))
	}

	c.cache.devices = devices
	logging.Logger(c.ctx).Debugf("device list holds %d devices", len(devices))

	return nil
}

// Devices returns the cached device list, fetching it on first use
func (c *Session) Devices() ([]Device, error) {
	if c.cache.devices == nil {
		if err := c.RefreshDeviceList(); err != nil {
			return nil, err
		}
	}

	devices := make([]Device, len(c.cache.devices))
	copy(devices, c.cache.devices)
	return devices, nil
}

// first match wins if aliases are duplicated
func (c *Session) findDevice(alias string) (Device, error) {
	devices, err := c.Devices()
	if err != nil {
		return Device{}, err
	}

	for _, d := range devices {
		if d.Alias == alias {
			return d, nil
		}
	}

	return Device{}, errors.Wrapf(ErrDeviceNotFound, "device with alias [%s] could not be found", alias)
}

func (c *Session) SetDeviceState(alias string, state DeviceState) error {
	device, err := c.findDevice(alias)
	if err != nil {
		return err
	}

	cmd, err := commandForDevice(device, state)
	if err != nil {
		return err
	}

	logging.Logger(c.ctx).Infof("setting %s [%s] (%s) to %s", device.DeviceType, device.Alias, device.DeviceID, state)

	return c.SendCommand(device, cmd)
}

func (c *Session) TurnOn(alias string) error {
	return c.SetDeviceState(alias, DeviceStateOn)
}

func (c *Session) TurnOff(alias string) error {
	return c.SetDeviceState(alias, DeviceStateOff)
}

func (c *Session) commandQuery() []QueryParam {
	return []QueryParam{
		{"token", c.cache.token},
		{"appName", appType},
		{"termID", terminalUUID},
		{"appVer", appVersion},
		{"ospf", osPlatform},
		{"netType", netType},
		{"locale", locale},
	}
}

// SendCommand wraps cmd in a passthrough request to the device's own app
// server and checks both the envelope and the device's nested reply
func (c *Session) SendCommand(device Device, cmd Command) error {
	if c.cache.token == "" {
		if err := c.Login(); err != nil {
			return err
		}
	}

	requestData, err := cmd.requestData()
	if err != nil {
		return errors.Wrapf(err, "encoding %s request", cmd.commandName())
	}

	req := passthroughRequest{
		Method: "passthrough",
		Params: passthroughParams{
			DeviceID:    device.DeviceID,
			RequestData: requestData,
		},
	}

	raw, err := c.post(withQuery(device.AppServerURL, c.commandQuery()), req.Method, req, true)
	if err != nil {
		return errors.Wrapf(err, "executing command: %s", cmd.commandName())
	}

	responseData, err := decodePassthroughResult(raw)
	if err == nil {
		err = cmd.checkResponse(responseData)
	}
	if err != nil {
		return errors.WithStack(newResponseError(ErrCommand, raw, errors.Wrap(err, cmd.commandName())))
	}

	return nil
}

// marshalJSON encodes like JSON.stringify: no HTML escaping, no trailing newline
func marshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func stripQuery(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}

// post sends body and returns the response, which is guaranteed to be valid
// JSON.  Bodies are only logged when logBodies is set since login carries
// credentials both ways.
func (c *Session) post(target string, method string, body interface{}, logBodies bool) (json.RawMessage, error) {
	ctxLogger := logging.Logger(c.ctx)

	reqBody, err := marshalJSON(body)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s request", method)
	}

	ctx, cancel := c.MakeContext()
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(reqBody))
	if err != nil {
		return nil, newTransportError(err, "building %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	if logBodies {
		ctxLogger.Debugf("sending %s request to [%s]: %s", method, stripQuery(target), reqBody)
	} else {
		ctxLogger.Debugf("sending %s request to [%s]", method, stripQuery(target))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the query carries the token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = stripQuery(uerr.URL)
		}
		return nil, newTransportError(err, "executing %s request", method)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(err, "reading %s response body", method)
	}

	if logBodies {
		ctxLogger.Debugf("%s response (HTTP %d): %s", method, resp.StatusCode, bodyBytes)
	}

	if !json.Valid(bodyBytes) {
		return nil, newTransportError(errors.Errorf("HTTP %d: %s", resp.StatusCode, bodyBytes), "decoding %s response body", method)
	}

	return bodyBytes, nil
}
