package kasaapi

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Failure kinds.  Every error returned by a Session matches exactly one of
// these with errors.Is
var (
	ErrAuthentication        = errors.New("kasa: authentication failed")
	ErrDirectoryFetch        = errors.New("kasa: device list fetch failed")
	ErrDeviceNotFound        = errors.New("kasa: device not found")
	ErrUnsupportedDeviceType = errors.New("kasa: unsupported device type")
	ErrCommand               = errors.New("kasa: device command failed")
	ErrTransport             = errors.New("kasa: transport failure")
)

// ResponseError is an envelope that was decoded as JSON but did not have the
// expected success shape
type ResponseError struct {
	Kind     error
	Response string
	Reason   error
}

func newResponseError(kind error, raw []byte, reason error) *ResponseError {
	return &ResponseError{
		Kind:     kind,
		Response: prettyJSON(raw),
		Reason:   reason,
	}
}

func (e *ResponseError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("%s: %s: unexpected response %s", e.Kind, e.Reason, e.Response)
	}
	return fmt.Sprintf("%s: unexpected response %s", e.Kind, e.Response)
}

func (e *ResponseError) Unwrap() error {
	return e.Kind
}

// transportError wraps a network or body-decode failure so that it matches
// ErrTransport while keeping the original cause printable
type transportError struct {
	cause error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTransport, e.cause)
}

func (e *transportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *transportError) Unwrap() error {
	return e.cause
}

func newTransportError(err error, format string, args ...interface{}) error {
	return errors.WithStack(&transportError{cause: errors.Wrapf(err, format, args...)})
}

// IsNotFound reports whether err is a DeviceNotFound failure
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDeviceNotFound)
}

func prettyJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
