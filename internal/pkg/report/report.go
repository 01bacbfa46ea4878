package report

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

/*
 *  Reporters hand the outcome of one device command back to whatever started
 *  us: exactly one of Success or Failure, then Close, which always runs.
 */

type Reporter interface {
	Success() error
	Failure(cause error) error
	Close() error
}

// Invocation describes the command being reported on
type Invocation struct {
	Alias string
	State string
}

type Options struct {
	Kind     string
	SlotsDir string
	MQTT     MQTTConfig
}

const (
	KindConsole = "console"
	KindSlots   = "slots"
	KindMQTT    = "mqtt"
)

// FailureMessage is the human readable failure text, stack included when the
// error carries one
func FailureMessage(err error) string {
	return fmt.Sprintf("Failed with: %+v", err)
}

// outcome is the machine readable form of a result
type outcome struct {
	Instance string    `json:"instance"`
	Alias    string    `json:"alias"`
	State    string    `json:"state"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

func New(opts Options, inv Invocation) (Reporter, error) {
	switch opts.Kind {
	case KindConsole, "":
		return NewConsole(), nil
	case KindSlots:
		return NewSlots(opts.SlotsDir)
	case KindMQTT:
		return NewMQTT(opts.MQTT, inv)
	}

	return nil, errors.Errorf("unknown reporter kind: [%s]", opts.Kind)
}
