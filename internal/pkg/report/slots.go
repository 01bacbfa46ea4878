package report

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jake-scott/kasa-cli/internal/pkg/logging"
)

// Slot names as read by the host automation task
const (
	SlotOK    = "kasaok"
	SlotError = "kasaerror"
)

// Slots writes the outcome as one file per slot in a directory, for hosts
// that can read a file into a variable but cannot parse output
type Slots struct {
	dir string
}

// NewSlots clears any slots left by a previous run
func NewSlots(dir string) (*Slots, error) {
	if dir == "" {
		return nil, errors.New("no slots directory configured")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrapf(err, "creating slots directory %s", dir)
	}

	s := &Slots{dir: dir}
	for _, name := range []string{SlotOK, SlotError} {
		if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "clearing slot %s", name)
		}
	}

	return s, nil
}

func (s *Slots) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Slots) set(name string, value string) error {
	if err := ioutil.WriteFile(s.path(name), []byte(value), 0640); err != nil {
		return errors.Wrapf(err, "writing slot %s", name)
	}
	return nil
}

func (s *Slots) Success() error {
	return s.set(SlotOK, "1")
}

func (s *Slots) Failure(cause error) error {
	return s.set(SlotError, FailureMessage(cause))
}

func (s *Slots) Close() error {
	logging.Logger(nil).Debugf("slots written to %s", s.dir)
	return nil
}
