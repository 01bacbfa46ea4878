package report

import (
	"fmt"
	"io"
	"os"
)

type Console struct {
	out io.Writer
	err io.Writer
}

func NewConsole() *Console {
	return &Console{out: os.Stdout, err: os.Stderr}
}

func (c *Console) WithWriters(out io.Writer, err io.Writer) *Console {
	nc := *c
	nc.out = out
	nc.err = err
	return &nc
}

func (c *Console) Success() error {
	_, err := fmt.Fprintln(c.out, "OK")
	return err
}

func (c *Console) Failure(cause error) error {
	_, err := fmt.Fprintln(c.err, FailureMessage(cause))
	return err
}

func (c *Console) Close() error {
	return nil
}
